// Package queue provides the durable, ordered log of mutations performed
// while the device was offline, awaiting delivery to the remote service.
package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/alexradacina/schegl-app/internal/api"
)

// EntityKind tags which domain entity a mutation affects.
type EntityKind string

const (
	KindMachine         EntityKind = "machine"
	KindAssignment      EntityKind = "assignment"
	KindMachineOrder    EntityKind = "machineOrder"
	KindTrackingSession EntityKind = "trackingSession"
)

// Action tags what the mutation does to its entity.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Payload is the closed set of per-entity mutation bodies. Each entity kind
// carries its own strongly typed shape; there is no untyped variant.
type Payload interface {
	entityKind() EntityKind
}

// MachinePayload is the body of a machine create.
type MachinePayload struct {
	Machine api.Machine `json:"machine"`
}

func (MachinePayload) entityKind() EntityKind { return KindMachine }

// AssignmentStatusPayload is the body of an assignment status update.
type AssignmentStatusPayload struct {
	AssignmentID int64  `json:"assignment_id"`
	Status       string `json:"status"`
	Notes        string `json:"notes,omitempty"`
}

func (AssignmentStatusPayload) entityKind() EntityKind { return KindAssignment }

// MachineOrderPayload is the body of a machine-order create.
type MachineOrderPayload struct {
	Order api.MachineOrder `json:"order"`
}

func (MachineOrderPayload) entityKind() EntityKind { return KindMachineOrder }

// TrackingBatchPayload is the body of a tracking-session batch submission.
// Tracking sessions normally reconcile through their dedicated staging area;
// this payload exists for the wire-complete union and for callers that
// migrate a staging snapshot into the generic queue.
type TrackingBatchPayload struct {
	Items []api.TrackingItem `json:"items"`
}

func (TrackingBatchPayload) entityKind() EntityKind { return KindTrackingSession }

// Mutation is one entry of the offline queue.
//
// A mutation is appended exactly once at creation time and never changes
// afterwards except for the Synced flag, which only the sync engine flips.
// Once Synced is true the entry is eligible for compaction.
type Mutation struct {
	ID        string
	Kind      EntityKind
	Action    Action
	Payload   Payload
	CreatedAt time.Time
	Synced    bool
}

// NewMutation builds a mutation with a fresh locally generated id and the
// current capture time. Use this for creates; updates of server-confirmed
// entities should derive their id from the entity instead (see NewForEntity).
func NewMutation(kind EntityKind, action Action, payload Payload) (Mutation, error) {
	return newMutation("offline_"+uuid.NewString(), kind, action, payload)
}

// NewForEntity builds a mutation whose id is derived from the affected
// entity, so repeated staging of the same entity update is recognizable.
func NewForEntity(entityID string, kind EntityKind, action Action, payload Payload) (Mutation, error) {
	return newMutation(fmt.Sprintf("%s_%s_%s", kind, action, entityID), kind, action, payload)
}

func newMutation(id string, kind EntityKind, action Action, payload Payload) (Mutation, error) {
	m := Mutation{
		ID:        id,
		Kind:      kind,
		Action:    action,
		Payload:   payload,
		CreatedAt: time.Now(),
	}
	if err := m.Validate(); err != nil {
		return Mutation{}, err
	}
	return m, nil
}

// Validate checks the mutation for internal consistency.
func (m *Mutation) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("id is required")
	}
	switch m.Kind {
	case KindMachine, KindAssignment, KindMachineOrder, KindTrackingSession:
	default:
		return fmt.Errorf("unknown entity kind %q", m.Kind)
	}
	switch m.Action {
	case ActionCreate, ActionUpdate, ActionDelete:
	default:
		return fmt.Errorf("unknown action %q", m.Action)
	}
	if m.Payload == nil {
		return fmt.Errorf("payload is required")
	}
	if m.Payload.entityKind() != m.Kind {
		return fmt.Errorf("payload kind %q does not match mutation kind %q",
			m.Payload.entityKind(), m.Kind)
	}
	if m.CreatedAt.IsZero() {
		return fmt.Errorf("created_at is required")
	}
	return nil
}

// mutationJSON is the serialized form: the payload is stored raw and
// re-typed from the kind tag on load.
type mutationJSON struct {
	ID        string          `json:"id"`
	Kind      EntityKind      `json:"type"`
	Action    Action          `json:"action"`
	Payload   json.RawMessage `json:"data"`
	CreatedAt time.Time       `json:"timestamp"`
	Synced    bool            `json:"synced"`
}

// MarshalJSON implements json.Marshaler.
func (m Mutation) MarshalJSON() ([]byte, error) {
	payload, err := json.Marshal(m.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", m.Kind, err)
	}
	return json.Marshal(mutationJSON{
		ID:        m.ID,
		Kind:      m.Kind,
		Action:    m.Action,
		Payload:   payload,
		CreatedAt: m.CreatedAt,
		Synced:    m.Synced,
	})
}

// UnmarshalJSON implements json.Unmarshaler, re-typing the payload from the
// entity kind tag.
func (m *Mutation) UnmarshalJSON(data []byte) error {
	var raw mutationJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var payload Payload
	switch raw.Kind {
	case KindMachine:
		var p MachinePayload
		if err := json.Unmarshal(raw.Payload, &p); err != nil {
			return fmt.Errorf("failed to unmarshal machine payload: %w", err)
		}
		payload = p
	case KindAssignment:
		var p AssignmentStatusPayload
		if err := json.Unmarshal(raw.Payload, &p); err != nil {
			return fmt.Errorf("failed to unmarshal assignment payload: %w", err)
		}
		payload = p
	case KindMachineOrder:
		var p MachineOrderPayload
		if err := json.Unmarshal(raw.Payload, &p); err != nil {
			return fmt.Errorf("failed to unmarshal machine order payload: %w", err)
		}
		payload = p
	case KindTrackingSession:
		var p TrackingBatchPayload
		if err := json.Unmarshal(raw.Payload, &p); err != nil {
			return fmt.Errorf("failed to unmarshal tracking payload: %w", err)
		}
		payload = p
	default:
		return fmt.Errorf("unknown entity kind %q", raw.Kind)
	}

	m.ID = raw.ID
	m.Kind = raw.Kind
	m.Action = raw.Action
	m.Payload = payload
	m.CreatedAt = raw.CreatedAt
	m.Synced = raw.Synced
	return nil
}
