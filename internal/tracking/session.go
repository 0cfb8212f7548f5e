package tracking

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alexradacina/schegl-app/internal/api"
)

// StagingKey is the durable-store key holding tracking sessions that have
// not yet been confirmed by the service.
const StagingKey = "offline_tracking_times"

// tempIDPrefix marks session ids minted locally. The service never issues
// ids with this prefix, so the two namespaces cannot collide.
const tempIDPrefix = "offline_"

// Kind classifies what a technician is spending time on.
type Kind string

const (
	KindTravel Kind = "travel"
	KindWork   Kind = "work"
	KindPause  Kind = "pause"
)

// Valid reports whether k is a known session kind.
func (k Kind) Valid() bool {
	switch k {
	case KindTravel, KindWork, KindPause:
		return true
	}
	return false
}

// Session is one tracking interval. ID is either a server-issued numeric id
// (as a string) or a temporary offline_-prefixed id minted before the
// service has seen the session. EndedAt nil means the session is still open.
type Session struct {
	ID           string
	AssignmentID *int64
	Kind         Kind
	Description  string
	StartedAt    time.Time
	EndedAt      *time.Time
	Synced       bool
}

// newTempID mints a collision-free local session id.
func newTempID() string {
	return tempIDPrefix + uuid.NewString()
}

// ServerID returns the numeric id the service issued for this session, and
// false when the session only has a temporary local id.
func (s *Session) ServerID() (int64, bool) {
	if strings.HasPrefix(s.ID, tempIDPrefix) {
		return 0, false
	}
	id, err := strconv.ParseInt(s.ID, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// Open reports whether the session has not been stopped yet.
func (s *Session) Open() bool {
	return s.EndedAt == nil
}

// item converts the session into its batch-submission form.
func (s *Session) item() api.TrackingItem {
	entry := api.TrackingItem{
		AssignmentID: s.AssignmentID,
		Kind:         string(s.Kind),
		Description:  s.Description,
		StartDate:    s.StartedAt.Format(api.TimeFormat),
	}
	if id, ok := s.ServerID(); ok {
		entry.TrackingTimeID = &id
	}
	if s.EndedAt != nil {
		entry.EndDate = s.EndedAt.Format(api.TimeFormat)
	}
	return entry
}

// sessionJSON is the staged wire form, timestamps rendered in the service's
// time format so the staging file reads the same as request bodies.
type sessionJSON struct {
	ID           string `json:"id"`
	AssignmentID *int64 `json:"assignment_id,omitempty"`
	Kind         string `json:"type"`
	Description  string `json:"description,omitempty"`
	StartDate    string `json:"start_date"`
	EndDate      string `json:"end_date,omitempty"`
	Synced       bool   `json:"synced"`
}

func (s Session) MarshalJSON() ([]byte, error) {
	out := sessionJSON{
		ID:           s.ID,
		AssignmentID: s.AssignmentID,
		Kind:         string(s.Kind),
		Description:  s.Description,
		StartDate:    s.StartedAt.Format(api.TimeFormat),
		Synced:       s.Synced,
	}
	if s.EndedAt != nil {
		out.EndDate = s.EndedAt.Format(api.TimeFormat)
	}
	return json.Marshal(out)
}

func (s *Session) UnmarshalJSON(data []byte) error {
	var raw sessionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	started, err := time.ParseInLocation(api.TimeFormat, raw.StartDate, time.Local)
	if err != nil {
		return fmt.Errorf("invalid start date %q: %w", raw.StartDate, err)
	}

	*s = Session{
		ID:           raw.ID,
		AssignmentID: raw.AssignmentID,
		Kind:         Kind(raw.Kind),
		Description:  raw.Description,
		StartedAt:    started,
		Synced:       raw.Synced,
	}
	if raw.EndDate != "" {
		ended, err := time.ParseInLocation(api.TimeFormat, raw.EndDate, time.Local)
		if err != nil {
			return fmt.Errorf("invalid end date %q: %w", raw.EndDate, err)
		}
		s.EndedAt = &ended
	}
	return nil
}
