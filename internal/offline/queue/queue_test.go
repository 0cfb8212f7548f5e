package queue

import (
	"encoding/json"
	"log"
	"os"
	"testing"

	"github.com/alexradacina/schegl-app/internal/api"
	"github.com/alexradacina/schegl-app/internal/offline/store"
)

// setupTestQueue creates a queue over a temporary store.
func setupTestQueue(t *testing.T) (*Queue, *store.Store) {
	t.Helper()

	st, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	return New(st, log.New(os.Stderr, "[test] ", 0)), st
}

// machineCreate builds a test machine-create mutation.
func machineCreate(t *testing.T, name string) Mutation {
	t.Helper()

	m, err := NewMutation(KindMachine, ActionCreate, MachinePayload{
		Machine: api.Machine{Name: name},
	})
	if err != nil {
		t.Fatalf("failed to build mutation: %v", err)
	}
	return m
}

func TestEnqueueList(t *testing.T) {
	q, _ := setupTestQueue(t)

	first := machineCreate(t, "Machine A")
	second := machineCreate(t, "Machine B")

	if err := q.Enqueue(first); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if err := q.Enqueue(second); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	entries, err := q.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].ID != first.ID || entries[1].ID != second.ID {
		t.Error("insertion order not preserved")
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	q, _ := setupTestQueue(t)

	m, err := NewForEntity("17", KindAssignment, ActionUpdate, AssignmentStatusPayload{
		AssignmentID: 17,
		Status:       "finished",
		Notes:        "lock was jammed",
	})
	if err != nil {
		t.Fatalf("failed to build mutation: %v", err)
	}
	if err := q.Enqueue(m); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	entries, err := q.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}

	payload, ok := entries[0].Payload.(AssignmentStatusPayload)
	if !ok {
		t.Fatalf("expected AssignmentStatusPayload, got %T", entries[0].Payload)
	}
	if payload.AssignmentID != 17 || payload.Status != "finished" || payload.Notes != "lock was jammed" {
		t.Errorf("payload did not round-trip: %+v", payload)
	}
}

func TestValidateRejectsMismatchedPayload(t *testing.T) {
	m := Mutation{
		ID:      "x",
		Kind:    KindMachine,
		Action:  ActionCreate,
		Payload: AssignmentStatusPayload{AssignmentID: 1, Status: "open"},
	}
	if err := m.Validate(); err == nil {
		t.Error("expected validation error for payload/kind mismatch")
	}
}

func TestMarkSyncedIdempotent(t *testing.T) {
	q, _ := setupTestQueue(t)

	m := machineCreate(t, "Machine A")
	if err := q.Enqueue(m); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	if err := q.MarkSynced(m.ID); err != nil {
		t.Fatalf("MarkSynced failed: %v", err)
	}
	// Absent id and repeated mark are both no-op successes.
	if err := q.MarkSynced(m.ID); err != nil {
		t.Errorf("repeated MarkSynced should be a no-op, got: %v", err)
	}
	if err := q.MarkSynced("never_enqueued"); err != nil {
		t.Errorf("MarkSynced of absent id should be a no-op, got: %v", err)
	}

	entries, err := q.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if !entries[0].Synced {
		t.Error("expected entry to be marked synced")
	}
}

func TestRemoveIdempotent(t *testing.T) {
	q, _ := setupTestQueue(t)

	m := machineCreate(t, "Machine A")
	if err := q.Enqueue(m); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	if err := q.Remove(m.ID); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if err := q.Remove(m.ID); err != nil {
		t.Errorf("Remove of absent id should be a no-op, got: %v", err)
	}

	entries, err := q.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected empty queue, got %d entries", len(entries))
	}
}

func TestCompactPreservesOrder(t *testing.T) {
	q, _ := setupTestQueue(t)

	a := machineCreate(t, "A")
	b := machineCreate(t, "B")
	c := machineCreate(t, "C")
	for _, m := range []Mutation{a, b, c} {
		if err := q.Enqueue(m); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}

	if err := q.MarkSynced(b.ID); err != nil {
		t.Fatalf("MarkSynced failed: %v", err)
	}
	if err := q.Compact(); err != nil {
		t.Fatalf("Compact failed: %v", err)
	}

	entries, err := q.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries after compaction, got %d", len(entries))
	}
	if entries[0].ID != a.ID || entries[1].ID != c.ID {
		t.Errorf("compaction broke order: %s, %s", entries[0].ID, entries[1].ID)
	}
}

func TestSurvivesRestart(t *testing.T) {
	dir := t.TempDir()

	st, err := store.Open(dir)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	q := New(st, log.New(os.Stderr, "[test] ", 0))

	m := machineCreate(t, "Machine A")
	if err := q.Enqueue(m); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := store.Open(dir)
	if err != nil {
		t.Fatalf("failed to reopen store: %v", err)
	}
	defer reopened.Close()

	entries, err := New(reopened, log.New(os.Stderr, "[test] ", 0)).List()
	if err != nil {
		t.Fatalf("List after restart failed: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != m.ID {
		t.Errorf("queue did not survive restart: %+v", entries)
	}
}

func TestCorruptQueueDegradesToEmpty(t *testing.T) {
	q, st := setupTestQueue(t)

	if err := st.Set(QueueKey, []byte("{not json")); err != nil {
		t.Fatalf("failed to plant corrupt queue: %v", err)
	}

	entries, err := q.List()
	if err != nil {
		t.Fatalf("List of corrupt queue should not error: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected empty queue, got %d entries", len(entries))
	}

	// The queue must accept new work again after corruption.
	if err := q.Enqueue(machineCreate(t, "fresh start")); err != nil {
		t.Fatalf("Enqueue after corruption failed: %v", err)
	}
}

func TestSerializedFormIsStable(t *testing.T) {
	m := machineCreate(t, "Machine A")

	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	for _, want := range []string{"id", "type", "action", "data", "timestamp", "synced"} {
		if _, ok := fields[want]; !ok {
			t.Errorf("serialized mutation missing field %q", want)
		}
	}
}
