package queue

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/alexradacina/schegl-app/internal/offline/store"
)

// QueueKey is the durable-store key holding the serialized queue.
const QueueKey = "offline_sync_queue"

// Queue is the durable, ordered mutation log. It owns the QueueKey store
// entry exclusively; no other component writes it.
//
// Enqueue is append-only; entries survive process restart and are only ever
// removed by Compact after confirmed delivery (or an explicit Remove).
type Queue struct {
	store  *store.Store
	logger *log.Logger
	mu     sync.Mutex
}

// New creates a Queue backed by the given store.
//
// If logger is nil, a default logger writing to stderr is used.
func New(st *store.Store, logger *log.Logger) *Queue {
	if logger == nil {
		logger = log.New(os.Stderr, "[queue] ", log.LstdFlags)
	}
	return &Queue{
		store:  st,
		logger: logger,
	}
}

// load reads the current queue from the store. An absent or unparseable
// value yields an empty queue: storage corruption degrades to empty rather
// than wedging every enqueue forever.
func (q *Queue) load() ([]Mutation, error) {
	data, _, ok, err := q.store.Get(QueueKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load offline queue: %w", err)
	}
	if !ok {
		return nil, nil
	}

	var entries []Mutation
	if err := json.Unmarshal(data, &entries); err != nil {
		q.logger.Printf("Warning: discarding unparseable offline queue: %v", err)
		return nil, nil
	}
	return entries, nil
}

// save writes the queue back to the store. Write failures propagate.
func (q *Queue) save(entries []Mutation) error {
	if entries == nil {
		entries = []Mutation{}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to marshal offline queue: %w", err)
	}
	if err := q.store.Set(QueueKey, data); err != nil {
		return fmt.Errorf("failed to persist offline queue: %w", err)
	}
	return nil
}

// Enqueue appends a mutation to the log.
func (q *Queue) Enqueue(m Mutation) error {
	if err := m.Validate(); err != nil {
		return fmt.Errorf("invalid mutation: %w", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	entries, err := q.load()
	if err != nil {
		return err
	}
	entries = append(entries, m)

	if err := q.save(entries); err != nil {
		return err
	}

	q.logger.Printf("Enqueued %s %s: %s", m.Action, m.Kind, m.ID)
	return nil
}

// List returns the full log in insertion order, including entries already
// marked synced but not yet compacted.
func (q *Queue) List() ([]Mutation, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.load()
}

// Pending returns how many entries still await delivery.
func (q *Queue) Pending() (int, error) {
	entries, err := q.List()
	if err != nil {
		return 0, err
	}

	pending := 0
	for _, m := range entries {
		if !m.Synced {
			pending++
		}
	}
	return pending, nil
}

// MarkSynced flips the synced flag on the entry with the given id.
// Marking an absent id is a no-op; the entry may already have been
// compacted by a previous pass.
func (q *Queue) MarkSynced(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	entries, err := q.load()
	if err != nil {
		return err
	}

	changed := false
	for i := range entries {
		if entries[i].ID == id && !entries[i].Synced {
			entries[i].Synced = true
			changed = true
		}
	}
	if !changed {
		return nil
	}

	return q.save(entries)
}

// Remove drops the entry with the given id, preserving the order of the
// remainder. Removing an absent id is a no-op.
func (q *Queue) Remove(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	entries, err := q.load()
	if err != nil {
		return err
	}

	kept := entries[:0]
	for _, m := range entries {
		if m.ID != id {
			kept = append(kept, m)
		}
	}
	if len(kept) == len(entries) {
		return nil
	}

	if err := q.save(kept); err != nil {
		return err
	}

	q.logger.Printf("Removed from offline queue: %s", id)
	return nil
}

// Compact drops all synced entries, preserving the order of the remainder.
func (q *Queue) Compact() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	entries, err := q.load()
	if err != nil {
		return err
	}

	kept := entries[:0]
	for _, m := range entries {
		if !m.Synced {
			kept = append(kept, m)
		}
	}
	dropped := len(entries) - len(kept)
	if dropped == 0 {
		return nil
	}

	if err := q.save(kept); err != nil {
		return err
	}

	q.logger.Printf("Compacted offline queue: dropped %d synced entries, %d remain", dropped, len(kept))
	return nil
}
