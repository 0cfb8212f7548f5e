// Package tracking manages technician time-tracking sessions: travel, work
// and pause intervals recorded against route assignments. At most one
// session is open at a time. Sessions started or stopped while offline are
// staged in the durable store and reconciled to the service in one batch
// once connectivity returns.
package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/alexradacina/schegl-app/internal/api"
	"github.com/alexradacina/schegl-app/internal/offline/store"
)

var (
	// ErrSessionOpen is returned by Start when a session is already open.
	ErrSessionOpen = errors.New("a tracking session is already open")

	// ErrNoOpenSession is returned by Stop when nothing is running.
	ErrNoOpenSession = errors.New("no open tracking session")
)

// Tracker owns the session state machine and its offline staging area.
type Tracker struct {
	store  *store.Store
	client *api.Client
	online func() bool
	logger *log.Logger

	mu        sync.Mutex
	sessions  []Session
	observers []func()
}

// New loads any staged sessions from the store and returns a ready tracker.
// online reports current connectivity; a nil func means always offline.
func New(st *store.Store, client *api.Client, online func() bool, logger *log.Logger) (*Tracker, error) {
	if logger == nil {
		logger = log.New(os.Stderr, "[tracking] ", log.LstdFlags)
	}
	if online == nil {
		online = func() bool { return false }
	}

	t := &Tracker{
		store:  st,
		client: client,
		online: online,
		logger: logger,
	}
	if err := t.load(); err != nil {
		return nil, err
	}
	return t, nil
}

// load reads the staging area. An absent key is an empty staging area; an
// unparseable one is logged and treated as empty rather than wedging every
// tracking operation behind a decode error.
func (t *Tracker) load() error {
	data, _, ok, err := t.store.Get(StagingKey)
	if err != nil {
		return fmt.Errorf("failed to read tracking staging area: %w", err)
	}
	if !ok {
		return nil
	}

	var sessions []Session
	if err := json.Unmarshal(data, &sessions); err != nil {
		t.logger.Printf("Warning: discarding unparseable tracking staging area: %v", err)
		return nil
	}
	t.sessions = sessions
	return nil
}

// persistLocked writes the staging area. Sessions the service has confirmed
// and that are already closed have nothing left to reconcile and are not
// staged; everything else survives a restart. Caller holds t.mu.
func (t *Tracker) persistLocked() error {
	staged := make([]Session, 0, len(t.sessions))
	for _, s := range t.sessions {
		if s.Synced && !s.Open() {
			continue
		}
		staged = append(staged, s)
	}

	data, err := json.Marshal(staged)
	if err != nil {
		return fmt.Errorf("failed to serialize tracking staging area: %w", err)
	}
	if err := t.store.Set(StagingKey, data); err != nil {
		return fmt.Errorf("failed to persist tracking staging area: %w", err)
	}
	return nil
}

// SetOnline replaces the connectivity check, e.g. with a live monitor once
// one is running.
func (t *Tracker) SetOnline(online func() bool) {
	if online == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.online = online
}

// OnChange registers a callback invoked after every session state change.
// Callbacks run in registration order on the mutating goroutine.
func (t *Tracker) OnChange(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.observers = append(t.observers, fn)
}

func (t *Tracker) notify() {
	t.mu.Lock()
	observers := make([]func(), len(t.observers))
	copy(observers, t.observers)
	t.mu.Unlock()

	for _, fn := range observers {
		fn()
	}
}

// Sessions returns a snapshot of all known sessions in creation order.
func (t *Tracker) Sessions() []Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Session, len(t.sessions))
	copy(out, t.sessions)
	return out
}

// OpenSession returns the currently running session, if any.
func (t *Tracker) OpenSession() (Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, s := range t.sessions {
		if s.Open() {
			return s, true
		}
	}
	return Session{}, false
}

// Start opens a new session. When online the session is created on the
// service immediately; a transport failure falls back to offline staging,
// while a rejection from the service propagates to the caller. When offline
// the session is staged with a temporary id and is visible right away.
func (t *Tracker) Start(ctx context.Context, kind Kind, assignmentID *int64, description string) (Session, error) {
	if !kind.Valid() {
		return Session{}, fmt.Errorf("invalid session kind %q", kind)
	}

	t.mu.Lock()
	for _, s := range t.sessions {
		if s.Open() {
			t.mu.Unlock()
			return Session{}, ErrSessionOpen
		}
	}

	session := Session{
		ID:           newTempID(),
		AssignmentID: assignmentID,
		Kind:         kind,
		Description:  description,
		StartedAt:    time.Now(),
	}

	if t.online() && t.client != nil {
		confirmed, err := t.client.SubmitTrackingBatch(ctx, []api.TrackingItem{session.item()})
		switch {
		case err == nil && len(confirmed) == 1:
			session.ID = strconv.FormatInt(confirmed[0].ID, 10)
			session.Synced = true
		case api.IsRemoteRejection(err):
			t.mu.Unlock()
			return Session{}, fmt.Errorf("service rejected tracking session: %w", err)
		default:
			t.logger.Printf("Remote session create failed, staging offline: %v", err)
		}
	}

	t.sessions = append(t.sessions, session)
	if err := t.persistLocked(); err != nil {
		t.sessions = t.sessions[:len(t.sessions)-1]
		t.mu.Unlock()
		return Session{}, err
	}
	t.mu.Unlock()

	t.notify()
	return session, nil
}

// Stop closes the open session. A server-confirmed session is updated on
// the service when online; otherwise the stop is staged, including offline
// stops of server-confirmed sessions, which must not be lost.
func (t *Tracker) Stop(ctx context.Context) (Session, error) {
	t.mu.Lock()

	idx := -1
	for i, s := range t.sessions {
		if s.Open() {
			idx = i
			break
		}
	}
	if idx == -1 {
		t.mu.Unlock()
		return Session{}, ErrNoOpenSession
	}

	session := t.sessions[idx]
	now := time.Now()
	session.EndedAt = &now

	_, hasServerID := session.ServerID()
	if hasServerID && session.Synced && t.online() && t.client != nil {
		_, err := t.client.SubmitTrackingBatch(ctx, []api.TrackingItem{session.item()})
		switch {
		case err == nil:
			// Confirmed end time; nothing left to reconcile.
		case api.IsRemoteRejection(err):
			t.mu.Unlock()
			return Session{}, fmt.Errorf("service rejected session stop: %w", err)
		default:
			t.logger.Printf("Remote session stop failed, staging offline: %v", err)
			session.Synced = false
		}
	} else if session.Synced {
		// Server knows the session but the stop happened offline.
		session.Synced = false
	}

	t.sessions[idx] = session
	if err := t.persistLocked(); err != nil {
		t.mu.Unlock()
		return Session{}, err
	}
	t.mu.Unlock()

	t.notify()
	return session, nil
}

// Restart stops the open session and starts a new one of the given kind.
// The new session is not started when the stop fails.
func (t *Tracker) Restart(ctx context.Context, kind Kind, assignmentID *int64, description string) (Session, error) {
	if _, err := t.Stop(ctx); err != nil {
		return Session{}, fmt.Errorf("failed to stop current session: %w", err)
	}
	return t.Start(ctx, kind, assignmentID, description)
}

// Unsynced returns the sessions still awaiting service confirmation.
func (t *Tracker) Unsynced() []Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []Session
	for _, s := range t.sessions {
		if !s.Synced {
			out = append(out, s)
		}
	}
	return out
}

// Reconcile submits every unsynced session to the service in one batch.
// The staging area is cleared only when the service confirms the batch:
// temporary ids are rewritten to the server-issued ones and closed sessions
// drop out of the staging area. Returns the number of sessions confirmed.
func (t *Tracker) Reconcile(ctx context.Context) (int, error) {
	t.mu.Lock()

	var pending []int
	var items []api.TrackingItem
	for i, s := range t.sessions {
		if !s.Synced {
			pending = append(pending, i)
			items = append(items, s.item())
		}
	}
	if len(items) == 0 {
		t.mu.Unlock()
		return 0, nil
	}

	if t.client == nil {
		t.mu.Unlock()
		return 0, fmt.Errorf("no service client configured")
	}

	confirmed, err := t.client.SubmitTrackingBatch(ctx, items)
	if err != nil {
		t.mu.Unlock()
		return 0, fmt.Errorf("tracking batch submission failed: %w", err)
	}
	if len(confirmed) != len(items) {
		t.mu.Unlock()
		return 0, fmt.Errorf("service confirmed %d of %d tracking sessions", len(confirmed), len(items))
	}

	for n, i := range pending {
		t.sessions[i].ID = strconv.FormatInt(confirmed[n].ID, 10)
		t.sessions[i].Synced = true
	}
	if err := t.persistLocked(); err != nil {
		t.mu.Unlock()
		return 0, err
	}
	t.mu.Unlock()

	t.notify()
	t.logger.Printf("Reconciled %d tracking sessions", len(items))
	return len(items), nil
}
