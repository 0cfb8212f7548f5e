// Package sync drains the offline mutation queue against the service once
// connectivity returns. Runs are single-flight: a second caller gets a busy
// result instead of a concurrent drain. Each mutation is dispatched to a
// per-entity-kind handler under its own call timeout, failures are recorded
// and skipped so one bad entry cannot wedge the queue, and the tracking
// staging area is reconciled at the end of every pass.
//
// Delivery is at-least-once: a crash between a handler succeeding and the
// mutation being marked synced replays that mutation on the next run.
// Handlers talk to a service that treats replays as upserts, so this window
// is accepted rather than papered over.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync/atomic"
	"time"

	"github.com/alexradacina/schegl-app/internal/api"
	"github.com/alexradacina/schegl-app/internal/offline/queue"
	"github.com/alexradacina/schegl-app/internal/tracking"
)

var (
	// ErrSyncInProgress is returned when a run is already draining the queue.
	ErrSyncInProgress = errors.New("sync already in progress")

	// ErrOffline is returned when a run is requested without connectivity.
	ErrOffline = errors.New("cannot sync while offline")
)

// Handler pushes one queued mutation to the service.
type Handler func(ctx context.Context, m queue.Mutation) error

// Handlers maps entity kinds to their push handler.
type Handlers map[queue.EntityKind]Handler

// RetryPolicy decides whether a rejection from the service should keep the
// mutation queued for a later run. Transport failures always stay queued;
// this policy only governs remote rejections.
type RetryPolicy func(kind queue.EntityKind, err error) bool

// NeverRetry is the default policy: the service's word is final, a rejected
// mutation is recorded and dropped from retry consideration.
func NeverRetry(queue.EntityKind, error) bool { return false }

// ItemError describes one mutation that failed during a run.
type ItemError struct {
	MutationID string
	Kind       queue.EntityKind
	Retryable  bool
	Err        error
}

func (e ItemError) Error() string {
	return fmt.Sprintf("mutation %s (%s): %v", e.MutationID, e.Kind, e.Err)
}

// Result summarizes one sync run.
type Result struct {
	// Busy is set when another run held the engine and nothing was done.
	Busy bool

	Total     int
	Succeeded int
	Failed    int

	// TrackingConfirmed counts staged tracking sessions the service
	// accepted during the reconciliation step.
	TrackingConfirmed int

	Errors []ItemError
}

// Success reports whether the run completed without any failures.
func (r *Result) Success() bool {
	return !r.Busy && r.Failed == 0
}

// Config controls engine behavior.
type Config struct {
	// CallTimeout bounds each individual service call (default: 10s).
	CallTimeout time.Duration

	// Retry governs remote rejections (default: NeverRetry).
	Retry RetryPolicy

	Logger *log.Logger
}

// DefaultConfig returns the production engine settings.
func DefaultConfig() *Config {
	return &Config{
		CallTimeout: 10 * time.Second,
		Retry:       NeverRetry,
	}
}

// Engine drains the offline queue and reconciles tracking sessions.
type Engine struct {
	queue    *queue.Queue
	tracker  *tracking.Tracker
	online   func() bool
	handlers Handlers
	config   *Config
	logger   *log.Logger

	running atomic.Bool
}

// New creates a sync engine. tracker may be nil when tracking reconciliation
// is handled elsewhere; online reports current connectivity.
func New(q *queue.Queue, tracker *tracking.Tracker, online func() bool, handlers Handlers, config *Config) *Engine {
	if config == nil {
		config = DefaultConfig()
	}
	if config.CallTimeout == 0 {
		config.CallTimeout = 10 * time.Second
	}
	if config.Retry == nil {
		config.Retry = NeverRetry
	}
	logger := config.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	if online == nil {
		online = func() bool { return false }
	}

	return &Engine{
		queue:    q,
		tracker:  tracker,
		online:   online,
		handlers: handlers,
		config:   config,
		logger:   logger,
	}
}

// SetOnline replaces the connectivity check, e.g. with a live monitor once
// one is running. Must be called before the engine starts syncing.
func (e *Engine) SetOnline(online func() bool) {
	if online != nil {
		e.online = online
	}
}

// Running reports whether a sync pass is currently executing.
func (e *Engine) Running() bool {
	return e.running.Load()
}

// Sync drains the queue once. A run already in progress yields a busy
// result and ErrSyncInProgress; a run without connectivity yields
// ErrOffline. Mutations are processed in insertion order and failures are
// skipped, never reordered.
func (e *Engine) Sync(ctx context.Context) (*Result, error) {
	if !e.running.CompareAndSwap(false, true) {
		return &Result{Busy: true}, ErrSyncInProgress
	}
	defer e.running.Store(false)

	if !e.online() {
		return nil, ErrOffline
	}

	mutations, err := e.queue.List()
	if err != nil {
		return nil, fmt.Errorf("failed to read offline queue: %w", err)
	}

	result := &Result{}
	for _, m := range mutations {
		if m.Synced {
			continue
		}
		result.Total++

		if err := e.push(ctx, m); err != nil {
			retryable := e.classify(m.Kind, err)
			result.Failed++
			result.Errors = append(result.Errors, ItemError{
				MutationID: m.ID,
				Kind:       m.Kind,
				Retryable:  retryable,
				Err:        err,
			})
			e.logger.Printf("Failed to sync mutation %s (%s, retryable=%t): %v", m.ID, m.Kind, retryable, err)
			continue
		}

		result.Succeeded++
		if err := e.queue.MarkSynced(m.ID); err != nil {
			// The service accepted the mutation; the next run replays it.
			e.logger.Printf("Warning: failed to mark mutation %s synced: %v", m.ID, err)
		}
	}

	if err := e.queue.Compact(); err != nil {
		e.logger.Printf("Warning: failed to compact offline queue: %v", err)
	}

	if e.tracker != nil {
		confirmed, err := e.tracker.Reconcile(ctx)
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, ItemError{
				MutationID: tracking.StagingKey,
				Kind:       queue.KindTrackingSession,
				Retryable:  true,
				Err:        err,
			})
			e.logger.Printf("Failed to reconcile tracking sessions: %v", err)
		} else {
			result.TrackingConfirmed = confirmed
		}
	}

	if result.Total > 0 || result.TrackingConfirmed > 0 {
		e.logger.Printf("Sync pass complete: %d succeeded, %d failed, %d tracking sessions confirmed",
			result.Succeeded, result.Failed, result.TrackingConfirmed)
	}
	return result, nil
}

// push dispatches one mutation to its handler under the call timeout.
func (e *Engine) push(ctx context.Context, m queue.Mutation) error {
	handler, ok := e.handlers[m.Kind]
	if !ok {
		return fmt.Errorf("no handler for entity kind %q", m.Kind)
	}

	callCtx, cancel := context.WithTimeout(ctx, e.config.CallTimeout)
	defer cancel()
	return handler(callCtx, m)
}

// classify decides whether a failed mutation stays eligible for retry.
// Transport failures always do; rejections consult the retry policy.
func (e *Engine) classify(kind queue.EntityKind, err error) bool {
	if api.IsRemoteRejection(err) {
		return e.config.Retry(kind, err)
	}
	if api.IsTransport(err) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
