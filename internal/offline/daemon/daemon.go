// Package daemon ties the offline components into a long-running process:
// it starts the network monitor, triggers a sync pass whenever connectivity
// becomes stable, drains the queue on a fixed interval as a safety net, and
// watches the offline bundle directory for documents dropped in from
// outside the process.
package daemon

import (
	"context"
	"log"
	"os"
	gosync "sync"
	"time"

	"github.com/alexradacina/schegl-app/internal/netmon"
	"github.com/alexradacina/schegl-app/internal/offline/store"
	"github.com/alexradacina/schegl-app/internal/offline/sync"
)

// Config controls daemon behavior.
type Config struct {
	// SyncInterval is how often a sync pass runs regardless of
	// connectivity transitions (default: 5m).
	SyncInterval time.Duration

	// WatchDebounce coalesces bursts of bundle-file events (default: 500ms).
	WatchDebounce time.Duration

	Logger *log.Logger
}

// DefaultConfig returns the production daemon settings.
func DefaultConfig() *Config {
	return &Config{
		SyncInterval:  5 * time.Minute,
		WatchDebounce: 500 * time.Millisecond,
	}
}

// Daemon orchestrates the monitor, sync engine and bundle watcher.
type Daemon struct {
	monitor *netmon.Monitor
	engine  *sync.Engine
	store   *store.Store
	config  *Config
	logger  *log.Logger

	cancel context.CancelFunc
	wg     gosync.WaitGroup

	mu         gosync.Mutex
	bundleSubs []func(name string)
}

// New creates a daemon. The monitor and engine must be ready but not
// started; the daemon owns their lifecycle from Start to Stop.
func New(monitor *netmon.Monitor, engine *sync.Engine, st *store.Store, config *Config) *Daemon {
	if config == nil {
		config = DefaultConfig()
	}
	if config.SyncInterval == 0 {
		config.SyncInterval = 5 * time.Minute
	}
	if config.WatchDebounce == 0 {
		config.WatchDebounce = 500 * time.Millisecond
	}
	logger := config.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[daemon] ", log.LstdFlags)
	}

	return &Daemon{
		monitor: monitor,
		engine:  engine,
		store:   st,
		config:  config,
		logger:  logger,
	}
}

// OnBundleChange registers a callback invoked with the bundle name whenever
// a document in the offline file namespace is created or rewritten from
// outside the process.
func (d *Daemon) OnBundleChange(fn func(name string)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.bundleSubs = append(d.bundleSubs, fn)
}

// Start launches the monitor, the periodic sync loop and the bundle
// watcher. source supplies connectivity updates; nil disables push updates
// and leaves only the startup probe.
func (d *Daemon) Start(ctx context.Context, source netmon.Source) error {
	ctx, d.cancel = context.WithCancel(ctx)

	d.monitor.OnStablyOnline(func() {
		d.logger.Printf("Connection stable, starting sync")
		d.syncNow(ctx)
	})
	d.monitor.Start(ctx, source)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.syncLoop(ctx)
	}()

	if err := d.watchBundles(ctx); err != nil {
		return err
	}

	d.logger.Printf("Daemon started (sync interval %s)", d.config.SyncInterval)
	return nil
}

// Stop shuts the daemon down and waits for its goroutines to finish.
func (d *Daemon) Stop() {
	if d.cancel != nil {
		d.cancel()
	}
	d.wg.Wait()
	d.monitor.Stop()
	d.logger.Printf("Daemon stopped")
}

// syncLoop drains the queue on a fixed interval. The stably-online callback
// covers reconnects; this loop covers mutations enqueued while already
// online.
func (d *Daemon) syncLoop(ctx context.Context) {
	ticker := time.NewTicker(d.config.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.syncNow(ctx)
		}
	}
}

// syncNow runs one sync pass, tolerating the expected refusals: a pass
// already running and no connectivity are both normal states, not faults.
func (d *Daemon) syncNow(ctx context.Context) {
	result, err := d.engine.Sync(ctx)
	switch {
	case err == sync.ErrSyncInProgress:
		d.logger.Printf("Sync already running, skipping pass")
	case err == sync.ErrOffline:
		// Next stable-online transition will pick the queue up.
	case err != nil:
		d.logger.Printf("Sync pass failed: %v", err)
	case result.Failed > 0:
		d.logger.Printf("Sync pass finished with %d failures", result.Failed)
	}
}

func (d *Daemon) notifyBundleChange(name string) {
	d.mu.Lock()
	subs := make([]func(string), len(d.bundleSubs))
	copy(subs, d.bundleSubs)
	d.mu.Unlock()

	for _, fn := range subs {
		fn(name)
	}
}
