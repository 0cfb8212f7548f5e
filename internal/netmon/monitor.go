// Package netmon tracks device connectivity and raises a debounced
// "stably online" signal after a disconnect/reconnect transition.
//
// Flaky radios flap; an immediate sync attempt after a reconnect wastes the
// engine's single-flight slot on a link that is about to drop again. The
// monitor therefore waits out a debounce window (3 seconds by default) after
// every offline-to-online transition and only then notifies subscribers.
// A disconnect during the window cancels it; the next reconnect starts over.
//
// Status updates come from a push Source (a websocket subscription to the
// service in production, with a probe-polling fallback) plus a one-shot
// active probe at startup. Reading the current status has no side effects.
package netmon

import (
	"context"
	"log"
	"os"
	"sync"
	"time"
)

// ConnectionType classifies the current link.
type ConnectionType string

const (
	ConnectionWifi     ConnectionType = "wifi"
	ConnectionCellular ConnectionType = "cellular"
	ConnectionNone     ConnectionType = "none"
	ConnectionUnknown  ConnectionType = "unknown"
)

// Status is the monitor's view of connectivity.
type Status struct {
	Online bool
	Type   ConnectionType
}

// Source pushes connectivity changes into the monitor. Watch blocks until
// ctx is cancelled, invoking update for every status change it observes.
type Source interface {
	Watch(ctx context.Context, update func(Status)) error
}

// Config holds monitor configuration.
type Config struct {
	// Debounce is how long connectivity must hold after a reconnect
	// before subscribers are notified (default: 3s).
	Debounce time.Duration

	// Probe is the active startup check. May be nil, in which case the
	// monitor starts from its zero status and waits for the source.
	Probe func(ctx context.Context) (Status, error)

	// Logger for monitor activity.
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Debounce: 3 * time.Second,
		Logger:   log.New(os.Stderr, "[netmon] ", log.LstdFlags),
	}
}

// Monitor owns the connectivity state and the stably-online subscribers.
type Monitor struct {
	config *Config
	source Source

	mu          sync.Mutex
	status      Status
	subscribers []func()
	timer       *time.Timer

	wg sync.WaitGroup
}

// New creates a Monitor. The source is supplied to Start; a nil source is
// allowed, in which case updates come only from Update calls (used by tests
// and manual wiring).
func New(config *Config) *Monitor {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Debounce == 0 {
		config.Debounce = 3 * time.Second
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[netmon] ", log.LstdFlags)
	}

	return &Monitor{
		config: config,
		status: Status{Online: false, Type: ConnectionUnknown},
	}
}

// Start performs the startup probe and begins consuming the source.
// It returns immediately; watching happens in the background until ctx is
// cancelled. Stop waits for the watcher to exit.
func (m *Monitor) Start(ctx context.Context, source Source) {
	if m.config.Probe != nil {
		probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		status, err := m.config.Probe(probeCtx)
		cancel()
		if err != nil {
			m.config.Logger.Printf("Startup probe failed, assuming offline: %v", err)
			status = Status{Online: false, Type: ConnectionNone}
		}
		m.Update(status)
	}

	if source == nil {
		return
	}
	m.source = source

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := source.Watch(ctx, m.Update); err != nil && ctx.Err() == nil {
			m.config.Logger.Printf("Connectivity source stopped: %v", err)
		}
	}()
}

// Stop waits for the source watcher to exit and cancels a pending
// debounce timer.
func (m *Monitor) Stop() {
	m.wg.Wait()

	m.mu.Lock()
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.mu.Unlock()
}

// Status returns the current connectivity state. No side effects.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Online reports whether the device currently has connectivity.
func (m *Monitor) Online() bool {
	return m.Status().Online
}

// OnStablyOnline registers a callback fired once per stable reconnect.
// Registration is additive: registering the same function twice fires it
// twice; callers dedupe if they need to. Callbacks fire in registration
// order.
func (m *Monitor) OnStablyOnline(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers = append(m.subscribers, fn)
}

// Update feeds a connectivity change into the monitor. Sources call this;
// tests may call it directly.
func (m *Monitor) Update(status Status) {
	m.mu.Lock()
	wasOffline := !m.status.Online
	m.status = status

	switch {
	case wasOffline && status.Online:
		// Reconnect: wait out the debounce window before trusting it.
		m.config.Logger.Printf("Network came online (%s), waiting %v before declaring stable",
			status.Type, m.config.Debounce)
		if m.timer != nil {
			m.timer.Stop()
		}
		m.timer = time.AfterFunc(m.config.Debounce, m.stableOnline)

	case !status.Online:
		// Disconnect cancels a pending stable declaration.
		if m.timer != nil {
			m.timer.Stop()
			m.timer = nil
			m.config.Logger.Println("Network dropped during debounce window")
		}
	}
	m.mu.Unlock()
}

// stableOnline fires the subscribers after an uninterrupted debounce window.
func (m *Monitor) stableOnline() {
	m.mu.Lock()
	if !m.status.Online {
		// Lost the link between timer expiry and now.
		m.mu.Unlock()
		return
	}
	m.timer = nil
	subscribers := make([]func(), len(m.subscribers))
	copy(subscribers, m.subscribers)
	m.mu.Unlock()

	m.config.Logger.Printf("Network stable, notifying %d subscribers", len(subscribers))
	for _, fn := range subscribers {
		fn()
	}
}
