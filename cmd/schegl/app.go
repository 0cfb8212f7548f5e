package main

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/alexradacina/schegl-app/internal/api"
	"github.com/alexradacina/schegl-app/internal/offline/cache"
	"github.com/alexradacina/schegl-app/internal/offline/queue"
	"github.com/alexradacina/schegl-app/internal/offline/store"
	offsync "github.com/alexradacina/schegl-app/internal/offline/sync"
	"github.com/alexradacina/schegl-app/internal/tracking"
)

// app bundles the wired components for one-shot commands. Connectivity is
// probed once at startup; long-running use goes through the daemon and its
// monitor instead.
type app struct {
	store   *store.Store
	client  *api.Client
	queue   *queue.Queue
	cache   *cache.Cache
	tracker *tracking.Tracker
	engine  *offsync.Engine

	reachable atomic.Bool
}

// newApp opens the store and wires the components. needServer rejects
// configurations without a server URL; commands that can work purely
// locally pass false.
func newApp(needServer bool) (*app, error) {
	if needServer {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	a := &app{}

	st, err := store.Open(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	a.store = st

	if cfg.ServerURL != "" {
		client, err := api.New(api.Config{
			BaseURL: cfg.ServerURL,
			Token:   cfg.Token,
			Timeout: cfg.CallTimeout,
		})
		if err != nil {
			st.Close()
			return nil, err
		}
		a.client = client
	}

	a.queue = queue.New(st, nil)
	a.cache = cache.New(st, nil)

	if a.client != nil {
		probeCtx, cancel := context.WithTimeout(context.Background(), cfg.CallTimeout)
		a.reachable.Store(a.client.Health(probeCtx) == nil)
		cancel()
	}

	tracker, err := tracking.New(st, a.client, a.reachable.Load, nil)
	if err != nil {
		st.Close()
		return nil, err
	}
	a.tracker = tracker

	var handlers offsync.Handlers
	if a.client != nil {
		handlers = offsync.DefaultHandlers(a.client)
	}
	engineConfig := offsync.DefaultConfig()
	engineConfig.CallTimeout = cfg.CallTimeout
	a.engine = offsync.New(a.queue, tracker, a.reachable.Load, handlers, engineConfig)

	return a, nil
}

func (a *app) online() bool {
	return a.reachable.Load()
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		fmt.Printf("Warning: failed to close store: %v\n", err)
	}
}
