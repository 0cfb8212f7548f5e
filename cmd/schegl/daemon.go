package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/alexradacina/schegl-app/internal/netmon"
	"github.com/alexradacina/schegl-app/internal/offline/daemon"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the background sync daemon",
	Long: `Watches connectivity and keeps the offline queue drained. A sync pass
runs whenever the connection has been stable for the configured debounce
window, and again on a fixed interval as a safety net. Changes to offline
bundle files made by other processes are logged as they appear.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(true)
		if err != nil {
			return err
		}
		defer a.Close()

		logger := daemonLogger()

		monitor := netmon.New(&netmon.Config{
			Debounce: cfg.Debounce,
			Probe:    healthProbe(a),
			Logger:   logger,
		})
		// The one-shot startup probe is replaced by live monitor state.
		a.engine.SetOnline(monitor.Online)
		a.tracker.SetOnline(monitor.Online)

		d := daemon.New(monitor, a.engine, a.store, &daemon.Config{
			SyncInterval: cfg.SyncInterval,
			Logger:       logger,
		})

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := d.Start(ctx, connectivitySource(a, logger)); err != nil {
			return err
		}

		fmt.Println("Daemon running, press Ctrl+C to stop")
		<-ctx.Done()
		d.Stop()
		return nil
	},
}

// daemonLogger logs to stderr, or to a rotating file when configured.
func daemonLogger() *log.Logger {
	if cfg.LogFile == "" {
		return log.New(os.Stderr, "[schegl] ", log.LstdFlags)
	}
	return log.New(&lumberjack.Logger{
		Filename:   cfg.LogFile,
		MaxSize:    cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
	}, "[schegl] ", log.LstdFlags)
}

// healthProbe adapts the API health endpoint into a monitor probe.
func healthProbe(a *app) func(ctx context.Context) (netmon.Status, error) {
	return func(ctx context.Context) (netmon.Status, error) {
		if err := a.client.Health(ctx); err != nil {
			return netmon.Status{Online: false, Type: netmon.ConnectionNone}, nil
		}
		return netmon.Status{Online: true, Type: netmon.ConnectionUnknown}, nil
	}
}

// connectivitySource prefers the push endpoint and falls back to polling
// the health probe when none is configured.
func connectivitySource(a *app, logger *log.Logger) netmon.Source {
	if cfg.WebSocketURL != "" {
		return &netmon.WebSocketSource{
			URL:    cfg.WebSocketURL,
			Token:  cfg.Token,
			Logger: logger,
		}
	}
	probe := healthProbe(a)
	return &netmon.ProbeSource{Probe: probe}
}
