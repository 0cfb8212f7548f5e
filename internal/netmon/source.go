package netmon

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"strings"
	"time"

	"github.com/coder/websocket"
)

// WebSocketSource is the primary push subscription: a websocket connection
// to the service's event stream. A readable connection means the device is
// online; losing it is itself an offline transition. The source reconnects
// with backoff for as long as its context lives.
//
// The service pushes status frames of the form
//
//	{"connected": true, "connection_type": "wifi"}
//
// but even without any frames the connection state alone drives the monitor.
type WebSocketSource struct {
	// URL is the websocket endpoint, e.g. wss://host/ws/network.
	URL string

	// Token is the bearer token attached to the handshake. May be empty.
	Token string

	// DialTimeout bounds each connection attempt (default: 10s).
	DialTimeout time.Duration

	// ReconnectDelay is the pause between failed attempts (default: 5s).
	ReconnectDelay time.Duration

	// Logger for source activity.
	Logger *log.Logger
}

// statusFrame is one pushed connectivity event.
type statusFrame struct {
	Connected      bool   `json:"connected"`
	ConnectionType string `json:"connection_type"`
}

// Watch implements Source. It blocks until ctx is cancelled.
func (s *WebSocketSource) Watch(ctx context.Context, update func(Status)) error {
	if s.DialTimeout == 0 {
		s.DialTimeout = 10 * time.Second
	}
	if s.ReconnectDelay == 0 {
		s.ReconnectDelay = 5 * time.Second
	}
	if s.Logger == nil {
		s.Logger = log.New(os.Stderr, "[netmon] ", log.LstdFlags)
	}

	for {
		if err := s.connectAndRead(ctx, update); err != nil && ctx.Err() == nil {
			s.Logger.Printf("Connectivity stream lost: %v", err)
		}

		update(Status{Online: false, Type: ConnectionNone})

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.ReconnectDelay):
		}
	}
}

// connectAndRead holds one websocket session: dial, report online, then
// consume status frames until the connection drops.
func (s *WebSocketSource) connectAndRead(ctx context.Context, update func(Status)) error {
	dialCtx, cancel := context.WithTimeout(ctx, s.DialTimeout)
	opts := &websocket.DialOptions{}
	if s.Token != "" {
		opts.HTTPHeader = map[string][]string{
			"Authorization": {"Bearer " + s.Token},
		}
	}
	conn, _, err := websocket.Dial(dialCtx, s.URL, opts)
	cancel()
	if err != nil {
		return err
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	// The handshake succeeding is evidence enough to report online.
	update(Status{Online: true, Type: ConnectionUnknown})

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		var frame statusFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			s.Logger.Printf("Warning: unparseable connectivity frame: %v", err)
			continue
		}

		update(Status{
			Online: frame.Connected,
			Type:   parseConnectionType(frame.ConnectionType),
		})
	}
}

func parseConnectionType(raw string) ConnectionType {
	switch strings.ToLower(raw) {
	case "wifi":
		return ConnectionWifi
	case "cellular":
		return ConnectionCellular
	case "none":
		return ConnectionNone
	default:
		return ConnectionUnknown
	}
}

// ProbeSource is the fallback when the push subscription is unavailable:
// it polls an active probe on a fixed interval, the same way a browser
// falls back to online/offline events when no richer API exists.
type ProbeSource struct {
	// Probe answers whether the service is reachable right now.
	Probe func(ctx context.Context) (Status, error)

	// Interval between polls (default: 10s).
	Interval time.Duration
}

// Watch implements Source. It blocks until ctx is cancelled.
func (s *ProbeSource) Watch(ctx context.Context, update func(Status)) error {
	if s.Interval == 0 {
		s.Interval = 10 * time.Second
	}

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-ticker.C:
			probeCtx, cancel := context.WithTimeout(ctx, s.Interval)
			status, err := s.Probe(probeCtx)
			cancel()
			if err != nil {
				status = Status{Online: false, Type: ConnectionNone}
			}
			update(status)
		}
	}
}
