// Package api is the HTTP client for the field-service backend.
//
// Every endpoint answers with the shared envelope {success, message?, data?}.
// Errors split into two kinds the sync engine treats differently:
//
//   - TransportError: the call never completed (timeout, abort, no route).
//     Always retryable on a later run.
//   - RemoteError: the server answered success=false. Recorded with the
//     server's message; whether it is retried is a per-entity policy decision.
//
// Each call carries an independent timeout (default 10s) so one hung request
// cannot stall a whole sync pass.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Config holds client configuration.
type Config struct {
	// BaseURL is the service root, e.g. https://schlegel.example.com/api
	BaseURL string

	// Token is the bearer token attached to every request. May be empty
	// for unauthenticated probes.
	Token string

	// Timeout bounds each individual remote call (default: 10s).
	Timeout time.Duration

	// HTTPClient overrides the underlying transport. Used by tests.
	HTTPClient *http.Client
}

// Client talks to the remote service.
type Client struct {
	baseURL string
	token   string
	timeout time.Duration
	http    *http.Client
}

// New creates a Client from config.
func New(config Config) (*Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("base URL cannot be empty")
	}
	if _, err := url.Parse(config.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{}
	}

	return &Client{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		token:   config.Token,
		timeout: config.Timeout,
		http:    config.HTTPClient,
	}, nil
}

// SetToken replaces the bearer token, e.g. after a re-login.
func (c *Client) SetToken(token string) {
	c.token = token
}

// do executes one request against the service and decodes the envelope.
// Returns the envelope data on success, a TransportError if the call never
// completed, or a RemoteError if the server answered success=false.
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body any) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s request: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classifyTransport(op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransport(op, err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &RemoteError{Op: op, Status: resp.StatusCode,
			Message: fmt.Sprintf("unparseable response (status %d)", resp.StatusCode)}
	}

	if !env.Success {
		return nil, &RemoteError{Op: op, Status: resp.StatusCode, Message: env.Message}
	}

	return env.Data, nil
}

// Health probes the service. A nil error means the service is reachable.
// Used by the network monitor's startup check.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.do(ctx, "health", http.MethodGet, "/health", nil, nil)
	if err != nil && IsRemoteRejection(err) {
		// A structured rejection still proves the server is reachable.
		return nil
	}
	return err
}

// CreateMachine registers a new machine.
func (c *Client) CreateMachine(ctx context.Context, m Machine) (*Machine, error) {
	data, err := c.do(ctx, "create machine", http.MethodPost, "/machines", nil, m)
	if err != nil {
		return nil, err
	}

	var result struct {
		Machine Machine `json:"machine"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to decode machine response: %w", err)
	}
	return &result.Machine, nil
}

// UpdateAssignmentStatus patches the status of a route assignment.
func (c *Client) UpdateAssignmentStatus(ctx context.Context, id int64, status, notes string) error {
	body := map[string]string{"status": status, "notes": notes}
	path := fmt.Sprintf("/route-assignments/%d/status", id)
	_, err := c.do(ctx, "update assignment status", http.MethodPatch, path, nil, body)
	return err
}

// CreateMachineOrder submits a new machine order.
func (c *Client) CreateMachineOrder(ctx context.Context, o MachineOrder) (*MachineOrder, error) {
	data, err := c.do(ctx, "create machine order", http.MethodPost, "/machine-orders", nil, o)
	if err != nil {
		return nil, err
	}

	var result struct {
		MachineOrder MachineOrder `json:"machine_order"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to decode machine order response: %w", err)
	}
	return &result.MachineOrder, nil
}

// SubmitTrackingBatch sends all staged tracking sessions in one request and
// returns the server-confirmed records (with server-issued ids).
func (c *Client) SubmitTrackingBatch(ctx context.Context, items []TrackingItem) ([]TrackingTime, error) {
	body := map[string][]TrackingItem{"tracking_times": items}
	data, err := c.do(ctx, "submit tracking batch", http.MethodPost, "/tracking-times", nil, body)
	if err != nil {
		return nil, err
	}

	var result struct {
		TrackingTimes []TrackingTime `json:"tracking_times"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to decode tracking batch response: %w", err)
	}
	return result.TrackingTimes, nil
}

// FetchAssignments retrieves route assignments for a date range, together
// with the route messages and tracking times the server bundles with them.
func (c *Client) FetchAssignments(ctx context.Context, fromDate, toDate string) (*AssignmentsPage, error) {
	query := url.Values{}
	if fromDate != "" && toDate != "" {
		query.Set("from_date", fromDate)
		query.Set("to_date", toDate)
	} else if fromDate != "" {
		query.Set("date", fromDate)
	}

	data, err := c.do(ctx, "fetch assignments", http.MethodGet, "/route-assignments", query, nil)
	if err != nil {
		return nil, err
	}

	var page AssignmentsPage
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, fmt.Errorf("failed to decode assignments response: %w", err)
	}
	return &page, nil
}

// FetchTemplates retrieves the reusable machine-order templates.
func (c *Client) FetchTemplates(ctx context.Context) ([]Template, error) {
	data, err := c.do(ctx, "fetch templates", http.MethodGet, "/machine-order-templates", nil, nil)
	if err != nil {
		return nil, err
	}

	var result struct {
		Templates []Template `json:"templates"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to decode templates response: %w", err)
	}
	return result.Templates, nil
}
