package tracking

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alexradacina/schegl-app/internal/api"
	"github.com/alexradacina/schegl-app/internal/offline/store"
)

// trackingServer echoes submitted batches back as confirmed records,
// assigning fresh ids to items that arrive without one.
func trackingServer(t *testing.T) *httptest.Server {
	t.Helper()

	var nextID int64 = 100
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			TrackingTimes []api.TrackingItem `json:"tracking_times"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode batch: %v", err)
		}

		var confirmed []api.TrackingTime
		for _, item := range req.TrackingTimes {
			id := atomic.AddInt64(&nextID, 1)
			if item.TrackingTimeID != nil {
				id = *item.TrackingTimeID
			}
			confirmed = append(confirmed, api.TrackingTime{
				ID:           id,
				AssignmentID: item.AssignmentID,
				Kind:         item.Kind,
				StartDate:    item.StartDate,
				EndDate:      item.EndDate,
			})
		}

		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data":    map[string]any{"tracking_times": confirmed},
		})
	}))
}

func setupTracker(t *testing.T, dataDir, serverURL string, online *atomic.Bool) (*Tracker, *store.Store) {
	t.Helper()

	st, err := store.Open(dataDir)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	var client *api.Client
	if serverURL != "" {
		client, err = api.New(api.Config{BaseURL: serverURL, Token: "test-token", Timeout: 2 * time.Second})
		if err != nil {
			t.Fatalf("failed to build client: %v", err)
		}
	}

	tracker, err := New(st, client, online.Load, nil)
	if err != nil {
		t.Fatalf("failed to build tracker: %v", err)
	}
	return tracker, st
}

func TestStartOfflineStagesSession(t *testing.T) {
	var online atomic.Bool
	tracker, _ := setupTracker(t, t.TempDir(), "", &online)

	session, err := tracker.Start(context.Background(), KindTravel, nil, "drive to site")
	if err != nil {
		t.Fatalf("failed to start session: %v", err)
	}

	if !strings.HasPrefix(session.ID, "offline_") {
		t.Errorf("offline session should carry a temporary id, got %q", session.ID)
	}
	if !session.Open() {
		t.Error("new session should be open")
	}
	if session.Synced {
		t.Error("offline session should not be marked synced")
	}

	open, ok := tracker.OpenSession()
	if !ok || open.ID != session.ID {
		t.Error("started session should be immediately visible")
	}
}

func TestSingleOpenSessionInvariant(t *testing.T) {
	var online atomic.Bool
	tracker, _ := setupTracker(t, t.TempDir(), "", &online)

	if _, err := tracker.Start(context.Background(), KindWork, nil, ""); err != nil {
		t.Fatalf("failed to start session: %v", err)
	}
	if _, err := tracker.Start(context.Background(), KindPause, nil, ""); err != ErrSessionOpen {
		t.Errorf("expected ErrSessionOpen, got %v", err)
	}
}

func TestStopWithoutOpenSession(t *testing.T) {
	var online atomic.Bool
	tracker, _ := setupTracker(t, t.TempDir(), "", &online)

	if _, err := tracker.Stop(context.Background()); err != ErrNoOpenSession {
		t.Errorf("expected ErrNoOpenSession, got %v", err)
	}
}

func TestRestartStopsThenStarts(t *testing.T) {
	var online atomic.Bool
	tracker, _ := setupTracker(t, t.TempDir(), "", &online)

	if _, err := tracker.Start(context.Background(), KindTravel, nil, ""); err != nil {
		t.Fatalf("failed to start session: %v", err)
	}
	session, err := tracker.Restart(context.Background(), KindWork, nil, "refill machine")
	if err != nil {
		t.Fatalf("failed to restart: %v", err)
	}
	if session.Kind != KindWork {
		t.Errorf("expected work session, got %s", session.Kind)
	}

	sessions := tracker.Sessions()
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}
	if sessions[0].Open() {
		t.Error("first session should be closed after restart")
	}
	if !sessions[1].Open() {
		t.Error("second session should be open")
	}
}

func TestRestartWithoutOpenSessionDoesNotStart(t *testing.T) {
	var online atomic.Bool
	tracker, _ := setupTracker(t, t.TempDir(), "", &online)

	if _, err := tracker.Restart(context.Background(), KindWork, nil, ""); err == nil {
		t.Fatal("expected restart to fail without an open session")
	}
	if _, ok := tracker.OpenSession(); ok {
		t.Error("no session should have been started")
	}
}

func TestStartOnlineUsesServerID(t *testing.T) {
	server := trackingServer(t)
	defer server.Close()

	var online atomic.Bool
	online.Store(true)
	tracker, _ := setupTracker(t, t.TempDir(), server.URL, &online)

	session, err := tracker.Start(context.Background(), KindWork, nil, "")
	if err != nil {
		t.Fatalf("failed to start session: %v", err)
	}
	if !session.Synced {
		t.Error("online session should be synced")
	}
	if _, ok := session.ServerID(); !ok {
		t.Errorf("expected a server id, got %q", session.ID)
	}
}

func TestStartFallsBackToStagingOnTransportFailure(t *testing.T) {
	server := httptest.NewServer(nil)
	server.Close() // refuse connections

	var online atomic.Bool
	online.Store(true)
	tracker, _ := setupTracker(t, t.TempDir(), server.URL, &online)

	session, err := tracker.Start(context.Background(), KindTravel, nil, "")
	if err != nil {
		t.Fatalf("transport failure should fall back to staging, got %v", err)
	}
	if session.Synced {
		t.Error("session should be staged unsynced after transport failure")
	}
	if !strings.HasPrefix(session.ID, "offline_") {
		t.Errorf("expected temporary id, got %q", session.ID)
	}
}

func TestStartRejectionPropagates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"success": false, "message": "overlapping session"})
	}))
	defer server.Close()

	var online atomic.Bool
	online.Store(true)
	tracker, _ := setupTracker(t, t.TempDir(), server.URL, &online)

	if _, err := tracker.Start(context.Background(), KindWork, nil, ""); !api.IsRemoteRejection(err) {
		t.Errorf("expected remote rejection, got %v", err)
	}
	if len(tracker.Sessions()) != 0 {
		t.Error("rejected session must not be staged")
	}
}

// A session the service already confirmed can still be stopped offline; the
// stop is staged for later reconciliation instead of being dropped.
func TestOfflineStopOfConfirmedSessionIsStaged(t *testing.T) {
	server := trackingServer(t)
	defer server.Close()

	dataDir := t.TempDir()
	var online atomic.Bool
	online.Store(true)
	tracker, _ := setupTracker(t, dataDir, server.URL, &online)

	if _, err := tracker.Start(context.Background(), KindWork, nil, ""); err != nil {
		t.Fatalf("failed to start session: %v", err)
	}

	online.Store(false)
	session, err := tracker.Stop(context.Background())
	if err != nil {
		t.Fatalf("failed to stop session: %v", err)
	}
	if session.Synced {
		t.Error("offline stop must leave the session unsynced")
	}
	if _, ok := session.ServerID(); !ok {
		t.Error("session should keep its server id")
	}

	unsynced := tracker.Unsynced()
	if len(unsynced) != 1 {
		t.Fatalf("expected 1 unsynced session, got %d", len(unsynced))
	}
}

func TestOfflineStartThenReconcile(t *testing.T) {
	server := trackingServer(t)
	defer server.Close()

	var online atomic.Bool
	tracker, _ := setupTracker(t, t.TempDir(), server.URL, &online)

	ctx := context.Background()
	if _, err := tracker.Start(ctx, KindTravel, nil, "drive"); err != nil {
		t.Fatalf("failed to start session: %v", err)
	}
	if _, err := tracker.Stop(ctx); err != nil {
		t.Fatalf("failed to stop session: %v", err)
	}

	online.Store(true)
	confirmed, err := tracker.Reconcile(ctx)
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if confirmed != 1 {
		t.Errorf("expected 1 confirmed session, got %d", confirmed)
	}

	sessions := tracker.Sessions()
	if len(sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(sessions))
	}
	if strings.HasPrefix(sessions[0].ID, "offline_") {
		t.Errorf("temporary id should be rewritten, got %q", sessions[0].ID)
	}
	if !sessions[0].Synced {
		t.Error("reconciled session should be synced")
	}
	if len(tracker.Unsynced()) != 0 {
		t.Error("staging area should be clear after reconcile")
	}
}

func TestReconcileFailureKeepsStaging(t *testing.T) {
	server := httptest.NewServer(nil)
	server.Close()

	var online atomic.Bool
	tracker, _ := setupTracker(t, t.TempDir(), server.URL, &online)

	ctx := context.Background()
	if _, err := tracker.Start(ctx, KindWork, nil, ""); err != nil {
		t.Fatalf("failed to start session: %v", err)
	}
	if _, err := tracker.Stop(ctx); err != nil {
		t.Fatalf("failed to stop session: %v", err)
	}

	online.Store(true)
	if _, err := tracker.Reconcile(ctx); err == nil {
		t.Fatal("expected reconcile to fail")
	}
	if len(tracker.Unsynced()) != 1 {
		t.Error("staging area must be untouched after a failed batch")
	}
}

func TestStagingSurvivesRestart(t *testing.T) {
	dataDir := t.TempDir()
	var online atomic.Bool

	tracker, st := setupTracker(t, dataDir, "", &online)
	if _, err := tracker.Start(context.Background(), KindPause, nil, "lunch"); err != nil {
		t.Fatalf("failed to start session: %v", err)
	}
	st.Close()

	reopened, _ := setupTracker(t, dataDir, "", &online)
	open, ok := reopened.OpenSession()
	if !ok {
		t.Fatal("open session should survive restart")
	}
	if open.Kind != KindPause || open.Description != "lunch" {
		t.Errorf("unexpected restored session: %+v", open)
	}
}

func TestObserversNotifiedInOrder(t *testing.T) {
	var online atomic.Bool
	tracker, _ := setupTracker(t, t.TempDir(), "", &online)

	var calls []int
	tracker.OnChange(func() { calls = append(calls, 1) })
	tracker.OnChange(func() { calls = append(calls, 2) })

	ctx := context.Background()
	if _, err := tracker.Start(ctx, KindWork, nil, ""); err != nil {
		t.Fatalf("failed to start session: %v", err)
	}
	if _, err := tracker.Stop(ctx); err != nil {
		t.Fatalf("failed to stop session: %v", err)
	}

	want := []int{1, 2, 1, 2}
	if len(calls) != len(want) {
		t.Fatalf("expected %d notifications, got %d", len(want), len(calls))
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("notification %d: expected observer %d, got %d", i, want[i], calls[i])
		}
	}
}
