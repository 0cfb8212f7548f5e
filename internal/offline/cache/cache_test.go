package cache

import (
	"log"
	"os"
	"testing"
	"time"

	"github.com/alexradacina/schegl-app/internal/api"
	"github.com/alexradacina/schegl-app/internal/offline/store"
)

// setupTestCache creates a cache over a temporary store.
func setupTestCache(t *testing.T) (*Cache, *store.Store) {
	t.Helper()

	st, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	return New(st, log.New(os.Stderr, "[test] ", 0)), st
}

func TestSetGet(t *testing.T) {
	c, _ := setupTestCache(t)

	machines := []api.Machine{{ID: 1, Name: "Snack 7"}}
	if err := c.Set("machines", machines); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	var loaded []api.Machine
	entry, ok, err := c.GetInto("machines", &loaded)
	if err != nil {
		t.Fatalf("GetInto failed: %v", err)
	}
	if !ok {
		t.Fatal("expected entry to be present")
	}
	if len(loaded) != 1 || loaded[0].Name != "Snack 7" {
		t.Errorf("round-trip mismatch: %+v", loaded)
	}
	if entry.StoredAt.IsZero() {
		t.Error("expected StoredAt to be set")
	}
}

func TestGetAbsent(t *testing.T) {
	c, _ := setupTestCache(t)

	entry, err := c.Get("never_written")
	if err != nil {
		t.Fatalf("Get of absent key should not error: %v", err)
	}
	if entry != nil {
		t.Error("expected nil entry for absent key")
	}
}

func TestSetOverwritesWithoutMerge(t *testing.T) {
	c, _ := setupTestCache(t)

	if err := c.Set("assignments_2026-08-24_2026-08-30", []api.Assignment{{ID: 1}, {ID: 2}}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := c.Set("assignments_2026-08-24_2026-08-30", []api.Assignment{{ID: 3}}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	var loaded []api.Assignment
	_, ok, err := c.GetInto("assignments_2026-08-24_2026-08-30", &loaded)
	if err != nil || !ok {
		t.Fatalf("GetInto failed: ok=%v err=%v", ok, err)
	}
	if len(loaded) != 1 || loaded[0].ID != 3 {
		t.Errorf("expected full overwrite, got %+v", loaded)
	}
}

func TestCorruptEntryTreatedAsAbsent(t *testing.T) {
	c, st := setupTestCache(t)

	if err := st.Set(DataPrefix+"templates", []byte("{broken")); err != nil {
		t.Fatalf("failed to plant corrupt entry: %v", err)
	}

	entry, err := c.Get("templates")
	if err != nil {
		t.Fatalf("Get of corrupt entry should not error: %v", err)
	}
	if entry != nil {
		t.Error("expected corrupt entry to read as absent")
	}
}

// Stale entries are still served while offline: presence beats freshness
// when there is no way to refresh.
func TestLookupServesStaleWhenOffline(t *testing.T) {
	c, _ := setupTestCache(t)

	if err := c.Set("templates", []api.Template{{ID: 1, Name: "Standard"}}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	// A tiny retention window makes the entry expired immediately.
	time.Sleep(5 * time.Millisecond)
	entry, stale, err := c.Lookup("templates", time.Millisecond, false)
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if entry == nil {
		t.Fatal("offline lookup must serve the expired entry")
	}
	if !stale {
		t.Error("expired entry served offline must be flagged stale")
	}
}

func TestLookupDropsExpiredWhenOnline(t *testing.T) {
	c, _ := setupTestCache(t)

	if err := c.Set("templates", []api.Template{{ID: 1}}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	time.Sleep(5 * time.Millisecond)
	entry, _, err := c.Lookup("templates", time.Millisecond, true)
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if entry != nil {
		t.Error("online lookup of an expired entry must report absent")
	}

	// The explicit expiry check is the only deletion trigger.
	gone, err := c.Get("templates")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if gone != nil {
		t.Error("expired entry should have been dropped by the online lookup")
	}
}

func TestLookupFreshWithinRetention(t *testing.T) {
	c, _ := setupTestCache(t)

	if err := c.Set("templates", []api.Template{{ID: 1}}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	entry, stale, err := c.Lookup("templates", DefaultRetention, true)
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if entry == nil || stale {
		t.Errorf("fresh entry mishandled: entry=%v stale=%v", entry, stale)
	}
}

func TestKeys(t *testing.T) {
	c, _ := setupTestCache(t)

	if err := c.Set("machines", []api.Machine{}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := c.Set("templates", []api.Template{}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	keys, err := c.Keys()
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("expected 2 keys, got %v", keys)
	}
	for _, k := range keys {
		if k != "machines" && k != "templates" {
			t.Errorf("unexpected key %q (prefix not stripped?)", k)
		}
	}
}

func TestRoutePlanRoundTrip(t *testing.T) {
	c, _ := setupTestCache(t)

	plan := &RoutePlan{
		FromDate: "2026-08-24",
		ToDate:   "2026-08-30",
		Assignments: []api.Assignment{
			{ID: 7, Date: "2026-08-25", Status: "open"},
		},
		Messages: []api.RouteMessage{{ID: 1, Message: "gate code 4711"}},
	}

	if c.RoutePlanAvailable("2026-08-24", "2026-08-30") {
		t.Error("bundle should not exist before save")
	}

	if err := c.SaveRoutePlan(plan); err != nil {
		t.Fatalf("SaveRoutePlan failed: %v", err)
	}

	if !c.RoutePlanAvailable("2026-08-24", "2026-08-30") {
		t.Error("bundle should exist after save")
	}

	loaded, ok, err := c.LoadRoutePlan("2026-08-24", "2026-08-30")
	if err != nil {
		t.Fatalf("LoadRoutePlan failed: %v", err)
	}
	if !ok {
		t.Fatal("expected bundle to load")
	}
	if len(loaded.Assignments) != 1 || loaded.Assignments[0].ID != 7 {
		t.Errorf("bundle did not round-trip: %+v", loaded)
	}
	if loaded.DownloadedAt.IsZero() {
		t.Error("expected DownloadedAt to be stamped on save")
	}
}

func TestFindAssignmentAcrossBundles(t *testing.T) {
	c, _ := setupTestCache(t)

	if err := c.SaveRoutePlan(&RoutePlan{
		FromDate:    "2026-08-17",
		ToDate:      "2026-08-23",
		Assignments: []api.Assignment{{ID: 3, Status: "done"}},
	}); err != nil {
		t.Fatalf("SaveRoutePlan failed: %v", err)
	}
	if err := c.SaveRoutePlan(&RoutePlan{
		FromDate:    "2026-08-24",
		ToDate:      "2026-08-30",
		Assignments: []api.Assignment{{ID: 8, Status: "open"}},
	}); err != nil {
		t.Fatalf("SaveRoutePlan failed: %v", err)
	}

	found, ok, err := c.FindAssignment(8)
	if err != nil {
		t.Fatalf("FindAssignment failed: %v", err)
	}
	if !ok || found.Status != "open" {
		t.Errorf("expected to find assignment 8, got ok=%v %+v", ok, found)
	}

	_, ok, err = c.FindAssignment(999)
	if err != nil {
		t.Fatalf("FindAssignment failed: %v", err)
	}
	if ok {
		t.Error("expected assignment 999 to be absent")
	}
}
