package cache

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/alexradacina/schegl-app/internal/api"
)

// RoutePlan is a downloaded multi-day schedule bundle: everything a
// technician needs to work a date range without connectivity.
//
// Bundles are too large for the small-object cache and are stored one file
// per date range in the offline file namespace, named
// route_plan_<from>_<to>.json.
type RoutePlan struct {
	FromDate      string             `json:"fromDate"`
	ToDate        string             `json:"toDate"`
	Assignments   []api.Assignment   `json:"assignments"`
	Messages      []api.RouteMessage `json:"messages,omitempty"`
	TrackingTimes []api.TrackingTime `json:"trackingTimes,omitempty"`
	DownloadedAt  time.Time          `json:"downloadedAt"`
}

// routePlanName returns the file-namespace name for a date range.
func routePlanName(fromDate, toDate string) string {
	return fmt.Sprintf("route_plan_%s_%s", fromDate, toDate)
}

// SaveRoutePlan writes a bundle to the offline file namespace, overwriting
// any previous bundle for the same date range.
func (c *Cache) SaveRoutePlan(plan *RoutePlan) error {
	if plan.FromDate == "" || plan.ToDate == "" {
		return fmt.Errorf("route plan needs a date range")
	}
	if plan.DownloadedAt.IsZero() {
		plan.DownloadedAt = time.Now()
	}

	data, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("failed to marshal route plan: %w", err)
	}

	name := routePlanName(plan.FromDate, plan.ToDate)
	if err := c.store.SaveFile(name, data); err != nil {
		return err
	}

	c.logger.Printf("Saved route plan %s (%d assignments)", name, len(plan.Assignments))
	return nil
}

// LoadRoutePlan reads the bundle for a date range. Returns ok=false when no
// bundle was downloaded for that range or the stored document no longer
// parses.
func (c *Cache) LoadRoutePlan(fromDate, toDate string) (*RoutePlan, bool, error) {
	name := routePlanName(fromDate, toDate)

	data, ok, err := c.store.LoadFile(name)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}

	var plan RoutePlan
	if err := json.Unmarshal(data, &plan); err != nil {
		c.logger.Printf("Warning: discarding unparseable route plan %s: %v", name, err)
		return nil, false, nil
	}
	return &plan, true, nil
}

// RoutePlanAvailable reports whether a bundle exists for the date range.
// It never returns an error.
func (c *Cache) RoutePlanAvailable(fromDate, toDate string) bool {
	return c.store.FileExists(routePlanName(fromDate, toDate))
}

// FindAssignment searches all downloaded bundles for an assignment by id.
// Used to answer detail lookups while offline.
func (c *Cache) FindAssignment(id int64) (*api.Assignment, bool, error) {
	names, err := c.store.ListFiles()
	if err != nil {
		return nil, false, err
	}

	for _, name := range names {
		data, ok, err := c.store.LoadFile(name)
		if err != nil || !ok {
			continue
		}

		var plan RoutePlan
		if err := json.Unmarshal(data, &plan); err != nil {
			continue
		}
		for i := range plan.Assignments {
			if plan.Assignments[i].ID == id {
				return &plan.Assignments[i], true, nil
			}
		}
	}
	return nil, false, nil
}
