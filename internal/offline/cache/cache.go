// Package cache provides the read-through cache of last-known-good server
// responses.
//
// Reads never fail for lack of network: a present entry is always returned,
// however old, and staleness is reported to the caller instead of being acted
// on silently. Freshness is the caller's concern - fetch from the service
// when online and fall back to the cache when the fetch fails.
//
// Entries live in the durable store under offline_data_<key>. Large documents
// (route-plan bundles) live in the store's file namespace instead; see
// routeplan.go.
package cache

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/alexradacina/schegl-app/internal/offline/store"
)

// DataPrefix is prepended to every cache key in the durable store.
const DataPrefix = "offline_data_"

// DefaultRetention is the expiry window for cached collections that carry
// one, such as machine-order templates.
const DefaultRetention = 7 * 24 * time.Hour

// Entry is one cached value together with its write timestamp.
type Entry struct {
	Value    json.RawMessage
	StoredAt time.Time
}

// Age returns how long ago the entry was written.
func (e *Entry) Age() time.Duration {
	return time.Since(e.StoredAt)
}

// Cache is the small-object cache over the durable store. It owns all
// offline_data_* keys exclusively.
type Cache struct {
	store  *store.Store
	logger *log.Logger
}

// New creates a Cache backed by the given store.
//
// If logger is nil, a default logger writing to stderr is used.
func New(st *store.Store, logger *log.Logger) *Cache {
	if logger == nil {
		logger = log.New(os.Stderr, "[cache] ", log.LstdFlags)
	}
	return &Cache{
		store:  st,
		logger: logger,
	}
}

// Set serializes value and overwrites the entry under key. No merging.
func (c *Cache) Set(key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry %s: %w", key, err)
	}
	if err := c.store.Set(DataPrefix+key, data); err != nil {
		return fmt.Errorf("failed to cache %s: %w", key, err)
	}
	return nil
}

// Get returns the entry under key regardless of its age, or nil if absent.
// Stored garbage that no longer parses as JSON counts as absent.
func (c *Cache) Get(key string) (*Entry, error) {
	data, storedAt, ok, err := c.store.Get(DataPrefix + key)
	if err != nil {
		return nil, fmt.Errorf("failed to read cache entry %s: %w", key, err)
	}
	if !ok {
		return nil, nil
	}
	if !json.Valid(data) {
		c.logger.Printf("Warning: discarding unparseable cache entry: %s", key)
		return nil, nil
	}
	return &Entry{Value: data, StoredAt: storedAt}, nil
}

// GetInto decodes the entry under key into out. Returns ok=false when the
// entry is absent or no longer decodes.
func (c *Cache) GetInto(key string, out any) (*Entry, bool, error) {
	entry, err := c.Get(key)
	if err != nil {
		return nil, false, err
	}
	if entry == nil {
		return nil, false, nil
	}
	if err := json.Unmarshal(entry.Value, out); err != nil {
		c.logger.Printf("Warning: cache entry %s does not decode: %v", key, err)
		return nil, false, nil
	}
	return entry, true, nil
}

// Lookup applies the expiry policy to the entry under key.
//
// Within the retention window the entry is returned fresh. Past the window:
//   - online: the entry is dropped and nil returned - the caller must refresh
//     before trusting the collection again. This explicit check is the only
//     place an expired entry is deleted.
//   - offline: the entry is still served as a last resort, flagged stale.
//
// A zero retention disables expiry entirely.
func (c *Cache) Lookup(key string, retention time.Duration, online bool) (entry *Entry, stale bool, err error) {
	entry, err = c.Get(key)
	if err != nil || entry == nil {
		return entry, false, err
	}

	if retention <= 0 || entry.Age() <= retention {
		return entry, false, nil
	}

	if !online {
		c.logger.Printf("Serving expired cache entry %s (offline, age %v)", key, entry.Age().Round(time.Second))
		return entry, true, nil
	}

	c.logger.Printf("Dropping expired cache entry %s (age %v)", key, entry.Age().Round(time.Second))
	if err := c.Delete(key); err != nil {
		return nil, false, err
	}
	return nil, false, nil
}

// Delete removes the entry under key. Absent keys are a no-op.
func (c *Cache) Delete(key string) error {
	if err := c.store.Delete(DataPrefix + key); err != nil {
		return fmt.Errorf("failed to delete cache entry %s: %w", key, err)
	}
	return nil
}

// Keys returns the logical keys of all cached entries.
func (c *Cache) Keys() ([]string, error) {
	raw, err := c.store.Keys(DataPrefix)
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(raw))
	for _, k := range raw {
		keys = append(keys, k[len(DataPrefix):])
	}
	return keys, nil
}
