// Package location acquires, caches, and serves user locations: the last
// known fix with a freshness TTL, the platform permission flag, and the
// provider that degrades from fresh fix to stale cache to default.
package location

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/civicwatch/incident-proximity-service/internal/domain"
	"github.com/civicwatch/incident-proximity-service/internal/store"
)

// Cache persists the last known location per user with a freshness TTL.
type Cache struct {
	kv    store.Store
	clock clockwork.Clock
	ttl   time.Duration
}

// NewCache creates a location cache. ttl bounds how long a fix counts as
// fresh (24h in the default configuration).
func NewCache(kv store.Store, clock clockwork.Clock, ttl time.Duration) *Cache {
	return &Cache{kv: kv, clock: clock, ttl: ttl}
}

// Save overwrites the cached location for userKey, stamping the capture
// time from the cache's clock. The stamped location is returned.
func (c *Cache) Save(ctx context.Context, userKey string, loc domain.UserLocation) (domain.UserLocation, error) {
	loc.CapturedAt = c.clock.Now().UnixMilli()
	if err := store.SetJSON(ctx, c.kv, store.LocationKey(userKey), loc); err != nil {
		return domain.UserLocation{}, fmt.Errorf("save location: %w", err)
	}
	return loc, nil
}

// Read returns the cached location for userKey, or false when none was
// ever saved.
func (c *Cache) Read(ctx context.Context, userKey string) (domain.UserLocation, bool, error) {
	loc, ok, err := store.GetJSON[domain.UserLocation](ctx, c.kv, store.LocationKey(userKey))
	if err != nil {
		return domain.UserLocation{}, false, fmt.Errorf("read location: %w", err)
	}
	return loc, ok, nil
}

// IsExpired reports whether loc was captured longer than the TTL ago.
func (c *Cache) IsExpired(loc domain.UserLocation) bool {
	return c.clock.Now().UnixMilli()-loc.CapturedAt > c.ttl.Milliseconds()
}

// Clear removes the cached location (used on logout or user switch).
func (c *Cache) Clear(ctx context.Context, userKey string) error {
	return c.kv.Delete(ctx, store.LocationKey(userKey))
}
