// Package store provides the key-value persistence collaborator used by
// the engine, plus the single place where storage keys are assembled.
package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// Store is a per-key atomic key-value store. Every write is a whole-value
// replacement; concurrent writers for the same key resolve last-writer-wins.
type Store interface {
	// Get returns the stored value and whether the key exists.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}

// Key namespacing. All call sites build keys through these helpers so the
// layout lives in one place.

// WatchZonesKey holds the global zone list, filtered by owner in memory.
const WatchZonesKey = "watchZones"

func LocationKey(userKey string) string        { return "location:" + userKey }
func PermissionKey(userKey string) string      { return "locationPermission:" + userKey }
func ProximityFilterKey(userKey string) string { return "proximityFilterEnabled:" + userKey }
func SettingsKey(userKey string) string        { return "notificationSettings:" + userKey }

// GetJSON reads key and unmarshals it into a T. The second return value is
// false when the key does not exist.
func GetJSON[T any](ctx context.Context, s Store, key string) (T, bool, error) {
	var v T
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return v, ok, err
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, false, fmt.Errorf("decode %s: %w", key, err)
	}
	return v, true, nil
}

// SetJSON marshals v and stores it under key.
func SetJSON[T any](ctx context.Context, s Store, key string, v T) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Set(ctx, key, raw)
}
