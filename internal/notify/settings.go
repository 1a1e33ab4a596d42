// Package notify decides whether an incident should alert a user: per-user
// notification settings, the nearby-filter toggle, and zone matching.
// Delivery of alerts is out of scope; consumers act on the decisions.
package notify

import (
	"context"
	"fmt"

	"github.com/civicwatch/incident-proximity-service/internal/domain"
	"github.com/civicwatch/incident-proximity-service/internal/store"
)

// SettingsStore persists per-user notification settings and the
// nearby-filter toggle.
type SettingsStore struct {
	kv store.Store
}

// NewSettingsStore creates a settings store over the given key-value store.
func NewSettingsStore(kv store.Store) *SettingsStore {
	return &SettingsStore{kv: kv}
}

// Get returns userKey's settings, or the defaults when none were ever
// saved. Defaults are not persisted by reading.
func (s *SettingsStore) Get(ctx context.Context, userKey string) (domain.NotificationSettings, error) {
	settings, ok, err := store.GetJSON[domain.NotificationSettings](ctx, s.kv, store.SettingsKey(userKey))
	if err != nil {
		return domain.NotificationSettings{}, fmt.Errorf("read settings: %w", err)
	}
	if !ok {
		return domain.DefaultNotificationSettings(), nil
	}
	return settings, nil
}

// Save overwrites userKey's settings as a whole. Callers wanting a partial
// change must read-modify-write the full object.
func (s *SettingsStore) Save(ctx context.Context, userKey string, settings domain.NotificationSettings) error {
	if settings.TypeFilter == nil {
		settings.TypeFilter = []domain.IncidentType{}
	}
	if settings.SeverityFilter == nil {
		settings.SeverityFilter = []domain.Severity{}
	}
	if err := store.SetJSON(ctx, s.kv, store.SettingsKey(userKey), settings); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

// ProximityFilterEnabled returns the nearby-filter toggle, defaulting to
// off for users who never touched it.
func (s *SettingsStore) ProximityFilterEnabled(ctx context.Context, userKey string) (bool, error) {
	enabled, ok, err := store.GetJSON[bool](ctx, s.kv, store.ProximityFilterKey(userKey))
	if err != nil {
		return false, fmt.Errorf("read proximity filter toggle: %w", err)
	}
	return ok && enabled, nil
}

// SetProximityFilterEnabled persists the nearby-filter toggle.
func (s *SettingsStore) SetProximityFilterEnabled(ctx context.Context, userKey string, enabled bool) error {
	if err := store.SetJSON(ctx, s.kv, store.ProximityFilterKey(userKey), enabled); err != nil {
		return fmt.Errorf("save proximity filter toggle: %w", err)
	}
	return nil
}
