package notify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicwatch/incident-proximity-service/internal/domain"
	"github.com/civicwatch/incident-proximity-service/internal/store"
)

const settingsUser = "ana@example.com"

func TestSettings_DefaultsOnFirstAccess(t *testing.T) {
	ctx := context.Background()
	s := NewSettingsStore(store.NewMemoryStore())

	settings, err := s.Get(ctx, settingsUser)
	require.NoError(t, err)

	assert.Equal(t, domain.DefaultNotificationSettings(), settings)
}

func TestSettings_SaveOverwritesWhole(t *testing.T) {
	ctx := context.Background()
	s := NewSettingsStore(store.NewMemoryStore())

	custom := domain.NotificationSettings{
		Enabled:        true,
		TypeFilter:     []domain.IncidentType{domain.TypeRobo},
		SeverityFilter: []domain.Severity{domain.SeverityCritica},
	}
	require.NoError(t, s.Save(ctx, settingsUser, custom))

	got, err := s.Get(ctx, settingsUser)
	require.NoError(t, err)
	assert.Equal(t, custom, got)

	// Saving again replaces everything; there is no merge.
	require.NoError(t, s.Save(ctx, settingsUser, domain.NotificationSettings{Enabled: false}))

	got, err = s.Get(ctx, settingsUser)
	require.NoError(t, err)
	assert.False(t, got.Enabled)
	assert.Empty(t, got.TypeFilter)
	assert.Empty(t, got.SeverityFilter)
}

func TestSettings_PerUser(t *testing.T) {
	ctx := context.Background()
	s := NewSettingsStore(store.NewMemoryStore())

	require.NoError(t, s.Save(ctx, settingsUser, domain.NotificationSettings{Enabled: false}))

	other, err := s.Get(ctx, "luis@example.com")
	require.NoError(t, err)
	assert.True(t, other.Enabled, "other users still get defaults")
}

func TestProximityFilterToggle(t *testing.T) {
	ctx := context.Background()
	s := NewSettingsStore(store.NewMemoryStore())

	enabled, err := s.ProximityFilterEnabled(ctx, settingsUser)
	require.NoError(t, err)
	assert.False(t, enabled, "toggle defaults to off")

	require.NoError(t, s.SetProximityFilterEnabled(ctx, settingsUser, true))

	enabled, err = s.ProximityFilterEnabled(ctx, settingsUser)
	require.NoError(t, err)
	assert.True(t, enabled)

	require.NoError(t, s.SetProximityFilterEnabled(ctx, settingsUser, false))

	enabled, err = s.ProximityFilterEnabled(ctx, settingsUser)
	require.NoError(t, err)
	assert.False(t, enabled)
}
