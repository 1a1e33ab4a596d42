package location

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicwatch/incident-proximity-service/internal/store"
)

func TestPermissionTracker(t *testing.T) {
	ctx := context.Background()
	tracker := NewPermissionTracker(store.NewMemoryStore())

	granted, err := tracker.Granted(ctx, testUser)
	require.NoError(t, err)
	assert.False(t, granted, "permission starts out not granted")

	require.NoError(t, tracker.MarkGranted(ctx, testUser))

	granted, err = tracker.Granted(ctx, testUser)
	require.NoError(t, err)
	assert.True(t, granted)

	// Other users are unaffected.
	granted, err = tracker.Granted(ctx, "luis@example.com")
	require.NoError(t, err)
	assert.False(t, granted)

	require.NoError(t, tracker.Clear(ctx, testUser))

	granted, err = tracker.Granted(ctx, testUser)
	require.NoError(t, err)
	assert.False(t, granted)
}
