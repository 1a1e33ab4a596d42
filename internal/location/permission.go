package location

import (
	"context"
	"fmt"

	"github.com/civicwatch/incident-proximity-service/internal/store"
)

// PermissionTracker remembers whether a user has already granted
// geolocation permission, so the provider can skip the permission prompt
// on subsequent requests.
type PermissionTracker struct {
	kv store.Store
}

// NewPermissionTracker creates a tracker over the given store.
func NewPermissionTracker(kv store.Store) *PermissionTracker {
	return &PermissionTracker{kv: kv}
}

// Granted reports whether permission was previously recorded for userKey.
func (p *PermissionTracker) Granted(ctx context.Context, userKey string) (bool, error) {
	granted, ok, err := store.GetJSON[bool](ctx, p.kv, store.PermissionKey(userKey))
	if err != nil {
		return false, fmt.Errorf("read permission: %w", err)
	}
	return ok && granted, nil
}

// MarkGranted records that userKey granted permission.
func (p *PermissionTracker) MarkGranted(ctx context.Context, userKey string) error {
	if err := store.SetJSON(ctx, p.kv, store.PermissionKey(userKey), true); err != nil {
		return fmt.Errorf("mark permission granted: %w", err)
	}
	return nil
}

// Clear forgets the recorded permission (used on logout or user switch).
func (p *PermissionTracker) Clear(ctx context.Context, userKey string) error {
	return p.kv.Delete(ctx, store.PermissionKey(userKey))
}
