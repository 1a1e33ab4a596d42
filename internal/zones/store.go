// Package zones manages user-defined circular watch zones: creation with
// validation, per-owner listing, field-level updates, and idempotent
// deletion. Zones live as a single list in the key-value store and are
// filtered by owner in memory.
package zones

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/civicwatch/incident-proximity-service/internal/domain"
	"github.com/civicwatch/incident-proximity-service/internal/store"
)

// Store provides CRUD over watch zones.
type Store struct {
	kv    store.Store
	clock clockwork.Clock
}

// NewStore creates a zone store over the given key-value store.
func NewStore(kv store.Store, clock clockwork.Clock) *Store {
	return &Store{kv: kv, clock: clock}
}

// Create validates input, assigns an id and creation time, and persists
// the new zone. New zones start active.
func (s *Store) Create(ctx context.Context, input domain.WatchZoneInput) (domain.WatchZone, error) {
	if err := validateName(input.Name); err != nil {
		return domain.WatchZone{}, err
	}
	if err := validateRadius(input.RadiusKm); err != nil {
		return domain.WatchZone{}, err
	}
	if err := validateCenter(input.Center); err != nil {
		return domain.WatchZone{}, err
	}
	if strings.TrimSpace(input.OwnerID) == "" {
		return domain.WatchZone{}, &domain.ValidationError{Field: "owner_id", Reason: "must not be blank"}
	}

	zone := domain.WatchZone{
		ID:        uuid.NewString(),
		Name:      strings.TrimSpace(input.Name),
		Center:    input.Center,
		RadiusKm:  input.RadiusKm,
		OwnerID:   input.OwnerID,
		Active:    true,
		CreatedAt: s.clock.Now().UnixMilli(),
	}

	all, err := s.readAll(ctx)
	if err != nil {
		return domain.WatchZone{}, err
	}
	all = append(all, zone)
	if err := s.writeAll(ctx, all); err != nil {
		return domain.WatchZone{}, err
	}
	return zone, nil
}

// ListByOwner returns all zones owned by ownerID, in creation order.
func (s *Store) ListByOwner(ctx context.Context, ownerID string) ([]domain.WatchZone, error) {
	all, err := s.readAll(ctx)
	if err != nil {
		return nil, err
	}
	owned := make([]domain.WatchZone, 0, len(all))
	for _, z := range all {
		if z.OwnerID == ownerID {
			owned = append(owned, z)
		}
	}
	return owned, nil
}

// Owners returns the distinct owner ids that have at least one zone.
func (s *Store) Owners(ctx context.Context) ([]string, error) {
	all, err := s.readAll(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(all))
	owners := make([]string, 0, len(all))
	for _, z := range all {
		if !seen[z.OwnerID] {
			seen[z.OwnerID] = true
			owners = append(owners, z.OwnerID)
		}
	}
	return owners, nil
}

// Update applies patch to the zone with the given id. Patched fields are
// re-validated; an absent id is a NotFoundError.
func (s *Store) Update(ctx context.Context, id string, patch domain.WatchZonePatch) (domain.WatchZone, error) {
	if patch.Name != nil {
		if err := validateName(*patch.Name); err != nil {
			return domain.WatchZone{}, err
		}
	}
	if patch.RadiusKm != nil {
		if err := validateRadius(*patch.RadiusKm); err != nil {
			return domain.WatchZone{}, err
		}
	}
	if patch.Center != nil {
		if err := validateCenter(*patch.Center); err != nil {
			return domain.WatchZone{}, err
		}
	}

	all, err := s.readAll(ctx)
	if err != nil {
		return domain.WatchZone{}, err
	}

	for i, z := range all {
		if z.ID != id {
			continue
		}
		if patch.Name != nil {
			z.Name = strings.TrimSpace(*patch.Name)
		}
		if patch.Center != nil {
			z.Center = *patch.Center
		}
		if patch.RadiusKm != nil {
			z.RadiusKm = *patch.RadiusKm
		}
		if patch.Active != nil {
			z.Active = *patch.Active
		}
		all[i] = z
		if err := s.writeAll(ctx, all); err != nil {
			return domain.WatchZone{}, err
		}
		return z, nil
	}

	return domain.WatchZone{}, &domain.NotFoundError{Kind: "watch zone", ID: id}
}

// Delete removes the zone with the given id. Deleting an absent id is a
// no-op so UI retries stay simple.
func (s *Store) Delete(ctx context.Context, id string) error {
	all, err := s.readAll(ctx)
	if err != nil {
		return err
	}
	for i, z := range all {
		if z.ID == id {
			return s.writeAll(ctx, append(all[:i], all[i+1:]...))
		}
	}
	return nil
}

func (s *Store) readAll(ctx context.Context) ([]domain.WatchZone, error) {
	all, _, err := store.GetJSON[[]domain.WatchZone](ctx, s.kv, store.WatchZonesKey)
	if err != nil {
		return nil, fmt.Errorf("read zones: %w", err)
	}
	return all, nil
}

func (s *Store) writeAll(ctx context.Context, all []domain.WatchZone) error {
	if err := store.SetJSON(ctx, s.kv, store.WatchZonesKey, all); err != nil {
		return fmt.Errorf("write zones: %w", err)
	}
	return nil
}

func validateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return &domain.ValidationError{Field: "name", Reason: "must not be blank"}
	}
	return nil
}

func validateRadius(radiusKm float64) error {
	if radiusKm < domain.MinZoneRadiusKm || radiusKm > domain.MaxZoneRadiusKm {
		return &domain.ValidationError{
			Field: "radius_km",
			Reason: fmt.Sprintf("must be between %g and %g",
				domain.MinZoneRadiusKm, float64(domain.MaxZoneRadiusKm)),
		}
	}
	return nil
}

func validateCenter(center domain.Coordinate) error {
	if !center.Valid() {
		return &domain.ValidationError{Field: "center", Reason: "latitude/longitude out of range"}
	}
	return nil
}
