package notify

import (
	"context"
	"fmt"
	"sort"

	"github.com/civicwatch/incident-proximity-service/internal/domain"
)

// ZoneLister is the slice of the zone store the matcher needs.
type ZoneLister interface {
	ListByOwner(ctx context.Context, ownerID string) ([]domain.WatchZone, error)
}

// Matcher decides which of a user's watch zones an incident falls into.
type Matcher struct {
	zones ZoneLister
}

// NewMatcher creates a Matcher over the given zone source.
func NewMatcher(zones ZoneLister) *Matcher {
	return &Matcher{zones: zones}
}

// MatchZones returns every active zone of ownerID containing the incident,
// nearest first, provided the user's settings admit the incident at all.
// Disabled notifications or a filtered-out type/severity short-circuit to
// an empty result without touching the zone store.
func (m *Matcher) MatchZones(
	ctx context.Context,
	incident domain.Incident,
	ownerID string,
	settings domain.NotificationSettings,
) ([]domain.MatchResult, error) {
	if !settings.Enabled {
		return nil, nil
	}
	if !settings.AllowsSeverity(incident.Severity) || !settings.AllowsType(incident.Type) {
		return nil, nil
	}

	zones, err := m.zones.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list zones for %s: %w", ownerID, err)
	}

	matches := make([]domain.MatchResult, 0, len(zones))
	for _, zone := range zones {
		if !zone.Active {
			continue
		}
		d := domain.DistanceKm(zone.Center, incident.Location)
		if d <= zone.RadiusKm {
			matches = append(matches, domain.MatchResult{Zone: zone, DistanceKm: d})
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].DistanceKm < matches[j].DistanceKm
	})
	return matches, nil
}
