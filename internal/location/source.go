package location

import (
	"context"
	"time"

	"github.com/civicwatch/incident-proximity-service/internal/domain"
)

// Position is a raw fix as delivered by a geolocation source.
type Position struct {
	Coordinate     domain.Coordinate
	AccuracyMeters float64
	Timestamp      time.Time
}

// Source yields device positions for a user. Implementations fail with
// domain.ErrPermissionDenied, domain.ErrPositionUnavailable, or
// domain.ErrTimeout; the provider absorbs all three.
type Source interface {
	// CurrentPosition returns one fix. When prompt is true the source may
	// trigger a user-facing permission prompt; when false it must resolve
	// silently or fail. The call honors ctx's deadline.
	CurrentPosition(ctx context.Context, userKey string, prompt bool) (Position, error)

	// WatchPosition invokes fn for every subsequent fix until the returned
	// stop function is called or ctx is cancelled.
	WatchPosition(ctx context.Context, userKey string, fn func(Position)) (stop func(), err error)
}
