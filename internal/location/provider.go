package location

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/civicwatch/incident-proximity-service/internal/domain"
	"github.com/civicwatch/incident-proximity-service/internal/observability"
)

// Location resolution outcomes, used as metric label values.
const (
	outcomeCache   = "cache"
	outcomeFresh   = "fresh"
	outcomeStale   = "stale"
	outcomeDefault = "default"
)

// Provider resolves a user's location, preferring freshness but never
// failing for lack of one: fresh cache, then a new fix from the source,
// then stale cache, then the configured default coordinate.
type Provider struct {
	cache       *Cache
	permissions *PermissionTracker
	source      Source
	clock       clockwork.Clock
	fixTimeout  time.Duration
	defaultLoc  domain.Coordinate
	logger      *slog.Logger
	metrics     *observability.Metrics
}

// NewProvider wires a Provider from its collaborators.
func NewProvider(
	cache *Cache,
	permissions *PermissionTracker,
	source Source,
	clock clockwork.Clock,
	fixTimeout time.Duration,
	defaultLoc domain.Coordinate,
	logger *slog.Logger,
	metrics *observability.Metrics,
) *Provider {
	return &Provider{
		cache:       cache,
		permissions: permissions,
		source:      source,
		clock:       clock,
		fixTimeout:  fixTimeout,
		defaultLoc:  defaultLoc,
		logger:      logger,
		metrics:     metrics,
	}
}

// GetLocation resolves userKey's location. Source failures are absorbed
// and reported only through the result's FromCache/Expired/IsDefault
// flags; the only error returned is a blank userKey.
func (p *Provider) GetLocation(ctx context.Context, userKey string) (domain.LocationResult, error) {
	if strings.TrimSpace(userKey) == "" {
		return domain.LocationResult{}, errors.New("blank user key")
	}

	cached, hasCache, err := p.cache.Read(ctx, userKey)
	if err != nil {
		p.logger.Warn("location cache read failed", "user_key", userKey, "error", err)
		hasCache = false
	}
	if hasCache && !p.cache.IsExpired(cached) {
		p.metrics.LocationRequests.WithLabelValues(outcomeCache).Inc()
		return domain.LocationResult{UserLocation: cached, FromCache: true}, nil
	}

	granted, err := p.permissions.Granted(ctx, userKey)
	if err != nil {
		p.logger.Warn("permission read failed", "user_key", userKey, "error", err)
	}

	// Prompt only when permission was never recorded; a granted user gets
	// a silent source call.
	pos, fixErr := p.requestFix(ctx, userKey, !granted)
	if fixErr == nil {
		loc := domain.UserLocation{
			Coordinate:     pos.Coordinate,
			AccuracyMeters: pos.AccuracyMeters,
		}
		saved, err := p.cache.Save(ctx, userKey, loc)
		if err != nil {
			p.logger.Warn("location cache save failed", "user_key", userKey, "error", err)
			saved = loc
			saved.CapturedAt = p.clock.Now().UnixMilli()
		}
		if !granted {
			if err := p.permissions.MarkGranted(ctx, userKey); err != nil {
				p.logger.Warn("mark permission failed", "user_key", userKey, "error", err)
			}
		}
		p.metrics.LocationRequests.WithLabelValues(outcomeFresh).Inc()
		return domain.LocationResult{UserLocation: saved}, nil
	}

	p.logger.Info("geolocation source failed, degrading",
		"user_key", userKey,
		"error", fixErr,
		"has_cache", hasCache,
	)

	if hasCache {
		p.metrics.LocationRequests.WithLabelValues(outcomeStale).Inc()
		return domain.LocationResult{UserLocation: cached, FromCache: true, Expired: true}, nil
	}

	p.metrics.LocationRequests.WithLabelValues(outcomeDefault).Inc()
	return domain.LocationResult{
		UserLocation: domain.UserLocation{
			Coordinate: p.defaultLoc,
			CapturedAt: p.clock.Now().UnixMilli(),
			IsDefault:  true,
		},
	}, nil
}

// Forget clears the cached location and recorded permission for userKey
// (logout or user switch).
func (p *Provider) Forget(ctx context.Context, userKey string) error {
	if err := p.cache.Clear(ctx, userKey); err != nil {
		return err
	}
	return p.permissions.Clear(ctx, userKey)
}

// requestFix calls the source with the configured timeout and maps a
// context deadline to the Timeout failure.
func (p *Provider) requestFix(ctx context.Context, userKey string, prompt bool) (Position, error) {
	fixCtx, cancel := context.WithTimeout(ctx, p.fixTimeout)
	defer cancel()

	start := time.Now()
	pos, err := p.source.CurrentPosition(fixCtx, userKey, prompt)
	p.metrics.LocationSourceDuration.Observe(time.Since(start).Seconds())

	if err != nil && errors.Is(fixCtx.Err(), context.DeadlineExceeded) {
		return Position{}, domain.ErrTimeout
	}
	return pos, err
}

// WatchHandle cancels a continuous location watch. Stop is synchronous:
// after it returns no further cache writes happen for this watch.
type WatchHandle struct {
	mu      sync.Mutex
	stopped bool
	stop    func()
}

// Stop cancels the watch. Safe to call more than once.
func (h *WatchHandle) Stop() {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return
	}
	h.stopped = true
	stop := h.stop
	h.mu.Unlock()

	if stop != nil {
		stop()
	}
}

func (h *WatchHandle) isStopped() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopped
}

// Watch runs the save path for every source update until the handle is
// stopped or ctx is cancelled.
func (p *Provider) Watch(ctx context.Context, userKey string) (*WatchHandle, error) {
	if strings.TrimSpace(userKey) == "" {
		return nil, errors.New("blank user key")
	}

	h := &WatchHandle{}
	stop, err := p.source.WatchPosition(ctx, userKey, func(pos Position) {
		if h.isStopped() {
			return
		}
		loc := domain.UserLocation{
			Coordinate:     pos.Coordinate,
			AccuracyMeters: pos.AccuracyMeters,
		}
		if _, err := p.cache.Save(ctx, userKey, loc); err != nil {
			p.logger.Warn("watch cache save failed", "user_key", userKey, "error", err)
		}
	})
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	h.stop = stop
	h.mu.Unlock()
	return h, nil
}
