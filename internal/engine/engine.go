// Package engine runs the streaming evaluation loop: incidents come in
// from the report topic, each watch-zone owner is evaluated against them,
// and the resulting alert decisions go out on the decision topic.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/civicwatch/incident-proximity-service/internal/domain"
	"github.com/civicwatch/incident-proximity-service/internal/observability"
)

// IncidentEvent is a raw message from the incident topic, with an optional
// commit closure so offsets advance only after the incident was handled.
type IncidentEvent struct {
	Key       []byte
	Value     []byte
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// BatchExtractor reads up to batchSize raw incident events from the source.
type BatchExtractor interface {
	ExtractBatch(ctx context.Context, batchSize int) ([]IncidentEvent, error)
}

// DecisionPublisher writes alert decisions to the destination.
type DecisionPublisher interface {
	PublishBatch(ctx context.Context, decisions []domain.AlertDecision) error
}

// OwnerSource lists every user who owns at least one watch zone.
type OwnerSource interface {
	Owners(ctx context.Context) ([]string, error)
}

// SettingsSource reads a user's notification settings.
type SettingsSource interface {
	Get(ctx context.Context, userKey string) (domain.NotificationSettings, error)
}

// ZoneMatcher evaluates an incident against one user's zones.
type ZoneMatcher interface {
	MatchZones(ctx context.Context, incident domain.Incident, ownerID string, settings domain.NotificationSettings) ([]domain.MatchResult, error)
}

// Engine orchestrates the extract-evaluate-publish loop.
type Engine struct {
	extractor BatchExtractor
	publisher DecisionPublisher
	owners    OwnerSource
	settings  SettingsSource
	matcher   ZoneMatcher
	clock     clockwork.Clock
	logger    *slog.Logger
	metrics   *observability.Metrics
	ready     atomic.Bool
	batchSize int
}

// New creates an Engine with the given stages and observability.
func New(
	extractor BatchExtractor,
	publisher DecisionPublisher,
	owners OwnerSource,
	settings SettingsSource,
	matcher ZoneMatcher,
	clock clockwork.Clock,
	logger *slog.Logger,
	metrics *observability.Metrics,
	batchSize int,
) *Engine {
	return &Engine{
		extractor: extractor,
		publisher: publisher,
		owners:    owners,
		settings:  settings,
		matcher:   matcher,
		clock:     clock,
		logger:    logger,
		metrics:   metrics,
		batchSize: batchSize,
	}
}

// CheckReadiness returns nil once the engine has evaluated at least one
// batch, or an error describing why the service is not yet ready.
func (e *Engine) CheckReadiness(_ context.Context) error {
	if !e.ready.Load() {
		return errors.New("engine has not processed any incidents yet")
	}
	return nil
}

// Run executes the evaluation loop until the context is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("engine started", "batch_size", e.batchSize)
	e.metrics.EngineRunning.Set(1)
	defer e.metrics.EngineRunning.Set(0)

	// Exponential backoff: start at 200ms, double each retry, cap at 5s.
	// Keeps retry storms short while avoiding tight loops during outages.
	backoff := 200 * time.Millisecond
	maxBackoff := 5 * time.Second

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("engine stopping", "reason", ctx.Err())
			return nil
		default:
		}

		if !e.processBatch(ctx, &backoff, maxBackoff) {
			return nil
		}
	}
}

// processBatch runs one extract-evaluate-publish cycle. Returns false if
// the engine should stop.
func (e *Engine) processBatch(ctx context.Context, backoff *time.Duration, maxBackoff time.Duration) bool {
	start := time.Now()

	batch, err := e.extractor.ExtractBatch(ctx, e.batchSize)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		e.logger.Error("extract batch failed", "error", err)
		return e.backoffOrStop(ctx, backoff, maxBackoff)
	}

	if len(batch) == 0 {
		return ctx.Err() == nil
	}

	e.metrics.IncidentsConsumed.Add(float64(len(batch)))
	e.metrics.BatchSize.Observe(float64(len(batch)))
	*backoff = 200 * time.Millisecond

	evaluated, ok := e.evaluateAndPublish(ctx, batch, backoff, maxBackoff)
	if !ok {
		return false
	}

	if evaluated > 0 {
		e.metrics.BatchProcessingDuration.Observe(time.Since(start).Seconds())
		e.ready.Store(true)
	}
	return true
}

// evaluateAndPublish evaluates each incident in the batch against every
// zone owner, publishes the resulting decisions, and commits offsets.
// Unparseable messages are skipped and committed so they never wedge the
// partition. Returns the number of evaluated incidents and false if the
// engine should stop.
func (e *Engine) evaluateAndPublish(ctx context.Context, batch []IncidentEvent, backoff *time.Duration, maxBackoff time.Duration) (int, bool) {
	decisions := make([]domain.AlertDecision, 0, len(batch))
	evaluatedEvents := make([]IncidentEvent, 0, len(batch))

	for _, event := range batch {
		var incident domain.Incident
		if err := json.Unmarshal(event.Value, &incident); err != nil {
			e.logger.Warn("unparseable incident, skipping message",
				"error", err,
				"topic", event.Topic,
				"partition", event.Partition,
				"offset", event.Offset,
			)
			e.metrics.EvaluationErrors.Inc()
			e.commitOffset(ctx, event)
			continue
		}

		ds, err := e.evaluate(ctx, incident)
		if err != nil {
			if ctx.Err() != nil {
				return 0, false
			}
			e.logger.Error("evaluate incident failed", "error", err, "incident_id", incident.ID)
			e.metrics.EvaluationErrors.Inc()
			return 0, e.backoffOrStop(ctx, backoff, maxBackoff)
		}
		decisions = append(decisions, ds...)
		evaluatedEvents = append(evaluatedEvents, event)
	}

	if len(decisions) > 0 {
		if err := e.publisher.PublishBatch(ctx, decisions); err != nil {
			e.logger.Error("publish decisions failed", "error", err, "decisions", len(decisions))
			return 0, e.backoffOrStop(ctx, backoff, maxBackoff)
		}
		e.metrics.DecisionsPublished.Add(float64(len(decisions)))
		for _, d := range decisions {
			e.metrics.ZoneMatches.Observe(float64(len(d.Matches)))
		}
	}

	// Incidents that matched nobody still advance the offset.
	for _, event := range evaluatedEvents {
		e.commitOffset(ctx, event)
	}

	return len(evaluatedEvents), true
}

// evaluate runs one incident against every zone owner and returns a
// decision per user with at least one matching zone.
func (e *Engine) evaluate(ctx context.Context, incident domain.Incident) ([]domain.AlertDecision, error) {
	owners, err := e.owners.Owners(ctx)
	if err != nil {
		return nil, fmt.Errorf("list zone owners: %w", err)
	}

	var decisions []domain.AlertDecision
	for _, owner := range owners {
		settings, err := e.settings.Get(ctx, owner)
		if err != nil {
			return nil, fmt.Errorf("settings for %s: %w", owner, err)
		}

		matches, err := e.matcher.MatchZones(ctx, incident, owner, settings)
		if err != nil {
			return nil, fmt.Errorf("match zones for %s: %w", owner, err)
		}
		if len(matches) == 0 {
			continue
		}

		decisions = append(decisions, domain.AlertDecision{
			Incident:  incident,
			UserKey:   owner,
			Matches:   matches,
			DecidedAt: e.clock.Now().UTC(),
		})
	}
	return decisions, nil
}

// backoffOrStop checks for context cancellation, sleeps with the current
// backoff, and advances the backoff. Returns false if the engine should stop.
func (e *Engine) backoffOrStop(ctx context.Context, backoff *time.Duration, maxBackoff time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	if !sleepWithContext(ctx, *backoff) {
		return false
	}
	*backoff = nextBackoff(*backoff, maxBackoff)
	return true
}

// commitOffset commits the message offset if a commit function is available.
func (e *Engine) commitOffset(ctx context.Context, event IncidentEvent) {
	if event.Commit == nil {
		return
	}
	if err := event.Commit(ctx); err != nil {
		e.logger.Warn("commit offset failed", "error", err,
			"topic", event.Topic, "partition", event.Partition, "offset", event.Offset)
	}
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
