package engine_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicwatch/incident-proximity-service/internal/domain"
	"github.com/civicwatch/incident-proximity-service/internal/engine"
	"github.com/civicwatch/incident-proximity-service/internal/notify"
	"github.com/civicwatch/incident-proximity-service/internal/observability"
	"github.com/civicwatch/incident-proximity-service/internal/store"
	"github.com/civicwatch/incident-proximity-service/internal/zones"
)

// --- mocks ---

type mockExtractor struct {
	batches [][]engine.IncidentEvent
	index   atomic.Int64
}

func (m *mockExtractor) ExtractBatch(ctx context.Context, _ int) ([]engine.IncidentEvent, error) {
	i := int(m.index.Add(1) - 1)
	if i >= len(m.batches) {
		// block until context cancelled to simulate waiting for messages
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return m.batches[i], nil
}

type mockPublisher struct {
	published []domain.AlertDecision
	err       error
}

func (m *mockPublisher) PublishBatch(_ context.Context, decisions []domain.AlertDecision) error {
	if m.err != nil {
		return m.err
	}
	m.published = append(m.published, decisions...)
	return nil
}

func newTestMetrics() *observability.Metrics {
	// Use a fresh registry to avoid "already registered" panics in tests.
	return observability.NewMetricsForTesting()
}

// --- fixture ---

type fixture struct {
	engine    *engine.Engine
	publisher *mockPublisher
	zones     *zones.Store
	settings  *notify.SettingsStore
	clock     *clockwork.FakeClock
}

func newFixture(t *testing.T, extractor engine.BatchExtractor) *fixture {
	t.Helper()

	kv := store.NewMemoryStore()
	clock := clockwork.NewFakeClock()
	zoneStore := zones.NewStore(kv, clock)
	settings := notify.NewSettingsStore(kv)
	publisher := &mockPublisher{}

	e := engine.New(
		extractor,
		publisher,
		zoneStore,
		settings,
		notify.NewMatcher(zoneStore),
		clock,
		slog.Default(),
		newTestMetrics(),
		50,
	)
	return &fixture{engine: e, publisher: publisher, zones: zoneStore, settings: settings, clock: clock}
}

func seedZone(t *testing.T, f *fixture, owner string) domain.WatchZone {
	t.Helper()
	zone, err := f.zones.Create(context.Background(), domain.WatchZoneInput{
		Name:     "Casa",
		Center:   domain.Coordinate{Lat: 9.93, Lng: -84.08},
		RadiusKm: 5,
		OwnerID:  owner,
	})
	require.NoError(t, err)
	return zone
}

func incidentEvent(t *testing.T, id string, loc domain.Coordinate) engine.IncidentEvent {
	t.Helper()
	data, err := json.Marshal(domain.Incident{
		ID:       id,
		Type:     domain.TypeAsalto,
		Severity: domain.SeverityCritica,
		Location: loc,
	})
	require.NoError(t, err)
	return engine.IncidentEvent{Key: []byte(id), Value: data}
}

func runBriefly(t *testing.T, e *engine.Engine) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	require.NoError(t, e.Run(ctx))
}

// --- tests ---

func TestEngine_Run_PublishesDecisionForMatchingZone(t *testing.T) {
	ext := &mockExtractor{batches: [][]engine.IncidentEvent{
		{incidentEvent(t, "inc-1", domain.Coordinate{Lat: 9.95, Lng: -84.09})},
	}}
	f := newFixture(t, ext)
	zone := seedZone(t, f, "ana@example.com")

	runBriefly(t, f.engine)

	require.Len(t, f.publisher.published, 1)
	decision := f.publisher.published[0]
	assert.Equal(t, "inc-1", decision.Incident.ID)
	assert.Equal(t, "ana@example.com", decision.UserKey)
	require.Len(t, decision.Matches, 1)
	assert.Equal(t, zone.ID, decision.Matches[0].Zone.ID)
	assert.Equal(t, f.clock.Now().UTC(), decision.DecidedAt)
	assert.NoError(t, f.engine.CheckReadiness(context.Background()))
}

func TestEngine_Run_FansOutAcrossOwners(t *testing.T) {
	ext := &mockExtractor{batches: [][]engine.IncidentEvent{
		{incidentEvent(t, "inc-1", domain.Coordinate{Lat: 9.95, Lng: -84.09})},
	}}
	f := newFixture(t, ext)
	seedZone(t, f, "ana@example.com")
	seedZone(t, f, "luis@example.com")

	runBriefly(t, f.engine)

	require.Len(t, f.publisher.published, 2)
	users := []string{f.publisher.published[0].UserKey, f.publisher.published[1].UserKey}
	assert.ElementsMatch(t, []string{"ana@example.com", "luis@example.com"}, users)
}

func TestEngine_Run_NoDecisionOutsideZones(t *testing.T) {
	ext := &mockExtractor{batches: [][]engine.IncidentEvent{
		{incidentEvent(t, "inc-1", domain.Coordinate{Lat: 10.5, Lng: -84.08})},
	}}
	f := newFixture(t, ext)
	seedZone(t, f, "ana@example.com")

	runBriefly(t, f.engine)

	assert.Empty(t, f.publisher.published)
	assert.NoError(t, f.engine.CheckReadiness(context.Background()),
		"a fully evaluated batch counts as processed even with no matches")
}

func TestEngine_Run_DisabledUserGetsNoDecision(t *testing.T) {
	ext := &mockExtractor{batches: [][]engine.IncidentEvent{
		{incidentEvent(t, "inc-1", domain.Coordinate{Lat: 9.95, Lng: -84.09})},
	}}
	f := newFixture(t, ext)
	seedZone(t, f, "ana@example.com")
	require.NoError(t, f.settings.Save(context.Background(), "ana@example.com",
		domain.NotificationSettings{Enabled: false}))

	runBriefly(t, f.engine)

	assert.Empty(t, f.publisher.published)
}

func TestEngine_Run_SkipsAndCommitsPoisonPill(t *testing.T) {
	var committed atomic.Bool
	poison := engine.IncidentEvent{
		Value: []byte("not json"),
		Topic: "reported-incidents",
		Commit: func(_ context.Context) error {
			committed.Store(true)
			return nil
		},
	}
	ext := &mockExtractor{batches: [][]engine.IncidentEvent{
		{poison, incidentEvent(t, "inc-1", domain.Coordinate{Lat: 9.95, Lng: -84.09})},
	}}
	f := newFixture(t, ext)
	seedZone(t, f, "ana@example.com")

	runBriefly(t, f.engine)

	assert.True(t, committed.Load(), "unparseable messages must not wedge the partition")
	require.Len(t, f.publisher.published, 1)
	assert.Equal(t, "inc-1", f.publisher.published[0].Incident.ID)
}

func TestEngine_Run_CommitsAfterPublish(t *testing.T) {
	var committed atomic.Bool
	event := incidentEvent(t, "inc-1", domain.Coordinate{Lat: 9.95, Lng: -84.09})
	event.Commit = func(_ context.Context) error {
		committed.Store(true)
		return nil
	}
	ext := &mockExtractor{batches: [][]engine.IncidentEvent{{event}}}
	f := newFixture(t, ext)
	seedZone(t, f, "ana@example.com")

	runBriefly(t, f.engine)

	assert.True(t, committed.Load())
}

func TestEngine_Run_PublishErrorDoesNotCommit(t *testing.T) {
	var committed atomic.Bool
	event := incidentEvent(t, "inc-1", domain.Coordinate{Lat: 9.95, Lng: -84.09})
	event.Commit = func(_ context.Context) error {
		committed.Store(true)
		return nil
	}
	ext := &mockExtractor{batches: [][]engine.IncidentEvent{{event}}}
	f := newFixture(t, ext)
	seedZone(t, f, "ana@example.com")
	f.publisher.err = errors.New("broker down")

	runBriefly(t, f.engine)

	assert.False(t, committed.Load(), "failed publishes must leave offsets uncommitted")
	assert.Error(t, f.engine.CheckReadiness(context.Background()))
}

func TestEngine_Run_ContextCancellation(t *testing.T) {
	ext := &mockExtractor{} // no batches, will block
	f := newFixture(t, ext)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, f.engine.Run(ctx))
	assert.Empty(t, f.publisher.published)
	assert.Error(t, f.engine.CheckReadiness(context.Background()))
}
