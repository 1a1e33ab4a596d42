package http_test

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpadapter "github.com/civicwatch/incident-proximity-service/internal/adapter/http"
	"github.com/civicwatch/incident-proximity-service/internal/config"
	"github.com/civicwatch/incident-proximity-service/internal/domain"
	"github.com/civicwatch/incident-proximity-service/internal/location"
	"github.com/civicwatch/incident-proximity-service/internal/notify"
	"github.com/civicwatch/incident-proximity-service/internal/observability"
	"github.com/civicwatch/incident-proximity-service/internal/store"
	"github.com/civicwatch/incident-proximity-service/internal/zones"
)

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

type fixture struct {
	server  *httpadapter.Server
	devices *location.DeviceSource
}

func newFixture(t *testing.T, readyErr error) *fixture {
	t.Helper()

	cfg := &config.Config{
		HTTPAddr:         ":0",
		CORSAllowOrigins: []string{"*"},
		NearbyRadiusKm:   5,
	}

	kv := store.NewMemoryStore()
	clock := clockwork.NewRealClock()
	metrics := observability.NewMetricsForTesting()
	devices := location.NewDeviceSource(clock, 5*time.Minute)
	zoneStore := zones.NewStore(kv, clock)
	settings := notify.NewSettingsStore(kv)

	provider := location.NewProvider(
		location.NewCache(kv, clock, 24*time.Hour),
		location.NewPermissionTracker(kv),
		devices,
		clock,
		50*time.Millisecond, // keep no-fix requests short in tests
		domain.Coordinate{Lat: 9.9281, Lng: -84.0907},
		slog.Default(),
		metrics,
	)

	srv := httpadapter.NewServer(cfg, httpadapter.Deps{
		Ready:    &mockReadiness{err: readyErr},
		Provider: provider,
		Devices:  devices,
		Zones:    zoneStore,
		Settings: settings,
		Matcher:  notify.NewMatcher(zoneStore),
	}, slog.Default())

	return &fixture{server: srv, devices: devices}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestHealthzReturns200(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodGet, "/healthz", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[map[string]string](t, rec)
	assert.Equal(t, "healthy", body["status"])
}

func TestReadyzReturns200WhenReady(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodGet, "/readyz", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[map[string]string](t, rec)
	assert.Equal(t, "ready", body["status"])
}

func TestReadyzReturns503WhenNotReady(t *testing.T) {
	f := newFixture(t, fmt.Errorf("not ready yet"))
	rec := f.do(t, http.MethodGet, "/readyz", "")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decodeBody[map[string]string](t, rec)
	assert.Equal(t, "not ready", body["status"])
	assert.Equal(t, "not ready yet", body["error"])
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodGet, "/metrics", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestReportPositionThenGetLocation(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodPost, "/v1/users/ana/position", `{"lat":9.93,"lng":-84.08,"accuracy":12}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = f.do(t, http.MethodGet, "/v1/users/ana/location", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	result := decodeBody[domain.LocationResult](t, rec)
	assert.InDelta(t, 9.93, result.Lat, 1e-9)
	assert.InDelta(t, -84.08, result.Lng, 1e-9)
	assert.False(t, result.IsDefault)
}

func TestReportPositionRejectsBadCoordinate(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodPost, "/v1/users/ana/position", `{"lat":123,"lng":0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetLocationFallsBackToDefault(t *testing.T) {
	f := newFixture(t, nil)

	// No cached location, no device fix: provider degrades to the default.
	rec := f.do(t, http.MethodGet, "/v1/users/nadie/location", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	result := decodeBody[domain.LocationResult](t, rec)
	assert.True(t, result.IsDefault)
	assert.InDelta(t, 9.9281, result.Lat, 1e-9)
}

func TestForgetLocation(t *testing.T) {
	f := newFixture(t, nil)

	f.do(t, http.MethodPost, "/v1/users/ana/position", `{"lat":9.93,"lng":-84.08}`)
	rec := f.do(t, http.MethodDelete, "/v1/users/ana/location", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestZoneCRUD(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodPost, "/v1/users/ana/zones",
		`{"name":"Casa","center":{"lat":9.93,"lng":-84.08},"radius_km":5}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	zone := decodeBody[domain.WatchZone](t, rec)
	assert.NotEmpty(t, zone.ID)
	assert.Equal(t, "ana", zone.OwnerID, "ownership comes from the path")
	assert.True(t, zone.Active)

	rec = f.do(t, http.MethodGet, "/v1/users/ana/zones", "")
	require.Equal(t, http.StatusOK, rec.Code)
	listed := decodeBody[[]domain.WatchZone](t, rec)
	require.Len(t, listed, 1)

	rec = f.do(t, http.MethodPatch, "/v1/zones/"+zone.ID, `{"name":"Oficina","radius_km":2}`)
	require.Equal(t, http.StatusOK, rec.Code)
	updated := decodeBody[domain.WatchZone](t, rec)
	assert.Equal(t, "Oficina", updated.Name)
	assert.Equal(t, 2.0, updated.RadiusKm)

	rec = f.do(t, http.MethodDelete, "/v1/zones/"+zone.ID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodGet, "/v1/users/ana/zones", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeBody[[]domain.WatchZone](t, rec))
}

func TestCreateZoneValidationReturns400(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodPost, "/v1/users/ana/zones",
		`{"name":"  ","center":{"lat":9.93,"lng":-84.08},"radius_km":5}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPatchUnknownZoneReturns404(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodPatch, "/v1/zones/no-such-id", `{"name":"X"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSettingsRoundTrip(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/v1/users/ana/settings", "")
	require.Equal(t, http.StatusOK, rec.Code)
	defaults := decodeBody[domain.NotificationSettings](t, rec)
	assert.True(t, defaults.Enabled)

	rec = f.do(t, http.MethodPut, "/v1/users/ana/settings",
		`{"enabled":true,"type_filter":["ROBO"],"severity_filter":["CRITICA"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	saved := decodeBody[domain.NotificationSettings](t, rec)
	assert.Equal(t, []domain.IncidentType{domain.TypeRobo}, saved.TypeFilter)
}

func TestProximityFilterToggle(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/v1/users/ana/proximity-filter", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decodeBody[map[string]bool](t, rec)["enabled"])

	rec = f.do(t, http.MethodPut, "/v1/users/ana/proximity-filter", `{"enabled":true}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/v1/users/ana/proximity-filter", "")
	assert.True(t, decodeBody[map[string]bool](t, rec)["enabled"])
}

func TestNearbyIncidents_FilterOffPassesThrough(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodPost, "/v1/users/ana/incidents/nearby",
		`{"incidents":[{"id":"inc-1","location":{"lat":0,"lng":0}}]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Incidents []domain.Incident `json:"incidents"`
		Filtered  bool              `json:"filtered"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Filtered)
	assert.Len(t, resp.Incidents, 1)
}

func TestNearbyIncidents_FilterOnCutsByRadius(t *testing.T) {
	f := newFixture(t, nil)

	f.do(t, http.MethodPut, "/v1/users/ana/proximity-filter", `{"enabled":true}`)
	f.do(t, http.MethodPost, "/v1/users/ana/position", `{"lat":9.93,"lng":-84.08}`)

	body := `{"incidents":[
		{"id":"near","location":{"lat":9.95,"lng":-84.09}},
		{"id":"far","location":{"lat":10.5,"lng":-84.08}}
	]}`
	rec := f.do(t, http.MethodPost, "/v1/users/ana/incidents/nearby", body)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Incidents []domain.Incident `json:"incidents"`
		Filtered  bool              `json:"filtered"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Filtered)
	require.Len(t, resp.Incidents, 1)
	assert.Equal(t, "near", resp.Incidents[0].ID)
}

func TestMatchIncident(t *testing.T) {
	f := newFixture(t, nil)

	f.do(t, http.MethodPost, "/v1/users/ana/zones",
		`{"name":"Casa","center":{"lat":9.93,"lng":-84.08},"radius_km":5}`)

	rec := f.do(t, http.MethodPost, "/v1/users/ana/incidents/match",
		`{"id":"inc-1","type":"ASALTO","severity":"CRITICA","location":{"lat":9.95,"lng":-84.09}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Matches []domain.MatchResult `json:"matches"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Matches, 1)
	assert.InDelta(t, 2.3, resp.Matches[0].DistanceKm, 0.2)
}

func TestMatchIncident_NoZonesReturnsEmptyArray(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodPost, "/v1/users/ana/incidents/match",
		`{"id":"inc-1","type":"ROBO","severity":"BAJA","location":{"lat":9.95,"lng":-84.09}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"matches":[]}`, rec.Body.String())
}
