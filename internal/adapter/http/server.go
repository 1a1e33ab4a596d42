// Package http exposes the service's REST surface: device position pushes,
// location reads, watch-zone CRUD, notification settings, on-demand
// matching, plus the usual health, readiness, and metrics endpoints.
package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/civicwatch/incident-proximity-service/internal/config"
	"github.com/civicwatch/incident-proximity-service/internal/domain"
	"github.com/civicwatch/incident-proximity-service/internal/location"
	"github.com/civicwatch/incident-proximity-service/internal/notify"
	"github.com/civicwatch/incident-proximity-service/internal/zones"
)

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// Deps bundles the collaborators the HTTP surface exposes.
type Deps struct {
	Ready    ReadinessChecker
	Provider *location.Provider
	Devices  *location.DeviceSource
	Zones    *zones.Store
	Settings *notify.SettingsStore
	Matcher  *notify.Matcher
}

// Server exposes the REST API over a stdlib mux with CORS for browser
// clients.
type Server struct {
	httpServer     *http.Server
	deps           Deps
	logger         *slog.Logger
	nearbyRadiusKm float64
}

// NewServer creates an HTTP server with all API routes registered.
func NewServer(cfg *config.Config, deps Deps, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	corsWrapper := cors.New(cors.Options{
		AllowedOrigins: cfg.CORSAllowOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowedHeaders: []string{"Content-Type"},
	})

	s := &Server{
		httpServer: &http.Server{
			Addr:         cfg.HTTPAddr,
			Handler:      corsWrapper.Handler(mux),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		deps:           deps,
		logger:         logger,
		nearbyRadiusKm: cfg.NearbyRadiusKm,
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", handleReady(deps.Ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /v1/users/{user}/position", s.handleReportPosition)
	mux.HandleFunc("GET /v1/users/{user}/location", s.handleGetLocation)
	mux.HandleFunc("DELETE /v1/users/{user}/location", s.handleForgetLocation)

	mux.HandleFunc("GET /v1/users/{user}/zones", s.handleListZones)
	mux.HandleFunc("POST /v1/users/{user}/zones", s.handleCreateZone)
	mux.HandleFunc("PATCH /v1/zones/{id}", s.handlePatchZone)
	mux.HandleFunc("DELETE /v1/zones/{id}", s.handleDeleteZone)

	mux.HandleFunc("GET /v1/users/{user}/settings", s.handleGetSettings)
	mux.HandleFunc("PUT /v1/users/{user}/settings", s.handlePutSettings)
	mux.HandleFunc("GET /v1/users/{user}/proximity-filter", s.handleGetProximityFilter)
	mux.HandleFunc("PUT /v1/users/{user}/proximity-filter", s.handlePutProximityFilter)

	mux.HandleFunc("POST /v1/users/{user}/incidents/nearby", s.handleNearbyIncidents)
	mux.HandleFunc("POST /v1/users/{user}/incidents/match", s.handleMatchIncident)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func handleReady(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := checker.CheckReadiness(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}

// writeError maps domain errors onto HTTP statuses: validation failures
// become 400, missing resources 404, everything else 500.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case domain.IsValidation(err):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case domain.IsNotFound(err):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	default:
		s.logger.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close() //nolint:errcheck
	return json.NewDecoder(r.Body).Decode(v)
}
