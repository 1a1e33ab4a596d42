package http

import (
	"net/http"

	"github.com/civicwatch/incident-proximity-service/internal/domain"
	"github.com/civicwatch/incident-proximity-service/internal/location"
)

type positionReport struct {
	Lat            float64 `json:"lat"`
	Lng            float64 `json:"lng"`
	AccuracyMeters float64 `json:"accuracy,omitempty"`
	Denied         bool    `json:"denied,omitempty"`
}

// handleReportPosition accepts a device push: either a fix or a permission
// denial. Fixes wake any pending location resolution for the user.
func (s *Server) handleReportPosition(w http.ResponseWriter, r *http.Request) {
	user := r.PathValue("user")

	var report positionReport
	if err := decodeJSON(r, &report); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed body"})
		return
	}

	if report.Denied {
		s.deps.Devices.ReportDenied(user)
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "denial recorded"})
		return
	}

	coord := domain.Coordinate{Lat: report.Lat, Lng: report.Lng}
	if !coord.Valid() {
		s.writeError(w, &domain.ValidationError{Field: "lat/lng", Reason: "out of range"})
		return
	}

	s.deps.Devices.Report(user, location.Position{
		Coordinate:     coord,
		AccuracyMeters: report.AccuracyMeters,
	})
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *Server) handleGetLocation(w http.ResponseWriter, r *http.Request) {
	result, err := s.deps.Provider.GetLocation(r.Context(), r.PathValue("user"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleForgetLocation(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Provider.Forget(r.Context(), r.PathValue("user")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListZones(w http.ResponseWriter, r *http.Request) {
	zones, err := s.deps.Zones.ListByOwner(r.Context(), r.PathValue("user"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, zones)
}

func (s *Server) handleCreateZone(w http.ResponseWriter, r *http.Request) {
	var input domain.WatchZoneInput
	if err := decodeJSON(r, &input); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed body"})
		return
	}
	// Ownership comes from the path, never the body.
	input.OwnerID = r.PathValue("user")

	zone, err := s.deps.Zones.Create(r.Context(), input)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, zone)
}

func (s *Server) handlePatchZone(w http.ResponseWriter, r *http.Request) {
	var patch domain.WatchZonePatch
	if err := decodeJSON(r, &patch); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed body"})
		return
	}

	zone, err := s.deps.Zones.Update(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, zone)
}

func (s *Server) handleDeleteZone(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Zones.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.deps.Settings.Get(r.Context(), r.PathValue("user"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	user := r.PathValue("user")

	var settings domain.NotificationSettings
	if err := decodeJSON(r, &settings); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed body"})
		return
	}

	if err := s.deps.Settings.Save(r.Context(), user, settings); err != nil {
		s.writeError(w, err)
		return
	}

	saved, err := s.deps.Settings.Get(r.Context(), user)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

type proximityFilter struct {
	Enabled bool `json:"enabled"`
}

func (s *Server) handleGetProximityFilter(w http.ResponseWriter, r *http.Request) {
	enabled, err := s.deps.Settings.ProximityFilterEnabled(r.Context(), r.PathValue("user"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, proximityFilter{Enabled: enabled})
}

func (s *Server) handlePutProximityFilter(w http.ResponseWriter, r *http.Request) {
	var toggle proximityFilter
	if err := decodeJSON(r, &toggle); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed body"})
		return
	}

	if err := s.deps.Settings.SetProximityFilterEnabled(r.Context(), r.PathValue("user"), toggle.Enabled); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toggle)
}

type nearbyRequest struct {
	Incidents []domain.Incident `json:"incidents"`
	RadiusKm  float64           `json:"radius_km,omitempty"`
}

type nearbyResponse struct {
	Incidents []domain.Incident      `json:"incidents"`
	Filtered  bool                   `json:"filtered"`
	Location  *domain.LocationResult `json:"location,omitempty"`
}

// handleNearbyIncidents applies the user's proximity filter to a feed of
// incidents. With the toggle off, the feed passes through untouched; with
// it on, the user's resolved location anchors the radius cut.
func (s *Server) handleNearbyIncidents(w http.ResponseWriter, r *http.Request) {
	user := r.PathValue("user")

	var req nearbyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed body"})
		return
	}
	if req.Incidents == nil {
		req.Incidents = []domain.Incident{}
	}

	enabled, err := s.deps.Settings.ProximityFilterEnabled(r.Context(), user)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !enabled {
		writeJSON(w, http.StatusOK, nearbyResponse{Incidents: req.Incidents})
		return
	}

	loc, err := s.deps.Provider.GetLocation(r.Context(), user)
	if err != nil {
		s.writeError(w, err)
		return
	}

	radius := req.RadiusKm
	if radius <= 0 {
		radius = s.nearbyRadiusKm
	}

	writeJSON(w, http.StatusOK, nearbyResponse{
		Incidents: domain.WithinRadius(req.Incidents, loc.Coordinate, radius),
		Filtered:  true,
		Location:  &loc,
	})
}

type matchResponse struct {
	Matches []domain.MatchResult `json:"matches"`
}

// handleMatchIncident answers "would this incident alert this user?"
// without going through the stream.
func (s *Server) handleMatchIncident(w http.ResponseWriter, r *http.Request) {
	user := r.PathValue("user")

	var incident domain.Incident
	if err := decodeJSON(r, &incident); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed body"})
		return
	}

	settings, err := s.deps.Settings.Get(r.Context(), user)
	if err != nil {
		s.writeError(w, err)
		return
	}

	matches, err := s.deps.Matcher.MatchZones(r.Context(), incident, user, settings)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if matches == nil {
		matches = []domain.MatchResult{}
	}
	writeJSON(w, http.StatusOK, matchResponse{Matches: matches})
}
