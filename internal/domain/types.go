package domain

import "time"

// Severity classifies how serious an incident is, from BAJA to CRITICA.
type Severity string

const (
	SeverityBaja    Severity = "BAJA"
	SeverityMedia   Severity = "MEDIA"
	SeverityAlta    Severity = "ALTA"
	SeverityCritica Severity = "CRITICA"
)

// Severities lists all known severity levels.
var Severities = []Severity{SeverityBaja, SeverityMedia, SeverityAlta, SeverityCritica}

// IncidentType categorizes a reported incident.
type IncidentType string

const (
	TypeRobo       IncidentType = "ROBO"
	TypeAsalto     IncidentType = "ASALTO"
	TypeAccidente  IncidentType = "ACCIDENTE"
	TypeVandalismo IncidentType = "VANDALISMO"
	TypeEmergencia IncidentType = "EMERGENCIA"
	TypeOtro       IncidentType = "OTRO"
)

// IncidentTypes lists all known incident categories.
var IncidentTypes = []IncidentType{
	TypeRobo, TypeAsalto, TypeAccidente, TypeVandalismo, TypeEmergencia, TypeOtro,
}

// Coordinate is a WGS-84 latitude/longitude pair.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether the coordinate is inside the WGS-84 range.
func (c Coordinate) Valid() bool {
	return c.Lat >= -90 && c.Lat <= 90 && c.Lng >= -180 && c.Lng <= 180
}

// UserLocation is a captured (or substituted) position for one user.
// Each new fix supersedes the previous value; locations are never mutated
// in place.
type UserLocation struct {
	Coordinate
	AccuracyMeters float64 `json:"accuracy,omitempty"`
	CapturedAt     int64   `json:"timestamp"` // epoch milliseconds
	IsDefault      bool    `json:"is_default,omitempty"`
}

// LocationResult is what the location provider hands back to callers:
// the location itself plus how it was obtained.
type LocationResult struct {
	UserLocation
	FromCache bool `json:"from_cache"`
	Expired   bool `json:"expired"`
}

// Watch-zone radius bounds in kilometers.
const (
	MinZoneRadiusKm = 0.5
	MaxZoneRadiusKm = 50
)

// WatchZone is a user-defined circular area that scopes notifications.
type WatchZone struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Center    Coordinate `json:"center"`
	RadiusKm  float64    `json:"radius_km"`
	OwnerID   string     `json:"owner_id"`
	Active    bool       `json:"active"`
	CreatedAt int64      `json:"created_at"` // epoch milliseconds
}

// WatchZoneInput carries the caller-supplied fields for a new zone.
// ID, Active, and CreatedAt are assigned by the zone store.
type WatchZoneInput struct {
	Name     string     `json:"name"`
	Center   Coordinate `json:"center"`
	RadiusKm float64    `json:"radius_km"`
	OwnerID  string     `json:"owner_id"`
}

// WatchZonePatch updates a zone field-by-field. Nil fields are left as is.
type WatchZonePatch struct {
	Name     *string     `json:"name,omitempty"`
	Center   *Coordinate `json:"center,omitempty"`
	RadiusKm *float64    `json:"radius_km,omitempty"`
	Active   *bool       `json:"active,omitempty"`
}

// NotificationSettings controls which incidents may alert a user.
// The filters are membership sets: an incident must match both to pass.
// Settings are always saved whole; there is no partial merge.
type NotificationSettings struct {
	Enabled        bool           `json:"enabled"`
	TypeFilter     []IncidentType `json:"type_filter"`
	SeverityFilter []Severity     `json:"severity_filter"`
}

// DefaultNotificationSettings returns the settings a user gets on first
// access: enabled, with every known type and severity selected.
func DefaultNotificationSettings() NotificationSettings {
	return NotificationSettings{
		Enabled:        true,
		TypeFilter:     append([]IncidentType(nil), IncidentTypes...),
		SeverityFilter: append([]Severity(nil), Severities...),
	}
}

// AllowsType reports whether the type filter includes t.
func (s NotificationSettings) AllowsType(t IncidentType) bool {
	for _, v := range s.TypeFilter {
		if v == t {
			return true
		}
	}
	return false
}

// AllowsSeverity reports whether the severity filter includes sev.
func (s NotificationSettings) AllowsSeverity(sev Severity) bool {
	for _, v := range s.SeverityFilter {
		if v == sev {
			return true
		}
	}
	return false
}

// Incident is a reported event consumed by the engine. Incident CRUD is
// owned elsewhere; the engine only reads these.
type Incident struct {
	ID        string       `json:"id"`
	Type      IncidentType `json:"type"`
	Severity  Severity     `json:"severity"`
	Location  Coordinate   `json:"location"`
	CreatedAt int64        `json:"created_at"` // epoch milliseconds
}

// MatchResult pairs a matched zone with the incident's distance from its
// center. Results are ephemeral, produced per query and never persisted.
type MatchResult struct {
	Zone       WatchZone `json:"zone"`
	DistanceKm float64   `json:"distance_km"`
}

// AlertDecision records that an incident should alert a user, with every
// zone that matched, nearest first. Delivery and deduplication are the
// consumer's responsibility.
type AlertDecision struct {
	Incident  Incident      `json:"incident"`
	UserKey   string        `json:"user_key"`
	Matches   []MatchResult `json:"matches"`
	DecidedAt time.Time     `json:"decided_at"`
}
