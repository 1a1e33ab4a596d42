// Package domain models the geospatial core of the civic incident-reporting
// platform: coordinates, cached user locations, watch zones, notification
// settings, and the proximity math that ties them together.
//
// # Distance convention
//
// Every distance in the engine is a great-circle distance computed by
// [DistanceKm] (Haversine, Earth radius 6371 km). Watch-zone matching and
// the nearby filter share this single implementation so that "inside
// radius" means the same thing at every call site.
//
// # Incident taxonomy
//
// Incidents carry a type and a severity. The taxonomy mirrors the reporting
// app's Spanish-language categories:
//
//	Types:      ROBO, ASALTO, ACCIDENTE, VANDALISMO, EMERGENCIA, OTRO
//	Severities: BAJA, MEDIA, ALTA, CRITICA
//
// The engine never interprets either value beyond set membership against a
// user's notification filters, so new categories can be introduced without
// touching the matching logic.
//
// # Location lifecycle
//
// A UserLocation is created whenever a fresh fix is obtained or a default
// is substituted, superseded (never mutated) by each new fix, and cached
// per user with a freshness TTL (24h by default). When no fix can be
// obtained and no cache exists, the engine falls back to a configured
// default coordinate rather than failing; callers see the degradation only
// through the IsDefault, FromCache, and Expired flags.
//
// # Persistence layout
//
// All state lives in an opaque key-value store, one key per concept,
// namespaced by user key (see the store package):
//
//	location:{userKey}               cached UserLocation
//	locationPermission:{userKey}     geolocation permission flag
//	proximityFilterEnabled:{userKey} nearby-filter toggle
//	watchZones                       global zone list, filtered by owner
//	notificationSettings:{userKey}   NotificationSettings
package domain
