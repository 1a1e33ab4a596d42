package domain

import "math"

// EarthRadiusKm is the mean Earth radius used by every distance
// computation in the engine.
const EarthRadiusKm = 6371.0

// DistanceKm returns the great-circle distance between a and b in
// kilometers using the Haversine formula. It is symmetric, non-negative,
// and zero for identical points. Inputs are assumed to be valid
// coordinates; out-of-range values are the caller's responsibility.
func DistanceKm(a, b Coordinate) float64 {
	dLat := toRadians(b.Lat - a.Lat)
	dLng := toRadians(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(a.Lat))*math.Cos(toRadians(b.Lat))*
			math.Sin(dLng/2)*math.Sin(dLng/2)

	return 2 * EarthRadiusKm * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
