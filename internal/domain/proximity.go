package domain

// WithinRadius returns the incidents within radiusKm of center, preserving
// input order. Filtering an already-filtered list with the same center and
// radius returns the same list.
func WithinRadius(incidents []Incident, center Coordinate, radiusKm float64) []Incident {
	nearby := make([]Incident, 0, len(incidents))
	for _, inc := range incidents {
		if DistanceKm(center, inc.Location) <= radiusKm {
			nearby = append(nearby, inc)
		}
	}
	return nearby
}
