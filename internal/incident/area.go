package incident

import (
	"github.com/golang/geo/s2"

	"github.com/smartcity/racc-dashboard/internal/domain"
)

// areaBounds holds the fixed bounding boxes. AreaAll has no entry.
var areaBounds = map[domain.Area]s2.Rect{
	// Catalonia
	domain.AreaRegion: rectFromDegrees(40.5, 0.15, 42.9, 3.35),
	// Barcelona metropolitan area
	domain.AreaMetro: rectFromDegrees(41.2, 1.9, 41.7, 2.5),
}

func rectFromDegrees(minLat, minLng, maxLat, maxLng float64) s2.Rect {
	return s2.RectFromLatLng(s2.LatLngFromDegrees(minLat, minLng)).
		AddPoint(s2.LatLngFromDegrees(maxLat, maxLng))
}

// Bounds returns the bounding box of an area; ok is false for AreaAll
// and unknown areas.
func Bounds(area domain.Area) (s2.Rect, bool) {
	rect, ok := areaBounds[area]
	return rect, ok
}

// InArea reports whether the incident has coordinates inside the area.
// Incidents without parseable coordinates never match, even for AreaAll.
func InArea(inc domain.Incident, area domain.Area) bool {
	if !inc.HasCoordinates() {
		return false
	}
	rect, ok := Bounds(area)
	if !ok {
		return true
	}
	return rect.ContainsLatLng(s2.LatLngFromDegrees(inc.Latitude, inc.Longitude))
}
