package incident

import (
	"strings"

	"github.com/smartcity/racc-dashboard/internal/domain"
)

// kindColors follows the dashboard map legend
var kindColors = map[domain.Kind]string{
	domain.KindCongestion: "#f4d03f",
	domain.KindAccident:   "#c94444",
	domain.KindRoadworks:  "#e67e22",
	domain.KindWeather:    "#5dade2",
}

const defaultMarkerColor = "#3498db"

// Markers converts incidents with coordinates into map markers
func Markers(incidents []domain.Incident, radius int) []domain.Marker {
	markers := make([]domain.Marker, 0, len(incidents))
	for _, inc := range incidents {
		if !inc.HasCoordinates() {
			continue
		}
		color, ok := kindColors[inc.Kind]
		if !ok {
			color = defaultMarkerColor
		}
		markers = append(markers, domain.Marker{
			Latitude:  inc.Latitude,
			Longitude: inc.Longitude,
			Label:     markerLabel(inc),
			Kind:      inc.Kind,
			Color:     color,
			Radius:    radius,
		})
	}
	return markers
}

func markerLabel(inc domain.Incident) string {
	if inc.Description != "" {
		return inc.Description
	}
	parts := make([]string, 0, 2)
	if inc.Road != "" {
		parts = append(parts, inc.Road)
	}
	if inc.Cause != "" {
		parts = append(parts, inc.Cause)
	}
	if len(parts) == 0 {
		return "Incidència"
	}
	return strings.Join(parts, " - ")
}
