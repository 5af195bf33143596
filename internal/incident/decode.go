package incident

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/smartcity/racc-dashboard/internal/domain"
)

// timestampLayouts are tried in order; zone-less layouts are read as UTC
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
	"02/01/2006",
	"2006-01-02",
}

// envelopeKeys are the wrapper fields some API revisions put around the list
var envelopeKeys = []string{"data", "incidencies", "incidents", "items"}

type rawRecord map[string]json.RawMessage

// Decode reads the raw incidents payload. It accepts a bare JSON array or an
// object wrapping the array. Individual fields are parsed permissively; only
// a malformed document is an error.
func Decode(r io.Reader) ([]domain.Incident, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("incident: failed to read payload: %w", err)
	}
	return DecodeBytes(body)
}

// DecodeBytes is Decode for an in-memory payload
func DecodeBytes(body []byte) ([]domain.Incident, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || bytes.Equal(body, []byte("null")) {
		return []domain.Incident{}, nil
	}

	var records []rawRecord
	if body[0] == '{' {
		var envelope map[string]json.RawMessage
		if err := json.Unmarshal(body, &envelope); err != nil {
			return nil, fmt.Errorf("incident: failed to decode payload: %w", err)
		}
		for _, key := range envelopeKeys {
			if raw, ok := envelope[key]; ok {
				body = raw
				break
			}
		}
	}
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, fmt.Errorf("incident: failed to decode payload: %w", err)
	}

	incidents := make([]domain.Incident, 0, len(records))
	for _, rec := range records {
		if rec == nil {
			continue
		}
		incidents = append(incidents, rec.incident())
	}
	return incidents, nil
}

func (r rawRecord) incident() domain.Incident {
	inc := domain.Incident{
		ID:          r.str("identificador", "id"),
		Latitude:    r.num("lat", "latitud", "latitude"),
		Longitude:   r.num("lon", "lng", "longitud", "longitude"),
		Road:        r.str("carretera", "road", "via"),
		Category:    r.str("descripcio_tipus", "tipus", "tipo", "category"),
		Cause:       r.str("causa", "cause"),
		Severity:    severity(r.num("nivell", "nivel", "severity", "level")),
		Timestamp:   parseTimestamp(r.str("data", "timestamp", "date", "fecha")),
		Direction:   r.str("sentit", "direction"),
		Destination: r.str("cap_a", "destination"),
		StartMarker: r.num("pk_inici", "start_marker"),
		EndMarker:   r.num("pk_fi", "end_marker"),
		Description: r.str("descripcio", "descripcion", "description"),
	}

	// GML features carry a single "lon,lat" string
	if !inc.HasCoordinates() {
		if lat, lon, ok := parseCoordinates(r.str("coordinates", "coordenades")); ok {
			inc.Latitude, inc.Longitude = lat, lon
		}
	}

	inc.Kind = ClassifyKind(inc.Category, inc.Cause)
	inc.RoadClass = ClassifyRoad(inc.Road)
	return inc
}

// str returns the first present key as a trimmed string. Numbers are kept
// in their JSON text form.
func (r rawRecord) str(keys ...string) string {
	for _, key := range keys {
		raw, ok := r[key]
		if !ok || isNull(raw) {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return strings.TrimSpace(s)
		}
		return strings.TrimSpace(string(raw))
	}
	return ""
}

// num returns the first present key as a float, NaN when absent or unparseable
func (r rawRecord) num(keys ...string) float64 {
	for _, key := range keys {
		raw, ok := r[key]
		if !ok || isNull(raw) {
			continue
		}
		var f float64
		if err := json.Unmarshal(raw, &f); err == nil {
			return f
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return parseFloat(s)
		}
		return math.NaN()
	}
	return math.NaN()
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// parseFloat accepts both "41.38" and the decimal comma form "41,38"
func parseFloat(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return math.NaN()
	}
	if !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return f
}

func parseCoordinates(s string) (lat, lon float64, ok bool) {
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) < 2 {
		return 0, 0, false
	}
	lon, errLon := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	lat, errLat := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if errLon != nil || errLat != nil {
		return 0, 0, false
	}
	return lat, lon, true
}

// severity maps the feed level to 1-5, 0 when unknown
func severity(level float64) int {
	if math.IsNaN(level) || math.IsInf(level, 0) {
		return 0
	}
	n := int(math.Round(level))
	if n < 1 || n > 5 {
		return 0
	}
	return n
}

// parseTimestamp returns the zero time when no layout matches
func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t
		}
	}
	return time.Time{}
}
