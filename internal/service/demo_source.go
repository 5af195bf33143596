package service

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/smartcity/racc-dashboard/internal/domain"
	"github.com/smartcity/racc-dashboard/internal/incident"
)

// DemoSource generates synthetic incidents around Catalan traffic hotspots.
// It stands in for the remote API in demo mode.
type DemoSource struct {
	mu  sync.Mutex
	rng *rand.Rand
	now func() time.Time
}

// NewDemoSource creates a demo source. The same seed yields the same sets.
func NewDemoSource(seed int64) *DemoSource {
	return &DemoSource{rng: rand.New(rand.NewSource(seed)), now: time.Now}
}

type hotspot struct {
	lat, lon float64
	road     string
	weight   float64
}

// Key corridors with recurring incidents
var hotspots = []hotspot{
	{41.4468, 2.1869, "B-20", 1.3},  // Ronda de Dalt
	{41.3700, 2.1150, "B-10", 1.2},  // Ronda Litoral
	{41.5460, 2.1070, "C-58", 1.1},  // Sabadell/Terrassa
	{41.4930, 2.3630, "C-32", 1.0},  // Maresme
	{41.3280, 2.0470, "A-2", 1.1},   // Llobregat
	{41.6020, 2.2870, "AP-7", 1.2},  // Granollers
	{41.9790, 2.8210, "N-II", 0.7},  // Girona
	{41.1190, 1.2450, "T-11", 0.6},  // Tarragona
	{41.6170, 0.6200, "C-12", 0.5},  // Lleida
}

var demoCauses = map[domain.Kind][]string{
	domain.KindCongestion: {"Retenció", "Densitat de trànsit"},
	domain.KindRoadworks:  {"Obres", "Manteniment"},
	domain.KindWeather:    {"Pluja", "Boira", "Vent"},
	domain.KindAccident:   {"Accident", "Col·lisió"},
}

// FetchIncidents returns a fresh synthetic set
func (s *DemoSource) FetchIncidents(ctx context.Context) ([]domain.Incident, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	load := s.congestionLoad(now.Hour(), now.Weekday())

	var out []domain.Incident
	for _, spot := range hotspots {
		n := int(math.Round(load * spot.weight * float64(2+s.rng.Intn(4))))
		for i := 0; i < n; i++ {
			out = append(out, s.incident(spot, now, len(out)+1))
		}
	}
	if out == nil {
		out = []domain.Incident{}
	}
	return out, nil
}

func (s *DemoSource) incident(spot hotspot, now time.Time, seq int) domain.Incident {
	causes := demoCauses[domain.Kinds[s.rng.Intn(len(domain.Kinds))]]
	cause := causes[s.rng.Intn(len(causes))]

	// Random offset within ~1km
	lat := spot.lat + (s.rng.Float64()-0.5)*0.02
	lon := spot.lon + (s.rng.Float64()-0.5)*0.02

	severity := 1 + s.rng.Intn(5)
	start := math.Round(s.rng.Float64()*400) / 10

	return domain.Incident{
		ID:          fmt.Sprintf("demo-%d", seq),
		Latitude:    lat,
		Longitude:   lon,
		Road:        spot.road,
		Category:    cause,
		Cause:       cause,
		Severity:    severity,
		Timestamp:   now.Add(-time.Duration(s.rng.Intn(180)) * time.Minute).UTC().Truncate(time.Second),
		Direction:   "Ambdós sentits",
		StartMarker: start,
		EndMarker:   start + math.Round(s.rng.Float64()*50)/10,
		Kind:        incident.ClassifyKind(cause, cause),
		RoadClass:   incident.ClassifyRoad(spot.road),
	}
}

// congestionLoad returns a multiplier for time of day patterns
func (s *DemoSource) congestionLoad(hour int, weekday time.Weekday) float64 {
	if weekday == time.Saturday || weekday == time.Sunday {
		return 0.5 + s.rng.Float64()*0.3
	}

	switch {
	case hour >= 7 && hour <= 9: // Morning rush
		return 1.4 + s.rng.Float64()*0.4
	case hour >= 17 && hour <= 19: // Evening rush
		return 1.5 + s.rng.Float64()*0.3
	case hour >= 22 || hour <= 5: // Night
		return 0.2 + s.rng.Float64()*0.2
	default:
		return 0.8 + s.rng.Float64()*0.4
	}
}
