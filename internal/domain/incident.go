package domain

import (
	"encoding/json"
	"math"
	"time"
)

// Kind is the incident category derived once at ingestion
type Kind string

const (
	KindCongestion Kind = "congestion"
	KindRoadworks  Kind = "roadworks"
	KindWeather    Kind = "weather"
	KindAccident   Kind = "accident"
	KindOther      Kind = "other"
)

// Kinds lists the selectable kinds in their fixed order
var Kinds = []Kind{KindCongestion, KindRoadworks, KindWeather, KindAccident}

// RoadClass groups roads by the prefix of their official name
type RoadClass string

const (
	RoadClassMotorway  RoadClass = "motorway"
	RoadClassNational  RoadClass = "national"
	RoadClassSecondary RoadClass = "secondary"
	RoadClassLocal     RoadClass = "local"
	RoadClassOther     RoadClass = "other"
)

// Area names a geographic bounding box
type Area string

const (
	AreaAll    Area = "all"
	AreaRegion Area = "region"
	AreaMetro  Area = "metro-area"
)

// Incident represents a road event reported by the traffic service.
// Missing coordinates and kilometre markers are NaN, an unknown severity is 0.
type Incident struct {
	ID          string
	Latitude    float64
	Longitude   float64
	Road        string
	Category    string
	Cause       string
	Severity    int
	Timestamp   time.Time
	Direction   string
	Destination string
	StartMarker float64
	EndMarker   float64
	Description string

	// Derived at ingestion
	Kind      Kind
	RoadClass RoadClass
}

// HasCoordinates reports whether both coordinates parsed
func (i Incident) HasCoordinates() bool {
	return !math.IsNaN(i.Latitude) && !math.IsNaN(i.Longitude) &&
		!math.IsInf(i.Latitude, 0) && !math.IsInf(i.Longitude, 0)
}

// HasTimestamp reports whether the timestamp parsed
func (i Incident) HasTimestamp() bool {
	return !i.Timestamp.IsZero()
}

// MarshalJSON renders NaN numbers and zero timestamps as null
func (i Incident) MarshalJSON() ([]byte, error) {
	type view struct {
		ID          string     `json:"id"`
		Latitude    *float64   `json:"lat"`
		Longitude   *float64   `json:"lon"`
		Road        string     `json:"road"`
		Category    string     `json:"category"`
		Cause       string     `json:"cause"`
		Severity    int        `json:"severity"`
		Timestamp   *time.Time `json:"timestamp"`
		Direction   string     `json:"direction,omitempty"`
		Destination string     `json:"destination,omitempty"`
		StartMarker *float64   `json:"start_marker"`
		EndMarker   *float64   `json:"end_marker"`
		Description string     `json:"description,omitempty"`
		Kind        Kind       `json:"kind"`
		RoadClass   RoadClass  `json:"road_class"`
	}

	v := view{
		ID:          i.ID,
		Latitude:    finite(i.Latitude),
		Longitude:   finite(i.Longitude),
		Road:        i.Road,
		Category:    i.Category,
		Cause:       i.Cause,
		Severity:    i.Severity,
		Direction:   i.Direction,
		Destination: i.Destination,
		StartMarker: finite(i.StartMarker),
		EndMarker:   finite(i.EndMarker),
		Description: i.Description,
		Kind:        i.Kind,
		RoadClass:   i.RoadClass,
	}
	if i.HasTimestamp() {
		ts := i.Timestamp
		v.Timestamp = &ts
	}

	return json.Marshal(v)
}

func finite(f float64) *float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// Criteria selects a subset of incidents. Zero values disable a filter,
// except Area which always requires coordinates.
type Criteria struct {
	Area       Area      `json:"area"`
	From       time.Time `json:"from"`
	To         time.Time `json:"to"`
	RoadClass  RoadClass `json:"road_class,omitempty"`
	Kind       Kind      `json:"kind,omitempty"`
	PinnedRoad string    `json:"road,omitempty"`
}

// CountBucket is one bar of a labelled histogram
type CountBucket struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// SeverityBucket is one bar of the severity histogram
type SeverityBucket struct {
	Level int `json:"level"`
	Count int `json:"count"`
}

// RoadRank is one row of the most-affected roads table
type RoadRank struct {
	Road         string `json:"road"`
	Count        int    `json:"count"`
	MaxSeverity  int    `json:"max_severity"`
	DominantKind Kind   `json:"dominant_kind"`
}

// Aggregate holds the KPIs derived from a filtered incident set
type Aggregate struct {
	Total                 int              `json:"total"`
	SevereCount           int              `json:"severe_count"`
	SevereFractionPercent float64          `json:"severe_fraction_percent"`
	TopAffectedRoad       string           `json:"top_affected_road"`
	CauseHistogram        []CountBucket    `json:"cause_histogram"`
	SeverityHistogram     []SeverityBucket `json:"severity_histogram"`
	RoadRanking           []RoadRank       `json:"road_ranking"`
}

// Marker represents a single incident point for the map layer
type Marker struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
	Label     string  `json:"label"`
	Kind      Kind    `json:"type"`
	Color     string  `json:"color"`
	Radius    int     `json:"radius"`
}

// IncidentView wraps a filtered set with its aggregate
type IncidentView struct {
	Criteria  Criteria   `json:"criteria"`
	Incidents []Incident `json:"incidents"`
	Aggregate Aggregate  `json:"aggregate"`
	FetchedAt time.Time  `json:"fetched_at"`
}

// Snapshot is the persisted summary of one polling cycle
type Snapshot struct {
	Total                 int       `json:"total"`
	SevereCount           int       `json:"severe_count"`
	SevereFractionPercent float64   `json:"severe_fraction_percent"`
	TopAffectedRoad       string    `json:"top_affected_road"`
	Timestamp             time.Time `json:"timestamp"`
	IsMock                bool      `json:"is_mock"`
}

// Metropolitan area centre, used for the default map view
const (
	BarcelonaCenterLat = 41.3851
	BarcelonaCenterLon = 2.1734
)
