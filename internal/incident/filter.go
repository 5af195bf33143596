package incident

import (
	"fmt"
	"strings"
	"time"

	"github.com/smartcity/racc-dashboard/internal/domain"
)

// Filter returns the incidents that pass every active criterion. The input
// slice is not modified and the result is never nil.
func Filter(incidents []domain.Incident, c domain.Criteria) []domain.Incident {
	out := make([]domain.Incident, 0, len(incidents))
	for _, inc := range incidents {
		if Match(inc, c) {
			out = append(out, inc)
		}
	}
	return out
}

// Match applies the filter chain to one incident
func Match(inc domain.Incident, c domain.Criteria) bool {
	if !InArea(inc, c.Area) {
		return false
	}
	if !inDateRange(inc, c.From, c.To) {
		return false
	}
	if c.RoadClass != "" && inc.RoadClass != c.RoadClass {
		return false
	}
	if c.Kind != "" && inc.Kind != c.Kind {
		return false
	}
	if c.PinnedRoad != "" && inc.Road != c.PinnedRoad {
		return false
	}
	return true
}

// inDateRange is inclusive on both ends. With any bound set, incidents
// without a timestamp are dropped.
func inDateRange(inc domain.Incident, from, to time.Time) bool {
	if from.IsZero() && to.IsZero() {
		return true
	}
	if !inc.HasTimestamp() {
		return false
	}
	if !from.IsZero() && inc.Timestamp.Before(from) {
		return false
	}
	if !to.IsZero() && inc.Timestamp.After(to) {
		return false
	}
	return true
}

// ParseArea validates an area name; empty means AreaAll
func ParseArea(s string) (domain.Area, error) {
	switch a := domain.Area(strings.ToLower(strings.TrimSpace(s))); a {
	case "":
		return domain.AreaAll, nil
	case domain.AreaAll, domain.AreaRegion, domain.AreaMetro:
		return a, nil
	default:
		return "", fmt.Errorf("incident: unknown area %q", s)
	}
}

// ParseRoadClass validates a road class; empty or "all" disables the filter
func ParseRoadClass(s string) (domain.RoadClass, error) {
	switch rc := domain.RoadClass(strings.ToLower(strings.TrimSpace(s))); rc {
	case "", "all":
		return "", nil
	case domain.RoadClassMotorway, domain.RoadClassNational, domain.RoadClassSecondary, domain.RoadClassLocal:
		return rc, nil
	default:
		return "", fmt.Errorf("incident: unknown road class %q", s)
	}
}

// ParseKind validates a kind; empty or "all" disables the filter
func ParseKind(s string) (domain.Kind, error) {
	k := domain.Kind(strings.ToLower(strings.TrimSpace(s)))
	if k == "" || k == "all" {
		return "", nil
	}
	for _, known := range domain.Kinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("incident: unknown kind %q", s)
}

// ParseDateBound parses "2006-01-02" or RFC 3339. A bare date used as an
// upper bound covers the whole day.
func ParseDateBound(s string, upper bool) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation("2006-01-02", s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("incident: invalid date %q", s)
	}
	if upper {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

// CriteriaParams carries unparsed filter values from a query string or flags
type CriteriaParams struct {
	Area      string
	From      string
	To        string
	RoadClass string
	Kind      string
	Road      string
}

// ParseCriteria validates every parameter and builds the criteria
func ParseCriteria(p CriteriaParams) (domain.Criteria, error) {
	var (
		c   domain.Criteria
		err error
	)
	if c.Area, err = ParseArea(p.Area); err != nil {
		return c, err
	}
	if c.From, err = ParseDateBound(p.From, false); err != nil {
		return c, err
	}
	if c.To, err = ParseDateBound(p.To, true); err != nil {
		return c, err
	}
	if c.RoadClass, err = ParseRoadClass(p.RoadClass); err != nil {
		return c, err
	}
	if c.Kind, err = ParseKind(p.Kind); err != nil {
		return c, err
	}
	c.PinnedRoad = strings.TrimSpace(p.Road)
	return c, nil
}
