// Package incident implements the incident ingestion, filter and aggregation
// pipeline. Every function is pure: inputs are never modified and results are
// recomputed from scratch on each call.
package incident

import (
	"time"

	"github.com/smartcity/racc-dashboard/internal/domain"
)

// View filters the incidents and aggregates the result
func View(incidents []domain.Incident, c domain.Criteria, topN int, fetchedAt time.Time) domain.IncidentView {
	if c.Area == "" {
		c.Area = domain.AreaAll
	}
	filtered := Filter(incidents, c)
	return domain.IncidentView{
		Criteria:  c,
		Incidents: filtered,
		Aggregate: Aggregate(filtered, topN),
		FetchedAt: fetchedAt,
	}
}
