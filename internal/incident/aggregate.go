package incident

import (
	"sort"

	"github.com/smartcity/racc-dashboard/internal/domain"
	"github.com/smartcity/racc-dashboard/pkg/utils"
)

const (
	// SevereLevel is the lowest severity counted as severe
	SevereLevel = 3

	// CauseHistogramSize caps the cause histogram
	CauseHistogramSize = 10

	// DefaultRankingSize is used when no ranking size is requested
	DefaultRankingSize = 10

	// UnknownLabel replaces missing cause and road names
	UnknownLabel = "Desconeguda"
)

// Aggregate computes every KPI of a filtered set from scratch. An empty set
// yields zero values and empty, non-nil slices.
func Aggregate(incidents []domain.Incident, topN int) domain.Aggregate {
	severe, pct := SevereFraction(incidents)
	ranking := RoadRanking(incidents, topN)

	agg := domain.Aggregate{
		Total:                 len(incidents),
		SevereCount:           severe,
		SevereFractionPercent: pct,
		CauseHistogram:        CauseHistogram(incidents),
		SeverityHistogram:     SeverityHistogram(incidents),
		RoadRanking:           ranking,
	}
	if len(ranking) > 0 {
		agg.TopAffectedRoad = ranking[0].Road
	}
	return agg
}

// SevereFraction returns the number of incidents at SevereLevel or above and
// their share of the total in percent (0 for an empty set).
func SevereFraction(incidents []domain.Incident) (int, float64) {
	if len(incidents) == 0 {
		return 0, 0
	}
	severe := 0
	for _, inc := range incidents {
		if inc.Severity >= SevereLevel {
			severe++
		}
	}
	pct := float64(severe) / float64(len(incidents)) * 100
	return severe, utils.Clamp(pct, 0, 100)
}

// CauseHistogram counts incidents per cause, most frequent first, ties by
// label, capped at CauseHistogramSize.
func CauseHistogram(incidents []domain.Incident) []domain.CountBucket {
	counts := make(map[string]int)
	for _, inc := range incidents {
		counts[labelOrUnknown(inc.Cause)]++
	}

	buckets := make([]domain.CountBucket, 0, len(counts))
	for label, n := range counts {
		buckets = append(buckets, domain.CountBucket{Label: label, Count: n})
	}
	sort.Slice(buckets, func(i, j int) bool {
		if buckets[i].Count != buckets[j].Count {
			return buckets[i].Count > buckets[j].Count
		}
		return buckets[i].Label < buckets[j].Label
	})

	if len(buckets) > CauseHistogramSize {
		buckets = buckets[:CauseHistogramSize]
	}
	return buckets
}

// SeverityHistogram counts incidents per known severity level, ascending
func SeverityHistogram(incidents []domain.Incident) []domain.SeverityBucket {
	counts := make(map[int]int)
	for _, inc := range incidents {
		if inc.Severity > 0 {
			counts[inc.Severity]++
		}
	}

	buckets := make([]domain.SeverityBucket, 0, len(counts))
	for level, n := range counts {
		buckets = append(buckets, domain.SeverityBucket{Level: level, Count: n})
	}
	sort.Slice(buckets, func(i, j int) bool {
		return buckets[i].Level < buckets[j].Level
	})
	return buckets
}

// RoadRanking groups incidents by road. Rows are ordered by count, then by
// maximum severity, then alphabetically; topN <= 0 returns every road.
func RoadRanking(incidents []domain.Incident, topN int) []domain.RoadRank {
	type acc struct {
		count       int
		maxSeverity int
		kinds       map[domain.Kind]int
	}

	byRoad := make(map[string]*acc)
	for _, inc := range incidents {
		road := labelOrUnknown(inc.Road)
		a, ok := byRoad[road]
		if !ok {
			a = &acc{kinds: make(map[domain.Kind]int)}
			byRoad[road] = a
		}
		a.count++
		if inc.Severity > a.maxSeverity {
			a.maxSeverity = inc.Severity
		}
		a.kinds[inc.Kind]++
	}

	ranking := make([]domain.RoadRank, 0, len(byRoad))
	for road, a := range byRoad {
		ranking = append(ranking, domain.RoadRank{
			Road:         road,
			Count:        a.count,
			MaxSeverity:  a.maxSeverity,
			DominantKind: dominantKind(a.kinds),
		})
	}
	sort.Slice(ranking, func(i, j int) bool {
		if ranking[i].Count != ranking[j].Count {
			return ranking[i].Count > ranking[j].Count
		}
		if ranking[i].MaxSeverity != ranking[j].MaxSeverity {
			return ranking[i].MaxSeverity > ranking[j].MaxSeverity
		}
		return ranking[i].Road < ranking[j].Road
	})

	if topN > 0 && len(ranking) > topN {
		ranking = ranking[:topN]
	}
	return ranking
}

// dominantKind picks the most frequent kind; ties resolve in domain.Kinds
// order with KindOther last.
func dominantKind(kinds map[domain.Kind]int) domain.Kind {
	best, bestN := domain.KindOther, kinds[domain.KindOther]
	for i := len(domain.Kinds) - 1; i >= 0; i-- {
		k := domain.Kinds[i]
		if n := kinds[k]; n > 0 && n >= bestN {
			best, bestN = k, n
		}
	}
	return best
}

func labelOrUnknown(s string) string {
	if s == "" {
		return UnknownLabel
	}
	return s
}
