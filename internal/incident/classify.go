package incident

import (
	"strings"
	"unicode"

	"github.com/smartcity/racc-dashboard/internal/domain"
)

// kindKeywords maps each kind to lower-case fragments found in the feed's
// free-text category and cause fields (Catalan and Spanish wording).
var kindKeywords = map[domain.Kind][]string{
	domain.KindCongestion: {"retenci", "congesti", "cues", "circulació lenta", "lenta", "atasco", "densitat", "densidad"},
	domain.KindRoadworks:  {"obra", "obres", "treballs", "manteniment", "asfalt"},
	domain.KindWeather:    {"meteo", "pluja", "lluvia", "nevad", "nieve", "boira", "niebla", "glaç", "gelad", "hielo", "temporal", "vent", "viento"},
	domain.KindAccident:   {"accident", "col·lisi", "colisi", "sinistre", "atropell", "bolcada"},
}

// roadPrefixes maps the letter code of a road name to its class
var roadPrefixes = map[string]domain.RoadClass{
	"AP":  domain.RoadClassMotorway,
	"A":   domain.RoadClassMotorway,
	"N":   domain.RoadClassNational,
	"C":   domain.RoadClassSecondary,
	"B":   domain.RoadClassLocal,
	"BV":  domain.RoadClassLocal,
	"BP":  domain.RoadClassLocal,
	"GI":  domain.RoadClassLocal,
	"GIV": domain.RoadClassLocal,
	"GIP": domain.RoadClassLocal,
	"L":   domain.RoadClassLocal,
	"LV":  domain.RoadClassLocal,
	"LP":  domain.RoadClassLocal,
	"T":   domain.RoadClassLocal,
	"TV":  domain.RoadClassLocal,
	"TP":  domain.RoadClassLocal,
}

// ClassifyKind tags an incident from its category text, falling back to the
// cause text. Within one field the first kind in domain.Kinds order wins.
func ClassifyKind(category, cause string) domain.Kind {
	for _, field := range []string{category, cause} {
		text := strings.ToLower(field)
		if text == "" {
			continue
		}
		for _, kind := range domain.Kinds {
			for _, kw := range kindKeywords[kind] {
				if strings.Contains(text, kw) {
					return kind
				}
			}
		}
	}
	return domain.KindOther
}

// ClassifyRoad derives the road class from the letter code that prefixes
// the road name, e.g. "AP-7", "N-II", "C 32", "BV5001".
func ClassifyRoad(road string) domain.RoadClass {
	name := strings.ToUpper(strings.TrimSpace(road))

	end := 0
	for end < len(name) && name[end] >= 'A' && name[end] <= 'Z' {
		end++
	}
	if end == 0 || end == len(name) {
		return domain.RoadClassOther
	}

	// The code must be followed by a separator or the road number
	next := rune(name[end])
	if next != '-' && next != ' ' && !unicode.IsDigit(next) {
		return domain.RoadClassOther
	}

	if class, ok := roadPrefixes[name[:end]]; ok {
		return class
	}
	return domain.RoadClassOther
}
