package flow

import (
	"fmt"
	"sort"
	"strings"

	"github.com/vango-go/vai-triage/pkg/core/lookup"
)

const maxPlaces = 5

var placeIntents = map[string][]string{
	"flood":      {"park", "open ground", "stadium", "parking garage", "high-rise building"},
	"earthquake": {"park", "open ground", "sports field", "public square"},
	"fire":       {"fire station", "hospital", "police station"},
	"medical":    {"hospital", "emergency room", "urgent care", "clinic"},
}

var defaultIntents = []string{"hospital", "police station", "fire station", "park"}

// PlaceIntents returns the search intents for an emergency type.
func PlaceIntents(emergencyType string) []string {
	if in, ok := placeIntents[emergencyType]; ok {
		return in
	}
	return defaultIntents
}

// ClassifyPlace maps type tags to a display category. Tags match whole, so
// "parking" is not a park and "lawyer" is not police.
func ClassifyPlace(types []string) string {
	tags := make(map[string]bool, len(types))
	for _, t := range types {
		tags[strings.ToLower(strings.TrimSpace(t))] = true
	}
	switch {
	case hasAny(tags, "hospital", "health", "clinic", "urgent", "urgent_care", "doctor"):
		return "hospital/clinic"
	case hasAny(tags, "police", "law"):
		return "police"
	case hasAny(tags, "fire_station", "fire"):
		return "fire station"
	case hasAny(tags, "park", "open_ground", "stadium", "field"):
		return "park/open space"
	}
	if len(types) > 0 && types[0] != "" {
		return types[0]
	}
	return "other"
}

func hasAny(tags map[string]bool, names ...string) bool {
	for _, n := range names {
		if tags[n] {
			return true
		}
	}
	return false
}

func suitability(emergencyType, category string) int {
	switch emergencyType {
	case "fire":
		switch category {
		case "fire station":
			return 100
		case "hospital/clinic":
			return 80
		}
		return 50
	case "medical":
		if category == "hospital/clinic" {
			return 100
		}
		return 40
	case "flood", "earthquake":
		if category == "park/open space" {
			return 100
		}
		return 50
	}
	switch category {
	case "hospital/clinic":
		return 100
	case "police", "fire station":
		return 90
	case "park/open space":
		return 60
	}
	return 40
}

// RankPlaces removes duplicates and orders places by suitability for the emergency
// type, then by rating.
func RankPlaces(emergencyType string, places []lookup.Place) []lookup.Place {
	seen := make(map[string]bool, len(places))
	out := make([]lookup.Place, 0, len(places))
	for _, p := range places {
		key := p.ID
		if key == "" {
			key = strings.ToLower(p.Name + "|" + p.Address)
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool {
		si := suitability(emergencyType, ClassifyPlace(out[i].Types))
		sj := suitability(emergencyType, ClassifyPlace(out[j].Types))
		if si != sj {
			return si > sj
		}
		return out[i].Rating > out[j].Rating
	})
	return out
}

// FormatPlaces renders up to five places as a numbered list.
func FormatPlaces(places []lookup.Place) string {
	if len(places) == 0 {
		return placesEmptyText
	}
	lines := make([]string, 0, maxPlaces)
	for i, p := range places {
		if i == maxPlaces {
			break
		}
		addr := p.Address
		if addr == "" {
			addr = "address unknown"
		}
		lines = append(lines, fmt.Sprintf("%d. %s — %s — %s", i+1, p.Name, addr, ClassifyPlace(p.Types)))
	}
	return joinLines(placesHeader, lines, placesFooter)
}
