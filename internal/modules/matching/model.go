// README: Emergency categories and category→capability compatibility.
package matching

import (
	"lifeline/internal/modules/fleet"
	"lifeline/internal/modules/geo"
	"lifeline/internal/types"
)

// Category is the requested emergency type.
type Category string

const (
	CategoryGeneral  Category = "general"
	CategoryCardiac  Category = "cardiac"
	CategoryTrauma   Category = "trauma"
	CategoryNeonatal Category = "neonatal"
)

// compatibility maps each category to the capability classes that may serve
// it. A vehicle outside the set is never assigned, even when it is the only
// one nearby.
var compatibility = map[Category][]fleet.CapabilityClass{
	CategoryGeneral:  {fleet.ClassBasic, fleet.ClassAdvanced, fleet.ClassCritical, fleet.ClassNeonatal},
	CategoryCardiac:  {fleet.ClassAdvanced, fleet.ClassCritical},
	CategoryTrauma:   {fleet.ClassAdvanced, fleet.ClassCritical},
	CategoryNeonatal: {fleet.ClassCritical, fleet.ClassNeonatal},
}

// NormalizeCategory maps a raw request value onto a known category,
// defaulting to general when absent. The bool result is false for values
// that are present but unrecognised.
func NormalizeCategory(raw string) (Category, bool) {
	if raw == "" {
		return CategoryGeneral, true
	}
	c := Category(raw)
	if _, ok := compatibility[c]; !ok {
		return "", false
	}
	return c, true
}

// Compatible reports whether a capability class may serve a category.
func Compatible(cat Category, class fleet.CapabilityClass) bool {
	for _, c := range compatibility[cat] {
		if c == class {
			return true
		}
	}
	return false
}

// Match is a selected vehicle augmented with the distance to the pickup
// point and a naive arrival estimate.
type Match struct {
	fleet.Vehicle
	DistanceKm float64 `json:"distance_km"`
	EtaMinutes int     `json:"eta_minutes"`
}

// NewMatch computes the distance and arrival estimate from v to pickup.
func NewMatch(v fleet.Vehicle, pickup types.Point) Match {
	d := geo.DistanceKm(pickup, v.Point)
	return Match{Vehicle: v, DistanceKm: d, EtaMinutes: geo.EtaMinutes(d)}
}
