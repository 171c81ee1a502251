package domain

// Tribe is one of the four coffee personality archetypes a quiz can end in.
type Tribe string

const (
	TribeOwl         Tribe = "owl"
	TribeFox         Tribe = "fox"
	TribeBear        Tribe = "bear"
	TribeHummingbird Tribe = "hummingbird"
)

// AllTribes is the fixed order used when building score and percentage vectors.
var AllTribes = []Tribe{TribeOwl, TribeFox, TribeBear, TribeHummingbird}

var tribeLabels = map[Tribe]string{
	TribeOwl:         "Night Owl",
	TribeFox:         "Curious Fox",
	TribeBear:        "Cozy Bear",
	TribeHummingbird: "Sweet Hummingbird",
}

// Valid reports whether t is one of the four known tribes.
func (t Tribe) Valid() bool {
	_, ok := tribeLabels[t]
	return ok
}

// Label returns the display name, or the raw value for unknown tribes.
func (t Tribe) Label() string {
	if label, ok := tribeLabels[t]; ok {
		return label
	}
	return string(t)
}

// ScoreVector counts answers per tribe.
type ScoreVector map[Tribe]int

// Total sums all counts.
func (s ScoreVector) Total() int {
	total := 0
	for _, n := range s {
		total += n
	}
	return total
}

// PercentageVector is the rounded per-tribe share of answered scenarios.
type PercentageVector map[Tribe]int
