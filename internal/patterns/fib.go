package patterns

import (
	"math"
	"strconv"
	"strings"
)

// FibRatio is one of the canonical projection ratios
type FibRatio struct {
	Label string  `json:"label"`
	Rate  float64 `json:"rate"`
}

// CanonicalFibRatios lists the projection ratios a chart may enable, in ascending order
var CanonicalFibRatios = []FibRatio{
	{Label: "0", Rate: 0},
	{Label: "0.236", Rate: 0.236},
	{Label: "0.382", Rate: 0.382},
	{Label: "0.5", Rate: 0.5},
	{Label: "0.618", Rate: 0.618},
	{Label: "0.764", Rate: 0.764},
	{Label: "1", Rate: 1},
}

// CanonicalFibLabel maps a label to its canonical spelling. Labels are the
// shortest decimal form of the rate ("0", "0.5", "1"); numeric spellings of
// the same rate such as "1.0" or "0.50" are accepted as aliases.
func CanonicalFibLabel(label string) (string, bool) {
	label = strings.TrimSpace(label)
	for _, r := range CanonicalFibRatios {
		if r.Label == label {
			return r.Label, true
		}
	}
	rate, err := strconv.ParseFloat(label, 64)
	if err != nil {
		return "", false
	}
	for _, r := range CanonicalFibRatios {
		if r.Rate == rate {
			return r.Label, true
		}
	}
	return "", false
}

// IsFibLabel reports whether label names a canonical ratio
func IsFibLabel(label string) bool {
	_, ok := CanonicalFibLabel(label)
	return ok
}

// AllFibLabels returns a map enabling every canonical ratio
func AllFibLabels() map[string]bool {
	enabled := make(map[string]bool, len(CanonicalFibRatios))
	for _, r := range CanonicalFibRatios {
		enabled[r.Label] = true
	}
	return enabled
}

// ProjectLevel projects a price from the C->D leg at rate. The projection
// moves back toward C: below D when D > C, above D otherwise.
func ProjectLevel(d, c, rate float64) float64 {
	legRange := math.Abs(d - c)
	if d > c {
		return d - legRange*rate
	}
	return d + legRange*rate
}

// FibLevels projects every enabled canonical ratio from the C->D leg.
// Results are keyed by canonical label; unknown labels are ignored.
func FibLevels(d, c float64, enabled map[string]bool) map[string]float64 {
	levels := make(map[string]float64)
	for label, on := range enabled {
		if !on {
			continue
		}
		canonical, ok := CanonicalFibLabel(label)
		if !ok {
			continue
		}
		for _, r := range CanonicalFibRatios {
			if r.Label == canonical {
				levels[canonical] = ProjectLevel(d, c, r.Rate)
				break
			}
		}
	}
	return levels
}
