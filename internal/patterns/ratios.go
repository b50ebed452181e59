package patterns

import (
	"encoding/json"
	"math"
)

// Pivots is the XABCD quintuple taken from the last five zigzag points
type Pivots struct {
	X float64 `json:"x"`
	A float64 `json:"a"`
	B float64 `json:"b"`
	C float64 `json:"c"`
	D float64 `json:"d"`
}

// Ratios holds the Fibonacci ratios between adjacent legs of a quintuple.
// A zero-length divisor leg yields NaN or +Inf, which no bounded rule matches.
type Ratios struct {
	XAB float64 `json:"xab"`
	XAD float64 `json:"xad"`
	ABC float64 `json:"abc"`
	BCD float64 `json:"bcd"`
}

// ratiosJSON encodes non-finite ratios as null, which encoding/json
// cannot represent as numbers.
type ratiosJSON struct {
	XAB *float64 `json:"xab"`
	XAD *float64 `json:"xad"`
	ABC *float64 `json:"abc"`
	BCD *float64 `json:"bcd"`
}

func finiteOrNil(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func valueOrNaN(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}

func (r Ratios) MarshalJSON() ([]byte, error) {
	return json.Marshal(ratiosJSON{
		XAB: finiteOrNil(r.XAB),
		XAD: finiteOrNil(r.XAD),
		ABC: finiteOrNil(r.ABC),
		BCD: finiteOrNil(r.BCD),
	})
}

func (r *Ratios) UnmarshalJSON(data []byte) error {
	var raw ratiosJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.XAB = valueOrNaN(raw.XAB)
	r.XAD = valueOrNaN(raw.XAD)
	r.ABC = valueOrNaN(raw.ABC)
	r.BCD = valueOrNaN(raw.BCD)
	return nil
}

// Direction is the side a harmonic pattern points to
type Direction string

const (
	Bullish Direction = "bullish"
	Bearish Direction = "bearish"
)

// CalculateRatios computes XAB, XAD, ABC and BCD from the pivots
func CalculateRatios(p Pivots) Ratios {
	xa := math.Abs(p.X - p.A)
	ab := math.Abs(p.A - p.B)
	bc := math.Abs(p.B - p.C)

	return Ratios{
		XAB: ab / xa,
		XAD: math.Abs(p.A-p.D) / xa,
		ABC: bc / ab,
		BCD: math.Abs(p.C-p.D) / bc,
	}
}

// Direction returns Bullish when D < C and Bearish when D > C.
// ok is false when D == C (or either is NaN).
func (p Pivots) Direction() (dir Direction, ok bool) {
	switch {
	case p.D < p.C:
		return Bullish, true
	case p.D > p.C:
		return Bearish, true
	default:
		return "", false
	}
}

// Scale returns the quintuple with every price multiplied by k
func (p Pivots) Scale(k float64) Pivots {
	return Pivots{X: p.X * k, A: p.A * k, B: p.B * k, C: p.C * k, D: p.D * k}
}
