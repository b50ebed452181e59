package patterns

// PatternName identifies a harmonic pattern
type PatternName string

const (
	ABCD                PatternName = "ABCD"
	Bat                 PatternName = "Bat"
	AltBat              PatternName = "Alt Bat"
	Butterfly           PatternName = "Butterfly"
	Gartley             PatternName = "Gartley"
	Crab                PatternName = "Crab"
	Shark               PatternName = "Shark"
	FiveZero            PatternName = "5-0"
	WolfWave            PatternName = "Wolf Wave"
	HeadAndShoulders    PatternName = "Head and Shoulders"
	ContractingTriangle PatternName = "Contracting Triangle"
	ExpandingTriangle   PatternName = "Expanding Triangle"
	AntiBat             PatternName = "Anti Bat"
	AntiButterfly       PatternName = "Anti Butterfly"
	AntiGartley         PatternName = "Anti Gartley"
	AntiCrab            PatternName = "Anti Crab"
	AntiShark           PatternName = "Anti Shark"
)

// PatternMatch is a harmonic pattern found on the current quintuple
type PatternMatch struct {
	Name   PatternName `json:"name"`
	Type   Direction   `json:"type"`
	Ratios Ratios      `json:"ratios"`
	Points Pivots      `json:"points"`
}

// Bound is an inclusive range check on one ratio
type Bound struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	// Any disables the check (the ratio is not part of the pattern)
	Any bool `json:"any,omitempty"`
	// UpperOnly checks value <= Max only
	UpperOnly bool `json:"upper_only,omitempty"`
}

// Contains reports whether v lies inside the bound. NaN is never inside a
// checked bound.
func (b Bound) Contains(v float64) bool {
	if b.Any {
		return true
	}
	if b.UpperOnly {
		return v <= b.Max
	}
	return v >= b.Min && v <= b.Max
}

func between(lo, hi float64) Bound { return Bound{Min: lo, Max: hi} }
func atMost(hi float64) Bound       { return Bound{Max: hi, UpperOnly: true} }

var anyValue = Bound{Any: true}

// Rule is the ratio envelope of one harmonic pattern. Bullish and bearish
// variants share the same envelope.
type Rule struct {
	Name PatternName `json:"name"`
	XAB  Bound       `json:"xab"`
	ABC  Bound       `json:"abc"`
	BCD  Bound       `json:"bcd"`
	XAD  Bound       `json:"xad"`
}

// Matches reports whether all four ratios are inside the rule's bounds
func (r Rule) Matches(ratios Ratios) bool {
	return r.XAB.Contains(ratios.XAB) &&
		r.ABC.Contains(ratios.ABC) &&
		r.BCD.Contains(ratios.BCD) &&
		r.XAD.Contains(ratios.XAD)
}

var harmonicRules = []Rule{
	{Name: ABCD, XAB: anyValue, ABC: between(0.382, 0.886), BCD: between(1.13, 2.618), XAD: anyValue},
	{Name: Bat, XAB: between(0.382, 0.5), ABC: between(0.382, 0.886), BCD: between(1.618, 2.618), XAD: atMost(0.618)},
	{Name: AltBat, XAB: atMost(0.382), ABC: between(0.382, 0.886), BCD: between(2.0, 3.618), XAD: atMost(1.13)},
	{Name: Butterfly, XAB: atMost(0.786), ABC: between(0.382, 0.886), BCD: between(1.618, 2.618), XAD: between(1.27, 1.618)},
	{Name: Gartley, XAB: between(0.5, 0.618), ABC: between(0.382, 0.886), BCD: between(1.13, 2.618), XAD: between(0.75, 0.875)},
	{Name: Crab, XAB: between(0.5, 0.875), ABC: between(0.382, 0.886), BCD: between(2.0, 5.0), XAD: between(1.382, 5.0)},
	{Name: Shark, XAB: between(0.5, 0.875), ABC: between(1.13, 1.618), BCD: between(1.27, 2.24), XAD: between(0.886, 1.13)},
	{Name: FiveZero, XAB: between(1.13, 1.618), ABC: between(1.618, 2.24), BCD: between(0.5, 0.625), XAD: between(0.0, 0.236)},
	{Name: WolfWave, XAB: between(1.27, 1.618), ABC: between(0, 5), BCD: between(1.27, 1.618), XAD: between(0.0, 5)},
	{Name: HeadAndShoulders, XAB: between(2.0, 10), ABC: between(0.9, 1.1), BCD: between(0.236, 0.88), XAD: between(0.9, 1.1)},
	{Name: ContractingTriangle, XAB: between(0.382, 0.618), ABC: between(0.382, 0.618), BCD: between(0.382, 0.618), XAD: between(0.236, 0.764)},
	{Name: ExpandingTriangle, XAB: between(1.236, 1.618), ABC: between(1.0, 1.618), BCD: between(1.236, 2.0), XAD: between(2.0, 2.236)},
	{Name: AntiBat, XAB: between(0.5, 0.886), ABC: between(1.0, 2.618), BCD: between(1.618, 2.618), XAD: between(0.886, 1.0)},
	{Name: AntiButterfly, XAB: between(0.236, 0.886), ABC: between(1.13, 2.618), BCD: between(1.0, 1.382), XAD: between(0.5, 0.886)},
	{Name: AntiGartley, XAB: between(0.5, 0.886), ABC: between(1.0, 2.618), BCD: between(1.5, 5.0), XAD: between(1.0, 5.0)},
	{Name: AntiCrab, XAB: between(0.25, 0.5), ABC: between(1.13, 2.618), BCD: between(1.618, 2.618), XAD: between(0.5, 0.75)},
	{Name: AntiShark, XAB: between(0.382, 0.875), ABC: between(0.5, 1.0), BCD: between(1.25, 2.618), XAD: between(0.5, 1.25)},
}

// Rules returns a copy of the rule table in evaluation order
func Rules() []Rule {
	out := make([]Rule, len(harmonicRules))
	copy(out, harmonicRules)
	return out
}

// RuleFor looks up a rule by pattern name
func RuleFor(name PatternName) (Rule, bool) {
	for _, r := range harmonicRules {
		if r.Name == name {
			return r, true
		}
	}
	return Rule{}, false
}

// MatchNames evaluates every rule against the ratios. All matching
// names are returned; patterns are not mutually exclusive.
func MatchNames(ratios Ratios) []PatternName {
	names := make([]PatternName, 0)
	for _, r := range harmonicRules {
		if r.Matches(ratios) {
			names = append(names, r.Name)
		}
	}
	return names
}

// Classify returns every pattern matched by the quintuple. The direction is
// bullish when D < C and bearish when D > C; D == C yields no match.
func Classify(ratios Ratios, points Pivots) []PatternMatch {
	matches := make([]PatternMatch, 0)

	dir, ok := points.Direction()
	if !ok {
		return matches
	}

	for _, name := range MatchNames(ratios) {
		matches = append(matches, PatternMatch{
			Name:   name,
			Type:   dir,
			Ratios: ratios,
			Points: points,
		})
	}

	return matches
}

// Detect runs the full pipeline on a candle series: zigzag, pivots, ratios
// and classification. ok is false when there are fewer than five pivots.
func Detect(candles []Candle, policy DojiPolicy) (matches []PatternMatch, pivots Pivots, ok bool) {
	pivots, ok = LastPivots(Zigzag(candles, policy))
	if !ok {
		return []PatternMatch{}, Pivots{}, false
	}
	return Classify(CalculateRatios(pivots), pivots), pivots, true
}

// FilterByDirection returns the matches pointing in dir
func FilterByDirection(matches []PatternMatch, dir Direction) []PatternMatch {
	out := make([]PatternMatch, 0, len(matches))
	for _, m := range matches {
		if m.Type == dir {
			out = append(out, m)
		}
	}
	return out
}
