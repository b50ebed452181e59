package patterns

// PointType marks a zigzag point as a swing high or a swing low
type PointType string

const (
	PointHigh PointType = "high"
	PointLow  PointType = "low"
)

// DojiPolicy controls how a candle with close == open is classified
// by the zigzag extractor.
type DojiPolicy string

const (
	// DojiInclusive treats a doji as both up and down (close>=open and
	// close<=open). Two doji in a row can emit a high and a low at the
	// same index.
	DojiInclusive DojiPolicy = "inclusive"

	// DojiCarryForward gives a doji the direction of the candle before it,
	// so every candle is either up, down or (leading doji) neither.
	DojiCarryForward DojiPolicy = "carry_forward"
)

// ParseDojiPolicy converts a config string to a DojiPolicy, defaulting to DojiInclusive
func ParseDojiPolicy(s string) DojiPolicy {
	if DojiPolicy(s) == DojiCarryForward {
		return DojiCarryForward
	}
	return DojiInclusive
}

// ZigzagPoint is a retained swing extreme
type ZigzagPoint struct {
	Index int       `json:"index"`
	Value float64   `json:"value"`
	Type  PointType `json:"type"`
}

// Zigzag reduces a candle sequence to alternating swing highs and lows.
// A point is emitted at the previous candle whenever the candle colour flips
// against the direction currently tracked.
func Zigzag(candles []Candle, policy DojiPolicy) []ZigzagPoint {
	points := make([]ZigzagPoint, 0)
	if len(candles) < 2 {
		return points
	}

	up, down := classifyCandles(candles, policy)
	direction := 0

	for i := 1; i < len(candles); i++ {
		prev := candles[i-1]

		if up[i-1] && down[i] && direction != -1 {
			points = append(points, ZigzagPoint{Index: i - 1, Value: prev.High, Type: PointHigh})
			direction = -1
		}

		if down[i-1] && up[i] && direction != 1 {
			points = append(points, ZigzagPoint{Index: i - 1, Value: prev.Low, Type: PointLow})
			direction = 1
		}
	}

	return points
}

// classifyCandles returns the up/down flags of every candle under the policy
func classifyCandles(candles []Candle, policy DojiPolicy) (up, down []bool) {
	up = make([]bool, len(candles))
	down = make([]bool, len(candles))

	for i, c := range candles {
		if policy == DojiCarryForward && c.IsDoji() {
			// a leading doji stays neutral
			if i > 0 {
				up[i] = up[i-1]
				down[i] = down[i-1]
			}
			continue
		}
		up[i] = c.IsUp()
		down[i] = c.IsDown()
	}

	return up, down
}

// LastPivots returns the five most recent zigzag values as an XABCD quintuple
// (oldest first). ok is false when fewer than five points exist.
func LastPivots(points []ZigzagPoint) (p Pivots, ok bool) {
	if len(points) < 5 {
		return Pivots{}, false
	}

	last := points[len(points)-5:]
	return Pivots{
		X: last[0].Value,
		A: last[1].Value,
		B: last[2].Value,
		C: last[3].Value,
		D: last[4].Value,
	}, true
}
