package patterns

// gartleySeries produces the zigzag X=100, A=200, B=140, C=170, D=120
// (xab 0.6, abc 0.5, bcd 1.667, xad 0.8) and ends on an up candle.
func gartleySeries() []Candle {
	return []Candle{
		{Open: 110, High: 112, Low: 100, Close: 105, Time: 1},
		{Open: 105, High: 200, Low: 104, Close: 190, Time: 2},
		{Open: 190, High: 195, Low: 140, Close: 150, Time: 3},
		{Open: 150, High: 170, Low: 145, Close: 165, Time: 4},
		{Open: 165, High: 168, Low: 120, Close: 125, Time: 5},
		{Open: 125, High: 138, Low: 122, Close: 135, Time: 6},
	}
}

// mirror reflects candles around pivot so bullish geometry becomes bearish
func mirror(candles []Candle, pivot float64) []Candle {
	out := make([]Candle, len(candles))
	for i, c := range candles {
		out[i] = Candle{
			Open:  pivot - c.Open,
			High:  pivot - c.Low,
			Low:   pivot - c.High,
			Close: pivot - c.Close,
			Time:  c.Time,
		}
	}
	return out
}

func hasPattern(matches []PatternMatch, name PatternName) bool {
	for _, m := range matches {
		if m.Name == name {
			return true
		}
	}
	return false
}
