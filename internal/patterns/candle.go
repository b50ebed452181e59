package patterns

// Candle is a single OHLC bar as delivered by the market data feed.
type Candle struct {
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
	Time  int64   `json:"time"`
}

// IsUp reports close >= open. A doji is both up and down.
func (c Candle) IsUp() bool {
	return c.Close >= c.Open
}

// IsDown reports close <= open. A doji is both up and down.
func (c Candle) IsDown() bool {
	return c.Close <= c.Open
}

// IsDoji reports close == open
func (c Candle) IsDoji() bool {
	return c.Close == c.Open
}
