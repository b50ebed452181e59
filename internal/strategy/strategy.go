package strategy

import (
	"harmonic-signals/internal/patterns"
)

// Strategy defines the interface for trading strategies
type Strategy interface {
	// Name returns the strategy name
	Name() string

	// Evaluate consumes the latest candle window and returns any signals it produced
	Evaluate(candles []patterns.Candle) ([]Signal, error)

	// GetSymbol returns the symbol this strategy trades
	GetSymbol() string

	// GetInterval returns the candle interval
	GetInterval() string

	// Reset returns the strategy to a flat state
	Reset()
}

// SignalType represents the kind of trading signal
type SignalType string

const (
	SignalBuy       SignalType = "buy"
	SignalSell      SignalType = "sell"
	SignalBuyClose  SignalType = "buy_close"
	SignalSellClose SignalType = "sell_close"
)

// IsEntry reports whether the signal opens a position
func (t SignalType) IsEntry() bool {
	return t == SignalBuy || t == SignalSell
}

// CloseReason tells which threshold closed a position
type CloseReason string

const (
	ReasonTakeProfit CloseReason = "take_profit"
	ReasonStopLoss   CloseReason = "stop_loss"
)

// Signal represents a trading signal
type Signal struct {
	Type     SignalType              `json:"type"`
	Price    float64                 `json:"price"`
	TPLevel  *float64                `json:"tp_level,omitempty"`
	SLLevel  *float64                `json:"sl_level,omitempty"`
	Patterns []patterns.PatternMatch `json:"patterns,omitempty"`
	Reason   CloseReason             `json:"reason,omitempty"`
	Message  string                  `json:"message"`
	Time     int64                   `json:"time"`
}

// PatternNames returns the names carried by the signal
func (s Signal) PatternNames() []string {
	names := make([]string, 0, len(s.Patterns))
	for _, p := range s.Patterns {
		names = append(names, string(p.Name))
	}
	return names
}

func floatPtr(v float64) *float64 {
	return &v
}
