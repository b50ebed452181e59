package database

import (
	"errors"
	"time"

	"harmonic-signals/internal/strategy"
)

// ErrNotFound is returned when a requested row does not exist
var ErrNotFound = errors.New("not found")

// SignalRecord is a journaled strategy signal
type SignalRecord struct {
	ID           int64     `json:"id"`
	Symbol       string    `json:"symbol"`
	Interval     string    `json:"interval"`
	StrategyName string    `json:"strategy_name"`
	SignalType   string    `json:"signal_type"`
	Price        float64   `json:"price"`
	TPLevel      *float64  `json:"tp_level,omitempty"`
	SLLevel      *float64  `json:"sl_level,omitempty"`
	Patterns     []string  `json:"patterns"`
	Reason       string    `json:"reason,omitempty"`
	Message      string    `json:"message"`
	CandleTime   time.Time `json:"candle_time"`
	CreatedAt    time.Time `json:"created_at"`
}

// NewSignalRecord converts a strategy signal for the journal. The candle
// time is taken as Unix milliseconds.
func NewSignalRecord(symbol, interval, strategyName string, sig strategy.Signal) *SignalRecord {
	rec := &SignalRecord{
		Symbol:       symbol,
		Interval:     interval,
		StrategyName: strategyName,
		SignalType:   string(sig.Type),
		Price:        sig.Price,
		TPLevel:      sig.TPLevel,
		SLLevel:      sig.SLLevel,
		Patterns:     sig.PatternNames(),
		Reason:       string(sig.Reason),
		Message:      sig.Message,
		CandleTime:   time.UnixMilli(sig.Time).UTC(),
	}
	if rec.Patterns == nil {
		rec.Patterns = []string{}
	}
	return rec
}

// TradeStateRecord is the persisted trade state of one stream
type TradeStateRecord struct {
	Symbol      string    `json:"symbol"`
	Interval    string    `json:"interval"`
	InBuyTrade  bool      `json:"in_buy_trade"`
	InSellTrade bool      `json:"in_sell_trade"`
	BuyTPLevel  *float64  `json:"buy_tp_level,omitempty"`
	BuySLLevel  *float64  `json:"buy_sl_level,omitempty"`
	SellTPLevel *float64  `json:"sell_tp_level,omitempty"`
	SellSLLevel *float64  `json:"sell_sl_level,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewTradeStateRecord converts a strategy trade state for storage
func NewTradeStateRecord(symbol, interval string, state strategy.TradeState) *TradeStateRecord {
	s := state.Clone()
	return &TradeStateRecord{
		Symbol:      symbol,
		Interval:    interval,
		InBuyTrade:  s.InBuyTrade,
		InSellTrade: s.InSellTrade,
		BuyTPLevel:  s.BuyTPLevel,
		BuySLLevel:  s.BuySLLevel,
		SellTPLevel: s.SellTPLevel,
		SellSLLevel: s.SellSLLevel,
	}
}

// TradeState converts the record back to a strategy trade state
func (r *TradeStateRecord) TradeState() strategy.TradeState {
	return strategy.TradeState{
		InBuyTrade:  r.InBuyTrade,
		InSellTrade: r.InSellTrade,
		BuyTPLevel:  r.BuyTPLevel,
		BuySLLevel:  r.BuySLLevel,
		SellTPLevel: r.SellTPLevel,
		SellSLLevel: r.SellSLLevel,
	}.Clone()
}
