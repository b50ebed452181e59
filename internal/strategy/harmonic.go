package strategy

import (
	"fmt"
	"strings"
	"sync"

	"harmonic-signals/config"
	"harmonic-signals/internal/patterns"
)

// Config configures a harmonic strategy instance
type Config struct {
	TradeSize    float64             `json:"trade_size" yaml:"trade_size"`
	EWRate       float64             `json:"ew_rate" yaml:"ew_rate"` // entry window rate on the C->D leg
	TPRate       float64             `json:"tp_rate" yaml:"tp_rate"` // take-profit rate on the C->D leg
	SLRate       float64             `json:"sl_rate" yaml:"sl_rate"` // stop-loss rate, negative extends past D
	ShowPatterns bool                `json:"show_patterns" yaml:"show_patterns"`
	ShowFib      map[string]bool     `json:"show_fib" yaml:"show_fib"`
	DojiPolicy   patterns.DojiPolicy `json:"doji_policy" yaml:"doji_policy"`
}

// DefaultConfig returns the chart defaults
func DefaultConfig() Config {
	return Config{
		TradeSize:    1,
		EWRate:       0.382,
		TPRate:       0.618,
		SLRate:       -0.236,
		ShowPatterns: true,
		ShowFib:      patterns.AllFibLabels(),
		DojiPolicy:   patterns.DojiInclusive,
	}
}

// ConfigFromSettings builds a strategy config from the harmonic section of
// the service configuration
func ConfigFromSettings(h config.HarmonicConfig) Config {
	cfg := Config{
		TradeSize:    h.TradeSize,
		EWRate:       h.EWRate,
		TPRate:       h.TPRate,
		SLRate:       h.SLRate,
		ShowPatterns: h.ShowPatterns,
		ShowFib:      h.ShowFib,
		DojiPolicy:   patterns.ParseDojiPolicy(h.DojiPolicy),
	}
	if cfg.ShowFib == nil {
		cfg.ShowFib = patterns.AllFibLabels()
	}
	return cfg.clone()
}

func (c Config) clone() Config {
	out := c
	if c.ShowFib != nil {
		out.ShowFib = make(map[string]bool, len(c.ShowFib))
		for k, v := range c.ShowFib {
			out.ShowFib[k] = v
		}
	}
	return out
}

// TradeState tracks at most one open long and one open short
type TradeState struct {
	InBuyTrade  bool     `json:"in_buy_trade"`
	InSellTrade bool     `json:"in_sell_trade"`
	BuyTPLevel  *float64 `json:"buy_tp_level"`
	BuySLLevel  *float64 `json:"buy_sl_level"`
	SellTPLevel *float64 `json:"sell_tp_level"`
	SellSLLevel *float64 `json:"sell_sl_level"`
}

// Clone returns a deep copy so callers never alias the live levels
func (s TradeState) Clone() TradeState {
	out := TradeState{InBuyTrade: s.InBuyTrade, InSellTrade: s.InSellTrade}
	if s.BuyTPLevel != nil {
		out.BuyTPLevel = floatPtr(*s.BuyTPLevel)
	}
	if s.BuySLLevel != nil {
		out.BuySLLevel = floatPtr(*s.BuySLLevel)
	}
	if s.SellTPLevel != nil {
		out.SellTPLevel = floatPtr(*s.SellTPLevel)
	}
	if s.SellSLLevel != nil {
		out.SellSLLevel = floatPtr(*s.SellSLLevel)
	}
	return out
}

// Valid reports whether each open side carries both of its levels and each
// flat side carries none.
func (s TradeState) Valid() bool {
	buyLevels := s.BuyTPLevel != nil && s.BuySLLevel != nil
	buyEmpty := s.BuyTPLevel == nil && s.BuySLLevel == nil
	sellLevels := s.SellTPLevel != nil && s.SellSLLevel != nil
	sellEmpty := s.SellTPLevel == nil && s.SellSLLevel == nil

	if s.InBuyTrade != buyLevels || (!s.InBuyTrade && !buyEmpty) {
		return false
	}
	if s.InSellTrade != sellLevels || (!s.InSellTrade && !sellEmpty) {
		return false
	}
	return true
}

// Result is the output of one Analyze call
type Result struct {
	Signals      []Signal                `json:"signals"`
	Patterns     []patterns.PatternMatch `json:"patterns"`
	FibLevels    map[string]float64      `json:"fib_levels"`
	TradingState TradeState              `json:"trading_state"`
	ZigzagPoints []patterns.ZigzagPoint  `json:"zigzag_points"`
}

// HarmonicStrategy detects harmonic patterns on one symbol/interval and
// runs an independent long and short state machine on the matches.
type HarmonicStrategy struct {
	mu       sync.Mutex
	symbol   string
	interval string
	config   Config
	state    TradeState
}

// NewHarmonicStrategy creates a flat strategy for one symbol/interval
func NewHarmonicStrategy(symbol, interval string, cfg Config) *HarmonicStrategy {
	return &HarmonicStrategy{
		symbol:   symbol,
		interval: interval,
		config:   cfg.clone(),
	}
}

func (s *HarmonicStrategy) Name() string {
	return fmt.Sprintf("Harmonic-%s-%s", s.symbol, s.interval)
}

func (s *HarmonicStrategy) GetSymbol() string {
	return s.symbol
}

func (s *HarmonicStrategy) GetInterval() string {
	return s.interval
}

// Config returns a copy of the current configuration
func (s *HarmonicStrategy) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config.clone()
}

// UpdateConfig replaces the configuration; open positions keep their levels
func (s *HarmonicStrategy) UpdateConfig(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config = cfg.clone()
}

// State returns a copy of the trade state
func (s *HarmonicStrategy) State() TradeState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// RestoreState loads a previously persisted trade state. Inconsistent
// states are rejected.
func (s *HarmonicStrategy) RestoreState(state TradeState) error {
	if !state.Valid() {
		return fmt.Errorf("invalid trade state: open side without levels or flat side with levels")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state.Clone()
	return nil
}

// Reset clears the trade state; configuration is kept
func (s *HarmonicStrategy) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = TradeState{}
}

// Evaluate satisfies Strategy
func (s *HarmonicStrategy) Evaluate(candles []patterns.Candle) ([]Signal, error) {
	return s.Analyze(candles).Signals, nil
}

// Analyze runs the full pipeline on the candle window and advances the
// trade state on the last candle. Insufficient input returns empty
// collections and leaves the state alone.
func (s *HarmonicStrategy) Analyze(candles []patterns.Candle) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := Result{
		Signals:      []Signal{},
		Patterns:     []patterns.PatternMatch{},
		FibLevels:    map[string]float64{},
		ZigzagPoints: patterns.Zigzag(candles, s.config.DojiPolicy),
	}

	pivots, ok := patterns.LastPivots(result.ZigzagPoints)
	if !ok {
		result.TradingState = s.state.Clone()
		return result
	}

	ratios := patterns.CalculateRatios(pivots)
	matches := patterns.Classify(ratios, pivots)

	if s.config.ShowPatterns {
		result.Patterns = matches
	}
	result.FibLevels = patterns.FibLevels(pivots.D, pivots.C, s.config.ShowFib)

	current := candles[len(candles)-1]
	result.Signals = s.generateSignals(matches, current, pivots)
	result.TradingState = s.state.Clone()

	return result
}

// generateSignals advances both state machines on the current candle.
// Exits are only checked for positions open before this candle and entries
// only for sides flat before this candle.
func (s *HarmonicStrategy) generateSignals(matches []patterns.PatternMatch, current patterns.Candle, p patterns.Pivots) []Signal {
	signals := []Signal{}
	wasInBuy := s.state.InBuyTrade
	wasInSell := s.state.InSellTrade

	if wasInBuy {
		if sig, ok := s.checkBuyExit(current); ok {
			signals = append(signals, sig)
		}
	}
	if wasInSell {
		if sig, ok := s.checkSellExit(current); ok {
			signals = append(signals, sig)
		}
	}

	if !wasInBuy {
		bullish := patterns.FilterByDirection(matches, patterns.Bullish)
		if len(bullish) > 0 {
			entryWindow := patterns.ProjectLevel(p.D, p.C, s.config.EWRate)
			if current.Close <= entryWindow {
				signals = append(signals, s.openBuy(bullish, current, p))
			}
		}
	}
	if !wasInSell {
		bearish := patterns.FilterByDirection(matches, patterns.Bearish)
		if len(bearish) > 0 {
			entryWindow := patterns.ProjectLevel(p.D, p.C, s.config.EWRate)
			if current.Close >= entryWindow {
				signals = append(signals, s.openSell(bearish, current, p))
			}
		}
	}

	return signals
}

func (s *HarmonicStrategy) openBuy(matches []patterns.PatternMatch, current patterns.Candle, p patterns.Pivots) Signal {
	tp := patterns.ProjectLevel(p.D, p.C, s.config.TPRate)
	sl := patterns.ProjectLevel(p.D, p.C, s.config.SLRate)

	s.state.InBuyTrade = true
	s.state.BuyTPLevel = floatPtr(tp)
	s.state.BuySLLevel = floatPtr(sl)

	return Signal{
		Type:     SignalBuy,
		Price:    current.Close,
		TPLevel:  floatPtr(tp),
		SLLevel:  floatPtr(sl),
		Patterns: matches,
		Message:  fmt.Sprintf("Bullish %s detected. Buy %.4g at %.5f (TP %.5f, SL %.5f)", joinNames(matches), s.config.TradeSize, current.Close, tp, sl),
		Time:     current.Time,
	}
}

func (s *HarmonicStrategy) openSell(matches []patterns.PatternMatch, current patterns.Candle, p patterns.Pivots) Signal {
	tp := patterns.ProjectLevel(p.D, p.C, s.config.TPRate)
	sl := patterns.ProjectLevel(p.D, p.C, s.config.SLRate)

	s.state.InSellTrade = true
	s.state.SellTPLevel = floatPtr(tp)
	s.state.SellSLLevel = floatPtr(sl)

	return Signal{
		Type:     SignalSell,
		Price:    current.Close,
		TPLevel:  floatPtr(tp),
		SLLevel:  floatPtr(sl),
		Patterns: matches,
		Message:  fmt.Sprintf("Bearish %s detected. Sell %.4g at %.5f (TP %.5f, SL %.5f)", joinNames(matches), s.config.TradeSize, current.Close, tp, sl),
		Time:     current.Time,
	}
}

func (s *HarmonicStrategy) checkBuyExit(current patterns.Candle) (Signal, bool) {
	tpHit := current.High >= *s.state.BuyTPLevel
	slHit := current.Low <= *s.state.BuySLLevel
	if !tpHit && !slHit {
		return Signal{}, false
	}

	reason := ReasonStopLoss
	if tpHit {
		reason = ReasonTakeProfit
	}

	sig := Signal{
		Type:    SignalBuyClose,
		Price:   current.Close,
		TPLevel: floatPtr(*s.state.BuyTPLevel),
		SLLevel: floatPtr(*s.state.BuySLLevel),
		Reason:  reason,
		Message: fmt.Sprintf("Buy position closed at %.5f (%s)", current.Close, reason),
		Time:    current.Time,
	}

	s.state.InBuyTrade = false
	s.state.BuyTPLevel = nil
	s.state.BuySLLevel = nil

	return sig, true
}

func (s *HarmonicStrategy) checkSellExit(current patterns.Candle) (Signal, bool) {
	tpHit := current.Low <= *s.state.SellTPLevel
	slHit := current.High >= *s.state.SellSLLevel
	if !tpHit && !slHit {
		return Signal{}, false
	}

	reason := ReasonStopLoss
	if tpHit {
		reason = ReasonTakeProfit
	}

	sig := Signal{
		Type:    SignalSellClose,
		Price:   current.Close,
		TPLevel: floatPtr(*s.state.SellTPLevel),
		SLLevel: floatPtr(*s.state.SellSLLevel),
		Reason:  reason,
		Message: fmt.Sprintf("Sell position closed at %.5f (%s)", current.Close, reason),
		Time:    current.Time,
	}

	s.state.InSellTrade = false
	s.state.SellTPLevel = nil
	s.state.SellSLLevel = nil

	return sig, true
}

func joinNames(matches []patterns.PatternMatch) string {
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, string(m.Name))
	}
	return strings.Join(names, ", ")
}
