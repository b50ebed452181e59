package strategy

import (
	"math"
	"reflect"
	"sync"
	"testing"

	"harmonic-signals/config"
	"harmonic-signals/internal/patterns"
)

// gartleySeries produces pivots X=100, A=200, B=140, C=170, D=120 and closes at 135,
// inside the default entry window (D + 0.382*50 = 139.1).
func gartleySeries() []patterns.Candle {
	return []patterns.Candle{
		{Open: 110, High: 112, Low: 100, Close: 105, Time: 1},
		{Open: 105, High: 200, Low: 104, Close: 190, Time: 2},
		{Open: 190, High: 195, Low: 140, Close: 150, Time: 3},
		{Open: 150, High: 170, Low: 145, Close: 165, Time: 4},
		{Open: 165, High: 168, Low: 120, Close: 125, Time: 5},
		{Open: 125, High: 138, Low: 122, Close: 135, Time: 6},
	}
}

func mirror(candles []patterns.Candle, pivot float64) []patterns.Candle {
	out := make([]patterns.Candle, len(candles))
	for i, c := range candles {
		out[i] = patterns.Candle{Open: pivot - c.Open, High: pivot - c.Low, Low: pivot - c.High, Close: pivot - c.Close, Time: c.Time}
	}
	return out
}

func withCandle(candles []patterns.Candle, c patterns.Candle) []patterns.Candle {
	out := make([]patterns.Candle, len(candles), len(candles)+1)
	copy(out, candles)
	return append(out, c)
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func signalTypes(signals []Signal) []SignalType {
	types := make([]SignalType, 0, len(signals))
	for _, s := range signals {
		types = append(types, s.Type)
	}
	return types
}

// TestAnalyzeOpensBuy tests the flat -> open transition on a bullish match
func TestAnalyzeOpensBuy(t *testing.T) {
	s := NewHarmonicStrategy("BTCUSDT", "1h", DefaultConfig())
	result := s.Analyze(gartleySeries())

	if len(result.Signals) != 1 || result.Signals[0].Type != SignalBuy {
		t.Fatalf("Expected a single buy signal, got %v", signalTypes(result.Signals))
	}

	sig := result.Signals[0]
	if sig.Price != 135 {
		t.Errorf("Expected buy at close 135, got %f", sig.Price)
	}
	if sig.TPLevel == nil || !approx(*sig.TPLevel, 120+50*0.618) {
		t.Errorf("Unexpected TP level %v", sig.TPLevel)
	}
	if sig.SLLevel == nil || !approx(*sig.SLLevel, 120-50*0.236) {
		t.Errorf("Unexpected SL level %v", sig.SLLevel)
	}
	if len(sig.Patterns) == 0 {
		t.Error("Buy signal should carry the matched patterns")
	}
	for _, p := range sig.Patterns {
		if p.Type != patterns.Bullish {
			t.Errorf("Buy signal carries non-bullish pattern %+v", p)
		}
	}

	state := result.TradingState
	if !state.InBuyTrade || state.InSellTrade {
		t.Errorf("Expected only a buy trade open, got %+v", state)
	}
	if !state.Valid() {
		t.Errorf("State invariant broken: %+v", state)
	}
	if len(result.ZigzagPoints) != 5 {
		t.Errorf("Expected 5 zigzag points, got %d", len(result.ZigzagPoints))
	}
	if len(result.FibLevels) != len(patterns.CanonicalFibRatios) {
		t.Errorf("Expected all fib levels, got %v", result.FibLevels)
	}
}

// TestAnalyzeOutsideEntryWindow tests that a match alone does not open a trade
func TestAnalyzeOutsideEntryWindow(t *testing.T) {
	candles := gartleySeries()
	candles[5] = patterns.Candle{Open: 125, High: 146, Low: 122, Close: 145, Time: 6}

	s := NewHarmonicStrategy("BTCUSDT", "1h", DefaultConfig())
	result := s.Analyze(candles)

	if len(result.Patterns) == 0 {
		t.Fatal("Expected patterns to be reported")
	}
	if len(result.Signals) != 0 {
		t.Errorf("Close 145 is above the entry window, got %v", signalTypes(result.Signals))
	}
	if result.TradingState.InBuyTrade {
		t.Error("Should NOT be in a buy trade")
	}
}

// TestAnalyzeHoldsBetweenLevels tests that an open buy survives a candle inside TP/SL
func TestAnalyzeHoldsBetweenLevels(t *testing.T) {
	s := NewHarmonicStrategy("BTCUSDT", "1h", DefaultConfig())
	candles := gartleySeries()
	s.Analyze(candles)

	candles = withCandle(candles, patterns.Candle{Open: 135, High: 145, Low: 130, Close: 140, Time: 7})
	result := s.Analyze(candles)

	if len(result.Signals) != 0 {
		t.Errorf("Expected no signals, got %v", signalTypes(result.Signals))
	}
	if !result.TradingState.InBuyTrade {
		t.Error("Buy trade should still be open")
	}
}

// TestAnalyzeBuyTakeProfit tests the open -> flat transition on a TP touch
func TestAnalyzeBuyTakeProfit(t *testing.T) {
	s := NewHarmonicStrategy("BTCUSDT", "1h", DefaultConfig())
	candles := gartleySeries()
	s.Analyze(candles)

	candles = withCandle(candles, patterns.Candle{Open: 135, High: 152, Low: 134, Close: 150, Time: 7})
	result := s.Analyze(candles)

	if len(result.Signals) != 1 || result.Signals[0].Type != SignalBuyClose {
		t.Fatalf("Expected buy_close, got %v", signalTypes(result.Signals))
	}
	if result.Signals[0].Reason != ReasonTakeProfit {
		t.Errorf("Expected take_profit reason, got %s", result.Signals[0].Reason)
	}
	state := result.TradingState
	if state.InBuyTrade || state.BuyTPLevel != nil || state.BuySLLevel != nil {
		t.Errorf("Buy side should be flat and cleared, got %+v", state)
	}

	// still a Gartley, but price has left the entry window
	candles = withCandle(candles, patterns.Candle{Open: 150, High: 153, Low: 149, Close: 151, Time: 8})
	if result := s.Analyze(candles); len(result.Signals) != 0 {
		t.Errorf("Expected no re-entry above the window, got %v", signalTypes(result.Signals))
	}
}

// TestAnalyzeBuyStopLoss tests the open -> flat transition on an SL touch
func TestAnalyzeBuyStopLoss(t *testing.T) {
	s := NewHarmonicStrategy("BTCUSDT", "1h", DefaultConfig())
	candles := gartleySeries()
	s.Analyze(candles)

	candles = withCandle(candles, patterns.Candle{Open: 135, High: 137, Low: 100, Close: 136, Time: 7})
	result := s.Analyze(candles)

	if len(result.Signals) != 1 || result.Signals[0].Type != SignalBuyClose {
		t.Fatalf("Expected buy_close, got %v", signalTypes(result.Signals))
	}
	if result.Signals[0].Reason != ReasonStopLoss {
		t.Errorf("Expected stop_loss reason, got %s", result.Signals[0].Reason)
	}
	if result.TradingState.InBuyTrade {
		t.Error("Buy trade should be closed")
	}
}

// TestAnalyzeBothLevelsTouched tests that take-profit wins when a bar spans both levels
func TestAnalyzeBothLevelsTouched(t *testing.T) {
	s := NewHarmonicStrategy("BTCUSDT", "1h", DefaultConfig())
	candles := gartleySeries()
	s.Analyze(candles)

	candles = withCandle(candles, patterns.Candle{Open: 135, High: 160, Low: 100, Close: 140, Time: 7})
	result := s.Analyze(candles)

	if len(result.Signals) != 1 || result.Signals[0].Reason != ReasonTakeProfit {
		t.Errorf("Expected one take_profit close, got %+v", result.Signals)
	}
}

// TestAnalyzeOpensSell tests the bearish side on a mirrored series
func TestAnalyzeOpensSell(t *testing.T) {
	s := NewHarmonicStrategy("BTCUSDT", "1h", DefaultConfig())
	candles := mirror(gartleySeries(), 300)
	result := s.Analyze(candles)

	if len(result.Signals) != 1 || result.Signals[0].Type != SignalSell {
		t.Fatalf("Expected a single sell signal, got %v", signalTypes(result.Signals))
	}
	sig := result.Signals[0]
	if !approx(*sig.TPLevel, 180-50*0.618) || !approx(*sig.SLLevel, 180+50*0.236) {
		t.Errorf("Unexpected sell levels TP=%f SL=%f", *sig.TPLevel, *sig.SLLevel)
	}
	if !result.TradingState.InSellTrade || result.TradingState.InBuyTrade {
		t.Errorf("Expected only a sell trade open, got %+v", result.TradingState)
	}

	// low reaches TP
	candles = withCandle(candles, patterns.Candle{Open: 165, High: 166, Low: 148, Close: 150, Time: 7})
	result = s.Analyze(candles)
	if len(result.Signals) != 1 || result.Signals[0].Type != SignalSellClose || result.Signals[0].Reason != ReasonTakeProfit {
		t.Errorf("Expected sell_close on TP, got %+v", result.Signals)
	}
	if result.TradingState.InSellTrade {
		t.Error("Sell trade should be closed")
	}
}

// TestAnalyzeIndependentSides tests that a long and a short can be open together
func TestAnalyzeIndependentSides(t *testing.T) {
	s := NewHarmonicStrategy("BTCUSDT", "1h", DefaultConfig())
	err := s.RestoreState(TradeState{InBuyTrade: true, BuyTPLevel: floatPtr(500), BuySLLevel: floatPtr(1)})
	if err != nil {
		t.Fatalf("RestoreState failed: %v", err)
	}

	result := s.Analyze(mirror(gartleySeries(), 300))
	if len(result.Signals) != 1 || result.Signals[0].Type != SignalSell {
		t.Fatalf("Expected a sell while long, got %v", signalTypes(result.Signals))
	}
	if !result.TradingState.InBuyTrade || !result.TradingState.InSellTrade {
		t.Errorf("Expected both sides open, got %+v", result.TradingState)
	}
}

// TestAnalyzeInsufficientPivots tests the empty result on short input
func TestAnalyzeInsufficientPivots(t *testing.T) {
	s := NewHarmonicStrategy("BTCUSDT", "1h", DefaultConfig())

	for _, candles := range [][]patterns.Candle{nil, gartleySeries()[:1], gartleySeries()[:4]} {
		result := s.Analyze(candles)
		if len(result.Signals) != 0 || len(result.Patterns) != 0 || len(result.FibLevels) != 0 {
			t.Errorf("Expected empty result for %d candles, got %+v", len(candles), result)
		}
		if result.Signals == nil || result.Patterns == nil || result.FibLevels == nil {
			t.Error("Empty collections should be non-nil")
		}
	}
	if s.State().InBuyTrade || s.State().InSellTrade {
		t.Error("State should be untouched")
	}
}

// TestAnalyzeDisplayFlags tests ShowPatterns and ShowFib
func TestAnalyzeDisplayFlags(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ShowPatterns = false
	cfg.ShowFib = map[string]bool{"0.618": true}

	s := NewHarmonicStrategy("BTCUSDT", "1h", cfg)
	result := s.Analyze(mirror(gartleySeries(), 300))

	if len(result.Patterns) != 0 {
		t.Errorf("Patterns should be hidden, got %d", len(result.Patterns))
	}
	if len(result.Signals) != 1 || len(result.Signals[0].Patterns) == 0 {
		t.Error("Signals should still carry patterns when display is off")
	}
	if len(result.FibLevels) != 1 {
		t.Fatalf("Expected one fib level, got %v", result.FibLevels)
	}
	if got, want := result.FibLevels["0.618"], 180-math.Abs(180-130)*0.618; got != want {
		t.Errorf("Expected 0.618 level %f, got %f", want, got)
	}
}

// TestResetMatchesFreshInstance tests that reset leaves no residual state
func TestResetMatchesFreshInstance(t *testing.T) {
	used := NewHarmonicStrategy("BTCUSDT", "1h", DefaultConfig())
	used.Analyze(gartleySeries())
	if !used.State().InBuyTrade {
		t.Fatal("Expected an open buy before reset")
	}

	used.Reset()
	if used.State() != (TradeState{}) {
		t.Errorf("Reset should clear state, got %+v", used.State())
	}
	if used.Config().EWRate != DefaultConfig().EWRate {
		t.Error("Reset should keep configuration")
	}

	fresh := NewHarmonicStrategy("BTCUSDT", "1h", DefaultConfig())
	for _, candles := range [][]patterns.Candle{gartleySeries(), mirror(gartleySeries(), 300)} {
		a := used.Analyze(candles)
		b := fresh.Analyze(candles)
		if !reflect.DeepEqual(a, b) {
			t.Errorf("Reset instance diverged from fresh instance:\n%+v\n%+v", a, b)
		}
	}
}

// TestRestoreStateRejectsInvalid tests the level invariant
func TestRestoreStateRejectsInvalid(t *testing.T) {
	s := NewHarmonicStrategy("BTCUSDT", "1h", DefaultConfig())

	invalid := []TradeState{
		{InBuyTrade: true, BuyTPLevel: floatPtr(1)},
		{InSellTrade: true},
		{BuyTPLevel: floatPtr(1), BuySLLevel: floatPtr(2)},
	}
	for _, st := range invalid {
		if err := s.RestoreState(st); err == nil {
			t.Errorf("Expected error for %+v", st)
		}
	}
}

// TestStateIsCopied tests that callers cannot mutate live levels
func TestStateIsCopied(t *testing.T) {
	s := NewHarmonicStrategy("BTCUSDT", "1h", DefaultConfig())
	result := s.Analyze(gartleySeries())

	*result.TradingState.BuyTPLevel = 0
	if *s.State().BuyTPLevel == 0 {
		t.Error("Result state aliases the strategy state")
	}
}

// TestAnalyzeConcurrentCallers tests that a shared instance opens a single position
func TestAnalyzeConcurrentCallers(t *testing.T) {
	s := NewHarmonicStrategy("BTCUSDT", "1h", DefaultConfig())
	candles := gartleySeries()

	var mu sync.Mutex
	buys := 0
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, sig := range s.Analyze(candles).Signals {
				if sig.Type == SignalBuy {
					mu.Lock()
					buys++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	if buys != 1 {
		t.Errorf("Expected exactly one buy, got %d", buys)
	}
}

// TestEvaluate tests the Strategy interface adapter
func TestEvaluate(t *testing.T) {
	var st Strategy = NewHarmonicStrategy("ETHUSDT", "4h", DefaultConfig())

	if st.Name() != "Harmonic-ETHUSDT-4h" || st.GetSymbol() != "ETHUSDT" || st.GetInterval() != "4h" {
		t.Errorf("Unexpected identity %s %s %s", st.Name(), st.GetSymbol(), st.GetInterval())
	}

	signals, err := st.Evaluate(gartleySeries())
	if err != nil {
		t.Fatalf("Evaluate returned error: %v", err)
	}
	if len(signals) != 1 || !signals[0].Type.IsEntry() {
		t.Errorf("Expected one entry signal, got %v", signalTypes(signals))
	}
}

func TestConfigFromSettings(t *testing.T) {
	settings := config.Default().HarmonicConfig
	settings.DojiPolicy = "carry_forward"
	settings.ShowFib = nil

	cfg := ConfigFromSettings(settings)
	if cfg.TradeSize != settings.TradeSize || cfg.EWRate != settings.EWRate || cfg.SLRate != settings.SLRate {
		t.Errorf("Rates not copied: %+v", cfg)
	}
	if cfg.DojiPolicy != patterns.DojiCarryForward {
		t.Errorf("Expected carry-forward doji policy, got %q", cfg.DojiPolicy)
	}
	if len(cfg.ShowFib) != len(patterns.CanonicalFibRatios) {
		t.Errorf("Expected every fib label enabled by default, got %v", cfg.ShowFib)
	}
}
