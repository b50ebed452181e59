package backtest

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"harmonic-signals/internal/logging"
	"harmonic-signals/internal/patterns"
	"harmonic-signals/internal/strategy"
)

// ErrInsufficientCandles is returned when the series cannot hold a pattern
var ErrInsufficientCandles = errors.New("insufficient candles for backtest")

const (
	// DefaultMinWindow is the smallest window that can carry five pivots
	DefaultMinWindow = 5

	// DefaultMaxWindow mirrors the number of klines a live poll fetches
	DefaultMaxWindow = 500

	DefaultInitialCapital = 10000.0
)

// Config holds backtest configuration
type Config struct {
	Symbol         string          `json:"symbol" yaml:"symbol"`
	Interval       string          `json:"interval" yaml:"interval"`
	Strategy       strategy.Config `json:"strategy" yaml:"strategy"`
	MinWindow      int             `json:"min_window" yaml:"min_window"`           // First window size evaluated
	MaxWindow      int             `json:"max_window" yaml:"max_window"`           // Sliding window cap, 0 for unbounded
	InitialCapital float64         `json:"initial_capital" yaml:"initial_capital"` // Base for the equity curve
	Commission     float64         `json:"commission" yaml:"commission"`           // Fee per side as a fraction of notional
}

// Result contains backtest performance metrics
type Result struct {
	Symbol        string                         `json:"symbol" yaml:"symbol"`
	Interval      string                         `json:"interval" yaml:"interval"`
	CandleCount   int                            `json:"candle_count" yaml:"candle_count"`
	TotalTrades   int                            `json:"total_trades" yaml:"total_trades"`
	WinningTrades int                            `json:"winning_trades" yaml:"winning_trades"`
	LosingTrades  int                            `json:"losing_trades" yaml:"losing_trades"`
	WinRate       float64                        `json:"win_rate" yaml:"win_rate"`
	TotalProfit   float64                        `json:"total_profit" yaml:"total_profit"`
	TotalLoss     float64                        `json:"total_loss" yaml:"total_loss"`
	NetProfit     float64                        `json:"net_profit" yaml:"net_profit"`
	ROI           float64                        `json:"roi" yaml:"roi"` // Percent of initial capital
	MaxDrawdown   float64                        `json:"max_drawdown" yaml:"max_drawdown"`
	AverageWin    float64                        `json:"average_win" yaml:"average_win"`
	AverageLoss   float64                        `json:"average_loss" yaml:"average_loss"`
	ProfitFactor  float64                        `json:"profit_factor" yaml:"profit_factor"`
	SharpeRatio   float64                        `json:"sharpe_ratio" yaml:"sharpe_ratio"`
	Trades        []Trade                        `json:"trades" yaml:"trades"`
	OpenTrades    []Trade                        `json:"open_trades" yaml:"open_trades"`
	EquityCurve   []EquityPoint                  `json:"equity_curve" yaml:"equity_curve"`
	PatternStats  map[string]*PatternPerformance `json:"pattern_stats" yaml:"pattern_stats"`
	SignalCounts  map[strategy.SignalType]int    `json:"signal_counts" yaml:"signal_counts"`
}

// Trade represents a single backtest trade
type Trade struct {
	Side       string               `json:"side" yaml:"side"` // "BUY" or "SELL"
	EntryTime  int64                `json:"entry_time" yaml:"entry_time"`
	ExitTime   int64                `json:"exit_time,omitempty" yaml:"exit_time,omitempty"`
	EntryPrice float64              `json:"entry_price" yaml:"entry_price"`
	ExitPrice  float64              `json:"exit_price" yaml:"exit_price"`
	Quantity   float64              `json:"quantity" yaml:"quantity"`
	TakeProfit float64              `json:"take_profit" yaml:"take_profit"`
	StopLoss   float64              `json:"stop_loss" yaml:"stop_loss"`
	Patterns   []string             `json:"patterns" yaml:"patterns"`
	ProfitLoss float64              `json:"profit_loss" yaml:"profit_loss"`
	PLPercent  float64              `json:"pl_percent" yaml:"pl_percent"`
	ExitReason strategy.CloseReason `json:"exit_reason,omitempty" yaml:"exit_reason,omitempty"` // empty while open
}

// EquityPoint represents account balance after a closed trade
type EquityPoint struct {
	Time   int64   `json:"time" yaml:"time"`
	Equity float64 `json:"equity" yaml:"equity"`
}

// PatternPerformance tracks performance by pattern name
type PatternPerformance struct {
	Pattern     string  `json:"pattern" yaml:"pattern"`
	TotalTrades int     `json:"total_trades" yaml:"total_trades"`
	Wins        int     `json:"wins" yaml:"wins"`
	Losses      int     `json:"losses" yaml:"losses"`
	WinRate     float64 `json:"win_rate" yaml:"win_rate"`
	AvgProfit   float64 `json:"avg_profit" yaml:"avg_profit"`
	AvgLoss     float64 `json:"avg_loss" yaml:"avg_loss"`
	NetProfit   float64 `json:"net_profit" yaml:"net_profit"`
}

// Engine replays a candle series through a fresh harmonic strategy
type Engine struct {
	config Config
	log    *logging.Logger
}

// NewEngine creates a new backtest engine, filling unset fields with defaults
func NewEngine(cfg Config) *Engine {
	if cfg.MinWindow < DefaultMinWindow {
		cfg.MinWindow = DefaultMinWindow
	}
	if cfg.MaxWindow < 0 {
		cfg.MaxWindow = 0
	}
	if cfg.MaxWindow > 0 && cfg.MaxWindow < cfg.MinWindow {
		cfg.MaxWindow = cfg.MinWindow
	}
	if cfg.InitialCapital <= 0 {
		cfg.InitialCapital = DefaultInitialCapital
	}
	if cfg.Strategy.TradeSize <= 0 {
		cfg.Strategy = strategy.DefaultConfig()
	}
	return &Engine{
		config: cfg,
		log:    logging.BacktestContext(cfg.Symbol, cfg.Interval),
	}
}

// Config returns the effective configuration
func (e *Engine) Config() Config {
	return e.config
}

// Run executes the harmonic strategy against the candle series
func (e *Engine) Run(candles []patterns.Candle) (*Result, error) {
	strat := strategy.NewHarmonicStrategy(e.config.Symbol, e.config.Interval, e.config.Strategy)
	return e.RunStrategy(strat, candles)
}

// RunStrategy executes any Strategy against the candle series. The
// strategy sees a growing window (capped at MaxWindow) ending at each bar.
func (e *Engine) RunStrategy(strat strategy.Strategy, candles []patterns.Candle) (*Result, error) {
	if len(candles) < e.config.MinWindow {
		return nil, fmt.Errorf("%w: got %d, need at least %d", ErrInsufficientCandles, len(candles), e.config.MinWindow)
	}

	started := time.Now()
	strat.Reset()

	result := &Result{
		Symbol:       strat.GetSymbol(),
		Interval:     strat.GetInterval(),
		CandleCount:  len(candles),
		Trades:       make([]Trade, 0),
		OpenTrades:   make([]Trade, 0),
		EquityCurve:  make([]EquityPoint, 0),
		PatternStats: make(map[string]*PatternPerformance),
		SignalCounts: make(map[strategy.SignalType]int),
	}

	currentEquity := e.config.InitialCapital
	open := map[strategy.SignalType]*Trade{}

	for i := e.config.MinWindow - 1; i < len(candles); i++ {
		start := 0
		if e.config.MaxWindow > 0 && i+1 > e.config.MaxWindow {
			start = i + 1 - e.config.MaxWindow
		}

		signals, err := strat.Evaluate(candles[start : i+1])
		if err != nil {
			return nil, fmt.Errorf("strategy evaluation failed at candle %d: %w", i, err)
		}

		for _, sig := range signals {
			result.SignalCounts[sig.Type]++

			switch sig.Type {
			case strategy.SignalBuy, strategy.SignalSell:
				open[sig.Type] = e.openTrade(sig)

			case strategy.SignalBuyClose, strategy.SignalSellClose:
				entryType := strategy.SignalBuy
				if sig.Type == strategy.SignalSellClose {
					entryType = strategy.SignalSell
				}
				trade, ok := open[entryType]
				if !ok {
					e.log.Warn("Close signal without open trade", "type", string(sig.Type), "time", sig.Time)
					continue
				}
				delete(open, entryType)

				e.closeTrade(trade, sig)
				currentEquity += trade.ProfitLoss
				result.Trades = append(result.Trades, *trade)
				e.updatePatternStats(result, trade)
				result.EquityCurve = append(result.EquityCurve, EquityPoint{
					Time:   trade.ExitTime,
					Equity: currentEquity,
				})
			}
		}
	}

	// Positions still open are reported with their unrealized P&L
	last := candles[len(candles)-1]
	for _, side := range []strategy.SignalType{strategy.SignalBuy, strategy.SignalSell} {
		if trade, ok := open[side]; ok {
			trade.ExitPrice = last.Close
			trade.ProfitLoss, trade.PLPercent = e.profitLoss(trade, last.Close)
			result.OpenTrades = append(result.OpenTrades, *trade)
		}
	}

	e.calculateMetrics(result, currentEquity)

	e.log.WithDuration(time.Since(started)).Info("Backtest completed",
		"candles", len(candles),
		"trades", result.TotalTrades,
		"open_trades", len(result.OpenTrades),
		"net_profit", result.NetProfit)

	return result, nil
}

func (e *Engine) openTrade(sig strategy.Signal) *Trade {
	side := "BUY"
	if sig.Type == strategy.SignalSell {
		side = "SELL"
	}
	trade := &Trade{
		Side:       side,
		EntryTime:  sig.Time,
		EntryPrice: sig.Price,
		Quantity:   e.config.Strategy.TradeSize,
		Patterns:   sig.PatternNames(),
	}
	if sig.TPLevel != nil {
		trade.TakeProfit = *sig.TPLevel
	}
	if sig.SLLevel != nil {
		trade.StopLoss = *sig.SLLevel
	}
	return trade
}

// closeTrade fills the exit at the level that was touched
func (e *Engine) closeTrade(trade *Trade, sig strategy.Signal) {
	exitPrice := sig.Price
	switch sig.Reason {
	case strategy.ReasonTakeProfit:
		exitPrice = trade.TakeProfit
	case strategy.ReasonStopLoss:
		exitPrice = trade.StopLoss
	}

	trade.ExitTime = sig.Time
	trade.ExitPrice = exitPrice
	trade.ExitReason = sig.Reason
	trade.ProfitLoss, trade.PLPercent = e.profitLoss(trade, exitPrice)
}

func (e *Engine) profitLoss(trade *Trade, exitPrice float64) (pl, plPercent float64) {
	priceDiff := exitPrice - trade.EntryPrice
	if trade.Side == "SELL" {
		priceDiff = -priceDiff
	}
	grossPL := priceDiff * trade.Quantity
	commission := (trade.EntryPrice * trade.Quantity * e.config.Commission) +
		(exitPrice * trade.Quantity * e.config.Commission)
	pl = grossPL - commission
	if trade.EntryPrice != 0 {
		plPercent = (priceDiff / trade.EntryPrice) * 100
	}
	return pl, plPercent
}

// updatePatternStats credits a closed trade to every pattern that opened it
func (e *Engine) updatePatternStats(result *Result, trade *Trade) {
	for _, name := range trade.Patterns {
		stats, exists := result.PatternStats[name]
		if !exists {
			stats = &PatternPerformance{Pattern: name}
			result.PatternStats[name] = stats
		}

		stats.TotalTrades++
		if trade.ProfitLoss > 0 {
			stats.Wins++
			stats.AvgProfit = ((stats.AvgProfit * float64(stats.Wins-1)) + trade.ProfitLoss) / float64(stats.Wins)
		} else {
			stats.Losses++
			stats.AvgLoss = ((stats.AvgLoss * float64(stats.Losses-1)) + trade.ProfitLoss) / float64(stats.Losses)
		}
		stats.NetProfit += trade.ProfitLoss
		stats.WinRate = (float64(stats.Wins) / float64(stats.TotalTrades)) * 100
	}
}

// calculateMetrics calculates final backtest metrics over closed trades
func (e *Engine) calculateMetrics(result *Result, finalEquity float64) {
	result.TotalTrades = len(result.Trades)

	for _, trade := range result.Trades {
		if trade.ProfitLoss > 0 {
			result.WinningTrades++
			result.TotalProfit += trade.ProfitLoss
		} else {
			result.LosingTrades++
			result.TotalLoss += math.Abs(trade.ProfitLoss)
		}
	}

	if result.TotalTrades > 0 {
		result.WinRate = (float64(result.WinningTrades) / float64(result.TotalTrades)) * 100
	}

	if result.WinningTrades > 0 {
		result.AverageWin = result.TotalProfit / float64(result.WinningTrades)
	}
	if result.LosingTrades > 0 {
		result.AverageLoss = result.TotalLoss / float64(result.LosingTrades)
	}

	result.NetProfit = finalEquity - e.config.InitialCapital
	result.ROI = (result.NetProfit / e.config.InitialCapital) * 100

	// Profit factor stays 0 without losses so the result encodes as JSON
	if result.TotalLoss > 0 {
		result.ProfitFactor = result.TotalProfit / result.TotalLoss
	}

	result.MaxDrawdown = calculateMaxDrawdown(e.config.InitialCapital, result.EquityCurve)
	result.SharpeRatio = calculateSharpeRatio(result.Trades)
}

// calculateMaxDrawdown returns the largest peak-to-trough equity drop in percent
func calculateMaxDrawdown(initial float64, equityCurve []EquityPoint) float64 {
	maxDrawdown := 0.0
	peak := initial

	for _, point := range equityCurve {
		if point.Equity > peak {
			peak = point.Equity
		}
		if peak <= 0 {
			continue
		}
		drawdown := ((peak - point.Equity) / peak) * 100
		if drawdown > maxDrawdown {
			maxDrawdown = drawdown
		}
	}

	return maxDrawdown
}

// calculateSharpeRatio calculates risk-adjusted return per trade
func calculateSharpeRatio(trades []Trade) float64 {
	if len(trades) == 0 {
		return 0
	}

	totalReturn := 0.0
	for _, trade := range trades {
		totalReturn += trade.PLPercent
	}
	avgReturn := totalReturn / float64(len(trades))

	variance := 0.0
	for _, trade := range trades {
		diff := trade.PLPercent - avgReturn
		variance += diff * diff
	}
	stdDev := math.Sqrt(variance / float64(len(trades)))

	if stdDev == 0 {
		return 0
	}

	// Sharpe ratio (assuming 0 risk-free rate)
	return avgReturn / stdDev
}

// PatternNames returns the pattern names with stats, sorted
func (r *Result) PatternNames() []string {
	names := make([]string, 0, len(r.PatternStats))
	for name := range r.PatternStats {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
