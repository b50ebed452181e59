package api

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"harmonic-signals/internal/auth"
	"harmonic-signals/internal/cache"
	"harmonic-signals/internal/logging"
	"harmonic-signals/internal/patterns"
	"harmonic-signals/internal/scanner"
	"harmonic-signals/internal/strategy"

	"github.com/gin-gonic/gin"
)

const (
	defaultSignalLimit = 50
	maxSignalLimit     = 500
)

// AnalyzeRequest is the body of POST /api/harmonic/analyze
type AnalyzeRequest struct {
	Symbol   string            `json:"symbol"`
	Interval string            `json:"interval"`
	Candles  []patterns.Candle `json:"candles"`
	Config   *ConfigOverride   `json:"config,omitempty"`
}

// ConfigOverride replaces individual fields of the default strategy config
type ConfigOverride struct {
	TradeSize    *float64 `json:"trade_size,omitempty"`
	EWRate       *float64 `json:"ew_rate,omitempty"`
	TPRate       *float64 `json:"tp_rate,omitempty"`
	SLRate       *float64 `json:"sl_rate,omitempty"`
	ShowPatterns *bool    `json:"show_patterns,omitempty"`
	ShowFib      []string `json:"show_fib,omitempty"`
	DojiPolicy   *string  `json:"doji_policy,omitempty"`
}

// Apply returns base with the override's non-nil fields replaced
func (o *ConfigOverride) Apply(base strategy.Config) (strategy.Config, error) {
	if o == nil {
		return base, nil
	}
	if o.TradeSize != nil {
		if *o.TradeSize <= 0 {
			return base, fmt.Errorf("trade_size must be positive")
		}
		base.TradeSize = *o.TradeSize
	}
	if o.EWRate != nil {
		base.EWRate = *o.EWRate
	}
	if o.TPRate != nil {
		base.TPRate = *o.TPRate
	}
	if o.SLRate != nil {
		base.SLRate = *o.SLRate
	}
	if o.ShowPatterns != nil {
		base.ShowPatterns = *o.ShowPatterns
	}
	if o.ShowFib != nil {
		enabled := make(map[string]bool, len(o.ShowFib))
		for _, label := range o.ShowFib {
			canonical, ok := patterns.CanonicalFibLabel(label)
			if !ok {
				return base, fmt.Errorf("unknown fib label %q", label)
			}
			enabled[canonical] = true
		}
		base.ShowFib = enabled
	}
	if o.DojiPolicy != nil {
		base.DojiPolicy = patterns.ParseDojiPolicy(*o.DojiPolicy)
	}
	return base, nil
}

// validateCandles rejects bars that cannot come from a real feed
func validateCandles(candles []patterns.Candle) error {
	for i, c := range candles {
		for _, v := range []float64{c.Open, c.High, c.Low, c.Close} {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("candle %d: non-finite price", i)
			}
		}
		if c.High < c.Low {
			return fmt.Errorf("candle %d: high %g below low %g", i, c.High, c.Low)
		}
	}
	return nil
}

// handleAnalyze runs a one-off analysis on posted candles with a fresh
// strategy, so repeated calls never share trade state.
func (s *Server) handleAnalyze(c *gin.Context) {
	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if err := validateCandles(req.Candles); err != nil {
		errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	cfg, err := req.Config.Apply(s.config.AnalyzeDefaults)
	if err != nil {
		errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	strat := strategy.NewHarmonicStrategy(strings.ToUpper(req.Symbol), req.Interval, cfg)
	result := strat.Analyze(req.Candles)

	successResponse(c, result)
}

// handleGetPatterns returns the harmonic rule table for chart legends
func (s *Server) handleGetPatterns(c *gin.Context) {
	successResponse(c, gin.H{
		"patterns":   patterns.Rules(),
		"fib_ratios": patterns.CanonicalFibRatios,
	})
}

// handleGetStreams lists the watched streams
func (s *Server) handleGetStreams(c *gin.Context) {
	streams := s.streams.Streams()
	successResponse(c, gin.H{
		"streams": streams,
		"count":   len(streams),
	})
}

// handleGetStream returns the latest result of one stream, from memory
// first and from the shared cache when this instance has not scanned yet.
func (s *Server) handleGetStream(c *gin.Context) {
	symbol := strings.ToUpper(c.Param("symbol"))
	interval := c.Param("interval")

	latest, err := s.streams.Latest(symbol, interval)
	if err == nil {
		successResponse(c, gin.H{"source": "memory", "stream": latest})
		return
	}

	if errors.Is(err, scanner.ErrUnknownStream) {
		errorResponse(c, http.StatusNotFound, fmt.Sprintf("Stream %s:%s is not watched", symbol, interval))
		return
	}
	if !errors.Is(err, scanner.ErrNoResult) {
		errorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}

	if s.results != nil {
		cached, cacheErr := s.results.GetResult(c.Request.Context(), symbol, interval)
		if cacheErr == nil {
			successResponse(c, gin.H{
				"source": "cache",
				"stream": scanner.StreamResult{Symbol: symbol, Interval: interval, Result: *cached},
			})
			return
		}
		if !errors.Is(cacheErr, cache.ErrCacheMiss) && !errors.Is(cacheErr, cache.ErrCacheUnavailable) {
			s.log.Warn("Result cache read failed", "symbol", symbol, "interval", interval, "error", cacheErr.Error())
		}
	}

	errorResponse(c, http.StatusNotFound, fmt.Sprintf("Stream %s:%s has not been scanned yet", symbol, interval))
}

// handleResetStream flattens one stream's trade state
func (s *Server) handleResetStream(c *gin.Context) {
	symbol := strings.ToUpper(c.Param("symbol"))
	interval := c.Param("interval")

	if err := s.streams.Reset(c.Request.Context(), symbol, interval); err != nil {
		if errors.Is(err, scanner.ErrUnknownStream) {
			errorResponse(c, http.StatusNotFound, fmt.Sprintf("Stream %s:%s is not watched", symbol, interval))
			return
		}
		errorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}

	logging.FromContext(c.Request.Context()).Info("Stream reset via API", "symbol", symbol, "interval", interval, "subject", auth.SubjectFromContext(c))
	successResponse(c, gin.H{"symbol": symbol, "interval": interval, "reset": true})
}

// handleGetSignals returns journaled signals, newest first
func (s *Server) handleGetSignals(c *gin.Context) {
	if s.journal == nil {
		errorResponse(c, http.StatusServiceUnavailable, "Signal journal is disabled")
		return
	}

	limit := defaultSignalLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			errorResponse(c, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	if limit > maxSignalLimit {
		limit = maxSignalLimit
	}

	records, err := s.journal.GetRecentSignals(c.Request.Context(), strings.ToUpper(c.Query("symbol")), c.Query("interval"), limit)
	if err != nil {
		s.log.Error("Failed to load signals", "error", err.Error())
		errorResponse(c, http.StatusInternalServerError, "Failed to load signals")
		return
	}

	successResponse(c, gin.H{
		"signals": records,
		"count":   len(records),
	})
}
