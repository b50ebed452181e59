package scanner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"harmonic-signals/internal/database"
	"harmonic-signals/internal/strategy"
)

var (
	// ErrUnknownStream is returned for a symbol/interval that is not watched
	ErrUnknownStream = errors.New("unknown stream")

	// ErrNoResult is returned when a watched stream has not been scanned yet
	ErrNoResult = errors.New("stream has not been scanned yet")
)

// StreamKey identifies one symbol/interval stream
type StreamKey struct {
	Symbol   string `json:"symbol"`
	Interval string `json:"interval"`
}

func (k StreamKey) String() string {
	return fmt.Sprintf("%s:%s", k.Symbol, k.Interval)
}

// StreamResult is the latest analysis of one stream
type StreamResult struct {
	Symbol    string          `json:"symbol"`
	Interval  string          `json:"interval"`
	Result    strategy.Result `json:"result"`
	Candles   int             `json:"candles"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// ScanSummary aggregates one ScanOnce pass over every stream
type ScanSummary struct {
	ScanID         string        `json:"scan_id"`
	StartTime      time.Time     `json:"start_time"`
	EndTime        time.Time     `json:"end_time"`
	Duration       time.Duration `json:"duration"`
	StreamsScanned int           `json:"streams_scanned"`
	Signals        int           `json:"signals"`
	Errors         int           `json:"errors"`
}

// Config holds scanner configuration
type Config struct {
	Enabled      bool
	PollInterval time.Duration
	KlineLimit   int
	WorkerCount  int
	Strategy     strategy.Config
}

// Store persists signals and trade state. *database.Repository satisfies it.
type Store interface {
	CreateSignal(ctx context.Context, rec *database.SignalRecord) error
	SaveTradeState(ctx context.Context, symbol, interval string, state strategy.TradeState) error
	GetTradeState(ctx context.Context, symbol, interval string) (strategy.TradeState, error)
	DeleteTradeState(ctx context.Context, symbol, interval string) error
}

// ResultCache publishes the latest result of each stream. *cache.ResultCache satisfies it.
type ResultCache interface {
	SetResult(ctx context.Context, symbol, interval string, result strategy.Result) error
	Delete(ctx context.Context, symbol, interval string) error
}

var _ Store = (*database.Repository)(nil)
