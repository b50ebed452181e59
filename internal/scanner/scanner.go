package scanner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"harmonic-signals/internal/binance"
	"harmonic-signals/internal/cache"
	"harmonic-signals/internal/database"
	"harmonic-signals/internal/events"
	"harmonic-signals/internal/logging"
	"harmonic-signals/internal/patterns"
	"harmonic-signals/internal/strategy"
)

var _ ResultCache = (*cache.ResultCache)(nil)

// stream is one watched symbol/interval with its own strategy instance
type stream struct {
	key      StreamKey
	strategy *strategy.HarmonicStrategy
	cancel   context.CancelFunc

	mu           sync.RWMutex
	latest       *StreamResult
	lastPatterns string
}

// Scanner polls every watched stream, runs the harmonic strategy on it and
// fans the results out to the event bus, the journal and the result cache.
type Scanner struct {
	source  binance.KlineSource
	store   Store
	cache   ResultCache
	bus     *events.EventBus
	config  Config
	log     *logging.Logger
	mu      sync.RWMutex
	streams map[StreamKey]*stream
	running bool
	runCtx  context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewScanner creates a new scanner. store, resultCache and bus are optional.
func NewScanner(source binance.KlineSource, store Store, resultCache ResultCache, bus *events.EventBus, config Config) *Scanner {
	if config.WorkerCount <= 0 {
		config.WorkerCount = 1
	}
	if config.KlineLimit <= 0 {
		config.KlineLimit = 500
	}
	if config.PollInterval <= 0 {
		config.PollInterval = 30 * time.Second
	}
	return &Scanner{
		source:  source,
		store:   store,
		cache:   resultCache,
		bus:     bus,
		config:  config,
		log:     logging.WithComponent("scanner"),
		streams: make(map[StreamKey]*stream),
	}
}

func newKey(symbol, interval string) StreamKey {
	return StreamKey{Symbol: strings.ToUpper(strings.TrimSpace(symbol)), Interval: strings.TrimSpace(interval)}
}

// AddStream starts watching symbol/interval. It reports false when the
// stream was already watched. On a running scanner the stream's persisted
// state is restored and its poll loop started immediately.
func (sc *Scanner) AddStream(symbol, interval string) (bool, error) {
	key := newKey(symbol, interval)
	if key.Symbol == "" || key.Interval == "" {
		return false, fmt.Errorf("invalid stream %q", key)
	}

	sc.mu.RLock()
	_, exists := sc.streams[key]
	running, runCtx := sc.running, sc.runCtx
	sc.mu.RUnlock()
	if exists {
		return false, nil
	}

	st := &stream{
		key:      key,
		strategy: strategy.NewHarmonicStrategy(key.Symbol, key.Interval, sc.config.Strategy),
	}

	// The store round trip happens before registration, outside sc.mu
	restored := false
	if running {
		sc.restoreState(runCtx, st)
		restored = true
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()

	if _, ok := sc.streams[key]; ok {
		return false, nil
	}
	sc.streams[key] = st

	if sc.running {
		// Start raced with this call and did not see the stream
		if !restored {
			sc.restoreState(sc.runCtx, st)
		}
		sc.startStream(st)
	}

	sc.log.Info("Stream added", "stream", key.String())
	return true, nil
}

// RemoveStream stops watching symbol/interval
func (sc *Scanner) RemoveStream(symbol, interval string) error {
	key := newKey(symbol, interval)

	sc.mu.Lock()
	st, ok := sc.streams[key]
	if ok {
		delete(sc.streams, key)
		if st.cancel != nil {
			st.cancel()
		}
	}
	sc.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownStream, key)
	}

	sc.log.Info("Stream removed", "stream", key.String())
	return nil
}

// Streams returns the watched streams sorted by symbol then interval
func (sc *Scanner) Streams() []StreamKey {
	sc.mu.RLock()
	keys := make([]StreamKey, 0, len(sc.streams))
	for k := range sc.streams {
		keys = append(keys, k)
	}
	sc.mu.RUnlock()

	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Symbol != keys[j].Symbol {
			return keys[i].Symbol < keys[j].Symbol
		}
		return keys[i].Interval < keys[j].Interval
	})
	return keys
}

func (sc *Scanner) lookup(symbol, interval string) (*stream, error) {
	key := newKey(symbol, interval)
	sc.mu.RLock()
	st, ok := sc.streams[key]
	sc.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStream, key)
	}
	return st, nil
}

// Strategy returns the strategy instance of a watched stream
func (sc *Scanner) Strategy(symbol, interval string) (*strategy.HarmonicStrategy, error) {
	st, err := sc.lookup(symbol, interval)
	if err != nil {
		return nil, err
	}
	return st.strategy, nil
}

// Latest returns the last in-memory result of a stream
func (sc *Scanner) Latest(symbol, interval string) (*StreamResult, error) {
	st, err := sc.lookup(symbol, interval)
	if err != nil {
		return nil, err
	}

	st.mu.RLock()
	defer st.mu.RUnlock()
	if st.latest == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoResult, st.key)
	}
	latest := *st.latest
	return &latest, nil
}

// Reset returns one stream to a flat state, dropping its persisted state
// and cached result.
func (sc *Scanner) Reset(ctx context.Context, symbol, interval string) error {
	st, err := sc.lookup(symbol, interval)
	if err != nil {
		return err
	}

	st.strategy.Reset()

	st.mu.Lock()
	st.latest = nil
	st.lastPatterns = ""
	st.mu.Unlock()

	log := logging.StreamContext(st.key.Symbol, st.key.Interval)
	if sc.store != nil {
		if err := sc.store.DeleteTradeState(ctx, st.key.Symbol, st.key.Interval); err != nil {
			log.WithError(err).Warn("Failed to delete persisted trade state")
		}
	}
	if sc.cache != nil {
		if err := sc.cache.Delete(ctx, st.key.Symbol, st.key.Interval); err != nil && !errors.Is(err, cache.ErrCacheUnavailable) {
			log.WithError(err).Warn("Failed to delete cached result")
		}
	}
	if sc.bus != nil {
		sc.bus.PublishStrategyReset(st.key.Symbol, st.key.Interval)
	}

	log.Info("Stream reset")
	return nil
}

// Start restores persisted state and launches one poll loop per stream
func (sc *Scanner) Start(ctx context.Context) {
	if !sc.config.Enabled {
		sc.log.Info("Harmonic scanner is disabled")
		return
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.running {
		return
	}

	sc.runCtx, sc.cancel = context.WithCancel(ctx)
	sc.running = true

	for _, st := range sc.streams {
		sc.restoreState(sc.runCtx, st)
		sc.startStream(st)
	}

	sc.log.Info("Harmonic scanner started", "streams", len(sc.streams), "poll_interval", sc.config.PollInterval.String())
}

// Stop cancels every poll loop and waits for them to exit
func (sc *Scanner) Stop() {
	sc.mu.Lock()
	if !sc.running {
		sc.mu.Unlock()
		return
	}
	sc.running = false
	sc.cancel()
	sc.mu.Unlock()

	sc.wg.Wait()
	sc.log.Info("Harmonic scanner stopped")
}

// startStream launches the poll loop of st; sc.mu must be held
func (sc *Scanner) startStream(st *stream) {
	streamCtx, cancel := context.WithCancel(sc.runCtx)
	st.cancel = cancel

	sc.wg.Add(1)
	go sc.runStreamLoop(streamCtx, st)
}

// runStreamLoop polls one stream at the configured interval
func (sc *Scanner) runStreamLoop(ctx context.Context, st *stream) {
	defer sc.wg.Done()

	ticker := time.NewTicker(sc.config.PollInterval)
	defer ticker.Stop()

	// Run immediately
	sc.scanStream(ctx, st)

	for {
		select {
		case <-ticker.C:
			sc.scanStream(ctx, st)
		case <-ctx.Done():
			return
		}
	}
}

// restoreState loads the persisted trade state of st into its strategy
func (sc *Scanner) restoreState(ctx context.Context, st *stream) {
	if sc.store == nil {
		return
	}

	log := logging.StreamContext(st.key.Symbol, st.key.Interval)
	state, err := sc.store.GetTradeState(ctx, st.key.Symbol, st.key.Interval)
	if errors.Is(err, database.ErrNotFound) {
		return
	}
	if err != nil {
		log.WithError(err).Warn("Failed to load persisted trade state")
		return
	}
	if err := st.strategy.RestoreState(state); err != nil {
		log.WithError(err).Warn("Ignoring persisted trade state")
		return
	}
	log.Info("Restored trade state", "in_buy_trade", state.InBuyTrade, "in_sell_trade", state.InSellTrade)
}

// ScanOnce runs a single cycle over every stream with at most WorkerCount
// concurrent fetches. Per-stream failures are counted, not returned.
func (sc *Scanner) ScanOnce(ctx context.Context) (*ScanSummary, error) {
	summary := &ScanSummary{
		ScanID:    uuid.New().String(),
		StartTime: time.Now(),
	}

	sc.mu.RLock()
	streams := make([]*stream, 0, len(sc.streams))
	for _, st := range sc.streams {
		streams = append(streams, st)
	}
	sc.mu.RUnlock()

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sc.config.WorkerCount)

	for _, st := range streams {
		st := st
		g.Go(func() error {
			res, err := sc.scanStream(gctx, st)

			mu.Lock()
			defer mu.Unlock()
			summary.StreamsScanned++
			if err != nil {
				summary.Errors++
				return nil
			}
			summary.Signals += len(res.Result.Signals)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	summary.EndTime = time.Now()
	summary.Duration = summary.EndTime.Sub(summary.StartTime)
	sc.log.WithDuration(summary.Duration).Debug("Scan completed",
		"scan_id", summary.ScanID, "streams", summary.StreamsScanned, "signals", summary.Signals, "errors", summary.Errors)

	return summary, nil
}

// scanStream fetches candles for one stream, advances its strategy and
// publishes the outcome.
func (sc *Scanner) scanStream(ctx context.Context, st *stream) (*StreamResult, error) {
	log := logging.StreamContext(st.key.Symbol, st.key.Interval)

	klines, err := sc.source.GetKlines(ctx, st.key.Symbol, st.key.Interval, sc.config.KlineLimit)
	if err != nil {
		if ctx.Err() == nil {
			log.WithError(err).Warn("Failed to fetch klines")
			if sc.bus != nil {
				sc.bus.PublishError("scanner", fmt.Sprintf("%s: %v", st.key, err))
			}
		}
		return nil, fmt.Errorf("fetch %s: %w", st.key, err)
	}

	candles := binance.ToCandles(klines)
	result := st.strategy.Analyze(candles)

	res := &StreamResult{
		Symbol:    st.key.Symbol,
		Interval:  st.key.Interval,
		Result:    result,
		Candles:   len(candles),
		UpdatedAt: time.Now(),
	}

	st.mu.Lock()
	st.latest = res
	names := patternKey(result.Patterns)
	patternsChanged := names != st.lastPatterns
	st.lastPatterns = names
	st.mu.Unlock()

	if patternsChanged && len(result.Patterns) > 0 {
		sc.publishPatterns(st.key, result.Patterns)
	}

	if len(result.Signals) > 0 {
		sc.handleSignals(ctx, st, result)
	}

	if sc.cache != nil {
		if err := sc.cache.SetResult(ctx, st.key.Symbol, st.key.Interval, result); err != nil && !errors.Is(err, cache.ErrCacheUnavailable) {
			log.WithError(err).Debug("Failed to cache result")
		}
	}

	return res, nil
}

// handleSignals logs, publishes and journals the signals of one scan and
// persists the resulting trade state.
func (sc *Scanner) handleSignals(ctx context.Context, st *stream, result strategy.Result) {
	name := st.strategy.Name()

	for _, sig := range result.Signals {
		log := logging.SignalContext(st.key.Symbol, st.key.Interval, string(sig.Type), sig.Price)
		log.Info(sig.Message)

		if sc.bus != nil {
			sc.bus.PublishSignal(name, st.key.Symbol, st.key.Interval, string(sig.Type), sig.Message, sig.Price)
			switch sig.Type {
			case strategy.SignalBuy, strategy.SignalSell:
				sc.bus.PublishTradeOpened(st.key.Symbol, st.key.Interval, string(sig.Type), sig.Price, *sig.TPLevel, *sig.SLLevel)
			case strategy.SignalBuyClose:
				sc.bus.PublishTradeClosed(st.key.Symbol, st.key.Interval, string(strategy.SignalBuy), string(sig.Reason), sig.Price)
			case strategy.SignalSellClose:
				sc.bus.PublishTradeClosed(st.key.Symbol, st.key.Interval, string(strategy.SignalSell), string(sig.Reason), sig.Price)
			}
		}

		if sc.store != nil {
			if err := sc.store.CreateSignal(ctx, database.NewSignalRecord(st.key.Symbol, st.key.Interval, name, sig)); err != nil {
				log.WithError(err).Warn("Failed to journal signal")
			}
		}
	}

	if sc.store != nil {
		if err := sc.store.SaveTradeState(ctx, st.key.Symbol, st.key.Interval, result.TradingState); err != nil {
			logging.StreamContext(st.key.Symbol, st.key.Interval).WithError(err).Warn("Failed to persist trade state")
		}
	}
}

func (sc *Scanner) publishPatterns(key StreamKey, matches []patterns.PatternMatch) {
	logging.PatternContext(key.Symbol, key.Interval, string(matches[0].Type)).Info("Harmonic patterns detected", "patterns", patternKey(matches))
	if sc.bus == nil {
		return
	}
	names := make([]string, len(matches))
	for i, m := range matches {
		names[i] = string(m.Name)
	}
	sc.bus.PublishPatternDetected(key.Symbol, key.Interval, names, string(matches[0].Type))
}

// patternKey identifies a match set so unchanged detections are not re-published
func patternKey(matches []patterns.PatternMatch) string {
	if len(matches) == 0 {
		return ""
	}
	names := make([]string, len(matches))
	for i, m := range matches {
		names[i] = string(m.Name)
	}
	return fmt.Sprintf("%s:%s@%g", matches[0].Type, strings.Join(names, ","), matches[0].Points.D)
}
