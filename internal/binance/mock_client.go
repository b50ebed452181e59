package binance

import (
	"context"
	"fmt"
	"sync"
)

// MockClient serves fixed kline series for development and tests
type MockClient struct {
	mu     sync.RWMutex
	series map[string][]Kline
	errs   map[string]error
	calls  map[string]int
}

// NewMockClient creates an empty mock client
func NewMockClient() *MockClient {
	return &MockClient{
		series: make(map[string][]Kline),
		errs:   make(map[string]error),
		calls:  make(map[string]int),
	}
}

func mockKey(symbol, interval string) string {
	return symbol + ":" + interval
}

// SetKlines replaces the series returned for symbol/interval
func (mc *MockClient) SetKlines(symbol, interval string, klines []Kline) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.series[mockKey(symbol, interval)] = append([]Kline(nil), klines...)
	delete(mc.errs, mockKey(symbol, interval))
}

// SetError makes every fetch of symbol/interval fail with err
func (mc *MockClient) SetError(symbol, interval string, err error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.errs[mockKey(symbol, interval)] = err
}

// Calls returns how many fetches were made for symbol/interval
func (mc *MockClient) Calls(symbol, interval string) int {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return mc.calls[mockKey(symbol, interval)]
}

// GetKlines returns at most the last limit klines of the configured series
func (mc *MockClient) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]Kline, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()

	key := mockKey(symbol, interval)
	mc.calls[key]++

	if err, ok := mc.errs[key]; ok {
		return nil, err
	}
	series, ok := mc.series[key]
	if !ok {
		return nil, fmt.Errorf("no klines for %s", key)
	}

	if limit > 0 && len(series) > limit {
		series = series[len(series)-limit:]
	}
	return append([]Kline(nil), series...), nil
}
