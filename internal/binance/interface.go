package binance

import "context"

// KlineSource defines the market data the scanner and backtester need
type KlineSource interface {
	GetKlines(ctx context.Context, symbol, interval string, limit int) ([]Kline, error)
}

// Ensure both Client and MockClient implement KlineSource
var _ KlineSource = (*Client)(nil)
var _ KlineSource = (*MockClient)(nil)
