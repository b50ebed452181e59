package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"harmonic-signals/internal/strategy"
)

// Repository provides data access methods
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// HealthCheck performs a database health check
func (r *Repository) HealthCheck(ctx context.Context) error {
	return r.db.Pool.Ping(ctx)
}

// ============================================================================
// SIGNALS
// ============================================================================

// CreateSignal inserts a signal into the journal
func (r *Repository) CreateSignal(ctx context.Context, rec *SignalRecord) error {
	query := `
		INSERT INTO harmonic_signals (symbol, interval, strategy_name, signal_type, price, tp_level, sl_level, patterns, reason, message, candle_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), $10, $11)
		RETURNING id, created_at
	`
	return r.db.Pool.QueryRow(
		ctx, query,
		rec.Symbol, rec.Interval, rec.StrategyName, rec.SignalType, rec.Price,
		rec.TPLevel, rec.SLLevel, rec.Patterns, rec.Reason, rec.Message, rec.CandleTime,
	).Scan(&rec.ID, &rec.CreatedAt)
}

// GetRecentSignals returns the newest signals first. Empty symbol or
// interval match every stream.
func (r *Repository) GetRecentSignals(ctx context.Context, symbol, interval string, limit int) ([]SignalRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, symbol, interval, strategy_name, signal_type, price, tp_level, sl_level,
		       patterns, COALESCE(reason, ''), COALESCE(message, ''), candle_time, created_at
		FROM harmonic_signals
		WHERE ($1 = '' OR symbol = $1) AND ($2 = '' OR interval = $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`

	rows, err := r.db.Pool.Query(ctx, query, symbol, interval, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query signals: %w", err)
	}
	defer rows.Close()

	signals := make([]SignalRecord, 0)
	for rows.Next() {
		var s SignalRecord
		if err := rows.Scan(
			&s.ID, &s.Symbol, &s.Interval, &s.StrategyName, &s.SignalType, &s.Price,
			&s.TPLevel, &s.SLLevel, &s.Patterns, &s.Reason, &s.Message, &s.CandleTime, &s.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan signal: %w", err)
		}
		signals = append(signals, s)
	}

	return signals, rows.Err()
}

// ============================================================================
// TRADE STATES
// ============================================================================

// SaveTradeState upserts the trade state of one stream
func (r *Repository) SaveTradeState(ctx context.Context, symbol, interval string, state strategy.TradeState) error {
	rec := NewTradeStateRecord(symbol, interval, state)

	query := `
		INSERT INTO harmonic_trade_states (
			symbol, interval, in_buy_trade, in_sell_trade,
			buy_tp_level, buy_sl_level, sell_tp_level, sell_sl_level, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, CURRENT_TIMESTAMP)
		ON CONFLICT (symbol, interval) DO UPDATE SET
			in_buy_trade = EXCLUDED.in_buy_trade,
			in_sell_trade = EXCLUDED.in_sell_trade,
			buy_tp_level = EXCLUDED.buy_tp_level,
			buy_sl_level = EXCLUDED.buy_sl_level,
			sell_tp_level = EXCLUDED.sell_tp_level,
			sell_sl_level = EXCLUDED.sell_sl_level,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.Pool.Exec(ctx, query,
		rec.Symbol, rec.Interval, rec.InBuyTrade, rec.InSellTrade,
		rec.BuyTPLevel, rec.BuySLLevel, rec.SellTPLevel, rec.SellSLLevel,
	)
	if err != nil {
		return fmt.Errorf("failed to save trade state: %w", err)
	}
	return nil
}

// GetTradeState loads the trade state of one stream. ErrNotFound is
// returned when the stream has never been saved.
func (r *Repository) GetTradeState(ctx context.Context, symbol, interval string) (strategy.TradeState, error) {
	query := `
		SELECT symbol, interval, in_buy_trade, in_sell_trade,
		       buy_tp_level, buy_sl_level, sell_tp_level, sell_sl_level, updated_at
		FROM harmonic_trade_states
		WHERE symbol = $1 AND interval = $2
	`

	var rec TradeStateRecord
	err := r.db.Pool.QueryRow(ctx, query, symbol, interval).Scan(
		&rec.Symbol, &rec.Interval, &rec.InBuyTrade, &rec.InSellTrade,
		&rec.BuyTPLevel, &rec.BuySLLevel, &rec.SellTPLevel, &rec.SellSLLevel, &rec.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return strategy.TradeState{}, ErrNotFound
	}
	if err != nil {
		return strategy.TradeState{}, fmt.Errorf("failed to get trade state: %w", err)
	}

	return rec.TradeState(), nil
}

// DeleteTradeState removes the saved trade state of one stream
func (r *Repository) DeleteTradeState(ctx context.Context, symbol, interval string) error {
	_, err := r.db.Pool.Exec(ctx,
		`DELETE FROM harmonic_trade_states WHERE symbol = $1 AND interval = $2`,
		symbol, interval,
	)
	if err != nil {
		return fmt.Errorf("failed to delete trade state: %w", err)
	}
	return nil
}
