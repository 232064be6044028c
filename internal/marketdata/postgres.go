package marketdata

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/screener/internal/contracts"
	"github.com/wonny/screener/pkg/logger"
)

// PostgresSource reads daily bars from data.daily_prices
// ⭐ SSOT: 가격 데이터 저장소는 여기서만
type PostgresSource struct {
	pool   *pgxpool.Pool
	logger *logger.Logger
}

// NewPostgresSource creates a new Postgres history source
func NewPostgresSource(pool *pgxpool.Pool, log *logger.Logger) *PostgresSource {
	return &PostgresSource{pool: pool, logger: log}
}

// FetchHistory returns the most recent minBars bars in ascending date order
func (s *PostgresSource) FetchHistory(ctx context.Context, symbol string, minBars int) (*contracts.PriceHistory, error) {
	query := `
		SELECT trade_date, open_price, high_price, low_price, close_price, volume
		FROM (
			SELECT trade_date, open_price, high_price, low_price, close_price, volume
			FROM data.daily_prices
			WHERE stock_code = $1
			ORDER BY trade_date DESC
			LIMIT $2
		) recent
		ORDER BY trade_date ASC
	`

	rows, err := s.pool.Query(ctx, query, symbol, minBars)
	if err != nil {
		return nil, fmt.Errorf("query prices for %s: %w", symbol, err)
	}
	defer rows.Close()

	h := &contracts.PriceHistory{Symbol: symbol}
	for rows.Next() {
		var bar contracts.PriceBar
		if err := rows.Scan(&bar.Date, &bar.Open, &bar.High, &bar.Low, &bar.Close, &bar.Volume); err != nil {
			return nil, fmt.Errorf("scan price row for %s: %w", symbol, err)
		}
		h.Bars = append(h.Bars, bar)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate prices for %s: %w", symbol, err)
	}

	if h.IsEmpty() {
		return nil, fmt.Errorf("%s: %w", symbol, contracts.ErrNotFound)
	}
	if err := h.Validate(); err != nil {
		return nil, fmt.Errorf("invalid stored history: %w", err)
	}
	return h, nil
}

// SaveBars upserts a history into data.daily_prices in one batch
func (s *PostgresSource) SaveBars(ctx context.Context, history *contracts.PriceHistory) error {
	if history.IsEmpty() {
		return nil
	}

	query := `
		INSERT INTO data.daily_prices (stock_code, trade_date, open_price, high_price, low_price, close_price, volume)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (stock_code, trade_date) DO UPDATE SET
			open_price = EXCLUDED.open_price,
			high_price = EXCLUDED.high_price,
			low_price = EXCLUDED.low_price,
			close_price = EXCLUDED.close_price,
			volume = EXCLUDED.volume
	`

	batch := &pgx.Batch{}
	for _, bar := range history.Bars {
		batch.Queue(query, history.Symbol, bar.Date, bar.Open, bar.High, bar.Low, bar.Close, bar.Volume)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range history.Bars {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("upsert prices for %s: %w", history.Symbol, err)
		}
	}

	s.logger.WithFields(map[string]interface{}{
		"stock_code": history.Symbol,
		"count":      history.Len(),
	}).Debug("Saved price bars")
	return nil
}
