package universe

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/screener/internal/contracts"
	"github.com/wonny/screener/pkg/logger"
)

// PostgresProvider lists active stocks from data.stocks
// ⭐ SSOT: 종목 마스터 조회는 여기서만
type PostgresProvider struct {
	pool   *pgxpool.Pool
	logger *logger.Logger
}

// NewPostgresProvider creates a new Postgres symbol provider
func NewPostgresProvider(pool *pgxpool.Pool, log *logger.Logger) *PostgresProvider {
	return &PostgresProvider{pool: pool, logger: log}
}

// ListSymbols implements contracts.SymbolProvider
func (p *PostgresProvider) ListSymbols(ctx context.Context, filter contracts.SymbolFilter) ([]string, error) {
	query := `
		SELECT code, name, market
		FROM data.stocks
		WHERE status = 'active'
		  AND (cardinality($1::text[]) = 0 OR market = ANY($1))
		ORDER BY code
	`

	markets := filter.Markets
	if markets == nil {
		markets = []string{}
	}

	rows, err := p.pool.Query(ctx, query, markets)
	if err != nil {
		return nil, fmt.Errorf("query stocks: %w", err)
	}
	defer rows.Close()

	var listings []Listing
	for rows.Next() {
		var l Listing
		if err := rows.Scan(&l.Code, &l.Name, &l.Market); err != nil {
			return nil, fmt.Errorf("scan stock: %w", err)
		}
		listings = append(listings, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stocks: %w", err)
	}

	symbols := Apply(listings, filter)
	p.logger.WithFields(map[string]interface{}{
		"listed":   len(listings),
		"selected": len(symbols),
	}).Debug("Listed symbols")
	return symbols, nil
}

// SaveListings upserts listings as active stocks
func (p *PostgresProvider) SaveListings(ctx context.Context, listings []Listing) error {
	if len(listings) == 0 {
		return nil
	}

	query := `
		INSERT INTO data.stocks (code, name, market, status, updated_at)
		VALUES ($1, $2, $3, 'active', NOW())
		ON CONFLICT (code) DO UPDATE SET
			name = EXCLUDED.name,
			market = EXCLUDED.market,
			status = 'active',
			updated_at = NOW()
	`

	batch := &pgx.Batch{}
	for _, l := range listings {
		batch.Queue(query, l.Code, l.Name, l.Market)
	}

	results := p.pool.SendBatch(ctx, batch)
	defer results.Close()

	for _, l := range listings {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("upsert stock %s: %w", l.Code, err)
		}
	}
	return nil
}
