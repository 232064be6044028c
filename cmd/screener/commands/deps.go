package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wonny/screener/internal/contracts"
	"github.com/wonny/screener/internal/marketdata"
	"github.com/wonny/screener/internal/rules"
	"github.com/wonny/screener/internal/scanner"
	"github.com/wonny/screener/internal/scheduler/jobs"
	"github.com/wonny/screener/internal/selection"
	"github.com/wonny/screener/internal/universe"
	"github.com/wonny/screener/pkg/config"
	"github.com/wonny/screener/pkg/database"
	"github.com/wonny/screener/pkg/httputil"
	"github.com/wonny/screener/pkg/logger"
	"github.com/wonny/screener/pkg/redis"
)

// runtime holds the wired components shared by commands
type runtime struct {
	cfg    *config.Config
	log    *logger.Logger
	db     *database.DB  // nil without DATABASE_URL
	redis  *redis.Client // disabled client when REDIS_ENABLED=false
	http   *httputil.Client
	repo   *selection.Repository
	engine *selection.Engine
	source contracts.HistorySource
	scan   *scanner.Scanner
}

// loadConfig applies the global flags on top of the environment
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if env != "" {
		cfg.Env = env
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

// newRuntime wires config, logger, storage, market data and the scanner.
// requireDB fails fast when the command cannot work without Postgres.
func newRuntime(ctx context.Context, cfg *config.Config, requireDB bool) (*runtime, error) {
	rt := &runtime{cfg: cfg, log: logger.New(cfg)}
	rt.http = httputil.New(cfg, rt.log)

	// 1. Postgres (optional)
	db, err := database.New(cfg)
	switch {
	case err == nil:
		rt.db = db
		if err := db.EnsureSchema(ctx); err != nil {
			rt.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		rt.repo = selection.NewRepository(db.Pool)
	case errors.Is(err, database.ErrNoDatabaseURL) && !requireDB:
		rt.log.Debug("DATABASE_URL not set, persistence disabled")
	default:
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	// 2. Redis (optional)
	rc, err := redis.New(cfg)
	if err != nil {
		rt.log.WithError(err).Warn("Redis unavailable, history cache disabled")
		rc = &redis.Client{}
	}
	rt.redis = rc

	// 3. Rules
	var overrides map[string]rules.Override
	if cfg.Scan.RulesFile != "" {
		overrides, err = rules.LoadOverrides(cfg.Scan.RulesFile)
		if err != nil {
			rt.Close()
			return nil, err
		}
	}
	registry, err := rules.NewDefaultRegistry(rt.log, overrides)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("build rule registry: %w", err)
	}
	rt.engine = selection.NewEngine(registry, rt.log)

	// 4. Market data
	source, err := rt.historySource(cfg.MarketData.Source)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.source = source
	rt.scan = scanner.New(source, rt.engine, rt.log)

	rt.log.WithFields(map[string]interface{}{
		"marketdata": cfg.MarketData.Source,
		"universe":   cfg.Universe.Source,
		"postgres":   rt.db != nil,
		"redis":      rt.redis.Enabled(),
		"rules":      registry.Names(),
	}).Debug("Runtime initialized")
	return rt, nil
}

// historySource builds the configured source, behind the Redis cache when enabled
func (rt *runtime) historySource(kind string) (contracts.HistorySource, error) {
	var src contracts.HistorySource
	switch kind {
	case "synthetic":
		return marketdata.NewSyntheticSource(rt.cfg.MarketData.MinBars), nil
	case "http":
		src = marketdata.NewHTTPSource(rt.http, rt.cfg.MarketData.BaseURL, rt.log)
	case "postgres":
		if rt.db == nil {
			return nil, fmt.Errorf("market data source postgres requires DATABASE_URL")
		}
		src = marketdata.NewPostgresSource(rt.db.Pool, rt.log)
	default:
		return nil, fmt.Errorf("unknown market data source %q", kind)
	}

	if rt.redis.Enabled() {
		cache := redis.NewCache(rt.redis, "screener:cache")
		src = marketdata.NewCachingSource(src, cache, rt.cfg.MarketData.CacheTTL, rt.log)
	}
	return src, nil
}

// symbolProvider builds the configured universe provider
func (rt *runtime) symbolProvider(kind string, explicit []string) (contracts.SymbolProvider, error) {
	if len(explicit) > 0 {
		return universe.NewStaticProvider(explicit), nil
	}
	switch kind {
	case "static":
		if len(rt.cfg.Universe.Symbols) == 0 {
			return nil, fmt.Errorf("static universe is empty: set UNIVERSE_SYMBOLS or pass --symbols")
		}
		return universe.NewStaticProvider(rt.cfg.Universe.Symbols), nil
	case "postgres":
		if rt.db == nil {
			return nil, fmt.Errorf("universe source postgres requires DATABASE_URL")
		}
		return universe.NewPostgresProvider(rt.db.Pool, rt.log), nil
	case "html":
		if rt.cfg.Universe.ListingURL == "" {
			return nil, fmt.Errorf("universe source html requires UNIVERSE_LISTING_URL")
		}
		return universe.NewHTMLProvider(rt.http, rt.cfg.Universe.ListingURL, rt.log), nil
	default:
		return nil, fmt.Errorf("unknown universe source %q", kind)
	}
}

// priceSyncJob copies HTTP chart data into data.daily_prices
func (rt *runtime) priceSyncJob(provider contracts.SymbolProvider, filter contracts.SymbolFilter) (*jobs.PriceSyncJob, error) {
	if rt.db == nil {
		return nil, fmt.Errorf("price sync requires DATABASE_URL")
	}
	remote := marketdata.NewHTTPSource(rt.http, rt.cfg.MarketData.BaseURL, rt.log)
	sink := marketdata.NewPostgresSource(rt.db.Pool, rt.log)
	return jobs.NewPriceSyncJob(provider, remote, sink, filter, rt.cfg.MarketData.MinBars, rt.cfg.Scan.Workers, rt.log), nil
}

// reportStore returns the persistence layer, or nil when Postgres is off
func (rt *runtime) reportStore() contracts.ReportStore {
	if rt.repo == nil {
		return nil
	}
	return rt.repo
}

// symbolFilter converts universe config to a filter
func (rt *runtime) symbolFilter() contracts.SymbolFilter {
	return contracts.SymbolFilter{
		Markets:   rt.cfg.Universe.Markets,
		ExcludeST: rt.cfg.Universe.ExcludeST,
	}
}

// Close releases connections
func (rt *runtime) Close() {
	if rt.redis != nil {
		_ = rt.redis.Close()
	}
	if rt.db != nil {
		rt.db.Close()
	}
}

// commandTimeout bounds one-shot commands
const commandTimeout = 30 * time.Minute
