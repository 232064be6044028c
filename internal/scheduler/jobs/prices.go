package jobs

import (
	"context"
	"fmt"
	"sync"

	"github.com/wonny/screener/internal/contracts"
	"github.com/wonny/screener/pkg/logger"
)

// PriceSink stores fetched bars
type PriceSink interface {
	SaveBars(ctx context.Context, history *contracts.PriceHistory) error
}

// PriceSyncResult counts the outcome of one sync run
type PriceSyncResult struct {
	Symbols int
	Saved   int
	Bars    int
	Failed  map[string]error
}

// PriceSyncJob copies daily bars from a remote source into Postgres so
// scans can read them locally
// ⭐ SSOT: 일봉 수집 스케줄은 이 Job에서만
type PriceSyncJob struct {
	universe contracts.SymbolProvider
	source   contracts.HistorySource
	sink     PriceSink
	filter   contracts.SymbolFilter
	bars     int
	workers  int
	logger   *logger.Logger
}

// NewPriceSyncJob creates a new price sync job. bars is the history depth
// requested per symbol.
func NewPriceSyncJob(
	universe contracts.SymbolProvider,
	source contracts.HistorySource,
	sink PriceSink,
	filter contracts.SymbolFilter,
	bars, workers int,
	log *logger.Logger,
) *PriceSyncJob {
	if workers < 1 {
		workers = 1
	}
	return &PriceSyncJob{
		universe: universe,
		source:   source,
		sink:     sink,
		filter:   filter,
		bars:     bars,
		workers:  workers,
		logger:   log,
	}
}

// Name returns the job name
func (j *PriceSyncJob) Name() string {
	return "price_sync"
}

// Schedule returns the cron schedule (weekdays at 4 PM, after the close)
func (j *PriceSyncJob) Schedule() string {
	return "0 0 16 * * 1-5"
}

// Run syncs every symbol and fails only when nothing could be saved
func (j *PriceSyncJob) Run(ctx context.Context) error {
	res, err := j.Sync(ctx)
	if err != nil {
		return err
	}
	if res.Symbols > 0 && res.Saved == 0 {
		return fmt.Errorf("price sync failed for all %d symbols", res.Symbols)
	}
	return nil
}

// Sync fetches and stores bars for the filtered universe
func (j *PriceSyncJob) Sync(ctx context.Context) (*PriceSyncResult, error) {
	j.logger.Info("Starting price sync")

	symbols, err := j.universe.ListSymbols(ctx, j.filter)
	if err != nil {
		return nil, fmt.Errorf("list symbols: %w", err)
	}

	type outcome struct {
		symbol string
		bars   int
		err    error
	}

	symbolCh := make(chan string)
	resultCh := make(chan outcome)

	var wg sync.WaitGroup
	for i := 0; i < j.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for sym := range symbolCh {
				n, err := j.syncOne(ctx, sym)
				resultCh <- outcome{symbol: sym, bars: n, err: err}
			}
		}()
	}

	go func() {
		defer close(symbolCh)
		for _, sym := range symbols {
			select {
			case symbolCh <- sym:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	res := &PriceSyncResult{Symbols: len(symbols), Failed: make(map[string]error)}
	for o := range resultCh {
		if o.err != nil {
			res.Failed[o.symbol] = o.err
			j.logger.WithSymbol(o.symbol).WithError(o.err).Warn("Price sync failed")
			continue
		}
		res.Saved++
		res.Bars += o.bars
	}

	if err := ctx.Err(); err != nil {
		return res, err
	}

	j.logger.WithFields(map[string]interface{}{
		"symbols": res.Symbols,
		"saved":   res.Saved,
		"bars":    res.Bars,
		"failed":  len(res.Failed),
	}).Info("Price sync completed")

	return res, nil
}

func (j *PriceSyncJob) syncOne(ctx context.Context, symbol string) (int, error) {
	history, err := j.source.FetchHistory(ctx, symbol, j.bars)
	if err != nil {
		return 0, fmt.Errorf("fetch: %w", err)
	}
	if err := history.Validate(); err != nil {
		return 0, err
	}
	if err := j.sink.SaveBars(ctx, history); err != nil {
		return 0, fmt.Errorf("save: %w", err)
	}
	return history.Len(), nil
}
