package jobs

import (
	"context"
	"fmt"
	"sync"

	"github.com/wonny/screener/internal/contracts"
	"github.com/wonny/screener/internal/scanner"
	"github.com/wonny/screener/pkg/logger"
)

// ScanJob scans the universe and stores the report
// ⭐ SSOT: 정기 스캔 스케줄은 이 Job에서만
type ScanJob struct {
	scanner  *scanner.Scanner
	universe contracts.SymbolProvider
	store    contracts.ReportStore // optional
	opts     scanner.Options
	filter   contracts.SymbolFilter
	schedule string
	logger   *logger.Logger

	mu   sync.Mutex
	last *contracts.ScanReport
}

// NewScanJob creates a new scan job
func NewScanJob(
	sc *scanner.Scanner,
	universe contracts.SymbolProvider,
	store contracts.ReportStore,
	opts scanner.Options,
	filter contracts.SymbolFilter,
	schedule string,
	log *logger.Logger,
) *ScanJob {
	return &ScanJob{
		scanner:  sc,
		universe: universe,
		store:    store,
		opts:     opts,
		filter:   filter,
		schedule: schedule,
		logger:   log,
	}
}

// Name returns the job name
func (j *ScanJob) Name() string {
	return "daily_scan"
}

// Schedule returns the configured cron schedule
func (j *ScanJob) Schedule() string {
	return j.schedule
}

// LastReport returns the report of the latest successful run
func (j *ScanJob) LastReport() *contracts.ScanReport {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.last
}

// Run lists symbols, scans them and saves the report
func (j *ScanJob) Run(ctx context.Context) error {
	j.logger.Info("Starting scheduled scan")

	// 1. Universe
	symbols, err := j.universe.ListSymbols(ctx, j.filter)
	if err != nil {
		return fmt.Errorf("list symbols: %w", err)
	}
	if len(symbols) == 0 {
		return fmt.Errorf("universe is empty")
	}

	// 2. Scan
	report, err := j.scanner.Scan(ctx, symbols, j.opts)
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("scan interrupted: %w", err)
	}

	// 3. Persist
	if j.store != nil {
		if err := j.store.SaveReport(ctx, report); err != nil {
			return fmt.Errorf("save report: %w", err)
		}
	}
	j.mu.Lock()
	j.last = report
	j.mu.Unlock()

	fields := map[string]interface{}{
		"run_id":    report.RunID,
		"total":     report.Stats.TotalSymbols,
		"qualified": report.Stats.Qualified,
		"skipped":   report.Stats.Skipped,
	}
	if len(report.Results) > 0 {
		fields["top_symbol"] = report.Results[0].Symbol
		fields["top_score"] = report.Results[0].CompositeScore
	}
	j.logger.WithFields(fields).Info("Scheduled scan completed")

	return nil
}
