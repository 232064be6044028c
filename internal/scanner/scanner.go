// Package scanner runs the rule engine over a symbol universe with a
// bounded worker pool
package scanner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wonny/screener/internal/contracts"
	"github.com/wonny/screener/internal/indicators"
	"github.com/wonny/screener/internal/selection"
	"github.com/wonny/screener/pkg/config"
	"github.com/wonny/screener/pkg/logger"
)

// Options controls one scan
type Options struct {
	Rules      []string // empty means every enabled rule
	MinScore   float64
	Workers    int
	MaxResults int
	BatchSize  int // queued symbols; bounds memory, not a barrier
	MinBars    int
	Progress   contracts.ProgressFunc
}

// DefaultOptions reads scan defaults from config
func DefaultOptions(cfg *config.Config) Options {
	return Options{
		Rules:      cfg.Scan.Rules,
		MinScore:   cfg.Scan.MinScore,
		Workers:    cfg.Scan.Workers,
		MaxResults: cfg.Scan.MaxResults,
		BatchSize:  cfg.Scan.BatchSize,
		MinBars:    cfg.MarketData.MinBars,
	}
}

func (o Options) normalized() Options {
	if o.Workers <= 0 {
		o.Workers = 5
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 100
	}
	if o.MinBars <= 0 {
		o.MinBars = 300
	}
	return o
}

// SkipError explains why a symbol produced no result
type SkipError struct {
	Symbol string
	Reason string
	Err    error
}

func (e *SkipError) Error() string {
	return fmt.Sprintf("%s skipped (%s): %v", e.Symbol, e.Reason, e.Err)
}

func (e *SkipError) Unwrap() error { return e.Err }

// Scanner fetches, computes and scores symbols
// ⭐ SSOT: 스캔 오케스트레이션은 여기서만
type Scanner struct {
	source   contracts.HistorySource
	engine   *selection.Engine
	baseSpec indicators.Spec
	logger   *logger.Logger
	now      func() time.Time
}

// New creates a scanner using the default indicator battery
func New(source contracts.HistorySource, engine *selection.Engine, log *logger.Logger) *Scanner {
	return &Scanner{
		source:   source,
		engine:   engine,
		baseSpec: indicators.DefaultSpec(),
		logger:   log,
		now:      time.Now,
	}
}

// Engine returns the rule engine used for scoring
func (s *Scanner) Engine() *selection.Engine {
	return s.engine
}

// outcome is one symbol's pipeline result handed to the collector
type outcome struct {
	result *contracts.ScanResult
	skip   *SkipError
}

// Scan evaluates symbols and returns the ranked report. Unknown rule names
// are skipped; the call fails only when no requested rule is registered.
// Per-symbol problems are counted as skips.
func (s *Scanner) Scan(ctx context.Context, symbols []string, opts Options) (*contracts.ScanReport, error) {
	opts = opts.normalized()
	registry := s.engine.Registry()
	names, err := registry.Resolve(opts.Rules)
	if err != nil {
		return nil, err
	}
	calc := s.calculator(names)
	requested := len(symbols)
	symbols = dedupe(symbols)

	report := &contracts.ScanReport{
		RunID:        uuid.NewString(),
		StartedAt:    s.now(),
		Rules:        names,
		SkippedRules: registry.Unknown(opts.Rules),
		MinScore:     opts.MinScore,
		MaxResults:   opts.MaxResults,
	}
	stats := &report.Stats
	stats.RequestedSymbols = requested
	stats.TotalSymbols = len(symbols)
	stats.SkipReasons = make(map[string]int)

	log := s.logger.WithRun(report.RunID)
	log.WithFields(map[string]interface{}{
		"symbols":   len(symbols),
		"rules":     names,
		"workers":   opts.Workers,
		"min_score": opts.MinScore,
	}).Info("Scan started")

	var qualified []contracts.ScanResult
	start := time.Now()

	for o := range s.runPool(ctx, symbols, names, calc, opts) {
		stats.Processed++
		if o.skip != nil {
			stats.Skipped++
			stats.SkipReasons[o.skip.Reason]++
			log.WithSymbol(o.skip.Symbol).WithError(o.skip.Err).Debug("Symbol skipped")
		} else {
			stats.ErrorVerdicts += o.result.Composite.ErrorCount
			if o.result.CompositeScore >= opts.MinScore {
				qualified = append(qualified, *o.result)
			}
		}
		if opts.Progress != nil {
			opts.Progress(stats.Processed, stats.TotalSymbols, len(qualified))
		}
	}

	report.Results = selection.Rank(qualified, opts.MaxResults)
	stats.Qualified = len(qualified)
	stats.Returned = len(report.Results)
	if stats.TotalSymbols > 0 {
		stats.QualificationRate = float64(stats.Qualified) / float64(stats.TotalSymbols)
	}
	stats.Elapsed = time.Since(start)

	log.WithFields(map[string]interface{}{
		"total":     stats.TotalSymbols,
		"qualified": stats.Qualified,
		"returned":  stats.Returned,
		"skipped":   stats.Skipped,
		"elapsed":   stats.Elapsed.String(),
	}).Info("Scan completed")

	return report, nil
}

// runPool starts one worker pool for the whole scan. Workers pull the next
// symbol as soon as they finish, so a slow symbol only holds its own worker.
// The returned channel is closed once every symbol has produced exactly one
// outcome.
func (s *Scanner) runPool(ctx context.Context, symbols, names []string, calc *indicators.Calculator, opts Options) <-chan outcome {
	// 배치 크기만큼만 버퍼링: 메모리 사용량 제한
	symbolCh := make(chan string, opts.BatchSize)
	resultCh := make(chan outcome, opts.BatchSize)

	// Every symbol is fed even after cancellation so each one reports an outcome
	go func() {
		defer close(symbolCh)
		for _, symbol := range symbols {
			symbolCh <- symbol
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < min(opts.Workers, len(symbols)); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for symbol := range symbolCh {
				resultCh <- s.process(ctx, symbol, names, calc, opts.MinBars)
			}
		}()
	}

	// Close result channel when all workers done
	go func() {
		wg.Wait()
		close(resultCh)
	}()
	return resultCh
}

// process runs the pipeline for one symbol and never panics
func (s *Scanner) process(ctx context.Context, symbol string, names []string, calc *indicators.Calculator, minBars int) (o outcome) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.WithSymbol(symbol).Errorf("Symbol pipeline panicked: %v", r)
			o = outcome{skip: &SkipError{Symbol: symbol, Reason: contracts.SkipCalculationFailed, Err: fmt.Errorf("panic: %v", r)}}
		}
	}()

	if err := ctx.Err(); err != nil {
		return outcome{skip: &SkipError{Symbol: symbol, Reason: contracts.SkipCanceled, Err: err}}
	}

	result, err := s.evaluate(ctx, symbol, names, calc, minBars)
	if err != nil {
		var skip *SkipError
		if errors.As(err, &skip) {
			return outcome{skip: skip}
		}
		return outcome{skip: &SkipError{Symbol: symbol, Reason: contracts.SkipCalculationFailed, Err: err}}
	}
	return outcome{result: result}
}

// ScanSymbol scores one symbol without applying the min-score filter
func (s *Scanner) ScanSymbol(ctx context.Context, symbol string, ruleNames []string, minBars int) (*contracts.ScanResult, error) {
	names, err := s.engine.Registry().Resolve(ruleNames)
	if err != nil {
		return nil, err
	}
	if minBars <= 0 {
		minBars = 300
	}
	result, err := s.evaluate(ctx, symbol, names, s.calculator(names), minBars)
	if err != nil {
		return nil, err
	}
	result.Rank = 1
	return result, nil
}

// evaluate fetches history, computes indicators and aggregates verdicts
func (s *Scanner) evaluate(ctx context.Context, symbol string, names []string, calc *indicators.Calculator, minBars int) (*contracts.ScanResult, error) {
	history, err := s.source.FetchHistory(ctx, symbol, minBars)
	if err != nil {
		reason := contracts.SkipFetchFailed
		if ctx.Err() != nil {
			reason = contracts.SkipCanceled
		}
		return nil, &SkipError{Symbol: symbol, Reason: reason, Err: err}
	}
	if history.IsEmpty() {
		return nil, &SkipError{Symbol: symbol, Reason: contracts.SkipEmptyHistory, Err: contracts.ErrNotFound}
	}
	if err := history.Validate(); err != nil {
		return nil, &SkipError{Symbol: symbol, Reason: contracts.SkipInvalidHistory, Err: err}
	}

	table, err := calc.Compute(history)
	if err != nil {
		return nil, &SkipError{Symbol: symbol, Reason: contracts.SkipCalculationFailed, Err: err}
	}

	verdicts := s.engine.ApplyRules(symbol, history, table, names)
	score, details := s.engine.CompositeScore(verdicts)

	first, last := history.DateRange()
	return &contracts.ScanResult{
		Symbol:         symbol,
		CompositeScore: score,
		Composite:      details,
		Verdicts:       verdicts,
		Highlights:     Highlights(verdicts, history),
		Metadata: contracts.ResultMetadata{
			DataLength:     history.Len(),
			StartDate:      first,
			EndDate:        last,
			IndicatorCount: table.Count(),
			QualityScore:   calc.Validate(history, table).QualityScore,
			LastClose:      history.Last().Close,
		},
	}, nil
}

// calculator builds the indicator battery the named rules need
func (s *Scanner) calculator(names []string) *indicators.Calculator {
	spec := s.baseSpec.Merge(s.engine.Registry().Requirements(names)...)
	return indicators.NewCalculator(spec, s.logger)
}

func dedupe(symbols []string) []string {
	seen := make(map[string]bool, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		if sym == "" || seen[sym] {
			continue
		}
		seen[sym] = true
		out = append(out, sym)
	}
	return out
}
