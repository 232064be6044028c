package scanner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/screener/internal/contracts"
	"github.com/wonny/screener/internal/marketdata"
	"github.com/wonny/screener/internal/rules"
	"github.com/wonny/screener/internal/selection"
	"github.com/wonny/screener/pkg/logger"
)

func newTestScanner(t *testing.T, source contracts.HistorySource) *Scanner {
	t.Helper()
	reg, err := rules.NewDefaultRegistry(logger.NewNop(), nil)
	require.NoError(t, err)
	return New(source, selection.NewEngine(reg, logger.NewNop()), logger.NewNop())
}

// scriptedSource returns canned histories or errors per symbol
type scriptedSource struct {
	inner    contracts.HistorySource
	errs     map[string]error
	invalid  map[string]bool
	panics   map[string]bool
	delays   map[string]time.Duration
	requests atomic.Int32

	mu       sync.Mutex
	finished []string
}

func (s *scriptedSource) FetchHistory(ctx context.Context, symbol string, minBars int) (*contracts.PriceHistory, error) {
	s.requests.Add(1)
	if d, ok := s.delays[symbol]; ok {
		time.Sleep(d)
	}
	defer func() {
		s.mu.Lock()
		s.finished = append(s.finished, symbol)
		s.mu.Unlock()
	}()
	if s.panics[symbol] {
		panic("boom")
	}
	if err, ok := s.errs[symbol]; ok {
		return nil, err
	}
	h, err := s.inner.FetchHistory(ctx, symbol, minBars)
	if err != nil {
		return nil, err
	}
	if s.invalid[symbol] {
		bars := append([]contracts.PriceBar(nil), h.Bars...)
		bars[10].Low = bars[10].High + 1
		return &contracts.PriceHistory{Symbol: symbol, Bars: bars}, nil
	}
	return h, nil
}

func TestScan_FindsScenarios(t *testing.T) {
	s := newTestScanner(t, marketdata.NewSyntheticSource(300))

	report, err := s.Scan(context.Background(), []string{"RW1", "PIT1", "BRK1"}, Options{MinScore: 0, Workers: 2})
	require.NoError(t, err)

	assert.Equal(t, []string{rules.GoldenPitName, rules.TrendBreakoutName}, report.Rules)
	assert.NotEmpty(t, report.RunID)
	require.Len(t, report.Results, 3)
	assert.Equal(t, 3, report.Stats.TotalSymbols)
	assert.Equal(t, 3, report.Stats.Processed)
	assert.Equal(t, 0, report.Stats.Skipped)

	bySymbol := map[string]contracts.ScanResult{}
	for _, r := range report.Results {
		bySymbol[r.Symbol] = r
	}

	// the pullback history is too short for the breakout rule
	pit := bySymbol["PIT1"]
	assert.InDelta(t, 75, pit.CompositeScore, 1e-6)
	assert.Equal(t, 1, pit.Composite.ErrorCount)
	assert.Equal(t, 1, pit.Composite.PartialCount)
	assert.Equal(t, 152, pit.Metadata.DataLength)
	assert.Greater(t, pit.Metadata.QualityScore, 0.0)
	require.NotEmpty(t, pit.Highlights)
	assert.Equal(t, rules.GoldenPitName, pit.Highlights[0].Rule)
	assert.InDelta(t, 10.2, pit.Highlights[0].CurrentPrice, 1e-9)
	assert.Less(t, pit.Highlights[0].Drawdown, 0.0)

	brk := bySymbol["BRK1"]
	assert.Equal(t, 0, brk.Composite.ErrorCount)
	for _, h := range brk.Highlights {
		if h.Rule == rules.TrendBreakoutName {
			assert.Equal(t, contracts.OutcomePass, h.Outcome)
			assert.Greater(t, h.Breakout, 0.0)
			assert.Greater(t, h.PreviousHigh, 0.0)
		}
	}

	for i, r := range report.Results {
		assert.Equal(t, i+1, r.Rank)
	}
}

func TestScan_BreakoutOnly(t *testing.T) {
	s := newTestScanner(t, marketdata.NewSyntheticSource(300))

	report, err := s.Scan(context.Background(), []string{"BRK1", "PIT1"}, Options{
		Rules:    []string{rules.TrendBreakoutName},
		MinScore: 80,
	})
	require.NoError(t, err)

	require.Len(t, report.Results, 1)
	assert.Equal(t, "BRK1", report.Results[0].Symbol)
	assert.GreaterOrEqual(t, report.Results[0].CompositeScore, 88.0)
	assert.Equal(t, 1, report.Stats.Qualified)
	assert.Equal(t, 1, report.Stats.ErrorVerdicts) // PIT1 has too few bars
	assert.InDelta(t, 0.5, report.Stats.QualificationRate, 1e-9)
}

func TestScan_UnknownRuleIsSkipped(t *testing.T) {
	s := newTestScanner(t, marketdata.NewSyntheticSource(300))

	report, err := s.Scan(context.Background(), []string{"PIT1", "BRK1"}, Options{
		Rules: []string{rules.GoldenPitName, "Nope"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{rules.GoldenPitName}, report.Rules)
	assert.Equal(t, []string{"Nope"}, report.SkippedRules)
	assert.Equal(t, 2, report.Stats.Processed)
	require.NotEmpty(t, report.Results)
	for _, r := range report.Results {
		require.Len(t, r.Verdicts, 1)
		assert.Equal(t, rules.GoldenPitName, r.Verdicts[0].Rule)
	}
}

func TestScan_NoKnownRules(t *testing.T) {
	s := newTestScanner(t, marketdata.NewSyntheticSource(300))

	_, err := s.Scan(context.Background(), []string{"X"}, Options{Rules: []string{"Nope"}})
	assert.ErrorIs(t, err, rules.ErrNoKnownRules)
}

func TestScan_SlowSymbolDoesNotBlockOthers(t *testing.T) {
	src := &scriptedSource{
		inner:  marketdata.NewSyntheticSource(300),
		delays: map[string]time.Duration{"RW1": 500 * time.Millisecond},
	}
	s := newTestScanner(t, src)

	report, err := s.Scan(context.Background(), []string{"RW1", "RW2", "RW3", "RW4", "RW5"}, Options{
		MinScore:  0,
		Workers:   2,
		BatchSize: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, 5, report.Stats.Processed)

	src.mu.Lock()
	defer src.mu.Unlock()
	require.Len(t, src.finished, 5)
	assert.Equal(t, "RW1", src.finished[4], "order: %v", src.finished)
}

func TestScan_SkipsWithoutCrashing(t *testing.T) {
	src := &scriptedSource{
		inner:   marketdata.NewSyntheticSource(300),
		errs:    map[string]error{"DOWN": errors.New("connection refused")},
		invalid: map[string]bool{"BAD": true},
		panics:  map[string]bool{"PANIC": true},
	}
	s := newTestScanner(t, src)

	report, err := s.Scan(context.Background(), []string{"NONE1", "DOWN", "BAD", "PANIC", "RW1"}, Options{Workers: 3})
	require.NoError(t, err)

	assert.Equal(t, 5, report.Stats.Processed)
	assert.Equal(t, 4, report.Stats.Skipped)
	assert.Equal(t, map[string]int{
		contracts.SkipFetchFailed:       2,
		contracts.SkipInvalidHistory:    1,
		contracts.SkipCalculationFailed: 1,
	}, report.Stats.SkipReasons)
	for _, r := range report.Results {
		assert.Equal(t, "RW1", r.Symbol)
	}
}

func TestScan_ProgressReachesTotalOnce(t *testing.T) {
	s := newTestScanner(t, marketdata.NewSyntheticSource(300))

	var symbols []string
	for i := 0; i < 23; i++ {
		symbols = append(symbols, fmt.Sprintf("RW%02d", i))
	}

	var seen []int
	totals := 0
	report, err := s.Scan(context.Background(), symbols, Options{
		Workers:   4,
		BatchSize: 5,
		Progress: func(processed, total, qualified int) {
			seen = append(seen, processed)
			assert.Equal(t, 23, total)
			assert.LessOrEqual(t, qualified, processed)
			if processed == total {
				totals++
			}
		},
	})
	require.NoError(t, err)

	require.Len(t, seen, 23)
	for i, p := range seen {
		assert.Equal(t, i+1, p)
	}
	assert.Equal(t, 1, totals)
	assert.Equal(t, 23, report.Stats.Processed)
}

func TestScan_DedupesSymbols(t *testing.T) {
	src := &scriptedSource{inner: marketdata.NewSyntheticSource(300)}
	s := newTestScanner(t, src)

	report, err := s.Scan(context.Background(), []string{"RW1", "RW1", "", "RW2"}, Options{})
	require.NoError(t, err)

	assert.Equal(t, 4, report.Stats.RequestedSymbols)
	assert.Equal(t, 2, report.Stats.TotalSymbols)
	assert.Equal(t, int32(2), src.requests.Load())
}

func TestScan_RankingIsStable(t *testing.T) {
	s := newTestScanner(t, marketdata.NewSyntheticSource(300))
	symbols := []string{"PIT3", "PIT1", "PIT2", "BRK1"}

	first, err := s.Scan(context.Background(), symbols, Options{Workers: 4, MinScore: 0})
	require.NoError(t, err)
	second, err := s.Scan(context.Background(), symbols, Options{Workers: 1, MinScore: 0})
	require.NoError(t, err)

	order := func(r *contracts.ScanReport) []string {
		var out []string
		for _, res := range r.Results {
			out = append(out, res.Symbol)
		}
		return out
	}
	assert.Equal(t, order(first), order(second))

	// equal pullback scores tie-break by symbol
	var pits []string
	for _, sym := range order(first) {
		if sym[:3] == "PIT" {
			pits = append(pits, sym)
		}
	}
	assert.Equal(t, []string{"PIT1", "PIT2", "PIT3"}, pits)
}

func TestScan_MaxResultsTruncates(t *testing.T) {
	s := newTestScanner(t, marketdata.NewSyntheticSource(300))

	report, err := s.Scan(context.Background(), []string{"PIT1", "PIT2", "PIT3"}, Options{MinScore: 0, MaxResults: 2})
	require.NoError(t, err)

	assert.Len(t, report.Results, 2)
	assert.Equal(t, 3, report.Stats.Qualified)
	assert.Equal(t, 2, report.Stats.Returned)
}

func TestScan_Canceled(t *testing.T) {
	s := newTestScanner(t, marketdata.NewSyntheticSource(300))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	report, err := s.Scan(ctx, []string{"A", "B", "C"}, Options{
		Progress: func(int, int, int) { calls++ },
	})
	require.NoError(t, err)

	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, report.Stats.Skipped)
	assert.Equal(t, 3, report.Stats.SkipReasons[contracts.SkipCanceled])
	assert.Empty(t, report.Results)
}

func TestScan_EmptyUniverse(t *testing.T) {
	s := newTestScanner(t, marketdata.NewSyntheticSource(300))

	report, err := s.Scan(context.Background(), nil, Options{})
	require.NoError(t, err)

	assert.Empty(t, report.Results)
	assert.Zero(t, report.Stats.QualificationRate)
}

func TestScanSymbol(t *testing.T) {
	s := newTestScanner(t, marketdata.NewSyntheticSource(300))

	result, err := s.ScanSymbol(context.Background(), "PIT1", []string{rules.GoldenPitName}, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Rank)
	assert.InDelta(t, 75, result.CompositeScore, 1e-6)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), result.Metadata.StartDate)

	_, err = s.ScanSymbol(context.Background(), "NONE", nil, 0)
	var skip *SkipError
	require.ErrorAs(t, err, &skip)
	assert.Equal(t, contracts.SkipFetchFailed, skip.Reason)
	assert.ErrorIs(t, err, contracts.ErrNotFound)
}
