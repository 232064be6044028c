package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/screener/internal/contracts"
	"github.com/wonny/screener/internal/marketdata"
	"github.com/wonny/screener/internal/rules"
	"github.com/wonny/screener/internal/scanner"
	"github.com/wonny/screener/internal/selection"
	"github.com/wonny/screener/internal/universe"
	"github.com/wonny/screener/pkg/logger"
)

type recordingStore struct {
	mu      sync.Mutex
	saved   []*contracts.ScanReport
	saveErr error
}

func (s *recordingStore) SaveReport(_ context.Context, r *contracts.ScanReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved = append(s.saved, r)
	return nil
}

func (s *recordingStore) ListRuns(context.Context, int) ([]contracts.ScanRunSummary, error) {
	return nil, nil
}

func (s *recordingStore) GetReport(context.Context, string) (*contracts.ScanReport, error) {
	return nil, selection.ErrRunNotFound
}

func newEngine(t *testing.T) *selection.Engine {
	t.Helper()
	reg, err := rules.NewDefaultRegistry(logger.NewNop(), nil)
	require.NoError(t, err)
	return selection.NewEngine(reg, logger.NewNop())
}

func TestScanJob_Run(t *testing.T) {
	engine := newEngine(t)
	sc := scanner.New(marketdata.NewSyntheticSource(300), engine, logger.NewNop())
	store := &recordingStore{}
	job := NewScanJob(sc, universe.NewStaticProvider([]string{"PIT1", "BRK1"}), store,
		scanner.Options{MinScore: 0}, contracts.SymbolFilter{}, "0 30 16 * * 1-5", logger.NewNop())

	assert.Equal(t, "daily_scan", job.Name())
	assert.Equal(t, "0 30 16 * * 1-5", job.Schedule())

	require.NoError(t, job.Run(context.Background()))
	require.Len(t, store.saved, 1)
	assert.Equal(t, 2, store.saved[0].Stats.TotalSymbols)
	assert.Same(t, store.saved[0], job.LastReport())
}

func TestScanJob_Errors(t *testing.T) {
	engine := newEngine(t)
	sc := scanner.New(marketdata.NewSyntheticSource(300), engine, logger.NewNop())

	empty := NewScanJob(sc, universe.NewStaticProvider(nil), nil, scanner.Options{}, contracts.SymbolFilter{}, "@daily", logger.NewNop())
	assert.ErrorContains(t, empty.Run(context.Background()), "universe is empty")

	failing := NewScanJob(sc, universe.NewStaticProvider([]string{"RW1"}), &recordingStore{saveErr: errors.New("db down")},
		scanner.Options{}, contracts.SymbolFilter{}, "@daily", logger.NewNop())
	assert.ErrorContains(t, failing.Run(context.Background()), "save report")
	assert.Nil(t, failing.LastReport())
}

type fakePruner struct {
	cutoff time.Time
	n      int64
}

func (f *fakePruner) DeleteRunsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	return f.n, nil
}

func TestMaintenanceJob_Run(t *testing.T) {
	engine := newEngine(t)
	h := marketdata.RandomWalk("S", 300, 1)
	for i := 0; i < 5; i++ {
		engine.ApplyRules("S", h, nil, []string{})
	}
	pruner := &fakePruner{n: 3}
	job := NewMaintenanceJob(pruner, engine, 30*24*time.Hour, 2, logger.NewNop())
	job.now = func() time.Time { return time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC) }

	require.NoError(t, job.Run(context.Background()))

	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), pruner.cutoff)
	assert.Len(t, engine.ExecutionHistory(0), 2)
}

type staticListings struct {
	listings []universe.Listing
	err      error
}

func (s staticListings) Listings(context.Context) ([]universe.Listing, error) {
	return s.listings, s.err
}

type listingSink struct {
	saved []universe.Listing
}

func (s *listingSink) SaveListings(_ context.Context, l []universe.Listing) error {
	s.saved = l
	return nil
}

func TestUniverseSyncJob_Run(t *testing.T) {
	sink := &listingSink{}
	job := NewUniverseSyncJob(staticListings{listings: []universe.Listing{
		{Code: "005930", Name: "Samsung", Market: "KOSPI"},
		{Code: "000001", Name: "ST Foo", Market: "KOSDAQ"},
	}}, sink, logger.NewNop())

	require.NoError(t, job.Run(context.Background()))
	assert.Len(t, sink.saved, 2)

	empty := NewUniverseSyncJob(staticListings{}, sink, logger.NewNop())
	assert.ErrorContains(t, empty.Run(context.Background()), "no rows")

	failing := NewUniverseSyncJob(staticListings{err: errors.New("timeout")}, sink, logger.NewNop())
	assert.ErrorContains(t, failing.Run(context.Background()), "fetch listings")
}

type barSink struct {
	mu    sync.Mutex
	saved map[string]int
	fail  string
}

func (s *barSink) SaveBars(_ context.Context, h *contracts.PriceHistory) error {
	if h.Symbol == s.fail {
		return errors.New("disk full")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saved == nil {
		s.saved = make(map[string]int)
	}
	s.saved[h.Symbol] = h.Len()
	return nil
}

func TestPriceSyncJob_Sync(t *testing.T) {
	sink := &barSink{fail: "BRK1"}
	job := NewPriceSyncJob(universe.NewStaticProvider([]string{"PIT1", "BRK1", "RW1", "NONE"}),
		marketdata.NewSyntheticSource(300), sink, contracts.SymbolFilter{}, 300, 3, logger.NewNop())

	assert.Equal(t, "price_sync", job.Name())

	res, err := job.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, res.Symbols)
	assert.Equal(t, 2, res.Saved)
	require.Len(t, res.Failed, 2)
	assert.ErrorIs(t, res.Failed["NONE"], contracts.ErrNotFound)
	assert.ErrorContains(t, res.Failed["BRK1"], "disk full")

	assert.Contains(t, sink.saved, "PIT1")
	assert.Contains(t, sink.saved, "RW1")
	assert.Equal(t, res.Bars, sink.saved["PIT1"]+sink.saved["RW1"])

	require.NoError(t, job.Run(context.Background()))
}

func TestPriceSyncJob_AllFailed(t *testing.T) {
	job := NewPriceSyncJob(universe.NewStaticProvider([]string{"NONE"}),
		marketdata.NewSyntheticSource(300), &barSink{}, contracts.SymbolFilter{}, 300, 0, logger.NewNop())

	assert.ErrorContains(t, job.Run(context.Background()), "failed for all 1 symbols")
}
