package contracts

import (
	"context"
	"errors"
)

// ErrNotFound is returned by a HistorySource when no history exists for a symbol
var ErrNotFound = errors.New("history not found")

// HistorySource fetches OHLCV history for one symbol
// ⭐ SSOT: 시세 데이터 소스 인터페이스
type HistorySource interface {
	// FetchHistory returns at least minBars bars when available, or ErrNotFound
	FetchHistory(ctx context.Context, symbol string, minBars int) (*PriceHistory, error)
}

// SymbolFilter narrows the symbol universe
type SymbolFilter struct {
	Markets   []string `json:"markets,omitempty"`
	ExcludeST bool     `json:"exclude_st"`
	Limit     int      `json:"limit,omitempty"`
}

// SymbolProvider lists candidate symbols
// ⭐ SSOT: 종목 유니버스 인터페이스
type SymbolProvider interface {
	ListSymbols(ctx context.Context, filter SymbolFilter) ([]string, error)
}

// ProgressFunc receives scan progress. processed increases by one per call
// and reaches total exactly once.
type ProgressFunc func(processed, total, qualified int)

// ReportStore persists scan reports
// ⭐ SSOT: 스캔 결과 저장 인터페이스
type ReportStore interface {
	SaveReport(ctx context.Context, report *ScanReport) error
	ListRuns(ctx context.Context, limit int) ([]ScanRunSummary, error)
	GetReport(ctx context.Context, runID string) (*ScanReport, error)
}
