package contracts

import (
	"fmt"
	"math"
	"time"
)

// PriceBar is one trading day of OHLCV data for a symbol
// ⭐ SSOT: 원천 가격 데이터 단위
type PriceBar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Validate checks low <= open,close <= high and volume >= 0.
// NaN fields are reported separately by PriceHistory.MissingColumns.
func (b PriceBar) Validate() error {
	if b.Low > b.Open || b.Low > b.Close {
		return fmt.Errorf("bar %s: low %.4f above open/close", b.Date.Format("2006-01-02"), b.Low)
	}
	if b.High < b.Open || b.High < b.Close {
		return fmt.Errorf("bar %s: high %.4f below open/close", b.Date.Format("2006-01-02"), b.High)
	}
	if b.Volume < 0 {
		return fmt.Errorf("bar %s: negative volume", b.Date.Format("2006-01-02"))
	}
	return nil
}

// PriceHistory is the date-ordered bar series for one symbol.
// Owned by the scan that fetched it and never mutated by the core.
type PriceHistory struct {
	Symbol string     `json:"symbol"`
	Bars   []PriceBar `json:"bars"`
}

// Column names of a PriceHistory
const (
	ColumnOpen   = "open"
	ColumnHigh   = "high"
	ColumnLow    = "low"
	ColumnClose  = "close"
	ColumnVolume = "volume"
)

// Columns lists the OHLCV columns in canonical order
var Columns = []string{ColumnOpen, ColumnHigh, ColumnLow, ColumnClose, ColumnVolume}

// Len returns the number of bars
func (h *PriceHistory) Len() int {
	if h == nil {
		return 0
	}
	return len(h.Bars)
}

// IsEmpty reports whether the history has no bars
func (h *PriceHistory) IsEmpty() bool {
	return h.Len() == 0
}

// Validate checks every bar and that dates are strictly increasing
func (h *PriceHistory) Validate() error {
	if h.IsEmpty() {
		return fmt.Errorf("%s: empty price history", h.symbol())
	}
	if missing := h.MissingColumns(); len(missing) > 0 {
		return fmt.Errorf("%s: missing columns %v", h.symbol(), missing)
	}
	for i, bar := range h.Bars {
		if err := bar.Validate(); err != nil {
			return fmt.Errorf("%s: %w", h.symbol(), err)
		}
		if i > 0 && !bar.Date.After(h.Bars[i-1].Date) {
			return fmt.Errorf("%s: dates not strictly increasing at %s", h.symbol(), bar.Date.Format("2006-01-02"))
		}
	}
	return nil
}

// MissingColumns returns the columns that contain non-finite values.
// A column with any NaN or Inf is treated as absent.
func (h *PriceHistory) MissingColumns() []string {
	if h.IsEmpty() {
		return nil
	}
	var missing []string
	for _, col := range Columns {
		series := h.Column(col)
		for _, v := range series {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				missing = append(missing, col)
				break
			}
		}
	}
	return missing
}

// Column extracts one OHLCV column as a float series
func (h *PriceHistory) Column(name string) []float64 {
	out := make([]float64, h.Len())
	for i, bar := range h.Bars {
		switch name {
		case ColumnOpen:
			out[i] = bar.Open
		case ColumnHigh:
			out[i] = bar.High
		case ColumnLow:
			out[i] = bar.Low
		case ColumnClose:
			out[i] = bar.Close
		case ColumnVolume:
			out[i] = bar.Volume
		default:
			return nil
		}
	}
	return out
}

// Closes returns the close series
func (h *PriceHistory) Closes() []float64 { return h.Column(ColumnClose) }

// Dates returns the date index
func (h *PriceHistory) Dates() []time.Time {
	out := make([]time.Time, h.Len())
	for i, bar := range h.Bars {
		out[i] = bar.Date
	}
	return out
}

// Last returns the most recent bar. Callers must check IsEmpty first.
func (h *PriceHistory) Last() PriceBar {
	return h.Bars[len(h.Bars)-1]
}

// Tail returns a view of the last n bars (the whole history when n >= Len)
func (h *PriceHistory) Tail(n int) *PriceHistory {
	if n >= h.Len() {
		return h
	}
	return &PriceHistory{Symbol: h.Symbol, Bars: h.Bars[h.Len()-n:]}
}

// DateRange returns the first and last bar dates
func (h *PriceHistory) DateRange() (time.Time, time.Time) {
	if h.IsEmpty() {
		return time.Time{}, time.Time{}
	}
	return h.Bars[0].Date, h.Last().Date
}

func (h *PriceHistory) symbol() string {
	if h == nil || h.Symbol == "" {
		return "unknown"
	}
	return h.Symbol
}
