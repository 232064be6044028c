package marketdata

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/wonny/screener/internal/contracts"
)

// syntheticStart is the first bar date of every generated history
var syntheticStart = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

// PullbackScenario is a flat base, a linear decline and a final gap-up bar
type PullbackScenario struct {
	Base         float64
	FlatBars     int
	DeclineBars  int
	Depth        float64 // fraction below Base at the bottom
	ReclaimClose float64
	Volume       float64
}

// DefaultPullback is flat at 10 for 100 bars, -25% by bar 150, 10.2 on bar 151
func DefaultPullback() PullbackScenario {
	return PullbackScenario{Base: 10, FlatBars: 100, DeclineBars: 51, Depth: 0.25, ReclaimClose: 10.2, Volume: 1000}
}

// Build generates the bars
func (s PullbackScenario) Build(symbol string) *contracts.PriceHistory {
	h := &contracts.PriceHistory{Symbol: symbol}
	prev := s.Base
	add := func(open, close float64) {
		h.Bars = append(h.Bars, contracts.PriceBar{
			Date:   syntheticStart.AddDate(0, 0, len(h.Bars)),
			Open:   open,
			High:   math.Max(open, close),
			Low:    math.Min(open, close),
			Close:  close,
			Volume: s.Volume,
		})
		prev = close
	}

	for i := 0; i < s.FlatBars; i++ {
		add(s.Base, s.Base)
	}
	floor := s.Base * (1 - s.Depth)
	for i := 1; i <= s.DeclineBars; i++ {
		add(prev, s.Base-(s.Base-floor)*float64(i)/float64(s.DeclineBars))
	}
	add(prev, s.ReclaimClose)
	return h
}

// BreakoutScenario is a steady uptrend ending in two wide-range,
// high-volume up days, the last one closing Overshoot above the prior high
type BreakoutScenario struct {
	Bars           int
	BaseVolume     float64
	SurgeVolume    float64 // volume of the day before the breakout
	BreakoutVolume float64
	Overshoot      float64
	DownFirstDay   bool // the first wide-range day closes below its open
}

// DefaultBreakout yields a history that passes every breakout gate
func DefaultBreakout() BreakoutScenario {
	return BreakoutScenario{Bars: 300, BaseVolume: 1000, SurgeVolume: 5000, BreakoutVolume: 12000, Overshoot: 0.02}
}

// Build generates the bars
func (s BreakoutScenario) Build(symbol string) *contracts.PriceHistory {
	h := &contracts.PriceHistory{Symbol: symbol}
	date := func() time.Time { return syntheticStart.AddDate(0, 0, len(h.Bars)) }

	for i := 0; i < s.Bars-2; i++ {
		close := 50 + 0.1*float64(i)
		open := close * 0.998
		h.Bars = append(h.Bars, contracts.PriceBar{
			Date: date(), Open: open, High: close * 1.005, Low: open * 0.997, Close: close, Volume: s.BaseVolume,
		})
	}

	// day -1: 8% range off the previous close
	c0 := h.Last().Close
	first := contracts.PriceBar{Date: date(), Open: c0, Low: c0, High: c0 * 1.08, Close: c0 * 1.03, Volume: s.SurgeVolume}
	if s.DownFirstDay {
		first.Open, first.Close = c0*1.03, c0*1.01
	}
	h.Bars = append(h.Bars, first)

	// day 0: close Overshoot above the day -1 high, 8% range off day -1 close
	c1 := first.Close
	close := first.High * (1 + s.Overshoot)
	h.Bars = append(h.Bars, contracts.PriceBar{
		Date: date(), Open: c1, Low: c1, High: math.Max(close, c1*1.08), Close: close, Volume: s.BreakoutVolume,
	})
	return h
}

// RandomWalk generates a seeded geometric random walk
func RandomWalk(symbol string, bars int, seed int64) *contracts.PriceHistory {
	r := rand.New(rand.NewSource(seed))
	h := &contracts.PriceHistory{Symbol: symbol}
	price := 20 + r.Float64()*80
	for i := 0; i < bars; i++ {
		open := price
		price = math.Max(0.5, price*(1+r.NormFloat64()*0.02))
		high := math.Max(open, price) * (1 + r.Float64()*0.02)
		low := math.Min(open, price) * (1 - r.Float64()*0.02)
		h.Bars = append(h.Bars, contracts.PriceBar{
			Date:   syntheticStart.AddDate(0, 0, i),
			Open:   open,
			High:   high,
			Low:    low,
			Close:  price,
			Volume: math.Round(1000 + r.Float64()*9000),
		})
	}
	return h
}

// SyntheticSource serves deterministic generated histories. Symbols with
// prefix PIT get a pullback, BRK a breakout, NONE is not found and every
// other symbol a random walk seeded by its name.
type SyntheticSource struct {
	Bars int
}

// NewSyntheticSource creates a source producing histories of the given length
func NewSyntheticSource(bars int) *SyntheticSource {
	return &SyntheticSource{Bars: bars}
}

// FetchHistory implements contracts.HistorySource
func (s *SyntheticSource) FetchHistory(ctx context.Context, symbol string, minBars int) (*contracts.PriceHistory, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bars := max(s.Bars, minBars)
	upper := strings.ToUpper(symbol)
	var h *contracts.PriceHistory
	switch {
	case strings.HasPrefix(upper, "NONE"):
		return nil, contracts.ErrNotFound
	case strings.HasPrefix(upper, "PIT"):
		h = DefaultPullback().Build(symbol)
	case strings.HasPrefix(upper, "BRK"):
		sc := DefaultBreakout()
		sc.Bars = max(bars, sc.Bars)
		h = sc.Build(symbol)
	default:
		hash := fnv.New64a()
		_, _ = hash.Write([]byte(symbol))
		h = RandomWalk(symbol, bars, int64(hash.Sum64()))
	}
	return h.Tail(bars), nil
}
