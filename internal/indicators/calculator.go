package indicators

import (
	"fmt"
	"sort"

	"github.com/wonny/screener/internal/contracts"
	"github.com/wonny/screener/pkg/logger"
)

// Spec configures the indicator battery
type Spec struct {
	MAPeriods          []int
	EMASpans           []int
	VolumeRatioWindows []int
	HighWindows        []int
	LowWindows         []int
	DrawdownWindows    []int

	TrendShort     int
	TrendLong      int
	AlignedPeriods []int

	BigYangReturn      float64
	BigYangVolumeRatio float64
	BigYangDays        int

	YangReturn float64
	YangDays   int

	ExpansionWindow int
	ExpansionRatio  float64
	ExpansionDays   int

	AmplitudeThreshold float64
	AmplitudeDays      int

	RSIWindow        int
	MACDFast         int
	MACDSlow         int
	MACDSignal       int
	VolatilityWindow int
}

// DefaultSpec returns the standard battery
func DefaultSpec() Spec {
	return Spec{
		MAPeriods:          []int{5, 10, 20, 60},
		EMASpans:           []int{12, 26},
		VolumeRatioWindows: []int{5, 10},
		HighWindows:        []int{20, 60, 240},
		LowWindows:         []int{60},
		DrawdownWindows:    []int{60},

		TrendShort:     20,
		TrendLong:      60,
		AlignedPeriods: []int{5, 10, 20, 60},

		BigYangReturn:      0.05,
		BigYangVolumeRatio: 1.5,
		BigYangDays:        2,

		YangReturn: 0.03,
		YangDays:   2,

		ExpansionWindow: 10,
		ExpansionRatio:  1.3,
		ExpansionDays:   2,

		AmplitudeThreshold: 0.07,
		AmplitudeDays:      2,

		RSIWindow:        14,
		MACDFast:         12,
		MACDSlow:         26,
		MACDSignal:       9,
		VolatilityWindow: 20,
	}
}

// Requirements lists extra windows a rule needs in the table
type Requirements struct {
	MAPeriods          []int
	HighWindows        []int
	DrawdownWindows    []int
	VolumeRatioWindows []int
}

// Merge returns a copy of s extended with the required windows
func (s Spec) Merge(reqs ...Requirements) Spec {
	out := s
	out.MAPeriods = union(s.MAPeriods)
	out.HighWindows = union(s.HighWindows)
	out.DrawdownWindows = union(s.DrawdownWindows)
	out.VolumeRatioWindows = union(s.VolumeRatioWindows)
	for _, r := range reqs {
		out.MAPeriods = union(out.MAPeriods, r.MAPeriods...)
		out.HighWindows = union(out.HighWindows, r.HighWindows...)
		out.DrawdownWindows = union(out.DrawdownWindows, r.DrawdownWindows...)
		out.VolumeRatioWindows = union(out.VolumeRatioWindows, r.VolumeRatioWindows...)
	}
	return out
}

func union(base []int, extra ...int) []int {
	seen := make(map[int]bool, len(base)+len(extra))
	out := make([]int, 0, len(base)+len(extra))
	for _, v := range append(append([]int{}, base...), extra...) {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Ints(out)
	return out
}

// Series names produced by Compute
func MAName(period int) string { return fmt.Sprintf("ma%d", period) }
func EMAName(span int) string { return fmt.Sprintf("ema%d", span) }
func VolumeRatioName(window int) string { return fmt.Sprintf("volume_ratio_%d", window) }
func HighName(window int) string { return fmt.Sprintf("high_%d", window) }
func LowName(window int) string { return fmt.Sprintf("low_%d", window) }
func DrawdownName(window int) string { return fmt.Sprintf("drawdown_%d", window) }

const (
	DailyReturnName          = "daily_return"
	BullishTrendName         = "bullish_trend"
	MAAlignedName            = "ma_aligned"
	BigYangName              = "big_yang"
	BigYangCountName         = "big_yang_count"
	BigYangRunName           = "big_yang_run"
	ConsecutiveYangName      = "consecutive_yang"
	ConsecutiveYangCountName = "consecutive_yang_count"
	VolumeExpansionName      = "volume_expansion"
	VolumeExpansionCountName = "volume_expansion_count"
	AmplitudeName            = "amplitude"
	AmplitudeYangName        = "amplitude_yang"
	AmplitudeYangCountName   = "amplitude_yang_count"
	RSIName                  = "rsi"
	DIFName                  = "dif"
	DEAName                  = "dea"
	MACDName                 = "macd"
	VolatilityName           = "volatility"
)

// Calculator computes the indicator battery for one price history.
// Compute is a pure function of its input.
// ⭐ SSOT: 기술적 지표 계산은 여기서만
type Calculator struct {
	spec   Spec
	logger *logger.Logger
}

// NewCalculator creates a calculator for the given battery
func NewCalculator(spec Spec, log *logger.Logger) *Calculator {
	return &Calculator{
		spec:   spec,
		logger: log,
	}
}

// Spec returns the battery this calculator computes
func (c *Calculator) Spec() Spec {
	return c.spec
}

// Compute derives the full indicator table. Any failing indicator aborts
// with a *CalculationError naming it.
func (c *Calculator) Compute(history *contracts.PriceHistory) (*Table, error) {
	if history.IsEmpty() {
		return nil, calcErr("table", "empty price history")
	}

	b := &builder{
		table:   NewTable(history.Dates()),
		missing: make(map[string]bool),
	}
	for _, col := range history.MissingColumns() {
		b.missing[col] = true
	}

	open := history.Column(contracts.ColumnOpen)
	high := history.Column(contracts.ColumnHigh)
	low := history.Column(contracts.ColumnLow)
	close := history.Column(contracts.ColumnClose)
	volume := history.Column(contracts.ColumnVolume)
	s := c.spec

	maPeriods := union(s.MAPeriods, append([]int{s.TrendShort, s.TrendLong}, s.AlignedPeriods...)...)
	for _, p := range maPeriods {
		b.float(MAName(p), []string{contracts.ColumnClose}, func() ([]float64, error) { return SMA(close, p) })
	}
	for _, w := range s.EMASpans {
		b.float(EMAName(w), []string{contracts.ColumnClose}, func() ([]float64, error) { return EMA(close, w) })
	}
	for _, w := range union(s.VolumeRatioWindows, 5, s.ExpansionWindow) {
		b.float(VolumeRatioName(w), []string{contracts.ColumnVolume}, func() ([]float64, error) { return VolumeRatio(volume, w) })
	}
	b.float(DailyReturnName, []string{contracts.ColumnClose}, func() ([]float64, error) { return DailyReturn(close) })
	for _, w := range s.HighWindows {
		b.float(HighName(w), []string{contracts.ColumnHigh}, func() ([]float64, error) { return RollingMax(high, w) })
	}
	for _, w := range s.LowWindows {
		b.float(LowName(w), []string{contracts.ColumnLow}, func() ([]float64, error) { return RollingMin(low, w) })
	}
	for _, w := range s.DrawdownWindows {
		b.float(DrawdownName(w), []string{contracts.ColumnClose, contracts.ColumnHigh}, func() ([]float64, error) { return Drawdown(close, high, w) })
	}

	b.flag(BullishTrendName, []string{contracts.ColumnClose}, func() ([]bool, error) {
		return bullishTrend(b.table, close, s.TrendShort, s.TrendLong)
	})
	b.flag(MAAlignedName, []string{contracts.ColumnClose}, func() ([]bool, error) {
		return maAligned(b.table, close, s.AlignedPeriods)
	})

	b.streak(BigYangName, BigYangCountName, BigYangRunName, s.BigYangDays,
		[]string{contracts.ColumnClose, contracts.ColumnVolume}, func() ([]bool, error) {
			ret, _ := b.table.Float(DailyReturnName)
			vr, _ := b.table.Float(VolumeRatioName(5))
			out := make([]bool, len(close))
			for i := range out {
				out[i] = ret[i] >= s.BigYangReturn && vr[i] >= s.BigYangVolumeRatio
			}
			return out, nil
		})
	b.streak("", ConsecutiveYangCountName, ConsecutiveYangName, s.YangDays,
		[]string{contracts.ColumnClose}, func() ([]bool, error) {
			ret, _ := b.table.Float(DailyReturnName)
			out := make([]bool, len(close))
			for i := range out {
				out[i] = ret[i] >= s.YangReturn
			}
			return out, nil
		})
	b.streak("", VolumeExpansionCountName, VolumeExpansionName, s.ExpansionDays,
		[]string{contracts.ColumnVolume}, func() ([]bool, error) {
			vr, _ := b.table.Float(VolumeRatioName(s.ExpansionWindow))
			out := make([]bool, len(volume))
			for i := range out {
				out[i] = vr[i] >= s.ExpansionRatio
			}
			return out, nil
		})

	b.float(AmplitudeName, contracts.Columns[:4], func() ([]float64, error) { return Amplitude(open, high, low, close) })
	b.streak("", AmplitudeYangCountName, AmplitudeYangName, s.AmplitudeDays,
		contracts.Columns[:4], func() ([]bool, error) {
			amp, _ := b.table.Float(AmplitudeName)
			out := make([]bool, len(close))
			for i := range out {
				out[i] = amp[i] >= s.AmplitudeThreshold && close[i] > open[i]
			}
			return out, nil
		})

	b.float(RSIName, []string{contracts.ColumnClose}, func() ([]float64, error) { return RSI(close, s.RSIWindow) })
	if b.requireColumns(MACDName, []string{contracts.ColumnClose}) {
		dif, dea, hist, err := MACD(close, s.MACDFast, s.MACDSlow, s.MACDSignal)
		if err != nil {
			b.err = err
		} else {
			b.set(DIFName, dif)
			b.set(DEAName, dea)
			b.set(MACDName, hist)
		}
	}
	b.float(VolatilityName, []string{contracts.ColumnClose}, func() ([]float64, error) {
		ret, _ := b.table.Float(DailyReturnName)
		return Volatility(ret, s.VolatilityWindow)
	})

	if b.err != nil {
		return nil, b.err
	}

	c.logger.WithFields(map[string]interface{}{
		"symbol":     history.Symbol,
		"rows":       b.table.Len(),
		"indicators": b.table.Count(),
	}).Debug("Computed indicators")

	return b.table, nil
}

// builder accumulates series and remembers the first failure
type builder struct {
	table   *Table
	missing map[string]bool
	err     error
}

func (b *builder) requireColumns(name string, cols []string) bool {
	if b.err != nil {
		return false
	}
	for _, col := range cols {
		if b.missing[col] {
			b.err = calcErr(name, "missing source column %s", col)
			return false
		}
	}
	return true
}

func (b *builder) float(name string, cols []string, fn func() ([]float64, error)) {
	if !b.requireColumns(name, cols) {
		return
	}
	series, err := fn()
	if err != nil {
		b.err = rename(err, name)
		return
	}
	b.set(name, series)
}

func (b *builder) set(name string, series []float64) {
	if err := b.table.SetFloat(name, series); err != nil {
		b.err = calcErr(name, "%v", err)
	}
}

func (b *builder) flag(name string, cols []string, fn func() ([]bool, error)) {
	if !b.requireColumns(name, cols) {
		return
	}
	series, err := fn()
	if err != nil {
		b.err = rename(err, name)
		return
	}
	if err := b.table.SetFlag(name, series); err != nil {
		b.err = calcErr(name, "%v", err)
	}
}

// streak stores an optional daily flag, its running count and the
// "at least days in a row" flag, all from one ConsecutiveCount pass
func (b *builder) streak(dailyName, countName, runName string, days int, cols []string, fn func() ([]bool, error)) {
	if !b.requireColumns(runName, cols) {
		return
	}
	if days <= 0 {
		b.err = calcErr(runName, "consecutive days must be positive, got %d", days)
		return
	}
	daily, err := fn()
	if err != nil {
		b.err = rename(err, runName)
		return
	}
	counts := ConsecutiveCount(daily)
	countSeries := make([]float64, len(counts))
	for i, c := range counts {
		countSeries[i] = float64(c)
	}
	if dailyName != "" {
		_ = b.table.SetFlag(dailyName, daily)
	}
	b.set(countName, countSeries)
	if b.err == nil {
		_ = b.table.SetFlag(runName, AtLeast(counts, days))
	}
}

// rename makes the error name the table series that failed
func rename(err error, name string) error {
	if ce, ok := err.(*CalculationError); ok {
		return &CalculationError{Indicator: name, Reason: ce.Reason}
	}
	return calcErr(name, "%v", err)
}

func bullishTrend(t *Table, close []float64, short, long int) ([]bool, error) {
	maShort, ok1 := t.Float(MAName(short))
	maLong, ok2 := t.Float(MAName(long))
	if !ok1 || !ok2 {
		return nil, calcErr(BullishTrendName, "moving averages %d/%d unavailable", short, long)
	}
	out := make([]bool, len(close))
	for i := range close {
		out[i] = maShort[i] > maLong[i] && close[i] > maShort[i]
	}
	return out, nil
}

// maAligned is true when the averages are strictly decreasing in period
// order and close is above the shortest one
func maAligned(t *Table, close []float64, periods []int) ([]bool, error) {
	if len(periods) == 0 {
		return nil, calcErr(MAAlignedName, "no periods configured")
	}
	sorted := union(periods)
	series := make([][]float64, len(sorted))
	for i, p := range sorted {
		s, ok := t.Float(MAName(p))
		if !ok {
			return nil, calcErr(MAAlignedName, "moving average %d unavailable", p)
		}
		series[i] = s
	}
	out := make([]bool, len(close))
	for i := range close {
		aligned := close[i] > series[0][i]
		for k := 1; aligned && k < len(series); k++ {
			aligned = series[k-1][i] > series[k][i]
		}
		out[i] = aligned
	}
	return out, nil
}
