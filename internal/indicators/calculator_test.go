package indicators

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/screener/internal/contracts"
	"github.com/wonny/screener/pkg/logger"
)

func walkHistory(n int) *contracts.PriceHistory {
	h := &contracts.PriceHistory{Symbol: "TEST"}
	start := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	price := 100.0
	for i := 0; i < n; i++ {
		step := math.Sin(float64(i)/7) * 2
		open := price
		price = math.Max(1, price+step)
		high := math.Max(open, price) * 1.01
		low := math.Min(open, price) * 0.99
		h.Bars = append(h.Bars, contracts.PriceBar{
			Date:   start.AddDate(0, 0, i),
			Open:   open,
			High:   high,
			Low:    low,
			Close:  price,
			Volume: 1000 + float64(i%10)*100,
		})
	}
	return h
}

func TestCompute_ProducesAlignedBattery(t *testing.T) {
	calc := NewCalculator(DefaultSpec(), logger.NewNop())
	history := walkHistory(300)

	table, err := calc.Compute(history)
	require.NoError(t, err)
	assert.Equal(t, history.Len(), table.Len())

	for _, name := range []string{
		"ma5", "ma10", "ma20", "ma60", "ema12", "ema26",
		"volume_ratio_5", "volume_ratio_10", DailyReturnName,
		"high_20", "high_60", "high_240", "low_60", "drawdown_60",
		BullishTrendName, MAAlignedName, BigYangName, BigYangCountName, BigYangRunName,
		ConsecutiveYangName, VolumeExpansionName, AmplitudeName, AmplitudeYangName,
		RSIName, DIFName, DEAName, MACDName, VolatilityName,
	} {
		assert.True(t, table.Has(name), "missing %s", name)
	}

	dd, _ := table.Float("drawdown_60")
	for _, v := range dd {
		assert.LessOrEqual(t, v, 0.0)
	}
}

func TestCompute_Idempotent(t *testing.T) {
	calc := NewCalculator(DefaultSpec(), logger.NewNop())
	history := walkHistory(260)

	first, err := calc.Compute(history)
	require.NoError(t, err)
	second, err := calc.Compute(history)
	require.NoError(t, err)

	assert.True(t, first.Equal(second))
}

func TestCompute_MergedRequirements(t *testing.T) {
	spec := DefaultSpec().Merge(Requirements{
		MAPeriods:       []int{15},
		HighWindows:     []int{90},
		DrawdownWindows: []int{90},
	})
	assert.Equal(t, []int{5, 10, 15, 20, 60}, spec.MAPeriods)

	table, err := NewCalculator(spec, logger.NewNop()).Compute(walkHistory(120))
	require.NoError(t, err)
	assert.True(t, table.Has("ma15"))
	assert.True(t, table.Has("high_90"))
	assert.True(t, table.Has("drawdown_90"))
}

func TestCompute_Failures(t *testing.T) {
	tests := []struct {
		name          string
		spec          func() Spec
		history       func() *contracts.PriceHistory
		wantIndicator string
	}{
		{
			name:          "empty history",
			spec:          DefaultSpec,
			history:       func() *contracts.PriceHistory { return &contracts.PriceHistory{Symbol: "X"} },
			wantIndicator: "table",
		},
		{
			name: "non-positive window",
			spec: func() Spec {
				s := DefaultSpec()
				s.RSIWindow = 0
				return s
			},
			history:       func() *contracts.PriceHistory { return walkHistory(30) },
			wantIndicator: RSIName,
		},
		{
			name: "missing volume column",
			spec: DefaultSpec,
			history: func() *contracts.PriceHistory {
				h := walkHistory(30)
				h.Bars[3].Volume = math.NaN()
				return h
			},
			wantIndicator: "volume_ratio_5",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table, err := NewCalculator(tt.spec(), logger.NewNop()).Compute(tt.history())
			assert.Nil(t, table)

			var calcErr *CalculationError
			require.True(t, errors.As(err, &calcErr), "got %v", err)
			assert.Equal(t, tt.wantIndicator, calcErr.Indicator)
		})
	}
}

func TestCompute_StreakFlags(t *testing.T) {
	h := walkHistory(30)
	// two wide-range up days at the end
	for _, i := range []int{28, 29} {
		prev := h.Bars[i-1].Close
		h.Bars[i] = contracts.PriceBar{Date: h.Bars[i].Date, Open: prev, Low: prev, High: prev * 1.12, Close: prev * 1.1, Volume: 5000}
	}

	table, err := NewCalculator(DefaultSpec(), logger.NewNop()).Compute(h)
	require.NoError(t, err)

	counts, _ := table.Float(AmplitudeYangCountName)
	assert.Equal(t, 2.0, counts[29])
	run, ok := table.LastFlag(AmplitudeYangName)
	require.True(t, ok)
	assert.True(t, run)

	yang, _ := table.LastFlag(ConsecutiveYangName)
	assert.True(t, yang)
}

func TestValidate(t *testing.T) {
	calc := NewCalculator(DefaultSpec(), logger.NewNop())
	history := walkHistory(100)
	table, err := calc.Compute(history)
	require.NoError(t, err)

	report := calc.Validate(history, table)
	assert.True(t, report.DataIntegrity)
	assert.Equal(t, 1.0, report.Coverage)
	assert.Empty(t, report.MissingValues)
	assert.Equal(t, 100.0, report.QualityScore)

	partial := NewTable(history.Dates())
	ma5, _ := table.Float("ma5")
	require.NoError(t, partial.SetFloat("ma5", ma5))
	report = calc.Validate(history.Tail(50), partial)
	assert.False(t, report.DataIntegrity)
	assert.InDelta(t, 100.0/6*0.5, report.QualityScore, 1e-9)
}

func TestValidate_FlatWindowIsNotMissing(t *testing.T) {
	calc := NewCalculator(DefaultSpec(), logger.NewNop())
	history := walkHistory(40)
	last := history.Last()
	for i := 0; i < 60; i++ {
		volume := 500.0
		if i >= 50 {
			volume = 0 // trading halt
		}
		history.Bars = append(history.Bars, contracts.PriceBar{
			Date:   last.Date.AddDate(0, 0, i+1),
			Open:   last.Close,
			High:   last.Close,
			Low:    last.Close,
			Close:  last.Close,
			Volume: volume,
		})
	}
	require.NoError(t, history.Validate())

	table, err := calc.Compute(history)
	require.NoError(t, err)
	rsi, _ := table.Last(RSIName)
	require.True(t, math.IsNaN(rsi))
	ratio, _ := table.Last(VolumeRatioName(5))
	require.True(t, math.IsNaN(ratio))

	report := calc.Validate(history, table)
	assert.Empty(t, report.MissingValues)
	assert.Equal(t, 100.0, report.QualityScore)

	ma5, _ := table.Float("ma5")
	broken := append([]float64(nil), ma5...)
	broken[80] = math.NaN()
	require.NoError(t, table.SetFloat("ma5", broken))

	report = calc.Validate(history, table)
	assert.Equal(t, map[string]int{"ma5": 1}, report.MissingValues)
	assert.InDelta(t, 80.0, report.QualityScore, 1e-9)
}

func TestTable_RejectsLengthMismatch(t *testing.T) {
	table := NewTable(make([]time.Time, 3))
	assert.Error(t, table.SetFloat("ma5", []float64{1, 2}))
	assert.Error(t, table.SetFlag("big_yang", []bool{true}))
	assert.NoError(t, table.SetFloat("ma5", []float64{1, 2, 3}))
	assert.Equal(t, []string{"ma5"}, table.Names())
	assert.Equal(t, []string{"ma10"}, table.Missing("ma5", "ma10"))

	v, ok := table.Last("ma5")
	assert.True(t, ok)
	assert.Equal(t, 3.0, v)
}
