package indicators

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSMA_MinPeriodsOne(t *testing.T) {
	got, err := SMA([]float64{2, 4, 6, 8, 10}, 3)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{2, 3, 4, 6, 8}, got, 1e-12)
}

func TestEMA_SeededByFirstObservation(t *testing.T) {
	got, err := EMA([]float64{10, 20, 20}, 3)
	require.NoError(t, err)
	// alpha = 0.5
	assert.InDeltaSlice(t, []float64{10, 15, 17.5}, got, 1e-12)
}

func TestVolumeRatio(t *testing.T) {
	got, err := VolumeRatio([]float64{100, 100, 400}, 2)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, got[0], 1e-12)
	assert.InDelta(t, 1.0, got[1], 1e-12)
	assert.InDelta(t, 1.6, got[2], 1e-12)

	zero, err := VolumeRatio([]float64{0, 0}, 5)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(zero[1]))
}

func TestRollingExtremes(t *testing.T) {
	values := []float64{3, 1, 4, 1, 5, 9, 2, 6}
	high, err := RollingMax(values, 3)
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 3, 4, 4, 5, 9, 9, 9}, high)

	low, err := RollingMin(values, 3)
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 1, 1, 1, 1, 1, 2, 2}, low)
}

func TestDailyReturn(t *testing.T) {
	got, err := DailyReturn([]float64{10, 11, 9.9})
	require.NoError(t, err)
	assert.True(t, math.IsNaN(got[0]))
	assert.InDelta(t, 0.1, got[1], 1e-12)
	assert.InDelta(t, -0.1, got[2], 1e-12)
}

func TestDrawdown_NeverPositive(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for trial := 0; trial < 20; trial++ {
		n := 50 + r.Intn(200)
		close := make([]float64, n)
		high := make([]float64, n)
		price := 10.0
		for i := range close {
			price *= 1 + (r.Float64()-0.5)*0.1
			close[i] = price
			high[i] = price * (1 + r.Float64()*0.05)
		}
		for _, w := range []int{1, 5, 60, 240} {
			rollingHigh, err := RollingMax(high, w)
			require.NoError(t, err)
			dd, err := Drawdown(close, high, w)
			require.NoError(t, err)
			for i := range close {
				assert.GreaterOrEqual(t, rollingHigh[i], close[i])
				assert.LessOrEqual(t, dd[i], 0.0)
			}
		}
	}
}

func TestConsecutiveCount(t *testing.T) {
	flags := []bool{true, true, false, true, true, true, false}
	assert.Equal(t, []int{1, 2, 0, 1, 2, 3, 0}, ConsecutiveCount(flags))
	assert.Equal(t, []bool{false, true, false, false, true, true, false}, AtLeast(ConsecutiveCount(flags), 2))
}

func TestAtLeast_MatchesWindowDefinition(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for trial := 0; trial < 50; trial++ {
		flags := make([]bool, 100)
		for i := range flags {
			flags[i] = r.Float64() < 0.6
		}
		for _, n := range []int{1, 2, 3, 5} {
			got := AtLeast(ConsecutiveCount(flags), n)
			for i := range flags {
				want := i+1 >= n
				for k := i - n + 1; want && k <= i; k++ {
					want = flags[k]
				}
				assert.Equal(t, want, got[i], "trial %d n %d index %d", trial, n, i)
			}
		}
	}
}

func TestAmplitude(t *testing.T) {
	open := []float64{10, 10.5}
	high := []float64{11, 11.5}
	low := []float64{9.5, 10.2}
	close := []float64{10, 11}

	got, err := Amplitude(open, high, low, close)
	require.NoError(t, err)
	assert.InDelta(t, 0.15, got[0], 1e-12) // (11-9.5)/open 10
	assert.InDelta(t, 0.13, got[1], 1e-12) // (11.5-10.2)/prev close 10
}

func TestRSI(t *testing.T) {
	rising := []float64{1, 2, 3, 4, 5, 6}
	got, err := RSI(rising, 3)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		assert.True(t, math.IsNaN(got[i]), "index %d", i)
	}
	assert.Equal(t, 100.0, got[5])

	mixed := []float64{10, 11, 10, 12}
	got, err = RSI(mixed, 3)
	require.NoError(t, err)
	// gains 1,0,2 -> 1; losses 0,1,0 -> 1/3; rs = 3
	assert.InDelta(t, 75.0, got[3], 1e-9)

	flat, err := RSI([]float64{5, 5, 5, 5}, 2)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(flat[3]))
}

func TestMACD(t *testing.T) {
	close := []float64{10, 10, 10, 10}
	dif, dea, hist, err := MACD(close, 12, 26, 9)
	require.NoError(t, err)
	for i := range close {
		assert.Zero(t, dif[i])
		assert.Zero(t, dea[i])
		assert.Zero(t, hist[i])
	}

	rising := []float64{10, 11, 12, 13, 14}
	dif, dea, hist, err = MACD(rising, 2, 4, 2)
	require.NoError(t, err)
	last := len(rising) - 1
	assert.Greater(t, dif[last], 0.0)
	assert.InDelta(t, 2*(dif[last]-dea[last]), hist[last], 1e-12)
}

func TestVolatility(t *testing.T) {
	returns := []float64{math.NaN(), 0.01, 0.03}
	got, err := Volatility(returns, 20)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(got[0]))
	assert.True(t, math.IsNaN(got[1]))
	assert.InDelta(t, math.Sqrt(0.0002), got[2], 1e-12)
}

func TestSeries_FailurePolicy(t *testing.T) {
	tests := []struct {
		name string
		fn   func() error
		want string
	}{
		{"sma empty", func() error { _, err := SMA(nil, 5); return err }, "sma"},
		{"ema zero span", func() error { _, err := EMA([]float64{1}, 0); return err }, "ema"},
		{"volume ratio negative window", func() error { _, err := VolumeRatio([]float64{1}, -1); return err }, "volume_ratio"},
		{"rsi empty", func() error { _, err := RSI(nil, 14); return err }, "rsi"},
		{"drawdown mismatch", func() error { _, err := Drawdown([]float64{1, 2}, []float64{1}, 2); return err }, "drawdown"},
		{"daily return empty", func() error { _, err := DailyReturn(nil); return err }, "daily_return"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.fn()
			var calcErr *CalculationError
			require.True(t, errors.As(err, &calcErr))
			assert.Equal(t, tt.want, calcErr.Indicator)
		})
	}
}
