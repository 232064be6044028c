package indicators

import "math"

// SMA is the trailing simple moving average with minimum periods 1.
// The first w-1 values average all available samples.
func SMA(values []float64, window int) ([]float64, error) {
	if err := checkInput("sma", len(values), window); err != nil {
		return nil, err
	}

	out := make([]float64, len(values))
	var sum float64
	for i, v := range values {
		sum += v
		if i >= window {
			sum -= values[i-window]
		}
		n := window
		if i+1 < window {
			n = i + 1
		}
		out[i] = sum / float64(n)
	}
	return out, nil
}

// EMA is the recursive exponential moving average with alpha 2/(span+1),
// seeded by the first observation.
func EMA(values []float64, span int) ([]float64, error) {
	if err := checkInput("ema", len(values), span); err != nil {
		return nil, err
	}

	alpha := 2.0 / float64(span+1)
	out := make([]float64, len(values))
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = alpha*values[i] + (1-alpha)*out[i-1]
	}
	return out, nil
}

// VolumeRatio divides each volume by its trailing window average (today included)
func VolumeRatio(volume []float64, window int) ([]float64, error) {
	if err := checkInput("volume_ratio", len(volume), window); err != nil {
		return nil, err
	}

	avg, _ := SMA(volume, window)
	out := make([]float64, len(volume))
	for i := range volume {
		out[i] = ratio(volume[i], avg[i])
	}
	return out, nil
}

// RollingMax is the trailing window maximum with minimum periods 1
func RollingMax(values []float64, window int) ([]float64, error) {
	if err := checkInput("rolling_max", len(values), window); err != nil {
		return nil, err
	}
	return rollingExtreme(values, window, func(a, b float64) bool { return a > b }), nil
}

// RollingMin is the trailing window minimum with minimum periods 1
func RollingMin(values []float64, window int) ([]float64, error) {
	if err := checkInput("rolling_min", len(values), window); err != nil {
		return nil, err
	}
	return rollingExtreme(values, window, func(a, b float64) bool { return a < b }), nil
}

// rollingExtreme keeps a monotonic deque of indices so each window is O(1) amortized
func rollingExtreme(values []float64, window int, better func(a, b float64) bool) []float64 {
	out := make([]float64, len(values))
	deque := make([]int, 0, window)
	for i, v := range values {
		for len(deque) > 0 && deque[0] <= i-window {
			deque = deque[1:]
		}
		for len(deque) > 0 && !better(values[deque[len(deque)-1]], v) {
			deque = deque[:len(deque)-1]
		}
		deque = append(deque, i)
		out[i] = values[deque[0]]
	}
	return out
}

// DailyReturn is close[t]/close[t-1]-1, NaN on the first bar
func DailyReturn(close []float64) ([]float64, error) {
	if len(close) == 0 {
		return nil, calcErr("daily_return", "empty input")
	}

	out := make([]float64, len(close))
	out[0] = math.NaN()
	for i := 1; i < len(close); i++ {
		out[i] = ratio(close[i], close[i-1]) - 1
	}
	return out, nil
}

// Drawdown is (close - rollingHigh)/rollingHigh where rollingHigh is the
// trailing window max of the high series. Values are always <= 0 for valid bars.
func Drawdown(close, high []float64, window int) ([]float64, error) {
	if err := checkInput("drawdown", len(close), window); err != nil {
		return nil, err
	}
	if len(high) != len(close) {
		return nil, calcErr("drawdown", "high/close length mismatch")
	}

	rollingHigh, _ := RollingMax(high, window)
	out := make([]float64, len(close))
	for i := range close {
		out[i] = ratio(close[i]-rollingHigh[i], rollingHigh[i])
	}
	return out, nil
}

// ConsecutiveCount is the running length of the current true streak.
// It resets to 0 on every false value.
func ConsecutiveCount(flags []bool) []int {
	out := make([]int, len(flags))
	count := 0
	for i, f := range flags {
		if f {
			count++
		} else {
			count = 0
		}
		out[i] = count
	}
	return out
}

// AtLeast marks the positions where a streak count reaches n
func AtLeast(counts []int, n int) []bool {
	out := make([]bool, len(counts))
	for i, c := range counts {
		out[i] = c >= n
	}
	return out
}

// Amplitude is the intraday range (high-low) over the previous close.
// The first bar uses its own open as the base.
func Amplitude(open, high, low, close []float64) ([]float64, error) {
	n := len(close)
	if n == 0 {
		return nil, calcErr("amplitude", "empty input")
	}
	if len(open) != n || len(high) != n || len(low) != n {
		return nil, calcErr("amplitude", "column length mismatch")
	}

	out := make([]float64, n)
	for i := range close {
		base := open[i]
		if i > 0 {
			base = close[i-1]
		}
		out[i] = ratio(high[i]-low[i], base)
	}
	return out, nil
}

// RSI uses simple rolling means of gains and losses over window diffs.
// Values before the first full window are NaN. A zero average loss yields 100
// unless the average gain is also zero.
func RSI(close []float64, window int) ([]float64, error) {
	if err := checkInput("rsi", len(close), window); err != nil {
		return nil, err
	}

	out := make([]float64, len(close))
	var gainSum, lossSum float64
	for i := range close {
		out[i] = math.NaN()
		if i == 0 {
			continue
		}
		gain, loss := splitDelta(close[i] - close[i-1])
		gainSum += gain
		lossSum += loss
		if i > window {
			g, l := splitDelta(close[i-window] - close[i-window-1])
			gainSum -= g
			lossSum -= l
		}
		if i < window {
			continue
		}
		avgGain := gainSum / float64(window)
		avgLoss := lossSum / float64(window)
		switch {
		case avgLoss <= 1e-12 && avgGain <= 1e-12:
			out[i] = math.NaN()
		case avgLoss <= 1e-12:
			out[i] = 100
		default:
			out[i] = 100 - 100/(1+avgGain/avgLoss)
		}
	}
	return out, nil
}

func splitDelta(d float64) (gain, loss float64) {
	if d > 0 {
		return d, 0
	}
	return 0, -d
}

// MACD returns DIF = EMA(fast) - EMA(slow), DEA = EMA(DIF, signal) and
// the histogram 2*(DIF-DEA)
func MACD(close []float64, fast, slow, signal int) (dif, dea, hist []float64, err error) {
	if err := checkInput("macd", len(close), min(fast, slow, signal)); err != nil {
		return nil, nil, nil, err
	}

	emaFast, _ := EMA(close, fast)
	emaSlow, _ := EMA(close, slow)
	dif = make([]float64, len(close))
	for i := range close {
		dif[i] = emaFast[i] - emaSlow[i]
	}
	dea, _ = EMA(dif, signal)
	hist = make([]float64, len(close))
	for i := range close {
		hist[i] = 2 * (dif[i] - dea[i])
	}
	return dif, dea, hist, nil
}

// Volatility is the rolling sample standard deviation of returns with
// minimum periods 1. NaN inputs are skipped, fewer than two samples yield NaN.
func Volatility(returns []float64, window int) ([]float64, error) {
	if err := checkInput("volatility", len(returns), window); err != nil {
		return nil, err
	}

	out := make([]float64, len(returns))
	for i := range returns {
		start := i - window + 1
		if start < 0 {
			start = 0
		}
		var sum, sumSq float64
		n := 0
		for _, v := range returns[start : i+1] {
			if math.IsNaN(v) {
				continue
			}
			sum += v
			sumSq += v * v
			n++
		}
		if n < 2 {
			out[i] = math.NaN()
			continue
		}
		mean := sum / float64(n)
		variance := (sumSq - float64(n)*mean*mean) / float64(n-1)
		if variance < 0 {
			variance = 0
		}
		out[i] = math.Sqrt(variance)
	}
	return out, nil
}

// ratio divides, returning NaN when the denominator is zero
func ratio(num, den float64) float64 {
	if den == 0 {
		return math.NaN()
	}
	return num / den
}
