package rules

import (
	"fmt"
	"math"
	"sort"

	"github.com/wonny/screener/internal/contracts"
	"github.com/wonny/screener/internal/indicators"
)

// TrendBreakoutName is the registry name of the breakout rule
const TrendBreakoutName = "TrendBreakout"

// TrendBreakout parameter keys. The lookback reuses ParamHighLookbackPeriod.
const (
	ParamMAPeriods            = "ma_periods"
	ParamVolumeRatioThreshold = "volume_ratio_threshold"
	ParamAmplitudeThreshold   = "amplitude_threshold"
	ParamConsecutiveDays      = "consecutive_days"
	ParamYangRequired         = "yang_required"
	ParamBreakoutConfirmation = "breakout_confirmation"
)

// volumeRatioWindow is the trailing average used by the volume gate
const volumeRatioWindow = 5

// TrendBreakoutDefaults returns the default configuration of the breakout rule
func TrendBreakoutDefaults() Config {
	return Config{
		Enabled: true,
		Weight:  1.0,
		Params: map[string]float64{
			ParamVolumeRatioThreshold: 2.0,
			ParamAmplitudeThreshold:   0.07,
			ParamConsecutiveDays:      2,
			ParamHighLookbackPeriod:   240,
			ParamYangRequired:         1,
			ParamBreakoutConfirmation: 0.001,
		},
		ListParams: map[string][]int{
			ParamMAPeriods: {5, 10, 20, 60},
		},
		Thresholds: Thresholds{MinScore: 65, HighScore: 88},
	}
}

// TrendBreakout detects a confirmed uptrend breaking above its long-term
// high on consecutive high-volume wide-range up days. Every gate must pass.
type TrendBreakout struct {
	cfg          Config
	maPeriods    []int
	volumeRatio  float64
	amplitude    float64
	consecutive  int
	lookback     int
	yangRequired bool
	confirmation float64
	scoring      scoring
}

// NewTrendBreakout builds the rule from its defaults plus overrides
func NewTrendBreakout(overrides ...Override) (*TrendBreakout, error) {
	cfg, err := TrendBreakoutDefaults().Merge(TrendBreakoutName, overrides...)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(TrendBreakoutName); err != nil {
		return nil, err
	}
	if err := requirePositive(TrendBreakoutName, cfg, ParamVolumeRatioThreshold, ParamAmplitudeThreshold); err != nil {
		return nil, err
	}
	if err := requireWindow(TrendBreakoutName, cfg, ParamConsecutiveDays, ParamHighLookbackPeriod); err != nil {
		return nil, err
	}
	if c := cfg.Param(ParamBreakoutConfirmation); c < 0 {
		return nil, &ConfigError{Rule: TrendBreakoutName, Field: "params." + ParamBreakoutConfirmation, Message: "must be >= 0"}
	}
	if y := cfg.Param(ParamYangRequired); y != 0 && y != 1 {
		return nil, &ConfigError{Rule: TrendBreakoutName, Field: "params." + ParamYangRequired, Message: "must be 0 or 1"}
	}

	periods := cfg.ListParam(ParamMAPeriods)
	if len(periods) < 2 {
		return nil, &ConfigError{Rule: TrendBreakoutName, Field: "list_params." + ParamMAPeriods, Message: "need at least two periods"}
	}
	sort.Ints(periods)
	for i, p := range periods {
		if p <= 0 || (i > 0 && p == periods[i-1]) {
			return nil, &ConfigError{Rule: TrendBreakoutName, Field: "list_params." + ParamMAPeriods, Message: "periods must be positive and distinct"}
		}
	}
	cfg.ListParams[ParamMAPeriods] = periods

	return &TrendBreakout{
		cfg:          cfg,
		maPeriods:    periods,
		volumeRatio:  cfg.Param(ParamVolumeRatioThreshold),
		amplitude:    cfg.Param(ParamAmplitudeThreshold),
		consecutive:  cfg.IntParam(ParamConsecutiveDays),
		lookback:     cfg.IntParam(ParamHighLookbackPeriod),
		yangRequired: cfg.Param(ParamYangRequired) == 1,
		confirmation: cfg.Param(ParamBreakoutConfirmation),
		scoring: scoring{
			thresholds: cfg.Thresholds,
			pass:       0.95,
			partial:    0.75,
			fail:       0.55,
		},
	}, nil
}

func (r *TrendBreakout) Name() string { return TrendBreakoutName }

func (r *TrendBreakout) Config() Config { return r.cfg.clone() }

// Requirements asks for every MA period, the 5-day volume ratio and the breakout high
func (r *TrendBreakout) Requirements() indicators.Requirements {
	return indicators.Requirements{
		MAPeriods:          append([]int(nil), r.maPeriods...),
		HighWindows:        []int{r.lookback},
		VolumeRatioWindows: []int{volumeRatioWindow},
	}
}

func (r *TrendBreakout) required() []string {
	names := make([]string, 0, len(r.maPeriods)+3)
	for _, p := range r.maPeriods {
		names = append(names, indicators.MAName(p))
	}
	return append(names,
		indicators.VolumeRatioName(volumeRatioWindow),
		indicators.AmplitudeName,
		indicators.HighName(r.lookback),
	)
}

// CheckConditions evaluates the four gates. Each gate scores 0 or 90+,
// and any failing gate forces FAIL.
func (r *TrendBreakout) CheckConditions(history *contracts.PriceHistory, table *indicators.Table) contracts.Verdict {
	need := max(r.lookback, r.maPeriods[len(r.maPeriods)-1], r.consecutive+1)
	if history.Len() < need {
		return insufficient(TrendBreakoutName, history.Len(), need)
	}
	if missing := table.Missing(r.required()...); len(missing) > 0 {
		return missingIndicators(TrendBreakoutName, missing)
	}

	n := history.Len()
	last := history.Last()
	values := make(map[string]float64)

	// 1. MA alignment: MA5 > MA10 > MA20 > MA60 and close > MA5
	mas := make([]float64, len(r.maPeriods))
	for i, p := range r.maPeriods {
		mas[i], _ = table.Last(indicators.MAName(p))
		values[indicators.MAName(p)] = mas[i]
	}
	aligned := last.Close > mas[0]
	for i := 1; aligned && i < len(mas); i++ {
		aligned = mas[i-1] > mas[i]
	}
	alignScore := 0.0
	if aligned {
		alignScore = 90 + math.Min(10, (last.Close/mas[0]-1)*100)
	}

	// 2. consecutive volume surge
	ratios, _ := table.Float(indicators.VolumeRatioName(volumeRatioWindow))
	surge := make([]bool, n)
	for i, v := range ratios {
		surge[i] = v >= r.volumeRatio
	}
	surgeRun := indicators.ConsecutiveCount(surge)[n-1]
	minRatio := minTail(ratios, r.consecutive)
	volumeMet := surgeRun >= r.consecutive
	volumeScore := 0.0
	if volumeMet {
		volumeScore = math.Min(100, 90+(minRatio-r.volumeRatio)*10)
	}
	values["volume_run"] = float64(surgeRun)
	values["min_volume_ratio"] = minRatio

	// 3. consecutive wide-range up days
	amps, _ := table.Float(indicators.AmplitudeName)
	wide := make([]bool, n)
	for i, a := range amps {
		bar := history.Bars[i]
		wide[i] = a >= r.amplitude && (!r.yangRequired || bar.Close > bar.Open)
	}
	wideRun := indicators.ConsecutiveCount(wide)[n-1]
	minAmp := minTail(amps, r.consecutive)
	amplitudeMet := wideRun >= r.consecutive
	amplitudeScore := 0.0
	if amplitudeMet {
		amplitudeScore = math.Min(100, 90+(minAmp-r.amplitude)*100)
	}
	values["amplitude_run"] = float64(wideRun)
	values["min_amplitude"] = minAmp

	// 4. breakout over the high that stood before today
	priorHigh, ok := table.At(indicators.HighName(r.lookback), n-2)
	if !ok || priorHigh <= 0 {
		return missingIndicators(TrendBreakoutName, []string{indicators.HighName(r.lookback)})
	}
	overshoot := last.Close/priorHigh - 1
	breakoutMet := last.Close > priorHigh*(1+r.confirmation)
	breakoutScore := 0.0
	if breakoutMet {
		breakoutScore = math.Min(90+overshoot*100, 100)
	}
	values["previous_high"] = priorHigh
	values["breakout_margin"] = overshoot
	values["current_price"] = last.Close

	score := mean(alignScore, volumeScore, amplitudeScore, breakoutScore)
	outcome, confidence := r.scoring.classify(score, aligned && volumeMet && amplitudeMet && breakoutMet)

	triggerDate := last.Date
	return contracts.Verdict{
		Outcome:    outcome,
		Score:      score,
		Confidence: confidence,
		Details: contracts.VerdictDetails{
			Description: r.Describe().Summary,
			SubScores: map[string]float64{
				"ma_alignment": alignScore,
				"volume":       volumeScore,
				"amplitude":    amplitudeScore,
				"breakout":     breakoutScore,
			},
			Conditions: map[string]bool{
				"ma_alignment": aligned,
				"volume":       volumeMet,
				"amplitude":    amplitudeMet,
				"breakout":     breakoutMet,
			},
			Values:      values,
			TriggerDate: &triggerDate,
		},
	}
}

// Describe summarizes the rule with its current parameters
func (r *TrendBreakout) Describe() Description {
	cfg := r.cfg.clone()
	yang := ""
	if r.yangRequired {
		yang = ", each closing up"
	}
	return Description{
		Name:    TrendBreakoutName,
		Title:   "Trend Breakout",
		Summary: "Aligned uptrend breaking its long-term high on consecutive high-volume wide-range days",
		Conditions: []string{
			fmt.Sprintf("Moving averages strictly aligned %v with close above the shortest", r.maPeriods),
			fmt.Sprintf("Volume at least %.1fx the 5-day average for %d days in a row", r.volumeRatio, r.consecutive),
			fmt.Sprintf("Intraday range of at least %.0f%% for %d days in a row%s", r.amplitude*100, r.consecutive, yang),
			fmt.Sprintf("Close above the prior %d-bar high by at least %.1f%%", r.lookback, r.confirmation*100),
		},
		Params:     cfg.Params,
		ListParams: cfg.ListParams,
		Weight:     cfg.Weight,
		Enabled:    cfg.Enabled,
		Thresholds: cfg.Thresholds,
	}
}

// minTail returns the smallest of the last n values, ignoring NaN
func minTail(values []float64, n int) float64 {
	out := math.NaN()
	for i := max(0, len(values)-n); i < len(values); i++ {
		v := values[i]
		if math.IsNaN(v) {
			continue
		}
		if math.IsNaN(out) || v < out {
			out = v
		}
	}
	return out
}
