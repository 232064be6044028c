package rules

import (
	"fmt"
	"math"

	"github.com/wonny/screener/internal/contracts"
	"github.com/wonny/screener/internal/indicators"
)

// GoldenPitName is the registry name of the deep pullback rule
const GoldenPitName = "GoldenPit"

// GoldenPit parameter keys
const (
	ParamDrawdownThreshold  = "drawdown_threshold"
	ParamMAPeriod           = "ma_period"
	ParamHighLookbackPeriod = "high_lookback_period"
)

// GoldenPitDefaults returns the default configuration of the deep pullback rule
func GoldenPitDefaults() Config {
	return Config{
		Enabled: true,
		Weight:  1.0,
		Params: map[string]float64{
			ParamDrawdownThreshold:  0.20,
			ParamMAPeriod:           10,
			ParamHighLookbackPeriod: 60,
		},
		ListParams: map[string][]int{},
		Thresholds: Thresholds{MinScore: 60, HighScore: 85},
	}
}

// GoldenPit detects a stock that fell sharply from a prior high and has
// reclaimed a short moving average (황금 구덩이: 깊은 조정 후 이평선 회복)
type GoldenPit struct {
	cfg       Config
	threshold float64
	maPeriod  int
	lookback  int
	scoring   scoring
}

// NewGoldenPit builds the rule from its defaults plus overrides
func NewGoldenPit(overrides ...Override) (*GoldenPit, error) {
	cfg, err := GoldenPitDefaults().Merge(GoldenPitName, overrides...)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(GoldenPitName); err != nil {
		return nil, err
	}
	if err := requirePositive(GoldenPitName, cfg, ParamDrawdownThreshold); err != nil {
		return nil, err
	}
	if cfg.Param(ParamDrawdownThreshold) >= 1 {
		return nil, &ConfigError{Rule: GoldenPitName, Field: "params." + ParamDrawdownThreshold, Message: "must be < 1"}
	}
	if err := requireWindow(GoldenPitName, cfg, ParamMAPeriod, ParamHighLookbackPeriod); err != nil {
		return nil, err
	}

	return &GoldenPit{
		cfg:       cfg,
		threshold: cfg.Param(ParamDrawdownThreshold),
		maPeriod:  cfg.IntParam(ParamMAPeriod),
		lookback:  cfg.IntParam(ParamHighLookbackPeriod),
		scoring: scoring{
			thresholds: cfg.Thresholds,
			pass:       0.9,
			partial:    0.7,
			fail:       0.5,
		},
	}, nil
}

func (r *GoldenPit) Name() string { return GoldenPitName }

func (r *GoldenPit) Config() Config { return r.cfg.clone() }

// Requirements asks for the MA, rolling high and drawdown windows used
func (r *GoldenPit) Requirements() indicators.Requirements {
	return indicators.Requirements{
		MAPeriods:       []int{r.maPeriod},
		HighWindows:     []int{r.lookback},
		DrawdownWindows: []int{r.lookback},
	}
}

// CheckConditions scores pullback depth (A) and the MA reclaim (B).
// Both must hold for PASS or PARTIAL.
func (r *GoldenPit) CheckConditions(history *contracts.PriceHistory, table *indicators.Table) contracts.Verdict {
	need := max(r.lookback, r.maPeriod)
	if history.Len() < need {
		return insufficient(GoldenPitName, history.Len(), need)
	}

	maName := indicators.MAName(r.maPeriod)
	highName := indicators.HighName(r.lookback)
	ddName := indicators.DrawdownName(r.lookback)
	if missing := table.Missing(maName, highName, ddName); len(missing) > 0 {
		return missingIndicators(GoldenPitName, missing)
	}

	drawdown, _ := table.Float(ddName)
	maxDrawdown, pitIndex := deepest(drawdown)
	depth := math.Abs(maxDrawdown)

	// A: pullback depth
	pullbackMet := depth >= r.threshold
	scoreA := 0.0
	if pullbackMet {
		scoreA = math.Min(100, 40+(depth-r.threshold)*200)
	}

	// B: moving-average reclaim
	last := history.Last()
	ma, ok := table.Last(maName)
	if !ok || ma <= 0 {
		return missingIndicators(GoldenPitName, []string{maName})
	}
	margin := (last.Close - ma) / ma
	reclaimMet := last.Close > ma
	var scoreB float64
	if reclaimMet {
		scoreB = math.Min(100, 50+margin*500)
	} else {
		scoreB = math.Max(0, (1-math.Abs(margin))*30)
	}

	score := mean(scoreA, scoreB)
	outcome, confidence := r.scoring.classify(score, pullbackMet && reclaimMet)

	previousHigh, _ := table.Last(highName)
	details := contracts.VerdictDetails{
		Description: r.Describe().Summary,
		SubScores: map[string]float64{
			"pullback":   scoreA,
			"ma_reclaim": scoreB,
		},
		Conditions: map[string]bool{
			"pullback":   pullbackMet,
			"ma_reclaim": reclaimMet,
		},
		Values: map[string]float64{
			"max_drawdown":  maxDrawdown,
			"threshold":     r.threshold,
			"current_price": last.Close,
			"ma_value":      ma,
			"ma_margin":     margin,
			"previous_high": previousHigh,
		},
	}
	if pitIndex >= 0 {
		pitDate := history.Bars[pitIndex].Date
		details.TriggerDate = &pitDate
	}

	return contracts.Verdict{
		Outcome:    outcome,
		Score:      score,
		Confidence: confidence,
		Details:    details,
	}
}

// Describe summarizes the rule with its current parameters
func (r *GoldenPit) Describe() Description {
	return Description{
		Name:    GoldenPitName,
		Title:   "Golden Pit",
		Summary: "Deep pullback from a prior high followed by a moving average reclaim",
		Conditions: []string{
			fmt.Sprintf("Pullback of at least %.0f%% from the %d-bar high", r.threshold*100, r.lookback),
			fmt.Sprintf("Latest close above the %d-day moving average", r.maPeriod),
		},
		Params:     r.cfg.clone().Params,
		Weight:     r.cfg.Weight,
		Enabled:    r.cfg.Enabled,
		Thresholds: r.cfg.Thresholds,
	}
}

// deepest returns the most negative drawdown and its index (-1 when none)
func deepest(drawdown []float64) (float64, int) {
	worst, at := 0.0, -1
	for i, v := range drawdown {
		if !math.IsNaN(v) && v < worst {
			worst, at = v, i
		}
	}
	return worst, at
}
