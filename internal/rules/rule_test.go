package rules

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/screener/internal/contracts"
	"github.com/wonny/screener/internal/indicators"
	"github.com/wonny/screener/internal/marketdata"
	"github.com/wonny/screener/pkg/logger"
)

// stubRule returns a fixed verdict or panics
type stubRule struct {
	name    string
	enabled bool
	verdict contracts.Verdict
	panics  bool
}

func (s *stubRule) Name() string { return s.name }
func (s *stubRule) Config() Config {
	return Config{Enabled: s.enabled, Weight: 1, Thresholds: Thresholds{MinScore: 60, HighScore: 85}}
}
func (s *stubRule) CheckConditions(*contracts.PriceHistory, *indicators.Table) contracts.Verdict {
	if s.panics {
		panic("boom")
	}
	return s.verdict
}
func (s *stubRule) Describe() Description {
	return Description{Name: s.name, Summary: "stub"}
}
func (s *stubRule) Requirements() indicators.Requirements { return indicators.Requirements{} }

func sampleInput(t *testing.T) (*contracts.PriceHistory, *indicators.Table) {
	t.Helper()
	h := marketdata.RandomWalk("S", 80, 1)
	table, err := indicators.NewCalculator(indicators.DefaultSpec(), logger.NewNop()).Compute(h)
	require.NoError(t, err)
	return h, table
}

func TestWrapped_ApplyTagsVerdict(t *testing.T) {
	h, table := sampleInput(t)
	w := Wrap(&stubRule{name: "Stub", enabled: true, verdict: contracts.Verdict{Outcome: contracts.OutcomePass, Score: 90}}, logger.NewNop())

	v := w.Apply("005930", h, table)

	assert.Equal(t, "005930", v.Symbol)
	assert.Equal(t, "Stub", v.Rule)
	assert.Equal(t, "stub", v.Details.Description)
	assert.Equal(t, contracts.OutcomePass, v.Outcome)
}

func TestWrapped_Precheck(t *testing.T) {
	h, table := sampleInput(t)
	w := Wrap(&stubRule{name: "Stub", enabled: true}, logger.NewNop())

	broken := &contracts.PriceHistory{Symbol: "S", Bars: append([]contracts.PriceBar(nil), h.Bars...)}
	broken.Bars[3].Volume = math.NaN()

	tests := []struct {
		name       string
		history    *contracts.PriceHistory
		table      *indicators.Table
		wantReason string
	}{
		{"empty history", &contracts.PriceHistory{Symbol: "S"}, table, contracts.ReasonInsufficientData},
		{"empty table", h, indicators.NewTable(nil), contracts.ReasonMissingIndicators},
		{"length mismatch", h.Tail(40), table, contracts.ReasonInvalidInput},
		{"missing column", broken, table, contracts.ReasonInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := w.Apply("S", tt.history, tt.table)
			assert.Equal(t, contracts.OutcomeError, v.Outcome)
			assert.Equal(t, tt.wantReason, v.Details.Reason)
			assert.Equal(t, 0.0, v.Score)
		})
	}

	stats := w.Statistics()
	assert.Equal(t, int64(4), stats.Executions)
	assert.Equal(t, int64(4), stats.Errors)
	assert.Equal(t, 1.0, stats.ErrorRate)
}

func TestWrapped_DisabledRuleFails(t *testing.T) {
	h, table := sampleInput(t)
	w := Wrap(&stubRule{name: "Stub", enabled: false}, logger.NewNop())

	v := w.Apply("S", h, table)

	assert.Equal(t, contracts.OutcomeFail, v.Outcome)
	assert.Equal(t, contracts.ReasonRuleDisabled, v.Details.Reason)
}

func TestWrapped_PanicBecomesErrorVerdict(t *testing.T) {
	h, table := sampleInput(t)
	w := Wrap(&stubRule{name: "Stub", enabled: true, panics: true}, logger.NewNop())

	var v contracts.Verdict
	require.NotPanics(t, func() { v = w.Apply("S", h, table) })

	assert.Equal(t, contracts.OutcomeError, v.Outcome)
	assert.Equal(t, contracts.ReasonExecutionException, v.Details.Reason)
	assert.Equal(t, "S", v.Symbol)
	assert.Equal(t, int64(1), w.Statistics().Errors)
}

func TestWrapped_SanitizesNonFiniteValues(t *testing.T) {
	h, table := sampleInput(t)
	w := Wrap(&stubRule{name: "Stub", enabled: true, verdict: contracts.Verdict{
		Outcome: contracts.OutcomePartial,
		Score:   math.Inf(1),
		Details: contracts.VerdictDetails{
			Values:    map[string]float64{"nan": math.NaN(), "ok": 1},
			SubScores: map[string]float64{"a": math.NaN()},
		},
	}}, logger.NewNop())

	v := w.Apply("S", h, table)

	assert.Equal(t, 100.0, v.Score)
	assert.Equal(t, map[string]float64{"ok": 1}, v.Details.Values)
	assert.Equal(t, 0.0, v.Details.SubScores["a"])
}

func TestWrapped_ConcurrentStatistics(t *testing.T) {
	h, table := sampleInput(t)
	w := Wrap(&stubRule{name: "Stub", enabled: true, verdict: contracts.Verdict{Outcome: contracts.OutcomeFail}}, logger.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Apply("S", h, table)
		}()
	}
	wg.Wait()

	stats := w.Statistics()
	assert.Equal(t, int64(50), stats.Executions)
	assert.Equal(t, int64(50), stats.Successes)
	assert.Equal(t, 1.0, stats.SuccessRate)

	w.ResetStatistics()
	assert.Equal(t, Stats{Rule: "Stub"}, w.Statistics())
}

func TestScoring_Classify(t *testing.T) {
	s := scoring{thresholds: Thresholds{MinScore: 60, HighScore: 85}, pass: 0.9, partial: 0.7, fail: 0.5}

	tests := []struct {
		score float64
		gate  bool
		want  contracts.Outcome
		conf  float64
	}{
		{85, true, contracts.OutcomePass, 0.9},
		{84.99, true, contracts.OutcomePartial, 0.7},
		{60, true, contracts.OutcomePartial, 0.7},
		{59.99, true, contracts.OutcomeFail, 0.5},
		{100, false, contracts.OutcomeFail, 0.5},
	}
	for _, tt := range tests {
		got, conf := s.classify(tt.score, tt.gate)
		assert.Equal(t, tt.want, got, "score %v gate %v", tt.score, tt.gate)
		assert.Equal(t, tt.conf, conf)
	}
}
