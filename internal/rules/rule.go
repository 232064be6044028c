package rules

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/wonny/screener/internal/contracts"
	"github.com/wonny/screener/internal/indicators"
	"github.com/wonny/screener/pkg/logger"
)

// Rule turns a price history and its indicator table into one verdict.
// Implementations report expected data problems as ERROR verdicts and
// never panic on them.
type Rule interface {
	Name() string
	Config() Config
	// CheckConditions runs the rule-specific logic. The shared pre-check
	// has already run when called through Wrapped.Apply.
	CheckConditions(history *contracts.PriceHistory, table *indicators.Table) contracts.Verdict
	Describe() Description
	// Requirements lists indicator windows the rule reads
	Requirements() indicators.Requirements
}

// Description is the human readable summary of a rule
type Description struct {
	Name       string             `json:"name"`
	Title      string             `json:"title"`
	Summary    string             `json:"summary"`
	Conditions []string           `json:"conditions"`
	Params     map[string]float64 `json:"params"`
	ListParams map[string][]int   `json:"list_params,omitempty"`
	Weight     float64            `json:"weight"`
	Enabled    bool               `json:"enabled"`
	Thresholds Thresholds         `json:"thresholds"`
}

// Stats is a snapshot of a rule's execution counters
type Stats struct {
	Rule        string  `json:"rule"`
	Executions  int64   `json:"execution_count"`
	Successes   int64   `json:"success_count"`
	Errors      int64   `json:"error_count"`
	SuccessRate float64 `json:"success_rate"`
	ErrorRate   float64 `json:"error_rate"`
}

// Wrapped adds the shared pre-check, disabled handling, panic recovery
// and atomic statistics around a Rule
type Wrapped struct {
	Rule
	logger     *logger.Logger
	executions atomic.Int64
	successes  atomic.Int64
	failures   atomic.Int64
}

// Wrap prepares a rule for concurrent use by the engine
func Wrap(rule Rule, log *logger.Logger) *Wrapped {
	return &Wrapped{
		Rule:   rule,
		logger: log.WithRule(rule.Name()),
	}
}

// Apply evaluates the rule for one symbol. It never panics and always
// returns a verdict tagged with symbol and rule name.
func (w *Wrapped) Apply(symbol string, history *contracts.PriceHistory, table *indicators.Table) (verdict contracts.Verdict) {
	w.executions.Add(1)
	name := w.Name()

	defer func() {
		if r := recover(); r != nil {
			w.failures.Add(1)
			w.logger.WithSymbol(symbol).Errorf("Rule panicked: %v", r)
			verdict = contracts.ErrorVerdict(name, contracts.ReasonExecutionException, fmt.Sprint(r))
			verdict.Symbol = symbol
			verdict.Details.Description = w.Describe().Summary
		}
	}()

	if !w.Config().Enabled {
		return contracts.Verdict{
			Symbol:  symbol,
			Rule:    name,
			Outcome: contracts.OutcomeFail,
			Details: contracts.VerdictDetails{Reason: contracts.ReasonRuleDisabled},
		}
	}

	if v, ok := precheck(name, history, table); !ok {
		verdict = v
	} else {
		verdict = w.CheckConditions(history, table)
	}

	verdict.Symbol = symbol
	verdict.Rule = name
	sanitize(&verdict)
	if verdict.Details.Description == "" {
		verdict.Details.Description = w.Describe().Summary
	}
	if verdict.IsError() {
		w.failures.Add(1)
	} else {
		w.successes.Add(1)
	}

	w.logger.WithFields(map[string]interface{}{
		"symbol":  symbol,
		"outcome": verdict.Outcome,
		"score":   verdict.Score,
	}).Debug("Rule applied")

	return verdict
}

// Statistics returns the current counters
func (w *Wrapped) Statistics() Stats {
	s := Stats{
		Rule:       w.Name(),
		Executions: w.executions.Load(),
		Successes:  w.successes.Load(),
		Errors:     w.failures.Load(),
	}
	if s.Executions > 0 {
		s.SuccessRate = float64(s.Successes) / float64(s.Executions)
		s.ErrorRate = float64(s.Errors) / float64(s.Executions)
	}
	return s
}

// ResetStatistics zeroes the counters
func (w *Wrapped) ResetStatistics() {
	w.executions.Store(0)
	w.successes.Store(0)
	w.failures.Store(0)
}

// precheck rejects empty or misaligned input before any rule logic runs
func precheck(rule string, history *contracts.PriceHistory, table *indicators.Table) (contracts.Verdict, bool) {
	switch {
	case history.IsEmpty():
		return contracts.ErrorVerdict(rule, contracts.ReasonInsufficientData, "price history is empty"), false
	case table.Len() == 0:
		return contracts.ErrorVerdict(rule, contracts.ReasonMissingIndicators, "indicator table is empty"), false
	case history.Len() != table.Len():
		return contracts.ErrorVerdict(rule, contracts.ReasonInvalidInput,
			fmt.Sprintf("history has %d rows, indicators have %d", history.Len(), table.Len())), false
	}
	if missing := history.MissingColumns(); len(missing) > 0 {
		v := contracts.ErrorVerdict(rule, contracts.ReasonInvalidInput, "price history lacks required columns")
		v.Details.Missing = missing
		return v, false
	}
	return contracts.Verdict{}, true
}

// scoring is the shared classification policy of a rule
type scoring struct {
	thresholds Thresholds
	// confidence per outcome
	pass, partial, fail float64
}

// classify maps a final score to an outcome. gate false forces FAIL.
func (s scoring) classify(score float64, gate bool) (contracts.Outcome, float64) {
	switch {
	case gate && score >= s.thresholds.HighScore:
		return contracts.OutcomePass, s.pass
	case gate && score >= s.thresholds.MinScore:
		return contracts.OutcomePartial, s.partial
	default:
		return contracts.OutcomeFail, s.fail
	}
}

// insufficient builds the ERROR verdict for a history shorter than needed
func insufficient(rule string, have, need int) contracts.Verdict {
	v := contracts.ErrorVerdict(rule, contracts.ReasonInsufficientData,
		fmt.Sprintf("need %d bars, have %d", need, have))
	v.Details.Values = map[string]float64{"required_bars": float64(need), "available_bars": float64(have)}
	return v
}

// missingIndicators builds the ERROR verdict for absent series
func missingIndicators(rule string, missing []string) contracts.Verdict {
	v := contracts.ErrorVerdict(rule, contracts.ReasonMissingIndicators, "required indicators are missing")
	v.Details.Missing = missing
	return v
}

// sanitize drops non-finite detail values and bounds the score so verdicts
// always serialize
func sanitize(v *contracts.Verdict) {
	for k, x := range v.Details.Values {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			delete(v.Details.Values, k)
		}
	}
	for k, x := range v.Details.SubScores {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			v.Details.SubScores[k] = 0
		}
	}
	if math.IsNaN(v.Score) {
		v.Score = 0
	}
	v.Score = clamp(v.Score, 0, 100)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func mean(values ...float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
