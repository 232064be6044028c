package selection

import (
	"sync"
	"time"

	"github.com/wonny/screener/internal/contracts"
	"github.com/wonny/screener/internal/indicators"
	"github.com/wonny/screener/internal/rules"
	"github.com/wonny/screener/pkg/logger"
)

// ExecutionRecord is one ApplyRules call
type ExecutionRecord struct {
	Symbol    string              `json:"symbol"`
	Timestamp time.Time           `json:"timestamp"`
	RuleCount int                 `json:"rules_applied"`
	Verdicts  []contracts.Verdict `json:"results"`
}

// EngineStats combines registry statistics with the history size
type EngineStats struct {
	Registry     rules.RegistryStats `json:"registry"`
	HistoryCount int                 `json:"execution_history_count"`
}

// Engine applies registered rules to a symbol and aggregates verdicts
// ⭐ SSOT: 규칙 적용 및 종합 점수 계산은 여기서만
type Engine struct {
	registry *rules.Registry
	logger   *logger.Logger
	now      func() time.Time

	mu      sync.Mutex
	history []ExecutionRecord
}

// NewEngine creates an engine over registry
func NewEngine(registry *rules.Registry, log *logger.Logger) *Engine {
	return &Engine{
		registry: registry,
		logger:   log,
		now:      time.Now,
	}
}

// Registry returns the rule registry the engine resolves names against
func (e *Engine) Registry() *rules.Registry {
	return e.registry
}

// ApplyRules runs the named rules in request order. Nil names means every
// enabled rule. Unknown names are logged and skipped.
func (e *Engine) ApplyRules(symbol string, history *contracts.PriceHistory, table *indicators.Table, names []string) []contracts.Verdict {
	if names == nil {
		names = e.registry.Enabled()
	}

	verdicts := make([]contracts.Verdict, 0, len(names))
	for _, name := range names {
		rule, ok := e.registry.Get(name)
		if !ok {
			e.logger.WithFields(map[string]interface{}{
				"symbol": symbol,
				"rule":   name,
			}).Warn("Unknown rule skipped")
			continue
		}
		verdicts = append(verdicts, rule.Apply(symbol, history, table))
	}

	e.mu.Lock()
	e.history = append(e.history, ExecutionRecord{
		Symbol:    symbol,
		Timestamp: e.now(),
		RuleCount: len(verdicts),
		Verdicts:  verdicts,
	})
	e.mu.Unlock()

	if e.logger.DebugEnabled() {
		e.logger.WithSymbol(symbol).WithField("rules", len(verdicts)).Debug("Rules applied")
	}
	return verdicts
}

// CompositeScore is the weight-averaged score of the non-ERROR verdicts.
// FAIL contributes 0 at its weight. Verdicts of rules no longer registered
// are ignored for weighting but still counted.
func (e *Engine) CompositeScore(verdicts []contracts.Verdict) (float64, contracts.CompositeDetails) {
	details := contracts.CompositeDetails{TotalRules: len(verdicts)}
	if len(verdicts) == 0 {
		details.Reason = contracts.ReasonNoResults
		return 0, details
	}

	var weighted, totalWeight float64
	for _, v := range verdicts {
		switch v.Outcome {
		case contracts.OutcomeError:
			details.ErrorCount++
			continue
		case contracts.OutcomePass:
			details.PassCount++
		case contracts.OutcomePartial:
			details.PartialCount++
		case contracts.OutcomeFail:
			details.FailCount++
		}
		details.ValidRules++

		rule, ok := e.registry.Get(v.Rule)
		if !ok {
			continue
		}
		weight := rule.Config().Weight
		score := v.Score
		if v.Outcome == contracts.OutcomeFail {
			score = 0
		}
		weighted += score * weight
		totalWeight += weight
	}

	if details.ValidRules == 0 {
		details.Reason = contracts.ReasonAllErrors
		return 0, details
	}
	details.PassRate = float64(details.PassCount) / float64(details.ValidRules)

	if totalWeight == 0 {
		return 0, details
	}
	return weighted / totalWeight, details
}

// ExecutionHistory returns the most recent limit records, oldest first.
// limit <= 0 returns everything.
func (e *Engine) ExecutionHistory(limit int) []ExecutionRecord {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := 0
	if limit > 0 && limit < len(e.history) {
		start = len(e.history) - limit
	}
	out := make([]ExecutionRecord, len(e.history)-start)
	copy(out, e.history[start:])
	return out
}

// ClearHistory drops every execution record
func (e *Engine) ClearHistory() {
	e.mu.Lock()
	e.history = nil
	e.mu.Unlock()
	e.logger.Info("Execution history cleared")
}

// PruneHistory keeps the newest keep records and returns how many were dropped
func (e *Engine) PruneHistory(keep int) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	if keep < 0 {
		keep = 0
	}
	dropped := len(e.history) - keep
	if dropped <= 0 {
		return 0
	}
	e.history = append([]ExecutionRecord(nil), e.history[dropped:]...)
	return dropped
}

// Statistics returns registry counters and the history size
func (e *Engine) Statistics() EngineStats {
	e.mu.Lock()
	n := len(e.history)
	e.mu.Unlock()
	return EngineStats{
		Registry:     e.registry.Statistics(),
		HistoryCount: n,
	}
}
