package contracts

import "time"

// Outcome is the graded classification of a rule verdict
type Outcome string

const (
	OutcomePass    Outcome = "pass"
	OutcomePartial Outcome = "partial"
	OutcomeFail    Outcome = "fail"
	OutcomeError   Outcome = "error"
)

// Machine-readable reason codes carried by verdicts and composite details
const (
	ReasonInsufficientData   = "insufficient_data"
	ReasonMissingIndicators  = "missing_indicators"
	ReasonInvalidInput       = "invalid_input"
	ReasonRuleDisabled       = "rule_disabled"
	ReasonExecutionException = "execution_exception"
	ReasonAllErrors          = "all_errors"
	ReasonNoResults          = "no_results"
)

// Verdict is a single rule's graded outcome for one symbol
// ⭐ SSOT: 규칙 평가 결과 (생성 후 변경 금지)
type Verdict struct {
	Symbol     string         `json:"symbol"`
	Rule       string         `json:"rule"`
	Outcome    Outcome        `json:"outcome"`
	Score      float64        `json:"score"`      // 0 ~ 100
	Confidence float64        `json:"confidence"` // 0.0 ~ 1.0
	Details    VerdictDetails `json:"details"`
}

// VerdictDetails is the structured explanation attached to a verdict
type VerdictDetails struct {
	Description string             `json:"description"`
	Reason      string             `json:"reason,omitempty"`
	Message     string             `json:"message,omitempty"`
	SubScores   map[string]float64 `json:"sub_scores,omitempty"`
	Conditions  map[string]bool    `json:"conditions,omitempty"`
	Values      map[string]float64 `json:"values,omitempty"`
	Missing     []string           `json:"missing,omitempty"`
	TriggerDate *time.Time         `json:"trigger_date,omitempty"`
}

// IsError reports whether the verdict is an ERROR outcome
func (v *Verdict) IsError() bool {
	return v.Outcome == OutcomeError
}

// Qualifies reports whether the verdict passed its rule (PASS or PARTIAL)
func (v *Verdict) Qualifies() bool {
	return v.Outcome == OutcomePass || v.Outcome == OutcomePartial
}

// ErrorVerdict builds an ERROR verdict with a reason code
func ErrorVerdict(rule, reason, message string) Verdict {
	return Verdict{
		Rule:    rule,
		Outcome: OutcomeError,
		Details: VerdictDetails{
			Reason:  reason,
			Message: message,
		},
	}
}
