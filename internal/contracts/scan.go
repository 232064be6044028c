package contracts

import "time"

// CompositeDetails describes how a composite score was formed
type CompositeDetails struct {
	TotalRules   int     `json:"total_rules"`
	ValidRules   int     `json:"valid_rules"`
	PassCount    int     `json:"pass_count"`
	PartialCount int     `json:"partial_count"`
	FailCount    int     `json:"fail_count"`
	ErrorCount   int     `json:"error_count"`
	PassRate     float64 `json:"pass_rate"`
	Reason       string  `json:"reason,omitempty"`
}

// ResultMetadata describes the input a ScanResult was computed from
type ResultMetadata struct {
	DataLength     int       `json:"data_length"`
	StartDate      time.Time `json:"start_date"`
	EndDate        time.Time `json:"end_date"`
	IndicatorCount int       `json:"indicator_count"`
	QualityScore   float64   `json:"quality_score"`
	LastClose      float64   `json:"last_close"`
}

// RuleHighlight is the per-rule data surfaced next to a result
type RuleHighlight struct {
	Rule         string     `json:"rule"`
	Outcome      Outcome    `json:"outcome"`
	Score        float64    `json:"score"`
	CurrentPrice float64    `json:"current_price"`
	TriggerDate  *time.Time `json:"trigger_date,omitempty"`
	PreviousHigh float64    `json:"previous_high,omitempty"`
	Drawdown     float64    `json:"drawdown,omitempty"`
	Breakout     float64    `json:"breakout_margin,omitempty"`
	MAValue      float64    `json:"ma_value,omitempty"`
}

// ScanResult is one symbol's composite evaluation
// ⭐ SSOT: 종목별 스캔 결과
type ScanResult struct {
	Symbol         string           `json:"symbol"`
	Rank           int              `json:"rank"` // 1-based after sorting
	CompositeScore float64          `json:"composite_score"`
	Composite      CompositeDetails `json:"composite"`
	Verdicts       []Verdict        `json:"verdicts"`
	Highlights     []RuleHighlight  `json:"highlights,omitempty"`
	Metadata       ResultMetadata   `json:"metadata"`
}

// Skip reasons recorded in ScanStats.SkipReasons
const (
	SkipFetchFailed       = "fetch_failed"
	SkipEmptyHistory      = "empty_history"
	SkipInvalidHistory    = "invalid_history"
	SkipCalculationFailed = "calculation_failed"
	SkipCanceled          = "canceled"
)

// ScanStats summarizes one scan run
type ScanStats struct {
	RequestedSymbols  int            `json:"requested_symbols"` // as passed in, before dedupe
	TotalSymbols      int            `json:"total_symbols"`     // unique non-empty symbols scanned
	Processed         int            `json:"processed"`
	Qualified         int            `json:"qualified"` // before truncation
	Returned          int            `json:"returned"`
	Skipped           int            `json:"skipped"`
	ErrorVerdicts     int            `json:"error_verdicts"`
	QualificationRate float64        `json:"qualification_rate"`
	Elapsed           time.Duration  `json:"elapsed"`
	SkipReasons       map[string]int `json:"skip_reasons,omitempty"`
}

// ScanReport is the ranked result set handed to presentation and persistence
// ⭐ SSOT: 스캔 최종 결과
type ScanReport struct {
	RunID        string       `json:"run_id"`
	StartedAt    time.Time    `json:"started_at"`
	Rules        []string     `json:"rules"`
	// SkippedRules lists requested rule names that are not registered
	SkippedRules []string     `json:"skipped_rules,omitempty"`
	MinScore     float64      `json:"min_score"`
	MaxResults   int          `json:"max_results"`
	Results      []ScanResult `json:"results"`
	Stats        ScanStats    `json:"stats"`
}

// ScanRunSummary is a persisted run without its results
type ScanRunSummary struct {
	RunID     string    `json:"run_id"`
	StartedAt time.Time `json:"started_at"`
	Rules     []string  `json:"rules"`
	MinScore  float64   `json:"min_score"`
	Stats     ScanStats `json:"stats"`
	TopSymbol string    `json:"top_symbol,omitempty"`
	TopScore  float64   `json:"top_score,omitempty"`
}
