package scanner

import (
	"fmt"

	"github.com/wonny/screener/internal/contracts"
)

// Highlights extracts the per-rule numbers worth showing next to a result.
// ERROR verdicts carry no data and are left out.
func Highlights(verdicts []contracts.Verdict, history *contracts.PriceHistory) []contracts.RuleHighlight {
	if history.IsEmpty() {
		return nil
	}
	current := history.Last().Close

	out := make([]contracts.RuleHighlight, 0, len(verdicts))
	for _, v := range verdicts {
		if v.IsError() {
			continue
		}
		h := contracts.RuleHighlight{
			Rule:         v.Rule,
			Outcome:      v.Outcome,
			Score:        v.Score,
			CurrentPrice: current,
			TriggerDate:  v.Details.TriggerDate,
		}
		values := v.Details.Values
		h.PreviousHigh = values["previous_high"]
		h.Drawdown = values["max_drawdown"]
		h.Breakout = values["breakout_margin"]
		h.MAValue = values["ma_value"]
		out = append(out, h)
	}
	return out
}

// Score buckets used by Summarize, highest first
var scoreBuckets = []struct {
	label  string
	lo, hi float64
}{
	{"90-100", 90, 100},
	{"80-89", 80, 90},
	{"70-79", 70, 80},
	{"60-69", 60, 70},
}

// OutcomeCounts tallies verdict outcomes for one rule
type OutcomeCounts struct {
	Pass    int `json:"pass"`
	Partial int `json:"partial"`
	Fail    int `json:"fail"`
}

// TopStock is one entry of a summary's leaderboard
type TopStock struct {
	Rank           int                       `json:"rank"`
	Symbol         string                    `json:"symbol"`
	CompositeScore float64                   `json:"composite_score"`
	Highlights     []contracts.RuleHighlight `json:"rule_results"`
}

// Summary is a presentation-ready digest of a scan report
type Summary struct {
	Message           string                   `json:"summary"`
	TotalCount        int                      `json:"total_count"`
	AverageScore      float64                  `json:"average_score"`
	HighestScore      float64                  `json:"highest_score"`
	LowestScore       float64                  `json:"lowest_score"`
	ScoreDistribution map[string]int           `json:"score_distribution"`
	RulePerformance   map[string]OutcomeCounts `json:"rule_performance"`
	TopStocks         []TopStock               `json:"top_stocks"`
}

// Summarize digests the first topN results of a report (all when topN <= 0)
func Summarize(report *contracts.ScanReport, topN int) Summary {
	s := Summary{
		ScoreDistribution: map[string]int{},
		RulePerformance:   map[string]OutcomeCounts{},
		TopStocks:         []TopStock{},
	}
	if report == nil || len(report.Results) == 0 {
		s.Message = "no symbols matched"
		return s
	}

	results := report.Results
	s.TotalCount = len(results)
	s.HighestScore = results[0].CompositeScore
	s.LowestScore = results[0].CompositeScore

	var sum float64
	for _, r := range results {
		score := r.CompositeScore
		sum += score
		s.HighestScore = max(s.HighestScore, score)
		s.LowestScore = min(s.LowestScore, score)

		for _, b := range scoreBuckets {
			if score >= b.lo && (score < b.hi || (b.hi == 100 && score <= b.hi)) {
				s.ScoreDistribution[b.label]++
				break
			}
		}

		for _, v := range r.Verdicts {
			counts := s.RulePerformance[v.Rule]
			switch v.Outcome {
			case contracts.OutcomePass:
				counts.Pass++
			case contracts.OutcomePartial:
				counts.Partial++
			case contracts.OutcomeFail:
				counts.Fail++
			default:
				continue
			}
			s.RulePerformance[v.Rule] = counts
		}
	}
	s.AverageScore = sum / float64(len(results))

	if topN <= 0 || topN > len(results) {
		topN = len(results)
	}
	for i, r := range results[:topN] {
		rank := r.Rank
		if rank == 0 {
			rank = i + 1
		}
		s.TopStocks = append(s.TopStocks, TopStock{
			Rank:           rank,
			Symbol:         r.Symbol,
			CompositeScore: r.CompositeScore,
			Highlights:     r.Highlights,
		})
	}

	s.Message = fmt.Sprintf("%d symbols matched, average score %.1f", s.TotalCount, s.AverageScore)
	return s
}
