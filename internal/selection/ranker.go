package selection

import (
	"sort"

	"github.com/wonny/screener/internal/contracts"
)

// Rank sorts results by composite score descending, ties by symbol
// ascending, truncates to maxResults (when positive) and assigns 1-based ranks
// ⭐ SSOT: 결과 정렬/순위는 여기서만
func Rank(results []contracts.ScanResult, maxResults int) []contracts.ScanResult {
	ranked := make([]contracts.ScanResult, len(results))
	copy(ranked, results)

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].CompositeScore != ranked[j].CompositeScore {
			return ranked[i].CompositeScore > ranked[j].CompositeScore
		}
		return ranked[i].Symbol < ranked[j].Symbol
	})

	if maxResults > 0 && len(ranked) > maxResults {
		ranked = ranked[:maxResults]
	}
	for i := range ranked {
		ranked[i].Rank = i + 1
	}
	return ranked
}
