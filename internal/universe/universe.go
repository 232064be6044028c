// Package universe lists the candidate symbols of a scan
package universe

import (
	"strings"

	"github.com/wonny/screener/internal/contracts"
)

// Listing is one listed security
type Listing struct {
	Code   string `json:"code"`
	Name   string `json:"name"`
	Market string `json:"market"`
}

// IsST reports whether the name carries a special-treatment marker
// (ST, *ST, SST, S*ST) used for securities under exchange risk warning
func (l Listing) IsST() bool {
	name := strings.TrimLeft(strings.ToUpper(strings.TrimSpace(l.Name)), "*")
	for _, prefix := range []string{"ST", "SST", "S*ST"} {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// Apply filters listings in order, dropping duplicates, and truncates to
// filter.Limit when positive
func Apply(listings []Listing, filter contracts.SymbolFilter) []string {
	markets := make(map[string]bool, len(filter.Markets))
	for _, m := range filter.Markets {
		markets[strings.ToUpper(strings.TrimSpace(m))] = true
	}

	seen := make(map[string]bool, len(listings))
	out := make([]string, 0, len(listings))
	for _, l := range listings {
		code := strings.TrimSpace(l.Code)
		if code == "" || seen[code] {
			continue
		}
		if len(markets) > 0 && !markets[strings.ToUpper(l.Market)] {
			continue
		}
		if filter.ExcludeST && l.IsST() {
			continue
		}
		seen[code] = true
		out = append(out, code)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out
}
