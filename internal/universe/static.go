package universe

import (
	"context"

	"github.com/wonny/screener/internal/contracts"
)

// StaticProvider serves a fixed symbol list. Listings carry no market or
// name, so only Limit and de-duplication apply.
type StaticProvider struct {
	listings []Listing
}

// NewStaticProvider creates a provider over symbols
func NewStaticProvider(symbols []string) *StaticProvider {
	listings := make([]Listing, len(symbols))
	for i, s := range symbols {
		listings[i] = Listing{Code: s}
	}
	return &StaticProvider{listings: listings}
}

// ListSymbols implements contracts.SymbolProvider
func (p *StaticProvider) ListSymbols(ctx context.Context, filter contracts.SymbolFilter) ([]string, error) {
	filter.Markets = nil
	filter.ExcludeST = false
	return Apply(p.listings, filter), nil
}
