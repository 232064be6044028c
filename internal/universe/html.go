package universe

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/wonny/screener/internal/contracts"
	"github.com/wonny/screener/pkg/httputil"
	"github.com/wonny/screener/pkg/logger"
)

// HTMLProvider scrapes a listing page whose table rows hold
// code | name | market cells
type HTMLProvider struct {
	client *httputil.Client
	url    string
	logger *logger.Logger
}

// NewHTMLProvider creates a provider reading the listing page at url
func NewHTMLProvider(client *httputil.Client, url string, log *logger.Logger) *HTMLProvider {
	return &HTMLProvider{client: client, url: url, logger: log}
}

// ListSymbols implements contracts.SymbolProvider
func (p *HTMLProvider) ListSymbols(ctx context.Context, filter contracts.SymbolFilter) ([]string, error) {
	listings, err := p.Listings(ctx)
	if err != nil {
		return nil, err
	}
	return Apply(listings, filter), nil
}

// Listings fetches and parses the listing page
func (p *HTMLProvider) Listings(ctx context.Context) ([]Listing, error) {
	if p.url == "" {
		return nil, fmt.Errorf("listing URL is not configured")
	}

	body, err := p.client.GetBody(ctx, p.url)
	if err != nil {
		return nil, fmt.Errorf("fetch listing page: %w", err)
	}

	listings, err := parseListings(body)
	if err != nil {
		return nil, fmt.Errorf("parse listing page: %w", err)
	}

	p.logger.WithField("count", len(listings)).Debug("Scraped listings")
	return listings, nil
}

var codePattern = regexp.MustCompile(`^[0-9A-Za-z]{4,12}$`)

// parseListings reads every table row whose first cell looks like a code
func parseListings(html []byte) ([]Listing, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, err
	}

	var listings []Listing
	doc.Find("table tr").Each(func(i int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 2 {
			return // header or spacer
		}

		code := strings.TrimSpace(cells.Eq(0).Text())
		if !codePattern.MatchString(code) {
			return
		}

		l := Listing{
			Code: code,
			Name: strings.TrimSpace(cells.Eq(1).Text()),
		}
		if cells.Length() > 2 {
			l.Market = strings.ToUpper(strings.TrimSpace(cells.Eq(2).Text()))
		}
		listings = append(listings, l)
	})
	return listings, nil
}
