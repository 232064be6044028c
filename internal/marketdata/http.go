package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/wonny/screener/internal/contracts"
	"github.com/wonny/screener/pkg/httputil"
	"github.com/wonny/screener/pkg/logger"
)

// HTTPSource fetches daily bars from a chart endpoint that answers with an
// array of [date, open, high, low, close, volume] rows after a header row
type HTTPSource struct {
	client  *httputil.Client
	baseURL string
	logger  *logger.Logger
	now     func() time.Time
}

// NewHTTPSource creates a new HTTP history source
func NewHTTPSource(client *httputil.Client, baseURL string, log *logger.Logger) *HTTPSource {
	return &HTTPSource{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  log,
		now:     time.Now,
	}
}

// FetchHistory implements contracts.HistorySource
// ⭐ SSOT: 외부 차트 API 호출은 이 함수에서만
func (s *HTTPSource) FetchHistory(ctx context.Context, symbol string, minBars int) (*contracts.PriceHistory, error) {
	to := s.now()
	// roughly 250 trading days per 365 calendar days, plus slack for holidays
	from := to.AddDate(0, 0, -(minBars*3/2 + 30))

	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("requestType", "1")
	q.Set("startTime", from.Format("20060102"))
	q.Set("endTime", to.Format("20060102"))
	q.Set("timeframe", "day")

	body, err := s.client.GetBody(ctx, s.baseURL+"/siseJson.naver?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("fetch prices for %s: %w", symbol, err)
	}

	bars, err := parseChart(string(body))
	if err != nil {
		return nil, fmt.Errorf("parse prices for %s: %w", symbol, err)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%s: %w", symbol, contracts.ErrNotFound)
	}

	h := &contracts.PriceHistory{Symbol: symbol, Bars: bars}
	if err := h.Validate(); err != nil {
		return nil, fmt.Errorf("invalid fetched history: %w", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"stock_code": symbol,
		"count":      len(bars),
	}).Debug("Fetched prices")
	return h, nil
}

// parseChart parses the chart body, falling back to a regex scan when the
// payload is not valid JSON
func parseChart(body string) ([]contracts.PriceBar, error) {
	body = strings.TrimSpace(body)
	body = strings.ReplaceAll(body, "'", "\"")

	var rows [][]interface{}
	if err := json.Unmarshal([]byte(body), &rows); err == nil {
		return parseChartRows(rows), nil
	}
	return parseChartRegex(body)
}

func parseChartRows(rows [][]interface{}) []contracts.PriceBar {
	var bars []contracts.PriceBar
	for i, row := range rows {
		if i == 0 || len(row) < 6 {
			continue // header
		}
		raw, ok := row[0].(string)
		if !ok {
			continue
		}
		date, err := parseChartDate(raw)
		if err != nil {
			continue
		}
		bars = append(bars, contracts.PriceBar{
			Date:   date,
			Open:   toFloat(row[1]),
			High:   toFloat(row[2]),
			Low:    toFloat(row[3]),
			Close:  toFloat(row[4]),
			Volume: toFloat(row[5]),
		})
	}
	return bars
}

var chartRowPattern = regexp.MustCompile(`\["(\d{8})",\s*([\d.]+),\s*([\d.]+),\s*([\d.]+),\s*([\d.]+),\s*([\d.]+)`)

func parseChartRegex(body string) ([]contracts.PriceBar, error) {
	matches := chartRowPattern.FindAllStringSubmatch(body, -1)
	if len(matches) == 0 && body != "" {
		return nil, fmt.Errorf("unrecognized chart payload")
	}

	var bars []contracts.PriceBar
	for _, m := range matches {
		date, err := parseChartDate(m[1])
		if err != nil {
			continue
		}
		bars = append(bars, contracts.PriceBar{
			Date:   date,
			Open:   toFloat(m[2]),
			High:   toFloat(m[3]),
			Low:    toFloat(m[4]),
			Close:  toFloat(m[5]),
			Volume: toFloat(m[6]),
		})
	}
	return bars, nil
}

func parseChartDate(raw string) (time.Time, error) {
	raw = strings.Trim(strings.TrimSpace(raw), "\"")
	return time.Parse("20060102", raw)
}

// toFloat converts JSON numbers and numeric strings
func toFloat(v interface{}) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case int:
		return float64(val)
	case string:
		f, _ := strconv.ParseFloat(strings.TrimSpace(val), 64)
		return f
	default:
		return 0
	}
}
