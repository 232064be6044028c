package marketdata

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/screener/internal/contracts"
	"github.com/wonny/screener/pkg/config"
	"github.com/wonny/screener/pkg/httputil"
	"github.com/wonny/screener/pkg/logger"
)

const chartBody = `[['날짜', '시가', '고가', '저가', '종가', '거래량', '외국인소진율'],
["20240115", 72300, 73000, 72000, 72500, 1000000, 53.1],
["20240116", 72500, 73500, 72300, 73000, 1200000, 53.2]
]`

func newTestHTTPSource(t *testing.T, handler http.HandlerFunc) *HTTPSource {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := &config.Config{MarketData: config.MarketDataConfig{Timeout: time.Second}}
	src := NewHTTPSource(httputil.New(cfg, logger.NewNop()), srv.URL+"/", logger.NewNop())
	src.now = func() time.Time { return time.Date(2024, 1, 17, 0, 0, 0, 0, time.UTC) }
	return src
}

func TestHTTPSource_FetchHistory(t *testing.T) {
	src := newTestHTTPSource(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/siseJson.naver", r.URL.Path)
		assert.Equal(t, "005930", r.URL.Query().Get("symbol"))
		assert.Equal(t, "20240117", r.URL.Query().Get("endTime"))
		assert.Equal(t, "day", r.URL.Query().Get("timeframe"))
		_, _ = w.Write([]byte(chartBody))
	})

	h, err := src.FetchHistory(context.Background(), "005930", 2)
	require.NoError(t, err)
	require.Equal(t, 2, h.Len())
	assert.Equal(t, "005930", h.Symbol)
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), h.Bars[0].Date)
	assert.Equal(t, contracts.PriceBar{
		Date: time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC), Open: 72500, High: 73500, Low: 72300, Close: 73000, Volume: 1200000,
	}, h.Bars[1])
}

func TestHTTPSource_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr func(t *testing.T, err error)
	}{
		{
			name:   "header only is not found",
			status: http.StatusOK,
			body:   `[["날짜","시가","고가","저가","종가","거래량"]]`,
			wantErr: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, contracts.ErrNotFound)
			},
		},
		{
			name:   "server error",
			status: http.StatusBadGateway,
			wantErr: func(t *testing.T, err error) {
				var statusErr *httputil.StatusError
				require.True(t, errors.As(err, &statusErr))
				assert.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
			},
		},
		{
			name:   "bar violating high/low",
			status: http.StatusOK,
			body:   `[["h"],["20240115", 100, 90, 95, 97, 10, 0]]`,
			wantErr: func(t *testing.T, err error) {
				assert.ErrorContains(t, err, "invalid fetched history")
			},
		},
		{
			name:   "garbage payload",
			status: http.StatusOK,
			body:   `<html>maintenance</html>`,
			wantErr: func(t *testing.T, err error) {
				assert.ErrorContains(t, err, "unrecognized chart payload")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := newTestHTTPSource(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := src.FetchHistory(context.Background(), "005930", 10)
			require.Error(t, err)
			tt.wantErr(t, err)
		})
	}
}

func TestParseChart_RegexFallback(t *testing.T) {
	body := `[["날짜", "시가"], ["20240115", 72300, 73000, 72000, 72500, 1000000],]`
	bars, err := parseChart(body)
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Equal(t, 72500.0, bars[0].Close)
}

func TestToFloat(t *testing.T) {
	assert.Equal(t, 1.5, toFloat(1.5))
	assert.Equal(t, 3.0, toFloat(3))
	assert.Equal(t, 72300.0, toFloat(" 72300"))
	assert.Equal(t, 0.0, toFloat(nil))
}
