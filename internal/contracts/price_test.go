package contracts

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(i int) time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i)
}

func flatHistory(n int) *PriceHistory {
	h := &PriceHistory{Symbol: "005930"}
	for i := 0; i < n; i++ {
		h.Bars = append(h.Bars, PriceBar{Date: day(i), Open: 10, High: 10.5, Low: 9.5, Close: 10, Volume: 1000})
	}
	return h
}

func TestPriceBar_Validate(t *testing.T) {
	tests := []struct {
		name    string
		bar     PriceBar
		wantErr bool
	}{
		{"valid", PriceBar{Open: 10, High: 11, Low: 9, Close: 10.5, Volume: 1}, false},
		{"doji at high", PriceBar{Open: 11, High: 11, Low: 11, Close: 11, Volume: 0}, false},
		{"low above close", PriceBar{Open: 10, High: 11, Low: 10.2, Close: 10.1, Volume: 1}, true},
		{"high below open", PriceBar{Open: 12, High: 11, Low: 9, Close: 10, Volume: 1}, true},
		{"negative volume", PriceBar{Open: 10, High: 11, Low: 9, Close: 10, Volume: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.bar.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPriceHistory_Validate(t *testing.T) {
	require.NoError(t, flatHistory(5).Validate())

	assert.Error(t, (&PriceHistory{Symbol: "X"}).Validate(), "empty history")

	dup := flatHistory(3)
	dup.Bars[2].Date = dup.Bars[1].Date
	assert.Error(t, dup.Validate(), "duplicate date")

	nan := flatHistory(3)
	nan.Bars[1].Volume = math.NaN()
	assert.Error(t, nan.Validate(), "nan volume")
	assert.Equal(t, []string{ColumnVolume}, nan.MissingColumns())
}

func TestPriceHistory_Accessors(t *testing.T) {
	h := flatHistory(10)
	h.Bars[9].Close = 10.4

	assert.Equal(t, 10, h.Len())
	assert.Equal(t, 10.4, h.Last().Close)
	assert.Len(t, h.Closes(), 10)
	assert.Nil(t, h.Column("adj_close"))

	tail := h.Tail(3)
	assert.Equal(t, 3, tail.Len())
	assert.Equal(t, day(7), tail.Bars[0].Date)
	assert.Same(t, h, h.Tail(20))

	start, end := h.DateRange()
	assert.Equal(t, day(0), start)
	assert.Equal(t, day(9), end)

	var nilHistory *PriceHistory
	assert.True(t, nilHistory.IsEmpty())
}

func TestVerdict_Helpers(t *testing.T) {
	v := ErrorVerdict("GoldenPit", ReasonInsufficientData, "need 60 bars")
	assert.True(t, v.IsError())
	assert.False(t, v.Qualifies())
	assert.Equal(t, ReasonInsufficientData, v.Details.Reason)

	pass := Verdict{Outcome: OutcomePartial}
	assert.True(t, pass.Qualifies())
}
