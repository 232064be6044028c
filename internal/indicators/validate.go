package indicators

import (
	"math"

	"github.com/wonny/screener/internal/contracts"
)

// keyIndicators are checked for coverage by Validate
var keyIndicators = []string{"ma5", "ma10", "ma20", VolumeRatioName(5), DailyReturnName, RSIName}

// Report summarizes the quality of a computed table
type Report struct {
	DataIntegrity bool           `json:"data_integrity"`
	Coverage      float64        `json:"indicator_coverage"`
	MissingValues map[string]int `json:"missing_values,omitempty"`
	QualityScore  float64        `json:"quality_score"`
}

// Validate checks table alignment, key indicator coverage and undefined
// values after the warm-up rows. Rows whose inputs make a value 0/0 (a
// flat RSI window, an all-zero volume window) are not missing. Quality is
// coverage*100, halved on a length mismatch and scaled by 0.8 when values
// are missing.
func (c *Calculator) Validate(history *contracts.PriceHistory, table *Table) Report {
	report := Report{
		DataIntegrity: history.Len() == table.Len(),
		MissingValues: make(map[string]int),
	}

	present := len(keyIndicators) - len(table.Missing(keyIndicators...))
	report.Coverage = float64(present) / float64(len(keyIndicators))

	undefined := c.undefinedRows(history)
	warmup := c.spec.RSIWindow
	for _, name := range table.Names() {
		series, ok := table.Float(name)
		if !ok {
			continue
		}
		expected := undefined[name]
		for i := warmup; i < len(series); i++ {
			if math.IsNaN(series[i]) && (expected == nil || !expected(i)) {
				report.MissingValues[name]++
			}
		}
	}

	quality := report.Coverage * 100
	if !report.DataIntegrity {
		quality *= 0.5
	}
	if len(report.MissingValues) > 0 {
		quality *= 0.8
	}
	report.QualityScore = math.Min(quality, 100)

	return report
}

// undefinedRows maps series names to a check for rows where NaN is the
// correct value
func (c *Calculator) undefinedRows(history *contracts.PriceHistory) map[string]func(i int) bool {
	close := history.Closes()
	volume := history.Column(contracts.ColumnVolume)

	checks := map[string]func(i int) bool{
		RSIName: func(i int) bool {
			return i < len(close) && constant(close, i-c.spec.RSIWindow, i)
		},
	}
	for _, w := range c.spec.VolumeRatioWindows {
		w := w
		checks[VolumeRatioName(w)] = func(i int) bool {
			return i < len(volume) && allZero(volume, i-w+1, i)
		}
	}
	return checks
}

// constant reports whether values[from..to] are all equal
func constant(values []float64, from, to int) bool {
	from = max(from, 0)
	for j := from + 1; j <= to; j++ {
		if values[j] != values[from] {
			return false
		}
	}
	return true
}

func allZero(values []float64, from, to int) bool {
	for j := max(from, 0); j <= to; j++ {
		if values[j] != 0 {
			return false
		}
	}
	return true
}
