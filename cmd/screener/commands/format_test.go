package commands

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/screener/internal/contracts"
	"github.com/wonny/screener/internal/rules"
	"github.com/wonny/screener/pkg/logger"
)

func sampleReport() *contracts.ScanReport {
	return &contracts.ScanReport{
		RunID: "run-1",
		Rules: []string{"GoldenPit", "TrendBreakout"},
		Results: []contracts.ScanResult{
			{
				Symbol: "PIT1", Rank: 1, CompositeScore: 75,
				Composite: contracts.CompositeDetails{PartialCount: 1, ErrorCount: 1},
				Verdicts: []contracts.Verdict{
					{Rule: "GoldenPit", Outcome: contracts.OutcomePartial, Score: 75},
					contracts.ErrorVerdict("TrendBreakout", contracts.ReasonInsufficientData, "short"),
				},
				Metadata: contracts.ResultMetadata{LastClose: 10.2},
			},
		},
		Stats: contracts.ScanStats{
			TotalSymbols: 3, Processed: 3, Qualified: 1, Returned: 1, Skipped: 2,
			QualificationRate: 1.0 / 3, Elapsed: 1500 * time.Millisecond,
			SkipReasons: map[string]int{"fetch_failed": 2},
		},
	}
}

func TestWriteReport_Table(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteReport(&buf, sampleReport(), formatTable, 10))

	out := buf.String()
	assert.Contains(t, out, "PIT1")
	assert.Contains(t, out, "partial 75.0")
	assert.Contains(t, out, "error insufficient_data")
	assert.Contains(t, out, "fetch_failed=2")
	assert.Contains(t, out, "3/3 (2 skipped)")
	assert.Contains(t, out, "1.5s")
	assert.NotContains(t, out, "Unknown rules")

	report := sampleReport()
	report.SkippedRules = []string{"Typo"}
	buf.Reset()
	require.NoError(t, WriteReport(&buf, report, formatTable, 10))
	assert.Contains(t, buf.String(), "Unknown rules skipped: Typo")
}

func TestWriteReport_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteReport(&buf, sampleReport(), formatJSON, 10))

	var got contracts.ScanReport
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "run-1", got.RunID)
	assert.Len(t, got.Results, 1)
}

func TestWriteReport_CSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteReport(&buf, sampleReport(), formatCSV, 10))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, []string{"rank", "symbol", "composite_score", "pass", "partial", "fail", "error", "last_close",
		"GoldenPit_outcome", "GoldenPit_score", "TrendBreakout_outcome", "TrendBreakout_score"}, records[0])
	assert.Equal(t, []string{"1", "PIT1", "75.00", "0", "1", "0", "1", "10.2", "partial", "75.00", "error", "0.00"}, records[1])
}

func TestWriteReport_UnknownFormat(t *testing.T) {
	err := WriteReport(&bytes.Buffer{}, sampleReport(), "xml", 10)
	assert.ErrorContains(t, err, "unknown format")
}

func TestPrintRules(t *testing.T) {
	registry, err := rules.NewDefaultRegistry(logger.NewNop(), nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	PrintRules(&buf, registry.Describe(), registry.Statistics())

	out := buf.String()
	assert.Contains(t, out, "GoldenPit")
	assert.Contains(t, out, "TrendBreakout")
	assert.Contains(t, out, "[enabled]")
	assert.Contains(t, out, "thresholds")
}

func TestProgressPrinter(t *testing.T) {
	var buf bytes.Buffer
	progress := progressPrinter(&buf, 2)
	for i := 1; i <= 5; i++ {
		progress(i, 5, 1)
	}

	assert.Equal(t, "[Scan] 1 qualified [2/5]\n[Scan] 1 qualified [4/5]\n[Scan] 1 qualified [5/5]\n", buf.String())
}
