package commands

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/wonny/screener/internal/contracts"
	"github.com/wonny/screener/internal/rules"
	"github.com/wonny/screener/internal/scanner"
)

// ═══════════════════════════════════════════════════════════
// Common Formatting Utilities
// 모든 커맨드가 동일한 출력 포맷을 사용하도록 통일
// ═══════════════════════════════════════════════════════════

const (
	doubleRule = "═══════════════════════════════════════════════════════════"
	singleRule = "───────────────────────────────────────────────────────────"
)

// Output formats accepted by --format
const (
	formatTable = "table"
	formatJSON  = "json"
	formatCSV   = "csv"
)

// PrintScanHeader prints the banner shown before a scan starts
func PrintScanHeader(w io.Writer, symbols int, opts scanner.Options, source string) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, doubleRule)
	fmt.Fprintln(w, "  Stock Scan")
	fmt.Fprintln(w, singleRule)
	rulesLabel := "all enabled"
	if len(opts.Rules) > 0 {
		rulesLabel = strings.Join(opts.Rules, ", ")
	}
	PrintKeyValue(w, "Symbols", strconv.Itoa(symbols), 9)
	PrintKeyValue(w, "Rules", rulesLabel, 9)
	PrintKeyValue(w, "Min score", fmt.Sprintf("%.1f", opts.MinScore), 9)
	PrintKeyValue(w, "Workers", strconv.Itoa(opts.Workers), 9)
	PrintKeyValue(w, "Source", source, 9)
	fmt.Fprintln(w, singleRule)
}

// PrintProgress prints a progress step with counter
// Example: [Scan] 40 qualified [120/2400]
func PrintProgress(w io.Writer, tag string, message string, current int, total int) {
	fmt.Fprintf(w, "[%s] %s [%d/%d]\n", tag, message, current, total)
}

// progressPrinter prints every step-th update plus the final one
func progressPrinter(w io.Writer, step int) contracts.ProgressFunc {
	if step <= 0 {
		step = 1
	}
	return func(processed, total, qualified int) {
		if processed%step == 0 || processed == total {
			PrintProgress(w, "Scan", fmt.Sprintf("%d qualified", qualified), processed, total)
		}
	}
}

// WriteReport renders a report in the requested format
func WriteReport(w io.Writer, report *contracts.ScanReport, format string, top int) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	case formatCSV:
		return writeReportCSV(w, report)
	case formatTable, "":
		printReportTable(w, report, top)
		return nil
	default:
		return fmt.Errorf("unknown format %q (table, json, csv)", format)
	}
}

func printReportTable(w io.Writer, report *contracts.ScanReport, top int) {
	ruleNames := report.Rules
	columns := append([]string{"Rank", "Symbol", "Score"}, ruleNames...)
	widths := []int{4, 10, 6}
	for _, name := range ruleNames {
		widths = append(widths, max(len(name), 14))
	}

	fmt.Fprintln(w)
	PrintTableHeader(w, columns, widths)
	for _, r := range report.Results {
		row := []string{strconv.Itoa(r.Rank), r.Symbol, fmt.Sprintf("%.1f", r.CompositeScore)}
		for _, name := range ruleNames {
			row = append(row, verdictCell(r.Verdicts, name))
		}
		PrintTableRow(w, row, widths)
	}

	summary := scanner.Summarize(report, top)
	stats := report.Stats
	fmt.Fprintln(w)
	fmt.Fprintln(w, singleRule)
	PrintKeyValue(w, "Summary", summary.Message, 13)
	PrintKeyValue(w, "Scanned", fmt.Sprintf("%d/%d (%d skipped)", stats.Processed, stats.TotalSymbols, stats.Skipped), 13)
	PrintKeyValue(w, "Qualified", fmt.Sprintf("%d (%.1f%%), showing %d", stats.Qualified, stats.QualificationRate*100, stats.Returned), 13)
	if stats.ErrorVerdicts > 0 {
		PrintKeyValue(w, "Rule errors", strconv.Itoa(stats.ErrorVerdicts), 13)
	}
	if len(stats.SkipReasons) > 0 {
		PrintKeyValue(w, "Skip reasons", formatCounts(stats.SkipReasons), 13)
	}
	if len(report.SkippedRules) > 0 {
		PrintWarning(w, "Unknown rules skipped: "+strings.Join(report.SkippedRules, ", "))
	}
	if len(summary.ScoreDistribution) > 0 {
		PrintKeyValue(w, "Distribution", formatCounts(summary.ScoreDistribution), 13)
	}
	PrintKeyValue(w, "Elapsed", stats.Elapsed.Round(time.Millisecond).String(), 13)
	fmt.Fprintln(w, singleRule)
}

// verdictCell renders one rule's verdict as "pass 91.0"
func verdictCell(verdicts []contracts.Verdict, rule string) string {
	for _, v := range verdicts {
		if v.Rule != rule {
			continue
		}
		if v.IsError() {
			return "error " + v.Details.Reason
		}
		return fmt.Sprintf("%s %.1f", v.Outcome, v.Score)
	}
	return "-"
}

func writeReportCSV(w io.Writer, report *contracts.ScanReport) error {
	cw := csv.NewWriter(w)
	header := []string{"rank", "symbol", "composite_score", "pass", "partial", "fail", "error", "last_close"}
	for _, name := range report.Rules {
		header = append(header, name+"_outcome", name+"_score")
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, r := range report.Results {
		c := r.Composite
		row := []string{
			strconv.Itoa(r.Rank),
			r.Symbol,
			strconv.FormatFloat(r.CompositeScore, 'f', 2, 64),
			strconv.Itoa(c.PassCount),
			strconv.Itoa(c.PartialCount),
			strconv.Itoa(c.FailCount),
			strconv.Itoa(c.ErrorCount),
			strconv.FormatFloat(r.Metadata.LastClose, 'f', -1, 64),
		}
		for _, name := range report.Rules {
			outcome, score := "", ""
			for _, v := range r.Verdicts {
				if v.Rule == name {
					outcome = string(v.Outcome)
					score = strconv.FormatFloat(v.Score, 'f', 2, 64)
				}
			}
			row = append(row, outcome, score)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// PrintRules prints rule descriptions
func PrintRules(w io.Writer, descs []rules.Description, stats rules.RegistryStats) {
	counters := make(map[string]rules.Stats, len(stats.Rules))
	for _, s := range stats.Rules {
		counters[s.Rule] = s
	}

	for _, d := range descs {
		fmt.Fprintln(w)
		fmt.Fprintln(w, doubleRule)
		state := "enabled"
		if !d.Enabled {
			state = "disabled"
		}
		fmt.Fprintf(w, "  %s (%s) [%s]\n", d.Name, d.Title, state)
		fmt.Fprintln(w, singleRule)
		fmt.Fprintf(w, "  %s\n\n", d.Summary)
		PrintNumberedList(w, d.Conditions)
		fmt.Fprintln(w)
		PrintKeyValue(w, "weight", strconv.FormatFloat(d.Weight, 'f', -1, 64), 22)
		PrintKeyValue(w, "thresholds", fmt.Sprintf("min %.0f / high %.0f", d.Thresholds.MinScore, d.Thresholds.HighScore), 22)
		for _, k := range sortedKeys(d.Params) {
			PrintKeyValue(w, k, strconv.FormatFloat(d.Params[k], 'f', -1, 64), 22)
		}
		for _, k := range sortedKeys(d.ListParams) {
			PrintKeyValue(w, k, fmt.Sprint(d.ListParams[k]), 22)
		}
		if s, ok := counters[d.Name]; ok && s.Executions > 0 {
			PrintKeyValue(w, "executions", fmt.Sprintf("%d (%.0f%% ok)", s.Executions, s.SuccessRate*100), 22)
		}
	}
}

// PrintSeparator prints a visual separator
func PrintSeparator(w io.Writer) {
	fmt.Fprintln(w, singleRule)
}

// PrintSuccess prints a success message
func PrintSuccess(w io.Writer, message string) {
	fmt.Fprintf(w, "✅ %s\n", message)
}

// PrintWarning prints a warning message
func PrintWarning(w io.Writer, message string) {
	fmt.Fprintf(w, "⚠️  %s\n", message)
}

// PrintTableHeader prints a table header
func PrintTableHeader(w io.Writer, columns []string, widths []int) {
	PrintTableRow(w, columns, widths)

	totalWidth := 0
	for i, width := range widths {
		totalWidth += width
		if i < len(widths)-1 {
			totalWidth += 2 // spacing
		}
	}
	fmt.Fprintln(w, strings.Repeat("─", totalWidth))
}

// PrintTableRow prints a table row
func PrintTableRow(w io.Writer, values []string, widths []int) {
	for i, val := range values {
		fmt.Fprintf(w, "%-*s", widths[i], val)
		if i < len(values)-1 {
			fmt.Fprint(w, "  ")
		}
	}
	fmt.Fprintln(w)
}

// PrintNumberedList prints a numbered list
func PrintNumberedList(w io.Writer, items []string) {
	for i, item := range items {
		fmt.Fprintf(w, "   %d. %s\n", i+1, item)
	}
}

// PrintKeyValue prints key-value pairs
func PrintKeyValue(w io.Writer, key string, value string, keyWidth int) {
	fmt.Fprintf(w, "   %-*s : %s\n", keyWidth, key, value)
}

func formatCounts(m map[string]int) string {
	parts := make([]string, 0, len(m))
	for _, k := range sortedKeys(m) {
		parts = append(parts, fmt.Sprintf("%s=%d", k, m[k]))
	}
	return strings.Join(parts, " ")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
