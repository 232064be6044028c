package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wonny/screener/internal/scanner"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "종목 스캔 실행",
	Long: `유니버스 전체(또는 --symbols)를 스캔해 종합 점수 순으로 출력합니다.

Market data sources:
  synthetic  - 결정적 합성 데이터 (PIT*: 눌림목, BRK*: 돌파, NONE*: 데이터 없음)
  http       - 차트 JSON 엔드포인트
  postgres   - data.daily_prices

Example:
  go run ./cmd/screener scan --symbols PIT1,BRK1,RW1 --min-score 0
  go run ./cmd/screener scan --source http --universe html --market KOSPI --save
  go run ./cmd/screener scan --rules TrendBreakout --format csv > breakout.csv`,
	RunE: runScan,
}

var (
	scanSymbols    []string
	scanRules      []string
	scanMinScore   float64
	scanWorkers    int
	scanMaxResults int
	scanBatchSize  int
	scanSource     string
	scanUniverse   string
	scanMarkets    []string
	scanLimit      int
	scanSave       bool
	scanFormat     string
	scanTop        int
	scanRulesFile  string
	scanQuiet      bool
)

func init() {
	rootCmd.AddCommand(scanCmd)

	f := scanCmd.Flags()
	f.StringSliceVar(&scanSymbols, "symbols", nil, "종목 코드 목록 (지정 시 유니버스 무시)")
	f.StringSliceVar(&scanRules, "rules", nil, "적용할 규칙 (기본: SCAN_RULES)")
	f.Float64Var(&scanMinScore, "min-score", -1, "최소 종합 점수 (기본: SCAN_MIN_SCORE)")
	f.IntVar(&scanWorkers, "workers", 0, "동시 작업 수 (기본: SCAN_WORKERS)")
	f.IntVar(&scanMaxResults, "max-results", 0, "최대 결과 수 (기본: SCAN_MAX_RESULTS)")
	f.IntVar(&scanBatchSize, "batch-size", 0, "배치 크기 (기본: SCAN_BATCH_SIZE)")
	f.StringVar(&scanSource, "source", "", "시세 소스: synthetic|http|postgres")
	f.StringVar(&scanUniverse, "universe", "", "유니버스 소스: static|postgres|html")
	f.StringSliceVar(&scanMarkets, "market", nil, "시장 필터 (KOSPI, KOSDAQ ...)")
	f.IntVar(&scanLimit, "limit", 0, "스캔할 최대 종목 수")
	f.BoolVar(&scanSave, "save", false, "결과를 Postgres에 저장")
	f.StringVar(&scanFormat, "format", formatTable, "출력 형식: table|json|csv")
	f.IntVar(&scanTop, "top", 20, "요약에 포함할 상위 종목 수")
	f.StringVar(&scanRulesFile, "rules-file", "", "규칙 설정 YAML (기본: SCAN_RULES_FILE)")
	f.BoolVarP(&scanQuiet, "quiet", "q", false, "진행 상황 출력 생략")
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if scanSource != "" {
		cfg.MarketData.Source = scanSource
	}
	if scanUniverse != "" {
		cfg.Universe.Source = scanUniverse
	}
	if len(scanMarkets) > 0 {
		cfg.Universe.Markets = scanMarkets
	}
	if scanRulesFile != "" {
		cfg.Scan.RulesFile = scanRulesFile
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	rt, err := newRuntime(ctx, cfg, scanSave)
	if err != nil {
		return err
	}
	defer rt.Close()

	// 1. Universe
	provider, err := rt.symbolProvider(cfg.Universe.Source, scanSymbols)
	if err != nil {
		return err
	}
	filter := rt.symbolFilter()
	filter.Limit = scanLimit
	symbols, err := provider.ListSymbols(ctx, filter)
	if err != nil {
		return fmt.Errorf("list symbols: %w", err)
	}

	// 2. Options
	opts := scanner.DefaultOptions(cfg)
	if len(scanRules) > 0 {
		opts.Rules = scanRules
	}
	if scanMinScore >= 0 {
		opts.MinScore = scanMinScore
	}
	if scanWorkers > 0 {
		opts.Workers = scanWorkers
	}
	if scanMaxResults > 0 {
		opts.MaxResults = scanMaxResults
	}
	if scanBatchSize > 0 {
		opts.BatchSize = scanBatchSize
	}

	// progress goes to stderr so json/csv output stays clean
	stderr := cmd.ErrOrStderr()
	if !scanQuiet {
		PrintScanHeader(stderr, len(symbols), opts, cfg.MarketData.Source)
		opts.Progress = progressPrinter(stderr, max(1, len(symbols)/20))
	}

	// 3. Scan
	report, err := rt.scan.Scan(ctx, symbols, opts)
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		PrintWarning(stderr, "scan interrupted, report is partial")
	}

	// 4. Persist
	if scanSave {
		if err := rt.repo.SaveReport(ctx, report); err != nil {
			return fmt.Errorf("save report: %w", err)
		}
		if !scanQuiet {
			PrintSuccess(stderr, fmt.Sprintf("Saved run %s", report.RunID))
		}
	}

	return WriteReport(cmd.OutOrStdout(), report, scanFormat, scanTop)
}
