package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/screener/internal/scanner"
	"github.com/wonny/screener/internal/scheduler"
	"github.com/wonny/screener/internal/scheduler/jobs"
	"github.com/wonny/screener/internal/universe"
)

// schedulerCmd represents the scheduler command
var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "스케줄러 관리",
	Long: `정기 스캔 스케줄러를 시작하거나 작업을 관리합니다.

Subcommands:
  start   - 스케줄러 시작
  list    - 등록된 작업 목록
  run     - 특정 작업 즉시 실행

Example:
  go run ./cmd/screener scheduler start
  go run ./cmd/screener scheduler list
  go run ./cmd/screener scheduler run daily_scan`,
}

var (
	schedulerStartCmd = &cobra.Command{
		Use:   "start",
		Short: "스케줄러 시작",
		Long: `스케줄러를 시작하고 등록된 모든 작업을 스케줄합니다.

등록되는 작업:
- daily_scan: SCHEDULE_SCAN_CRON (기본: 평일 16:30)
- maintenance: 매일 03:00 (오래된 스캔 기록 정리)
- universe_sync: 평일 08:00 (UNIVERSE_LISTING_URL 및 DB 설정 시)
- price_sync: 평일 16:00 (MARKETDATA_SOURCE=postgres 및 DB 설정 시)

스케줄러는 Ctrl+C로 종료할 수 있습니다.`,
		RunE: runScheduler,
	}

	schedulerListCmd = &cobra.Command{
		Use:   "list",
		Short: "등록된 작업 목록",
		RunE:  listJobs,
	}

	schedulerRunCmd = &cobra.Command{
		Use:   "run [job_name]",
		Short: "특정 작업 즉시 실행",
		Args:  cobra.ExactArgs(1),
		RunE:  runJob,
	}
)

var (
	retentionDays int
	keepHistory   int
)

func init() {
	rootCmd.AddCommand(schedulerCmd)
	schedulerCmd.AddCommand(schedulerStartCmd)
	schedulerCmd.AddCommand(schedulerListCmd)
	schedulerCmd.AddCommand(schedulerRunCmd)

	schedulerCmd.PersistentFlags().IntVar(&retentionDays, "retention-days", 90, "스캔 기록 보관 일수")
	schedulerCmd.PersistentFlags().IntVar(&keepHistory, "keep-history", 10000, "엔진 실행 이력 보관 개수")
}

// initScheduler wires the runtime and registers every job it can support
func initScheduler(ctx context.Context) (*scheduler.Scheduler, *runtime, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	rt, err := newRuntime(ctx, cfg, false)
	if err != nil {
		return nil, nil, err
	}

	provider, err := rt.symbolProvider(cfg.Universe.Source, nil)
	if err != nil {
		rt.Close()
		return nil, nil, err
	}

	sched := scheduler.New(rt.log)

	scanJob := jobs.NewScanJob(rt.scan, provider, rt.reportStore(), scanner.DefaultOptions(cfg), rt.symbolFilter(), cfg.Schedule.ScanCron, rt.log)
	if err := sched.AddJob(scanJob); err != nil {
		rt.Close()
		return nil, nil, err
	}

	var pruner jobs.RunPruner
	if rt.repo != nil {
		pruner = rt.repo
	}
	retention := time.Duration(retentionDays) * 24 * time.Hour
	if err := sched.AddJob(jobs.NewMaintenanceJob(pruner, rt.engine, retention, keepHistory, rt.log)); err != nil {
		rt.Close()
		return nil, nil, err
	}

	if rt.db != nil && cfg.Universe.ListingURL != "" {
		source := universe.NewHTMLProvider(rt.http, cfg.Universe.ListingURL, rt.log)
		sink := universe.NewPostgresProvider(rt.db.Pool, rt.log)
		if err := sched.AddJob(jobs.NewUniverseSyncJob(source, sink, rt.log)); err != nil {
			rt.Close()
			return nil, nil, err
		}
	}

	// 일봉 수집은 postgres 소스를 쓸 때만 의미가 있음
	if rt.db != nil && cfg.MarketData.Source == "postgres" {
		priceJob, err := rt.priceSyncJob(provider, rt.symbolFilter())
		if err == nil {
			err = sched.AddJob(priceJob)
		}
		if err != nil {
			rt.Close()
			return nil, nil, err
		}
	}

	return sched, rt, nil
}

func runScheduler(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	sched, rt, err := initScheduler(context.Background())
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	defer rt.Close()

	sched.Start()

	PrintSuccess(out, "Scheduler started successfully")
	fmt.Fprintln(out, "\nRegistered jobs:")
	for _, jobName := range sched.GetAllJobs() {
		next, _ := sched.NextRun(jobName)
		fmt.Fprintf(out, "  - %s (next: %s)\n", jobName, next.Format(time.RFC3339))
	}
	fmt.Fprintln(out, "\nPress Ctrl+C to stop")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	fmt.Fprintln(out, "\nShutting down scheduler...")
	sched.Stop()
	return nil
}

func listJobs(cmd *cobra.Command, args []string) error {
	sched, rt, err := initScheduler(context.Background())
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	defer rt.Close()

	out := cmd.OutOrStdout()
	widths := []int{16, 20}
	PrintTableHeader(out, []string{"Job", "Schedule"}, widths)
	stats := sched.GetJobStats()
	for _, name := range sched.GetAllJobs() {
		PrintTableRow(out, []string{name, stats[name].Schedule}, widths)
	}
	return nil
}

func runJob(cmd *cobra.Command, args []string) error {
	jobName := args[0]

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sched, rt, err := initScheduler(ctx)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	defer rt.Close()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Running job: %s\n", jobName)

	result, err := sched.RunJob(ctx, jobName)
	if err != nil {
		return err
	}
	PrintSuccess(out, fmt.Sprintf("Job %s completed in %s (%d attempt(s))", jobName, result.Duration.Round(time.Millisecond), result.Attempts))
	return nil
}
