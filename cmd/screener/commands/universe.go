package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wonny/screener/internal/scheduler/jobs"
	"github.com/wonny/screener/internal/universe"
)

// universeCmd represents the universe command
var universeCmd = &cobra.Command{
	Use:   "universe",
	Short: "종목 유니버스 관리",
	Long: `스캔 대상 종목 목록을 조회하거나 동기화합니다.

Subcommands:
  list  - 필터 적용 후 종목 코드 출력
  sync  - 상장 종목 HTML 테이블을 data.stocks에 저장

Example:
  go run ./cmd/screener universe list --market KOSPI
  go run ./cmd/screener universe sync`,
}

var (
	universeListCmd = &cobra.Command{
		Use:   "list",
		Short: "종목 목록 출력",
		RunE:  runUniverseList,
	}

	universeSyncCmd = &cobra.Command{
		Use:   "sync",
		Short: "상장 종목 동기화 (HTML → Postgres)",
		RunE:  runUniverseSync,
	}
)

var (
	universeSource  string
	universeMarkets []string
	universeLimit   int
)

func init() {
	rootCmd.AddCommand(universeCmd)
	universeCmd.AddCommand(universeListCmd)
	universeCmd.AddCommand(universeSyncCmd)

	universeListCmd.Flags().StringVar(&universeSource, "source", "", "유니버스 소스: static|postgres|html")
	universeListCmd.Flags().StringSliceVar(&universeMarkets, "market", nil, "시장 필터")
	universeListCmd.Flags().IntVar(&universeLimit, "limit", 0, "최대 종목 수")
}

func runUniverseList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if universeSource != "" {
		cfg.Universe.Source = universeSource
	}
	if len(universeMarkets) > 0 {
		cfg.Universe.Markets = universeMarkets
	}

	ctx := context.Background()
	rt, err := newRuntime(ctx, cfg, cfg.Universe.Source == "postgres")
	if err != nil {
		return err
	}
	defer rt.Close()

	provider, err := rt.symbolProvider(cfg.Universe.Source, nil)
	if err != nil {
		return err
	}
	filter := rt.symbolFilter()
	filter.Limit = universeLimit

	symbols, err := provider.ListSymbols(ctx, filter)
	if err != nil {
		return fmt.Errorf("list symbols: %w", err)
	}

	out := cmd.OutOrStdout()
	for _, s := range symbols {
		fmt.Fprintln(out, s)
	}
	PrintSeparator(cmd.ErrOrStderr())
	fmt.Fprintf(cmd.ErrOrStderr(), "%d symbols\n", len(symbols))
	return nil
}

func runUniverseSync(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Universe.ListingURL == "" {
		return fmt.Errorf("UNIVERSE_LISTING_URL is not set")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer rt.Close()

	source := universe.NewHTMLProvider(rt.http, cfg.Universe.ListingURL, rt.log)
	sink := universe.NewPostgresProvider(rt.db.Pool, rt.log)
	if err := jobs.NewUniverseSyncJob(source, sink, rt.log).Run(ctx); err != nil {
		return err
	}

	PrintSuccess(cmd.OutOrStdout(), "Universe synced")
	return nil
}
