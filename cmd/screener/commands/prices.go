package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// pricesCmd represents the prices command
var pricesCmd = &cobra.Command{
	Use:   "prices",
	Short: "일봉 데이터 관리",
	Long: `차트 API에서 일봉을 받아 data.daily_prices에 저장합니다.
저장된 데이터는 MARKETDATA_SOURCE=postgres 스캔에서 사용됩니다.

Example:
  go run ./cmd/screener prices sync --symbols 005930,000660
  go run ./cmd/screener prices sync --universe postgres --limit 100`,
}

var pricesSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "일봉 동기화 (HTTP → Postgres)",
	RunE:  runPricesSync,
}

var (
	pricesSymbols  []string
	pricesUniverse string
	pricesLimit    int
	pricesWorkers  int
)

func init() {
	rootCmd.AddCommand(pricesCmd)
	pricesCmd.AddCommand(pricesSyncCmd)

	pricesSyncCmd.Flags().StringSliceVar(&pricesSymbols, "symbols", nil, "종목 코드 (쉼표 구분)")
	pricesSyncCmd.Flags().StringVar(&pricesUniverse, "universe", "", "유니버스 소스: static|postgres|html")
	pricesSyncCmd.Flags().IntVar(&pricesLimit, "limit", 0, "최대 종목 수")
	pricesSyncCmd.Flags().IntVar(&pricesWorkers, "workers", 0, "동시 요청 수 (0 = 설정값)")
}

func runPricesSync(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if pricesUniverse != "" {
		cfg.Universe.Source = pricesUniverse
	}
	if pricesWorkers > 0 {
		cfg.Scan.Workers = pricesWorkers
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	rt, err := newRuntime(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer rt.Close()

	provider, err := rt.symbolProvider(cfg.Universe.Source, pricesSymbols)
	if err != nil {
		return err
	}
	filter := rt.symbolFilter()
	filter.Limit = pricesLimit

	job, err := rt.priceSyncJob(provider, filter)
	if err != nil {
		return err
	}
	res, err := job.Sync(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	PrintKeyValue(out, "Symbols", fmt.Sprint(res.Symbols), 10)
	PrintKeyValue(out, "Saved", fmt.Sprint(res.Saved), 10)
	PrintKeyValue(out, "Bars", fmt.Sprint(res.Bars), 10)
	for _, sym := range sortedKeys(res.Failed) {
		PrintWarning(out, fmt.Sprintf("%s: %v", sym, res.Failed[sym]))
	}
	if res.Saved == 0 && res.Symbols > 0 {
		return fmt.Errorf("no symbols synced")
	}
	PrintSuccess(out, "Prices synced")
	return nil
}
