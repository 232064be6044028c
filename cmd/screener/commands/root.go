package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	configFile string
	env        string
	verbose    bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "screener",
	Short: "기술적 분석 종목 스크리너",
	Long: `Technical stock screener

시세 이력에 지표를 계산하고 규칙(GoldenPit, TrendBreakout)으로
종목을 평가해 종합 점수 순으로 정렬합니다.

Usage:
  go run ./cmd/screener [command]

Examples:
  go run ./cmd/screener scan --symbols PIT1,BRK1,005930
  go run ./cmd/screener rules
  go run ./cmd/screener api
  go run ./cmd/screener prices sync --symbols 005930
  go run ./cmd/screener scheduler start`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "env file (default is .env)")
	rootCmd.PersistentFlags().StringVar(&env, "env", "", "environment override (development|staging|production)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}
