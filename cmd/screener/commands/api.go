package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/screener/internal/api"
	"github.com/wonny/screener/internal/api/handlers"
	"github.com/wonny/screener/internal/scanner"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "API 서버 시작",
	Long: `REST/WebSocket API 서버를 시작합니다.

Endpoints:
  GET  /health             - Health check
  GET  /api/rules          - 규칙 설명 및 통계
  POST /api/scan           - 스캔 실행
  GET  /api/scan/{symbol}  - 단일 종목 평가
  GET  /api/scans          - 저장된 스캔 목록
  GET  /api/scans/{id}     - 저장된 스캔 결과
  GET  /ws/scan            - 진행 상황 스트리밍 스캔

Example:
  go run ./cmd/screener api
  go run ./cmd/screener api --port 8080`,
	RunE: runAPIServer,
}

var (
	apiPort string
)

func init() {
	rootCmd.AddCommand(apiCmd)

	// Flags
	apiCmd.Flags().StringVar(&apiPort, "port", "", "API 서버 포트 (기본: PORT)")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if apiPort != "" {
		cfg.Port = apiPort
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer rt.Close()

	provider, err := rt.symbolProvider(cfg.Universe.Source, nil)
	if err != nil {
		return err
	}

	scanHandler := handlers.NewScanHandler(rt.scan, provider, rt.reportStore(), scanner.DefaultOptions(cfg), rt.symbolFilter(), rt.log)
	var health api.HealthChecker
	if rt.db != nil {
		health = rt.db
	}
	server := api.New(cfg, rt.log, api.NewRouter(scanHandler, health, rt.log))

	fmt.Fprintf(cmd.OutOrStdout(), "\n✅ Server running on http://localhost:%s\n", cfg.Port)
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl+C to stop")

	if err := server.Run(ctx, 30*time.Second); err != nil {
		return fmt.Errorf("api server: %w", err)
	}

	rt.log.Info("Server stopped")
	return nil
}
