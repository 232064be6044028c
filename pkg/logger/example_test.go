package logger_test

import (
	"errors"

	"github.com/wonny/screener/pkg/config"
	"github.com/wonny/screener/pkg/logger"
)

// Example_withFields demonstrates structured logging for a scan
func Example_withFields() {
	log := logger.New(&config.Config{
		Env:       "production",
		LogLevel:  "info",
		LogFormat: "json",
	})

	log.WithFields(map[string]interface{}{
		"symbol": "005930",
		"rule":   "TrendBreakout",
		"score":  91.2,
	}).Info("Rule passed")

	log.WithRun("5f0c").WithSymbol("000000").
		WithError(errors.New("history not found")).
		Warn("Symbol skipped")
}
