package config_test

import (
	"fmt"

	"github.com/wonny/screener/pkg/config"
)

// Example demonstrates how to use the config package
func Example() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		return
	}

	fmt.Printf("Environment: %s\n", cfg.Env)
	fmt.Printf("Scan workers: %d\n", cfg.Scan.Workers)
	fmt.Printf("Rules: %v\n", cfg.Scan.Rules)
}
