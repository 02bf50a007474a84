package config_test

import (
	"fmt"

	"github.com/wangshuile/jb-quant/pkg/config"
)

// Example demonstrates how to use the config package
func Example() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		return
	}

	fmt.Printf("Environment: %s\n", cfg.Env)
	fmt.Printf("Strategy file: %s\n", cfg.StrategyFile)
	fmt.Printf("Persistence enabled: %v\n", cfg.Database.Enabled())
}
