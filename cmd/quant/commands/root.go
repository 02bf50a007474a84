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
	Use:   "quant",
	Short: "jb-quant - 일봉 주식 매매 의사결정 엔진",
	Long: `jb-quant Unified CLI

설정 파일(YAML) 하나로 유니버스 → 스코어링 → 타이밍 → 리스크 → 주문 실행
정책을 조립하고 하루 4개 구간(market_open, midday, afternoon, market_close)을
구동합니다.

Usage:
  go run ./cmd/quant [command]

Examples:
  go run ./cmd/quant run
  go run ./cmd/quant backtest --config config/strategy.yaml
  go run ./cmd/quant config validate
  go run ./cmd/quant status
  go run ./cmd/quant data import --dir testdata/market`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "strategy YAML (default is $STRATEGY_CONFIG or config/strategy.yaml)")
	rootCmd.PersistentFlags().StringVar(&env, "env", "", "environment override (development|staging|production)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (debug log level)")
}
