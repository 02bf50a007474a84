package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wangshuile/jb-quant/internal/backtest"
	"github.com/wangshuile/jb-quant/internal/brain"
)

// backtestCmd replays the strategy over historical bars
var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "과거 일봉으로 전략 백테스트",
	Long: `전략 설정의 backtest 구간(start ~ end)을 거래일 단위로 재생합니다.

거래일마다 market_open → midday → afternoon → market_close 를 순서대로
실행하고, 종료 시 자산/수익률/샤프/최대낙폭/상위 보유 종목을 출력합니다.

DATABASE_URL / REDIS_ENABLED 가 설정되어 있으면 일일 스냅샷과 거래 기록도
저장합니다.

Example:
  go run ./cmd/quant backtest --data testdata/market
  go run ./cmd/quant backtest --start "2024-01-02 08:00:00" --end "2024-06-28 16:00:00"
  go run ./cmd/quant backtest --json`,
	RunE: runBacktest,
}

var (
	backtestDataDir string
	backtestStart   string
	backtestEnd     string
	backtestJSON    bool
	backtestPersist bool
)

func init() {
	rootCmd.AddCommand(backtestCmd)

	backtestCmd.Flags().StringVar(&backtestDataDir, "data", "", "CSV bar directory (default $MARKET_DATA_DIR, then DATABASE_URL)")
	backtestCmd.Flags().StringVar(&backtestStart, "start", "", "override backtest.start (YYYY-MM-DD HH:MM:SS)")
	backtestCmd.Flags().StringVar(&backtestEnd, "end", "", "override backtest.end (YYYY-MM-DD HH:MM:SS)")
	backtestCmd.Flags().BoolVar(&backtestJSON, "json", false, "print the report as JSON")
	backtestCmd.Flags().BoolVar(&backtestPersist, "persist", true, "record snapshots to the configured stores")
}

func runBacktest(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := bootstrap(ctx, storesOptional)
	if err != nil {
		return err
	}
	defer a.close()

	if backtestStart != "" {
		a.strategy.Backtest.Start = backtestStart
	}
	if backtestEnd != "" {
		a.strategy.Backtest.End = backtestEnd
	}

	source, err := a.barSource(backtestDataDir)
	if err != nil {
		return err
	}

	deps := backtest.Deps{
		Cache:   a.cache,
		Metrics: a.metrics,
	}
	if backtestPersist {
		deps.Sinks = []brain.SnapshotSink{a.recorder()}
	}

	engine := backtest.NewEngine(a.strategy, source, deps, a.log)
	report, err := engine.Run(ctx)
	if err != nil {
		return err
	}

	if backtestJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	printBacktestReport(report)
	return nil
}

func printBacktestReport(r *backtest.Report) {
	fmt.Println()
	PrintDoubleSeparator()
	fmt.Printf("  Backtest: %s\n", r.StrategyID)
	PrintSeparator()
	PrintKeyValue("Period", fmt.Sprintf("%s ~ %s (%d days)", r.Start, r.End, r.TradingDays), 14)
	PrintKeyValue("Initial Cash", formatMoney(r.InitialCash), 14)
	PrintKeyValue("Final Assets", formatMoney(r.FinalAssets), 14)
	PrintKeyValue("Cash", formatMoney(r.Cash), 14)
	PrintKeyValue("Market Value", formatMoney(r.MarketValue), 14)
	PrintKeyValue("Total Return", formatPercent(r.TotalReturn), 14)
	PrintKeyValue("Commission", formatMoney(r.Commission), 14)
	PrintKeyValue("Orders", fmt.Sprintf("%d", r.Orders), 14)
	PrintSeparator()
	PrintKeyValue("Trades", fmt.Sprintf("%d", r.Summary.TotalTrades), 14)
	PrintKeyValue("Win Rate", formatPercent(r.Summary.WinRate), 14)
	PrintKeyValue("Avg Return", formatPercent(r.Summary.AvgReturn), 14)
	PrintKeyValue("Sharpe", fmt.Sprintf("%.2f", r.Summary.Sharpe), 14)
	PrintKeyValue("Max Drawdown", formatPercent(r.Summary.MaxDrawdown), 14)
	PrintKeyValue("VaR 95", formatPercent(r.Summary.Risk.VaR95), 14)
	PrintKeyValue("CVaR 95", formatPercent(r.Summary.Risk.CVaR95), 14)

	if len(r.TopHoldings) > 0 {
		PrintSeparator()
		widths := []int{4, 14, 10, 10, 10, 14}
		PrintTableHeader([]string{"#", "Symbol", "Volume", "VWAP", "Price", "Value"}, widths)
		for i, h := range r.TopHoldings {
			PrintTableRow([]string{
				fmt.Sprintf("%d", i+1),
				h.Symbol,
				fmt.Sprintf("%d", h.Volume),
				fmt.Sprintf("%.2f", h.VWAP),
				fmt.Sprintf("%.2f", h.Price),
				formatMoney(h.Value),
			}, widths)
		}
	}

	if r.Quality != nil && !r.Quality.Passed {
		PrintWarning(fmt.Sprintf("bar quality %.2f below threshold (%d/%d symbols valid)",
			r.Quality.QualityScore, r.Quality.ValidSymbols, r.Quality.TotalSymbols))
	}
	PrintDoubleSeparator()
	PrintSuccess(fmt.Sprintf("Backtest completed in %s", r.Duration.Round(time.Millisecond)))
}
