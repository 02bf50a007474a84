package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/wangshuile/jb-quant/internal/audit"
	"github.com/wangshuile/jb-quant/internal/contracts"
)

// statusCmd prints the latest engine state from the stores
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "최근 선정 종목/스냅샷/성과 조회",
	Long: `Redis 에 발행된 최신 선정 종목과 일일 스냅샷, PostgreSQL 에 저장된
기간 성과를 출력합니다.

Example:
  go run ./cmd/quant status
  go run ./cmd/quant status --days 60 --history 10`,
	RunE: runStatus,
}

var (
	statusDays    int
	statusHistory int64
)

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().IntVar(&statusDays, "days", 30, "performance window in days (database)")
	statusCmd.Flags().Int64Var(&statusHistory, "history", 5, "recent snapshots to list (redis)")
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a, err := bootstrap(ctx, storesOptional)
	if err != nil {
		return err
	}
	defer a.close()

	PrintHeader(fmt.Sprintf("Status: %s", a.strategy.Meta.StrategyID))

	pub := a.publisher()
	repo := a.repository()
	if pub == nil && repo == nil {
		PrintWarning("no store configured: set REDIS_ENABLED or DATABASE_URL")
		return nil
	}

	if pub != nil {
		if err := printPublished(ctx, pub); err != nil {
			return err
		}
	}
	if repo != nil {
		if err := printStored(ctx, repo, a.loc); err != nil {
			return err
		}
	}

	PrintDoubleSeparator()
	return nil
}

func printPublished(ctx context.Context, pub *audit.Publisher) error {
	sel, err := pub.LatestSelection(ctx)
	if err != nil {
		return fmt.Errorf("read selection: %w", err)
	}
	if sel != nil {
		PrintInfo(fmt.Sprintf("Selection (%s)", sel.Date))
		widths := []int{4, 14, 10, 12}
		PrintTableHeader([]string{"#", "Symbol", "Score", "Price"}, widths)
		for i, inst := range sel.Selected {
			PrintTableRow([]string{
				fmt.Sprintf("%d", i+1),
				inst.Symbol,
				fmt.Sprintf("%.4f", inst.Score),
				fmt.Sprintf("%.2f", inst.CurrentPrice),
			}, widths)
		}
	} else {
		PrintInfo("No selection published")
	}

	history, err := pub.History(ctx, statusHistory)
	if err != nil {
		return fmt.Errorf("read snapshot history: %w", err)
	}
	if len(history) > 0 {
		PrintSeparator()
		printSnapshotTable(history)
	}
	return nil
}

func printStored(ctx context.Context, repo *audit.Repository, loc *time.Location) error {
	latest, err := repo.GetLatestSnapshot(ctx)
	if err != nil {
		return err
	}
	PrintSeparator()
	if latest == nil {
		PrintInfo("No snapshot stored")
		return nil
	}
	PrintInfo(fmt.Sprintf("Latest stored snapshot (%s)", latest.Date))
	PrintKeyValue("Total Assets", formatMoney(latest.TotalAssets), 14)
	PrintKeyValue("Cash", formatMoney(latest.Cash), 14)
	PrintKeyValue("Positions", fmt.Sprintf("%d", latest.Positions), 14)
	PrintKeyValue("Selected", selectedSymbols(latest.Selected), 14)

	end := time.Now().In(loc)
	start := end.AddDate(0, 0, -statusDays)
	analyzer := audit.NewAnalyzer(nil)
	if err := repo.LoadAnalyzer(ctx, start, end, analyzer); err != nil {
		return err
	}
	s := analyzer.Summary()

	PrintSeparator()
	PrintInfo(fmt.Sprintf("Performance (last %d days)", statusDays))
	PrintKeyValue("Trades", fmt.Sprintf("%d", s.TotalTrades), 14)
	PrintKeyValue("Win Rate", formatPercent(s.WinRate), 14)
	PrintKeyValue("Avg Return", formatPercent(s.AvgReturn), 14)
	PrintKeyValue("Sharpe", fmt.Sprintf("%.2f", s.Sharpe), 14)
	PrintKeyValue("Max Drawdown", formatPercent(s.MaxDrawdown), 14)
	return nil
}

func printSnapshotTable(snaps []contracts.DailySnapshot) {
	widths := []int{12, 16, 10, 8, 10}
	PrintTableHeader([]string{"Date", "Assets", "Positions", "Trades", "Win Rate"}, widths)
	for _, s := range snaps {
		PrintTableRow([]string{
			s.Date,
			formatMoney(s.TotalAssets),
			fmt.Sprintf("%d", s.Positions),
			fmt.Sprintf("%d", s.Performance.TradeCount),
			formatPercent(s.Performance.WinRate),
		}, widths)
	}
}

func selectedSymbols(selected []contracts.InstrumentInfo) string {
	if len(selected) == 0 {
		return "-"
	}
	symbols := make([]string, len(selected))
	for i, s := range selected {
		symbols[i] = s.Symbol
	}
	return strings.Join(symbols, ", ")
}
