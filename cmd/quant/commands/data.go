package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wangshuile/jb-quant/internal/s0_data"
	"github.com/wangshuile/jb-quant/internal/s0_data/quality"
)

// dataCmd groups market data commands
var dataCmd = &cobra.Command{
	Use:   "data",
	Short: "일봉 데이터 적재 및 품질 점검",
	Long:  `CSV 일봉 데이터를 PostgreSQL 로 적재하거나 품질을 점검합니다.`,
}

// dataImportCmd copies a CSV directory into market.* tables
var dataImportCmd = &cobra.Command{
	Use:   "import",
	Short: "CSV 일봉 → PostgreSQL 적재 (DATABASE_URL 필요)",
	Long: `CSV 디렉토리를 읽어 market.daily_bars / instruments / index_constituents 에
업서트합니다.

디렉토리 구조:
  <dir>/bars/<SYMBOL>.csv      date,open,high,low,close,volume,amount
  <dir>/instruments.csv        symbol,name,sector,market_cap   (선택)
  <dir>/constituents.csv       index,symbol                    (선택)

Example:
  go run ./cmd/quant data import --dir testdata/market
  go run ./cmd/quant data import --dir testdata/market --from 2020-01-01`,
	RunE: runDataImport,
}

// dataCheckCmd runs the quality gate over a bar source
var dataCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "일봉 품질 게이트 점검",
	RunE:  runDataCheck,
}

var (
	dataDir  string
	dataFrom string
	dataTo   string
)

func init() {
	rootCmd.AddCommand(dataCmd)
	dataCmd.AddCommand(dataImportCmd)
	dataCmd.AddCommand(dataCheckCmd)

	dataCmd.PersistentFlags().StringVar(&dataDir, "dir", "", "CSV bar directory (default $MARKET_DATA_DIR)")
	dataCmd.PersistentFlags().StringVar(&dataFrom, "from", "2000-01-01", "first date (YYYY-MM-DD)")
	dataCmd.PersistentFlags().StringVar(&dataTo, "to", "", "last date (YYYY-MM-DD, default today)")
}

func dataRange(loc *time.Location) (time.Time, time.Time, error) {
	from, err := time.ParseInLocation("2006-01-02", dataFrom, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid --from: %w", err)
	}
	to := time.Now().In(loc)
	if dataTo != "" {
		to, err = time.ParseInLocation("2006-01-02", dataTo, loc)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --to: %w", err)
		}
		to = to.Add(24*time.Hour - time.Second)
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("--to %s is before --from %s", dataTo, dataFrom)
	}
	return from, to, nil
}

func runDataImport(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := bootstrap(ctx, storesOptional)
	if err != nil {
		return err
	}
	defer a.close()
	if a.db == nil {
		return fmt.Errorf("data import requires DATABASE_URL")
	}

	dir := dataDir
	if dir == "" {
		dir = a.cfg.Market.DataDir
	}
	if dir == "" {
		return fmt.Errorf("no CSV directory: set --dir or MARKET_DATA_DIR")
	}

	from, to, err := dataRange(a.loc)
	if err != nil {
		return err
	}

	started := time.Now()
	set, err := s0_data.NewCSVSource(dir, a.loc).Load(ctx, from, to)
	if err != nil {
		return err
	}
	repo := s0_data.NewPriceRepository(a.db.Pool, a.loc)

	PrintHeader("Data Import")
	PrintKeyValue("Source", dir, 10)
	PrintKeyValue("Period", fmt.Sprintf("%s ~ %s", from.Format("2006-01-02"), to.Format("2006-01-02")), 10)
	PrintSeparator()

	symbols := set.Symbols()
	bars := 0
	for i, sym := range symbols {
		if err := repo.SaveBars(ctx, sym, set.Bars[sym]); err != nil {
			return err
		}
		bars += len(set.Bars[sym])
		fmt.Printf("[Bars] %s: %d bars [%d/%d]\n", sym, len(set.Bars[sym]), i+1, len(symbols))
	}

	for _, inst := range set.Instruments {
		if err := repo.SaveInstrument(ctx, inst); err != nil {
			return err
		}
	}

	indexes := make([]string, 0, len(set.Constituents))
	for index := range set.Constituents {
		indexes = append(indexes, index)
	}
	sort.Strings(indexes)
	for _, index := range indexes {
		if err := repo.SaveConstituents(ctx, index, set.Constituents[index]); err != nil {
			return err
		}
		fmt.Printf("[Index] %s: %d members\n", index, len(set.Constituents[index]))
	}

	PrintSeparator()
	PrintSuccess(fmt.Sprintf("Imported %d symbols, %d bars, %d instruments, %d indexes in %.2fs",
		len(symbols), bars, len(set.Instruments), len(indexes), time.Since(started).Seconds()))
	return nil
}

func runDataCheck(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := bootstrap(ctx, storesOptional)
	if err != nil {
		return err
	}
	defer a.close()

	source, err := a.barSource(dataDir)
	if err != nil {
		return err
	}
	from, to, err := dataRange(a.loc)
	if err != nil {
		return err
	}
	set, err := source.Load(ctx, from, to)
	if err != nil {
		return err
	}

	report := quality.NewGate(quality.Config{}).Check(set)

	PrintHeader("Data Quality")
	PrintKeyValue("Symbols", fmt.Sprintf("%d / %d valid", report.ValidSymbols, report.TotalSymbols), 14)
	PrintKeyValue("Dropped Bars", fmt.Sprintf("%d", report.DroppedBars), 14)
	PrintKeyValue("Quality Score", fmt.Sprintf("%.4f", report.QualityScore), 14)

	dims := make([]string, 0, len(report.Coverage))
	for dim := range report.Coverage {
		dims = append(dims, dim)
	}
	sort.Strings(dims)
	for _, dim := range dims {
		PrintKeyValue("Coverage "+dim, formatPercent(report.Coverage[dim]), 14)
	}

	PrintDoubleSeparator()
	if !report.Passed {
		PrintError("Quality gate failed")
		return fmt.Errorf("quality gate failed: score %.4f", report.QualityScore)
	}
	PrintSuccess("Quality gate passed")
	return nil
}
