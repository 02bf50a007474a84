package backtest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wangshuile/jb-quant/internal/audit"
	"github.com/wangshuile/jb-quant/internal/brain"
	"github.com/wangshuile/jb-quant/internal/contracts"
	"github.com/wangshuile/jb-quant/internal/s0_data"
	"github.com/wangshuile/jb-quant/internal/s0_data/quality"
	"github.com/wangshuile/jb-quant/internal/strategyconfig"
	"github.com/wangshuile/jb-quant/pkg/logger"
	"github.com/wangshuile/jb-quant/pkg/metrics"
	"github.com/wangshuile/jb-quant/pkg/redis"
)

// WarmupDays of bars loaded before the range start so indicators have history
const WarmupDays = 400

// TopHoldingsCount is the number of holdings listed in the report
const TopHoldingsCount = 5

// Deps are optional collaborators of the engine
type Deps struct {
	Cache   *redis.Cache
	Metrics *metrics.Recorder
	Sinks   []brain.SnapshotSink // 분석기 외 추가 싱크 (DB, Redis)
}

// Report is the end-of-run backtest result
type Report struct {
	StrategyID  string `json:"strategy_id"`
	Start       string `json:"start"`
	End         string `json:"end"`
	TradingDays int    `json:"trading_days"`

	InitialCash float64 `json:"initial_cash"`
	FinalAssets float64 `json:"final_assets"`
	Cash        float64 `json:"cash"`
	MarketValue float64 `json:"market_value"`
	TotalReturn float64 `json:"total_return"` // 자산 기준
	Commission  float64 `json:"commission"`
	Orders      int     `json:"orders"`

	Performance contracts.Performance `json:"performance"`
	Summary     audit.Summary         `json:"summary"`
	TopHoldings []Holding             `json:"top_holdings"`
	Quality     *quality.Report       `json:"quality"`
	Duration    time.Duration         `json:"duration"`
}

// Engine replays the daily phases over historical bars
// ⭐ SSOT: 백테스팅 실행은 여기서만
type Engine struct {
	cfg    *strategyconfig.Config
	source s0_data.BarSource
	gate   *quality.Gate
	deps   Deps
	logger *logger.Logger
}

// NewEngine creates a new backtest engine
func NewEngine(cfg *strategyconfig.Config, source s0_data.BarSource, deps Deps, log *logger.Logger) *Engine {
	if log == nil {
		log = logger.Nop()
	}
	return &Engine{
		cfg:    cfg,
		source: source,
		gate:   quality.NewGate(quality.Config{}),
		deps:   deps,
		logger: log.Component("backtest"),
	}
}

// Run loads bars, builds the orchestrator over a Simulator and replays
// market_open → midday → afternoon → market_close for every trading day
func (e *Engine) Run(ctx context.Context) (*Report, error) {
	started := time.Now()

	loc, err := e.cfg.Location()
	if err != nil {
		return nil, err
	}
	start, end, err := e.cfg.Backtest.Range(loc)
	if err != nil {
		return nil, err
	}

	set, err := e.source.Load(ctx, start.AddDate(0, 0, -WarmupDays), end)
	if err != nil {
		return nil, fmt.Errorf("load bars: %w", err)
	}

	qr := e.gate.Check(set)
	log := e.logger.WithFields(map[string]interface{}{
		"symbols":       qr.TotalSymbols,
		"valid_symbols": qr.ValidSymbols,
		"dropped_bars":  qr.DroppedBars,
		"quality_score": qr.QualityScore,
	})
	if !qr.Passed {
		log.Warn("Bar quality below threshold")
	} else {
		log.Info("Bars loaded")
	}

	// 범위 시작 시각과 무관하게 시작일 일봉 포함
	days := set.TradingDays(time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, loc), end)
	if len(days) == 0 {
		return nil, fmt.Errorf("no trading days between %s and %s", e.cfg.Backtest.Start, e.cfg.Backtest.End)
	}

	sim := NewSimulator(set, SimConfig{
		InitialCash:      e.cfg.Backtest.InitialCash,
		CommissionRatio:  e.cfg.Backtest.CommissionRatio,
		SlippageRatio:    e.cfg.Backtest.SlippageRatio,
		TransactionRatio: e.cfg.Backtest.TransactionRatio,
	}, loc, e.logger)

	orch, err := brain.Build(e.cfg, brain.Deps{
		Market:  sim,
		Clock:   sim,
		Cache:   e.deps.Cache,
		Metrics: e.deps.Metrics,
		Logger:  e.logger,
	})
	if err != nil {
		return nil, err
	}
	sim.OnOrder(func(ctx context.Context, ev contracts.OrderEvent) {
		// 실패는 OnOrderStatus 내부에서 로깅됨
		_ = orch.OnOrderStatus(ctx, ev)
	})

	analyzer := audit.NewAnalyzer(e.logger)
	orch.AddSink(analyzer)
	for _, sink := range e.deps.Sinks {
		orch.AddSink(sink)
	}

	phases := e.cfg.Schedule.Phases()
	sim.SetNow(at(days[0], phases[0].At, loc))
	if err := orch.Init(ctx); err != nil {
		return nil, err
	}

	e.logger.WithFields(map[string]interface{}{
		"strategy_id":  e.cfg.Meta.StrategyID,
		"start":        days[0].Format("2006-01-02"),
		"end":          days[len(days)-1].Format("2006-01-02"),
		"trading_days": len(days),
		"initial_cash": e.cfg.Backtest.InitialCash,
	}).Info("Starting backtest")

	for _, day := range days {
		for _, p := range phases {
			sim.SetNow(at(day, p.At, loc))
			if err := orch.RunPhase(ctx, p.Phase); err != nil {
				if errors.Is(err, brain.ErrHalted) || ctx.Err() != nil {
					return nil, fmt.Errorf("backtest stopped on %s %s: %w", day.Format("2006-01-02"), p.Phase, err)
				}
				return nil, err
			}
		}
	}

	account, err := sim.Account(ctx)
	if err != nil {
		return nil, err
	}

	report := &Report{
		StrategyID:  e.cfg.Meta.StrategyID,
		Start:       days[0].Format("2006-01-02"),
		End:         days[len(days)-1].Format("2006-01-02"),
		TradingDays: len(days),
		InitialCash: e.cfg.Backtest.InitialCash,
		FinalAssets: account.TotalAssets(),
		Cash:        account.Cash,
		MarketValue: account.MarketValue(),
		Commission:  sim.TotalCommission(),
		Orders:      len(sim.Events()),
		Performance: orch.Performance(),
		Summary:     analyzer.Summary(),
		TopHoldings: sim.TopHoldings(TopHoldingsCount),
		Quality:     qr,
		Duration:    time.Since(started),
	}
	if report.InitialCash > 0 {
		report.TotalReturn = report.FinalAssets/report.InitialCash - 1
	}

	e.logger.WithFields(map[string]interface{}{
		"final_assets": report.FinalAssets,
		"cash":         report.Cash,
		"market_value": report.MarketValue,
		"total_return": fmt.Sprintf("%.2f%%", report.TotalReturn*100),
		"sharpe_ratio": fmt.Sprintf("%.2f", report.Summary.Sharpe),
		"max_drawdown": fmt.Sprintf("%.2f%%", report.Summary.MaxDrawdown*100),
		"trades":       report.Summary.TotalTrades,
	}).Info("Backtest completed")

	for i, h := range report.TopHoldings {
		e.logger.WithFields(map[string]interface{}{
			"rank":   i + 1,
			"symbol": h.Symbol,
			"volume": h.Volume,
			"vwap":   h.VWAP,
			"price":  h.Price,
			"value":  h.Value,
		}).Info("Holding")
	}

	return report, nil
}

// at places an HH:MM:SS clock on day in loc
func at(day time.Time, clock string, loc *time.Location) time.Time {
	day = day.In(loc)
	t, err := time.ParseInLocation(strategyconfig.ClockLayout, clock, loc)
	if err != nil {
		return time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, loc)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), t.Second(), 0, loc)
}
