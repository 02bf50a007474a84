package brain

import (
	"fmt"

	"github.com/wangshuile/jb-quant/internal/contracts"
	"github.com/wangshuile/jb-quant/internal/execution"
	"github.com/wangshuile/jb-quant/internal/risk"
	"github.com/wangshuile/jb-quant/internal/s0_data"
	"github.com/wangshuile/jb-quant/internal/s1_universe"
	"github.com/wangshuile/jb-quant/internal/s2_signals"
	"github.com/wangshuile/jb-quant/internal/selection"
	"github.com/wangshuile/jb-quant/internal/strategyconfig"
	"github.com/wangshuile/jb-quant/pkg/logger"
	"github.com/wangshuile/jb-quant/pkg/metrics"
	"github.com/wangshuile/jb-quant/pkg/redis"
)

// Deps are the process-level collaborators of Build
type Deps struct {
	Market    contracts.Market
	Clock     contracts.Clock
	Cache     *redis.Cache      // nil 이면 유니버스 메모이즈 생략
	Metrics   *metrics.Recorder // nil 허용
	Logger    *logger.Logger
	RateLimit float64 // 시장 호출 초당 한도, 0 = 무제한
	Burst     int
}

// Build wires every policy slot named by cfg into an Orchestrator
// ⭐ SSOT: 설정 태그 → 정책 인스턴스 조립은 여기서만
func Build(cfg *strategyconfig.Config, deps Deps) (*Orchestrator, error) {
	if deps.Market == nil {
		return nil, fmt.Errorf("build: market is required")
	}
	log := deps.Logger
	if log == nil {
		log = logger.Nop()
	}
	clock := deps.Clock
	if clock == nil {
		loc, err := cfg.Location()
		if err != nil {
			return nil, err
		}
		clock = contracts.SystemClock{Location: loc}
	}

	market := s0_data.NewThrottledMarket(deps.Market, deps.RateLimit, deps.Burst)
	data := s0_data.NewManager(market, clock, s0_data.NewSeriesCache(s0_data.DefaultCacheSize), log)

	universe := s1_universe.New(s1_universe.Config{
		Type:      cfg.Universe.Type,
		Index:     cfg.Universe.Index,
		Symbols:   cfg.Universe.Symbols,
		BlackList: cfg.Universe.BlackList,
	}, market, clock, deps.Cache, log)

	scoring, err := selection.New(cfg.Selection.Type, universe, data, log)
	if err != nil {
		return nil, fmt.Errorf("build scoring: %w", err)
	}

	timing := s2_signals.New(cfg.Timing.Type, cfg.Timing.Enabled, data, log)

	riskMgr, err := risk.New(cfg.Risk.Type, RiskConfig(cfg), market, clock, log)
	if err != nil {
		return nil, fmt.Errorf("build risk: %w", err)
	}

	executor, err := execution.New(cfg.Execution.Type, ExecutionConfig(cfg), market, data, riskMgr, deps.Metrics, log)
	if err != nil {
		return nil, fmt.Errorf("build executor: %w", err)
	}

	tc, err := NewTradingContext(Components{
		Clock:    clock,
		Account:  market,
		Data:     data,
		Universe: universe,
		Scoring:  scoring,
		Timing:   timing,
		Risk:     riskMgr,
		Executor: executor,
	})
	if err != nil {
		return nil, err
	}

	return NewOrchestrator(tc, OrchestratorConfig(cfg), deps.Metrics, log), nil
}

// RiskConfig maps the risk section onto risk.Config
func RiskConfig(cfg *strategyconfig.Config) risk.Config {
	return risk.Config{
		MaxPositions:       cfg.Selection.MaxPositions,
		MaxPositionRatio:   cfg.Risk.MaxPositionRatio,
		TotalPositionRatio: cfg.Risk.TotalPositionRatio,
		StopLossRate:       cfg.Risk.StopLossRate,
		StopProfitRate:     cfg.Risk.StopProfitRate,
		TrailingStopRate:   cfg.Risk.TrailingStopRate,
	}
}

// ExecutionConfig maps the execution section onto execution.Config
func ExecutionConfig(cfg *strategyconfig.Config) execution.Config {
	return execution.Config{
		LotSize:      cfg.Execution.LotSize,
		CashReserve:  cfg.Execution.CashReserve,
		LimitMarkup:  cfg.Execution.LimitMarkup,
		VWAPSessions: cfg.Execution.VWAPSessions,
		TickSize:     cfg.Execution.TickSize,
	}
}

// OrchestratorConfig maps the selection and schedule sections onto Config
func OrchestratorConfig(cfg *strategyconfig.Config) Config {
	return Config{
		StrategyID:         cfg.Meta.StrategyID,
		PoolSize:           cfg.Selection.PoolSize,
		MaxPositions:       cfg.Selection.MaxPositions,
		TotalPositionRatio: cfg.Risk.TotalPositionRatio,
		TradingStart:       cfg.Schedule.TradingStart,
		TradingEnd:         cfg.Schedule.TradingEnd,
	}
}
