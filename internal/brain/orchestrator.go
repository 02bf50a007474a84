package brain

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/wangshuile/jb-quant/internal/audit"
	"github.com/wangshuile/jb-quant/internal/contracts"
	"github.com/wangshuile/jb-quant/internal/execution"
	"github.com/wangshuile/jb-quant/pkg/logger"
	"github.com/wangshuile/jb-quant/pkg/metrics"
)

var (
	// ErrHalted is returned by every phase after a fatal error callback
	ErrHalted = errors.New("orchestrator halted")
	// ErrNotInitialized is returned by phases invoked before Init
	ErrNotInitialized = errors.New("orchestrator not initialized")
)

// Phase is the daily state of the orchestrator
type Phase string

const (
	PhaseUninitialized Phase = "uninitialized"
	PhaseInitialized   Phase = "initialized"
	PhaseMarketOpen    Phase = "market_open"
	PhaseMidday        Phase = "midday"
	PhaseAfternoon     Phase = "afternoon"
	PhaseMarketClose   Phase = "market_close"
	PhaseIdle          Phase = "idle"
	PhaseHalted        Phase = "halted"
)

// SnapshotSink receives the market-close snapshot
type SnapshotSink interface {
	RecordSnapshot(ctx context.Context, snap contracts.DailySnapshot) error
}

// TradeSink is implemented by sinks that also want completed trades
type TradeSink interface {
	RecordTrade(ctx context.Context, trade contracts.TradeRecord) error
}

// SelectionSink is implemented by sinks that also want today's selection
type SelectionSink interface {
	RecordSelection(ctx context.Context, date string, selected []contracts.InstrumentInfo) error
}

// Config holds the orchestrator's own parameters
type Config struct {
	StrategyID         string
	PoolSize           int
	MaxPositions       int
	TotalPositionRatio float64
	TradingStart       string // HH:MM:SS, 비어 있으면 제한 없음
	TradingEnd         string
}

// Orchestrator drives the daily phases over a TradingContext
// ⭐ SSOT: 일중 단계 조율은 여기서만
type Orchestrator struct {
	tc      *TradingContext
	config  Config
	sinks   []SnapshotSink
	metrics *metrics.Recorder
	logger  *logger.Logger

	// runMu serializes phases. OnOrderStatus never takes it because fills
	// may be delivered while a phase is submitting orders.
	runMu   sync.Mutex
	stateMu sync.Mutex
	phase   Phase
	halted  atomic.Bool
}

// NewOrchestrator creates an orchestrator in PhaseUninitialized
func NewOrchestrator(tc *TradingContext, config Config, rec *metrics.Recorder, log *logger.Logger) *Orchestrator {
	if log == nil {
		log = logger.Nop()
	}
	return &Orchestrator{
		tc:      tc,
		config:  config,
		metrics: rec,
		logger:  log.Component("brain"),
		phase:   PhaseUninitialized,
	}
}

// AddSink registers a snapshot sink. Sinks that implement TradeSink or
// SelectionSink also receive trades and selections.
func (o *Orchestrator) AddSink(sink SnapshotSink) {
	o.runMu.Lock()
	defer o.runMu.Unlock()
	o.sinks = append(o.sinks, sink)
}

// Context returns the trading context
func (o *Orchestrator) Context() *TradingContext {
	return o.tc
}

// Phase returns the current phase
func (o *Orchestrator) Phase() Phase {
	o.stateMu.Lock()
	defer o.stateMu.Unlock()
	return o.phase
}

func (o *Orchestrator) setPhase(p Phase) {
	o.stateMu.Lock()
	defer o.stateMu.Unlock()
	if o.phase == PhaseHalted {
		return
	}
	o.phase = p
}

// Halted reports whether OnError was called
func (o *Orchestrator) Halted() bool {
	return o.halted.Load()
}

// Performance returns the cumulative trade statistics
func (o *Orchestrator) Performance() contracts.Performance {
	return o.tc.Performance()
}

// ============================================================================
// Lifecycle
// ============================================================================

// Init moves Uninitialized → Initialized
func (o *Orchestrator) Init(ctx context.Context) error {
	o.runMu.Lock()
	defer o.runMu.Unlock()

	if o.Halted() {
		return ErrHalted
	}
	if o.Phase() != PhaseUninitialized {
		return nil
	}

	o.setPhase(PhaseInitialized)
	o.logger.WithFields(map[string]interface{}{
		"strategy_id":   o.config.StrategyID,
		"universe":      o.tc.Universe.Name(),
		"scoring":       o.tc.Scoring.Name(),
		"timing":        o.tc.Timing.Name(),
		"risk":          o.tc.Risk.Name(),
		"executor":      o.tc.Executor.Name(),
		"pool_size":     o.config.PoolSize,
		"max_positions": o.config.MaxPositions,
	}).Info("Strategy initialized")
	return nil
}

// Host error codes passed to OnError
const (
	CodeBarRefresh = 1001 // 일봉 갱신 연속 실패
	CodeServer     = 1002 // HTTP 서버 비정상 종료
)

// OnError halts the orchestrator. Every later phase returns ErrHalted.
// The host calls it on failures the engine cannot recover from.
func (o *Orchestrator) OnError(code int, info string) {
	o.halted.Store(true)
	o.stateMu.Lock()
	o.phase = PhaseHalted
	o.stateMu.Unlock()

	o.metrics.RecordError("fatal")
	o.logger.WithFields(map[string]interface{}{
		"code": code,
		"info": info,
	}).Error("Fatal error, manual restart required")
}

// run executes one phase under runMu with state checks and metrics
func (o *Orchestrator) run(ctx context.Context, phase Phase, fn func(ctx context.Context)) error {
	o.runMu.Lock()
	defer o.runMu.Unlock()

	if o.Halted() {
		return ErrHalted
	}
	if o.Phase() == PhaseUninitialized {
		return ErrNotInitialized
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	start := time.Now()
	o.setPhase(phase)
	fn(ctx)
	o.setPhase(PhaseIdle)
	elapsed := time.Since(start)
	o.metrics.RecordPhase(string(phase), elapsed.Seconds())
	o.logger.Phase(string(phase)).At(o.tc.Clock.Now()).
		WithField("elapsed_ms", elapsed.Milliseconds()).
		Debug("Phase completed")

	if o.Halted() {
		return ErrHalted
	}
	return nil
}

// ============================================================================
// Phases
// ============================================================================

// OnMarketOpen refreshes state and selects today's candidates
func (o *Orchestrator) OnMarketOpen(ctx context.Context) error {
	return o.run(ctx, PhaseMarketOpen, func(ctx context.Context) {
		o.logger.Info("Running market open")

		o.tc.Data.ClearCache()
		o.tc.Risk.ResetDailyFlags()
		if err := o.tc.Risk.UpdatePositionAll(ctx); err != nil {
			o.metrics.RecordError("reconcile")
			o.logger.WithError(err).Warn("Position reconciliation failed")
		}

		selected, err := o.tc.Scoring.Select(ctx, o.config.PoolSize)
		if err != nil {
			o.metrics.RecordError("selection")
			o.logger.WithError(err).Warn("Selection failed")
			selected = nil
		}

		date := o.tc.Clock.Now().Format("2006-01-02")
		o.tc.SetSelection(selected, date)
		o.tc.ResetDaily()
		o.metrics.SetSelected(len(selected))

		for _, s := range selected {
			o.logger.WithFields(map[string]interface{}{
				"symbol": s.Symbol,
				"score":  s.Score,
			}).Info("Selected")
		}

		for _, sink := range o.sinks {
			if ss, ok := sink.(SelectionSink); ok {
				if err := ss.RecordSelection(ctx, date, selected); err != nil {
					o.metrics.RecordError("sink")
					o.logger.WithError(err).Warn("Selection sink failed")
				}
			}
		}
	})
}

// OnMidday buys today's selection inside the trading window
func (o *Orchestrator) OnMidday(ctx context.Context) error {
	return o.run(ctx, PhaseMidday, func(ctx context.Context) {
		if !o.inWindow() {
			o.logger.Debug("Midday outside trading window, skipping")
			return
		}
		o.logger.Info("Running midday monitor")
		o.executeSelection(ctx)
	})
}

// OnAfternoon runs exit checks, then buys, inside the trading window
func (o *Orchestrator) OnAfternoon(ctx context.Context) error {
	return o.run(ctx, PhaseAfternoon, func(ctx context.Context) {
		if !o.inWindow() {
			o.logger.Debug("Afternoon outside trading window, skipping")
			return
		}
		o.logger.Info("Running afternoon monitor")
		o.checkHoldingsStop(ctx)
		o.executeSelection(ctx)
	})
}

// OnMarketClose runs exit checks and publishes the daily snapshot
func (o *Orchestrator) OnMarketClose(ctx context.Context) error {
	return o.run(ctx, PhaseMarketClose, func(ctx context.Context) {
		o.logger.Info("Running market close")
		o.checkHoldingsStop(ctx)
		o.publishSnapshot(ctx)
	})
}

// RunPhase dispatches a phase by name (market_open, midday, afternoon, market_close)
func (o *Orchestrator) RunPhase(ctx context.Context, name string) error {
	switch Phase(name) {
	case PhaseMarketOpen:
		return o.OnMarketOpen(ctx)
	case PhaseMidday:
		return o.OnMidday(ctx)
	case PhaseAfternoon:
		return o.OnAfternoon(ctx)
	case PhaseMarketClose:
		return o.OnMarketClose(ctx)
	default:
		return fmt.Errorf("unknown phase %q", name)
	}
}

// OnOrderStatus reconciles positions after an order update.
// Runs without runMu.
func (o *Orchestrator) OnOrderStatus(ctx context.Context, event contracts.OrderEvent) error {
	err := o.tc.Risk.UpdatePositionAll(ctx)

	log := o.logger.WithFields(map[string]interface{}{
		"order_id":      event.OrderID,
		"symbol":        event.Symbol,
		"side":          event.Side,
		"type":          event.Type,
		"effect":        event.Effect,
		"status":        event.Status,
		"price":         event.Price,
		"volume":        event.Volume,
		"filled_volume": event.FilledVolume,
		"filled_vwap":   event.FilledVWAP,
		"filled_amount": event.FilledAmount,
		"commission":    event.Commission,
		"reject_reason": event.RejectReason,
	})
	// 전량 체결만 info, 나머지는 warn
	if event.IsFilled() {
		log.Info("Order status")
	} else {
		log.Warn("Order status")
	}

	if err != nil {
		o.metrics.RecordError("reconcile")
		o.logger.WithError(err).Warn("Position reconciliation failed")
		return err
	}
	return nil
}

// ============================================================================
// Helpers
// ============================================================================

func (o *Orchestrator) inWindow() bool {
	if o.config.TradingStart == "" || o.config.TradingEnd == "" {
		return true
	}
	clock := o.tc.Clock.Now().Format("15:04:05")
	return o.config.TradingStart <= clock && clock <= o.config.TradingEnd
}

// checkHoldingsStop sells every held position whose exit rule fires
func (o *Orchestrator) checkHoldingsStop(ctx context.Context) {
	acct, err := o.tc.Account.Account(ctx)
	if err != nil {
		o.metrics.RecordError("account")
		o.logger.WithError(err).Error("Holdings check failed")
		return
	}

	for _, pos := range acct.Positions {
		if pos.Volume <= 0 {
			continue
		}

		q, err := o.tc.Data.Quote(ctx, pos.Symbol)
		if err != nil {
			continue
		}

		exit, reason := o.tc.Risk.CheckStopLossProfit(pos.Symbol, q.Price)
		if !exit {
			continue
		}

		// 매도 후 재조정으로 레코드가 사라지므로 먼저 보관
		record, held := o.tc.Risk.Position(pos.Symbol)
		if !o.tc.Executor.Sell(ctx, pos.Symbol, string(reason)) {
			continue
		}

		o.metrics.RecordExit(string(reason))
		o.tc.addSell(pos.Symbol)
		if held && record.AvgCost > 0 {
			o.recordTrade(ctx, record, q.Price, string(reason))
		}
	}
}

func (o *Orchestrator) recordTrade(ctx context.Context, record contracts.PositionRecord, price float64, reason string) {
	trade := audit.TradeFromPosition(uuid.NewString(), record, price, reason, o.tc.Clock.Now())
	o.tc.RecordTrade(trade.Returns)

	o.logger.WithFields(map[string]interface{}{
		"symbol":  trade.Symbol,
		"returns": trade.Returns,
		"reason":  reason,
	}).Info("Trade closed")

	for _, sink := range o.sinks {
		if ts, ok := sink.(TradeSink); ok {
			if err := ts.RecordTrade(ctx, trade); err != nil {
				o.metrics.RecordError("sink")
				o.logger.WithError(err).Warn("Trade sink failed")
			}
		}
	}
}

// executeSelection buys the top maxPositions candidates not already held
func (o *Orchestrator) executeSelection(ctx context.Context) {
	selected := o.tc.Selected()
	if len(selected) == 0 {
		o.logger.Info("No selection, skipping execution")
		return
	}

	totalScore := 0.0
	for _, s := range selected {
		totalScore += s.Score
	}
	if totalScore <= 0 {
		totalScore = 1
	}

	acct, err := o.tc.Account.Account(ctx)
	if err != nil {
		o.metrics.RecordError("account")
		o.logger.WithError(err).Error("Selection execution failed")
		return
	}

	limit := o.config.MaxPositions
	if limit > len(selected) || limit <= 0 {
		limit = len(selected)
	}

	for _, inst := range selected[:limit] {
		if pos, ok := acct.Position(inst.Symbol); ok && pos.Volume > 0 {
			continue
		}

		signal := o.tc.Timing.Signal(ctx, inst.Symbol)
		if signal.Reduce {
			o.tc.addReduce(inst.Symbol)
			if _, err := o.tc.Executor.Reduce(ctx, inst.Symbol, 0); errors.Is(err, execution.ErrReduceNotSupported) {
				o.logger.Symbol(inst.Symbol).Debug("Reduce signal ignored")
			}
		}
		if !signal.Actionable() {
			o.logger.Symbol(inst.Symbol).Debug("No buy signal")
			continue
		}

		weight := inst.Score / totalScore * o.config.TotalPositionRatio
		if o.tc.Executor.Buy(ctx, inst.Symbol, weight) {
			o.tc.addBuy(inst.Symbol)
			o.logger.WithFields(map[string]interface{}{
				"symbol": inst.Symbol,
				"weight": weight,
			}).Info("Buy placed")
		} else {
			o.logger.Symbol(inst.Symbol).Warn("Buy failed")
		}
	}
}

// publishSnapshot builds the daily snapshot and hands it to every sink
func (o *Orchestrator) publishSnapshot(ctx context.Context) {
	perf := o.tc.Performance()
	o.logger.WithFields(map[string]interface{}{
		"trade_count":  perf.TradeCount,
		"win_count":    perf.WinCount,
		"win_rate":     perf.WinRate,
		"total_return": perf.TotalReturn,
		"avg_return":   perf.AvgReturn,
	}).Info("Daily performance")

	acct, err := o.tc.Account.Account(ctx)
	if err != nil {
		o.metrics.RecordError("account")
		o.logger.WithError(err).Error("Snapshot skipped")
		return
	}

	now := o.tc.Clock.Now()
	snap := contracts.DailySnapshot{
		StrategyID:  o.config.StrategyID,
		Date:        now.Format("2006-01-02"),
		TotalAssets: acct.TotalAssets(),
		Cash:        acct.Cash,
		MarketValue: acct.MarketValue(),
		Positions:   acct.HeldCount(),
		Selected:    o.tc.Selected(),
		Performance: perf,
		CreatedAt:   now,
	}
	o.metrics.SetEquity(snap.TotalAssets)
	o.metrics.SetCacheEntries(o.tc.Data.CacheStats().Size)

	for _, sink := range o.sinks {
		if err := sink.RecordSnapshot(ctx, snap); err != nil {
			o.metrics.RecordError("sink")
			o.logger.WithError(err).Warn("Snapshot sink failed")
		}
	}
}
