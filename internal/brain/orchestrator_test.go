package brain

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wangshuile/jb-quant/internal/contracts"
	"github.com/wangshuile/jb-quant/internal/execution"
	"github.com/wangshuile/jb-quant/internal/risk"
	"github.com/wangshuile/jb-quant/internal/s0_data"
	"github.com/wangshuile/jb-quant/internal/s1_universe"
	"github.com/wangshuile/jb-quant/internal/strategyconfig"
	"github.com/wangshuile/jb-quant/pkg/metrics"
)

var cst = time.FixedZone("CST", 8*3600)

// ============================================================================
// Fakes
// ============================================================================

type fakeScoring struct {
	selected []contracts.InstrumentInfo
	calls    int
}

func (f *fakeScoring) Name() string { return "fake" }

func (f *fakeScoring) Select(ctx context.Context, poolSize int) ([]contracts.InstrumentInfo, error) {
	f.calls++
	return append([]contracts.InstrumentInfo(nil), f.selected...), nil
}

type fakeTiming struct {
	signals map[string]contracts.Signal
}

func (f *fakeTiming) Name() string { return "fake" }

func (f *fakeTiming) Signal(ctx context.Context, symbol string) contracts.Signal {
	if s, ok := f.signals[symbol]; ok {
		return s
	}
	return contracts.NeutralSignal
}

type buyCall struct {
	symbol string
	weight float64
}

type fakeExecutor struct {
	mu    sync.Mutex
	buys  []buyCall
	sells []string
}

func (f *fakeExecutor) Name() string { return "fake" }

func (f *fakeExecutor) Buy(ctx context.Context, symbol string, weight float64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buys = append(f.buys, buyCall{symbol, weight})
	return true
}

func (f *fakeExecutor) Sell(ctx context.Context, symbol string, reason string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sells = append(f.sells, symbol)
	return true
}

func (f *fakeExecutor) Reduce(ctx context.Context, symbol string, weight float64) (bool, error) {
	return false, execution.ErrReduceNotSupported
}

type recordingSink struct {
	snapshots  []contracts.DailySnapshot
	trades     []contracts.TradeRecord
	selections map[string][]contracts.InstrumentInfo
}

func (s *recordingSink) RecordSnapshot(ctx context.Context, snap contracts.DailySnapshot) error {
	s.snapshots = append(s.snapshots, snap)
	return nil
}

func (s *recordingSink) RecordTrade(ctx context.Context, trade contracts.TradeRecord) error {
	s.trades = append(s.trades, trade)
	return nil
}

func (s *recordingSink) RecordSelection(ctx context.Context, date string, selected []contracts.InstrumentInfo) error {
	if s.selections == nil {
		s.selections = make(map[string][]contracts.InstrumentInfo)
	}
	s.selections[date] = selected
	return nil
}

type fixture struct {
	market  *contracts.MockMarket
	scoring *fakeScoring
	timing  *fakeTiming
	exec    *fakeExecutor
	risk    *risk.BaseManager
	orch    *Orchestrator
}

func newFixture(t *testing.T, selected []contracts.InstrumentInfo, cfg Config) *fixture {
	t.Helper()

	market := contracts.NewMockMarket(time.Date(2024, 3, 4, 9, 30, 0, 0, cst), 1_000_000)
	f := &fixture{
		market:  market,
		scoring: &fakeScoring{selected: selected},
		timing:  &fakeTiming{signals: map[string]contracts.Signal{}},
		exec:    &fakeExecutor{},
		risk:    risk.NewBaseManager(risk.DefaultConfig(), market, market, nil),
	}

	tc, err := NewTradingContext(Components{
		Clock:    market,
		Account:  market,
		Data:     s0_data.NewManager(market, market, nil, nil),
		Universe: s1_universe.NewFixedProvider(nil, nil),
		Scoring:  f.scoring,
		Timing:   f.timing,
		Risk:     f.risk,
		Executor: f.exec,
	})
	require.NoError(t, err)

	f.orch = NewOrchestrator(tc, cfg, nil, nil)
	require.NoError(t, f.orch.Init(context.Background()))
	return f
}

func defaultConfig() Config {
	return Config{
		StrategyID:         "test",
		PoolSize:           10,
		MaxPositions:       3,
		TotalPositionRatio: 1.0,
		TradingStart:       "09:30:00",
		TradingEnd:         "14:55:00",
	}
}

// ============================================================================
// Tests
// ============================================================================

func TestNewTradingContext_RequiresEverySlot(t *testing.T) {
	market := contracts.NewMockMarket(time.Now(), 0)
	full := Components{
		Clock:    market,
		Account:  market,
		Data:     s0_data.NewManager(market, market, nil, nil),
		Universe: s1_universe.NewFixedProvider(nil, nil),
		Scoring:  &fakeScoring{},
		Timing:   &fakeTiming{},
		Risk:     risk.NewBaseManager(risk.DefaultConfig(), market, market, nil),
		Executor: &fakeExecutor{},
	}

	_, err := NewTradingContext(full)
	require.NoError(t, err)

	tests := []struct {
		slot  string
		strip func(c *Components)
	}{
		{"clock", func(c *Components) { c.Clock = nil }},
		{"account", func(c *Components) { c.Account = nil }},
		{"data", func(c *Components) { c.Data = nil }},
		{"universe", func(c *Components) { c.Universe = nil }},
		{"scoring", func(c *Components) { c.Scoring = nil }},
		{"timing", func(c *Components) { c.Timing = nil }},
		{"risk", func(c *Components) { c.Risk = nil }},
		{"executor", func(c *Components) { c.Executor = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.slot, func(t *testing.T) {
			c := full
			tt.strip(&c)
			_, err := NewTradingContext(c)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.slot)
		})
	}
}

func TestOrchestrator_PhasesBeforeInit(t *testing.T) {
	f := newFixture(t, nil, defaultConfig())
	orch := NewOrchestrator(f.orch.Context(), defaultConfig(), nil, nil)
	ctx := context.Background()

	assert.Equal(t, PhaseUninitialized, orch.Phase())
	assert.ErrorIs(t, orch.OnMarketOpen(ctx), ErrNotInitialized)
	assert.ErrorIs(t, orch.OnMidday(ctx), ErrNotInitialized)
	assert.ErrorIs(t, orch.OnAfternoon(ctx), ErrNotInitialized)
	assert.ErrorIs(t, orch.OnMarketClose(ctx), ErrNotInitialized)

	require.NoError(t, orch.Init(ctx))
	assert.Equal(t, PhaseInitialized, orch.Phase())
}

func TestOrchestrator_RunPhase(t *testing.T) {
	f := newFixture(t, []contracts.InstrumentInfo{{Symbol: "A", Score: 0.8}}, defaultConfig())
	ctx := context.Background()

	for _, name := range []string{"market_open", "midday", "afternoon", "market_close"} {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, f.orch.RunPhase(ctx, name))
			assert.Equal(t, PhaseIdle, f.orch.Phase())
		})
	}

	assert.Error(t, f.orch.RunPhase(ctx, "lunch"))
}

func TestOrchestrator_HaltedAfterOnError(t *testing.T) {
	f := newFixture(t, []contracts.InstrumentInfo{{Symbol: "A", Score: 0.8}}, defaultConfig())
	ctx := context.Background()

	require.NoError(t, f.orch.OnMarketOpen(ctx))
	assert.Equal(t, PhaseIdle, f.orch.Phase())

	f.orch.OnError(1001, "broker disconnected")

	assert.True(t, f.orch.Halted())
	assert.Equal(t, PhaseHalted, f.orch.Phase())
	assert.ErrorIs(t, f.orch.OnMarketOpen(ctx), ErrHalted)
	assert.ErrorIs(t, f.orch.OnMidday(ctx), ErrHalted)
	assert.ErrorIs(t, f.orch.OnAfternoon(ctx), ErrHalted)
	assert.ErrorIs(t, f.orch.OnMarketClose(ctx), ErrHalted)
	assert.ErrorIs(t, f.orch.Init(ctx), ErrHalted)
	assert.Equal(t, 1, f.scoring.calls)
	assert.Empty(t, f.exec.buys)
}

func TestOrchestrator_MarketOpen(t *testing.T) {
	selected := []contracts.InstrumentInfo{{Symbol: "A", Score: 0.9}, {Symbol: "B", Score: 0.6}}
	f := newFixture(t, selected, defaultConfig())
	sink := &recordingSink{}
	f.orch.AddSink(sink)

	f.market.SetPosition(contracts.Position{Symbol: "H", Volume: 1000, Price: 10, VWAP: 10,
		UpdatedAt: time.Date(2024, 3, 1, 10, 0, 0, 0, cst)})

	require.NoError(t, f.orch.OnMarketOpen(context.Background()))

	tc := f.orch.Context()
	assert.Equal(t, selected, tc.Selected())
	assert.Equal(t, "2024-03-04", tc.LastSelectionDate())
	assert.Equal(t, selected, sink.selections["2024-03-04"])

	// 재조정 결과
	rec, ok := f.risk.Position("H")
	require.True(t, ok)
	assert.Equal(t, 10.0, rec.AvgCost)
	assert.True(t, f.risk.CanSellToday("H"))
}

func TestOrchestrator_ZeroScoresNormalize(t *testing.T) {
	selected := []contracts.InstrumentInfo{
		{Symbol: "A", Score: 0},
		{Symbol: "B", Score: 0},
		{Symbol: "C", Score: 0},
	}
	f := newFixture(t, selected, defaultConfig())
	f.market.SetNow(time.Date(2024, 3, 4, 11, 0, 0, 0, cst))
	ctx := context.Background()

	require.NoError(t, f.orch.OnMarketOpen(ctx))
	require.NoError(t, f.orch.OnMidday(ctx))

	require.Len(t, f.exec.buys, 3)
	for _, b := range f.exec.buys {
		assert.False(t, math.IsNaN(b.weight), b.symbol)
		assert.Equal(t, 0.0, b.weight, b.symbol)
	}
}

func TestOrchestrator_ExecuteSelection(t *testing.T) {
	selected := []contracts.InstrumentInfo{
		{Symbol: "A", Score: 0.4},
		{Symbol: "B", Score: 0.3},
		{Symbol: "C", Score: 0.2},
		{Symbol: "D", Score: 0.1},
	}
	cfg := defaultConfig()
	cfg.MaxPositions = 3
	cfg.TotalPositionRatio = 0.9

	f := newFixture(t, selected, cfg)
	f.market.SetNow(time.Date(2024, 3, 4, 11, 0, 0, 0, cst))
	ctx := context.Background()

	// A 보유 중, B 는 타이밍 매도 신호
	f.market.SetPosition(contracts.Position{Symbol: "A", Volume: 100, Price: 10, VWAP: 10,
		UpdatedAt: time.Date(2024, 3, 1, 10, 0, 0, 0, cst)})
	f.timing.signals["B"] = contracts.Signal{Buy: true, Sell: true}

	require.NoError(t, f.orch.OnMarketOpen(ctx))
	require.NoError(t, f.orch.OnMidday(ctx))

	// 상위 3개(A,B,C) 중 C 만 매수, D 는 후보 밖
	require.Len(t, f.exec.buys, 1)
	assert.Equal(t, "C", f.exec.buys[0].symbol)
	assert.InDelta(t, 0.2/1.0*0.9, f.exec.buys[0].weight, 1e-12)

	buys, sells, reduces := f.orch.Context().DailyIntents()
	assert.Equal(t, []string{"C"}, buys)
	assert.Empty(t, sells)
	assert.Empty(t, reduces)
}

func TestOrchestrator_ReduceSignalIsRecorded(t *testing.T) {
	f := newFixture(t, []contracts.InstrumentInfo{{Symbol: "A", Score: 0.5}}, defaultConfig())
	f.market.SetNow(time.Date(2024, 3, 4, 11, 0, 0, 0, cst))
	f.timing.signals["A"] = contracts.Signal{Reduce: true}
	ctx := context.Background()

	require.NoError(t, f.orch.OnMarketOpen(ctx))
	require.NoError(t, f.orch.OnMidday(ctx))

	_, _, reduces := f.orch.Context().DailyIntents()
	assert.Equal(t, []string{"A"}, reduces)
	assert.Empty(t, f.exec.buys)
}

func TestOrchestrator_WindowSkip(t *testing.T) {
	tests := []struct {
		name  string
		clock time.Time
		buys  int
	}{
		{"before window", time.Date(2024, 3, 4, 9, 0, 0, 0, cst), 0},
		{"after window", time.Date(2024, 3, 4, 15, 0, 0, 0, cst), 0},
		{"inside window", time.Date(2024, 3, 4, 13, 30, 0, 0, cst), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, []contracts.InstrumentInfo{{Symbol: "A", Score: 0.5}}, defaultConfig())
			ctx := context.Background()
			require.NoError(t, f.orch.OnMarketOpen(ctx))

			f.market.SetNow(tt.clock)
			require.NoError(t, f.orch.OnMidday(ctx))
			require.NoError(t, f.orch.OnAfternoon(ctx))

			assert.Len(t, f.exec.buys, tt.buys*2)
		})
	}
}

func TestOrchestrator_ExitRecordsTrade(t *testing.T) {
	f := newFixture(t, nil, defaultConfig())
	sink := &recordingSink{}
	f.orch.AddSink(sink)
	ctx := context.Background()

	f.market.SetPosition(contracts.Position{Symbol: "W", Volume: 1000, Price: 100, VWAP: 100,
		UpdatedAt: time.Date(2024, 3, 1, 10, 0, 0, 0, cst)})
	f.market.SetPosition(contracts.Position{Symbol: "L", Volume: 1000, Price: 100, VWAP: 100,
		UpdatedAt: time.Date(2024, 3, 1, 10, 0, 0, 0, cst)})
	f.market.SetPosition(contracts.Position{Symbol: "K", Volume: 1000, Price: 100, VWAP: 100,
		UpdatedAt: time.Date(2024, 3, 1, 10, 0, 0, 0, cst)})
	require.NoError(t, f.orch.OnMarketOpen(ctx))

	f.market.SetNow(time.Date(2024, 3, 4, 14, 55, 0, 0, cst))
	f.market.SetQuote("W", 120) // +20% → stop-profit
	f.market.SetQuote("L", 90)  // -10% → stop-loss
	f.market.SetQuote("K", 103) // 유지

	require.NoError(t, f.orch.OnMarketClose(ctx))

	assert.ElementsMatch(t, []string{"W", "L"}, f.exec.sells)

	perf := f.orch.Performance()
	assert.Equal(t, 2, perf.TradeCount)
	assert.Equal(t, 1, perf.WinCount)
	assert.InDelta(t, 0.5, perf.WinRate, 1e-12)
	assert.InDelta(t, 0.1, perf.TotalReturn, 1e-12)
	assert.InDelta(t, 0.05, perf.AvgReturn, 1e-12)

	require.Len(t, sink.trades, 2)
	reasons := map[string]string{}
	for _, tr := range sink.trades {
		reasons[tr.Symbol] = tr.Reason
		assert.NotEmpty(t, tr.ID)
		assert.Equal(t, 100.0, tr.EntryPrice)
	}
	assert.Equal(t, string(risk.ExitStopProfit), reasons["W"])
	assert.Equal(t, string(risk.ExitStopLoss), reasons["L"])

	require.Len(t, sink.snapshots, 1)
	snap := sink.snapshots[0]
	assert.Equal(t, "test", snap.StrategyID)
	assert.Equal(t, "2024-03-04", snap.Date)
	assert.Equal(t, 3, snap.Positions) // fake executor 는 체결하지 않음
	assert.Equal(t, 2, snap.Performance.TradeCount)
}

func TestOrchestrator_OnOrderStatusReconciles(t *testing.T) {
	f := newFixture(t, nil, defaultConfig())

	f.market.SetPosition(contracts.Position{Symbol: "A", Volume: 500, Price: 10, VWAP: 9.5,
		UpdatedAt: f.market.Now()})

	err := f.orch.OnOrderStatus(context.Background(), contracts.OrderEvent{
		OrderID: "1", Symbol: "A", Status: contracts.StatusFilled, FilledVolume: 500,
	})
	require.NoError(t, err)

	rec, ok := f.risk.Position("A")
	require.True(t, ok)
	assert.Equal(t, 9.5, rec.AvgCost)
	assert.False(t, f.risk.CanSellToday("A"))
}

func TestOrchestrator_OnOrderStatusAccountFailure(t *testing.T) {
	f := newFixture(t, nil, defaultConfig())
	f.market.AccountErr = assert.AnError

	err := f.orch.OnOrderStatus(context.Background(), contracts.OrderEvent{Status: contracts.StatusRejected})
	assert.Error(t, err)
}

// TestBuild_EndToEnd runs two days over real policies and a filling mock market
func TestBuild_EndToEnd(t *testing.T) {
	cfg, err := strategyconfig.Default()
	require.NoError(t, err)
	cfg.Meta.StrategyID = "e2e"
	cfg.Selection.PoolSize = 5
	cfg.Timing.Enabled = false

	symbols := s1_universe.DefaultFixedSymbols
	market := contracts.NewMockMarket(time.Date(2024, 3, 4, 9, 30, 0, 0, cst), 1_000_000)
	market.FillOnSubmit = true
	for i, sym := range symbols {
		g := 0.001 * float64(i+1)
		closes := make([]float64, 30)
		for j := range closes {
			closes[j] = 10 * math.Pow(1+g, float64(j))
		}
		market.SetCloses(sym, closes)
		market.SetQuote(sym, 10)
	}

	rec := metrics.New()
	orch, err := Build(cfg, Deps{Market: market, Clock: market, Metrics: rec})
	require.NoError(t, err)

	ctx := context.Background()
	market.OnSubmit = func(req contracts.OrderRequest) {
		_ = orch.OnOrderStatus(ctx, contracts.OrderEvent{
			Symbol: req.Symbol, Side: req.Side, Status: contracts.StatusFilled, Volume: req.Volume,
		})
	}
	sink := &recordingSink{}
	orch.AddSink(sink)

	require.NoError(t, orch.Init(ctx))

	// Day 1
	require.NoError(t, orch.OnMarketOpen(ctx))
	selected := orch.Context().Selected()
	require.Len(t, selected, 5)
	// 상승률이 가장 큰 종목이 1위
	assert.Equal(t, symbols[4], selected[0].Symbol)

	market.SetNow(time.Date(2024, 3, 4, 11, 0, 0, 0, cst))
	require.NoError(t, orch.OnMidday(ctx))

	orders := market.Orders()
	require.Len(t, orders, 3)
	bought := map[string]bool{}
	for _, o := range orders {
		assert.Equal(t, contracts.OrderSideBuy, o.Side)
		assert.NotEmpty(t, o.ClientOrderID)
		bought[o.Symbol] = true
	}
	for _, s := range selected[:3] {
		assert.True(t, bought[s.Symbol], s.Symbol)
	}

	market.SetNow(time.Date(2024, 3, 4, 14, 55, 0, 0, cst))
	require.NoError(t, orch.OnMarketClose(ctx))
	require.Len(t, sink.snapshots, 1)
	assert.Equal(t, 3, sink.snapshots[0].Positions)
	assert.InDelta(t, 1_000_000, sink.snapshots[0].TotalAssets, 1e-6)

	// Day 2: 1위 종목 급락 → 손절
	loser := selected[0].Symbol
	market.SetNow(time.Date(2024, 3, 5, 9, 30, 0, 0, cst))
	require.NoError(t, orch.OnMarketOpen(ctx))
	market.SetQuote(loser, 7)

	market.SetNow(time.Date(2024, 3, 5, 13, 30, 0, 0, cst))
	require.NoError(t, orch.OnAfternoon(ctx))

	perf := orch.Performance()
	assert.Equal(t, 1, perf.TradeCount)
	assert.Equal(t, 0, perf.WinCount)
	assert.InDelta(t, -0.3, perf.TotalReturn, 1e-9)
}
