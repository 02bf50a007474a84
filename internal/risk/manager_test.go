package risk

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wangshuile/jb-quant/internal/contracts"
)

var (
	today     = time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	yesterday = today.AddDate(0, 0, -1)
)

func newManager(t *testing.T, kind string, cfg Config, cash float64) (Manager, *contracts.MockMarket) {
	t.Helper()
	m := contracts.NewMockMarket(today, cash)
	mgr, err := New(kind, cfg, m, m, nil)
	require.NoError(t, err)
	return mgr, m
}

func TestNew_Variants(t *testing.T) {
	m := contracts.NewMockMarket(today, 0)
	for _, kind := range []string{TypeBase, TypeConservative, TypeAggressive} {
		mgr, err := New(kind, DefaultConfig(), m, m, nil)
		require.NoError(t, err)
		assert.Equal(t, kind, mgr.Name())
	}
	_, err := New("yolo", DefaultConfig(), m, m, nil)
	assert.Error(t, err)
}

func TestCheckPositionLimits_SingleName(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		kind    string
		planned float64
		want    bool
	}{
		{"base rejects above 34%", TypeBase, 250000, false},
		{"base accepts below 34%", TypeBase, 200000, true},
		{"conservative rejects above 15%", TypeConservative, 200000, false},
		{"conservative accepts below 15%", TypeConservative, 100000, true},
		{"aggressive never loosens base", TypeAggressive, 250000, false},
		{"aggressive accepts within both", TypeAggressive, 200000, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mgr, _ := newManager(t, tt.kind, DefaultConfig(), 700000)
			assert.Equal(t, tt.want, mgr.CheckPositionLimits(ctx, "SHSE.600519", tt.planned))
		})
	}
}

func TestCheckPositionLimits_TotalAndCount(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.TotalPositionRatio = 0.8

	mgr, m := newManager(t, TypeBase, cfg, 400000)
	m.SetPosition(contracts.Position{Symbol: "A", Volume: 1000, Price: 100, VWAP: 100, UpdatedAt: yesterday})
	m.SetPosition(contracts.Position{Symbol: "B", Volume: 1000, Price: 100, VWAP: 100, UpdatedAt: yesterday})
	m.SetPosition(contracts.Position{Symbol: "C", Volume: 1000, Price: 100, VWAP: 100, UpdatedAt: yesterday})
	// total = 700000, exposure = 300000

	assert.False(t, mgr.CheckPositionLimits(ctx, "D", 10000), "max positions reached for a new name")
	assert.True(t, mgr.CheckPositionLimits(ctx, "A", 100000), "already held names are not count-limited")
	assert.False(t, mgr.CheckPositionLimits(ctx, "A", 150000), "single cap includes current exposure")

	cfg.MaxPositions = 10
	cfg.MaxPositionRatio = 1.0
	mgr, m2 := newManager(t, TypeBase, cfg, 400000)
	for _, sym := range []string{"A", "B", "C"} {
		m2.SetPosition(contracts.Position{Symbol: sym, Volume: 1000, Price: 100, VWAP: 100})
	}
	assert.True(t, mgr.CheckPositionLimits(ctx, "D", 230000))
	assert.False(t, mgr.CheckPositionLimits(ctx, "D", 270000), "total cap 0.8 × 700000 = 560000")
}

func TestCheckPositionLimits_Degenerate(t *testing.T) {
	ctx := context.Background()

	mgr, _ := newManager(t, TypeBase, DefaultConfig(), 0)
	assert.False(t, mgr.CheckPositionLimits(ctx, "A", 1))

	mgr, m := newManager(t, TypeBase, DefaultConfig(), 1_000_000)
	m.AccountErr = errors.New("broker offline")
	assert.False(t, mgr.CheckPositionLimits(ctx, "A", 1))
}

func TestUpdatePositionAll(t *testing.T) {
	ctx := context.Background()
	mgr, m := newManager(t, TypeBase, DefaultConfig(), 100000)

	m.SetPosition(contracts.Position{Symbol: "OLD", Volume: 500, Price: 12, VWAP: 10, UpdatedAt: yesterday})
	m.SetPosition(contracts.Position{Symbol: "NEW", Volume: 200, Price: 20, VWAP: 19.5, UpdatedAt: today.Add(-time.Hour)})
	require.NoError(t, mgr.UpdatePositionAll(ctx))

	rec, ok := mgr.Position("OLD")
	require.True(t, ok)
	assert.Equal(t, 10.0, rec.AvgCost)
	assert.Equal(t, 10.0, rec.HighestPrice)
	assert.Equal(t, "2024-03-14", rec.EntryDate)
	assert.Equal(t, int64(500), rec.Volume)

	assert.True(t, mgr.CanSellToday("OLD"))
	assert.False(t, mgr.CanSellToday("NEW"), "bought today")
	assert.True(t, mgr.CanSellToday("UNKNOWN"), "no record is permissive")

	// 전량 매도 → 레코드 삭제
	m.SetPosition(contracts.Position{Symbol: "OLD", Volume: 0})
	require.NoError(t, mgr.UpdatePositionAll(ctx))
	_, ok = mgr.Position("OLD")
	assert.False(t, ok)
	assert.Len(t, mgr.Positions(), 1)

	m.AccountErr = errors.New("timeout")
	assert.Error(t, mgr.UpdatePositionAll(ctx))
	assert.Len(t, mgr.Positions(), 1, "records untouched on failure")
}

func TestCheckStopLossProfit(t *testing.T) {
	tests := []struct {
		name       string
		price      float64
		wantExit   bool
		wantReason ExitReason
	}{
		{"stop-loss", 91, true, ExitStopLoss},
		{"stop-profit", 116, true, ExitStopProfit},
		{"inside band", 103, false, ExitNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mgr, m := newManager(t, TypeBase, DefaultConfig(), 100000)
			m.SetPosition(contracts.Position{Symbol: "A", Volume: 100, Price: 100, VWAP: 100, UpdatedAt: yesterday})
			require.NoError(t, mgr.UpdatePositionAll(context.Background()))

			exit, reason := mgr.CheckStopLossProfit("A", tt.price)
			assert.Equal(t, tt.wantExit, exit)
			assert.Equal(t, tt.wantReason, reason)
		})
	}

	mgr, _ := newManager(t, TypeBase, DefaultConfig(), 100000)
	exit, reason := mgr.CheckStopLossProfit("NONE", 50)
	assert.False(t, exit)
	assert.Equal(t, ExitNone, reason)
}

func TestCheckStopLossProfit_TrailingPaths(t *testing.T) {
	// stop-profit 을 높여 130 까지 오르는 경로에서 익절이 먼저 발동하지 않게 함
	cfg := DefaultConfig()
	cfg.StopProfitRate = 0.5

	tests := []struct {
		name       string
		path       []float64
		wantExit   bool
		wantReason ExitReason
	}{
		{"130 then 124 holds", []float64{100, 130, 124}, false, ExitNone},
		{"130 then 122 trails out", []float64{100, 130, 122}, true, ExitTrailingStop},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mgr, m := newManager(t, TypeBase, cfg, 100000)
			m.SetPosition(contracts.Position{Symbol: "A", Volume: 100, Price: 100, VWAP: 100, UpdatedAt: yesterday})
			require.NoError(t, mgr.UpdatePositionAll(context.Background()))

			var (
				exit   bool
				reason ExitReason
			)
			for _, p := range tt.path {
				exit, reason = mgr.CheckStopLossProfit("A", p)
			}
			assert.Equal(t, tt.wantExit, exit)
			assert.Equal(t, tt.wantReason, reason)

			rec, _ := mgr.Position("A")
			assert.Equal(t, 130.0, rec.HighestPrice)
		})
	}
}

func TestHighestPriceSurvivesReconciliation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StopProfitRate = 0.5
	ctx := context.Background()

	mgr, m := newManager(t, TypeBase, cfg, 100000)
	m.SetPosition(contracts.Position{Symbol: "A", Volume: 100, Price: 100, VWAP: 100, UpdatedAt: yesterday})
	require.NoError(t, mgr.UpdatePositionAll(ctx))

	mgr.CheckStopLossProfit("A", 130)
	require.NoError(t, mgr.UpdatePositionAll(ctx))

	exit, reason := mgr.CheckStopLossProfit("A", 122)
	assert.True(t, exit)
	assert.Equal(t, ExitTrailingStop, reason)
}

func TestT1Restriction(t *testing.T) {
	ctx := context.Background()
	mgr, m := newManager(t, TypeBase, DefaultConfig(), 100000)

	m.SetPosition(contracts.Position{Symbol: "A", Volume: 100, Price: 80, VWAP: 100, UpdatedAt: today})
	require.NoError(t, mgr.UpdatePositionAll(ctx))

	exit, reason := mgr.CheckStopLossProfit("A", 80)
	assert.False(t, exit, "stop-loss blocked by T+1")
	assert.Equal(t, ExitT1Restricted, reason)

	// 같은 날 reset 해도 entry date 가 오늘이면 매도 불가
	mgr.ResetDailyFlags()
	assert.False(t, mgr.CanSellToday("A"))

	// 다음 거래일
	m.SetNow(today.AddDate(0, 0, 1))
	mgr.ResetDailyFlags()
	assert.True(t, mgr.CanSellToday("A"))

	exit, reason = mgr.CheckStopLossProfit("A", 80)
	assert.True(t, exit)
	assert.Equal(t, ExitStopLoss, reason)
}
