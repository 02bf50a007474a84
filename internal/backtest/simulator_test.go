package backtest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wangshuile/jb-quant/internal/contracts"
	"github.com/wangshuile/jb-quant/internal/s0_data"
)

var cst = time.FixedZone("CST", 8*3600)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, cst)
}

func bar(t time.Time, open, close float64) contracts.Bar {
	hi, lo := open, close
	if close > open {
		hi, lo = close, open
	}
	return contracts.Bar{Time: t, Open: open, High: hi, Low: lo, Close: close, Volume: 1000, Amount: 1000 * close}
}

func testSet() *s0_data.BarSet {
	set := s0_data.NewBarSet()
	set.Bars["A"] = []contracts.Bar{
		bar(day(2024, 3, 4), 10, 11),
		bar(day(2024, 3, 5), 11, 12),
		bar(day(2024, 3, 6), 12, 13),
	}
	set.Bars["B"] = []contracts.Bar{
		bar(day(2024, 3, 4), 20, 19),
		bar(day(2024, 3, 6), 18, 17),
	}
	set.Instruments["A"] = contracts.Instrument{Symbol: "A", Name: "Alpha"}
	set.Constituents["IDX"] = []string{"A", "B"}
	return set
}

func newSim(cfg SimConfig) *Simulator {
	return NewSimulator(testSet(), cfg, cst, nil)
}

func TestSimulator_Quotes(t *testing.T) {
	sim := newSim(SimConfig{InitialCash: 1000})
	ctx := context.Background()

	tests := []struct {
		name  string
		now   time.Time
		price map[string]float64
	}{
		{"morning uses open", time.Date(2024, 3, 5, 9, 30, 0, 0, cst), map[string]float64{"A": 11}},
		{"afternoon uses close", time.Date(2024, 3, 6, 13, 30, 0, 0, cst), map[string]float64{"A": 13, "B": 17}},
		{"no bars", time.Date(2024, 3, 9, 9, 30, 0, 0, cst), map[string]float64{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sim.SetNow(tt.now)
			quotes, err := sim.Quotes(ctx, []string{"A", "B"})
			require.NoError(t, err)
			require.Len(t, quotes, len(tt.price))
			for sym, p := range tt.price {
				assert.Equal(t, p, quotes[sym].Price, sym)
			}
		})
	}
}

func TestSimulator_HistoryVisibility(t *testing.T) {
	sim := newSim(SimConfig{})
	ctx := context.Background()
	from, to := day(2024, 1, 1), day(2024, 12, 31)

	sim.SetNow(time.Date(2024, 3, 6, 9, 30, 0, 0, cst))
	bars, err := sim.History(ctx, "A", contracts.FrequencyDaily, from, to)
	require.NoError(t, err)
	assert.Len(t, bars, 2)

	sim.SetNow(time.Date(2024, 3, 6, 15, 30, 0, 0, cst))
	bars, err = sim.History(ctx, "A", contracts.FrequencyDaily, from, to)
	require.NoError(t, err)
	require.Len(t, bars, 3)
	assert.Equal(t, 13.0, bars[2].Close)

	bars, err = sim.History(ctx, "missing", contracts.FrequencyDaily, from, to)
	require.NoError(t, err)
	assert.Empty(t, bars)

	_, err = sim.History(ctx, "A", "1m", from, to)
	assert.Error(t, err)
}

func TestSimulator_BuyAndSell(t *testing.T) {
	sim := newSim(SimConfig{InitialCash: 10000, CommissionRatio: 0.001, SlippageRatio: 0.01})
	ctx := context.Background()

	var events []contracts.OrderEvent
	sim.OnOrder(func(ctx context.Context, ev contracts.OrderEvent) { events = append(events, ev) })

	sim.SetNow(time.Date(2024, 3, 4, 11, 0, 0, 0, cst))
	ack, err := sim.SubmitOrder(ctx, contracts.OrderRequest{
		ClientOrderID: "c1", Symbol: "A", Volume: 100,
		Side: contracts.OrderSideBuy, Type: contracts.OrderTypeMarket,
	})
	require.NoError(t, err)
	assert.Equal(t, contracts.StatusFilled, ack.Status)
	assert.Equal(t, "c1", ack.ClientOrderID)
	require.Len(t, events, 1)

	// 10 × 1.01 = 10.1; amount 1010; commission 1.01
	assert.InDelta(t, 10.1, events[0].FilledVWAP, 1e-9)
	assert.InDelta(t, 1.01, events[0].Commission, 1e-9)

	acct, err := sim.Account(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 10000-1010-1.01, acct.Cash, 1e-9)
	pos, ok := acct.Position("A")
	require.True(t, ok)
	assert.Equal(t, int64(100), pos.Volume)
	assert.InDelta(t, 10.1, pos.VWAP, 1e-9)
	assert.Equal(t, 10.0, pos.Price)

	sim.SetNow(time.Date(2024, 3, 5, 14, 55, 0, 0, cst))
	ack, err = sim.SubmitOrder(ctx, contracts.OrderRequest{
		Symbol: "A", Volume: 100, Side: contracts.OrderSideSell, Type: contracts.OrderTypeMarket,
	})
	require.NoError(t, err)
	assert.Equal(t, contracts.StatusFilled, ack.Status)

	// 12 × 0.99 = 11.88; amount 1188; commission 1.188
	acct, err = sim.Account(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 10000-1011.01+1188-1.188, acct.Cash, 1e-9)
	assert.Empty(t, acct.Positions)
	assert.InDelta(t, 1.01+1.188, sim.TotalCommission(), 1e-9)
	assert.Len(t, sim.Events(), 2)
}

func TestSimulator_Rejections(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		cash   float64
		now    time.Time
		req    contracts.OrderRequest
		status contracts.Status
		reason string
	}{
		{
			name:   "insufficient cash",
			cash:   100,
			now:    time.Date(2024, 3, 4, 11, 0, 0, 0, cst),
			req:    contracts.OrderRequest{Symbol: "A", Volume: 100, Side: contracts.OrderSideBuy},
			status: contracts.StatusRejected,
			reason: "insufficient cash",
		},
		{
			name:   "suspended symbol",
			cash:   1e6,
			now:    time.Date(2024, 3, 5, 11, 0, 0, 0, cst),
			req:    contracts.OrderRequest{Symbol: "B", Volume: 100, Side: contracts.OrderSideBuy},
			status: contracts.StatusRejected,
			reason: "no quote",
		},
		{
			name:   "sell without position",
			cash:   1e6,
			now:    time.Date(2024, 3, 4, 11, 0, 0, 0, cst),
			req:    contracts.OrderRequest{Symbol: "A", Volume: 100, Side: contracts.OrderSideSell},
			status: contracts.StatusRejected,
			reason: "no position",
		},
		{
			name:   "zero volume",
			cash:   1e6,
			now:    time.Date(2024, 3, 4, 11, 0, 0, 0, cst),
			req:    contracts.OrderRequest{Symbol: "A", Side: contracts.OrderSideBuy},
			status: contracts.StatusRejected,
			reason: "non-positive volume",
		},
		{
			name: "limit below market",
			cash: 1e6,
			now:  time.Date(2024, 3, 4, 11, 0, 0, 0, cst),
			req: contracts.OrderRequest{
				Symbol: "A", Volume: 100, Side: contracts.OrderSideBuy,
				Type: contracts.OrderTypeLimit, Price: 9.5,
			},
			status: contracts.StatusCanceled,
			reason: "limit price not reached",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sim := newSim(SimConfig{InitialCash: tt.cash})
			sim.SetNow(tt.now)

			ack, err := sim.SubmitOrder(ctx, tt.req)
			require.NoError(t, err)
			assert.Equal(t, tt.status, ack.Status)
			assert.Equal(t, tt.reason, ack.Message)

			acct, err := sim.Account(ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.cash, acct.Cash)
		})
	}
}

func TestSimulator_TransactionRatio(t *testing.T) {
	sim := newSim(SimConfig{InitialCash: 1e6, TransactionRatio: 0.5})
	ctx := context.Background()
	sim.SetNow(time.Date(2024, 3, 4, 11, 0, 0, 0, cst))

	ack, err := sim.SubmitOrder(ctx, contracts.OrderRequest{Symbol: "A", Volume: 300, Side: contracts.OrderSideBuy})
	require.NoError(t, err)
	assert.Equal(t, contracts.StatusPartiallyFilled, ack.Status)

	acct, err := sim.Account(ctx)
	require.NoError(t, err)
	pos, ok := acct.Position("A")
	require.True(t, ok)
	assert.Equal(t, int64(150), pos.Volume)
}

func TestSimulator_MarkAndTopHoldings(t *testing.T) {
	sim := newSim(SimConfig{InitialCash: 1e6})
	ctx := context.Background()

	sim.SetNow(time.Date(2024, 3, 4, 11, 0, 0, 0, cst))
	for _, req := range []contracts.OrderRequest{
		{Symbol: "A", Volume: 100, Side: contracts.OrderSideBuy},
		{Symbol: "B", Volume: 100, Side: contracts.OrderSideBuy},
	} {
		_, err := sim.SubmitOrder(ctx, req)
		require.NoError(t, err)
	}

	// B 는 3/5 정지: 직전 종가 19 로 평가
	sim.SetNow(time.Date(2024, 3, 5, 14, 0, 0, 0, cst))
	top := sim.TopHoldings(5)
	require.Len(t, top, 2)
	assert.Equal(t, "B", top[0].Symbol)
	assert.Equal(t, 19.0, top[0].Price)
	assert.Equal(t, "A", top[1].Symbol)
	assert.Equal(t, 12.0, top[1].Price)

	assert.Len(t, sim.TopHoldings(1), 1)
}

func TestSimulator_ReferenceData(t *testing.T) {
	sim := newSim(SimConfig{})
	ctx := context.Background()

	members, err := sim.IndexConstituents(ctx, "IDX", day(2024, 3, 4))
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, members)

	_, err = sim.IndexConstituents(ctx, "NOPE", day(2024, 3, 4))
	assert.Error(t, err)

	insts, err := sim.Instruments(ctx, []string{"A", "Z"})
	require.NoError(t, err)
	require.Len(t, insts, 2)
	assert.Equal(t, "Alpha", insts[0].Name)
	assert.Equal(t, "Z", insts[1].Symbol)
}

type fixedClock time.Time

func (c fixedClock) Now() time.Time { return time.Time(c) }

func TestSimulator_ReplaceAndFollowClock(t *testing.T) {
	sim := newSim(SimConfig{InitialCash: 1e6})
	ctx := context.Background()

	sim.FollowClock(fixedClock(time.Date(2024, 3, 7, 1, 0, 0, 0, time.UTC)))
	assert.Equal(t, 9, sim.Now().Hour())

	quotes, err := sim.Quotes(ctx, []string{"A"})
	require.NoError(t, err)
	assert.Empty(t, quotes)

	next := testSet()
	next.Bars["A"] = append(next.Bars["A"], bar(day(2024, 3, 7), 14, 15))
	sim.Replace(next)

	quotes, err = sim.Quotes(ctx, []string{"A"})
	require.NoError(t, err)
	assert.Equal(t, 14.0, quotes["A"].Price)
}
