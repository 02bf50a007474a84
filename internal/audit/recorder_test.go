package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wangshuile/jb-quant/internal/contracts"
	"github.com/wangshuile/jb-quant/pkg/config"
	"github.com/wangshuile/jb-quant/pkg/redis"
)

type snapshotOnly struct {
	snaps []contracts.DailySnapshot
	err   error
}

func (s *snapshotOnly) RecordSnapshot(ctx context.Context, snap contracts.DailySnapshot) error {
	s.snaps = append(s.snaps, snap)
	return s.err
}

type everything struct {
	snapshotOnly
	trades    []contracts.TradeRecord
	selection [][]contracts.InstrumentInfo
}

func (e *everything) RecordTrade(ctx context.Context, trade contracts.TradeRecord) error {
	e.trades = append(e.trades, trade)
	return nil
}

func (e *everything) RecordSelection(ctx context.Context, date string, selected []contracts.InstrumentInfo) error {
	e.selection = append(e.selection, selected)
	return nil
}

func disabledPublisher(t *testing.T) *Publisher {
	t.Helper()
	client, err := redis.New(&config.Config{Redis: config.RedisConfig{Enabled: false}})
	require.NoError(t, err)
	return NewPublisher(redis.NewCache(client), "s")
}

func TestRecorder_FanOut(t *testing.T) {
	ctx := context.Background()
	only := &snapshotOnly{}
	all := &everything{}
	var nilRepo *Repository

	rec := NewRecorder(nil, only, all, nil, nilRepo)
	require.Len(t, rec.targets, 2)

	require.NoError(t, rec.RecordSnapshot(ctx, snap("2024-01-02", 1)))
	require.NoError(t, rec.RecordTrade(ctx, contracts.TradeRecord{Symbol: "A"}))
	require.NoError(t, rec.RecordSelection(ctx, "2024-01-02", []contracts.InstrumentInfo{{Symbol: "A"}}))

	assert.Len(t, only.snaps, 1)
	assert.Len(t, all.snaps, 1)
	assert.Len(t, all.trades, 1)
	assert.Len(t, all.selection, 1)
}

func TestRecorder_FailureDoesNotStopOthers(t *testing.T) {
	boom := errors.New("boom")
	failing := &snapshotOnly{err: boom}
	ok := &snapshotOnly{}

	rec := NewRecorder(nil, failing, ok)
	err := rec.RecordSnapshot(context.Background(), snap("2024-01-02", 1))

	assert.ErrorIs(t, err, boom)
	assert.Len(t, ok.snaps, 1)
}

func TestRecorder_WithAnalyzer(t *testing.T) {
	a := NewAnalyzer(nil)
	rec := NewRecorder(nil, a, disabledPublisher(t))
	ctx := context.Background()

	require.NoError(t, rec.RecordSnapshot(ctx, snap("2024-01-02", 100)))
	require.NoError(t, rec.RecordSnapshot(ctx, snap("2024-01-03", 102)))
	require.NoError(t, rec.RecordTrade(ctx, contracts.TradeRecord{Symbol: "A", Returns: 0.02}))

	s := a.Summary()
	assert.Equal(t, 2, s.TradingDays)
	assert.Equal(t, 1, s.TotalTrades)
}

func TestPublisher_Disabled(t *testing.T) {
	p := disabledPublisher(t)
	ctx := context.Background()

	require.NoError(t, p.RecordSelection(ctx, "2024-01-02", []contracts.InstrumentInfo{{Symbol: "A"}}))
	require.NoError(t, p.RecordSnapshot(ctx, snap("2024-01-02", 1)))

	sel, err := p.LatestSelection(ctx)
	assert.NoError(t, err)
	assert.Nil(t, sel)

	latest, err := p.LatestSnapshot(ctx)
	assert.NoError(t, err)
	assert.Nil(t, latest)

	history, err := p.History(ctx, 10)
	assert.NoError(t, err)
	assert.Empty(t, history)
}

func TestPublisher_NilCache(t *testing.T) {
	p := NewPublisher(nil, "s")
	assert.NoError(t, p.RecordSnapshot(context.Background(), snap("2024-01-02", 1)))
}
