package audit

import (
	"context"
	"fmt"

	"github.com/wangshuile/jb-quant/internal/contracts"
	"github.com/wangshuile/jb-quant/pkg/redis"
)

// SnapshotHistoryLen caps the cached snapshot list
const SnapshotHistoryLen = 30

// SelectionState is the cached result of the last market-open selection
type SelectionState struct {
	Date     string                     `json:"date"`
	Selected []contracts.InstrumentInfo `json:"selected"`
}

// Publisher mirrors the latest decisions into Redis for the status command
type Publisher struct {
	cache      *redis.Cache
	strategyID string
}

// NewPublisher creates a publisher; a nil or disabled cache makes every call a no-op
func NewPublisher(cache *redis.Cache, strategyID string) *Publisher {
	return &Publisher{cache: cache, strategyID: strategyID}
}

// RecordSelection implements the orchestrator's selection sink
func (p *Publisher) RecordSelection(ctx context.Context, date string, selected []contracts.InstrumentInfo) error {
	state := SelectionState{Date: date, Selected: append([]contracts.InstrumentInfo{}, selected...)}
	if err := p.cache.Set(ctx, redis.SelectionKey(p.strategyID), state, redis.TTLDaily); err != nil {
		return fmt.Errorf("publish selection: %w", err)
	}
	return nil
}

// RecordSnapshot implements the orchestrator's snapshot sink
func (p *Publisher) RecordSnapshot(ctx context.Context, snap contracts.DailySnapshot) error {
	if err := p.cache.Set(ctx, redis.SnapshotKey(p.strategyID), snap, redis.TTLWeek); err != nil {
		return fmt.Errorf("publish snapshot: %w", err)
	}
	if err := p.cache.Push(ctx, redis.SnapshotHistoryKey(p.strategyID), snap, SnapshotHistoryLen, redis.TTLWeek); err != nil {
		return fmt.Errorf("publish snapshot history: %w", err)
	}
	return nil
}

// LatestSelection reads the cached selection
func (p *Publisher) LatestSelection(ctx context.Context) (*SelectionState, error) {
	var state SelectionState
	found, err := p.cache.Get(ctx, redis.SelectionKey(p.strategyID), &state)
	if err != nil || !found {
		return nil, err
	}
	return &state, nil
}

// LatestSnapshot reads the cached snapshot
func (p *Publisher) LatestSnapshot(ctx context.Context) (*contracts.DailySnapshot, error) {
	var snap contracts.DailySnapshot
	found, err := p.cache.Get(ctx, redis.SnapshotKey(p.strategyID), &snap)
	if err != nil || !found {
		return nil, err
	}
	return &snap, nil
}

// History returns up to n cached snapshots, newest first
func (p *Publisher) History(ctx context.Context, n int64) ([]contracts.DailySnapshot, error) {
	return redis.ListRange[contracts.DailySnapshot](ctx, p.cache, redis.SnapshotHistoryKey(p.strategyID), n)
}
