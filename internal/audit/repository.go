package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wangshuile/jb-quant/internal/contracts"
)

// Repository handles report persistence (report.daily_snapshots, report.trades)
// ⭐ SSOT: 리포트 저장/조회는 여기서만
type Repository struct {
	pool       *pgxpool.Pool
	strategyID string
}

// NewRepository creates a new report repository scoped to one strategy
func NewRepository(pool *pgxpool.Pool, strategyID string) *Repository {
	return &Repository{pool: pool, strategyID: strategyID}
}

// SaveSnapshot upserts the daily snapshot
func (r *Repository) SaveSnapshot(ctx context.Context, snap contracts.DailySnapshot) error {
	selectedJSON, err := json.Marshal(snap.Selected)
	if err != nil {
		return fmt.Errorf("failed to marshal selection: %w", err)
	}

	query := `
		INSERT INTO report.daily_snapshots (
			strategy_id, snapshot_date, total_assets, cash, market_value,
			positions, trade_count, win_count, total_return, selected, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (strategy_id, snapshot_date) DO UPDATE SET
			total_assets = EXCLUDED.total_assets,
			cash = EXCLUDED.cash,
			market_value = EXCLUDED.market_value,
			positions = EXCLUDED.positions,
			trade_count = EXCLUDED.trade_count,
			win_count = EXCLUDED.win_count,
			total_return = EXCLUDED.total_return,
			selected = EXCLUDED.selected,
			created_at = EXCLUDED.created_at
	`

	_, err = r.pool.Exec(ctx, query,
		r.strategyFor(snap.StrategyID), snap.Date, snap.TotalAssets, snap.Cash, snap.MarketValue,
		snap.Positions, snap.Performance.TradeCount, snap.Performance.WinCount,
		snap.Performance.TotalReturn, selectedJSON, snap.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}

	return nil
}

// SaveTrade inserts one completed trade. Replays with the same ID are ignored.
func (r *Repository) SaveTrade(ctx context.Context, trade contracts.TradeRecord) error {
	entryDate := trade.EntryDate
	if entryDate == "" {
		entryDate = trade.ExitTime.Format("2006-01-02")
	}

	query := `
		INSERT INTO report.trades (
			id, strategy_id, symbol, entry_price, exit_price,
			volume, returns, reason, entry_date, exit_time
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
	`

	_, err := r.pool.Exec(ctx, query,
		trade.ID, r.strategyID, trade.Symbol, trade.EntryPrice, trade.ExitPrice,
		trade.Volume, trade.Returns, trade.Reason, entryDate, trade.ExitTime,
	)
	if err != nil {
		return fmt.Errorf("failed to save trade: %w", err)
	}

	return nil
}

// RecordSnapshot implements the orchestrator's snapshot sink
func (r *Repository) RecordSnapshot(ctx context.Context, snap contracts.DailySnapshot) error {
	return r.SaveSnapshot(ctx, snap)
}

// RecordTrade implements the orchestrator's trade sink
func (r *Repository) RecordTrade(ctx context.Context, trade contracts.TradeRecord) error {
	return r.SaveTrade(ctx, trade)
}

// GetLatestSnapshot returns the newest snapshot, nil when none exists
func (r *Repository) GetLatestSnapshot(ctx context.Context) (*contracts.DailySnapshot, error) {
	query := `
		SELECT strategy_id, snapshot_date, total_assets, cash, market_value,
			positions, trade_count, win_count, total_return, selected, created_at
		FROM report.daily_snapshots
		WHERE strategy_id = $1
		ORDER BY snapshot_date DESC
		LIMIT 1
	`

	snap, err := scanSnapshot(r.pool.QueryRow(ctx, query, r.strategyID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest snapshot: %w", err)
	}
	return &snap, nil
}

// GetSnapshotHistory retrieves snapshots for a date range, oldest first
func (r *Repository) GetSnapshotHistory(ctx context.Context, startDate, endDate time.Time) ([]contracts.DailySnapshot, error) {
	query := `
		SELECT strategy_id, snapshot_date, total_assets, cash, market_value,
			positions, trade_count, win_count, total_return, selected, created_at
		FROM report.daily_snapshots
		WHERE strategy_id = $1 AND snapshot_date BETWEEN $2 AND $3
		ORDER BY snapshot_date ASC
	`

	rows, err := r.pool.Query(ctx, query, r.strategyID, startDate, endDate)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	snapshots := make([]contracts.DailySnapshot, 0)
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		snapshots = append(snapshots, snap)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return snapshots, nil
}

// GetTrades retrieves trades closed in a period, oldest first
func (r *Repository) GetTrades(ctx context.Context, startDate, endDate time.Time) ([]contracts.TradeRecord, error) {
	query := `
		SELECT id, symbol, entry_price, exit_price, volume, returns, reason, entry_date, exit_time
		FROM report.trades
		WHERE strategy_id = $1 AND exit_time BETWEEN $2 AND $3
		ORDER BY exit_time ASC
	`

	rows, err := r.pool.Query(ctx, query, r.strategyID, startDate, endDate)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	trades := make([]contracts.TradeRecord, 0)
	for rows.Next() {
		var t contracts.TradeRecord
		var entryDate time.Time
		if err := rows.Scan(&t.ID, &t.Symbol, &t.EntryPrice, &t.ExitPrice, &t.Volume,
			&t.Returns, &t.Reason, &entryDate, &t.ExitTime); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		t.EntryDate = entryDate.Format("2006-01-02")
		trades = append(trades, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return trades, nil
}

// LoadAnalyzer replays stored snapshots and trades of a period into a new Analyzer
func (r *Repository) LoadAnalyzer(ctx context.Context, startDate, endDate time.Time, a *Analyzer) error {
	snapshots, err := r.GetSnapshotHistory(ctx, startDate, endDate)
	if err != nil {
		return err
	}
	trades, err := r.GetTrades(ctx, startDate, endDate)
	if err != nil {
		return err
	}

	for _, s := range snapshots {
		_ = a.RecordSnapshot(ctx, s)
	}
	for _, t := range trades {
		a.AddTrade(t)
	}
	return nil
}

func (r *Repository) strategyFor(id string) string {
	if id != "" {
		return id
	}
	return r.strategyID
}

func scanSnapshot(row pgx.Row) (contracts.DailySnapshot, error) {
	var snap contracts.DailySnapshot
	var date time.Time
	var selectedJSON []byte

	err := row.Scan(
		&snap.StrategyID, &date, &snap.TotalAssets, &snap.Cash, &snap.MarketValue,
		&snap.Positions, &snap.Performance.TradeCount, &snap.Performance.WinCount,
		&snap.Performance.TotalReturn, &selectedJSON, &snap.CreatedAt,
	)
	if err != nil {
		return snap, err
	}

	snap.Date = date.Format("2006-01-02")
	if len(selectedJSON) > 0 {
		if err := json.Unmarshal(selectedJSON, &snap.Selected); err != nil {
			return snap, fmt.Errorf("failed to unmarshal selection: %w", err)
		}
	}
	if snap.Performance.TradeCount > 0 {
		snap.Performance.WinRate = float64(snap.Performance.WinCount) / float64(snap.Performance.TradeCount)
		snap.Performance.AvgReturn = snap.Performance.TotalReturn / float64(snap.Performance.TradeCount)
	}
	return snap, nil
}
