package s0_data

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wangshuile/jb-quant/internal/contracts"
)

// PriceRepository reads and writes market.* tables
// ⭐ SSOT: 일봉 데이터 저장소는 여기서만
type PriceRepository struct {
	pool     *pgxpool.Pool
	location *time.Location
}

// NewPriceRepository creates a new price repository; trade dates are
// anchored at midnight in loc
func NewPriceRepository(pool *pgxpool.Pool, loc *time.Location) *PriceRepository {
	return &PriceRepository{pool: pool, location: loc}
}

// Load implements BarSource
func (r *PriceRepository) Load(ctx context.Context, from, to time.Time) (*BarSet, error) {
	set := NewBarSet()

	if err := r.loadBars(ctx, set, from, to); err != nil {
		return nil, err
	}
	if err := r.loadInstruments(ctx, set); err != nil {
		return nil, err
	}
	if err := r.loadConstituents(ctx, set); err != nil {
		return nil, err
	}
	return set, nil
}

func (r *PriceRepository) loadBars(ctx context.Context, set *BarSet, from, to time.Time) error {
	query := `
		SELECT symbol, trade_date, open, high, low, close, volume, amount
		FROM market.daily_bars
		WHERE trade_date BETWEEN $1 AND $2
		ORDER BY symbol, trade_date ASC
	`

	rows, err := r.pool.Query(ctx, query, from, to)
	if err != nil {
		return fmt.Errorf("query daily bars: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			symbol string
			b      contracts.Bar
		)
		if err := rows.Scan(&symbol, &b.Time, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &b.Amount); err != nil {
			return fmt.Errorf("scan daily bar: %w", err)
		}
		b.Time = dateIn(b.Time, r.location)
		set.Bars[symbol] = append(set.Bars[symbol], b)
	}
	return rows.Err()
}

func (r *PriceRepository) loadInstruments(ctx context.Context, set *BarSet) error {
	rows, err := r.pool.Query(ctx, `SELECT symbol, name, sector, market_cap FROM market.instruments`)
	if err != nil {
		return fmt.Errorf("query instruments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var inst contracts.Instrument
		if err := rows.Scan(&inst.Symbol, &inst.Name, &inst.Sector, &inst.MarketCap); err != nil {
			return fmt.Errorf("scan instrument: %w", err)
		}
		set.Instruments[inst.Symbol] = inst
	}
	return rows.Err()
}

func (r *PriceRepository) loadConstituents(ctx context.Context, set *BarSet) error {
	query := `
		SELECT index_symbol, symbol
		FROM market.index_constituents
		ORDER BY index_symbol, weight DESC, symbol
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return fmt.Errorf("query index constituents: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var index, symbol string
		if err := rows.Scan(&index, &symbol); err != nil {
			return fmt.Errorf("scan constituent: %w", err)
		}
		set.Constituents[index] = append(set.Constituents[index], symbol)
	}
	return rows.Err()
}

// SaveBars upserts the bars of one symbol
func (r *PriceRepository) SaveBars(ctx context.Context, symbol string, bars []contracts.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	query := `
		INSERT INTO market.daily_bars (symbol, trade_date, open, high, low, close, volume, amount)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (symbol, trade_date) DO UPDATE SET
			open = EXCLUDED.open,
			high = EXCLUDED.high,
			low = EXCLUDED.low,
			close = EXCLUDED.close,
			volume = EXCLUDED.volume,
			amount = EXCLUDED.amount
	`

	batch := &pgx.Batch{}
	for _, b := range bars {
		batch.Queue(query, symbol, b.Time, b.Open, b.High, b.Low, b.Close, b.Volume, b.Amount)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range bars {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("upsert %s bars: %w", symbol, err)
		}
	}
	return nil
}

// SaveInstrument upserts one instrument
func (r *PriceRepository) SaveInstrument(ctx context.Context, inst contracts.Instrument) error {
	query := `
		INSERT INTO market.instruments (symbol, name, sector, market_cap)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (symbol) DO UPDATE SET
			name = EXCLUDED.name,
			sector = EXCLUDED.sector,
			market_cap = EXCLUDED.market_cap
	`
	if _, err := r.pool.Exec(ctx, query, inst.Symbol, inst.Name, inst.Sector, inst.MarketCap); err != nil {
		return fmt.Errorf("upsert instrument %s: %w", inst.Symbol, err)
	}
	return nil
}

// SaveConstituents replaces the members of an index
func (r *PriceRepository) SaveConstituents(ctx context.Context, index string, symbols []string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM market.index_constituents WHERE index_symbol = $1`, index); err != nil {
		return fmt.Errorf("clear constituents: %w", err)
	}
	for i, sym := range symbols {
		// 순서 보존: 앞쪽일수록 높은 weight
		weight := float64(len(symbols) - i)
		if _, err := tx.Exec(ctx,
			`INSERT INTO market.index_constituents (index_symbol, symbol, weight) VALUES ($1, $2, $3)`,
			index, sym, weight,
		); err != nil {
			return fmt.Errorf("insert constituent %s: %w", sym, err)
		}
	}
	return tx.Commit(ctx)
}
