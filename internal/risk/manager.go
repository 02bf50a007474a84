package risk

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/wangshuile/jb-quant/internal/contracts"
	"github.com/wangshuile/jb-quant/pkg/logger"
)

// ExitReason tags why a position should be closed
type ExitReason string

const (
	ExitNone         ExitReason = ""
	ExitStopLoss     ExitReason = "stop-loss"
	ExitStopProfit   ExitReason = "stop-profit"
	ExitTrailingStop ExitReason = "trailing-stop"
	ExitT1Restricted ExitReason = "T+1 restricted"
)

// Config holds the portfolio and per-position limits
type Config struct {
	MaxPositions       int
	MaxPositionRatio   float64 // 단일 종목 상한 (총자산 대비)
	TotalPositionRatio float64 // 전체 포지션 상한
	StopLossRate       float64 // 음수 (예: -0.08)
	StopProfitRate     float64
	TrailingStopRate   float64
}

// DefaultConfig returns the stock trading limits
func DefaultConfig() Config {
	return Config{
		MaxPositions:       3,
		MaxPositionRatio:   0.34,
		TotalPositionRatio: 1.0,
		StopLossRate:       -0.08,
		StopProfitRate:     0.15,
		TrailingStopRate:   0.05,
	}
}

// Manager owns position records and enforces limits and exit rules
type Manager interface {
	Name() string
	UpdatePositionAll(ctx context.Context) error
	CheckPositionLimits(ctx context.Context, symbol string, planned float64) bool
	CheckStopLossProfit(symbol string, price float64) (bool, ExitReason)
	CanSellToday(symbol string) bool
	ResetDailyFlags()
	Position(symbol string) (contracts.PositionRecord, bool)
	Positions() []contracts.PositionRecord
	Config() Config
}

// ratioCap is one (single-name, total) exposure ceiling
type ratioCap struct {
	name   string
	single float64
	total  float64
}

// BaseManager is the default risk manager
// ⭐ SSOT: 포지션 상태의 유일한 writer
type BaseManager struct {
	mu          sync.Mutex
	config      Config
	account     contracts.AccountProvider
	clock       contracts.Clock
	records     map[string]*contracts.PositionRecord
	todayBought map[string]struct{}
	logger      *logger.Logger
}

// NewBaseManager creates a base risk manager
func NewBaseManager(config Config, account contracts.AccountProvider, clock contracts.Clock, log *logger.Logger) *BaseManager {
	if log == nil {
		log = logger.Nop()
	}
	return &BaseManager{
		config:      config,
		account:     account,
		clock:       clock,
		records:     make(map[string]*contracts.PositionRecord),
		todayBought: make(map[string]struct{}),
		logger:      log.Component("risk"),
	}
}

// Name implements Manager
func (m *BaseManager) Name() string { return TypeBase }

// Config implements Manager
func (m *BaseManager) Config() Config { return m.config }

// ============================================================================
// Reconciliation
// ============================================================================

// UpdatePositionAll rebuilds every record from the account snapshot.
// Zero-volume positions get no record. The highest price of a symbol
// that stays held carries over.
func (m *BaseManager) UpdatePositionAll(ctx context.Context) error {
	snap, err := m.account.Account(ctx)
	if err != nil {
		return fmt.Errorf("account snapshot: %w", err)
	}

	now := m.clock.Now()
	today := now.Format("2006-01-02")

	m.mu.Lock()
	defer m.mu.Unlock()

	records := make(map[string]*contracts.PositionRecord, len(snap.Positions))
	for _, p := range snap.Positions {
		if p.Volume <= 0 {
			continue
		}

		entryDate := p.UpdatedAt.In(now.Location()).Format("2006-01-02")
		highest := p.VWAP
		if prev, ok := m.records[p.Symbol]; ok && prev.HighestPrice > highest {
			highest = prev.HighestPrice
		}

		records[p.Symbol] = &contracts.PositionRecord{
			Symbol:       p.Symbol,
			AvgCost:      p.VWAP,
			HighestPrice: highest,
			EntryTime:    p.UpdatedAt,
			EntryDate:    entryDate,
			Volume:       p.Volume,
		}
		if entryDate == today {
			m.todayBought[p.Symbol] = struct{}{}
		}
	}
	m.records = records

	m.logger.WithFields(map[string]interface{}{
		"positions":    len(records),
		"today_bought": len(m.todayBought),
	}).Debug("positions reconciled")

	return nil
}

// ============================================================================
// Limits
// ============================================================================

// CheckPositionLimits reports whether buying planned (currency) of symbol
// stays within the single-name, total and count limits
func (m *BaseManager) CheckPositionLimits(ctx context.Context, symbol string, planned float64) bool {
	return m.checkLimits(ctx, symbol, planned)
}

// checkLimits evaluates the base limits, then every overlay cap in order
func (m *BaseManager) checkLimits(ctx context.Context, symbol string, planned float64, overlays ...ratioCap) bool {
	snap, err := m.account.Account(ctx)
	if err != nil {
		m.logger.WithError(err).Error("position limit check failed")
		return false
	}

	total := snap.TotalAssets()
	if total <= 0 {
		return false
	}

	exposure := snap.MarketValue()
	current := 0.0
	if p, ok := snap.Position(symbol); ok {
		current = p.Value()
	}

	log := m.logger.WithFields(map[string]interface{}{
		"symbol":  symbol,
		"planned": planned,
		"total":   total,
	})

	caps := append([]ratioCap{{name: "base", single: m.config.MaxPositionRatio, total: m.config.TotalPositionRatio}}, overlays...)
	for i, c := range caps {
		if current+planned > total*c.single {
			log.WithField("cap", c.name).Debug("single position limit")
			return false
		}
		if exposure+planned > total*c.total {
			log.WithField("cap", c.name).Debug("total position limit")
			return false
		}
		if i == 0 && snap.HeldCount() >= m.config.MaxPositions && current == 0 {
			log.Debug("max positions reached")
			return false
		}
	}
	return true
}

// ============================================================================
// Exits
// ============================================================================

// CheckStopLossProfit evaluates stop-loss, then stop-profit, then the
// trailing band (after raising the highest price)
func (m *BaseManager) CheckStopLossProfit(symbol string, price float64) (bool, ExitReason) {
	today := m.clock.Now().Format("2006-01-02")

	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[symbol]
	if !ok {
		return false, ExitNone
	}
	if !m.canSellLocked(symbol, today) {
		return false, ExitT1Restricted
	}
	if rec.AvgCost <= 0 {
		return false, ExitNone
	}

	returns := (price - rec.AvgCost) / rec.AvgCost
	if returns <= m.config.StopLossRate {
		return true, ExitStopLoss
	}
	if returns >= m.config.StopProfitRate {
		return true, ExitStopProfit
	}

	if price > rec.HighestPrice {
		rec.HighestPrice = price
	}
	if price < rec.HighestPrice*(1-m.config.TrailingStopRate) {
		return true, ExitTrailingStop
	}
	return false, ExitNone
}

// CanSellToday is false for symbols bought today (T+1)
func (m *BaseManager) CanSellToday(symbol string) bool {
	today := m.clock.Now().Format("2006-01-02")

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.canSellLocked(symbol, today)
}

func (m *BaseManager) canSellLocked(symbol, today string) bool {
	if _, bought := m.todayBought[symbol]; bought {
		return false
	}
	if rec, ok := m.records[symbol]; ok {
		return rec.EntryDate != today
	}
	return true
}

// ResetDailyFlags clears today's purchases (called at market open)
func (m *BaseManager) ResetDailyFlags() {
	m.mu.Lock()
	m.todayBought = make(map[string]struct{})
	m.mu.Unlock()
}

// ============================================================================
// Accessors
// ============================================================================

// Position returns a copy of the record of symbol
func (m *BaseManager) Position(symbol string) (contracts.PositionRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.records[symbol]; ok {
		return *rec, true
	}
	return contracts.PositionRecord{}, false
}

// Positions returns copies of all records, sorted by symbol
func (m *BaseManager) Positions() []contracts.PositionRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]contracts.PositionRecord, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}
