package brain

import (
	"context"
	"fmt"
	"sync"

	"github.com/wangshuile/jb-quant/internal/contracts"
	"github.com/wangshuile/jb-quant/internal/execution"
	"github.com/wangshuile/jb-quant/internal/risk"
	"github.com/wangshuile/jb-quant/internal/s0_data"
	"github.com/wangshuile/jb-quant/internal/s1_universe"
	"github.com/wangshuile/jb-quant/internal/s2_signals"
	"github.com/wangshuile/jb-quant/internal/selection"
)

// DataManager is the data slot as seen by the orchestrator
type DataManager interface {
	Quote(ctx context.Context, symbol string) (contracts.Quote, error)
	ClearCache()
	CacheStats() s0_data.CacheStats
}

// Components are the policy slots of a TradingContext. Every slot is required.
type Components struct {
	Clock    contracts.Clock
	Account  contracts.AccountProvider
	Data     DataManager
	Universe s1_universe.Provider
	Scoring  selection.Policy
	Timing   s2_signals.Policy
	Risk     risk.Manager
	Executor execution.Executor
}

func (c Components) validate() error {
	missing := func(slot string) error {
		return fmt.Errorf("trading context: %s slot is required", slot)
	}
	switch {
	case c.Clock == nil:
		return missing("clock")
	case c.Account == nil:
		return missing("account")
	case c.Data == nil:
		return missing("data")
	case c.Universe == nil:
		return missing("universe")
	case c.Scoring == nil:
		return missing("scoring")
	case c.Timing == nil:
		return missing("timing")
	case c.Risk == nil:
		return missing("risk")
	case c.Executor == nil:
		return missing("executor")
	}
	return nil
}

// TradingContext holds the policy slots, today's selection, the daily
// intent lists and the cumulative trade counters
// ⭐ SSOT: 선정 결과와 성과 누적은 여기서만
type TradingContext struct {
	Components

	mu                sync.Mutex
	selected          []contracts.InstrumentInfo
	lastSelectionDate string
	buyList           []string
	sellList          []string
	reduceList        []string

	tradeCount  int
	winCount    int
	totalReturn float64
}

// NewTradingContext fails when any slot is nil
func NewTradingContext(c Components) (*TradingContext, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &TradingContext{Components: c}, nil
}

// SetSelection replaces today's selection
func (tc *TradingContext) SetSelection(selected []contracts.InstrumentInfo, date string) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.selected = selected
	tc.lastSelectionDate = date
}

// Selected returns a copy of today's selection
func (tc *TradingContext) Selected() []contracts.InstrumentInfo {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return append([]contracts.InstrumentInfo(nil), tc.selected...)
}

// LastSelectionDate is the YYYY-MM-DD of the last market-open selection
func (tc *TradingContext) LastSelectionDate() string {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.lastSelectionDate
}

// ResetDaily clears the buy/sell/reduce lists
func (tc *TradingContext) ResetDaily() {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.buyList = nil
	tc.sellList = nil
	tc.reduceList = nil
}

func (tc *TradingContext) addBuy(symbol string) {
	tc.mu.Lock()
	tc.buyList = append(tc.buyList, symbol)
	tc.mu.Unlock()
}

func (tc *TradingContext) addSell(symbol string) {
	tc.mu.Lock()
	tc.sellList = append(tc.sellList, symbol)
	tc.mu.Unlock()
}

func (tc *TradingContext) addReduce(symbol string) {
	tc.mu.Lock()
	tc.reduceList = append(tc.reduceList, symbol)
	tc.mu.Unlock()
}

// DailyIntents returns copies of today's buy, sell and reduce lists
func (tc *TradingContext) DailyIntents() (buys, sells, reduces []string) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return append([]string(nil), tc.buyList...),
		append([]string(nil), tc.sellList...),
		append([]string(nil), tc.reduceList...)
}

// RecordTrade adds one completed trade return to the counters
func (tc *TradingContext) RecordTrade(returns float64) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.tradeCount++
	tc.totalReturn += returns
	if returns > 0 {
		tc.winCount++
	}
}

// Performance returns the cumulative counters with derived rates
func (tc *TradingContext) Performance() contracts.Performance {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	p := contracts.Performance{
		TradeCount:  tc.tradeCount,
		WinCount:    tc.winCount,
		TotalReturn: tc.totalReturn,
	}
	if tc.tradeCount > 0 {
		p.WinRate = float64(tc.winCount) / float64(tc.tradeCount)
		p.AvgReturn = tc.totalReturn / float64(tc.tradeCount)
	}
	return p
}
