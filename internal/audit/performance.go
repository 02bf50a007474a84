package audit

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/wangshuile/jb-quant/internal/contracts"
	"github.com/wangshuile/jb-quant/pkg/logger"
)

// TradingDaysPerYear annualizes daily statistics
const TradingDaysPerYear = 252

// EquityPoint is one entry of the equity curve
type EquityPoint struct {
	Date   string  `json:"date"`
	Equity float64 `json:"equity"`
}

// Summary is the end-of-run performance report
type Summary struct {
	TotalTrades int     `json:"total_trades"`
	TotalReturn float64 `json:"total_return"` // 거래 수익률 합
	WinRate     float64 `json:"win_rate"`
	AvgReturn   float64 `json:"avg_return"`
	MaxReturn   float64 `json:"max_return"`
	MinReturn   float64 `json:"min_return"`

	TradingDays int     `json:"trading_days"`
	EquityStart float64 `json:"equity_start"`
	EquityEnd   float64 `json:"equity_end"`
	Sharpe      float64 `json:"sharpe_ratio"`
	MaxDrawdown float64 `json:"max_drawdown"` // 양수, 고점 대비 하락률

	Risk RiskSummary `json:"risk"`
}

// Analyzer accumulates trades, daily returns and the equity curve
// ⭐ SSOT: 성과 분석 로직은 여기서만
type Analyzer struct {
	mu           sync.Mutex
	trades       []contracts.TradeRecord
	dailyReturns []float64
	equity       []EquityPoint
	logger       *logger.Logger
}

// NewAnalyzer creates a new performance analyzer
func NewAnalyzer(log *logger.Logger) *Analyzer {
	if log == nil {
		log = logger.Nop()
	}
	return &Analyzer{logger: log.Component("audit")}
}

// AddTrade records one completed round trip
func (a *Analyzer) AddTrade(trade contracts.TradeRecord) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.trades = append(a.trades, trade)
}

// RecordDailyReturn appends one daily return
func (a *Analyzer) RecordDailyReturn(date string, r float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.dailyReturns = append(a.dailyReturns, r)
}

// RecordEquity appends one equity-curve point
func (a *Analyzer) RecordEquity(date string, equity float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.equity = append(a.equity, EquityPoint{Date: date, Equity: equity})
}

// RecordSnapshot derives the daily return from the previous equity point
// and appends both. Implements the orchestrator's snapshot sink.
func (a *Analyzer) RecordSnapshot(ctx context.Context, snap contracts.DailySnapshot) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if n := len(a.equity); n > 0 {
		prev := a.equity[n-1]
		if prev.Date == snap.Date {
			// 같은 날 재실행은 덮어씀
			a.equity[n-1].Equity = snap.TotalAssets
			if len(a.dailyReturns) > 0 && n > 1 {
				a.dailyReturns[len(a.dailyReturns)-1] = dailyReturn(a.equity[n-2].Equity, snap.TotalAssets)
			}
			return nil
		}
		a.dailyReturns = append(a.dailyReturns, dailyReturn(prev.Equity, snap.TotalAssets))
	}
	a.equity = append(a.equity, EquityPoint{Date: snap.Date, Equity: snap.TotalAssets})
	return nil
}

// RecordTrade implements the orchestrator's trade sink
func (a *Analyzer) RecordTrade(ctx context.Context, trade contracts.TradeRecord) error {
	a.AddTrade(trade)
	return nil
}

// Trades returns a copy of the recorded trades
func (a *Analyzer) Trades() []contracts.TradeRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]contracts.TradeRecord(nil), a.trades...)
}

// EquityCurve returns a copy of the equity curve
func (a *Analyzer) EquityCurve() []EquityPoint {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]EquityPoint(nil), a.equity...)
}

// Summary computes the report over everything recorded so far
func (a *Analyzer) Summary() Summary {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := Summary{
		TotalTrades: len(a.trades),
		TradingDays: len(a.equity),
	}

	if len(a.trades) > 0 {
		wins := 0
		s.MaxReturn = math.Inf(-1)
		s.MinReturn = math.Inf(1)
		for _, t := range a.trades {
			s.TotalReturn += t.Returns
			if t.Returns > 0 {
				wins++
			}
			s.MaxReturn = math.Max(s.MaxReturn, t.Returns)
			s.MinReturn = math.Min(s.MinReturn, t.Returns)
		}
		s.WinRate = float64(wins) / float64(len(a.trades))
		s.AvgReturn = s.TotalReturn / float64(len(a.trades))
	}

	if len(a.equity) > 0 {
		s.EquityStart = a.equity[0].Equity
		s.EquityEnd = a.equity[len(a.equity)-1].Equity
	}

	s.Sharpe = Sharpe(a.dailyReturns)
	s.MaxDrawdown = MaxDrawdown(a.equity)
	s.Risk = NewRiskSummary(a.dailyReturns)

	a.logger.WithFields(map[string]interface{}{
		"total_trades": s.TotalTrades,
		"total_return": s.TotalReturn,
		"win_rate":     s.WinRate,
		"sharpe":       s.Sharpe,
		"max_drawdown": s.MaxDrawdown,
	}).Debug("Performance summary computed")

	return s
}

// Reset drops everything recorded
func (a *Analyzer) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.trades = nil
	a.dailyReturns = nil
	a.equity = nil
}

// Sharpe is mean/std·√252 over daily returns (population std, no risk-free rate)
func Sharpe(dailyReturns []float64) float64 {
	if len(dailyReturns) == 0 {
		return 0
	}
	mean, std := meanStd(dailyReturns)
	if std == 0 {
		return 0
	}
	return mean / std * math.Sqrt(TradingDaysPerYear)
}

// MaxDrawdown is the largest (peak − equity)/peak along the curve
func MaxDrawdown(curve []EquityPoint) float64 {
	if len(curve) == 0 {
		return 0
	}

	peak := curve[0].Equity
	maxDD := 0.0
	for _, p := range curve {
		if p.Equity > peak {
			peak = p.Equity
		}
		if peak <= 0 {
			continue
		}
		if dd := (peak - p.Equity) / peak; dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

// TradeFromPosition builds a trade record for an exit at price
func TradeFromPosition(id string, record contracts.PositionRecord, price float64, reason string, exitTime time.Time) contracts.TradeRecord {
	returns := 0.0
	if record.AvgCost > 0 {
		returns = (price - record.AvgCost) / record.AvgCost
	}
	return contracts.TradeRecord{
		ID:         id,
		Symbol:     record.Symbol,
		EntryPrice: record.AvgCost,
		ExitPrice:  price,
		Volume:     record.Volume,
		Returns:    returns,
		Reason:     reason,
		EntryDate:  record.EntryDate,
		ExitTime:   exitTime,
	}
}

func dailyReturn(prev, cur float64) float64 {
	if prev <= 0 {
		return 0
	}
	return cur/prev - 1
}

// meanStd returns the mean and population standard deviation
func meanStd(values []float64) (float64, float64) {
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	var variance float64
	for _, v := range values {
		diff := v - mean
		variance += diff * diff
	}
	variance /= float64(len(values))

	return mean, math.Sqrt(variance)
}
