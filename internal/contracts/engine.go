package contracts

import "time"

// InstrumentInfo is one scored candidate of a selection cycle
type InstrumentInfo struct {
	Symbol       string  `json:"symbol"`
	Score        float64 `json:"score"`
	CurrentPrice float64 `json:"current_price"`
	History      []Bar   `json:"-"`
	Sector       string  `json:"sector,omitempty"`
	MarketCap    float64 `json:"market_cap,omitempty"`
}

// PositionRecord is the risk manager's view of a held symbol
type PositionRecord struct {
	Symbol       string    `json:"symbol"`
	AvgCost      float64   `json:"avg_cost"`
	HighestPrice float64   `json:"highest_price"`
	EntryTime    time.Time `json:"entry_time"`
	EntryDate    string    `json:"entry_date"` // YYYY-MM-DD
	Volume       int64     `json:"volume"`
}

// Signal is the tri-state timing output
type Signal struct {
	Buy    bool `json:"buy"`
	Sell   bool `json:"sell"`
	Reduce bool `json:"reduce"`
}

// NeutralSignal is the fail-open answer: no timing opinion, allow buy
var NeutralSignal = Signal{Buy: true}

// Actionable reports whether the signal allows a buy
func (s Signal) Actionable() bool {
	return s.Buy && !s.Sell
}

// Performance is the cumulative trade accumulator
type Performance struct {
	TradeCount  int     `json:"trade_count"`
	WinCount    int     `json:"win_count"`
	WinRate     float64 `json:"win_rate"`
	TotalReturn float64 `json:"total_return"`
	AvgReturn   float64 `json:"avg_return"`
}

// TradeRecord is one completed round trip
type TradeRecord struct {
	ID         string    `json:"id"`
	Symbol     string    `json:"symbol"`
	EntryPrice float64   `json:"entry_price"`
	ExitPrice  float64   `json:"exit_price"`
	Volume     int64     `json:"volume"`
	Returns    float64   `json:"returns"`
	Reason     string    `json:"reason"`
	EntryDate  string    `json:"entry_date"`
	ExitTime   time.Time `json:"exit_time"`
}

// DailySnapshot is emitted at market close
// ⭐ SSOT: 일별 성과 스냅샷
type DailySnapshot struct {
	StrategyID  string           `json:"strategy_id"`
	Date        string           `json:"date"` // YYYY-MM-DD
	TotalAssets float64          `json:"total_assets"`
	Cash        float64          `json:"cash"`
	MarketValue float64          `json:"market_value"`
	Positions   int              `json:"positions"`
	Selected    []InstrumentInfo `json:"selected"`
	Performance Performance      `json:"performance"`
	CreatedAt   time.Time        `json:"created_at"`
}
