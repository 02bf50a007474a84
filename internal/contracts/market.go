package contracts

import (
	"context"
	"time"
)

// Frequency of a bar series
type Frequency string

const (
	FrequencyDaily Frequency = "1d"
)

// Bar is one OHLCVA bar
type Bar struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
	Amount float64   `json:"amount"`
}

// Closes extracts closing prices in order
func Closes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// Quote is a point-in-time snapshot for one symbol
type Quote struct {
	Symbol string    `json:"symbol"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Price  float64   `json:"price"`
	Volume float64   `json:"volume"`
	Amount float64   `json:"amount"`
	Time   time.Time `json:"time"`
}

// Instrument is reference data used for universe filtering
type Instrument struct {
	Symbol    string  `json:"symbol"`
	Name      string  `json:"name"`
	Sector    string  `json:"sector,omitempty"`
	MarketCap float64 `json:"market_cap,omitempty"`
}

// Position is a broker-reported holding
type Position struct {
	Symbol    string    `json:"symbol"`
	Volume    int64     `json:"volume"`
	Price     float64   `json:"price"` // 최신 평가가격
	VWAP      float64   `json:"vwap"`  // 평균 매입가
	UpdatedAt time.Time `json:"updated_at"`
}

// Value returns volume × price
func (p Position) Value() float64 {
	return float64(p.Volume) * p.Price
}

// AccountSnapshot is the broker-reported cash and positions
type AccountSnapshot struct {
	Cash      float64    `json:"cash"`
	Positions []Position `json:"positions"`
}

// MarketValue returns Σ volume × price over all positions
func (a AccountSnapshot) MarketValue() float64 {
	total := 0.0
	for _, p := range a.Positions {
		total += p.Value()
	}
	return total
}

// TotalAssets returns cash + market value
func (a AccountSnapshot) TotalAssets() float64 {
	return a.Cash + a.MarketValue()
}

// Position finds the holding of symbol
func (a AccountSnapshot) Position(symbol string) (Position, bool) {
	for _, p := range a.Positions {
		if p.Symbol == symbol {
			return p, true
		}
	}
	return Position{}, false
}

// HeldCount counts positions with non-zero volume
func (a AccountSnapshot) HeldCount() int {
	n := 0
	for _, p := range a.Positions {
		if p.Volume > 0 {
			n++
		}
	}
	return n
}

// ============================================================================
// Market capabilities
// ============================================================================

// Clock supplies the engine's notion of now (wall clock or simulated)
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock in a fixed location
type SystemClock struct {
	Location *time.Location
}

// Now returns the current time
func (c SystemClock) Now() time.Time {
	if c.Location == nil {
		return time.Now()
	}
	return time.Now().In(c.Location)
}

// HistoryProvider returns bars in [start, end]. Suspended or delisted
// symbols yield an empty slice, not an error.
type HistoryProvider interface {
	History(ctx context.Context, symbol string, freq Frequency, start, end time.Time) ([]Bar, error)
}

// QuoteProvider returns current quotes keyed by symbol
type QuoteProvider interface {
	Quotes(ctx context.Context, symbols []string) (map[string]Quote, error)
}

// AccountProvider returns the account snapshot
type AccountProvider interface {
	Account(ctx context.Context) (AccountSnapshot, error)
}

// OrderRouter submits orders (fire-and-forget, fills are reported via OrderEvent)
type OrderRouter interface {
	SubmitOrder(ctx context.Context, req OrderRequest) (OrderAck, error)
}

// ReferenceData serves index membership and instrument names
type ReferenceData interface {
	IndexConstituents(ctx context.Context, index string, date time.Time) ([]string, error)
	Instruments(ctx context.Context, symbols []string) ([]Instrument, error)
}

// Market is the full capability set of the market/broker collaborator
// ⭐ SSOT: 외부 시장/브로커 경계는 이 인터페이스뿐
type Market interface {
	HistoryProvider
	QuoteProvider
	AccountProvider
	OrderRouter
	ReferenceData
}
