package contracts

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MockMarket is an in-memory Market and Clock for tests and dry runs.
// Orders are recorded, not filled, unless FillOnSubmit is set.
// ⭐ 실제 운영에서는 backtest.Simulator 또는 브로커 어댑터 사용
type MockMarket struct {
	mu sync.Mutex

	now          time.Time
	cash         float64
	positions    map[string]Position
	bars         map[string][]Bar
	quotes       map[string]Quote
	constituents map[string][]string
	instruments  map[string]Instrument
	orders       []OrderRequest

	historyCalls int

	// Failure injection
	HistoryErr error
	QuoteErr   error
	AccountErr error
	SubmitErr  error

	// AckStatus overrides the SUBMITTED status returned by SubmitOrder
	AckStatus Status

	// FillOnSubmit applies buy/sell orders to cash and positions at the quote
	FillOnSubmit bool
	// OnSubmit is invoked after an order is recorded (outside the lock)
	OnSubmit func(req OrderRequest)
}

// NewMockMarket creates a mock market holding cash
func NewMockMarket(now time.Time, cash float64) *MockMarket {
	return &MockMarket{
		now:          now,
		cash:         cash,
		positions:    make(map[string]Position),
		bars:         make(map[string][]Bar),
		quotes:       make(map[string]Quote),
		constituents: make(map[string][]string),
		instruments:  make(map[string]Instrument),
	}
}

// Now implements Clock
func (m *MockMarket) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// SetNow moves the mock clock
func (m *MockMarket) SetNow(t time.Time) {
	m.mu.Lock()
	m.now = t
	m.mu.Unlock()
}

// SetCash sets available cash
func (m *MockMarket) SetCash(cash float64) {
	m.mu.Lock()
	m.cash = cash
	m.mu.Unlock()
}

// SetPosition sets (or with zero volume removes) a holding
func (m *MockMarket) SetPosition(p Position) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.Volume <= 0 {
		delete(m.positions, p.Symbol)
		return
	}
	m.positions[p.Symbol] = p
}

// SetBars sets the daily bars of symbol (any order)
func (m *MockMarket) SetBars(symbol string, bars []Bar) {
	sorted := append([]Bar(nil), bars...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Time.Before(sorted[j].Time) })
	m.mu.Lock()
	m.bars[symbol] = sorted
	m.mu.Unlock()
}

// SetCloses builds one daily bar per close, ending the day before now
func (m *MockMarket) SetCloses(symbol string, closes []float64) {
	end := m.Now().AddDate(0, 0, -1)
	bars := make([]Bar, len(closes))
	for i, c := range closes {
		bars[i] = Bar{
			Time:   end.AddDate(0, 0, i-len(closes)+1),
			Open:   c,
			High:   c,
			Low:    c,
			Close:  c,
			Volume: 1000,
			Amount: 1000 * c,
		}
	}
	m.SetBars(symbol, bars)
}

// SetQuote sets the current quote of symbol
func (m *MockMarket) SetQuote(symbol string, price float64) {
	m.mu.Lock()
	m.quotes[symbol] = Quote{Symbol: symbol, Open: price, High: price, Low: price, Price: price, Time: m.now}
	m.mu.Unlock()
}

// SetConstituents sets the members of an index
func (m *MockMarket) SetConstituents(index string, symbols []string) {
	m.mu.Lock()
	m.constituents[index] = append([]string(nil), symbols...)
	m.mu.Unlock()
}

// SetInstrument registers reference data
func (m *MockMarket) SetInstrument(inst Instrument) {
	m.mu.Lock()
	m.instruments[inst.Symbol] = inst
	m.mu.Unlock()
}

// Orders returns the submitted orders
func (m *MockMarket) Orders() []OrderRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]OrderRequest(nil), m.orders...)
}

// HistoryCalls returns how many History calls were served
func (m *MockMarket) HistoryCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.historyCalls
}

// History implements HistoryProvider
func (m *MockMarket) History(ctx context.Context, symbol string, freq Frequency, start, end time.Time) ([]Bar, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.historyCalls++

	if m.HistoryErr != nil {
		return nil, m.HistoryErr
	}

	var out []Bar
	for _, b := range m.bars[symbol] {
		if b.Time.Before(start) || b.Time.After(end) {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

// Quotes implements QuoteProvider
func (m *MockMarket) Quotes(ctx context.Context, symbols []string) (map[string]Quote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.QuoteErr != nil {
		return nil, m.QuoteErr
	}

	out := make(map[string]Quote, len(symbols))
	for _, s := range symbols {
		if q, ok := m.quotes[s]; ok {
			out[s] = q
		}
	}
	return out, nil
}

// Account implements AccountProvider. Positions are marked at the quote when one exists.
func (m *MockMarket) Account(ctx context.Context) (AccountSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.AccountErr != nil {
		return AccountSnapshot{}, m.AccountErr
	}

	snap := AccountSnapshot{Cash: m.cash}
	for _, p := range m.positions {
		if q, ok := m.quotes[p.Symbol]; ok && q.Price > 0 {
			p.Price = q.Price
		}
		snap.Positions = append(snap.Positions, p)
	}
	sort.Slice(snap.Positions, func(i, j int) bool { return snap.Positions[i].Symbol < snap.Positions[j].Symbol })
	return snap, nil
}

// SubmitOrder implements OrderRouter
func (m *MockMarket) SubmitOrder(ctx context.Context, req OrderRequest) (OrderAck, error) {
	m.mu.Lock()
	if m.SubmitErr != nil {
		err := m.SubmitErr
		m.mu.Unlock()
		return OrderAck{}, err
	}

	m.orders = append(m.orders, req)
	id := fmt.Sprintf("MOCK-%d", len(m.orders))

	if m.FillOnSubmit {
		m.fillLocked(req)
	}
	hook := m.OnSubmit
	status := StatusSubmitted
	if m.AckStatus != "" {
		status = m.AckStatus
	}
	m.mu.Unlock()

	if hook != nil {
		hook(req)
	}

	return OrderAck{OrderID: id, ClientOrderID: req.ClientOrderID, Status: status}, nil
}

func (m *MockMarket) fillLocked(req OrderRequest) {
	price := req.Price
	if q, ok := m.quotes[req.Symbol]; ok && (price == 0 || req.IsMarketOrder()) {
		price = q.Price
	}

	pos := m.positions[req.Symbol]
	pos.Symbol = req.Symbol
	switch req.Side {
	case OrderSideBuy:
		cost := float64(req.Volume) * price
		total := float64(pos.Volume)*pos.VWAP + cost
		pos.Volume += req.Volume
		pos.VWAP = total / float64(pos.Volume)
		m.cash -= cost
	case OrderSideSell:
		vol := req.Volume
		if vol > pos.Volume {
			vol = pos.Volume
		}
		pos.Volume -= vol
		m.cash += float64(vol) * price
	}
	pos.Price = price
	pos.UpdatedAt = m.now

	if pos.Volume <= 0 {
		delete(m.positions, req.Symbol)
		return
	}
	m.positions[req.Symbol] = pos
}

// IndexConstituents implements ReferenceData
func (m *MockMarket) IndexConstituents(ctx context.Context, index string, date time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.constituents[index]...), nil
}

// Instruments implements ReferenceData
func (m *MockMarket) Instruments(ctx context.Context, symbols []string) ([]Instrument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Instrument, 0, len(symbols))
	for _, s := range symbols {
		if inst, ok := m.instruments[s]; ok {
			out = append(out, inst)
		}
	}
	return out, nil
}
