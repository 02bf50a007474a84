package backtest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/wangshuile/jb-quant/internal/contracts"
	"github.com/wangshuile/jb-quant/internal/s0_data"
	"github.com/wangshuile/jb-quant/pkg/logger"
)

const (
	// quoteSwitchHour 이전에는 시가, 이후에는 종가로 호가 제공
	quoteSwitchHour = 12
	// closeVisibleHour 이후에는 당일 일봉이 History 에 포함됨
	closeVisibleHour = 15
)

// SimConfig holds fill-model parameters
type SimConfig struct {
	InitialCash      float64
	CommissionRatio  float64 // 체결 금액 대비 수수료
	SlippageRatio    float64 // 매수 +, 매도 −
	TransactionRatio float64 // 요청 수량 대비 체결 비율 (0 → 1)
}

// OrderHandler receives fills and rejections as they happen
type OrderHandler func(ctx context.Context, event contracts.OrderEvent)

// Holding is one line of the end-of-run position report
type Holding struct {
	Symbol string  `json:"symbol"`
	Volume int64   `json:"volume"`
	VWAP   float64 `json:"vwap"`
	Price  float64 `json:"price"`
	Value  float64 `json:"value"`
}

type simPosition struct {
	volume    int64
	cost      decimal.Decimal // 누적 매입 원가 (수수료 제외)
	updatedAt time.Time
}

// Simulator is an in-memory daily market over a loaded BarSet.
// It implements contracts.Market and contracts.Clock.
// ⭐ SSOT: 백테스팅/페이퍼 체결 시뮬레이션은 여기서만
type Simulator struct {
	mu        sync.Mutex
	set       *s0_data.BarSet
	config    SimConfig
	loc       *time.Location
	now       time.Time
	cash      decimal.Decimal
	positions map[string]*simPosition
	events    []contracts.OrderEvent
	handler   OrderHandler
	wall      contracts.Clock // 설정 시 SetNow 대신 실제 시계 사용 (페이퍼 모드)
	logger    *logger.Logger

	totalCommission decimal.Decimal
}

// NewSimulator creates a simulator funded with config.InitialCash
func NewSimulator(set *s0_data.BarSet, config SimConfig, loc *time.Location, log *logger.Logger) *Simulator {
	if config.TransactionRatio <= 0 || config.TransactionRatio > 1 {
		config.TransactionRatio = 1
	}
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = logger.Nop()
	}
	if set == nil {
		set = s0_data.NewBarSet()
	}
	set.Sort()

	return &Simulator{
		set:       set,
		config:    config,
		loc:       loc,
		cash:      decimal.NewFromFloat(config.InitialCash),
		positions: make(map[string]*simPosition),
		logger:    log.Component("simulator"),
	}
}

// ============================================================================
// Clock
// ============================================================================

// Now implements contracts.Clock
func (s *Simulator) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nowLocked()
}

// FollowClock makes the simulator read time from c (paper trading)
func (s *Simulator) FollowClock(c contracts.Clock) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wall = c
}

func (s *Simulator) nowLocked() time.Time {
	if s.wall != nil {
		return s.wall.Now().In(s.loc)
	}
	return s.now
}

// SetNow moves the simulated clock
func (s *Simulator) SetNow(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = t.In(s.loc)
}

// Replace swaps in a newly loaded bar set; cash and positions are kept
func (s *Simulator) Replace(set *s0_data.BarSet) {
	if set == nil {
		return
	}
	set.Sort()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set = set
}

// OnOrder registers the fill handler (normally Orchestrator.OnOrderStatus)
func (s *Simulator) OnOrder(h OrderHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}

// ============================================================================
// Market data
// ============================================================================

// History returns bars in [start, end] visible at the simulated time:
// strictly before today, plus today's bar once the close is known.
func (s *Simulator) History(ctx context.Context, symbol string, freq contracts.Frequency, start, end time.Time) ([]contracts.Bar, error) {
	if freq != "" && freq != contracts.FrequencyDaily {
		return nil, fmt.Errorf("unsupported frequency %q", freq)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.today()
	if s.nowLocked().Hour() >= closeVisibleHour {
		cutoff = cutoff.AddDate(0, 0, 1)
	}

	bars := s.set.Bars[symbol]
	out := make([]contracts.Bar, 0)
	for _, b := range bars {
		if !b.Time.Before(cutoff) {
			break
		}
		if b.Time.Before(start) || b.Time.After(end) {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

// Quotes returns today's open before noon and the close after.
// Symbols without a bar today (suspended) are omitted.
func (s *Simulator) Quotes(ctx context.Context, symbols []string) (map[string]contracts.Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]contracts.Quote, len(symbols))
	for _, sym := range symbols {
		if q, ok := s.quoteLocked(sym); ok {
			out[sym] = q
		}
	}
	return out, nil
}

// IndexConstituents implements contracts.ReferenceData
func (s *Simulator) IndexConstituents(ctx context.Context, index string, date time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	members, ok := s.set.Constituents[index]
	if !ok {
		return nil, fmt.Errorf("unknown index %s", index)
	}
	return append([]string(nil), members...), nil
}

// Instruments implements contracts.ReferenceData. Unknown symbols get a bare entry.
func (s *Simulator) Instruments(ctx context.Context, symbols []string) ([]contracts.Instrument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]contracts.Instrument, 0, len(symbols))
	for _, sym := range symbols {
		inst, ok := s.set.Instruments[sym]
		if !ok {
			inst = contracts.Instrument{Symbol: sym}
		}
		out = append(out, inst)
	}
	return out, nil
}

// ============================================================================
// Account / orders
// ============================================================================

// Account marks every position at the latest visible price
func (s *Simulator) Account(ctx context.Context) (contracts.AccountSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := contracts.AccountSnapshot{
		Cash:      s.cash.InexactFloat64(),
		Positions: make([]contracts.Position, 0, len(s.positions)),
	}
	for _, sym := range s.heldSymbolsLocked() {
		pos := s.positions[sym]
		snap.Positions = append(snap.Positions, contracts.Position{
			Symbol:    sym,
			Volume:    pos.volume,
			Price:     s.markLocked(sym),
			VWAP:      pos.cost.Div(decimal.NewFromInt(pos.volume)).InexactFloat64(),
			UpdatedAt: pos.updatedAt,
		})
	}
	return snap, nil
}

// SubmitOrder fills immediately at the current quote adjusted by slippage.
// The handler is called after the state change, outside the lock.
func (s *Simulator) SubmitOrder(ctx context.Context, req contracts.OrderRequest) (contracts.OrderAck, error) {
	s.mu.Lock()
	event := s.fillLocked(req)
	s.events = append(s.events, event)
	handler := s.handler
	s.mu.Unlock()

	if event.Status != contracts.StatusFilled {
		s.logger.WithFields(map[string]interface{}{
			"symbol": req.Symbol,
			"side":   req.Side,
			"status": event.Status,
			"reason": event.RejectReason,
		}).Debug("Order not fully filled")
	}

	if handler != nil {
		handler(ctx, event)
	}

	return contracts.OrderAck{
		OrderID:       event.OrderID,
		ClientOrderID: req.ClientOrderID,
		Status:        event.Status,
		Message:       event.RejectReason,
	}, nil
}

func (s *Simulator) fillLocked(req contracts.OrderRequest) contracts.OrderEvent {
	now := s.nowLocked()
	event := contracts.OrderEvent{
		OrderID:       uuid.NewString(),
		ClientOrderID: req.ClientOrderID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Type:          req.Type,
		Effect:        req.Effect,
		Price:         req.Price,
		Volume:        req.Volume,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	reject := func(reason string) contracts.OrderEvent {
		event.Status = contracts.StatusRejected
		event.RejectReason = reason
		return event
	}

	if req.Volume <= 0 {
		return reject("non-positive volume")
	}
	q, ok := s.quoteLocked(req.Symbol)
	if !ok {
		return reject("no quote")
	}

	price := decimal.NewFromFloat(q.Price)
	slip := decimal.NewFromFloat(s.config.SlippageRatio)
	one := decimal.NewFromInt(1)
	if req.Side == contracts.OrderSideBuy {
		price = price.Mul(one.Add(slip))
	} else {
		price = price.Mul(one.Sub(slip))
	}

	if req.Type == contracts.OrderTypeLimit && req.Price > 0 {
		limit := decimal.NewFromFloat(req.Price)
		marketable := (req.Side == contracts.OrderSideBuy && limit.GreaterThanOrEqual(price)) ||
			(req.Side == contracts.OrderSideSell && limit.LessThanOrEqual(price))
		if !marketable {
			event.Status = contracts.StatusCanceled
			event.RejectReason = "limit price not reached"
			return event
		}
	}

	volume := int64(float64(req.Volume) * s.config.TransactionRatio)
	pos := s.positions[req.Symbol]
	if req.Side == contracts.OrderSideSell {
		if pos == nil || pos.volume <= 0 {
			return reject("no position")
		}
		if volume > pos.volume {
			volume = pos.volume
		}
	}
	if volume <= 0 {
		return reject("volume rounds to zero")
	}

	amount := price.Mul(decimal.NewFromInt(volume))
	commission := amount.Mul(decimal.NewFromFloat(s.config.CommissionRatio))

	switch req.Side {
	case contracts.OrderSideBuy:
		total := amount.Add(commission)
		if total.GreaterThan(s.cash) {
			return reject("insufficient cash")
		}
		s.cash = s.cash.Sub(total)
		if pos == nil {
			pos = &simPosition{}
			s.positions[req.Symbol] = pos
		}
		pos.volume += volume
		pos.cost = pos.cost.Add(amount)
	case contracts.OrderSideSell:
		avg := pos.cost.Div(decimal.NewFromInt(pos.volume))
		s.cash = s.cash.Add(amount.Sub(commission))
		pos.volume -= volume
		pos.cost = pos.cost.Sub(avg.Mul(decimal.NewFromInt(volume)))
		if pos.volume == 0 {
			delete(s.positions, req.Symbol)
		}
	default:
		return reject(fmt.Sprintf("unknown side %q", req.Side))
	}
	if pos.volume > 0 {
		pos.updatedAt = now
	}
	s.totalCommission = s.totalCommission.Add(commission)

	event.FilledVolume = volume
	event.FilledVWAP = price.InexactFloat64()
	event.FilledAmount = amount.InexactFloat64()
	event.Commission = commission.InexactFloat64()
	if volume == req.Volume {
		event.Status = contracts.StatusFilled
	} else {
		event.Status = contracts.StatusPartiallyFilled
	}
	return event
}

// ============================================================================
// Reporting
// ============================================================================

// Events returns every order event emitted so far
func (s *Simulator) Events() []contracts.OrderEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]contracts.OrderEvent(nil), s.events...)
}

// TotalCommission returns the commission paid so far
func (s *Simulator) TotalCommission() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalCommission.InexactFloat64()
}

// TopHoldings returns up to n positions by market value, largest first
func (s *Simulator) TopHoldings(n int) []Holding {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Holding, 0, len(s.positions))
	for _, sym := range s.heldSymbolsLocked() {
		pos := s.positions[sym]
		price := s.markLocked(sym)
		out = append(out, Holding{
			Symbol: sym,
			Volume: pos.volume,
			VWAP:   pos.cost.Div(decimal.NewFromInt(pos.volume)).InexactFloat64(),
			Price:  price,
			Value:  float64(pos.volume) * price,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Value > out[j].Value })
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// ============================================================================
// Helpers
// ============================================================================

func (s *Simulator) today() time.Time {
	now := s.nowLocked()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)
}

// barOnLocked finds symbol's bar dated today
func (s *Simulator) barOnLocked(symbol string) (contracts.Bar, bool) {
	bars := s.set.Bars[symbol]
	today := s.today()
	i := sort.Search(len(bars), func(i int) bool { return !bars[i].Time.Before(today) })
	if i < len(bars) && sameDay(bars[i].Time.In(s.loc), today) {
		return bars[i], true
	}
	return contracts.Bar{}, false
}

func (s *Simulator) quoteLocked(symbol string) (contracts.Quote, bool) {
	b, ok := s.barOnLocked(symbol)
	if !ok {
		return contracts.Quote{}, false
	}

	now := s.nowLocked()
	q := contracts.Quote{Symbol: symbol, Open: b.Open, Time: now}
	if now.Hour() < quoteSwitchHour {
		q.Price, q.High, q.Low = b.Open, b.Open, b.Open
	} else {
		q.Price, q.High, q.Low = b.Close, b.High, b.Low
		q.Volume, q.Amount = b.Volume, b.Amount
	}
	return q, true
}

// markLocked prices a holding at today's quote, else the last close before today
func (s *Simulator) markLocked(symbol string) float64 {
	if q, ok := s.quoteLocked(symbol); ok {
		return q.Price
	}
	bars := s.set.Bars[symbol]
	today := s.today()
	i := sort.Search(len(bars), func(i int) bool { return !bars[i].Time.Before(today) })
	if i > 0 {
		return bars[i-1].Close
	}
	pos := s.positions[symbol]
	return pos.cost.Div(decimal.NewFromInt(pos.volume)).InexactFloat64()
}

func (s *Simulator) heldSymbolsLocked() []string {
	out := make([]string, 0, len(s.positions))
	for sym, pos := range s.positions {
		if pos.volume > 0 {
			out = append(out, sym)
		}
	}
	sort.Strings(out)
	return out
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

var (
	_ contracts.Market = (*Simulator)(nil)
	_ contracts.Clock  = (*Simulator)(nil)
)
