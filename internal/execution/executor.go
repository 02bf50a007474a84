package execution

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/wangshuile/jb-quant/internal/contracts"
	"github.com/wangshuile/jb-quant/internal/risk"
	"github.com/wangshuile/jb-quant/pkg/logger"
	"github.com/wangshuile/jb-quant/pkg/metrics"
)

// ErrReduceNotSupported is returned by Reduce on every current executor
var ErrReduceNotSupported = errors.New("reduce not supported")

// Executor tags
const (
	TypeMarket = "base"
	TypeLimit  = "limit"
	TypeVWAP   = "vwap"
)

// Rejection reasons (metrics label)
const (
	RejectNoQuote    = "no_quote"
	RejectNoAccount  = "no_account"
	RejectZeroAmount = "zero_amount"
	RejectBelowLot   = "below_lot"
	RejectRiskLimit  = "risk_limit"
	RejectSubmit     = "submit_failed"
	RejectT1         = "t1_restricted"
	RejectNoPosition = "no_position"
)

// Config holds sizing and pricing parameters
type Config struct {
	LotSize      int64   // 100 주
	CashReserve  float64 // 0.05 → 현금의 95% 까지만 사용
	LimitMarkup  float64 // 0.002 → 호가 대비 +0.2%
	VWAPSessions int     // 5
	TickSize     float64 // 0.01
}

// DefaultConfig returns the A-share execution parameters
func DefaultConfig() Config {
	return Config{
		LotSize:      100,
		CashReserve:  0.05,
		LimitMarkup:  0.002,
		VWAPSessions: 5,
		TickSize:     0.01,
	}
}

// Executor turns an approved (symbol, weight) into an order
type Executor interface {
	Name() string
	Buy(ctx context.Context, symbol string, weight float64) bool
	Sell(ctx context.Context, symbol string, reason string) bool
	Reduce(ctx context.Context, symbol string, weight float64) (bool, error)
}

// Broker is the account and order side of the market
type Broker interface {
	contracts.AccountProvider
	contracts.OrderRouter
}

// DataSource is the data manager as seen by execution
type DataSource interface {
	Quote(ctx context.Context, symbol string) (contracts.Quote, error)
	History(ctx context.Context, symbol string, count int) ([]contracts.Bar, error)
}

// New builds the executor named by kind
// ⭐ SSOT: 주문 실행기 선택은 여기서만
func New(kind string, config Config, broker Broker, data DataSource, riskMgr risk.Manager, rec *metrics.Recorder, log *logger.Logger) (Executor, error) {
	base := newMarketExecutor(config, broker, data, riskMgr, rec, log)

	switch strings.ToLower(strings.TrimSpace(kind)) {
	case TypeMarket, "market", "":
		return base, nil
	case TypeLimit:
		return &LimitExecutor{MarketExecutor: base.named(TypeLimit)}, nil
	case TypeVWAP:
		return &VWAPExecutor{MarketExecutor: base.named(TypeVWAP)}, nil
	default:
		return nil, fmt.Errorf("unknown execution type %q", kind)
	}
}

// ============================================================================
// Sizing
// ============================================================================

// PlanVolume sizes a buy: amount = min(total·weight, cash·(1−reserve)),
// volume = floor(amount/price/lot)·lot. reason is set when no order fits.
func PlanVolume(totalAssets, cash, weight, price float64, config Config) (volume int64, reason string) {
	if price <= 0 || math.IsNaN(price) {
		return 0, RejectNoQuote
	}

	amount := math.Min(totalAssets*weight, cash*(1-config.CashReserve))
	if amount <= 0 {
		return 0, RejectZeroAmount
	}

	lot := config.LotSize
	if lot <= 0 {
		lot = 1
	}
	volume = int64(math.Floor(amount/price/float64(lot))) * lot
	if volume < lot {
		return 0, RejectBelowLot
	}
	return volume, ""
}

// RoundToTick rounds price to the nearest tick
func RoundToTick(price, tick float64) float64 {
	if tick <= 0 {
		return price
	}
	d := decimal.NewFromFloat(price).Div(decimal.NewFromFloat(tick)).Round(0).Mul(decimal.NewFromFloat(tick))
	f, _ := d.Float64()
	return f
}

// RoundUpToTick rounds price up to the next tick. Buy limits use it so a
// markup smaller than half a tick still lands above the quote.
func RoundUpToTick(price, tick float64) float64 {
	if tick <= 0 {
		return price
	}
	// 2.00×1.002=2.004 → 2.01 (반올림이면 2.00 으로 마크업 소실)
	// Round(6): 12.000000000000002 같은 부동소수 잡음은 올리지 않음
	d := decimal.NewFromFloat(price).Div(decimal.NewFromFloat(tick)).Round(6).Ceil().Mul(decimal.NewFromFloat(tick))
	f, _ := d.Float64()
	return f
}

// ============================================================================
// Market executor
// ============================================================================

// MarketExecutor buys and sells at market
type MarketExecutor struct {
	name    string
	config  Config
	broker  Broker
	data    DataSource
	risk    risk.Manager
	metrics *metrics.Recorder
	logger  *logger.Logger
}

func newMarketExecutor(config Config, broker Broker, data DataSource, riskMgr risk.Manager, rec *metrics.Recorder, log *logger.Logger) *MarketExecutor {
	if log == nil {
		log = logger.Nop()
	}
	return &MarketExecutor{
		name:    TypeMarket,
		config:  config,
		broker:  broker,
		data:    data,
		risk:    riskMgr,
		metrics: rec,
		logger:  log.Component("execution"),
	}
}

func (e *MarketExecutor) named(name string) *MarketExecutor {
	cp := *e
	cp.name = name
	cp.logger = e.logger.WithField("executor", name)
	return &cp
}

// Name implements Executor
func (e *MarketExecutor) Name() string { return e.name }

// Buy sizes at the quote and submits a market order
func (e *MarketExecutor) Buy(ctx context.Context, symbol string, weight float64) bool {
	q, err := e.data.Quote(ctx, symbol)
	if err != nil {
		return e.reject(symbol, RejectNoQuote, err)
	}
	return e.buyAt(ctx, symbol, weight, q.Price, contracts.OrderTypeMarket, 0)
}

// buyAt runs the shared sizing → risk → submit sequence at reference price ref
func (e *MarketExecutor) buyAt(ctx context.Context, symbol string, weight, ref float64, orderType contracts.OrderType, limit float64) bool {
	snap, err := e.broker.Account(ctx)
	if err != nil {
		return e.reject(symbol, RejectNoAccount, err)
	}

	volume, reason := PlanVolume(snap.TotalAssets(), snap.Cash, weight, ref, e.config)
	if reason != "" {
		return e.reject(symbol, reason, nil)
	}

	if !e.risk.CheckPositionLimits(ctx, symbol, float64(volume)*ref) {
		return e.reject(symbol, RejectRiskLimit, nil)
	}

	req := contracts.OrderRequest{
		ClientOrderID: uuid.NewString(),
		Symbol:        symbol,
		Volume:        volume,
		Side:          contracts.OrderSideBuy,
		Type:          orderType,
		Effect:        contracts.PositionEffectOpen,
		Price:         limit,
	}
	if !e.submit(ctx, req) {
		return false
	}

	e.logger.WithFields(map[string]interface{}{
		"symbol": symbol,
		"volume": volume,
		"price":  ref,
		"amount": float64(volume) * ref,
		"type":   orderType,
	}).Info("Buy order submitted")
	return true
}

// Sell closes the full position at market. Blocked by T+1.
func (e *MarketExecutor) Sell(ctx context.Context, symbol string, reason string) bool {
	if !e.risk.CanSellToday(symbol) {
		return e.reject(symbol, RejectT1, nil)
	}

	snap, err := e.broker.Account(ctx)
	if err != nil {
		return e.reject(symbol, RejectNoAccount, err)
	}
	pos, ok := snap.Position(symbol)
	if !ok || pos.Volume <= 0 {
		return e.reject(symbol, RejectNoPosition, nil)
	}

	price := pos.Price
	if q, err := e.data.Quote(ctx, symbol); err == nil {
		price = q.Price
	}

	req := contracts.OrderRequest{
		ClientOrderID: uuid.NewString(),
		Symbol:        symbol,
		Volume:        pos.Volume,
		Side:          contracts.OrderSideSell,
		Type:          contracts.OrderTypeMarket,
		Effect:        contracts.PositionEffectClose,
	}
	if !e.submit(ctx, req) {
		return false
	}

	e.logger.WithFields(map[string]interface{}{
		"symbol": symbol,
		"volume": pos.Volume,
		"price":  price,
		"reason": reason,
	}).Info("Sell order submitted")
	return true
}

// Reduce implements Executor
func (e *MarketExecutor) Reduce(ctx context.Context, symbol string, weight float64) (bool, error) {
	return false, ErrReduceNotSupported
}

func (e *MarketExecutor) submit(ctx context.Context, req contracts.OrderRequest) bool {
	ack, err := e.broker.SubmitOrder(ctx, req)
	if err != nil {
		e.metrics.RecordError("order_submit")
		return e.reject(req.Symbol, RejectSubmit, err)
	}
	// 종결 상태인데 체결이 아니면 (REJECTED, CANCELED) 주문 실패
	if ack.Status.IsTerminal() && ack.Status != contracts.StatusFilled {
		return e.reject(req.Symbol, RejectSubmit, fmt.Errorf("%s: %s", strings.ToLower(string(ack.Status)), ack.Message))
	}
	e.metrics.RecordOrder(strings.ToLower(string(req.Side)), e.name)
	return true
}

// reject logs and counts a refused order; always false
func (e *MarketExecutor) reject(symbol, reason string, err error) bool {
	e.metrics.RecordRejection(reason)

	log := e.logger.WithFields(map[string]interface{}{
		"symbol": symbol,
		"reason": reason,
	})
	if err != nil {
		log.WithError(err).Warn("order not placed")
	} else {
		log.Debug("order not placed")
	}
	return false
}

// ============================================================================
// Limit executor
// ============================================================================

// LimitExecutor sizes at the quote and bids quote×(1+markup)
type LimitExecutor struct {
	*MarketExecutor
}

// Buy implements Executor
func (e *LimitExecutor) Buy(ctx context.Context, symbol string, weight float64) bool {
	q, err := e.data.Quote(ctx, symbol)
	if err != nil {
		return e.reject(symbol, RejectNoQuote, err)
	}
	limit := RoundUpToTick(q.Price*(1+e.config.LimitMarkup), e.config.TickSize)
	return e.buyAt(ctx, symbol, weight, q.Price, contracts.OrderTypeLimit, limit)
}

// ============================================================================
// VWAP executor
// ============================================================================

// VWAPExecutor sizes and bids at the trailing-session VWAP, falling back
// to a market buy when VWAP is unavailable
type VWAPExecutor struct {
	*MarketExecutor
}

// Buy implements Executor
func (e *VWAPExecutor) Buy(ctx context.Context, symbol string, weight float64) bool {
	bars, err := e.data.History(ctx, symbol, e.config.VWAPSessions)
	if err != nil || len(bars) == 0 {
		e.logger.Symbol(symbol).Debug("no VWAP history, market fallback")
		return e.MarketExecutor.Buy(ctx, symbol, weight)
	}

	vwap := VWAP(bars)
	if vwap <= 0 {
		return e.MarketExecutor.Buy(ctx, symbol, weight)
	}

	if _, err := e.data.Quote(ctx, symbol); err != nil {
		return e.reject(symbol, RejectNoQuote, err)
	}

	return e.buyAt(ctx, symbol, weight, vwap, contracts.OrderTypeLimit, RoundUpToTick(vwap, e.config.TickSize))
}

// VWAP is ΣAmount/ΣVolume, or the last close when there is no volume
func VWAP(bars []contracts.Bar) float64 {
	if len(bars) == 0 {
		return 0
	}
	volume, amount := 0.0, 0.0
	for _, b := range bars {
		volume += b.Volume
		amount += b.Amount
	}
	if volume > 0 {
		return amount / volume
	}
	return bars[len(bars)-1].Close
}
