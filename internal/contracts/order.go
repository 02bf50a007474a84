package contracts

import "time"

// OrderSide represents buy or sell
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// OrderType represents market or limit order
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

// PositionEffect tells the broker whether the order opens or closes a long
type PositionEffect string

const (
	PositionEffectOpen  PositionEffect = "OPEN"
	PositionEffectClose PositionEffect = "CLOSE"
)

// Status represents order status
type Status string

const (
	StatusPending         Status = "PENDING"
	StatusSubmitted       Status = "SUBMITTED"
	StatusPartiallyFilled Status = "PARTIALLY_FILLED"
	StatusFilled          Status = "FILLED"
	StatusCanceled        Status = "CANCELED"
	StatusRejected        Status = "REJECTED"
)

// IsTerminal reports whether no further fills can arrive
func (s Status) IsTerminal() bool {
	switch s {
	case StatusFilled, StatusCanceled, StatusRejected:
		return true
	}
	return false
}

// OrderRequest is the abstract order intent issued by an executor
// ⭐ SSOT: Executor → Market 주문 정보 전달
type OrderRequest struct {
	ClientOrderID string         `json:"client_order_id"`
	Symbol        string         `json:"symbol"`
	Volume        int64          `json:"volume"`
	Side          OrderSide      `json:"side"`
	Type          OrderType      `json:"order_type"`
	Effect        PositionEffect `json:"position_effect"`
	Price         float64        `json:"price"` // 0 for market order
}

// IsMarketOrder checks if the order is a market order
func (o OrderRequest) IsMarketOrder() bool {
	return o.Type == OrderTypeMarket
}

// OrderAck is the synchronous acknowledgement from the market.
// Fills arrive later as OrderEvent.
type OrderAck struct {
	OrderID       string `json:"order_id"`
	ClientOrderID string `json:"client_order_id"`
	Status        Status `json:"status"`
	Message       string `json:"message,omitempty"`
}

// OrderEvent is an asynchronous order-status notification
type OrderEvent struct {
	OrderID       string         `json:"order_id"`
	ClientOrderID string         `json:"client_order_id"`
	Symbol        string         `json:"symbol"`
	Side          OrderSide      `json:"side"`
	Type          OrderType      `json:"order_type"`
	Effect        PositionEffect `json:"position_effect"`
	Status        Status         `json:"status"`
	Price         float64        `json:"price"`
	Volume        int64          `json:"volume"`
	FilledVolume  int64          `json:"filled_volume"`
	FilledVWAP    float64        `json:"filled_vwap"`
	FilledAmount  float64        `json:"filled_amount"`
	Commission    float64        `json:"commission"`
	RejectReason  string         `json:"reject_reason,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// IsFilled checks if the order is completely filled
func (e OrderEvent) IsFilled() bool {
	return e.Status == StatusFilled
}
