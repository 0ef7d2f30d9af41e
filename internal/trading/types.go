// Package trading tracks the lifecycle of orders placed through the gateway
// and the open positions reported by the broker.
package trading

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side of an order or position.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Sign returns +1 for buy/long and -1 for sell/short.
func (s Side) Sign() int64 {
	if s == SideSell {
		return -1
	}
	return 1
}

// Opposite returns the side that closes a position held on s.
func (s Side) Opposite() Side {
	if s == SideSell {
		return SideBuy
	}
	return SideSell
}

// OrderType selects how an order is priced.
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
	OrderTypeStop   OrderType = "STOP"
)

// TimeInForce of an order.
type TimeInForce string

const (
	TimeInForceGTC TimeInForce = "GTC"
	TimeInForceDay TimeInForce = "DAY"
	TimeInForceIOC TimeInForce = "IOC"
	TimeInForceFOK TimeInForce = "FOK"
)

// Status is the lifecycle state of an order.
type Status int

const (
	StatusNew Status = iota
	StatusPartiallyFilled
	StatusFilled
	StatusCancelled
	StatusRejected
)

func (s Status) String() string {
	switch s {
	case StatusNew:
		return "NEW"
	case StatusPartiallyFilled:
		return "PARTIALLY_FILLED"
	case StatusFilled:
		return "FILLED"
	case StatusCancelled:
		return "CANCELLED"
	case StatusRejected:
		return "REJECTED"
	default:
		return "UNKNOWN"
	}
}

// MarshalText renders the status name in JSON.
func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusFilled || s == StatusCancelled || s == StatusRejected
}

// rank orders statuses: New < PartiallyFilled < terminal.
func (s Status) rank() int {
	switch s {
	case StatusNew:
		return 0
	case StatusPartiallyFilled:
		return 1
	default:
		return 2
	}
}

// ExecType is the FIX ExecType(150) value of an execution report.
type ExecType byte

const (
	ExecNew            ExecType = '0'
	ExecPartialFill    ExecType = '1'
	ExecFill           ExecType = '2'
	ExecDoneForDay     ExecType = '3'
	ExecCanceled       ExecType = '4'
	ExecReplaced       ExecType = '5'
	ExecPendingCancel  ExecType = '6'
	ExecStopped        ExecType = '7'
	ExecRejected       ExecType = '8'
	ExecPendingNew     ExecType = 'A'
	ExecExpired        ExecType = 'C'
	ExecPendingReplace ExecType = 'E'
	ExecTrade          ExecType = 'F'
	ExecOrderStatus    ExecType = 'I'
)

func (e ExecType) String() string { return string([]byte{byte(e)}) }

func (e ExecType) fill() bool {
	return e == ExecTrade || e == ExecPartialFill || e == ExecFill
}

// OrdStatus is the FIX OrdStatus(39) value; used for order status reports.
type OrdStatus byte

const (
	OrdStatusNew             OrdStatus = '0'
	OrdStatusPartiallyFilled OrdStatus = '1'
	OrdStatusFilled          OrdStatus = '2'
	OrdStatusCanceled        OrdStatus = '4'
	OrdStatusRejected        OrdStatus = '8'
	OrdStatusExpired         OrdStatus = 'C'
)

// Order is an order placed through, or reported to, the gateway.
type Order struct {
	// ClOrdID is the client reference id and the book key.
	ClOrdID string `json:"cl_ord_id"`
	// OrderID is the broker-assigned id, known after the first report.
	OrderID string `json:"order_id,omitempty"`
	// RequestID is the correlation id of the request that placed the order.
	RequestID   string          `json:"request_id,omitempty"`
	Account     string          `json:"account"`
	Symbol      string          `json:"symbol"`
	Side        Side            `json:"side"`
	Type        OrderType       `json:"type"`
	TimeInForce TimeInForce     `json:"time_in_force"`
	Qty         decimal.Decimal `json:"qty"`
	Price       decimal.Decimal `json:"price"`
	StopPrice   decimal.Decimal `json:"stop_price"`
	// PositionID is set on orders that close a specific position.
	PositionID string          `json:"position_id,omitempty"`
	Status     Status          `json:"status"`
	CumQty     decimal.Decimal `json:"cum_qty"`
	LeavesQty  decimal.Decimal `json:"leaves_qty"`
	AvgPx      decimal.Decimal `json:"avg_px"`
	Text       string          `json:"text,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Execution is one fill. Executions are append-only.
type Execution struct {
	ExecID    string          `json:"exec_id"`
	ClOrdID   string          `json:"cl_ord_id"`
	OrderID   string          `json:"order_id"`
	Account   string          `json:"account"`
	Symbol    string          `json:"symbol"`
	Side      Side            `json:"side"`
	Qty       decimal.Decimal `json:"qty"`
	Price     decimal.Decimal `json:"price"`
	Timestamp time.Time       `json:"timestamp"`
}

// ExecutionReport carries the fields of an inbound execution report.
type ExecutionReport struct {
	ClOrdID      string
	OrigClOrdID  string
	OrderID      string
	ExecID       string
	ExecType     ExecType
	OrdStatus    OrdStatus
	Account      string
	Symbol       string
	Side         Side
	OrdType      OrderType
	OrderQty     decimal.Decimal
	Price        decimal.Decimal
	StopPrice    decimal.Decimal
	CumQty       decimal.Decimal
	LeavesQty    decimal.Decimal
	LastQty      decimal.Decimal
	LastPx       decimal.Decimal
	AvgPx        decimal.Decimal
	PositionID   string
	Text         string
	TransactTime time.Time
}

// Transition describes the effect of one execution report.
type Transition struct {
	Order     Order
	From      Status
	To        Status
	Changed   bool
	Adopted   bool
	Execution *Execution
}

// Position is an open position reported by the broker.
type Position struct {
	PositionID string          `json:"position_id"`
	AccountID  string          `json:"account_id"`
	Symbol     string          `json:"symbol"`
	Side       Side            `json:"side"`
	Qty        decimal.Decimal `json:"qty"`
	OpenPrice  decimal.Decimal `json:"open_price"`
	OpenTime   time.Time       `json:"open_time"`
	Currency   string          `json:"currency,omitempty"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// PositionReport carries the fields of an inbound position report.
type PositionReport struct {
	PositionID string
	AccountID  string
	Symbol     string
	Side       Side
	Qty        decimal.Decimal
	OpenPrice  decimal.Decimal
	OpenTime   time.Time
	Currency   string
	RequestID  string
	// Closed is set on reports describing a position that has been closed.
	Closed bool
}
