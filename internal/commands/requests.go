// Package commands builds the outbound requests of the gateway and routes
// each one to a logged-on session holding the role it needs.
package commands

import (
	"context"

	"github.com/Aidin1998/fixgate/internal/correlation"
	"github.com/Aidin1998/fixgate/internal/session"
	"github.com/Aidin1998/fixgate/internal/trading"
	"github.com/shopspring/decimal"
)

// Request is an outbound request ready to be encoded by the engine adapter.
type Request interface {
	// Kind names the request for correlation and metrics.
	Kind() correlation.Kind
	// Role is the session role that must carry the request.
	Role() session.Role
	// ID is the correlation id attached when the request was built.
	ID() string
}

// Sender hands a built request to the protocol engine.
type Sender interface {
	Send(ctx context.Context, req Request, to session.ID) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, req Request, to session.ID) error

// Send implements Sender.
func (f SenderFunc) Send(ctx context.Context, req Request, to session.ID) error {
	return f(ctx, req, to)
}

// SubscribeMarketData asks for snapshot plus updates of one symbol.
type SubscribeMarketData struct {
	RequestID string
	Symbol    string
}

// UnsubscribeMarketData cancels a subscription. The broker identifies the
// subscription by the MDReqID it was opened with.
type UnsubscribeMarketData struct {
	RequestID      string
	Symbol         string
	SubscriptionID string
}

// NewOrder places a market, limit or stop order.
type NewOrder struct {
	RequestID   string
	ClOrdID     string
	Account     string
	Symbol      string
	Side        trading.Side
	Type        trading.OrderType
	Qty         decimal.Decimal
	Price       decimal.Decimal
	StopPrice   decimal.Decimal
	TimeInForce trading.TimeInForce
}

// ClosePosition closes one broker position with an opposite market order.
type ClosePosition struct {
	RequestID  string
	ClOrdID    string
	PositionID string
	Account    string
	Symbol     string
	// Side is the closing side, opposite to the position.
	Side trading.Side
	Qty  decimal.Decimal
}

// CancelOrder asks the broker to cancel an active order.
type CancelOrder struct {
	RequestID   string
	ClOrdID     string
	OrigClOrdID string
	OrderID     string
	Account     string
	Symbol      string
	Side        trading.Side
	Qty         decimal.Decimal
}

// QueryPositions requests the open positions of one account.
type QueryPositions struct {
	RequestID string
	Account   string
}

// QueryAccounts requests a collateral report per account.
type QueryAccounts struct {
	RequestID string
}

// QueryTradingStatus requests the trading session status, which carries the
// security list and the broker system parameters.
type QueryTradingStatus struct {
	RequestID string
}

func (r SubscribeMarketData) Kind() correlation.Kind   { return correlation.KindSubscribe }
func (r UnsubscribeMarketData) Kind() correlation.Kind { return correlation.KindUnsubscribe }
func (r NewOrder) Kind() correlation.Kind              { return correlation.KindNewOrder }
func (r ClosePosition) Kind() correlation.Kind         { return correlation.KindClosePosition }
func (r CancelOrder) Kind() correlation.Kind           { return correlation.KindCancelOrder }
func (r QueryPositions) Kind() correlation.Kind        { return correlation.KindPositions }
func (r QueryAccounts) Kind() correlation.Kind         { return correlation.KindAccounts }
func (r QueryTradingStatus) Kind() correlation.Kind    { return correlation.KindTradingStatus }

func (r SubscribeMarketData) Role() session.Role   { return session.MarketData }
func (r UnsubscribeMarketData) Role() session.Role { return session.MarketData }
func (r NewOrder) Role() session.Role              { return session.Order }
func (r ClosePosition) Role() session.Role         { return session.Order }
func (r CancelOrder) Role() session.Role           { return session.Order }
func (r QueryPositions) Role() session.Role        { return session.Order }
func (r QueryAccounts) Role() session.Role         { return session.Order }
func (r QueryTradingStatus) Role() session.Role    { return session.Order }

func (r SubscribeMarketData) ID() string   { return r.RequestID }
func (r UnsubscribeMarketData) ID() string { return r.RequestID }
func (r NewOrder) ID() string              { return r.RequestID }
func (r ClosePosition) ID() string         { return r.RequestID }
func (r CancelOrder) ID() string           { return r.RequestID }
func (r QueryPositions) ID() string        { return r.RequestID }
func (r QueryAccounts) ID() string         { return r.RequestID }
func (r QueryTradingStatus) ID() string    { return r.RequestID }
