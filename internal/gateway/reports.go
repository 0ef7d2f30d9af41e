package gateway

import (
	"github.com/Aidin1998/fixgate/internal/marketdata"
	"github.com/Aidin1998/fixgate/internal/session"
	"github.com/Aidin1998/fixgate/internal/trading"
	"github.com/shopspring/decimal"
)

// TradSesStatus values carried by a TradingSessionStatus.
const (
	TradSesStatusOpen   = 2
	TradSesStatusClosed = 3
)

// CollInquiryStatus value of a rejected collateral inquiry.
const CollInquiryStatusRejected = 4

// TradingSessionStatus reports the trading desk state together with the
// security list and the broker system parameters.
type TradingSessionStatus struct {
	RequestID string
	Status    int
	Text      string
	// Securities is the embedded security list.
	Securities []marketdata.Detail
	// Params are the broker system parameters, by name.
	Params map[string]string
}

// CollateralInquiryAck acknowledges an accounts query.
type CollateralInquiryAck struct {
	RequestID string
	Status    int
	Text      string
}

// CollateralReport describes one account.
type CollateralReport struct {
	RequestID string
	Account   string
	Balance   decimal.Decimal
	Currency  string
	// Parties maps PartySubIDType to PartySubID.
	Parties map[string]string
}

// PositionsAck acknowledges a positions query. Text is set when no
// position matched.
type PositionsAck struct {
	RequestID string
	Account   string
	Result    int
	Status    int
	Text      string
}

// MarketDataSnapshot is a full refresh for one symbol.
type MarketDataSnapshot struct {
	RequestID string
	Snapshot  marketdata.Snapshot
}

// MarketDataReject refuses a market data request.
type MarketDataReject struct {
	RequestID string
	Reason    string
	Text      string
}

// OrderCancelReject refuses a cancel request.
type OrderCancelReject struct {
	ClOrdID     string
	OrigClOrdID string
	OrderID     string
	Reason      string
	Text        string
}

// Admin receives session lifecycle callbacks from the engine.
type Admin interface {
	OnCreate(id session.ID)
	OnLogon(id session.ID)
	OnLogout(id session.ID)
}

// Application receives the typed application messages from the engine.
type Application interface {
	OnTradingSessionStatus(id session.ID, m TradingSessionStatus)
	OnCollateralInquiryAck(id session.ID, m CollateralInquiryAck)
	OnCollateralReport(id session.ID, m CollateralReport)
	OnRequestForPositionsAck(id session.ID, m PositionsAck)
	OnPositionReport(id session.ID, m trading.PositionReport)
	OnMarketDataSnapshot(id session.ID, m MarketDataSnapshot)
	OnMarketDataReject(id session.ID, m MarketDataReject)
	OnExecutionReport(id session.ID, m trading.ExecutionReport)
	OnOrderCancelReject(id session.ID, m OrderCancelReject)
}

// Inbound is everything the engine adapter delivers to the gateway.
type Inbound interface {
	Admin
	Application
}

// Transport starts and stops the engine's connections.
type Transport interface {
	Start() error
	Stop()
}
