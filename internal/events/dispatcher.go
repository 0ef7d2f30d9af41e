package events

import (
	"github.com/Aidin1998/fixgate/internal/marketdata"
	"github.com/Aidin1998/fixgate/internal/session"
	"github.com/Aidin1998/fixgate/internal/trading"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Signal is the payload of events that carry no data.
type Signal struct{}

// SessionEvent reports a session lifecycle change together with its roles.
type SessionEvent struct {
	Session session.ID
	Roles   session.Roles
}

// Notice is a warning or error raised by the gateway or the broker.
type Notice struct {
	Message string
	Session session.ID
	Err     error
}

// InstrumentList carries the instruments discovered from a security list.
type InstrumentList struct {
	Instruments []marketdata.Instrument
}

// Settings carries the broker system parameters received.
type Settings struct {
	Values map[string]string
}

// TradingDesk reports the trading desk opening or closing.
type TradingDesk struct {
	Open bool
}

// AccountID reports a newly discovered account.
type AccountID struct {
	ID string
}

// Balance reports a balance change of one account.
type Balance struct {
	AccountID string
	Balance   decimal.Decimal
	Currency  string
}

// CollateralSettings carries the per-account settings of a collateral report.
type CollateralSettings struct {
	AccountID string
	Values    map[string]string
}

// PositionUpdate reports a position opened, changed or removed.
type PositionUpdate struct {
	Position trading.Position
	Removed  bool
}

// MarketDataReject reports a refused market data request.
type MarketDataReject struct {
	Symbol    string
	RequestID string
	Reason    string
}

// Tick carries a new market snapshot.
type Tick struct {
	Snapshot marketdata.Snapshot
}

// OrderUpdate carries an order whose status or fill changed.
type OrderUpdate struct {
	Order   trading.Order
	From    trading.Status
	To      trading.Status
	Adopted bool
}

// Dispatcher holds one topic per event kind.
type Dispatcher struct {
	Ready              *Topic[Signal]
	Connected          *Topic[Signal]
	Disconnected       *Topic[Signal]
	Logon              *Topic[SessionEvent]
	Logout             *Topic[SessionEvent]
	SessionCreated     *Topic[SessionEvent]
	InstrumentList     *Topic[InstrumentList]
	Settings           *Topic[Settings]
	Warning            *Topic[Notice]
	Error              *Topic[Notice]
	TradingDesk        *Topic[TradingDesk]
	AccountID          *Topic[AccountID]
	Balance            *Topic[Balance]
	CollateralSettings *Topic[CollateralSettings]
	Position           *Topic[PositionUpdate]
	MarketDataReject   *Topic[MarketDataReject]
	Tick               *Topic[Tick]
	OrderUpdate        *Topic[OrderUpdate]
	Execution          *Topic[trading.Execution]
}

// NewDispatcher creates a dispatcher with empty topics.
func NewDispatcher(logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("events")
	return &Dispatcher{
		Ready:              NewTopic[Signal]("ready", logger),
		Connected:          NewTopic[Signal]("connected", logger),
		Disconnected:       NewTopic[Signal]("disconnected", logger),
		Logon:              NewTopic[SessionEvent]("logon", logger),
		Logout:             NewTopic[SessionEvent]("logout", logger),
		SessionCreated:     NewTopic[SessionEvent]("session_created", logger),
		InstrumentList:     NewTopic[InstrumentList]("instrument_list", logger),
		Settings:           NewTopic[Settings]("settings", logger),
		Warning:            NewTopic[Notice]("warning", logger),
		Error:              NewTopic[Notice]("error", logger),
		TradingDesk:        NewTopic[TradingDesk]("trading_desk_changed", logger),
		AccountID:          NewTopic[AccountID]("account_id", logger),
		Balance:            NewTopic[Balance]("balance_changed", logger),
		CollateralSettings: NewTopic[CollateralSettings]("collateral_settings", logger),
		Position:           NewTopic[PositionUpdate]("position_report", logger),
		MarketDataReject:   NewTopic[MarketDataReject]("market_data_reject", logger),
		Tick:               NewTopic[Tick]("tick", logger),
		OrderUpdate:        NewTopic[OrderUpdate]("order_update", logger),
		Execution:          NewTopic[trading.Execution]("execution", logger),
	}
}
