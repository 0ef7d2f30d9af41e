// Package marketdata holds the per-symbol market view: registered
// instruments, their latest snapshot and static market details.
package marketdata

import (
	"time"

	"github.com/shopspring/decimal"
)

// Instrument is a tradable symbol known to the gateway.
type Instrument struct {
	Symbol   string          `json:"symbol"`
	TickSize decimal.Decimal `json:"tick_size"`
	// Volume counts explicit subscriptions; zero means not subscribed.
	Volume int `json:"volume"`
	// SubscriptionID is the MDReqID used to subscribe, reused to unsubscribe.
	SubscriptionID string    `json:"subscription_id,omitempty"`
	AddedAt        time.Time `json:"added_at"`
}

// Subscribed reports whether market data is currently requested for the instrument.
func (i Instrument) Subscribed() bool { return i.Volume > 0 }

// Snapshot is the latest top of book for a symbol.
type Snapshot struct {
	Symbol    string          `json:"symbol"`
	Bid       decimal.Decimal `json:"bid"`
	Ask       decimal.Decimal `json:"ask"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Timestamp time.Time       `json:"timestamp"`
}

// Mid returns the mid price.
func (s Snapshot) Mid() decimal.Decimal {
	return s.Bid.Add(s.Ask).Div(decimal.NewFromInt(2))
}

// Spread returns ask minus bid.
func (s Snapshot) Spread() decimal.Decimal {
	return s.Ask.Sub(s.Bid)
}

// Detail is static reference data for a symbol, taken from the security list.
type Detail struct {
	Symbol             string          `json:"symbol"`
	PointSize          decimal.Decimal `json:"point_size"`
	Precision          int             `json:"precision"`
	MinQty             decimal.Decimal `json:"min_qty"`
	MaxQty             decimal.Decimal `json:"max_qty"`
	Currency           string          `json:"currency"`
	ContractMultiplier decimal.Decimal `json:"contract_multiplier"`
}
