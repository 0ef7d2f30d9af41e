package api

import (
	"github.com/Aidin1998/fixgate/internal/commands"
	"github.com/Aidin1998/fixgate/internal/trading"
	"github.com/Aidin1998/fixgate/pkg/errors"
	"github.com/shopspring/decimal"
)

type orderRequest struct {
	ClOrdID     string              `json:"cl_ord_id" validate:"omitempty,max=64"`
	Account     string              `json:"account" validate:"required"`
	Symbol      string              `json:"symbol" validate:"required"`
	Side        trading.Side        `json:"side" validate:"required,oneof=BUY SELL"`
	Type        trading.OrderType   `json:"type" validate:"required,oneof=MARKET LIMIT STOP"`
	Qty         decimal.Decimal     `json:"qty"`
	Price       decimal.Decimal     `json:"price"`
	StopPrice   decimal.Decimal     `json:"stop_price"`
	TimeInForce trading.TimeInForce `json:"time_in_force" validate:"omitempty,oneof=DAY GTC IOC FOK"`
}

// check validates the decimal fields the struct tags cannot reach.
func (r orderRequest) check() error {
	err := errors.Invalid.Explain("invalid order")
	bad := false
	if !r.Qty.IsPositive() {
		err, bad = err.WithField("gt", "qty", "must be positive"), true
	}
	if r.Type == trading.OrderTypeLimit && !r.Price.IsPositive() {
		err, bad = err.WithField("required", "price", "limit orders need a positive price"), true
	}
	if r.Type == trading.OrderTypeStop && !r.StopPrice.IsPositive() {
		err, bad = err.WithField("required", "stop_price", "stop orders need a positive stop price"), true
	}
	if bad {
		return err
	}
	return nil
}

func (r orderRequest) command() commands.NewOrder {
	o := commands.NewOrder{
		ClOrdID:     r.ClOrdID,
		Account:     r.Account,
		Symbol:      r.Symbol,
		Side:        r.Side,
		Type:        r.Type,
		Qty:         r.Qty,
		TimeInForce: r.TimeInForce,
	}
	switch r.Type {
	case trading.OrderTypeLimit:
		o.Price = r.Price
	case trading.OrderTypeStop:
		o.StopPrice = r.StopPrice
	}
	return o
}
