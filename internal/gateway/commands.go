package gateway

import (
	"context"

	"github.com/Aidin1998/fixgate/internal/commands"
	"github.com/Aidin1998/fixgate/internal/marketdata"
	"github.com/Aidin1998/fixgate/internal/trading"
	"github.com/Aidin1998/fixgate/pkg/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Subscribe requests market data for symbol. Repeated subscriptions are
// counted; only the first one is sent.
func (g *Gateway) Subscribe(ctx context.Context, symbol string) error {
	if symbol == "" {
		return errors.Invalid.Explain("subscribe: empty symbol")
	}
	if _, first := g.market.MarkSubscribed(symbol, ""); !first {
		return nil
	}
	req, err := g.commands.SubscribeMarketData(ctx, symbol)
	if err != nil {
		g.market.AbortSubscribed(symbol)
		return err
	}
	g.market.SetSubscriptionID(symbol, req.RequestID)
	g.logger.Info("Subscribed", zap.String("symbol", symbol), zap.String("md_req_id", req.RequestID))
	return nil
}

// Unsubscribe drops one subscription of symbol. When none is left the
// broker subscription is cancelled and the instrument is removed.
func (g *Gateway) Unsubscribe(ctx context.Context, symbol string) error {
	inst, err := g.market.Instrument(symbol)
	if err != nil {
		return err
	}
	if !inst.Subscribed() {
		return errors.Invalid.Explain("%s is not subscribed", symbol)
	}
	inst, last := g.market.MarkUnsubscribed(symbol)
	if !last {
		return nil
	}
	if err := g.unsubscribe(ctx, inst); err != nil {
		return err
	}
	_, err = g.market.RemoveInstrument(symbol)
	return err
}

func (g *Gateway) unsubscribe(ctx context.Context, inst marketdata.Instrument) error {
	req, err := g.commands.UnsubscribeMarketData(ctx, inst.Symbol, inst.SubscriptionID)
	if err != nil {
		return err
	}
	// no reply is sent for a successful unsubscribe
	g.ids.Resolve(req.RequestID)
	g.ids.Resolve(inst.SubscriptionID)
	g.market.ResetSubscription(inst.Symbol)
	g.logger.Info("Unsubscribed", zap.String("symbol", inst.Symbol))
	return nil
}

// SubmitOrder places o and records it in the order book before it is sent,
// so reports racing the send find it. An empty ClOrdID gets a generated one.
func (g *Gateway) SubmitOrder(ctx context.Context, o commands.NewOrder) (trading.Order, error) {
	if o.ClOrdID == "" {
		o.ClOrdID = uuid.NewString()
	}
	if o.TimeInForce == "" {
		o.TimeInForce = trading.TimeInForceGTC
	}
	if err := g.checkLimits(o); err != nil {
		return trading.Order{}, err
	}

	order, err := g.orders.Add(trading.Order{
		ClOrdID:     o.ClOrdID,
		Account:     o.Account,
		Symbol:      o.Symbol,
		Side:        o.Side,
		Type:        o.Type,
		TimeInForce: o.TimeInForce,
		Qty:         o.Qty,
		Price:       o.Price,
		StopPrice:   o.StopPrice,
	})
	if err != nil {
		return trading.Order{}, err
	}

	req, err := g.commands.NewOrder(ctx, o)
	if err != nil {
		g.orders.Discard(o.ClOrdID)
		return trading.Order{}, err
	}
	if !g.orders.SetRequestID(o.ClOrdID, req.RequestID) {
		g.ids.Resolve(req.RequestID)
	}
	order.RequestID = req.RequestID
	g.logger.Info("Order submitted",
		zap.String("cl_ord_id", o.ClOrdID),
		zap.String("symbol", o.Symbol),
		zap.String("side", string(o.Side)),
		zap.String("qty", o.Qty.String()))
	return order, nil
}

// checkLimits validates the quantity against the instrument's min and max
// order size when its market detail is known.
func (g *Gateway) checkLimits(o commands.NewOrder) error {
	d, err := g.market.MarketDetail(o.Symbol)
	if err != nil {
		return nil
	}
	if d.MinQty.IsPositive() && o.Qty.LessThan(d.MinQty) {
		return errors.Invalid.Explain("%s: quantity %s below minimum %s", o.Symbol, o.Qty, d.MinQty)
	}
	if d.MaxQty.IsPositive() && o.Qty.GreaterThan(d.MaxQty) {
		return errors.Invalid.Explain("%s: quantity %s above maximum %s", o.Symbol, o.Qty, d.MaxQty)
	}
	return nil
}

// MarketOrder places a market order. ref optionally sets the client
// reference id.
func (g *Gateway) MarketOrder(ctx context.Context, account, symbol string, side trading.Side, qty decimal.Decimal, ref ...string) (trading.Order, error) {
	return g.SubmitOrder(ctx, commands.NewOrder{
		ClOrdID: firstRef(ref),
		Account: account,
		Symbol:  symbol,
		Side:    side,
		Type:    trading.OrderTypeMarket,
		Qty:     qty,
	})
}

// LimitOrder places a limit order at price.
func (g *Gateway) LimitOrder(ctx context.Context, account, symbol string, side trading.Side, qty, price decimal.Decimal, ref ...string) (trading.Order, error) {
	return g.SubmitOrder(ctx, commands.NewOrder{
		ClOrdID: firstRef(ref),
		Account: account,
		Symbol:  symbol,
		Side:    side,
		Type:    trading.OrderTypeLimit,
		Qty:     qty,
		Price:   price,
	})
}

// StopOrder places a stop order triggering at stop.
func (g *Gateway) StopOrder(ctx context.Context, account, symbol string, side trading.Side, qty, stop decimal.Decimal, ref ...string) (trading.Order, error) {
	return g.SubmitOrder(ctx, commands.NewOrder{
		ClOrdID:   firstRef(ref),
		Account:   account,
		Symbol:    symbol,
		Side:      side,
		Type:      trading.OrderTypeStop,
		Qty:       qty,
		StopPrice: stop,
	})
}

func firstRef(ref []string) string {
	if len(ref) > 0 {
		return ref[0]
	}
	return ""
}

// CancelOrder asks the broker to cancel an active order.
func (g *Gateway) CancelOrder(ctx context.Context, clOrdID string) error {
	o, err := g.orders.Order(clOrdID)
	if err != nil {
		return err
	}
	if o.Status.Terminal() {
		return errors.Conflict.Explain("order %s is already %s", clOrdID, o.Status)
	}
	req, err := g.commands.CancelOrder(ctx, o)
	if err != nil {
		return err
	}
	g.mu.Lock()
	g.cancels[req.ClOrdID] = req.RequestID
	g.mu.Unlock()
	return nil
}

// CancelOrders cancels every active order of symbol and returns how many
// cancel requests were sent.
func (g *Gateway) CancelOrders(ctx context.Context, symbol string) (int, error) {
	var errs []error
	n := 0
	for _, o := range g.orders.ActiveOrdersFor(symbol) {
		if err := g.CancelOrder(ctx, o.ClOrdID); err != nil {
			errs = append(errs, err)
			continue
		}
		n++
	}
	return n, errors.Join(errs...)
}

// ClosePosition closes one open position.
func (g *Gateway) ClosePosition(ctx context.Context, positionID string) error {
	p, err := g.positions.Position(positionID)
	if err != nil {
		return err
	}
	_, err = g.closePosition(ctx, p)
	return err
}

// closePosition records the closing order in the book before it is sent,
// the same way SubmitOrder does.
func (g *Gateway) closePosition(ctx context.Context, p trading.Position) (trading.Order, error) {
	order, err := g.orders.Add(trading.Order{
		ClOrdID:     uuid.NewString(),
		Account:     p.AccountID,
		Symbol:      p.Symbol,
		Side:        p.Side.Opposite(),
		Type:        trading.OrderTypeMarket,
		TimeInForce: trading.TimeInForceGTC,
		Qty:         p.Qty,
		PositionID:  p.PositionID,
	})
	if err != nil {
		return trading.Order{}, err
	}
	req, err := g.commands.ClosePosition(ctx, p, order.ClOrdID)
	if err != nil {
		g.orders.Discard(order.ClOrdID)
		return trading.Order{}, err
	}
	if !g.orders.SetRequestID(order.ClOrdID, req.RequestID) {
		g.ids.Resolve(req.RequestID)
	}
	order.RequestID = req.RequestID
	g.logger.Info("Close submitted",
		zap.String("cl_ord_id", order.ClOrdID),
		zap.String("position_id", p.PositionID),
		zap.String("symbol", p.Symbol))
	return order, nil
}

// CloseAllPositions issues one close request per open position of symbol.
func (g *Gateway) CloseAllPositions(ctx context.Context, symbol string) (int, error) {
	return g.closeEach(ctx, g.positions.PositionsFor(symbol))
}

// CloseWinners closes the positions of symbol that show a profit against
// the latest snapshot. The selection is only as fresh as that snapshot.
func (g *Gateway) CloseWinners(ctx context.Context, symbol string) (int, error) {
	s, err := g.market.LatestSnapshot(symbol)
	if err != nil {
		return 0, err
	}
	return g.closeEach(ctx, g.positions.Winners(symbol, s))
}

// CloseLosers closes the positions of symbol that show no profit against
// the latest snapshot.
func (g *Gateway) CloseLosers(ctx context.Context, symbol string) (int, error) {
	s, err := g.market.LatestSnapshot(symbol)
	if err != nil {
		return 0, err
	}
	return g.closeEach(ctx, g.positions.Losers(symbol, s))
}

func (g *Gateway) closeEach(ctx context.Context, positions []trading.Position) (int, error) {
	var errs []error
	n := 0
	for _, p := range positions {
		if _, err := g.closePosition(ctx, p); err != nil {
			errs = append(errs, err)
			continue
		}
		n++
	}
	return n, errors.Join(errs...)
}

// QueryPositions requests the positions of every known account.
func (g *Gateway) QueryPositions(ctx context.Context) error {
	var errs []error
	for _, id := range g.accounts.ListAccounts() {
		if _, err := g.commands.QueryPositions(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// QueryAccounts requests a collateral report per account.
func (g *Gateway) QueryAccounts(ctx context.Context) error {
	_, err := g.commands.QueryAccounts(ctx)
	return err
}

// QueryTradingStatus requests the trading session status.
func (g *Gateway) QueryTradingStatus(ctx context.Context) error {
	_, err := g.commands.QueryTradingStatus(ctx)
	return err
}
