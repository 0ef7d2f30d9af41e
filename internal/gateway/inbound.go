package gateway

import (
	"fmt"

	"github.com/Aidin1998/fixgate/internal/correlation"
	"github.com/Aidin1998/fixgate/internal/events"
	"github.com/Aidin1998/fixgate/internal/marketdata"
	"github.com/Aidin1998/fixgate/internal/session"
	"github.com/Aidin1998/fixgate/internal/trading"
	"github.com/Aidin1998/fixgate/pkg/errors"
	"github.com/Aidin1998/fixgate/pkg/metrics"
	"go.uber.org/zap"
)

var _ Inbound = (*Gateway)(nil)

// OnCreate classifies a new session.
func (g *Gateway) OnCreate(id session.ID) {
	roles := g.sessions.Resolve(id)
	g.logger.Info("Session created", zap.String("session", string(id)), zap.Stringer("roles", roles))
	if roles.Empty() {
		g.logger.Warn("Session serves no role", zap.String("session", string(id)))
	}
	g.events.SessionCreated.Publish(events.SessionEvent{Session: id, Roles: roles})
}

// OnLogon caches the session's roles. A market data logon renews the
// subscriptions held before a reconnect; once both roles are served the
// trading session status is requested.
func (g *Gateway) OnLogon(id session.ID) {
	change := g.sessions.Logon(id)
	roles := change.Roles
	g.logger.Info("Logon", zap.String("session", string(id)), zap.Stringer("roles", roles))
	g.events.Logon.Publish(events.SessionEvent{Session: id, Roles: roles})

	if roles.Has(session.MarketData) {
		g.resubscribe()
	}
	if change.Up() {
		g.events.Connected.Publish(events.Signal{})
		if _, err := g.commands.QueryTradingStatus(g.ctx); err != nil {
			g.fail("query trading status", err)
		}
	}
}

// OnLogout forgets the session. The books are kept but marked stale so
// they can be reconciled after the next logon.
func (g *Gateway) OnLogout(id session.ID) {
	change := g.sessions.Logout(id)
	roles := change.Roles
	g.logger.Info("Logout", zap.String("session", string(id)), zap.Stringer("roles", roles))

	g.accounts.MarkStale()
	g.market.MarkStale()
	g.orders.MarkStale()
	g.positions.MarkStale()
	g.mu.Lock()
	g.ready = false
	g.mu.Unlock()

	g.events.Logout.Publish(events.SessionEvent{Session: id, Roles: roles})
	if change.Down() {
		g.logger.Warn("Gateway disconnected")
		g.events.Disconnected.Publish(events.Signal{})
	}
}

func (g *Gateway) resubscribe() {
	for _, inst := range g.market.Subscribed() {
		g.ids.Resolve(inst.SubscriptionID)
		req, err := g.commands.SubscribeMarketData(g.ctx, inst.Symbol)
		if err != nil {
			g.fail("resubscribe "+inst.Symbol, err)
			continue
		}
		g.market.SetSubscriptionID(inst.Symbol, req.RequestID)
	}
}

// OnTradingSessionStatus records the desk status, the security list and
// the system parameters, then asks for the accounts.
func (g *Gateway) OnTradingSessionStatus(id session.ID, m TradingSessionStatus) {
	metrics.InboundMessages.WithLabelValues("trading_session_status").Inc()
	g.ids.Resolve(m.RequestID)

	open := m.Status == TradSesStatusOpen
	g.mu.Lock()
	changed := !g.deskKnown || g.deskOpen != open
	g.deskOpen, g.deskKnown = open, true
	g.mu.Unlock()
	if changed {
		g.logger.Info("Trading desk status", zap.Bool("open", open), zap.Int("status", m.Status))
		g.events.TradingDesk.Publish(events.TradingDesk{Open: open})
	}

	if len(m.Securities) > 0 {
		for _, d := range m.Securities {
			g.market.SetDetail(d)
			g.market.AddInstrument(marketdata.Instrument{Symbol: d.Symbol, TickSize: d.PointSize})
		}
		g.events.InstrumentList.Publish(events.InstrumentList{Instruments: g.market.Instruments()})
	}

	if len(m.Params) > 0 {
		g.mergeSettings(m.Params)
		g.events.Settings.Publish(events.Settings{Values: g.ExchangeSettings()})
	}

	g.mu.Lock()
	first := !g.ready
	g.ready = true
	g.mu.Unlock()
	if first {
		g.logger.Info("Gateway ready")
		g.events.Ready.Publish(events.Signal{})
	}

	if _, err := g.commands.QueryAccounts(g.ctx); err != nil {
		g.fail("query accounts", err)
	}
}

// OnCollateralInquiryAck releases the accounts query.
func (g *Gateway) OnCollateralInquiryAck(id session.ID, m CollateralInquiryAck) {
	metrics.InboundMessages.WithLabelValues("collateral_inquiry_ack").Inc()
	g.ids.Resolve(m.RequestID)
	if m.Status == CollInquiryStatusRejected {
		g.warn(id, fmt.Sprintf("collateral inquiry rejected: %s", m.Text))
	}
}

// OnCollateralReport updates one account. A new account triggers a
// positions query for it.
func (g *Gateway) OnCollateralReport(id session.ID, m CollateralReport) {
	metrics.InboundMessages.WithLabelValues("collateral_report").Inc()
	if m.Account == "" {
		g.warn(id, "collateral report without account")
		return
	}
	g.ids.Resolve(m.RequestID)

	created := g.accounts.UpdateBalance(m.Account, m.Balance, m.Currency)
	if len(m.Parties) > 0 {
		g.accounts.SetParties(m.Account, m.Parties)
		g.mergeSettings(m.Parties)
		g.events.CollateralSettings.Publish(events.CollateralSettings{AccountID: m.Account, Values: copyMap(m.Parties)})
	}
	if created {
		g.logger.Info("Account discovered", zap.String("account", m.Account))
		g.events.AccountID.Publish(events.AccountID{ID: m.Account})
	}
	g.events.Balance.Publish(events.Balance{AccountID: m.Account, Balance: m.Balance, Currency: m.Currency})

	if created {
		if _, err := g.commands.QueryPositions(g.ctx, m.Account); err != nil {
			g.fail("query positions", err)
		}
	}
}

// OnRequestForPositionsAck releases a positions query.
func (g *Gateway) OnRequestForPositionsAck(id session.ID, m PositionsAck) {
	metrics.InboundMessages.WithLabelValues("positions_ack").Inc()
	g.ids.Resolve(m.RequestID)
	if m.Text != "" {
		g.warn(id, m.Text)
	}
}

// OnPositionReport creates, updates or removes one position.
func (g *Gateway) OnPositionReport(id session.ID, m trading.PositionReport) {
	metrics.InboundMessages.WithLabelValues("position_report").Inc()
	p, removed, err := g.positions.UpsertPosition(m)
	if err != nil {
		g.logger.Warn("Discarding position report", zap.String("session", string(id)), zap.Error(err))
		return
	}
	g.events.Position.Publish(events.PositionUpdate{Position: p, Removed: removed})
}

// OnMarketDataSnapshot stores the snapshot and publishes a tick for
// registered instruments.
func (g *Gateway) OnMarketDataSnapshot(id session.ID, m MarketDataSnapshot) {
	metrics.InboundMessages.WithLabelValues("market_data_snapshot").Inc()
	s := m.Snapshot
	if s.Symbol == "" {
		if p, ok := g.ids.Pending(m.RequestID); ok {
			s.Symbol = p.Symbol
		}
	}
	if s.Symbol == "" {
		g.logger.Warn("Snapshot without symbol", zap.String("md_req_id", m.RequestID))
		return
	}
	g.market.UpdateSnapshot(s)
	if _, err := g.market.Instrument(s.Symbol); err != nil {
		g.logger.Warn("Snapshot for unregistered instrument", zap.String("symbol", s.Symbol))
		return
	}
	g.events.Tick.Publish(events.Tick{Snapshot: s})
}

// OnMarketDataReject maps the rejected request back to its symbol and
// drops the subscription.
func (g *Gateway) OnMarketDataReject(id session.ID, m MarketDataReject) {
	metrics.InboundMessages.WithLabelValues("market_data_reject").Inc()
	p, ok := g.ids.Resolve(m.RequestID)
	if !ok {
		if inst, found := g.subscriptionByID(m.RequestID); found {
			p, ok = correlation.Pending{Symbol: inst.Symbol, Kind: correlation.KindSubscribe}, true
		}
	}
	if ok && p.Kind == correlation.KindSubscribe {
		g.market.ResetSubscription(p.Symbol)
	}
	reason := m.Text
	if reason == "" {
		reason = m.Reason
	}
	g.logger.Warn("Market data request rejected",
		zap.String("md_req_id", m.RequestID),
		zap.String("symbol", p.Symbol),
		zap.String("reason", reason))
	g.events.MarketDataReject.Publish(events.MarketDataReject{Symbol: p.Symbol, RequestID: m.RequestID, Reason: reason})
}

func (g *Gateway) subscriptionByID(reqID string) (marketdata.Instrument, bool) {
	for _, inst := range g.market.Subscribed() {
		if inst.SubscriptionID == reqID {
			return inst, true
		}
	}
	return marketdata.Instrument{}, false
}

// OnExecutionReport advances one order. Inconsistent reports are dropped
// by the order book; processing of later reports continues.
func (g *Gateway) OnExecutionReport(id session.ID, m trading.ExecutionReport) {
	metrics.InboundMessages.WithLabelValues("execution_report").Inc()
	tr, err := g.orders.ApplyExecution(m)
	if err != nil {
		if !errors.Is(err, errors.Inconsistent) {
			g.logger.Warn("Discarding execution report", zap.String("session", string(id)), zap.Error(err))
		}
		return
	}

	if tr.To.Terminal() && tr.Changed {
		if tr.Order.RequestID != "" {
			g.ids.Resolve(tr.Order.RequestID)
		}
		g.releaseCancel(m.ClOrdID)
		if tr.To == trading.StatusRejected {
			g.logger.Warn("Order rejected",
				zap.String("cl_ord_id", tr.Order.ClOrdID),
				zap.String("text", tr.Order.Text))
		}
	}
	if tr.Changed || tr.Adopted || tr.Execution != nil {
		g.events.OrderUpdate.Publish(events.OrderUpdate{Order: tr.Order, From: tr.From, To: tr.To, Adopted: tr.Adopted})
	}
	if tr.Execution != nil {
		g.events.Execution.Publish(*tr.Execution)
	}
}

// OnOrderCancelReject releases the cancel request and raises a warning.
func (g *Gateway) OnOrderCancelReject(id session.ID, m OrderCancelReject) {
	metrics.InboundMessages.WithLabelValues("order_cancel_reject").Inc()
	g.releaseCancel(m.ClOrdID)
	text := m.Text
	if text == "" {
		text = m.Reason
	}
	g.warn(id, fmt.Sprintf("cancel of order %s rejected: %s", m.OrigClOrdID, text))
}

func (g *Gateway) releaseCancel(clOrdID string) {
	g.mu.Lock()
	reqID, ok := g.cancels[clOrdID]
	delete(g.cancels, clOrdID)
	g.mu.Unlock()
	if ok {
		g.ids.Resolve(reqID)
	}
}

func (g *Gateway) warn(id session.ID, msg string) {
	g.logger.Warn(msg, zap.String("session", string(id)))
	g.events.Warning.Publish(events.Notice{Message: msg, Session: id})
}

func (g *Gateway) fail(what string, err error) {
	g.logger.Error("Command failed", zap.String("command", what), zap.Error(err))
	g.events.Error.Publish(events.Notice{Message: what + ": " + err.Error(), Err: err})
}

func copyMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
