// Package gateway is the core object of fixgate. It receives the engine's
// callbacks, keeps the account, market, order and position books and
// exposes the commands and queries used by strategy and monitoring code.
package gateway

import (
	"context"
	"sync"

	"github.com/Aidin1998/fixgate/internal/accounts"
	"github.com/Aidin1998/fixgate/internal/commands"
	"github.com/Aidin1998/fixgate/internal/correlation"
	"github.com/Aidin1998/fixgate/internal/events"
	"github.com/Aidin1998/fixgate/internal/marketdata"
	"github.com/Aidin1998/fixgate/internal/session"
	"github.com/Aidin1998/fixgate/internal/trading"
	"github.com/Aidin1998/fixgate/pkg/errors"
	"go.uber.org/zap"
)

// SettingSupportsHedging is the exchange setting telling whether the
// account may hold opposite positions on one symbol.
const SettingSupportsHedging = "SUPPORTS_HEDGING"

// Options configures a Gateway.
type Options struct {
	// RequestIDCeiling bounds the correlation counter. Zero selects the default.
	RequestIDCeiling uint32
	SendRate         float64
	SendBurst        int
}

// Gateway ties the books, the event dispatcher and the command builder
// together. Lock order when two books are needed: market state, then
// orders and positions, then accounts. Handlers touch one book at a time.
type Gateway struct {
	logger *zap.Logger

	ids       *correlation.Correlator
	sessions  *session.Resolver
	accounts  *accounts.Book
	market    *marketdata.State
	orders    *trading.OrderBook
	positions *trading.PositionTracker
	events    *events.Dispatcher
	commands  *commands.Builder

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.RWMutex
	sender    commands.Sender
	transport Transport
	settings  map[string]string
	cancels   map[string]string // cancel ClOrdID -> request id
	deskOpen  bool
	deskKnown bool
	ready     bool
	closed    bool
}

// New creates a gateway classifying sessions with roles. Attach the engine
// before connecting.
func New(roles session.SettingsSource, opts Options, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	g := &Gateway{
		logger:    logger.Named("gateway"),
		ids:       correlation.New(opts.RequestIDCeiling, logger),
		sessions:  session.NewResolver(roles, logger),
		accounts:  accounts.NewBook(),
		market:    marketdata.NewState(),
		orders:    trading.NewOrderBook(logger),
		positions: trading.NewPositionTracker(),
		events:    events.NewDispatcher(logger),
		ctx:       ctx,
		cancel:    cancel,
		settings:  make(map[string]string),
		cancels:   make(map[string]string),
	}
	g.commands = commands.NewBuilder(g.ids, g.sessions, commands.SenderFunc(g.send),
		commands.Options{SendRate: opts.SendRate, SendBurst: opts.SendBurst}, logger)
	return g
}

// Attach sets the engine used to send requests and to open connections.
func (g *Gateway) Attach(sender commands.Sender, transport Transport) {
	g.mu.Lock()
	g.sender = sender
	g.transport = transport
	g.mu.Unlock()
}

func (g *Gateway) send(ctx context.Context, req commands.Request, to session.ID) error {
	g.mu.RLock()
	sender := g.sender
	g.mu.RUnlock()
	if sender == nil {
		return errors.Unavailable.Explain("no engine attached")
	}
	return sender.Send(ctx, req, to)
}

// Events returns the dispatcher consumers subscribe to.
func (g *Gateway) Events() *events.Dispatcher { return g.events }

// Commands returns the command builder.
func (g *Gateway) Commands() *commands.Builder { return g.commands }

// Connect starts the engine's sessions. Logon is reported asynchronously.
func (g *Gateway) Connect() error {
	g.mu.RLock()
	t, closed := g.transport, g.closed
	g.mu.RUnlock()
	if closed {
		return errors.Unavailable.Explain("gateway is shut down")
	}
	if t == nil {
		return errors.Unavailable.Explain("no transport attached")
	}
	if err := t.Start(); err != nil {
		return errors.Unavailable.Explain("start sessions").Wrap(err)
	}
	g.logger.Info("Connecting")
	return nil
}

// Disconnect cancels every active market data subscription and stops the
// engine's sessions.
func (g *Gateway) Disconnect() {
	for _, inst := range g.market.Subscribed() {
		if err := g.unsubscribe(g.ctx, inst); err != nil {
			g.logger.Warn("Unsubscribe on disconnect failed", zap.String("symbol", inst.Symbol), zap.Error(err))
		}
	}

	g.mu.RLock()
	t := g.transport
	g.mu.RUnlock()
	if t != nil {
		t.Stop()
	}
	g.logger.Info("Disconnected")
}

// Shutdown disconnects and drops all state. The gateway cannot be reused.
func (g *Gateway) Shutdown() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.closed = true
	g.mu.Unlock()

	g.Disconnect()
	g.cancel()

	g.market.Clear()
	g.orders.Clear()
	g.positions.Clear()
	g.accounts.Clear()
	g.ids.Reset()
	g.sessions.Reset()

	g.mu.Lock()
	g.settings = make(map[string]string)
	g.cancels = make(map[string]string)
	g.ready, g.deskKnown, g.deskOpen = false, false, false
	g.mu.Unlock()
	g.logger.Info("Shut down")
}

// IsConnected reports whether both a market data and an order session are
// logged on.
func (g *Gateway) IsConnected() bool { return g.sessions.Connected() }

// IsReady reports whether the trading session status has been received
// since the last logon.
func (g *Gateway) IsReady() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.ready
}

// IsTradingDeskOpen reports the last trading desk status received.
func (g *Gateway) IsTradingDeskOpen() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.deskOpen
}

// SupportsHedging reports whether the broker allows hedged positions.
func (g *Gateway) SupportsHedging() bool {
	v, _ := g.ExchangeSetting(SettingSupportsHedging)
	return v == "Y"
}

// ExchangeSetting returns one broker setting.
func (g *Gateway) ExchangeSetting(key string) (string, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	v, ok := g.settings[key]
	return v, ok
}

// ExchangeSettings returns a copy of every broker setting received.
func (g *Gateway) ExchangeSettings() map[string]string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[string]string, len(g.settings))
	for k, v := range g.settings {
		out[k] = v
	}
	return out
}

func (g *Gateway) mergeSettings(values map[string]string) {
	g.mu.Lock()
	for k, v := range values {
		g.settings[k] = v
	}
	g.mu.Unlock()
}

// AccountIDs returns the known account ids in discovery order.
func (g *Gateway) AccountIDs() []string { return g.accounts.ListAccounts() }

// Accounts returns copies of the known accounts.
func (g *Gateway) Accounts() []accounts.Account { return g.accounts.Snapshot() }

// Account returns one account.
func (g *Gateway) Account(id string) (accounts.Account, error) { return g.accounts.Account(id) }

// LatestSnapshot returns the last snapshot of symbol.
func (g *Gateway) LatestSnapshot(symbol string) (marketdata.Snapshot, error) {
	return g.market.LatestSnapshot(symbol)
}

// MarketDetail returns the static detail of symbol.
func (g *Gateway) MarketDetail(symbol string) (marketdata.Detail, error) {
	return g.market.MarketDetail(symbol)
}

// Instruments returns the registered instruments ordered by symbol.
func (g *Gateway) Instruments() []marketdata.Instrument { return g.market.Instruments() }

// ActiveOrders returns the orders not yet in a final status.
func (g *Gateway) ActiveOrders() []trading.Order { return g.orders.ActiveOrders() }

// Order returns one order, active or final.
func (g *Gateway) Order(clOrdID string) (trading.Order, error) { return g.orders.Order(clOrdID) }

// Executions returns every fill received.
func (g *Gateway) Executions() []trading.Execution { return g.orders.Executions() }

// Positions returns the open positions.
func (g *Gateway) Positions() []trading.Position { return g.positions.Positions() }

// PositionsFor returns the open positions of symbol.
func (g *Gateway) PositionsFor(symbol string) []trading.Position {
	return g.positions.PositionsFor(symbol)
}

// Outstanding returns the number of requests awaiting a reply.
func (g *Gateway) Outstanding() int { return g.ids.Outstanding() }

// Stale reports whether the books were marked stale by a logout and have
// not been refreshed since.
func (g *Gateway) Stale() bool {
	return g.accounts.Stale() || g.market.Stale() || g.orders.Stale() || g.positions.Stale()
}
