package commands

import (
	"context"

	"github.com/Aidin1998/fixgate/internal/correlation"
	"github.com/Aidin1998/fixgate/internal/session"
	"github.com/Aidin1998/fixgate/internal/trading"
	"github.com/Aidin1998/fixgate/pkg/errors"
	"github.com/Aidin1998/fixgate/pkg/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Options tunes a Builder.
type Options struct {
	// SendRate caps outbound requests per second. Zero disables the limit.
	SendRate float64
	// SendBurst is the number of requests allowed above SendRate at once.
	SendBurst int
}

// Builder attaches correlation ids to requests and routes them by role.
// It only takes the locks of the correlator and the resolver, so it can be
// used from any goroutine.
type Builder struct {
	ids      *correlation.Correlator
	sessions *session.Resolver
	sender   Sender
	limiter  *rate.Limiter
	logger   *zap.Logger
}

// NewBuilder creates a builder sending through sender.
func NewBuilder(ids *correlation.Correlator, sessions *session.Resolver, sender Sender, opts Options, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Builder{
		ids:      ids,
		sessions: sessions,
		sender:   sender,
		logger:   logger.Named("commands"),
	}
	if opts.SendRate > 0 {
		burst := opts.SendBurst
		if burst < 1 {
			burst = 1
		}
		b.limiter = rate.NewLimiter(rate.Limit(opts.SendRate), burst)
	}
	return b
}

// SubscribeMarketData subscribes to symbol on the market data session.
func (b *Builder) SubscribeMarketData(ctx context.Context, symbol string) (SubscribeMarketData, error) {
	if symbol == "" {
		return SubscribeMarketData{}, errors.Invalid.Explain("subscribe: empty symbol")
	}
	req := SubscribeMarketData{RequestID: b.ids.Next(), Symbol: symbol}
	return req, b.issue(ctx, req, correlation.Pending{Symbol: symbol})
}

// UnsubscribeMarketData cancels the subscription opened with subscriptionID.
func (b *Builder) UnsubscribeMarketData(ctx context.Context, symbol, subscriptionID string) (UnsubscribeMarketData, error) {
	if symbol == "" {
		return UnsubscribeMarketData{}, errors.Invalid.Explain("unsubscribe: empty symbol")
	}
	req := UnsubscribeMarketData{RequestID: b.ids.Next(), Symbol: symbol, SubscriptionID: subscriptionID}
	return req, b.issue(ctx, req, correlation.Pending{Symbol: symbol, Ref: subscriptionID})
}

// NewOrder places o. An empty ClOrdID is replaced by a generated one and an
// empty time in force defaults to GTC.
func (b *Builder) NewOrder(ctx context.Context, o NewOrder) (NewOrder, error) {
	if err := validateOrder(o); err != nil {
		return NewOrder{}, err
	}
	if o.ClOrdID == "" {
		o.ClOrdID = uuid.NewString()
	}
	if o.TimeInForce == "" {
		o.TimeInForce = trading.TimeInForceGTC
	}
	o.RequestID = b.ids.Next()
	return o, b.issue(ctx, o, correlation.Pending{Symbol: o.Symbol, Account: o.Account, Ref: o.ClOrdID})
}

func validateOrder(o NewOrder) error {
	err := errors.Invalid.Explain("invalid order")
	var bad bool
	if o.Symbol == "" {
		err, bad = err.WithField("required", "symbol", "symbol is required"), true
	}
	if o.Side != trading.SideBuy && o.Side != trading.SideSell {
		err, bad = err.WithField("oneof", "side", "side must be BUY or SELL"), true
	}
	if !o.Qty.IsPositive() {
		err, bad = err.WithField("gt", "qty", "quantity must be positive"), true
	}
	switch o.Type {
	case trading.OrderTypeMarket:
	case trading.OrderTypeLimit:
		if !o.Price.IsPositive() {
			err, bad = err.WithField("gt", "price", "limit orders need a price"), true
		}
	case trading.OrderTypeStop:
		if !o.StopPrice.IsPositive() {
			err, bad = err.WithField("gt", "stop_price", "stop orders need a stop price"), true
		}
	default:
		err, bad = err.WithField("oneof", "type", "type must be MARKET, LIMIT or STOP"), true
	}
	if bad {
		return err
	}
	return nil
}

// ClosePosition closes p with a market order on the opposite side. An empty
// clOrdID gets a generated one.
func (b *Builder) ClosePosition(ctx context.Context, p trading.Position, clOrdID string) (ClosePosition, error) {
	if p.PositionID == "" || !p.Qty.IsPositive() {
		return ClosePosition{}, errors.Invalid.Explain("close: position %q has nothing to close", p.PositionID)
	}
	if clOrdID == "" {
		clOrdID = uuid.NewString()
	}
	req := ClosePosition{
		RequestID:  b.ids.Next(),
		ClOrdID:    clOrdID,
		PositionID: p.PositionID,
		Account:    p.AccountID,
		Symbol:     p.Symbol,
		Side:       p.Side.Opposite(),
		Qty:        p.Qty,
	}
	return req, b.issue(ctx, req, correlation.Pending{Symbol: p.Symbol, Account: p.AccountID, Ref: req.ClOrdID})
}

// CancelOrder asks for o to be cancelled.
func (b *Builder) CancelOrder(ctx context.Context, o trading.Order) (CancelOrder, error) {
	if o.ClOrdID == "" {
		return CancelOrder{}, errors.Invalid.Explain("cancel: order without client reference id")
	}
	req := CancelOrder{
		RequestID:   b.ids.Next(),
		OrigClOrdID: o.ClOrdID,
		OrderID:     o.OrderID,
		Account:     o.Account,
		Symbol:      o.Symbol,
		Side:        o.Side,
		Qty:         o.Qty,
	}
	req.ClOrdID = "C" + req.RequestID + "-" + o.ClOrdID
	return req, b.issue(ctx, req, correlation.Pending{Symbol: o.Symbol, Account: o.Account, Ref: o.ClOrdID})
}

// QueryPositions requests the positions of account.
func (b *Builder) QueryPositions(ctx context.Context, account string) (QueryPositions, error) {
	req := QueryPositions{RequestID: b.ids.Next(), Account: account}
	return req, b.issue(ctx, req, correlation.Pending{Account: account})
}

// QueryAccounts requests a collateral report for every account.
func (b *Builder) QueryAccounts(ctx context.Context) (QueryAccounts, error) {
	req := QueryAccounts{RequestID: b.ids.Next()}
	return req, b.issue(ctx, req, correlation.Pending{})
}

// QueryTradingStatus requests the trading session status.
func (b *Builder) QueryTradingStatus(ctx context.Context) (QueryTradingStatus, error) {
	req := QueryTradingStatus{RequestID: b.ids.Next()}
	return req, b.issue(ctx, req, correlation.Pending{})
}

// issue finds a session for req's role, tracks its id and sends it. A
// request with no session is never tracked; on a later failure the id is
// released and nothing stays outstanding.
func (b *Builder) issue(ctx context.Context, req Request, p correlation.Pending) error {
	kind := string(req.Kind())
	p.ID = req.ID()
	p.Kind = req.Kind()

	to, ok := b.sessions.SessionFor(req.Role())
	if !ok {
		metrics.RoutingFailures.WithLabelValues(kind).Inc()
		b.logger.Warn("No session for request",
			zap.String("kind", kind),
			zap.Stringer("role", req.Role()))
		return errors.Routing.Explain("no logged-on %s session for %s", req.Role(), kind)
	}

	prev, collided := b.ids.Track(p)

	if b.limiter != nil {
		if err := b.limiter.Wait(ctx); err != nil {
			b.ids.Release(p.ID, prev, collided)
			return errors.Unavailable.Explain("%s not sent", kind).Wrap(err)
		}
	}

	if err := b.sender.Send(ctx, req, to); err != nil {
		b.ids.Release(p.ID, prev, collided)
		b.logger.Error("Failed to send request",
			zap.String("kind", kind),
			zap.String("id", p.ID),
			zap.String("session", string(to)),
			zap.Error(err))
		return errors.Unavailable.Explain("%s not sent", kind).Wrap(err)
	}

	metrics.CommandsSent.WithLabelValues(kind).Inc()
	b.logger.Debug("Request sent",
		zap.String("kind", kind),
		zap.String("id", p.ID),
		zap.String("session", string(to)))
	return nil
}
