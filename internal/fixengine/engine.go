// Package fixengine adapts the quickfix engine to the gateway. It cracks
// inbound messages into the gateway's typed callbacks, encodes outbound
// requests and runs the initiator sessions.
package fixengine

import (
	"context"
	"sync"
	"time"

	"github.com/Aidin1998/fixgate/internal/commands"
	"github.com/Aidin1998/fixgate/internal/gateway"
	"github.com/Aidin1998/fixgate/internal/session"
	"github.com/Aidin1998/fixgate/pkg/errors"
	"github.com/Aidin1998/fixgate/pkg/metrics"
	"github.com/quickfixgo/quickfix"
	"go.uber.org/zap"
)

// Credentials are added to every session's outbound traffic.
type Credentials struct {
	Username string
	Password string
	// TargetSubID is set in the header of every outbound message.
	TargetSubID string
	// TradingSessionID is carried by order and query requests.
	TradingSessionID string
}

// Options configures an Engine.
type Options struct {
	Credentials Credentials
	// LogMessages logs raw inbound and outbound messages at debug level.
	LogMessages bool
}

// Engine is the quickfix application behind the gateway. It implements
// quickfix.Application, commands.Sender and gateway.Transport.
type Engine struct {
	inbound  gateway.Inbound
	settings *quickfix.Settings
	creds    Credentials
	encoder  encoder
	router   *quickfix.MessageRouter
	logs     quickfix.LogFactory
	logger   *zap.Logger
	now      func() time.Time

	// sendToTarget is quickfix.SendToTarget outside of tests.
	sendToTarget func(m quickfix.Messagable, sid quickfix.SessionID) error

	mu        sync.RWMutex
	sessions  map[session.ID]quickfix.SessionID
	initiator *quickfix.Initiator
}

var (
	_ quickfix.Application = (*Engine)(nil)
	_ commands.Sender      = (*Engine)(nil)
	_ gateway.Transport    = (*Engine)(nil)
)

// New creates an engine delivering inbound traffic to in.
func New(in gateway.Inbound, settings *quickfix.Settings, opts Options, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		inbound:      in,
		settings:     settings,
		creds:        opts.Credentials,
		logs:         NewZapLogFactory(logger, opts.LogMessages),
		logger:       logger.Named("fixengine"),
		now:          time.Now,
		sendToTarget: quickfix.SendToTarget,
		sessions:     make(map[session.ID]quickfix.SessionID),
	}
	e.encoder = encoder{tradingSessionID: opts.Credentials.TradingSessionID, now: func() time.Time { return e.now() }}
	for sid := range settings.SessionSettings() {
		e.sessions[sessionID(sid)] = sid
	}
	e.router = e.routes()
	return e
}

// Start creates the initiator and connects every configured session.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.initiator != nil {
		return errors.Conflict.Explain("engine already started")
	}
	initiator, err := quickfix.NewInitiator(e, quickfix.NewMemoryStoreFactory(), e.settings, e.logs)
	if err != nil {
		return errors.Invalid.Explain("create initiator").Wrap(err)
	}
	if err := initiator.Start(); err != nil {
		return errors.Unavailable.Explain("start initiator").Wrap(err)
	}
	e.initiator = initiator
	e.logger.Info("Initiator started", zap.Int("sessions", len(e.sessions)))
	return nil
}

// Stop logs out every session and closes the connections.
func (e *Engine) Stop() {
	e.mu.Lock()
	initiator := e.initiator
	e.initiator = nil
	e.mu.Unlock()
	if initiator == nil {
		return
	}
	initiator.Stop()
	e.logger.Info("Initiator stopped")
}

// Send encodes req and queues it on session to.
func (e *Engine) Send(ctx context.Context, req commands.Request, to session.ID) error {
	if err := ctx.Err(); err != nil {
		return errors.Unavailable.Explain("send %s", req.Kind()).Wrap(err)
	}
	e.mu.RLock()
	sid, ok := e.sessions[to]
	e.mu.RUnlock()
	if !ok {
		return errors.Routing.Explain("unknown session %s", to)
	}

	msg, err := e.encoder.encode(req)
	if err != nil {
		return err
	}
	if err := e.sendToTarget(msg, sid); err != nil {
		return errors.Unavailable.Explain("send %s to %s", req.Kind(), to).Wrap(err)
	}
	e.logger.Debug("Request sent",
		zap.String("kind", string(req.Kind())),
		zap.String("request_id", req.ID()),
		zap.String("session", string(to)))
	return nil
}

func (e *Engine) routes() *quickfix.MessageRouter {
	r := quickfix.NewMessageRouter()
	add := func(msgType, kind string, h func(*quickfix.Message, session.ID) error) {
		r.AddRoute(quickfix.BeginStringFIX44, msgType, func(msg *quickfix.Message, sid quickfix.SessionID) quickfix.MessageRejectError {
			if err := h(msg, sessionID(sid)); err != nil {
				metrics.InboundMessages.WithLabelValues("malformed").Inc()
				e.logger.Warn("Malformed message",
					zap.String("kind", kind),
					zap.String("session", sid.String()),
					zap.Error(err))
			}
			return nil
		})
	}

	// a malformed security list still delivers the entries read before the error
	add(msgTypeTradingSessionStatus, "trading_session_status", func(msg *quickfix.Message, id session.ID) error {
		m, err := decodeTradingSessionStatus(msg)
		e.inbound.OnTradingSessionStatus(id, m)
		return err
	})
	add(msgTypeCollateralInquiryAck, "collateral_inquiry_ack", func(msg *quickfix.Message, id session.ID) error {
		m, err := decodeCollateralInquiryAck(msg)
		if err != nil {
			return err
		}
		e.inbound.OnCollateralInquiryAck(id, m)
		return nil
	})
	add(msgTypeCollateralReport, "collateral_report", func(msg *quickfix.Message, id session.ID) error {
		m, err := decodeCollateralReport(msg)
		if err != nil {
			return err
		}
		e.inbound.OnCollateralReport(id, m)
		return nil
	})
	add(msgTypeRequestForPositionsAck, "positions_ack", func(msg *quickfix.Message, id session.ID) error {
		m, err := decodePositionsAck(msg)
		if err != nil {
			return err
		}
		e.inbound.OnRequestForPositionsAck(id, m)
		return nil
	})
	add(msgTypePositionReport, "position_report", func(msg *quickfix.Message, id session.ID) error {
		m, err := decodePositionReport(msg)
		if err != nil {
			return err
		}
		e.inbound.OnPositionReport(id, m)
		return nil
	})
	add(msgTypeMarketDataSnapshot, "market_data_snapshot", func(msg *quickfix.Message, id session.ID) error {
		m, err := decodeMarketDataSnapshot(msg, e.now().UTC())
		if err != nil {
			return err
		}
		e.inbound.OnMarketDataSnapshot(id, m)
		return nil
	})
	add(msgTypeMarketDataRequestReject, "market_data_reject", func(msg *quickfix.Message, id session.ID) error {
		m, err := decodeMarketDataReject(msg)
		if err != nil {
			return err
		}
		e.inbound.OnMarketDataReject(id, m)
		return nil
	})
	add(msgTypeExecutionReport, "execution_report", func(msg *quickfix.Message, id session.ID) error {
		m, err := decodeExecutionReport(msg)
		if err != nil {
			return err
		}
		e.inbound.OnExecutionReport(id, m)
		return nil
	})
	add(msgTypeOrderCancelReject, "order_cancel_reject", func(msg *quickfix.Message, id session.ID) error {
		m, err := decodeOrderCancelReject(msg)
		e.inbound.OnOrderCancelReject(id, m)
		return err
	})
	return r
}
