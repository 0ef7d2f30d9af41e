package fixengine

import (
	"github.com/quickfixgo/quickfix"
	"go.uber.org/zap"
)

// OnCreate implements quickfix.Application.
func (e *Engine) OnCreate(sid quickfix.SessionID) {
	id := sessionID(sid)
	e.mu.Lock()
	e.sessions[id] = sid
	e.mu.Unlock()
	e.inbound.OnCreate(id)
}

// OnLogon implements quickfix.Application.
func (e *Engine) OnLogon(sid quickfix.SessionID) {
	e.inbound.OnLogon(sessionID(sid))
}

// OnLogout implements quickfix.Application.
func (e *Engine) OnLogout(sid quickfix.SessionID) {
	e.inbound.OnLogout(sessionID(sid))
}

// ToAdmin adds the credentials to the Logon and the TargetSubID to every
// admin message.
func (e *Engine) ToAdmin(msg *quickfix.Message, sid quickfix.SessionID) {
	if msg.IsMsgTypeOf(msgTypeLogon) && e.creds.Username != "" {
		msg.Body.SetString(tagUsername, e.creds.Username)
		msg.Body.SetString(tagPassword, e.creds.Password)
		e.logger.Debug("Logon credentials set", zap.String("session", sid.String()))
	}
	e.setTargetSubID(msg)
}

// ToApp adds the TargetSubID to every application message.
func (e *Engine) ToApp(msg *quickfix.Message, _ quickfix.SessionID) error {
	e.setTargetSubID(msg)
	return nil
}

func (e *Engine) setTargetSubID(msg *quickfix.Message) {
	if e.creds.TargetSubID != "" {
		msg.Header.SetString(tagTargetSubID, e.creds.TargetSubID)
	}
}

// FromAdmin implements quickfix.Application. Session level messages are
// handled by the engine.
func (e *Engine) FromAdmin(_ *quickfix.Message, _ quickfix.SessionID) quickfix.MessageRejectError {
	return nil
}

// FromApp cracks an application message. Unknown message types are
// answered with the engine's unsupported message type reject.
func (e *Engine) FromApp(msg *quickfix.Message, sid quickfix.SessionID) quickfix.MessageRejectError {
	return e.router.Route(msg, sid)
}
