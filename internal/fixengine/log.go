package fixengine

import (
	"fmt"

	"github.com/quickfixgo/quickfix"
	"go.uber.org/zap"
)

// zapLogFactory routes the engine's event log into zap. Raw messages are
// logged at debug level when enabled.
type zapLogFactory struct {
	logger   *zap.Logger
	messages bool
}

// NewZapLogFactory returns an engine log factory writing to logger.
func NewZapLogFactory(logger *zap.Logger, messages bool) quickfix.LogFactory {
	return zapLogFactory{logger: logger.Named("quickfix"), messages: messages}
}

func (f zapLogFactory) Create() (quickfix.Log, error) {
	return zapLog{logger: f.logger, messages: f.messages}, nil
}

func (f zapLogFactory) CreateSessionLog(sid quickfix.SessionID) (quickfix.Log, error) {
	return zapLog{logger: f.logger.With(zap.String("session", sid.String())), messages: f.messages}, nil
}

type zapLog struct {
	logger   *zap.Logger
	messages bool
}

func (l zapLog) OnIncoming(msg []byte) {
	if l.messages {
		l.logger.Debug("Incoming", zap.ByteString("msg", msg))
	}
}

func (l zapLog) OnOutgoing(msg []byte) {
	if l.messages {
		l.logger.Debug("Outgoing", zap.ByteString("msg", msg))
	}
}

func (l zapLog) OnEvent(text string) {
	l.logger.Info(text)
}

func (l zapLog) OnEventf(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}
