package mirror

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Aidin1998/fixgate/internal/events"
	"github.com/Aidin1998/fixgate/internal/trading"
	"github.com/Aidin1998/fixgate/pkg/errors"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// MessageWriter is the part of kafka.Writer the exporter uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Envelope wraps every exported event.
type Envelope struct {
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Exported event types
const (
	EventOrderUpdate = "order_update"
	EventExecution   = "execution"
	EventPosition    = "position"
	EventBalance     = "balance"
)

// NewKafkaWriter creates an asynchronous writer for topic. Messages with the
// same key land on the same partition.
func NewKafkaWriter(brokers []string, topic string, logger *zap.Logger) *kafka.Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("mirror.kafka")
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		Completion: func(msgs []kafka.Message, err error) {
			if err != nil {
				logger.Error("Kafka write failed", zap.Int("messages", len(msgs)), zap.Error(err))
			}
		},
	}
}

// KafkaExporter streams order, execution, position and balance events.
type KafkaExporter struct {
	writer  MessageWriter
	timeout time.Duration
	now     func() time.Time
	logger  *zap.Logger
}

// NewKafkaExporter creates an exporter writing to w.
func NewKafkaExporter(w MessageWriter, logger *zap.Logger) *KafkaExporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaExporter{
		writer:  w,
		timeout: defaultWriteTimeout,
		now:     time.Now,
		logger:  logger.Named("mirror.kafka"),
	}
}

// Attach subscribes the exporter to d. The returned func detaches it.
func (x *KafkaExporter) Attach(d *events.Dispatcher) (detach func()) {
	unsubs := []func(){
		d.OrderUpdate.Subscribe(func(e events.OrderUpdate) error {
			return x.export(EventOrderUpdate, e.Order.Symbol, e)
		}),
		d.Execution.Subscribe(func(e trading.Execution) error {
			return x.export(EventExecution, e.Symbol, e)
		}),
		d.Position.Subscribe(func(e events.PositionUpdate) error {
			return x.export(EventPosition, e.Position.Symbol, e)
		}),
		d.Balance.Subscribe(func(e events.Balance) error {
			return x.export(EventBalance, e.AccountID, e)
		}),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

func (x *KafkaExporter) export(kind, key string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return errors.Invalid.Explain("encode %s", kind).Wrap(err)
	}
	value, err := json.Marshal(Envelope{Type: kind, Timestamp: x.now().UTC(), Payload: payload})
	if err != nil {
		return errors.Invalid.Explain("encode %s envelope", kind).Wrap(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), x.timeout)
	defer cancel()
	err = x.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(key),
		Value:   value,
		Headers: []kafka.Header{{Key: "type", Value: []byte(kind)}},
	})
	if err != nil {
		return errors.Unavailable.Explain("export %s", kind).Wrap(err)
	}
	return nil
}

// Close flushes and closes the writer.
func (x *KafkaExporter) Close() error {
	if err := x.writer.Close(); err != nil {
		return errors.Unavailable.Explain("close kafka writer").Wrap(err)
	}
	return nil
}
