// Package mirror copies gateway state out of process. RedisMirror keeps the
// latest snapshots, balances and positions readable by other services and
// fans ticks out over pub/sub. KafkaExporter streams the trading events.
package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Aidin1998/fixgate/internal/events"
	"github.com/Aidin1998/fixgate/internal/marketdata"
	"github.com/Aidin1998/fixgate/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const defaultWriteTimeout = 2 * time.Second

// RedisMirror writes gateway events into redis.
type RedisMirror struct {
	client  redis.UniversalClient
	prefix  string
	timeout time.Duration
	logger  *zap.Logger
}

// NewRedisClient connects to addr and pings it.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Unavailable.Explain("redis %s", addr).Wrap(err)
	}
	return client, nil
}

// NewRedisMirror creates a mirror writing keys under prefix.
func NewRedisMirror(client redis.UniversalClient, prefix string, logger *zap.Logger) *RedisMirror {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisMirror{
		client:  client,
		prefix:  prefix,
		timeout: defaultWriteTimeout,
		logger:  logger.Named("mirror.redis"),
	}
}

// SnapshotKey is the hash holding the latest snapshot of symbol.
func (m *RedisMirror) SnapshotKey(symbol string) string {
	return fmt.Sprintf("%s:snapshot:%s", m.prefix, symbol)
}

// TickChannel is the pub/sub channel carrying the ticks of symbol.
func (m *RedisMirror) TickChannel(symbol string) string {
	return fmt.Sprintf("%s:ticks:%s", m.prefix, symbol)
}

// AccountKey is the hash holding the balance of account id.
func (m *RedisMirror) AccountKey(id string) string {
	return fmt.Sprintf("%s:account:%s", m.prefix, id)
}

// PositionsKey is the hash of open positions keyed by position id.
func (m *RedisMirror) PositionsKey() string { return m.prefix + ":positions" }

// DeskKey holds "open" or "closed".
func (m *RedisMirror) DeskKey() string { return m.prefix + ":desk" }

// Attach subscribes the mirror to d. The returned func detaches it.
func (m *RedisMirror) Attach(d *events.Dispatcher) (detach func()) {
	unsubs := []func(){
		d.Tick.Subscribe(m.onTick),
		d.Balance.Subscribe(m.onBalance),
		d.Position.Subscribe(m.onPosition),
		d.TradingDesk.Subscribe(m.onTradingDesk),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

func (m *RedisMirror) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), m.timeout)
}

func (m *RedisMirror) onTick(e events.Tick) error {
	s := e.Snapshot
	payload, err := json.Marshal(s)
	if err != nil {
		return errors.Invalid.Explain("encode tick %s", s.Symbol).Wrap(err)
	}
	ctx, cancel := m.ctx()
	defer cancel()

	pipe := m.client.TxPipeline()
	pipe.HSet(ctx, m.SnapshotKey(s.Symbol),
		"bid", s.Bid.String(),
		"ask", s.Ask.String(),
		"high", s.High.String(),
		"low", s.Low.String(),
		"timestamp", s.Timestamp.UTC().Format(time.RFC3339Nano))
	pipe.Publish(ctx, m.TickChannel(s.Symbol), payload)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Unavailable.Explain("mirror tick %s", s.Symbol).Wrap(err)
	}
	return nil
}

func (m *RedisMirror) onBalance(e events.Balance) error {
	ctx, cancel := m.ctx()
	defer cancel()
	err := m.client.HSet(ctx, m.AccountKey(e.AccountID),
		"balance", e.Balance.String(),
		"currency", e.Currency).Err()
	if err != nil {
		return errors.Unavailable.Explain("mirror balance %s", e.AccountID).Wrap(err)
	}
	return nil
}

func (m *RedisMirror) onPosition(e events.PositionUpdate) error {
	ctx, cancel := m.ctx()
	defer cancel()
	id := e.Position.PositionID
	if e.Removed {
		if err := m.client.HDel(ctx, m.PositionsKey(), id).Err(); err != nil {
			return errors.Unavailable.Explain("remove position %s", id).Wrap(err)
		}
		return nil
	}
	payload, err := json.Marshal(e.Position)
	if err != nil {
		return errors.Invalid.Explain("encode position %s", id).Wrap(err)
	}
	if err := m.client.HSet(ctx, m.PositionsKey(), id, payload).Err(); err != nil {
		return errors.Unavailable.Explain("mirror position %s", id).Wrap(err)
	}
	return nil
}

func (m *RedisMirror) onTradingDesk(e events.TradingDesk) error {
	ctx, cancel := m.ctx()
	defer cancel()
	state := "closed"
	if e.Open {
		state = "open"
	}
	if err := m.client.Set(ctx, m.DeskKey(), state, 0).Err(); err != nil {
		return errors.Unavailable.Explain("mirror trading desk").Wrap(err)
	}
	m.logger.Debug("Trading desk mirrored", zap.String("state", state))
	return nil
}

// LatestSnapshot reads the mirrored snapshot of symbol back.
func (m *RedisMirror) LatestSnapshot(ctx context.Context, symbol string) (marketdata.Snapshot, error) {
	fields, err := m.client.HGetAll(ctx, m.SnapshotKey(symbol)).Result()
	if err != nil {
		return marketdata.Snapshot{}, errors.Unavailable.Explain("read snapshot %s", symbol).Wrap(err)
	}
	if len(fields) == 0 {
		return marketdata.Snapshot{}, errors.NotFound.Explain("no snapshot for %s", symbol)
	}
	s := marketdata.Snapshot{Symbol: symbol}
	for name, dst := range map[string]*decimal.Decimal{
		"bid":  &s.Bid,
		"ask":  &s.Ask,
		"high": &s.High,
		"low":  &s.Low,
	} {
		if fields[name] == "" {
			continue
		}
		if *dst, err = decimal.NewFromString(fields[name]); err != nil {
			return marketdata.Snapshot{}, errors.Inconsistent.Explain("snapshot %s field %s", symbol, name).Wrap(err)
		}
	}
	if ts := fields["timestamp"]; ts != "" {
		s.Timestamp, err = time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return marketdata.Snapshot{}, errors.Inconsistent.Explain("snapshot %s timestamp", symbol).Wrap(err)
		}
	}
	return s, nil
}
