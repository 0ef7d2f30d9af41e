// Package journal persists executions and order status changes so fills
// survive a restart of the gateway and can be queried afterwards.
package journal

import (
	"context"
	"time"

	appconfig "github.com/Aidin1998/fixgate/internal/config"
	"github.com/Aidin1998/fixgate/internal/events"
	"github.com/Aidin1998/fixgate/internal/trading"
	"github.com/Aidin1998/fixgate/pkg/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// ExecutionRecord is one fill.
type ExecutionRecord struct {
	ID         uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	ExecID     string          `gorm:"uniqueIndex;not null" json:"exec_id"`
	ClOrdID    string          `gorm:"index;not null" json:"cl_ord_id"`
	OrderID    string          `json:"order_id"`
	Account    string          `gorm:"index" json:"account"`
	Symbol     string          `gorm:"index" json:"symbol"`
	Side       string          `json:"side"`
	Qty        decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"qty"`
	Price      decimal.Decimal `gorm:"type:decimal(20,8)" json:"price"`
	ExecutedAt time.Time       `gorm:"index" json:"executed_at"`
	CreatedAt  time.Time       `json:"created_at"`
}

// OrderEventRecord is one status change of an order.
type OrderEventRecord struct {
	ID         uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	ClOrdID    string          `gorm:"index;not null" json:"cl_ord_id"`
	OrderID    string          `json:"order_id"`
	Account    string          `json:"account"`
	Symbol     string          `gorm:"index" json:"symbol"`
	FromStatus string          `json:"from_status"`
	ToStatus   string          `json:"to_status"`
	CumQty     decimal.Decimal `gorm:"type:decimal(20,8)" json:"cum_qty"`
	LeavesQty  decimal.Decimal `gorm:"type:decimal(20,8)" json:"leaves_qty"`
	AvgPx      decimal.Decimal `gorm:"type:decimal(20,8)" json:"avg_px"`
	Adopted    bool            `json:"adopted"`
	Text       string          `json:"text,omitempty"`
	RecordedAt time.Time       `gorm:"index" json:"recorded_at"`
}

// Filter narrows an executions query. Zero fields match everything.
type Filter struct {
	Account string
	Symbol  string
	Since   time.Time
	Limit   int
}

// Journal writes and reads the trading history.
type Journal struct {
	db     *gorm.DB
	now    func() time.Time
	logger *zap.Logger
}

// Open connects to the configured database.
func Open(cfg appconfig.JournalConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite", "":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, errors.Invalid.Explain("unsupported journal driver %q", cfg.Driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, errors.Unavailable.Explain("open journal").Wrap(err)
	}
	if cfg.Driver != "postgres" {
		// sqlite allows a single writer
		sqlDB, err := db.DB()
		if err != nil {
			return nil, errors.Unavailable.Explain("journal connection").Wrap(err)
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return db, nil
}

// New migrates the schema and returns a journal on db.
func New(db *gorm.DB, logger *zap.Logger) (*Journal, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := db.AutoMigrate(&ExecutionRecord{}, &OrderEventRecord{}); err != nil {
		return nil, errors.Unavailable.Explain("migrate journal").Wrap(err)
	}
	return &Journal{db: db, now: time.Now, logger: logger.Named("journal")}, nil
}

// Attach records the executions and order updates published on d.
func (j *Journal) Attach(d *events.Dispatcher) (detach func()) {
	unsubExec := d.Execution.Subscribe(func(e trading.Execution) error {
		return j.RecordExecution(context.Background(), e)
	})
	unsubOrder := d.OrderUpdate.Subscribe(func(e events.OrderUpdate) error {
		return j.RecordOrderEvent(context.Background(), e)
	})
	return func() {
		unsubExec()
		unsubOrder()
	}
}

// RecordExecution stores e. A repeated ExecID is ignored.
func (j *Journal) RecordExecution(ctx context.Context, e trading.Execution) error {
	rec := ExecutionRecord{
		ID:         uuid.New(),
		ExecID:     e.ExecID,
		ClOrdID:    e.ClOrdID,
		OrderID:    e.OrderID,
		Account:    e.Account,
		Symbol:     e.Symbol,
		Side:       string(e.Side),
		Qty:        e.Qty,
		Price:      e.Price,
		ExecutedAt: e.Timestamp.UTC(),
	}
	if rec.ExecutedAt.IsZero() {
		rec.ExecutedAt = j.now().UTC()
	}
	res := j.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "exec_id"}}, DoNothing: true}).
		Create(&rec)
	if res.Error != nil {
		return errors.Unavailable.Explain("record execution %s", e.ExecID).Wrap(res.Error)
	}
	if res.RowsAffected == 0 {
		j.logger.Debug("Duplicate execution ignored", zap.String("exec_id", e.ExecID))
	}
	return nil
}

// RecordOrderEvent stores the transition carried by e.
func (j *Journal) RecordOrderEvent(ctx context.Context, e events.OrderUpdate) error {
	o := e.Order
	rec := OrderEventRecord{
		ID:         uuid.New(),
		ClOrdID:    o.ClOrdID,
		OrderID:    o.OrderID,
		Account:    o.Account,
		Symbol:     o.Symbol,
		FromStatus: e.From.String(),
		ToStatus:   e.To.String(),
		CumQty:     o.CumQty,
		LeavesQty:  o.LeavesQty,
		AvgPx:      o.AvgPx,
		Adopted:    e.Adopted,
		Text:       o.Text,
		RecordedAt: j.now().UTC(),
	}
	if err := j.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return errors.Unavailable.Explain("record order event %s", o.ClOrdID).Wrap(err)
	}
	return nil
}

// Executions returns the recorded fills matching f, oldest first.
func (j *Journal) Executions(ctx context.Context, f Filter) ([]ExecutionRecord, error) {
	q := j.db.WithContext(ctx).Model(&ExecutionRecord{})
	if f.Account != "" {
		q = q.Where("account = ?", f.Account)
	}
	if f.Symbol != "" {
		q = q.Where("symbol = ?", f.Symbol)
	}
	if !f.Since.IsZero() {
		q = q.Where("executed_at >= ?", f.Since.UTC())
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	var out []ExecutionRecord
	if err := q.Order("executed_at ASC").Find(&out).Error; err != nil {
		return nil, errors.Unavailable.Explain("query executions").Wrap(err)
	}
	return out, nil
}

// OrderHistory returns the status changes of clOrdID, oldest first.
func (j *Journal) OrderHistory(ctx context.Context, clOrdID string) ([]OrderEventRecord, error) {
	var out []OrderEventRecord
	err := j.db.WithContext(ctx).
		Where("cl_ord_id = ?", clOrdID).
		Order("recorded_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, errors.Unavailable.Explain("query order %s", clOrdID).Wrap(err)
	}
	if len(out) == 0 {
		return nil, errors.NotFound.Explain("no history for order %s", clOrdID)
	}
	return out, nil
}

// Close releases the database connection.
func (j *Journal) Close() error {
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
