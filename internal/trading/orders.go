package trading

import (
	"sort"
	"sync"
	"time"

	"github.com/Aidin1998/fixgate/pkg/errors"
	"github.com/Aidin1998/fixgate/pkg/metrics"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// OrderBook holds the orders placed during the session and applies
// execution reports to them. Status never moves backward; terminal orders
// leave the active set but their final status is kept so late reports are
// recognised.
type OrderBook struct {
	mu         sync.RWMutex
	active     map[string]*Order
	terminal   map[string]Order
	byOrderID  map[string]string
	executions []Execution
	execIDs    map[string]struct{}
	stale      bool
	now        func() time.Time
	logger     *zap.Logger
}

// NewOrderBook creates an empty order book.
func NewOrderBook(logger *zap.Logger) *OrderBook {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrderBook{
		active:    make(map[string]*Order),
		terminal:  make(map[string]Order),
		byOrderID: make(map[string]string),
		execIDs:   make(map[string]struct{}),
		now:       time.Now,
		logger:    logger.Named("orderbook"),
	}
}

// Add registers a newly submitted order in status New.
func (b *OrderBook) Add(o Order) (Order, error) {
	if o.ClOrdID == "" {
		return Order{}, errors.Invalid.Explain("order without client reference id")
	}
	if !o.Qty.IsPositive() {
		return Order{}, errors.Invalid.Explain("order %s: quantity must be positive", o.ClOrdID)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.active[o.ClOrdID]; ok {
		return Order{}, errors.Conflict.Explain("order %s already exists", o.ClOrdID)
	}
	if _, ok := b.terminal[o.ClOrdID]; ok {
		return Order{}, errors.Conflict.Explain("order %s already exists", o.ClOrdID)
	}
	now := b.now()
	o.Status = StatusNew
	o.CumQty = decimal.Zero
	o.LeavesQty = o.Qty
	o.CreatedAt = now
	o.UpdatedAt = now
	b.active[o.ClOrdID] = &o
	if o.OrderID != "" {
		b.byOrderID[o.OrderID] = o.ClOrdID
	}
	b.stale = false
	return o, nil
}

// Discard removes an active order that never reached the broker.
func (b *OrderBook) Discard(clOrdID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if o, ok := b.active[clOrdID]; ok {
		delete(b.byOrderID, o.OrderID)
		delete(b.active, clOrdID)
	}
}

// SetRequestID records the correlation id of the request that placed an
// order. It returns false when the order already reached a terminal status,
// in which case nothing will release the id later.
func (b *OrderBook) SetRequestID(clOrdID, requestID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if o, ok := b.active[clOrdID]; ok {
		o.RequestID = requestID
		return true
	}
	if o, ok := b.terminal[clOrdID]; ok {
		o.RequestID = requestID
		b.terminal[clOrdID] = o
		return false
	}
	return true
}

// ApplyExecution applies one execution report. Reports that would move an
// order backward return an Inconsistent error and leave the book untouched.
func (b *OrderBook) ApplyExecution(r ExecutionReport) (Transition, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	key, known := b.lookup(r)
	if key == "" {
		return Transition{}, errors.Invalid.Explain("execution report %s carries no order reference", r.ExecID)
	}
	if !known {
		if fin, ok := b.terminal[key]; ok {
			return b.onTerminal(fin, r)
		}
		b.adopt(key, r)
	}
	o := b.active[key]
	from := o.Status

	if r.ExecID != "" {
		if _, dup := b.execIDs[r.ExecID]; dup {
			return Transition{Order: *o, From: from, To: from}, nil
		}
	}

	to, changes := targetStatus(r, o)
	if !changes {
		to = from
	}
	if to.rank() < from.rank() {
		return Transition{}, b.inconsistent(o, r, "status %s -> %s", from, to)
	}
	if r.CumQty.LessThan(o.CumQty) && (r.ExecType.fill() || !r.CumQty.IsZero()) {
		return Transition{}, b.inconsistent(o, r, "cum qty %s -> %s", o.CumQty, r.CumQty)
	}

	at := r.TransactTime
	if at.IsZero() {
		at = b.now()
	}
	if r.OrderID != "" && o.OrderID != r.OrderID {
		o.OrderID = r.OrderID
		b.byOrderID[r.OrderID] = key
	}
	if r.CumQty.GreaterThan(o.CumQty) {
		o.CumQty = r.CumQty
	}
	if r.ExecType.fill() || !r.LeavesQty.IsZero() || to.Terminal() {
		o.LeavesQty = r.LeavesQty
	}
	if !r.AvgPx.IsZero() {
		o.AvgPx = r.AvgPx
	}
	if r.Text != "" {
		o.Text = r.Text
	}
	if r.PositionID != "" {
		o.PositionID = r.PositionID
	}
	o.Status = to
	o.UpdatedAt = at
	b.stale = false

	tr := Transition{From: from, To: to, Changed: from != to, Adopted: !known}
	if r.ExecID != "" {
		b.execIDs[r.ExecID] = struct{}{}
	}
	if r.ExecID != "" && r.LastQty.IsPositive() {
		exec := Execution{
			ExecID:    r.ExecID,
			ClOrdID:   key,
			OrderID:   o.OrderID,
			Account:   o.Account,
			Symbol:    o.Symbol,
			Side:      o.Side,
			Qty:       r.LastQty,
			Price:     r.LastPx,
			Timestamp: at,
		}
		b.executions = append(b.executions, exec)
		tr.Execution = &exec
	}

	tr.Order = *o
	if to.Terminal() {
		b.terminal[key] = *o
		delete(b.active, key)
	}
	return tr, nil
}

// lookup finds the book key for r. Cancel confirmations reference the
// original order through OrigClOrdID.
func (b *OrderBook) lookup(r ExecutionReport) (string, bool) {
	for _, id := range []string{r.OrigClOrdID, r.ClOrdID} {
		if id == "" {
			continue
		}
		if _, ok := b.active[id]; ok {
			return id, true
		}
	}
	if key, ok := b.byOrderID[r.OrderID]; ok && r.OrderID != "" {
		if _, ok := b.active[key]; ok {
			return key, true
		}
		return key, false
	}
	for _, id := range []string{r.OrigClOrdID, r.ClOrdID} {
		if _, ok := b.terminal[id]; ok && id != "" {
			return id, false
		}
	}
	if r.ClOrdID != "" {
		return r.ClOrdID, false
	}
	return r.OrderID, false
}

// adopt registers an order first seen through an unsolicited report.
func (b *OrderBook) adopt(key string, r ExecutionReport) {
	now := b.now()
	o := &Order{
		ClOrdID:   key,
		OrderID:   r.OrderID,
		Account:   r.Account,
		Symbol:    r.Symbol,
		Side:      r.Side,
		Type:      r.OrdType,
		Qty:       r.OrderQty,
		Price:     r.Price,
		StopPrice: r.StopPrice,
		Status:    StatusNew,
		LeavesQty: r.OrderQty,
		CreatedAt: now,
		UpdatedAt: now,
	}
	b.active[key] = o
	if r.OrderID != "" {
		b.byOrderID[r.OrderID] = key
	}
	b.logger.Info("adopted unsolicited order",
		zap.String("cl_ord_id", key),
		zap.String("order_id", r.OrderID),
		zap.String("symbol", r.Symbol))
}

// onTerminal handles a report for an order that already reached a final
// status. Replays of the final status and reports that change nothing are
// ignored; anything else is inconsistent.
func (b *OrderBook) onTerminal(fin Order, r ExecutionReport) (Transition, error) {
	to, changes := targetStatus(r, &fin)
	if !changes || to == fin.Status {
		return Transition{Order: fin, From: fin.Status, To: fin.Status}, nil
	}
	return Transition{}, b.inconsistent(&fin, r, "status %s -> %s", fin.Status, to)
}

func (b *OrderBook) inconsistent(o *Order, r ExecutionReport, format string, args ...any) error {
	metrics.InconsistentTransitions.WithLabelValues("order").Inc()
	err := errors.Inconsistent.Explain("order %s: "+format, append([]any{o.ClOrdID}, args...)...)
	b.logger.Warn("discarding execution report",
		zap.String("cl_ord_id", o.ClOrdID),
		zap.String("exec_id", r.ExecID),
		zap.Stringer("exec_type", r.ExecType),
		zap.Error(err))
	return err
}

// targetStatus returns the status r asks for. changes is false for report
// kinds that do not move the state machine.
func targetStatus(r ExecutionReport, o *Order) (Status, bool) {
	switch r.ExecType {
	case ExecRejected:
		return StatusRejected, true
	case ExecCanceled, ExecExpired:
		return StatusCancelled, true
	case ExecTrade, ExecPartialFill, ExecFill:
		qty := o.Qty
		if qty.IsZero() {
			qty = r.OrderQty
		}
		if r.CumQty.GreaterThanOrEqual(qty) || (r.ExecType == ExecFill && qty.IsZero()) {
			return StatusFilled, true
		}
		return StatusPartiallyFilled, true
	case ExecOrderStatus:
		return statusFromOrdStatus(r.OrdStatus)
	default:
		return o.Status, false
	}
}

func statusFromOrdStatus(s OrdStatus) (Status, bool) {
	switch s {
	case OrdStatusNew:
		return StatusNew, true
	case OrdStatusPartiallyFilled:
		return StatusPartiallyFilled, true
	case OrdStatusFilled:
		return StatusFilled, true
	case OrdStatusCanceled, OrdStatusExpired:
		return StatusCancelled, true
	case OrdStatusRejected:
		return StatusRejected, true
	default:
		return StatusNew, false
	}
}

// Order returns the order with the given client reference, active or final.
func (b *OrderBook) Order(clOrdID string) (Order, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if o, ok := b.active[clOrdID]; ok {
		return *o, nil
	}
	if o, ok := b.terminal[clOrdID]; ok {
		return o, nil
	}
	return Order{}, errors.NotFound.Explain("order %s not found", clOrdID)
}

// ActiveOrders returns copies of all non-terminal orders, oldest first.
func (b *OrderBook) ActiveOrders() []Order {
	return b.ActiveOrdersFor("")
}

// ActiveOrdersFor returns the non-terminal orders of symbol, or of every
// symbol when symbol is empty.
func (b *OrderBook) ActiveOrdersFor(symbol string) []Order {
	b.mu.RLock()
	out := make([]Order, 0, len(b.active))
	for _, o := range b.active {
		if symbol == "" || o.Symbol == symbol {
			out = append(out, *o)
		}
	}
	b.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ClOrdID < out[j].ClOrdID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Executions returns the recorded fills in arrival order.
func (b *OrderBook) Executions() []Execution {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]Execution(nil), b.executions...)
}

// ExecutionsFor returns the fills of one order.
func (b *OrderBook) ExecutionsFor(clOrdID string) []Execution {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []Execution
	for _, e := range b.executions {
		if e.ClOrdID == clOrdID {
			out = append(out, e)
		}
	}
	return out
}

// MarkStale flags the book as possibly outdated until the next report.
func (b *OrderBook) MarkStale() {
	b.mu.Lock()
	b.stale = true
	b.mu.Unlock()
}

// Stale reports whether the book was marked stale since its last update.
func (b *OrderBook) Stale() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.stale
}

// Clear drops every order and execution.
func (b *OrderBook) Clear() {
	b.mu.Lock()
	b.active = make(map[string]*Order)
	b.terminal = make(map[string]Order)
	b.byOrderID = make(map[string]string)
	b.executions = nil
	b.execIDs = make(map[string]struct{})
	b.stale = false
	b.mu.Unlock()
}
