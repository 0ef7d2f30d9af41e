package trading

import (
	"sort"
	"sync"
	"time"

	"github.com/Aidin1998/fixgate/internal/marketdata"
	"github.com/Aidin1998/fixgate/pkg/errors"
	"github.com/shopspring/decimal"
)

// Direction returns +1 for long and -1 for short positions.
func (p Position) Direction() int64 { return p.Side.Sign() }

// CurrentPrice is the price the position would close at: the bid for a
// long position, the ask for a short one.
func (p Position) CurrentPrice(s marketdata.Snapshot) decimal.Decimal {
	if p.Side == SideSell {
		return s.Ask
	}
	return s.Bid
}

// UnrealizedPnL is (current - open) * direction * qty.
func (p Position) UnrealizedPnL(s marketdata.Snapshot) decimal.Decimal {
	return p.pnlSign(s).Mul(p.Qty)
}

// pnlSign is (current - open) * direction, the per-unit profit.
func (p Position) pnlSign(s marketdata.Snapshot) decimal.Decimal {
	return p.CurrentPrice(s).Sub(p.OpenPrice).Mul(decimal.NewFromInt(p.Direction()))
}

// PositionTracker holds the open positions reported by the broker, keyed by
// broker position id. A position exists only while its last reported
// quantity is non-zero.
type PositionTracker struct {
	mu        sync.RWMutex
	positions map[string]Position
	stale     bool
	now       func() time.Time
}

// NewPositionTracker creates an empty tracker.
func NewPositionTracker() *PositionTracker {
	return &PositionTracker{
		positions: make(map[string]Position),
		now:       time.Now,
	}
}

// UpsertPosition applies a position report. A zero quantity or a closed
// report removes the position; removed is true in that case.
func (t *PositionTracker) UpsertPosition(r PositionReport) (p Position, removed bool, err error) {
	if r.PositionID == "" {
		return Position{}, false, errors.Invalid.Explain("position report without position id")
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.stale = false

	if r.Closed || r.Qty.IsZero() {
		prev, ok := t.positions[r.PositionID]
		delete(t.positions, r.PositionID)
		if !ok {
			prev = fromReport(r)
		}
		prev.Qty = decimal.Zero
		prev.UpdatedAt = t.now()
		return prev, true, nil
	}

	p = fromReport(r)
	p.Qty = r.Qty.Abs()
	p.UpdatedAt = t.now()
	if prev, ok := t.positions[r.PositionID]; ok {
		if p.OpenTime.IsZero() {
			p.OpenTime = prev.OpenTime
		}
		if p.Currency == "" {
			p.Currency = prev.Currency
		}
	}
	t.positions[r.PositionID] = p
	return p, false, nil
}

func fromReport(r PositionReport) Position {
	return Position{
		PositionID: r.PositionID,
		AccountID:  r.AccountID,
		Symbol:     r.Symbol,
		Side:       r.Side,
		Qty:        r.Qty,
		OpenPrice:  r.OpenPrice,
		OpenTime:   r.OpenTime,
		Currency:   r.Currency,
	}
}

// Position returns the open position with the given id.
func (t *PositionTracker) Position(id string) (Position, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.positions[id]
	if !ok {
		return Position{}, errors.NotFound.Explain("position %s not open", id)
	}
	return p, nil
}

// Positions returns copies of all open positions ordered by id.
func (t *PositionTracker) Positions() []Position {
	return t.PositionsFor("")
}

// PositionsFor returns the open positions of symbol ordered by id, or every
// position when symbol is empty.
func (t *PositionTracker) PositionsFor(symbol string) []Position {
	t.mu.RLock()
	out := make([]Position, 0, len(t.positions))
	for _, p := range t.positions {
		if symbol == "" || p.Symbol == symbol {
			out = append(out, p)
		}
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].PositionID < out[j].PositionID })
	return out
}

// Winners returns the positions of symbol showing a profit against s.
func (t *PositionTracker) Winners(symbol string, s marketdata.Snapshot) []Position {
	return t.selectBy(symbol, func(p Position) bool { return p.pnlSign(s).IsPositive() })
}

// Losers returns the positions of symbol not showing a profit against s.
func (t *PositionTracker) Losers(symbol string, s marketdata.Snapshot) []Position {
	return t.selectBy(symbol, func(p Position) bool { return !p.pnlSign(s).IsPositive() })
}

func (t *PositionTracker) selectBy(symbol string, keep func(Position) bool) []Position {
	var out []Position
	for _, p := range t.PositionsFor(symbol) {
		if keep(p) {
			out = append(out, p)
		}
	}
	return out
}

// Len returns the number of open positions.
func (t *PositionTracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.positions)
}

// MarkStale flags the tracker as possibly outdated until the next report.
func (t *PositionTracker) MarkStale() {
	t.mu.Lock()
	t.stale = true
	t.mu.Unlock()
}

// Stale reports whether the tracker was marked stale since its last update.
func (t *PositionTracker) Stale() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.stale
}

// Clear drops every position.
func (t *PositionTracker) Clear() {
	t.mu.Lock()
	t.positions = make(map[string]Position)
	t.stale = false
	t.mu.Unlock()
}
