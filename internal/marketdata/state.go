package marketdata

import (
	"sync"
	"time"

	"github.com/Aidin1998/fixgate/pkg/errors"
	"github.com/tidwall/btree"
)

// State keeps instruments, snapshots and details. Snapshots are
// last-write-wins in arrival order; no sequence check is made here.
type State struct {
	mu          sync.RWMutex
	instruments btree.Map[string, Instrument]
	snapshots   map[string]Snapshot
	details     map[string]Detail
	stale       bool
	now         func() time.Time
}

// NewState creates an empty market state.
func NewState() *State {
	return &State{
		snapshots: make(map[string]Snapshot),
		details:   make(map[string]Detail),
		now:       time.Now,
	}
}

// UpdateSnapshot replaces the snapshot for s.Symbol.
func (st *State) UpdateSnapshot(s Snapshot) {
	st.mu.Lock()
	st.snapshots[s.Symbol] = s
	st.stale = false
	st.mu.Unlock()
}

// LatestSnapshot returns the last snapshot received for symbol.
func (st *State) LatestSnapshot(symbol string) (Snapshot, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.snapshots[symbol]
	if !ok {
		return Snapshot{}, errors.NotFound.Explain("no snapshot for %s", symbol)
	}
	return s, nil
}

// SetDetail stores static market detail for d.Symbol.
func (st *State) SetDetail(d Detail) {
	st.mu.Lock()
	st.details[d.Symbol] = d
	st.mu.Unlock()
}

// MarketDetail returns the static detail for symbol.
func (st *State) MarketDetail(symbol string) (Detail, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	d, ok := st.details[symbol]
	if !ok {
		return Detail{}, errors.NotFound.Explain("no market detail for %s", symbol)
	}
	return d, nil
}

// AddInstrument registers inst unless its symbol is already known. It
// reports whether the instrument was added.
func (st *State) AddInstrument(inst Instrument) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, ok := st.instruments.Get(inst.Symbol); ok {
		return false
	}
	if inst.AddedAt.IsZero() {
		inst.AddedAt = st.now()
	}
	st.instruments.Set(inst.Symbol, inst)
	return true
}

// Instrument returns the instrument registered for symbol.
func (st *State) Instrument(symbol string) (Instrument, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	inst, ok := st.instruments.Get(symbol)
	if !ok {
		return Instrument{}, errors.NotFound.Explain("instrument %s not registered", symbol)
	}
	return inst, nil
}

// Instruments returns all instruments ordered by symbol.
func (st *State) Instruments() []Instrument {
	st.mu.RLock()
	defer st.mu.RUnlock()
	out := make([]Instrument, 0, st.instruments.Len())
	st.instruments.Scan(func(_ string, inst Instrument) bool {
		out = append(out, inst)
		return true
	})
	return out
}

// Subscribed returns the instruments with an active subscription.
func (st *State) Subscribed() []Instrument {
	var out []Instrument
	for _, inst := range st.Instruments() {
		if inst.Subscribed() {
			out = append(out, inst)
		}
	}
	return out
}

// MarkSubscribed registers symbol if needed and bumps its subscription
// volume. first is true when the instrument was not subscribed before, in
// which case reqID becomes its subscription id.
func (st *State) MarkSubscribed(symbol, reqID string) (inst Instrument, first bool) {
	st.mu.Lock()
	defer st.mu.Unlock()

	inst, ok := st.instruments.Get(symbol)
	if !ok {
		inst = Instrument{Symbol: symbol, AddedAt: st.now()}
		if d, ok := st.details[symbol]; ok {
			inst.TickSize = d.PointSize
		}
	}
	first = inst.Volume == 0
	if first {
		inst.SubscriptionID = reqID
	}
	inst.Volume++
	st.instruments.Set(symbol, inst)
	return inst, first
}

// MarkUnsubscribed drops one subscription from symbol. last is true when
// the volume reached zero; the returned instrument still carries the
// subscription id to cancel.
func (st *State) MarkUnsubscribed(symbol string) (inst Instrument, last bool) {
	st.mu.Lock()
	defer st.mu.Unlock()

	inst, ok := st.instruments.Get(symbol)
	if !ok || inst.Volume == 0 {
		return inst, false
	}
	inst.Volume--
	last = inst.Volume == 0
	out := inst
	if last {
		inst.SubscriptionID = ""
	}
	st.instruments.Set(symbol, inst)
	return out, last
}

// AbortSubscribed undoes a MarkSubscribed whose request was never sent.
// An instrument left without subscriptions and unknown to the security list
// only existed for that request and is removed.
func (st *State) AbortSubscribed(symbol string) {
	st.mu.Lock()
	defer st.mu.Unlock()

	inst, ok := st.instruments.Get(symbol)
	if !ok || inst.Volume == 0 {
		return
	}
	inst.Volume--
	if inst.Volume > 0 {
		st.instruments.Set(symbol, inst)
		return
	}
	if _, listed := st.details[symbol]; !listed {
		st.instruments.Delete(symbol)
		return
	}
	inst.SubscriptionID = ""
	st.instruments.Set(symbol, inst)
}

// ResetSubscription marks symbol as not subscribed, whatever its volume.
func (st *State) ResetSubscription(symbol string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if inst, ok := st.instruments.Get(symbol); ok {
		inst.Volume = 0
		inst.SubscriptionID = ""
		st.instruments.Set(symbol, inst)
	}
}

// SetSubscriptionID replaces the subscription id of a subscribed instrument,
// used when a subscription is renewed after reconnecting.
func (st *State) SetSubscriptionID(symbol, reqID string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if inst, ok := st.instruments.Get(symbol); ok {
		inst.SubscriptionID = reqID
		st.instruments.Set(symbol, inst)
	}
}

// RemoveInstrument drops symbol together with its snapshot and returns the
// instrument as it was. Market detail is reference data and is kept.
func (st *State) RemoveInstrument(symbol string) (Instrument, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	inst, ok := st.instruments.Delete(symbol)
	if !ok {
		return Instrument{}, errors.NotFound.Explain("instrument %s not registered", symbol)
	}
	delete(st.snapshots, symbol)
	return inst, nil
}

// MarkStale flags the state as possibly outdated until the next snapshot.
func (st *State) MarkStale() {
	st.mu.Lock()
	st.stale = true
	st.mu.Unlock()
}

// Stale reports whether the state has been marked stale since its last update.
func (st *State) Stale() bool {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.stale
}

// Clear drops everything.
func (st *State) Clear() {
	st.mu.Lock()
	st.instruments = btree.Map[string, Instrument]{}
	st.snapshots = make(map[string]Snapshot)
	st.details = make(map[string]Detail)
	st.stale = false
	st.mu.Unlock()
}
