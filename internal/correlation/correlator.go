// Package correlation issues request identifiers for outbound requests and
// remembers which of them still await a reply.
package correlation

import (
	"strconv"
	"sync"
	"time"

	"github.com/Aidin1998/fixgate/pkg/metrics"
	"go.uber.org/zap"
)

// DefaultCeiling is the largest id handed out before the counter wraps.
const DefaultCeiling = 65535

// Kind names what an outstanding request asked for.
type Kind string

const (
	KindTradingStatus Kind = "TRADING_STATUS"
	KindAccounts      Kind = "ACCOUNTS"
	KindPositions     Kind = "POSITIONS"
	KindSubscribe     Kind = "SUBSCRIBE"
	KindUnsubscribe   Kind = "UNSUBSCRIBE"
	KindNewOrder      Kind = "NEW_ORDER"
	KindCancelOrder   Kind = "CANCEL_ORDER"
	KindClosePosition Kind = "CLOSE_POSITION"
)

// Pending describes an outstanding request.
type Pending struct {
	ID      string
	Kind    Kind
	Symbol  string
	Account string
	// Ref is the client reference the request acts on (ClOrdID for orders).
	Ref    string
	SentAt time.Time
}

// Correlator hands out ids from a bounded counter. Once the ceiling has been
// returned the next id is 1 again. A wrapped id is reissued even when an
// earlier request holding it never got a reply; Track logs and counts that.
type Correlator struct {
	mu      sync.Mutex
	next    uint32
	ceiling uint32
	pending map[string]Pending
	logger  *zap.Logger
}

// New creates a correlator. A ceiling of zero selects DefaultCeiling.
func New(ceiling uint32, logger *zap.Logger) *Correlator {
	if ceiling == 0 {
		ceiling = DefaultCeiling
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Correlator{
		next:    1,
		ceiling: ceiling,
		pending: make(map[string]Pending),
		logger:  logger.Named("correlator"),
	}
}

// Next returns the next request id.
func (c *Correlator) Next() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.next
	if c.next >= c.ceiling {
		c.next = 1
	} else {
		c.next++
	}
	return strconv.FormatUint(uint64(id), 10)
}

// Track records id as outstanding.
func (c *Correlator) Track(p Pending) (prev Pending, collided bool) {
	if p.SentAt.IsZero() {
		p.SentAt = time.Now()
	}

	c.mu.Lock()
	prev, collided = c.pending[p.ID]
	c.pending[p.ID] = p
	n := len(c.pending)
	c.mu.Unlock()

	metrics.OutstandingRequests.Set(float64(n))
	if collided {
		metrics.CorrelationCollisions.Inc()
		c.logger.Warn("Correlation id reissued while still outstanding",
			zap.String("id", p.ID),
			zap.String("previous_kind", string(prev.Kind)),
			zap.String("kind", string(p.Kind)),
			zap.Time("previous_sent_at", prev.SentAt))
	}
	return prev, collided
}

// Release forgets id after its request could not be sent. When tracking it
// had displaced an outstanding entry, that entry is put back.
func (c *Correlator) Release(id string, prev Pending, collided bool) {
	c.mu.Lock()
	if collided {
		c.pending[id] = prev
	} else {
		delete(c.pending, id)
	}
	n := len(c.pending)
	c.mu.Unlock()
	metrics.OutstandingRequests.Set(float64(n))
}

// Pending returns the outstanding request for id without resolving it.
func (c *Correlator) Pending(id string) (Pending, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pending[id]
	return p, ok
}

// Resolve removes id from the outstanding set and returns what it asked for.
func (c *Correlator) Resolve(id string) (Pending, bool) {
	c.mu.Lock()
	p, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	n := len(c.pending)
	c.mu.Unlock()

	if ok {
		metrics.OutstandingRequests.Set(float64(n))
	}
	return p, ok
}

// Outstanding returns the number of requests awaiting a reply.
func (c *Correlator) Outstanding() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Reset forgets every outstanding request.
func (c *Correlator) Reset() {
	c.mu.Lock()
	c.pending = make(map[string]Pending)
	c.mu.Unlock()
	metrics.OutstandingRequests.Set(0)
}
