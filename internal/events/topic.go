// Package events is the publish/subscribe surface of the gateway. Each event
// kind has its own typed Topic; handlers run synchronously on the publishing
// goroutine in registration order.
package events

import (
	"fmt"
	"sync"

	"github.com/Aidin1998/fixgate/pkg/metrics"
	"go.uber.org/zap"
)

// Handler handles one event. A returned error is logged and counted; it does
// not stop delivery to the remaining handlers.
type Handler[E any] func(E) error

type subscription[E any] struct {
	id uint64
	h  Handler[E]
}

// Topic is the handler registry of one event kind.
type Topic[E any] struct {
	name   string
	logger *zap.Logger

	mu     sync.RWMutex
	subs   []subscription[E]
	nextID uint64
}

// NewTopic creates an empty topic.
func NewTopic[E any](name string, logger *zap.Logger) *Topic[E] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Topic[E]{name: name, logger: logger}
}

// Name returns the topic name.
func (t *Topic[E]) Name() string { return t.name }

// Subscribe registers h and returns a func that removes it again.
func (t *Topic[E]) Subscribe(h Handler[E]) (unsubscribe func()) {
	t.mu.Lock()
	t.nextID++
	id := t.nextID
	t.subs = append(t.subs, subscription[E]{id: id, h: h})
	t.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			for i, s := range t.subs {
				if s.id == id {
					t.subs = append(t.subs[:i:i], t.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Handle registers a handler that cannot fail.
func (t *Topic[E]) Handle(fn func(E)) (unsubscribe func()) {
	return t.Subscribe(func(e E) error {
		fn(e)
		return nil
	})
}

// Len returns the number of registered handlers.
func (t *Topic[E]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.subs)
}

// Publish delivers e to every handler registered at the time of the call and
// returns how many of them succeeded. With no handlers the event is dropped.
func (t *Topic[E]) Publish(e E) (delivered int) {
	t.mu.RLock()
	subs := append([]subscription[E](nil), t.subs...)
	t.mu.RUnlock()

	for _, s := range subs {
		if err := t.invoke(s.h, e); err != nil {
			metrics.HandlerFailures.WithLabelValues(t.name).Inc()
			t.logger.Error("event handler failed", zap.String("topic", t.name), zap.Error(err))
			continue
		}
		delivered++
	}
	return delivered
}

func (t *Topic[E]) invoke(h Handler[E], e E) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(e)
}
