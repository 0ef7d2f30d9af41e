// Package testutil holds fakes shared by package tests.
package testutil

import (
	"context"
	"sync"

	"github.com/Aidin1998/fixgate/internal/commands"
	"github.com/Aidin1998/fixgate/internal/session"
)

// Sent is one request captured by a RecordingSender.
type Sent struct {
	Request commands.Request
	Session session.ID
}

// RecordingSender is a commands.Sender that keeps every request in memory.
// Err, when set, is returned by Send and nothing is recorded.
type RecordingSender struct {
	mu   sync.Mutex
	sent []Sent
	Err  error
}

// Send implements commands.Sender.
func (s *RecordingSender) Send(_ context.Context, req commands.Request, to session.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.sent = append(s.sent, Sent{Request: req, Session: to})
	return nil
}

// Sent returns the captured requests in send order.
func (s *RecordingSender) Sent() []Sent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Sent(nil), s.sent...)
}

// OfType returns the captured requests of type T.
func OfType[T commands.Request](s *RecordingSender) []T {
	var out []T
	for _, sent := range s.Sent() {
		if r, ok := sent.Request.(T); ok {
			out = append(out, r)
		}
	}
	return out
}

// Reset forgets the captured requests.
func (s *RecordingSender) Reset() {
	s.mu.Lock()
	s.sent = nil
	s.mu.Unlock()
}
