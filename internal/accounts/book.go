package accounts

import (
	"sync"
	"time"

	"github.com/Aidin1998/fixgate/pkg/errors"
	"github.com/shopspring/decimal"
)

// Book is the registry of known accounts. Ids keep the order in which they
// were first discovered. Balances are only ever written from broker reports.
type Book struct {
	mu       sync.RWMutex
	ids      []string
	accounts map[string]*Account
	stale    bool
	now      func() time.Time
}

// NewBook creates an empty account book.
func NewBook() *Book {
	return &Book{
		accounts: make(map[string]*Account),
		now:      time.Now,
	}
}

// RecordAccount adds id if it is not known yet and reports whether it was new.
func (b *Book) RecordAccount(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, created := b.record(id)
	return created
}

func (b *Book) record(id string) (*Account, bool) {
	if acc, ok := b.accounts[id]; ok {
		return acc, false
	}
	now := b.now()
	acc := &Account{ID: id, DiscoveredAt: now, UpdatedAt: now}
	b.accounts[id] = acc
	b.ids = append(b.ids, id)
	return acc, true
}

// UpdateBalance overwrites the balance of id, recording the account when it
// is new. It reports whether the account was new.
func (b *Book) UpdateBalance(id string, balance decimal.Decimal, currency string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	acc, created := b.record(id)
	acc.Balance = balance
	acc.HasBalance = true
	if currency != "" {
		acc.Currency = currency
	}
	acc.UpdatedAt = b.now()
	b.stale = false
	return created
}

// SetParties replaces the party details of id.
func (b *Book) SetParties(id string, parties map[string]string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	acc, _ := b.record(id)
	acc.Parties = make(map[string]string, len(parties))
	for k, v := range parties {
		acc.Parties[k] = v
	}
	acc.UpdatedAt = b.now()
}

// ListAccounts returns a copy of the known ids in discovery order.
func (b *Book) ListAccounts() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]string(nil), b.ids...)
}

// Account returns a copy of the account with the given id.
func (b *Book) Account(id string) (Account, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	acc, ok := b.accounts[id]
	if !ok {
		return Account{}, errors.NotFound.Explain("account %s not found", id)
	}
	return acc.clone(), nil
}

// Snapshot returns copies of all accounts in discovery order.
func (b *Book) Snapshot() []Account {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Account, 0, len(b.ids))
	for _, id := range b.ids {
		out = append(out, b.accounts[id].clone())
	}
	return out
}

// Len returns the number of known accounts.
func (b *Book) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.ids)
}

// MarkStale flags the book as possibly outdated. The next balance update
// clears the flag.
func (b *Book) MarkStale() {
	b.mu.Lock()
	b.stale = true
	b.mu.Unlock()
}

// Stale reports whether the book has been marked stale since its last update.
func (b *Book) Stale() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.stale
}

// Clear drops every account.
func (b *Book) Clear() {
	b.mu.Lock()
	b.ids = nil
	b.accounts = make(map[string]*Account)
	b.stale = false
	b.mu.Unlock()
}
