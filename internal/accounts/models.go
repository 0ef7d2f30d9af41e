// Package accounts keeps the broker accounts discovered through collateral
// reports and their authoritative balances.
package accounts

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is one broker account under the login.
type Account struct {
	ID       string          `json:"id"`
	Balance  decimal.Decimal `json:"balance"`
	Currency string          `json:"currency,omitempty"`
	// Parties holds the party sub ids of the collateral report keyed by sub id type.
	Parties      map[string]string `json:"parties,omitempty"`
	HasBalance   bool              `json:"has_balance"`
	DiscoveredAt time.Time         `json:"discovered_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

func (a Account) clone() Account {
	if a.Parties != nil {
		parties := make(map[string]string, len(a.Parties))
		for k, v := range a.Parties {
			parties[k] = v
		}
		a.Parties = parties
	}
	return a
}
