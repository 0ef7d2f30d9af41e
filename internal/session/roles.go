// Package session classifies engine sessions by the roles they serve and
// tracks which of them are logged on.
package session

import "strings"

// Role is one capability a session can serve.
type Role uint8

const (
	MarketData Role = 1 << iota
	Order
)

// Setting keys read from the per-session configuration.
const (
	SettingMarketDataSession = "MarketDataSession"
	SettingOrderSession      = "OrderSession"
)

func (r Role) String() string {
	switch r {
	case MarketData:
		return "market"
	case Order:
		return "order"
	default:
		return "unknown"
	}
}

// Roles is a set of Role values.
type Roles uint8

// NewRoles builds a set from the given roles.
func NewRoles(roles ...Role) Roles {
	var rs Roles
	for _, r := range roles {
		rs |= Roles(r)
	}
	return rs
}

// Has reports whether role is in the set.
func (rs Roles) Has(role Role) bool { return rs&Roles(role) != 0 }

// Empty reports whether the set holds no role.
func (rs Roles) Empty() bool { return rs == 0 }

// List returns the roles in the set.
func (rs Roles) List() []Role {
	var out []Role
	for _, r := range []Role{MarketData, Order} {
		if rs.Has(r) {
			out = append(out, r)
		}
	}
	return out
}

func (rs Roles) String() string {
	if rs.Empty() {
		return "none"
	}
	names := make([]string, 0, 2)
	for _, r := range rs.List() {
		names = append(names, r.String())
	}
	return strings.Join(names, "+")
}
