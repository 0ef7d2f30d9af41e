package session

import (
	"sync"

	"github.com/Aidin1998/fixgate/pkg/metrics"
	"go.uber.org/zap"
)

// ID is the opaque handle of one engine session.
type ID string

// SettingsSource exposes the static per-session configuration.
type SettingsSource interface {
	// BoolSetting returns the value of key for the session. ok is false when
	// the session or key is unknown or the value is not a boolean.
	BoolSetting(id ID, key string) (value bool, ok bool)
}

// MapSettings is a SettingsSource backed by a map, keyed by session then setting.
type MapSettings map[ID]map[string]bool

// BoolSetting implements SettingsSource.
func (m MapSettings) BoolSetting(id ID, key string) (bool, bool) {
	s, ok := m[id]
	if !ok {
		return false, false
	}
	v, ok := s[key]
	return v, ok
}

// Resolver classifies sessions and remembers which ones are logged on.
// Roles are resolved once at logon and cached until logout.
type Resolver struct {
	settings SettingsSource
	logger   *zap.Logger

	mu       sync.RWMutex
	loggedOn map[ID]Roles
	order    []ID // logon order, first logged on wins routing
}

// NewResolver creates a resolver over the given settings source.
func NewResolver(settings SettingsSource, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		settings: settings,
		logger:   logger.Named("session"),
		loggedOn: make(map[ID]Roles),
	}
}

// Resolve reads the role flags for id. Missing flags count as false.
func (r *Resolver) Resolve(id ID) Roles {
	var roles Roles
	if v, ok := r.settings.BoolSetting(id, SettingMarketDataSession); ok && v {
		roles |= Roles(MarketData)
	}
	if v, ok := r.settings.BoolSetting(id, SettingOrderSession); ok && v {
		roles |= Roles(Order)
	}
	return roles
}

// Change is the outcome of a logon or logout. The connected states before
// and after are taken under the same lock, so of two concurrent logons
// only one observes the gateway becoming connected.
type Change struct {
	Roles        Roles
	WasConnected bool
	Connected    bool
}

// Up reports whether the change completed the set of served roles.
func (c Change) Up() bool { return !c.WasConnected && c.Connected }

// Down reports whether the change broke the set of served roles.
func (c Change) Down() bool { return c.WasConnected && !c.Connected }

// Logon marks id as logged on and returns its roles.
func (r *Resolver) Logon(id ID) Change {
	c := Change{Roles: r.Resolve(id)}

	r.mu.Lock()
	c.WasConnected = r.connected()
	if _, ok := r.loggedOn[id]; !ok {
		r.order = append(r.order, id)
	}
	r.loggedOn[id] = c.Roles
	c.Connected = r.connected()
	r.mu.Unlock()

	r.updateGauges()
	r.logger.Info("Session logged on", zap.String("session", string(id)), zap.Stringer("roles", c.Roles))
	return c
}

// Logout drops id from the logged-on set and returns the roles it held.
func (r *Resolver) Logout(id ID) Change {
	var c Change
	r.mu.Lock()
	c.WasConnected = r.connected()
	roles, ok := r.loggedOn[id]
	if ok {
		delete(r.loggedOn, id)
		for i, s := range r.order {
			if s == id {
				r.order = append(r.order[:i], r.order[i+1:]...)
				break
			}
		}
	}
	c.Connected = r.connected()
	r.mu.Unlock()

	if !ok {
		roles = r.Resolve(id)
	}
	c.Roles = roles
	r.updateGauges()
	r.logger.Info("Session logged out", zap.String("session", string(id)), zap.Stringer("roles", roles))
	return c
}

// Roles returns the cached roles of a logged-on session.
func (r *Resolver) Roles(id ID) (Roles, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	roles, ok := r.loggedOn[id]
	return roles, ok
}

// SessionFor returns the first logged-on session holding role.
func (r *Resolver) SessionFor(role Role) (ID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessionFor(role)
}

func (r *Resolver) sessionFor(role Role) (ID, bool) {
	for _, id := range r.order {
		if r.loggedOn[id].Has(role) {
			return id, true
		}
	}
	return "", false
}

// Serves reports whether some logged-on session holds role.
func (r *Resolver) Serves(role Role) bool {
	_, ok := r.SessionFor(role)
	return ok
}

// Connected reports whether both market data and order roles are served.
func (r *Resolver) Connected() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.connected()
}

// connected requires r.mu.
func (r *Resolver) connected() bool {
	_, md := r.sessionFor(MarketData)
	_, ord := r.sessionFor(Order)
	return md && ord
}

// Reset forgets every logged-on session.
func (r *Resolver) Reset() {
	r.mu.Lock()
	r.loggedOn = make(map[ID]Roles)
	r.order = nil
	r.mu.Unlock()
	r.updateGauges()
}

func (r *Resolver) updateGauges() {
	counts := map[Role]int{MarketData: 0, Order: 0}
	r.mu.RLock()
	for _, roles := range r.loggedOn {
		for _, role := range roles.List() {
			counts[role]++
		}
	}
	r.mu.RUnlock()
	for role, n := range counts {
		metrics.SessionsLoggedOn.WithLabelValues(role.String()).Set(float64(n))
	}
}
