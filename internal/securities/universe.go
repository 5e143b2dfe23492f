// Package securities maintains the live security universe the position engine
// operates against: per-symbol price, lot size, contract multiplier, and
// current signed holdings. Holdings changes are pushed to subscribers through
// explicit, caller-detached listeners — there are no hidden subscription
// lifetimes and no finalizers.
package securities

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/quantfold/position-engine/internal/model"
)

var (
	// ErrSecurityExists is returned when adding a symbol already tracked.
	ErrSecurityExists = errors.New("securities: security already exists")

	// ErrSecurityNotFound is returned when a symbol is not tracked.
	ErrSecurityNotFound = errors.New("securities: security not found")
)

// HoldingsListener is invoked synchronously whenever a security's holdings
// quantity changes, including the implicit change when a security with
// non-zero holdings is added or removed.
type HoldingsListener func(symbol string, previous, current decimal.Decimal)

// Universe is the mutable registry of tracked securities. Reads return
// copies; callers never observe in-place mutation.
type Universe struct {
	mu         sync.RWMutex
	securities map[string]*model.Security
	listeners  map[int]HoldingsListener
	nextListen int
}

// NewUniverse creates an empty security universe.
func NewUniverse() *Universe {
	return &Universe{
		securities: make(map[string]*model.Security),
		listeners:  make(map[int]HoldingsListener),
	}
}

// Add registers a new security. Defaults are applied for zero lot size and
// contract multiplier. If the security arrives with non-zero holdings,
// listeners are notified so group resolution can pick it up.
func (u *Universe) Add(sec model.Security) error {
	if sec.LotSize.IsZero() {
		sec.LotSize = decimal.NewFromInt(1)
	}
	if sec.ContractMultiplier.IsZero() {
		sec.ContractMultiplier = decimal.NewFromInt(1)
	}

	u.mu.Lock()
	if _, ok := u.securities[sec.Symbol]; ok {
		u.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrSecurityExists, sec.Symbol)
	}
	stored := sec
	u.securities[sec.Symbol] = &stored
	u.mu.Unlock()

	if !sec.Quantity.IsZero() {
		u.notify(sec.Symbol, decimal.Zero, sec.Quantity)
	}
	return nil
}

// Remove drops a security from the universe. Returns false if absent.
// Removing a security with open holdings notifies listeners with a
// transition to zero.
func (u *Universe) Remove(symbol string) bool {
	u.mu.Lock()
	sec, ok := u.securities[symbol]
	if !ok {
		u.mu.Unlock()
		return false
	}
	previous := sec.Quantity
	delete(u.securities, symbol)
	u.mu.Unlock()

	if !previous.IsZero() {
		u.notify(symbol, previous, decimal.Zero)
	}
	return true
}

// Get returns a copy of the security for symbol.
func (u *Universe) Get(symbol string) (model.Security, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()

	sec, ok := u.securities[symbol]
	if !ok {
		return model.Security{}, false
	}
	return *sec, true
}

// List returns copies of all tracked securities, ordered by symbol.
func (u *Universe) List() []model.Security {
	u.mu.RLock()
	out := make([]model.Security, 0, len(u.securities))
	for _, sec := range u.securities {
		out = append(out, *sec)
	}
	u.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// SetHoldings updates the signed holdings quantity for symbol and notifies
// listeners if the quantity actually changed.
func (u *Universe) SetHoldings(symbol string, quantity decimal.Decimal) error {
	u.mu.Lock()
	sec, ok := u.securities[symbol]
	if !ok {
		u.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrSecurityNotFound, symbol)
	}
	previous := sec.Quantity
	sec.Quantity = quantity
	u.mu.Unlock()

	if !previous.Equal(quantity) {
		u.notify(symbol, previous, quantity)
	}
	return nil
}

// SetPrice updates the last price for symbol. Price moves do not change
// group membership, so no listener fires.
func (u *Universe) SetPrice(symbol string, price decimal.Decimal) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	sec, ok := u.securities[symbol]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSecurityNotFound, symbol)
	}
	sec.Price = price
	return nil
}

// Subscribe registers a holdings listener and returns a detach func. The
// caller owns the subscription and must call detach when done with it.
func (u *Universe) Subscribe(l HoldingsListener) (detach func()) {
	u.mu.Lock()
	id := u.nextListen
	u.nextListen++
	u.listeners[id] = l
	u.mu.Unlock()

	return func() {
		u.mu.Lock()
		delete(u.listeners, id)
		u.mu.Unlock()
	}
}

func (u *Universe) notify(symbol string, previous, current decimal.Decimal) {
	u.mu.RLock()
	ls := make([]HoldingsListener, 0, len(u.listeners))
	for _, l := range u.listeners {
		ls = append(ls, l)
	}
	u.mu.RUnlock()

	for _, l := range ls {
		l(symbol, previous, current)
	}
}
