package securities

import (
	"sync"

	"github.com/shopspring/decimal"
)

// AccountView exposes the portfolio-level aggregates the buying-power engine
// consumes. Implementations must be safe for concurrent reads.
type AccountView interface {
	// TotalPortfolioValue is cash plus the market value of all holdings.
	TotalPortfolioValue() decimal.Decimal

	// MarginRemaining is the free buying power: total portfolio value minus
	// the buying power currently reserved by open position groups.
	MarginRemaining() decimal.Decimal

	// Currency is the account currency code, e.g. "USD".
	Currency() string
}

// Account is the default AccountView: cash balance plus the live universe,
// with reserved buying power supplied by a callback wired at startup (the
// margin engine summed over the current position groups).
type Account struct {
	mu       sync.RWMutex
	cash     decimal.Decimal
	currency string
	universe *Universe
	reserved func() decimal.Decimal
}

// NewAccount creates an account over universe with the given starting cash.
// reserved may be nil, in which case no buying power is considered reserved.
func NewAccount(universe *Universe, cash decimal.Decimal, currency string) *Account {
	return &Account{
		cash:     cash,
		currency: currency,
		universe: universe,
	}
}

// SetReservedFunc wires the callback that reports total reserved buying
// power. Called once during startup, before the account is shared.
func (a *Account) SetReservedFunc(fn func() decimal.Decimal) {
	a.mu.Lock()
	a.reserved = fn
	a.mu.Unlock()
}

// SetCash replaces the cash balance.
func (a *Account) SetCash(cash decimal.Decimal) {
	a.mu.Lock()
	a.cash = cash
	a.mu.Unlock()
}

// Cash returns the current cash balance.
func (a *Account) Cash() decimal.Decimal {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cash
}

func (a *Account) TotalPortfolioValue() decimal.Decimal {
	a.mu.RLock()
	total := a.cash
	a.mu.RUnlock()

	for _, sec := range a.universe.List() {
		if sec.Quantity.IsZero() {
			continue
		}
		value := sec.HoldingsValue()
		if sec.Quantity.Sign() < 0 {
			value = value.Neg()
		}
		total = total.Add(value)
	}
	return total
}

func (a *Account) MarginRemaining() decimal.Decimal {
	a.mu.RLock()
	reserved := a.reserved
	a.mu.RUnlock()

	remaining := a.TotalPortfolioValue()
	if reserved != nil {
		remaining = remaining.Sub(reserved())
	}
	return remaining
}

func (a *Account) Currency() string {
	return a.currency
}
