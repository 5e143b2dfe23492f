// Package correlation implements exposure limits that account for shared
// underlyings. Equity holdings and option legs written on the same
// underlying carry correlated risk: this package aggregates absolute
// notional exposure per underlying and enforces both per-symbol and
// correlated caps before an order reaches the buying-power checks.
package correlation

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/quantfold/position-engine/internal/contract"
)

var (
	// ErrPerSymbolLimitExceeded is returned when a trade would push a
	// single symbol's exposure beyond the per-symbol maximum.
	ErrPerSymbolLimitExceeded = errors.New("correlation: per-symbol exposure limit exceeded")

	// ErrCorrelatedLimitExceeded is returned when a trade would push the
	// aggregate exposure across securities sharing an underlying beyond
	// the correlated maximum.
	ErrCorrelatedLimitExceeded = errors.New("correlation: correlated exposure limit exceeded")
)

// ExposureLimiter enforces exposure limits with underlying-correlation
// awareness. Correlation detection derives the underlying symbol from each
// security's symbol (OCC option symbols resolve to their underlying, plain
// symbols to themselves).
type ExposureLimiter struct {
	// MaxPerSymbol is the maximum absolute net exposure in any single symbol.
	MaxPerSymbol decimal.Decimal

	// MaxCorrelated is the maximum aggregate absolute exposure across all
	// symbols sharing an underlying.
	MaxCorrelated decimal.Decimal
}

// NewExposureLimiter creates a limiter with the given per-symbol and
// correlated exposure limits.
func NewExposureLimiter(maxPerSymbol, maxCorrelated decimal.Decimal) *ExposureLimiter {
	return &ExposureLimiter{
		MaxPerSymbol:  maxPerSymbol,
		MaxCorrelated: maxCorrelated,
	}
}

// CheckLimit validates whether a contemplated exposure change respects the
// limits.
//
// Parameters:
//   - symbol: the security being traded
//   - exposureDelta: signed change in exposure
//   - existing: map of symbol → current net exposure
//
// Returns nil if the trade is within limits, or an error describing the
// violation.
func (l *ExposureLimiter) CheckLimit(
	symbol string,
	exposureDelta decimal.Decimal,
	existing map[string]decimal.Decimal,
) error {
	// 1. Per-symbol limit.
	newPosition := existing[symbol].Add(exposureDelta)
	if newPosition.Abs().GreaterThan(l.MaxPerSymbol) {
		return ErrPerSymbolLimitExceeded
	}

	// 2. Correlated exposure: sum |exposure| across symbols sharing the
	// target's underlying.
	targetUnderlying := contract.Underlying(symbol)
	totalCorrelated := newPosition.Abs()

	for other, exposure := range existing {
		if other == symbol {
			continue // already counted via newPosition above
		}
		if contract.Underlying(other) == targetUnderlying {
			totalCorrelated = totalCorrelated.Add(exposure.Abs())
		}
	}

	if totalCorrelated.GreaterThan(l.MaxCorrelated) {
		return ErrCorrelatedLimitExceeded
	}

	return nil
}
