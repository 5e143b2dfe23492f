// Package positions implements position grouping for the engine: the
// mutable pool of ungrouped positions, deterministic group keys, immutable
// position groups with ratio-preserving rescaling, the resolver pipeline
// that partitions the pool into non-overlapping groups, and the manager
// that keeps the published grouping in sync with holdings.
//
// All quantities use shopspring/decimal — never float64 for money.
package positions

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Side is the direction of a position or group: short, flat, or long.
type Side int

const (
	SideShort Side = -1
	SideNone  Side = 0
	SideLong  Side = 1
)

func (s Side) String() string {
	switch s {
	case SideShort:
		return "short"
	case SideLong:
		return "long"
	default:
		return "none"
	}
}

// sideOf maps a decimal sign to a Side.
func sideOf(d decimal.Decimal) Side {
	switch d.Sign() {
	case -1:
		return SideShort
	case 1:
		return SideLong
	default:
		return SideNone
	}
}

// Position is an immutable holding of one security: a signed quantity and
// the unit quantity defining its lot step. For a plain equity the unit
// quantity is the lot size; inside a multi-leg group it is the per-leg
// ratio (e.g. 100 shares per short call). Quantity is always an integer
// multiple of UnitQuantity.
type Position struct {
	Symbol       string          `json:"symbol"`
	Quantity     decimal.Decimal `json:"quantity"`
	UnitQuantity decimal.Decimal `json:"unit_quantity"`
}

// NewPosition creates a position holding units*unitQuantity of symbol.
func NewPosition(symbol string, units, unitQuantity decimal.Decimal) Position {
	return Position{
		Symbol:       symbol,
		Quantity:     units.Mul(unitQuantity),
		UnitQuantity: unitQuantity,
	}
}

// Units is the implied group-unit count: Quantity / UnitQuantity.
func (p Position) Units() decimal.Decimal {
	return p.Quantity.Div(p.UnitQuantity)
}

// Side is the direction of the position.
func (p Position) Side() Side {
	return sideOf(p.Quantity)
}

// WithUnits returns a copy of the position scaled to the given unit count,
// preserving the unit quantity.
func (p Position) WithUnits(units decimal.Decimal) Position {
	return Position{
		Symbol:       p.Symbol,
		Quantity:     units.Mul(p.UnitQuantity),
		UnitQuantity: p.UnitQuantity,
	}
}

// Equal reports value equality of two positions.
func (p Position) Equal(o Position) bool {
	return p.Symbol == o.Symbol &&
		p.Quantity.Equal(o.Quantity) &&
		p.UnitQuantity.Equal(o.UnitQuantity)
}

func (p Position) String() string {
	return fmt.Sprintf("%s: %s (unit %s)", p.Symbol, p.Quantity, p.UnitQuantity)
}
