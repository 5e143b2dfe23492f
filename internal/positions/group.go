package positions

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Group is an immutable snapshot of a resolved position group: its key, the
// member positions in canonical order, and the signed group quantity — the
// unit count common to all members (positive long, zero flat, negative
// short). Groups are replaced wholesale on re-resolution, never edited.
type Group struct {
	key       GroupKey
	positions []Position
	quantity  decimal.Decimal
}

// NewGroup builds a group from its key, unit count, and ordered members.
func NewGroup(key GroupKey, quantity decimal.Decimal, ps []Position) *Group {
	members := make([]Position, len(ps))
	copy(members, ps)
	return &Group{key: key, positions: members, quantity: quantity}
}

// NewGroupFromPositions derives the key from the descriptor and the group
// quantity from the first member's unit count. All members share the same
// unit count by construction.
func NewGroupFromPositions(d Descriptor, ps []Position) *Group {
	quantity := decimal.Zero
	if len(ps) > 0 {
		quantity = ps[0].Units()
	}
	return NewGroup(NewGroupKey(d, ps), quantity, ps)
}

// Key returns the group's deterministic identity.
func (g *Group) Key() GroupKey {
	return g.key
}

// Quantity is the signed unit count held.
func (g *Group) Quantity() decimal.Decimal {
	return g.quantity
}

// Len is the number of member positions (legs).
func (g *Group) Len() int {
	return len(g.positions)
}

// Positions returns a copy of the member positions in canonical order.
func (g *Group) Positions() []Position {
	out := make([]Position, len(g.positions))
	copy(out, g.positions)
	return out
}

// Position returns the member for symbol. Linear scan; groups are small.
func (g *Group) Position(symbol string) (Position, error) {
	for _, p := range g.positions {
		if p.Symbol == symbol {
			return p, nil
		}
	}
	return Position{}, fmt.Errorf("%w: %s in group %s", ErrSymbolNotInGroup, symbol, g.key.id)
}

// IsEmpty reports whether the group is flat.
func (g *Group) IsEmpty() bool {
	return g.quantity.IsZero()
}

// Side is the direction of the group.
func (g *Group) Side() Side {
	return sideOf(g.quantity)
}

// IsUnit reports whether the group is exactly one unit: each member's
// quantity equals its own unit quantity.
func (g *Group) IsUnit() bool {
	for _, p := range g.positions {
		if !p.Quantity.Equal(p.UnitQuantity) {
			return false
		}
	}
	return true
}

// Empty returns the group with every position zeroed. If the group is
// already empty the receiver is returned unchanged; aliasing is safe since
// groups are immutable.
func (g *Group) Empty() *Group {
	if g.IsEmpty() {
		return g
	}
	return g.WithQuantity(decimal.Zero)
}

// Negate flips every member's quantity, turning a long group short and
// vice versa. Empty groups are returned unchanged.
func (g *Group) Negate() *Group {
	if g.IsEmpty() {
		return g
	}
	return g.WithQuantity(g.quantity.Neg())
}

// WithQuantity rescales the group to hold target units, preserving the
// ratio between legs defined by the key's unit quantities. If the group is
// already at target the receiver is returned unchanged. Legs cannot be
// scaled individually without destroying the group's economic identity.
func (g *Group) WithQuantity(target decimal.Decimal) *Group {
	if g.quantity.Equal(target) {
		return g
	}
	scaled := make([]Position, len(g.positions))
	for i, p := range g.positions {
		scaled[i] = p.WithUnits(target)
	}
	return &Group{key: g.key, positions: scaled, quantity: target}
}

// WithUnitQuantities rescales the group to exactly one unit.
func (g *Group) WithUnitQuantities() *Group {
	return g.WithQuantity(decimal.NewFromInt(1))
}

func (g *Group) String() string {
	return fmt.Sprintf("%s x%s", g.key.id, g.quantity)
}
