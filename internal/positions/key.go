package positions

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// UnitQuantity is one leg of a group key: a symbol and its per-unit ratio.
type UnitQuantity struct {
	Symbol string          `json:"symbol"`
	Unit   decimal.Decimal `json:"unit"`
}

// GroupKey is the deterministic identity of a position group: the
// descriptor plus the ordered (symbol, unit-quantity) pairs captured from
// the group's canonical position order. Groups with equal keys are fungible
// and can be merged or replaced. The key carries a precomputed canonical
// string so it can key Go maps; equality and hashing follow that string.
type GroupKey struct {
	descriptor Descriptor
	legs       []UnitQuantity
	id         string
}

// NewGroupKey captures a key from a descriptor and the ordered positions of
// a group.
func NewGroupKey(d Descriptor, ps []Position) GroupKey {
	legs := make([]UnitQuantity, len(ps))
	for i, p := range ps {
		legs[i] = UnitQuantity{Symbol: p.Symbol, Unit: p.UnitQuantity}
	}
	return newGroupKeyFromLegs(d, legs)
}

func newGroupKeyFromLegs(d Descriptor, legs []UnitQuantity) GroupKey {
	var b strings.Builder
	b.WriteString(d.Name())
	for _, leg := range legs {
		b.WriteByte('|')
		b.WriteString(leg.Symbol)
		b.WriteByte('@')
		b.WriteString(leg.Unit.String())
	}
	return GroupKey{descriptor: d, legs: legs, id: b.String()}
}

// Descriptor returns the group-type policy this key belongs to.
func (k GroupKey) Descriptor() Descriptor {
	return k.descriptor
}

// ID is the canonical string form of the key, stable across processes.
func (k GroupKey) ID() string {
	return k.id
}

// Equal reports whether two keys identify the same group type and leg
// structure. Order of legs matters, by construction convention.
func (k GroupKey) Equal(o GroupKey) bool {
	return k.id == o.id
}

// Legs returns a copy of the (symbol, unit-quantity) pairs in order.
func (k GroupKey) Legs() []UnitQuantity {
	out := make([]UnitQuantity, len(k.legs))
	copy(out, k.legs)
	return out
}

// UnitQuantity returns the per-unit ratio for symbol. Linear scan; groups
// are small.
func (k GroupKey) UnitQuantity(symbol string) (decimal.Decimal, error) {
	for _, leg := range k.legs {
		if leg.Symbol == symbol {
			return leg.Unit, nil
		}
	}
	return decimal.Zero, fmt.Errorf("%w: %s in key %s", ErrSymbolNotInGroup, symbol, k.id)
}

// CreatePosition builds the position for symbol at the given whole-group
// unit count, preserving the leg ratio the key defines. This is the
// canonical way to scale an entire group without destroying its economic
// identity.
func (k GroupKey) CreatePosition(symbol string, units decimal.Decimal) (Position, error) {
	unit, err := k.UnitQuantity(symbol)
	if err != nil {
		return Position{}, err
	}
	return NewPosition(symbol, units, unit), nil
}

func (k GroupKey) String() string {
	return k.id
}
