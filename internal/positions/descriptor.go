package positions

import (
	"github.com/shopspring/decimal"

	"github.com/quantfold/position-engine/internal/model"
)

// BuyingPowerProvider supplies the per-group-type margin formulas a
// descriptor's groups are priced with. The generic buying-power engine
// layers its derived algorithms (impact analysis, sufficiency checks, the
// maximum-quantity search) on top of these three operations.
type BuyingPowerProvider interface {
	// MaintenanceMargin is the margin required to continue holding the
	// group. currentHoldings distinguishes the live portfolio group from a
	// hypothetical regrouping produced by a what-if analysis.
	MaintenanceMargin(g *Group, currentHoldings bool) (decimal.Decimal, error)

	// InitialMargin is the margin required to open the group, excluding
	// order fees.
	InitialMargin(g *Group) (decimal.Decimal, error)

	// OrderFees estimates the fees, in account currency, to acquire the
	// group in a single order at its current quantity.
	OrderFees(g *Group) (decimal.Decimal, error)
}

// Descriptor is the per-group-type policy object: it names the group type,
// supplies the resolver that claims its positions from the pool, the
// buying-power provider that prices its groups, and the factory operations
// used during resolution and impact analysis. Descriptors are stateless
// with respect to any particular portfolio; selection is always by explicit
// descriptor reference, never by runtime type inspection.
type Descriptor interface {
	// Name uniquely identifies the group type within a manager. It appears
	// in group keys and in user-facing reasons.
	Name() string

	// Resolver returns the resolver that claims this descriptor's positions.
	Resolver() Resolver

	// BuyingPower returns the margin formulas for this group type.
	BuyingPower() BuyingPowerProvider

	// CreatePosition builds a position of the given unit count for sec,
	// using the descriptor's unit-quantity convention.
	CreatePosition(sec model.Security, units decimal.Decimal) Position

	// CreateGroup builds a group of the given unit count from the ordered
	// member positions.
	CreateGroup(quantity decimal.Decimal, ps []Position) (*Group, error)

	// ImpactedGroups returns the existing groups in gc whose margin could
	// change as a result of a position delta in symbol.
	ImpactedGroups(gc *GroupCollection, symbol string) []*Group
}
