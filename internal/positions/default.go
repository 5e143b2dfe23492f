package positions

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/quantfold/position-engine/internal/model"
)

// DefaultDescriptorName is the name of the always-present single-security
// group type.
const DefaultDescriptorName = "security"

// DefaultDescriptor is the identity group type: one security per group,
// unit quantity equal to the security's lot size. One instance always
// exists per manager and its resolver runs last, which guarantees totality
// of the resolution pipeline.
type DefaultDescriptor struct {
	provider BuyingPowerProvider
	resolver Resolver
}

// NewDefaultDescriptor creates the default descriptor priced by provider.
func NewDefaultDescriptor(provider BuyingPowerProvider) *DefaultDescriptor {
	d := &DefaultDescriptor{provider: provider}
	d.resolver = &identityResolver{descriptor: d}
	return d
}

func (d *DefaultDescriptor) Name() string {
	return DefaultDescriptorName
}

func (d *DefaultDescriptor) Resolver() Resolver {
	return d.resolver
}

func (d *DefaultDescriptor) BuyingPower() BuyingPowerProvider {
	return d.provider
}

// CreatePosition builds a single-security position of units lots.
func (d *DefaultDescriptor) CreatePosition(sec model.Security, units decimal.Decimal) Position {
	return NewPosition(sec.Symbol, units, sec.LotSize)
}

// CreateGroup builds a single-security group. Exactly one member position
// is required.
func (d *DefaultDescriptor) CreateGroup(quantity decimal.Decimal, ps []Position) (*Group, error) {
	if len(ps) != 1 {
		return nil, fmt.Errorf("%w: default group requires exactly 1 position, got %d",
			ErrWrongGroupArity, len(ps))
	}
	return NewGroup(NewGroupKey(d, ps), quantity, ps), nil
}

// ImpactedGroups returns every existing group containing symbol: any group
// sharing the symbol can change membership when its position changes.
func (d *DefaultDescriptor) ImpactedGroups(gc *GroupCollection, symbol string) []*Group {
	return gc.GroupsForSymbol(symbol)
}

// identityResolver is the terminal resolver: it claims every remaining
// position and emits exactly one default group per distinct symbol.
type identityResolver struct {
	descriptor *DefaultDescriptor
}

func (r *identityResolver) Resolve(pool *Collection) (*GroupCollection, error) {
	var groups []*Group
	for _, symbol := range pool.Symbols() {
		remaining := pool.RemoveSymbol(symbol)

		// A single already-default position is reused as-is; multiple
		// residual positions for a symbol are summed into one synthesized
		// default position at the first position's unit quantity.
		member := remaining[0]
		if len(remaining) > 1 {
			total := decimal.Zero
			for _, p := range remaining {
				total = total.Add(p.Quantity)
			}
			member = Position{
				Symbol:       symbol,
				Quantity:     total,
				UnitQuantity: remaining[0].UnitQuantity,
			}
		}

		g, err := r.descriptor.CreateGroup(member.Units(), []Position{member})
		if err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return NewGroupCollection(groups...), nil
}
