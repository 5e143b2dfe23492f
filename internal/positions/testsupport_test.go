package positions

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/quantfold/position-engine/internal/model"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// stubProvider is a trivial buying-power provider for grouping tests that
// never price anything.
type stubProvider struct{}

func (stubProvider) MaintenanceMargin(*Group, bool) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

func (stubProvider) InitialMargin(*Group) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

func (stubProvider) OrderFees(*Group) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

func newTestDescriptor() *DefaultDescriptor {
	return NewDefaultDescriptor(stubProvider{})
}

// pairDescriptor groups opposing positions in two fixed symbols into a
// two-leg group: +1 unit of the long symbol per -1 unit of the short symbol.
// It stands in for real multi-leg strategy matchers in pipeline tests.
type pairDescriptor struct {
	name     string
	longSym  string
	shortSym string
	provider BuyingPowerProvider
}

func newPairDescriptor(name, longSym, shortSym string) *pairDescriptor {
	return &pairDescriptor{
		name:     name,
		longSym:  longSym,
		shortSym: shortSym,
		provider: stubProvider{},
	}
}

func (p *pairDescriptor) Name() string { return p.name }

func (p *pairDescriptor) Resolver() Resolver { return &pairResolver{descriptor: p} }

func (p *pairDescriptor) BuyingPower() BuyingPowerProvider { return p.provider }

func (p *pairDescriptor) CreatePosition(sec model.Security, units decimal.Decimal) Position {
	unit := sec.LotSize
	if sec.Symbol == p.shortSym {
		unit = unit.Neg()
	}
	return NewPosition(sec.Symbol, units, unit)
}

func (p *pairDescriptor) CreateGroup(quantity decimal.Decimal, ps []Position) (*Group, error) {
	return NewGroup(NewGroupKey(p, ps), quantity, ps), nil
}

func (p *pairDescriptor) ImpactedGroups(gc *GroupCollection, symbol string) []*Group {
	return gc.GroupsForSymbol(symbol)
}

// pairResolver claims min(longUnits, -shortUnits) matched units between the
// pair's symbols and leaves the remainder in the pool.
type pairResolver struct {
	descriptor *pairDescriptor
}

func (r *pairResolver) Resolve(pool *Collection) (*GroupCollection, error) {
	longs := pool.ForSymbol(r.descriptor.longSym)
	shorts := pool.ForSymbol(r.descriptor.shortSym)
	if len(longs) != 1 || len(shorts) != 1 {
		return NewGroupCollection(), nil
	}

	longPos, shortPos := longs[0], shorts[0]
	if longPos.Quantity.Sign() <= 0 || shortPos.Quantity.Sign() >= 0 {
		return NewGroupCollection(), nil
	}

	matched := decimal.Min(longPos.Units(), shortPos.Quantity.Neg().Div(shortPos.UnitQuantity))
	matched = matched.Floor()
	if matched.Sign() <= 0 {
		return NewGroupCollection(), nil
	}

	pool.Remove(longPos)
	pool.Remove(shortPos)

	legs := []Position{
		NewPosition(longPos.Symbol, matched, longPos.UnitQuantity),
		NewPosition(shortPos.Symbol, matched, shortPos.UnitQuantity.Neg()),
	}
	sort.Slice(legs, func(i, j int) bool { return legs[i].Symbol < legs[j].Symbol })

	// Return unmatched residuals to the pool.
	if rem := longPos.Units().Sub(matched); rem.Sign() > 0 {
		pool.Add(NewPosition(longPos.Symbol, rem, longPos.UnitQuantity))
	}
	if rem := shortPos.Quantity.Neg().Div(shortPos.UnitQuantity).Sub(matched); rem.Sign() > 0 {
		pool.Add(NewPosition(shortPos.Symbol, rem.Neg(), shortPos.UnitQuantity))
	}

	g, err := r.descriptor.CreateGroup(matched, legs)
	if err != nil {
		return nil, err
	}
	return NewGroupCollection(g), nil
}
