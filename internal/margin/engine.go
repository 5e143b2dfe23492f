// Package margin implements the buying-power engine for position groups:
// reserved-buying-power accounting, what-if impact analysis over a bounded
// regrouping, order sufficiency checks, and the bounded integer search for
// the maximum order quantity reaching a target buying-power level.
//
// Margin formulas themselves are supplied per group type through
// positions.BuyingPowerProvider; this package layers the derived,
// group-type-agnostic algorithms on top.
//
// All monetary values use shopspring/decimal — never float64 for money.
package margin

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/quantfold/position-engine/internal/positions"
	"github.com/quantfold/position-engine/internal/securities"
)

// ErrNoConvergence is returned when the maximum-quantity search oscillates
// between two adjacent estimates without entering the tolerance band. The
// wrapped message carries the target, last order margin, quantity, and unit
// margin needed to reproduce the failure.
var ErrNoConvergence = errors.New("margin: unable to converge on order quantity")

// maxSearchIterations bounds the quantity search. Margin versus quantity is
// only piecewise-linear under tiered fee schedules, so the secant step is
// not guaranteed to converge; past the bound the last estimate is accepted.
const maxSearchIterations = 5

var one = decimal.NewFromInt(1)

// Portfolio bundles the collaborators one evaluation runs against: the
// account aggregates, the live security universe, and the group manager.
type Portfolio struct {
	Account  securities.AccountView
	Universe *securities.Universe
	Manager  *positions.Manager
}

// Engine holds the derived buying-power algorithms. It is stateless apart
// from the configured free-buying-power buffer.
type Engine struct {
	requiredFreeBuyingPowerPercent decimal.Decimal
}

// NewEngine creates an engine withholding the given fraction of buying
// power as a buffer. The fraction is clamped to [0, 1).
func NewEngine(requiredFreeBuyingPowerPercent decimal.Decimal) *Engine {
	if requiredFreeBuyingPowerPercent.Sign() < 0 {
		requiredFreeBuyingPowerPercent = decimal.Zero
	}
	if requiredFreeBuyingPowerPercent.GreaterThanOrEqual(one) {
		requiredFreeBuyingPowerPercent = decimal.Zero
	}
	return &Engine{requiredFreeBuyingPowerPercent: requiredFreeBuyingPowerPercent}
}

// RequiredFreeBuyingPowerPercent returns the configured buffer fraction.
func (e *Engine) RequiredFreeBuyingPowerPercent() decimal.Decimal {
	return e.requiredFreeBuyingPowerPercent
}

func provider(g *positions.Group) positions.BuyingPowerProvider {
	return g.Key().Descriptor().BuyingPower()
}

// InitialMarginForOrder is the margin required to open the group in a
// single order, fee estimate included.
func (e *Engine) InitialMarginForOrder(g *positions.Group) (decimal.Decimal, error) {
	p := provider(g)
	initial, err := p.InitialMargin(g)
	if err != nil {
		return decimal.Zero, err
	}
	fees, err := p.OrderFees(g)
	if err != nil {
		return decimal.Zero, err
	}
	return initial.Add(fees), nil
}

// ReservedBuyingPower is the buying power held back on account of an
// existing group: its maintenance margin as current holdings.
func (e *Engine) ReservedBuyingPower(g *positions.Group) (decimal.Decimal, error) {
	return provider(g).MaintenanceMargin(g, true)
}

// TotalReservedBuyingPower sums reserved buying power over every non-empty
// group in the collection.
func (e *Engine) TotalReservedBuyingPower(gc *positions.GroupCollection) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, g := range gc.All() {
		if g.IsEmpty() {
			continue
		}
		reserved, err := e.ReservedBuyingPower(g)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(reserved)
	}
	return total, nil
}

// ReservedBuyingPowerImpact performs the what-if analysis for a set of
// contemplated position deltas: it bounds the recomputation to the groups
// sharing a symbol with the deltas, re-resolves that restricted pool plus
// the deltas through the portfolio's pipeline, and reports reserved buying
// power before and after. Combos can only change membership among groups
// that already share a symbol with a delta, which is what makes the bound
// sound.
func (e *Engine) ReservedBuyingPowerImpact(pf Portfolio, deltas []positions.Position) (*Impact, error) {
	impacted, err := pf.Manager.ImpactedGroups(deltas)
	if err != nil {
		return nil, err
	}

	current := decimal.Zero
	pool := positions.NewCollection()
	for _, g := range impacted {
		reserved, err := e.ReservedBuyingPower(g)
		if err != nil {
			return nil, err
		}
		current = current.Add(reserved)
		for _, p := range g.Positions() {
			pool.Add(p)
		}
	}
	for _, delta := range deltas {
		pool.Add(delta)
	}

	regrouped, err := pf.Manager.ResolvePool(pool)
	if err != nil {
		return nil, err
	}

	contemplated := decimal.Zero
	after := regrouped.All()
	for _, g := range after {
		if g.IsEmpty() {
			continue
		}
		maintenance, err := provider(g).MaintenanceMargin(g, false)
		if err != nil {
			return nil, err
		}
		contemplated = contemplated.Add(maintenance)
	}

	return &Impact{
		Current:             current,
		Contemplated:        contemplated,
		ImpactedGroups:      impacted,
		ContemplatedChanges: deltas,
		ContemplatedGroups:  after,
	}, nil
}

// HasSufficientBuyingPowerForOrder checks whether the portfolio can accept
// an order that would establish orderGroup. Two gates are required: the
// initial-margin gate against free margin, then the maintenance margin of
// the regrouping the order would produce — adding positions can shift group
// membership and change the applicable margin formula entirely.
func (e *Engine) HasSufficientBuyingPowerForOrder(pf Portfolio, orderGroup *positions.Group) (Sufficiency, error) {
	freeMargin := pf.Account.MarginRemaining().Mul(one.Sub(e.requiredFreeBuyingPowerPercent))

	initial, err := e.InitialMarginForOrder(orderGroup)
	if err != nil {
		return Sufficiency{}, err
	}
	if freeMargin.LessThan(initial.Abs()) {
		return insufficient(fmt.Sprintf(
			"initial margin requirement %s exceeds free buying power %s",
			initial.Abs(), freeMargin)), nil
	}

	impact, err := e.ReservedBuyingPowerImpact(pf, orderGroup.Positions())
	if err != nil {
		return Sufficiency{}, err
	}
	if impact.Delta().GreaterThan(freeMargin) {
		return insufficient(fmt.Sprintf(
			"reserved buying power impact %s exceeds free buying power %s",
			impact.Delta(), freeMargin)), nil
	}
	return sufficient(), nil
}

// PositionGroupBuyingPower is the buying power available for an order in
// the given direction: margin remaining, plus — when the direction would
// close or reduce the existing side of the group — the money freed by
// unwinding it (its reserved buying power and initial margin requirement).
func (e *Engine) PositionGroupBuyingPower(pf Portfolio, g *positions.Group, direction positions.Side) (decimal.Decimal, error) {
	buyingPower := pf.Account.MarginRemaining()

	groups, err := pf.Manager.Groups()
	if err != nil {
		return decimal.Zero, err
	}
	existing, ok := groups.Get(g.Key())
	if !ok || existing.IsEmpty() || direction == positions.SideNone || direction == existing.Side() {
		return buyingPower, nil
	}

	reserved, err := e.ReservedBuyingPower(existing)
	if err != nil {
		return decimal.Zero, err
	}
	initial, err := provider(existing).InitialMargin(existing)
	if err != nil {
		return decimal.Zero, err
	}
	return buyingPower.Add(reserved).Add(initial.Abs()), nil
}

// MaximumQuantityForTargetBuyingPower finds the maximum signed order
// quantity, in whole group units, that brings the group's used margin to
// the target fraction of total portfolio value. A zero target returns the
// exact negation of current holdings. The search seeds a linear estimate
// and refines it with damped secant steps over the integer lattice; the
// margin-versus-quantity function is monotonic but only piecewise-linear
// under fee tiers, so iteration is capped and oscillation between two
// adjacent integers is reported as a diagnostic error rather than looping.
// When silent is true, informational zero-quantity outcomes carry no
// reason string.
func (e *Engine) MaximumQuantityForTargetBuyingPower(pf Portfolio, g *positions.Group, targetBuyingPower decimal.Decimal, silent bool) (QuantityResult, error) {
	groups, err := pf.Manager.Groups()
	if err != nil {
		return QuantityResult{}, err
	}

	currentQuantity := decimal.Zero
	existing, held := groups.Get(g.Key())
	if held && !existing.IsEmpty() {
		currentQuantity = existing.Quantity()
	}

	// Liquidation to zero is exact, not a search.
	if targetBuyingPower.IsZero() {
		return NewQuantityResult(currentQuantity.Neg(), ""), nil
	}

	p := provider(g)

	bufferFactor := one.Sub(e.requiredFreeBuyingPowerPercent)
	targetMargin := bufferFactor.Mul(targetBuyingPower).Mul(pf.Account.TotalPortfolioValue())

	signedUsedMargin := decimal.Zero
	if held && !existing.IsEmpty() {
		used, err := p.MaintenanceMargin(existing, true)
		if err != nil {
			return QuantityResult{}, err
		}
		signedUsedMargin = used.Abs()
		if existing.Side() == positions.SideShort {
			signedUsedMargin = signedUsedMargin.Neg()
		}
	}

	signedTarget := targetMargin.Sub(signedUsedMargin)
	direction := decimal.NewFromInt(int64(signedTarget.Sign()))
	absTarget := signedTarget.Abs()

	// One unit of the group, preserving leg ratios, priced with fees.
	unit := g.WithUnitQuantities()
	unitMargin, err := p.InitialMargin(unit)
	if err != nil {
		return QuantityResult{}, err
	}
	unitFees, err := p.OrderFees(unit)
	if err != nil {
		return QuantityResult{}, err
	}
	absUnitMargin := unitMargin.Abs().Add(unitFees)

	if absUnitMargin.IsZero() {
		return NewQuantityError(e.zeroPriceReason(pf, unit)), nil
	}

	if absTarget.LessThan(absUnitMargin) {
		reason := ""
		if !silent {
			reason = fmt.Sprintf(
				"target order margin %s is below the minimum unit margin %s; no order can be placed",
				absTarget, absUnitMargin)
		}
		return NewQuantityResult(decimal.Zero, reason), nil
	}

	// Seed estimate: whole units are required, lots/contracts do not split.
	quantity := absTarget.Div(absUnitMargin).Ceil()
	lastQuantity := decimal.Zero

	for i := 0; i < maxSearchIterations; i++ {
		scaled := g.WithQuantity(quantity)
		initial, err := p.InitialMargin(scaled)
		if err != nil {
			return QuantityResult{}, err
		}
		fees, err := p.OrderFees(scaled)
		if err != nil {
			return QuantityResult{}, err
		}
		orderMargin := initial.Abs().Add(fees)

		lower := absTarget.Sub(absUnitMargin).Sub(fees)
		if orderMargin.LessThanOrEqual(absTarget) && orderMargin.GreaterThanOrEqual(lower) {
			break
		}

		// Damped secant step from the observed per-unit margin rate.
		marginPerUnit := orderMargin.Div(quantity)
		deltaMargin := absTarget.Sub(orderMargin)
		deltaQuantity := deltaMargin.Div(marginPerUnit).Floor()
		if deltaQuantity.IsZero() {
			deltaQuantity = decimal.NewFromInt(int64(deltaMargin.Sign()))
		}

		next := quantity.Add(deltaQuantity)
		if next.Sign() <= 0 {
			reason := ""
			if !silent {
				reason = fmt.Sprintf(
					"target order margin %s is below the minimum unit margin %s; no order can be placed",
					absTarget, absUnitMargin)
			}
			return NewQuantityResult(decimal.Zero, reason), nil
		}
		if next.Equal(lastQuantity) {
			return QuantityResult{}, fmt.Errorf(
				"%w: target margin %s, order margin %s, quantity %s, unit margin %s, group %s",
				ErrNoConvergence, absTarget, orderMargin, quantity, absUnitMargin, g.Key())
		}
		lastQuantity = quantity
		quantity = next
	}

	return NewQuantityResult(quantity.Mul(direction), ""), nil
}

// MaximumQuantityForDeltaBuyingPower projects a desired change in used
// buying power into the equivalent target fraction of total portfolio
// value and delegates to the target-based search.
func (e *Engine) MaximumQuantityForDeltaBuyingPower(pf Portfolio, g *positions.Group, deltaBuyingPower decimal.Decimal, silent bool) (QuantityResult, error) {
	groups, err := pf.Manager.Groups()
	if err != nil {
		return QuantityResult{}, err
	}

	signedUsedMargin := decimal.Zero
	if existing, ok := groups.Get(g.Key()); ok && !existing.IsEmpty() {
		used, err := provider(existing).MaintenanceMargin(existing, true)
		if err != nil {
			return QuantityResult{}, err
		}
		signedUsedMargin = used.Abs()
		if existing.Side() == positions.SideShort {
			signedUsedMargin = signedUsedMargin.Neg()
		}
	}

	totalValue := pf.Account.TotalPortfolioValue()
	if totalValue.IsZero() {
		return NewQuantityError("total portfolio value is zero"), nil
	}
	target := signedUsedMargin.Add(deltaBuyingPower).Div(totalValue)
	return e.MaximumQuantityForTargetBuyingPower(pf, g, target, silent)
}

// zeroPriceReason names the group leg whose missing price made the unit
// margin zero. Distinguishable by callers from a true buying-power
// shortfall.
func (e *Engine) zeroPriceReason(pf Portfolio, unit *positions.Group) string {
	for _, p := range unit.Positions() {
		sec, ok := pf.Universe.Get(p.Symbol)
		if !ok || sec.Price.IsZero() {
			return fmt.Sprintf(
				"cannot compute maximum order quantity: %s has zero price, likely due to missing data",
				p.Symbol)
		}
	}
	return fmt.Sprintf(
		"cannot compute maximum order quantity: group %s has zero unit margin", unit.Key())
}
