package margin

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/quantfold/position-engine/internal/model"
	"github.com/quantfold/position-engine/internal/positions"
	"github.com/quantfold/position-engine/internal/securities"
)

var (
	// DefaultInitialMarginRate applies when a security carries no explicit
	// initial rate: Reg-T style 50% of notional.
	DefaultInitialMarginRate = decimal.NewFromFloat(0.5)

	// DefaultMaintenanceRate applies when a security carries no explicit
	// maintenance rate: 25% of notional.
	DefaultMaintenanceRate = decimal.NewFromFloat(0.25)
)

// SecurityModel is the buying-power provider for default single-security
// groups: margin is a rate times the absolute notional value of the one
// member position. It implements positions.BuyingPowerProvider.
type SecurityModel struct {
	universe *securities.Universe
	fees     securities.FeeModel
}

// NewSecurityModel creates the provider over universe with the given fee
// model. A nil fee model charges nothing.
func NewSecurityModel(universe *securities.Universe, fees securities.FeeModel) *SecurityModel {
	if fees == nil {
		fees = securities.ZeroFee{}
	}
	return &SecurityModel{universe: universe, fees: fees}
}

// member extracts the single position of a default group along with its
// security. Passing a multi-leg group is a caller contract violation.
func (m *SecurityModel) member(g *positions.Group) (model.Security, positions.Position, error) {
	ps := g.Positions()
	if len(ps) != 1 {
		return model.Security{}, positions.Position{},
			fmt.Errorf("%w: security model requires exactly 1 position, got %d",
				positions.ErrWrongGroupArity, len(ps))
	}
	sec, ok := m.universe.Get(ps[0].Symbol)
	if !ok {
		return model.Security{}, positions.Position{},
			fmt.Errorf("%w: %s", securities.ErrSecurityNotFound, ps[0].Symbol)
	}
	return sec, ps[0], nil
}

// notional is the absolute market value of the position.
func notional(sec model.Security, p positions.Position) decimal.Decimal {
	return p.Quantity.Abs().Mul(sec.Price).Mul(sec.ContractMultiplier)
}

// MaintenanceMargin is maintenanceRate * |quantity| * price * multiplier.
// The rate applies identically to held and hypothetical groups.
func (m *SecurityModel) MaintenanceMargin(g *positions.Group, _ bool) (decimal.Decimal, error) {
	sec, p, err := m.member(g)
	if err != nil {
		return decimal.Zero, err
	}
	rate := sec.MaintenanceRate
	if rate.IsZero() {
		rate = DefaultMaintenanceRate
	}
	return notional(sec, p).Mul(rate), nil
}

// InitialMargin is initialRate * |quantity| * price * multiplier, excluding
// fees.
func (m *SecurityModel) InitialMargin(g *positions.Group) (decimal.Decimal, error) {
	sec, p, err := m.member(g)
	if err != nil {
		return decimal.Zero, err
	}
	rate := sec.InitialMarginRate
	if rate.IsZero() {
		rate = DefaultInitialMarginRate
	}
	return notional(sec, p).Mul(rate), nil
}

// OrderFees estimates the fee to acquire the group in one order.
func (m *SecurityModel) OrderFees(g *positions.Group) (decimal.Decimal, error) {
	sec, p, err := m.member(g)
	if err != nil {
		return decimal.Zero, err
	}
	return m.fees.OrderFee(sec, p.Quantity), nil
}
