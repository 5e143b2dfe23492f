package securities

import (
	"github.com/shopspring/decimal"

	"github.com/quantfold/position-engine/internal/model"
)

// FeeModel estimates the fee, in account currency, for a hypothetical order
// of the given signed quantity in one security.
type FeeModel interface {
	OrderFee(sec model.Security, quantity decimal.Decimal) decimal.Decimal
}

// ZeroFee charges nothing. Useful default and test model.
type ZeroFee struct{}

func (ZeroFee) OrderFee(model.Security, decimal.Decimal) decimal.Decimal {
	return decimal.Zero
}

// FlatFee charges a fixed amount per order regardless of size.
type FlatFee struct {
	Fee decimal.Decimal
}

func (f FlatFee) OrderFee(_ model.Security, quantity decimal.Decimal) decimal.Decimal {
	if quantity.IsZero() {
		return decimal.Zero
	}
	return f.Fee
}

// PerUnitFee charges a rate per lot traded with an optional per-order
// minimum, the usual shape of US equity/option commission schedules.
type PerUnitFee struct {
	PerUnit decimal.Decimal
	Minimum decimal.Decimal
}

func (f PerUnitFee) OrderFee(sec model.Security, quantity decimal.Decimal) decimal.Decimal {
	if quantity.IsZero() {
		return decimal.Zero
	}
	units := quantity.Abs()
	if !sec.LotSize.IsZero() {
		units = units.Div(sec.LotSize)
	}
	fee := f.PerUnit.Mul(units)
	if fee.LessThan(f.Minimum) {
		return f.Minimum
	}
	return fee
}

// FeeFunc adapts a plain function to the FeeModel interface.
type FeeFunc func(sec model.Security, quantity decimal.Decimal) decimal.Decimal

func (fn FeeFunc) OrderFee(sec model.Security, quantity decimal.Decimal) decimal.Decimal {
	return fn(sec, quantity)
}
