// Package model defines the core domain types shared across the position engine.
// All monetary values use shopspring/decimal — never float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// SecurityType classifies a tradable security.
type SecurityType string

const (
	SecurityTypeEquity SecurityType = "equity"
	SecurityTypeOption SecurityType = "option"
	SecurityTypeFuture SecurityType = "future"
)

// Security describes one tradable instrument together with its live state:
// last price, current signed holdings, and the margin rates its buying-power
// model applies. LotSize is the minimum tradable step (1 share for equities);
// ContractMultiplier converts one contract into deliverable units (100 for
// US equity options).
type Security struct {
	Symbol             string          `json:"symbol" db:"symbol"`
	Underlying         string          `json:"underlying,omitempty" db:"underlying"`
	Type               SecurityType    `json:"type" db:"type"`
	Price              decimal.Decimal `json:"price" db:"price"`
	LotSize            decimal.Decimal `json:"lot_size" db:"lot_size"`
	ContractMultiplier decimal.Decimal `json:"contract_multiplier" db:"contract_multiplier"`
	Quantity           decimal.Decimal `json:"quantity" db:"quantity"` // signed holdings
	InitialMarginRate  decimal.Decimal `json:"initial_margin_rate" db:"initial_margin_rate"`
	MaintenanceRate    decimal.Decimal `json:"maintenance_rate" db:"maintenance_rate"`
}

// HoldingsValue returns the absolute market value of the current holdings.
func (s Security) HoldingsValue() decimal.Decimal {
	return s.Quantity.Abs().Mul(s.Price).Mul(s.ContractMultiplier)
}

// Evaluation is an immutable record of one buying-power evaluation performed
// by the order subsystem: a sufficiency check, a what-if impact analysis, or
// a maximum-quantity search. Once created these are never modified or deleted.
type Evaluation struct {
	ID        string          `json:"id" db:"id"`
	Kind      string          `json:"kind" db:"kind"` // "sufficiency", "impact", "max_quantity"
	Symbol    string          `json:"symbol" db:"symbol"`
	GroupName string          `json:"group_name" db:"group_name"`
	Quantity  decimal.Decimal `json:"quantity" db:"quantity"`
	Accepted  bool            `json:"accepted" db:"accepted"`
	Reason    string          `json:"reason,omitempty" db:"reason"`
	Timestamp time.Time       `json:"timestamp" db:"timestamp"`
}
