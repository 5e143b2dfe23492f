package margin

import (
	"github.com/shopspring/decimal"

	"github.com/quantfold/position-engine/internal/positions"
)

// QuantityResult is the structured outcome of a maximum-quantity search.
// A zero quantity with IsError false means the target is informationally
// unreachable (e.g. below one unit); IsError true marks an actionable
// condition such as missing price data.
type QuantityResult struct {
	Quantity decimal.Decimal `json:"quantity"`
	Reason   string          `json:"reason,omitempty"`
	IsError  bool            `json:"is_error"`
}

// NewQuantityResult creates an informational result.
func NewQuantityResult(quantity decimal.Decimal, reason string) QuantityResult {
	return QuantityResult{Quantity: quantity, Reason: reason}
}

// NewQuantityError creates a zero-quantity error result with the given
// reason.
func NewQuantityError(reason string) QuantityResult {
	return QuantityResult{Quantity: decimal.Zero, Reason: reason, IsError: true}
}

// Sufficiency is the structured outcome of a buying-power sufficiency
// check, carrying a human-readable reason on failure.
type Sufficiency struct {
	IsSufficient bool   `json:"is_sufficient"`
	Reason       string `json:"reason,omitempty"`
}

func sufficient() Sufficiency {
	return Sufficiency{IsSufficient: true}
}

func insufficient(reason string) Sufficiency {
	return Sufficiency{Reason: reason}
}

// Impact is the result of a what-if reserved-buying-power analysis: the
// reserved buying power of the impacted groups before and after applying
// the contemplated position changes, together with the groupings on both
// sides.
type Impact struct {
	// Current is the reserved buying power of the impacted groups as held.
	Current decimal.Decimal `json:"current"`

	// Contemplated is the reserved buying power of the regrouping that
	// would result from applying the changes.
	Contemplated decimal.Decimal `json:"contemplated"`

	// ImpactedGroups are the existing groups whose margin could change.
	ImpactedGroups []*positions.Group `json:"-"`

	// ContemplatedChanges are the position deltas under consideration.
	ContemplatedChanges []positions.Position `json:"contemplated_changes"`

	// ContemplatedGroups is the regrouping after the changes.
	ContemplatedGroups []*positions.Group `json:"-"`
}

// Delta is the marginal margin cost of the proposed change.
func (i *Impact) Delta() decimal.Decimal {
	return i.Contemplated.Sub(i.Current)
}
