// Package store defines the persistence interface for the position engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
package store

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/quantfold/position-engine/internal/model"
)

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer. The live engine state is
// rebuilt from the stored universe at startup.
type Store interface {
	// --- Security universe ---

	// UpsertSecurity persists a security definition and its current state.
	UpsertSecurity(ctx context.Context, sec *model.Security) error

	// GetSecurity retrieves one security by symbol.
	GetSecurity(ctx context.Context, symbol string) (*model.Security, error)

	// ListSecurities returns all persisted securities.
	ListSecurities(ctx context.Context) ([]model.Security, error)

	// UpdateHoldings updates the signed holdings quantity for a symbol.
	UpdateHoldings(ctx context.Context, symbol string, quantity decimal.Decimal) error

	// UpdatePrice updates the last price for a symbol.
	UpdatePrice(ctx context.Context, symbol string, price decimal.Decimal) error

	// DeleteSecurity removes a security.
	DeleteSecurity(ctx context.Context, symbol string) error

	// --- Immutable evaluation ledger ---

	// InsertEvaluation appends an immutable evaluation record.
	InsertEvaluation(ctx context.Context, ev *model.Evaluation) error

	// ListEvaluationsBySymbol returns all evaluations touching a symbol.
	ListEvaluationsBySymbol(ctx context.Context, symbol string) ([]model.Evaluation, error)
}
