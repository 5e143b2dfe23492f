package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/quantfold/position-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) UpsertSecurity(ctx context.Context, sec *model.Security) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO securities (symbol, underlying, type, price, lot_size, contract_multiplier,
		                         quantity, initial_margin_rate, maintenance_rate)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5::NUMERIC, $6::NUMERIC, $7::NUMERIC, $8::NUMERIC, $9::NUMERIC)
		 ON CONFLICT (symbol) DO UPDATE SET
		   underlying = EXCLUDED.underlying,
		   type = EXCLUDED.type,
		   price = EXCLUDED.price,
		   lot_size = EXCLUDED.lot_size,
		   contract_multiplier = EXCLUDED.contract_multiplier,
		   quantity = EXCLUDED.quantity,
		   initial_margin_rate = EXCLUDED.initial_margin_rate,
		   maintenance_rate = EXCLUDED.maintenance_rate`,
		sec.Symbol, sec.Underlying, string(sec.Type),
		sec.Price.String(), sec.LotSize.String(), sec.ContractMultiplier.String(),
		sec.Quantity.String(), sec.InitialMarginRate.String(), sec.MaintenanceRate.String(),
	)
	return err
}

func (s *PostgresStore) GetSecurity(ctx context.Context, symbol string) (*model.Security, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT symbol, underlying, type,
		        price::TEXT, lot_size::TEXT, contract_multiplier::TEXT,
		        quantity::TEXT, initial_margin_rate::TEXT, maintenance_rate::TEXT
		 FROM securities WHERE symbol = $1`, symbol)

	sec, err := scanSecurity(row)
	if err != nil {
		return nil, fmt.Errorf("get security %s: %w", symbol, err)
	}
	return sec, nil
}

func (s *PostgresStore) ListSecurities(ctx context.Context) ([]model.Security, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT symbol, underlying, type,
		        price::TEXT, lot_size::TEXT, contract_multiplier::TEXT,
		        quantity::TEXT, initial_margin_rate::TEXT, maintenance_rate::TEXT
		 FROM securities ORDER BY symbol`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Security
	for rows.Next() {
		sec, err := scanSecurity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sec)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpdateHoldings(ctx context.Context, symbol string, quantity decimal.Decimal) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE securities SET quantity = $2::NUMERIC WHERE symbol = $1`,
		symbol, quantity.String(),
	)
	return err
}

func (s *PostgresStore) UpdatePrice(ctx context.Context, symbol string, price decimal.Decimal) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE securities SET price = $2::NUMERIC WHERE symbol = $1`,
		symbol, price.String(),
	)
	return err
}

func (s *PostgresStore) DeleteSecurity(ctx context.Context, symbol string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM securities WHERE symbol = $1`, symbol)
	return err
}

func (s *PostgresStore) InsertEvaluation(ctx context.Context, ev *model.Evaluation) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO evaluations (id, kind, symbol, group_name, quantity, accepted, reason, timestamp)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6, $7, $8)`,
		ev.ID, ev.Kind, ev.Symbol, ev.GroupName,
		ev.Quantity.String(), ev.Accepted, ev.Reason, ev.Timestamp,
	)
	return err
}

func (s *PostgresStore) ListEvaluationsBySymbol(ctx context.Context, symbol string) ([]model.Evaluation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, kind, symbol, group_name, quantity::TEXT, accepted, reason, timestamp
		 FROM evaluations WHERE symbol = $1 ORDER BY timestamp`, symbol)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Evaluation
	for rows.Next() {
		var ev model.Evaluation
		var quantity string
		if err := rows.Scan(&ev.ID, &ev.Kind, &ev.Symbol, &ev.GroupName,
			&quantity, &ev.Accepted, &ev.Reason, &ev.Timestamp); err != nil {
			return nil, err
		}
		ev.Quantity, _ = decimal.NewFromString(quantity)
		out = append(out, ev)
	}
	return out, rows.Err()
}

// scanSecurity reads one security from a row with the canonical column
// order used by every security query above.
func scanSecurity(row pgx.Row) (*model.Security, error) {
	var sec model.Security
	var secType string
	var price, lotSize, multiplier, quantity, initialRate, maintenanceRate string

	if err := row.Scan(&sec.Symbol, &sec.Underlying, &secType,
		&price, &lotSize, &multiplier,
		&quantity, &initialRate, &maintenanceRate); err != nil {
		return nil, err
	}

	sec.Type = model.SecurityType(secType)
	sec.Price, _ = decimal.NewFromString(price)
	sec.LotSize, _ = decimal.NewFromString(lotSize)
	sec.ContractMultiplier, _ = decimal.NewFromString(multiplier)
	sec.Quantity, _ = decimal.NewFromString(quantity)
	sec.InitialMarginRate, _ = decimal.NewFromString(initialRate)
	sec.MaintenanceRate, _ = decimal.NewFromString(maintenanceRate)
	return &sec, nil
}
