package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/quantfold/position-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and invalidate the cache; reads
// check Redis first then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) UpsertSecurity(ctx context.Context, sec *model.Security) error {
	if err := s.primary.UpsertSecurity(ctx, sec); err != nil {
		return err
	}
	s.cacheSecurity(ctx, sec)
	return nil
}

func (s *CachedStore) UpdateHoldings(ctx context.Context, symbol string, quantity decimal.Decimal) error {
	if err := s.primary.UpdateHoldings(ctx, symbol, quantity); err != nil {
		return err
	}
	// Invalidate; next read re-populates.
	s.rdb.Del(ctx, securityKey(symbol))
	return nil
}

func (s *CachedStore) UpdatePrice(ctx context.Context, symbol string, price decimal.Decimal) error {
	if err := s.primary.UpdatePrice(ctx, symbol, price); err != nil {
		return err
	}
	s.rdb.Del(ctx, securityKey(symbol))
	return nil
}

func (s *CachedStore) DeleteSecurity(ctx context.Context, symbol string) error {
	if err := s.primary.DeleteSecurity(ctx, symbol); err != nil {
		return err
	}
	s.rdb.Del(ctx, securityKey(symbol))
	return nil
}

func (s *CachedStore) InsertEvaluation(ctx context.Context, ev *model.Evaluation) error {
	// Evaluations are immutable and never individually cached.
	return s.primary.InsertEvaluation(ctx, ev)
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetSecurity(ctx context.Context, symbol string) (*model.Security, error) {
	data, err := s.rdb.Get(ctx, securityKey(symbol)).Bytes()
	if err == nil {
		var sec model.Security
		if json.Unmarshal(data, &sec) == nil {
			return &sec, nil
		}
	}

	// Cache miss: read from primary.
	sec, err := s.primary.GetSecurity(ctx, symbol)
	if err != nil {
		return nil, err
	}

	s.cacheSecurity(ctx, sec)
	return sec, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListSecurities(ctx context.Context) ([]model.Security, error) {
	return s.primary.ListSecurities(ctx)
}

func (s *CachedStore) ListEvaluationsBySymbol(ctx context.Context, symbol string) ([]model.Evaluation, error) {
	return s.primary.ListEvaluationsBySymbol(ctx, symbol)
}

// --- Cache helpers ---

func (s *CachedStore) cacheSecurity(ctx context.Context, sec *model.Security) {
	if data, err := json.Marshal(sec); err == nil {
		s.rdb.Set(ctx, securityKey(sec.Symbol), data, s.ttl)
	}
}

func securityKey(symbol string) string { return fmt.Sprintf("security:%s", symbol) }
