package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/quantfold/position-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu          sync.RWMutex
	securities  map[string]*model.Security
	evaluations []model.Evaluation
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		securities: make(map[string]*model.Security),
	}
}

func (s *MemoryStore) UpsertSecurity(_ context.Context, sec *model.Security) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Store a copy to avoid external mutation.
	copied := *sec
	s.securities[sec.Symbol] = &copied
	return nil
}

func (s *MemoryStore) GetSecurity(_ context.Context, symbol string) (*model.Security, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sec, ok := s.securities[symbol]
	if !ok {
		return nil, fmt.Errorf("security %s not found", symbol)
	}
	copied := *sec
	return &copied, nil
}

func (s *MemoryStore) ListSecurities(_ context.Context) ([]model.Security, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Security, 0, len(s.securities))
	for _, sec := range s.securities {
		out = append(out, *sec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

func (s *MemoryStore) UpdateHoldings(_ context.Context, symbol string, quantity decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sec, ok := s.securities[symbol]
	if !ok {
		return fmt.Errorf("security %s not found", symbol)
	}
	sec.Quantity = quantity
	return nil
}

func (s *MemoryStore) UpdatePrice(_ context.Context, symbol string, price decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sec, ok := s.securities[symbol]
	if !ok {
		return fmt.Errorf("security %s not found", symbol)
	}
	sec.Price = price
	return nil
}

func (s *MemoryStore) DeleteSecurity(_ context.Context, symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.securities[symbol]; !ok {
		return fmt.Errorf("security %s not found", symbol)
	}
	delete(s.securities, symbol)
	return nil
}

func (s *MemoryStore) InsertEvaluation(_ context.Context, ev *model.Evaluation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.evaluations = append(s.evaluations, *ev)
	return nil
}

func (s *MemoryStore) ListEvaluationsBySymbol(_ context.Context, symbol string) ([]model.Evaluation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Evaluation
	for _, ev := range s.evaluations {
		if ev.Symbol == symbol {
			out = append(out, ev)
		}
	}
	return out, nil
}
