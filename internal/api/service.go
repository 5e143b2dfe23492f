// Package api provides the HTTP handlers for managing the security universe,
// querying position groups, and evaluating contemplated orders against the
// buying-power engine.
//
// All monetary values use shopspring/decimal — never float64 for money.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/quantfold/position-engine/internal/correlation"
	"github.com/quantfold/position-engine/internal/margin"
	"github.com/quantfold/position-engine/internal/metrics"
	"github.com/quantfold/position-engine/internal/model"
	"github.com/quantfold/position-engine/internal/positions"
	"github.com/quantfold/position-engine/internal/securities"
	"github.com/quantfold/position-engine/internal/store"
)

// Service handles universe and order evaluation operations. Uses a mutex to
// serialize write paths (single-instance). For horizontal scaling, replace
// with distributed locking or database-level optimistic concurrency.
type Service struct {
	store    store.Store
	universe *securities.Universe
	account  *securities.Account
	manager  *positions.Manager
	engine   *margin.Engine
	limiter  *correlation.ExposureLimiter
	mu       sync.Mutex
	wsHub    *WSHub // optional WebSocket hub for real-time broadcasts
}

// NewService creates a new API service.
// Pass nil for hub if WebSocket broadcasting is not needed.
func NewService(st store.Store, universe *securities.Universe, account *securities.Account,
	manager *positions.Manager, engine *margin.Engine,
	limiter *correlation.ExposureLimiter, hub *WSHub) *Service {
	return &Service{
		store:    st,
		universe: universe,
		account:  account,
		manager:  manager,
		engine:   engine,
		limiter:  limiter,
		wsHub:    hub,
	}
}

func (s *Service) portfolio() margin.Portfolio {
	return margin.Portfolio{
		Account:  s.account,
		Universe: s.universe,
		Manager:  s.manager,
	}
}

// --- Request/Response types ---

// HoldingsRequest is the JSON body for PUT /securities/{symbol}/holdings.
type HoldingsRequest struct {
	Quantity decimal.Decimal `json:"quantity"` // signed holdings, in shares/contracts
}

// PriceRequest is the JSON body for PUT /securities/{symbol}/price.
type PriceRequest struct {
	Price decimal.Decimal `json:"price"`
}

// OrderRequest describes a contemplated single-security order: a signed
// quantity of group units (lots) for one symbol.
type OrderRequest struct {
	Symbol   string          `json:"symbol"`
	Quantity decimal.Decimal `json:"quantity"`
}

// CheckResponse is the JSON body returned from POST /orders/check.
type CheckResponse struct {
	EvaluationID string          `json:"evaluation_id"`
	Symbol       string          `json:"symbol"`
	Quantity     decimal.Decimal `json:"quantity"`
	Sufficient   bool            `json:"sufficient"`
	Reason       string          `json:"reason,omitempty"`
}

// MaxQuantityRequest is the JSON body for POST /orders/max-quantity. Exactly
// one of TargetBuyingPower (fraction of total portfolio value) or
// DeltaBuyingPower (absolute change in used buying power) must be set.
type MaxQuantityRequest struct {
	Symbol            string           `json:"symbol"`
	TargetBuyingPower *decimal.Decimal `json:"target_buying_power,omitempty"`
	DeltaBuyingPower  *decimal.Decimal `json:"delta_buying_power,omitempty"`
	Silent            bool             `json:"silent,omitempty"`
}

// MaxQuantityResponse is the JSON body returned from POST /orders/max-quantity.
type MaxQuantityResponse struct {
	EvaluationID string          `json:"evaluation_id"`
	Symbol       string          `json:"symbol"`
	Quantity     decimal.Decimal `json:"quantity"`
	IsError      bool            `json:"is_error"`
	Reason       string          `json:"reason,omitempty"`
}

// ImpactResponse is the JSON body returned from POST /orders/impact.
type ImpactResponse struct {
	Current            decimal.Decimal `json:"current"`
	Contemplated       decimal.Decimal `json:"contemplated"`
	Delta              decimal.Decimal `json:"delta"`
	ImpactedGroups     []GroupView     `json:"impacted_groups"`
	ContemplatedGroups []GroupView     `json:"contemplated_groups"`
}

// GroupView is the JSON projection of a position group.
type GroupView struct {
	Key      string          `json:"key"`
	Type     string          `json:"type"`
	Quantity decimal.Decimal `json:"quantity"`
	Legs     []LegView       `json:"legs"`
}

// LegView is one member position of a group.
type LegView struct {
	Symbol       string          `json:"symbol"`
	Quantity     decimal.Decimal `json:"quantity"`
	UnitQuantity decimal.Decimal `json:"unit_quantity"`
}

func groupView(g *positions.Group) GroupView {
	ps := g.Positions()
	legs := make([]LegView, 0, len(ps))
	for _, p := range ps {
		legs = append(legs, LegView{
			Symbol:       p.Symbol,
			Quantity:     p.Quantity,
			UnitQuantity: p.UnitQuantity,
		})
	}
	return GroupView{
		Key:      g.Key().ID(),
		Type:     g.Key().Descriptor().Name(),
		Quantity: g.Quantity(),
		Legs:     legs,
	}
}

func groupViews(gs []*positions.Group) []GroupView {
	out := make([]GroupView, 0, len(gs))
	for _, g := range gs {
		out = append(out, groupView(g))
	}
	return out
}

// PortfolioResponse is the JSON body returned from GET /portfolio.
type PortfolioResponse struct {
	Currency            string          `json:"currency"`
	Cash                decimal.Decimal `json:"cash"`
	TotalPortfolioValue decimal.Decimal `json:"total_portfolio_value"`
	MarginRemaining     decimal.Decimal `json:"margin_remaining"`
	ReservedBuyingPower decimal.Decimal `json:"reserved_buying_power"`
	Groups              []GroupView     `json:"groups"`
}

// --- HTTP Handlers ---

// CreateSecurity handles POST /api/v1/securities
func (s *Service) CreateSecurity(w http.ResponseWriter, r *http.Request) {
	var sec model.Security
	if err := json.NewDecoder(r.Body).Decode(&sec); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if sec.Symbol == "" {
		writeError(w, "symbol is required", http.StatusBadRequest)
		return
	}
	if sec.Type == "" {
		sec.Type = model.SecurityTypeEquity
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.universe.Add(sec); err != nil {
		writeError(w, err.Error(), http.StatusConflict)
		return
	}

	// Read back for the applied lot size / multiplier defaults.
	stored, _ := s.universe.Get(sec.Symbol)
	if err := s.store.UpsertSecurity(r.Context(), &stored); err != nil {
		writeError(w, "failed to persist security", http.StatusInternalServerError)
		return
	}

	slog.Info("security added",
		"symbol", stored.Symbol,
		"type", stored.Type,
		"price", stored.Price.String(),
		"quantity", stored.Quantity.String(),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(stored)
}

// ListSecurities handles GET /api/v1/securities
func (s *Service) ListSecurities(w http.ResponseWriter, r *http.Request) {
	secs := s.universe.List()
	if secs == nil {
		secs = []model.Security{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(secs)
}

// GetSecurity handles GET /api/v1/securities/{symbol}
func (s *Service) GetSecurity(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	sec, ok := s.universe.Get(symbol)
	if !ok {
		writeError(w, "security not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sec)
}

// DeleteSecurity handles DELETE /api/v1/securities/{symbol}
func (s *Service) DeleteSecurity(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.universe.Remove(symbol) {
		writeError(w, "security not found", http.StatusNotFound)
		return
	}
	if err := s.store.DeleteSecurity(r.Context(), symbol); err != nil {
		slog.Warn("failed to delete persisted security", "symbol", symbol, "err", err)
	}

	w.WriteHeader(http.StatusNoContent)
}

// UpdateHoldings handles PUT /api/v1/securities/{symbol}/holdings
func (s *Service) UpdateHoldings(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	var req HoldingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.universe.SetHoldings(symbol, req.Quantity); err != nil {
		writeError(w, err.Error(), http.StatusNotFound)
		return
	}
	if err := s.store.UpdateHoldings(r.Context(), symbol, req.Quantity); err != nil {
		writeError(w, "failed to persist holdings", http.StatusInternalServerError)
		return
	}

	slog.Info("holdings updated", "symbol", symbol, "quantity", req.Quantity.String())

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:     "holdings_updated",
			Symbol:   symbol,
			Quantity: req.Quantity.String(),
		})
	}

	w.WriteHeader(http.StatusNoContent)
}

// UpdatePrice handles PUT /api/v1/securities/{symbol}/price
func (s *Service) UpdatePrice(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	var req PriceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.universe.SetPrice(symbol, req.Price); err != nil {
		writeError(w, err.Error(), http.StatusNotFound)
		return
	}
	if err := s.store.UpdatePrice(r.Context(), symbol, req.Price); err != nil {
		writeError(w, "failed to persist price", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListGroups handles GET /api/v1/groups
// Returns the current position groups, resolving first if holdings changed.
func (s *Service) ListGroups(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	groups, err := s.manager.Groups()
	if err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	metrics.GroupResolutionsTotal.Inc()
	metrics.GroupResolutionDuration.Observe(time.Since(start).Seconds())
	metrics.ActiveGroups.Set(float64(groups.Len()))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(groupViews(groups.All()))
}

// CheckOrder handles POST /api/v1/orders/check
// Runs the exposure limiter and the two-gate buying power check for a
// contemplated order, recording the outcome as an immutable evaluation.
func (s *Service) CheckOrder(w http.ResponseWriter, r *http.Request) {
	var req OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Quantity.IsZero() {
		writeError(w, "quantity must be non-zero", http.StatusBadRequest)
		return
	}

	ctx := r.Context()

	s.mu.Lock()
	defer s.mu.Unlock()

	orderGroup, err := s.buildOrderGroup(req.Symbol, req.Quantity)
	if err != nil {
		writeError(w, err.Error(), http.StatusNotFound)
		return
	}

	// --- Exposure limit check ---
	sec, _ := s.universe.Get(req.Symbol)
	exposureDelta := req.Quantity.Mul(sec.LotSize)
	if err := s.limiter.CheckLimit(req.Symbol, exposureDelta, s.currentExposures()); err != nil {
		metrics.ExposureLimitRejections.Inc()
		metrics.OrderChecksTotal.WithLabelValues("rejected").Inc()
		s.recordEvaluation(ctx, "sufficiency", req.Symbol, orderGroup, req.Quantity, false, err.Error())
		writeError(w, err.Error(), http.StatusConflict)
		return
	}

	// --- Buying power check ---
	sufficiency, err := s.engine.HasSufficientBuyingPowerForOrder(s.portfolio(), orderGroup)
	if err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	outcome := "accepted"
	if !sufficiency.IsSufficient {
		outcome = "rejected"
	}
	metrics.OrderChecksTotal.WithLabelValues(outcome).Inc()

	evalID := s.recordEvaluation(ctx, "sufficiency", req.Symbol, orderGroup,
		req.Quantity, sufficiency.IsSufficient, sufficiency.Reason)

	slog.Info("order checked",
		"symbol", req.Symbol,
		"qty", req.Quantity.String(),
		"sufficient", sufficiency.IsSufficient,
		"reason", sufficiency.Reason,
	)

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:     "order_checked",
			Symbol:   req.Symbol,
			Group:    orderGroup.Key().ID(),
			Quantity: req.Quantity.String(),
			Accepted: sufficiency.IsSufficient,
			Reason:   sufficiency.Reason,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(CheckResponse{
		EvaluationID: evalID,
		Symbol:       req.Symbol,
		Quantity:     req.Quantity,
		Sufficient:   sufficiency.IsSufficient,
		Reason:       sufficiency.Reason,
	})
}

// MaxQuantity handles POST /api/v1/orders/max-quantity
// Runs the bounded quantity search toward a target or delta buying power.
func (s *Service) MaxQuantity(w http.ResponseWriter, r *http.Request) {
	var req MaxQuantityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if (req.TargetBuyingPower == nil) == (req.DeltaBuyingPower == nil) {
		writeError(w, "exactly one of target_buying_power or delta_buying_power is required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()

	s.mu.Lock()
	defer s.mu.Unlock()

	unitGroup, err := s.buildOrderGroup(req.Symbol, decimal.NewFromInt(1))
	if err != nil {
		writeError(w, err.Error(), http.StatusNotFound)
		return
	}

	var result margin.QuantityResult
	if req.TargetBuyingPower != nil {
		result, err = s.engine.MaximumQuantityForTargetBuyingPower(s.portfolio(), unitGroup, *req.TargetBuyingPower, req.Silent)
	} else {
		result, err = s.engine.MaximumQuantityForDeltaBuyingPower(s.portfolio(), unitGroup, *req.DeltaBuyingPower, req.Silent)
	}
	if err != nil {
		if errors.Is(err, margin.ErrNoConvergence) {
			metrics.QuantitySearchesTotal.WithLabelValues("no_convergence").Inc()
			s.recordEvaluation(ctx, "max_quantity", req.Symbol, unitGroup, decimal.Zero, false, err.Error())
			writeError(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	outcome := "ok"
	if result.IsError {
		outcome = "error"
	}
	metrics.QuantitySearchesTotal.WithLabelValues(outcome).Inc()

	evalID := s.recordEvaluation(ctx, "max_quantity", req.Symbol, unitGroup,
		result.Quantity, !result.IsError, result.Reason)

	slog.Info("max quantity computed",
		"symbol", req.Symbol,
		"quantity", result.Quantity.String(),
		"is_error", result.IsError,
		"reason", result.Reason,
	)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(MaxQuantityResponse{
		EvaluationID: evalID,
		Symbol:       req.Symbol,
		Quantity:     result.Quantity,
		IsError:      result.IsError,
		Reason:       result.Reason,
	})
}

// OrderImpact handles POST /api/v1/orders/impact
// Returns the reserved buying power before and after the contemplated order.
func (s *Service) OrderImpact(w http.ResponseWriter, r *http.Request) {
	var req OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	orderGroup, err := s.buildOrderGroup(req.Symbol, req.Quantity)
	if err != nil {
		writeError(w, err.Error(), http.StatusNotFound)
		return
	}

	impact, err := s.engine.ReservedBuyingPowerImpact(s.portfolio(), orderGroup.Positions())
	if err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ImpactResponse{
		Current:            impact.Current,
		Contemplated:       impact.Contemplated,
		Delta:              impact.Delta(),
		ImpactedGroups:     groupViews(impact.ImpactedGroups),
		ContemplatedGroups: groupViews(impact.ContemplatedGroups),
	})
}

// GetPortfolio handles GET /api/v1/portfolio
// Returns account aggregates, reserved buying power, and current groups.
func (s *Service) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	groups, err := s.manager.Groups()
	if err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	reserved, err := s.engine.TotalReservedBuyingPower(groups)
	if err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(PortfolioResponse{
		Currency:            s.account.Currency(),
		Cash:                s.account.Cash(),
		TotalPortfolioValue: s.account.TotalPortfolioValue(),
		MarginRemaining:     s.account.MarginRemaining(),
		ReservedBuyingPower: reserved,
		Groups:              groupViews(groups.All()),
	})
}

// ListEvaluations handles GET /api/v1/evaluations/{symbol}
func (s *Service) ListEvaluations(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	evals, err := s.store.ListEvaluationsBySymbol(r.Context(), symbol)
	if err != nil {
		writeError(w, "failed to list evaluations", http.StatusInternalServerError)
		return
	}
	if evals == nil {
		evals = []model.Evaluation{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(evals)
}

// --- Helpers ---

// buildOrderGroup creates a single-security order group of the given signed
// unit quantity through the default descriptor.
func (s *Service) buildOrderGroup(symbol string, units decimal.Decimal) (*positions.Group, error) {
	sec, ok := s.universe.Get(symbol)
	if !ok {
		return nil, securities.ErrSecurityNotFound
	}
	desc := s.manager.DefaultDescriptor()
	pos := desc.CreatePosition(sec, units)
	return desc.CreateGroup(units, []positions.Position{pos})
}

// currentExposures snapshots signed holdings per symbol for the limiter.
func (s *Service) currentExposures() map[string]decimal.Decimal {
	exposures := make(map[string]decimal.Decimal)
	for _, sec := range s.universe.List() {
		if !sec.Quantity.IsZero() {
			exposures[sec.Symbol] = sec.Quantity
		}
	}
	return exposures
}

// recordEvaluation persists an immutable audit record. Persistence failure
// is logged, not surfaced; the evaluation result itself already happened.
func (s *Service) recordEvaluation(ctx context.Context, kind, symbol string, g *positions.Group,
	quantity decimal.Decimal, accepted bool, reason string) string {
	ev := &model.Evaluation{
		ID:        uuid.New().String(),
		Kind:      kind,
		Symbol:    symbol,
		GroupName: g.Key().Descriptor().Name(),
		Quantity:  quantity,
		Accepted:  accepted,
		Reason:    reason,
		Timestamp: time.Now().UTC(),
	}
	if err := s.store.InsertEvaluation(ctx, ev); err != nil {
		slog.Warn("failed to record evaluation", "id", ev.ID, "err", err)
	}
	return ev.ID
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
