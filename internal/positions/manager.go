package positions

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/shopspring/decimal"

	"github.com/quantfold/position-engine/internal/securities"
)

// Manager orchestrates resolution against live security holdings. It owns
// the composite resolver, the registered descriptors (default last), and
// the published group collection. Holdings changes only mark the manager
// dirty; the pipeline runs lazily on the next read, so many rapid changes
// within one evaluation step coalesce into a single resolution pass. The
// published collection is replaced atomically — a reader that captured an
// older reference never observes partial state.
type Manager struct {
	universe    *securities.Universe
	defaultDesc Descriptor
	specialized []Descriptor
	resolver    *CompositeResolver

	mu     sync.Mutex // serializes resolution (single mutator)
	groups atomic.Pointer[GroupCollection]
	dirty  atomic.Bool
	detach func()
}

// NewManager creates a manager over universe with the given default
// descriptor and specialized descriptors in priority order. Descriptor
// names must be unique. The manager subscribes to holdings changes; call
// Close to detach.
func NewManager(universe *securities.Universe, defaultDesc Descriptor, specialized ...Descriptor) (*Manager, error) {
	names := map[string]bool{defaultDesc.Name(): true}
	resolvers := make([]Resolver, 0, len(specialized))
	for _, d := range specialized {
		if names[d.Name()] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateDescriptor, d.Name())
		}
		names[d.Name()] = true
		resolvers = append(resolvers, d.Resolver())
	}

	m := &Manager{
		universe:    universe,
		defaultDesc: defaultDesc,
		specialized: specialized,
		resolver:    NewCompositeResolver(defaultDesc.Resolver(), resolvers...),
	}
	m.groups.Store(NewGroupCollection())
	m.dirty.Store(true)
	m.detach = universe.Subscribe(m.holdingsChanged)
	return m, nil
}

// Close detaches the manager from holdings notifications.
func (m *Manager) Close() {
	if m.detach != nil {
		m.detach()
		m.detach = nil
	}
}

// DefaultDescriptor returns the always-present single-security descriptor.
func (m *Manager) DefaultDescriptor() Descriptor {
	return m.defaultDesc
}

// Descriptors returns the registered descriptors in resolution order,
// default last.
func (m *Manager) Descriptors() []Descriptor {
	out := make([]Descriptor, 0, len(m.specialized)+1)
	out = append(out, m.specialized...)
	out = append(out, m.defaultDesc)
	return out
}

// Resolver returns the composite resolver pipeline.
func (m *Manager) Resolver() *CompositeResolver {
	return m.resolver
}

// Groups returns the current group collection, re-resolving first if
// holdings changed since the last pass.
func (m *Manager) Groups() (*GroupCollection, error) {
	if _, err := m.ResolvePositionGroups(); err != nil {
		return nil, err
	}
	return m.groups.Load(), nil
}

// CurrentGroups returns the last published collection without resolving.
func (m *Manager) CurrentGroups() *GroupCollection {
	return m.groups.Load()
}

// ResolvePositionGroups re-runs the full pipeline over the current
// holdings if the manager is dirty, publishing the replacement collection
// atomically. A no-op when clean.
func (m *Manager) ResolvePositionGroups() (*GroupCollection, error) {
	if !m.dirty.Load() {
		return m.groups.Load(), nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.dirty.Load() {
		return m.groups.Load(), nil
	}

	pool := NewCollection()
	for _, sec := range m.universe.List() {
		if sec.Quantity.IsZero() {
			continue
		}
		units := sec.Quantity.Div(sec.LotSize)
		pool.Add(m.defaultDesc.CreatePosition(sec, units))
	}

	groups, err := m.resolver.Resolve(pool)
	if err != nil {
		return nil, err
	}

	m.groups.Store(groups)
	m.dirty.Store(false)
	slog.Debug("position groups resolved", "groups", groups.Len())
	return groups, nil
}

// ResolvePool runs the pipeline over a restricted position pool without
// touching the published collection. Used by the what-if impact analysis
// to regroup only the impacted positions plus contemplated deltas.
func (m *Manager) ResolvePool(pool *Collection) (*GroupCollection, error) {
	return m.resolver.Resolve(pool)
}

// ImpactedGroups returns the bounded set of current groups whose margin
// could change under the contemplated position deltas.
func (m *Manager) ImpactedGroups(deltas []Position) ([]*Group, error) {
	groups, err := m.Groups()
	if err != nil {
		return nil, err
	}
	return groups.ImpactedGroups(deltas), nil
}

// holdingsChanged marks the manager dirty. The universe only notifies on
// actual quantity changes, so adding or removing a flat security never
// triggers a resolution pass.
func (m *Manager) holdingsChanged(symbol string, previous, current decimal.Decimal) {
	m.dirty.Store(true)
	slog.Debug("holdings changed", "symbol", symbol,
		"previous", previous.String(), "current", current.String())
}
