package positions

import (
	"fmt"
	"sort"
)

// GroupCollection is an immutable index of resolved groups keyed by group
// key, with a reverse index from symbol to the groups containing it.
// Structural updates return a new collection; readers holding an older
// reference never observe partial state.
type GroupCollection struct {
	byKey    map[string]*Group
	bySymbol map[string][]*Group
}

// NewGroupCollection creates a collection holding the given groups.
func NewGroupCollection(gs ...*Group) *GroupCollection {
	c := &GroupCollection{
		byKey:    make(map[string]*Group, len(gs)),
		bySymbol: make(map[string][]*Group),
	}
	for _, g := range gs {
		c.insert(g)
	}
	return c
}

// insert mutates the receiver; callers must have exclusive ownership (a
// freshly cloned collection).
func (c *GroupCollection) insert(g *Group) {
	if existing, ok := c.byKey[g.key.id]; ok {
		c.removeFromIndex(existing)
	}
	c.byKey[g.key.id] = g
	for _, p := range g.positions {
		c.bySymbol[p.Symbol] = append(c.bySymbol[p.Symbol], g)
	}
}

func (c *GroupCollection) removeFromIndex(g *Group) {
	for _, p := range g.positions {
		bucket := c.bySymbol[p.Symbol]
		for i, member := range bucket {
			if member == g {
				bucket = append(bucket[:i], bucket[i+1:]...)
				break
			}
		}
		if len(bucket) == 0 {
			delete(c.bySymbol, p.Symbol)
		} else {
			c.bySymbol[p.Symbol] = bucket
		}
	}
}

func (c *GroupCollection) clone() *GroupCollection {
	out := &GroupCollection{
		byKey:    make(map[string]*Group, len(c.byKey)),
		bySymbol: make(map[string][]*Group, len(c.bySymbol)),
	}
	for id, g := range c.byKey {
		out.byKey[id] = g
	}
	for symbol, bucket := range c.bySymbol {
		copied := make([]*Group, len(bucket))
		copy(copied, bucket)
		out.bySymbol[symbol] = copied
	}
	return out
}

// SetItem returns a new collection with g set, replacing any group with an
// equal key.
func (c *GroupCollection) SetItem(g *Group) *GroupCollection {
	out := c.clone()
	out.insert(g)
	return out
}

// SetItems returns a new collection with every given group set.
func (c *GroupCollection) SetItems(gs ...*Group) *GroupCollection {
	out := c.clone()
	for _, g := range gs {
		out.insert(g)
	}
	return out
}

// Remove returns a new collection without the group for key. Removing an
// absent key returns the receiver unchanged.
func (c *GroupCollection) Remove(key GroupKey) *GroupCollection {
	return c.RemoveRange(key)
}

// RemoveRange returns a new collection without the groups for keys.
func (c *GroupCollection) RemoveRange(keys ...GroupKey) *GroupCollection {
	found := false
	for _, key := range keys {
		if _, ok := c.byKey[key.id]; ok {
			found = true
			break
		}
	}
	if !found {
		return c
	}

	out := c.clone()
	for _, key := range keys {
		if g, ok := out.byKey[key.id]; ok {
			out.removeFromIndex(g)
			delete(out.byKey, key.id)
		}
	}
	return out
}

// CombineWith unions two collections, as when accumulating resolver
// outputs. A key present in both is valid only when the groups are
// reference-identical or value-equal; two resolvers must not each claim a
// differently-valued group under the same key.
func (c *GroupCollection) CombineWith(o *GroupCollection) (*GroupCollection, error) {
	if o == nil || len(o.byKey) == 0 {
		return c, nil
	}
	if len(c.byKey) == 0 {
		return o, nil
	}

	out := c.clone()
	for id, g := range o.byKey {
		if existing, ok := out.byKey[id]; ok {
			if existing == g {
				continue
			}
			if !existing.quantity.Equal(g.quantity) {
				return nil, fmt.Errorf("%w: %s", ErrConflictingGroups, id)
			}
			continue
		}
		out.insert(g)
	}
	return out, nil
}

// Get returns the group for key, if present.
func (c *GroupCollection) Get(key GroupKey) (*Group, bool) {
	g, ok := c.byKey[key.id]
	return g, ok
}

// GroupsForSymbol returns the groups containing symbol.
func (c *GroupCollection) GroupsForSymbol(symbol string) []*Group {
	bucket := c.bySymbol[symbol]
	out := make([]*Group, len(bucket))
	copy(out, bucket)
	return out
}

// ImpactedGroups returns the deduplicated set of existing non-empty groups
// whose margin could change as a result of the contemplated position
// changes — the bound that keeps what-if margin analysis from recomputing
// the whole portfolio. Each changed symbol's descriptor decides which
// groups it impacts.
func (c *GroupCollection) ImpactedGroups(deltas []Position) []*Group {
	seen := make(map[string]bool)
	var out []*Group
	for _, delta := range deltas {
		for _, g := range c.bySymbol[delta.Symbol] {
			if g.IsEmpty() || seen[g.key.id] {
				continue
			}
			seen[g.key.id] = true
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].key.id < out[j].key.id })
	return out
}

// Len is the number of groups held.
func (c *GroupCollection) Len() int {
	return len(c.byKey)
}

// IsEmpty reports whether the collection holds no groups.
func (c *GroupCollection) IsEmpty() bool {
	return len(c.byKey) == 0
}

// All returns every group, ordered by key for determinism.
func (c *GroupCollection) All() []*Group {
	out := make([]*Group, 0, len(c.byKey))
	for _, g := range c.byKey {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].key.id < out[j].key.id })
	return out
}
