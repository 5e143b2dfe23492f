package positions

import (
	"fmt"
)

// Resolver partitions positions from the shared pool into groups. A
// resolver must remove every position it claims from the pool and have no
// observable side effect beyond that mutation.
type Resolver interface {
	Resolve(pool *Collection) (*GroupCollection, error)
}

// CompositeResolver runs an ordered list of resolvers over the pool,
// highest priority first. The terminal resolver — the default/identity
// resolver — is always last and always exhausts the pool, so specialized
// multi-leg matchers registered earlier win any position they can claim.
type CompositeResolver struct {
	resolvers []Resolver
}

// NewCompositeResolver creates a pipeline ending in terminal, preceded by
// the given specialized resolvers in order.
func NewCompositeResolver(terminal Resolver, specialized ...Resolver) *CompositeResolver {
	rs := make([]Resolver, 0, len(specialized)+1)
	rs = append(rs, specialized...)
	rs = append(rs, terminal)
	return &CompositeResolver{resolvers: rs}
}

// Add appends r immediately before the terminal resolver.
func (c *CompositeResolver) Add(r Resolver) {
	c.Insert(len(c.resolvers)-1, r)
}

// Insert places r at index i, clamped so the terminal resolver stays last.
func (c *CompositeResolver) Insert(i int, r Resolver) {
	last := len(c.resolvers) - 1
	if i < 0 {
		i = 0
	}
	if i > last {
		i = last
	}
	c.resolvers = append(c.resolvers, nil)
	copy(c.resolvers[i+1:], c.resolvers[i:])
	c.resolvers[i] = r
}

// Remove deletes r from the pipeline. The terminal resolver cannot be
// removed. Returns false if r is not registered.
func (c *CompositeResolver) Remove(r Resolver) bool {
	for i := 0; i < len(c.resolvers)-1; i++ {
		if c.resolvers[i] == r {
			c.resolvers = append(c.resolvers[:i], c.resolvers[i+1:]...)
			return true
		}
	}
	return false
}

// Count is the number of resolvers in the pipeline, terminal included.
func (c *CompositeResolver) Count() int {
	return len(c.resolvers)
}

// Resolve runs the pipeline. Each resolver sees only the positions left
// unclaimed by its predecessors; outputs are unioned. A non-empty pool
// after the terminal resolver is a contract violation by a registered
// resolver and fails fatally.
func (c *CompositeResolver) Resolve(pool *Collection) (*GroupCollection, error) {
	groups := NewGroupCollection()
	for _, r := range c.resolvers {
		resolved, err := r.Resolve(pool)
		if err != nil {
			return nil, err
		}
		groups, err = groups.CombineWith(resolved)
		if err != nil {
			return nil, err
		}
	}
	if !pool.IsEmpty() {
		return nil, fmt.Errorf("%w: %d remaining", ErrUnresolvedPositions, pool.Len())
	}
	return groups, nil
}
