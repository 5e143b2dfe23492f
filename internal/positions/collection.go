package positions

import (
	"sort"
)

// Collection is the mutable pool of positions not yet claimed by a group.
// Resolvers consume it destructively: each resolver must remove every
// position it groups, and a non-empty pool after the full pipeline is a
// fatal resolution error.
type Collection struct {
	bySymbol map[string][]Position
	count    int
}

// NewCollection creates a pool seeded with the given positions.
func NewCollection(ps ...Position) *Collection {
	c := &Collection{bySymbol: make(map[string][]Position)}
	for _, p := range ps {
		c.Add(p)
	}
	return c
}

// Add inserts a position into its symbol bucket, creating the bucket if the
// symbol is not yet present.
func (c *Collection) Add(p Position) {
	c.bySymbol[p.Symbol] = append(c.bySymbol[p.Symbol], p)
	c.count++
}

// Remove deletes the first position equal to p. Returns false if no such
// position is present; absence is not an error.
func (c *Collection) Remove(p Position) bool {
	bucket := c.bySymbol[p.Symbol]
	for i, existing := range bucket {
		if existing.Equal(p) {
			bucket = append(bucket[:i], bucket[i+1:]...)
			if len(bucket) == 0 {
				delete(c.bySymbol, p.Symbol)
			} else {
				c.bySymbol[p.Symbol] = bucket
			}
			c.count--
			return true
		}
	}
	return false
}

// RemoveSymbol drops every remaining position for symbol and returns them.
func (c *Collection) RemoveSymbol(symbol string) []Position {
	bucket := c.bySymbol[symbol]
	if len(bucket) == 0 {
		return nil
	}
	delete(c.bySymbol, symbol)
	c.count -= len(bucket)
	return bucket
}

// Clear empties the pool.
func (c *Collection) Clear() {
	c.bySymbol = make(map[string][]Position)
	c.count = 0
}

// IsEmpty reports whether no positions remain.
func (c *Collection) IsEmpty() bool {
	return c.count == 0
}

// Len is the number of positions in the pool.
func (c *Collection) Len() int {
	return c.count
}

// Symbols returns the distinct symbols with remaining positions, sorted for
// deterministic resolution order.
func (c *Collection) Symbols() []string {
	symbols := make([]string, 0, len(c.bySymbol))
	for s := range c.bySymbol {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	return symbols
}

// ForSymbol returns a copy of the remaining positions for symbol.
func (c *Collection) ForSymbol(symbol string) []Position {
	bucket := c.bySymbol[symbol]
	out := make([]Position, len(bucket))
	copy(out, bucket)
	return out
}

// All returns every remaining position, ordered by symbol then insertion.
func (c *Collection) All() []Position {
	out := make([]Position, 0, c.count)
	for _, symbol := range c.Symbols() {
		out = append(out, c.bySymbol[symbol]...)
	}
	return out
}
