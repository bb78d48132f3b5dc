// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.
//
// The ProbeChain is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The ProbeChain is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the ProbeChain. If not, see <http://www.gnu.org/licenses/>.

package rulecache

// FiniteCache is a fixed-capacity rule cache: a ring buffer of installed
// keys plus the same map an IdealCache would use, evicted in strict
// insertion order. This is deliberately not an LRU/ARC policy — the slot a
// new install lands on is next_entry regardless of recency, so eviction
// order is a pure function of install order and is independently testable
// from any access-pattern-sensitive cache.
type FiniteCache struct {
	entries   map[Operands]Results
	ring      []Operands
	occupied  []bool
	nextEntry int
}

// NewFiniteCache returns a FiniteCache holding at most capacity entries.
func NewFiniteCache(capacity int) *FiniteCache {
	return &FiniteCache{
		entries:  make(map[Operands]Results, capacity),
		ring:     make([]Operands, capacity),
		occupied: make([]bool, capacity),
	}
}

// Allow implements Cache.
func (c *FiniteCache) Allow(ops Operands) (Results, bool) {
	res, ok := c.entries[ops]
	return res, ok
}

// InstallRule implements Cache: it writes to ring[next_entry], evicting
// whatever key currently occupies that slot, then advances next_entry
// modulo the ring's length.
func (c *FiniteCache) InstallRule(ops Operands, res Results) {
	n := len(c.ring)
	if n == 0 {
		return
	}
	i := c.nextEntry
	if c.occupied[i] {
		delete(c.entries, c.ring[i])
	}
	c.ring[i] = ops
	c.occupied[i] = true
	c.entries[ops] = res
	c.nextEntry = (i + 1) % n
}

// Flush implements Cache.
func (c *FiniteCache) Flush() {
	for i := range c.occupied {
		c.occupied[i] = false
	}
	c.entries = make(map[Operands]Results, len(c.ring))
	c.nextEntry = 0
}

// Len returns the number of entries currently installed.
func (c *FiniteCache) Len() int { return len(c.entries) }

// Capacity returns the ring's fixed size.
func (c *FiniteCache) Capacity() int { return len(c.ring) }
