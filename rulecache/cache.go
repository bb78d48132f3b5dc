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

import "fmt"

// Cache memoizes policy evaluations. All implementations must satisfy: for
// any Operands, Allow either misses or returns the exact Results previously
// installed for equal operands (the bounded implementations may miss even
// after install, due to eviction or hash approximation; the ideal cache
// never falsely misses).
type Cache interface {
	// Allow looks up ops. On hit it returns the installed Results and true.
	// On miss it returns the zero Results and false.
	Allow(ops Operands) (Results, bool)
	// InstallRule records the mapping ops -> res, evicting an existing
	// entry if the cache is at capacity.
	InstallRule(ops Operands, res Results)
	// Flush drops every installed entry.
	Flush()
}

// Config selects a Cache implementation and its capacity (ignored by the
// ideal cache).
type Config struct {
	Name     string // "ideal" | "finite" | "dmhc"
	Capacity int
}

// New builds the Cache implementation named by cfg.Name.
func New(cfg Config) (Cache, error) {
	switch cfg.Name {
	case "ideal", "":
		return NewIdealCache(), nil
	case "finite":
		if cfg.Capacity <= 0 {
			return nil, fmt.Errorf("rulecache: finite cache requires capacity > 0, got %d", cfg.Capacity)
		}
		return NewFiniteCache(cfg.Capacity), nil
	case "dmhc":
		if cfg.Capacity <= 0 {
			return nil, fmt.Errorf("rulecache: dmhc cache requires capacity > 0, got %d", cfg.Capacity)
		}
		return NewDMHCCache(cfg.Capacity), nil
	default:
		return nil, fmt.Errorf("rulecache: unknown cache kind %q", cfg.Name)
	}
}

// IdealCache is an unbounded map from Operands to Results. It never
// evicts and is used as the ground-truth reference implementation.
type IdealCache struct {
	entries map[Operands]Results
}

// NewIdealCache returns an empty IdealCache.
func NewIdealCache() *IdealCache {
	return &IdealCache{entries: make(map[Operands]Results)}
}

// Allow implements Cache.
func (c *IdealCache) Allow(ops Operands) (Results, bool) {
	res, ok := c.entries[ops]
	return res, ok
}

// InstallRule implements Cache.
func (c *IdealCache) InstallRule(ops Operands, res Results) {
	c.entries[ops] = res
}

// Flush implements Cache.
func (c *IdealCache) Flush() {
	c.entries = make(map[Operands]Results)
}

// Len returns the number of installed entries.
func (c *IdealCache) Len() int { return len(c.entries) }
