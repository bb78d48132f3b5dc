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

package decode

import (
	lru "github.com/hashicorp/golang-lru"
)

// cacheKey combines the raw word and xlen so a cache shared across harts of
// different widths never confuses a 32-bit-gated decode with a 64-bit one.
type cacheKey struct {
	bits uint32
	xlen int
}

// Cache fronts Decode with an ARC cache keyed by the raw instruction word.
// Because Decode is a pure function of its inputs, memoizing it is always
// sound — unlike the rule cache family in package rulecache, whose results
// depend on canonicalized tag state and must never be shared across
// differing Operands that merely decode from the same bits.
type Cache struct {
	arc *lru.ARCCache
}

// NewCache returns a decode cache holding up to size distinct (bits, xlen)
// entries.
func NewCache(size int) (*Cache, error) {
	arc, err := lru.NewARC(size)
	if err != nil {
		return nil, err
	}
	return &Cache{arc: arc}, nil
}

// Decode returns Decode(bits, xlen), serving from the ARC cache on repeat
// instruction words (loop bodies are the common case).
func (c *Cache) Decode(bits uint32, xlen int) DecodedInstruction {
	key := cacheKey{bits: bits, xlen: xlen}
	if v, ok := c.arc.Get(key); ok {
		return v.(DecodedInstruction)
	}
	inst := Decode(bits, xlen)
	c.arc.Add(key, inst)
	return inst
}

// Len returns the number of entries currently cached.
func (c *Cache) Len() int { return c.arc.Len() }

// Purge drops all cached entries.
func (c *Cache) Purge() { c.arc.Purge() }
