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

package meta

import (
	"fmt"

	"github.com/probechain/rv-pipe/internal/xlog"
)

// growthWarnThreshold is the slice length past which Canonize starts
// warning on every grow, a cheap capacity-pressure signal for pointer-style
// caches; an index-based cache like this one does not strictly need it,
// but the warning is harmless and useful for spotting policies that canonize
// an unbounded number of distinct sets.
const growthWarnThreshold = 1 << 16

// Tag is a cheap-to-copy handle for a canonicalized MetaSet: a stable index
// into the owning Cache's append-only set vector. A Tag is only ever
// produced by Cache.Canonize; there is no exported way to build one from a
// bare integer, so a forged index cannot be mistaken for an issued tag
// outside of this package's own tests.
type Tag struct {
	idx int32
}

// Zero is the Tag for the empty MetaSet, always index 0 in a fresh Cache.
var Zero = Tag{idx: 0}

func (t Tag) String() string { return fmt.Sprintf("Tag(%d)", t.idx) }

// Ordinal returns the Tag's underlying index. It exists for callers (e.g.
// the DMHC rule cache's hash functions) that need a stable integer to fold
// into a hash; it is not a capability for deref and carries no meaning
// across different Caches.
func (t Tag) Ordinal() int32 { return t.idx }

// Cache is an append-only MetaSet -> Tag interning table. It is safe for a
// single writer only; validators are single-threaded, so no locking is
// attempted here.
type Cache struct {
	sets  []MetaSet
	index map[[METASETWords]uint64]int32
	warnedAt int
}

// NewCache returns a Cache pre-seeded with the empty set at Tag Zero, so
// every Cache agrees on what an absent/default tag derefs to.
func NewCache() *Cache {
	c := &Cache{
		sets:  make([]MetaSet, 0, 64),
		index: make(map[[METASETWords]uint64]int32, 64),
	}
	c.sets = append(c.sets, Empty)
	c.index[Empty.bits] = 0
	return c
}

// Canonize returns the Tag for ms, reusing an existing entry whenever a set
// with the same bitmap has already been interned. Argument fields on a
// reused entry are left untouched: canonicalization identifies sets by
// label bitmap only, so the first caller to canonize a given bitmap decides
// its Args.
func (c *Cache) Canonize(ms MetaSet) Tag {
	if idx, ok := c.index[ms.bits]; ok {
		return Tag{idx: idx}
	}
	idx := int32(len(c.sets))
	c.sets = append(c.sets, ms)
	c.index[ms.bits] = idx
	if len(c.sets) >= growthWarnThreshold && len(c.sets) > c.warnedAt {
		c.warnedAt = len(c.sets)
		xlog.Warn("meta-set cache growing large", "entries", len(c.sets))
	}
	return Tag{idx: idx}
}

// Deref returns the MetaSet a previously issued Tag refers to. Deref on a
// Tag never returned by this Cache's Canonize is undefined; in practice it
// panics on an out-of-range index rather than reading garbage.
func (c *Cache) Deref(t Tag) MetaSet {
	if t.idx < 0 || int(t.idx) >= len(c.sets) {
		panic(fmt.Sprintf("meta: deref of unknown tag %v", t))
	}
	return c.sets[t.idx]
}

// Len returns the number of distinct sets interned so far, including the
// empty set at Tag Zero.
func (c *Cache) Len() int { return len(c.sets) }
