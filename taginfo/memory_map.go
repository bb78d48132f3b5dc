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

// Package taginfo implements the ULEB128-framed tag-info file codec: the
// simulation and firmware wire shapes a validator's tags are loaded from,
// and the taginfo-args sidecar that attaches argument fields to them.
package taginfo

import (
	"sort"

	"github.com/probechain/rv-pipe/meta"
)

// Range is one address-ordered, tag-homogeneous span of a MetadataMemoryMap.
type Range struct {
	Start, End uint64
	Tag        meta.Tag
}

// MetadataMemoryMap is a sorted, disjoint set of half-open address ranges,
// each holding a single canonicalized tag. It is the in-memory structure a
// tag-info file is loaded into and saved back out of, grounded on
// mem_region_t::add_range's union-on-overlap semantics.
type MetadataMemoryMap struct {
	cache   *meta.Cache
	entries []Range
}

// NewMetadataMemoryMap returns an empty map backed by cache.
func NewMetadataMemoryMap(cache *meta.Cache) *MetadataMemoryMap {
	return &MetadataMemoryMap{cache: cache}
}

// Ranges returns the map's entries in address order. The returned slice
// must not be mutated.
func (m *MetadataMemoryMap) Ranges() []Range { return m.entries }

// TagAt returns the tag covering addr, or (Zero, false) if addr is
// uncovered.
func (m *MetadataMemoryMap) TagAt(addr uint64) (meta.Tag, bool) {
	i := sort.Search(len(m.entries), func(i int) bool { return m.entries[i].End > addr })
	if i >= len(m.entries) || addr < m.entries[i].Start {
		return meta.Tag{}, false
	}
	return m.entries[i].Tag, true
}

// AddRange unions set into every sub-range of [start, end) already covered
// by an entry, and fills any uncovered sub-range with set alone, the way a
// simulation tag-file loader merges successive entries sharing an
// overlapping address.
func (m *MetadataMemoryMap) AddRange(start, end uint64, set meta.MetaSet) {
	m.splice(start, end, func(existing meta.MetaSet, covered bool) meta.MetaSet {
		if !covered {
			return set
		}
		return existing.Union(set)
	})
}

// SetRange replaces every sub-range of [start, end) with tag, regardless of
// what (if anything) previously covered it. Used by the taginfo-args
// loader, which assigns a fully-formed replacement set per word rather
// than unioning labels.
func (m *MetadataMemoryMap) SetRange(start, end uint64, tag meta.Tag) {
	set := m.cache.Deref(tag)
	m.splice(start, end, func(meta.MetaSet, bool) meta.MetaSet { return set })
}

// splice rewrites [start, end) by calling combine once per maximal
// sub-range already at a single tag (covered=true, existing=that tag's
// set) or once per maximal uncovered gap (covered=false), replacing that
// sub-range with the canonicalized result of combine. Entries entirely
// outside [start, end) are left untouched.
func (m *MetadataMemoryMap) splice(start, end uint64, combine func(existing meta.MetaSet, covered bool) meta.MetaSet) {
	if end <= start {
		return
	}

	var result []Range
	i, n := 0, len(m.entries)

	for i < n && m.entries[i].End <= start {
		result = append(result, m.entries[i])
		i++
	}

	cursor := start
	for i < n && m.entries[i].Start < end {
		e := m.entries[i]
		i++

		if e.Start > cursor {
			result = append(result, Range{cursor, e.Start, m.cache.Canonize(combine(meta.Empty, false))})
		}
		if e.Start < start {
			result = append(result, Range{e.Start, start, e.Tag})
		}

		overlapStart := maxU64(e.Start, start)
		overlapEnd := minU64(e.End, end)
		newSet := combine(m.cache.Deref(e.Tag), true)
		result = append(result, Range{overlapStart, overlapEnd, m.cache.Canonize(newSet)})

		if e.End > end {
			result = append(result, Range{end, e.End, e.Tag})
		}
		cursor = e.End
	}
	if cursor < end {
		result = append(result, Range{cursor, end, m.cache.Canonize(combine(meta.Empty, false))})
	}

	for i < n {
		result = append(result, m.entries[i])
		i++
	}

	sort.Slice(result, func(a, b int) bool { return result[a].Start < result[b].Start })
	m.entries = mergeAdjacent(result)
}

// mergeAdjacent coalesces neighboring entries that share a tag, keeping the
// map's entry count from growing unboundedly under repeated AddRange calls
// over the same label.
func mergeAdjacent(entries []Range) []Range {
	if len(entries) == 0 {
		return entries
	}
	out := entries[:1]
	for _, e := range entries[1:] {
		last := &out[len(out)-1]
		if last.End == e.Start && last.Tag == e.Tag {
			last.End = e.End
			continue
		}
		out = append(out, e)
	}
	return out
}

func maxU64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}

func minU64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}
