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

import (
	"encoding/binary"

	"github.com/probechain/rv-pipe/meta"
)

// GTableMaxCount is the saturating ceiling a guide-table slot's use count
// is clamped to; beyond this the slot simply stops counting further
// sharers rather than overflowing.
const GTableMaxCount = 3

// HopLimit is the hop budget makeRoom is given for one insert; with any
// budget left it evicts one victim. The victim is dropped, not reinserted,
// and makeRoom does not recurse, so at most one entry is evicted this way.
const HopLimit = 1

// invalidLastUser is the reserved "no inserter" marker; mtable slot 0 is
// never used for a real entry so this value can never collide with a real
// address.
const invalidLastUser = 0

type gtableSlot struct {
	value        int
	count        int
	lastInserter int
}

type mtableEntry struct {
	inUse  bool
	ops    Operands
	res    Results
	hashes []int
}

// DMHCCache is an approximate d-left multi-hash rule cache: a content
// table (mtable) of fixed capacity plus k guide tables (gtable) of
// associativity c, each slot an XOR-folded address with a saturating use
// count. A lookup that resolves to an occupied, matching mtable slot is a
// hit; resolving to a slot whose stored operands differ under the
// considered fields is a false-miss — an accepted cost of the
// approximation, unlike the ideal cache which never falsely misses.
type DMHCCache struct {
	capacity int // M: mtable entries, indices [1, capacity]
	k        int
	c        int

	mtable    []mtableEntry // length capacity+1; index 0 reserved/unused
	gtable    [][]gtableSlot // k tables, each of width c*capacity
	nextEntry int
}

// NewDMHCCache returns a DMHCCache with capacity mtable entries using the
// default hash fan-out (k=4) and associativity (c=2). These are the values
// the rule cache factory New always uses; Config carries no k or c setting.
func NewDMHCCache(capacity int) *DMHCCache {
	return NewDMHCCacheParams(capacity, 4, 2)
}

// NewDMHCCacheParams returns a DMHCCache with explicit k (hash fan-out) and
// c (guide-table associativity).
func NewDMHCCacheParams(capacity, k, c int) *DMHCCache {
	d := &DMHCCache{capacity: capacity, k: k, c: c}
	d.Flush()
	return d
}

// Flush implements Cache: it resets next_entry to 1 (slot 0 stays the
// reserved "invalid last inserter" address), and zeros every table.
func (d *DMHCCache) Flush() {
	d.mtable = make([]mtableEntry, d.capacity+1)
	width := d.c * d.capacity
	if width < 1 {
		width = 1
	}
	d.gtable = make([][]gtableSlot, d.k)
	for i := range d.gtable {
		d.gtable[i] = make([]gtableSlot, width)
	}
	d.nextEntry = 1
}

// computeHashes folds the considered operand bits into k indices into the
// gtable, one per hash function. pc and ci always participate; op1..op3
// and mem participate only when present, matching "compute k hashes over
// the present operand bits".
func (d *DMHCCache) computeHashes(ops Operands) []int {
	var buf [56]byte
	n := 0
	put := func(v int32) {
		binary.LittleEndian.PutUint32(buf[n:], uint32(v))
		n += 4
	}
	putTag := func(present bool, t meta.Tag) {
		if present {
			put(t.Ordinal())
		}
	}
	put(ops.PC.Ordinal())
	put(ops.CI.Ordinal())
	putTag(ops.HasOp1, ops.Op1)
	putTag(ops.HasOp2, ops.Op2)
	putTag(ops.HasOp3, ops.Op3)
	putTag(ops.HasMem, ops.Mem)

	data := buf[:n]
	width := d.c * d.capacity
	if width < 1 {
		width = 1
	}
	hashes := make([]int, d.k)
	for i := 0; i < d.k; i++ {
		hashes[i] = int(fnv32a(data, uint32(0x811c9dc5+i*0x01000193)) % uint32(width))
	}
	return hashes
}

func fnv32a(data []byte, seed uint32) uint32 {
	h := seed
	for _, b := range data {
		h ^= uint32(b)
		h *= 16777619
	}
	return h
}

// operandsMatch reports whether stored matches ops under the considered
// fields of ops (the mask InstallRule recorded this entry with).
func operandsMatch(stored, ops Operands) bool {
	return stored.Equal(ops)
}

// Allow implements Cache.
func (d *DMHCCache) Allow(ops Operands) (Results, bool) {
	hashes := d.computeHashes(ops)
	candidate := 0
	for i, h := range hashes {
		slot := d.gtable[i][h]
		if slot.count == 0 {
			return Results{}, false
		}
		candidate ^= slot.value
	}
	if candidate < 1 || candidate > d.capacity {
		return Results{}, false
	}
	entry := d.mtable[candidate]
	if !entry.inUse {
		return Results{}, false
	}
	if !operandsMatch(entry.ops, ops) {
		return Results{}, false // false-miss: candidate resolved but didn't verify
	}
	return entry.res, true
}

func (d *DMHCCache) evict(address int) {
	entry := d.mtable[address]
	if !entry.inUse {
		return
	}
	for i, h := range entry.hashes {
		slot := &d.gtable[i][h]
		if slot.count > 0 {
			slot.count--
		}
		if slot.lastInserter == address {
			slot.lastInserter = invalidLastUser
		}
	}
	d.mtable[address] = mtableEntry{}
}

// InstallRule implements Cache per the insertion algorithm: next_entry
// names the mtable slot to (re)use, evicting whatever currently occupies
// it; among the k guide-table slots the new hashes land on, a slot with
// count==0 is preferred; failing that, the minimum-count slot's current
// occupant is evicted to make room, bounded by HopLimit.
func (d *DMHCCache) InstallRule(ops Operands, res Results) {
	if d.capacity < 1 {
		return
	}
	address := d.nextEntry
	d.evict(address)

	hashes := d.computeHashes(ops)
	freeIdx := -1
	for i, h := range hashes {
		if d.gtable[i][h].count == 0 {
			freeIdx = i
			break
		}
	}
	if freeIdx == -1 {
		freeIdx = d.makeRoom(hashes, HopLimit)
	}

	val := address
	for i, h := range hashes {
		if i == freeIdx {
			continue
		}
		val ^= d.gtable[i][h].value
	}
	d.gtable[freeIdx][hashes[freeIdx]].value = val

	for i, h := range hashes {
		slot := &d.gtable[i][h]
		if slot.count < GTableMaxCount {
			slot.count++
		}
		slot.lastInserter = address
	}

	d.mtable[address] = mtableEntry{inUse: true, ops: ops, res: res, hashes: hashes}
	d.nextEntry++
	if d.nextEntry > d.capacity {
		d.nextEntry = 1
	}
}

// makeRoom picks the minimum-count slot among hashes, evicts that slot's
// last inserter (when hopsLeft > 0 and one is recorded), and returns the
// slot's index within hashes for the caller to use as the new entry's free
// slot. It evicts at most one victim and does not recurse; when the slot
// still has other users afterward, the caller overwrites its value anyway
// and lookups of those users may then miss.
func (d *DMHCCache) makeRoom(hashes []int, hopsLeft int) int {
	minIdx, minCount := 0, d.gtable[0][hashes[0]].count
	for i := 1; i < len(hashes); i++ {
		if c := d.gtable[i][hashes[i]].count; c < minCount {
			minIdx, minCount = i, c
		}
	}
	slot := &d.gtable[minIdx][hashes[minIdx]]
	victim := slot.lastInserter
	if victim != invalidLastUser && victim >= 1 && victim <= d.capacity && hopsLeft > 0 {
		d.evict(victim)
	}
	return minIdx
}
