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

package taginfo

import (
	"hash/fnv"
	"strconv"
	"strings"

	"github.com/holiman/bloomfilter/v2"
	"github.com/probechain/rv-pipe/meta"
)

// dedupeIndex assigns a stable index to each distinct MetaSet it is asked
// about, appending new values to a FirmwareFile's MetadataValues table the
// first time a value is seen. A bloom filter sits ahead of the exact
// map lookup: a miss there always means a genuinely new value, so the exact
// map is only consulted on a possible (or definite, past the false-positive
// rate) repeat.
type dedupeIndex struct {
	filter *bloomfilter.Filter
	exact  map[string]uint64
}

// newDedupeIndex sizes the bloom filter for roughly n distinct ranges at a
// 1% false-positive rate; n is a ceiling on distinct values, not an exact
// count, so oversizing by the true range count is harmless.
func newDedupeIndex(n int) (*dedupeIndex, error) {
	if n < 1 {
		n = 1
	}
	filter, err := bloomfilter.NewOptimal(uint64(n), 0.01)
	if err != nil {
		return nil, err
	}
	return &dedupeIndex{filter: filter, exact: make(map[string]uint64)}, nil
}

func (d *dedupeIndex) indexOf(set meta.MetaSet, f *FirmwareFile) uint64 {
	key := dedupeKey(set)

	h := fnv.New64a()
	h.Write([]byte(key))
	if d.filter.Contains(h) {
		if idx, ok := d.exact[key]; ok {
			return idx
		}
	}

	idx := uint64(len(f.MetadataValues))
	f.MetadataValues = append(f.MetadataValues, set)
	d.exact[key] = idx
	h2 := fnv.New64a()
	h2.Write([]byte(key))
	d.filter.Add(h2)
	return idx
}

// dedupeKey renders set's label list as a string key. Args are deliberately
// excluded: two sets with the same labels but different Args still
// canonicalize to the same meta.Tag (Cache.Canonize keys on the bitmap
// alone), so they must also collapse to the same metadata-value table
// entry.
func dedupeKey(set meta.MetaSet) string {
	labels := set.Labels()
	parts := make([]string, len(labels))
	for i, id := range labels {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ",")
}
