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
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/probechain/rv-pipe/meta"
)

const argWordSize = 4

// TagArgsFile is the taginfo-args plain-ASCII sidecar: each line assigns
// per-word argument values to every word in a range, in the format
// `start_hex end_hex arg0 arg1 ...`.
type TagArgsFile struct {
	words map[uint64][meta.METASETArgs]uint32
}

// LoadTagArgs parses the sidecar format from r. A malformed line (fewer
// than two tokens) is skipped, matching the original loader's tolerance for
// a hand-edited file.
func LoadTagArgs(r io.Reader) (*TagArgsFile, error) {
	out := &TagArgsFile{words: make(map[uint64][meta.METASETArgs]uint32)}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		start, err := strconv.ParseUint(fields[0], 16, 64)
		if err != nil {
			return nil, fmt.Errorf("taginfo: bad start address %q: %w", fields[0], err)
		}
		end, err := strconv.ParseUint(fields[1], 16, 64)
		if err != nil {
			return nil, fmt.Errorf("taginfo: bad end address %q: %w", fields[1], err)
		}

		var args [meta.METASETArgs]uint32
		for i := 0; i < meta.METASETArgs && i+2 < len(fields); i++ {
			v, err := strconv.ParseUint(fields[i+2], 10, 32)
			if err != nil {
				return nil, fmt.Errorf("taginfo: bad argument %q: %w", fields[i+2], err)
			}
			args[i] = uint32(v)
		}

		for addr := start; addr < end; addr += argWordSize {
			out.words[addr] = args
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Apply attaches each recorded word's argument values to the MetaSet
// currently covering it in mm, replacing that word's tag with a freshly
// canonicalized copy carrying the arguments. Per meta.Cache.Canonize, a
// bitmap that has already been interned with different Args keeps its
// first-seen Args; Apply's effect on a given label combination is only
// visible the first time that combination is canonicalized with arguments.
func (t *TagArgsFile) Apply(mm *MetadataMemoryMap, cache *meta.Cache) {
	addrs := make([]uint64, 0, len(t.words))
	for addr := range t.words {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })

	for _, addr := range addrs {
		tag, ok := mm.TagAt(addr)
		set := meta.Empty
		if ok {
			set = cache.Deref(tag)
		}
		set.Args = t.words[addr]
		mm.SetRange(addr, addr+argWordSize, cache.Canonize(set))
	}
}
