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

	"github.com/probechain/rv-pipe/internal/uleb"
	"github.com/probechain/rv-pipe/meta"
)

// LoadSimulation reads the headerless simulation tag-file shape — a stream
// of `uleb(start) uleb(end) uleb(count) [uleb(meta_id)]*count` entries —
// merging each into mm via AddRange.
func LoadSimulation(r io.Reader, mm *MetadataMemoryMap, cache *meta.Cache) error {
	br := bufio.NewReader(r)
	for {
		start, err := uleb.Read(br)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("taginfo: reading entry start: %w", err)
		}
		end, err := uleb.Read(br)
		if err != nil {
			return fmt.Errorf("taginfo: reading entry end: %w", err)
		}
		count, err := uleb.Read(br)
		if err != nil {
			return fmt.Errorf("taginfo: reading entry label count: %w", err)
		}
		set := meta.Empty
		for i := uint64(0); i < count; i++ {
			id, err := uleb.Read(br)
			if err != nil {
				return fmt.Errorf("taginfo: reading label id: %w", err)
			}
			set = set.With(int(id))
		}
		mm.AddRange(start, end, set)
	}
}

// SaveSimulation writes mm's ranges in address order as the headerless
// simulation shape.
func SaveSimulation(w io.Writer, mm *MetadataMemoryMap, cache *meta.Cache) error {
	var buf []byte
	for _, r := range mm.Ranges() {
		buf = appendSimEntry(buf, r.Start, r.End, cache.Deref(r.Tag).Labels())
	}
	_, err := w.Write(buf)
	return err
}

func appendSimEntry(buf []byte, start, end uint64, labels []int) []byte {
	buf = uleb.Append(buf, start)
	buf = uleb.Append(buf, end)
	buf = uleb.Append(buf, uint64(len(labels)))
	for _, id := range labels {
		buf = uleb.Append(buf, uint64(id))
	}
	return buf
}
