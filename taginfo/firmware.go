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

	"github.com/probechain/rv-pipe/internal/uleb"
	"github.com/probechain/rv-pipe/meta"
)

// AddrRange is a half-open [Start, End) address span, used for the
// firmware header's code/data range lists.
type AddrRange struct{ Start, End uint64 }

// IndexEntry assigns the metadata value at Index to [Start, End).
type IndexEntry struct {
	Start, End uint64
	Index      uint64
}

// RegIndexEntry assigns the metadata value at Index to register/CSR number
// Num, for the firmware file's trailing register/CSR default tables.
type RegIndexEntry struct {
	Num   uint32
	Index uint64
}

// FirmwareFile is the fully decoded index-based tag-file shape: a header of
// code/data ranges, a de-duplicated metadata value table, a memory index
// table, and the register/CSR/env default tables spec.md §4.7 describes as
// following "an analogous shape".
type FirmwareFile struct {
	IsXLen64       bool
	CodeRanges     []AddrRange
	DataRanges     []AddrRange
	MetadataValues []meta.MetaSet
	MemoryIndex    []IndexEntry

	RegisterDefault uint64
	RegisterIndex   []RegIndexEntry
	CSRDefault      uint64
	CSRIndex        []RegIndexEntry
	EnvDefault      uint64
}

// Encode writes f in the firmware wire shape.
func (f *FirmwareFile) Encode(w io.Writer) error {
	var buf []byte
	buf = uleb.Append(buf, boolU64(f.IsXLen64))

	buf = uleb.Append(buf, uint64(len(f.CodeRanges)))
	for _, r := range f.CodeRanges {
		buf = uleb.Append(buf, r.Start)
		buf = uleb.Append(buf, r.End)
	}

	buf = uleb.Append(buf, uint64(len(f.DataRanges)))
	for _, r := range f.DataRanges {
		buf = uleb.Append(buf, r.Start)
		buf = uleb.Append(buf, r.End)
	}

	buf = uleb.Append(buf, uint64(len(f.MetadataValues)))
	for _, ms := range f.MetadataValues {
		labels := ms.Labels()
		buf = uleb.Append(buf, uint64(len(labels)))
		for _, id := range labels {
			buf = uleb.Append(buf, uint64(id))
		}
	}

	buf = uleb.Append(buf, uint64(len(f.MemoryIndex)))
	for _, e := range f.MemoryIndex {
		buf = uleb.Append(buf, e.Start)
		buf = uleb.Append(buf, e.End)
		buf = uleb.Append(buf, e.Index)
	}

	buf = uleb.Append(buf, f.RegisterDefault)
	buf = uleb.Append(buf, uint64(len(f.RegisterIndex)))
	for _, e := range f.RegisterIndex {
		buf = uleb.Append(buf, uint64(e.Num))
		buf = uleb.Append(buf, e.Index)
	}

	buf = uleb.Append(buf, f.CSRDefault)
	buf = uleb.Append(buf, uint64(len(f.CSRIndex)))
	for _, e := range f.CSRIndex {
		buf = uleb.Append(buf, uint64(e.Num))
		buf = uleb.Append(buf, e.Index)
	}

	buf = uleb.Append(buf, f.EnvDefault)

	_, err := w.Write(buf)
	return err
}

// DecodeFirmware reads the firmware wire shape produced by Encode.
func DecodeFirmware(r io.Reader) (*FirmwareFile, error) {
	br := bufio.NewReader(r)
	f := &FirmwareFile{}

	is64, err := uleb.Read(br)
	if err != nil {
		return nil, fmt.Errorf("taginfo: reading is_64_bit: %w", err)
	}
	f.IsXLen64 = is64 != 0

	codeCount, err := uleb.Read(br)
	if err != nil {
		return nil, fmt.Errorf("taginfo: reading code_range_count: %w", err)
	}
	f.CodeRanges = make([]AddrRange, codeCount)
	for i := range f.CodeRanges {
		if f.CodeRanges[i], err = readAddrRange(br); err != nil {
			return nil, fmt.Errorf("taginfo: reading code range %d: %w", i, err)
		}
	}

	dataCount, err := uleb.Read(br)
	if err != nil {
		return nil, fmt.Errorf("taginfo: reading data_range_count: %w", err)
	}
	f.DataRanges = make([]AddrRange, dataCount)
	for i := range f.DataRanges {
		if f.DataRanges[i], err = readAddrRange(br); err != nil {
			return nil, fmt.Errorf("taginfo: reading data range %d: %w", i, err)
		}
	}

	valueCount, err := uleb.Read(br)
	if err != nil {
		return nil, fmt.Errorf("taginfo: reading metadata_value_count: %w", err)
	}
	f.MetadataValues = make([]meta.MetaSet, valueCount)
	for i := range f.MetadataValues {
		labelCount, err := uleb.Read(br)
		if err != nil {
			return nil, fmt.Errorf("taginfo: reading metadata value %d length: %w", i, err)
		}
		ms := meta.Empty
		for j := uint64(0); j < labelCount; j++ {
			id, err := uleb.Read(br)
			if err != nil {
				return nil, fmt.Errorf("taginfo: reading metadata value %d label %d: %w", i, j, err)
			}
			ms = ms.With(int(id))
		}
		f.MetadataValues[i] = ms
	}

	indexCount, err := uleb.Read(br)
	if err != nil {
		return nil, fmt.Errorf("taginfo: reading memory_index_count: %w", err)
	}
	f.MemoryIndex = make([]IndexEntry, indexCount)
	for i := range f.MemoryIndex {
		start, err := uleb.Read(br)
		if err != nil {
			return nil, fmt.Errorf("taginfo: reading memory index %d start: %w", i, err)
		}
		end, err := uleb.Read(br)
		if err != nil {
			return nil, fmt.Errorf("taginfo: reading memory index %d end: %w", i, err)
		}
		idx, err := uleb.Read(br)
		if err != nil {
			return nil, fmt.Errorf("taginfo: reading memory index %d index: %w", i, err)
		}
		f.MemoryIndex[i] = IndexEntry{Start: start, End: end, Index: idx}
	}

	if f.RegisterDefault, err = uleb.Read(br); err != nil {
		return nil, fmt.Errorf("taginfo: reading register_default: %w", err)
	}
	if f.RegisterIndex, err = readRegIndex(br); err != nil {
		return nil, fmt.Errorf("taginfo: reading register index table: %w", err)
	}
	if f.CSRDefault, err = uleb.Read(br); err != nil {
		return nil, fmt.Errorf("taginfo: reading csr_default: %w", err)
	}
	if f.CSRIndex, err = readRegIndex(br); err != nil {
		return nil, fmt.Errorf("taginfo: reading csr index table: %w", err)
	}
	if f.EnvDefault, err = uleb.Read(br); err != nil {
		return nil, fmt.Errorf("taginfo: reading env_default: %w", err)
	}

	return f, nil
}

func readAddrRange(br io.ByteReader) (AddrRange, error) {
	start, err := uleb.Read(br)
	if err != nil {
		return AddrRange{}, err
	}
	end, err := uleb.Read(br)
	if err != nil {
		return AddrRange{}, err
	}
	return AddrRange{Start: start, End: end}, nil
}

func readRegIndex(br io.ByteReader) ([]RegIndexEntry, error) {
	count, err := uleb.Read(br)
	if err != nil {
		return nil, err
	}
	out := make([]RegIndexEntry, count)
	for i := range out {
		num, err := uleb.Read(br)
		if err != nil {
			return nil, err
		}
		idx, err := uleb.Read(br)
		if err != nil {
			return nil, err
		}
		out[i] = RegIndexEntry{Num: uint32(num), Index: idx}
	}
	return out, nil
}

func boolU64(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

// ToMemoryMap rebuilds a MetadataMemoryMap from f's metadata value table and
// memory index, canonicalizing each distinct value exactly once.
func (f *FirmwareFile) ToMemoryMap(cache *meta.Cache) *MetadataMemoryMap {
	mm := NewMetadataMemoryMap(cache)
	tags := make([]meta.Tag, len(f.MetadataValues))
	for i, ms := range f.MetadataValues {
		tags[i] = cache.Canonize(ms)
	}
	for _, e := range f.MemoryIndex {
		mm.SetRange(e.Start, e.End, tags[e.Index])
	}
	return mm
}

// SaveTagIndexes rewrites mm into the index-based firmware encoding,
// de-duplicating metadata sets with a bloom-filter pre-filter ahead of the
// exact lookup, per spec.md §4.7's save_tag_indexes.
func SaveTagIndexes(mm *MetadataMemoryMap, cache *meta.Cache, codeRanges, dataRanges []AddrRange, is64 bool) (*FirmwareFile, error) {
	ranges := mm.Ranges()
	dedupe, err := newDedupeIndex(len(ranges))
	if err != nil {
		return nil, err
	}

	f := &FirmwareFile{IsXLen64: is64, CodeRanges: codeRanges, DataRanges: dataRanges}
	f.MemoryIndex = make([]IndexEntry, 0, len(ranges))

	for _, r := range ranges {
		set := cache.Deref(r.Tag)
		idx := dedupe.indexOf(set, f)
		f.MemoryIndex = append(f.MemoryIndex, IndexEntry{Start: r.Start, End: r.End, Index: idx})
	}

	sort.Slice(f.MemoryIndex, func(i, j int) bool { return f.MemoryIndex[i].Start < f.MemoryIndex[j].Start })
	return f, nil
}
