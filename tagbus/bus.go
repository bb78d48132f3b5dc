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

package tagbus

import (
	"fmt"
	"sort"

	"github.com/probechain/rv-pipe/meta"
)

// region is one (start, end, provider) entry of a Bus.
type region struct {
	start, end uint64
	provider   Provider
}

// Bus is an ordered set of non-overlapping address regions, each backed by
// a Provider. Regions are kept sorted by descending start so that locating
// the region enclosing an address is a single binary search — the same
// "keyed by -start, lower_bound(-addr)" trick a std::map<int64_t,...> gives
// for free, done here with sort.Search since no ordered-map dependency
// exists anywhere in the retrieved corpus's actual go.mod require blocks.
type Bus struct {
	regions []region // descending by start
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// AddProvider installs a non-overlapping region [start, end) backed by p.
// It returns an error if the new region overlaps one already installed.
func (b *Bus) AddProvider(start, end uint64, p Provider) error {
	if end <= start {
		return fmt.Errorf("tagbus: empty or inverted region [%#x, %#x)", start, end)
	}
	for _, r := range b.regions {
		if start < r.end && r.start < end {
			return fmt.Errorf("tagbus: region [%#x, %#x) overlaps existing [%#x, %#x)", start, end, r.start, r.end)
		}
	}
	i := sort.Search(len(b.regions), func(i int) bool { return b.regions[i].start <= start })
	b.regions = append(b.regions, region{})
	copy(b.regions[i+1:], b.regions[i:])
	b.regions[i] = region{start: start, end: end, provider: p}
	return nil
}

// find returns the region containing addr, or false if unmapped.
func (b *Bus) find(addr uint64) (region, bool) {
	i := sort.Search(len(b.regions), func(i int) bool { return b.regions[i].start <= addr })
	if i >= len(b.regions) {
		return region{}, false
	}
	r := b.regions[i]
	if addr < r.start || addr >= r.end {
		return region{}, false
	}
	return r, true
}

// DataTagAt returns the data tag covering addr.
func (b *Bus) DataTagAt(addr uint64) (meta.Tag, error) {
	r, ok := b.find(addr)
	if !ok {
		return meta.Tag{}, fmt.Errorf("%w: address %#x unmapped", ErrOutOfRange, addr)
	}
	return r.provider.Tag(addr - r.start)
}

// SetDataTagAt installs t as the data tag covering addr.
func (b *Bus) SetDataTagAt(addr uint64, t meta.Tag) error {
	r, ok := b.find(addr)
	if !ok {
		return fmt.Errorf("%w: address %#x unmapped", ErrOutOfRange, addr)
	}
	return r.provider.SetTag(addr-r.start, t)
}

// InsnTagAt returns the instruction tag covering addr, as the region's
// provider resolves it (see Provider.InsnTag): a region whose data
// granularity is coarser than MinTagGranularity yields one instruction tag
// per data slot, not one per word.
func (b *Bus) InsnTagAt(addr uint64) (meta.Tag, error) {
	r, ok := b.find(addr)
	if !ok {
		return meta.Tag{}, fmt.Errorf("%w: address %#x unmapped", ErrOutOfRange, addr)
	}
	return r.provider.InsnTag(addr - r.start)
}

// LoadTagRange bolts a label onto an existing region post-hoc by replacing
// every word's tag in [start, end) with replacement. start and end must
// fall within a single already-installed region.
func (b *Bus) LoadTagRange(start, end uint64, replacement meta.Tag, granularity uint64) error {
	if granularity == 0 {
		granularity = MinTagGranularity
	}
	for addr := start; addr < end; addr += granularity {
		if err := b.SetDataTagAt(addr, replacement); err != nil {
			return err
		}
	}
	return nil
}
