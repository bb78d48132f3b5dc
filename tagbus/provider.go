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

// Package tagbus routes address-keyed tag reads and writes to per-region
// providers, and owns the register/CSR/PC tag files a validator consults on
// every instruction.
package tagbus

import (
	"errors"
	"fmt"

	"github.com/probechain/rv-pipe/meta"
)

// ErrOutOfRange is returned by a Provider when an offset falls outside the
// region it backs.
var ErrOutOfRange = errors.New("tagbus: offset out of range")

// MinTagGranularity is the word size in bytes: the default granularity of a
// BackedProvider built with granularity 0 and of Bus.LoadTagRange. Instruction
// tags are not stored separately at this granularity; in a region whose data
// tag_granularity is coarser, instruction words sharing a data slot share one
// tag (see BackedProvider.InsnTag).
const MinTagGranularity = 4

// Provider is a region handler keyed by address offset from the region's
// start. Implementations must reject offsets that fall outside the region
// they were constructed for.
type Provider interface {
	// Tag returns the tag currently covering offset.
	Tag(offset uint64) (meta.Tag, error)
	// SetTag installs t at offset.
	SetTag(offset uint64, t meta.Tag) error
	// InsnTag returns the instruction tag covering offset. The providers in
	// this package resolve it exactly as Tag does, at their own data
	// granularity; they keep no finer-grained instruction tags.
	InsnTag(offset uint64) (meta.Tag, error)
}

// UniformProvider holds one tag for an entire region: reads always return
// it, writes replace it globally.
type UniformProvider struct {
	size uint64
	tag  meta.Tag
}

// NewUniformProvider returns a provider for a region of the given size
// (end - start), initialized to tag.
func NewUniformProvider(size uint64, tag meta.Tag) *UniformProvider {
	return &UniformProvider{size: size, tag: tag}
}

func (p *UniformProvider) checkRange(offset uint64) error {
	if offset >= p.size {
		return fmt.Errorf("%w: offset %#x >= size %#x", ErrOutOfRange, offset, p.size)
	}
	return nil
}

// Tag implements Provider.
func (p *UniformProvider) Tag(offset uint64) (meta.Tag, error) {
	if err := p.checkRange(offset); err != nil {
		return meta.Tag{}, err
	}
	return p.tag, nil
}

// SetTag implements Provider; it replaces the region's single tag for every
// address, matching the spec's "writes replace it globally" semantics.
func (p *UniformProvider) SetTag(offset uint64, t meta.Tag) error {
	if err := p.checkRange(offset); err != nil {
		return err
	}
	p.tag = t
	return nil
}

// InsnTag implements Provider.
func (p *UniformProvider) InsnTag(offset uint64) (meta.Tag, error) {
	return p.Tag(offset)
}

// BackedProvider holds one tag per tagGranularity bytes, indexed by
// (offset / tagGranularity).
type BackedProvider struct {
	size            uint64
	tagGranularity  uint64
	tags            []meta.Tag
}

// NewBackedProvider returns a provider for a region of the given size,
// divided into words of tagGranularity bytes each, all initialized to init.
func NewBackedProvider(size, tagGranularity uint64, init meta.Tag) *BackedProvider {
	if tagGranularity == 0 {
		tagGranularity = MinTagGranularity
	}
	n := (size + tagGranularity - 1) / tagGranularity
	tags := make([]meta.Tag, n)
	for i := range tags {
		tags[i] = init
	}
	return &BackedProvider{size: size, tagGranularity: tagGranularity, tags: tags}
}

func (p *BackedProvider) index(offset, granularity uint64) (int, error) {
	if offset >= p.size {
		return 0, fmt.Errorf("%w: offset %#x >= size %#x", ErrOutOfRange, offset, p.size)
	}
	return int(offset / granularity), nil
}

// Tag implements Provider, indexing at the region's own data granularity.
func (p *BackedProvider) Tag(offset uint64) (meta.Tag, error) {
	i, err := p.index(offset, p.tagGranularity)
	if err != nil {
		return meta.Tag{}, err
	}
	return p.tags[i], nil
}

// SetTag implements Provider.
func (p *BackedProvider) SetTag(offset uint64, t meta.Tag) error {
	i, err := p.index(offset, p.tagGranularity)
	if err != nil {
		return err
	}
	p.tags[i] = t
	return nil
}

// InsnTag implements Provider. The backing vector is only as fine as the
// region's own data granularity, so a request at MinTagGranularity still
// resolves to the backing slot that offset falls within; a provider whose
// data granularity is coarser than MinTagGranularity cannot offer finer
// instruction tags than it stores.
func (p *BackedProvider) InsnTag(offset uint64) (meta.Tag, error) {
	return p.Tag(offset)
}
