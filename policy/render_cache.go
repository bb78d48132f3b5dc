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

package policy

import (
	"encoding/binary"

	"github.com/VictoriaMetrics/fastcache"
	"github.com/probechain/rv-pipe/meta"
)

// Renderer is satisfied by both Factory and RenderCache, so callers that
// only need to turn a MetaSet into a label string — the validator's
// debug-query accessors and its violation report — can accept whichever one
// a caller constructed without caring which.
type Renderer interface {
	Render(ms meta.MetaSet, abbrev bool) string
}

// RenderCache fronts Factory.Render with a bounded byte-keyed cache of
// already-rendered label strings, avoiding repeated comma-joins when the
// same handful of sets show up over and over on a hot violation-report
// path (a cache miss under sustained denial storms is otherwise a
// comma-join per violation line).
type RenderCache struct {
	factory *Factory
	full    *fastcache.Cache
	abbrev  *fastcache.Cache
}

// NewRenderCache wraps factory with an in-memory cache of maxBytes total
// capacity, split evenly between full and abbreviated renderings.
func NewRenderCache(factory *Factory, maxBytes int) *RenderCache {
	half := maxBytes / 2
	if half < 1 {
		half = 1
	}
	return &RenderCache{
		factory: factory,
		full:    fastcache.New(half),
		abbrev:  fastcache.New(half),
	}
}

func renderKey(ms meta.MetaSet) []byte {
	labels := ms.Labels()
	key := make([]byte, 4*len(labels))
	for i, id := range labels {
		binary.LittleEndian.PutUint32(key[i*4:], uint32(id))
	}
	return key
}

// Render returns factory.Render(ms, abbrev), serving from cache when the
// same bitmap was rendered before.
func (c *RenderCache) Render(ms meta.MetaSet, abbrev bool) string {
	store := c.full
	if abbrev {
		store = c.abbrev
	}
	key := renderKey(ms)
	if v, ok := store.HasGet(nil, key); ok {
		return string(v)
	}
	rendered := c.factory.Render(ms, abbrev)
	store.Set(key, []byte(rendered))
	return rendered
}

// Reset discards all cached renderings, e.g. after label names change.
func (c *RenderCache) Reset() {
	c.full.Reset()
	c.abbrev.Reset()
}
