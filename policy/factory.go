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

// Package policy builds metadata sets by dotted entity name or opcode
// group, the way a parsed policy_meta.yml/policy_init.yml/policy_group.yml
// triple would be consulted at validator startup. Parsing those YAML
// documents is out of scope here; Factory is built directly from the
// already-decoded config types, matching the state a C++ metadata_factory_t
// is left in immediately after its own load_yaml step.
package policy

import (
	"fmt"
	"strings"

	"github.com/probechain/rv-pipe/internal/config"
	"github.com/probechain/rv-pipe/internal/xlog"
	"github.com/probechain/rv-pipe/meta"
)

// Factory resolves dotted entity paths and opcode-group names to MetaSets,
// canonicalizing every set it produces through a shared meta.Cache.
type Factory struct {
	cache *meta.Cache

	labelIDs map[string]int
	names    map[int]string // reverse of labelIDs, for Render

	entities map[string][]string // entity path -> label names
	groups   map[string][]string // group name -> label names
	rules    map[string][]OpgroupRule

	entityCache map[string]meta.Tag // lookup_metadata memoization
}

// NewFactory builds a Factory from already-parsed configuration: the label
// name/id table, the flattened entity-path tree, and the opcode-group map.
// Opgroup rules (operand-pattern refinements) are installed afterward via
// AddRule, since policy_group.yml alone carries no operand patterns.
func NewFactory(cache *meta.Cache, labelIDs config.PolicyMeta, entities map[string][]string, groups config.PolicyGroup) (*Factory, error) {
	f := &Factory{
		cache:       cache,
		labelIDs:    make(map[string]int, len(labelIDs)),
		names:       make(map[int]string, len(labelIDs)),
		entities:    entities,
		groups:      groups,
		rules:       make(map[string][]OpgroupRule),
		entityCache: make(map[string]meta.Tag),
	}
	for name, id := range labelIDs {
		if id < 0 || id >= meta.MaxLabel {
			return nil, &config.ConfigError{Err: fmt.Errorf("policy: label %q id %d out of range [0, %d)", name, id, meta.MaxLabel)}
		}
		f.labelIDs[name] = id
		f.names[id] = name
	}
	for entity, labels := range entities {
		for _, l := range labels {
			if _, ok := f.labelIDs[l]; !ok {
				return nil, &config.ConfigError{Err: fmt.Errorf("policy: entity %q references unknown label %q", entity, l)}
			}
		}
	}
	for group, labels := range groups {
		for _, l := range labels {
			if _, ok := f.labelIDs[l]; !ok {
				return nil, &config.ConfigError{Err: fmt.Errorf("policy: group %q references unknown label %q", group, l)}
			}
		}
	}
	return f, nil
}

// AddRule appends an opgroup rule for group, tried before the group's
// unconditional metadata when LookupGroupMetadata is asked to refine by
// operand values. Rules are tried in the order added; first match wins.
func (f *Factory) AddRule(group string, rule OpgroupRule) {
	f.rules[group] = append(f.rules[group], rule)
}

func (f *Factory) buildSet(labels []string) meta.MetaSet {
	var ms meta.MetaSet
	for _, l := range labels {
		if id, ok := f.labelIDs[l]; ok {
			ms = ms.With(id)
		}
	}
	return ms
}

// LookupMetadata returns the canonicalized tag for a dotted entity path
// (e.g. "ISA.RISCV.Reg.Default"), memoizing the result. The returned bool
// is false if no such entity was ever loaded.
func (f *Factory) LookupMetadata(path string) (meta.Tag, bool) {
	if tag, ok := f.entityCache[path]; ok {
		return tag, true
	}
	labels, ok := f.entities[path]
	if !ok {
		return meta.Tag{}, false
	}
	tag := f.cache.Canonize(f.buildSet(labels))
	f.entityCache[path] = tag
	return tag, true
}

// MustLookupMetadata is LookupMetadata for entity paths a caller knows must
// exist (register/CSR/PC file initializers); it panics otherwise, since a
// missing initializer entity is a configuration defect, not a runtime one.
func (f *Factory) MustLookupMetadata(path string) meta.Tag {
	tag, ok := f.LookupMetadata(path)
	if !ok {
		panic(fmt.Sprintf("policy: required entity %q missing from policy_init", path))
	}
	return tag
}

// GroupOperands carries the operand values lookup_group_metadata refines
// opgroup rules against. A field is present only when its matching Has*
// flag is set, which is what distinguishes rs1==0 from "no rs1".
type GroupOperands struct {
	HasRs1, HasRs2, HasRs3, HasRd, HasImm bool
	Rs1, Rs2, Rs3, Rd                     uint32
	Imm                                   int64
}

// LookupGroupMetadata returns the tag for an opcode group, consulting the
// group's opgroup-rule table first (first match wins) and falling
// through to the group's unconditional metadata. The bool is false only if
// the group itself is unknown.
func (f *Factory) LookupGroupMetadata(group string, ops GroupOperands) (meta.Tag, bool) {
	for _, rule := range f.rules[group] {
		if rule.Match(ops) {
			return f.cache.Canonize(rule.Set), true
		}
	}
	labels, ok := f.groups[group]
	if !ok {
		return meta.Tag{}, false
	}
	return f.cache.Canonize(f.buildSet(labels)), true
}

// Render formats a MetaSet's labels as a comma-joined name list. When
// abbrev is true, each name is shortened to its last dotted segment.
// Unknown label ids (present in the bitmap but with no registered name)
// render as "<unknown: N>".
func (f *Factory) Render(ms meta.MetaSet, abbrev bool) string {
	labels := ms.Labels()
	names := make([]string, 0, len(labels))
	for _, id := range labels {
		name, ok := f.names[id]
		if !ok {
			xlog.Warn("rendering unregistered label id", "id", id)
			names = append(names, fmt.Sprintf("<unknown: %d>", id))
			continue
		}
		if abbrev {
			if i := strings.LastIndexByte(name, '.'); i >= 0 {
				name = name[i+1:]
			}
		}
		names = append(names, name)
	}
	return strings.Join(names, ",")
}

// RenderTag is Render applied to the set a Tag refers to in cache.
func (f *Factory) RenderTag(cache *meta.Cache, t meta.Tag, abbrev bool) string {
	return f.Render(cache.Deref(t), abbrev)
}
