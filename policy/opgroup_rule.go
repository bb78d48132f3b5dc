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

import "github.com/probechain/rv-pipe/meta"

// FieldMatcher tests a single operand field (rd, rs1, rs2, rs3, or imm)
// against a rule's criteria. An operand field the instruction does not
// carry is a don't-care: every matcher accepts it.
type FieldMatcher struct {
	kind fieldMatchKind
	lo   int64
	hi   int64
	vals map[int64]struct{}
}

type fieldMatchKind int

const (
	matchAny fieldMatchKind = iota
	matchEqual
	matchNotEqual
	matchRange
	matchNotRange
)

// Any matches any value, including an absent field.
func Any() FieldMatcher { return FieldMatcher{kind: matchAny} }

// Equal matches a present field that equals one of values.
func Equal(values ...int64) FieldMatcher {
	return FieldMatcher{kind: matchEqual, vals: toSet(values)}
}

// NotEqual matches a present field that equals none of values.
func NotEqual(values ...int64) FieldMatcher {
	return FieldMatcher{kind: matchNotEqual, vals: toSet(values)}
}

// Range matches a present field with lo <= value <= hi.
func Range(lo, hi int64) FieldMatcher {
	return FieldMatcher{kind: matchRange, lo: lo, hi: hi}
}

// NotRange matches a present field with value < lo or value > hi.
func NotRange(lo, hi int64) FieldMatcher {
	return FieldMatcher{kind: matchNotRange, lo: lo, hi: hi}
}

func toSet(values []int64) map[int64]struct{} {
	s := make(map[int64]struct{}, len(values))
	for _, v := range values {
		s[v] = struct{}{}
	}
	return s
}

func (f FieldMatcher) match(present bool, value int64) bool {
	if !present {
		return true
	}
	switch f.kind {
	case matchAny:
		return true
	case matchEqual:
		_, ok := f.vals[value]
		return ok
	case matchNotEqual:
		_, ok := f.vals[value]
		return !ok
	case matchRange:
		return value >= f.lo && value <= f.hi
	case matchNotRange:
		return value < f.lo || value > f.hi
	default:
		return false
	}
}

// OpgroupRule is an ordered set of per-field matchers, carrying the
// MetaSet to select when every present operand field matches. Rules are
// tried in table order; the first rule whose fields all match wins.
type OpgroupRule struct {
	Rd, Rs1, Rs2, Rs3, Imm FieldMatcher
	Set                    meta.MetaSet
}

// NewOpgroupRule returns a rule with every field defaulted to Any, so
// callers only need to set the fields they care about.
func NewOpgroupRule(set meta.MetaSet) OpgroupRule {
	return OpgroupRule{Rd: Any(), Rs1: Any(), Rs2: Any(), Rs3: Any(), Imm: Any(), Set: set}
}

// Match reports whether every field matcher in r is satisfied by ops.
func (r OpgroupRule) Match(ops GroupOperands) bool {
	return r.Rd.match(ops.HasRd, int64(ops.Rd)) &&
		r.Rs1.match(ops.HasRs1, int64(ops.Rs1)) &&
		r.Rs2.match(ops.HasRs2, int64(ops.Rs2)) &&
		r.Rs3.match(ops.HasRs3, int64(ops.Rs3)) &&
		r.Imm.match(ops.HasImm, ops.Imm)
}
