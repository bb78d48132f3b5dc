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

// Package rulecache implements the rule cache contract used to memoize
// policy evaluations: an ideal unbounded reference implementation, a finite
// FIFO-eviction implementation, and an approximate d-left multi-hash
// (DMHC) implementation, all behind one Cache interface.
package rulecache

import "github.com/probechain/rv-pipe/meta"

// Operands is the policy-evaluation input a rule cache keys on: pc and ci
// are always present; op1..op3 and mem are present only when the
// instruction's decoded flags say so. A zero meta.Tag is a valid
// canonicalized value, so presence is tracked with explicit bits rather
// than a sentinel tag value.
type Operands struct {
	PC, CI         meta.Tag
	Op1, Op2, Op3  meta.Tag
	Mem            meta.Tag
	HasOp1, HasOp2 bool
	HasOp3, HasMem bool
}

// Equal reports whether o and other are the same cache key: pc/ci compare
// directly (always present), and each optional field compares equal only
// when both sides agree on presence and, if present, on tag identity.
func (o Operands) Equal(other Operands) bool {
	if o.PC != other.PC || o.CI != other.CI {
		return false
	}
	if o.HasOp1 != other.HasOp1 || (o.HasOp1 && o.Op1 != other.Op1) {
		return false
	}
	if o.HasOp2 != other.HasOp2 || (o.HasOp2 && o.Op2 != other.Op2) {
		return false
	}
	if o.HasOp3 != other.HasOp3 || (o.HasOp3 && o.Op3 != other.Op3) {
		return false
	}
	if o.HasMem != other.HasMem || (o.HasMem && o.Mem != other.Mem) {
		return false
	}
	return true
}

// key is the Go-native hashable form of Operands, used as a map key by the
// ideal and finite caches. Since meta.Tag is a plain struct, Operands
// itself is already comparable and hashable as a Go map key — absent
// fields still compare correctly because their Has* bits participate in
// equality along with the zero Tag they carry.
type key = Operands

// Results carries the policy oracle's output for one Operands key, with a
// flag per slot marking which outputs the oracle actually wrote.
type Results struct {
	PC, RD, CSR             meta.Tag
	PCResult, RDResult, CSRResult bool
}
