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

import "github.com/probechain/rv-pipe/meta"

// NumRegs is the number of general-purpose integer registers.
const NumRegs = 32

// NumCSRs is the size of the densely-addressed CSR tag array. RISC-V CSR
// numbers are 12 bits, so this covers the full space even though any real
// policy only populates a small, sparse subset of it.
const NumCSRs = 4096

// RegisterFile holds one tag per general-purpose register. Index 0 (x0) is
// fixed at construction and can never be mutated afterward, matching the
// architectural guarantee that x0 always reads as zero.
type RegisterFile struct {
	tags [NumRegs]meta.Tag
}

// NewRegisterFile returns a register tag file with every register set to
// def, except x0 which is set to zero and locked.
func NewRegisterFile(def, zero meta.Tag) *RegisterFile {
	rf := &RegisterFile{}
	for i := range rf.tags {
		rf.tags[i] = def
	}
	rf.tags[0] = zero
	return rf
}

// Tag returns the tag of register r.
func (rf *RegisterFile) Tag(r uint32) meta.Tag {
	return rf.tags[r]
}

// SetTag installs t as the tag of register r. Mutating x0 panics: it is an
// architectural invariant that register 0's tag never changes after init.
func (rf *RegisterFile) SetTag(r uint32, t meta.Tag) {
	if r == 0 {
		panic("tagbus: attempt to mutate register x0's tag")
	}
	rf.tags[r] = t
}

// CSRFile holds one tag per CSR number, densely addressed even though the
// architectural CSR space is sparse.
type CSRFile struct {
	tags [NumCSRs]meta.Tag
}

// NewCSRFile returns a CSR tag file with every entry set to def. Callers
// should override specific architectural CSRs (MEPC, MTVAL, MTVEC, ...)
// afterward via SetTag where a distinct initial tag is required.
func NewCSRFile(def meta.Tag) *CSRFile {
	cf := &CSRFile{}
	for i := range cf.tags {
		cf.tags[i] = def
	}
	return cf
}

// Tag returns the tag of CSR number csr.
func (cf *CSRFile) Tag(csr uint32) meta.Tag {
	return cf.tags[csr%NumCSRs]
}

// SetTag installs t as the tag of CSR number csr.
func (cf *CSRFile) SetTag(csr uint32, t meta.Tag) {
	cf.tags[csr%NumCSRs] = t
}
