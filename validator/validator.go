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

package validator

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/probechain/rv-pipe/decode"
	"github.com/probechain/rv-pipe/internal/xlog"
	"github.com/probechain/rv-pipe/meta"
	"github.com/probechain/rv-pipe/policy"
	"github.com/probechain/rv-pipe/rulecache"
	"github.com/probechain/rv-pipe/tagbus"
)

// ErrDOA is returned by Validate/Commit once the validator has latched dead
// on arrival: an unrecoverable internal error (an address outside the tag
// bus) occurred and the only recovery is re-initialization.
var ErrDOA = errors.New("validator: dead on arrival")

// RegisterReader reads a general-purpose register's architectural value
// (not its tag), used to compute load/store effective addresses.
type RegisterReader func(reg uint32) uint64

// MemoryReader reads a memory word's architectural value. It is part of the
// host callback surface spec.md §6 names but is not otherwise consulted by
// the tag-only gather/evaluate/commit loop.
type MemoryReader func(addr uint64) uint64

// AddressFixer translates a virtual effective address to the physical
// address the tag bus is actually keyed on.
type AddressFixer func(addr uint64) uint64

// Validator is a single hart's tag-based reference monitor: it owns the
// tag bus, register/CSR/PC tag files, rule cache, and policy oracle, and
// runs the Validate/Commit state machine spec.md §4.6 describes. Per
// spec.md §5, a Validator is single-threaded and single-instance per hart;
// the host must not call Validate again before either receiving its result
// or calling Commit.
type Validator struct {
	Cache   *meta.Cache
	Factory *policy.Factory
	Bus     *tagbus.Bus
	Regs    *tagbus.RegisterFile
	CSRs    *tagbus.CSRFile
	PCTag   meta.Tag
	XLen    int

	RuleCache rulecache.Cache
	Policy    Policy

	// DecodeCache fronts decode.Decode with an ARC cache of recently seen
	// instruction words (loop bodies revisit the same handful of bits
	// constantly); Render fronts Factory.Render for the debug-query
	// accessors and violation reports. Both are always populated by New.
	DecodeCache *decode.Cache
	Render      *policy.RenderCache

	regReader RegisterReader
	memReader MemoryReader
	addrFixer AddressFixer

	watchPC    bool
	watchRegs  map[uint32]bool
	watchCSRs  map[uint32]bool
	watchAddrs map[uint64]bool

	// per-instruction scratch, reused across calls to avoid an allocation
	// on every step.
	ctx  Context
	ops  Operands
	res  Results
	inst decode.DecodedInstruction

	committed     rulecache.Results
	pendingRD     uint32
	hasPendingRD  bool
	pendingCSR    uint32
	hasPendingCSR bool
	hasPendingMem bool
	memAddr       uint64
	ruleCacheHit  bool
	lastAllowed   bool

	ruleCacheHits   uint64
	ruleCacheMisses uint64

	doa       bool
	violation *Violation
}

// defaultDecodeCacheSize is the ARC entry count New wires DecodeCache with.
const defaultDecodeCacheSize = 4096

// defaultRenderCacheBytes is the total fastcache capacity New wires Render
// with, split evenly between full and abbreviated renderings.
const defaultRenderCacheBytes = 1 << 20

// New returns a Validator with its register/CSR/PC tag files initialized
// from the factory per spec.md §3: every general register and CSR default
// to their respective ISA.RISCV.*.Default entity, x0 locks to
// ISA.RISCV.Reg.RZero, and the PC starts at ISA.RISCV.Reg.Env.
func New(cache *meta.Cache, factory *policy.Factory, bus *tagbus.Bus, xlen int, rc rulecache.Cache, pol Policy) *Validator {
	regDefault := factory.MustLookupMetadata("ISA.RISCV.Reg.Default")
	regZero := factory.MustLookupMetadata("ISA.RISCV.Reg.RZero")
	csrDefault := factory.MustLookupMetadata("ISA.RISCV.CSR.Default")
	envTag := factory.MustLookupMetadata("ISA.RISCV.Reg.Env")

	decodeCache, err := decode.NewCache(defaultDecodeCacheSize)
	if err != nil {
		// defaultDecodeCacheSize is a fixed positive constant; NewCache
		// only errors on a non-positive size.
		panic(fmt.Sprintf("validator: building decode cache: %v", err))
	}

	return &Validator{
		Cache:       cache,
		Factory:     factory,
		Bus:         bus,
		Regs:        tagbus.NewRegisterFile(regDefault, regZero),
		CSRs:        tagbus.NewCSRFile(csrDefault),
		PCTag:       envTag,
		XLen:        xlen,
		RuleCache:   rc,
		Policy:      pol,
		DecodeCache: decodeCache,
		Render:      policy.NewRenderCache(factory, defaultRenderCacheBytes),
		watchRegs:   make(map[uint32]bool),
		watchCSRs:   make(map[uint32]bool),
		watchAddrs:  make(map[uint64]bool),
	}
}

// SetCallbacks installs the host's register/memory readers and address
// fixer, per spec.md §6's set_callbacks.
func (v *Validator) SetCallbacks(rr RegisterReader, mr MemoryReader, af AddressFixer) {
	v.regReader = rr
	v.memReader = mr
	v.addrFixer = af
}

// SetPCWatch arms or disarms the PC watchpoint.
func (v *Validator) SetPCWatch(on bool) { v.watchPC = on }

// SetRegWatch arms a watchpoint on general register reg.
func (v *Validator) SetRegWatch(reg uint32) { v.watchRegs[reg] = true }

// SetCSRWatch arms a watchpoint on CSR csr.
func (v *Validator) SetCSRWatch(csr uint32) { v.watchCSRs[csr] = true }

// SetMemWatch arms a watchpoint on memory address addr.
func (v *Validator) SetMemWatch(addr uint64) { v.watchAddrs[addr] = true }

// LoadTagRange bolts label onto every MinTagGranularity-aligned word of
// [start, end), post-hoc, per spec.md §6's load_tag_range.
func (v *Validator) LoadTagRange(start, end uint64, labelID int) error {
	tag := v.Cache.Canonize(meta.Empty.With(labelID))
	return v.Bus.LoadTagRange(start, end, tag, tagbus.MinTagGranularity)
}

// FlushRuleCache drops every memoized rule.
func (v *Validator) FlushRuleCache() {
	if v.RuleCache != nil {
		v.RuleCache.Flush()
	}
}

// RuleCacheStats returns the cumulative hit/miss counts since construction.
// Nothing resets the counters, FlushRuleCache included, so they are
// lifetime totals.
func (v *Validator) RuleCacheStats() (hits, misses uint64) {
	return v.ruleCacheHits, v.ruleCacheMisses
}

// Violation returns the sticky first-captured policy failure, or nil if
// none has occurred yet.
func (v *Validator) Violation() *Violation { return v.violation }

// resetScratch clears the per-instruction working state the way
// rv32_validator_t::setup_validation/prepare_eval does: Results fields are
// only cleared if they were left set from the previous instruction.
func (v *Validator) resetScratch() {
	v.ctx = Context{Cached: true}
	v.ops = Operands{}
	if v.res.PCResult {
		v.res.PC = meta.MetaSet{}
		v.res.PCResult = false
	}
	if v.res.RDResult {
		v.res.RD = meta.MetaSet{}
		v.res.RDResult = false
	}
	if v.res.CSRResult {
		v.res.CSR = meta.MetaSet{}
		v.res.CSRResult = false
	}
	v.committed = rulecache.Results{}
	v.hasPendingRD = false
	v.hasPendingCSR = false
	v.hasPendingMem = false
	v.ruleCacheHit = false
	v.lastAllowed = false
}

// Validate runs the gather/evaluate step for one instruction at pc,
// returning true if the step is authorized. It does not perform the
// commit; the host calls Commit separately after applying its own
// architectural update.
func (v *Validator) Validate(pc uint64, insn uint32) (bool, error) {
	return v.validate(pc, insn, 0, false)
}

// ValidateCached is Validate for a host that has already computed the
// instruction's effective memory address, skipping the register-read
// recomputation of it. hit reports whether the rule cache served the
// result.
func (v *Validator) ValidateCached(pc uint64, insn uint32, memAddr uint64) (allowed, hit bool, err error) {
	allowed, err = v.validate(pc, insn, memAddr, true)
	return allowed, v.ruleCacheHit, err
}

func (v *Validator) validate(pc uint64, insn uint32, memAddr uint64, haveMemAddr bool) (bool, error) {
	if v.doa {
		return false, ErrDOA
	}

	v.resetScratch()
	v.ctx.EPC = pc

	v.inst = v.DecodeCache.Decode(insn, v.XLen)
	if v.inst.Op == decode.OpInvalid {
		xlog.Warn("decode failure", "pc", pc, "insn", insn)
		return false, nil
	}

	if err := v.gather(pc, insn, memAddr, haveMemAddr); err != nil {
		v.doa = true
		xlog.Error("validator dead on arrival", "pc", pc, "err", err)
		return false, err
	}

	if v.RuleCache != nil {
		if res, hit := v.RuleCache.Allow(v.ops); hit {
			v.committed = res
			v.ruleCacheHit = true
			v.ruleCacheHits++
			v.lastAllowed = true
			return true, nil
		}
		v.ruleCacheMisses++
	}

	outcome := v.Policy.Eval(&v.ctx, &v.ops, &v.res)
	v.ctx.PolicyResult = outcome
	if outcome != PolicySuccess {
		v.captureViolation()
		return false, nil
	}

	if v.res.PCResult {
		v.committed.PC = v.Cache.Canonize(v.res.PC)
		v.committed.PCResult = true
	}
	if v.res.RDResult {
		v.committed.RD = v.Cache.Canonize(v.res.RD)
		v.committed.RDResult = true
	}
	if v.res.CSRResult {
		v.committed.CSR = v.Cache.Canonize(v.res.CSR)
		v.committed.CSRResult = true
	}
	v.lastAllowed = true
	return true, nil
}

// captureViolation records ctx/ops into the sticky first-violation slot,
// leaving any prior capture untouched.
func (v *Validator) captureViolation() {
	if v.violation != nil {
		return
	}
	v.violation = &Violation{ID: uuid.New(), Context: v.ctx, Operands: v.ops}
	xlog.Error("policy violation", "id", v.violation.ID, "pc", v.ctx.EPC, "result", v.ctx.PolicyResult.Classify())
}

// gather fills in v.ops and the pending-write bookkeeping for the decoded
// instruction at pc, per spec.md §4.6 step 3/4.
func (v *Validator) gather(pc uint64, insn uint32, memAddr uint64, haveMemAddr bool) error {
	inst := v.inst
	flags := inst.Flags

	v.ops.PC = v.PCTag

	ciPaddr := v.fixAddr(pc)
	ci, err := v.Bus.InsnTagAt(ciPaddr)
	if err != nil {
		return fmt.Errorf("gather: instruction tag at pc %#x: %w", pc, err)
	}
	v.ops.CI = ci

	if flags&decode.HasRS1 != 0 {
		v.ops.Op1 = v.Regs.Tag(inst.Rs1)
		v.ops.HasOp1 = true
	}
	if flags&(decode.HasCSRLoad|decode.HasCSRStore) != 0 {
		v.ops.Op2 = v.CSRs.Tag(uint32(inst.Imm))
		v.ops.HasOp2 = true
	}
	if flags&decode.HasRS2 != 0 {
		v.ops.Op2 = v.Regs.Tag(inst.Rs2)
		v.ops.HasOp2 = true
	}
	if flags&decode.HasRS3 != 0 {
		v.ops.Op3 = v.Regs.Tag(inst.Rs3)
		v.ops.HasOp3 = true
	}

	v.hasPendingRD = flags&decode.HasRD != 0
	v.pendingRD = inst.Rd
	v.hasPendingCSR = flags&decode.HasCSRStore != 0
	v.pendingCSR = uint32(inst.Imm)
	v.hasPendingMem = flags&decode.HasStore != 0

	if flags&(decode.HasLoad|decode.HasStore) != 0 {
		ea := memAddr
		if !haveMemAddr {
			ea = v.readReg(inst.Rs1)
			if flags&decode.HasImm != 0 {
				ea += uint64(inst.Imm)
			}
			ea &^= 0x3
		}
		v.memAddr = ea
		v.ctx.BadAddr = ea
		v.ctx.HasBadAddr = true

		paddr := v.fixAddr(ea)
		mem, err := v.Bus.DataTagAt(paddr)
		if err != nil {
			return fmt.Errorf("gather: data tag at addr %#x: %w", ea, err)
		}
		v.ops.Mem = mem
		v.ops.HasMem = true
	}
	return nil
}

func (v *Validator) readReg(reg uint32) uint64 {
	if v.regReader == nil {
		return 0
	}
	return v.regReader(reg)
}

func (v *Validator) fixAddr(addr uint64) uint64 {
	if v.addrFixer == nil {
		return addr
	}
	return v.addrFixer(addr)
}

// Commit applies the just-evaluated Results to the architectural tag
// state, per spec.md §4.6's commit step, and reports whether any armed
// watchpoint tripped. It is idempotent: calling it twice without an
// intervening Validate leaves state unchanged, since the second call
// re-assigns the same canonized tags and finds the rule already installed.
//
// A denied or decode-failed Validate leaves nothing to commit: v.committed
// is the zero Results in that case, and installing it into the rule cache
// would memoize the denied operands as an empty, all-allowed hit, letting a
// later identical step bypass policy evaluation entirely. Commit is
// therefore a no-op — including skipping the rule-cache install — unless
// the most recent Validate actually returned allowed.
func (v *Validator) Commit() (bool, error) {
	if v.doa {
		return false, ErrDOA
	}
	if !v.lastAllowed {
		return false, nil
	}

	hitWatch := false

	if v.committed.PCResult {
		newTag := v.committed.PC
		if v.watchPC && v.PCTag != newTag {
			hitWatch = true
		}
		v.PCTag = newTag
	}

	if v.committed.RDResult && v.hasPendingRD {
		newTag := v.committed.RD
		if v.watchRegs[v.pendingRD] && v.Regs.Tag(v.pendingRD) != newTag {
			hitWatch = true
		}
		if v.pendingRD != 0 {
			v.Regs.SetTag(v.pendingRD, newTag)
		}
	}

	if v.committed.RDResult && v.hasPendingMem {
		newTag := v.committed.RD
		paddr := v.fixAddr(v.memAddr)
		oldTag, err := v.Bus.DataTagAt(paddr)
		if err != nil {
			xlog.Error("commit: failed to load memory tag", "addr", v.memAddr, "err", err)
		} else if v.watchAddrs[v.memAddr] && oldTag != newTag {
			hitWatch = true
		}
		if err := v.Bus.SetDataTagAt(paddr, newTag); err != nil {
			xlog.Error("commit: failed to store memory tag", "addr", v.memAddr, "err", err)
		}
	}

	if v.committed.CSRResult && v.hasPendingCSR {
		newTag := v.committed.CSR
		if v.watchCSRs[v.pendingCSR] && v.CSRs.Tag(v.pendingCSR) != newTag {
			hitWatch = true
		}
		v.CSRs.SetTag(v.pendingCSR, newTag)
	}

	if v.RuleCache != nil && v.ctx.Cached && !v.ruleCacheHit {
		if _, hit := v.RuleCache.Allow(v.ops); !hit {
			v.RuleCache.InstallRule(v.ops, v.committed)
		}
	}

	return hitWatch, nil
}

// PCString renders the current PC tag for debugging, per spec.md §6's
// "query accessors for the current PC/register/CSR/memory tag as a
// rendered string".
func (v *Validator) PCString(abbrev bool) string {
	return v.Render.Render(v.Cache.Deref(v.PCTag), abbrev)
}

// RegString renders register reg's current tag.
func (v *Validator) RegString(reg uint32, abbrev bool) string {
	return v.Render.Render(v.Cache.Deref(v.Regs.Tag(reg)), abbrev)
}

// CSRString renders CSR csr's current tag.
func (v *Validator) CSRString(csr uint32, abbrev bool) string {
	return v.Render.Render(v.Cache.Deref(v.CSRs.Tag(csr)), abbrev)
}

// MemString renders the tag currently covering addr.
func (v *Validator) MemString(addr uint64, abbrev bool) (string, error) {
	tag, err := v.Bus.DataTagAt(addr)
	if err != nil {
		return "", err
	}
	return v.Render.Render(v.Cache.Deref(tag), abbrev), nil
}
