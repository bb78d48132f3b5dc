package validator

import (
	"testing"

	"github.com/probechain/rv-pipe/internal/config"
	"github.com/probechain/rv-pipe/meta"
	"github.com/probechain/rv-pipe/policy"
	"github.com/probechain/rv-pipe/rulecache"
	"github.com/probechain/rv-pipe/tagbus"
)

// storePolicy rejects any store whose target memory tag lacks mem_write,
// and otherwise authorizes unconditionally without touching any Results
// field (no test instruction here ever writes a register or CSR).
type storePolicy struct {
	cache    *meta.Cache
	memWrite int
}

func (p *storePolicy) Eval(ctx *Context, ops *Operands, res *Results) Outcome {
	// A store carries its data register as op2; a load has no op2.
	if ops.HasMem && ops.HasOp2 {
		if !p.cache.Deref(ops.Mem).Has(p.memWrite) {
			ctx.FailMsg = "store target not writable"
			return PolicyImpFailure
		}
	}
	return PolicySuccess
}

func newTestValidator(t *testing.T) (*Validator, *meta.Cache) {
	t.Helper()
	cache := meta.NewCache()
	labelIDs := config.PolicyMeta{
		"reg_default": 0,
		"reg_zero":    1,
		"code_exec":   2,
		"mem_write":   3,
		"env":         4,
		"csr_default": 5,
	}
	entities := map[string][]string{
		"ISA.RISCV.Reg.Default": {"reg_default"},
		"ISA.RISCV.Reg.RZero":   {"reg_zero"},
		"ISA.RISCV.Reg.Env":     {"env"},
		"ISA.RISCV.CSR.Default": {"csr_default"},
	}
	factory, err := policy.NewFactory(cache, labelIDs, entities, config.PolicyGroup{})
	if err != nil {
		t.Fatalf("NewFactory: %v", err)
	}

	bus := tagbus.NewBus()
	codeTag := cache.Canonize(meta.Empty.With(2))
	const codeStart, codeEnd = 0x80000000, 0x80100000
	if err := bus.AddProvider(codeStart, codeEnd, tagbus.NewUniformProvider(codeEnd-codeStart, codeTag)); err != nil {
		t.Fatalf("AddProvider: %v", err)
	}

	rc := rulecache.NewIdealCache()
	pol := &storePolicy{cache: cache, memWrite: 3}

	v := New(cache, factory, bus, 32, rc, pol)
	v.SetCallbacks(func(reg uint32) uint64 {
		if reg == 2 {
			return 0x80000200
		}
		return 0
	}, nil, nil)
	return v, cache
}

func TestDeniedStoreToCode(t *testing.T) {
	v, _ := newTestValidator(t)

	// sw x5, 0(x2): store word, rs1=2 rs2=5 imm=0.
	const insn = 0x00512023
	const pc = 0x80000204

	allowed, err := v.Validate(pc, insn)
	if err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if allowed {
		t.Fatal("expected store to code region to be denied")
	}

	viol := v.Violation()
	if viol == nil {
		t.Fatal("expected a captured violation")
	}
	if viol.Context.EPC != pc {
		t.Errorf("violation epc = %#x, want %#x", viol.Context.EPC, uint64(pc))
	}
	if !viol.Context.HasBadAddr || viol.Context.BadAddr != 0x80000200 {
		t.Errorf("violation bad_addr = (%#x, has=%v), want (0x80000200, true)", viol.Context.BadAddr, viol.Context.HasBadAddr)
	}
	if viol.Context.PolicyResult != PolicyImpFailure {
		t.Errorf("violation result = %v, want PolicyImpFailure", viol.Context.PolicyResult)
	}
}

func TestDeniedStepDoesNotPoisonRuleCache(t *testing.T) {
	v, _ := newTestValidator(t)

	// Same denied store as TestDeniedStoreToCode. Commit must not install
	// the zero Results that follow a denial into the rule cache: a later
	// Validate of the identical operands would otherwise hit the cache and
	// return allowed without ever consulting the policy again.
	const insn = 0x00512023
	const pc = 0x80000204

	allowed, err := v.Validate(pc, insn)
	if err != nil {
		t.Fatalf("first Validate returned error: %v", err)
	}
	if allowed {
		t.Fatal("expected store to code region to be denied")
	}
	if _, err := v.Commit(); err != nil {
		t.Fatalf("Commit after denial: %v", err)
	}

	allowed, err = v.Validate(pc, insn)
	if err != nil {
		t.Fatalf("second Validate returned error: %v", err)
	}
	if allowed {
		t.Fatal("denied step was memoized as an allow in the rule cache")
	}
}

func TestAllowedLoadFromCode(t *testing.T) {
	v, _ := newTestValidator(t)

	// lw x5, 0(x2): load word, no mem_write required.
	const insn = 0x00012283
	const pc = 0x80000100

	allowed, err := v.Validate(pc, insn)
	if err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if !allowed {
		t.Fatal("expected load from code region to be allowed")
	}
	if v.Violation() != nil {
		t.Fatal("expected no violation captured")
	}
}

func TestViolationIsSticky(t *testing.T) {
	v, _ := newTestValidator(t)
	const insn = 0x00512023

	v.Validate(0x80000204, insn)
	first := v.Violation()
	if first == nil {
		t.Fatal("expected first violation captured")
	}

	v.Validate(0x80000208, insn)
	second := v.Violation()
	if second != first {
		t.Errorf("second violation capture overwrote the first: %v != %v", second.ID, first.ID)
	}
}

func TestCommitIsIdempotent(t *testing.T) {
	v, cache := newTestValidator(t)

	// addi x5, x0, 1: writes a new tag to x5 via the policy's RD result, so
	// Commit has something observable to apply exactly once.
	v.Policy = ridTaggingPolicy{cache: cache}

	const insn = 0x00100293 // addi x5, x0, 1
	allowed, err := v.Validate(0x80000000, insn)
	if err != nil || !allowed {
		t.Fatalf("Validate = (%v, %v), want (true, nil)", allowed, err)
	}

	if _, err := v.Commit(); err != nil {
		t.Fatalf("first Commit: %v", err)
	}
	tagAfterFirst := v.Regs.Tag(5)

	if _, err := v.Commit(); err != nil {
		t.Fatalf("second Commit: %v", err)
	}
	if got := v.Regs.Tag(5); got != tagAfterFirst {
		t.Errorf("second Commit changed x5's tag: %v != %v", got, tagAfterFirst)
	}
}

// ridTaggingPolicy tags any destination register with a fixed metadata set,
// giving TestCommitIsIdempotent an observable Commit side effect.
type ridTaggingPolicy struct{ cache *meta.Cache }

func (p ridTaggingPolicy) Eval(ctx *Context, ops *Operands, res *Results) Outcome {
	res.RD = meta.Empty.With(2)
	res.RDResult = true
	return PolicySuccess
}
