package policy

import (
	"testing"

	"github.com/probechain/rv-pipe/internal/config"
	"github.com/probechain/rv-pipe/meta"
)

func newTestFactory(t *testing.T) *Factory {
	t.Helper()
	labelIDs := config.PolicyMeta{
		"reg_default": 0,
		"reg_zero":    1,
		"code_exec":   2,
		"mem_write":   3,
	}
	entities := map[string][]string{
		"ISA.RISCV.Reg.Default":                   {"reg_default"},
		"ISA.RISCV.Reg.RZero":                     {"reg_zero"},
		"ISA.RISCV.Code.ElfSection.SHF_EXECINSTR": {"code_exec"},
	}
	groups := config.PolicyGroup{
		"STORE": {"mem_write"},
	}
	f, err := NewFactory(meta.NewCache(), labelIDs, entities, groups)
	if err != nil {
		t.Fatalf("NewFactory: %v", err)
	}
	return f
}

func TestLookupMetadata(t *testing.T) {
	f := newTestFactory(t)
	tag, ok := f.LookupMetadata("ISA.RISCV.Reg.Default")
	if !ok {
		t.Fatal("expected ISA.RISCV.Reg.Default to resolve")
	}
	tag2, ok := f.LookupMetadata("ISA.RISCV.Reg.Default")
	if !ok || tag2 != tag {
		t.Errorf("second lookup = (%v, %v), want memoized (%v, true)", tag2, ok, tag)
	}
}

func TestLookupMetadataUnknown(t *testing.T) {
	f := newTestFactory(t)
	if _, ok := f.LookupMetadata("ISA.RISCV.Nonexistent"); ok {
		t.Fatal("expected unknown entity to miss")
	}
}

func TestLookupGroupMetadataFallthrough(t *testing.T) {
	f := newTestFactory(t)
	tag, ok := f.LookupGroupMetadata("STORE", GroupOperands{})
	if !ok {
		t.Fatal("expected STORE group to resolve")
	}
	c := meta.NewCache()
	if c.Canonize(f.cache.Deref(tag)) != c.Canonize(meta.Empty.With(3)) {
		t.Errorf("STORE group set does not contain mem_write")
	}
}

func TestLookupGroupMetadataRuleFirstMatchWins(t *testing.T) {
	f := newTestFactory(t)
	specific := meta.Empty.With(2)
	rule := NewOpgroupRule(specific)
	rule.Rs1 = Equal(5)
	f.AddRule("STORE", rule)

	tag, ok := f.LookupGroupMetadata("STORE", GroupOperands{HasRs1: true, Rs1: 5})
	if !ok {
		t.Fatal("expected match")
	}
	if !f.cache.Deref(tag).Equal(specific) {
		t.Errorf("rule did not win over fallthrough group set")
	}

	tag2, ok := f.LookupGroupMetadata("STORE", GroupOperands{HasRs1: true, Rs1: 6})
	if !ok {
		t.Fatal("expected fallthrough match for non-matching rs1")
	}
	if f.cache.Deref(tag2).Equal(specific) {
		t.Errorf("rule matched when rs1 differed")
	}
}

func TestRenderUnknownLabel(t *testing.T) {
	f := newTestFactory(t)
	ms := meta.Empty.With(63)
	if got := f.Render(ms, false); got != "<unknown: 63>" {
		t.Errorf("Render = %q, want <unknown: 63>", got)
	}
}

func TestRenderAbbrev(t *testing.T) {
	f := newTestFactory(t)
	ms := meta.Empty.With(2)
	if got := f.Render(ms, false); got != "code_exec" {
		t.Errorf("Render(full) = %q", got)
	}
	dotted, err := NewFactory(meta.NewCache(), config.PolicyMeta{"ISA.RISCV.Code.Exec": 2}, nil, nil)
	if err != nil {
		t.Fatalf("NewFactory: %v", err)
	}
	if got := dotted.Render(ms, true); got != "Exec" {
		t.Errorf("Render(abbrev) = %q, want Exec", got)
	}
}

func TestRenderCacheServesRepeatCalls(t *testing.T) {
	f := newTestFactory(t)
	rc := NewRenderCache(f, 1<<20)
	ms := meta.Empty.With(2).With(3)
	first := rc.Render(ms, false)
	second := rc.Render(ms, false)
	if first != second {
		t.Errorf("render cache returned different strings for same set: %q vs %q", first, second)
	}
	want := f.Render(ms, false)
	if first != want {
		t.Errorf("cached render = %q, want %q", first, want)
	}
}
