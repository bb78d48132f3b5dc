package rulecache

import (
	"testing"

	"github.com/probechain/rv-pipe/meta"
)

func tagN(c *meta.Cache, id int) meta.Tag {
	return c.Canonize(meta.Empty.With(id))
}

func sampleOperands(c *meta.Cache, n int) Operands {
	return Operands{
		PC: tagN(c, 0),
		CI: tagN(c, 1),
		Op1: tagN(c, n),
		HasOp1: true,
	}
}

func TestIdealCacheMissThenHit(t *testing.T) {
	c := meta.NewCache()
	ic := NewIdealCache()
	ops := sampleOperands(c, 5)

	if _, ok := ic.Allow(ops); ok {
		t.Fatal("expected miss before install")
	}
	res := Results{RD: tagN(c, 9), RDResult: true}
	ic.InstallRule(ops, res)
	got, ok := ic.Allow(ops)
	if !ok || got != res {
		t.Fatalf("Allow after install = (%v, %v), want (%v, true)", got, ok, res)
	}
}

func TestIdealCacheNeverFalseMisses(t *testing.T) {
	c := meta.NewCache()
	ic := NewIdealCache()
	for i := 0; i < 50; i++ {
		ops := sampleOperands(c, i)
		res := Results{RD: tagN(c, i+100), RDResult: true}
		ic.InstallRule(ops, res)
	}
	for i := 0; i < 50; i++ {
		ops := sampleOperands(c, i)
		got, ok := ic.Allow(ops)
		if !ok {
			t.Fatalf("entry %d missed unexpectedly", i)
		}
		want := Results{RD: tagN(c, i+100), RDResult: true}
		if got != want {
			t.Errorf("entry %d = %+v, want %+v", i, got, want)
		}
	}
}

func TestFiniteCacheFIFOEviction(t *testing.T) {
	c := meta.NewCache()
	fc := NewFiniteCache(2)

	ops0 := sampleOperands(c, 0)
	ops1 := sampleOperands(c, 1)
	ops2 := sampleOperands(c, 2)

	fc.InstallRule(ops0, Results{RD: tagN(c, 10), RDResult: true})
	fc.InstallRule(ops1, Results{RD: tagN(c, 11), RDResult: true})
	if fc.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", fc.Len())
	}

	// Installing a third entry must evict ops0 (insertion order), not ops1.
	fc.InstallRule(ops2, Results{RD: tagN(c, 12), RDResult: true})
	if fc.Len() != 2 {
		t.Fatalf("Len() = %d, want 2 after wraparound", fc.Len())
	}
	if _, ok := fc.Allow(ops0); ok {
		t.Error("ops0 should have been evicted in FIFO order")
	}
	if _, ok := fc.Allow(ops1); !ok {
		t.Error("ops1 should still be present")
	}
	if _, ok := fc.Allow(ops2); !ok {
		t.Error("ops2 should be present")
	}
}

func TestFiniteCacheFlush(t *testing.T) {
	c := meta.NewCache()
	fc := NewFiniteCache(4)
	ops := sampleOperands(c, 0)
	fc.InstallRule(ops, Results{RD: tagN(c, 1), RDResult: true})
	fc.Flush()
	if _, ok := fc.Allow(ops); ok {
		t.Error("expected miss after flush")
	}
	if fc.Len() != 0 {
		t.Errorf("Len() = %d after flush, want 0", fc.Len())
	}
}

func TestNewFactorySwitchesOnName(t *testing.T) {
	cases := []struct {
		cfg     Config
		wantErr bool
	}{
		{Config{Name: "ideal"}, false},
		{Config{Name: ""}, false},
		{Config{Name: "finite", Capacity: 4}, false},
		{Config{Name: "finite", Capacity: 0}, true},
		{Config{Name: "dmhc", Capacity: 8}, false},
		{Config{Name: "bogus"}, true},
	}
	for _, tc := range cases {
		cache, err := New(tc.cfg)
		if tc.wantErr {
			if err == nil {
				t.Errorf("New(%+v) = nil error, want error", tc.cfg)
			}
			continue
		}
		if err != nil {
			t.Errorf("New(%+v) = %v, want success", tc.cfg, err)
		}
		if cache == nil {
			t.Errorf("New(%+v) returned nil cache", tc.cfg)
		}
	}
}

func TestOperandsAbsentFieldsOnlyEqualAbsent(t *testing.T) {
	c := meta.NewCache()
	zero := tagN(c, 0)
	withOp1 := Operands{PC: zero, CI: zero, Op1: zero, HasOp1: true}
	withoutOp1 := Operands{PC: zero, CI: zero}
	if withOp1.Equal(withoutOp1) {
		t.Error("operands with op1 present (even as the zero tag) must not equal operands with op1 absent")
	}
}
