package tagbus

import (
	"errors"
	"testing"

	"github.com/probechain/rv-pipe/meta"
)

func tagN(cache *meta.Cache, id int) meta.Tag {
	return cache.Canonize(meta.Empty.With(id))
}

func TestBusTotality(t *testing.T) {
	cache := meta.NewCache()
	b := NewBus()
	codeTag := tagN(cache, 1)
	dataTag := tagN(cache, 2)

	if err := b.AddProvider(0x8000_0000, 0x8010_0000, NewUniformProvider(0x10_0000, codeTag)); err != nil {
		t.Fatalf("AddProvider code: %v", err)
	}
	if err := b.AddProvider(0x9000_0000, 0x9000_1000, NewBackedProvider(0x1000, 4, dataTag)); err != nil {
		t.Fatalf("AddProvider data: %v", err)
	}

	inside := []uint64{0x8000_0000, 0x8000_0204, 0x800f_ffff, 0x9000_0000, 0x9000_0ffc}
	for _, addr := range inside {
		if _, err := b.DataTagAt(addr); err != nil {
			t.Errorf("DataTagAt(%#x) = %v, want resolved", addr, err)
		}
	}

	outside := []uint64{0x7fff_ffff, 0x8010_0000, 0x8fff_ffff, 0x9000_1000}
	for _, addr := range outside {
		if _, err := b.DataTagAt(addr); !errors.Is(err, ErrOutOfRange) {
			t.Errorf("DataTagAt(%#x) = %v, want ErrOutOfRange", addr, err)
		}
	}
}

func TestUniformProviderWritesGlobally(t *testing.T) {
	cache := meta.NewCache()
	a, b2 := tagN(cache, 1), tagN(cache, 2)
	b := NewBus()
	if err := b.AddProvider(0x1000, 0x2000, NewUniformProvider(0x1000, a)); err != nil {
		t.Fatal(err)
	}
	if err := b.SetDataTagAt(0x1500, b2); err != nil {
		t.Fatal(err)
	}
	got, err := b.DataTagAt(0x1000)
	if err != nil {
		t.Fatal(err)
	}
	if got != b2 {
		t.Errorf("DataTagAt(start) = %v after uniform write, want %v", got, b2)
	}
}

func TestBackedProviderPerWord(t *testing.T) {
	cache := meta.NewCache()
	def := tagN(cache, 1)
	written := tagN(cache, 2)
	b := NewBus()
	if err := b.AddProvider(0x2000, 0x3000, NewBackedProvider(0x1000, 4, def)); err != nil {
		t.Fatal(err)
	}
	if err := b.SetDataTagAt(0x2004, written); err != nil {
		t.Fatal(err)
	}
	if got, _ := b.DataTagAt(0x2000); got != def {
		t.Errorf("word 0 = %v, want untouched default", got)
	}
	if got, _ := b.DataTagAt(0x2004); got != written {
		t.Errorf("word 1 = %v, want %v", got, written)
	}
}

// TestBackedProviderInsnTagUsesDataGranularity pins the documented
// limitation on InsnTag: a region coarser than MinTagGranularity cannot
// deliver word-resolution instruction tags, so two instruction words that
// share one coarse-grained data slot also share one instruction tag.
func TestBackedProviderInsnTagUsesDataGranularity(t *testing.T) {
	cache := meta.NewCache()
	def := tagN(cache, 1)
	written := tagN(cache, 2)
	b := NewBus()
	const coarseGranularity = 16 // four MinTagGranularity words per slot
	if err := b.AddProvider(0x4000, 0x5000, NewBackedProvider(0x1000, coarseGranularity, def)); err != nil {
		t.Fatal(err)
	}

	if err := b.SetDataTagAt(0x4000, written); err != nil {
		t.Fatal(err)
	}

	// 0x4000 and 0x4004 fall in the same 16-byte slot, so a data write at
	// 0x4000 is visible to an InsnTagAt lookup at 0x4004 even though
	// MinTagGranularity would otherwise keep them independent.
	got, err := b.InsnTagAt(0x4004)
	if err != nil {
		t.Fatal(err)
	}
	if got != written {
		t.Errorf("InsnTagAt(0x4004) = %v, want %v (coarse-granularity slot shared with 0x4000)", got, written)
	}
}

func TestAddProviderRejectsOverlap(t *testing.T) {
	cache := meta.NewCache()
	b := NewBus()
	tag := tagN(cache, 1)
	if err := b.AddProvider(0x1000, 0x2000, NewUniformProvider(0x1000, tag)); err != nil {
		t.Fatal(err)
	}
	if err := b.AddProvider(0x1800, 0x2800, NewUniformProvider(0x1000, tag)); err == nil {
		t.Fatal("expected overlap rejection")
	}
}

func TestRegisterFileX0Immutable(t *testing.T) {
	cache := meta.NewCache()
	def, zero := tagN(cache, 1), tagN(cache, 0)
	rf := NewRegisterFile(def, zero)
	if rf.Tag(0) != zero {
		t.Fatalf("x0 init tag = %v, want %v", rf.Tag(0), zero)
	}
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic mutating x0")
		}
	}()
	rf.SetTag(0, def)
}

func TestRegisterFileOtherRegsMutable(t *testing.T) {
	cache := meta.NewCache()
	def, other := tagN(cache, 1), tagN(cache, 2)
	rf := NewRegisterFile(def, def)
	rf.SetTag(5, other)
	if rf.Tag(5) != other {
		t.Errorf("x5 = %v, want %v", rf.Tag(5), other)
	}
}

func TestCSRFileDefaultAndOverride(t *testing.T) {
	cache := meta.NewCache()
	def, mepc := tagN(cache, 1), tagN(cache, 2)
	cf := NewCSRFile(def)
	const mepcNum = 0x341
	cf.SetTag(mepcNum, mepc)
	if cf.Tag(mepcNum) != mepc {
		t.Errorf("MEPC tag = %v, want %v", cf.Tag(mepcNum), mepc)
	}
	if cf.Tag(0) != def {
		t.Errorf("CSR 0 = %v, want default", cf.Tag(0))
	}
}
