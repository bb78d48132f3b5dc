package meta

import "testing"

func buildSet(ids ...int) MetaSet {
	var m MetaSet
	for _, id := range ids {
		m = m.With(id)
	}
	return m
}

func TestCanonicalizationLaw(t *testing.T) {
	c := NewCache()
	a := buildSet(3, 7, 42)
	b := buildSet(42, 3, 7)

	ta := c.Canonize(a)
	tb := c.Canonize(b)
	if ta != tb {
		t.Fatalf("canonize(a) = %v, canonize(b) = %v, want equal", ta, tb)
	}

	got := c.Deref(ta)
	if !got.Equal(buildSet(3, 7, 42)) {
		t.Errorf("deref(canonize(a)) = %v, want {3,7,42}", got)
	}
}

func TestCanonizeDistinctSetsGetDistinctTags(t *testing.T) {
	c := NewCache()
	t1 := c.Canonize(buildSet(1))
	t2 := c.Canonize(buildSet(2))
	if t1 == t2 {
		t.Fatalf("distinct sets canonized to the same tag %v", t1)
	}
}

func TestZeroTagIsEmptySet(t *testing.T) {
	c := NewCache()
	if !c.Deref(Zero).IsEmpty() {
		t.Errorf("deref(Zero) = %v, want empty", c.Deref(Zero))
	}
	if c.Canonize(Empty) != Zero {
		t.Errorf("canonize(Empty) != Zero")
	}
}

func TestDerefForgedTagPanics(t *testing.T) {
	c := NewCache()
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on forged tag")
		}
	}()
	c.Deref(Tag{idx: 999})
}

func TestCacheIsAppendOnly(t *testing.T) {
	c := NewCache()
	c.Canonize(buildSet(5))
	before := c.Len()
	c.Canonize(buildSet(5))
	if c.Len() != before {
		t.Errorf("re-canonizing an existing set grew the cache: %d -> %d", before, c.Len())
	}
}

func TestMetaSetUnionIntersect(t *testing.T) {
	a := buildSet(1, 2, 3)
	b := buildSet(2, 3, 4)

	u := a.Union(b)
	for _, id := range []int{1, 2, 3, 4} {
		if !u.Has(id) {
			t.Errorf("union missing label %d", id)
		}
	}

	i := a.Intersect(b)
	if !i.Equal(buildSet(2, 3)) {
		t.Errorf("intersect = %v, want {2,3}", i)
	}
}

func TestMetaSetWithWithout(t *testing.T) {
	m := buildSet(10)
	m = m.With(20)
	if !m.Has(10) || !m.Has(20) {
		t.Fatalf("expected both labels present: %v", m)
	}
	m = m.Without(10)
	if m.Has(10) {
		t.Error("label 10 still present after Without")
	}
	if !m.Has(20) {
		t.Error("label 20 dropped unexpectedly")
	}
}
