package ratchet

import "testing"

func mkKey(b byte) [Size]byte {
	var k [Size]byte
	for i := range k {
		k[i] = b
	}
	return k
}

func TestStateVariantPredicates(t *testing.T) {
	if !Null().IsNull() {
		t.Fatal("Null().IsNull() should be true")
	}
	if !Empty().IsEmpty() {
		t.Fatal("Empty().IsEmpty() should be true")
	}
	ne := New(mkKey(1), mkKey(2), 1)
	if !ne.IsNonEmpty() {
		t.Fatal("New(...).IsNonEmpty() should be true")
	}
	if ne.IsNull() || ne.IsEmpty() {
		t.Fatal("a NonEmpty state must not also report Null or Empty")
	}
}

func TestFingerprintOnlyOnNonEmpty(t *testing.T) {
	if _, ok := Null().Fingerprint(); ok {
		t.Fatal("Null state must not report a fingerprint")
	}
	if _, ok := Empty().Fingerprint(); ok {
		t.Fatal("Empty state must not report a fingerprint")
	}
	fp := mkKey(7)
	ne := New(mkKey(1), fp, 3)
	got, ok := ne.Fingerprint()
	if !ok || got != fp {
		t.Fatalf("Fingerprint() = %v, %v; want %v, true", got, ok, fp)
	}
}

func TestFingerprintEquals(t *testing.T) {
	fp := mkKey(9)
	ne := New(mkKey(1), fp, 1)
	if !ne.FingerprintEquals(fp) {
		t.Fatal("FingerprintEquals should match its own fingerprint")
	}
	if ne.FingerprintEquals(mkKey(10)) {
		t.Fatal("FingerprintEquals should not match a different fingerprint")
	}
	if Empty().FingerprintEquals(fp) {
		t.Fatal("Empty state has no fingerprint to match")
	}
}

func TestEqual(t *testing.T) {
	a := New(mkKey(1), mkKey(2), 5)
	b := New(mkKey(1), mkKey(2), 5)
	c := New(mkKey(1), mkKey(2), 6)
	d := New(mkKey(3), mkKey(2), 5)

	if !a.Equal(b) {
		t.Fatal("identical NonEmpty states should compare equal")
	}
	if a.Equal(c) {
		t.Fatal("differing chain length should compare unequal")
	}
	if a.Equal(d) {
		t.Fatal("differing key should compare unequal")
	}
	if !Null().Equal(Null()) {
		t.Fatal("two Null states should compare equal")
	}
	if Null().Equal(Empty()) {
		t.Fatal("Null and Empty must not compare equal")
	}
}

func TestSuccessorIncrementsChainLen(t *testing.T) {
	base := Empty()
	next := base.Successor(mkKey(1), mkKey(2))
	if next.ChainLen() != 1 {
		t.Fatalf("ChainLen() = %d, want 1", next.ChainLen())
	}
	next2 := next.Successor(mkKey(3), mkKey(4))
	if next2.ChainLen() != 2 {
		t.Fatalf("ChainLen() = %d, want 2", next2.ChainLen())
	}
}

func TestInitialPair(t *testing.T) {
	p := InitialPair()
	if !p.Current.IsEmpty() {
		t.Fatal("InitialPair's Current should be Empty")
	}
	if !p.Previous.IsNull() {
		t.Fatal("InitialPair's Previous should be Null")
	}
}
