package fragment

import (
	"testing"
	"time"

	"zssp/protocol/wire"
)

func TestSessionCacheReassemblesInOrder(t *testing.T) {
	var c SessionCache
	nonce := wire.AeadNonce(wire.PacketTypeData, 1)
	now := time.Now()

	if _, done := c.Assemble(nonce, 0, 2, []byte("hello "), now, time.Second); done {
		t.Fatal("should not be done after first fragment of two")
	}
	frags, done := c.Assemble(nonce, 1, 2, []byte("world"), now, time.Second)
	if !done {
		t.Fatal("expected completion after second fragment")
	}
	if string(frags[0]) != "hello " || string(frags[1]) != "world" {
		t.Fatalf("unexpected fragments: %q %q", frags[0], frags[1])
	}
}

func TestSessionCacheReassemblesOutOfOrder(t *testing.T) {
	var c SessionCache
	nonce := wire.AeadNonce(wire.PacketTypeData, 9)
	now := time.Now()

	if _, done := c.Assemble(nonce, 2, 3, []byte("c"), now, time.Second); done {
		t.Fatal("unexpected completion")
	}
	if _, done := c.Assemble(nonce, 0, 3, []byte("a"), now, time.Second); done {
		t.Fatal("unexpected completion")
	}
	frags, done := c.Assemble(nonce, 1, 3, []byte("b"), now, time.Second)
	if !done {
		t.Fatal("expected completion")
	}
	if string(frags[0])+string(frags[1])+string(frags[2]) != "abc" {
		t.Fatalf("reassembled out of order: %v", frags)
	}
}

func TestSessionCacheSlotCollisionDiscardsOlderPartial(t *testing.T) {
	var c SessionCache
	counterA := wire.AeadNonce(wire.PacketTypeData, 1)
	counterB := wire.AeadNonce(wire.PacketTypeData, 1+Slots) // same slot (counter % Slots)
	now := time.Now()

	if _, done := c.Assemble(counterA, 0, 2, []byte("x"), now, time.Second); done {
		t.Fatal("unexpected completion")
	}
	// A different nonce lands on the same slot and evicts the partial; a
	// single-fragment packet completes immediately regardless.
	if _, done := c.Assemble(counterB, 0, 1, []byte("y"), now, time.Second); !done {
		t.Fatal("expected the single-fragment packet to complete")
	}

	// The original reassembly for counterA is gone; finishing it now starts fresh.
	frags, done := c.Assemble(counterA, 1, 2, []byte("z"), now, time.Second)
	if done {
		t.Fatalf("expected a fresh (incomplete) reassembly after eviction, got complete: %v", frags)
	}
}

func TestSessionCacheRejectsBadFragmentCounts(t *testing.T) {
	var c SessionCache
	nonce := wire.AeadNonce(wire.PacketTypeData, 1)
	now := time.Now()
	if _, done := c.Assemble(nonce, 0, 0, nil, now, time.Second); done {
		t.Fatal("fragmentCount 0 must be rejected")
	}
	if _, done := c.Assemble(nonce, 5, 3, nil, now, time.Second); done {
		t.Fatal("fragmentNo >= fragmentCount must be rejected")
	}
}

func TestUnassociatedCacheKeysBySourceAddress(t *testing.T) {
	c := NewUnassociatedCache(4)
	nonce := wire.AeadNonce(wire.PacketTypeHandshakeHello, 0)
	now := time.Now()

	if _, done := c.Assemble("1.2.3.4:1", nonce, 0, 2, []byte("A"), now, time.Second); done {
		t.Fatal("unexpected completion")
	}
	// A different source address reassembling the same nonce is independent.
	if _, done := c.Assemble("5.6.7.8:1", nonce, 0, 2, []byte("B"), now, time.Second); done {
		t.Fatal("unexpected completion")
	}
	frags, done := c.Assemble("1.2.3.4:1", nonce, 1, 2, []byte("A2"), now, time.Second)
	if !done {
		t.Fatal("expected completion for the first address")
	}
	if string(frags[0]) != "A" || string(frags[1]) != "A2" {
		t.Fatalf("unexpected fragments: %v", frags)
	}
}

func TestUnassociatedCacheEnforcesMaxSize(t *testing.T) {
	c := NewUnassociatedCache(1)
	now := time.Now()

	n1 := wire.AeadNonce(wire.PacketTypeHandshakeHello, 1)
	if _, done := c.Assemble("a", n1, 0, 2, []byte("x"), now, time.Second); done {
		t.Fatal("unexpected completion")
	}

	n2 := wire.AeadNonce(wire.PacketTypeHandshakeHello, 2)
	if _, done := c.Assemble("b", n2, 0, 2, []byte("y"), now, time.Second); done {
		t.Fatal("unexpected completion")
	}
	// The cache is already at capacity with "a"'s entry; "b" should have been rejected.
	if _, ok := c.entries["b"+string(n2[:])]; ok {
		t.Fatal("second source should have been rejected once the cache was at capacity")
	}
}

func TestUnassociatedCacheExpireStale(t *testing.T) {
	c := NewUnassociatedCache(4)
	now := time.Now()
	nonce := wire.AeadNonce(wire.PacketTypeHandshakeHello, 1)
	c.Assemble("a", nonce, 0, 2, []byte("x"), now, time.Millisecond)

	c.ExpireStale(now.Add(time.Second))

	frags, done := c.Assemble("a", nonce, 0, 2, []byte("fresh"), now.Add(time.Second), time.Second)
	if done {
		t.Fatal("unexpected completion from a freshly started reassembly")
	}
	_ = frags
	if len(c.entries) != 1 {
		t.Fatalf("expected exactly one fresh entry after expiry, got %d", len(c.entries))
	}
}
