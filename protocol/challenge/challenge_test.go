package challenge

import (
	"testing"
	"time"

	"zssp/crypto/hash"
)

func TestIssueThenVerify(t *testing.T) {
	c, err := New(hash.Hash{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	now := time.Now()
	addr := []byte("198.51.100.1:4444")
	cookie := c.Issue(addr, now)
	if !c.Verify(addr, cookie, now) {
		t.Fatal("a freshly issued cookie should verify")
	}
}

func TestVerifyRejectsWrongAddress(t *testing.T) {
	c, _ := New(hash.Hash{})
	now := time.Now()
	cookie := c.Issue([]byte("1.2.3.4:1"), now)
	if c.Verify([]byte("5.6.7.8:1"), cookie, now) {
		t.Fatal("cookie issued for one address must not verify for another")
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	c, _ := New(hash.Hash{})
	now := time.Now()
	addr := []byte("1.2.3.4:1")
	var garbage [CookieSize]byte
	if c.Verify(addr, garbage, now) {
		t.Fatal("an arbitrary cookie must not verify")
	}
}

func TestVerifyAcceptsPreviousSeedAcrossRotation(t *testing.T) {
	c, _ := New(hash.Hash{})
	now := time.Now()
	addr := []byte("1.2.3.4:1")
	cookie := c.Issue(addr, now)

	// Cross one rotation boundary; the cookie issued under the prior seed
	// must still verify for one more rotation period.
	afterRotation := now.Add(SeedRotation + time.Second)
	if !c.Verify(addr, cookie, afterRotation) {
		t.Fatal("a cookie issued just before rotation should still verify for one rotation period")
	}
}

func TestVerifyRejectsAfterTwoRotations(t *testing.T) {
	c, _ := New(hash.Hash{})
	now := time.Now()
	addr := []byte("1.2.3.4:1")
	cookie := c.Issue(addr, now)

	afterFirstRotation := now.Add(SeedRotation + time.Second)
	c.Verify(addr, cookie, afterFirstRotation) // forces the seed rotation to happen

	afterSecondRotation := afterFirstRotation.Add(SeedRotation + time.Second)
	if c.Verify(addr, cookie, afterSecondRotation) {
		t.Fatal("a cookie should not verify two full rotations after it was issued")
	}
}
