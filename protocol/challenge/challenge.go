// Package challenge implements the DoS challenge context described in
// section 4.6: a cookie computed from a truncated SHA-512 of a per-context
// secret, the remote address, and a periodically rotating seed, used to
// make the responder stateless until an initiator proves it can complete
// a round trip.
package challenge

import (
	"crypto/rand"
	"sync"
	"time"
)

// CookieSize is the truncated cookie length carried in a CHALLENGE packet
// and in X1's challenge-response slot.
const CookieSize = 16

// SeedRotation is how often the seed is replaced. A cookie computed under
// the previous seed is still accepted for one rotation period, so a
// response that crosses a rotation boundary in flight isn't spuriously
// rejected.
const SeedRotation = time.Minute

// Hash is the subset of the capability layer's hash interface this
// package needs.
type Hash interface {
	Sum512(data []byte) [64]byte
}

// Context holds the secret and rotating seed used to compute and verify
// challenge cookies. The zero value is not usable; construct with New.
type Context struct {
	hash Hash

	mu         sync.Mutex
	secret     [32]byte
	seed       [16]byte
	prevSeed   [16]byte
	nextRotate time.Time
}

// New seeds a fresh challenge context with random secret and seed
// material.
func New(hash Hash) (*Context, error) {
	c := &Context{hash: hash, nextRotate: time.Now().Add(SeedRotation)}
	if _, err := rand.Read(c.secret[:]); err != nil {
		return nil, err
	}
	if _, err := rand.Read(c.seed[:]); err != nil {
		return nil, err
	}
	c.prevSeed = c.seed
	return c, nil
}

func (c *Context) currentSeed(now time.Time) (seed, prev [16]byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if now.After(c.nextRotate) {
		c.prevSeed = c.seed
		var fresh [16]byte
		_, _ = rand.Read(fresh[:])
		c.seed = fresh
		c.nextRotate = now.Add(SeedRotation)
	}
	return c.seed, c.prevSeed
}

func (c *Context) cookie(remoteAddr []byte, seed [16]byte) [CookieSize]byte {
	buf := make([]byte, 0, len(c.secret)+len(remoteAddr)+len(seed))
	buf = append(buf, c.secret[:]...)
	buf = append(buf, remoteAddr...)
	buf = append(buf, seed[:]...)
	full := c.hash.Sum512(buf)
	var cookie [CookieSize]byte
	copy(cookie[:], full[:CookieSize])
	return cookie
}

// Issue computes the cookie to send in a CHALLENGE packet addressed to
// remoteAddr.
func (c *Context) Issue(remoteAddr []byte, now time.Time) [CookieSize]byte {
	seed, _ := c.currentSeed(now)
	return c.cookie(remoteAddr, seed)
}

// Verify reports whether response is a valid cookie for remoteAddr,
// checked against both the current and the immediately preceding seed.
func (c *Context) Verify(remoteAddr []byte, response [CookieSize]byte, now time.Time) bool {
	seed, prev := c.currentSeed(now)
	if c.cookie(remoteAddr, seed) == response {
		return true
	}
	return c.cookie(remoteAddr, prev) == response
}
