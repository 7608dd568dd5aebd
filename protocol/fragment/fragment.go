// Package fragment implements the two reassembly caches described in
// section 4.3: a small per-session slotted cache indexed by counter
// modulo slot count, and a global unassociated cache keyed by source
// address for fragments that arrive before any session exists for them
// (X1 and its CHALLENGE response).
package fragment

import (
	"sync"
	"time"

	"zssp/protocol/wire"
)

// Slots is the number of reassembly slots a Session keeps. A fragmented
// packet's counter selects its slot by counter % Slots; a later packet
// that lands on an occupied slot evicts whatever partial reassembly was
// there (slot collision discards the older partial reassembly).
const Slots = 8

// partial is one in-progress reassembly.
type partial struct {
	nonce     [wire.AeadNonceSize]byte
	fragments [][]byte
	count     int
	have      int
	deadline  time.Time
}

func (p *partial) reset(nonce [wire.AeadNonceSize]byte, count int, deadline time.Time) {
	p.nonce = nonce
	if cap(p.fragments) < count {
		p.fragments = make([][]byte, count)
	} else {
		p.fragments = p.fragments[:count]
		for i := range p.fragments {
			p.fragments[i] = nil
		}
	}
	p.count = count
	p.have = 0
	p.deadline = deadline
}

// SessionCache is the small per-session slotted reassembly table.
type SessionCache struct {
	mu    sync.Mutex
	slots [Slots]partial
}

// Assemble records one fragment of a fragmented packet. When the fragment
// completes the packet, it returns the fragment bodies (sans each
// fragment's own header), one slice per fragment for the caller to
// join, and true. now is used to stamp the reassembly
// timeout for the occupied slot.
func (c *SessionCache) Assemble(nonce [wire.AeadNonceSize]byte, fragmentNo, fragmentCount int, body []byte, now time.Time, timeout time.Duration) ([][]byte, bool) {
	if fragmentCount < 1 || fragmentCount > wire.MaxFragments || fragmentNo >= fragmentCount {
		return nil, false
	}
	_, counter := wire.FromNonce(nonce)
	idx := int(counter) % Slots

	c.mu.Lock()
	defer c.mu.Unlock()
	slot := &c.slots[idx]

	if slot.count == 0 || slot.nonce != nonce {
		slot.reset(nonce, fragmentCount, now.Add(timeout))
	}
	if slot.fragments[fragmentNo] == nil {
		slot.fragments[fragmentNo] = append([]byte(nil), body...)
		slot.have++
	}
	if slot.have < slot.count {
		return nil, false
	}
	out := slot.fragments
	slot.count = 0
	slot.fragments = nil
	return out, true
}

// unassociatedEntry is one in-progress reassembly keyed by source address.
type unassociatedEntry struct {
	addr      string
	nonce     [wire.AeadNonceSize]byte
	fragments [][]byte
	count     int
	have      int
	deadline  time.Time
}

// UnassociatedCache reassembles fragments of packets that don't yet
// belong to any session (X1, and the CHALLENGE sent in response to one),
// bounded in total size across every source address and expired on a
// timeout rather than a slot-collision rule, since an attacker can supply
// arbitrarily many distinct source addresses.
type UnassociatedCache struct {
	mu      sync.Mutex
	maxSize int
	entries map[string]*unassociatedEntry
}

// NewUnassociatedCache constructs a cache bounded to maxSize in-progress
// reassemblies.
func NewUnassociatedCache(maxSize int) *UnassociatedCache {
	return &UnassociatedCache{maxSize: maxSize, entries: make(map[string]*unassociatedEntry)}
}

// Assemble behaves like SessionCache.Assemble but keys on (addr, nonce)
// and is subject to the cache's overall size bound: a fresh reassembly
// that would exceed maxSize is rejected outright rather than evicting an
// existing one, since eviction choice among strangers is itself a DoS
// lever.
func (c *UnassociatedCache) Assemble(addr string, nonce [wire.AeadNonceSize]byte, fragmentNo, fragmentCount int, body []byte, now time.Time, timeout time.Duration) ([][]byte, bool) {
	if fragmentCount < 1 || fragmentCount > wire.MaxFragments || fragmentNo >= fragmentCount {
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	key := addr + string(nonce[:])
	e, ok := c.entries[key]
	if !ok {
		if len(c.entries) >= c.maxSize {
			return nil, false
		}
		e = &unassociatedEntry{addr: addr, nonce: nonce, fragments: make([][]byte, fragmentCount), deadline: now.Add(timeout)}
		c.entries[key] = e
	}
	if e.fragments[fragmentNo] == nil {
		e.fragments[fragmentNo] = append([]byte(nil), body...)
		e.have++
	}
	if e.have < fragmentCount {
		return nil, false
	}
	delete(c.entries, key)
	return e.fragments, true
}

// ExpireStale drops every reassembly older than its recorded deadline.
// Called by the Context's service loop.
func (c *UnassociatedCache) ExpireStale(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, e := range c.entries {
		if now.After(e.deadline) {
			delete(c.entries, key)
		}
	}
}
