package session

import (
	"zssp/protocol/fragment"
	"zssp/protocol/ratchet"
	"zssp/protocol/replay"
	"zssp/protocol/transcript"
	"zssp/protocol/wire"
)

// INITIAL_H / INITIAL_H_REKEY are the Noise protocol-name hashes for the
// XK-hybrid and KK patterns respectively. Using distinct constants keeps
// a rekey transcript from ever being confusable with an initial
// handshake transcript.
var initialHXK = [transcript.HashLen]byte{'Z', 'S', 'S', 'P', '-', 'X', 'K'}
var initialHKK = [transcript.HashLen]byte{'Z', 'S', 'S', 'P', '-', 'K', 'K'}

var labelHeaderKey = [4]byte{'h', 'd', 'r', 'k'}
var labelKexKey = [4]byte{'k', 'e', 'x', 'k'}
var labelRatchetState = [4]byte{'r', 'a', 't', 'c'}

// Phase is the state tag of the beta half of the Zeta automaton:
// {Null, A1, A3, S1, S2, R1, R2}.
type Phase int

const (
	PhaseNull Phase = iota
	PhaseA1
	PhaseA3
	PhaseS1
	PhaseS2
	PhaseR1
	PhaseR2
)

// Keys is one direction's AEAD key-encapsulation-key and transport
// (no-ratchet) key, plus the local key id that names this key set on the
// wire.
type Keys struct {
	Kid     uint32
	HasKid  bool
	Kek     [32]byte
	HasKek  bool
	Nk      [32]byte
	HasNk   bool
}

// DualKeys is one generation's send/recv key pair.
type DualKeys struct {
	Send Keys
	Recv Keys
}

// betaA1 holds the in-flight initiator handshake state between sending X1
// and receiving X2.
type betaA1 struct {
	noise    *transcript.State
	eSecret  KeyPair
	e1Secret []byte // Kyber-1024 private key
	identity []byte
	x1       Packet
}

// betaA3 holds the sent X3 for possible retransmission.
type betaA3 struct {
	x3 Packet
}

// betaR1 holds the in-flight rekey-initiator state between sending K1 and
// receiving K2.
type betaR1 struct {
	noise   *transcript.State
	eSecret KeyPair
	k1      Packet
}

// betaR2 holds the sent K2 for possible retransmission.
type betaR2 struct {
	k2 Packet
}

// Session is the Zeta state machine for one peer relationship. The
// application holds a *Session handle, and the Context that dispatches
// packets to it keeps ordinary pointers to it in its session map and
// timer queue.
type Session struct {
	crypto Crypto

	// ApplicationData is an arbitrary application-defined datum
	// associated with this session, round-tripped through the ratchet
	// Storage interface.
	ApplicationData any
	// WasResponder is true if the local peer acted as Bob (responder) in
	// the initial key exchange.
	WasResponder bool

	sRemote           PublicKey
	sRemoteBytes      [P384PublicKeySize]byte
	sendCounter       uint64
	keyCreationCount  uint64

	keyIndex bool
	keys     [2]DualKeys

	ratchetStates [2]ratchet.State

	hkSend, hkRecv [32]byte

	resendTimer  int64
	timeoutTimer int64

	phase Phase
	a1    *betaA1
	a3    *betaA3
	r1    *betaR1
	r2    *betaR2

	window replay.Window
	defrag fragment.SessionCache
}

// HeaderKeys returns the send/recv header-obfuscation keys derived at
// handshake completion. The Context applies PRP obfuscation at the wire
// layer; this package only derives the keys.
func (s *Session) HeaderKeys() (send, recv [32]byte) { return s.hkSend, s.hkRecv }

// Defrag returns the session's fragment reassembly cache, internally
// slotted by counter mod fragment.Slots (section 4.3).
func (s *Session) Defrag() *fragment.SessionCache {
	return &s.defrag
}

// RecvKid returns the current and (if set) next generation's local
// receive key id, for the Context's session-map installation.
func (s *Session) RecvKid() (current uint32, next uint32, hasNext bool) {
	current = s.keyRef(false).Recv.Kid
	n := s.keyRef(true)
	return current, n.Recv.Kid, n.Recv.HasKid
}

// Packet is an outgoing wire message: the peer-assigned key id to
// address it with, the AEAD nonce it was sealed under, and its bytes.
type Packet struct {
	Kid   uint32
	Nonce [wire.AeadNonceSize]byte
	Data  []byte
}

// keyRef selects the current (isNext=false) or next (isNext=true)
// generation's DualKeys, mirroring the XOR-indexed double buffer the
// specification uses so a rekey's new keys can be prepared without
// disturbing the keys still in use.
func (s *Session) keyRef(isNext bool) *DualKeys {
	idx := 0
	if s.keyIndex != isNext {
		idx = 1
	}
	return &s.keys[idx]
}

// Phase reports the session's current automaton state.
func (s *Session) Phase() Phase { return s.phase }

// RemoteStatic returns the peer's static public key.
func (s *Session) RemoteStatic() PublicKey { return s.sRemote }

// Expire forces the session into the terminal Null phase. Idempotent.
func (s *Session) Expire() { s.phase = PhaseNull }

// Expired reports whether the session has been expired.
func (s *Session) Expired() bool { return s.phase == PhaseNull }

// Established reports whether the session has transport keys usable for
// Send/Recv (S1, S2, R1, or R2).
func (s *Session) Established() bool {
	switch s.phase {
	case PhaseS1, PhaseS2, PhaseR1, PhaseR2:
		return true
	default:
		return false
	}
}

// ResendDeadline and TimeoutDeadline expose the session's timer state in
// application epoch-millisecond units, for the Context's priority queue.
func (s *Session) ResendDeadline() int64  { return s.resendTimer }
func (s *Session) TimeoutDeadline() int64 { return s.timeoutTimer }

// PendingRetransmit returns the last handshake or rekey packet sent for
// whichever beta state is currently outstanding, for the Context's
// resend timer. Returns false once the session has reached a phase with
// nothing left to retransmit (S2, or Null).
func (s *Session) PendingRetransmit() (Packet, bool) {
	if s.phase == PhaseNull {
		return Packet{}, false
	}
	switch {
	case s.a1 != nil:
		return s.a1.x1, true
	case s.a3 != nil:
		return s.a3.x3, true
	case s.r1 != nil:
		return s.r1.k1, true
	case s.r2 != nil:
		return s.r2.k2, true
	default:
		return Packet{}, false
	}
}
