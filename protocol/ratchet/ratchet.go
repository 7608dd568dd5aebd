// Package ratchet defines the persisted ratchet state the handshake and
// rekey transitions thread through every session, plus the storage
// interface the application implements to persist it.
package ratchet

import "crypto/subtle"

// Size of a ratchet key or fingerprint, in bytes.
const Size = 32

// kind tags which of the three RatchetState variants a value holds.
type kind uint8

const (
	kindNull kind = iota
	kindEmpty
	kindNonEmpty
)

// State is a tagged union over {Null, Empty, NonEmpty}, corresponding to
// the RatchetState described in section 3.
//
//   - Null means "no ratchet at all" — used as a sentinel in the second
//     slot of a Pair when there is no preceding ratchet.
//   - Empty means "the baseline, all-zero ratchet" — the key both sides
//     agree to start from when neither has a prior ratchet with the other.
//   - NonEmpty carries an actual derived key, fingerprint, and chain
//     length.
type State struct {
	tag         kind
	key         [Size]byte
	fingerprint [Size]byte
	chainLen    uint64
}

// Null is the absent ratchet state.
func Null() State { return State{tag: kindNull} }

// Empty is the all-zero baseline ratchet state with no fingerprint.
func Empty() State { return State{tag: kindEmpty} }

// New constructs a NonEmpty ratchet state.
func New(key, fingerprint [Size]byte, chainLen uint64) State {
	return State{tag: kindNonEmpty, key: key, fingerprint: fingerprint, chainLen: chainLen}
}

func (s State) IsNull() bool     { return s.tag == kindNull }
func (s State) IsEmpty() bool    { return s.tag == kindEmpty }
func (s State) IsNonEmpty() bool { return s.tag == kindNonEmpty }

// ChainLen returns the ratchet's chain length. Zero for Null and Empty.
func (s State) ChainLen() uint64 { return s.chainLen }

// Key returns the 32-byte ratchet key used as the Noise PSK. Null has no
// key; callers must not invoke Key on a Null state.
func (s State) Key() [Size]byte { return s.key }

// Fingerprint returns the public fingerprint and true, or false if this
// state has none (Null or Empty).
func (s State) Fingerprint() ([Size]byte, bool) {
	if s.tag != kindNonEmpty {
		return [Size]byte{}, false
	}
	return s.fingerprint, true
}

// FingerprintEquals reports whether this state's fingerprint matches fp,
// in constant time. False for Null/Empty.
func (s State) FingerprintEquals(fp [Size]byte) bool {
	if s.tag != kindNonEmpty {
		return false
	}
	return subtle.ConstantTimeCompare(s.fingerprint[:], fp[:]) == 1
}

// Equal compares two states in constant time over their key and
// fingerprint bytes, as required by section 3's invariant that ratchet
// key/fingerprint equality be constant-time. The tag and chain length
// comparisons are not secret and need not be constant-time.
func (s State) Equal(o State) bool {
	if s.tag != o.tag {
		return false
	}
	if s.tag != kindNonEmpty {
		return true
	}
	keyEq := subtle.ConstantTimeCompare(s.key[:], o.key[:])
	fpEq := subtle.ConstantTimeCompare(s.fingerprint[:], o.fingerprint[:])
	lenEq := 0
	if s.chainLen == o.chainLen {
		lenEq = 1
	}
	return keyEq&fpEq&lenEq == 1
}

// Successor derives the next ratchet in the chain from a freshly derived
// (key, fingerprint) pair, incrementing chain length by one.
func (s State) Successor(key, fingerprint [Size]byte) State {
	return New(key, fingerprint, s.chainLen+1)
}

// Pair is the two-ratchet-slot state a session keeps: Current is the
// most-recently-derived ratchet persisted for this peer; Previous is the
// immediately preceding ratchet, kept only until the peer confirms it has
// adopted Current (see section 3's invariant on ratchet_state2).
type Pair struct {
	Current  State
	Previous State
}

// InitialPair is the pair a brand new identity (no prior ratchet history)
// starts from: an Empty baseline and no previous ratchet.
func InitialPair() Pair { return Pair{Current: Empty(), Previous: Null()} }

// Update describes a change to persist: the new current/previous pair,
// plus the fingerprint(s) added and removed so storage backends that
// index by fingerprint can maintain that index incrementally.
type Update struct {
	Next Pair

	AddedFingerprint    [Size]byte
	HasAddedFingerprint bool

	DeletedFingerprint1    [Size]byte
	HasDeletedFingerprint1 bool
	DeletedFingerprint2    [Size]byte
	HasDeletedFingerprint2 bool
}

// Storage is the externally-supplied, durable ratchet store. The core
// never touches a filesystem or database directly (section 6); it is the
// application's responsibility to guarantee that Save returns only after
// the update is durable: the successor ratchet must be persisted before
// any packet computed under its derived keys is emitted (section 8,
// "Ratchet durability before transition").
type Storage interface {
	// RestoreByFingerprint looks up a previously persisted ratchet by its
	// public fingerprint, for matching the hint(s) carried in an incoming
	// X1. Returns State{} (IsNull) if unknown.
	RestoreByFingerprint(fingerprint [Size]byte) (State, error)
	// RestoreByIdentity looks up the ratchet pair persisted for a given
	// remote static key and application-defined session data.
	RestoreByIdentity(remoteStatic [P384PublicKeySizeHint]byte, sessionData any) (Pair, error)
	// Save persists an Update atomically. It must not return until the
	// update is durable.
	Save(remoteStatic [P384PublicKeySizeHint]byte, sessionData any, update Update) error
}

// P384PublicKeySizeHint avoids an import cycle with the capability
// package; it mirrors P384PublicKeySize in the root zssp package.
const P384PublicKeySizeHint = 97
