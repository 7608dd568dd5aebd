// Package p384 implements the capability layer's KeyPair/PublicKey pair
// over NIST P-384 using the standard library's crypto/ecdh, the same
// curve ZSSP uses for every static and ephemeral key.
package p384

import (
	"crypto/ecdh"
	"crypto/rand"
	"io"
)

const PublicKeySize = 97
const SharedSecretSize = 48

// PublicKey wraps an ecdh.PublicKey for NIST P-384.
type PublicKey struct {
	key *ecdh.PublicKey
}

func (p PublicKey) Bytes() [PublicKeySize]byte {
	var out [PublicKeySize]byte
	copy(out[:], p.key.Bytes())
	return out
}

// Parse decodes an uncompressed P-384 point. ok is false if the bytes do
// not lie on the curve.
func Parse(b [PublicKeySize]byte) (PublicKey, bool) {
	key, err := ecdh.P384().NewPublicKey(b[:])
	if err != nil {
		return PublicKey{}, false
	}
	return PublicKey{key: key}, true
}

// KeyPair wraps an ecdh.PrivateKey.
type KeyPair struct {
	priv *ecdh.PrivateKey
}

// Generate produces a fresh P-384 key pair, reading randomness from rng
// (normally crypto/rand.Reader).
func Generate(rng io.Reader) (KeyPair, error) {
	if rng == nil {
		rng = rand.Reader
	}
	priv, err := ecdh.P384().GenerateKey(rng)
	if err != nil {
		return KeyPair{}, err
	}
	return KeyPair{priv: priv}, nil
}

func (k KeyPair) PublicKey() PublicKey {
	return PublicKey{key: k.priv.PublicKey()}
}

// Agree performs ECDH and writes the resulting shared secret into out.
// Returns false if remote is not a valid point for this curve (the
// stdlib already rejects the identity element and off-curve points at
// parse time, so this only fails on a degenerate low-order input).
func (k KeyPair) Agree(remote PublicKey, out *[SharedSecretSize]byte) bool {
	secret, err := k.priv.ECDH(remote.key)
	if err != nil {
		return false
	}
	copy(out[:], secret)
	return true
}

// Bytes returns the raw private scalar, for persisting a static identity
// key across process restarts (cmd/genkeys, cmd/server, cmd/client).
func (k KeyPair) Bytes() []byte { return k.priv.Bytes() }

// ParsePrivateKey reconstructs a KeyPair from a raw private scalar
// previously produced by Bytes.
func ParsePrivateKey(b []byte) (KeyPair, error) {
	priv, err := ecdh.P384().NewPrivateKey(b)
	if err != nil {
		return KeyPair{}, err
	}
	return KeyPair{priv: priv}, nil
}
