package zssp

import (
	"io"

	"zssp/crypto/aead"
	"zssp/crypto/hash"
	"zssp/crypto/kyber"
	"zssp/crypto/p384"
	"zssp/crypto/prp"
)

// p384PublicKey adapts crypto/p384.PublicKey to the capability PublicKey
// interface.
type p384PublicKey struct{ inner p384.PublicKey }

func (k p384PublicKey) Bytes() [P384PublicKeySize]byte { return k.inner.Bytes() }

// p384KeyPair adapts crypto/p384.KeyPair to the capability KeyPair
// interface. Agree type-asserts its remote argument back to the concrete
// p384 type, since crypto/p384 cannot itself depend on this package's
// interfaces without an import cycle.
type p384KeyPair struct{ inner p384.KeyPair }

func (k p384KeyPair) PublicKey() PublicKey { return p384PublicKey{k.inner.PublicKey()} }

func (k p384KeyPair) Agree(remote PublicKey, secret *[P384SharedSecretSize]byte) bool {
	rk, ok := remote.(p384PublicKey)
	if !ok {
		return false
	}
	return k.inner.Agree(rk.inner, secret)
}

// NewP384KeyPair adapts a concrete crypto/p384.KeyPair — typically one
// loaded from a persisted private scalar, as cmd/server and cmd/client
// do across restarts — into the capability KeyPair interface.
func NewP384KeyPair(kp p384.KeyPair) KeyPair { return p384KeyPair{kp} }

// DefaultSuite returns the capability Suite backed by ZSSP's chosen
// algorithms: P-384 ECDH, Kyber-1024 KEM, AES-256-GCM, raw AES-256 for
// header obfuscation, and SHA-512/HMAC.
func DefaultSuite() Suite {
	return Suite{
		Hash: hash.Hash{},
		AEAD: aead.Cipher{},
		PRP:  prp.Cipher{},
		Kem:  kyber.Scheme,
		GenerateKeyPair: func(rng io.Reader) (KeyPair, error) {
			kp, err := p384.Generate(rng)
			if err != nil {
				return nil, err
			}
			return p384KeyPair{kp}, nil
		},
		ParsePublicKey: func(b [P384PublicKeySize]byte) (PublicKey, bool) {
			pk, ok := p384.Parse(b)
			if !ok {
				return nil, false
			}
			return p384PublicKey{pk}, true
		},
	}
}
