// Package session implements the Zeta state machine: the per-session
// automaton that drives the Noise-XK handshake (X1/X2/X3), key
// confirmation (C1/C2), and the Noise-KK rekey (K1/K2) described in
// section 6. It owns no network I/O; every transition takes the bytes of
// one packet and returns the bytes of the next, leaving transport and
// multiplexing to the Context.
package session

import "io"

// The interfaces below mirror the root package's capability layer. They
// are redeclared narrowly here, rather than imported, to avoid a cycle
// (the root package depends on this one for the Session type). Any value
// satisfying the root zssp.Suite's corresponding field also satisfies
// these.

type Hash interface {
	Sum512(data []byte) [64]byte
	HMAC512(key, data []byte) [64]byte
}

type AEAD interface {
	Seal(key *[32]byte, nonce [12]byte, aad, plaintext []byte) (tag [16]byte)
	Open(key *[32]byte, nonce [12]byte, aad, ciphertext []byte, tag [16]byte) bool
}

type PRP interface {
	EncryptBlock(key *[32]byte, block *[16]byte)
	DecryptBlock(key *[32]byte, block *[16]byte)
}

const P384PublicKeySize = 97
const P384SharedSecretSize = 48

type PublicKey interface {
	Bytes() [P384PublicKeySize]byte
}

type KeyPair interface {
	PublicKey() PublicKey
	Agree(remote PublicKey, secret *[P384SharedSecretSize]byte) bool
}

type Kem interface {
	PublicKeySize() int
	CiphertextSize() int
	SharedSecretSize() int
	GenerateKeyPair(rng io.Reader) (pub, priv []byte, err error)
	Encapsulate(pub []byte, rng io.Reader) (ciphertext, sharedSecret []byte, err error)
	Decapsulate(priv, ciphertext []byte) (sharedSecret []byte, err error)
}

// Crypto bundles the capabilities a Session needs to run the protocol.
type Crypto struct {
	Hash Hash
	AEAD AEAD
	PRP  PRP
	Kem  Kem

	GenerateKeyPair func(rng io.Reader) (KeyPair, error)
	ParsePublicKey  func(b [P384PublicKeySize]byte) (PublicKey, bool)
}
