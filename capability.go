package zssp

import "io"

// Hash is the cryptographic hash/HMAC capability the symmetric transcript
// is built on. Concrete backends live under crypto/hash.
type Hash interface {
	// Sum512 returns SHA-512(data).
	Sum512(data []byte) [64]byte
	// HMAC512 returns HMAC-SHA-512(key, data).
	HMAC512(key, data []byte) [64]byte
}

// AEAD is the authenticated encryption capability (AES-256-GCM). Concrete
// backends live under crypto/aead.
type AEAD interface {
	// Seal encrypts plaintext in place and returns the 16-byte tag. aad may
	// be nil.
	Seal(key *[32]byte, nonce [12]byte, aad, plaintext []byte) (tag [16]byte)
	// Open decrypts ciphertext in place and reports whether tag verified.
	// On failure the contents of ciphertext are not defined.
	Open(key *[32]byte, nonce [12]byte, aad, ciphertext []byte, tag [16]byte) bool
}

// PRP is a raw keyed block permutation (AES-256, no authentication), used
// only to obfuscate the header's HEADER_AUTH window.
type PRP interface {
	// EncryptBlock encrypts a single 16-byte block in place under key.
	EncryptBlock(key *[32]byte, block *[16]byte)
	// DecryptBlock decrypts a single 16-byte block in place under key.
	DecryptBlock(key *[32]byte, block *[16]byte)
}

// PublicKey is a peer's static or ephemeral P-384 public key.
type PublicKey interface {
	Bytes() [P384PublicKeySize]byte
}

// KeyPair is a local P-384 key pair capable of ECDH agreement.
type KeyPair interface {
	PublicKey() PublicKey
	// Agree performs ECDH with remote and writes the 48-byte big-endian X
	// coordinate of the shared point into secret. Returns false if remote
	// is not a valid point (e.g. point at infinity).
	Agree(remote PublicKey, secret *[P384SharedSecretSize]byte) bool
}

// P384PublicKeySize is the length of an uncompressed NIST P-384 public key
// point (0x04 || X || Y).
const P384PublicKeySize = 97

// P384SharedSecretSize is the length of a P-384 ECDH shared secret (the X
// coordinate of the agreed point).
const P384SharedSecretSize = 48

// Kem is a post-quantum key encapsulation mechanism (Kyber-1024).
type Kem interface {
	PublicKeySize() int
	CiphertextSize() int
	SharedSecretSize() int
	// GenerateKeyPair returns a fresh (public, private) pair.
	GenerateKeyPair(rng io.Reader) (pub, priv []byte, err error)
	// Encapsulate derives a shared secret and ciphertext bound to pub.
	Encapsulate(pub []byte, rng io.Reader) (ciphertext, sharedSecret []byte, err error)
	// Decapsulate recovers the shared secret from ciphertext given priv.
	Decapsulate(priv, ciphertext []byte) (sharedSecret []byte, err error)
}

// Suite bundles every cryptographic capability the core needs. It carries
// no per-session state and is safe to share across many Context values.
type Suite struct {
	Hash Hash
	AEAD AEAD
	PRP  PRP
	Kem  Kem

	// GenerateKeyPair creates a fresh local P-384 key pair, reading
	// randomness from rng.
	GenerateKeyPair func(rng io.Reader) (KeyPair, error)
	// ParsePublicKey parses an uncompressed P-384 public key point.
	// The second return is false if the bytes do not decode to a valid
	// point on the curve.
	ParsePublicKey func(b [P384PublicKeySize]byte) (PublicKey, bool)
}
