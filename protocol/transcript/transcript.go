// Package transcript implements the Noise-style symmetric state (h, ck, k)
// shared by the X1-X3 handshake and the K1/K2 rekey, and the KBKDF
// construction ZSSP uses in place of the usual HKDF.
package transcript

const HashLen = 64
const aeadKeySize = 32

// State is a Noise SymmetricState: a running transcript hash h, a chaining
// key ck, and the current cipher key k (zero until the first MixKey).
type State struct {
	hash Hash
	k    [aeadKeySize]byte
	ck   [HashLen]byte
	h    [HashLen]byte
}

// Hash is the subset of the capability layer's hash interface this package
// needs, kept narrow to avoid importing the root module (which would
// create an import cycle).
type Hash interface {
	Sum512(data []byte) [64]byte
	HMAC512(key, data []byte) [64]byte
}

// Initialize starts a new transcript from an initial hash value, mirroring
// Noise's Initialize(protocol_name) with h already computed by the caller.
func Initialize(hash Hash, h [HashLen]byte) *State {
	return &State{hash: hash, ck: h, h: h}
}

// Clone returns an independent copy, used whenever a handshake trials
// multiple continuations (e.g. the ratchet-key downgrade trial decryption
// in the X2 response) from the same transcript point.
func (s *State) Clone() *State {
	cp := *s
	return &cp
}

// kbkdf implements HMAC-SHA-512 based KBKDF in Counter Mode (NIST SP
// 800-108r1), with K_IN = inputKeyMaterial, Label = label, Context = ck,
// and L = numOutputs*512. Every input is fixed size to avoid encoding
// ambiguity; only the leading counter octet changes between outputs.
func (s *State) kbkdf(inputKeyMaterial []byte, label [4]byte, outputs ...*[HashLen]byte) {
	numOutputs := len(outputs)
	buf := make([]byte, 0, 1+4+1+HashLen+2)
	buf = append(buf, 1)
	buf = append(buf, label[:]...)
	buf = append(buf, 0x00)
	buf = append(buf, s.ck[:]...)
	l := uint16(numOutputs) * 8 * HashLen
	buf = append(buf, byte(l>>8), byte(l))

	for i, out := range outputs {
		buf[0] = byte(i + 1)
		*out = s.hash.HMAC512(inputKeyMaterial, buf)
	}
}

var labelKBKDFChain = [4]byte{'c', 'h', 'a', 'i'}

// MixKey corresponds to Noise MixKey: it folds input key material into ck
// and derives a fresh cipher key k.
func (s *State) MixKey(inputKeyMaterial []byte) {
	var nextCK, tempK [HashLen]byte
	s.kbkdf(inputKeyMaterial, labelKBKDFChain, &nextCK, &tempK)
	s.ck = nextCK
	copy(s.k[:], tempK[:aeadKeySize])
}

// MixHash corresponds to Noise MixHash: h = Hash(h || data).
func (s *State) MixHash(data []byte) {
	buf := make([]byte, 0, HashLen+len(data))
	buf = append(buf, s.h[:]...)
	buf = append(buf, data...)
	s.h = s.hash.Sum512(buf)
}

// MixKeyAndHash corresponds to Noise MixKeyAndHash: it derives ck, an
// intermediate hash folded into h, and a fresh k, all from one KBKDF call.
func (s *State) MixKeyAndHash(inputKeyMaterial []byte) {
	var nextCK, tempH, tempK [HashLen]byte
	s.kbkdf(inputKeyMaterial, labelKBKDFChain, &nextCK, &tempH, &tempK)
	s.ck = nextCK
	s.MixHash(tempH[:])
	copy(s.k[:], tempK[:aeadKeySize])
}

// AEAD is the subset of the capability layer's AEAD interface this package
// needs.
type AEAD interface {
	Seal(key *[32]byte, nonce [12]byte, aad, plaintext []byte) (tag [16]byte)
	Open(key *[32]byte, nonce [12]byte, aad, ciphertext []byte, tag [16]byte) bool
}

// EncryptAndHash corresponds to Noise EncryptAndHash: plaintext is sealed
// in place under k with h as associated data, the tag is appended, and the
// full ciphertext||tag is mixed into h.
func (s *State) EncryptAndHash(aead AEAD, nonce [12]byte, plaintextStart int, buf *[]byte) {
	tag := aead.Seal(&s.k, nonce, s.h[:], (*buf)[plaintextStart:])
	*buf = append(*buf, tag[:]...)
	s.MixHash((*buf)[plaintextStart:])
}

// DecryptAndHash corresponds to Noise DecryptAndHash. It mixes h forward
// over ciphertext||tag regardless of whether authentication succeeds,
// matching the Noise requirement that the transcript advance even on
// failure (the caller must abort the handshake itself on a false return).
func (s *State) DecryptAndHash(aead AEAD, nonce [12]byte, ciphertext []byte, tag [16]byte) bool {
	next := make([]byte, 0, HashLen+len(ciphertext)+16)
	next = append(next, s.h[:]...)
	next = append(next, ciphertext...)
	next = append(next, tag[:]...)
	ok := aead.Open(&s.k, nonce, s.h[:], ciphertext, tag)
	s.h = s.hash.Sum512(next)
	return ok
}

// Split corresponds to Noise Split: it derives the pair of transport keys
// the two ends use for each direction once the handshake is finished.
func (s *State) Split() (k1, k2 [aeadKeySize]byte) {
	var t1, t2 [HashLen]byte
	s.kbkdf(nil, labelKBKDFChain, &t1, &t2)
	copy(k1[:], t1[:aeadKeySize])
	copy(k2[:], t2[:aeadKeySize])
	return
}

// GetAsk derives an Additional Symmetric Key bound to the current
// transcript hash and a caller-supplied label, per Noise's (unstable) ASK
// extension. The two halves returned are independent and forward secret.
func (s *State) GetAsk(label [4]byte) (k1, k2 [aeadKeySize]byte) {
	var t1, t2 [HashLen]byte
	s.kbkdf(s.h[:], label, &t1, &t2)
	copy(k1[:], t1[:aeadKeySize])
	copy(k2[:], t2[:aeadKeySize])
	return
}

// Fingerprint exposes (k0, ck0, h0) bytes for debugging a key exchange; it
// is not used in production code paths.
func (s *State) Fingerprint() (byte, byte, byte) {
	return s.k[0], s.ck[0], s.h[0]
}
