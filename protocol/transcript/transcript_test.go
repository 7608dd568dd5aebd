package transcript

import (
	"bytes"
	"testing"

	"zssp/crypto/aead"
	"zssp/crypto/hash"
)

func newState() *State {
	var h [HashLen]byte
	copy(h[:], "ZSSP-test-protocol-name-padding-to-64-bytes-xxxxxxxxxxxxxxxxxxx")
	return Initialize(hash.Hash{}, h)
}

func TestMixHashIsDeterministicAndOrderSensitive(t *testing.T) {
	a := newState()
	b := newState()
	a.MixHash([]byte("hello"))
	b.MixHash([]byte("hello"))
	if a.h != b.h {
		t.Fatal("MixHash should be deterministic given the same starting state and input")
	}

	c := newState()
	c.MixHash([]byte("world"))
	if a.h == c.h {
		t.Fatal("different inputs should produce different hashes")
	}
}

func TestMixKeyChangesChainAndCipherKey(t *testing.T) {
	s := newState()
	ck0, k0 := s.ck, s.k
	s.MixKey([]byte("input key material"))
	if s.ck == ck0 {
		t.Fatal("MixKey should change the chaining key")
	}
	if s.k == k0 {
		t.Fatal("MixKey should change the cipher key")
	}
}

func TestMixKeyAndHashAlsoAdvancesTranscriptHash(t *testing.T) {
	s := newState()
	h0 := s.h
	s.MixKeyAndHash([]byte("ikm"))
	if s.h == h0 {
		t.Fatal("MixKeyAndHash should fold its intermediate output into h")
	}
}

func TestEncryptAndHashRoundTrip(t *testing.T) {
	sender := newState()
	receiver := newState()
	sender.MixKey([]byte("shared secret"))
	receiver.MixKey([]byte("shared secret"))

	plaintext := []byte("the quick brown fox")
	buf := append([]byte{}, plaintext...)
	nonce := [12]byte{4: 1}
	sender.EncryptAndHash(aead.Cipher{}, nonce, 0, &buf)

	ciphertext := buf[:len(plaintext)]
	var tag [16]byte
	copy(tag[:], buf[len(plaintext):])

	ok := receiver.DecryptAndHash(aead.Cipher{}, nonce, ciphertext, tag)
	if !ok {
		t.Fatal("DecryptAndHash should authenticate a correctly encrypted message")
	}
	if !bytes.Equal(ciphertext, plaintext) {
		t.Fatalf("decrypted plaintext = %q, want %q", ciphertext, plaintext)
	}
	if sender.h != receiver.h {
		t.Fatal("sender and receiver transcripts should agree after a round trip")
	}
}

func TestDecryptAndHashAdvancesHashEvenOnFailure(t *testing.T) {
	s := newState()
	s.MixKey([]byte("k"))
	h0 := s.h

	ciphertext := []byte("not actually encrypted")
	var tag [16]byte
	nonce := [12]byte{4: 9}
	ok := s.DecryptAndHash(aead.Cipher{}, nonce, ciphertext, tag)
	if ok {
		t.Fatal("garbage ciphertext/tag must not authenticate")
	}
	if s.h == h0 {
		t.Fatal("the transcript hash must advance over the attempted ciphertext even on auth failure")
	}
}

func TestSplitProducesDistinctKeys(t *testing.T) {
	s := newState()
	s.MixKey([]byte("k"))
	k1, k2 := s.Split()
	if k1 == k2 {
		t.Fatal("Split's two output keys must be distinct")
	}
}

func TestGetAskIsBoundToLabelAndTranscript(t *testing.T) {
	s1 := newState()
	s1.MixKey([]byte("k"))
	s2 := s1.Clone()

	labelA := [4]byte{'a', 'a', 'a', 'a'}
	labelB := [4]byte{'b', 'b', 'b', 'b'}

	a1, a2 := s1.GetAsk(labelA)
	b1, b2 := s2.GetAsk(labelB)
	if a1 == b1 || a2 == b2 {
		t.Fatal("GetAsk outputs must depend on the label")
	}

	// Same label, same transcript state (via Clone) must reproduce exactly.
	s3 := s1.Clone()
	c1, c2 := s3.GetAsk(labelA)
	if c1 != a1 || c2 != a2 {
		t.Fatal("GetAsk must be deterministic given identical transcript state and label")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	s1 := newState()
	s2 := s1.Clone()
	s1.MixHash([]byte("only on s1"))
	if s1.h == s2.h {
		t.Fatal("mutating the original after Clone must not affect the clone")
	}
}
