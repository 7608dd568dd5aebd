// Package aead implements the capability layer's AEAD interface with
// AES-256-GCM, the authenticated cipher ZSSP's Noise
// instantiation uses throughout the handshake, rekey, and transport data
// path.
package aead

import (
	"crypto/aes"
	"crypto/cipher"
)

// Cipher is the stateless AES-256-GCM implementation; its zero value is
// ready to use.
type Cipher struct{}

func aeadFor(key *[32]byte) cipher.AEAD {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		// key is always exactly 32 bytes; aes.NewCipher only errors on
		// an unsupported key length.
		panic(err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		panic(err)
	}
	return gcm
}

// Seal encrypts plaintext in place under key and returns the 16-byte tag.
func (Cipher) Seal(key *[32]byte, nonce [12]byte, aad, plaintext []byte) (tag [16]byte) {
	gcm := aeadFor(key)
	sealed := gcm.Seal(plaintext[:0], nonce[:], plaintext, aad)
	copy(plaintext, sealed[:len(plaintext)])
	copy(tag[:], sealed[len(plaintext):])
	return tag
}

// Open decrypts ciphertext in place under key and reports whether tag
// verified.
func (Cipher) Open(key *[32]byte, nonce [12]byte, aad, ciphertext []byte, tag [16]byte) bool {
	gcm := aeadFor(key)
	sealed := make([]byte, 0, len(ciphertext)+16)
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag[:]...)
	opened, err := gcm.Open(sealed[:0], nonce[:], sealed, aad)
	if err != nil || len(opened) != len(ciphertext) {
		return false
	}
	copy(ciphertext, opened)
	return true
}
