// Package prp implements the capability layer's PRP interface as a raw,
// unauthenticated AES-256 block permutation, used only to obfuscate the
// HEADER_AUTH window of the wire header (section 2's header format).
package prp

import "crypto/aes"

// Cipher is the stateless raw-AES implementation; its zero value is
// ready to use.
type Cipher struct{}

func (Cipher) EncryptBlock(key *[32]byte, block *[16]byte) {
	c, err := aes.NewCipher(key[:])
	if err != nil {
		panic(err)
	}
	c.Encrypt(block[:], block[:])
}

func (Cipher) DecryptBlock(key *[32]byte, block *[16]byte) {
	c, err := aes.NewCipher(key[:])
	if err != nil {
		panic(err)
	}
	c.Decrypt(block[:], block[:])
}
