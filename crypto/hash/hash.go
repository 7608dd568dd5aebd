// Package hash implements the capability layer's Hash interface with
// SHA-512 and HMAC-SHA-512, the hash the symmetric transcript's KBKDF is
// built on.
package hash

import (
	"crypto/hmac"
	"crypto/sha512"
)

// Hash is the stateless SHA-512/HMAC-SHA-512 implementation; its zero
// value is ready to use.
type Hash struct{}

func (Hash) Sum512(data []byte) [64]byte {
	return sha512.Sum512(data)
}

func (Hash) HMAC512(key, data []byte) [64]byte {
	mac := hmac.New(sha512.New, key)
	mac.Write(data)
	var out [64]byte
	copy(out[:], mac.Sum(nil))
	return out
}
