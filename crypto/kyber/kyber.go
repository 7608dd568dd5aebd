// Package kyber implements the capability layer's Kem interface over
// Kyber-1024, the post-quantum KEM ZSSP layers into the
// initial handshake alongside the classical P-384 agreement.
package kyber

import (
	"io"

	"github.com/cloudflare/circl/kem/kyber/kyber1024"
)

// Scheme is the sole instance the capability layer needs; Kyber-1024 has
// no configuration.
var Scheme = scheme{}

type scheme struct{}

func (scheme) PublicKeySize() int    { return kyber1024.Scheme().PublicKeySize() }
func (scheme) CiphertextSize() int   { return kyber1024.Scheme().CiphertextSize() }
func (scheme) SharedSecretSize() int { return kyber1024.Scheme().SharedKeySize() }

func (scheme) GenerateKeyPair(rng io.Reader) (pub, priv []byte, err error) {
	seed := make([]byte, kyber1024.Scheme().SeedSize())
	if _, err := io.ReadFull(rng, seed); err != nil {
		return nil, nil, err
	}
	pk, sk := kyber1024.Scheme().DeriveKeyPair(seed)
	pub, err = pk.MarshalBinary()
	if err != nil {
		return nil, nil, err
	}
	priv, err = sk.MarshalBinary()
	if err != nil {
		return nil, nil, err
	}
	return pub, priv, nil
}

func (scheme) Encapsulate(pub []byte, rng io.Reader) (ciphertext, sharedSecret []byte, err error) {
	pk, err := kyber1024.Scheme().UnmarshalBinaryPublicKey(pub)
	if err != nil {
		return nil, nil, err
	}
	seed := make([]byte, kyber1024.Scheme().EncapsulationSeedSize())
	if _, err := io.ReadFull(rng, seed); err != nil {
		return nil, nil, err
	}
	ct, ss, err := kyber1024.Scheme().EncapsulateDeterministically(pk, seed)
	if err != nil {
		return nil, nil, err
	}
	return ct, ss, nil
}

func (scheme) Decapsulate(priv, ciphertext []byte) (sharedSecret []byte, err error) {
	sk, err := kyber1024.Scheme().UnmarshalBinaryPrivateKey(priv)
	if err != nil {
		return nil, err
	}
	return kyber1024.Scheme().Decapsulate(sk, ciphertext)
}
