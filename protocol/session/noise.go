package session

import (
	"io"

	"zssp/protocol/transcript"
)

// writeE generates a fresh ephemeral key pair, appends its public key to
// buf, and mixes it into the transcript as Noise's `e` token.
func writeE(c Crypto, rng io.Reader, noise *transcript.State, buf *[]byte) (KeyPair, error) {
	e, err := c.GenerateKeyPair(rng)
	if err != nil {
		return nil, err
	}
	pub := e.PublicKey().Bytes()
	*buf = append(*buf, pub[:]...)
	noise.MixHash(pub[:])
	noise.MixKey(pub[:])
	return e, nil
}

// readE reads a peer ephemeral public key out of buf at *i, advances *i,
// and mixes it into the transcript.
func readE(c Crypto, noise *transcript.State, buf []byte, i *int) (PublicKey, bool) {
	j := *i + P384PublicKeySize
	if j > len(buf) {
		return nil, false
	}
	var raw [P384PublicKeySize]byte
	copy(raw[:], buf[*i:j])
	pub, ok := c.ParsePublicKey(raw)
	if !ok {
		return nil, false
	}
	noise.MixHash(raw[:])
	noise.MixKey(raw[:])
	*i = j
	return pub, true
}

// tokenDH performs Noise's `dh`-family tokens: ECDH agreement mixed into
// the chaining key.
func tokenDH(noise *transcript.State, local KeyPair, remote PublicKey) bool {
	var secret [P384SharedSecretSize]byte
	if !local.Agree(remote, &secret) {
		return false
	}
	noise.MixKey(secret[:])
	return true
}
