package session

import (
	"errors"

	"zssp/protocol/replay"
	"zssp/protocol/wire"
)

var ErrSessionExpired = errors.New("session: expired")
var ErrSessionNotEstablished = errors.New("session: not yet established")

// RekeyAfterUses is the send-counter distance past key creation at which
// a rekey becomes due; ExpireAfterUses is the harder limit past which the
// session is torn down rather than risk AEAD nonce reuse.
const RekeyAfterUses = 1 << 20
const ExpireAfterUses = 1 << 24

// Send encrypts payload under the current transport key, advancing the
// send counter and triggering expiration or a rekey-due signal as the
// key's use count approaches its limits.
func (s *Session) Send(payload []byte) (Packet, error) {
	if s.phase == PhaseNull {
		return Packet{}, ErrSessionExpired
	}
	if !s.Established() {
		return Packet{}, ErrSessionNotEstablished
	}
	c := s.sendCounter
	if c >= s.keyCreationCount+ExpireAfterUses {
		s.Expire()
		return Packet{}, ErrSessionExpired
	} else if c >= s.keyCreationCount+RekeyAfterUses {
		s.timeoutTimer = -(1 << 62)
	}
	s.sendCounter++

	send := s.keyRef(false).Send
	n := wire.AeadNonce(wire.PacketTypeData, c)
	out := append([]byte(nil), payload...)
	tag := s.crypto.AEAD.Seal(&send.Nk, n, nil, out)
	out = append(out, tag[:]...)

	return Packet{Kid: send.Kid, Nonce: n, Data: out}, nil
}

// Recv decrypts an incoming data packet addressed to either the current
// or next transport key generation.
func (s *Session) Recv(kid uint32, nonce [wire.AeadNonceSize]byte, payload []byte) ([]byte, error) {
	if len(payload) < wire.AeadTagSize {
		return nil, ErrFailedAuth
	}
	isOther, ok := s.whichGeneration(kid)
	if !ok {
		return nil, ErrOutOfSequence
	}
	recv := s.keyRef(isOther).Recv
	if !recv.HasNk {
		return nil, ErrOutOfSequence
	}
	i := len(payload) - wire.AeadTagSize
	var tag [16]byte
	copy(tag[:], payload[i:])
	plain := append([]byte(nil), payload[:i]...)
	if !s.crypto.AEAD.Open(&recv.Nk, nonce, nil, plain, tag) {
		return nil, ErrFailedAuth
	}
	return plain, nil
}

// Window exposes the session's anti-replay window to the Context, which
// owns the Check/Update call sites (section 4.2).
func (s *Session) Window() *replay.Window { return &s.window }
