package session

import (
	"zssp/protocol/ratchet"
	"zssp/protocol/wire"
)

// RecvC1 processes the key-confirmation packet (C1) sent by whichever
// side just finished a handshake or rekey. It authenticates the zero-
// length AEAD payload under the addressed generation's key, promotes
// that generation to current on success, and returns the C2 ack to send
// back.
func RecvC1(s *Session, app App, kid uint32, nonce [wire.AeadNonceSize]byte, c1 []byte) (Packet, error) {
	if len(c1) != wire.KeyConfirmationSize-wire.HeaderSize {
		return Packet{}, ErrFailedAuth
	}

	isOther, ok := s.whichGeneration(kid)
	if !ok {
		return Packet{}, ErrOutOfSequence
	}
	recv := s.keyRef(isOther).Recv
	if !recv.HasKek {
		return Packet{}, ErrOutOfSequence
	}
	var tag [16]byte
	copy(tag[:], c1)
	if !s.crypto.AEAD.Open(&recv.Kek, nonce, nil, nil, tag) {
		return Packet{}, ErrFailedAuth
	}

	if isOther && (s.phase == PhaseA3 || s.phase == PhaseR2) {
		if s.ratchetStates[1].IsNonEmpty() {
			update := ratchet.Update{
				Next:                   ratchet.Pair{Current: s.ratchetStates[0], Previous: ratchet.Null()},
				DeletedFingerprint1:    mustFingerprint(s.ratchetStates[1]),
				HasDeletedFingerprint1: true,
			}
			if err := app.SaveRatchetState(s.sRemote, s.ApplicationData, update); err != nil {
				return Packet{}, err
			}
		}
		s.ratchetStates[1] = ratchet.Null()
		s.keyIndex = !s.keyIndex
		s.timeoutTimer = app.Time() + 3600_000
		s.resendTimer = 1 << 62
		s.phase = PhaseS2
		s.a3, s.r2 = nil, nil
	}

	send := s.keyRef(false).Send
	if !send.HasKek {
		return Packet{}, ErrOutOfSequence
	}
	c := s.sendCounter
	s.sendCounter++
	n := wire.AeadNonce(wire.PacketTypeAck, c)
	var c2 []byte
	tag2 := s.crypto.AEAD.Seal(&send.Kek, n, nil, c2)
	c2 = append(c2, tag2[:]...)
	return Packet{Kid: send.Kid, Nonce: n, Data: c2}, nil
}

// RecvC2 processes the acknowledgement (C2) completing key confirmation
// on the side that sent C1.
func RecvC2(s *Session, app App, kid uint32, nonce [wire.AeadNonceSize]byte, c2 []byte) error {
	if len(c2) != wire.AcknowledgementSize-wire.HeaderSize {
		return ErrFailedAuth
	}
	recv := s.keyRef(false).Recv
	if !recv.HasKid || recv.Kid != kid {
		return ErrOutOfSequence
	}
	if s.phase != PhaseS1 {
		return ErrOutOfSequence
	}
	var tag [16]byte
	copy(tag[:], c2)
	if !s.crypto.AEAD.Open(&recv.Kek, nonce, nil, nil, tag) {
		return ErrFailedAuth
	}
	s.timeoutTimer = app.Time() + 3600_000
	s.resendTimer = 1 << 62
	s.phase = PhaseS2
	return nil
}

// RecvSessionRejected authenticates a SESSION_REJECTED packet against the
// addressed generation's receive key and, on success, expires the
// session: the responder has declined the handshake and there is nothing
// left to retry with the same ratchet/identity pairing.
func RecvSessionRejected(s *Session, kid uint32, nonce [wire.AeadNonceSize]byte, d []byte) error {
	if len(d) != wire.SessionRejectedSize-wire.HeaderSize {
		return ErrFailedAuth
	}
	isOther, ok := s.whichGeneration(kid)
	if !ok {
		return ErrOutOfSequence
	}
	recv := s.keyRef(isOther).Recv
	if !recv.HasKek {
		return ErrOutOfSequence
	}
	var tag [16]byte
	copy(tag[:], d)
	if !s.crypto.AEAD.Open(&recv.Kek, nonce, nil, nil, tag) {
		return ErrFailedAuth
	}
	s.Expire()
	return nil
}

// whichGeneration reports whether kid names the "next" (true) or
// "current" (false) generation's receive key id.
func (s *Session) whichGeneration(kid uint32) (isNext bool, ok bool) {
	if next := s.keyRef(true); next.Recv.HasKid && next.Recv.Kid == kid {
		return true, true
	}
	if cur := s.keyRef(false); cur.Recv.HasKid && cur.Recv.Kid == kid {
		return false, true
	}
	return false, false
}

func mustFingerprint(r ratchet.State) [ratchet.Size]byte {
	fp, _ := r.Fingerprint()
	return fp
}
