package session

import (
	"encoding/binary"
	"io"

	"zssp/protocol/ratchet"
	"zssp/protocol/transcript"
	"zssp/protocol/wire"
)

// InitiateRekey begins a Noise-KK rekey from phase S2, sending K1.
func InitiateRekey(s *Session, app App, rng io.Reader, kidRecv uint32, sSecret KeyPair) (Packet, error) {
	if s.phase != PhaseS2 {
		return Packet{}, ErrOutOfSequence
	}

	noise := transcript.Initialize(s.crypto.Hash, initialHKK)
	sPub := sSecret.PublicKey().Bytes()
	noise.MixHash(sPub[:])
	noise.MixHash(s.sRemoteBytes[:])
	rKey := s.ratchetStates[0].Key()
	noise.MixKeyAndHash(rKey[:])

	var k1 []byte
	eSecret, err := writeE(s.crypto, rng, noise, &k1)
	if err != nil {
		return Packet{}, err
	}
	if !tokenDH(noise, eSecret, s.sRemote) {
		return Packet{}, ErrFailedAuth
	}
	if !tokenDH(noise, sSecret, s.sRemote) {
		return Packet{}, ErrFailedAuth
	}

	i := len(k1)
	var kidBuf [4]byte
	binary.BigEndian.PutUint32(kidBuf[:], kidRecv)
	k1 = append(k1, kidBuf[:]...)
	noise.EncryptAndHash(s.crypto.AEAD, wire.AeadNonce(wire.PacketTypeRekeyInit, 0), i, &k1)

	send := s.keyRef(false).Send
	c := s.sendCounter
	s.sendCounter++
	n := wire.AeadNonce(wire.PacketTypeRekeyInit, c)
	tag := s.crypto.AEAD.Seal(&send.Kek, n, nil, k1)
	k1 = append(k1, tag[:]...)

	next := s.keyRef(true)
	next.Recv.Kid, next.Recv.HasKid = kidRecv, true

	currentTime := app.Time()
	s.timeoutTimer = currentTime + 10000
	s.resendTimer = currentTime + 1000
	s.phase = PhaseR1
	pkt := Packet{Kid: send.Kid, Nonce: n, Data: k1}
	s.r1 = &betaR1{noise: noise, eSecret: eSecret, k1: pkt}

	return pkt, nil
}

// RecvK1 processes an incoming rekey-init (K1) as the responder, either
// fresh from S2 or as a duplicate while already in R1 (the side that was
// originally Bob in the initial handshake breaks the tie and proceeds).
func RecvK1(s *Session, app App, rng io.Reader, kidRecv uint32, sSecret KeyPair, kid uint32, nonce [wire.AeadNonceSize]byte, k1 []byte) (Packet, error) {
	if len(k1) != wire.RekeySize-wire.HeaderSize {
		return Packet{}, ErrFailedAuth
	}
	cur := s.keyRef(false).Recv
	if !cur.HasKid || cur.Kid != kid {
		return Packet{}, ErrOutOfSequence
	}
	shouldRekeyAsResponder := s.phase == PhaseS2 || (s.phase == PhaseR1 && s.WasResponder)
	if !shouldRekeyAsResponder {
		return Packet{}, ErrOutOfSequence
	}

	i := len(k1) - wire.AeadTagSize
	var tag [16]byte
	copy(tag[:], k1[i:])
	plain := append([]byte(nil), k1[:i]...)
	if !s.crypto.AEAD.Open(&cur.Kek, nonce, nil, plain, tag) {
		return Packet{}, ErrFailedAuth
	}
	k1 = plain

	noise := transcript.Initialize(s.crypto.Hash, initialHKK)
	noise.MixHash(s.sRemoteBytes[:])
	sPub := sSecret.PublicKey().Bytes()
	noise.MixHash(sPub[:])
	rKey := s.ratchetStates[0].Key()
	noise.MixKeyAndHash(rKey[:])

	idx := 0
	eRemote, ok := readE(s.crypto, noise, k1, &idx)
	if !ok {
		return Packet{}, ErrFailedAuth
	}
	if !tokenDH(noise, sSecret, eRemote) {
		return Packet{}, ErrFailedAuth
	}
	if !tokenDH(noise, sSecret, s.sRemote) {
		return Packet{}, ErrFailedAuth
	}

	j := idx + 4
	k := j + wire.AeadTagSize
	if k > len(k1) {
		return Packet{}, ErrFailedAuth
	}
	copy(tag[:], k1[j:k])
	if !noise.DecryptAndHash(s.crypto.AEAD, wire.AeadNonce(wire.PacketTypeRekeyInit, 0), k1[idx:j], tag) {
		return Packet{}, ErrFailedAuth
	}
	kidSend := binary.BigEndian.Uint32(k1[idx:j])
	if kidSend == 0 {
		return Packet{}, ErrFailedAuth
	}

	var k2 []byte
	eSecret, err := writeE(s.crypto, rng, noise, &k2)
	if err != nil {
		return Packet{}, err
	}
	if !tokenDH(noise, eSecret, eRemote) {
		return Packet{}, ErrFailedAuth
	}
	if !tokenDH(noise, sSecret, eRemote) {
		return Packet{}, ErrFailedAuth
	}

	idx = len(k2)
	var kidBuf [4]byte
	binary.BigEndian.PutUint32(kidBuf[:], kidRecv)
	k2 = append(k2, kidBuf[:]...)
	noise.EncryptAndHash(s.crypto.AEAD, wire.AeadNonce(wire.PacketTypeRekeyComplete, 0), idx, &k2)

	send := s.keyRef(false).Send
	c := s.sendCounter
	s.sendCounter++
	// The outer packet carries K2 as a REKEY_COMPLETE payload, not
	// REKEY_INIT: the nonce's embedded packet type authenticates which
	// packet this is, and reusing REKEY_INIT here would let the two
	// directions' AEAD nonce spaces collide.
	n := wire.AeadNonce(wire.PacketTypeRekeyComplete, c)
	tag2 := s.crypto.AEAD.Seal(&send.Kek, n, nil, k2)
	k2 = append(k2, tag2[:]...)

	rk, rf := noise.GetAsk(labelRatchetState)
	newRatchet := ratchet.New(rk, rf, s.ratchetStates[0].ChainLen()+1)
	addedFP, _ := newRatchet.Fingerprint()
	update := ratchet.Update{
		Next:                ratchet.Pair{Current: newRatchet, Previous: s.ratchetStates[0]},
		AddedFingerprint:    addedFP,
		HasAddedFingerprint: true,
	}
	if old, ok := s.ratchetStates[1].Fingerprint(); ok {
		update.DeletedFingerprint1 = old
		update.HasDeletedFingerprint1 = true
	}
	if err := app.SaveRatchetState(s.sRemote, s.ApplicationData, update); err != nil {
		return Packet{}, err
	}

	kekSend, kekRecv := noise.GetAsk(labelKexKey)
	nkSend, nkRecv := noise.Split()

	next := s.keyRef(true)
	next.Send.Kid, next.Send.HasKid = kidSend, true
	next.Send.Kek, next.Send.HasKek = kekSend, true
	next.Send.Nk, next.Send.HasNk = nkSend, true
	next.Recv.Kid, next.Recv.HasKid = kidRecv, true
	next.Recv.Kek, next.Recv.HasKek = kekRecv, true
	next.Recv.Nk, next.Recv.HasNk = nkRecv, true

	s.ratchetStates[1] = s.ratchetStates[0]
	s.ratchetStates[0] = newRatchet
	currentTime := app.Time()
	s.keyCreationCount = s.sendCounter
	s.timeoutTimer = currentTime + 10000
	s.resendTimer = currentTime + 1000
	s.phase = PhaseR2
	pkt := Packet{Kid: send.Kid, Nonce: n, Data: k2}
	s.r2 = &betaR2{k2: pkt}

	return pkt, nil
}

// RecvK2 processes the rekey-complete packet (K2) as the rekey
// initiator, finishing the Noise-KK exchange and producing the C1
// key-confirmation packet.
func RecvK2(s *Session, app App, kid uint32, nonce [wire.AeadNonceSize]byte, k2 []byte) (Packet, error) {
	if len(k2) != wire.RekeySize-wire.HeaderSize {
		return Packet{}, ErrFailedAuth
	}
	cur := s.keyRef(false).Recv
	if !cur.HasKid || cur.Kid != kid {
		return Packet{}, ErrOutOfSequence
	}
	if s.phase != PhaseR1 {
		return Packet{}, ErrOutOfSequence
	}
	r1 := s.r1

	i := len(k2) - wire.AeadTagSize
	var tag [16]byte
	copy(tag[:], k2[i:])
	plain := append([]byte(nil), k2[:i]...)
	if !s.crypto.AEAD.Open(&cur.Kek, nonce, nil, plain, tag) {
		return Packet{}, ErrFailedAuth
	}
	k2 = plain

	noise := r1.noise.Clone()
	idx := 0
	eRemote, ok := readE(s.crypto, noise, k2, &idx)
	if !ok {
		return Packet{}, ErrFailedAuth
	}
	if !tokenDH(noise, r1.eSecret, eRemote) {
		return Packet{}, ErrFailedAuth
	}
	if !tokenDH(noise, r1.eSecret, s.sRemote) {
		return Packet{}, ErrFailedAuth
	}

	j := idx + 4
	k := j + wire.AeadTagSize
	if k > len(k2) {
		return Packet{}, ErrFailedAuth
	}
	copy(tag[:], k2[j:k])
	if !noise.DecryptAndHash(s.crypto.AEAD, wire.AeadNonce(wire.PacketTypeRekeyComplete, 0), k2[idx:j], tag) {
		return Packet{}, ErrFailedAuth
	}
	kidSend := binary.BigEndian.Uint32(k2[idx:j])
	if kidSend == 0 {
		return Packet{}, ErrFailedAuth
	}

	rk, rf := noise.GetAsk(labelRatchetState)
	newRatchet := ratchet.New(rk, rf, s.ratchetStates[0].ChainLen()+1)
	addedFP, _ := newRatchet.Fingerprint()
	update := ratchet.Update{
		Next:                ratchet.Pair{Current: newRatchet, Previous: ratchet.Null()},
		AddedFingerprint:    addedFP,
		HasAddedFingerprint: true,
	}
	if old, ok := s.ratchetStates[0].Fingerprint(); ok {
		update.DeletedFingerprint1 = old
		update.HasDeletedFingerprint1 = true
	}
	if err := app.SaveRatchetState(s.sRemote, s.ApplicationData, update); err != nil {
		return Packet{}, err
	}

	kekRecv, kekSend := noise.GetAsk(labelKexKey)
	nkRecv, nkSend := noise.Split()

	next := s.keyRef(true)
	next.Send.Kid, next.Send.HasKid = kidSend, true
	next.Send.Kek, next.Send.HasKek = kekSend, true
	next.Send.Nk, next.Send.HasNk = nkSend, true
	next.Recv.Kek, next.Recv.HasKek = kekRecv, true
	next.Recv.Nk, next.Recv.HasNk = nkRecv, true

	s.ratchetStates[0] = newRatchet
	s.keyIndex = !s.keyIndex
	currentTime := app.Time()
	s.keyCreationCount = s.sendCounter
	s.timeoutTimer = currentTime + 10000
	s.resendTimer = currentTime + 1000
	s.phase = PhaseS1
	s.r1 = nil

	send := s.keyRef(false).Send
	c := s.sendCounter
	s.sendCounter++
	n := wire.AeadNonce(wire.PacketTypeKeyConfirm, c)
	var c1 []byte
	tag2 := s.crypto.AEAD.Seal(&send.Kek, n, nil, c1)
	c1 = append(c1, tag2[:]...)

	return Packet{Kid: send.Kid, Nonce: n, Data: c1}, nil
}
