package session

import (
	"encoding/binary"
	"errors"
	"io"

	"zssp/protocol/ratchet"
	"zssp/protocol/transcript"
	"zssp/protocol/wire"
)

var ErrFailedAuth = errors.New("session: failed authentication")
var ErrOutOfSequence = errors.New("session: packet out of sequence")

// OpenA1 begins a session as the initiator: it restores whatever ratchet
// history exists for remoteStatic, builds X1, and returns a fresh Session
// parked in phase A1 alongside the packet to send.
func OpenA1(c Crypto, app App, rng io.Reader, kidRecv uint32, remoteStatic PublicKey, sessionData any, identity []byte) (*Session, Packet, error) {
	pair, err := app.RestoreByIdentity(remoteStatic, sessionData)
	if err != nil {
		return nil, Packet{}, err
	}

	noise := transcript.Initialize(c.Hash, initialHXK)
	var x1 []byte
	var kidBuf [4]byte
	binary.BigEndian.PutUint32(kidBuf[:], kidRecv)
	x1 = append(x1, kidBuf[:]...)
	noise.MixHash(kidBuf[:])
	remoteBytes := remoteStatic.Bytes()
	noise.MixHash(remoteBytes[:])

	eSecret, err := writeE(c, rng, noise, &x1)
	if err != nil {
		return nil, Packet{}, err
	}
	if !tokenDH(noise, eSecret, remoteStatic) {
		return nil, Packet{}, ErrFailedAuth
	}

	e1Pub, e1Secret, err := c.Kem.GenerateKeyPair(rng)
	if err != nil {
		return nil, Packet{}, err
	}
	i := len(x1)
	x1 = append(x1, e1Pub...)
	noise.EncryptAndHash(c.AEAD, wire.AeadNonce(wire.PacketTypeHandshakeHello, 0), i, &x1)

	i = len(x1)
	for _, r := range []ratchet.State{pair.Current, pair.Previous} {
		if fp, ok := r.Fingerprint(); ok {
			x1 = append(x1, fp[:]...)
		}
	}
	noise.EncryptAndHash(c.AEAD, wire.AeadNonce(wire.PacketTypeHandshakeHello, 1), i, &x1)

	hkRecv, hkSend := noise.GetAsk(labelHeaderKey)

	currentTime := app.Time()
	s := &Session{
		crypto:           c,
		ApplicationData:  sessionData,
		WasResponder:     false,
		sRemote:          remoteStatic,
		sRemoteBytes:     remoteBytes,
		ratchetStates:    [2]ratchet.State{pair.Current, pair.Previous},
		keyIndex:         true,
		hkSend:           hkSend,
		hkRecv:           hkRecv,
		resendTimer:      currentTime + 1000,
		timeoutTimer:     currentTime + 10000,
		phase:            PhaseA1,
	}
	s.keys[0].Recv.Kid, s.keys[0].Recv.HasKid = kidRecv, true

	counter := binary.BigEndian.Uint64(x1[len(x1)-8:])
	pkt := Packet{Kid: 0, Nonce: wire.AeadNonce(wire.PacketTypeHandshakeHello, counter), Data: append([]byte(nil), x1...)}
	s.a1 = &betaA1{noise: noise, eSecret: eSecret, e1Secret: e1Secret, identity: identity, x1: pkt}
	return s, pkt, nil
}

// StateB2 is the responder's partial handshake state between sending X2
// and receiving X3. It is held in the Context's unassociated handshake
// cache, keyed by KidSend (the kid_recv this exchange asked the
// initiator to address its X3 to).
type StateB2 struct {
	crypto       Crypto
	RatchetState ratchet.State
	KidSend      uint32
	KidRecv      uint32
	hkSend       [32]byte
	hkRecv       [32]byte
	eSecret      KeyPair
	noise        *transcript.State
}

// HeaderKeys returns the send/recv header-obfuscation keys derived while
// processing X1, for the Context to obfuscate X2 and deobfuscate X3.
func (b *StateB2) HeaderKeys() (send, recv [32]byte) { return b.hkSend, b.hkRecv }

// RecvX1ToB2 processes an incoming X1 as the responder, producing the
// partial StateB2 and the X2 packet to send back.
func RecvX1ToB2(c Crypto, app App, rng io.Reader, genKid func() uint32, sSecret KeyPair, x1 []byte) (*StateB2, Packet, error) {
	if len(x1) < wire.HandshakeHelloMinSize-wire.HeaderSize || len(x1) > wire.HandshakeHelloMaxSize-wire.HeaderSize {
		return nil, Packet{}, ErrFailedAuth
	}

	noise := transcript.Initialize(c.Hash, initialHXK)
	i := 0
	j := i + 4
	noise.MixHash(x1[i:j])
	kidSend := binary.BigEndian.Uint32(x1[i:j])
	if kidSend == 0 {
		return nil, Packet{}, ErrFailedAuth
	}
	sPub := sSecret.PublicKey().Bytes()
	noise.MixHash(sPub[:])
	i = j

	eRemote, ok := readE(c, noise, x1, &i)
	if !ok {
		return nil, Packet{}, ErrFailedAuth
	}
	if !tokenDH(noise, sSecret, eRemote) {
		return nil, Packet{}, ErrFailedAuth
	}

	j = i + c.Kem.PublicKeySize()
	k := j + wire.AeadTagSize
	if k > len(x1) {
		return nil, Packet{}, ErrFailedAuth
	}
	var tag [16]byte
	copy(tag[:], x1[j:k])
	if !noise.DecryptAndHash(c.AEAD, wire.AeadNonce(wire.PacketTypeHandshakeHello, 0), x1[i:j], tag) {
		return nil, Packet{}, ErrFailedAuth
	}
	e1Start, e1End := i, j
	i = k

	k = len(x1)
	j = k - wire.AeadTagSize
	copy(tag[:], x1[j:k])
	if !noise.DecryptAndHash(c.AEAD, wire.AeadNonce(wire.PacketTypeHandshakeHello, 1), x1[i:j], tag) {
		return nil, Packet{}, ErrFailedAuth
	}

	rState := ratchet.Null()
	for i+ratchet.Size <= j {
		var fp [ratchet.Size]byte
		copy(fp[:], x1[i:i+ratchet.Size])
		found, err := app.RestoreByFingerprint(fp)
		if err != nil {
			return nil, Packet{}, err
		}
		if found.IsNonEmpty() {
			rState = found
			break
		}
		i += ratchet.Size
	}
	if rState.IsNull() {
		if app.HelloRequiresRecognizedRatchet() {
			return nil, Packet{}, ErrFailedAuth
		}
		rState = ratchet.Empty()
	}

	hkSend, hkRecv := noise.GetAsk(labelHeaderKey)

	var x2 []byte
	eSecret, err := writeE(c, rng, noise, &x2)
	if err != nil {
		return nil, Packet{}, err
	}
	if !tokenDH(noise, eSecret, eRemote) {
		return nil, Packet{}, ErrFailedAuth
	}

	ePos := len(x2)
	ekem1Ct, ekem1Secret, err := c.Kem.Encapsulate(x1[e1Start:e1End], rng)
	if err != nil {
		return nil, Packet{}, ErrFailedAuth
	}
	x2 = append(x2, ekem1Ct...)
	noise.EncryptAndHash(c.AEAD, wire.AeadNonce(wire.PacketTypeHandshakeResponse, 0), ePos, &x2)
	noise.MixKey(ekem1Secret)

	rKey := rState.Key()
	noise.MixKeyAndHash(rKey[:])

	kidRecv := genKid()
	i = len(x2)
	var kidRecvBuf [4]byte
	binary.BigEndian.PutUint32(kidRecvBuf[:], kidRecv)
	x2 = append(x2, kidRecvBuf[:]...)
	noise.EncryptAndHash(c.AEAD, wire.AeadNonce(wire.PacketTypeHandshakeResponse, 0), i, &x2)

	var cBuf [8]byte
	copy(cBuf[5:], x1[len(x1)-3:])
	counter := binary.BigEndian.Uint64(cBuf[:])

	state := &StateB2{
		crypto:       c,
		RatchetState: rState,
		KidSend:      kidSend,
		KidRecv:      kidRecv,
		hkSend:       hkSend,
		hkRecv:       hkRecv,
		eSecret:      eSecret,
		noise:        noise,
	}
	return state, Packet{Kid: kidSend, Nonce: wire.AeadNonce(wire.PacketTypeHandshakeResponse, counter), Data: x2}, nil
}

// RecvX2ToA3 processes an incoming X2 as the initiator, completing the
// Kyber decapsulation and the ratchet-key trial decryption, and returns
// the X3 packet to send.
func RecvX2ToA3(s *Session, app App, sSecret KeyPair, x2 []byte) (Packet, error) {
	if s.phase != PhaseA1 {
		return Packet{}, ErrOutOfSequence
	}
	if len(x2) != wire.HandshakeResponseSize-wire.HeaderSize {
		return Packet{}, ErrFailedAuth
	}
	if !s.keys[0].Recv.HasKid {
		return Packet{}, ErrFailedAuth
	}

	a1 := s.a1
	noise := a1.noise.Clone()

	i := 0
	eRemote, ok := readE(s.crypto, noise, x2, &i)
	if !ok {
		return Packet{}, ErrFailedAuth
	}
	if !tokenDH(noise, a1.eSecret, eRemote) {
		return Packet{}, ErrFailedAuth
	}

	j := i + s.crypto.Kem.CiphertextSize()
	k := j + wire.AeadTagSize
	if k > len(x2) {
		return Packet{}, ErrFailedAuth
	}
	var tag [16]byte
	copy(tag[:], x2[j:k])
	if !noise.DecryptAndHash(s.crypto.AEAD, wire.AeadNonce(wire.PacketTypeHandshakeResponse, 0), x2[i:j], tag) {
		return Packet{}, ErrFailedAuth
	}
	ekemSecret, err := s.crypto.Kem.Decapsulate(a1.e1Secret, x2[i:j])
	if err != nil {
		return Packet{}, ErrFailedAuth
	}
	noise.MixKey(ekemSecret)
	i = k

	j = i + 4
	k = j + wire.AeadTagSize
	if k > len(x2) {
		return Packet{}, ErrFailedAuth
	}
	payload := append([]byte(nil), x2[i:j]...)
	copy(tag[:], x2[j:k])

	tryRatchet := func(key [ratchet.Size]byte) (uint32, *transcript.State, bool) {
		trial := noise.Clone()
		p := append([]byte(nil), payload...)
		trial.MixKeyAndHash(key[:])
		if !trial.DecryptAndHash(s.crypto.AEAD, wire.AeadNonce(wire.PacketTypeHandshakeResponse, 0), p, tag) {
			return 0, nil, false
		}
		return binary.BigEndian.Uint32(p), trial, true
	}

	var kidSend uint32
	var final *transcript.State
	var chainLen uint64
	var ratchetIdx int
	found := false
	if s.ratchetStates[0].IsNonEmpty() {
		chainLen = s.ratchetStates[0].ChainLen()
		kidSend, final, found = tryRatchet(s.ratchetStates[0].Key())
	}
	if !found && s.ratchetStates[1].IsNonEmpty() {
		ratchetIdx = 1
		chainLen = s.ratchetStates[1].ChainLen()
		kidSend, final, found = tryRatchet(s.ratchetStates[1].Key())
	}
	if !found && !app.InitiatorDisallowsDowngrade() {
		chainLen = 0
		kidSend, final, found = tryRatchet([ratchet.Size]byte{})
	}
	if !found || kidSend == 0 {
		return Packet{}, ErrFailedAuth
	}
	noise = final

	var x3 []byte
	i = len(x3)
	sPub := sSecret.PublicKey().Bytes()
	x3 = append(x3, sPub[:]...)
	noise.EncryptAndHash(s.crypto.AEAD, wire.AeadNonce(wire.PacketTypeHandshakeCompletion, 1), i, &x3)
	if !tokenDH(noise, sSecret, eRemote) {
		return Packet{}, ErrFailedAuth
	}
	i = len(x3)
	x3 = append(x3, a1.identity...)
	noise.EncryptAndHash(s.crypto.AEAD, wire.AeadNonce(wire.PacketTypeHandshakeCompletion, 0), i, &x3)

	rk, rf := noise.GetAsk(labelRatchetState)
	newRatchet := ratchet.New(rk, rf, chainLen+1)

	preserved := s.ratchetStates[ratchetIdx]
	var addedFP [ratchet.Size]byte
	addedFP, _ = newRatchet.Fingerprint()
	update := ratchet.Update{
		Next:                ratchet.Pair{Current: newRatchet, Previous: preserved},
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

	s.ratchetStates[1] = preserved
	s.ratchetStates[0] = newRatchet
	currentTime := app.Time()
	s.keyCreationCount = s.sendCounter
	s.resendTimer = currentTime + 1000
	s.timeoutTimer = currentTime + 10000
	s.a1 = nil
	pkt := Packet{Kid: kidSend, Nonce: wire.AeadNonce(wire.PacketTypeHandshakeCompletion, 0), Data: x3}
	s.a3 = &betaA3{x3: pkt}
	s.phase = PhaseA3

	return pkt, nil
}

// RecvX3ToS1 processes an incoming X3 as the responder, against a
// previously cached StateB2, and produces the fully-established Session
// plus the C1 key-confirmation packet. A non-nil reject packet may be
// returned alongside an error when the application chooses to answer
// with SESSION_REJECTED rather than silently drop.
func RecvX3ToS1(b2 *StateB2, app App, x3 []byte) (*Session, Packet, *Packet, error) {
	if len(x3) < wire.HandshakeCompletionMinSize-wire.HeaderSize {
		return nil, Packet{}, nil, ErrFailedAuth
	}

	c := b2.crypto
	noise := b2.noise.Clone()

	i := 0
	j := i + P384PublicKeySize
	k := j + wire.AeadTagSize
	if k > len(x3) {
		return nil, Packet{}, nil, ErrFailedAuth
	}
	var tag [16]byte
	copy(tag[:], x3[j:k])
	if !noise.DecryptAndHash(c.AEAD, wire.AeadNonce(wire.PacketTypeHandshakeCompletion, 1), x3[i:j], tag) {
		return nil, Packet{}, nil, ErrFailedAuth
	}
	var sRemoteBytes [P384PublicKeySize]byte
	copy(sRemoteBytes[:], x3[i:j])
	sRemote, ok := c.ParsePublicKey(sRemoteBytes)
	if !ok {
		return nil, Packet{}, nil, ErrFailedAuth
	}
	i = k

	if !tokenDH(noise, b2.eSecret, sRemote) {
		return nil, Packet{}, nil, ErrFailedAuth
	}

	k = len(x3)
	j = k - wire.AeadTagSize
	if j < i {
		return nil, Packet{}, nil, ErrFailedAuth
	}
	copy(tag[:], x3[j:k])
	if !noise.DecryptAndHash(c.AEAD, wire.AeadNonce(wire.PacketTypeHandshakeCompletion, 0), x3[i:j], tag) {
		return nil, Packet{}, nil, ErrFailedAuth
	}
	identity := append([]byte(nil), x3[i:j]...)

	kekSend, kekRecv := noise.GetAsk(labelKexKey)
	const initCounter = 0

	decision := app.CheckAcceptSession(sRemote, identity)
	reject := func() *Packet {
		if decision.SilentlyReject {
			return nil
		}
		var d []byte
		n := wire.AeadNonce(wire.PacketTypeSessionRejected, initCounter)
		tag := c.AEAD.Seal(&kekSend, n, nil, d)
		d = append(d, tag[:]...)
		return &Packet{Kid: b2.KidSend, Nonce: n, Data: d}
	}
	if !decision.Accept {
		return nil, Packet{}, reject(), ErrFailedAuth
	}

	truePair, err := app.RestoreByIdentity(sRemote, decision.SessionData)
	if err != nil {
		return nil, Packet{}, nil, err
	}
	hasMatch := false
	for _, rs := range []ratchet.State{truePair.Current, truePair.Previous} {
		if rs.IsNonEmpty() && rs.Equal(b2.RatchetState) {
			hasMatch = true
		}
	}
	if !hasMatch {
		if decision.DisallowDowngrade || !b2.RatchetState.IsEmpty() {
			return nil, Packet{}, reject(), ErrFailedAuth
		}
	}

	rk, rf := noise.GetAsk(labelRatchetState)
	newRatchet := ratchet.New(rk, rf, b2.RatchetState.ChainLen()+1)
	addedFP, _ := newRatchet.Fingerprint()
	update := ratchet.Update{
		Next:                ratchet.Pair{Current: newRatchet, Previous: ratchet.Null()},
		AddedFingerprint:    addedFP,
		HasAddedFingerprint: true,
	}
	if old, ok := truePair.Current.Fingerprint(); ok {
		update.DeletedFingerprint1 = old
		update.HasDeletedFingerprint1 = true
	}
	if old, ok := truePair.Previous.Fingerprint(); ok {
		update.DeletedFingerprint2 = old
		update.HasDeletedFingerprint2 = true
	}
	if err := app.SaveRatchetState(sRemote, decision.SessionData, update); err != nil {
		return nil, Packet{}, nil, err
	}

	nk1, nk2 := noise.Split()
	keys := DualKeys{
		Send: Keys{Kid: b2.KidSend, HasKid: true, Kek: kekSend, HasKek: true, Nk: nk1, HasNk: true},
		Recv: Keys{Kid: b2.KidRecv, HasKid: true, Kek: kekRecv, HasKek: true, Nk: nk2, HasNk: true},
	}

	currentTime := app.Time()
	s := &Session{
		crypto:           c,
		ApplicationData:  decision.SessionData,
		WasResponder:     true,
		sRemote:          sRemote,
		sRemoteBytes:     sRemoteBytes,
		sendCounter:      initCounter + 1,
		keyCreationCount: initCounter + 1,
		keyIndex:         false,
		keys:             [2]DualKeys{keys, {}},
		ratchetStates:    [2]ratchet.State{newRatchet, ratchet.Null()},
		hkSend:           b2.hkSend,
		hkRecv:           b2.hkRecv,
		resendTimer:      currentTime + 1000,
		timeoutTimer:     currentTime + 10000,
		phase:            PhaseS1,
	}

	n := wire.AeadNonce(wire.PacketTypeKeyConfirm, initCounter)
	var c1 []byte
	tag2 := c.AEAD.Seal(&kekSend, n, nil, c1)
	c1 = append(c1, tag2[:]...)

	return s, Packet{Kid: b2.KidSend, Nonce: n, Data: c1}, nil, nil
}
