package zssp

import (
	"encoding/binary"
	"time"

	"zssp/protocol/session"
	"zssp/protocol/wire"
)

// ReceiveResult classifies what Receive did with one incoming datagram.
type ReceiveResult int

const (
	// ResultUnassociated covers every packet that isn't yet (or never
	// will be) tied to an established Session: a dropped/challenged/
	// rejected X1, an X1 answered with X2, a CHALLENGE, or a fault.
	ResultUnassociated ReceiveResult = iota
	// ResultFragment means buf completed one fragment of a larger
	// packet; reassembly is still pending.
	ResultFragment
	// ResultControl means a session-affecting control packet (X2, X3,
	// C1, C2, K1, K2, SESSION_REJECTED) was processed to completion.
	ResultControl
	// ResultData means an application payload was recovered; the
	// returned byte slice is the plaintext.
	ResultData
)

// Receive dispatches one incoming datagram per section 4.7: packets
// addressed to kid_recv zero are steered to the unassociated path (fresh
// X1, or a CHALLENGE reply); everything else is first looked up in the
// session map, falling back to the unassociated handshake cache for X3.
// sendUnassociated/mtuUnassoc address replies that precede any Session
// (X2, CHALLENGE, SESSION_REJECTED); sendForSession supplies the
// transport for a packet once a Session is known.
func (c *Context) Receive(
	app ApplicationLayer,
	sendUnassociated func([]byte) bool, mtuUnassociated int,
	sendForSession SendForSession,
	srcAddr string, buf []byte,
) (ReceiveResult, *Session, []byte, error) {
	if len(buf) < wire.HeaderSize {
		app.EventLog(FaultLogged{Kind: FaultInvalidPacket, Natural: true})
		return ResultUnassociated, nil, nil, faultErr(FaultInvalidPacket, true)
	}
	kidRecv := binary.BigEndian.Uint32(buf[:wire.KidSize])

	if kidRecv == 0 {
		return c.receiveUnassociated(app, sendUnassociated, mtuUnassociated, srcAddr, buf)
	}

	c.mapMu.RLock()
	s, ok := c.sessions[kidRecv]
	c.mapMu.RUnlock()
	if ok {
		return c.receiveForSession(app, sendForSession, s, kidRecv, buf)
	}

	return c.receiveForPendingHandshake(app, sendForSession, sendUnassociated, mtuUnassociated, kidRecv, srcAddr, buf)
}

// receiveUnassociated handles every packet addressed to kid_recv zero:
// an initial X1 (possibly fragmented) or a CHALLENGE sent in reply to
// one of our own X1s. X1 traffic is never header-obfuscated — no shared
// key exists yet for either side to apply it.
func (c *Context) receiveUnassociated(app ApplicationLayer, sendUnassociated func([]byte) bool, mtuUnassociated int, srcAddr string, buf []byte) (ReceiveResult, *Session, []byte, error) {
	fragmentNo, fragmentCount, nonce, ok := wire.ParseFragmentHeader(buf)
	if !ok {
		app.EventLog(FaultLogged{Kind: FaultInvalidPacket, Natural: true})
		return ResultUnassociated, nil, nil, faultErr(FaultInvalidPacket, true)
	}
	packetType, counter := wire.FromNonce(nonce)

	switch packetType {
	case wire.PacketTypeChallenge:
		app.EventLog(ReceivedChallenge{})
		return ResultUnassociated, nil, nil, nil

	case wire.PacketTypeHandshakeHello:
		fragments, complete := c.unassocFrag.Assemble(srcAddr, nonce, fragmentNo, fragmentCount, buf[wire.HeaderSize:], time.Now(), c.settings.FragmentAssemblyTimeout)
		if !complete {
			app.EventLog(ReceivedRawFragment{PacketType: packetType, Counter: counter, FragmentNo: fragmentNo, FragmentCount: fragmentCount})
			return ResultFragment, nil, nil, nil
		}
		return c.receiveX1(app, sendUnassociated, mtuUnassociated, srcAddr, joinFragments(fragments))

	default:
		app.EventLog(FaultLogged{Kind: FaultInvalidPacket, Natural: false})
		return ResultUnassociated, nil, nil, faultErr(FaultInvalidPacket, false)
	}
}

// receiveX1 applies the DoS challenge policy and, if admitted, runs the
// responder side of the handshake up through X2, parking the partial
// state in the unassociated handshake cache to await X3.
func (c *Context) receiveX1(app ApplicationLayer, sendUnassociated func([]byte) bool, mtuUnassociated int, srcAddr string, x1 []byte) (ReceiveResult, *Session, []byte, error) {
	switch app.IncomingSession() {
	case Drop:
		return ResultUnassociated, nil, nil, nil
	case Challenge:
		cookie := c.challenge.Issue([]byte(srcAddr), time.Now())
		c.sendChallenge(sendUnassociated, mtuUnassociated, cookie)
		app.EventLog(SentChallenge{})
		return ResultUnassociated, nil, nil, nil
	}

	app.EventLog(ReceivedX1{})
	st, pkt, err := session.RecvX1ToB2(c.crypto, appAdapter{app}, rngReader{c}, c.genKid, sessionKeyPair{c.staticSecret}, x1)
	if err != nil {
		app.EventLog(FaultLogged{Kind: FaultFailedAuth, Natural: false})
		return ResultUnassociated, nil, nil, faultErr(FaultFailedAuth, false)
	}
	c.handshakes.Insert(st.KidRecv, st, app.Time(), c.settings.InitialOfferTimeout.Milliseconds())

	hkSend, _ := st.HeaderKeys()
	c.sendRaw(sendUnassociated, mtuUnassociated, pkt.Kid, pkt.Nonce, pkt.Data, &hkSend)
	app.EventLog(SentX2{})
	return ResultUnassociated, nil, nil, nil
}

// receiveForPendingHandshake handles a packet addressed to a kid_recv not
// (yet) in the session map: the only such packet is X3, landing against
// a StateB2 parked in the unassociated handshake cache.
func (c *Context) receiveForPendingHandshake(app ApplicationLayer, sendForSession SendForSession, sendUnassociated func([]byte) bool, mtuUnassociated int, kidRecv uint32, srcAddr string, buf []byte) (ReceiveResult, *Session, []byte, error) {
	// X3 arrives header-obfuscated under the header key derived while
	// processing X1; kid_recv lies outside the obfuscated window.
	if pending, found := c.handshakes.Get(kidRecv); found && len(buf) >= wire.HeaderAuthEnd {
		_, hkRecv := pending.(*session.StateB2).HeaderKeys()
		var block [wire.HeaderAuthEnd - wire.HeaderAuthStart]byte
		copy(block[:], buf[wire.HeaderAuthStart:wire.HeaderAuthEnd])
		c.suite.PRP.DecryptBlock(&hkRecv, &block)
		copy(buf[wire.HeaderAuthStart:wire.HeaderAuthEnd], block[:])
	}

	fragmentNo, fragmentCount, nonce, ok := wire.ParseFragmentHeader(buf)
	if !ok {
		app.EventLog(FaultLogged{Kind: FaultInvalidPacket, Natural: true})
		return ResultUnassociated, nil, nil, faultErr(FaultInvalidPacket, true)
	}
	packetType, counter := wire.FromNonce(nonce)
	if packetType != wire.PacketTypeHandshakeCompletion {
		app.EventLog(FaultLogged{Kind: FaultUnknownLocalKeyId, Natural: true})
		return ResultUnassociated, nil, nil, faultErr(FaultUnknownLocalKeyId, true)
	}

	fragments, complete := c.unassocFrag.Assemble(srcAddr, nonce, fragmentNo, fragmentCount, buf[wire.HeaderSize:], time.Now(), c.settings.FragmentAssemblyTimeout)
	if !complete {
		app.EventLog(ReceivedRawFragment{PacketType: packetType, Counter: counter, FragmentNo: fragmentNo, FragmentCount: fragmentCount})
		return ResultFragment, nil, nil, nil
	}
	x3 := joinFragments(fragments)

	pending, found := c.handshakes.Remove(kidRecv)
	if !found {
		app.EventLog(FaultLogged{Kind: FaultUnknownLocalKeyId, Natural: true})
		return ResultUnassociated, nil, nil, faultErr(FaultUnknownLocalKeyId, true)
	}
	st := pending.(*session.StateB2)

	s, pkt, rejectPkt, err := session.RecvX3ToS1(st, appAdapter{app}, x3)
	if err != nil {
		app.EventLog(FaultLogged{Kind: FaultFailedAuth, Natural: false})
		if rejectPkt != nil {
			hkSend, _ := st.HeaderKeys()
			c.sendRaw(sendUnassociated, mtuUnassociated, rejectPkt.Kid, rejectPkt.Nonce, rejectPkt.Data, &hkSend)
			app.EventLog(ReceivedSessionRejected{})
		}
		if err == ErrRejected {
			return ResultUnassociated, nil, nil, ErrRejected
		}
		return ResultUnassociated, nil, nil, faultErr(FaultFailedAuth, false)
	}
	app.EventLog(ReceivedX3{})

	current, _, _ := s.RecvKid()
	c.mapMu.Lock()
	c.sessions[current] = s
	c.mapMu.Unlock()
	c.enqueue(current, s)

	send, mtu := sendForSession(s)
	c.sendPacket(s, send, mtu, pkt)
	app.EventLog(SentKeyConfirm{})

	return ResultControl, s, nil, nil
}

// receiveForSession handles every packet addressed to a kid_recv already
// owned by a Session: it deobfuscates the header, checks the anti-replay
// pre-filter, reassembles if fragmented, and dispatches on packet type.
func (c *Context) receiveForSession(app ApplicationLayer, sendForSession SendForSession, s *Session, kidRecv uint32, buf []byte) (ReceiveResult, *Session, []byte, error) {
	_, hkRecv := s.HeaderKeys()
	if len(buf) >= wire.HeaderAuthEnd {
		var block [wire.HeaderAuthEnd - wire.HeaderAuthStart]byte
		copy(block[:], buf[wire.HeaderAuthStart:wire.HeaderAuthEnd])
		c.suite.PRP.DecryptBlock(&hkRecv, &block)
		copy(buf[wire.HeaderAuthStart:wire.HeaderAuthEnd], block[:])
	}

	fragmentNo, fragmentCount, nonce, ok := wire.ParseFragmentHeader(buf)
	if !ok {
		app.EventLog(FaultLogged{Kind: FaultInvalidPacket, Natural: true})
		return ResultUnassociated, s, nil, faultErr(FaultInvalidPacket, true)
	}
	packetType, counter := wire.FromNonce(nonce)

	if wire.PacketTypeUsesCounterRange(packetType) && !s.Window().Check(counter) {
		app.EventLog(FaultLogged{Kind: FaultExpiredCounter, Natural: true})
		return ResultUnassociated, s, nil, faultErr(FaultExpiredCounter, true)
	}

	fragments, complete := s.Defrag().Assemble(nonce, fragmentNo, fragmentCount, buf[wire.HeaderSize:], time.Now(), c.settings.FragmentAssemblyTimeout)
	if !complete {
		app.EventLog(ReceivedRawFragment{PacketType: packetType, Counter: counter, FragmentNo: fragmentNo, FragmentCount: fragmentCount})
		return ResultFragment, s, nil, nil
	}
	body := joinFragments(fragments)

	if wire.PacketTypeUsesCounterRange(packetType) && !s.Window().Update(counter) {
		app.EventLog(FaultLogged{Kind: FaultExpiredCounter, Natural: true})
		return ResultUnassociated, s, nil, faultErr(FaultExpiredCounter, true)
	}

	switch packetType {
	case wire.PacketTypeHandshakeResponse:
		app.EventLog(ReceivedX2{})
		pkt, err := session.RecvX2ToA3(s, appAdapter{app}, sessionKeyPair{c.staticSecret}, body)
		if err != nil {
			app.EventLog(FaultLogged{Kind: FaultFailedAuth, Natural: false})
			return ResultUnassociated, s, nil, faultErr(FaultFailedAuth, false)
		}
		send, mtu := sendForSession(s)
		c.sendPacket(s, send, mtu, pkt)
		app.EventLog(SentX3{})
		return ResultControl, s, nil, nil

	case wire.PacketTypeData:
		plain, err := s.Recv(kidRecv, nonce, body)
		if err != nil {
			app.EventLog(FaultLogged{Kind: FaultFailedAuth, Natural: false})
			return ResultUnassociated, s, nil, faultErr(FaultFailedAuth, false)
		}
		return ResultData, s, plain, nil

	case wire.PacketTypeKeyConfirm:
		pkt, err := session.RecvC1(s, appAdapter{app}, kidRecv, nonce, body)
		if err != nil {
			app.EventLog(FaultLogged{Kind: FaultFailedAuth, Natural: false})
			return ResultUnassociated, s, nil, faultErr(FaultFailedAuth, false)
		}
		app.EventLog(ReceivedKeyConfirm{Established: s.Established()})
		send, mtu := sendForSession(s)
		c.sendPacket(s, send, mtu, pkt)
		app.EventLog(SentAck{})
		return ResultControl, s, nil, nil

	case wire.PacketTypeAck:
		if err := session.RecvC2(s, appAdapter{app}, kidRecv, nonce, body); err != nil {
			app.EventLog(FaultLogged{Kind: FaultFailedAuth, Natural: false})
			return ResultUnassociated, s, nil, faultErr(FaultFailedAuth, false)
		}
		app.EventLog(ReceivedAck{})
		return ResultControl, s, nil, nil

	case wire.PacketTypeRekeyInit:
		app.EventLog(ReceivedRekeyInit{})
		kidRecvNext := c.genKid()
		pkt, err := session.RecvK1(s, appAdapter{app}, rngReader{c}, kidRecvNext, sessionKeyPair{c.staticSecret}, kidRecv, nonce, body)
		if err != nil {
			app.EventLog(FaultLogged{Kind: FaultFailedAuth, Natural: false})
			return ResultUnassociated, s, nil, faultErr(FaultFailedAuth, false)
		}
		c.mapMu.Lock()
		c.sessions[kidRecvNext] = s
		c.mapMu.Unlock()
		send, mtu := sendForSession(s)
		c.sendPacket(s, send, mtu, pkt)
		app.EventLog(SentRekeyComplete{})
		return ResultControl, s, nil, nil

	case wire.PacketTypeRekeyComplete:
		pkt, err := session.RecvK2(s, appAdapter{app}, kidRecv, nonce, body)
		if err != nil {
			app.EventLog(FaultLogged{Kind: FaultFailedAuth, Natural: false})
			return ResultUnassociated, s, nil, faultErr(FaultFailedAuth, false)
		}
		app.EventLog(ReceivedRekeyComplete{})
		send, mtu := sendForSession(s)
		c.sendPacket(s, send, mtu, pkt)
		app.EventLog(SentKeyConfirm{})
		return ResultControl, s, nil, nil

	case wire.PacketTypeSessionRejected:
		if err := session.RecvSessionRejected(s, kidRecv, nonce, body); err != nil {
			app.EventLog(FaultLogged{Kind: FaultFailedAuth, Natural: false})
			return ResultUnassociated, s, nil, faultErr(FaultFailedAuth, false)
		}
		app.EventLog(ReceivedSessionRejected{})
		return ResultControl, s, nil, ErrRejected

	default:
		app.EventLog(FaultLogged{Kind: FaultInvalidPacket, Natural: false})
		return ResultUnassociated, s, nil, faultErr(FaultInvalidPacket, false)
	}
}

// sendChallenge transmits a CHALLENGE packet carrying cookie, addressed
// to kid_recv zero like the X1 it answers.
func (c *Context) sendChallenge(send func([]byte) bool, mtu int, cookie [16]byte) {
	n := wire.AeadNonce(wire.PacketTypeChallenge, 0)
	c.sendRaw(send, mtu, 0, n, cookie[:], nil)
}

// joinFragments concatenates a completed reassembly's fragment bodies
// into one contiguous packet buffer.
func joinFragments(fragments [][]byte) []byte {
	total := 0
	for _, f := range fragments {
		total += len(f)
	}
	out := make([]byte, 0, total)
	for _, f := range fragments {
		out = append(out, f...)
	}
	return out
}
