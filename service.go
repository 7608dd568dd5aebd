package zssp

import (
	"container/heap"
	"time"

	"zssp/protocol/session"
)

// queueEntry is one session's position in the timer priority queue,
// keyed by the earlier of its resend and timeout deadlines.
type queueEntry struct {
	kid      uint32
	sess     *Session
	deadline int64
	index    int
}

// sessionQueue is a container/heap min-priority queue over queueEntry,
// giving Service its "next deadline" in O(log n).
type sessionQueue []*queueEntry

func (q sessionQueue) Len() int            { return len(q) }
func (q sessionQueue) Less(i, j int) bool  { return q[i].deadline < q[j].deadline }
func (q sessionQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i]; q[i].index, q[j].index = i, j }
func (q *sessionQueue) Push(x any) {
	e := x.(*queueEntry)
	e.index = len(*q)
	*q = append(*q, e)
}
func (q *sessionQueue) Pop() any {
	old := *q
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return e
}

func nextDeadline(s *Session) int64 {
	r, t := s.ResendDeadline(), s.TimeoutDeadline()
	if r < t {
		return r
	}
	return t
}

// enqueue inserts a freshly created session into the timer queue.
func (c *Context) enqueue(kid uint32, s *Session) {
	c.queueMu.Lock()
	defer c.queueMu.Unlock()
	heap.Push(&c.queue, &queueEntry{kid: kid, sess: s, deadline: nextDeadline(s)})
}

// msToTime maps the application's arbitrary, possibly-negative monotonic
// millisecond clock onto a time.Time, solely so the fragment/handshake
// caches (which reason in terms of time.Time and time.Duration) can share
// the same clock the session state machine uses.
func msToTime(ms int64) time.Time { return time.UnixMilli(ms) }

// SendForSession supplies the transport for a session's self-initiated
// traffic during Service: the send closure for its current peer address
// and the MTU to fragment under.
type SendForSession func(s *Session) (send func([]byte) bool, mtu int)

// Service walks the timer queue, firing every session whose resend or
// timeout deadline has passed, expires the unassociated fragment cache,
// and services the unassociated handshake cache. It returns the next
// absolute deadline (in the application's monotonic ms clock) at which
// Service should be called again.
func (c *Context) Service(app ApplicationLayer, sendForSession SendForSession) int64 {
	now := app.Time()

	for {
		c.queueMu.Lock()
		if c.queue.Len() == 0 {
			c.queueMu.Unlock()
			break
		}
		top := c.queue[0]
		if top.deadline > now {
			c.queueMu.Unlock()
			break
		}
		heap.Pop(&c.queue)
		c.queueMu.Unlock()

		if top.sess.Expired() {
			c.mapMu.Lock()
			delete(c.sessions, top.kid)
			c.mapMu.Unlock()
			continue
		}

		send, mtu := sendForSession(top.sess)
		c.processTimers(app, top.sess, send, mtu, now)

		if top.sess.Expired() {
			c.mapMu.Lock()
			delete(c.sessions, top.kid)
			c.mapMu.Unlock()
			continue
		}

		c.queueMu.Lock()
		top.deadline = nextDeadline(top.sess)
		heap.Push(&c.queue, top)
		c.queueMu.Unlock()
	}

	c.unassocFrag.ExpireStale(msToTime(now))
	c.handshakes.Service(now)

	c.queueMu.Lock()
	defer c.queueMu.Unlock()
	if c.queue.Len() == 0 {
		return now + c.settings.ResendTime.Milliseconds()
	}
	return c.queue[0].deadline
}

// processTimers fires whichever of a session's two timers is due: a
// resend of its last outstanding handshake/rekey packet, a handshake/
// rekey timeout (session torn down), or — for a session in S2 — the
// signal that it is time to initiate a rekey (section 4.5's S2 -> R1
// transition, also forced early when Send crosses RekeyAfterUses).
func (c *Context) processTimers(app ApplicationLayer, s *Session, send func([]byte) bool, mtu int, now int64) {
	if s.Phase() == session.PhaseS2 {
		if s.TimeoutDeadline() <= now {
			c.initiateRekey(app, s, send, mtu)
		}
		return
	}

	if s.ResendDeadline() <= now {
		c.resendPending(s, send, mtu)
	}
	if s.TimeoutDeadline() <= now {
		s.Expire()
	}
}

// resendPending retransmits whatever handshake or rekey packet this
// session last sent and is still waiting to have acknowledged, bumping
// its resend deadline forward.
func (c *Context) resendPending(s *Session, send func([]byte) bool, mtu int) {
	pkt, ok := pendingPacket(s)
	if !ok {
		return
	}
	if s.Phase() == session.PhaseA1 {
		// X1 goes out without header obfuscation, as in Open.
		c.sendRaw(send, mtu, pkt.Kid, pkt.Nonce, pkt.Data, nil)
		return
	}
	c.sendPacket(s, send, mtu, pkt)
}

// pendingPacket recovers the last packet sent for whichever beta state
// the session is currently parked in, for retransmission.
func pendingPacket(s *Session) (session.Packet, bool) {
	return s.PendingRetransmit()
}

// initiateRekey starts a fresh Noise-KK rekey for an established session
// whose timeout timer has signaled it is due, either by age or by use
// count (section 8, "no silent nonce reuse").
func (c *Context) initiateRekey(app ApplicationLayer, s *Session, send func([]byte) bool, mtu int) {
	kidRecv := c.genKid()
	pkt, err := session.InitiateRekey(s, appAdapter{app}, rngReader{c}, kidRecv, sessionKeyPair{c.staticSecret})
	if err != nil {
		return
	}
	c.mapMu.Lock()
	c.sessions[kidRecv] = s
	c.mapMu.Unlock()
	c.sendPacket(s, send, mtu, pkt)
}
