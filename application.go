package zssp

import "zssp/protocol/ratchet"

// IncomingSessionAction is the application's DoS policy decision for a
// freshly received X1, made before anything is known about the caller.
type IncomingSessionAction int

const (
	Allow IncomingSessionAction = iota
	Challenge
	Drop
)

// AcceptAction is the application's decision on whether to accept a
// completed handshake (X3 received), made with full knowledge of the
// peer's static public key and identity payload.
type AcceptAction struct {
	// Accept, if non-nil, carries the application-defined session datum
	// to associate with the new session and the downgrade policy to
	// enforce. A nil Accept means "reject this session".
	Accept *AcceptWith

	// SilentlyReject, when Accept is nil, suppresses the SESSION_REJECTED
	// (D) wire packet — the handshake is simply dropped.
	SilentlyReject bool
}

// AcceptWith carries the accept-path decision.
type AcceptWith struct {
	SessionData       any
	DisallowDowngrade bool
}

// ApplicationLayer is the callback surface the core consumes, per section
// 6. One value is supplied per Context.Open/Receive/Service call; it is
// intentionally stateless from the core's perspective (any needed state is
// whatever the application closes over).
type ApplicationLayer interface {
	// HelloRequiresRecognizedRatchet, if true, causes the responder to
	// reject any X1 that does not assert a fingerprint the responder
	// recognizes (no Empty-baseline fallback).
	HelloRequiresRecognizedRatchet() bool

	// InitiatorDisallowsDowngrade, if true, forbids the initiator from
	// accepting an X2 that used the all-zero Empty ratchet when the
	// initiator believed it held a real prior ratchet with this peer.
	InitiatorDisallowsDowngrade() bool

	// CheckAcceptSession is invoked once the responder has authenticated
	// X3 and decrypted the peer's identity payload.
	CheckAcceptSession(remoteStatic PublicKey, identity []byte) AcceptAction

	// RestoreByFingerprint looks up a previously persisted ratchet by
	// fingerprint. Used by the responder while processing X1.
	RestoreByFingerprint(fingerprint [32]byte) (ratchet.State, error)

	// RestoreByIdentity looks up the ratchet pair persisted for a given
	// remote static key and session datum. Used by the initiator before
	// sending X1, and by the responder after accepting X3.
	RestoreByIdentity(remoteStatic PublicKey, sessionData any) (ratchet.Pair, error)

	// SaveRatchetState durably persists a ratchet update. Must not
	// return until the write is durable (section 8).
	SaveRatchetState(remoteStatic PublicKey, sessionData any, update ratchet.Update) error

	// Time returns the current monotonic time in milliseconds. May be
	// negative; only differences are meaningful.
	Time() int64

	// EventLog receives structured protocol events for observability.
	// Implementations that don't care can make this a no-op.
	EventLog(event LogEvent)

	// IncomingSession is the DoS policy consulted for every fresh X1.
	IncomingSession() IncomingSessionAction
}

// LogEvent is a structured protocol event surfaced through EventLog. It is
// a plain interface{} alias by design: concrete event types are declared
// alongside the code that emits them (ReceivedX1, SentX2, ...), and a
// logging backend type-switches on whatever it wants to handle.
type LogEvent = any
