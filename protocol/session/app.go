package session

import "zssp/protocol/ratchet"

// AcceptDecision mirrors the root package's AcceptAction/AcceptWith,
// redeclared locally to avoid an import cycle (the root package embeds
// Session).
type AcceptDecision struct {
	Accept            bool
	SessionData       any
	DisallowDowngrade bool
	SilentlyReject    bool
}

// App is the subset of the application callback surface the state
// machine itself needs to drive transitions. The root package's
// ApplicationLayer satisfies this directly.
type App interface {
	HelloRequiresRecognizedRatchet() bool
	InitiatorDisallowsDowngrade() bool
	CheckAcceptSession(remoteStatic PublicKey, identity []byte) AcceptDecision
	RestoreByFingerprint(fingerprint [ratchet.Size]byte) (ratchet.State, error)
	RestoreByIdentity(remoteStatic PublicKey, sessionData any) (ratchet.Pair, error)
	SaveRatchetState(remoteStatic PublicKey, sessionData any, update ratchet.Update) error
	Time() int64
}
