package zssp

import "time"

// Settings carries the runtime-tunable timeouts and limits referenced
// throughout sections 4 and 8. Zero values are not valid; use
// DefaultSettings and override individual fields.
//
// The Context reads InitialOfferTimeout, ResendTime and
// FragmentAssemblyTimeout. The per-session timers are fixed inside
// protocol/session: a handshake or rekey packet is resent once its 1 s
// resend deadline has passed and abandoned after 10 s, a rekey falls due one hour after key
// confirmation with no jitter, and Send forces a rekey at
// session.RekeyAfterUses. RekeyTimeout, RekeyAfterTime,
// RekeyTimeMaxJitter and RekeyAfterKeyUses are not read.
type Settings struct {
	// InitialOfferTimeout is how long the responder keeps a partial
	// handshake (X2 sent, X3 not yet received) in its unassociated
	// handshake cache.
	InitialOfferTimeout time.Duration

	// RekeyTimeout is a timeout for a rekey exchange (K1/K2); not read,
	// see the type comment.
	RekeyTimeout time.Duration

	// RekeyAfterTime is a session age at which to rekey, and
	// RekeyTimeMaxJitter a jitter range for it; neither is read, see the
	// type comment.
	RekeyAfterTime     time.Duration
	RekeyTimeMaxJitter time.Duration

	// RekeyAfterKeyUses is a per-key AEAD use count for a mandatory
	// rekey; not read, see the type comment.
	RekeyAfterKeyUses uint64

	// ResendTime is the delay after now that Service returns as its next
	// deadline when no session is queued.
	ResendTime time.Duration

	// FragmentAssemblyTimeout bounds how long a partially-received
	// fragmented packet is held before its fragments are discarded.
	FragmentAssemblyTimeout time.Duration
}

// DefaultSettings returns ZSSP's suggested default timeouts and limits.
func DefaultSettings() Settings {
	return Settings{
		InitialOfferTimeout:     10 * time.Second,
		RekeyTimeout:            60 * time.Second,
		RekeyAfterTime:          time.Hour,
		RekeyTimeMaxJitter:      time.Second,
		RekeyAfterKeyUses:       1 << 24,
		ResendTime:              250 * time.Millisecond,
		FragmentAssemblyTimeout: 2500 * time.Millisecond,
	}
}
