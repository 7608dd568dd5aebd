package zssp

import (
	"io"

	"zssp/protocol/ratchet"
	"zssp/protocol/session"
)

// sessionPublicKey adapts a root PublicKey to session.PublicKey. Both
// interfaces declare the identical Bytes() method, but Go requires
// adapter code at points where an interface-typed parameter or return
// crosses between two distinctly named interfaces.
type sessionPublicKey struct{ inner PublicKey }

func (p sessionPublicKey) Bytes() [session.P384PublicKeySize]byte { return p.inner.Bytes() }

// rootPublicKey adapts a session.PublicKey to the root PublicKey, the
// mirror of sessionPublicKey above.
type rootPublicKey struct{ inner session.PublicKey }

func (p rootPublicKey) Bytes() [P384PublicKeySize]byte { return p.inner.Bytes() }

// sessionKeyPair adapts a root KeyPair to session.KeyPair.
type sessionKeyPair struct{ inner KeyPair }

func (k sessionKeyPair) PublicKey() session.PublicKey {
	return sessionPublicKey{k.inner.PublicKey()}
}

func (k sessionKeyPair) Agree(remote session.PublicKey, secret *[session.P384SharedSecretSize]byte) bool {
	if sp, ok := remote.(sessionPublicKey); ok {
		return k.inner.Agree(sp.inner, secret)
	}
	return k.inner.Agree(rootPublicKey{remote}, secret)
}

// sessionCrypto builds the protocol/session package's Crypto bundle from
// a root Suite, wiring the capability implementations through the
// adapter types above.
func sessionCrypto(suite Suite) session.Crypto {
	return session.Crypto{
		Hash: suite.Hash,
		AEAD: suite.AEAD,
		PRP:  suite.PRP,
		Kem:  suite.Kem,
		GenerateKeyPair: func(rng io.Reader) (session.KeyPair, error) {
			kp, err := suite.GenerateKeyPair(rng)
			if err != nil {
				return nil, err
			}
			return sessionKeyPair{kp}, nil
		},
		ParsePublicKey: func(b [session.P384PublicKeySize]byte) (session.PublicKey, bool) {
			pk, ok := suite.ParsePublicKey(b)
			if !ok {
				return nil, false
			}
			return sessionPublicKey{pk}, true
		},
	}
}

// appAdapter makes an ApplicationLayer satisfy protocol/session.App,
// translating the PublicKey and AcceptAction/AcceptDecision shapes at
// the boundary.
type appAdapter struct{ app ApplicationLayer }

func (a appAdapter) HelloRequiresRecognizedRatchet() bool {
	return a.app.HelloRequiresRecognizedRatchet()
}

func (a appAdapter) InitiatorDisallowsDowngrade() bool {
	return a.app.InitiatorDisallowsDowngrade()
}

func (a appAdapter) CheckAcceptSession(remoteStatic session.PublicKey, identity []byte) session.AcceptDecision {
	action := a.app.CheckAcceptSession(rootPublicKey{remoteStatic}, identity)
	if action.Accept == nil {
		return session.AcceptDecision{Accept: false, SilentlyReject: action.SilentlyReject}
	}
	return session.AcceptDecision{
		Accept:            true,
		SessionData:       action.Accept.SessionData,
		DisallowDowngrade: action.Accept.DisallowDowngrade,
	}
}

func (a appAdapter) RestoreByFingerprint(fingerprint [ratchet.Size]byte) (ratchet.State, error) {
	return a.app.RestoreByFingerprint(fingerprint)
}

func (a appAdapter) RestoreByIdentity(remoteStatic session.PublicKey, sessionData any) (ratchet.Pair, error) {
	return a.app.RestoreByIdentity(rootPublicKey{remoteStatic}, sessionData)
}

func (a appAdapter) SaveRatchetState(remoteStatic session.PublicKey, sessionData any, update ratchet.Update) error {
	return a.app.SaveRatchetState(rootPublicKey{remoteStatic}, sessionData, update)
}

func (a appAdapter) Time() int64 {
	return a.app.Time()
}
