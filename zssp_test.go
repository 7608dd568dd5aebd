package zssp_test

import (
	"crypto/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"zssp"
	"zssp/protocol/ratchet"
)

// memStore is a minimal in-memory ratchet.Storage-shaped backend, keyed on
// remote static public key bytes, good enough to drive the handshake
// end-to-end without any real persistence.
type memStore struct {
	mu    sync.Mutex
	pairs map[[97]byte]ratchet.Pair
	byFP  map[[32]byte]ratchet.State
}

func newMemStore() *memStore {
	return &memStore{pairs: map[[97]byte]ratchet.Pair{}, byFP: map[[32]byte]ratchet.State{}}
}

func (s *memStore) restoreByFingerprint(fp [32]byte) (ratchet.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.byFP[fp]; ok {
		return st, nil
	}
	return ratchet.Null(), nil
}

func (s *memStore) restoreByIdentity(remote [97]byte) (ratchet.Pair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.pairs[remote]; ok {
		return p, nil
	}
	return ratchet.InitialPair(), nil
}

func (s *memStore) save(remote [97]byte, update ratchet.Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pairs[remote] = update.Next
	if update.HasAddedFingerprint {
		if fp, ok := update.Next.Current.Fingerprint(); ok {
			s.byFP[fp] = update.Next.Current
		}
	}
	if update.HasDeletedFingerprint1 {
		delete(s.byFP, update.DeletedFingerprint1)
	}
	if update.HasDeletedFingerprint2 {
		delete(s.byFP, update.DeletedFingerprint2)
	}
	return nil
}

// testApp is a trivial ApplicationLayer: it always allows incoming
// sessions, accepts every handshake, and reads/writes ratchet state
// through a shared memStore per peer identity.
type testApp struct {
	store       *memStore
	sessionData any
	clock       int64
	events      []zssp.LogEvent
}

func (a *testApp) HelloRequiresRecognizedRatchet() bool { return false }
func (a *testApp) InitiatorDisallowsDowngrade() bool     { return false }

func (a *testApp) CheckAcceptSession(remote zssp.PublicKey, identity []byte) zssp.AcceptAction {
	return zssp.AcceptAction{Accept: &zssp.AcceptWith{SessionData: a.sessionData}}
}

func (a *testApp) RestoreByFingerprint(fp [32]byte) (ratchet.State, error) {
	return a.store.restoreByFingerprint(fp)
}

func (a *testApp) RestoreByIdentity(remote zssp.PublicKey, sessionData any) (ratchet.Pair, error) {
	return a.store.restoreByIdentity(remote.Bytes())
}

func (a *testApp) SaveRatchetState(remote zssp.PublicKey, sessionData any, update ratchet.Update) error {
	return a.store.save(remote.Bytes(), update)
}

func (a *testApp) Time() int64 { return a.clock }

func (a *testApp) EventLog(event zssp.LogEvent) { a.events = append(a.events, event) }

func (a *testApp) IncomingSession() zssp.IncomingSessionAction { return zssp.Allow }

// peers bundles two Contexts plumbed together through in-memory packet
// queues, standing in for a lossless UDP path between Alice and Bob.
type peers struct {
	suite zssp.Suite

	aliceCtx  *zssp.Context
	bobCtx    *zssp.Context
	aliceApp  *testApp
	bobApp    *testApp
	toBob     [][]byte
	toAlice   [][]byte
	bobSess   *zssp.Session
	aliceSess *zssp.Session

	mtu int
}

func newPeers(t *testing.T) *peers {
	t.Helper()
	suite := zssp.DefaultSuite()

	aliceStatic, err := suite.GenerateKeyPair(rand.Reader)
	require.NoError(t, err)
	bobStatic, err := suite.GenerateKeyPair(rand.Reader)
	require.NoError(t, err)

	aliceCtx, err := zssp.New(suite, aliceStatic, zssp.DefaultSettings())
	require.NoError(t, err)
	bobCtx, err := zssp.New(suite, bobStatic, zssp.DefaultSettings())
	require.NoError(t, err)

	return &peers{
		suite:    suite,
		aliceCtx: aliceCtx,
		bobCtx:   bobCtx,
		aliceApp: &testApp{store: newMemStore(), sessionData: "alice-side"},
		bobApp:   &testApp{store: newMemStore(), sessionData: "bob-side"},
		mtu:      2048,
	}
}

func (p *peers) sendToBob(pkt []byte) bool {
	p.toBob = append(p.toBob, append([]byte(nil), pkt...))
	return true
}

func (p *peers) sendToAlice(pkt []byte) bool {
	p.toAlice = append(p.toAlice, append([]byte(nil), pkt...))
	return true
}

func (p *peers) sendForAlice(*zssp.Session) (func([]byte) bool, int) { return p.sendToBob, p.mtu }
func (p *peers) sendForBob(*zssp.Session) (func([]byte) bool, int)  { return p.sendToAlice, p.mtu }

// pump drains both queues to quiescence, recording whichever Session each
// side's Receive call surfaces.
func (p *peers) pump(t *testing.T) []error {
	t.Helper()
	var errs []error
	for len(p.toBob) > 0 || len(p.toAlice) > 0 {
		for len(p.toBob) > 0 {
			pkt := p.toBob[0]
			p.toBob = p.toBob[1:]
			_, s, _, err := p.bobCtx.Receive(p.bobApp, p.sendToAlice, p.mtu, p.sendForBob, "alice:1", pkt)
			if s != nil {
				p.bobSess = s
			}
			if err != nil {
				errs = append(errs, err)
			}
		}
		for len(p.toAlice) > 0 {
			pkt := p.toAlice[0]
			p.toAlice = p.toAlice[1:]
			_, s, _, err := p.aliceCtx.Receive(p.aliceApp, p.sendToBob, p.mtu, p.sendForAlice, "bob:1", pkt)
			if s != nil {
				p.aliceSess = s
			}
			if err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errs
}

func TestGreenfieldHandshakeAndDataRoundTrip(t *testing.T) {
	p := newPeers(t)

	aliceSess, err := p.aliceCtx.Open(p.aliceApp, p.sendToBob, p.mtu, p.bobCtx.StaticPublicKey(), "alice-session", []byte("alice-identity"))
	require.NoError(t, err)
	p.aliceSess = aliceSess

	errs := p.pump(t)
	require.Empty(t, errs, "greenfield handshake should complete with no faults")

	require.NotNil(t, p.bobSess, "bob should have a session after X3")
	require.True(t, p.aliceSess.Established(), "alice's session should be established")
	require.True(t, p.bobSess.Established(), "bob's session should be established")

	// Drive the final C2 leg: bob isn't fully into S2 until he processes
	// alice's ack, so pump again in case anything is still outstanding.
	require.Empty(t, p.pump(t))

	var bobGotPing bool
	require.NoError(t, p.aliceCtx.Send(p.aliceSess, []byte("ping"), p.sendToBob, p.mtu))
	for len(p.toBob) > 0 {
		pkt := p.toBob[0]
		p.toBob = p.toBob[1:]
		result, _, plain, err := p.bobCtx.Receive(p.bobApp, p.sendToAlice, p.mtu, p.sendForBob, "alice:1", pkt)
		require.NoError(t, err)
		if result == zssp.ResultData {
			require.Equal(t, "ping", string(plain))
			bobGotPing = true
		}
	}
	require.True(t, bobGotPing, "bob should have received alice's data packet")

	var aliceGotPong bool
	require.NoError(t, p.bobCtx.Send(p.bobSess, []byte("pong"), p.sendToAlice, p.mtu))
	for len(p.toAlice) > 0 {
		pkt := p.toAlice[0]
		p.toAlice = p.toAlice[1:]
		result, _, plain, err := p.aliceCtx.Receive(p.aliceApp, p.sendToBob, p.mtu, p.sendForAlice, "bob:1", pkt)
		require.NoError(t, err)
		if result == zssp.ResultData {
			require.Equal(t, "pong", string(plain))
			aliceGotPong = true
		}
	}
	require.True(t, aliceGotPong, "alice should have received bob's data packet")
}

func TestRatchetPersistedAcrossFreshContexts(t *testing.T) {
	aliceStore := newMemStore()
	bobStore := newMemStore()
	suite := zssp.DefaultSuite()

	aliceStatic, err := suite.GenerateKeyPair(rand.Reader)
	require.NoError(t, err)
	bobStatic, err := suite.GenerateKeyPair(rand.Reader)
	require.NoError(t, err)

	runHandshake := func() {
		aliceCtx, err := zssp.New(suite, aliceStatic, zssp.DefaultSettings())
		require.NoError(t, err)
		bobCtx, err := zssp.New(suite, bobStatic, zssp.DefaultSettings())
		require.NoError(t, err)

		p := &peers{
			suite:    suite,
			aliceCtx: aliceCtx,
			bobCtx:   bobCtx,
			aliceApp: &testApp{store: aliceStore, sessionData: "alice-session"},
			bobApp:   &testApp{store: bobStore, sessionData: "bob-session"},
			mtu:      2048,
		}

		aliceSess, err := p.aliceCtx.Open(p.aliceApp, p.sendToBob, p.mtu, p.bobCtx.StaticPublicKey(), "alice-session", []byte("id"))
		require.NoError(t, err)
		p.aliceSess = aliceSess

		errs := p.pump(t)
		require.Empty(t, errs)
		require.True(t, p.aliceSess.Established())
		require.NotNil(t, p.bobSess)
		require.True(t, p.bobSess.Established())
	}

	// First handshake: neither side has a ratchet yet (Empty baseline).
	runHandshake()

	alicePair, err := aliceStore.restoreByIdentity(bobStatic.PublicKey().Bytes())
	require.NoError(t, err)
	require.True(t, alicePair.Current.IsNonEmpty(), "alice should have derived a real ratchet after the first handshake")

	bobPair, err := bobStore.restoreByIdentity(aliceStatic.PublicKey().Bytes())
	require.NoError(t, err)
	require.True(t, bobPair.Current.IsNonEmpty(), "bob should have derived a real ratchet after the first handshake")

	firstChainLen := alicePair.Current.ChainLen()

	// Second handshake over fresh Contexts (simulating a process restart):
	// both sides should advance the ratchet chain rather than starting
	// over from Empty.
	runHandshake()

	alicePair2, err := aliceStore.restoreByIdentity(bobStatic.PublicKey().Bytes())
	require.NoError(t, err)
	require.True(t, alicePair2.Current.ChainLen() > firstChainLen, "a second handshake should extend the ratchet chain, not restart it")
}

// TestRekeySwitchoverContinuesDecrypting drives a full Noise-KK rekey
// (K1/K2/C1/C2) through Context.Service and Context.Receive and checks
// that both sides keep decrypting each other's data under the new key
// generation afterward.
func TestRekeySwitchoverContinuesDecrypting(t *testing.T) {
	p := newPeers(t)

	aliceSess, err := p.aliceCtx.Open(p.aliceApp, p.sendToBob, p.mtu, p.bobCtx.StaticPublicKey(), "alice-session", []byte("alice-identity"))
	require.NoError(t, err)
	p.aliceSess = aliceSess

	require.Empty(t, p.pump(t))
	require.Empty(t, p.pump(t), "drain the trailing C2 ack the same way the greenfield handshake does")
	require.True(t, p.aliceSess.Established())
	require.True(t, p.bobSess.Established())

	// Push alice's clock out to her session's rekey timeout so Service
	// initiates the Noise-KK rekey (S2 -> R1, section 4.5).
	p.aliceApp.clock = p.aliceSess.TimeoutDeadline()
	p.aliceCtx.Service(p.aliceApp, p.sendForAlice)
	require.NotEmpty(t, p.toBob, "a timed-out established session should emit a rekey-init (K1)")

	errs := p.pump(t)
	require.Empty(t, errs, "the Noise-KK rekey cascade (K1/K2/C1/C2) should complete with no faults")
	require.True(t, p.aliceSess.Established())
	require.True(t, p.bobSess.Established())

	var bobGotPing bool
	require.NoError(t, p.aliceCtx.Send(p.aliceSess, []byte("post-rekey ping"), p.sendToBob, p.mtu))
	for len(p.toBob) > 0 {
		pkt := p.toBob[0]
		p.toBob = p.toBob[1:]
		result, _, plain, err := p.bobCtx.Receive(p.bobApp, p.sendToAlice, p.mtu, p.sendForBob, "alice:1", pkt)
		require.NoError(t, err)
		if result == zssp.ResultData {
			require.Equal(t, "post-rekey ping", string(plain))
			bobGotPing = true
		}
	}
	require.True(t, bobGotPing, "bob should still decrypt alice's data under the post-rekey key generation")

	var aliceGotPong bool
	require.NoError(t, p.bobCtx.Send(p.bobSess, []byte("post-rekey pong"), p.sendToAlice, p.mtu))
	for len(p.toAlice) > 0 {
		pkt := p.toAlice[0]
		p.toAlice = p.toAlice[1:]
		result, _, plain, err := p.aliceCtx.Receive(p.aliceApp, p.sendToBob, p.mtu, p.sendForAlice, "bob:1", pkt)
		require.NoError(t, err)
		if result == zssp.ResultData {
			require.Equal(t, "post-rekey pong", string(plain))
			aliceGotPong = true
		}
	}
	require.True(t, aliceGotPong, "alice should still decrypt bob's data under the post-rekey key generation")
}
