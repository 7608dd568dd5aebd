package zssp

import (
	"crypto/rand"
	"encoding/binary"
	"sync"

	"zssp/protocol/challenge"
	"zssp/protocol/fragment"
	"zssp/protocol/handshake"
	"zssp/protocol/session"
	"zssp/protocol/wire"
)

// MaxUnassociatedHandshakeStates bounds the responder-side cache of
// partial handshakes (StateB2 values) awaiting X3.
const MaxUnassociatedHandshakeStates = handshake.Capacity

// MaxUnassociatedFragmentStates bounds the total number of in-progress
// fragment reassemblies tracked across every source address for packets
// that don't yet belong to a session (X1 and CHALLENGE).
const MaxUnassociatedFragmentStates = 256

// Session is a ZSSP session handle, the Zeta state machine of section
// 4.5. A Context dispatches packets to a Session by its local key id. The
// Context's session map and timer queue hold ordinary pointers to the
// Session; once the session has expired, Service drops its queue entry
// and the map entry for the key id it was created under. Key ids added
// for a rekey stay in the map.
type Session = session.Session

// Context is the top-level coordinator described in section 4.7: the RNG,
// the static keypair, the session map keyed by local key id, the session
// timer queue, the two unassociated caches, and the DoS challenge
// context.
type Context struct {
	suite    Suite
	crypto   session.Crypto
	settings Settings

	staticSecret KeyPair
	staticPublic PublicKey

	rngMu sync.Mutex

	mapMu    sync.RWMutex
	sessions map[uint32]*Session

	queueMu sync.Mutex
	queue   sessionQueue

	unassocFrag *fragment.UnassociatedCache
	handshakes  *handshake.Cache
	challenge   *challenge.Context
}

// New constructs a Context from a cryptographic Suite, a static key pair,
// and runtime Settings.
func New(suite Suite, staticSecret KeyPair, settings Settings) (*Context, error) {
	chal, err := challenge.New(suite.Hash)
	if err != nil {
		return nil, err
	}
	return &Context{
		suite:        suite,
		crypto:       sessionCrypto(suite),
		settings:     settings,
		staticSecret: staticSecret,
		staticPublic: staticSecret.PublicKey(),
		sessions:     make(map[uint32]*Session),
		unassocFrag:  fragment.NewUnassociatedCache(MaxUnassociatedFragmentStates),
		handshakes:   handshake.New(),
		challenge:    chal,
	}, nil
}

// StaticPublicKey returns the context's own static public key.
func (c *Context) StaticPublicKey() PublicKey { return c.staticPublic }

// genKid draws a fresh, currently-unused, non-zero local key id. Caller
// must hold no lock; it acquires mapMu itself.
func (c *Context) genKid() uint32 {
	c.rngMu.Lock()
	defer c.rngMu.Unlock()
	for {
		var b [4]byte
		if _, err := rand.Read(b[:]); err != nil {
			continue
		}
		kid := binary.BigEndian.Uint32(b[:])
		if kid == 0 {
			continue
		}
		c.mapMu.RLock()
		_, inUse := c.sessions[kid]
		c.mapMu.RUnlock()
		if !inUse {
			return kid
		}
	}
}

// Open begins a session as the initiator: it constructs X1, sends it
// (fragmenting if necessary) via send, and returns a strong Session
// handle parked in phase A1.
func (c *Context) Open(app ApplicationLayer, send func(fragment []byte) bool, mtu int, remoteStatic PublicKey, sessionData any, identity []byte) (*Session, error) {
	if len(identity) > wire.IdentityMaxSize {
		return nil, &OpenError{Kind: OpenErrIdentityTooLarge}
	}
	kidRecv := c.genKid()
	s, pkt, err := session.OpenA1(c.crypto, appAdapter{app}, rngReader{c}, kidRecv, sessionPublicKey{remoteStatic}, sessionData, identity)
	if err != nil {
		return nil, &OpenError{Kind: OpenErrStorage, Wrapped: err}
	}

	c.mapMu.Lock()
	c.sessions[kidRecv] = s
	c.mapMu.Unlock()
	c.enqueue(kidRecv, s)

	c.sendRaw(send, mtu, pkt.Kid, pkt.Nonce, pkt.Data, nil)
	return s, nil
}

// rngReader adapts the context's mutex-protected RNG draw into an
// io.Reader for the session package's signature.
type rngReader struct{ c *Context }

func (r rngReader) Read(p []byte) (int, error) {
	r.c.rngMu.Lock()
	defer r.c.rngMu.Unlock()
	return rand.Read(p)
}

// sendPacket fragments and transmits one outgoing wire packet, applying
// header obfuscation under the session's send-side header key.
func (c *Context) sendPacket(s *Session, send func([]byte) bool, mtu int, pkt session.Packet) bool {
	hkSend, _ := s.HeaderKeys()
	return c.sendRaw(send, mtu, pkt.Kid, pkt.Nonce, pkt.Data, &hkSend)
}

// sendRaw builds the 16-byte header, appends it to data, and fragments
// the result across send. hk, if non-nil, obfuscates the HEADER_AUTH
// window of every fragment under the given key.
func (c *Context) sendRaw(send func([]byte) bool, mtu int, kidRecv uint32, nonce [wire.AeadNonceSize]byte, data []byte, hk *[32]byte) bool {
	buf := make([]byte, wire.HeaderSize, wire.HeaderSize+len(data))
	wire.SetHeader(buf, kidRecv, nonce)
	buf = append(buf, data...)

	var obfuscator wire.HeaderObfuscator
	if hk != nil {
		obfuscator = headerObfuscator{prp: c.suite.PRP, key: *hk}
	}
	return wire.Send(send, mtu, buf, obfuscator)
}

// headerObfuscator adapts the capability PRP into wire.HeaderObfuscator
// for a fixed key.
type headerObfuscator struct {
	prp PRP
	key [32]byte
}

func (h headerObfuscator) EncryptBlock(block *[wire.HeaderAuthEnd - wire.HeaderAuthStart]byte) {
	h.prp.EncryptBlock(&h.key, block)
}
