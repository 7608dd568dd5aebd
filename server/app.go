package server

import (
	"sync"
	"time"

	"zssp"
	"zssp/protocol/ratchet"
)

// serverApp implements zssp.ApplicationLayer for a relay that accepts
// every incoming session and persists ratchet state through the shared
// Redis-backed store. The responder never knows a peer's address ahead
// of time, so currentAddr is set by handlePacket immediately before each
// synchronous Context.Receive call and read back out of
// CheckAcceptSession; it's guarded by a mutex because Service's timer
// loop runs on its own goroutine and also drives EventLog.
type serverApp struct {
	srv *Server

	mu          sync.Mutex
	currentAddr string
}

func (a *serverApp) setCurrentAddr(addr string) {
	a.mu.Lock()
	a.currentAddr = addr
	a.mu.Unlock()
}

func (a *serverApp) getCurrentAddr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentAddr
}

func (a *serverApp) HelloRequiresRecognizedRatchet() bool { return false }
func (a *serverApp) InitiatorDisallowsDowngrade() bool     { return false }

func (a *serverApp) CheckAcceptSession(remote zssp.PublicKey, identity []byte) zssp.AcceptAction {
	return zssp.AcceptAction{Accept: &zssp.AcceptWith{SessionData: a.getCurrentAddr()}}
}

func (a *serverApp) RestoreByFingerprint(fp [32]byte) (ratchet.State, error) {
	return a.srv.store.RestoreByFingerprint(fp)
}

func (a *serverApp) RestoreByIdentity(remote zssp.PublicKey, sessionData any) (ratchet.Pair, error) {
	return a.srv.store.RestoreByIdentity(remote.Bytes(), sessionData)
}

func (a *serverApp) SaveRatchetState(remote zssp.PublicKey, sessionData any, update ratchet.Update) error {
	return a.srv.store.Save(remote.Bytes(), sessionData, update)
}

func (a *serverApp) Time() int64 { return time.Now().UnixMilli() }

func (a *serverApp) EventLog(event zssp.LogEvent) {
	addr := a.getCurrentAddr()
	a.srv.logger.WithField("addr", addr).Debugf("%T", event)
	a.srv.broadcastEvent(event, addr)
}

func (a *serverApp) IncomingSession() zssp.IncomingSessionAction { return zssp.Allow }
