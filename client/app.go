package client

import (
	"time"

	"github.com/sirupsen/logrus"

	"zssp"
	"zssp/protocol/ratchet"
	"zssp/storage/redisratchet"
)

// clientApp implements zssp.ApplicationLayer for a client that only ever
// initiates sessions to one fixed relay; it never accepts incoming X1
// traffic of its own.
type clientApp struct {
	store       *redisratchet.Store
	sessionData string
	logger      *logrus.Logger
}

func (a *clientApp) HelloRequiresRecognizedRatchet() bool { return false }
func (a *clientApp) InitiatorDisallowsDowngrade() bool     { return false }

func (a *clientApp) CheckAcceptSession(remote zssp.PublicKey, identity []byte) zssp.AcceptAction {
	return zssp.AcceptAction{SilentlyReject: true}
}

func (a *clientApp) RestoreByFingerprint(fp [32]byte) (ratchet.State, error) {
	return a.store.RestoreByFingerprint(fp)
}

func (a *clientApp) RestoreByIdentity(remote zssp.PublicKey, sessionData any) (ratchet.Pair, error) {
	return a.store.RestoreByIdentity(remote.Bytes(), sessionData)
}

func (a *clientApp) SaveRatchetState(remote zssp.PublicKey, sessionData any, update ratchet.Update) error {
	return a.store.Save(remote.Bytes(), sessionData, update)
}

func (a *clientApp) Time() int64 { return time.Now().UnixMilli() }

func (a *clientApp) EventLog(event zssp.LogEvent) {
	a.logger.Debugf("%T", event)
}

func (a *clientApp) IncomingSession() zssp.IncomingSessionAction { return zssp.Drop }
