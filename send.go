package zssp

import (
	"errors"

	"zssp/protocol/session"
	"zssp/protocol/wire"
)

// Send encrypts payload under the session's current transport key and
// transmits it, fragmenting under mtu. MtuTooSmall is checked before
// anything is encrypted so a caller's mistake never costs a wasted AEAD
// invocation against the send counter.
func (c *Context) Send(s *Session, payload []byte, send func([]byte) bool, mtu int) error {
	if mtu < wire.MinTransportMTU {
		return SendErrMtuTooSmall
	}
	pkt, err := s.Send(payload)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrSessionExpired):
			return SendErrSessionExpired
		case errors.Is(err, session.ErrSessionNotEstablished):
			return SendErrSessionNotEstablished
		default:
			return SendErrSessionExpired
		}
	}
	if !c.sendPacket(s, send, mtu, pkt) {
		return SendErrDataTooLarge
	}
	return nil
}
