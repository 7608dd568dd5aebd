// Package client implements a gocui terminal chat client that opens a
// single ZSSP session to a well-known relay (cmd/server) over a real
// net.UDPConn and exchanges Data packets as typed lines.
package client

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/jroimartin/gocui"
	"github.com/sirupsen/logrus"

	"zssp"
	"zssp/storage/redisratchet"
)

// ChatApp bundles the UDP socket, the ZSSP Context and Session, and the
// gocui views displaying the conversation.
type ChatApp struct {
	Gui *gocui.Gui

	userID string
	conn   *net.UDPConn
	peer   *net.UDPAddr
	mtu    int
	logger *logrus.Logger

	suite    zssp.Suite
	zctx     *zssp.Context
	app      *clientApp
	sess     *zssp.Session
	peerKey  zssp.PublicKey

	messageLock sync.Mutex
	messages    []string

	stop chan struct{}
}

// NewChatApp constructs a ChatApp ready to Connect and InitGui.
func NewChatApp(userID string, conn *net.UDPConn, peer *net.UDPAddr, peerKey zssp.PublicKey, suite zssp.Suite, staticSecret zssp.KeyPair, settings zssp.Settings, store *redisratchet.Store, logger *logrus.Logger) (*ChatApp, error) {
	zctx, err := zssp.New(suite, staticSecret, settings)
	if err != nil {
		return nil, fmt.Errorf("client: constructing context: %w", err)
	}
	app := &clientApp{store: store, sessionData: userID, logger: logger}

	return &ChatApp{
		userID: userID,
		conn:   conn,
		peer:   peer,
		mtu:    1400,
		logger: logger,
		suite:  suite,
		zctx:   zctx,
		app:    app,
		peerKey: peerKey,
		stop:   make(chan struct{}),
	}, nil
}

// send transmits raw bytes to the relay over the UDP socket.
func (app *ChatApp) send(b []byte) bool {
	_, err := app.conn.WriteToUDP(b, app.peer)
	return err == nil
}

// Connect opens the ZSSP session (sends X1) and starts the background
// read loop that pumps incoming datagrams through the Context and
// displays whatever plaintext comes back.
func (app *ChatApp) Connect() error {
	sess, err := app.zctx.Open(app.app, app.send, app.mtu, app.peerKey, app.userID, []byte(app.userID))
	if err != nil {
		return fmt.Errorf("client: opening session: %w", err)
	}
	app.sess = sess

	go app.readLoop()
	go app.serviceLoop()
	return nil
}

func (app *ChatApp) sendForSession(*zssp.Session) (func([]byte) bool, int) {
	return app.send, app.mtu
}

func (app *ChatApp) readLoop() {
	buf := make([]byte, 65536)
	for {
		select {
		case <-app.stop:
			return
		default:
		}
		app.conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
		n, _, err := app.conn.ReadFromUDP(buf)
		if err != nil {
			continue
		}
		pkt := append([]byte(nil), buf[:n]...)
		result, sess, plain, err := app.zctx.Receive(app.app, app.send, app.mtu, app.sendForSession, "relay", pkt)
		if sess != nil {
			app.sess = sess
		}
		if err != nil {
			app.logger.WithError(err).Debug("receive fault")
			continue
		}
		if result == zssp.ResultData {
			app.appendMessage(fmt.Sprintf("relay: %s", string(plain)))
		}
		if result == zssp.ResultControl && sess != nil && sess.Established() {
			app.appendMessage("-- session established --")
		}
	}
}

func (app *ChatApp) serviceLoop() {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-app.stop:
			return
		case <-ticker.C:
			app.zctx.Service(app.app, app.sendForSession)
		}
	}
}

// SendLine encrypts and transmits one line of chat text over the
// established session.
func (app *ChatApp) SendLine(line string) error {
	if app.sess == nil {
		return fmt.Errorf("client: no session yet")
	}
	if err := app.zctx.Send(app.sess, []byte(line), app.send, app.mtu); err != nil {
		return fmt.Errorf("client: send: %w", err)
	}
	app.appendMessage(fmt.Sprintf("%s: %s", app.userID, line))
	return nil
}

func (app *ChatApp) appendMessage(msg string) {
	app.messageLock.Lock()
	app.messages = append(app.messages, msg)
	app.messageLock.Unlock()
	if app.Gui != nil {
		app.Gui.Update(func(g *gocui.Gui) error {
			return app.redrawMessages(g)
		})
	}
}

// Close stops the background loops and the UDP socket.
func (app *ChatApp) Close() {
	close(app.stop)
	app.conn.Close()
}
