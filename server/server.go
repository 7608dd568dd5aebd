// Package server runs a ZSSP responder endpoint over a UDP socket,
// fronted by a gorilla/mux admin API and a gorilla/websocket event feed,
// backed by a Redis-persisted ratchet store.
package server

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"zssp"
	"zssp/protocol/session"
	"zssp/storage/redisratchet"
)

// Server owns the UDP socket, the ZSSP Context dispatching packets on
// it, and the admin HTTP surface used to observe it.
type Server struct {
	conn   *net.UDPConn
	zctx   *zssp.Context
	store  *redisratchet.Store
	logger *logrus.Logger
	mtu    int

	app *serverApp

	mu           sync.Mutex
	sessionAddrs map[*zssp.Session]*net.UDPAddr

	upgrader websocket.Upgrader
	clientsMu sync.Mutex
	clients   map[*websocket.Conn]chan []byte
}

// New binds udpAddr and constructs a Server ready to run once Serve is
// called. mtu is the fragmentation threshold for outgoing packets; the
// ReadFromUDP buffer is a fixed 64 KiB.
func New(udpAddr string, suite zssp.Suite, staticSecret zssp.KeyPair, settings zssp.Settings, store *redisratchet.Store, logger *logrus.Logger, mtu int) (*Server, error) {
	addr, err := net.ResolveUDPAddr("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("server: resolving %q: %w", udpAddr, err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("server: listening on %q: %w", udpAddr, err)
	}
	zctx, err := zssp.New(suite, staticSecret, settings)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("server: constructing context: %w", err)
	}

	s := &Server{
		conn:         conn,
		zctx:         zctx,
		store:        store,
		logger:       logger,
		mtu:          mtu,
		sessionAddrs: make(map[*zssp.Session]*net.UDPAddr),
		upgrader:     websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		clients:      make(map[*websocket.Conn]chan []byte),
	}
	s.app = &serverApp{srv: s}
	return s, nil
}

// StaticPublicKey returns the context's static public key, for an
// operator to hand out to clients.
func (s *Server) StaticPublicKey() zssp.PublicKey { return s.zctx.StaticPublicKey() }

// Router builds the gorilla/mux admin API: /health, /sessions, /events.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/sessions", s.handleSessions).Methods(http.MethodGet)
	r.HandleFunc("/events", s.handleEvents).Methods(http.MethodGet)
	return r
}

// Serve runs the UDP read loop and the session timer loop until stop is
// closed. A failed read, including one on a closed conn, is logged and
// the read loop keeps going until it sees stop closed.
func (s *Server) Serve(stop <-chan struct{}) {
	go s.serviceLoop(stop)
	s.readLoop(stop)
}

func (s *Server) readLoop(stop <-chan struct{}) {
	buf := make([]byte, 65536)
	for {
		select {
		case <-stop:
			return
		default:
		}
		n, addr, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-stop:
				return
			default:
				s.logger.WithError(err).Warn("udp read failed")
				continue
			}
		}
		pkt := append([]byte(nil), buf[:n]...)
		s.handlePacket(addr, pkt)
	}
}

func (s *Server) serviceLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.zctx.Service(s.app, s.sendForSession)
		}
	}
}

// handlePacket feeds one datagram through the ZSSP Context and acts on
// the result: established sessions' data payloads are echoed back so a
// cmd/client instance has something to display.
func (s *Server) handlePacket(addr *net.UDPAddr, pkt []byte) {
	s.app.setCurrentAddr(addr.String())
	sendUnassoc := s.senderTo(addr)
	result, sess, plain, err := s.zctx.Receive(s.app, sendUnassoc, s.mtu, s.sendForSession, addr.String(), pkt)
	if sess != nil {
		s.mu.Lock()
		s.sessionAddrs[sess] = addr
		s.mu.Unlock()
	}
	if err != nil {
		s.logger.WithError(err).WithField("addr", addr).Debug("receive fault")
		return
	}
	if result == zssp.ResultData {
		s.logger.WithField("addr", addr).Infof("data: %q", plain)
		if sendErr := s.zctx.Send(sess, plain, sendUnassoc, s.mtu); sendErr != nil {
			s.logger.WithError(sendErr).WithField("addr", addr).Warn("echo failed")
		}
	}
}

func (s *Server) sendForSession(sess *zssp.Session) (func([]byte) bool, int) {
	s.mu.Lock()
	addr := s.sessionAddrs[sess]
	s.mu.Unlock()
	if addr == nil {
		return func([]byte) bool { return false }, s.mtu
	}
	return s.senderTo(addr), s.mtu
}

func (s *Server) senderTo(addr *net.UDPAddr) func([]byte) bool {
	return func(b []byte) bool {
		_, err := s.conn.WriteToUDP(b, addr)
		return err == nil
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// sessionView is one row of the /sessions admin listing.
type sessionView struct {
	Addr         string `json:"addr"`
	Phase        string `json:"phase"`
	Established  bool   `json:"established"`
	WasResponder bool   `json:"was_responder"`
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	views := make([]sessionView, 0, len(s.sessionAddrs))
	for sess, addr := range s.sessionAddrs {
		views = append(views, sessionView{
			Addr:         addr.String(),
			Phase:        phaseName(sess.Phase()),
			Established:  sess.Established(),
			WasResponder: sess.WasResponder,
		})
	}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(views)
}

func phaseName(p session.Phase) string {
	switch p {
	case session.PhaseNull:
		return "null"
	case session.PhaseA1:
		return "a1"
	case session.PhaseA3:
		return "a3"
	case session.PhaseS1:
		return "s1"
	case session.PhaseS2:
		return "s2"
	case session.PhaseR1:
		return "r1"
	case session.PhaseR2:
		return "r2"
	default:
		return "unknown"
	}
}

// handleEvents upgrades to a websocket and streams every subsequent
// EventLog call as a JSON line, mirroring the connect/register/
// HandleConnections fan-out but one-directional (admin dashboard only
// reads).
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Error("websocket upgrade failed")
		return
	}
	defer ws.Close()

	ch := make(chan []byte, 64)
	s.clientsMu.Lock()
	s.clients[ws] = ch
	s.clientsMu.Unlock()
	defer func() {
		s.clientsMu.Lock()
		delete(s.clients, ws)
		s.clientsMu.Unlock()
	}()

	for msg := range ch {
		if err := ws.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (s *Server) broadcastEvent(event zssp.LogEvent, addr string) {
	payload, err := json.Marshal(struct {
		Type  string      `json:"type"`
		Addr  string      `json:"addr"`
		Event zssp.LogEvent `json:"event"`
	}{Type: fmt.Sprintf("%T", event), Addr: addr, Event: event})
	if err != nil {
		return
	}

	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	for ws, ch := range s.clients {
		select {
		case ch <- payload:
		default:
			s.logger.WithField("ws", ws.RemoteAddr()).Warn("event client too slow, dropping message")
		}
	}
}

// Close tears down the UDP socket and every connected admin websocket.
func (s *Server) Close() error {
	s.clientsMu.Lock()
	for ws, ch := range s.clients {
		close(ch)
		ws.Close()
	}
	s.clientsMu.Unlock()
	return s.conn.Close()
}
