package events

import (
	"errors"
	"net"
	"sync"

	"github.com/rs/zerolog/log"
)

// ConnState is the externally visible connection status of the scoreboard
// feed.
type ConnState struct {
	Connected  bool   `json:"connected"`
	RemoteAddr string `json:"remoteAddr"`
	Error      string `json:"error"`
}

// Server accepts FinishLynx scoreboard connections and runs the
// frame/decode/reconcile pipeline per connection. One active connection is
// the norm, but a reconnecting device simply starts a fresh session; the
// old one is torn down when its read fails.
type Server struct {
	addr  string
	dec   *Decoder
	rec   *Reconciler
	debug int

	mu    sync.Mutex
	ln    net.Listener
	state ConnState
	conns map[net.Conn]struct{}
}

func NewServer(addr string, dec *Decoder, rec *Reconciler, debug int) *Server {
	return &Server{
		addr:  addr,
		dec:   dec,
		rec:   rec,
		debug: debug,
		conns: map[net.Conn]struct{}{},
	}
}

// Addr returns the bound listen address, or "" before Serve has started.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Status returns a snapshot of the connection state.
func (s *Server) Status() ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Server) setState(state ConnState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Serve listens for scoreboard connections and blocks until Stop.
func (s *Server) Serve() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.setState(ConnState{Error: err.Error()})
		return err
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	log.Info().Str("addr", s.addr).Msg("scoreboard server listening")

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			log.Err(err).Msg("tcp accept error")
			continue
		}

		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()
		go s.handleConn(conn)
	}
}

// Stop closes the listener and any open connections.
func (s *Server) Stop() {
	s.mu.Lock()
	if s.ln != nil {
		s.ln.Close()
	}
	for conn := range s.conns {
		conn.Close()
	}
	s.conns = map[net.Conn]struct{}{}
	s.mu.Unlock()
}

func (s *Server) handleConn(conn net.Conn) {
	remote := conn.RemoteAddr().String()
	s.setState(ConnState{Connected: true, RemoteAddr: remote})
	log.Info().Str("remote", remote).Msg("scoreboard connected")

	defer func() {
		conn.Close()
		s.mu.Lock()
		delete(s.conns, conn)
		// only reset the published state if it is still ours; a
		// replacement connection may have set its own already
		if s.state.RemoteAddr == remote {
			s.state = ConnState{}
		}
		s.mu.Unlock()
		log.Info().Str("remote", remote).Msg("scoreboard disconnected")
	}()

	var fa FrameAssembler
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		if s.debug > 0 {
			log.Info().Int("bytes", n).Msg("scoreboard packet rx")
		}
		msg, complete := fa.Append(buf[:n])
		if !complete {
			continue
		}
		s.handleMessage(msg)
	}
}

// handleMessage decodes and reconciles one framed message. Decode
// failures drop the message and keep the session alive.
func (s *Server) handleMessage(msg string) {
	if s.debug > 2 {
		log.Info().Str("msg", msg).Msg("scoreboard message")
	}
	batch, err := s.dec.Decode(msg)
	if err != nil {
		log.Warn().Err(err).Int("len", len(msg)).Msg("scoreboard message dropped")
		return
	}
	s.rec.Apply(batch)
}
