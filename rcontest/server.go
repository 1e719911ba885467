// Copyright 2024 Matt Schultz <schultz@sent.com>. All rights reserved.
// Use of this source code is governed by an ISC license that can be found in the LICENSE file.

// Package rcontest provides an in-process RCON server for exercising clients
// in tests, in the spirit of [net/http/httptest]. A server listens on a
// loopback interface, answers the authentication handshake against a
// configured password, and delegates command packets to a pluggable handler.
// It is test infrastructure, not a server implementation for production use.
package rcontest

import (
	"fmt"
	"net"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/schultz-is/rconsh"
)

// Handler produces the response packets a server sends for one command
// request packet. Returning no packets makes the server stay silent, which
// exercises a client's read-deadline fallback.
type Handler func(req rcon.Packet) []rcon.Packet

// EchoHandler is the default [Handler]. It answers a command with one
// response packet echoing the command body, followed by an empty-body
// terminator packet. An empty command gets only the terminator.
func EchoHandler(req rcon.Packet) []rcon.Packet {
	if req.EmptyBody() {
		return []rcon.Packet{
			{ID: req.ID, Kind: rcon.KindResponse},
		}
	}
	return []rcon.Packet{
		{ID: req.ID, Kind: rcon.KindResponse, Body: []byte(req.Text)},
		{ID: req.ID, Kind: rcon.KindResponse},
	}
}

// ServerConfig contains settings to control [Server] instances.
type ServerConfig struct {
	// Password is the password login packets are checked against.
	Password string

	// AcceptAll short-circuits the password check; every login succeeds.
	AcceptAll bool

	// Handler produces the response packets for each command request on an
	// authenticated connection. A nil value selects [EchoHandler].
	Handler Handler

	// Logger receives log records from the server. A nil value disables
	// logging.
	Logger *zerolog.Logger
}

// Server is an RCON server listening on a loopback interface. Each accepted
// connection is served on its own goroutine and tracks its authentication
// state independently: logins are answered with an empty packet echoing the
// request ID on success and with [rcon.AuthFailureID] on a wrong password,
// and commands sent before a successful login are answered with
// [rcon.AuthFailureID] as a real server would.
type Server struct {
	listener  net.Listener
	password  string
	acceptAll bool
	handler   Handler
	logger    zerolog.Logger

	group errgroup.Group

	mu     sync.Mutex
	conns  map[net.Conn]struct{}
	closed bool
}

// NewServer starts a [Server] listening on an ephemeral loopback port,
// configured by the provided config. Callers must Close it when finished.
func NewServer(config ServerConfig) (*Server, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("rcontest: listen: %w", err)
	}

	handler := config.Handler
	if handler == nil {
		handler = EchoHandler
	}

	logger := zerolog.Nop()
	if config.Logger != nil {
		logger = *config.Logger
	}

	s := &Server{
		listener:  listener,
		password:  config.Password,
		acceptAll: config.AcceptAll,
		handler:   handler,
		logger:    logger.With().Str("addr", listener.Addr().String()).Logger(),
		conns:     make(map[net.Conn]struct{}),
	}
	s.group.Go(s.acceptLoop)

	s.logger.Debug().Msg("server listening")
	return s, nil
}

// Addr returns the server's listen address in host:port form, suitable for
// dialing.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Close shuts the server down: the listener stops accepting, open client
// connections are closed, and Close blocks until every serving goroutine has
// returned.
func (s *Server) Close() error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		_ = s.listener.Close()
		for conn := range s.conns {
			_ = conn.Close()
		}
	}
	s.mu.Unlock()

	return s.group.Wait()
}

func (s *Server) acceptLoop() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.isClosed() {
				return nil
			}
			return fmt.Errorf("rcontest: accept: %w", err)
		}

		if !s.track(conn) {
			_ = conn.Close()
			return nil
		}
		s.group.Go(func() error {
			defer s.untrack(conn)
			s.serve(conn)
			return nil
		})
	}
}

// serve answers packets on one client connection until the client goes away
// or sends something unframeable.
func (s *Server) serve(conn net.Conn) {
	defer func() { _ = conn.Close() }()

	logger := s.logger.With().Str("client", conn.RemoteAddr().String()).Logger()
	logger.Debug().Msg("client connected")

	authed := false
	for {
		var req rcon.Packet
		_, err := req.ReadFrom(conn)
		if err != nil {
			logger.Debug().Err(err).Msg("client read ended")
			return
		}
		logger.Debug().Int32("id", req.ID).Stringer("kind", req.Kind).Str("body", req.Text).Msg("request received")

		var resps []rcon.Packet
		switch req.Kind {
		case rcon.KindLogin:
			if s.acceptAll || req.Text == s.password {
				authed = true
				resps = []rcon.Packet{
					{ID: req.ID, Kind: rcon.KindCommand},
				}
			} else {
				authed = false
				resps = []rcon.Packet{
					{ID: rcon.AuthFailureID, Kind: rcon.KindCommand},
				}
			}

		case rcon.KindCommand:
			if !authed {
				resps = []rcon.Packet{
					{ID: rcon.AuthFailureID, Kind: rcon.KindCommand},
				}
			} else {
				resps = s.handler(req)
			}

		default:
			// Tolerate unknown kinds the way the codec does: acknowledge
			// with an empty response rather than dropping the connection.
			resps = []rcon.Packet{
				{ID: req.ID, Kind: rcon.KindResponse},
			}
		}

		for _, resp := range resps {
			_, err = resp.WriteTo(conn)
			if err != nil {
				logger.Debug().Err(err).Msg("client write failed")
				return
			}
		}
	}
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.conns, conn)
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.closed
}
