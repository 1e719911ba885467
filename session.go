// Copyright 2024 Matt Schultz <schultz@sent.com>. All rights reserved.
// Use of this source code is governed by an ISC license that can be found in the LICENSE file.

package rcon

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// loginID is the fixed packet ID used for authentication requests. The
// specific value carries no meaning; it only needs to be a stable nonzero
// value distinguishable from the [AuthFailureID] sentinel, since the server's
// verdict is read from whether it echoes this value back.
const loginID int32 = 1

// Session is an authenticated command channel to an RCON server. It owns its
// connection exclusively, sequences the packet IDs used to correlate requests
// with responses, drives the authentication handshake, and reassembles
// responses that span multiple frames. While the RCON protocol specifies
// transport over TCP, a session can be built over anything that satisfies the
// [net.Conn] interface. There are a few reasons this might be useful to a
// consumer of this package:
//  1. RCON is unencrypted by default, which means the password is written
//     over the wire in plain text. The [crypto/tls.Conn] satisfies the
//     [net.Conn] interface and can be supplied to encrypt RCON traffic
//     seamlessly, when the server is also using TLS.
//  2. In the case the RCON server and client are running on the same machine,
//     it may be useful to communicate over a Unix socket rather than a full
//     TCP socket.
//  3. Providing a [net.Conn] that the caller controls allows for logging,
//     debugging, and packet modification outside the scope of the session.
//
// A Session is synchronous and is NOT safe for concurrent use: one command
// is in flight at a time, and response frames carry no reliable ordering
// marker that would let interleaved commands be told apart. Callers needing
// concurrency must serialize access or open independent sessions.
//
// RCON does not specify any keep alive functionality, so a session may
// observe an EOF or similar error when idle for an extended period. Such
// failures are terminal; reconnecting is the caller's decision.
type Session struct {
	// id labels every log record emitted by this session, so that output
	// from independent sessions can be told apart.
	id string

	// transport is the deadline-disciplined byte pipe frames travel over.
	transport *Transport

	// lastSentID holds the ID of the most recently sent packet. It is
	// updated only after the transport accepts the full frame.
	lastSentID int32

	// nextSendID holds the ID the next command packet will carry.
	nextSendID int32

	// authenticated records whether the server has accepted credentials on
	// this connection.
	authenticated bool

	logger zerolog.Logger

	// logAuthPackets permits debug logging of outbound authentication
	// bodies. When false (the default value,) the password is scrubbed
	// before the record is written.
	logAuthPackets bool
}

// Config contains settings to control [Session] instances. The zero value is
// a usable default configuration.
type Config struct {
	// Timeout limits the time spent inside each individual read or write on
	// the connection. A value of zero selects [DefaultTimeout]. The receive
	// loop treats an expired read deadline at a frame boundary as the end of
	// a response, so this value also bounds how long a session waits for a
	// server that sends no explicit end marker.
	Timeout time.Duration

	// StartingID is the initial value for the session's packet ID sequence.
	// Any value less than one is ignored and the sequence starts at one.
	StartingID int32

	// Logger receives log records from the session. A nil value disables
	// logging. Packet traffic is logged at debug level.
	Logger *zerolog.Logger

	// LogAuthPackets is a flag that must be explicitly enabled when the
	// session is created. It allows debug logging to include outbound
	// authentication request bodies, exposing server passwords in
	// plaintext. When this field is false (the default value,) outbound
	// authentication packet bodies are replaced with a placeholder.
	//
	// WARNING: Only enable this flag if you are aware of the implications
	// and are willing to accept the risks!
	LogAuthPackets bool
}

// Connect establishes a TCP connection to addr and returns a [Session] over
// it, configured by the provided config. Dial failures are wrapped in
// [ErrConnection]. The session is not yet authenticated; call
// [Session.Authenticate] before issuing commands.
func Connect(addr string, config Config) (*Session, error) {
	t, err := DialTransport(addr, config.Timeout)
	if err != nil {
		return nil, err
	}
	return newSession(t, config), nil
}

// NewSession returns a [Session] that uses conn as its transport, configured
// by the provided config.
//
// Once a conn is provided to a NewSession call, the conn should not be used
// outside of the session in order to ensure reliable framing.
func NewSession(conn net.Conn, config Config) *Session {
	return newSession(NewTransport(conn, config.Timeout), config)
}

func newSession(t *Transport, config Config) *Session {
	startingID := config.StartingID
	if startingID < 1 {
		startingID = 1
	}

	logger := zerolog.Nop()
	if config.Logger != nil {
		logger = *config.Logger
	}

	s := &Session{
		id:             uuid.NewString(),
		transport:      t,
		nextSendID:     startingID,
		logAuthPackets: config.LogAuthPackets,
	}
	s.logger = logger.With().Str("session", s.id).Logger()

	return s
}

// Close closes the receiving session's underlying transport.
func (s *Session) Close() error {
	return s.transport.Close()
}

// Authenticate performs a single authentication attempt with the provided
// password. The verdict reports whether the server accepted the credentials;
// it is false on rejection, on a password that cannot be encoded, and when no
// response arrives before the read deadline. The error reports connection and
// protocol failures, which say nothing about the password. Authenticate never
// retries; a retry loop with a fresh password belongs to the caller.
//
// The server accepts iff at least one response packet arrived and every one
// of them echoes the login packet's ID. A response carrying [AuthFailureID]
// is the documented rejection signal, but any other mismatched ID is treated
// as a rejection too, because some server implementations echo garbage IDs
// instead of the sentinel.
//
// After a success, one harmless empty command is sent and its response
// drained. Some server variants hold a session in a half-ready state until a
// command arrives, and the extra exchange also resynchronizes variants that
// answer the login with more packets than the handshake consumes. Its
// failure is logged and does not affect the verdict.
func (s *Session) Authenticate(password string) (bool, error) {
	req, err := NewPacket(loginID, KindLogin, []byte(password))
	if err != nil {
		// A password that cannot be encoded can never authenticate. The
		// server is not contacted.
		s.logger.Debug().Err(err).Msg("password cannot be encoded")
		return false, nil
	}

	err = s.send(req)
	if err != nil {
		return false, err
	}

	resps, err := s.receive()
	if err != nil {
		return false, err
	}

	if len(resps) == 0 {
		s.logger.Debug().Msg("no authentication response before the read deadline")
		return false, nil
	}
	for _, resp := range resps {
		if resp.ID != loginID {
			s.logger.Debug().Int32("id", resp.ID).Msg("authentication rejected")
			return false, nil
		}
	}

	s.authenticated = true
	s.logger.Debug().Msg("authenticated")

	_, err = s.command("")
	if err != nil {
		s.logger.Debug().Err(err).Msg("post-auth follow-up command failed")
	}

	return true, nil
}

// SendCommand executes cmd on the server and returns the response packets in
// the order their frames arrived. Multi-frame responses are reassembled; the
// response ends at an empty-body frame, a frame carrying [AuthFailureID], or
// silence on the wire past the read deadline, whichever comes first.
//
// Commands whose encoded body would not fit in a single frame are refused
// with [ErrOversizedPacket] rather than truncated. Calling SendCommand on a
// session that has not successfully authenticated fails with [ErrAuthFailed]
// without touching the network or the ID sequence.
func (s *Session) SendCommand(cmd string) ([]Packet, error) {
	if !s.authenticated {
		return nil, fmt.Errorf("%w: authenticate before sending commands", ErrAuthFailed)
	}
	return s.command(cmd)
}

// command sends one command packet under the next sequence ID and collects
// its response. The sequence advances only after the transport accepts the
// full request frame.
func (s *Session) command(cmd string) ([]Packet, error) {
	if len(cmd) > MaxBodySize {
		return nil, fmt.Errorf("%w: command is %d bytes, limit is %d", ErrOversizedPacket, len(cmd), MaxBodySize)
	}

	req, err := NewPacket(s.nextSendID, KindCommand, []byte(cmd))
	if err != nil {
		return nil, err
	}

	err = s.send(req)
	if err != nil {
		return nil, err
	}
	s.nextSendID = nextID(req.ID)

	return s.receive()
}

// send encodes and writes a single packet. Write failures arrive here
// already wrapped in [ErrConnection] by the transport.
func (s *Session) send(p Packet) error {
	s.logPacket("sending packet", p)

	_, err := p.WriteTo(s.transport)
	if err != nil {
		return err
	}
	s.lastSentID = p.ID

	return nil
}

// receive collects the frames of one response. Packets are framed strictly
// by their declared size and appended in arrival order until a terminal
// condition: an empty-body packet, a packet carrying [AuthFailureID], or an
// expired read deadline at a frame boundary. The first two are the server's
// explicit end markers; the last is the fallback for servers that send none.
//
// A deadline that expires inside a frame is a dead connection, not a
// terminal, and fails with [ErrConnection]. A frame that violates the
// protocol's size bounds fails with [ErrProtocol] and discards any packets
// already collected; partial protocol state is not recoverable mid-command.
func (s *Session) receive() ([]Packet, error) {
	var packets []Packet

	for {
		var p Packet
		n, err := p.ReadFrom(s.transport)
		if err != nil {
			if n == 0 && (isTimeout(err) || errors.Is(err, io.EOF)) {
				break
			}
			if errors.Is(err, ErrUndersizedPacket) || errors.Is(err, ErrOversizedPacket) {
				return nil, fmt.Errorf("%w: %v", ErrProtocol, err)
			}
			return nil, fmt.Errorf("%w: read: %v", ErrConnection, err)
		}

		s.logPacket("received packet", p)
		packets = append(packets, p)

		if p.EmptyBody() || p.ID == AuthFailureID {
			break
		}
	}

	return packets, nil
}

// logPacket sends a debug record describing the provided packet to the
// session's logger. When the logger is not level set for debug records, this
// function is essentially a NOP. If the provided packet is an outbound
// authentication packet, its body and length are obfuscated to prevent
// leaking a plaintext password into logs.
func (s *Session) logPacket(logMsg string, p Packet) {
	if s.logger.GetLevel() > zerolog.DebugLevel {
		return
	}

	// Unless the session is explicitly configured to log outbound
	// authentication packets, scrub the password when applicable.
	if p.Kind == KindLogin && !s.logAuthPackets {
		p.Body = []byte{'x', 'x', 'x', 'x', 'x'}
	}

	s.logger.Debug().
		Int32("id", p.ID).
		Stringer("kind", p.Kind).
		Int("size", len(p.Body)).
		Str("body", hex.EncodeToString(p.Body)).
		Msg(logMsg)
}

// nextID advances a packet ID sequence, wrapping back to one before the
// value can overflow into the sentinel range.
func nextID(id int32) int32 {
	if id >= math.MaxInt32 {
		return 1
	}
	return id + 1
}
