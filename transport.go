// Copyright 2024 Matt Schultz <schultz@sent.com>. All rights reserved.
// Use of this source code is governed by an ISC license that can be found in the LICENSE file.

package rcon

import (
	"errors"
	"fmt"
	"io"
	"net"
	"time"
)

// DefaultTimeout is the default limit on the time a transport spends inside a
// single read or write call. The value is short so that a receive loop
// draining a multi-packet response is bounded by silence on the wire rather
// than blocking forever, yet long enough for a legitimate response frame to
// arrive between reads.
const DefaultTimeout = 1 * time.Second

// DefaultDialTimeout is the limit on the time [DialTransport] spends
// establishing the TCP connection.
const DefaultDialTimeout = 5 * time.Second

// Transport is a dumb byte pipe over a single network connection. It knows
// nothing about packet boundaries; its sole responsibility is deadline
// discipline, arming a fresh read or write deadline before every call so
// that no socket operation can block indefinitely. While the RCON protocol
// specifies transport over TCP, anything satisfying the [net.Conn] interface
// works, which permits TLS tunnels, Unix sockets, and in-process pipes.
//
// A transport is owned by exactly one [Session] and is not safe for
// concurrent use.
type Transport struct {
	// conn is the underlying connection bytes are sent and received over.
	conn net.Conn

	// timeout bounds each individual read and write call.
	timeout time.Duration
}

// NewTransport returns a [Transport] that uses conn as its byte stream. A
// timeout of zero or below selects [DefaultTimeout].
//
// Once a conn is provided to a NewTransport call, the conn should not be
// used outside of the transport in order to ensure reliable framing.
func NewTransport(conn net.Conn, timeout time.Duration) *Transport {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Transport{
		conn:    conn,
		timeout: timeout,
	}
}

// DialTransport establishes a TCP connection to addr and returns a
// [Transport] over it. Dial failures are wrapped in [ErrConnection].
func DialTransport(addr string, timeout time.Duration) (*Transport, error) {
	conn, err := net.DialTimeout("tcp", addr, DefaultDialTimeout)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrConnection, addr, err)
	}

	if tc, ok := conn.(*net.TCPConn); ok {
		// Command traffic is small and latency sensitive.
		_ = tc.SetNoDelay(true)
		_ = tc.SetKeepAlive(true)
	}

	return NewTransport(conn, timeout), nil
}

// Read reads up to len(p) bytes from the connection into p, waiting at most
// the transport's timeout. This method satisfies the [io.Reader] interface so
// that [Packet.ReadFrom] can frame packets directly off the transport.
//
// Errors from the underlying connection are returned unmodified: the caller
// distinguishes a benign deadline expiry acting as an end-of-response marker
// from a mid-frame failure, and only the caller knows which it is.
func (t *Transport) Read(p []byte) (int, error) {
	err := t.conn.SetReadDeadline(time.Now().Add(t.timeout))
	if err != nil {
		return 0, err
	}
	return t.conn.Read(p)
}

// Write writes all of p to the connection, waiting at most the transport's
// timeout. This method satisfies the [io.Writer] interface so that
// [Packet.WriteTo] can encode directly onto the transport. Any failure,
// including a deadline expiry, is wrapped in [ErrConnection]; unlike reads,
// a write that cannot complete has no benign interpretation.
func (t *Transport) Write(p []byte) (int, error) {
	err := t.conn.SetWriteDeadline(time.Now().Add(t.timeout))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrConnection, err)
	}

	n, err := t.conn.Write(p)
	if err != nil {
		return n, fmt.Errorf("%w: write: %v", ErrConnection, err)
	}
	return n, nil
}

// ReadChunk performs one bounded read and returns whatever bytes arrived, up
// to one maximum-size frame plus its size prefix. A deadline expiry or a
// clean end of stream before any byte arrives is not a failure: ReadChunk
// returns an empty chunk, meaning the server has nothing more to say right
// now. Every other failure is wrapped in [ErrConnection].
//
// Chunks are finite per call and are not restartable: bytes returned by one
// call have been consumed from the stream. ReadChunk makes no attempt to
// align chunks with frame boundaries; pair it with [Packet.UnmarshalBinary]
// only when the peer is known to write exactly one frame at a time.
func (t *Transport) ReadChunk() ([]byte, error) {
	buf := make([]byte, MaxPacketSize+4)
	n, err := t.Read(buf)
	if n > 0 {
		return buf[:n], nil
	}
	if err == nil || isTimeout(err) || errors.Is(err, io.EOF) {
		return nil, nil
	}
	return nil, fmt.Errorf("%w: read: %v", ErrConnection, err)
}

// Close closes the underlying connection. Any blocked read or write is
// unblocked with an error.
func (t *Transport) Close() error {
	return t.conn.Close()
}

// RemoteAddr returns the remote address of the underlying connection.
func (t *Transport) RemoteAddr() net.Addr {
	return t.conn.RemoteAddr()
}

// isTimeout reports whether err is a deadline expiry rather than a hard
// connection failure.
func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
