package rcon

import "errors"

// Sentinel errors returned by the packet codec, transport, and session. They
// are wrapped with additional detail at the point of failure; match them with
// [errors.Is].
var (
	// ErrNonASCIIBody indicates an attempt to encode a packet whose body
	// contains a byte outside the 7-bit ASCII range. The protocol only allows
	// ASCII bodies on the wire, so the packet is rejected before any of it is
	// sent.
	ErrNonASCIIBody = errors.New("rcon: packet body is not 7-bit ASCII")

	// ErrUndersizedPacket indicates a frame whose declared size is smaller
	// than the protocol minimum of [MinPacketSize] bytes.
	ErrUndersizedPacket = errors.New("rcon: packet smaller than protocol minimum")

	// ErrOversizedPacket indicates a frame or body that exceeds the protocol
	// maximum of [MaxPacketSize] bytes.
	ErrOversizedPacket = errors.New("rcon: packet larger than protocol maximum")

	// ErrConnection indicates an I/O failure on the underlying connection:
	// a refused or dropped connection, a failed write, or a read failure
	// other than the benign timeout the session uses as an end-of-response
	// marker. The caller decides whether to tear down and reconnect.
	ErrConnection = errors.New("rcon: connection failure")

	// ErrAuthFailed indicates an operation that requires an authenticated
	// session was attempted before authentication succeeded.
	ErrAuthFailed = errors.New("rcon: authentication required")

	// ErrProtocol indicates the server sent bytes that cannot be interpreted
	// as a well-formed frame. The in-flight command is aborted and any
	// partially collected response packets are discarded.
	ErrProtocol = errors.New("rcon: protocol violation")
)
