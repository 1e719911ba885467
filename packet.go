package rcon

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"unicode/utf8"
)

// MaxPacketSize is the largest value allowed for the packet size that precedes
// binary packets. This value is outlined in the protocol.
const MaxPacketSize = 4096

// MinPacketSize is the smallest value allowed for the packet size that
// precedes binary packets: an empty body still carries the packet ID, the
// packet kind, and the two null terminator bytes.
const MinPacketSize = 10

// MaxBodySize is the largest body a single frame can legitimately carry, with
// the twelve header bytes subtracted from [MaxPacketSize]. Longer payloads
// must be split across frames, which this client does not do; it rejects them
// instead.
const MaxBodySize = MaxPacketSize - 12

// AuthFailureID is the sentinel packet ID a server echoes in place of the
// client's chosen ID when an authentication attempt is rejected.
const AuthFailureID int32 = -1

// packetOverhead is the portion of the declared packet size not occupied by
// the body: eight bytes for the packet ID and kind, two for the null
// termination of the body and packet. The size field itself is not included.
const packetOverhead = 8 + 2

// Kind indicates the purpose of a packet. The protocol reuses the numeric
// value 2 for both a client command request and a server authentication
// acknowledgement; only the direction of travel distinguishes them, so the
// two share [KindCommand] here. Wire values outside the documented set decode
// without error and keep their raw value, reporting false from [Kind.Known].
type Kind int32

const (
	// KindResponse is a server response packet carrying command output
	// (SERVERDATA_RESPONSE_VALUE).
	KindResponse Kind = 0

	// KindCommand is a client packet carrying a command to execute
	// (SERVERDATA_EXECCOMMAND), or, in a response context, the server's
	// authentication acknowledgement (SERVERDATA_AUTH_RESPONSE).
	KindCommand Kind = 2

	// KindLogin is a client authentication request whose body contains the
	// server password (SERVERDATA_AUTH).
	KindLogin Kind = 3
)

// Known reports whether k is one of the kinds documented by the protocol.
func (k Kind) Known() bool {
	switch k {
	case KindResponse, KindCommand, KindLogin:
		return true
	}
	return false
}

// String returns a short human-readable name for the kind. Unrecognized kinds
// include their raw wire value.
func (k Kind) String() string {
	switch k {
	case KindResponse:
		return "response"
	case KindCommand:
		return "command"
	case KindLogin:
		return "login"
	}
	return fmt.Sprintf("unknown (%d)", int32(k))
}

// Packet is a singular RCON protocol packet, either as a request from a
// client or a response from a server.
type Packet struct {
	// Size is the byte length of everything that follows the size field on
	// the wire: the packet ID, the kind, the body, and the two terminator
	// bytes. Packets built by [NewPacket] satisfy Size == len(Body)+10;
	// decoded packets preserve whatever size the server declared, which is
	// used only for framing and is not re-validated against the body.
	Size int32

	// ID is a field chosen by the client which can be used to correlate
	// request packets with response packets. It need not be unique. The
	// singular case where a response will not echo the request's ID is
	// authentication failure, where this field holds [AuthFailureID].
	ID int32

	// Kind indicates the purpose of the packet.
	Kind Kind

	// Body contains the raw bytes relevant to the packet kind: the server
	// password, the command to execute, or the server's response output.
	// Bodies must be 7-bit ASCII when encoding; decoded bodies may hold
	// arbitrary bytes and are kept verbatim for diagnostics.
	Body []byte

	// Text is the displayable form of the body, populated on the decode
	// path: the body interpreted as UTF-8 with trailing null padding
	// trimmed and color-code sequences stripped by [StripColors]. When the
	// body is not valid UTF-8, Text is empty and only Body is meaningful.
	Text string
}

// NewPacket constructs a Packet with its size calculated from the body. It
// returns [ErrNonASCIIBody] if the body contains a byte outside the 7-bit
// ASCII range, and [ErrOversizedPacket] if the body would not fit in a single
// frame.
func NewPacket(id int32, kind Kind, body []byte) (Packet, error) {
	if i := nonASCIIIndex(body); i >= 0 {
		return Packet{}, fmt.Errorf("%w: byte 0x%02x at offset %d", ErrNonASCIIBody, body[i], i)
	}
	if len(body) > MaxBodySize {
		return Packet{}, fmt.Errorf("%w: body is %d bytes, limit is %d", ErrOversizedPacket, len(body), MaxBodySize)
	}

	return Packet{
		Size: int32(len(body) + packetOverhead),
		ID:   id,
		Kind: kind,
		Body: body,
		Text: string(body),
	}, nil
}

// MarshalBinary encodes the receiving [Packet] into binary form and returns
// the result. This satisfies the [encoding.BinaryMarshaler] interface. The
// same body constraints as [NewPacket] apply, so hand-built packets cannot
// smuggle non-ASCII or oversized bodies onto the wire.
func (p Packet) MarshalBinary() ([]byte, error) {
	if i := nonASCIIIndex(p.Body); i >= 0 {
		return nil, fmt.Errorf("%w: byte 0x%02x at offset %d", ErrNonASCIIBody, p.Body[i], i)
	}
	if len(p.Body) > MaxBodySize {
		return nil, fmt.Errorf("%w: body is %d bytes, limit is %d", ErrOversizedPacket, len(p.Body), MaxBodySize)
	}
	packetSize := int32(len(p.Body) + packetOverhead)

	// Create an appropriately sized byte buffer and write the binary encoded
	// packet.
	b := bytes.NewBuffer(make([]byte, 0, packetSize+4))
	err := binary.Write(b, binary.LittleEndian, packetSize)
	if err != nil {
		return nil, err
	}
	err = binary.Write(b, binary.LittleEndian, p.ID)
	if err != nil {
		return nil, err
	}
	err = binary.Write(b, binary.LittleEndian, int32(p.Kind))
	if err != nil {
		return nil, err
	}
	_, err = b.Write(p.Body)
	if err != nil {
		return nil, err
	}
	_, err = b.Write([]byte{0, 0})
	if err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// WriteTo writes a binary representation of the packet to [io.Writer] w. This
// method satisfies the [io.WriterTo] interface.
func (p Packet) WriteTo(w io.Writer) (int64, error) {
	bs, err := p.MarshalBinary()
	if err != nil {
		return 0, err
	}
	n, err := w.Write(bs)

	return int64(n), err
}

// UnmarshalBinary decodes the binary encoded packet b into the receiving
// [Packet]. This satisfies the [encoding.BinaryUnmarshaler] interface.
//
// A single read from a socket can hand back a buffer padded with stale or
// zero bytes beyond the true frame boundary, so this decoder favors graceful
// degradation over strict validation: a declared size below [MinPacketSize]
// fails with [ErrUndersizedPacket] before any body bytes are consumed, but an
// out-of-range size above [MaxPacketSize] is not trusted and the body is
// clamped to [MaxBodySize] bytes rather than read past the end of the
// supplied buffer. Unknown kinds and non-UTF-8 bodies never fail the decode;
// only the displayable [Packet.Text] degrades.
func (p *Packet) UnmarshalBinary(b []byte) error {
	if len(b) < 12 {
		return fmt.Errorf("%w: %d byte buffer cannot hold a frame header", ErrUndersizedPacket, len(b))
	}

	size := int32(binary.LittleEndian.Uint32(b[0:4]))
	if size < MinPacketSize {
		return fmt.Errorf("%w: declared size %d", ErrUndersizedPacket, size)
	}

	// The body is size-9 bytes when the declared size is in range. A wild
	// size is clamped to the longest legal body instead of being trusted,
	// and never to more than the buffer actually holds.
	n := int(size) - 9
	if size > MaxPacketSize {
		n = MaxBodySize
	}
	if rest := len(b) - 12; n > rest {
		n = rest
	}

	p.Size = size
	p.ID = int32(binary.LittleEndian.Uint32(b[4:8]))
	p.Kind = Kind(int32(binary.LittleEndian.Uint32(b[8:12])))
	p.Body = make([]byte, n)
	copy(p.Body, b[12:12+n])
	p.Text = bodyText(p.Body)

	return nil
}

// ReadFrom reads one frame from [io.Reader] r into the receiving [Packet],
// framing strictly by the declared size field: the four size bytes are read
// first, then exactly that many remainder bytes, regardless of how the
// transport fragments or merges them across read calls. This method
// satisfies the [io.ReaderFrom] interface.
//
// Strict framing cannot clamp a wild size the way [Packet.UnmarshalBinary]
// does without desynchronizing the stream, so out-of-range sizes fail with
// [ErrUndersizedPacket] or [ErrOversizedPacket]. I/O errors from r are
// returned as-is along with the number of bytes consumed.
func (p *Packet) ReadFrom(r io.Reader) (int64, error) {
	n := int64(0)

	var sizeBuf [4]byte
	m, err := io.ReadFull(r, sizeBuf[:])
	n += int64(m)
	if err != nil {
		return n, err
	}

	size := int32(binary.LittleEndian.Uint32(sizeBuf[:]))
	if size < MinPacketSize {
		return n, fmt.Errorf("%w: declared size %d", ErrUndersizedPacket, size)
	}
	if size > MaxPacketSize {
		return n, fmt.Errorf("%w: declared size %d", ErrOversizedPacket, size)
	}

	rest := make([]byte, size)
	m, err = io.ReadFull(r, rest)
	n += int64(m)
	if err != nil {
		return n, err
	}

	p.Size = size
	p.ID = int32(binary.LittleEndian.Uint32(rest[0:4]))
	p.Kind = Kind(int32(binary.LittleEndian.Uint32(rest[4:8])))
	p.Body = make([]byte, size-9)
	copy(p.Body, rest[8:size-1])
	p.Text = bodyText(p.Body)

	return n, nil
}

// EmptyBody reports whether the packet carries no payload once the frame's
// null terminator padding is set aside. Servers end a multi-packet response
// with such a packet.
func (p Packet) EmptyBody() bool {
	return len(bytes.TrimRight(p.Body, "\x00")) == 0
}

// Clone returns a copy of the receiving Packet with its own backing storage
// for the body.
func (p Packet) Clone() Packet {
	p2 := p
	if p.Body != nil {
		p2.Body = make([]byte, len(p.Body))
		copy(p2.Body, p.Body)
	}
	return p2
}

// EqualTo determines if the provided Packet content matches the receiving
// Packet content. The wire-derived Size and display Text are not compared.
func (p Packet) EqualTo(p2 Packet) bool {
	switch {
	case p.ID != p2.ID:
		return false
	case p.Kind != p2.Kind:
		return false
	case !bytes.Equal(p.Body, p2.Body):
		return false
	}
	return true
}

// bodyText produces the displayable form of a raw decoded body: trailing null
// padding trimmed, interpreted as UTF-8, color codes stripped. Bodies that
// are not valid UTF-8 yield an empty string; the raw bytes stay available on
// the packet for diagnostics.
func bodyText(raw []byte) string {
	t := bytes.TrimRight(raw, "\x00")
	if !utf8.Valid(t) {
		return ""
	}
	return StripColors(string(t))
}

// nonASCIIIndex returns the index of the first byte outside the 7-bit ASCII
// range, or -1 when every byte is ASCII.
func nonASCIIIndex(b []byte) int {
	for i := range b {
		if b[i] >= utf8.RuneSelf {
			return i
		}
	}
	return -1
}
