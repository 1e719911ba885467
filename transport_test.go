package rcon_test

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schultz-is/rconsh"
)

func TestTransportWrite(t *testing.T) {
	t.Run("frames pass through unmodified", func(t *testing.T) {
		cc, sc := net.Pipe()
		defer func() {
			_ = cc.Close()
			_ = sc.Close()
		}()

		tr := rcon.NewTransport(cc, time.Second)

		done := make(chan struct{})
		go func() {
			defer close(done)

			var req rcon.Packet
			_, err := req.ReadFrom(sc)
			assert.NoError(t, err)
			assert.Equal(t, int32(42), req.ID)
			assert.Equal(t, "info", req.Text)
		}()

		p, err := rcon.NewPacket(42, rcon.KindCommand, []byte("info"))
		require.NoError(t, err)
		_, err = p.WriteTo(tr)
		require.NoError(t, err)
		<-done
	})

	t.Run("a closed connection fails with a connection error", func(t *testing.T) {
		cc, sc := net.Pipe()
		defer func() { _ = sc.Close() }()

		tr := rcon.NewTransport(cc, time.Second)
		require.NoError(t, tr.Close())

		_, err := tr.Write([]byte{0, 0, 0, 0})
		require.ErrorIs(t, err, rcon.ErrConnection)
	})

	t.Run("a blocked write fails with a connection error", func(t *testing.T) {
		cc, sc := net.Pipe()
		defer func() {
			_ = cc.Close()
			_ = sc.Close()
		}()

		// Nobody reads from sc, so the write can only sit on its deadline.
		tr := rcon.NewTransport(cc, 10*time.Millisecond)
		_, err := tr.Write([]byte("stuck"))
		require.ErrorIs(t, err, rcon.ErrConnection)
	})
}

func TestTransportRead(t *testing.T) {
	t.Run("a deadline expiry surfaces unwrapped", func(t *testing.T) {
		cc, sc := net.Pipe()
		defer func() {
			_ = cc.Close()
			_ = sc.Close()
		}()

		tr := rcon.NewTransport(cc, 10*time.Millisecond)

		buf := make([]byte, 4)
		n, err := tr.Read(buf)
		require.Error(t, err)
		assert.Zero(t, n)

		// The session needs the raw net.Error to tell a benign timeout
		// from a dead connection.
		var ne net.Error
		require.ErrorAs(t, err, &ne)
		assert.True(t, ne.Timeout())
		assert.NotErrorIs(t, err, rcon.ErrConnection)
	})
}

func TestTransportReadChunk(t *testing.T) {
	t.Run("returns available bytes", func(t *testing.T) {
		cc, sc := net.Pipe()
		defer func() {
			_ = cc.Close()
			_ = sc.Close()
		}()

		tr := rcon.NewTransport(cc, time.Second)

		want := []byte("some raw frame bytes")
		done := make(chan struct{})
		go func() {
			defer close(done)

			_, err := sc.Write(want)
			assert.NoError(t, err)
		}()

		chunk, err := tr.ReadChunk()
		require.NoError(t, err)
		assert.Equal(t, want, chunk)
		<-done
	})

	t.Run("silence yields an empty chunk", func(t *testing.T) {
		cc, sc := net.Pipe()
		defer func() {
			_ = cc.Close()
			_ = sc.Close()
		}()

		tr := rcon.NewTransport(cc, 10*time.Millisecond)

		chunk, err := tr.ReadChunk()
		require.NoError(t, err)
		assert.Nil(t, chunk)
	})

	t.Run("a peer close yields an empty chunk", func(t *testing.T) {
		cc, sc := net.Pipe()
		defer func() { _ = cc.Close() }()

		tr := rcon.NewTransport(cc, time.Second)
		require.NoError(t, sc.Close())

		chunk, err := tr.ReadChunk()
		require.NoError(t, err)
		assert.Nil(t, chunk)
	})

	t.Run("a local close is a connection error", func(t *testing.T) {
		cc, sc := net.Pipe()
		defer func() { _ = sc.Close() }()

		tr := rcon.NewTransport(cc, time.Second)
		require.NoError(t, tr.Close())

		_, err := tr.ReadChunk()
		require.ErrorIs(t, err, rcon.ErrConnection)
	})
}

func TestDialTransport(t *testing.T) {
	t.Run("connects and reports the remote address", func(t *testing.T) {
		listener, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		defer func() { _ = listener.Close() }()

		go func() {
			conn, err := listener.Accept()
			if err == nil {
				_ = conn.Close()
			}
		}()

		tr, err := rcon.DialTransport(listener.Addr().String(), 0)
		require.NoError(t, err)
		defer func() { _ = tr.Close() }()

		assert.Equal(t, listener.Addr().String(), tr.RemoteAddr().String())
	})

	t.Run("a refused connection is a connection error", func(t *testing.T) {
		// Listen and close immediately to get an address that refuses.
		listener, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		addr := listener.Addr().String()
		require.NoError(t, listener.Close())

		_, err = rcon.DialTransport(addr, 0)
		require.ErrorIs(t, err, rcon.ErrConnection)
	})
}
