package relayserver

import (
	"bufio"
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ronakgh97/r-share/internal/relay/registry"
)

func newTestSession(id string) *registry.Session {
	now := time.Now()
	return &registry.Session{
		SessionID:  id,
		SenderFP:   "sender-fp",
		ReceiverFP: "receiver-fp",
		Filename:   "file.bin",
		FileSize:   4,
		Signature:  "sig",
		FileHash:   "hash",
		Status:     registry.StatusWaitingReceiver,
		CreatedAt:  now,
		ExpiresAt:  now.Add(2 * time.Minute),
	}
}

func setupServer(t *testing.T) (*Server, *registry.Registry) {
	t.Helper()
	reg := registry.New()
	srv, err := NewServer(Config{Addr: "127.0.0.1:0"}, reg, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = srv.Start(ctx) }()
	t.Cleanup(func() {
		cancel()
		_ = srv.Shutdown()
	})
	return srv, reg
}

func TestFullTransferRoundTrip(t *testing.T) {
	srv, reg := setupServer(t)
	require.NoError(t, reg.PutSession(newTestSession("sess-1")))

	senderConn, err := net.Dial("tcp", srv.Addr())
	require.NoError(t, err)
	defer senderConn.Close()

	receiverConn, err := net.Dial("tcp", srv.Addr())
	require.NoError(t, err)
	defer receiverConn.Close()

	_, err = senderConn.Write([]byte("sess-1:sender\n"))
	require.NoError(t, err)
	_, err = receiverConn.Write([]byte("sess-1:receiver\n"))
	require.NoError(t, err)

	senderReader := bufio.NewReader(senderConn)
	receiverReader := bufio.NewReader(receiverConn)

	line, err := senderReader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "READY\n", line)

	line, err = receiverReader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "READY\n", line)

	_, err = senderConn.Write([]byte("ACK\n"))
	require.NoError(t, err)
	_, err = receiverConn.Write([]byte("ACK\n"))
	require.NoError(t, err)

	payload := []byte("data")
	_, err = senderConn.Write(payload)
	require.NoError(t, err)

	got := make([]byte, len(payload))
	require.NoError(t, senderConn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, receiverConn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err = io.ReadFull(receiverReader, got)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestPreAckPayloadIsBufferedAndFlushedInOrder(t *testing.T) {
	srv, reg := setupServer(t)
	require.NoError(t, reg.PutSession(newTestSession("sess-2")))

	senderConn, err := net.Dial("tcp", srv.Addr())
	require.NoError(t, err)
	defer senderConn.Close()

	receiverConn, err := net.Dial("tcp", srv.Addr())
	require.NoError(t, err)
	defer receiverConn.Close()

	_, err = senderConn.Write([]byte("sess-2:sender\n"))
	require.NoError(t, err)
	_, err = receiverConn.Write([]byte("sess-2:receiver\n"))
	require.NoError(t, err)

	senderReader := bufio.NewReader(senderConn)
	receiverReader := bufio.NewReader(receiverConn)
	_, err = senderReader.ReadString('\n')
	require.NoError(t, err)
	_, err = receiverReader.ReadString('\n')
	require.NoError(t, err)

	// Sender ACKs and immediately streams payload before the receiver has
	// ACKed at all; the relay must retain it and deliver it once both
	// sides have ACKed, not drop it.
	_, err = senderConn.Write([]byte("ACK\nfirst-chunk"))
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)

	_, err = receiverConn.Write([]byte("ACK\n"))
	require.NoError(t, err)

	require.NoError(t, receiverConn.SetReadDeadline(time.Now().Add(2*time.Second)))
	got := make([]byte, len("first-chunk"))
	_, err = io.ReadFull(receiverReader, got)
	require.NoError(t, err)
	assert.Equal(t, "first-chunk", string(got))
}

func TestHandshakeForUnknownSessionIsRejected(t *testing.T) {
	srv, _ := setupServer(t)

	conn, err := net.Dial("tcp", srv.Addr())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("no-such-session:sender\n"))
	require.NoError(t, err)

	// The server closes the connection with no response, matching the
	// original server: an unknown session id never gets a wire reply.
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 1)
	n, err := conn.Read(buf)
	assert.Equal(t, 0, n)
	assert.Error(t, err, "unknown-session connection should be closed by the server with no response")
}

func TestDuplicateRoleConnectionIsRejected(t *testing.T) {
	srv, reg := setupServer(t)
	require.NoError(t, reg.PutSession(newTestSession("sess-3")))

	first, err := net.Dial("tcp", srv.Addr())
	require.NoError(t, err)
	defer first.Close()
	_, err = first.Write([]byte("sess-3:sender\n"))
	require.NoError(t, err)

	second, err := net.Dial("tcp", srv.Addr())
	require.NoError(t, err)
	defer second.Close()
	_, err = second.Write([]byte("sess-3:sender\n"))
	require.NoError(t, err)

	require.NoError(t, second.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 1)
	_, err = second.Read(buf)
	assert.Error(t, err, "duplicate-role connection should be closed by the server")
}
