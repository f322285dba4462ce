// Package relayserver implements the TCP data-plane relay: it pairs
// connections by session id, runs the READY/ACK handshake, and streams
// bytes bidirectionally once both sides have ACKed. Grounded on the
// original server's FileTransferServer/FileTransferHandler, with the Go
// concurrency shape borrowed from the teacher's
// internal/tracker/server.go accept loop and
// internal/shared/prouter channel-based read pump.
package relayserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"github.com/ronakgh97/r-share/internal/relay/registry"
	"github.com/ronakgh97/r-share/internal/relaylog"
)

// Config holds the TCP relay server's listen settings.
type Config struct {
	Addr    string
	Backlog int // see socket.go: carried for parity, not enforced.
}

// Server is the TCP data-plane relay.
type Server struct {
	cfg      Config
	registry *registry.Registry
	logger   *slog.Logger
	listener net.Listener
}

// NewServer creates a Server bound to cfg.Addr. Listening happens eagerly
// (matching internal/tracker/server.go's NewServer), so Addr() is
// available immediately, including the OS-assigned port when Addr ends
// in ":0".
func NewServer(cfg Config, reg *registry.Registry, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("relayserver: listen %s: %w", cfg.Addr, err)
	}
	return &Server{cfg: cfg, registry: reg, logger: logger, listener: ln}, nil
}

// Addr returns the listener's bound address.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Shutdown closes the listener, unblocking Start.
func (s *Server) Shutdown() error {
	return s.listener.Close()
}

// Start accepts connections until ctx is canceled or the listener closes,
// spawning one handler goroutine per connection.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = s.listener.Close()
	}()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			select {
			case <-ctx.Done():
				return nil
			default:
				s.logger.Warn("accept failed", "error", err)
				continue
			}
		}
		go s.handleConn(conn)
	}
}

// handleConn runs one connection through the handshake -> pairing ->
// ACK -> relay state machine described in SPEC_FULL.md / spec.md §4.3.
func (s *Server) handleConn(conn net.Conn) {
	defer func() { _ = conn.Close() }()
	configureSocket(conn)

	readCh := make(chan readResult, 4)
	go pump(conn, readCh)

	line, rest, err := readLine(readCh, nil)
	if err != nil {
		return
	}
	sessionID, role, perr := parseHandshake(line)
	if perr != nil {
		s.logger.Warn("malformed handshake", "error", perr)
		return
	}
	if _, ok := s.registry.GetSession(sessionID); !ok {
		return
	}

	pc := registry.NewPendingConnection(sessionID, role, conn)
	transfer, partner, duplicate := s.registry.RegisterSocket(pc)

	switch {
	case duplicate:
		s.logger.Warn("duplicate connection for session/role", "session", shortID(sessionID), "role", role)
		return
	case transfer != nil:
		// We are the second connection to arrive: promote, tell both
		// sides READY, then proceed straight into our own ACK wait.
		writeLine(conn, "READY")
		writeLine(partner.Conn, "READY")
		partner.Promoted <- transfer
		s.awaitAck(conn, readCh, rest, transfer, role)
	default:
		// We are first: wait for a partner or for the connection to
		// drop, buffering whatever arrives in the meantime.
		s.awaitPartner(conn, readCh, rest, pc)
	}
}

// awaitPartner blocks the first-arriving connection until RegisterSocket
// promotes it (pc.Promoted fires) or the connection drops.
func (s *Server) awaitPartner(conn net.Conn, readCh chan readResult, leftover []byte, pc *registry.PendingConnection) {
	buffered := leftover
	for {
		select {
		case rr := <-readCh:
			if rr.err != nil {
				s.registry.RemovePending(pc.SessionID, pc.Role)
				return
			}
			buffered = append(buffered, rr.data...)
		case transfer := <-pc.Promoted:
			s.awaitAck(conn, readCh, buffered, transfer, pc.Role)
			return
		}
	}
}

// awaitAck reads this connection's ACK line, buffers any trailing bytes
// in the same read, and either proceeds straight to relaying (if it is
// the second ACK) or waits for the partner's ACK.
func (s *Server) awaitAck(conn net.Conn, readCh chan readResult, leftover []byte, transfer *registry.ActiveTransfer, role registry.Role) {
	line, rest, err := readLine(readCh, leftover)
	if err != nil {
		s.teardown(transfer)
		return
	}
	if line != "ACK" {
		s.logger.Warn("expected ACK", "session", shortID(transfer.SessionID), "got", line)
		s.teardown(transfer)
		return
	}
	transfer.BufferPreAck(role, rest)

	if transfer.MarkAcked(role) {
		s.completePairing(transfer)
		s.relay(readCh, transfer, role)
		return
	}
	s.waitForPairing(conn, readCh, transfer, role)
}

// completePairing flushes both sides' pre-ACK buffers cross-wise and
// signals the partner connection (still in waitForPairing) to start
// relaying. Called exactly once, by the ACK that completes the pair.
func (s *Server) completePairing(transfer *registry.ActiveTransfer) {
	senderBytes, receiverBytes := transfer.TakePreAckBuffers()
	for _, b := range senderBytes {
		_, _ = transfer.WriteTo(registry.RoleSender, b)
	}
	for _, b := range receiverBytes {
		_, _ = transfer.WriteTo(registry.RoleReceiver, b)
	}
	transfer.SignalPaired()
}

// waitForPairing buffers bytes arriving on this connection until the
// partner's ACK lands (transfer.PairedCh fires) or this connection drops.
func (s *Server) waitForPairing(conn net.Conn, readCh chan readResult, transfer *registry.ActiveTransfer, role registry.Role) {
	for {
		select {
		case rr := <-readCh:
			if rr.err != nil {
				s.teardown(transfer)
				return
			}
			transfer.BufferPreAck(role, rr.data)
		case <-transfer.PairedCh():
			s.relay(readCh, transfer, role)
			return
		}
	}
}

// relay forwards every subsequent byte read on this connection to the
// partner connection until either side disconnects or a write fails.
func (s *Server) relay(readCh chan readResult, transfer *registry.ActiveTransfer, role registry.Role) {
	for {
		rr := <-readCh
		if rr.err != nil {
			break
		}
		if _, werr := transfer.WriteTo(role, rr.data); werr != nil {
			break
		}
	}
	s.teardown(transfer)
}

// teardown removes the transfer from the registry and closes both
// connections. Safe to call from either side's goroutine; the registry
// removal is idempotent so whichever side gets here first does the work.
func (s *Server) teardown(transfer *registry.ActiveTransfer) {
	s.registry.RemoveTransfer(transfer.SessionID)
	s.logger.Info("relay complete", "session", shortID(transfer.SessionID), "bytes", relaylog.Bytes(transfer.BytesTransferred()))
	_ = transfer.SenderConn.Close()
	_ = transfer.ReceiverConn.Close()
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
