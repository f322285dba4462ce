package registry

import (
	"net"
	"sync"
	"sync/atomic"
)

// PendingConnection is a socket that has completed its handshake and is
// waiting for its partner (the other role on the same session) to arrive.
// Promoted fires exactly once, carrying the ActiveTransfer the connection
// was promoted into, so the owning goroutine can stop waiting and start
// the ACK phase without polling the registry.
type PendingConnection struct {
	SessionID string
	Role      Role
	Conn      net.Conn
	Promoted  chan *ActiveTransfer
}

// NewPendingConnection builds a PendingConnection ready to be registered.
func NewPendingConnection(sessionID string, role Role, conn net.Conn) *PendingConnection {
	return &PendingConnection{
		SessionID: sessionID,
		Role:      role,
		Conn:      conn,
		Promoted:  make(chan *ActiveTransfer, 1),
	}
}

// ActiveTransfer is a paired sender/receiver connection set, assigned by
// role rather than arrival order: SenderConn is always the socket that
// registered as "sender", regardless of which one connected first.
type ActiveTransfer struct {
	SessionID    string
	SenderConn   net.Conn
	ReceiverConn net.Conn

	bytesTransferred int64 // atomic

	mu            sync.Mutex
	senderAcked   bool
	receiverAcked bool
	paired        bool
	senderBuf     [][]byte
	receiverBuf   [][]byte
	pairedCh      chan struct{}
	pairedOnce    sync.Once

	// writeMu serializes every write to either side of the pair: the
	// pairing-completion flush, a post-pairing direct pass-through from
	// BufferPreAck, and the steady-state relay loop can all originate data
	// bound for the same connection from different goroutines.
	writeMu sync.Mutex
}

func newActiveTransfer(sessionID string, first, second *PendingConnection) *ActiveTransfer {
	t := &ActiveTransfer{
		SessionID: sessionID,
		pairedCh:  make(chan struct{}),
	}
	if first.Role == RoleSender {
		t.SenderConn, t.ReceiverConn = first.Conn, second.Conn
	} else {
		t.SenderConn, t.ReceiverConn = second.Conn, first.Conn
	}
	return t
}

// AddBytes atomically adds n to the transfer's running byte counter,
// called from the relay loop after every successful write.
func (t *ActiveTransfer) AddBytes(n int64) int64 {
	return atomic.AddInt64(&t.bytesTransferred, n)
}

// BytesTransferred atomically reads the running byte counter.
func (t *ActiveTransfer) BytesTransferred() int64 {
	return atomic.LoadInt64(&t.bytesTransferred)
}

// WriteTo forwards data, originating from role's side, to the other side
// of the pair, accounting it in the running byte counter. writeMu
// serializes this against every other writer of either connection (the
// pairing-completion flush, the steady-state relay loop, and any
// already-paired direct pass-through from BufferPreAck), so two goroutines
// can never interleave bytes on the same socket.
func (t *ActiveTransfer) WriteTo(role Role, data []byte) (int, error) {
	dst := t.ReceiverConn
	if role == RoleReceiver {
		dst = t.SenderConn
	}
	t.writeMu.Lock()
	n, err := dst.Write(data)
	t.writeMu.Unlock()
	t.AddBytes(int64(n))
	return n, err
}

// BufferPreAck retains bytes observed for role before both sides have
// ACKed. Retained bytes are flushed, in arrival order, to the partner once
// pairing completes. If the transfer is already paired by the time this is
// called — the caller's own ACK landed second, completed pairing, but its
// state machine is still draining bytes that arrived in the same read as
// the ACK, or arrived just after — the data is written straight through to
// the partner instead of being buffered, since nothing will ever call
// TakePreAckBuffers a second time to pick it up.
func (t *ActiveTransfer) BufferPreAck(role Role, data []byte) {
	if len(data) == 0 {
		return
	}
	t.mu.Lock()
	if t.paired {
		t.mu.Unlock()
		_, _ = t.WriteTo(role, data)
		return
	}
	cp := append([]byte(nil), data...)
	if role == RoleSender {
		t.senderBuf = append(t.senderBuf, cp)
	} else {
		t.receiverBuf = append(t.receiverBuf, cp)
	}
	t.mu.Unlock()
}

// MarkAcked records that role has sent its ACK line and reports whether
// both sides have now ACKed.
func (t *ActiveTransfer) MarkAcked(role Role) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if role == RoleSender {
		t.senderAcked = true
	} else {
		t.receiverAcked = true
	}
	return t.senderAcked && t.receiverAcked
}

// TakePreAckBuffers returns and clears the buffered pre-ACK bytes for
// both directions and marks the transfer paired. Called exactly once, by
// whichever connection's ACK completes the pair.
func (t *ActiveTransfer) TakePreAckBuffers() (senderBytes, receiverBytes [][]byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	senderBytes, receiverBytes = t.senderBuf, t.receiverBuf
	t.senderBuf, t.receiverBuf = nil, nil
	t.paired = true
	return senderBytes, receiverBytes
}

// PairedCh is closed exactly once, by SignalPaired, once both ACKs have
// landed. A connection still waiting on its partner's ACK selects on this
// to know when to stop buffering and start relaying.
func (t *ActiveTransfer) PairedCh() <-chan struct{} {
	return t.pairedCh
}

// SignalPaired closes PairedCh. Safe to call more than once.
func (t *ActiveTransfer) SignalPaired() {
	t.pairedOnce.Do(func() {
		close(t.pairedCh)
	})
}

// Paired reports whether pairing has completed, i.e. TakePreAckBuffers
// has run after both sides ACKed.
func (t *ActiveTransfer) Paired() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.paired
}

// RegisterSocket pairs a handshaken connection with any existing pending
// connection for the same session, keyed by role rather than arrival
// order. Three outcomes:
//
//   - no prior connection for the session: pc is stored pending, returns
//     (nil, nil, false).
//   - a prior connection with the same role exists: duplicate connection
//     attempt, returns (nil, existing, true); the caller closes the new
//     socket and leaves the existing pending entry untouched.
//   - a prior connection with the other role exists: the two are promoted
//     into an ActiveTransfer, returns (transfer, partner, false).
func (r *Registry) RegisterSocket(pc *PendingConnection) (transfer *ActiveTransfer, partner *PendingConnection, duplicate bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.pending[pc.SessionID]
	if !ok {
		r.pending[pc.SessionID] = pc
		return nil, nil, false
	}
	if existing.Role == pc.Role {
		return nil, existing, true
	}
	delete(r.pending, pc.SessionID)
	t := newActiveTransfer(pc.SessionID, existing, pc)
	r.active[pc.SessionID] = t
	return t, existing, false
}

// RemovePending removes a still-pending connection, e.g. because it
// disconnected before a partner arrived. A no-op if role no longer
// matches the stored entry (it was already promoted or replaced).
func (r *Registry) RemovePending(sessionID string, role Role) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if pc, ok := r.pending[sessionID]; ok && pc.Role == role {
		delete(r.pending, sessionID)
	}
}

// GetActive returns the live ActiveTransfer for a session, if any.
func (r *Registry) GetActive(sessionID string) (*ActiveTransfer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.active[sessionID]
	return t, ok
}

// RemoveTransfer tears down a completed or failed transfer: folds its
// bytes into the historical counter, removes it from the active map, and
// marks the session completed. Idempotent.
func (r *Registry) RemoveTransfer(sessionID string) {
	var t *ActiveTransfer
	r.mu.Lock()
	if got, ok := r.active[sessionID]; ok {
		t = got
		delete(r.active, sessionID)
		atomic.AddInt64(&r.historicalBytes, t.BytesTransferred())
		r.transfersComplete++
	}
	if s, ok := r.sessions[sessionID]; ok {
		s.Status = StatusCompleted
	}
	r.mu.Unlock()
}

// ForceClose tears down any pending or active connection state for a
// session and marks it completed, closing the underlying sockets. Used by
// the DELETE /api/relay/session/{id} control endpoint, which — per the
// original server's controller — closes live sockets, not just the
// session record.
func (r *Registry) ForceClose(sessionID string) {
	r.mu.Lock()
	pc, hasPending := r.pending[sessionID]
	delete(r.pending, sessionID)

	t, hasActive := r.active[sessionID]
	if hasActive {
		delete(r.active, sessionID)
		atomic.AddInt64(&r.historicalBytes, t.BytesTransferred())
		r.transfersComplete++
	}
	if s, ok := r.sessions[sessionID]; ok {
		s.Status = StatusCompleted
	}
	r.mu.Unlock()

	if hasPending {
		_ = pc.Conn.Close()
	}
	if hasActive {
		_ = t.SenderConn.Close()
		_ = t.ReceiverConn.Close()
	}
}
