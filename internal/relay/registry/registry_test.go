package registry

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestSession(id, senderFP, receiverFP string) *Session {
	now := time.Now()
	return &Session{
		SessionID:  id,
		SenderFP:   senderFP,
		ReceiverFP: receiverFP,
		Filename:   "file.bin",
		FileSize:   1024,
		Signature:  "sig",
		FileHash:   "hash",
		Status:     StatusWaitingReceiver,
		CreatedAt:  now,
		ExpiresAt:  now.Add(2 * time.Minute),
	}
}

func TestPutSessionDuplicate(t *testing.T) {
	r := New()
	s := newTestSession("s1", "a", "b")
	assert.NoError(t, r.PutSession(s))
	assert.ErrorIs(t, r.PutSession(s), ErrSessionExists)
}

func TestGetSessionExpired(t *testing.T) {
	r := New()
	s := newTestSession("s1", "a", "b")
	s.ExpiresAt = time.Now().Add(-time.Second)
	assert.NoError(t, r.PutSession(s))

	_, ok := r.GetSession("s1")
	assert.False(t, ok, "expired session should not be returned")

	_, ok = r.GetSession("s1")
	assert.False(t, ok, "expired session should stay evicted")
}

func TestMatchReceiverFindsWaitingSession(t *testing.T) {
	r := New()
	s := newTestSession("s1", "sender-fp", "receiver-fp")
	assert.NoError(t, r.PutSession(s))

	w := NewWaiter()
	matched, outcome := r.MatchReceiver("receiver-fp", w)
	assert.Equal(t, OutcomeMatched, outcome)
	assert.Equal(t, "s1", matched.SessionID)
	assert.Equal(t, StatusMatched, matched.Status)
}

func TestMatchReceiverParksWhenNothingWaiting(t *testing.T) {
	r := New()
	w := NewWaiter()
	_, outcome := r.MatchReceiver("receiver-fp", w)
	assert.Equal(t, OutcomeParked, outcome)
}

func TestMatchReceiverConflictOnSecondListen(t *testing.T) {
	r := New()
	w1 := NewWaiter()
	_, outcome := r.MatchReceiver("receiver-fp", w1)
	assert.Equal(t, OutcomeParked, outcome)

	w2 := NewWaiter()
	_, outcome2 := r.MatchReceiver("receiver-fp", w2)
	assert.Equal(t, OutcomeConflict, outcome2)
}

func TestMatchSenderResolvesParkedReceiver(t *testing.T) {
	r := New()
	rw := NewWaiter()
	_, outcome := r.MatchReceiver("receiver-fp", rw)
	assert.Equal(t, OutcomeParked, outcome)

	s := newTestSession("s1", "sender-fp", "receiver-fp")
	assert.NoError(t, r.PutSession(s))

	sw := NewWaiter()
	woke := r.MatchSender(s, sw)
	assert.True(t, woke)
	assert.Equal(t, StatusMatched, s.Status)

	select {
	case res := <-rw.Recv():
		assert.NoError(t, res.Err)
		assert.Equal(t, "s1", res.Session.SessionID)
	case <-time.After(time.Second):
		t.Fatal("receiver waiter was never resolved")
	}
}

func TestMatchSenderParksWhenNoReceiverWaiting(t *testing.T) {
	r := New()
	s := newTestSession("s1", "sender-fp", "receiver-fp")
	assert.NoError(t, r.PutSession(s))

	sw := NewWaiter()
	woke := r.MatchSender(s, sw)
	assert.False(t, woke)
}

func TestTimeoutSenderRemovesWaiterAndSession(t *testing.T) {
	r := New()
	s := newTestSession("s1", "sender-fp", "receiver-fp")
	assert.NoError(t, r.PutSession(s))

	w := NewWaiter()
	r.MatchSender(s, w)
	r.TimeoutSender("s1", w)

	_, ok := r.GetSession("s1")
	assert.False(t, ok)
}

func TestRegisterSocketPairsByRoleNotArrivalOrder(t *testing.T) {
	r := New()
	receiverConn := &fakeConn{}
	senderConn := &fakeConn{}

	receiverPC := NewPendingConnection("s1", RoleReceiver, receiverConn)
	transfer, partner, dup := r.RegisterSocket(receiverPC)
	assert.Nil(t, transfer)
	assert.Nil(t, partner)
	assert.False(t, dup)

	senderPC := NewPendingConnection("s1", RoleSender, senderConn)
	transfer, partner, dup = r.RegisterSocket(senderPC)
	assert.NotNil(t, transfer)
	assert.Same(t, receiverPC, partner)
	assert.False(t, dup)

	assert.Same(t, senderConn, transfer.SenderConn)
	assert.Same(t, receiverConn, transfer.ReceiverConn)
}

func TestRegisterSocketDuplicateRole(t *testing.T) {
	r := New()
	pc1 := NewPendingConnection("s1", RoleSender, &fakeConn{})
	transfer, _, dup := r.RegisterSocket(pc1)
	assert.Nil(t, transfer)
	assert.False(t, dup)

	pc2 := NewPendingConnection("s1", RoleSender, &fakeConn{})
	transfer, existing, dup := r.RegisterSocket(pc2)
	assert.Nil(t, transfer)
	assert.True(t, dup)
	assert.Same(t, pc1, existing)
}

func TestActiveTransferAckBufferingAndPairing(t *testing.T) {
	transfer := newActiveTransfer("s1", &PendingConnection{Role: RoleSender, Conn: &fakeConn{}}, &PendingConnection{Role: RoleReceiver, Conn: &fakeConn{}})

	transfer.BufferPreAck(RoleSender, []byte("hello"))
	both := transfer.MarkAcked(RoleSender)
	assert.False(t, both)

	both = transfer.MarkAcked(RoleReceiver)
	assert.True(t, both)

	senderBytes, receiverBytes := transfer.TakePreAckBuffers()
	assert.Equal(t, [][]byte{[]byte("hello")}, senderBytes)
	assert.Nil(t, receiverBytes)
	assert.True(t, transfer.Paired())
}

func TestBufferPreAckAfterPairingWritesThrough(t *testing.T) {
	receiverConn := &fakeConn{}
	transfer := newActiveTransfer("s1",
		&PendingConnection{Role: RoleSender, Conn: &fakeConn{}},
		&PendingConnection{Role: RoleReceiver, Conn: receiverConn})

	transfer.MarkAcked(RoleSender)
	transfer.MarkAcked(RoleReceiver)
	transfer.TakePreAckBuffers() // marks the transfer paired, as completePairing does

	// A byte arriving on the sender side after pairing completed must go
	// straight to the receiver instead of sitting in a buffer nobody will
	// ever drain again.
	transfer.BufferPreAck(RoleSender, []byte("late"))

	receiverConn.mu.Lock()
	defer receiverConn.mu.Unlock()
	assert.Equal(t, [][]byte{[]byte("late")}, receiverConn.writes)
}

func TestRemoveTransferFoldsBytesIntoHistorical(t *testing.T) {
	r := New()
	pc1 := NewPendingConnection("s1", RoleSender, &fakeConn{})
	r.RegisterSocket(pc1)
	pc2 := NewPendingConnection("s1", RoleReceiver, &fakeConn{})
	transfer, _, _ := r.RegisterSocket(pc2)

	transfer.AddBytes(42)
	r.RemoveTransfer("s1")

	assert.Equal(t, int64(42), r.TotalBytesTransferred())

	_, ok := r.GetActive("s1")
	assert.False(t, ok)
}

// fakeConn is a minimal net.Conn stand-in sufficient for registry tests.
// Writes are captured so tests can assert on pass-through behavior.
type fakeConn struct {
	mu     sync.Mutex
	closed bool
	writes [][]byte
}

func (c *fakeConn) Read(b []byte) (int, error) { return 0, nil }
func (c *fakeConn) Write(b []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = append(c.writes, append([]byte(nil), b...))
	return len(b), nil
}
func (c *fakeConn) Close() error { c.closed = true; return nil }
func (c *fakeConn) LocalAddr() net.Addr                { return fakeAddr{} }
func (c *fakeConn) RemoteAddr() net.Addr               { return fakeAddr{} }
func (c *fakeConn) SetDeadline(t time.Time) error      { return nil }
func (c *fakeConn) SetReadDeadline(t time.Time) error  { return nil }
func (c *fakeConn) SetWriteDeadline(t time.Time) error { return nil }

type fakeAddr struct{}

func (fakeAddr) Network() string { return "fake" }
func (fakeAddr) String() string  { return "fake" }
