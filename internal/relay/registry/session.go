// Package registry holds the relay's in-memory session and connection
// state: the single source of truth shared by the rendezvous service and
// the TCP relay server. All structural mutation goes through the
// registry's lock; byte counters are read and written with sync/atomic so
// a transfer in progress never blocks on it.
package registry

import "time"

// Status is a session's lifecycle stage.
type Status string

const (
	StatusWaitingReceiver Status = "waiting_receiver"
	StatusMatched         Status = "matched"
	StatusCompleted       Status = "completed"
	StatusTimeout         Status = "timeout"
)

// Role identifies which side of a transfer a TCP connection belongs to.
type Role string

const (
	RoleSender   Role = "sender"
	RoleReceiver Role = "receiver"
)

// Session is the control-plane record created by Initiate and consumed by
// Listen. Fields mirror the original server's Session model.
type Session struct {
	SessionID  string
	SenderFP   string
	ReceiverFP string
	Filename   string
	FileSize   int64
	Signature  string
	FileHash   string
	Status     Status
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

// Expired reports whether the session has passed its TTL. Expiry is
// enforced lazily: nothing sweeps the map on a timer, callers check this
// the next time they touch the session.
func (s *Session) Expired() bool {
	return time.Now().After(s.ExpiresAt)
}
