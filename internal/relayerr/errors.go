// Package relayerr carries the relay's explicit error kinds across package
// boundaries so the HTTP layer can map them to status codes without string
// matching.
package relayerr

import "fmt"

// Kind is the set of the relay's error categories. The rendezvous service
// returns InvalidArgument, Timeout and Conflict; the TCP relay server does
// not return these errors, it closes the connection instead. It mirrors
// the validation/failure branches in the original session controller.
type Kind int

const (
	// InvalidArgument means a request field was missing or malformed.
	InvalidArgument Kind = iota
	// Timeout means a blocking wait exceeded the configured deadline.
	Timeout
	// SessionAbsent means a session id did not resolve to a live session.
	SessionAbsent
	// ProtocolViolation means a TCP peer sent bytes that did not match
	// the expected handshake or ACK framing.
	ProtocolViolation
	// PeerLost means the paired connection disappeared mid-transfer.
	PeerLost
	// Conflict means a second Listen arrived for a fingerprint that
	// already has a parked waiter.
	Conflict
)

func (k Kind) String() string {
	switch k {
	case InvalidArgument:
		return "invalid_argument"
	case Timeout:
		return "timeout"
	case SessionAbsent:
		return "session_absent"
	case ProtocolViolation:
		return "protocol_violation"
	case PeerLost:
		return "peer_lost"
	case Conflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// Error is the concrete error type returned by the rendezvous service.
type Error struct {
	Kind  Kind
	Field string
	Err   error
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Field)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Invalid builds an InvalidArgument error naming the offending field.
func Invalid(field string) *Error {
	return &Error{Kind: InvalidArgument, Field: field}
}

// As extracts a *Error from err, if present.
func As(err error) (*Error, bool) {
	e, ok := err.(*Error)
	return e, ok
}
