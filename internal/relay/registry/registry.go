package registry

import (
	"sync"
	"sync/atomic"
)

// MatchOutcome reports what MatchReceiver did with a freshly parked
// receiver waiter.
type MatchOutcome int

const (
	// OutcomeParked means no waiting session matched; the waiter is now
	// parked and will be resolved by a later Initiate call.
	OutcomeParked MatchOutcome = iota
	// OutcomeMatched means an already-waiting session was found and
	// returned directly; the waiter was never parked.
	OutcomeMatched
	// OutcomeConflict means a waiter is already parked for this
	// fingerprint; the caller should reject the new Listen with Conflict
	// rather than replace or queue behind the existing one.
	OutcomeConflict
)

// Stats are supplementary, in-memory-only counters (see SPEC_FULL.md §4)
// not present in spec.md itself but carried over from the original
// server's bandwidth/session bookkeeping. They reset on restart like
// everything else the registry holds.
type Stats struct {
	SessionsCreated   int64
	SessionsMatched   int64
	SessionsTimedOut  int64
	TransfersComplete int64
}

// Registry is the single source of truth for session and connection
// state. mu guards every structural mutation (map inserts/deletes,
// status transitions); byte counters on individual ActiveTransfer values
// are updated with sync/atomic so the hot relay path never blocks on mu.
type Registry struct {
	mu sync.Mutex

	sessions        map[string]*Session
	senderWaiters   map[string]*Waiter // keyed by session id
	receiverWaiters map[string]*Waiter // keyed by receiver fingerprint

	pending map[string]*PendingConnection // keyed by session id
	active  map[string]*ActiveTransfer    // keyed by session id

	historicalBytes int64 // atomic: bytes from transfers already torn down

	sessionsCreated   int64
	sessionsMatched   int64
	sessionsTimedOut  int64
	transfersComplete int64
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		sessions:        make(map[string]*Session),
		senderWaiters:   make(map[string]*Waiter),
		receiverWaiters: make(map[string]*Waiter),
		pending:         make(map[string]*PendingConnection),
		active:          make(map[string]*ActiveTransfer),
	}
}

// ErrSessionExists is returned by PutSession on a colliding session id,
// which should never happen with UUID ids but is checked defensively
// since Initiate trusts PutSession, not the caller, to enforce uniqueness.
type sessionExistsError struct{}

func (sessionExistsError) Error() string { return "registry: session id already exists" }

// ErrSessionExists signals a session id collision in PutSession.
var ErrSessionExists error = sessionExistsError{}

// PutSession inserts a freshly created session, incrementing the
// sessions-created counter.
func (r *Registry) PutSession(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[s.SessionID]; exists {
		return ErrSessionExists
	}
	r.sessions[s.SessionID] = s
	r.sessionsCreated++
	return nil
}

// GetSession looks up a session by id, evicting it first if it has
// expired. A lazily-expired session is reported as absent, matching the
// "nothing sweeps on a timer" design.
func (r *Registry) GetSession(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	if s.Status != StatusCompleted && s.Expired() {
		s.Status = StatusTimeout
		delete(r.sessions, id)
		return nil, false
	}
	return s, true
}

// CompleteSession marks a session completed. Idempotent: calling it on an
// already-completed or already-evicted session is a no-op.
func (r *Registry) CompleteSession(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		s.Status = StatusCompleted
	}
}

// MatchSender attempts to pair a freshly created session with an
// already-parked receiver waiter. If one is parked, the session is
// transitioned to matched and the receiver waiter is resolved in place;
// otherwise a sender waiter is parked under the session id for a later
// Listen to find. Returns true if an immediate match happened.
func (r *Registry) MatchSender(session *Session, senderWaiter *Waiter) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rw, ok := r.receiverWaiters[session.ReceiverFP]; ok {
		session.Status = StatusMatched
		delete(r.receiverWaiters, session.ReceiverFP)
		r.sessionsMatched++
		rw.resolve(session)
		return true
	}
	r.senderWaiters[session.SessionID] = senderWaiter
	return false
}

// MatchReceiver attempts to pair a Listen call with an already-waiting
// session for receiverFP. It scans live sessions the same way the
// original server's SessionService does rather than maintaining a second
// index (see DESIGN.md).
func (r *Registry) MatchReceiver(receiverFP string, w *Waiter) (*Session, MatchOutcome) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.sessions {
		if s.ReceiverFP == receiverFP && s.Status == StatusWaitingReceiver {
			s.Status = StatusMatched
			r.sessionsMatched++
			if sw, ok := r.senderWaiters[s.SessionID]; ok {
				delete(r.senderWaiters, s.SessionID)
				sw.resolve(s)
			}
			return s, OutcomeMatched
		}
	}
	if _, exists := r.receiverWaiters[receiverFP]; exists {
		return nil, OutcomeConflict
	}
	r.receiverWaiters[receiverFP] = w
	return nil, OutcomeParked
}

// TimeoutSender removes a parked sender waiter (and its session) if it is
// still the current one for sessionID. Called after a sender's blocking
// timeout fires with nothing having matched it.
func (r *Registry) TimeoutSender(sessionID string, w *Waiter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.senderWaiters[sessionID]; ok && cur == w {
		delete(r.senderWaiters, sessionID)
		r.sessionsTimedOut++
		if s, ok2 := r.sessions[sessionID]; ok2 {
			s.Status = StatusTimeout
			delete(r.sessions, sessionID)
		}
	}
}

// TimeoutReceiver removes a parked receiver waiter if it is still the
// current one for receiverFP.
func (r *Registry) TimeoutReceiver(receiverFP string, w *Waiter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.receiverWaiters[receiverFP]; ok && cur == w {
		delete(r.receiverWaiters, receiverFP)
		r.sessionsTimedOut++
	}
}

// TotalBytesTransferred sums bytes already torn down plus bytes still in
// flight on live transfers. Live transfers are read with atomic loads, so
// this never blocks a relay goroutine.
func (r *Registry) TotalBytesTransferred() int64 {
	r.mu.Lock()
	live := make([]*ActiveTransfer, 0, len(r.active))
	for _, t := range r.active {
		live = append(live, t)
	}
	r.mu.Unlock()

	total := atomic.LoadInt64(&r.historicalBytes)
	for _, t := range live {
		total += t.BytesTransferred()
	}
	return total
}

// Stats returns a snapshot of the supplementary in-memory counters.
func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{
		SessionsCreated:   r.sessionsCreated,
		SessionsMatched:   r.sessionsMatched,
		SessionsTimedOut:  r.sessionsTimedOut,
		TransfersComplete: r.transfersComplete,
	}
}
