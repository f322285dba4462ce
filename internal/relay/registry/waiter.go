package registry

import "sync"

// MatchResult is delivered exactly once on a Waiter's channel: either the
// session it was waiting for, or the reason it never arrived.
type MatchResult struct {
	Session *Session
	Err     error
}

// Waiter is a single-shot promise used for both sender and receiver
// parking. sync.Once guarantees a timeout racing a match can never
// deliver two values: whichever of resolve/reject runs first wins, and the
// other is silently dropped, so the caller parking the waiter never needs
// to select past its own timeout branch for correctness (the select
// statements still do, against the pseudo-random tie-break — see
// rendezvous.Service).
type Waiter struct {
	ch   chan MatchResult
	once sync.Once
}

// NewWaiter creates a fresh single-shot waiter with a buffered channel so
// resolve/reject never blocks on a receiver that already went away.
func NewWaiter() *Waiter {
	return &Waiter{ch: make(chan MatchResult, 1)}
}

// Recv returns the channel to select on for the eventual result.
func (w *Waiter) Recv() <-chan MatchResult {
	return w.ch
}

func (w *Waiter) resolve(s *Session) {
	w.once.Do(func() {
		w.ch <- MatchResult{Session: s}
	})
}

func (w *Waiter) reject(err error) {
	w.once.Do(func() {
		w.ch <- MatchResult{Err: err}
	})
}
