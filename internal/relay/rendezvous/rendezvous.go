// Package rendezvous implements the control-plane matching service:
// Initiate (sender) and Listen (receiver) block until the registry pairs
// them or a timeout/cancellation fires. Grounded on the original server's
// SessionService, whose CompletableFuture-based waiters this package
// expresses as Go channels.
package rendezvous

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ronakgh97/r-share/internal/relay/registry"
	"github.com/ronakgh97/r-share/internal/relayerr"
)

// Config holds the rendezvous service's tunables.
type Config struct {
	// BlockingTimeout bounds how long Initiate/Listen wait for a match.
	BlockingTimeout time.Duration
	// SessionTTL bounds how long a session stays live after creation,
	// whether or not it has been matched.
	SessionTTL time.Duration
	// SocketPort is reported back to clients so they know where to dial
	// the TCP relay server.
	SocketPort int
}

// DefaultConfig matches the original server's defaults.
func DefaultConfig() Config {
	return Config{
		BlockingTimeout: 30 * time.Second,
		SessionTTL:      120 * time.Second,
		SocketPort:      10000,
	}
}

// Service is the rendezvous half of the relay: it owns no connections and
// performs no I/O beyond the registry's in-memory maps.
type Service struct {
	registry *registry.Registry
	logger   *slog.Logger
	cfg      Config
}

// New builds a Service over reg using cfg.
func New(reg *registry.Registry, logger *slog.Logger, cfg Config) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{registry: reg, logger: logger, cfg: cfg}
}

// SocketPort returns the TCP relay port this service advertises to
// clients.
func (s *Service) SocketPort() int { return s.cfg.SocketPort }

// Initiate validates a sender's request, creates a session, and blocks
// until a receiver arrives (Listen matches it), the blocking timeout
// elapses, or ctx is canceled.
func (s *Service) Initiate(ctx context.Context, senderFP, receiverFP, filename string, fileSize int64, signature, fileHash string) (*registry.Session, error) {
	if senderFP == "" {
		return nil, relayerr.Invalid("senderFp")
	}
	if receiverFP == "" {
		return nil, relayerr.Invalid("receiverFp")
	}
	if filename == "" {
		return nil, relayerr.Invalid("filename")
	}
	if signature == "" {
		return nil, relayerr.Invalid("signature")
	}
	if fileHash == "" {
		return nil, relayerr.Invalid("fileHash")
	}
	if fileSize < 0 {
		return nil, relayerr.Invalid("fileSize")
	}

	now := time.Now()
	session := &registry.Session{
		SessionID:  uuid.NewString(),
		SenderFP:   senderFP,
		ReceiverFP: receiverFP,
		Filename:   filename,
		FileSize:   fileSize,
		Signature:  signature,
		FileHash:   fileHash,
		Status:     registry.StatusWaitingReceiver,
		CreatedAt:  now,
		ExpiresAt:  now.Add(s.cfg.SessionTTL),
	}
	if err := s.registry.PutSession(session); err != nil {
		return nil, err
	}
	s.logger.Info("session created", "session", shortID(session.SessionID), "receiver", shortID(receiverFP))

	w := registry.NewWaiter()
	if woke := s.registry.MatchSender(session, w); woke {
		s.logger.Info("session matched immediately", "session", shortID(session.SessionID))
		return session, nil
	}

	timer := time.NewTimer(s.cfg.BlockingTimeout)
	defer timer.Stop()

	select {
	case res := <-w.Recv():
		return res.Session, res.Err
	case <-timer.C:
		if res, ok := drain(w); ok {
			return res.Session, res.Err
		}
		s.registry.TimeoutSender(session.SessionID, w)
		s.logger.Info("session timed out waiting for receiver", "session", shortID(session.SessionID))
		return nil, &relayerr.Error{Kind: relayerr.Timeout}
	case <-ctx.Done():
		s.registry.TimeoutSender(session.SessionID, w)
		return nil, ctx.Err()
	}
}

// Listen validates a receiver's request and blocks until a sender's
// Initiate call matches receiverFP, the blocking timeout elapses, or ctx
// is canceled. A second Listen for a fingerprint that already has a
// parked waiter is rejected immediately with Conflict.
func (s *Service) Listen(ctx context.Context, receiverFP string) (*registry.Session, error) {
	if receiverFP == "" {
		return nil, relayerr.Invalid("receiverFp")
	}

	w := registry.NewWaiter()
	session, outcome := s.registry.MatchReceiver(receiverFP, w)
	switch outcome {
	case registry.OutcomeMatched:
		s.logger.Info("listen matched immediately", "session", shortID(session.SessionID), "receiver", shortID(receiverFP))
		return session, nil
	case registry.OutcomeConflict:
		return nil, &relayerr.Error{Kind: relayerr.Conflict, Field: "receiverFp"}
	}

	timer := time.NewTimer(s.cfg.BlockingTimeout)
	defer timer.Stop()

	select {
	case res := <-w.Recv():
		return res.Session, res.Err
	case <-timer.C:
		if res, ok := drain(w); ok {
			return res.Session, res.Err
		}
		s.registry.TimeoutReceiver(receiverFP, w)
		s.logger.Info("listen timed out", "receiver", shortID(receiverFP))
		return nil, &relayerr.Error{Kind: relayerr.Timeout}
	case <-ctx.Done():
		s.registry.TimeoutReceiver(receiverFP, w)
		return nil, ctx.Err()
	}
}

// Complete marks a session completed without tearing down any socket
// state. The control endpoint's DELETE path does not use it; it calls
// ForceClose, which also closes live sockets.
func (s *Service) Complete(sessionID string) {
	s.registry.CompleteSession(sessionID)
}

// ForceClose tears down any live socket pairing for a session and marks
// it completed.
func (s *Service) ForceClose(sessionID string) {
	s.registry.ForceClose(sessionID)
}

// GetSession exposes a read-only session lookup.
func (s *Service) GetSession(sessionID string) (*registry.Session, bool) {
	return s.registry.GetSession(sessionID)
}

// drain does a non-blocking check of whether w already has a result
// queued. Go's select statement picks pseudo-randomly among simultaneously
// ready cases, so without this a match landing in the same instant as the
// timeout timer could be lost; draining first closes that race.
func drain(w *registry.Waiter) (registry.MatchResult, bool) {
	select {
	case res := <-w.Recv():
		return res, true
	default:
		return registry.MatchResult{}, false
	}
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
