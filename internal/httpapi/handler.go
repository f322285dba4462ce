// Package httpapi is the control-plane thin wrapper around the
// rendezvous service: it decodes JSON, calls Initiate/Listen, and maps
// relayerr.Kind to HTTP status. Grounded on the original server's
// SessionController, whose DeferredResult-based "block, then respond"
// contract is just Go's ordinary blocking-handler model, since a
// net/http handler already runs on its own goroutine per request.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ronakgh97/r-share/internal/relay/rendezvous"
	"github.com/ronakgh97/r-share/internal/relayerr"
)

// Handler wires the rendezvous service into an http.Handler.
type Handler struct {
	service *rendezvous.Service
	logger  *slog.Logger
	mux     *http.ServeMux
}

// New builds a Handler with all routes registered.
func New(service *rendezvous.Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{service: service, logger: logger, mux: http.NewServeMux()}
	h.mux.HandleFunc("POST /api/relay/serve", h.handleServe)
	h.mux.HandleFunc("POST /api/relay/listen", h.handleListen)
	h.mux.HandleFunc("DELETE /api/relay/session/{sessionId}", h.handleDeleteSession)
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// handleServe backs POST /api/relay/serve. The rendezvous call is given a
// context detached from the request: per spec.md's design notes, a
// disconnected HTTP client should not cancel matching already in
// progress — it simply never reads the eventual response.
func (h *Handler) handleServe(w http.ResponseWriter, r *http.Request) {
	var req ServeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	session, err := h.service.Initiate(context.Background(), req.SenderFp, req.ReceiverFp, req.Filename, req.FileSize, req.Signature, req.FileHash)
	if err != nil {
		h.writeRendezvousError(w, err)
		return
	}

	resp := ServeResponse{
		Status:     string(session.Status),
		SessionID:  session.SessionID,
		SocketPort: h.service.SocketPort(),
		Message:    "matched",
		ExpiresIn:  int64(time.Until(session.ExpiresAt) / time.Millisecond),
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleListen backs POST /api/relay/listen.
func (h *Handler) handleListen(w http.ResponseWriter, r *http.Request) {
	var req ListenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	session, err := h.service.Listen(context.Background(), req.ReceiverFp)
	if err != nil {
		h.writeRendezvousError(w, err)
		return
	}

	resp := ListenResponse{
		Status:     string(session.Status),
		SessionID:  session.SessionID,
		SenderFp:   session.SenderFP,
		Filename:   session.Filename,
		FileSize:   session.FileSize,
		Signature:  session.Signature,
		FileHash:   session.FileHash,
		SocketPort: h.service.SocketPort(),
		Message:    "matched",
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleDeleteSession backs DELETE /api/relay/session/{sessionId}. It
// tears down any live socket pairing for the session, not just the
// session record (see registry.ForceClose and DESIGN.md), and always
// reports success: the original controller calls completeSession
// unconditionally and responds 200 "Session completed" even for an
// unknown id, with no documented failure case.
func (h *Handler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionId")
	h.service.ForceClose(sessionID)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Session completed"))
}

func (h *Handler) writeRendezvousError(w http.ResponseWriter, err error) {
	var relayErr *relayerr.Error
	if errors.As(err, &relayErr) {
		switch relayErr.Kind {
		case relayerr.InvalidArgument:
			writeError(w, http.StatusBadRequest, relayErr.Error())
		case relayerr.Timeout:
			writeJSON(w, http.StatusRequestTimeout, timeoutResponse{Status: "timeout"})
		case relayerr.Conflict:
			writeError(w, http.StatusConflict, "a listener is already waiting for this fingerprint")
		case relayerr.SessionAbsent:
			writeError(w, http.StatusNotFound, "session not found")
		default:
			writeError(w, http.StatusInternalServerError, relayErr.Error())
		}
		return
	}
	h.logger.Error("rendezvous call failed", "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Status: "error", Message: msg})
}
