// Package session exposes session termination. Logout revokes the caller's
// own token; forced revocation lets a System Admin cut another session loose,
// which also closes its live websocket feeds at the next heartbeat.
package session

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"cratekeeper/internal/session/revocation"
	id "cratekeeper/pkg/domain"
	dErrors "cratekeeper/pkg/domain-errors"
	"cratekeeper/pkg/platform/httputil"
	"cratekeeper/pkg/requestcontext"
)

type Handler struct {
	revocation revocation.List
	tokenTTL   time.Duration
	logger     *slog.Logger
}

// NewHandler builds the session endpoints. tokenTTL bounds how long a
// revocation entry must outlive the token it kills.
func NewHandler(list revocation.List, tokenTTL time.Duration, logger *slog.Logger) *Handler {
	return &Handler{revocation: list, tokenTTL: tokenTTL, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/auth/logout", h.handleLogout)
	r.Post("/sessions/{sessionID}/revoke", h.handleForceRevoke)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := requestcontext.SessionID(ctx)
	if sessionID == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "no session to log out"))
		return
	}
	if err := h.revocation.Revoke(ctx, sessionID, h.tokenTTL); err != nil {
		h.logger.ErrorContext(ctx, "logout revocation failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "failed to revoke session"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleForceRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if requestcontext.Role(ctx) != id.RoleSystemAdmin {
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "only a System Admin may revoke other sessions"))
		return
	}
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "session id is required"))
		return
	}
	if err := h.revocation.Revoke(ctx, sessionID, h.tokenTTL); err != nil {
		h.logger.ErrorContext(ctx, "forced revocation failed",
			"request_id", requestcontext.RequestID(ctx),
			"session_id", sessionID,
			"error", err,
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "failed to revoke session"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
