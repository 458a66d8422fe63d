package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/vantigo/vantigo/internal/authz"
	"github.com/vantigo/vantigo/internal/impersonate"
)

type impersonationHandler struct {
	codec  *impersonate.Codec
	dir    UserDirectory
	ttl    time.Duration
	isDev  bool
	logger *slog.Logger
}

type impersonateRequest struct {
	UserID string `json:"userId"`
}

// start opens an impersonation session: superadmin only, member targets
// only, never while already impersonating.
func (h *impersonationHandler) start(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFromContext(r.Context())
	if !ok {
		WriteError(w, http.StatusUnauthorized, "unauthenticated", "authentication required", h.logger)
		return
	}
	if d := authz.Authorize(p, authz.ActionImpersonate); !d.Allow {
		WriteError(w, http.StatusForbidden, "forbidden", d.Reason, h.logger)
		return
	}

	var req impersonateRequest
	if err := readJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "bad_request", err.Error(), h.logger)
		return
	}
	targetID, err := uuid.Parse(req.UserID)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "bad_request", "userId must be a UUID", h.logger)
		return
	}

	target, err := h.dir.Get(r.Context(), targetID)
	if err != nil {
		WriteError(w, http.StatusNotFound, "not_found", "target user not found", h.logger)
		return
	}

	state, err := h.codec.Start(p.UserID, target.ID, target.Role, h.ttl)
	if err != nil {
		if errors.Is(err, impersonate.ErrRoleNotAllowed) {
			WriteError(w, http.StatusForbidden, "role_not_allowed", "only members can be impersonated", h.logger)
			return
		}
		h.logger.Error("starting impersonation", "error", err)
		WriteError(w, http.StatusInternalServerError, "internal_error", "could not start impersonation", h.logger)
		return
	}

	token, err := h.codec.Encode(*state)
	if err != nil {
		h.logger.Error("encoding impersonation state", "error", err)
		WriteError(w, http.StatusInternalServerError, "internal_error", "could not start impersonation", h.logger)
		return
	}

	impersonate.SetCookie(w, token, state.ExpiresAt, state.StartedAt, h.isDev)
	h.logger.Info("impersonation started",
		"superadmin_id", p.UserID, "target_id", target.ID, "expires_at", state.ExpiresAt)
	WriteJSON(w, http.StatusOK, map[string]any{
		"userId":    target.ID,
		"expiresAt": state.ExpiresAt,
	})
}

// stop ends the impersonation session by clearing the cookie. Idempotent.
func (h *impersonationHandler) stop(w http.ResponseWriter, r *http.Request) {
	if p, ok := principalFromContext(r.Context()); ok && p.Impersonated {
		h.logger.Info("impersonation stopped", "target_id", p.UserID)
	}
	impersonate.ClearCookie(w, h.isDev)
	w.WriteHeader(http.StatusNoContent)
}
