package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/vantigo/vantigo/internal/assembler"
	"github.com/vantigo/vantigo/internal/authz"
	"github.com/vantigo/vantigo/internal/chatbot"
	"github.com/vantigo/vantigo/internal/sanitize"
)

// PromptAssembler builds prompts. *assembler.Assembler implements it.
type PromptAssembler interface {
	Assemble(ctx context.Context, chatbotID uuid.UUID, uc *assembler.UserContext, query string) (*assembler.Result, error)
}

type assembleHandler struct {
	assembler PromptAssembler
	screen    *sanitize.Screen
	logger    *slog.Logger
}

type assembleRequest struct {
	ChatbotID  string `json:"chatbotId"`
	UserID     string `json:"userId,omitempty"`
	TeamID     string `json:"teamId,omitempty"`
	Query      string `json:"query,omitempty"`
	Structured bool   `json:"structured,omitempty"`
}

// assemble builds a prompt for a chatbot request. The caller's identity
// scopes data modules unless the body names an explicit user scope, which
// service-level integrations use.
func (h *assembleHandler) assemble(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFromContext(r.Context())
	if !ok {
		WriteError(w, http.StatusUnauthorized, "unauthenticated", "authentication required", h.logger)
		return
	}
	if d := authz.Authorize(p, authz.ActionAssemblePrompt); !d.Allow {
		WriteError(w, http.StatusForbidden, "forbidden", d.Reason, h.logger)
		return
	}

	var req assembleRequest
	if err := readJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "bad_request", err.Error(), h.logger)
		return
	}

	chatbotID, err := uuid.Parse(req.ChatbotID)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "bad_request", "chatbotId must be a UUID", h.logger)
		return
	}

	// An explicit body scope reads another user's or team's data modules,
	// so it needs more than the base assemble permission.
	if req.UserID != "" || req.TeamID != "" {
		if d := authz.Authorize(p, authz.ActionAssembleOnBehalf); !d.Allow {
			WriteError(w, http.StatusForbidden, "forbidden", d.Reason, h.logger)
			return
		}
	}

	uc, err := h.userContext(r, req)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "bad_request", err.Error(), h.logger)
		return
	}

	if !h.screenQuery(w, p.UserID, req.Query) {
		return
	}

	result, err := h.assembler.Assemble(r.Context(), chatbotID, uc, req.Query)
	if err != nil {
		h.writeAssembleError(w, err)
		return
	}

	if req.Structured {
		WriteJSON(w, http.StatusOK, result)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"prompt": result.Prompt})
}

// readContext returns the full structured assembly for the caller, mainly
// for the admin UI's "what will this chatbot see" view.
func (h *assembleHandler) readContext(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFromContext(r.Context())
	if !ok {
		WriteError(w, http.StatusUnauthorized, "unauthenticated", "authentication required", h.logger)
		return
	}
	if d := authz.Authorize(p, authz.ActionReadContext); !d.Allow {
		WriteError(w, http.StatusForbidden, "forbidden", d.Reason, h.logger)
		return
	}

	chatbotID, err := uuid.Parse(r.PathValue("chatbotID"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "bad_request", "chatbot ID must be a UUID", h.logger)
		return
	}

	uc := &assembler.UserContext{UserID: p.UserID}
	if user, ok := userFromContext(r.Context()); ok {
		uc.TeamID = user.TeamID
	}

	query := r.URL.Query().Get("query")
	if !h.screenQuery(w, p.UserID, query) {
		return
	}

	result, err := h.assembler.Assemble(r.Context(), chatbotID, uc, query)
	if err != nil {
		h.writeAssembleError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

// userContext resolves the data-module scope for an assemble request: the
// explicit body scope when present, otherwise the caller's identity.
func (h *assembleHandler) userContext(r *http.Request, req assembleRequest) (*assembler.UserContext, error) {
	if req.UserID == "" && req.TeamID == "" {
		p, _ := principalFromContext(r.Context())
		uc := &assembler.UserContext{UserID: p.UserID}
		if user, ok := userFromContext(r.Context()); ok {
			uc.TeamID = user.TeamID
		}
		return uc, nil
	}

	uc := &assembler.UserContext{}
	if req.UserID != "" {
		id, err := uuid.Parse(req.UserID)
		if err != nil {
			return nil, errors.New("userId must be a UUID")
		}
		uc.UserID = id
	}
	if req.TeamID != "" {
		id, err := uuid.Parse(req.TeamID)
		if err != nil {
			return nil, errors.New("teamId must be a UUID")
		}
		uc.TeamID = id
	}
	return uc, nil
}

// screenQuery rejects queries that match injection patterns before they
// reach the embedding and assembly pipeline. Reports false after writing
// the error response.
func (h *assembleHandler) screenQuery(w http.ResponseWriter, userID uuid.UUID, query string) bool {
	if query == "" {
		return true
	}
	report := h.screen.Scan(query)
	if report.Clean {
		return true
	}
	h.logger.Warn("query rejected by injection screen",
		"user_id", userID, "patterns", len(report.Patterns))
	WriteError(w, http.StatusBadRequest, "unsafe_query",
		"query rejected by input screening", h.logger)
	return false
}

func (h *assembleHandler) writeAssembleError(w http.ResponseWriter, err error) {
	if errors.Is(err, chatbot.ErrNotFound) {
		WriteError(w, http.StatusNotFound, "not_found", "chatbot not found", h.logger)
		return
	}
	h.logger.Error("prompt assembly failed", "error", err)
	WriteError(w, http.StatusInternalServerError, "internal_error", "prompt assembly failed", h.logger)
}
