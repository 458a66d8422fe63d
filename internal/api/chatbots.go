package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/vantigo/vantigo/internal/authz"
	"github.com/vantigo/vantigo/internal/chatbot"
)

const defaultPageSize = 50

// ChatbotStore is the chatbot persistence surface the handlers depend on.
// *chatbot.Store implements it; tests provide mocks.
type ChatbotStore interface {
	Create(ctx context.Context, name string, basePrompts []string, modelName string) (*chatbot.Chatbot, error)
	Get(ctx context.Context, id uuid.UUID) (*chatbot.Chatbot, error)
	List(ctx context.Context, limit, offset int32) ([]chatbot.Chatbot, error)
	Update(ctx context.Context, id uuid.UUID, name string, basePrompts []string, modelName string, isActive bool) (*chatbot.Chatbot, error)
	Delete(ctx context.Context, id uuid.UUID) error
	AttachNode(ctx context.Context, chatbotID uuid.UUID, nodeKey string, orderIndex int32, settings chatbot.NodeSettings) error
	DetachNode(ctx context.Context, chatbotID uuid.UUID, nodeKey string) error
	ListNodes(ctx context.Context, chatbotID uuid.UUID) ([]chatbot.NodeLink, error)
}

type chatbotHandler struct {
	store  ChatbotStore
	logger *slog.Logger
}

type chatbotRequest struct {
	Name        string   `json:"name"`
	BasePrompts []string `json:"basePrompts"`
	ModelName   string   `json:"modelName"`
	IsActive    *bool    `json:"isActive,omitempty"`
}

type attachNodeRequest struct {
	NodeKey    string          `json:"nodeKey"`
	OrderIndex int32           `json:"orderIndex"`
	Settings   json.RawMessage `json:"settings,omitempty"`
}

func (h *chatbotHandler) requireManage(w http.ResponseWriter, r *http.Request) bool {
	p, ok := principalFromContext(r.Context())
	if !ok {
		WriteError(w, http.StatusUnauthorized, "unauthenticated", "authentication required", h.logger)
		return false
	}
	if d := authz.Authorize(p, authz.ActionManageChatbots); !d.Allow {
		WriteError(w, http.StatusForbidden, "forbidden", d.Reason, h.logger)
		return false
	}
	return true
}

func (h *chatbotHandler) list(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	bots, err := h.store.List(r.Context(), limit, offset)
	if err != nil {
		h.logger.Error("listing chatbots", "error", err)
		WriteError(w, http.StatusInternalServerError, "internal_error", "could not list chatbots", h.logger)
		return
	}
	if bots == nil {
		bots = []chatbot.Chatbot{}
	}
	WriteJSON(w, http.StatusOK, map[string]any{"chatbots": bots})
}

func (h *chatbotHandler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id", h.logger)
	if !ok {
		return
	}

	bot, err := h.store.Get(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, err, "could not get chatbot")
		return
	}

	links, err := h.store.ListNodes(r.Context(), id)
	if err != nil {
		h.logger.Error("listing nodes", "chatbot_id", id, "error", err)
		WriteError(w, http.StatusInternalServerError, "internal_error", "could not list nodes", h.logger)
		return
	}
	if links == nil {
		links = []chatbot.NodeLink{}
	}
	WriteJSON(w, http.StatusOK, map[string]any{"chatbot": bot, "nodes": links})
}

func (h *chatbotHandler) create(w http.ResponseWriter, r *http.Request) {
	if !h.requireManage(w, r) {
		return
	}

	var req chatbotRequest
	if err := readJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "bad_request", err.Error(), h.logger)
		return
	}
	if req.Name == "" {
		WriteError(w, http.StatusBadRequest, "bad_request", "name is required", h.logger)
		return
	}

	bot, err := h.store.Create(r.Context(), req.Name, req.BasePrompts, req.ModelName)
	if err != nil {
		h.logger.Error("creating chatbot", "error", err)
		WriteError(w, http.StatusInternalServerError, "internal_error", "could not create chatbot", h.logger)
		return
	}
	WriteJSON(w, http.StatusCreated, bot)
}

func (h *chatbotHandler) update(w http.ResponseWriter, r *http.Request) {
	if !h.requireManage(w, r) {
		return
	}
	id, ok := pathUUID(w, r, "id", h.logger)
	if !ok {
		return
	}

	var req chatbotRequest
	if err := readJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "bad_request", err.Error(), h.logger)
		return
	}
	if req.Name == "" {
		WriteError(w, http.StatusBadRequest, "bad_request", "name is required", h.logger)
		return
	}
	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	bot, err := h.store.Update(r.Context(), id, req.Name, req.BasePrompts, req.ModelName, isActive)
	if err != nil {
		h.writeStoreError(w, err, "could not update chatbot")
		return
	}
	WriteJSON(w, http.StatusOK, bot)
}

func (h *chatbotHandler) delete(w http.ResponseWriter, r *http.Request) {
	if !h.requireManage(w, r) {
		return
	}
	id, ok := pathUUID(w, r, "id", h.logger)
	if !ok {
		return
	}

	if err := h.store.Delete(r.Context(), id); err != nil {
		h.writeStoreError(w, err, "could not delete chatbot")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *chatbotHandler) listNodes(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id", h.logger)
	if !ok {
		return
	}

	links, err := h.store.ListNodes(r.Context(), id)
	if err != nil {
		h.logger.Error("listing nodes", "chatbot_id", id, "error", err)
		WriteError(w, http.StatusInternalServerError, "internal_error", "could not list nodes", h.logger)
		return
	}
	if links == nil {
		links = []chatbot.NodeLink{}
	}
	WriteJSON(w, http.StatusOK, map[string]any{"nodes": links})
}

func (h *chatbotHandler) attachNode(w http.ResponseWriter, r *http.Request) {
	if !h.requireManage(w, r) {
		return
	}
	id, ok := pathUUID(w, r, "id", h.logger)
	if !ok {
		return
	}

	var req attachNodeRequest
	if err := readJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "bad_request", err.Error(), h.logger)
		return
	}
	if req.NodeKey == "" {
		WriteError(w, http.StatusBadRequest, "bad_request", "nodeKey is required", h.logger)
		return
	}

	settings, err := chatbot.DecodeSettings(req.NodeKey, req.Settings)
	if err != nil {
		h.writeStoreError(w, err, "invalid node settings")
		return
	}

	if err := h.store.AttachNode(r.Context(), id, req.NodeKey, req.OrderIndex, settings); err != nil {
		h.writeStoreError(w, err, "could not attach node")
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (h *chatbotHandler) detachNode(w http.ResponseWriter, r *http.Request) {
	if !h.requireManage(w, r) {
		return
	}
	id, ok := pathUUID(w, r, "id", h.logger)
	if !ok {
		return
	}

	if err := h.store.DetachNode(r.Context(), id, r.PathValue("key")); err != nil {
		h.writeStoreError(w, err, "could not detach node")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// listDefinitions exposes the static node registry so the admin UI can offer
// valid node keys.
func (h *chatbotHandler) listDefinitions(w http.ResponseWriter, _ *http.Request) {
	type definition struct {
		Key  string           `json:"key"`
		Name string           `json:"name"`
		Type chatbot.NodeType `json:"type"`
	}
	defs := chatbot.Definitions()
	out := make([]definition, 0, len(defs))
	for _, d := range defs {
		out = append(out, definition{Key: d.Key, Name: d.Name, Type: d.Type})
	}
	WriteJSON(w, http.StatusOK, map[string]any{"definitions": out})
}

func (h *chatbotHandler) writeStoreError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, chatbot.ErrNotFound):
		WriteError(w, http.StatusNotFound, "not_found", "chatbot not found", h.logger)
	case errors.Is(err, chatbot.ErrUnknownNode):
		WriteError(w, http.StatusBadRequest, "unknown_node", err.Error(), h.logger)
	case errors.Is(err, chatbot.ErrInvalidSettings):
		WriteError(w, http.StatusBadRequest, "invalid_settings", err.Error(), h.logger)
	case errors.Is(err, chatbot.ErrDuplicateNode):
		WriteError(w, http.StatusConflict, "duplicate_node", err.Error(), h.logger)
	default:
		h.logger.Error(fallback, "error", err)
		WriteError(w, http.StatusInternalServerError, "internal_error", fallback, h.logger)
	}
}

// pathUUID parses a UUID path segment, writing a 400 on failure.
func pathUUID(w http.ResponseWriter, r *http.Request, segment string, logger *slog.Logger) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(segment))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "bad_request", segment+" must be a UUID", logger)
		return uuid.Nil, false
	}
	return id, true
}

// pagination reads limit/offset query parameters with sane bounds.
func pagination(r *http.Request) (limit, offset int32) {
	limit = defaultPageSize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.ParseInt(raw, 10, 32); err == nil && n > 0 && n <= 200 {
			limit = int32(n)
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if n, err := strconv.ParseInt(raw, 10, 32); err == nil && n >= 0 {
			offset = int32(n)
		}
	}
	return limit, offset
}
