package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/vantigo/vantigo/internal/authz"
	"github.com/vantigo/vantigo/internal/embedding"
	"github.com/vantigo/vantigo/internal/instruction"
)

// InstructionStore is the instruction persistence surface the handlers
// depend on. *instruction.Store implements it.
type InstructionStore interface {
	Create(ctx context.Context, title, content, category string) (*instruction.Instruction, error)
	Get(ctx context.Context, id uuid.UUID) (*instruction.Instruction, error)
	List(ctx context.Context, limit, offset int32) ([]instruction.Instruction, error)
	Update(ctx context.Context, id uuid.UUID, title, content, category string, isActive bool) (*instruction.Instruction, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// RelevanceMatcher runs similarity search for the search endpoint.
// *instruction.Matcher implements it.
type RelevanceMatcher interface {
	FindRelevant(ctx context.Context, query string, k int, threshold float32) ([]instruction.Match, error)
}

// Enqueuer schedules background embedding work. *instruction.EmbedWorker
// implements it.
type Enqueuer interface {
	Enqueue(id uuid.UUID)
}

type instructionHandler struct {
	store    InstructionStore
	matcher  RelevanceMatcher
	worker   Enqueuer
	cache    *embedding.Cache
	defaultK int
	logger   *slog.Logger
}

type instructionRequest struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	Category string `json:"category,omitempty"`
	IsActive *bool  `json:"isActive,omitempty"`
}

type searchRequest struct {
	Query     string   `json:"query"`
	K         int      `json:"k,omitempty"`
	Threshold *float32 `json:"threshold,omitempty"`
}

func (h *instructionHandler) requireManage(w http.ResponseWriter, r *http.Request) bool {
	p, ok := principalFromContext(r.Context())
	if !ok {
		WriteError(w, http.StatusUnauthorized, "unauthenticated", "authentication required", h.logger)
		return false
	}
	if d := authz.Authorize(p, authz.ActionManageInstructions); !d.Allow {
		WriteError(w, http.StatusForbidden, "forbidden", d.Reason, h.logger)
		return false
	}
	return true
}

func (h *instructionHandler) list(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	items, err := h.store.List(r.Context(), limit, offset)
	if err != nil {
		h.logger.Error("listing instructions", "error", err)
		WriteError(w, http.StatusInternalServerError, "internal_error", "could not list instructions", h.logger)
		return
	}
	if items == nil {
		items = []instruction.Instruction{}
	}
	WriteJSON(w, http.StatusOK, map[string]any{"instructions": items})
}

func (h *instructionHandler) create(w http.ResponseWriter, r *http.Request) {
	if !h.requireManage(w, r) {
		return
	}

	var req instructionRequest
	if err := readJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "bad_request", err.Error(), h.logger)
		return
	}

	inst, err := h.store.Create(r.Context(), req.Title, req.Content, req.Category)
	if err != nil {
		h.writeStoreError(w, err, "could not create instruction")
		return
	}

	// Embedding happens asynchronously; the instruction joins relevance
	// matching once the worker has processed it.
	if h.worker != nil {
		h.worker.Enqueue(inst.ID)
	}
	WriteJSON(w, http.StatusCreated, inst)
}

func (h *instructionHandler) update(w http.ResponseWriter, r *http.Request) {
	if !h.requireManage(w, r) {
		return
	}
	id, ok := pathUUID(w, r, "id", h.logger)
	if !ok {
		return
	}

	var req instructionRequest
	if err := readJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "bad_request", err.Error(), h.logger)
		return
	}
	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	inst, err := h.store.Update(r.Context(), id, req.Title, req.Content, req.Category, isActive)
	if err != nil {
		h.writeStoreError(w, err, "could not update instruction")
		return
	}

	// Content changed, the stored embedding was cleared; re-embed.
	if h.worker != nil {
		h.worker.Enqueue(inst.ID)
	}
	WriteJSON(w, http.StatusOK, inst)
}

func (h *instructionHandler) delete(w http.ResponseWriter, r *http.Request) {
	if !h.requireManage(w, r) {
		return
	}
	id, ok := pathUUID(w, r, "id", h.logger)
	if !ok {
		return
	}

	if err := h.store.Delete(r.Context(), id); err != nil {
		h.writeStoreError(w, err, "could not delete instruction")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// search runs relevance matching over the instruction corpus. An upstream
// embedding failure yields an empty match list, not an error; only a search
// infrastructure failure is a 5xx.
func (h *instructionHandler) search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := readJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "bad_request", err.Error(), h.logger)
		return
	}

	k := req.K
	if k <= 0 {
		k = h.defaultK
	}
	var threshold float32 = 0.6
	if req.Threshold != nil {
		threshold = *req.Threshold
	}

	matches, err := h.matcher.FindRelevant(r.Context(), req.Query, k, threshold)
	if err != nil {
		h.logger.Error("instruction search failed", "error", err)
		WriteError(w, http.StatusInternalServerError, "internal_error", "search failed", h.logger)
		return
	}
	if matches == nil {
		matches = []instruction.Match{}
	}
	WriteJSON(w, http.StatusOK, map[string]any{"matches": matches})
}

// cacheStats reports embedding cache hit/miss counters.
func (h *instructionHandler) cacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		WriteError(w, http.StatusNotFound, "not_found", "no embedding cache configured", h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, h.cache.Stats())
}

// cacheClear drops cached embeddings. Counters survive the clear so hit-rate
// history stays meaningful across flushes.
func (h *instructionHandler) cacheClear(w http.ResponseWriter, r *http.Request) {
	if !h.requireManage(w, r) {
		return
	}
	if h.cache == nil {
		WriteError(w, http.StatusNotFound, "not_found", "no embedding cache configured", h.logger)
		return
	}
	h.cache.Clear()
	w.WriteHeader(http.StatusNoContent)
}

func (h *instructionHandler) writeStoreError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, instruction.ErrNotFound):
		WriteError(w, http.StatusNotFound, "not_found", "instruction not found", h.logger)
	case errors.Is(err, instruction.ErrEmptyContent):
		WriteError(w, http.StatusBadRequest, "bad_request", err.Error(), h.logger)
	default:
		h.logger.Error(fallback, "error", err)
		WriteError(w, http.StatusInternalServerError, "internal_error", fallback, h.logger)
	}
}
