package instruction

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/vantigo/vantigo/internal/embedding"
)

// defaultQueueSize bounds the embed backlog. Instruction churn is an admin
// activity, so a small buffer is plenty.
const defaultQueueSize = 256

// EmbedWorker computes instruction embeddings in the background so that
// create/update requests never wait on the upstream embedding API.
type EmbedWorker struct {
	store    *Store
	embedder embedding.Embedder
	logger   *slog.Logger
	queue    chan uuid.UUID
}

// NewEmbedWorker creates a worker with the default queue size. The embedder
// should use the document task type, not the query one.
func NewEmbedWorker(store *Store, embedder embedding.Embedder, logger *slog.Logger) *EmbedWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &EmbedWorker{
		store:    store,
		embedder: embedder,
		logger:   logger,
		queue:    make(chan uuid.UUID, defaultQueueSize),
	}
}

// Enqueue schedules an instruction for embedding. A full queue drops the
// request with a warning rather than blocking the caller; the startup
// backfill picks up anything dropped.
func (w *EmbedWorker) Enqueue(id uuid.UUID) {
	select {
	case w.queue <- id:
	default:
		w.logger.Warn("embed queue full, dropping", "instruction_id", id)
	}
}

// Run blocks until ctx is canceled, embedding queued instructions one at a
// time. Callers must track the goroutine with a WaitGroup.
func (w *EmbedWorker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-w.queue:
			w.embedOne(ctx, id)
		}
	}
}

// Backfill enqueues active instructions that are missing an embedding.
// Called once at startup to recover from drops and crashes.
func (w *EmbedWorker) Backfill(ctx context.Context) error {
	ids, err := w.store.ListPendingEmbedding(ctx, defaultQueueSize)
	if err != nil {
		return err
	}
	for _, id := range ids {
		w.Enqueue(id)
	}
	if len(ids) > 0 {
		w.logger.Info("backfilled embed queue", "count", len(ids))
	}
	return nil
}

// embedOne generates and stores the embedding for a single instruction.
// Failures are logged and skipped; the next backfill retries them.
func (w *EmbedWorker) embedOne(ctx context.Context, id uuid.UUID) {
	inst, err := w.store.Get(ctx, id)
	if err != nil {
		// Deleted between enqueue and processing is normal.
		w.logger.Debug("skipping embed", "instruction_id", id, "error", err)
		return
	}

	text := inst.Title + "\n" + inst.Content
	vec, err := w.embedder.Embed(ctx, text)
	if err != nil {
		w.logger.Warn("embedding instruction failed", "instruction_id", id, "error", err)
		return
	}

	if err := w.store.SetEmbedding(ctx, id, vec); err != nil {
		w.logger.Warn("storing embedding failed", "instruction_id", id, "error", err)
		return
	}

	w.logger.Debug("embedded instruction", "instruction_id", id, "dimension", len(vec))
}
