package instruction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
)

// Querier is the subset of pool behavior the store uses. *pgxpool.Pool
// implements it; tests substitute a fake.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists instructions in PostgreSQL with a pgvector embedding column.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	db     Querier
	logger *slog.Logger
}

// NewStore creates an instruction Store.
func NewStore(db Querier, logger *slog.Logger) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("querier is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}, nil
}

// Create inserts a new instruction without an embedding. The embedding is
// filled in later by the EmbedWorker.
func (s *Store) Create(ctx context.Context, title, content, category string) (*Instruction, error) {
	if content == "" {
		return nil, ErrEmptyContent
	}
	if category == "" {
		category = "general"
	}

	var inst Instruction
	err := s.db.QueryRow(ctx, `
		INSERT INTO instructions (title, content, category)
		VALUES ($1, $2, $3)
		RETURNING id, title, content, category, is_active,
		          embedding IS NOT NULL, created_at, updated_at`,
		title, content, category,
	).Scan(&inst.ID, &inst.Title, &inst.Content, &inst.Category,
		&inst.IsActive, &inst.HasVector, &inst.CreatedAt, &inst.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("creating instruction: %w", err)
	}

	s.logger.Debug("created instruction", "id", inst.ID, "title", inst.Title)
	return &inst, nil
}

// Update replaces title, content, category, and active state. The embedding
// is cleared because the content it was computed from changed.
func (s *Store) Update(ctx context.Context, id uuid.UUID, title, content, category string, isActive bool) (*Instruction, error) {
	if content == "" {
		return nil, ErrEmptyContent
	}

	var inst Instruction
	err := s.db.QueryRow(ctx, `
		UPDATE instructions
		SET title = $2, content = $3, category = $4, is_active = $5,
		    embedding = NULL, updated_at = now()
		WHERE id = $1
		RETURNING id, title, content, category, is_active,
		          embedding IS NOT NULL, created_at, updated_at`,
		id, title, content, category, isActive,
	).Scan(&inst.ID, &inst.Title, &inst.Content, &inst.Category,
		&inst.IsActive, &inst.HasVector, &inst.CreatedAt, &inst.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("updating instruction %s: %w", id, err)
	}

	return &inst, nil
}

// Get retrieves a single instruction by ID.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Instruction, error) {
	var inst Instruction
	err := s.db.QueryRow(ctx, `
		SELECT id, title, content, category, is_active,
		       embedding IS NOT NULL, created_at, updated_at
		FROM instructions WHERE id = $1`,
		id,
	).Scan(&inst.ID, &inst.Title, &inst.Content, &inst.Category,
		&inst.IsActive, &inst.HasVector, &inst.CreatedAt, &inst.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting instruction %s: %w", id, err)
	}
	return &inst, nil
}

// List returns instructions ordered by creation time, newest first.
func (s *Store) List(ctx context.Context, limit, offset int32) ([]Instruction, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, title, content, category, is_active,
		       embedding IS NOT NULL, created_at, updated_at
		FROM instructions
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("listing instructions: %w", err)
	}
	defer rows.Close()

	var out []Instruction
	for rows.Next() {
		var inst Instruction
		if err := rows.Scan(&inst.ID, &inst.Title, &inst.Content, &inst.Category,
			&inst.IsActive, &inst.HasVector, &inst.CreatedAt, &inst.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning instruction row: %w", err)
		}
		out = append(out, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading instruction rows: %w", err)
	}
	return out, nil
}

// Delete removes an instruction.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM instructions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting instruction %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetEmbedding stores a computed embedding vector for an instruction.
func (s *Store) SetEmbedding(ctx context.Context, id uuid.UUID, vec []float32) error {
	v := pgvector.NewVector(vec)
	tag, err := s.db.Exec(ctx, `
		UPDATE instructions SET embedding = $2, updated_at = now()
		WHERE id = $1`,
		id, v,
	)
	if err != nil {
		return fmt.Errorf("storing embedding for %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SearchSimilar returns the k nearest active instructions to the query
// vector, ordered by descending similarity. Inactive instructions and rows
// without an embedding are excluded in SQL.
func (s *Store) SearchSimilar(ctx context.Context, vec []float32, k int) ([]Match, error) {
	v := pgvector.NewVector(vec)
	rows, err := s.db.Query(ctx, `
		SELECT id, title, content, category, is_active,
		       created_at, updated_at,
		       1 - (embedding <=> $1) AS similarity
		FROM instructions
		WHERE is_active AND embedding IS NOT NULL
		ORDER BY embedding <=> $1
		LIMIT $2`,
		v, k,
	)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		m.Instruction.HasVector = true
		if err := rows.Scan(&m.Instruction.ID, &m.Instruction.Title, &m.Instruction.Content,
			&m.Instruction.Category, &m.Instruction.IsActive,
			&m.Instruction.CreatedAt, &m.Instruction.UpdatedAt, &m.Similarity); err != nil {
			return nil, fmt.Errorf("scanning match row: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading match rows: %w", err)
	}
	return matches, nil
}

// ListPendingEmbedding returns IDs of active instructions that do not have an
// embedding yet, oldest first. Used to backfill the embed queue at startup.
func (s *Store) ListPendingEmbedding(ctx context.Context, limit int32) ([]uuid.UUID, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id FROM instructions
		WHERE embedding IS NULL AND is_active
		ORDER BY created_at
		LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing pending embeddings: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning pending id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading pending ids: %w", err)
	}
	return ids, nil
}
