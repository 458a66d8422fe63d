package chatbot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// uniqueViolation is the PostgreSQL error code for unique constraint breaks.
const uniqueViolation = "23505"

// Querier is the subset of pool behavior the store uses. *pgxpool.Pool
// implements it; tests substitute a fake.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists chatbots and their node links in PostgreSQL.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	db     Querier
	logger *slog.Logger
}

// NewStore creates a chatbot Store.
func NewStore(db Querier, logger *slog.Logger) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("querier is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}, nil
}

// Create inserts a chatbot.
func (s *Store) Create(ctx context.Context, name string, basePrompts []string, modelName string) (*Chatbot, error) {
	if name == "" {
		return nil, fmt.Errorf("chatbot name must not be empty")
	}
	if basePrompts == nil {
		basePrompts = []string{}
	}

	promptsJSON, err := json.Marshal(basePrompts)
	if err != nil {
		return nil, fmt.Errorf("encoding base prompts: %w", err)
	}

	var bot Chatbot
	var rawPrompts []byte
	err = s.db.QueryRow(ctx, `
		INSERT INTO chatbots (name, base_prompts, model_name)
		VALUES ($1, $2, $3)
		RETURNING id, name, base_prompts, model_name, is_active, created_at, updated_at`,
		name, promptsJSON, modelName,
	).Scan(&bot.ID, &bot.Name, &rawPrompts, &bot.ModelName, &bot.IsActive, &bot.CreatedAt, &bot.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("creating chatbot: %w", err)
	}

	if err := json.Unmarshal(rawPrompts, &bot.BasePrompts); err != nil {
		return nil, fmt.Errorf("decoding base prompts: %w", err)
	}

	s.logger.Debug("created chatbot", "id", bot.ID, "name", bot.Name)
	return &bot, nil
}

// Get retrieves a chatbot by ID. Inactive chatbots are returned; callers that
// serve traffic should use GetActive instead.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Chatbot, error) {
	return s.get(ctx, id, false)
}

// GetActive retrieves a chatbot by ID, treating an inactive chatbot the same
// as a missing one.
func (s *Store) GetActive(ctx context.Context, id uuid.UUID) (*Chatbot, error) {
	return s.get(ctx, id, true)
}

func (s *Store) get(ctx context.Context, id uuid.UUID, activeOnly bool) (*Chatbot, error) {
	query := `
		SELECT id, name, base_prompts, model_name, is_active, created_at, updated_at
		FROM chatbots WHERE id = $1`
	if activeOnly {
		query += ` AND is_active`
	}

	var bot Chatbot
	var rawPrompts []byte
	err := s.db.QueryRow(ctx, query, id).Scan(
		&bot.ID, &bot.Name, &rawPrompts, &bot.ModelName, &bot.IsActive, &bot.CreatedAt, &bot.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting chatbot %s: %w", id, err)
	}

	if err := json.Unmarshal(rawPrompts, &bot.BasePrompts); err != nil {
		return nil, fmt.Errorf("decoding base prompts for %s: %w", id, err)
	}
	return &bot, nil
}

// List returns chatbots ordered by creation time, newest first.
func (s *Store) List(ctx context.Context, limit, offset int32) ([]Chatbot, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, name, base_prompts, model_name, is_active, created_at, updated_at
		FROM chatbots
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("listing chatbots: %w", err)
	}
	defer rows.Close()

	var out []Chatbot
	for rows.Next() {
		var bot Chatbot
		var rawPrompts []byte
		if err := rows.Scan(&bot.ID, &bot.Name, &rawPrompts, &bot.ModelName,
			&bot.IsActive, &bot.CreatedAt, &bot.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning chatbot row: %w", err)
		}
		if err := json.Unmarshal(rawPrompts, &bot.BasePrompts); err != nil {
			return nil, fmt.Errorf("decoding base prompts for %s: %w", bot.ID, err)
		}
		out = append(out, bot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading chatbot rows: %w", err)
	}
	return out, nil
}

// Update replaces name, base prompts, model name, and active state.
func (s *Store) Update(ctx context.Context, id uuid.UUID, name string, basePrompts []string, modelName string, isActive bool) (*Chatbot, error) {
	if basePrompts == nil {
		basePrompts = []string{}
	}
	promptsJSON, err := json.Marshal(basePrompts)
	if err != nil {
		return nil, fmt.Errorf("encoding base prompts: %w", err)
	}

	var bot Chatbot
	var rawPrompts []byte
	err = s.db.QueryRow(ctx, `
		UPDATE chatbots
		SET name = $2, base_prompts = $3, model_name = $4, is_active = $5, updated_at = now()
		WHERE id = $1
		RETURNING id, name, base_prompts, model_name, is_active, created_at, updated_at`,
		id, name, promptsJSON, modelName, isActive,
	).Scan(&bot.ID, &bot.Name, &rawPrompts, &bot.ModelName, &bot.IsActive, &bot.CreatedAt, &bot.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("updating chatbot %s: %w", id, err)
	}

	if err := json.Unmarshal(rawPrompts, &bot.BasePrompts); err != nil {
		return nil, fmt.Errorf("decoding base prompts for %s: %w", id, err)
	}
	return &bot, nil
}

// Delete removes a chatbot; node links cascade.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM chatbots WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting chatbot %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AttachNode links a capability node to a chatbot. The node key must exist in
// the registry and the settings must validate; unknown keys are rejected, not
// silently ignored.
func (s *Store) AttachNode(ctx context.Context, chatbotID uuid.UUID, nodeKey string, orderIndex int32, settings NodeSettings) error {
	def, ok := Lookup(nodeKey)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownNode, nodeKey)
	}
	if settings == nil {
		settings = def.NewSettings()
	}
	if err := settings.Validate(); err != nil {
		return err
	}

	raw, err := EncodeSettings(settings)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO chatbot_nodes (chatbot_id, node_key, order_index, settings)
		VALUES ($1, $2, $3, $4)`,
		chatbotID, nodeKey, orderIndex, raw,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case uniqueViolation:
				return fmt.Errorf("%w: %q on chatbot %s", ErrDuplicateNode, nodeKey, chatbotID)
			}
			// Foreign key violation means the chatbot is gone.
			if pgErr.Code == "23503" {
				return ErrNotFound
			}
		}
		return fmt.Errorf("attaching node %q to %s: %w", nodeKey, chatbotID, err)
	}

	s.logger.Debug("attached node", "chatbot_id", chatbotID, "node_key", nodeKey, "order", orderIndex)
	return nil
}

// DetachNode removes a node link.
func (s *Store) DetachNode(ctx context.Context, chatbotID uuid.UUID, nodeKey string) error {
	tag, err := s.db.Exec(ctx, `
		DELETE FROM chatbot_nodes WHERE chatbot_id = $1 AND node_key = $2`,
		chatbotID, nodeKey,
	)
	if err != nil {
		return fmt.Errorf("detaching node %q from %s: %w", nodeKey, chatbotID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListNodes returns a chatbot's node links ordered by order_index. A link
// whose stored settings no longer decode is returned with nil Settings and a
// logged warning so assembly can skip it instead of failing.
func (s *Store) ListNodes(ctx context.Context, chatbotID uuid.UUID) ([]NodeLink, error) {
	rows, err := s.db.Query(ctx, `
		SELECT chatbot_id, node_key, order_index, settings
		FROM chatbot_nodes
		WHERE chatbot_id = $1
		ORDER BY order_index, node_key`,
		chatbotID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing nodes for %s: %w", chatbotID, err)
	}
	defer rows.Close()

	var links []NodeLink
	for rows.Next() {
		var link NodeLink
		var raw []byte
		if err := rows.Scan(&link.ChatbotID, &link.NodeKey, &link.OrderIndex, &raw); err != nil {
			return nil, fmt.Errorf("scanning node row: %w", err)
		}

		settings, decodeErr := DecodeSettings(link.NodeKey, raw)
		if decodeErr != nil {
			s.logger.Warn("node settings failed to decode, link will be skipped",
				"chatbot_id", chatbotID, "node_key", link.NodeKey, "error", decodeErr)
		} else {
			link.Settings = settings
		}
		links = append(links, link)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading node rows: %w", err)
	}
	return links, nil
}
