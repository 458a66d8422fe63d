package assembler

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vantigo/vantigo/internal/chatbot"
)

// BusinessInfoFetcher renders the requesting user's business profile.
// User-scoped: without a user context it contributes nothing.
type BusinessInfoFetcher struct {
	pool *pgxpool.Pool
}

func NewBusinessInfoFetcher(pool *pgxpool.Pool) *BusinessInfoFetcher {
	return &BusinessInfoFetcher{pool: pool}
}

func (f *BusinessInfoFetcher) ModuleKey() string { return chatbot.KeyBusinessInfo }

func (f *BusinessInfoFetcher) Fetch(ctx context.Context, uc *UserContext, limit int) (string, error) {
	if uc == nil {
		return "", nil
	}

	var name, industry, description string
	err := f.pool.QueryRow(ctx, `
		SELECT name, industry, description
		FROM business_info WHERE user_id = $1`,
		uc.UserID,
	).Scan(&name, &industry, &description)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("fetching business info: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Business: %s\n", name)
	if industry != "" {
		fmt.Fprintf(&b, "Industry: %s\n", industry)
	}
	if description != "" {
		fmt.Fprintf(&b, "About: %s\n", description)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// MachinesFetcher renders the team's machine inventory. Team-scoped: without
// a user context (or a user with no team) it contributes nothing.
type MachinesFetcher struct {
	pool *pgxpool.Pool
}

func NewMachinesFetcher(pool *pgxpool.Pool) *MachinesFetcher {
	return &MachinesFetcher{pool: pool}
}

func (f *MachinesFetcher) ModuleKey() string { return chatbot.KeyMachines }

func (f *MachinesFetcher) Fetch(ctx context.Context, uc *UserContext, limit int) (string, error) {
	if uc == nil || uc.TeamID == uuid.Nil {
		return "", nil
	}

	rows, err := f.pool.Query(ctx, `
		SELECT name, model, notes
		FROM machines
		WHERE team_id = $1
		ORDER BY name
		LIMIT $2`,
		uc.TeamID, limit,
	)
	if err != nil {
		return "", fmt.Errorf("fetching machines: %w", err)
	}
	defer rows.Close()

	var b strings.Builder
	for rows.Next() {
		var name, model, notes string
		if err := rows.Scan(&name, &model, &notes); err != nil {
			return "", fmt.Errorf("scanning machine row: %w", err)
		}
		fmt.Fprintf(&b, "- %s", name)
		if model != "" {
			fmt.Fprintf(&b, " (%s)", model)
		}
		if notes != "" {
			fmt.Fprintf(&b, ": %s", notes)
		}
		b.WriteByte('\n')
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("reading machine rows: %w", err)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// PlaybooksFetcher renders active platform-wide playbooks. Not user-scoped;
// it resolves for service-level reads too.
type PlaybooksFetcher struct {
	pool *pgxpool.Pool
}

func NewPlaybooksFetcher(pool *pgxpool.Pool) *PlaybooksFetcher {
	return &PlaybooksFetcher{pool: pool}
}

func (f *PlaybooksFetcher) ModuleKey() string { return chatbot.KeyPlaybooks }

func (f *PlaybooksFetcher) Fetch(ctx context.Context, uc *UserContext, limit int) (string, error) {
	rows, err := f.pool.Query(ctx, `
		SELECT title, body
		FROM playbooks
		WHERE is_active
		ORDER BY created_at DESC
		LIMIT $1`,
		limit,
	)
	if err != nil {
		return "", fmt.Errorf("fetching playbooks: %w", err)
	}
	defer rows.Close()

	var parts []string
	for rows.Next() {
		var title, body string
		if err := rows.Scan(&title, &body); err != nil {
			return "", fmt.Errorf("scanning playbook row: %w", err)
		}
		parts = append(parts, fmt.Sprintf("### %s\n%s", title, body))
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("reading playbook rows: %w", err)
	}
	return strings.Join(parts, "\n\n"), nil
}
