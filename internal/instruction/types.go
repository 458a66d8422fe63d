// Package instruction manages admin-authored instruction blocks and their
// semantic retrieval via pgvector similarity search.
package instruction

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when the instruction does not exist.
	ErrNotFound = errors.New("instruction not found")

	// ErrEmptyContent is returned when creating an instruction without content.
	ErrEmptyContent = errors.New("instruction content must not be empty")
)

// Instruction is a stored text block eligible for semantic retrieval.
// The embedding is computed asynchronously after create/update; a nil
// embedding means the instruction is not yet searchable.
type Instruction struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Category  string    `json:"category"`
	IsActive  bool      `json:"isActive"`
	HasVector bool      `json:"hasVector"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Match is an instruction returned by similarity search.
// Similarity is cosine similarity mapped to [0, 1].
type Match struct {
	Instruction Instruction `json:"instruction"`
	Similarity  float32     `json:"similarity"`
}
