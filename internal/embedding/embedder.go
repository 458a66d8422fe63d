// Package embedding provides vector embedding generation and an in-process
// memoization cache for query embeddings.
package embedding

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// TaskType selects how the upstream model optimizes a vector.
// Queries and stored documents use asymmetric task types for better
// retrieval quality.
type TaskType string

const (
	TaskQuery    TaskType = "RETRIEVAL_QUERY"
	TaskDocument TaskType = "RETRIEVAL_DOCUMENT"
)

// Embedder generates a fixed-dimension vector for a text.
// Implementations must be safe for concurrent use.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// GeminiEmbedder generates embeddings via the Gemini API.
type GeminiEmbedder struct {
	client    *genai.Client
	model     string
	taskType  TaskType
	dimension int32
}

// NewGeminiEmbedder creates a Gemini-backed embedder. The model's native
// output is truncated to dimension via OutputDimensionality, which must match
// the pgvector column width.
func NewGeminiEmbedder(ctx context.Context, apiKey, model string, dimension int32, taskType TaskType) (*GeminiEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if model == "" {
		model = "gemini-embedding-001"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}

	return &GeminiEmbedder{
		client:    client,
		model:     model,
		taskType:  taskType,
		dimension: dimension,
	}, nil
}

// Embed generates an embedding for a single text.
func (e *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	dim := e.dimension
	contents := []*genai.Content{
		genai.NewContentFromText(text, genai.RoleUser),
	}

	result, err := e.client.Models.EmbedContent(ctx, e.model, contents, &genai.EmbedContentConfig{
		TaskType:             string(e.taskType),
		OutputDimensionality: &dim,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding text: %w", err)
	}

	if len(result.Embeddings) == 0 || len(result.Embeddings[0].Values) == 0 {
		return nil, fmt.Errorf("empty embedding response")
	}

	return result.Embeddings[0].Values, nil
}

// Dimension returns the configured output dimensionality.
func (e *GeminiEmbedder) Dimension() int32 {
	return e.dimension
}
