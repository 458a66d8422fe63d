//go:build integration
// +build integration

package instruction

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/vantigo/vantigo/internal/config"
	"github.com/vantigo/vantigo/internal/testutil"
)

// testVector returns a deterministic vector for similarity tests.
func testVector(seed float32) []float32 {
	vec := make([]float32, config.EmbeddingDimension)
	for i := range vec {
		vec[i] = seed
	}
	vec[0] = 1
	return vec
}

func TestStoreLifecycle(t *testing.T) {
	pg, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store, err := NewStore(pg.Pool, testutil.QuietLogger())
	if err != nil {
		t.Fatal(err)
	}

	inst, err := store.Create(ctx, "Pricing", "Quote list price first.", "sales")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if inst.HasVector {
		t.Error("new instruction should have no vector")
	}

	if err := store.SetEmbedding(ctx, inst.ID, testVector(0.01)); err != nil {
		t.Fatalf("SetEmbedding: %v", err)
	}

	got, err := store.Get(ctx, inst.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !got.HasVector {
		t.Error("embedding not recorded")
	}

	matches, err := store.SearchSimilar(ctx, testVector(0.01), 5)
	if err != nil {
		t.Fatalf("SearchSimilar: %v", err)
	}
	if len(matches) != 1 || matches[0].Instruction.ID != inst.ID {
		t.Fatalf("SearchSimilar returned %d matches", len(matches))
	}
	if matches[0].Similarity < 0.99 {
		t.Errorf("self-similarity = %v, want ~1", matches[0].Similarity)
	}

	// Updating content invalidates the stored embedding.
	updated, err := store.Update(ctx, inst.ID, "Pricing", "Always quote list price.", "sales", true)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.HasVector {
		t.Error("update should clear the embedding")
	}

	pending, err := store.ListPendingEmbedding(ctx, 10)
	if err != nil {
		t.Fatalf("ListPendingEmbedding: %v", err)
	}
	if len(pending) != 1 || pending[0] != inst.ID {
		t.Errorf("pending = %v, want [%s]", pending, inst.ID)
	}

	if err := store.Delete(ctx, inst.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Get(ctx, inst.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after delete = %v, want ErrNotFound", err)
	}
	if err := store.Delete(ctx, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete unknown = %v, want ErrNotFound", err)
	}
}

func TestSearchSimilarSkipsInactiveAndUnembedded(t *testing.T) {
	pg, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store, err := NewStore(pg.Pool, testutil.QuietLogger())
	if err != nil {
		t.Fatal(err)
	}

	embedded, err := store.Create(ctx, "Embedded", "content", "general")
	if err != nil {
		t.Fatal(err)
	}
	if err := store.SetEmbedding(ctx, embedded.ID, testVector(0.02)); err != nil {
		t.Fatal(err)
	}

	// Never embedded: must not appear.
	if _, err := store.Create(ctx, "Unembedded", "content", "general"); err != nil {
		t.Fatal(err)
	}

	// Embedded but deactivated: must not appear.
	inactive, err := store.Create(ctx, "Inactive", "content", "general")
	if err != nil {
		t.Fatal(err)
	}
	if err := store.SetEmbedding(ctx, inactive.ID, testVector(0.02)); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Update(ctx, inactive.ID, "Inactive", "content", "general", false); err != nil {
		t.Fatal(err)
	}

	matches, err := store.SearchSimilar(ctx, testVector(0.02), 10)
	if err != nil {
		t.Fatalf("SearchSimilar: %v", err)
	}
	if len(matches) != 1 || matches[0].Instruction.ID != embedded.ID {
		t.Fatalf("matches = %d, want only the active embedded instruction", len(matches))
	}
}
