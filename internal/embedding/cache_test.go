package embedding

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vantigo/vantigo/internal/log"
)

// fakeClock is a controllable clock for TTL tests.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = f.t.Add(d)
}

func TestCacheGetAfterPut(t *testing.T) {
	clock := newFakeClock()
	cache := NewCache(10*time.Minute, 16, clock.Now)

	vec := []float32{0.1, 0.2, 0.3}
	cache.Put("How do I price a job?", vec)

	got, ok := cache.Get("how do i price a job?  ")
	if !ok {
		t.Fatal("expected hit for normalized key")
	}
	if len(got) != 3 || got[0] != 0.1 {
		t.Errorf("got %v, want %v", got, vec)
	}

	stats := cache.Stats()
	if stats.Hits != 1 || stats.Misses != 0 {
		t.Errorf("stats = %+v, want 1 hit, 0 misses", stats)
	}
}

func TestCacheHitCounterIncrementsOncePerLookup(t *testing.T) {
	clock := newFakeClock()
	cache := NewCache(time.Minute, 16, clock.Now)
	cache.Put("q", []float32{1})

	for i := 0; i < 3; i++ {
		if _, ok := cache.Get("q"); !ok {
			t.Fatal("expected hit")
		}
	}

	if stats := cache.Stats(); stats.Hits != 3 {
		t.Errorf("hits = %d, want 3", stats.Hits)
	}
}

func TestCacheTTLExpiry(t *testing.T) {
	clock := newFakeClock()
	cache := NewCache(5*time.Minute, 16, clock.Now)
	cache.Put("q", []float32{1})

	clock.Advance(4 * time.Minute)
	if _, ok := cache.Get("q"); !ok {
		t.Fatal("entry should still be fresh at 4m")
	}

	clock.Advance(2 * time.Minute)
	if _, ok := cache.Get("q"); ok {
		t.Fatal("entry should have expired at 6m")
	}

	stats := cache.Stats()
	if stats.Size != 0 {
		t.Errorf("expired entry should be purged, size = %d", stats.Size)
	}
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("stats = %+v, want 1 hit, 1 miss", stats)
	}
}

func TestCacheMaxEntriesEvictsOldest(t *testing.T) {
	clock := newFakeClock()
	cache := NewCache(time.Hour, 2, clock.Now)

	cache.Put("a", []float32{1})
	clock.Advance(time.Second)
	cache.Put("b", []float32{2})
	clock.Advance(time.Second)
	cache.Put("c", []float32{3})

	if _, ok := cache.Get("a"); ok {
		t.Error("oldest entry should have been evicted")
	}
	if _, ok := cache.Get("b"); !ok {
		t.Error("entry b should survive")
	}
	if _, ok := cache.Get("c"); !ok {
		t.Error("entry c should survive")
	}
}

func TestCacheClearKeepsCounters(t *testing.T) {
	cache := NewCache(time.Minute, 16, nil)
	cache.Put("q", []float32{1})
	cache.Get("q")
	cache.Clear()

	stats := cache.Stats()
	if stats.Size != 0 {
		t.Errorf("size = %d after clear, want 0", stats.Size)
	}
	if stats.Hits != 1 {
		t.Errorf("hits = %d after clear, want 1", stats.Hits)
	}
}

func TestCacheHitRate(t *testing.T) {
	cache := NewCache(time.Minute, 16, nil)

	if rate := cache.Stats().HitRate; rate != 0 {
		t.Errorf("hit rate with no lookups = %v, want 0", rate)
	}

	cache.Put("q", []float32{1})
	cache.Get("q")       // hit
	cache.Get("missing") // miss

	if rate := cache.Stats().HitRate; rate != 0.5 {
		t.Errorf("hit rate = %v, want 0.5", rate)
	}
}

func TestCacheConcurrentAccess(t *testing.T) {
	cache := NewCache(time.Minute, 64, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				cache.Put("shared", []float32{1, 2})
				cache.Get("shared")
				cache.Stats()
			}
		}()
	}
	wg.Wait()
}

// stubEmbedder returns a fixed vector or error and counts calls.
type stubEmbedder struct {
	vec   []float32
	err   error
	calls int
}

func (s *stubEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.vec, nil
}

func TestCachedEmbedderNoRecomputation(t *testing.T) {
	stub := &stubEmbedder{vec: []float32{0.5, 0.5}}
	cache := NewCache(time.Minute, 16, nil)
	ce := NewCachedEmbedder(stub, cache, log.NewNop())

	ctx := context.Background()
	first, err := ce.Embed(ctx, "repeat me")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	second, err := ce.Embed(ctx, "Repeat Me")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}

	if stub.calls != 1 {
		t.Errorf("upstream called %d times, want 1", stub.calls)
	}
	if len(first) != len(second) || first[0] != second[0] {
		t.Errorf("cached vector differs: %v vs %v", first, second)
	}
}

func TestCachedEmbedderPropagatesUpstreamError(t *testing.T) {
	wantErr := errors.New("quota exceeded")
	stub := &stubEmbedder{err: wantErr}
	ce := NewCachedEmbedder(stub, NewCache(time.Minute, 16, nil), log.NewNop())

	if _, err := ce.Embed(context.Background(), "q"); !errors.Is(err, wantErr) {
		t.Fatalf("Embed() error = %v, want wrapped %v", err, wantErr)
	}

	// Failure must not poison the cache.
	stub.err = nil
	stub.vec = []float32{1}
	if _, err := ce.Embed(context.Background(), "q"); err != nil {
		t.Fatalf("Embed() after recovery error = %v", err)
	}
	if stub.calls != 2 {
		t.Errorf("upstream called %d times, want 2", stub.calls)
	}
}
