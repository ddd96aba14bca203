package engine

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/scrypster/bri/internal/storage"
	"github.com/scrypster/bri/internal/storage/sqlite"
	"github.com/scrypster/bri/pkg/types"
)

// fakeEmbedder returns canned vectors by text, falling back to a constant
// vector for unknown inputs. Setting fail makes every call error.
type fakeEmbedder struct {
	vectors map[string][]float32
	fail    bool
}

func newFakeEmbedder() *fakeEmbedder {
	return &fakeEmbedder{vectors: make(map[string][]float32)}
}

func (f *fakeEmbedder) set(text string, vector []float32) {
	f.vectors[strings.ToLower(text)] = vector
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if f.fail {
		return nil, fmt.Errorf("embedder down")
	}
	if v, ok := f.vectors[strings.ToLower(text)]; ok {
		return v, nil
	}
	return []float32{0, 1}, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if f.fail {
		return nil, fmt.Errorf("embedder down")
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := f.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (f *fakeEmbedder) GetModel() string { return "fake" }

// fakeSearcher serves a fixed result set, honoring MinSimilarity and K.
type fakeSearcher struct {
	results []storage.ScoredRecord
	err     error
}

func (f *fakeSearcher) TopKSimilar(_ context.Context, _ types.Scope, _ []float32, opts storage.SimilarityOptions) ([]storage.ScoredRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	opts.Normalize()

	var out []storage.ScoredRecord
	for _, r := range f.results {
		if opts.MinSimilarity > 0 && r.Similarity < opts.MinSimilarity {
			continue
		}
		if opts.Filter.Type != "" && r.Record.Type != opts.Filter.Type {
			continue
		}
		out = append(out, r)
		if len(out) == opts.K {
			break
		}
	}
	return out, nil
}

// fakeGenerator answers every completion with a fixed string.
type fakeGenerator struct {
	answer string
	err    error
	calls  int
}

func (f *fakeGenerator) Complete(_ context.Context, _ string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

func (f *fakeGenerator) GetModel() string { return "fake" }

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testScope() types.Scope {
	return types.Scope{UserID: "user-1", GuildID: "guild-1"}
}

func storedRecord(t *testing.T, store storage.RecordStore, id, text string, memType types.MemoryType, confidence float64, vector []float32) *types.MemoryRecord {
	t.Helper()
	now := time.Now()
	record := &types.MemoryRecord{
		ID:         id,
		UserID:     "user-1",
		GuildID:    "guild-1",
		Text:       text,
		Embedding:  vector,
		Type:       memType,
		Category:   types.CategoryOther,
		Confidence: confidence,
		CreatedAt:  now,
		UpdatedAt:  now,
		Active:     true,
	}
	if err := store.Insert(context.Background(), record); err != nil {
		t.Fatalf("insert %s: %v", id, err)
	}
	return record
}

// startedQueue returns a running task queue that drains before the test
// ends.
func startedQueue(t *testing.T) *TaskQueue {
	t.Helper()
	q := NewTaskQueue(16, 1)
	q.Start()
	t.Cleanup(q.Stop)
	return q
}
