package engine

import (
	"context"
	"fmt"
	"testing"

	"github.com/scrypster/bri/pkg/types"
)

func TestClassifyUsesModelAnswer(t *testing.T) {
	analyzer := NewRelationshipAnalyzer(newTestStore(t), &fakeGenerator{answer: "elaborates"})

	rel, confidence := analyzer.Classify(context.Background(), "User plays guitar", "User performs with a local band")
	if rel != types.RelElaborates {
		t.Errorf("expected elaborates, got %s", rel)
	}
	if confidence != relationEdgeConfidence {
		t.Errorf("expected model edge confidence, got %f", confidence)
	}
}

func TestClassifyModelNone(t *testing.T) {
	analyzer := NewRelationshipAnalyzer(newTestStore(t), &fakeGenerator{answer: "none"})

	rel, _ := analyzer.Classify(context.Background(), "User plays guitar", "User works at Acme")
	if rel != "" {
		t.Errorf("expected no relationship, got %s", rel)
	}
}

func TestClassifyTrimsModelAnswer(t *testing.T) {
	analyzer := NewRelationshipAnalyzer(newTestStore(t), &fakeGenerator{answer: " Causes.\n"})

	rel, _ := analyzer.Classify(context.Background(), "User trains daily", "User ran a marathon")
	if rel != types.RelCauses {
		t.Errorf("expected causes from a noisy answer, got %s", rel)
	}
}

// With the model down, classification falls back to keyword heuristics
// instead of failing the sweep.
func TestClassifyFallsBackOnModelError(t *testing.T) {
	analyzer := NewRelationshipAnalyzer(newTestStore(t), &fakeGenerator{err: fmt.Errorf("model down")})

	rel, confidence := analyzer.Classify(context.Background(), "User plays guitar every weekend", "User plays guitar in a band")
	if rel == "" {
		t.Fatal("expected the keyword fallback to find a relationship")
	}
	if confidence != relationKeywordEdgeConfidence {
		t.Errorf("expected keyword edge confidence, got %f", confidence)
	}
}

func TestClassifyByKeywords(t *testing.T) {
	// High overlap with flipped negation reads as contradiction.
	if got := classifyByKeywords("User likes spicy food", "User does not like spicy food"); got != types.RelContradicts {
		t.Errorf("expected contradicts, got %s", got)
	}

	// High overlap without negation reads as elaboration.
	if got := classifyByKeywords("User plays guitar", "User plays guitar in a band"); got != types.RelElaborates {
		t.Errorf("expected elaborates, got %s", got)
	}

	// No overlap yields no relationship.
	if got := classifyByKeywords("User plays guitar", "User dislikes cold brew"); got != "" {
		t.Errorf("expected no relationship, got %s", got)
	}
}

func TestBuildConnections(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	analyzer := NewRelationshipAnalyzer(store, &fakeGenerator{answer: "elaborates"})

	a := storedRecord(t, store, "mem-a", "User plays guitar", types.MemoryTypeExplicit, 0.95, []float32{1, 0})
	b := storedRecord(t, store, "mem-b", "User plays guitar in a band", types.MemoryTypeIntuited, 0.8, []float32{0.995, 0.0998})

	created, err := analyzer.BuildConnections(ctx, testScope())
	if err != nil {
		t.Fatalf("BuildConnections failed: %v", err)
	}
	if created == 0 {
		t.Fatal("expected at least one connection created")
	}

	connected, err := store.HasConnection(ctx, a.ID, b.ID)
	if err != nil {
		t.Fatalf("HasConnection failed: %v", err)
	}
	if !connected {
		t.Error("expected the similar pair to be connected")
	}
}

// A second pass over an already-connected pair must not classify again.
func TestBuildConnectionsSkipsExistingEdges(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	generator := &fakeGenerator{answer: "elaborates"}
	analyzer := NewRelationshipAnalyzer(store, generator)

	storedRecord(t, store, "mem-a", "User plays guitar", types.MemoryTypeExplicit, 0.95, []float32{1, 0})
	storedRecord(t, store, "mem-b", "User plays guitar in a band", types.MemoryTypeIntuited, 0.8, []float32{0.995, 0.0998})

	if _, err := analyzer.BuildConnections(ctx, testScope()); err != nil {
		t.Fatalf("first pass failed: %v", err)
	}
	callsAfterFirst := generator.calls

	if _, err := analyzer.BuildConnections(ctx, testScope()); err != nil {
		t.Fatalf("second pass failed: %v", err)
	}
	if generator.calls != callsAfterFirst {
		t.Errorf("expected no new classifications on the second pass, got %d extra", generator.calls-callsAfterFirst)
	}
}

func TestBuildConnectionsTooFewRecords(t *testing.T) {
	store := newTestStore(t)
	analyzer := NewRelationshipAnalyzer(store, &fakeGenerator{answer: "elaborates"})

	storedRecord(t, store, "mem-a", "User plays guitar", types.MemoryTypeExplicit, 0.95, []float32{1, 0})

	created, err := analyzer.BuildConnections(context.Background(), testScope())
	if err != nil {
		t.Fatalf("BuildConnections failed: %v", err)
	}
	if created != 0 {
		t.Errorf("expected no connections with a single record, got %d", created)
	}
}
