package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/scrypster/bri/internal/storage"
	"github.com/scrypster/bri/pkg/types"
)

func userMessage(id, content string) ConversationMessage {
	return ConversationMessage{ID: id, AuthorID: "user-1", Content: content, Timestamp: time.Now()}
}

func botMessage(id, content string) ConversationMessage {
	return ConversationMessage{ID: id, AuthorID: "bot", Content: content, FromBot: true, Timestamp: time.Now()}
}

func newTestExtractor(t *testing.T, generator *fakeGenerator) (*Extractor, storage.Store) {
	t.Helper()
	store := newTestStore(t)
	queue := startedQueue(t)
	service := NewService(store, newFakeEmbedder(), queue)
	return NewExtractor(service, store, generator, "Bri"), store
}

func TestExtractAndStorePipeline(t *testing.T) {
	ctx := context.Background()
	generator := &fakeGenerator{answer: "User likes pizza\nUser plays chess after work"}
	extractor, store := newTestExtractor(t, generator)
	scope := testScope()

	messages := []ConversationMessage{
		userMessage("m1", "I had pizza again last night, it never gets old"),
		botMessage("m2", "Sounds delicious!"),
		userMessage("m3", "Then I played chess until midnight"),
		userMessage("m4", "I always play after work"),
	}

	result := extractor.ExtractAndStore(ctx, scope, messages)
	if !result.Success {
		t.Fatalf("extraction failed: %+v", result)
	}
	if result.Extracted != 2 {
		t.Errorf("expected 2 extracted facts, got %d", result.Extracted)
	}
	if result.Stored != 2 {
		t.Errorf("expected 2 stored facts, got %d", result.Stored)
	}

	state, err := store.GetState(ctx, scope)
	if err != nil {
		t.Fatalf("expected checkpoint state: %v", err)
	}
	if state.LastMessageID != "m4" {
		t.Errorf("expected checkpoint at m4, got %q", state.LastMessageID)
	}
}

func TestExtractAndStoreSkipsShortConversations(t *testing.T) {
	generator := &fakeGenerator{answer: "User likes pizza"}
	extractor, _ := newTestExtractor(t, generator)

	result := extractor.ExtractAndStore(context.Background(), testScope(), []ConversationMessage{
		userMessage("m1", "hello"),
	})
	if !result.Success || !result.Skipped {
		t.Errorf("expected a skipped pass, got %+v", result)
	}
	if generator.calls != 0 {
		t.Error("short conversations must not reach the model")
	}
}

// The second pass only sees messages after the checkpoint.
func TestExtractAndStoreIncremental(t *testing.T) {
	ctx := context.Background()
	generator := &fakeGenerator{answer: "User likes pizza"}
	extractor, _ := newTestExtractor(t, generator)
	scope := testScope()

	first := []ConversationMessage{
		userMessage("m1", "I love pizza"),
		userMessage("m2", "I eat it every friday"),
		userMessage("m3", "Thin crust, always"),
	}
	if result := extractor.ExtractAndStore(ctx, scope, first); !result.Success {
		t.Fatalf("first pass failed: %+v", result)
	}

	// Replaying the same history with one new message leaves too few fresh
	// user messages, so the pass is skipped.
	second := append(first, userMessage("m4", "anyway"))
	result := extractor.ExtractAndStore(ctx, scope, second)
	if !result.Skipped {
		t.Errorf("expected incremental pass to skip, got %+v", result)
	}
}

func TestExtractAndStoreModelFailure(t *testing.T) {
	generator := &fakeGenerator{err: fmt.Errorf("model down")}
	extractor, store := newTestExtractor(t, generator)
	scope := testScope()

	result := extractor.ExtractAndStore(context.Background(), scope, []ConversationMessage{
		userMessage("m1", "I love pizza"),
		userMessage("m2", "I eat it every friday"),
		userMessage("m3", "Thin crust, always"),
	})
	if result.Success {
		t.Error("expected failure when the model is down")
	}

	// No checkpoint is written for a failed pass.
	if _, err := store.GetState(context.Background(), scope); err == nil {
		t.Error("expected no checkpoint after a failed pass")
	}
}

func TestParseFactLines(t *testing.T) {
	facts := parseFactLines("- User likes pizza\n* plays chess on weekends\n\nnone\nUser works at Acme")
	if len(facts) != 3 {
		t.Fatalf("expected 3 facts, got %v", facts)
	}
	if facts[0] != "User likes pizza" {
		t.Errorf("expected bullet stripped, got %q", facts[0])
	}
	if facts[1] != "User plays chess on weekends" {
		t.Errorf("expected a subject prefix added, got %q", facts[1])
	}
}

func TestParseFactLinesNone(t *testing.T) {
	if facts := parseFactLines("none"); len(facts) != 0 {
		t.Errorf("expected no facts, got %v", facts)
	}
}

func TestParseFactLinesCapped(t *testing.T) {
	var answer string
	for i := 0; i < 30; i++ {
		answer += fmt.Sprintf("User fact number %d\n", i)
	}
	if facts := parseFactLines(answer); len(facts) != maxExtractionCandidates {
		t.Errorf("expected cap at %d, got %d", maxExtractionCandidates, len(facts))
	}
}

func TestFreshMessages(t *testing.T) {
	messages := []ConversationMessage{
		userMessage("m1", "one"),
		userMessage("m2", "two"),
		userMessage("m3", "three"),
	}

	fresh := freshMessages(messages, &types.ExtractionState{LastMessageID: "m2"})
	if len(fresh) != 1 || fresh[0].ID != "m3" {
		t.Errorf("expected only m3 fresh, got %v", fresh)
	}

	// Unknown checkpoint (history pruned): process everything.
	all := freshMessages(messages, &types.ExtractionState{LastMessageID: "gone"})
	if len(all) != 3 {
		t.Errorf("expected full history for unknown checkpoint, got %d", len(all))
	}

	if got := freshMessages(messages, nil); len(got) != 3 {
		t.Errorf("expected full history without state, got %d", len(got))
	}
}

func TestBuildTranscript(t *testing.T) {
	transcript := buildTranscript([]ConversationMessage{
		userMessage("m1", "hello"),
		botMessage("m2", "hi there"),
		userMessage("m3", "  "),
	}, "Bri")

	want := "User: hello\nBri: hi there"
	if transcript != want {
		t.Errorf("expected %q, got %q", want, transcript)
	}
}
