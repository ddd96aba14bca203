package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/scrypster/bri/internal/llm"
	"github.com/scrypster/bri/internal/storage"
	"github.com/scrypster/bri/pkg/types"
)

const (
	// minMessagesForExtraction skips extraction passes over conversations
	// too short to contain new facts.
	minMessagesForExtraction = 3

	// maxExtractionCandidates caps what a single pass will try to store.
	maxExtractionCandidates = 10
)

const extractionPrompt = `Extract durable facts about the user from this conversation with %s.
Only include facts worth remembering long term (preferences, personal details, work, hobbies, contact info).
Ignore small talk, questions, and anything about %s itself.
Write one fact per line, each starting with "User". If there are no facts, answer "none".

Conversation:
%s

Facts:`

// ConversationMessage is one message from the chat transcript handed to the
// extraction pipeline.
type ConversationMessage struct {
	ID        string
	AuthorID  string
	Content   string
	FromBot   bool
	Timestamp time.Time
}

// ExtractionResult reports one extraction pass.
type ExtractionResult struct {
	Success   bool
	Extracted int
	Stored    int
	Skipped   bool
}

// Extractor runs the incremental fact-extraction pipeline: it summarizes
// new conversation messages into candidate facts with the chat model, then
// hands survivors to the service's bulk ingestion path. Checkpoint state
// per scope keeps passes incremental instead of reprocessing full history.
type Extractor struct {
	service   *Service
	states    storage.ExtractionStateStore
	generator llm.TextGenerator
	botName   string
}

func NewExtractor(service *Service, states storage.ExtractionStateStore, generator llm.TextGenerator, botName string) *Extractor {
	if botName == "" {
		botName = "the assistant"
	}
	return &Extractor{
		service:   service,
		states:    states,
		generator: generator,
		botName:   botName,
	}
}

// ExtractAndStore processes the messages a scope accumulated since the last
// checkpoint. Failures are logged and reported as unsuccessful results so a
// missed pass never breaks the conversation flow.
func (e *Extractor) ExtractAndStore(ctx context.Context, scope types.Scope, messages []ConversationMessage) ExtractionResult {
	if err := scope.Validate(); err != nil {
		log.Printf("engine: extraction with invalid scope: %v", err)
		return ExtractionResult{}
	}

	state, err := e.states.GetState(ctx, scope)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		log.Printf("engine: extraction state read failed for %s: %v", scope.Key(), err)
		state = nil
	}

	fresh := freshMessages(messages, state)
	userMessages := 0
	for _, m := range fresh {
		if !m.FromBot {
			userMessages++
		}
	}
	if userMessages < minMessagesForExtraction {
		return ExtractionResult{Success: true, Skipped: true}
	}

	candidates, err := e.extractCandidates(ctx, fresh)
	if err != nil {
		log.Printf("engine: fact extraction failed for %s: %v", scope.Key(), err)
		return ExtractionResult{}
	}

	result := ExtractionResult{Success: true, Extracted: len(candidates)}
	if len(candidates) > 0 {
		stored, err := e.service.BulkStore(ctx, scope, candidates)
		if err != nil {
			log.Printf("engine: bulk store failed for %s: %v", scope.Key(), err)
			return ExtractionResult{Extracted: len(candidates)}
		}
		result.Stored = stored.Stored
	}

	e.checkpoint(ctx, scope, messages)
	return result
}

// freshMessages drops everything at or before the checkpointed message.
// With no checkpoint, the full transcript is fresh.
func freshMessages(messages []ConversationMessage, state *types.ExtractionState) []ConversationMessage {
	if state == nil || state.LastMessageID == "" {
		return messages
	}
	for i, m := range messages {
		if m.ID == state.LastMessageID {
			return messages[i+1:]
		}
	}
	return messages
}

// extractCandidates asks the chat model for fact lines and normalizes them
// into store candidates.
func (e *Extractor) extractCandidates(ctx context.Context, messages []ConversationMessage) ([]string, error) {
	transcript := buildTranscript(messages, e.botName)
	if transcript == "" {
		return nil, nil
	}

	prompt := fmt.Sprintf(extractionPrompt, e.botName, e.botName, transcript)
	answer, err := e.generator.Complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("complete: %w", err)
	}

	return parseFactLines(answer), nil
}

func buildTranscript(messages []ConversationMessage, botName string) string {
	var b strings.Builder
	for _, m := range messages {
		content := strings.TrimSpace(m.Content)
		if content == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		if m.FromBot {
			b.WriteString(botName)
		} else {
			b.WriteString("User")
		}
		b.WriteString(": ")
		b.WriteString(content)
	}
	return b.String()
}

// parseFactLines normalizes model output into candidate facts starting with
// a consistent subject reference.
func parseFactLines(answer string) []string {
	var facts []string
	for _, line := range strings.Split(answer, "\n") {
		fact := strings.TrimSpace(line)
		fact = strings.TrimLeft(fact, "-*• ")
		if fact == "" || strings.EqualFold(fact, "none") {
			continue
		}
		if !strings.HasPrefix(strings.ToLower(fact), "user") {
			fact = "User " + fact
		}
		facts = append(facts, fact)
		if len(facts) == maxExtractionCandidates {
			break
		}
	}
	return facts
}

// checkpoint advances the extraction state to the latest processed message.
// The upsert is keyed by scope, so a racing duplicate pass converges on the
// last writer.
func (e *Extractor) checkpoint(ctx context.Context, scope types.Scope, messages []ConversationMessage) {
	if len(messages) == 0 {
		return
	}
	last := messages[len(messages)-1]
	state := &types.ExtractionState{
		UserID:             scope.UserID,
		GuildID:            scope.GuildID,
		LastExtractionTime: time.Now().UTC(),
		LastMessageCount:   len(messages),
		LastMessageID:      last.ID,
		UpdatedAt:          time.Now().UTC(),
	}
	if err := e.states.UpsertState(ctx, state); err != nil {
		log.Printf("engine: extraction checkpoint failed for %s: %v", scope.Key(), err)
	}
}
