package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/scrypster/bri/internal/embedding"
	"github.com/scrypster/bri/internal/llm"
	"github.com/scrypster/bri/internal/storage"
	"github.com/scrypster/bri/pkg/types"
)

// Config holds the engine's tunables.
type Config struct {
	// BotName is the persona name stripped from extraction transcripts.
	BotName string

	// TaskQueueSize bounds pending background side effects.
	TaskQueueSize int

	// TaskWorkers is the number of background workers.
	TaskWorkers int

	// RetrieveLimit is the default number of memories per prompt block.
	RetrieveLimit int
}

func DefaultConfig() Config {
	return Config{
		BotName:       "Bri",
		TaskQueueSize: defaultTaskQueueSize,
		TaskWorkers:   defaultTaskWorkers,
		RetrieveLimit: defaultRetrieveLimit,
	}
}

func (c Config) Validate() error {
	if c.TaskQueueSize < 0 || c.TaskWorkers < 0 || c.RetrieveLimit < 0 {
		return fmt.Errorf("engine config values must not be negative")
	}
	return nil
}

// Engine is the orchestrator the rest of the application talks to. It wires
// the store facade, retriever, extractor and relationship analyzer over one
// shared storage backend and background task queue.
type Engine struct {
	config Config

	store         storage.Store
	tasks         *TaskQueue
	service       *Service
	retriever     *Retriever
	extractor     *Extractor
	relationships *RelationshipAnalyzer
	confidence    *ConfidenceModel

	mu      sync.Mutex
	started bool
}

// New builds an engine over the given collaborators. The generator may be
// nil, in which case extraction is disabled and relationship classification
// uses the keyword fallback.
func New(store storage.Store, embedder embedding.Generator, generator llm.TextGenerator, cfg Config) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("storage backend is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedding generator is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	tasks := NewTaskQueue(cfg.TaskQueueSize, cfg.TaskWorkers)
	service := NewService(store, embedder, tasks)

	e := &Engine{
		config:        cfg,
		store:         store,
		tasks:         tasks,
		service:       service,
		retriever:     NewRetriever(store, embedder, tasks),
		relationships: NewRelationshipAnalyzer(store, generator),
		confidence:    NewConfidenceModel(),
	}
	if generator != nil {
		e.extractor = NewExtractor(service, store, generator, cfg.BotName)
	}
	return e, nil
}

// Start launches the background task workers. Returns an error when already
// started.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return fmt.Errorf("engine already started")
	}
	e.tasks.Start()
	e.started = true
	return nil
}

// Shutdown drains background tasks and closes the storage backend.
func (e *Engine) Shutdown() error {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return nil
	}
	e.started = false
	e.mu.Unlock()

	e.tasks.Stop()
	return e.store.Close()
}

// Remember handles an explicit memory command.
func (e *Engine) Remember(ctx context.Context, scope types.Scope, text string) RememberResult {
	return e.service.Remember(ctx, scope, text, "memory_command")
}

// ExtractAndStore runs the incremental extraction pipeline over a
// conversation. Without a chat model the pass is reported as skipped.
func (e *Engine) ExtractAndStore(ctx context.Context, scope types.Scope, messages []ConversationMessage) ExtractionResult {
	if e.extractor == nil {
		return ExtractionResult{Success: true, Skipped: true}
	}
	return e.extractor.ExtractAndStore(ctx, scope, messages)
}

// RetrieveForPrompt returns the formatted memory block for prompt assembly.
func (e *Engine) RetrieveForPrompt(ctx context.Context, scope types.Scope, query string, limit int) string {
	if limit <= 0 {
		limit = e.config.RetrieveLimit
	}
	return e.retriever.RetrieveForPrompt(ctx, scope, query, limit)
}

// ContextAwareRetrieve enriches the query with recent user messages before
// retrieval.
func (e *Engine) ContextAwareRetrieve(ctx context.Context, scope types.Scope, query string, recentMessages []string, limit int) string {
	if limit <= 0 {
		limit = e.config.RetrieveLimit
	}
	return e.retriever.ContextAwareRetrieve(ctx, scope, query, recentMessages, limit)
}

// Forget soft-deletes one memory.
func (e *Engine) Forget(ctx context.Context, id string) error {
	return e.service.Forget(ctx, id)
}

// ClearScope removes all memories for a scope on explicit user request.
func (e *Engine) ClearScope(ctx context.Context, scope types.Scope) (int, error) {
	return e.service.ClearScope(ctx, scope)
}

// Service exposes the store facade for callers needing finer-grained
// operations.
func (e *Engine) Service() *Service { return e.service }

// Relationships exposes the graph analyzer used by maintenance sweeps.
func (e *Engine) Relationships() *RelationshipAnalyzer { return e.relationships }

// Confidence exposes the confidence model used by maintenance sweeps.
func (e *Engine) Confidence() *ConfidenceModel { return e.confidence }
