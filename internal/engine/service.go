package engine

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/scrypster/bri/internal/embedding"
	"github.com/scrypster/bri/internal/storage"
	"github.com/scrypster/bri/pkg/types"
)

// Actions reported by Remember.
const (
	ActionCreated = "created"
	ActionUpdated = "updated"
)

// RememberResult reports the outcome of an explicit memory command.
type RememberResult struct {
	Success  bool
	Action   string
	MemoryID string
	Message  string
}

// BulkStoreResult reports how many candidate facts survived dedup and were
// stored.
type BulkStoreResult struct {
	Candidates int
	Stored     int
}

// Service is the memory store facade. It owns create, update, verify and
// contradiction operations, running the categorizer, confidence model and
// deduplicator before touching storage. Storage failures are logged and
// surfaced as unsuccessful results so callers never block a chat reply on a
// memory error.
type Service struct {
	store       storage.Store
	embedder    embedding.Generator
	confidence  *ConfidenceModel
	categorizer *Categorizer
	dedup       *Deduplicator
	tasks       *TaskQueue
}

func NewService(store storage.Store, embedder embedding.Generator, tasks *TaskQueue) *Service {
	return &Service{
		store:       store,
		embedder:    embedder,
		confidence:  NewConfidenceModel(),
		categorizer: NewCategorizer(),
		dedup:       NewDeduplicator(store, embedder),
		tasks:       tasks,
	}
}

// Remember handles an explicit "remember X" command. When an existing
// similar explicit memory covers the same fact slot it is updated in place,
// keeping its ID; otherwise a new record is created. Explicit memories are
// created verified.
func (s *Service) Remember(ctx context.Context, scope types.Scope, text, source string) RememberResult {
	if err := scope.Validate(); err != nil {
		return RememberResult{Message: err.Error()}
	}
	if text == "" {
		return RememberResult{Message: "nothing to remember"}
	}
	now := time.Now().UTC()

	existing, err := s.dedup.FindSimilarMemory(ctx, scope, text)
	if err != nil {
		// Update detection is best effort. Fall through to create.
		log.Printf("engine: similar memory lookup failed for %s: %v", scope.Key(), err)
		existing = nil
	}

	vector, err := s.embedder.Embed(ctx, text)
	if err != nil {
		log.Printf("engine: embed failed for remember in %s: %v", scope.Key(), err)
		return RememberResult{Message: "memory unavailable"}
	}

	category := s.categorizer.Categorize(text)

	if existing != nil {
		existing.Text = text
		existing.Embedding = vector
		existing.Category = category
		existing.UpdatedAt = now
		s.confidence.Verify(existing, source, now)
		if err := s.store.Update(ctx, existing); err != nil {
			log.Printf("engine: memory update failed for %s: %v", existing.ID, err)
			return RememberResult{Message: "memory unavailable"}
		}
		return RememberResult{
			Success:  true,
			Action:   ActionUpdated,
			MemoryID: existing.ID,
			Message:  "updated what I knew about that",
		}
	}

	record := s.newRecord(scope, text, vector, types.MemoryTypeExplicit, source, category, now)
	s.confidence.Verify(record, source, now)
	if err := s.store.Insert(ctx, record); err != nil {
		log.Printf("engine: memory insert failed for %s: %v", scope.Key(), err)
		return RememberResult{Message: "memory unavailable"}
	}
	return RememberResult{
		Success:  true,
		Action:   ActionCreated,
		MemoryID: record.ID,
		Message:  "got it, I'll remember that",
	}
}

// InsertIntuited stores a fact inferred from conversation. A similar
// existing record with equal or higher confidence is left untouched; one
// with lower confidence is updated in place. Sibling records above the
// corroboration threshold get a confidence boost off the response path.
func (s *Service) InsertIntuited(ctx context.Context, scope types.Scope, text string, proposedConfidence float64) (*types.MemoryRecord, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	now := time.Now().UTC()

	vector, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}

	matches, err := s.store.TopKSimilar(ctx, scope, vector, storage.SimilarityOptions{
		K:             3,
		MinSimilarity: updateMatchThreshold,
	})
	if err != nil {
		log.Printf("engine: intuited similarity lookup failed for %s: %v", scope.Key(), err)
		matches = nil
	}

	s.corroborateMatches(scope, matches, types.MemoryTypeIntuited)

	if len(matches) > 0 {
		existing := matches[0].Record
		if existing.Confidence >= proposedConfidence {
			return existing, nil
		}
		existing.Text = text
		existing.Embedding = vector
		existing.Confidence = types.ClampConfidence(proposedConfidence)
		existing.UpdatedAt = now
		if err := s.store.Update(ctx, existing); err != nil {
			return nil, fmt.Errorf("update: %w", err)
		}
		return existing, nil
	}

	category := s.categorizer.Categorize(text)
	record := s.newRecord(scope, text, vector, types.MemoryTypeIntuited, "conversation_extraction", category, now)
	if err := s.store.Insert(ctx, record); err != nil {
		return nil, fmt.Errorf("insert: %w", err)
	}
	return record, nil
}

// BulkStore runs the full ingestion pipeline for a batch of extracted
// facts: within-batch dedup, store-level dedup, per-fact categorization and
// confidence, batch embedding, batch insert.
func (s *Service) BulkStore(ctx context.Context, scope types.Scope, candidates []string) (BulkStoreResult, error) {
	result := BulkStoreResult{Candidates: len(candidates)}
	if err := scope.Validate(); err != nil {
		return result, err
	}
	if len(candidates) == 0 {
		return result, nil
	}
	now := time.Now().UTC()

	survivors := s.dedup.DedupeWithinBatch(candidates)
	survivors = s.dedup.DedupeAgainstStore(ctx, scope, survivors)
	if len(survivors) == 0 {
		return result, nil
	}

	vectors, err := s.embedder.EmbedBatch(ctx, survivors)
	if err != nil {
		return result, fmt.Errorf("embed batch: %w", err)
	}

	records := make([]*types.MemoryRecord, 0, len(survivors))
	for i, text := range survivors {
		category := s.categorizer.Categorize(text)
		records = append(records, s.newRecord(scope, text, vectors[i], types.MemoryTypeIntuited, "conversation_extraction", category, now))
	}

	stored, err := s.store.InsertBatch(ctx, records)
	if err != nil {
		return result, fmt.Errorf("insert batch: %w", err)
	}
	result.Stored = stored
	return result, nil
}

// VerifyMemory marks a record as user-confirmed, pinning its confidence.
func (s *Service) VerifyMemory(ctx context.Context, id, source string) error {
	record, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	s.confidence.Verify(record, source, time.Now().UTC())
	return s.store.Update(ctx, record)
}

// ContradictMemory records that a later fact conflicts with this one,
// cutting its confidence and unsetting verification.
func (s *Service) ContradictMemory(ctx context.Context, id string) error {
	record, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	s.confidence.MarkContradicted(record, time.Now().UTC())
	return s.store.Update(ctx, record)
}

// Forget soft-deletes a single memory.
func (s *Service) Forget(ctx context.Context, id string) error {
	return s.store.Deactivate(ctx, id)
}

// ClearScope hard-deletes every memory for a scope. Used only for explicit
// user-initiated clears.
func (s *Service) ClearScope(ctx context.Context, scope types.Scope) (int, error) {
	if err := scope.Validate(); err != nil {
		return 0, err
	}
	return s.store.ClearScope(ctx, scope)
}

func (s *Service) newRecord(scope types.Scope, text string, vector []float32, memType types.MemoryType, source string, category types.Category, now time.Time) *types.MemoryRecord {
	return &types.MemoryRecord{
		ID:         uuid.NewString(),
		UserID:     scope.UserID,
		GuildID:    scope.GuildID,
		Text:       text,
		Embedding:  vector,
		Type:       memType,
		Category:   category,
		Confidence: s.confidence.InitialConfidence(memType, source, category, text),
		Source:     source,
		CreatedAt:  now,
		UpdatedAt:  now,
		Active:     true,
	}
}

// corroborateMatches boosts stored records that a new observation closely
// matches. Runs on the task queue so it never delays the caller.
func (s *Service) corroborateMatches(scope types.Scope, matches []storage.ScoredRecord, triggeringType types.MemoryType) {
	for _, m := range matches {
		if m.Similarity <= corroborationSimilarity {
			continue
		}
		record := m.Record
		s.tasks.Submit("corroborate", func(taskCtx context.Context) error {
			fresh, err := s.store.Get(taskCtx, record.ID)
			if err != nil {
				return fmt.Errorf("corroborate %s in %s: %w", record.ID, scope.Key(), err)
			}
			s.confidence.Corroborate(fresh, triggeringType, time.Now().UTC())
			return s.store.Update(taskCtx, fresh)
		})
	}
}
