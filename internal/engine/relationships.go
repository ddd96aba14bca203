package engine

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/scrypster/bri/internal/llm"
	"github.com/scrypster/bri/internal/storage"
	"github.com/scrypster/bri/pkg/types"
)

const (
	// relationSampleSize bounds how many recent records a graph-building
	// pass considers per scope.
	relationSampleSize = 20

	// relationNeighborThreshold is the similarity floor for candidate
	// pairs worth classifying.
	relationNeighborThreshold = 0.6

	relationNeighborsPerRecord = 3

	// relationEdgeConfidence is assigned to edges from the LLM classifier.
	// Keyword-derived edges get a lower score.
	relationEdgeConfidence        = 0.85
	relationKeywordEdgeConfidence = 0.8
)

const relationshipPrompt = `Classify the relationship between two facts about the same person.
Fact A: %s
Fact B: %s
Answer with exactly one of: related_to, elaborates, contradicts, follows, precedes, causes, part_of, none.
Answer:`

// RelationshipAnalyzer classifies how two memories relate and builds graph
// edges between stored records. Classification prefers the LLM but falls
// back to keyword heuristics when the model is unavailable, so maintenance
// sweeps still make progress with the circuit breaker open.
type RelationshipAnalyzer struct {
	store     storage.Store
	generator llm.TextGenerator
}

func NewRelationshipAnalyzer(store storage.Store, generator llm.TextGenerator) *RelationshipAnalyzer {
	return &RelationshipAnalyzer{store: store, generator: generator}
}

// Classify returns the relationship between two memory texts and a
// confidence for the resulting edge. An empty type means no meaningful
// relationship.
func (a *RelationshipAnalyzer) Classify(ctx context.Context, textA, textB string) (types.RelationshipType, float64) {
	if a.generator != nil {
		rel, err := a.classifyWithModel(ctx, textA, textB)
		if err == nil {
			if rel == "" {
				return "", 0
			}
			return rel, relationEdgeConfidence
		}
		log.Printf("engine: relationship model call failed, using keyword classifier: %v", err)
	}

	if rel := classifyByKeywords(textA, textB); rel != "" {
		return rel, relationKeywordEdgeConfidence
	}
	return "", 0
}

func (a *RelationshipAnalyzer) classifyWithModel(ctx context.Context, textA, textB string) (types.RelationshipType, error) {
	prompt := fmt.Sprintf(relationshipPrompt, textA, textB)
	answer, err := a.generator.Complete(ctx, prompt)
	if err != nil {
		return "", err
	}

	normalized := strings.ToLower(strings.TrimSpace(answer))
	normalized = strings.Trim(normalized, ".\"' ")
	if normalized == "none" {
		return "", nil
	}
	rel := types.RelationshipType(normalized)
	if !types.ValidRelationshipType(rel) {
		return "", fmt.Errorf("unrecognized relationship %q", answer)
	}
	return rel, nil
}

// classifyByKeywords is the deterministic fallback classifier. It only
// claims the relationships it can detect from surface signals.
func classifyByKeywords(textA, textB string) types.RelationshipType {
	na := normalizeText(textA)
	nb := normalizeText(textB)

	negations := []string{"not", "no longer", "never", "stopped", "quit", "doesn't", "don't"}
	aNegated := containsAny(na, negations)
	bNegated := containsAny(nb, negations)

	ta := tokenSet(na)
	tb := tokenSet(nb)
	smaller := len(ta)
	if len(tb) < smaller {
		smaller = len(tb)
	}
	if smaller == 0 {
		return ""
	}
	overlap := float64(overlapCount(ta, tb)) / float64(smaller)

	switch {
	case overlap > 0.5 && aNegated != bNegated:
		return types.RelContradicts
	case overlap > 0.6:
		return types.RelElaborates
	case overlap > 0.3:
		return types.RelRelatedTo
	default:
		return ""
	}
}

// BuildConnections samples recent records in a scope, finds their nearest
// neighbors, and creates edges for related pairs that are not yet
// connected. Returns the number of edges created. Per-pair failures are
// logged and skipped.
func (a *RelationshipAnalyzer) BuildConnections(ctx context.Context, scope types.Scope) (int, error) {
	records, err := a.store.ListByScope(ctx, scope, storage.ListOptions{Limit: relationSampleSize})
	if err != nil {
		return 0, fmt.Errorf("list scope %s: %w", scope.Key(), err)
	}
	if len(records) < 2 {
		return 0, nil
	}

	created := 0
	now := time.Now().UTC()

	for _, record := range records {
		if len(record.Embedding) == 0 {
			continue
		}
		neighbors, err := a.store.TopKSimilar(ctx, scope, record.Embedding, storage.SimilarityOptions{
			K:             relationNeighborsPerRecord + 1,
			MinSimilarity: relationNeighborThreshold,
		})
		if err != nil {
			log.Printf("engine: neighbor lookup failed for %s: %v", record.ID, err)
			continue
		}

		for _, neighbor := range neighbors {
			other := neighbor.Record
			if other.ID == record.ID {
				continue
			}
			connected, err := a.store.HasConnection(ctx, record.ID, other.ID)
			if err != nil {
				log.Printf("engine: connection check failed for %s-%s: %v", record.ID, other.ID, err)
				continue
			}
			if connected {
				continue
			}

			rel, edgeConfidence := a.Classify(ctx, record.Text, other.Text)
			if rel == "" {
				continue
			}

			conn := &types.MemoryConnection{
				ID:         uuid.NewString(),
				SourceID:   record.ID,
				TargetID:   other.ID,
				Type:       rel,
				Confidence: edgeConfidence,
				CreatedAt:  now,
			}
			if err := a.store.InsertConnection(ctx, conn); err != nil {
				log.Printf("engine: connection insert failed for %s-%s: %v", record.ID, other.ID, err)
				continue
			}
			created++
		}
	}
	return created, nil
}
