package engine

import (
	"context"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/scrypster/bri/internal/embedding"
	"github.com/scrypster/bri/internal/storage"
	"github.com/scrypster/bri/pkg/types"
)

const (
	// retrievalThreshold is deliberately loose; the confidence blend below
	// does the real ranking work.
	retrievalThreshold = 0.5

	// similarityWeight and confidenceWeight blend vector similarity with
	// stored confidence. A highly similar but contradicted memory must
	// rank below a moderately similar trusted one.
	similarityWeight = 0.7
	confidenceWeight = 0.3

	// graphEdgeMinConfidence gates which connections are followed during
	// graph expansion.
	graphEdgeMinConfidence = 0.75

	// hedgeThreshold marks memories formatted with an "(I think)" suffix.
	hedgeThreshold = 0.7

	defaultRetrieveLimit = 5

	// contextMessageWindow is how many trailing user messages feed the
	// context-aware query vector.
	contextMessageWindow = 3
)

// rankedMemory carries a candidate through reranking and formatting.
type rankedMemory struct {
	record       *types.MemoryRecord
	similarity   float64
	relevance    float64
	relationship types.RelationshipType
}

// Retriever fetches and ranks memories for prompt injection. Retrieval sits
// on the chat hot path, so every failure degrades to a keyword fallback or
// an empty string rather than an error the caller must handle.
type Retriever struct {
	store      storage.Store
	embedder   embedding.Generator
	confidence *ConfidenceModel
	tasks      *TaskQueue
}

func NewRetriever(store storage.Store, embedder embedding.Generator, tasks *TaskQueue) *Retriever {
	return &Retriever{
		store:      store,
		embedder:   embedder,
		confidence: NewConfidenceModel(),
		tasks:      tasks,
	}
}

// RetrieveForPrompt returns a formatted memory block for the given query,
// or an empty string when nothing relevant is stored. Callers treat empty
// as "omit the memory section".
func (r *Retriever) RetrieveForPrompt(ctx context.Context, scope types.Scope, query string, limit int) string {
	if err := scope.Validate(); err != nil {
		log.Printf("engine: retrieve with invalid scope: %v", err)
		return ""
	}
	if limit <= 0 {
		limit = defaultRetrieveLimit
	}
	now := time.Now().UTC()

	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		log.Printf("engine: query embed failed for %s, using keyword fallback: %v", scope.Key(), err)
		return r.keywordFallback(ctx, scope, query, limit, now)
	}

	matches, err := r.store.TopKSimilar(ctx, scope, vector, storage.SimilarityOptions{
		K:             2 * limit,
		MinSimilarity: retrievalThreshold,
	})
	if err != nil {
		log.Printf("engine: similarity retrieval failed for %s, using keyword fallback: %v", scope.Key(), err)
		return r.keywordFallback(ctx, scope, query, limit, now)
	}
	if len(matches) == 0 {
		return ""
	}

	r.trackAccess(matches, now)

	ranked := make([]rankedMemory, 0, len(matches))
	for _, m := range matches {
		ranked = append(ranked, rankedMemory{
			record:     m.Record,
			similarity: m.Similarity,
			relevance:  m.Similarity*similarityWeight + m.Record.Confidence*confidenceWeight,
		})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].relevance > ranked[j].relevance
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	ranked = r.graphExpand(ctx, ranked, limit)

	focus := ClassifyQueryFocus(query)
	if focus != FocusNone {
		ranked = filterByFocus(ranked, focus, now)
		if len(ranked) == 0 {
			return ""
		}
	}

	return formatMemories(ranked, focus, now)
}

// ContextAwareRetrieve enriches the query vector with the trailing user
// messages before delegating to RetrieveForPrompt. Falls back to the plain
// query when the enriched path returns nothing.
func (r *Retriever) ContextAwareRetrieve(ctx context.Context, scope types.Scope, query string, recentMessages []string, limit int) string {
	if len(recentMessages) == 0 {
		return r.RetrieveForPrompt(ctx, scope, query, limit)
	}

	start := len(recentMessages) - contextMessageWindow
	if start < 0 {
		start = 0
	}
	parts := append([]string{}, recentMessages[start:]...)
	parts = append(parts, query)
	enriched := strings.Join(parts, "\n")

	if block := r.RetrieveForPrompt(ctx, scope, enriched, limit); block != "" {
		return block
	}
	return r.RetrieveForPrompt(ctx, scope, query, limit)
}

// trackAccess bumps access stats for surfaced records off the hot path.
func (r *Retriever) trackAccess(matches []storage.ScoredRecord, now time.Time) {
	for _, m := range matches {
		record := m.Record
		r.tasks.Submit("track_access", func(taskCtx context.Context) error {
			copied := *record
			r.confidence.TrackAccess(&copied, now)
			return r.store.RecordAccess(taskCtx, storage.AccessBump{
				ID:             copied.ID,
				Confidence:     copied.Confidence,
				LastAccessedAt: now,
			})
		})
	}
}

// graphExpand splices in memories strongly connected to the top-ranked
// ones. Connected memories are ordered by relationship-type weight times
// edge confidence, and at most max(2, limit/2) are added.
func (r *Retriever) graphExpand(ctx context.Context, ranked []rankedMemory, limit int) []rankedMemory {
	budget := limit / 2
	if budget < 2 {
		budget = 2
	}

	present := make(map[string]struct{}, len(ranked))
	for _, rm := range ranked {
		present[rm.record.ID] = struct{}{}
	}

	type expansion struct {
		targetID     string
		relationship types.RelationshipType
		score        float64
	}
	var expansions []expansion

	for _, rm := range ranked {
		edges, err := r.store.ConnectionsFrom(ctx, rm.record.ID, graphEdgeMinConfidence)
		if err != nil {
			log.Printf("engine: graph expansion skipped for %s: %v", rm.record.ID, err)
			continue
		}
		for _, edge := range edges {
			if _, ok := present[edge.TargetID]; ok {
				continue
			}
			expansions = append(expansions, expansion{
				targetID:     edge.TargetID,
				relationship: edge.Type,
				score:        edge.Type.Weight() * edge.Confidence,
			})
		}
	}
	if len(expansions) == 0 {
		return ranked
	}

	sort.SliceStable(expansions, func(i, j int) bool {
		return expansions[i].score > expansions[j].score
	})

	for _, exp := range expansions {
		if budget == 0 {
			break
		}
		if _, ok := present[exp.targetID]; ok {
			continue
		}
		record, err := r.store.Get(ctx, exp.targetID)
		if err != nil {
			log.Printf("engine: connected memory %s unavailable: %v", exp.targetID, err)
			continue
		}
		if !record.Active {
			continue
		}
		present[record.ID] = struct{}{}
		ranked = append(ranked, rankedMemory{
			record:       record,
			relevance:    exp.score,
			relationship: exp.relationship,
		})
		budget--
	}
	return ranked
}

// keywordFallback is the degraded retrieval path used when embedding or
// vector search fails. It matches query tokens against stored text.
func (r *Retriever) keywordFallback(ctx context.Context, scope types.Scope, query string, limit int, now time.Time) string {
	terms := keywordTerms(query)
	if len(terms) == 0 {
		return ""
	}

	records, err := r.store.KeywordSearch(ctx, scope, terms, limit)
	if err != nil {
		log.Printf("engine: keyword fallback failed for %s: %v", scope.Key(), err)
		return ""
	}
	if len(records) == 0 {
		return ""
	}

	ranked := make([]rankedMemory, 0, len(records))
	for _, record := range records {
		ranked = append(ranked, rankedMemory{record: record, relevance: record.Confidence})
	}
	return formatMemories(ranked, FocusNone, now)
}

// keywordTerms extracts the query tokens worth matching, dropping stopwords
// and very short tokens.
func keywordTerms(query string) []string {
	var terms []string
	for _, tok := range tokenize(query) {
		if len(tok) < 3 {
			continue
		}
		if _, stop := stopTokens[tok]; stop {
			continue
		}
		terms = append(terms, tok)
	}
	return terms
}

func filterByFocus(ranked []rankedMemory, focus TemporalFocus, now time.Time) []rankedMemory {
	filtered := ranked[:0]
	for _, rm := range ranked {
		if matchesFocus(rm.record, focus, now) {
			filtered = append(filtered, rm)
		}
	}
	return filtered
}

// formatMemories renders the final prompt block. Low-confidence memories
// get a hedge suffix; graph-spliced ones get a relationship phrase unless a
// temporal focus dominates the formatting.
func formatMemories(ranked []rankedMemory, focus TemporalFocus, now time.Time) string {
	if len(ranked) == 0 {
		return ""
	}

	var b strings.Builder
	for i, rm := range ranked {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("- ")
		if focus != FocusNone {
			b.WriteString(temporalPrefix(rm.record, now))
		}
		b.WriteString(rm.record.Text)
		if rm.record.Confidence < hedgeThreshold {
			b.WriteString(" (I think)")
		}
		if focus == FocusNone && rm.relationship != "" {
			b.WriteString(" (")
			b.WriteString(rm.relationship.Describe())
			b.WriteString(")")
		}
	}
	return b.String()
}
