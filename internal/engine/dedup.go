package engine

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strings"

	"github.com/scrypster/bri/internal/embedding"
	"github.com/scrypster/bri/internal/storage"
	"github.com/scrypster/bri/pkg/types"
)

const (
	// dedupRetrieveThreshold is the loose similarity floor used to pull
	// potential duplicates from the store.
	dedupRetrieveThreshold = 0.85

	// dedupDropThreshold is the strict similarity above which a candidate
	// is rejected as a true duplicate.
	dedupDropThreshold = 0.92

	// updateMatchThreshold is the looser floor used by FindSimilarMemory
	// to answer "is this about the same fact slot" for update-vs-insert.
	updateMatchThreshold = 0.5

	// conceptOverlapThreshold drops a within-batch candidate against an
	// earlier-kept one.
	conceptOverlapThreshold = 0.7
)

// Deduplicator rejects near-duplicate memory candidates, using embedding
// similarity against stored records and lexical concept overlap within a
// batch of new candidates.
type Deduplicator struct {
	store    storage.SimilaritySearcher
	embedder embedding.Generator
}

func NewDeduplicator(store storage.SimilaritySearcher, embedder embedding.Generator) *Deduplicator {
	return &Deduplicator{store: store, embedder: embedder}
}

// DedupeAgainstStore filters out candidates that are near-duplicates of
// records already stored in the scope. Candidates are retrieved with a
// moderate threshold but only dropped above a stricter one, so related but
// distinct facts survive. Embedding or storage failures keep the candidate.
func (d *Deduplicator) DedupeAgainstStore(ctx context.Context, scope types.Scope, candidates []string) []string {
	if len(candidates) == 0 {
		return nil
	}

	vectors, err := d.embedder.EmbedBatch(ctx, candidates)
	if err != nil {
		log.Printf("engine: dedup embed batch failed, keeping all %d candidates: %v", len(candidates), err)
		return candidates
	}

	kept := make([]string, 0, len(candidates))
	for i, candidate := range candidates {
		matches, err := d.store.TopKSimilar(ctx, scope, vectors[i], storage.SimilarityOptions{
			K:             3,
			MinSimilarity: dedupRetrieveThreshold,
		})
		if err != nil {
			log.Printf("engine: dedup similarity lookup failed, keeping candidate: %v", err)
			kept = append(kept, candidate)
			continue
		}

		duplicate := false
		for _, m := range matches {
			if m.Similarity >= dedupDropThreshold {
				duplicate = true
				break
			}
		}
		if duplicate {
			continue
		}
		kept = append(kept, candidate)
	}
	return kept
}

// DedupeWithinBatch removes candidates that express the same concept as an
// earlier candidate in the batch, without calling the embedder. First-seen
// wins.
func (d *Deduplicator) DedupeWithinBatch(candidates []string) []string {
	if len(candidates) <= 1 {
		return candidates
	}

	kept := make([]string, 0, len(candidates))
	keptConcepts := make([]conceptProfile, 0, len(candidates))

	for _, candidate := range candidates {
		profile := extractConcepts(candidate)
		duplicate := false
		for _, prior := range keptConcepts {
			if conceptOverlap(profile, prior) > conceptOverlapThreshold {
				duplicate = true
				break
			}
		}
		if duplicate {
			continue
		}
		kept = append(kept, candidate)
		keptConcepts = append(keptConcepts, profile)
	}
	return kept
}

// FindSimilarMemory returns the single most similar EXPLICIT record above
// the update threshold, or nil when none matches.
func (d *Deduplicator) FindSimilarMemory(ctx context.Context, scope types.Scope, text string) (*types.MemoryRecord, error) {
	vector, err := d.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}

	matches, err := d.store.TopKSimilar(ctx, scope, vector, storage.SimilarityOptions{
		K:             1,
		MinSimilarity: updateMatchThreshold,
		Filter:        storage.RecordFilter{Type: types.MemoryTypeExplicit},
	})
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	if len(matches) == 0 {
		return nil, nil
	}
	return matches[0].Record, nil
}

// predicate is a (verb, object) tuple extracted from candidate text.
type predicate struct {
	verb   string
	object string
	kind   string
}

// conceptProfile is the lightweight representation compared during
// within-batch dedup.
type conceptProfile struct {
	predicates []predicate
	topics     map[string]struct{}
}

// Predicate extraction patterns. Each captures the object following a verb
// of a given kind. The subject prefix is tolerated but not captured.
var predicatePatterns = []struct {
	kind string
	re   *regexp.Regexp
}{
	{"preference", regexp.MustCompile(`\b(likes?|loves?|enjoys?|prefers?|hates?|dislikes?)\s+(?:to\s+)?([\w' -]+)`)},
	{"location", regexp.MustCompile(`\b(lives?|lived|living|moved|resides?)\s+(?:in|at|near|to)\s+([\w' -]+)`)},
	{"occupation", regexp.MustCompile(`\b(works?|worked|working|studies|studied|studying)\s+(?:as|at|in|for|on)?\s*([\w' -]+)`)},
	{"possession", regexp.MustCompile(`\b(has|have|had|owns?|owned|got)\s+(?:a|an|the|some)?\s*([\w' -]+)`)},
	{"state", regexp.MustCompile(`\b(is|was|are|were|feels?|felt|became|becomes?)\s+(?:a|an|the)?\s*([\w' -]+)`)},
}

// verbGroups map preference verbs that express the same sentiment to one
// canonical group, so "likes pizza" and "loves pizza" compare equal.
var verbGroups = map[string]string{
	"like": "positive", "likes": "positive",
	"love": "positive", "loves": "positive",
	"enjoy": "positive", "enjoys": "positive",
	"prefer": "positive", "prefers": "positive",
	"hate": "negative", "hates": "negative",
	"dislike": "negative", "dislikes": "negative",
	"lives": "location", "live": "location", "lived": "location",
	"living": "location", "moved": "location", "resides": "location", "reside": "location",
	"works": "occupation", "work": "occupation", "worked": "occupation",
	"working": "occupation", "studies": "occupation", "studied": "occupation", "studying": "occupation",
	"has": "possession", "have": "possession", "had": "possession",
	"owns": "possession", "own": "possession", "owned": "possession", "got": "possession",
}

var determinerRe = regexp.MustCompile(`\b(?:a|an|the|my|his|her|their|our|its)\s+([\w-]+)`)

// stopTokens are excluded from topic sets.
var stopTokens = map[string]struct{}{
	"user": {}, "users": {}, "user's": {}, "is": {}, "a": {}, "an": {},
	"the": {}, "to": {}, "of": {}, "and": {}, "in": {}, "at": {},
	"that": {}, "with": {}, "for": {}, "on": {}, "very": {}, "really": {},
}

// extractConcepts builds the predicate tuples and topic set for one
// candidate text.
func extractConcepts(text string) conceptProfile {
	normalized := normalizeText(text)
	profile := conceptProfile{topics: make(map[string]struct{})}

	for _, pat := range predicatePatterns {
		for _, m := range pat.re.FindAllStringSubmatch(normalized, -1) {
			verb := m[1]
			object := strings.TrimSpace(m[2])
			if object == "" {
				continue
			}
			profile.predicates = append(profile.predicates, predicate{
				verb:   verb,
				object: object,
				kind:   pat.kind,
			})
			for _, tok := range tokenize(object) {
				if _, stop := stopTokens[tok]; !stop {
					profile.topics[tok] = struct{}{}
				}
			}
		}
	}

	for _, m := range determinerRe.FindAllStringSubmatch(normalized, -1) {
		tok := m[1]
		if _, stop := stopTokens[tok]; !stop {
			profile.topics[tok] = struct{}{}
		}
	}

	return profile
}

// conceptOverlap scores two candidate profiles in [0, 1] as a weighted blend
// of predicate similarity and topic overlap.
func conceptOverlap(a, b conceptProfile) float64 {
	return 0.7*predicateSimilarity(a.predicates, b.predicates) + 0.3*topicSimilarity(a.topics, b.topics)
}

// predicateSimilarity returns the best pairwise predicate match between two
// profiles: 1.0 for same verb group and overlapping objects, 0.5 for one of
// the two matching, 0 otherwise.
func predicateSimilarity(a, b []predicate) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	best := 0.0
	for _, pa := range a {
		for _, pb := range b {
			score := scorePredicatePair(pa, pb)
			if score > best {
				best = score
			}
		}
	}
	return best
}

func scorePredicatePair(a, b predicate) float64 {
	sameVerb := verbGroup(a.verb) == verbGroup(b.verb)
	oa := tokenSet(a.object)
	ob := tokenSet(b.object)
	objectsOverlap := overlapCount(oa, ob) > 0

	switch {
	case sameVerb && objectsOverlap:
		return 1.0
	case sameVerb || objectsOverlap:
		return 0.5
	default:
		return 0
	}
}

func verbGroup(verb string) string {
	if group, ok := verbGroups[verb]; ok {
		return group
	}
	return verb
}

// topicSimilarity is overlap normalized by the smaller topic set.
func topicSimilarity(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	smaller := len(a)
	if len(b) < smaller {
		smaller = len(b)
	}
	return float64(overlapCount(a, b)) / float64(smaller)
}
