// Package engine implements the Bri memory core: confidence scoring,
// categorization, deduplication, storage facade, retrieval ranking and the
// background side-effect queue.
package engine

import (
	"math"
	"time"

	"github.com/scrypster/bri/pkg/types"
)

const (
	// Base confidence by memory type.
	baseConfidenceExplicit = 0.95
	baseConfidenceIntuited = 0.75

	// Decay rates per type. Explicit facts decay roughly 10x slower.
	decayRateExplicit = 0.001
	decayRateIntuited = 0.01

	// decayGraceDays is the age below which no decay is applied.
	decayGraceDays = 7.0

	// decayEpsilon is the minimum confidence change worth persisting,
	// to avoid write amplification from negligible deltas.
	decayEpsilon = 0.01

	// corroborationSimilarity is the similarity above which a new memory
	// counts as corroborating evidence for an existing one.
	corroborationSimilarity = 0.85
)

// hedgeWords reduce initial confidence: the speaker was uncertain.
var hedgeWords = []string{"might", "maybe", "possibly", "sometimes", "occasionally"}

// ConfidenceModel computes and adjusts memory confidence scores.
// All methods mutate the passed record in place and report whether the
// change is significant enough to persist.
type ConfidenceModel struct{}

// NewConfidenceModel returns a ConfidenceModel.
func NewConfidenceModel() *ConfidenceModel {
	return &ConfidenceModel{}
}

// InitialConfidence computes the starting confidence for a new memory from
// its type, provenance, category and phrasing. Adjustments apply in order,
// then the result is clamped to [0.1, 1.0]:
//
//   - source "memory_command" hard-sets 1.0 (overrides the type base)
//   - source "merged" or "ai_curation" +0.05
//   - category personal/contact +0.05, preferences -0.05
//   - hedging language ("might", "maybe", ...) -0.1
func (c *ConfidenceModel) InitialConfidence(memType types.MemoryType, source string, category types.Category, text string) float64 {
	var score float64
	switch memType {
	case types.MemoryTypeExplicit:
		score = baseConfidenceExplicit
	case types.MemoryTypeIntuited:
		score = baseConfidenceIntuited
	default:
		// Unrecognized type: fall back to the intuited base rather than
		// failing the write.
		score = baseConfidenceIntuited
	}

	if source == "memory_command" {
		score = types.MaxConfidence
	}
	if source == "merged" || source == "ai_curation" {
		score += 0.05
	}

	switch category {
	case types.CategoryPersonal, types.CategoryContact:
		score += 0.05
	case types.CategoryPreferences:
		score -= 0.05
	}

	if containsHedge(text) {
		score -= 0.1
	}

	return types.ClampConfidence(score)
}

// TrackAccess records a retrieval surfacing: the access count increments and
// confidence gets a logarithmically diminishing boost, capped so frequently
// recalled facts gain trust without ever saturating from recall alone.
func (c *ConfidenceModel) TrackAccess(record *types.MemoryRecord, now time.Time) {
	record.AccessCount++
	record.LastAccessedAt = &now

	boost := 0.01 * math.Log(float64(record.AccessCount)+1)
	if boost > 0.05 {
		boost = 0.05
	}
	record.Confidence = math.Min(types.MaxConfidence, record.Confidence+boost)
}

// Decay reduces a record's confidence according to its age, type and access
// pattern. Verified records and records younger than the grace period are
// untouched. Returns true when the change exceeds the persistence epsilon.
//
// The decay amount for a record of age d days (d > 7) is:
//
//	log10(d - 6) * rate - accessBonus
//
// where rate depends on type and accessBonus = min(0.05, accessCount*0.005),
// floored at zero. Confidence never drops below 0.1.
func (c *ConfidenceModel) Decay(record *types.MemoryRecord, now time.Time) bool {
	if record.Verified {
		return false
	}

	ageDays := record.AgeDays(now)
	if ageDays <= decayGraceDays {
		return false
	}

	rate := decayRateIntuited
	if record.Type == types.MemoryTypeExplicit {
		rate = decayRateExplicit
	}

	decay := math.Log10(ageDays-6) * rate

	accessBonus := float64(record.AccessCount) * 0.005
	if accessBonus > 0.05 {
		accessBonus = 0.05
	}
	decay -= accessBonus
	if decay < 0 {
		decay = 0
	}

	newConfidence := math.Max(types.MinConfidence, record.Confidence-decay)
	if math.Abs(newConfidence-record.Confidence) <= decayEpsilon {
		return false
	}

	record.Confidence = newConfidence
	record.UpdatedAt = now
	return true
}

// Verify pins a record at full confidence and marks it immune to decay.
func (c *ConfidenceModel) Verify(record *types.MemoryRecord, source string, now time.Time) {
	record.Verified = true
	record.Confidence = types.MaxConfidence
	record.VerificationDate = &now
	record.VerificationSource = source
	record.UpdatedAt = now
}

// MarkContradicted registers that a later fact conflicts with this record.
// The first contradiction multiplies confidence by 0.7; each subsequent one
// multiplies the current confidence by 0.5. Verification is revoked: a
// contradicted fact can no longer be treated as pinned truth.
func (c *ConfidenceModel) MarkContradicted(record *types.MemoryRecord, now time.Time) {
	factor := 0.5
	if record.ContradictionCount == 0 {
		factor = 0.7
	}
	record.ContradictionCount++
	record.Confidence = types.ClampConfidence(record.Confidence * factor)
	record.Verified = false
	record.UpdatedAt = now
}

// Corroborate boosts an existing record's confidence because a new,
// highly similar memory was observed. Independent corroboration of a fact is
// evidence the older fact is real, regardless of the new memory's own
// confidence. An intuited sighting is worth more than an explicit one here:
// the user volunteering the fact unprompted is stronger evidence than
// repeating a command.
func (c *ConfidenceModel) Corroborate(record *types.MemoryRecord, triggeringType types.MemoryType, now time.Time) {
	boost := 0.05
	if triggeringType == types.MemoryTypeIntuited {
		boost = 0.1
	}
	record.Confidence = math.Min(types.MaxConfidence, record.Confidence+boost)
	record.UpdatedAt = now
}

// containsHedge reports whether text contains hedging language.
func containsHedge(text string) bool {
	lower := normalizeText(text)
	for _, word := range hedgeWords {
		if containsWord(lower, word) {
			return true
		}
	}
	return false
}
