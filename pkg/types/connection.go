package types

import "time"

// RelationshipType classifies a directed edge between two memories.
type RelationshipType string

const (
	RelRelatedTo   RelationshipType = "related_to"
	RelElaborates  RelationshipType = "elaborates"
	RelContradicts RelationshipType = "contradicts"
	RelFollows     RelationshipType = "follows"
	RelPrecedes    RelationshipType = "precedes"
	RelCauses      RelationshipType = "causes"
	RelPartOf      RelationshipType = "part_of"
)

// MemoryConnection is a directed edge between two MemoryRecords.
//
// Symmetry rules: RELATED_TO is symmetric, so inserting A to B implies B to A
// with the same type and confidence. FOLLOWS and PRECEDES are mutual inverses.
// CAUSES has no auto-generated inverse.
type MemoryConnection struct {
	ID         string           `json:"id"`
	SourceID   string           `json:"source_id"`
	TargetID   string           `json:"target_id"`
	Type       RelationshipType `json:"type"`
	Confidence float64          `json:"confidence"`
	CreatedAt  time.Time        `json:"created_at"`
}

// IsSymmetric reports whether inserting this edge implies the reverse edge
// with the same type.
func (t RelationshipType) IsSymmetric() bool {
	return t == RelRelatedTo
}

// Inverse returns the relationship type of the auto-generated reverse edge,
// or empty when no reverse edge should be created.
func (t RelationshipType) Inverse() RelationshipType {
	switch t {
	case RelRelatedTo:
		return RelRelatedTo
	case RelFollows:
		return RelPrecedes
	case RelPrecedes:
		return RelFollows
	}
	return ""
}

// Weight returns the ranking weight used when splicing connected memories
// into retrieval results. Elaboration is the most useful expansion; causal
// and sequential links come next; everything else is weighted lowest.
func (t RelationshipType) Weight() float64 {
	switch t {
	case RelElaborates:
		return 1.0
	case RelCauses, RelFollows, RelPrecedes:
		return 0.8
	default:
		return 0.5
	}
}

// Describe returns a human-readable phrase for annotating a retrieved memory
// that was surfaced through this relationship.
func (t RelationshipType) Describe() string {
	switch t {
	case RelElaborates:
		return "which elaborates on another memory"
	case RelContradicts:
		return "which conflicts with another memory"
	case RelFollows:
		return "which happened after a related memory"
	case RelPrecedes:
		return "which happened before a related memory"
	case RelCauses:
		return "which led to another memory"
	case RelPartOf:
		return "which is part of a larger memory"
	default:
		return "which relates to another memory"
	}
}

// ValidRelationshipType reports whether t is a known relationship type.
func ValidRelationshipType(t RelationshipType) bool {
	switch t {
	case RelRelatedTo, RelElaborates, RelContradicts, RelFollows,
		RelPrecedes, RelCauses, RelPartOf:
		return true
	}
	return false
}
