// Package types defines the public data model for the Bri memory system.
// A MemoryRecord is a single natural-language fact about a user, scoped to
// one (user, guild) pair. Records carry a confidence score that is adjusted
// over time by access, decay, corroboration and contradiction events.
package types

import (
	"fmt"
	"time"
)

// MemoryType distinguishes how a memory entered the system.
type MemoryType string

const (
	// MemoryTypeExplicit marks facts the user directly asked to be remembered.
	MemoryTypeExplicit MemoryType = "explicit"

	// MemoryTypeIntuited marks facts inferred from conversation.
	MemoryTypeIntuited MemoryType = "intuited"
)

// Category is the fixed taxonomy a memory's text is classified into.
type Category string

const (
	CategoryPersonal     Category = "personal"
	CategoryProfessional Category = "professional"
	CategoryPreferences  Category = "preferences"
	CategoryHobbies      Category = "hobbies"
	CategoryContact      Category = "contact"
	CategoryOther        Category = "other"
)

// Confidence bounds. A record's confidence is never allowed outside
// [MinConfidence, MaxConfidence].
const (
	MinConfidence = 0.1
	MaxConfidence = 1.0
)

// Scope identifies the (user, guild) pair a record belongs to.
// GuildID may be empty for direct-message contexts.
type Scope struct {
	UserID  string `json:"user_id"`
	GuildID string `json:"guild_id,omitempty"`
}

// Key returns a stable map key for the scope.
func (s Scope) Key() string {
	return s.UserID + ":" + s.GuildID
}

// Validate checks that the scope has a user component.
func (s Scope) Validate() error {
	if s.UserID == "" {
		return fmt.Errorf("scope: user id is required")
	}
	return nil
}

// MemoryRecord is a single stored fact about a user.
type MemoryRecord struct {
	// Core identification fields
	ID      string `json:"id"`       // Unique identifier (uuid)
	UserID  string `json:"user_id"`  // Owning user
	GuildID string `json:"guild_id"` // Owning guild (empty for DMs)

	// Content
	Text      string    `json:"text"`                // Normalized fact text
	Embedding []float32 `json:"embedding,omitempty"` // Vector for the text

	// Classification
	Type     MemoryType `json:"type"`     // explicit or intuited
	Category Category   `json:"category"` // taxonomy bucket

	// Trust signals
	Confidence         float64    `json:"confidence"`                    // [0.1, 1.0]
	Source             string     `json:"source"`                        // provenance tag (e.g. "memory_command")
	Verified           bool       `json:"verified"`                      // pins confidence at 1.0, immune to decay
	VerificationDate   *time.Time `json:"verification_date,omitempty"`   // when verified was set
	VerificationSource string     `json:"verification_source,omitempty"` // what verified it
	ContradictionCount int        `json:"contradiction_count"`           // later facts that conflicted with this one

	// Access tracking
	AccessCount    int        `json:"access_count"`               // times surfaced by retrieval
	LastAccessedAt *time.Time `json:"last_accessed_at,omitempty"` // most recent retrieval surfacing

	// Lifecycle
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Active    bool      `json:"active"` // soft-delete flag
}

// Scope returns the record's (user, guild) scope.
func (m *MemoryRecord) Scope() Scope {
	return Scope{UserID: m.UserID, GuildID: m.GuildID}
}

// ClampConfidence forces the record's confidence into [MinConfidence, MaxConfidence].
func (m *MemoryRecord) ClampConfidence() {
	m.Confidence = ClampConfidence(m.Confidence)
}

// ClampConfidence returns v clamped to [MinConfidence, MaxConfidence].
func ClampConfidence(v float64) float64 {
	if v < MinConfidence {
		return MinConfidence
	}
	if v > MaxConfidence {
		return MaxConfidence
	}
	return v
}

// AgeDays returns the record's age in fractional days at the given instant.
// Never negative, even for records with a future created_at from clock skew.
func (m *MemoryRecord) AgeDays(now time.Time) float64 {
	days := now.Sub(m.CreatedAt).Hours() / 24.0
	if days < 0 {
		return 0
	}
	return days
}

// Validate checks required fields before a record is persisted.
func (m *MemoryRecord) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("memory: id is required")
	}
	if m.UserID == "" {
		return fmt.Errorf("memory: user id is required")
	}
	if m.Text == "" {
		return fmt.Errorf("memory: text is required")
	}
	if m.Confidence < MinConfidence || m.Confidence > MaxConfidence {
		return fmt.Errorf("memory: confidence %.3f outside [%.1f, %.1f]", m.Confidence, MinConfidence, MaxConfidence)
	}
	return nil
}

// ValidCategory reports whether c is one of the known taxonomy buckets.
func ValidCategory(c Category) bool {
	switch c {
	case CategoryPersonal, CategoryProfessional, CategoryPreferences,
		CategoryHobbies, CategoryContact, CategoryOther:
		return true
	}
	return false
}
