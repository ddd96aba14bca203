package types

import "time"

// ExtractionState records how far conversation extraction has progressed for
// one (user, guild) scope, so each pass only processes messages newer than
// the last one it saw instead of reprocessing full history.
//
// Updates are upsert-by-key: two concurrent extraction passes for the same
// scope race benignly (last writer wins) and a rare double-processed batch is
// collapsed by deduplication downstream.
type ExtractionState struct {
	UserID  string `json:"user_id"`
	GuildID string `json:"guild_id"`

	// LastExtractionTime is when the most recent extraction pass completed.
	LastExtractionTime time.Time `json:"last_extraction_time"`

	// LastMessageCount is the conversation length observed at that pass.
	LastMessageCount int `json:"last_message_count"`

	// LastMessageID is the newest message consumed by that pass.
	LastMessageID string `json:"last_message_id"`

	UpdatedAt time.Time `json:"updated_at"`
}

// Scope returns the (user, guild) scope this state belongs to.
func (s *ExtractionState) Scope() Scope {
	return Scope{UserID: s.UserID, GuildID: s.GuildID}
}
