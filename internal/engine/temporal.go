package engine

import (
	"time"

	"github.com/scrypster/bri/pkg/types"
)

// TemporalFocus is the time orientation detected in a retrieval query.
type TemporalFocus string

const (
	FocusNone    TemporalFocus = "none"
	FocusPast    TemporalFocus = "past"
	FocusPresent TemporalFocus = "present"
	FocusFuture  TemporalFocus = "future"
	FocusChange  TemporalFocus = "change"
)

// recentWindow separates current facts from past ones when annotating a
// temporally focused retrieval.
const recentWindow = 30 * 24 * time.Hour

var (
	pastSignals = []string{
		"used to", "did", "was", "were", "before", "previously", "back then",
		"last year", "last month", "last week", "ago", "in the past",
		"remember when", "history",
	}
	presentSignals = []string{
		"now", "currently", "these days", "right now", "at the moment",
		"today", "nowadays",
	}
	futureSignals = []string{
		"will", "going to", "plan", "plans", "planning", "next week",
		"next month", "next year", "soon", "future", "upcoming", "tomorrow",
	}
	changeSignals = []string{
		"changed", "change over", "anymore", "still", "used to be",
		"different now", "evolved", "no longer", "switch", "switched",
	}
)

// ClassifyQueryFocus detects whether a query asks about the past, present,
// future, or how something changed over time. Change signals win over the
// plain tense signals since they subsume them.
func ClassifyQueryFocus(query string) TemporalFocus {
	normalized := normalizeText(query)

	if containsAny(normalized, changeSignals) {
		return FocusChange
	}
	if containsAny(normalized, futureSignals) {
		return FocusFuture
	}
	if containsAny(normalized, pastSignals) {
		return FocusPast
	}
	if containsAny(normalized, presentSignals) {
		return FocusPresent
	}
	return FocusNone
}

// memoryPeriod labels a record as current or past based on when it was last
// written, with text tense markers overriding recency.
func memoryPeriod(record *types.MemoryRecord, now time.Time) TemporalFocus {
	normalized := normalizeText(record.Text)
	if containsAny(normalized, []string{"used to", "previously", "no longer", "formerly"}) {
		return FocusPast
	}
	if now.Sub(record.UpdatedAt) <= recentWindow {
		return FocusPresent
	}
	return FocusPast
}

// matchesFocus reports whether a record fits the query's temporal focus.
// Change queries match everything since they compare periods.
func matchesFocus(record *types.MemoryRecord, focus TemporalFocus, now time.Time) bool {
	switch focus {
	case FocusPast:
		return memoryPeriod(record, now) == FocusPast
	case FocusPresent, FocusFuture:
		return memoryPeriod(record, now) == FocusPresent
	default:
		return true
	}
}

// temporalPrefix returns the framing used in temporally aware formatting.
func temporalPrefix(record *types.MemoryRecord, now time.Time) string {
	if memoryPeriod(record, now) == FocusPast {
		return "previously: "
	}
	return "as of " + record.UpdatedAt.Format("Jan 2006") + ": "
}
