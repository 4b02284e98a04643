package domain

import (
	"time"

	"github.com/google/uuid"
)

// ConsentRecord tracks whether a reviewer has been asked the RQC
// participation question for a journal grading-year and how they
// answered. At most one record exists per (reviewer, journal, year);
// the answer can be recorded once and the record is immutable after.
type ConsentRecord struct {
	ReviewerID  uuid.UUID
	JournalID   uuid.UUID
	GradingYear int
	Asked       bool
	OptedIn     bool
	CreatedAt   time.Time
	AnsweredAt  *time.Time
}

// PromptRequired reports whether the consent question still has to be
// shown to the reviewer.
func (c *ConsentRecord) PromptRequired() bool {
	return !c.Asked
}

// AnonymizationRequired reports whether the reviewer's identity must be
// withheld from outgoing payloads. One-click (unauthenticated) access
// always anonymizes; so does a missing or negative answer.
func (c *ConsentRecord) AnonymizationRequired(isAuthenticated bool) bool {
	return !isAuthenticated || !c.OptedIn
}
