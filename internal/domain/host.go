package domain

import (
	"time"

	"github.com/google/uuid"
)

// Submission is the host's snapshot of a manuscript at event time,
// before any translation to the RQC taxonomy.
type Submission struct {
	JournalID   uuid.UUID
	Ref         string
	Title       string
	SubmittedAt time.Time
	Authors     []Person
	Editors     []HostEditor
}

// HostEditor is an editor as the host reports it, carrying the host's
// role rather than an RQC level.
type HostEditor struct {
	Person Person
	Role   HostEditorRole
}

// HostReview is a completed review as the host reports it at decision
// time. Authenticated records whether the reviewer ever logged in for
// this assignment; one-click reviewers never did.
type HostReview struct {
	ReviewerID        uuid.UUID
	Reviewer          Person
	Authenticated     bool
	Text              *string
	SuggestedDecision *HostDecision
	InvitedAt         *time.Time
	AgreedAt          *time.Time
	ExpectedAt        *time.Time
	SubmittedAt       *time.Time
}
