package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Person is the identity shape the RQC wire format carries for
// authors, editors, and identified reviewers.
type Person struct {
	Email     string
	FirstName string
	LastName  string
	OrcidID   *string
}

// ReviewerRef identifies the author of a review: either a real Person
// or an opaque pseudonymous address, never both.
type ReviewerRef struct {
	Identity  *Person
	Pseudonym string
}

// Anonymous reports whether the ref carries no real identity.
func (r ReviewerRef) Anonymous() bool {
	return r.Identity == nil
}

// ReviewPayload is a single review as reported to RQC. It is derived
// at normalization time from the host review and the reviewer's
// consent record; it is never persisted on its own. When the reviewer
// is anonymized the free text is withheld as well. VisibleID is a
// 1-based position in invitation order, used by RQC as the review's
// display name.
type ReviewPayload struct {
	VisibleID         string
	Reviewer          ReviewerRef
	Text              *string
	IsHTML            bool
	SuggestedDecision *DecisionKind
	InvitedAt         *time.Time
	AgreedAt          *time.Time
	ExpectedAt        *time.Time
	SubmittedAt       *time.Time
}

// EditorAssignment ties one person to an RQC editor level for a
// submission. A person holds a single level; level 3 wins when both
// apply.
type EditorAssignment struct {
	Person Person
	Level  EditorLevel
}

// DecisionEvent is the normalized, immutable record of one editorial
// decision, ready for the wire. A new decision produces a new event,
// never an edit of an old one.
type DecisionEvent struct {
	JournalID     uuid.UUID
	SubmissionRef string
	Title         string
	SubmittedAt   time.Time
	Decision      DecisionKind
	Authors       []Person
	Editors       []EditorAssignment
	Reviews       []ReviewPayload
}

// MapDecision translates a host editorial outcome into RQC's decision
// taxonomy. ConditionalAccept maps to MINORREVISION; RQC has no finer
// category for it and this is the only lossy pairing. Kinds outside
// the closed host set fail with ErrUnmappableDecision.
func MapDecision(d HostDecision) (DecisionKind, error) {
	switch d {
	case HostDecisionAccept:
		return DecisionAccept, nil
	case HostDecisionConditionalAccept, HostDecisionMinorRevision:
		return DecisionMinorRevision, nil
	case HostDecisionMajorRevision:
		return DecisionMajorRevision, nil
	case HostDecisionReject:
		return DecisionReject, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnmappableDecision, string(d))
	}
}
