// Package normalizer translates host domain shapes (submission,
// editors, decision, reviews) into the RQC taxonomy. Translation is
// pure except for consent and salt lookups: no network I/O, and
// deterministic for the same inputs, because the retry queue replays
// an already-normalized payload verbatim and never re-normalizes.
package normalizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/reviewqualitycollector/janeway-rqcplugin/internal/domain"
)

type consentChecker interface {
	IsAnonymizationRequired(ctx context.Context, reviewerID, journalID uuid.UUID, gradingYear int, isAuthenticated bool) (bool, error)
}

type credentialStore interface {
	Get(ctx context.Context, journalID uuid.UUID) (domain.JournalCredential, error)
}

// Service builds normalized decision events. It consults the consent
// store per reviewer and the credential store for the journal's
// pseudonym salt.
type Service struct {
	log         *slog.Logger
	consent     consentChecker
	credentials credentialStore
}

// NewService creates a new normalizer service.
func NewService(logger *slog.Logger, consent consentChecker, credentials credentialStore) *Service {
	return &Service{
		log:         logger.With("service", "normalizer"),
		consent:     consent,
		credentials: credentials,
	}
}

// BuildDecisionEvent assembles the immutable wire-ready event for one
// editorial decision. decision is nil on interactive grading triggers
// that happen before any decision exists. Editors are deduplicated and
// leveled, reviewers anonymized per their consent, and the RQC field
// limits applied.
func (s *Service) BuildDecisionEvent(
	ctx context.Context,
	sub domain.Submission,
	decision *domain.HostDecision,
	decisionEditors []domain.Person,
	reviews []domain.HostReview,
) (domain.DecisionEvent, error) {
	if err := validateSubmission(sub); err != nil {
		return domain.DecisionEvent{}, err
	}

	var kind domain.DecisionKind
	if decision != nil {
		mapped, err := domain.MapDecision(*decision)
		if err != nil {
			s.log.ErrorContext(ctx, "decision kind not mappable",
				slog.String("journal_id", sub.JournalID.String()),
				slog.String("submission_ref", sub.Ref),
				slog.String("host_decision", decision.String()),
			)
			return domain.DecisionEvent{}, err
		}
		kind = mapped
	}

	cred, err := s.credentials.Get(ctx, sub.JournalID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.DecisionEvent{}, fmt.Errorf("%w: journal %s", domain.ErrCredentialsMissing, sub.JournalID)
		}
		return domain.DecisionEvent{}, fmt.Errorf("get journal credential: %w", err)
	}

	title, cut := domain.TruncateSingleLine(sub.Title)
	if cut {
		s.log.WarnContext(ctx, "title truncated",
			slog.String("submission_ref", sub.Ref),
			slog.Int("limit", domain.MaxSingleLineChars),
		)
	}

	authors := sub.Authors
	if len(authors) > domain.MaxAuthors {
		s.log.WarnContext(ctx, "author list truncated",
			slog.String("submission_ref", sub.Ref),
			slog.Int("dropped", len(authors)-domain.MaxAuthors),
		)
		authors = authors[:domain.MaxAuthors]
	}
	outAuthors := make([]domain.Person, 0, len(authors))
	for _, a := range authors {
		outAuthors = append(outAuthors, clampPerson(a))
	}

	outReviews, err := s.mapReviews(ctx, sub.JournalID, sub.Ref, cred.Salt, reviews)
	if err != nil {
		return domain.DecisionEvent{}, err
	}

	return domain.DecisionEvent{
		JournalID:     sub.JournalID,
		SubmissionRef: sub.Ref,
		Title:         title,
		SubmittedAt:   sub.SubmittedAt.UTC(),
		Decision:      kind,
		Authors:       outAuthors,
		Editors:       s.MapEditors(ctx, sub.Ref, sub.Editors, decisionEditors),
		Reviews:       outReviews,
	}, nil
}

func validateSubmission(sub domain.Submission) error {
	var errs []domain.FieldError

	if sub.JournalID == uuid.Nil {
		errs = append(errs, domain.FieldError{Field: "journal_id", Message: "required"})
	}
	if sub.Ref == "" {
		errs = append(errs, domain.FieldError{Field: "submission_ref", Message: "required"})
	}

	if len(errs) > 0 {
		return domain.NewValidationErrors(errs)
	}
	return nil
}

// clampPerson caps every identity field at the single-line limit.
func clampPerson(p domain.Person) domain.Person {
	p.Email, _ = domain.TruncateSingleLine(p.Email)
	p.FirstName, _ = domain.TruncateSingleLine(p.FirstName)
	p.LastName, _ = domain.TruncateSingleLine(p.LastName)
	if p.OrcidID != nil {
		id, _ := domain.TruncateSingleLine(*p.OrcidID)
		p.OrcidID = &id
	}
	return p
}

// gradingYearOf picks the consent year a review falls under: the year
// the review was completed, else the year the reviewer agreed, else
// the current year. The consent record is keyed by this year.
func gradingYearOf(r domain.HostReview, now time.Time) int {
	if r.SubmittedAt != nil {
		return r.SubmittedAt.UTC().Year()
	}
	if r.AgreedAt != nil {
		return r.AgreedAt.UTC().Year()
	}
	return now.UTC().Year()
}

// byInvitation orders reviews by invitation date, unknown dates last.
// The resulting positions become the 1-based visible ids, so the
// ordering must be stable.
func byInvitation(reviews []domain.HostReview) []domain.HostReview {
	out := make([]domain.HostReview, len(reviews))
	copy(out, reviews)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].InvitedAt, out[j].InvitedAt
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.Before(*b)
		}
	})
	return out
}

func visibleID(position int) string {
	return strconv.Itoa(position + 1)
}
