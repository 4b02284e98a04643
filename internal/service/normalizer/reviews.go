package normalizer

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	"github.com/reviewqualitycollector/janeway-rqcplugin/internal/domain"
)

const (
	pseudonymBytes  = 16
	pseudonymDomain = "@example.edu"
)

// mapReviews orders reviews by invitation, assigns visible ids,
// resolves each reviewer's consent and applies the list cap.
func (s *Service) mapReviews(ctx context.Context, journalID uuid.UUID, submissionRef, salt string, reviews []domain.HostReview) ([]domain.ReviewPayload, error) {
	ordered := byInvitation(reviews)

	if len(ordered) > domain.MaxListEntries {
		s.log.WarnContext(ctx, "review list truncated",
			slog.String("submission_ref", submissionRef),
			slog.Int("dropped", len(ordered)-domain.MaxListEntries),
		)
		ordered = ordered[:domain.MaxListEntries]
	}

	now := time.Now().UTC()
	out := make([]domain.ReviewPayload, 0, len(ordered))
	for i, r := range ordered {
		payload, err := s.mapReview(ctx, journalID, submissionRef, salt, r, now)
		if err != nil {
			return nil, err
		}
		payload.VisibleID = visibleID(i)
		out = append(out, payload)
	}
	return out, nil
}

// mapReview converts one host review, consulting the consent store.
// An anonymized review carries a pseudonymous address, no identity and
// no free text.
func (s *Service) mapReview(ctx context.Context, journalID uuid.UUID, submissionRef, salt string, r domain.HostReview, now time.Time) (domain.ReviewPayload, error) {
	anonymize, err := s.consent.IsAnonymizationRequired(ctx, r.ReviewerID, journalID, gradingYearOf(r, now), r.Authenticated)
	if err != nil {
		return domain.ReviewPayload{}, fmt.Errorf("consent lookup for reviewer %s: %w", r.ReviewerID, err)
	}

	payload := domain.ReviewPayload{
		IsHTML:      true,
		InvitedAt:   r.InvitedAt,
		AgreedAt:    r.AgreedAt,
		ExpectedAt:  r.ExpectedAt,
		SubmittedAt: r.SubmittedAt,
	}

	if r.SuggestedDecision != nil {
		if kind, mapErr := domain.MapDecision(*r.SuggestedDecision); mapErr == nil {
			payload.SuggestedDecision = &kind
		} else {
			s.log.WarnContext(ctx, "dropping unmappable suggested decision",
				slog.String("submission_ref", submissionRef),
				slog.String("host_decision", r.SuggestedDecision.String()),
			)
		}
	}

	if anonymize {
		addr, err := pseudonym(salt, r.ReviewerID, submissionRef)
		if err != nil {
			return domain.ReviewPayload{}, err
		}
		payload.Reviewer = domain.ReviewerRef{Pseudonym: addr}
		return payload, nil
	}

	identity := clampPerson(r.Reviewer)
	payload.Reviewer = domain.ReviewerRef{Identity: &identity}
	if r.Text != nil {
		text, cut := domain.TruncateMultiLine(*r.Text)
		if cut {
			s.log.WarnContext(ctx, "review text truncated",
				slog.String("submission_ref", submissionRef),
				slog.Int("limit", domain.MaxMultiLineChars),
			)
		}
		payload.Text = &text
	}
	return payload, nil
}

// pseudonym derives the stable anonymous address for a reviewer on one
// submission: a keyed BLAKE2b hash of reviewer and submission under
// the journal salt. The same reviewer keeps one address within a
// submission and cannot be linked across submissions or journals.
func pseudonym(salt string, reviewerID uuid.UUID, submissionRef string) (string, error) {
	h, err := blake2b.New(pseudonymBytes, []byte(salt))
	if err != nil {
		return "", fmt.Errorf("init pseudonym hash: %w", err)
	}
	h.Write(reviewerID[:])
	h.Write([]byte(submissionRef))
	return hex.EncodeToString(h.Sum(nil)) + pseudonymDomain, nil
}
