package testhelper

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/reviewqualitycollector/janeway-rqcplugin/internal/domain"
)

// uniqueSuffix returns a short unique string for generating non-conflicting test data.
func uniqueSuffix() string {
	return uuid.New().String()[:8]
}

// SeedCredential creates a validated credential pair for a fresh journal.
// Returns a filled domain.JournalCredential.
func SeedCredential(t *testing.T, pool *pgxpool.Pool) domain.JournalCredential {
	t.Helper()
	ctx := context.Background()

	suffix := uniqueSuffix()
	now := time.Now().UTC().Truncate(time.Microsecond)

	salt, err := domain.NewJournalSalt()
	if err != nil {
		t.Fatalf("testhelper: SeedCredential generate salt: %v", err)
	}

	cred := domain.JournalCredential{
		JournalID:       uuid.New(),
		RQCJournalID:    4242,
		APIKey:          "testkey" + suffix,
		Salt:            salt,
		Validated:       true,
		LastValidatedAt: &now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	_, err = pool.Exec(ctx,
		`INSERT INTO journal_credentials (journal_id, rqc_journal_id, api_key, salt, validated, last_validated_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		cred.JournalID, cred.RQCJournalID, cred.APIKey, cred.Salt, cred.Validated, cred.LastValidatedAt, cred.CreatedAt, cred.UpdatedAt,
	)
	if err != nil {
		t.Fatalf("testhelper: SeedCredential insert journal_credential: %v", err)
	}

	return cred
}

// SeedConsent creates an unanswered consent record for the given key.
// Returns a filled domain.ConsentRecord.
func SeedConsent(t *testing.T, pool *pgxpool.Pool, reviewerID, journalID uuid.UUID, gradingYear int) domain.ConsentRecord {
	t.Helper()
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Microsecond)
	rec := domain.ConsentRecord{
		ReviewerID:  reviewerID,
		JournalID:   journalID,
		GradingYear: gradingYear,
		CreatedAt:   now,
	}

	_, err := pool.Exec(ctx,
		`INSERT INTO consent_records (reviewer_id, journal_id, grading_year, asked, opted_in, created_at)
		 VALUES ($1, $2, $3, false, false, $4)`,
		rec.ReviewerID, rec.JournalID, rec.GradingYear, rec.CreatedAt,
	)
	if err != nil {
		t.Fatalf("testhelper: SeedConsent insert consent_record: %v", err)
	}

	return rec
}

// SeedPendingTask creates a pending delivery task with a minimal payload, due
// immediately. Returns a filled domain.DeliveryTask.
func SeedPendingTask(t *testing.T, pool *pgxpool.Pool, journalID uuid.UUID, submissionRef string) domain.DeliveryTask {
	t.Helper()
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Microsecond)
	event := domain.DecisionEvent{
		JournalID:     journalID,
		SubmissionRef: submissionRef,
		Title:         "Seeded submission " + submissionRef,
		SubmittedAt:   now,
		Decision:      domain.DecisionAccept,
	}

	// Keys mirror the task repo's payload serialization.
	payloadJSON, err := json.Marshal(map[string]any{
		"journal_id":     event.JournalID,
		"submission_ref": event.SubmissionRef,
		"title":          event.Title,
		"submitted_at":   event.SubmittedAt,
		"decision":       string(event.Decision),
		"authors":        []any{},
		"editors":        []any{},
		"reviews":        []any{},
	})
	if err != nil {
		t.Fatalf("testhelper: SeedPendingTask marshal payload: %v", err)
	}

	task := domain.DeliveryTask{
		ID:            uuid.New(),
		JournalID:     journalID,
		SubmissionRef: submissionRef,
		Payload:       event,
		State:         domain.TaskStatePending,
		CreatedAt:     now,
		NextAttemptAt: now,
		UpdatedAt:     now,
	}

	_, err = pool.Exec(ctx,
		`INSERT INTO delivery_tasks (id, journal_id, submission_ref, payload, attempts, state, next_attempt_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, 0, $5, $6, $7, $8)`,
		task.ID, task.JournalID, task.SubmissionRef, payloadJSON, string(task.State), task.NextAttemptAt, task.CreatedAt, task.UpdatedAt,
	)
	if err != nil {
		t.Fatalf("testhelper: SeedPendingTask insert delivery_task: %v", err)
	}

	return task
}
