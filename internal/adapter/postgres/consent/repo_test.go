package consent_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/reviewqualitycollector/janeway-rqcplugin/internal/adapter/postgres/consent"
	"github.com/reviewqualitycollector/janeway-rqcplugin/internal/adapter/postgres/testhelper"
	"github.com/reviewqualitycollector/janeway-rqcplugin/internal/domain"
)

// newRepo sets up a test DB and returns a ready Repo + pool.
func newRepo(t *testing.T) (*consent.Repo, *pgxpool.Pool) {
	t.Helper()
	pool := testhelper.SetupTestDB(t)
	return consent.New(pool), pool
}

func TestRepo_GetOrCreate_CreatesUnanswered(t *testing.T) {
	t.Parallel()
	repo, _ := newRepo(t)
	ctx := context.Background()

	reviewerID := uuid.New()
	journalID := uuid.New()

	got, err := repo.GetOrCreate(ctx, reviewerID, journalID, 2026)
	if err != nil {
		t.Fatalf("GetOrCreate: unexpected error: %v", err)
	}

	if got.ReviewerID != reviewerID {
		t.Errorf("ReviewerID mismatch: got %s, want %s", got.ReviewerID, reviewerID)
	}
	if got.JournalID != journalID {
		t.Errorf("JournalID mismatch: got %s, want %s", got.JournalID, journalID)
	}
	if got.GradingYear != 2026 {
		t.Errorf("GradingYear mismatch: got %d, want 2026", got.GradingYear)
	}
	if got.Asked {
		t.Error("fresh record should be unanswered")
	}
	if got.OptedIn {
		t.Error("fresh record should not be opted in")
	}
	if got.AnsweredAt != nil {
		t.Errorf("AnsweredAt should be nil, got %v", got.AnsweredAt)
	}
	if !got.PromptRequired() {
		t.Error("fresh record should require a prompt")
	}
}

func TestRepo_GetOrCreate_ReturnsExisting(t *testing.T) {
	t.Parallel()
	repo, _ := newRepo(t)
	ctx := context.Background()

	reviewerID := uuid.New()
	journalID := uuid.New()

	first, err := repo.GetOrCreate(ctx, reviewerID, journalID, 2026)
	if err != nil {
		t.Fatalf("GetOrCreate first: unexpected error: %v", err)
	}

	answered, err := repo.Answer(ctx, reviewerID, journalID, 2026, true, time.Now())
	if err != nil {
		t.Fatalf("Answer: unexpected error: %v", err)
	}
	if !answered.OptedIn {
		t.Fatal("answered record should be opted in")
	}

	second, err := repo.GetOrCreate(ctx, reviewerID, journalID, 2026)
	if err != nil {
		t.Fatalf("GetOrCreate second: unexpected error: %v", err)
	}

	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("CreatedAt changed: got %v, want %v", second.CreatedAt, first.CreatedAt)
	}
	if !second.Asked || !second.OptedIn {
		t.Error("second GetOrCreate should return the answered record unchanged")
	}
}

func TestRepo_GetOrCreate_SeparateYears(t *testing.T) {
	t.Parallel()
	repo, _ := newRepo(t)
	ctx := context.Background()

	reviewerID := uuid.New()
	journalID := uuid.New()

	if _, err := repo.Answer(ctx, reviewerID, journalID, 2025, true, time.Now()); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected domain.ErrNotFound before creation, got: %v", err)
	}

	if _, err := repo.GetOrCreate(ctx, reviewerID, journalID, 2025); err != nil {
		t.Fatalf("GetOrCreate 2025: unexpected error: %v", err)
	}
	if _, err := repo.Answer(ctx, reviewerID, journalID, 2025, false, time.Now()); err != nil {
		t.Fatalf("Answer 2025: unexpected error: %v", err)
	}

	// A new grading year starts with a fresh, unanswered record.
	next, err := repo.GetOrCreate(ctx, reviewerID, journalID, 2026)
	if err != nil {
		t.Fatalf("GetOrCreate 2026: unexpected error: %v", err)
	}
	if next.Asked {
		t.Error("record for a new grading year should be unanswered")
	}
}

func TestRepo_Answer_OptIn(t *testing.T) {
	t.Parallel()
	repo, pool := newRepo(t)
	ctx := context.Background()

	seeded := testhelper.SeedConsent(t, pool, uuid.New(), uuid.New(), 2026)

	answeredAt := time.Now().UTC().Truncate(time.Microsecond)
	got, err := repo.Answer(ctx, seeded.ReviewerID, seeded.JournalID, seeded.GradingYear, true, answeredAt)
	if err != nil {
		t.Fatalf("Answer: unexpected error: %v", err)
	}

	if !got.Asked {
		t.Error("answered record should be marked asked")
	}
	if !got.OptedIn {
		t.Error("record should be opted in")
	}
	if got.AnsweredAt == nil || !got.AnsweredAt.Equal(answeredAt) {
		t.Errorf("AnsweredAt mismatch: got %v, want %v", got.AnsweredAt, answeredAt)
	}
	if got.PromptRequired() {
		t.Error("answered record should not require a prompt")
	}
}

func TestRepo_Answer_OptOut(t *testing.T) {
	t.Parallel()
	repo, pool := newRepo(t)
	ctx := context.Background()

	seeded := testhelper.SeedConsent(t, pool, uuid.New(), uuid.New(), 2026)

	got, err := repo.Answer(ctx, seeded.ReviewerID, seeded.JournalID, seeded.GradingYear, false, time.Now())
	if err != nil {
		t.Fatalf("Answer: unexpected error: %v", err)
	}

	if !got.Asked {
		t.Error("answered record should be marked asked")
	}
	if got.OptedIn {
		t.Error("record should not be opted in")
	}
}

func TestRepo_Answer_AlreadyAnswered(t *testing.T) {
	t.Parallel()
	repo, pool := newRepo(t)
	ctx := context.Background()

	seeded := testhelper.SeedConsent(t, pool, uuid.New(), uuid.New(), 2026)

	if _, err := repo.Answer(ctx, seeded.ReviewerID, seeded.JournalID, seeded.GradingYear, true, time.Now()); err != nil {
		t.Fatalf("Answer first: unexpected error: %v", err)
	}

	_, err := repo.Answer(ctx, seeded.ReviewerID, seeded.JournalID, seeded.GradingYear, false, time.Now())
	if !errors.Is(err, domain.ErrAlreadyAnswered) {
		t.Fatalf("expected domain.ErrAlreadyAnswered, got: %v", err)
	}

	// The first answer must survive the rejected second one.
	got, err := repo.Get(ctx, seeded.ReviewerID, seeded.JournalID, seeded.GradingYear)
	if err != nil {
		t.Fatalf("Get: unexpected error: %v", err)
	}
	if !got.OptedIn {
		t.Error("original opt-in should be unchanged")
	}
}

func TestRepo_Answer_NotFound(t *testing.T) {
	t.Parallel()
	repo, _ := newRepo(t)
	ctx := context.Background()

	_, err := repo.Answer(ctx, uuid.New(), uuid.New(), 2026, true, time.Now())
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected domain.ErrNotFound, got: %v", err)
	}
}

func TestRepo_Get_NotFound(t *testing.T) {
	t.Parallel()
	repo, _ := newRepo(t)
	ctx := context.Background()

	_, err := repo.Get(ctx, uuid.New(), uuid.New(), 2026)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected domain.ErrNotFound, got: %v", err)
	}
}
