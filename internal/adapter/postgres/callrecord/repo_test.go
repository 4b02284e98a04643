package callrecord_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/reviewqualitycollector/janeway-rqcplugin/internal/adapter/postgres/callrecord"
	"github.com/reviewqualitycollector/janeway-rqcplugin/internal/adapter/postgres/testhelper"
	"github.com/reviewqualitycollector/janeway-rqcplugin/internal/domain"
)

// newRepo sets up a test DB and returns a ready Repo + pool.
func newRepo(t *testing.T) (*callrecord.Repo, *pgxpool.Pool) {
	t.Helper()
	pool := testhelper.SetupTestDB(t)
	return callrecord.New(pool), pool
}

// buildCallRecord creates a domain.CallRecord with two editors for testing.
func buildCallRecord(journalID uuid.UUID, submissionRef string) domain.CallRecord {
	orcid := "0000-0002-1825-0097"
	return domain.CallRecord{
		JournalID:     journalID,
		SubmissionRef: submissionRef,
		Editors: []domain.EditorAssignment{
			{
				Person: domain.Person{
					Email:     "chief@example.org",
					FirstName: "Greta",
					LastName:  "Chief",
					OrcidID:   &orcid,
				},
				Level: domain.EditorLevelDecision,
			},
			{
				Person: domain.Person{
					Email:     "section@example.org",
					FirstName: "Sam",
					LastName:  "Section",
				},
				Level: domain.EditorLevelSection,
			},
		},
		ReportedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
}

func TestRepo_Create_HappyPath(t *testing.T) {
	t.Parallel()
	repo, _ := newRepo(t)
	ctx := context.Background()

	input := buildCallRecord(uuid.New(), "sub-100")

	got, err := repo.Create(ctx, input)
	if err != nil {
		t.Fatalf("Create: unexpected error: %v", err)
	}

	if got.JournalID != input.JournalID {
		t.Errorf("JournalID mismatch: got %s, want %s", got.JournalID, input.JournalID)
	}
	if got.SubmissionRef != "sub-100" {
		t.Errorf("SubmissionRef mismatch: got %q, want %q", got.SubmissionRef, "sub-100")
	}
	if !got.ReportedAt.Equal(input.ReportedAt) {
		t.Errorf("ReportedAt mismatch: got %v, want %v", got.ReportedAt, input.ReportedAt)
	}

	if len(got.Editors) != 2 {
		t.Fatalf("expected 2 editors, got %d", len(got.Editors))
	}
	if got.Editors[0].Person.Email != "chief@example.org" {
		t.Errorf("editor[0] email mismatch: got %q", got.Editors[0].Person.Email)
	}
	if got.Editors[0].Level != domain.EditorLevelDecision {
		t.Errorf("editor[0] level mismatch: got %d, want %d", got.Editors[0].Level, domain.EditorLevelDecision)
	}
	if got.Editors[0].Person.OrcidID == nil || *got.Editors[0].Person.OrcidID != "0000-0002-1825-0097" {
		t.Errorf("editor[0] orcid mismatch: got %v", got.Editors[0].Person.OrcidID)
	}
	if got.Editors[1].Person.OrcidID != nil {
		t.Errorf("editor[1] orcid should be nil, got %v", got.Editors[1].Person.OrcidID)
	}
	if got.Editors[1].Level != domain.EditorLevelSection {
		t.Errorf("editor[1] level mismatch: got %d, want %d", got.Editors[1].Level, domain.EditorLevelSection)
	}
}

func TestRepo_Create_EmptyEditors(t *testing.T) {
	t.Parallel()
	repo, _ := newRepo(t)
	ctx := context.Background()

	input := buildCallRecord(uuid.New(), "sub-101")
	input.Editors = nil

	got, err := repo.Create(ctx, input)
	if err != nil {
		t.Fatalf("Create: unexpected error: %v", err)
	}

	if len(got.Editors) != 0 {
		t.Errorf("expected no editors, got %d", len(got.Editors))
	}
}

func TestRepo_Create_Duplicate(t *testing.T) {
	t.Parallel()
	repo, _ := newRepo(t)
	ctx := context.Background()

	journalID := uuid.New()
	first := buildCallRecord(journalID, "sub-102")
	if _, err := repo.Create(ctx, first); err != nil {
		t.Fatalf("Create first: unexpected error: %v", err)
	}

	second := buildCallRecord(journalID, "sub-102")
	second.Editors = second.Editors[:1]

	_, err := repo.Create(ctx, second)
	if !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("expected domain.ErrAlreadyExists, got: %v", err)
	}

	// The first snapshot wins.
	got, err := repo.Get(ctx, journalID, "sub-102")
	if err != nil {
		t.Fatalf("Get: unexpected error: %v", err)
	}
	if len(got.Editors) != 2 {
		t.Errorf("expected the first snapshot's 2 editors, got %d", len(got.Editors))
	}
}

func TestRepo_Create_SameRefDifferentJournals(t *testing.T) {
	t.Parallel()
	repo, _ := newRepo(t)
	ctx := context.Background()

	ref := "sub-103"
	if _, err := repo.Create(ctx, buildCallRecord(uuid.New(), ref)); err != nil {
		t.Fatalf("Create journal A: unexpected error: %v", err)
	}
	if _, err := repo.Create(ctx, buildCallRecord(uuid.New(), ref)); err != nil {
		t.Fatalf("Create journal B: unexpected error: %v", err)
	}
}

func TestRepo_Get_NotFound(t *testing.T) {
	t.Parallel()
	repo, _ := newRepo(t)
	ctx := context.Background()

	_, err := repo.Get(ctx, uuid.New(), "sub-unknown")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected domain.ErrNotFound, got: %v", err)
	}
}
