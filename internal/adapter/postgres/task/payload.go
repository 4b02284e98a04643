package task

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/reviewqualitycollector/janeway-rqcplugin/internal/domain"
)

// ---------------------------------------------------------------------------
// JSONB serialization helpers for the task payload
// ---------------------------------------------------------------------------

// decisionEventJSON is an intermediate struct for JSON marshaling of
// domain.DecisionEvent. Domain types have no json tags, so the repo layer
// handles serialization.
type decisionEventJSON struct {
	JournalID     uuid.UUID    `json:"journal_id"`
	SubmissionRef string       `json:"submission_ref"`
	Title         string       `json:"title"`
	SubmittedAt   time.Time    `json:"submitted_at"`
	Decision      string       `json:"decision"`
	Authors       []personJSON `json:"authors"`
	Editors       []editorJSON `json:"editors"`
	Reviews       []reviewJSON `json:"reviews"`
}

type personJSON struct {
	Email     string  `json:"email"`
	FirstName string  `json:"firstname"`
	LastName  string  `json:"lastname"`
	OrcidID   *string `json:"orcid_id"`
}

type editorJSON struct {
	Email     string  `json:"email"`
	FirstName string  `json:"firstname"`
	LastName  string  `json:"lastname"`
	OrcidID   *string `json:"orcid_id"`
	Level     int     `json:"level"`
}

type reviewJSON struct {
	VisibleID         string       `json:"visible_id"`
	Reviewer          reviewerJSON `json:"reviewer"`
	Text              *string      `json:"text"`
	IsHTML            bool         `json:"is_html"`
	SuggestedDecision *string      `json:"suggested_decision"`
	InvitedAt         *time.Time   `json:"invited_at"`
	AgreedAt          *time.Time   `json:"agreed_at"`
	ExpectedAt        *time.Time   `json:"expected_at"`
	SubmittedAt       *time.Time   `json:"submitted_at"`
}

type reviewerJSON struct {
	Identity  *personJSON `json:"identity"`
	Pseudonym string      `json:"pseudonym"`
}

// marshalEvent converts a domain.DecisionEvent to JSON bytes for JSONB storage.
func marshalEvent(e domain.DecisionEvent) ([]byte, error) {
	j := decisionEventJSON{
		JournalID:     e.JournalID,
		SubmissionRef: e.SubmissionRef,
		Title:         e.Title,
		SubmittedAt:   e.SubmittedAt,
		Decision:      string(e.Decision),
		Authors:       make([]personJSON, len(e.Authors)),
		Editors:       make([]editorJSON, len(e.Editors)),
		Reviews:       make([]reviewJSON, len(e.Reviews)),
	}

	for i, a := range e.Authors {
		j.Authors[i] = toPersonJSON(a)
	}
	for i, ed := range e.Editors {
		j.Editors[i] = editorJSON{
			Email:     ed.Person.Email,
			FirstName: ed.Person.FirstName,
			LastName:  ed.Person.LastName,
			OrcidID:   ed.Person.OrcidID,
			Level:     int(ed.Level),
		}
	}
	for i, rv := range e.Reviews {
		j.Reviews[i] = toReviewJSON(rv)
	}

	return json.Marshal(j)
}

// unmarshalEvent converts JSON bytes from JSONB storage to a domain.DecisionEvent.
func unmarshalEvent(data []byte) (domain.DecisionEvent, error) {
	var j decisionEventJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return domain.DecisionEvent{}, fmt.Errorf("unmarshal payload: %w", err)
	}

	e := domain.DecisionEvent{
		JournalID:     j.JournalID,
		SubmissionRef: j.SubmissionRef,
		Title:         j.Title,
		SubmittedAt:   j.SubmittedAt,
		Decision:      domain.DecisionKind(j.Decision),
		Authors:       make([]domain.Person, len(j.Authors)),
		Editors:       make([]domain.EditorAssignment, len(j.Editors)),
		Reviews:       make([]domain.ReviewPayload, len(j.Reviews)),
	}

	for i, a := range j.Authors {
		e.Authors[i] = fromPersonJSON(a)
	}
	for i, ed := range j.Editors {
		e.Editors[i] = domain.EditorAssignment{
			Person: domain.Person{
				Email:     ed.Email,
				FirstName: ed.FirstName,
				LastName:  ed.LastName,
				OrcidID:   ed.OrcidID,
			},
			Level: domain.EditorLevel(ed.Level),
		}
	}
	for i, rv := range j.Reviews {
		e.Reviews[i] = fromReviewJSON(rv)
	}

	return e, nil
}

func toPersonJSON(p domain.Person) personJSON {
	return personJSON{
		Email:     p.Email,
		FirstName: p.FirstName,
		LastName:  p.LastName,
		OrcidID:   p.OrcidID,
	}
}

func fromPersonJSON(p personJSON) domain.Person {
	return domain.Person{
		Email:     p.Email,
		FirstName: p.FirstName,
		LastName:  p.LastName,
		OrcidID:   p.OrcidID,
	}
}

func toReviewJSON(rv domain.ReviewPayload) reviewJSON {
	j := reviewJSON{
		VisibleID:   rv.VisibleID,
		Text:        rv.Text,
		IsHTML:      rv.IsHTML,
		InvitedAt:   rv.InvitedAt,
		AgreedAt:    rv.AgreedAt,
		ExpectedAt:  rv.ExpectedAt,
		SubmittedAt: rv.SubmittedAt,
		Reviewer: reviewerJSON{
			Pseudonym: rv.Reviewer.Pseudonym,
		},
	}
	if rv.Reviewer.Identity != nil {
		identity := toPersonJSON(*rv.Reviewer.Identity)
		j.Reviewer.Identity = &identity
	}
	if rv.SuggestedDecision != nil {
		s := string(*rv.SuggestedDecision)
		j.SuggestedDecision = &s
	}
	return j
}

func fromReviewJSON(j reviewJSON) domain.ReviewPayload {
	rv := domain.ReviewPayload{
		VisibleID:   j.VisibleID,
		Text:        j.Text,
		IsHTML:      j.IsHTML,
		InvitedAt:   j.InvitedAt,
		AgreedAt:    j.AgreedAt,
		ExpectedAt:  j.ExpectedAt,
		SubmittedAt: j.SubmittedAt,
		Reviewer: domain.ReviewerRef{
			Pseudonym: j.Reviewer.Pseudonym,
		},
	}
	if j.Reviewer.Identity != nil {
		identity := fromPersonJSON(*j.Reviewer.Identity)
		rv.Reviewer.Identity = &identity
	}
	if j.SuggestedDecision != nil {
		d := domain.DecisionKind(*j.SuggestedDecision)
		rv.SuggestedDecision = &d
	}
	return rv
}
