package rest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/reviewqualitycollector/janeway-rqcplugin/internal/domain"
)

// consentService defines the consent operations needed by EventsHandler.
type consentService interface {
	ReviewSubmitted(ctx context.Context, reviewerID, journalID uuid.UUID, gradingYear int) (domain.ConsentRecord, error)
	RecordAnswer(ctx context.Context, reviewerID, journalID uuid.UUID, gradingYear int, optedIn bool) (domain.ConsentRecord, error)
}

// decisionReporter defines the delivery operation needed by EventsHandler.
type decisionReporter interface {
	ReportDecision(ctx context.Context, sub domain.Submission, decision domain.HostDecision, decisionEditors []domain.Person, reviews []domain.HostReview) error
}

// EventsHandler serves the host-facing event endpoints. The host fires
// one request per editorial workflow event; none of them block the
// host's own workflow on RQC being reachable.
type EventsHandler struct {
	consent  consentService
	delivery decisionReporter
	log      *slog.Logger
}

// NewEventsHandler creates an EventsHandler.
func NewEventsHandler(consent consentService, delivery decisionReporter, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{
		consent:  consent,
		delivery: delivery,
		log:      logger.With("handler", "events"),
	}
}

type reviewSubmittedRequest struct {
	ReviewerID      string `json:"reviewerId"`
	JournalID       string `json:"journalId"`
	SubmissionRef   string `json:"submissionRef"`
	GradingYear     int    `json:"gradingYear"`
	IsAuthenticated bool   `json:"isAuthenticated"`
}

type reviewSubmittedResponse struct {
	PromptReviewer bool `json:"promptReviewer"`
}

type consentRequest struct {
	ReviewerID  string `json:"reviewerId"`
	JournalID   string `json:"journalId"`
	GradingYear int    `json:"gradingYear"`
	OptedIn     bool   `json:"optedIn"`
}

type consentResponse struct {
	OptedIn    bool       `json:"optedIn"`
	AnsweredAt *time.Time `json:"answeredAt,omitempty"`
}

type personDTO struct {
	Email     string  `json:"email"`
	FirstName string  `json:"firstName,omitempty"`
	LastName  string  `json:"lastName,omitempty"`
	OrcidID   *string `json:"orcidId,omitempty"`
}

type hostEditorDTO struct {
	Person personDTO `json:"person"`
	Role   string    `json:"role"`
}

type submissionDTO struct {
	JournalID   string          `json:"journalId"`
	Ref         string          `json:"ref"`
	Title       string          `json:"title"`
	SubmittedAt time.Time       `json:"submittedAt"`
	Authors     []personDTO     `json:"authors,omitempty"`
	Editors     []hostEditorDTO `json:"editors,omitempty"`
}

type reviewDTO struct {
	ReviewerID        string     `json:"reviewerId"`
	Reviewer          personDTO  `json:"reviewer"`
	IsAuthenticated   bool       `json:"isAuthenticated"`
	Text              *string    `json:"text,omitempty"`
	SuggestedDecision *string    `json:"suggestedDecision,omitempty"`
	InvitedAt         *time.Time `json:"invitedAt,omitempty"`
	AgreedAt          *time.Time `json:"agreedAt,omitempty"`
	ExpectedAt        *time.Time `json:"expectedAt,omitempty"`
	SubmittedAt       *time.Time `json:"submittedAt,omitempty"`
}

type decisionEventRequest struct {
	Submission      submissionDTO `json:"submission"`
	Decision        string        `json:"decision"`
	DecisionEditors []personDTO   `json:"decisionEditors,omitempty"`
	Reviews         []reviewDTO   `json:"reviews,omitempty"`
}

// ReviewSubmitted handles POST /api/v1/events/review-submitted.
// The response tells the host whether to show the reviewer the RQC
// participation question. One-click reviewers are never prompted: they
// have no account to answer from.
func (h *EventsHandler) ReviewSubmitted(w http.ResponseWriter, r *http.Request) {
	var req reviewSubmittedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	reviewerID, err := uuid.Parse(req.ReviewerID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid reviewerId")
		return
	}
	journalID, err := uuid.Parse(req.JournalID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid journalId")
		return
	}

	rec, err := h.consent.ReviewSubmitted(r.Context(), reviewerID, journalID, req.GradingYear)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, reviewSubmittedResponse{
		PromptReviewer: req.IsAuthenticated && rec.PromptRequired(),
	})
}

// ConsentAnswered handles POST /api/v1/events/consent.
// A second answer for the same journal-year gets 409 and leaves the
// stored answer untouched.
func (h *EventsHandler) ConsentAnswered(w http.ResponseWriter, r *http.Request) {
	var req consentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	reviewerID, err := uuid.Parse(req.ReviewerID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid reviewerId")
		return
	}
	journalID, err := uuid.Parse(req.JournalID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid journalId")
		return
	}

	rec, err := h.consent.RecordAnswer(r.Context(), reviewerID, journalID, req.GradingYear, req.OptedIn)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, consentResponse{
		OptedIn:    rec.OptedIn,
		AnsweredAt: rec.AnsweredAt,
	})
}

// DecisionMade handles POST /api/v1/events/decision.
// Accepted events answer 202 regardless of whether the report reached
// RQC; delivery failures are queued or logged, never returned to the
// editor. Only a malformed event or a broken store fails the request.
func (h *EventsHandler) DecisionMade(w http.ResponseWriter, r *http.Request) {
	var req decisionEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sub, err := toDomainSubmission(req.Submission)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	reviews, err := toDomainReviews(req.Reviews)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	editors := make([]domain.Person, 0, len(req.DecisionEditors))
	for _, p := range req.DecisionEditors {
		editors = append(editors, toDomainPerson(p))
	}

	err = h.delivery.ReportDecision(r.Context(), sub, domain.HostDecision(req.Decision), editors, reviews)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (h *EventsHandler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrUnmappableDecision):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrAlreadyAnswered):
		writeError(w, http.StatusConflict, "consent already answered")
	default:
		h.log.ErrorContext(r.Context(), "internal error", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func toDomainPerson(p personDTO) domain.Person {
	return domain.Person{
		Email:     p.Email,
		FirstName: p.FirstName,
		LastName:  p.LastName,
		OrcidID:   p.OrcidID,
	}
}

func toDomainSubmission(s submissionDTO) (domain.Submission, error) {
	journalID, err := uuid.Parse(s.JournalID)
	if err != nil {
		return domain.Submission{}, errors.New("invalid submission.journalId")
	}

	authors := make([]domain.Person, 0, len(s.Authors))
	for _, p := range s.Authors {
		authors = append(authors, toDomainPerson(p))
	}

	editors := make([]domain.HostEditor, 0, len(s.Editors))
	for _, e := range s.Editors {
		editors = append(editors, domain.HostEditor{
			Person: toDomainPerson(e.Person),
			Role:   domain.HostEditorRole(e.Role),
		})
	}

	return domain.Submission{
		JournalID:   journalID,
		Ref:         s.Ref,
		Title:       s.Title,
		SubmittedAt: s.SubmittedAt,
		Authors:     authors,
		Editors:     editors,
	}, nil
}

func toDomainReviews(dtos []reviewDTO) ([]domain.HostReview, error) {
	reviews := make([]domain.HostReview, 0, len(dtos))
	for _, d := range dtos {
		reviewerID, err := uuid.Parse(d.ReviewerID)
		if err != nil {
			return nil, errors.New("invalid review.reviewerId")
		}

		var suggested *domain.HostDecision
		if d.SuggestedDecision != nil {
			s := domain.HostDecision(*d.SuggestedDecision)
			suggested = &s
		}

		reviews = append(reviews, domain.HostReview{
			ReviewerID:        reviewerID,
			Reviewer:          toDomainPerson(d.Reviewer),
			Authenticated:     d.IsAuthenticated,
			Text:              d.Text,
			SuggestedDecision: suggested,
			InvitedAt:         d.InvitedAt,
			AgreedAt:          d.AgreedAt,
			ExpectedAt:        d.ExpectedAt,
			SubmittedAt:       d.SubmittedAt,
		})
	}
	return reviews, nil
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
