package rqc

import (
	"time"

	"github.com/reviewqualitycollector/janeway-rqcplugin/internal/domain"
)

// submissionBody is the JSON document POSTed for grading triggers and
// decision reports. Field names follow the RQC schema; the *_set names
// are the remote API's, not ours.
type submissionBody struct {
	InteractiveUser   string       `json:"interactive_user"`
	MHSSubmissionPage string       `json:"mhs_submissionpage"`
	Title             string       `json:"title"`
	ExternalUID       string       `json:"external_uid"`
	VisibleUID        string       `json:"visible_uid"`
	Submitted         string       `json:"submitted"`
	Authors           []authorJSON `json:"author_set"`
	Editors           []editorJSON `json:"edassgmt_set"`
	Reviews           []reviewJSON `json:"review_set"`
	Decision          string       `json:"decision"`
}

// authorJSON is one entry of author_set. RQC numbers authors from 1.
type authorJSON struct {
	Email       string  `json:"email"`
	Firstname   string  `json:"firstname"`
	Lastname    string  `json:"lastname"`
	OrcidID     *string `json:"orcid_id"`
	OrderNumber int     `json:"order_number"`
}

// editorJSON is one entry of edassgmt_set.
type editorJSON struct {
	Email     string  `json:"email"`
	Firstname string  `json:"firstname"`
	Lastname  string  `json:"lastname"`
	OrcidID   *string `json:"orcid_id"`
	Level     int     `json:"level"`
}

// reviewJSON is one entry of review_set. Date fields are RFC 3339 UTC
// or null. attachment_set is always empty; RQC does not accept
// attachments yet.
type reviewJSON struct {
	VisibleID         string           `json:"visible_id"`
	Invited           *string          `json:"invited"`
	Agreed            *string          `json:"agreed"`
	Expected          *string          `json:"expected"`
	Submitted         *string          `json:"submitted"`
	Text              string           `json:"text"`
	IsHTML            bool             `json:"is_html"`
	SuggestedDecision string           `json:"suggested_decision"`
	Reviewer          reviewerJSON     `json:"reviewer"`
	Attachments       []attachmentJSON `json:"attachment_set"`
}

// reviewerJSON identifies a review's author. For anonymized reviewers
// Email holds the pseudonymous address and every other field is empty.
type reviewerJSON struct {
	Email     string  `json:"email"`
	Firstname string  `json:"firstname"`
	Lastname  string  `json:"lastname"`
	OrcidID   *string `json:"orcid_id"`
}

type attachmentJSON struct {
	Filename string `json:"filename"`
	Data     string `json:"data"`
}

// validateBody is the payload of a credential check. The API key rides
// in the Authorization header, never the body.
type validateBody struct {
	RQCJournalID int `json:"rqc_journal_id"`
}

// errorResponse is the body RQC returns on failed calls.
type errorResponse struct {
	Error string `json:"error"`
}

// buildSubmissionBody converts a normalized event into the RQC wire
// document. mhs_submissionpage only means something on interactive
// calls, so it is blanked whenever interactiveUser is empty.
func buildSubmissionBody(event domain.DecisionEvent, interactiveUser, submissionPage string) submissionBody {
	if interactiveUser == "" {
		submissionPage = ""
	}

	body := submissionBody{
		InteractiveUser:   interactiveUser,
		MHSSubmissionPage: submissionPage,
		Title:             event.Title,
		ExternalUID:       event.SubmissionRef,
		VisibleUID:        event.SubmissionRef,
		Submitted:         rqcTime(event.SubmittedAt),
		Authors:           make([]authorJSON, 0, len(event.Authors)),
		Editors:           make([]editorJSON, 0, len(event.Editors)),
		Reviews:           make([]reviewJSON, 0, len(event.Reviews)),
		Decision:          string(event.Decision),
	}

	for i, a := range event.Authors {
		body.Authors = append(body.Authors, authorJSON{
			Email:       a.Email,
			Firstname:   a.FirstName,
			Lastname:    a.LastName,
			OrcidID:     a.OrcidID,
			OrderNumber: i + 1,
		})
	}

	for _, e := range event.Editors {
		body.Editors = append(body.Editors, editorJSON{
			Email:     e.Person.Email,
			Firstname: e.Person.FirstName,
			Lastname:  e.Person.LastName,
			OrcidID:   e.Person.OrcidID,
			Level:     int(e.Level),
		})
	}

	for _, r := range event.Reviews {
		body.Reviews = append(body.Reviews, toReviewJSON(r))
	}

	return body
}

func toReviewJSON(r domain.ReviewPayload) reviewJSON {
	out := reviewJSON{
		VisibleID:   r.VisibleID,
		Invited:     rqcTimePtr(r.InvitedAt),
		Agreed:      rqcTimePtr(r.AgreedAt),
		Expected:    rqcTimePtr(r.ExpectedAt),
		Submitted:   rqcTimePtr(r.SubmittedAt),
		IsHTML:      r.IsHTML,
		Attachments: []attachmentJSON{},
	}
	if r.Text != nil {
		out.Text = *r.Text
	}
	if r.SuggestedDecision != nil {
		out.SuggestedDecision = string(*r.SuggestedDecision)
	}
	if p := r.Reviewer.Identity; p != nil {
		out.Reviewer = reviewerJSON{
			Email:     p.Email,
			Firstname: p.FirstName,
			Lastname:  p.LastName,
			OrcidID:   p.OrcidID,
		}
	} else {
		out.Reviewer = reviewerJSON{Email: r.Reviewer.Pseudonym}
	}
	return out
}

// rqcTime formats a timestamp the way RQC expects: RFC 3339 in UTC.
func rqcTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func rqcTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := rqcTime(*t)
	return &s
}
