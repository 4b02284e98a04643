// Package rqc implements the HTTP client for the Review Quality
// Collector API: credential checks, interactive grading triggers and
// decision reports. Every call authenticates with the journal's API
// key in the Authorization header; the key never appears in request
// bodies or logs.
package rqc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/reviewqualitycollector/janeway-rqcplugin/internal/config"
	"github.com/reviewqualitycollector/janeway-rqcplugin/internal/domain"
)

const (
	validatePath = "/credentials/validate"
	triggerPath  = "/grading/trigger"
	reportPath   = "/decision/report"

	maxErrorBody = 8 << 10
)

// ErrUnavailable marks interactive-call failures where RQC could not
// answer at all: network errors, timeouts, or a 5xx. Callers use it to
// tell "try again later" apart from a rejected request.
var ErrUnavailable = errors.New("rqc unavailable")

// Client talks to the RQC grading service. Redirects are never
// followed: a 303 from RQC is a result carrying the grading page URL,
// not a hop to take.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        *slog.Logger
}

// NewClient creates a Client from the RQC section of the configuration.
func NewClient(cfg config.RQCConfig, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		log: logger.With("adapter", "rqc"),
	}
}

// NewClientWithURL creates a Client with a custom base URL and timeout (for testing).
func NewClientWithURL(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	return NewClient(config.RQCConfig{BaseURL: baseURL, Timeout: timeout}, logger)
}

// ValidationResult is the outcome of a credential check. OK=false with
// a Reason means RQC rejected the pair; transport problems surface as
// errors instead.
type ValidationResult struct {
	OK     bool
	Reason string
}

// TriggerResult is the outcome of a successful grading trigger.
// RedirectURL is empty when RQC accepted the data without opening a
// grading session.
type TriggerResult struct {
	RedirectURL string
}

// ReportResult classifies one decision report attempt. Detail keeps
// the status line for task bookkeeping and operator listings.
type ReportResult struct {
	Outcome domain.DeliveryOutcome
	Detail  string
}

// ValidateCredentials asks RQC whether the journal id and API key are
// a valid pair. A definite rejection (401, 403, unknown journal) comes
// back as OK=false; anything that leaves the question open is an error.
func (c *Client) ValidateCredentials(ctx context.Context, cred domain.JournalCredential) (ValidationResult, error) {
	c.log.DebugContext(ctx, "rqc credential check", slog.Int("rqc_journal_id", cred.RQCJournalID))

	resp, err := c.post(ctx, validatePath, cred.APIKey, validateBody{RQCJournalID: cred.RQCJournalID})
	if err != nil {
		return ValidationResult{}, fmt.Errorf("rqc: credential check: %w: %s", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return ValidationResult{OK: true}, nil
	case http.StatusUnauthorized, http.StatusForbidden:
		reason := "API key rejected"
		if msg := readErrorMessage(resp.Body); msg != "" {
			reason = msg
		}
		c.log.WarnContext(ctx, "rqc rejected credentials",
			slog.Int("rqc_journal_id", cred.RQCJournalID),
			slog.String("reason", reason),
		)
		return ValidationResult{Reason: reason}, nil
	case http.StatusNotFound:
		return ValidationResult{Reason: "no RQC journal with this id"}, nil
	default:
		if classifyStatus(resp.StatusCode) == domain.OutcomeTransientFailure {
			return ValidationResult{}, fmt.Errorf("rqc: credential check: %w: status %d", ErrUnavailable, resp.StatusCode)
		}
		return ValidationResult{}, fmt.Errorf("rqc: credential check status %d", resp.StatusCode)
	}
}

// TriggerGrading posts the submission to RQC on behalf of an editor
// and returns the grading session URL when RQC answers 303. The caller
// redirects the editor there. Failures surface synchronously; an
// interactive call is never queued for retry.
func (c *Client) TriggerGrading(ctx context.Context, cred domain.JournalCredential, event domain.DecisionEvent, interactiveUser, submissionPage string) (TriggerResult, error) {
	c.log.DebugContext(ctx, "rqc grading trigger",
		slog.String("submission_ref", event.SubmissionRef),
		slog.Int("rqc_journal_id", cred.RQCJournalID),
	)

	body := buildSubmissionBody(event, interactiveUser, submissionPage)
	resp, err := c.post(ctx, triggerPath, cred.APIKey, body)
	if err != nil {
		c.log.ErrorContext(ctx, "rqc grading trigger failed",
			slog.String("submission_ref", event.SubmissionRef),
			slog.String("error", err.Error()),
		)
		return TriggerResult{}, fmt.Errorf("rqc: grading trigger: %w: %s", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusSeeOther:
		return TriggerResult{RedirectURL: resp.Header.Get("Location")}, nil
	case http.StatusOK, http.StatusCreated:
		return TriggerResult{}, nil
	case http.StatusUnauthorized, http.StatusForbidden:
		return TriggerResult{}, fmt.Errorf("%w: rqc rejected the API key", domain.ErrCredentialsInvalid)
	default:
		detail := fmt.Sprintf("status %d", resp.StatusCode)
		if msg := readErrorMessage(resp.Body); msg != "" {
			detail = fmt.Sprintf("status %d: %s", resp.StatusCode, msg)
		}
		if classifyStatus(resp.StatusCode) == domain.OutcomeTransientFailure {
			return TriggerResult{}, fmt.Errorf("rqc: grading trigger: %w: %s", ErrUnavailable, detail)
		}
		return TriggerResult{}, fmt.Errorf("rqc: grading trigger %s", detail)
	}
}

// ReportDecision posts a decision report and classifies the result.
// Network errors and timeouts come back as a transient outcome, not an
// error: the durable queue owns retries, so a single attempt is never
// repeated in process. The error return is reserved for requests that
// could not be built at all.
func (c *Client) ReportDecision(ctx context.Context, cred domain.JournalCredential, event domain.DecisionEvent) (ReportResult, error) {
	c.log.DebugContext(ctx, "rqc decision report",
		slog.String("submission_ref", event.SubmissionRef),
		slog.Int("rqc_journal_id", cred.RQCJournalID),
	)

	req, err := c.newRequest(ctx, reportPath, cred.APIKey, buildSubmissionBody(event, "", ""))
	if err != nil {
		return ReportResult{}, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.WarnContext(ctx, "rqc unreachable",
			slog.String("submission_ref", event.SubmissionRef),
			slog.String("error", err.Error()),
		)
		return ReportResult{
			Outcome: domain.OutcomeTransientFailure,
			Detail:  "network error: " + err.Error(),
		}, nil
	}
	defer resp.Body.Close()

	outcome := classifyStatus(resp.StatusCode)
	detail := fmt.Sprintf("status %d", resp.StatusCode)
	if outcome != domain.OutcomeDelivered {
		if msg := readErrorMessage(resp.Body); msg != "" {
			detail = fmt.Sprintf("status %d: %s", resp.StatusCode, msg)
		}
	}

	c.log.DebugContext(ctx, "rqc decision report result",
		slog.String("submission_ref", event.SubmissionRef),
		slog.Int("status", resp.StatusCode),
		slog.String("outcome", outcome.String()),
	)

	return ReportResult{Outcome: outcome, Detail: detail}, nil
}

// classifyStatus maps an RQC response status to a delivery outcome.
// 303 counts as delivered: RQC answers with a redirect to the grading
// page even on non-interactive calls.
func classifyStatus(status int) domain.DeliveryOutcome {
	switch status {
	case http.StatusOK, http.StatusCreated, http.StatusSeeOther:
		return domain.OutcomeDelivered
	case http.StatusUnauthorized, http.StatusForbidden:
		return domain.OutcomeCredentialInvalid
	case http.StatusRequestTimeout, http.StatusTooManyRequests,
		http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return domain.OutcomeTransientFailure
	default:
		return domain.OutcomePermanentReject
	}
}

func (c *Client) post(ctx context.Context, path, apiKey string, body any) (*http.Response, error) {
	req, err := c.newRequest(ctx, path, apiKey, body)
	if err != nil {
		return nil, err
	}
	return c.httpClient.Do(req)
}

func (c *Client) newRequest(ctx context.Context, path, apiKey string, body any) (*http.Request, error) {
	buf, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("rqc: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("rqc: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)
	return req, nil
}

// readErrorMessage pulls the message out of an RQC error body. Returns
// "" when the body is empty or not the expected shape.
func readErrorMessage(r io.Reader) string {
	body, err := io.ReadAll(io.LimitReader(r, maxErrorBody))
	if err != nil {
		return ""
	}
	var e errorResponse
	if err := json.Unmarshal(body, &e); err != nil {
		return ""
	}
	return e.Error
}
