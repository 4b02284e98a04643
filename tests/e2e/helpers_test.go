//go:build e2e

package e2e_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/reviewqualitycollector/janeway-rqcplugin/internal/adapter/postgres"
	callrecordrepo "github.com/reviewqualitycollector/janeway-rqcplugin/internal/adapter/postgres/callrecord"
	consentrepo "github.com/reviewqualitycollector/janeway-rqcplugin/internal/adapter/postgres/consent"
	credentialrepo "github.com/reviewqualitycollector/janeway-rqcplugin/internal/adapter/postgres/credential"
	taskrepo "github.com/reviewqualitycollector/janeway-rqcplugin/internal/adapter/postgres/task"
	"github.com/reviewqualitycollector/janeway-rqcplugin/internal/adapter/postgres/testhelper"
	"github.com/reviewqualitycollector/janeway-rqcplugin/internal/adapter/rqc"
	authpkg "github.com/reviewqualitycollector/janeway-rqcplugin/internal/auth"
	"github.com/reviewqualitycollector/janeway-rqcplugin/internal/config"
	"github.com/reviewqualitycollector/janeway-rqcplugin/internal/domain"
	consentsvc "github.com/reviewqualitycollector/janeway-rqcplugin/internal/service/consent"
	credentialsvc "github.com/reviewqualitycollector/janeway-rqcplugin/internal/service/credential"
	"github.com/reviewqualitycollector/janeway-rqcplugin/internal/service/delivery"
	"github.com/reviewqualitycollector/janeway-rqcplugin/internal/service/normalizer"
	"github.com/reviewqualitycollector/janeway-rqcplugin/internal/transport/middleware"
	"github.com/reviewqualitycollector/janeway-rqcplugin/internal/transport/rest"
)

// ---------------------------------------------------------------------------
// Fake RQC server.
// ---------------------------------------------------------------------------

const (
	rqcModeOK     = "ok"
	rqcModeDown   = "down"
	rqcModeReject = "reject"
)

// fakeRQC stands in for the remote RQC API. Its behavior is switched
// per test: "ok" accepts everything, "down" answers 503 to simulate an
// outage, "reject" answers 403 on credential checks and 400 on
// reports. Every decoded request body is recorded for assertions.
type fakeRQC struct {
	srv *httptest.Server

	mu          sync.Mutex
	mode        string
	redirectURL string
	reports     []map[string]any
	triggers    []map[string]any
	validations []map[string]any
}

func newFakeRQC(t *testing.T) *fakeRQC {
	t.Helper()

	f := &fakeRQC{mode: rqcModeOK, redirectURL: "https://rqc.example.org/grading/session/417"}
	f.srv = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeRQC) URL() string { return f.srv.URL }

func (f *fakeRQC) SetMode(mode string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mode = mode
}

// Reports returns a copy of every decision report body received so far.
func (f *fakeRQC) Reports() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]map[string]any, len(f.reports))
	copy(out, f.reports)
	return out
}

func (f *fakeRQC) Triggers() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]map[string]any, len(f.triggers))
	copy(out, f.triggers)
	return out
}

func (f *fakeRQC) Validations() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]map[string]any, len(f.validations))
	copy(out, f.validations)
	return out
}

func (f *fakeRQC) handle(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad body", http.StatusBadRequest)
		return
	}
	body["_authorization"] = r.Header.Get("Authorization")

	f.mu.Lock()
	mode := f.mode
	redirect := f.redirectURL
	switch r.URL.Path {
	case "/credentials/validate":
		f.validations = append(f.validations, body)
	case "/grading/trigger":
		f.triggers = append(f.triggers, body)
	case "/decision/report":
		f.reports = append(f.reports, body)
	}
	f.mu.Unlock()

	if mode == rqcModeDown {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	switch r.URL.Path {
	case "/credentials/validate":
		if mode == rqcModeReject {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			json.NewEncoder(w).Encode(map[string]string{"error": "API key not valid for this journal"})
			return
		}
		w.WriteHeader(http.StatusOK)
	case "/grading/trigger":
		if mode == rqcModeReject {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Header().Set("Location", redirect)
		w.WriteHeader(http.StatusSeeOther)
	case "/decision/report":
		if mode == rqcModeReject {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{"error": "review_set entry 1 invalid"})
			return
		}
		w.WriteHeader(http.StatusOK)
	default:
		http.NotFound(w, r)
	}
}

// ---------------------------------------------------------------------------
// testServer wraps the full-stack HTTP server for E2E tests.
// ---------------------------------------------------------------------------

type testServer struct {
	URL    string
	Client *http.Client
	Pool   *pgxpool.Pool
	RQC    *fakeRQC
	jwt    *authpkg.JWTManager
}

// testLogWriter adapts testing.T to io.Writer for slog.
type testLogWriter struct{ t *testing.T }

func (w testLogWriter) Write(p []byte) (int, error) {
	w.t.Helper()
	w.t.Log(string(p))
	return len(p), nil
}

// ---------------------------------------------------------------------------
// setupTestServer bootstraps the full application stack backed by
// a real PostgreSQL container (shared via testhelper) and a fake RQC.
// ---------------------------------------------------------------------------

func setupTestServer(t *testing.T) *testServer {
	t.Helper()

	// 1. Get pool from testcontainers-backed helper.
	pool := testhelper.SetupTestDB(t)

	// 2. Infrastructure.
	logger := slog.New(slog.NewTextHandler(testLogWriter{t}, nil))
	txm := postgres.NewTxManager(pool)

	// 3. Repositories.
	consentRepo := consentrepo.New(pool)
	credentialRepo := credentialrepo.New(pool)
	taskRepo := taskrepo.New(pool)
	callRecordRepo := callrecordrepo.New(pool)

	// 4. Fake RQC endpoint + client pointed at it.
	fake := newFakeRQC(t)
	client := rqc.NewClientWithURL(fake.URL(), 5*time.Second, logger)

	// 5. Queue settings tuned for tests: retries one hour apart so a
	// drain with a pinned reference time controls exactly which
	// attempts happen.
	queueCfg := config.QueueConfig{
		MaxAttempts:      3,
		RetryInterval:    time.Hour,
		DrainParallelism: 2,
		StuckAfter:       time.Hour,
	}

	// 6. Services.
	consentService := consentsvc.NewService(logger, consentRepo, txm)
	credentialService := credentialsvc.NewService(logger, credentialRepo, client)
	normalizerService := normalizer.NewService(logger, consentService, credentialRepo)
	deliveryService := delivery.NewService(
		logger, taskRepo, callRecordRepo, credentialRepo, client, normalizerService, queueCfg,
	)

	// 7. JWT manager with a test secret (>= 32 chars).
	jwtMgr := authpkg.NewJWTManager("test-secret-at-least-32-chars-long!!", "test-issuer", 15*time.Minute)

	// 8. Router with the full middleware chain.
	rl := middleware.NewRateLimiter(time.Minute)
	t.Cleanup(rl.Stop)

	handlers := rest.Handlers{
		Events:      rest.NewEventsHandler(consentService, deliveryService, logger),
		Grading:     rest.NewGradingHandler(deliveryService, logger),
		Tasks:       rest.NewTasksHandler(deliveryService, logger),
		Credentials: rest.NewCredentialsHandler(credentialService, logger),
		Health:      rest.NewHealthHandler(pool, deliveryService, "test-version"),
	}
	router := rest.NewRouter(logger, handlers, middleware.Auth(jwtMgr), rl, 1000)

	// 9. httptest server.
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &testServer{
		URL:    srv.URL,
		Client: srv.Client(),
		Pool:   pool,
		RQC:    fake,
		jwt:    jwtMgr,
	}
}

// ---------------------------------------------------------------------------
// Service tokens.
// ---------------------------------------------------------------------------

func (ts *testServer) token(t *testing.T, subject string, role domain.ServiceRole) string {
	t.Helper()

	tok, err := ts.jwt.GenerateServiceToken(subject, role.String())
	if err != nil {
		t.Fatalf("generate service token: %v", err)
	}
	return tok
}

func (ts *testServer) hostToken(t *testing.T) string {
	return ts.token(t, "janeway", domain.RoleHost)
}

func (ts *testServer) schedulerToken(t *testing.T) string {
	return ts.token(t, "cron", domain.RoleScheduler)
}

func (ts *testServer) adminToken(t *testing.T) string {
	return ts.token(t, "ops", domain.RoleAdmin)
}

// ---------------------------------------------------------------------------
// doJSON sends a JSON request and returns status + decoded body. The
// middleware answers auth and rate-limit rejections in plain text, so
// a non-JSON body decodes to nil.
// ---------------------------------------------------------------------------

func (ts *testServer) doJSON(t *testing.T, method, path string, body any, token string) (int, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequest(method, ts.URL+path, reader)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := ts.Client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response body: %v", err)
	}

	var result map[string]any
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") && len(raw) > 0 {
		if err := json.Unmarshal(raw, &result); err != nil {
			t.Fatalf("decode response body %q: %v", raw, err)
		}
	}
	return resp.StatusCode, result
}

// ---------------------------------------------------------------------------
// Request body builders. UUIDs ride as strings in the host API.
// ---------------------------------------------------------------------------

func reviewSubmittedBody(reviewerID, journalID string, gradingYear int, authenticated bool) map[string]any {
	return map[string]any{
		"reviewerId":      reviewerID,
		"journalId":       journalID,
		"submissionRef":   "417",
		"gradingYear":     gradingYear,
		"isAuthenticated": authenticated,
	}
}

func consentBody(reviewerID, journalID string, gradingYear int, optedIn bool) map[string]any {
	return map[string]any{
		"reviewerId":  reviewerID,
		"journalId":   journalID,
		"gradingYear": gradingYear,
		"optedIn":     optedIn,
	}
}

// decisionBody builds a full decision event for one submission with a
// single authenticated review.
func decisionBody(journalID, reviewerID, submissionRef string) map[string]any {
	invited := time.Date(2025, 2, 3, 9, 0, 0, 0, time.UTC)
	submitted := time.Date(2025, 3, 1, 17, 30, 0, 0, time.UTC)

	return map[string]any{
		"submission": map[string]any{
			"journalId":   journalID,
			"ref":         submissionRef,
			"title":       "On the Stability of Peer Review",
			"submittedAt": time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC),
			"authors": []map[string]any{
				{"email": "ada@example.org", "firstName": "Ada", "lastName": "Lovelace"},
			},
			"editors": []map[string]any{
				{
					"person": map[string]any{"email": "chief@example.org", "firstName": "Grace", "lastName": "Hopper"},
					"role":   "EDITOR",
				},
			},
		},
		"decision": "ACCEPT",
		"decisionEditors": []map[string]any{
			{"email": "chief@example.org", "firstName": "Grace", "lastName": "Hopper"},
		},
		"reviews": []map[string]any{
			{
				"reviewerId":        reviewerID,
				"reviewer":          map[string]any{"email": "reviewer@example.org", "firstName": "Alan", "lastName": "Turing"},
				"isAuthenticated":   true,
				"text":              "<p>Sound methodology, minor typos.</p>",
				"suggestedDecision": "MINOR_REVISION",
				"invitedAt":         invited,
				"submittedAt":       submitted,
			},
		},
	}
}

func triggerBody(journalID, submissionRef string) map[string]any {
	return map[string]any{
		"submission": map[string]any{
			"journalId":   journalID,
			"ref":         submissionRef,
			"title":       "On the Stability of Peer Review",
			"submittedAt": time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC),
		},
		"interactiveUser": "editor@example.org",
		"submissionPage":  "https://journal.example.org/article/" + submissionRef,
	}
}

// drainAt runs a drain sweep with a pinned reference time and returns
// the sweep stats.
func (ts *testServer) drainAt(t *testing.T, now time.Time) map[string]any {
	t.Helper()

	status, resp := ts.doJSON(t, http.MethodPost, "/api/v1/tasks/drain",
		map[string]any{"now": now}, ts.schedulerToken(t))
	if status != http.StatusOK {
		t.Fatalf("drain: got status %d, want 200 (body %v)", status, resp)
	}
	return resp
}

// taskStates returns the states of the journal's queued tasks, oldest
// first. The shared database can hold other tests' tasks, so queue
// assertions stay scoped to one journal.
func (ts *testServer) taskStates(t *testing.T, journalID uuid.UUID) []string {
	t.Helper()

	rows, err := ts.Pool.Query(context.Background(),
		`SELECT state FROM delivery_tasks WHERE journal_id = $1 ORDER BY created_at`, journalID)
	if err != nil {
		t.Fatalf("query task states: %v", err)
	}
	defer rows.Close()

	var states []string
	for rows.Next() {
		var state string
		if err := rows.Scan(&state); err != nil {
			t.Fatalf("scan task state: %v", err)
		}
		states = append(states, state)
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("iterate task states: %v", err)
	}
	return states
}

// reportsFor filters the fake's recorded decision reports down to one
// submission. Drains redeliver every due task in the shared database,
// so a test only reasons about reports carrying its own reference.
func reportsFor(f *fakeRQC, submissionRef string) []map[string]any {
	var out []map[string]any
	for _, r := range f.Reports() {
		if r["external_uid"] == submissionRef {
			out = append(out, r)
		}
	}
	return out
}
