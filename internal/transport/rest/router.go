package rest

import (
	"log/slog"
	"net/http"

	"github.com/reviewqualitycollector/janeway-rqcplugin/internal/domain"
	"github.com/reviewqualitycollector/janeway-rqcplugin/internal/transport/middleware"
)

// Handlers bundles the REST handlers mounted by NewRouter.
type Handlers struct {
	Events      *EventsHandler
	Grading     *GradingHandler
	Tasks       *TasksHandler
	Credentials *CredentialsHandler
	Health      *HealthHandler
}

// NewRouter assembles the HTTP surface: unauthenticated health probes
// at the root and the service API under /api/v1, where every route
// requires a valid service token and a matching role.
func NewRouter(logger *slog.Logger, h Handlers, auth middleware.Middleware, rl *middleware.RateLimiter, ratePerMinute int) http.Handler {
	host := middleware.RequireRole(domain.RoleHost)
	scheduler := middleware.RequireRole(domain.RoleScheduler, domain.RoleAdmin)
	admin := middleware.RequireRole(domain.RoleAdmin)

	api := http.NewServeMux()
	api.Handle("POST /api/v1/events/review-submitted", host(http.HandlerFunc(h.Events.ReviewSubmitted)))
	api.Handle("POST /api/v1/events/consent", host(http.HandlerFunc(h.Events.ConsentAnswered)))
	api.Handle("POST /api/v1/events/decision", host(http.HandlerFunc(h.Events.DecisionMade)))
	api.Handle("POST /api/v1/grading/trigger", host(http.HandlerFunc(h.Grading.Trigger)))
	api.Handle("POST /api/v1/tasks/drain", scheduler(http.HandlerFunc(h.Tasks.Drain)))
	api.Handle("GET /api/v1/tasks/abandoned", scheduler(http.HandlerFunc(h.Tasks.Abandoned)))
	api.Handle("PUT /api/v1/journals/{journalID}/credentials", admin(http.HandlerFunc(h.Credentials.Put)))

	protected := middleware.Chain(
		middleware.RequestID(),
		middleware.Logger(logger),
		middleware.Recovery(logger),
		auth,
		rl.Limit(ratePerMinute),
	)(api)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz/live", h.Health.Live)
	mux.HandleFunc("GET /healthz/ready", h.Health.Ready)
	mux.HandleFunc("GET /healthz", h.Health.Health)
	mux.Handle("/api/v1/", protected)

	return mux
}
