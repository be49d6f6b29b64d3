package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/clarion-qa/clarion/internal/audits"
	"github.com/clarion-qa/clarion/internal/auth"
	"github.com/clarion-qa/clarion/internal/credits"
	"github.com/clarion-qa/clarion/internal/instances"
	"github.com/clarion-qa/clarion/internal/observability"
	"github.com/clarion-qa/clarion/internal/tenant"
	"github.com/clarion-qa/clarion/internal/users"
	"github.com/clarion-qa/clarion/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger *slog.Logger
	Config *Config

	AuthMiddleware auth.Middleware
	AuthHandler    *auth.Handler

	AuditsHandler    *audits.Handler
	CreditsHandler   *credits.Handler
	CreditsService   *credits.Service
	InstancesHandler *instances.Handler
	UsersHandler     *users.Handler
	JobsHandler      *jobs.Handler

	Metrics *observability.Metrics
}

// NewRouter constructs the chi.Router. The protected group applies the
// guard chain in a fixed order: authenticate, attach tenant scope, count
// the API call, then the per-route permission guards mounted by each
// handler. No handler below the group runs without a verified principal.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/auth", params.AuthHandler.MountRoutes)
	if params.JobsHandler != nil {
		r.Route("/jobs", params.JobsHandler.MountRoutes)
	}

	r.Group(func(r chi.Router) {
		r.Use(params.AuthMiddleware.Authenticate)
		r.Use(tenant.AttachScope)
		if params.CreditsService != nil {
			r.Use(credits.TrackAPICalls(params.CreditsService))
		}

		r.Route("/audits", params.AuditsHandler.MountRoutes)
		r.Route("/credits", params.CreditsHandler.MountRoutes)
		r.Route("/instances", params.InstancesHandler.MountRoutes)
		r.Route("/users", params.UsersHandler.MountRoutes)
	})

	return r
}
