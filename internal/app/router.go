package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/andres-saa/restaurant-reports/internal/appeals"
	"github.com/andres-saa/restaurant-reports/internal/observability"
	"github.com/andres-saa/restaurant-reports/internal/orders"
	"github.com/andres-saa/restaurant-reports/internal/reporting"
	"github.com/andres-saa/restaurant-reports/internal/sites"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger *slog.Logger
	Config *Config

	OrdersHandler    *orders.Handler
	AppealsHandler   *appeals.Handler
	SitesHandler     *sites.Handler
	ReportingHandler *reporting.Handler
	Metrics          *observability.Metrics
}

// NewRouter constructs the chi.Router with service defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}

	if params.Metrics != nil {
		r.Use(params.Metrics.Middleware)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.OrdersHandler != nil {
		r.Route("/orders", params.OrdersHandler.MountRoutes)
	}
	if params.AppealsHandler != nil {
		r.Route("/appeals", params.AppealsHandler.MountRoutes)
	}
	if params.SitesHandler != nil {
		r.Route("/sites", params.SitesHandler.MountRoutes)
	}
	if params.ReportingHandler != nil {
		r.Route("/reports", params.ReportingHandler.MountRoutes)
	}

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
