package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/factorybooks/factorybooks/internal/accounting/reports"
	"github.com/factorybooks/factorybooks/internal/inventory"
	"github.com/factorybooks/factorybooks/internal/ledger/projection"
	"github.com/factorybooks/factorybooks/internal/observability"
	"github.com/factorybooks/factorybooks/internal/platform/httpx"
	"github.com/factorybooks/factorybooks/internal/posting"
	"github.com/factorybooks/factorybooks/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	Metrics          *observability.Metrics
	PostingHandler   *posting.Handler
	BalanceHandler   *projection.Handler
	ReportHandler    *reports.Handler
	InventoryHandler *inventory.Handler
	JobHandler       *jobs.Handler
}

// NewRouter constructs the chi.Router with the API defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if params.Metrics != nil {
		r.Handle("/metrics", params.Metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		if params.PostingHandler != nil {
			params.PostingHandler.MountRoutes(r)
		}
		if params.BalanceHandler != nil {
			params.BalanceHandler.MountRoutes(r)
		}
		if params.ReportHandler != nil {
			r.Route("/reports", params.ReportHandler.MountRoutes)
		}
		if params.InventoryHandler != nil {
			r.Route("/inventory", params.InventoryHandler.MountRoutes)
		}
		if params.JobHandler != nil {
			r.Route("/jobs", params.JobHandler.MountRoutes)
		}
	})
	return r
}

// NewRouterFromServices builds every handler over the wired services.
func NewRouterFromServices(s *Services) http.Handler {
	var inspector jobs.QueueInspector
	if s.Inspector != nil {
		inspector = s.Inspector
	}
	return NewRouter(RouterParams{
		Logger:           s.Logger,
		Config:           s.Config,
		Metrics:          s.Metrics,
		PostingHandler:   posting.NewHandler(s.Logger, s.Orchestrator),
		BalanceHandler:   projection.NewHandler(s.Logger, s.Balances),
		ReportHandler:    reports.NewHandler(s.Reports),
		InventoryHandler: inventory.NewHandler(s.Logger, s.Store),
		JobHandler:       jobs.NewHandler(inspector, s.Logger),
	})
}
