package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/tramitex/tramitex/internal/alerts"
	"github.com/tramitex/tramitex/internal/cases"
	"github.com/tramitex/tramitex/internal/catalog"
	"github.com/tramitex/tramitex/internal/clients"
	"github.com/tramitex/tramitex/internal/documents"
	"github.com/tramitex/tramitex/internal/settlement"
	"github.com/tramitex/tramitex/internal/shipments"
	"github.com/tramitex/tramitex/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger *slog.Logger
	Config *Config

	CaseHandler       *cases.Handler
	SettlementHandler *settlement.Handler
	DocumentHandler   *documents.Handler
	ClientHandler     *clients.Handler
	CatalogHandler    *catalog.Handler
	ShipmentHandler   *shipments.Handler
	AlertHandler      *alerts.Handler
	JobHandler        *jobs.Handler
}

// NewRouter constructs the chi.Router with application defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/cases", func(r chi.Router) {
		params.CaseHandler.MountRoutes(r)
		r.Route("/{id}/settlement", params.SettlementHandler.MountRoutes)
		r.Route("/{id}/documents", params.DocumentHandler.MountRoutes)
	})
	r.Route("/clients", params.ClientHandler.MountRoutes)
	r.Route("/catalog", params.CatalogHandler.MountRoutes)
	r.Route("/shipments", params.ShipmentHandler.MountRoutes)
	r.Route("/alerts", params.AlertHandler.MountRoutes)
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	return r
}
