package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/mobistock/mobistock/internal/clients"
	"github.com/mobistock/mobistock/internal/inventory"
	"github.com/mobistock/mobistock/internal/invoices"
	"github.com/mobistock/mobistock/internal/observability"
	"github.com/mobistock/mobistock/internal/sales"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	SalesHandler     *sales.Handler
	ClientsHandler   *clients.Handler
	InventoryHandler *inventory.Handler
	InvoicesHandler  *invoices.Handler
	Metrics          *observability.Metrics
}

// NewRouter constructs the chi.Router serving the shop API.
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

	r.Route("/api", func(api chi.Router) {
		params.SalesHandler.MountRoutes(api)
		params.ClientsHandler.MountRoutes(api)
		params.InventoryHandler.MountRoutes(api)
		params.InvoicesHandler.MountRoutes(api)
	})

	return r
}
