package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/ledgerline/ledgerline/internal/auth"
	"github.com/ledgerline/ledgerline/internal/catalog"
	"github.com/ledgerline/ledgerline/internal/customers"
	"github.com/ledgerline/ledgerline/internal/documents"
	"github.com/ledgerline/ledgerline/internal/rates"
	"github.com/ledgerline/ledgerline/internal/search"
	"github.com/ledgerline/ledgerline/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	AuthService      *auth.Service
	DocumentsHandler *documents.Handler
	RatesHandler     *rates.Handler
	CustomersHandler *customers.Handler
	CatalogHandler   *catalog.Handler
	SearchHandler    *search.Handler
	JobHandler       *jobs.Handler
}

// NewRouter constructs the chi.Router with Ledgerline defaults.
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

	// Hosted document pages resolve by opaque client id, no API key.
	r.Group(func(r chi.Router) {
		params.DocumentsHandler.MountPublicRoutes(r)
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(params.AuthService))

		params.DocumentsHandler.MountRoutes(r)
		r.Route("/rates", params.RatesHandler.MountRoutes)
		r.Route("/customers", params.CustomersHandler.MountRoutes)
		r.Route("/catalog", params.CatalogHandler.MountRoutes)
		if params.SearchHandler != nil {
			r.Route("/search", params.SearchHandler.MountRoutes)
		}
	})

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	return r
}
