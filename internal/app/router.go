package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/procurio/procurio/internal/identity"
	"github.com/procurio/procurio/internal/masterdata/departments"
	"github.com/procurio/procurio/internal/masterdata/suppliers"
	"github.com/procurio/procurio/internal/procurement"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	Pool               *pgxpool.Pool
	Auth               identity.Middleware
	ProcurementHandler *procurement.Handler
	SupplierHandler    *suppliers.Handler
	DepartmentHandler  *departments.Handler
}

// NewRouter constructs the chi.Router with Procurio defaults.
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
		if params.Pool != nil {
			if err := params.Pool.Ping(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"status":"degraded"}`))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/procurement", func(r chi.Router) {
			params.ProcurementHandler.MountRoutes(r, params.Auth)
		})
		r.Route("/suppliers", func(r chi.Router) {
			params.SupplierHandler.MountRoutes(r, params.Auth)
		})
		r.Route("/departments", func(r chi.Router) {
			params.DepartmentHandler.MountRoutes(r, params.Auth)
		})
	})

	return r
}
