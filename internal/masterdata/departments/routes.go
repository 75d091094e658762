package departments

import (
	"github.com/go-chi/chi/v5"

	"github.com/procurio/procurio/internal/identity"
)

func (h *Handler) MountRoutes(r chi.Router, auth identity.Middleware) {
	r.Group(func(r chi.Router) {
		r.Use(auth.Require)
		r.Get("/", h.List)
		r.Get("/{id}", h.Get)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(identity.RoleAccountant, identity.RoleAdmin))
			r.Post("/", h.Create)
			r.Put("/{id}", h.Update)
			r.Delete("/{id}", h.Delete)
		})
	})
}
