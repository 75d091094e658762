package identity

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/procurio/procurio/internal/platform/httpx"
)

// Header names populated by the authenticating reverse proxy.
const (
	HeaderPrincipalID   = "X-Principal-Id"
	HeaderPrincipalRole = "X-Principal-Role"
	HeaderPrincipalName = "X-Principal-Name"
)

// Middleware resolves the principal from trusted headers.
type Middleware struct {
	Logger *slog.Logger
}

// Require rejects requests without a valid principal.
func (m Middleware) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.Header.Get(HeaderPrincipalID), 10, 64)
		if err != nil || id <= 0 {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing principal")
			return
		}
		role, err := ParseRole(r.Header.Get(HeaderPrincipalRole))
		if err != nil {
			if m.Logger != nil {
				m.Logger.Warn("reject principal", slog.Int64("id", id), slog.String("role", r.Header.Get(HeaderPrincipalRole)))
			}
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "unknown role")
			return
		}
		p := Principal{ID: id, Name: r.Header.Get(HeaderPrincipalName), Role: role}
		next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), p)))
	})
}

// RequireRole allows only the listed roles through.
func (m Middleware) RequireRole(roles ...Role) func(http.Handler) http.Handler {
	allowed := make(map[Role]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing principal")
				return
			}
			if _, ok := allowed[p.Role]; !ok {
				httpx.Problem(w, http.StatusForbidden, "Forbidden", "role not permitted")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
