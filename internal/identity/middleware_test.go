package identity

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func okHandler(captured *Principal) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if p, ok := PrincipalFromContext(r.Context()); ok && captured != nil {
			*captured = p
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequireResolvesPrincipal(t *testing.T) {
	var got Principal
	handler := Middleware{}.Require(okHandler(&got))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderPrincipalID, "42")
	req.Header.Set(HeaderPrincipalRole, "ACCOUNTANT")
	req.Header.Set(HeaderPrincipalName, "Aliya")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, int64(42), got.ID)
	require.Equal(t, RoleAccountant, got.Role)
	require.Equal(t, "Aliya", got.Name)
}

func TestRequireRejectsMissingOrBadHeaders(t *testing.T) {
	handler := Middleware{}.Require(okHandler(nil))

	cases := map[string]func(*http.Request){
		"no headers": func(r *http.Request) {},
		"bad id": func(r *http.Request) {
			r.Header.Set(HeaderPrincipalID, "abc")
			r.Header.Set(HeaderPrincipalRole, "ADMIN")
		},
		"unknown role": func(r *http.Request) {
			r.Header.Set(HeaderPrincipalID, "1")
			r.Header.Set(HeaderPrincipalRole, "SUPERUSER")
		},
	}
	for name, setup := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			setup(req)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			require.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestRequireRole(t *testing.T) {
	mw := Middleware{}
	handler := mw.Require(mw.RequireRole(RoleAccountant, RoleAdmin)(okHandler(nil)))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderPrincipalID, "7")
	req.Header.Set(HeaderPrincipalRole, "EMPLOYEE")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)

	req.Header.Set(HeaderPrincipalRole, "ADMIN")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestParseRole(t *testing.T) {
	for _, raw := range []string{"EMPLOYEE", "MANAGER", "ACCOUNTANT", "ADMIN"} {
		role, err := ParseRole(raw)
		require.NoError(t, err)
		require.Equal(t, Role(raw), role)
	}
	_, err := ParseRole("employee")
	require.ErrorIs(t, err, ErrUnknownRole)
}
