package middleware

import (
	"net/http"
	"slices"

	"github.com/studentnest/nest-backend/api/responses"
	"github.com/studentnest/nest-backend/pkg/enums"
	pkgerrors "github.com/studentnest/nest-backend/pkg/errors"
	"github.com/studentnest/nest-backend/pkg/logger"
)

// RequireRole admits only principals holding one of roles. It must run
// after Auth; a request without a principal is unauthorized, not forbidden.
func RequireRole(logg *logger.Logger, roles ...enums.UserRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}
			if !slices.Contains(roles, p.Role) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "this action requires a different role"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
