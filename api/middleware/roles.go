package middleware

import (
	"fmt"
	"net/http"

	"github.com/angelmondragon/packfinderz-fulfillment/api/responses"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-fulfillment/pkg/errors"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/logger"
)

// RequireRoles gates a route on the actor role placed in context by Auth.
// A request with no actor at all is unauthorized rather than forbidden.
func RequireRoles(logg *logger.Logger, roles ...enums.ActorRole) func(http.Handler) http.Handler {
	allowed := make(map[enums.ActorRole]bool, len(roles))
	for _, role := range roles {
		allowed[role] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := RoleFromContext(r.Context())
			switch {
			case role == "":
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing actor"))
				return
			case !allowed[role]:
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, fmt.Sprintf("role %s may not perform this action", role)))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
