package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/angelmondragon/packfinderz-fulfillment/api/responses"
	pkgAuth "github.com/angelmondragon/packfinderz-fulfillment/pkg/auth"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/config"
	pkgerrors "github.com/angelmondragon/packfinderz-fulfillment/pkg/errors"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/logger"
)

var errMissingCredentials = pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials")

// Auth requires a bearer access token and puts the actor on the request
// context for role checks, handlers and logs.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := bearerToken(r.Header.Get("Authorization"))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}

			claims, err := pkgAuth.ParseAccessToken(cfg, token)
			if err != nil {
				msg := "invalid token"
				if errors.Is(err, jwt.ErrTokenExpired) {
					msg = "token expired"
				}
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, msg))
				return
			}

			actorID, role := claims.ActorID.String(), claims.Role
			ctx := WithActor(r.Context(), actorID, role)
			if logg != nil {
				ctx = logg.WithActor(ctx, actorID, string(role))
			}
			if claims.StoreID != nil {
				storeID := claims.StoreID.String()
				ctx = WithStoreID(ctx, storeID)
				if logg != nil {
					ctx = logg.WithStoreID(ctx, storeID)
				}
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken accepts "Bearer <token>" (scheme is case-insensitive) or a
// bare token. Any other scheme is rejected.
func bearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errMissingCredentials
	}
	scheme, rest, found := strings.Cut(header, " ")
	if !found {
		return header, nil
	}
	if !strings.EqualFold(scheme, "bearer") {
		return "", pkgerrors.Newf(pkgerrors.CodeUnauthorized, "unsupported authorization scheme %q", scheme)
	}
	token := strings.TrimSpace(rest)
	if token == "" {
		return "", errMissingCredentials
	}
	return token, nil
}
