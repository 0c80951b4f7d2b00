package middleware

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/escrowledger/api/responses"
	pkgAuth "github.com/angelmondragon/escrowledger/pkg/auth"
	"github.com/angelmondragon/escrowledger/pkg/config"
	"github.com/angelmondragon/escrowledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/escrowledger/pkg/errors"
	"github.com/angelmondragon/escrowledger/pkg/logger"
)

// Auth admits requests carrying a valid operator bearer token and records the
// operator on the context.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	verifier, verifierErr := pkgAuth.NewVerifier(cfg)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if verifierErr != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, verifierErr, "token verification unavailable"))
				return
			}
			token, ok := bearerToken(r)
			if !ok {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}
			claims, err := verifier.Verify(token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			ctx := WithOperator(r.Context(), Operator{ID: claims.UserID, Role: claims.Role})
			ctx = logg.WithActor(ctx, string(claims.Role), claims.UserID.String())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken accepts "Bearer <token>" in any case, or a bare token.
func bearerToken(r *http.Request) (string, bool) {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(raw) > 7 && strings.EqualFold(raw[:7], "bearer ") {
		raw = strings.TrimSpace(raw[7:])
	}
	return raw, raw != ""
}

// RequireRole rejects authenticated operators that lack role.
func RequireRole(role enums.OperatorRole, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			op, ok := OperatorFromContext(r.Context())
			if !ok {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}
			if op.Role != role {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, role.String()+" role required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
