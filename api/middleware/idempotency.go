package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/angelmondragon/escrowledger/api/responses"
	pkgerrors "github.com/angelmondragon/escrowledger/pkg/errors"
	"github.com/angelmondragon/escrowledger/pkg/logger"
)

const (
	idempotencyHeader    = "Idempotency-Key"
	maxIdempotencyKeyLen = 255
)

// RequireIdempotencyKey rejects mutating requests without an Idempotency-Key
// header and exposes the key to handlers. Replay itself is resolved by the
// remediation service against the audit log, so nothing is cached here.
func RequireIdempotencyKey(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}
			key := strings.TrimSpace(r.Header.Get(idempotencyHeader))
			if key == "" {
				responses.WriteError(r.Context(), logg, w,
					pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header is required").
						WithDetails(map[string]any{"header": idempotencyHeader}))
				return
			}
			if len(key) > maxIdempotencyKeyLen {
				responses.WriteError(r.Context(), logg, w,
					pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header is too long").
						WithDetails(map[string]any{"header": idempotencyHeader, "max": maxIdempotencyKeyLen}))
				return
			}

			ctx := context.WithValue(r.Context(), idempotencyKey, key)
			next.ServeHTTP(w, r.WithContext(logg.WithField(ctx, "idempotency_key", key)))
		})
	}
}
