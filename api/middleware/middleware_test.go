package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgAuth "github.com/angelmondragon/escrowledger/pkg/auth"
	"github.com/angelmondragon/escrowledger/pkg/config"
	"github.com/angelmondragon/escrowledger/pkg/enums"
	"github.com/angelmondragon/escrowledger/pkg/types"
)

var testJWT = config.JWTConfig{Secret: "middleware-test-secret", Issuer: "escrowledger"}

func okHandler(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) }

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) types.APIError {
	t.Helper()
	var body types.ErrorEnvelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body.Error
}

func TestBearerToken(t *testing.T) {
	cases := map[string]struct {
		header string
		token  string
		ok     bool
	}{
		"bearer":     {"Bearer abc", "abc", true},
		"lowercase":  {"bearer   abc ", "abc", true},
		"bare":       {"abc", "abc", true},
		"empty":      {"", "", false},
		"whitespace": {"   ", "", false},
	}
	for name, tc := range cases {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Authorization", tc.header)
		token, ok := bearerToken(r)
		assert.Equal(t, tc.ok, ok, name)
		assert.Equal(t, tc.token, token, name)
	}
}

func TestAuthSeedsOperator(t *testing.T) {
	id := uuid.New()
	token, err := pkgAuth.MintOperatorToken(testJWT, time.Now(), time.Minute, pkgAuth.OperatorTokenPayload{UserID: id, Role: enums.OperatorRoleSupport})
	require.NoError(t, err)

	var seen Operator
	h := Auth(testJWT, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = OperatorFromContext(r.Context())
		assert.Equal(t, id, *ActorIDFromContext(r.Context()))
		w.WriteHeader(http.StatusNoContent)
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)

	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, Operator{ID: id, Role: enums.OperatorRoleSupport}, seen)
}

func TestAuthMisconfiguredVerifierFailsClosed(t *testing.T) {
	h := Auth(config.JWTConfig{}, nil)(http.HandlerFunc(okHandler))
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer anything")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRequireRoleWithoutOperatorIsUnauthorized(t *testing.T) {
	h := RequireRole(enums.OperatorRoleAdmin, nil)(http.HandlerFunc(okHandler))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequestIDEchoesSaneHeaderAndReplacesOthers(t *testing.T) {
	var seen string
	h := RequestID(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = chimw.GetReqID(r.Context())
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(requestIDHeader, "trace-abc")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	assert.Equal(t, "trace-abc", seen)
	assert.Equal(t, "trace-abc", rec.Header().Get(requestIDHeader))

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(requestIDHeader, "has space")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	_, err := uuid.Parse(seen)
	assert.NoError(t, err, "expected a minted uuid, got %q", seen)

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(requestIDHeader, strings.Repeat("x", maxRequestIDLen+1))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	assert.Len(t, seen, 36)
}

func TestRecovererWritesEnvelope(t *testing.T) {
	h := RequestID(nil)(Recoverer(nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})))
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(requestIDHeader, "req-9")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	apiErr := decodeError(t, rec)
	assert.Equal(t, "INTERNAL_ERROR", apiErr.Code)
	assert.Equal(t, "req-9", apiErr.RequestID)
	assert.NotContains(t, apiErr.Message, "boom")
}

func TestRecovererReraisesAbort(t *testing.T) {
	h := Recoverer(nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))
	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}

func TestRequireIdempotencyKey(t *testing.T) {
	var seen string
	h := RequireIdempotencyKey(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = IdempotencyKeyFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code, "reads pass without a key")

	rec = httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/", nil)
	r.Header.Set(idempotencyHeader, strings.Repeat("k", maxIdempotencyKeyLen+1))
	h.ServeHTTP(rec, r)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	r = httptest.NewRequest(http.MethodPost, "/", nil)
	r.Header.Set(idempotencyHeader, " key-1 ")
	h.ServeHTTP(rec, r)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "key-1", seen)
}

func TestLoggingPassesStatusThrough(t *testing.T) {
	h := Logging(nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}
