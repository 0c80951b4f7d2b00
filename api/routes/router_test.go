package routes

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/escrowledger/internal/ledger"
	"github.com/angelmondragon/escrowledger/internal/observability"
	"github.com/angelmondragon/escrowledger/internal/remediation"
	pkgAuth "github.com/angelmondragon/escrowledger/pkg/auth"
	"github.com/angelmondragon/escrowledger/pkg/config"
	"github.com/angelmondragon/escrowledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/escrowledger/pkg/errors"
	"github.com/angelmondragon/escrowledger/pkg/logger"
	"github.com/angelmondragon/escrowledger/pkg/types"
)

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

type stubObservability struct {
	lastTrace string
	lastQuery observability.AuditQuery
}

func (s *stubObservability) Snapshot(context.Context) (*observability.Snapshot, error) {
	return &observability.Snapshot{GeneratedAt: time.Now().UTC()}, nil
}

func (s *stubObservability) Trace(_ context.Context, id string) (*observability.Trace, error) {
	s.lastTrace = id
	return &observability.Trace{ID: id, Found: false, Events: []observability.TraceEvent{}}, nil
}

func (s *stubObservability) QueryAudit(_ context.Context, q observability.AuditQuery) (*observability.ListResult, error) {
	s.lastQuery = q
	return &observability.ListResult{}, nil
}

func (s *stubObservability) Aggregate(context.Context, ledger.AggregateFilter) ([]ledger.AggregateRow, error) {
	return []ledger.AggregateRow{{GroupKey: "USD", Total: 0, Entries: 2}}, nil
}

type stubRemediation struct {
	force      remediation.ForceTransitionInput
	correction remediation.CorrectionInput
	forceErr   error
}

func (s *stubRemediation) ForceTransitionPayout(_ context.Context, input remediation.ForceTransitionInput) (*remediation.ForceTransitionResult, error) {
	s.force = input
	if s.forceErr != nil {
		return nil, s.forceErr
	}
	return &remediation.ForceTransitionResult{PayoutID: input.PayoutID, ToStatus: input.TargetStatus}, nil
}

func (s *stubRemediation) ApplyLedgerCorrection(_ context.Context, input remediation.CorrectionInput) (*remediation.CorrectionResult, error) {
	s.correction = input
	return &remediation.CorrectionResult{UserID: input.TargetUserID, Amount: input.Amount}, nil
}

func (s *stubRemediation) ResolveAnomaly(_ context.Context, input remediation.AnomalyInput) (*remediation.AnomalyResult, error) {
	return &remediation.AnomalyResult{TargetType: input.TargetType, TargetID: input.TargetID}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test", Port: "0"},
		JWT: config.JWTConfig{Secret: "secret", Issuer: "issuer"},
	}
}

type testRouter struct {
	handler http.Handler
	obs     *stubObservability
	rem     *stubRemediation
	adminID uuid.UUID
	cfg     *config.Config
}

func newTestRouter(t *testing.T, redisErr error) *testRouter {
	t.Helper()
	cfg := testConfig()
	logg := logger.New(logger.Options{ServiceName: "test-routing", Level: logger.ParseLevel("debug"), Output: io.Discard})
	obs := &stubObservability{}
	rem := &stubRemediation{}
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("# metrics")) })
	return &testRouter{
		handler: NewRouter(cfg, logg, stubPinger{}, stubPinger{err: redisErr}, obs, rem, metrics),
		obs:     obs,
		rem:     rem,
		adminID: uuid.New(),
		cfg:     cfg,
	}
}

func (tr *testRouter) token(t *testing.T, role enums.OperatorRole) string {
	t.Helper()
	token, err := pkgAuth.MintOperatorToken(tr.cfg.JWT, time.Now(), time.Hour, pkgAuth.OperatorTokenPayload{UserID: tr.adminID, Role: role})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func (tr *testRouter) do(req *http.Request) *httptest.ResponseRecorder {
	resp := httptest.NewRecorder()
	tr.handler.ServeHTTP(resp, req)
	return resp
}

func decodeError(t *testing.T, resp *httptest.ResponseRecorder) types.APIError {
	t.Helper()
	var body types.ErrorEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode error envelope: %v", err)
	}
	return body.Error
}

func TestHealthProbes(t *testing.T) {
	tr := newTestRouter(t, nil)
	if resp := tr.do(httptest.NewRequest(http.MethodGet, "/health/live", nil)); resp.Code != http.StatusOK {
		t.Fatalf("live = %d", resp.Code)
	}
	if resp := tr.do(httptest.NewRequest(http.MethodGet, "/health/ready", nil)); resp.Code != http.StatusOK {
		t.Fatalf("ready = %d", resp.Code)
	}
	if resp := tr.do(httptest.NewRequest(http.MethodGet, "/metrics", nil)); resp.Code != http.StatusOK {
		t.Fatalf("metrics = %d", resp.Code)
	}

	down := newTestRouter(t, errors.New("redis down"))
	resp := down.do(httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("ready with redis down = %d", resp.Code)
	}
	if code := decodeError(t, resp).Code; code != string(pkgerrors.CodeDependency) {
		t.Fatalf("code = %s", code)
	}
}

func TestAdminGroupRejectsMissingJWT(t *testing.T) {
	tr := newTestRouter(t, nil)
	resp := tr.do(httptest.NewRequest(http.MethodGet, "/api/admin/v1/ledger/snapshot", nil))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token got %d", resp.Code)
	}

	bad := httptest.NewRequest(http.MethodGet, "/api/admin/v1/ledger/snapshot", nil)
	bad.Header.Set("Authorization", "Bearer not-a-jwt")
	if resp := tr.do(bad); resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for malformed token got %d", resp.Code)
	}
}

func TestAdminGroupRequiresAdminRole(t *testing.T) {
	tr := newTestRouter(t, nil)

	support := httptest.NewRequest(http.MethodGet, "/api/admin/v1/ledger/snapshot", nil)
	support.Header.Set("Authorization", "Bearer "+tr.token(t, enums.OperatorRoleSupport))
	if resp := tr.do(support); resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for support role got %d", resp.Code)
	}

	admin := httptest.NewRequest(http.MethodGet, "/api/admin/v1/ledger/snapshot", nil)
	admin.Header.Set("Authorization", "Bearer "+tr.token(t, enums.OperatorRoleAdmin))
	if resp := tr.do(admin); resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin got %d", resp.Code)
	}
}

func TestReadEndpointsPassParameters(t *testing.T) {
	tr := newTestRouter(t, nil)
	token := "Bearer " + tr.token(t, enums.OperatorRoleAdmin)
	id := uuid.NewString()

	trace := httptest.NewRequest(http.MethodGet, "/api/admin/v1/trace/"+id, nil)
	trace.Header.Set("Authorization", token)
	if resp := tr.do(trace); resp.Code != http.StatusOK {
		t.Fatalf("trace = %d", resp.Code)
	}
	if tr.obs.lastTrace != id {
		t.Fatalf("trace id = %q", tr.obs.lastTrace)
	}

	audit := httptest.NewRequest(http.MethodGet, "/api/admin/v1/audit-logs?action=integrity.violation&outcome=FAILURE&error_code=GLOBAL_IMBALANCE&limit=10", nil)
	audit.Header.Set("Authorization", token)
	if resp := tr.do(audit); resp.Code != http.StatusOK {
		t.Fatalf("audit = %d", resp.Code)
	}
	q := tr.obs.lastQuery
	if q.Action != enums.AuditActionIntegrityViolation || q.Outcome != enums.AuditOutcomeFailure || q.ErrorCode != "GLOBAL_IMBALANCE" || q.Limit != 10 {
		t.Fatalf("unexpected query %+v", q)
	}

	badLimit := httptest.NewRequest(http.MethodGet, "/api/admin/v1/audit-logs?limit=1000", nil)
	badLimit.Header.Set("Authorization", token)
	if resp := tr.do(badLimit); resp.Code != http.StatusBadRequest {
		t.Fatalf("limit over max = %d", resp.Code)
	}

	aggregate := httptest.NewRequest(http.MethodGet, "/api/admin/v1/ledger/aggregate?group_by=currency", nil)
	aggregate.Header.Set("Authorization", token)
	if resp := tr.do(aggregate); resp.Code != http.StatusOK {
		t.Fatalf("aggregate = %d", resp.Code)
	}

	badGroup := httptest.NewRequest(http.MethodGet, "/api/admin/v1/ledger/aggregate?group_by=planet", nil)
	badGroup.Header.Set("Authorization", token)
	if resp := tr.do(badGroup); resp.Code != http.StatusBadRequest {
		t.Fatalf("unknown group_by = %d", resp.Code)
	}
}

func TestRemediationRequiresIdempotencyKey(t *testing.T) {
	tr := newTestRouter(t, nil)
	payoutID := uuid.New()
	body := `{"target_status":"FAILED","justification":"stuck at provider"}`

	req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/remediation/payouts/"+payoutID.String()+"/force-transition", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+tr.token(t, enums.OperatorRoleAdmin))
	resp := tr.do(req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("missing key = %d", resp.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/admin/v1/remediation/payouts/"+payoutID.String()+"/force-transition", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+tr.token(t, enums.OperatorRoleAdmin))
	req.Header.Set("Idempotency-Key", "force-1")
	resp = tr.do(req)
	if resp.Code != http.StatusOK {
		t.Fatalf("force transition = %d", resp.Code)
	}
	got := tr.rem.force
	if got.PayoutID != payoutID || got.AdminID != tr.adminID || got.IdempotencyKey != "force-1" || got.TargetStatus != enums.PayoutStatusFailed {
		t.Fatalf("unexpected input %+v", got)
	}
}

func TestRemediationBodyValidationAndErrorMapping(t *testing.T) {
	tr := newTestRouter(t, nil)
	token := "Bearer " + tr.token(t, enums.OperatorRoleAdmin)

	completed := httptest.NewRequest(http.MethodPost, "/api/admin/v1/remediation/payouts/"+uuid.NewString()+"/force-transition",
		strings.NewReader(`{"target_status":"COMPLETED","justification":"x"}`))
	completed.Header.Set("Authorization", token)
	completed.Header.Set("Idempotency-Key", "k1")
	if resp := tr.do(completed); resp.Code != http.StatusOK {
		t.Fatalf("target status is classified by the service, got %d", resp.Code)
	}
	if tr.rem.force.TargetStatus != enums.PayoutStatusCompleted {
		t.Fatalf("target status = %q", tr.rem.force.TargetStatus)
	}

	tr.rem.forceErr = pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key already used")
	replay := httptest.NewRequest(http.MethodPost, "/api/admin/v1/remediation/payouts/"+uuid.NewString()+"/force-transition",
		strings.NewReader(`{"target_status":"CANCELLED","justification":"x"}`))
	replay.Header.Set("Authorization", token)
	replay.Header.Set("Idempotency-Key", "k2")
	resp := tr.do(replay)
	if resp.Code != http.StatusConflict {
		t.Fatalf("idempotency conflict = %d", resp.Code)
	}

	userID := uuid.New()
	correction := httptest.NewRequest(http.MethodPost, "/api/admin/v1/remediation/ledger-corrections",
		strings.NewReader(`{"target_user_id":"`+userID.String()+`","type":"admin_correction_debit","amount":-250,"currency":"USD","justification":"double credit","anchors":{"external_ref":"tr_123"}}`))
	correction.Header.Set("Authorization", token)
	correction.Header.Set("Idempotency-Key", "k3")
	if resp := tr.do(correction); resp.Code != http.StatusCreated {
		t.Fatalf("correction = %d", resp.Code)
	}
	if tr.rem.correction.TargetUserID != userID || tr.rem.correction.Anchors.ExternalRef != "tr_123" || tr.rem.correction.Amount != -250 {
		t.Fatalf("unexpected correction input %+v", tr.rem.correction)
	}

	anomaly := httptest.NewRequest(http.MethodPost, "/api/admin/v1/remediation/anomalies/resolve",
		strings.NewReader(`{"target_type":"violation","target_id":"GLOBAL_IMBALANCE:USD","note":"reviewed"}`))
	anomaly.Header.Set("Authorization", token)
	anomaly.Header.Set("Idempotency-Key", "k4")
	if resp := tr.do(anomaly); resp.Code != http.StatusOK {
		t.Fatalf("anomaly = %d", resp.Code)
	}
}
