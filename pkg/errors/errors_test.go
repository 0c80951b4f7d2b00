package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

func TestMetadataTable(t *testing.T) {
	// status, retryable, message exposed, details allowed
	want := map[Code][4]any{
		CodeValidation:        {http.StatusBadRequest, false, true, true},
		CodeAnchorRequired:    {http.StatusBadRequest, false, true, true},
		CodeUnauthorized:      {http.StatusUnauthorized, false, true, false},
		CodeForbidden:         {http.StatusForbidden, false, true, false},
		CodeNotFound:          {http.StatusNotFound, false, true, false},
		CodeInvalidTransition: {http.StatusUnprocessableEntity, false, true, true},
		CodeStateConflict:     {http.StatusUnprocessableEntity, false, true, true},
		CodeIdempotency:       {http.StatusConflict, false, true, true},
		CodeInternal:          {http.StatusInternalServerError, true, false, false},
		CodeDependency:        {http.StatusServiceUnavailable, true, false, true},
	}
	if len(want) != len(metadataByCode) {
		t.Fatalf("table has %d codes, test covers %d", len(metadataByCode), len(want))
	}
	for code, w := range want {
		m := MetadataFor(code)
		got := [4]any{m.HTTPStatus, m.Retryable, m.ExposeMessage, m.DetailsAllowed}
		if got != w {
			t.Errorf("%s: got %v, want %v", code, got, w)
		}
		if m.PublicMessage == "" {
			t.Errorf("%s: missing public message", code)
		}
	}
	if MetadataFor("SOMETHING_UNKNOWN") != metadataByCode[CodeInternal] {
		t.Fatal("unknown codes should map to internal")
	}
}

func TestRetryableFollowsCode(t *testing.T) {
	if !Retryable(stdErrors.New("plain")) {
		t.Fatal("untyped errors are internal and retryable")
	}
	if Retryable(New(CodeIdempotency, "burned")) {
		t.Fatal("idempotency conflicts must not be retried")
	}
	if !Retryable(fmt.Errorf("dial: %w", New(CodeDependency, "redis"))) {
		t.Fatal("wrapped dependency errors are retryable")
	}
}

func TestErrorStringAndUnwrap(t *testing.T) {
	plain := New(CodeValidation, "missing foo")
	if plain.Error() != "VALIDATION_ERROR: missing foo" {
		t.Fatalf("unexpected error string %q", plain.Error())
	}
	if plain.Details() != nil {
		t.Fatal("details should be nil by default")
	}
	if plain.WithDetails(map[string]any{"field": "foo"}).Details() == nil {
		t.Fatal("details should be preserved")
	}

	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeDependency, cause, "publish")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatal("Wrap did not preserve cause")
	}
	if wrapped.Error() != "DEPENDENCY_ERROR: publish: boom" {
		t.Fatalf("cause missing from error string: %q", wrapped.Error())
	}
	if Wrap(CodeDependency, nil, "x").Unwrap() != nil {
		t.Fatal("Wrap(nil) should carry no cause")
	}

	var nilErr *Error
	if nilErr.Code() != CodeInternal || nilErr.Error() != "" || nilErr.WithDetails(1) != nil {
		t.Fatal("nil *Error accessors should be safe")
	}
}

func TestAsReturnsTypedError(t *testing.T) {
	err := New(CodeForbidden, "no entry")
	if got := As(err); got == nil || got.Code() != CodeForbidden {
		t.Fatalf("As failed to return typed error")
	}
	if As(nil) != nil {
		t.Fatalf("As(nil) should return nil")
	}
}

func TestCodeOfFallsBackToInternal(t *testing.T) {
	if got := CodeOf(stdErrors.New("plain")); got != CodeInternal {
		t.Fatalf("expected internal code, got %s", got)
	}
	wrapped := fmt.Errorf("outer: %w", New(CodeAnchorRequired, "no anchor"))
	if got := CodeOf(wrapped); got != CodeAnchorRequired {
		t.Fatalf("expected anchor code through wrap, got %s", got)
	}
	if !IsCode(wrapped, CodeAnchorRequired) {
		t.Fatalf("IsCode should see the typed error")
	}
	if IsCode(nil, CodeAnchorRequired) {
		t.Fatalf("IsCode(nil) should be false")
	}
}

func TestDumpCapturesChain(t *testing.T) {
	err := Wrap(CodeDependency, stdErrors.New("connection reset"), "insert ledger entry")
	d := Dump(err)
	if d.Code != CodeDependency {
		t.Fatalf("expected dependency code, got %s", d.Code)
	}
	if len(d.Chain) != 2 {
		t.Fatalf("expected 2 chain links, got %d", len(d.Chain))
	}
	if d.PG != nil {
		t.Fatalf("plain errors carry no postgres details")
	}
	if _, ok := d.Fields()["pg_code"]; ok {
		t.Fatalf("pg fields should be omitted without a postgres error")
	}
	if Dump(nil).Message != "" {
		t.Fatalf("nil dump should be empty")
	}
}

func TestDumpExtractsPostgresErrors(t *testing.T) {
	pgx := &pgconn.PgError{Code: "23505", ConstraintName: "ux_payouts_order_id", TableName: "payouts"}
	d := Dump(Wrap(CodeInternal, fmt.Errorf("insert: %w", pgx), "create payout"))
	if d.PG == nil || d.PG.Code != "23505" || d.PG.Constraint != "ux_payouts_order_id" {
		t.Fatalf("unexpected pg details %+v", d.PG)
	}
	if d.Fields()["pg_table"] != "payouts" {
		t.Fatalf("expected pg_table field")
	}

	pqErr := &pq.Error{Code: "23514", Constraint: "ledger_entries_amount_check"}
	pg, ok := Postgres(pqErr)
	if !ok || pg.Code != "23514" || pg.Constraint != "ledger_entries_amount_check" {
		t.Fatalf("unexpected lib/pq details %+v ok=%v", pg, ok)
	}
}
