package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/escrowledger/api/responses"
	"github.com/angelmondragon/escrowledger/api/validators"
	"github.com/angelmondragon/escrowledger/internal/ledger"
	"github.com/angelmondragon/escrowledger/internal/observability"
	"github.com/angelmondragon/escrowledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/escrowledger/pkg/errors"
	"github.com/angelmondragon/escrowledger/pkg/logger"
	"github.com/angelmondragon/escrowledger/pkg/pagination"
)

// LedgerSnapshot returns escrow held and seller available per currency.
func LedgerSnapshot(svc observability.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "observability service unavailable"))
			return
		}
		snapshot, err := svc.Snapshot(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, snapshot)
	}
}

// LedgerAggregate sums ledger amounts grouped by one column.
func LedgerAggregate(svc observability.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "observability service unavailable"))
			return
		}
		q := r.URL.Query()
		groupBy, err := ledger.ParseGroupBy(validators.SanitizeString(q.Get("group_by"), 32))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, err.Error()).WithDetails(map[string]any{"field": "group_by"}))
			return
		}
		filter := ledger.AggregateFilter{
			GroupBy:  groupBy,
			Currency: enums.Currency(validators.SanitizeString(q.Get("currency"), 8)),
			Status:   enums.LedgerEntryStatus(validators.SanitizeString(q.Get("status"), 32)),
			Type:     enums.LedgerEntryType(validators.SanitizeString(q.Get("type"), 64)),
			Role:     enums.LedgerRole(validators.SanitizeString(q.Get("role"), 16)),
		}
		rows, err := svc.Aggregate(r.Context(), filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"group_by": groupBy, "rows": rows})
	}
}

// Trace returns the chronological story of a payout or order id.
func Trace(svc observability.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "observability service unavailable"))
			return
		}
		trace, err := svc.Trace(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, trace)
	}
}

// AuditLogs pages through the audit log newest first.
func AuditLogs(svc observability.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "observability service unavailable"))
			return
		}
		query, err := parseAuditQuery(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.QueryAudit(r.Context(), query)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func parseAuditQuery(r *http.Request) (observability.AuditQuery, error) {
	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return observability.AuditQuery{}, err
	}
	actorID, err := validators.ParseQueryUUID(r, "actor_id")
	if err != nil {
		return observability.AuditQuery{}, err
	}
	from, err := validators.ParseQueryTime(r, "created_from")
	if err != nil {
		return observability.AuditQuery{}, err
	}
	to, err := validators.ParseQueryTime(r, "created_to")
	if err != nil {
		return observability.AuditQuery{}, err
	}
	return observability.AuditQuery{
		Action:      enums.AuditAction(validators.ParseQueryString(r, "action", 128)),
		ActorID:     actorID,
		TargetType:  enums.AuditTargetType(validators.ParseQueryString(r, "target_type", 32)),
		TargetID:    validators.ParseQueryString(r, "target_id", 128),
		Outcome:     enums.AuditOutcome(validators.ParseQueryString(r, "outcome", 16)),
		ErrorCode:   validators.ParseQueryString(r, "error_code", 64),
		CreatedFrom: from,
		CreatedTo:   to,
		Limit:       limit,
		Cursor:      validators.ParseQueryString(r, "cursor", 512),
	}, nil
}
