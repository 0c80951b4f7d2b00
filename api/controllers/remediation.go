package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/escrowledger/api/middleware"
	"github.com/angelmondragon/escrowledger/api/responses"
	"github.com/angelmondragon/escrowledger/api/validators"
	"github.com/angelmondragon/escrowledger/internal/remediation"
	"github.com/angelmondragon/escrowledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/escrowledger/pkg/errors"
	"github.com/angelmondragon/escrowledger/pkg/logger"
)

type forceTransitionBody struct {
	TargetStatus  string `json:"target_status" validate:"required,max=32"`
	Justification string `json:"justification" validate:"required,max=2000"`
}

type anchorsBody struct {
	PayoutID      string `json:"payout_id"`
	LedgerEntryID string `json:"ledger_entry_id"`
	ExternalRef   string `json:"external_ref"`
}

type ledgerCorrectionBody struct {
	TargetUserID  string      `json:"target_user_id" validate:"required,uuid"`
	Role          string      `json:"role" validate:"omitempty,max=32"`
	Type          string      `json:"type" validate:"required,max=64"`
	Amount        int64       `json:"amount"`
	Currency      string      `json:"currency" validate:"required,currency"`
	OrderID       *string     `json:"order_id" validate:"omitempty,uuid"`
	Justification string      `json:"justification" validate:"required,max=2000"`
	Anchors       anchorsBody `json:"anchors"`
}

type resolveAnomalyBody struct {
	TargetType string `json:"target_type" validate:"required,audit_target"`
	TargetID   string `json:"target_id" validate:"required,max=128"`
	Note       string `json:"note" validate:"required,max=2000"`
}

// ForceTransitionPayout moves a stuck payout to FAILED or CANCELLED.
func ForceTransitionPayout(svc remediation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "remediation service unavailable"))
			return
		}
		payoutID, err := uuid.Parse(chi.URLParam(r, "payoutId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid payout id"))
			return
		}
		var body forceTransitionBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithPayoutID(ctx, payoutID.String())
		}
		result, err := svc.ForceTransitionPayout(ctx, remediation.ForceTransitionInput{
			AdminID:        adminID(r),
			PayoutID:       payoutID,
			TargetStatus:   enums.PayoutStatus(body.TargetStatus),
			Justification:  body.Justification,
			IdempotencyKey: middleware.IdempotencyKeyFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// ApplyLedgerCorrection appends one anchored corrective entry.
func ApplyLedgerCorrection(svc remediation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "remediation service unavailable"))
			return
		}
		var body ledgerCorrectionBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		targetUserID, err := uuid.Parse(body.TargetUserID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid target_user_id"))
			return
		}
		var orderID *uuid.UUID
		if body.OrderID != nil {
			id, err := uuid.Parse(*body.OrderID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid order_id"))
				return
			}
			orderID = &id
		}

		result, err := svc.ApplyLedgerCorrection(r.Context(), remediation.CorrectionInput{
			AdminID:       adminID(r),
			TargetUserID:  targetUserID,
			Role:          enums.LedgerRole(body.Role),
			Type:          enums.LedgerEntryType(body.Type),
			Amount:        body.Amount,
			Currency:      enums.Currency(body.Currency),
			OrderID:       orderID,
			Justification: body.Justification,
			Anchors: remediation.Anchors{
				PayoutID:      body.Anchors.PayoutID,
				LedgerEntryID: body.Anchors.LedgerEntryID,
				ExternalRef:   body.Anchors.ExternalRef,
			},
			IdempotencyKey: middleware.IdempotencyKeyFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// ResolveAnomaly records an operator's review of a flagged anomaly.
func ResolveAnomaly(svc remediation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "remediation service unavailable"))
			return
		}
		var body resolveAnomalyBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.ResolveAnomaly(r.Context(), remediation.AnomalyInput{
			AdminID:        adminID(r),
			TargetType:     enums.AuditTargetType(body.TargetType),
			TargetID:       body.TargetID,
			Note:           body.Note,
			IdempotencyKey: middleware.IdempotencyKeyFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func adminID(r *http.Request) uuid.UUID {
	if id := middleware.ActorIDFromContext(r.Context()); id != nil {
		return *id
	}
	return uuid.Nil
}
