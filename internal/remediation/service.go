// Package remediation holds the privileged operations admins use to repair
// payouts and balances. Every operation is idempotent by key and audited.
package remediation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/escrowledger/internal/audit"
	"github.com/angelmondragon/escrowledger/internal/ledger"
	"github.com/angelmondragon/escrowledger/internal/payouts"
	pkgdb "github.com/angelmondragon/escrowledger/pkg/db"
	"github.com/angelmondragon/escrowledger/pkg/db/models"
	"github.com/angelmondragon/escrowledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/escrowledger/pkg/errors"
	"github.com/angelmondragon/escrowledger/pkg/logger"
	"github.com/angelmondragon/escrowledger/pkg/metrics"
	"github.com/angelmondragon/escrowledger/pkg/types"
)

// FailureCodeAdminForced is stored on payouts an admin forced to FAILED.
const FailureCodeAdminForced = "admin_forced"

const (
	metaResult   = "result"
	metaPayoutID = "payout_id"
)

var errKeyTaken = errors.New("idempotency key recorded concurrently")

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service is the admin remediation surface.
type Service interface {
	ForceTransitionPayout(ctx context.Context, input ForceTransitionInput) (*ForceTransitionResult, error)
	ApplyLedgerCorrection(ctx context.Context, input CorrectionInput) (*CorrectionResult, error)
	ResolveAnomaly(ctx context.Context, input AnomalyInput) (*AnomalyResult, error)
}

type ServiceParams struct {
	Tx      txRunner
	Audit   audit.Repository
	Ledger  ledger.Service
	Entries ledger.Repository
	Payouts payouts.Service
	Metrics *metrics.RemediationMetrics
	Logger  *logger.Logger
}

type service struct {
	tx      txRunner
	audit   audit.Repository
	ledger  ledger.Service
	entries ledger.Repository
	payouts payouts.Service
	metrics *metrics.RemediationMetrics
	logg    *logger.Logger
}

func NewService(params ServiceParams) (Service, error) {
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Audit == nil {
		return nil, fmt.Errorf("audit repository required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if params.Entries == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if params.Payouts == nil {
		return nil, fmt.Errorf("payouts service required")
	}
	return &service{
		tx:      params.Tx,
		audit:   params.Audit,
		ledger:  params.Ledger,
		entries: params.Entries,
		payouts: params.Payouts,
		metrics: params.Metrics,
		logg:    params.Logger,
	}, nil
}

type operation struct {
	action        enums.AuditAction
	adminID       uuid.UUID
	key           string
	targetType    enums.AuditTargetType
	targetID      string
	justification string
	// relatedPayout names a payout the operation touches without targeting it.
	relatedPayout string
}

func (op operation) precheck() error {
	if op.adminID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeForbidden, "admin actor required")
	}
	if op.key == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "idempotency key required").
			WithDetails(map[string]any{"field": "idempotency_key"})
	}
	return nil
}

type replayable interface {
	markReplayed()
}

func (r *ForceTransitionResult) markReplayed() { r.Replayed = true }
func (r *CorrectionResult) markReplayed()      { r.Replayed = true }
func (r *AnomalyResult) markReplayed()         { r.Replayed = true }

func (s *service) ForceTransitionPayout(ctx context.Context, input ForceTransitionInput) (*ForceTransitionResult, error) {
	op := operation{
		action:        enums.AuditActionForceTransitionPayout,
		adminID:       input.AdminID,
		key:           strings.TrimSpace(input.IdempotencyKey),
		targetType:    enums.AuditTargetPayout,
		targetID:      input.PayoutID.String(),
		justification: strings.TrimSpace(input.Justification),
	}
	if err := op.precheck(); err != nil {
		return nil, err
	}
	result := &ForceTransitionResult{}
	if replayed, err := s.replay(ctx, op, result); err != nil || replayed {
		if err != nil {
			return nil, err
		}
		return result, nil
	}

	res, err := s.forceTransition(ctx, op, input)
	if err != nil {
		replayed, rerr := s.afterFailure(ctx, op, err, result)
		if replayed {
			return result, nil
		}
		return nil, rerr
	}
	s.metrics.IncOutcome(op.action.String(), string(enums.AuditOutcomeSuccess))
	return res, nil
}

func (s *service) forceTransition(ctx context.Context, op operation, input ForceTransitionInput) (*ForceTransitionResult, error) {
	if op.justification == "" {
		return nil, fieldError("justification", "justification is required")
	}
	if input.PayoutID == uuid.Nil {
		return nil, fieldError("payout_id", "payout id is required")
	}

	var requiredFrom enums.PayoutStatus
	switch input.TargetStatus {
	case enums.PayoutStatusFailed:
		requiredFrom = enums.PayoutStatusProcessing
	case enums.PayoutStatusCancelled:
		requiredFrom = enums.PayoutStatusPending
	default:
		return nil, pkgerrors.New(pkgerrors.CodeInvalidTransition, fmt.Sprintf("payouts cannot be forced to %s", input.TargetStatus)).
			WithDetails(map[string]any{"to": input.TargetStatus})
	}

	payout, err := s.payouts.Get(ctx, input.PayoutID)
	if err != nil {
		return nil, err
	}
	if payout.Status != requiredFrom {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidTransition, fmt.Sprintf("payout cannot be forced from %s to %s", payout.Status, input.TargetStatus)).
			WithDetails(map[string]any{"from": payout.Status, "to": input.TargetStatus})
	}

	actor := payouts.AdminActor(op.adminID)
	result := &ForceTransitionResult{
		AuditID:    uuid.New(),
		PayoutID:   payout.ID,
		FromStatus: payout.Status,
		ToStatus:   input.TargetStatus,
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		switch input.TargetStatus {
		case enums.PayoutStatusFailed:
			_, reversal, err := s.payouts.FailTx(ctx, tx, payout.ID, actor, FailureCodeAdminForced, op.justification)
			if err != nil {
				return err
			}
			result.ReversalEntryID = &reversal.ID
			result.ReversalExternalID = reversal.ExternalID
		case enums.PayoutStatusCancelled:
			if _, err := s.payouts.CancelTx(ctx, tx, payout.ID, actor, op.justification); err != nil {
				return err
			}
		}
		return s.insertSuccess(ctx, tx, op, result.AuditID, result, nil)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) ApplyLedgerCorrection(ctx context.Context, input CorrectionInput) (*CorrectionResult, error) {
	op := operation{
		action:        enums.AuditActionApplyLedgerCorrection,
		adminID:       input.AdminID,
		key:           strings.TrimSpace(input.IdempotencyKey),
		targetType:    enums.AuditTargetUser,
		targetID:      input.TargetUserID.String(),
		justification: strings.TrimSpace(input.Justification),
		relatedPayout: input.Anchors.trimmed().PayoutID,
	}
	if err := op.precheck(); err != nil {
		return nil, err
	}
	result := &CorrectionResult{}
	if replayed, err := s.replay(ctx, op, result); err != nil || replayed {
		if err != nil {
			return nil, err
		}
		return result, nil
	}

	res, err := s.applyCorrection(ctx, op, input)
	if err != nil {
		replayed, rerr := s.afterFailure(ctx, op, err, result)
		if replayed {
			return result, nil
		}
		return nil, rerr
	}
	s.metrics.IncOutcome(op.action.String(), string(enums.AuditOutcomeSuccess))
	return res, nil
}

func (s *service) applyCorrection(ctx context.Context, op operation, input CorrectionInput) (*CorrectionResult, error) {
	if input.Anchors.Empty() {
		return nil, pkgerrors.New(pkgerrors.CodeAnchorRequired, "correction must reference a payout, ledger entry or external reference").
			WithDetails(map[string]any{"field": "anchors"})
	}
	anchors := input.Anchors.trimmed()
	if op.justification == "" {
		return nil, fieldError("justification", "justification is required")
	}
	if input.TargetUserID == uuid.Nil {
		return nil, fieldError("target_user_id", "target user is required")
	}
	switch input.Type {
	case enums.LedgerEntryTypeAdminCorrectionCredit:
		if input.Amount <= 0 {
			return nil, fieldError("amount", "credit amount must be positive")
		}
	case enums.LedgerEntryTypeAdminCorrectionDebit:
		if input.Amount >= 0 {
			return nil, fieldError("amount", "debit amount must be negative")
		}
	default:
		return nil, fieldError("type", fmt.Sprintf("correction type must be %s or %s", enums.LedgerEntryTypeAdminCorrectionCredit, enums.LedgerEntryTypeAdminCorrectionDebit))
	}
	if anchors.PayoutID != "" {
		if _, err := uuid.Parse(anchors.PayoutID); err != nil {
			return nil, fieldError("anchors.payout_id", "payout anchor must be a uuid")
		}
	}
	role := input.Role
	switch role {
	case "":
		role = enums.LedgerRoleSeller
	case enums.LedgerRoleBuyer, enums.LedgerRoleSeller:
	default:
		return nil, fieldError("role", "corrections target buyer or seller accounts")
	}

	result := &CorrectionResult{AuditID: uuid.New()}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		metadata := types.Metadata{ledger.MetaAuditID: result.AuditID.String()}
		if anchors.PayoutID != "" {
			metadata[ledger.MetaPayoutID] = anchors.PayoutID
		}
		if anchors.LedgerEntryID != "" {
			metadata[ledger.MetaLedgerEntryID] = anchors.LedgerEntryID
		}
		if anchors.ExternalRef != "" {
			metadata[ledger.MetaExternalRef] = anchors.ExternalRef
		}

		entry, err := s.ledger.Record(ctx, tx, ledger.RecordInput{
			UserID:   input.TargetUserID,
			Role:     role,
			Type:     input.Type,
			Amount:   input.Amount,
			Currency: input.Currency,
			Status:   enums.LedgerEntryStatusAvailable,
			OrderID:  input.OrderID,
			Metadata: metadata,
		})
		if err != nil {
			return err
		}
		balance, err := s.entries.WithTx(tx).AvailableBalance(ctx, input.TargetUserID, input.Currency)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read available balance")
		}

		result.EntryID = entry.ID
		result.ExternalID = entry.ExternalID
		result.UserID = entry.UserID
		result.Type = entry.Type
		result.Amount = entry.Amount
		result.Currency = entry.Currency
		result.AvailableBalance = balance
		result.CausedNegativeBalance = entry.Type == enums.LedgerEntryTypeAdminCorrectionDebit && balance < 0

		return s.insertSuccess(ctx, tx, op, result.AuditID, result, types.Metadata{
			"anchors":                 anchors,
			"ledger_entry_id":         entry.ID.String(),
			"caused_negative_balance": result.CausedNegativeBalance,
		})
	})
	if err != nil {
		return nil, err
	}
	if result.CausedNegativeBalance && s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"user_id":  result.UserID.String(),
			"currency": string(result.Currency),
			"balance":  result.AvailableBalance,
		})
		s.logg.Warn(logCtx, "ledger correction drove available balance negative")
	}
	return result, nil
}

func (s *service) ResolveAnomaly(ctx context.Context, input AnomalyInput) (*AnomalyResult, error) {
	op := operation{
		action:        enums.AuditActionResolveAnomaly,
		adminID:       input.AdminID,
		key:           strings.TrimSpace(input.IdempotencyKey),
		targetType:    input.TargetType,
		targetID:      strings.TrimSpace(input.TargetID),
		justification: strings.TrimSpace(input.Note),
	}
	if err := op.precheck(); err != nil {
		return nil, err
	}
	result := &AnomalyResult{}
	if replayed, err := s.replay(ctx, op, result); err != nil || replayed {
		if err != nil {
			return nil, err
		}
		return result, nil
	}

	res, err := s.resolveAnomaly(ctx, op)
	if err != nil {
		replayed, rerr := s.afterFailure(ctx, op, err, result)
		if replayed {
			return result, nil
		}
		return nil, rerr
	}
	s.metrics.IncOutcome(op.action.String(), string(enums.AuditOutcomeSuccess))
	return res, nil
}

func (s *service) resolveAnomaly(ctx context.Context, op operation) (*AnomalyResult, error) {
	if !op.targetType.IsValid() {
		return nil, fieldError("target_type", fmt.Sprintf("invalid target type %q", op.targetType))
	}
	if op.targetID == "" {
		return nil, fieldError("target_id", "target id is required")
	}
	if op.justification == "" {
		return nil, fieldError("note", "resolution note is required")
	}

	result := &AnomalyResult{AuditID: uuid.New(), TargetType: op.targetType, TargetID: op.targetID}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.insertSuccess(ctx, tx, op, result.AuditID, result, nil)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// replay answers a key that was already used for op.action. A stored SUCCESS
// is decoded into out; a stored FAILURE is an idempotency conflict.
func (s *service) replay(ctx context.Context, op operation, out replayable) (bool, error) {
	entry, err := s.audit.FindByIdempotencyKey(ctx, op.action, op.key)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load idempotency record")
	}
	if entry.Outcome != enums.AuditOutcomeSuccess {
		details := map[string]any{"audit_id": entry.ID}
		if entry.ErrorCode != nil {
			details["error_code"] = *entry.ErrorCode
		}
		return false, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key previously failed").WithDetails(details)
	}

	raw, err := json.Marshal(entry.Metadata[metaResult])
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode stored result")
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode stored result")
	}
	out.markReplayed()
	s.metrics.IncReplay(op.action.String())
	return true, nil
}

func (s *service) insertSuccess(ctx context.Context, tx *gorm.DB, op operation, auditID uuid.UUID, result any, extra types.Metadata) error {
	metadata := extra.Clone()
	metadata[metaResult] = result
	if op.relatedPayout != "" {
		metadata[metaPayoutID] = op.relatedPayout
	}
	adminID := op.adminID
	key := op.key
	entry := &models.AuditLog{
		ID:             auditID,
		Action:         op.action,
		ActorID:        &adminID,
		ActorType:      enums.ActorTypeAdmin,
		TargetType:     op.targetType,
		TargetID:       op.targetID,
		Outcome:        enums.AuditOutcomeSuccess,
		IdempotencyKey: &key,
		Metadata:       metadata,
	}
	if op.justification != "" {
		justification := op.justification
		entry.Justification = &justification
	}
	if err := s.audit.WithTx(tx).Create(ctx, entry); err != nil {
		if pkgdb.IsUniqueViolation(err) {
			return errKeyTaken
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert audit entry")
	}
	return nil
}

// afterFailure runs once the operation's transaction has rolled back. A lost
// race on the key is answered from the winner's record; anything else leaves
// a FAILURE row behind.
func (s *service) afterFailure(ctx context.Context, op operation, cause error, out replayable) (bool, error) {
	if errors.Is(cause, errKeyTaken) {
		replayed, err := s.replay(ctx, op, out)
		if err != nil {
			return false, err
		}
		if replayed {
			return true, nil
		}
		cause = pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key recorded concurrently")
	}

	s.metrics.IncOutcome(op.action.String(), string(enums.AuditOutcomeFailure))
	code := pkgerrors.CodeOf(cause)
	message := cause.Error()
	if typed := pkgerrors.As(cause); typed != nil {
		message = typed.Message()
	}
	codeStr := string(code)
	adminID := op.adminID
	key := op.key
	targetType := op.targetType
	if !targetType.IsValid() {
		targetType = enums.AuditTargetViolation
	}
	entry := &models.AuditLog{
		Action:         op.action,
		ActorID:        &adminID,
		ActorType:      enums.ActorTypeAdmin,
		TargetType:     targetType,
		TargetID:       op.targetID,
		Outcome:        enums.AuditOutcomeFailure,
		ErrorCode:      &codeStr,
		ErrorMessage:   &message,
		IdempotencyKey: &key,
		Metadata:       types.Metadata{},
	}
	if op.relatedPayout != "" {
		entry.Metadata[metaPayoutID] = op.relatedPayout
	}
	if op.justification != "" {
		justification := op.justification
		entry.Justification = &justification
	}
	if err := s.audit.Create(ctx, entry); err != nil && s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"action":          op.action.String(),
			"idempotency_key": op.key,
		})
		s.logg.Error(logCtx, "failed to record remediation failure", err)
	}
	if s.logg != nil {
		logCtx := s.logg.WithActor(ctx, string(enums.ActorTypeAdmin), op.adminID.String())
		logCtx = s.logg.WithFields(logCtx, map[string]any{
			"action":     op.action.String(),
			"error_code": codeStr,
		})
		s.logg.Warn(logCtx, "remediation rejected")
	}
	return false, cause
}

func fieldError(field, msg string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, msg).WithDetails(map[string]any{"field": field})
}
