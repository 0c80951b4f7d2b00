package enums

import "fmt"

// AuditOutcome records whether an audited action succeeded.
type AuditOutcome string

const (
	AuditOutcomeSuccess AuditOutcome = "SUCCESS"
	AuditOutcomeFailure AuditOutcome = "FAILURE"
)

// IsValid reports whether the value is a known AuditOutcome.
func (o AuditOutcome) IsValid() bool {
	return o == AuditOutcomeSuccess || o == AuditOutcomeFailure
}

// ParseAuditOutcome converts raw input into an AuditOutcome.
func ParseAuditOutcome(value string) (AuditOutcome, error) {
	outcome := AuditOutcome(value)
	if !outcome.IsValid() {
		return "", fmt.Errorf("invalid audit outcome %q", value)
	}
	return outcome, nil
}

// ActorType distinguishes human operators from automated actors.
type ActorType string

const (
	ActorTypeAdmin  ActorType = "admin"
	ActorTypeSystem ActorType = "system"
)

// AuditAction names a privileged or automated action.
type AuditAction string

const (
	AuditActionForceTransitionPayout AuditAction = "remediation.force_transition_payout"
	AuditActionApplyLedgerCorrection AuditAction = "remediation.apply_ledger_correction"
	AuditActionResolveAnomaly        AuditAction = "remediation.resolve_anomaly"
	AuditActionIntegrityViolation    AuditAction = "integrity.violation"
)

// String implements fmt.Stringer.
func (a AuditAction) String() string {
	return string(a)
}

// AuditTargetType names the kind of entity an audit row points at.
type AuditTargetType string

const (
	AuditTargetPayout      AuditTargetType = "payout"
	AuditTargetLedgerEntry AuditTargetType = "ledger_entry"
	AuditTargetUser        AuditTargetType = "user"
	AuditTargetOrder       AuditTargetType = "order"
	AuditTargetCurrency    AuditTargetType = "currency"
	AuditTargetViolation   AuditTargetType = "violation"
)

var validAuditTargetTypes = []AuditTargetType{
	AuditTargetPayout,
	AuditTargetLedgerEntry,
	AuditTargetUser,
	AuditTargetOrder,
	AuditTargetCurrency,
	AuditTargetViolation,
}

// IsValid reports whether the value is a known AuditTargetType.
func (t AuditTargetType) IsValid() bool {
	for _, candidate := range validAuditTargetTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseAuditTargetType converts raw input into an AuditTargetType.
func ParseAuditTargetType(value string) (AuditTargetType, error) {
	t := AuditTargetType(value)
	if !t.IsValid() {
		return "", fmt.Errorf("invalid audit target type %q", value)
	}
	return t, nil
}

// IsValid reports whether the value is a known ActorType.
func (a ActorType) IsValid() bool {
	return a == ActorTypeAdmin || a == ActorTypeSystem
}
