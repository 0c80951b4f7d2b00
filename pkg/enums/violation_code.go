package enums

// ViolationCode identifies one integrity check failure class.
type ViolationCode string

const (
	ViolationGlobalImbalance          ViolationCode = "GLOBAL_IMBALANCE"
	ViolationNegativeAvailableBalance ViolationCode = "NEGATIVE_AVAILABLE_BALANCE"
	ViolationCompletedWithoutTransfer ViolationCode = "COMPLETED_WITHOUT_TRANSFER"
	ViolationMissingReservation       ViolationCode = "MISSING_RESERVATION"
	ViolationOrphanedReservation      ViolationCode = "ORPHANED_RESERVATION"
)

// String implements fmt.Stringer.
func (v ViolationCode) String() string {
	return string(v)
}

// Severity ranks how urgently a violation needs operator attention.
type Severity string

const (
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Severity returns the fixed severity for the violation code.
func (v ViolationCode) Severity() Severity {
	switch v {
	case ViolationGlobalImbalance, ViolationCompletedWithoutTransfer:
		return SeverityCritical
	}
	return SeverityHigh
}
