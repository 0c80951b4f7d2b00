package enums

import "fmt"

// LedgerRole identifies which side of an order a ledger entry belongs to.
type LedgerRole string

const (
	LedgerRoleSeller LedgerRole = "seller"
	LedgerRoleBuyer  LedgerRole = "buyer"

	// LedgerRolePlatform owns the marketplace's own accounts, such as payout clearing.
	LedgerRolePlatform LedgerRole = "platform"
)

// String implements fmt.Stringer.
func (r LedgerRole) String() string {
	return string(r)
}

// IsValid reports whether the value is a known LedgerRole.
func (r LedgerRole) IsValid() bool {
	return r == LedgerRoleSeller || r == LedgerRoleBuyer || r == LedgerRolePlatform
}

// ParseLedgerRole converts raw input into a LedgerRole.
func ParseLedgerRole(value string) (LedgerRole, error) {
	role := LedgerRole(value)
	if !role.IsValid() {
		return "", fmt.Errorf("invalid ledger role %q", value)
	}
	return role, nil
}
