package enums

import "fmt"

// OperatorRole is the capability carried by an operator token.
type OperatorRole string

const (
	OperatorRoleAdmin   OperatorRole = "admin"
	OperatorRoleSupport OperatorRole = "support"
)

var validOperatorRoles = []OperatorRole{OperatorRoleAdmin, OperatorRoleSupport}

func (r OperatorRole) String() string { return string(r) }

func (r OperatorRole) IsValid() bool {
	for _, candidate := range validOperatorRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

func ParseOperatorRole(value string) (OperatorRole, error) {
	for _, candidate := range validOperatorRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid operator role %q", value)
}
