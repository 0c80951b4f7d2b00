package auth

import (
	"github.com/angelmondragon/escrowledger/pkg/enums"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// OperatorTokenPayload captures the data carried by an operator JWT.
type OperatorTokenPayload struct {
	UserID uuid.UUID
	Role   enums.OperatorRole
	JTI    string
}

// OperatorClaims represents the typed JWT presented by back-office operators.
type OperatorClaims struct {
	UserID uuid.UUID          `json:"user_id"`
	Role   enums.OperatorRole `json:"role"`
	jwt.RegisteredClaims
}
