package audit

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/escrowledger/pkg/enums"
	"github.com/angelmondragon/escrowledger/pkg/pagination"
)

// Query filters a page of audit rows. Zero values mean "no filter".
type Query struct {
	Action      enums.AuditAction
	ActorID     *uuid.UUID
	TargetType  enums.AuditTargetType
	TargetID    string
	Outcome     enums.AuditOutcome
	ErrorCode   string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Limit       int
	Cursor      *pagination.Cursor
}
