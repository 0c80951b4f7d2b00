package db

import (
	"errors"
	"strings"

	"gorm.io/gorm"

	pkgerrors "github.com/angelmondragon/escrowledger/pkg/errors"
)

const pgUniqueViolation = "23505"

// IsUniqueViolation reports whether err is a unique constraint failure. When
// constraints are given the violated constraint must be one of them.
func IsUniqueViolation(err error, constraints ...string) bool {
	if err == nil {
		return false
	}
	if pg, ok := pkgerrors.Postgres(err); ok {
		return pg.Code == pgUniqueViolation && matchesConstraint(pg.Constraint, constraints)
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return len(constraints) == 0
	}
	// sqlite: "UNIQUE constraint failed: <table>.<column>"
	msg := err.Error()
	if !strings.Contains(msg, "UNIQUE constraint failed") && !strings.Contains(msg, "duplicate key value") {
		return false
	}
	if len(constraints) == 0 {
		return true
	}
	for _, c := range constraints {
		if strings.Contains(msg, c) {
			return true
		}
	}
	return false
}

func matchesConstraint(got string, want []string) bool {
	if len(want) == 0 {
		return true
	}
	for _, c := range want {
		if c == got {
			return true
		}
	}
	return false
}

// IsNotFound reports whether err is gorm's record-not-found sentinel.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
