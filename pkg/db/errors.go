package db

import (
	"strings"

	pkgerrors "github.com/dermashop/dermashop-backend/pkg/errors"
)

const pgUniqueViolation = "23505"

// IsUniqueViolation reports whether err is a unique constraint violation. When
// constraintName is set the constraint must also be named in the error.
// SQLite messages are matched textually for local runs and tests.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	dump := pkgerrors.Dump(err)
	if dump.PGCode != "" {
		if dump.PGCode != pgUniqueViolation {
			return false
		}
		return constraintName == "" || dump.PGConstraint == constraintName || strings.Contains(dump.TopMessage, constraintName)
	}
	msg := err.Error()
	if !strings.Contains(msg, "duplicate key value") && !strings.Contains(msg, "UNIQUE constraint failed") {
		return false
	}
	return constraintName == "" || strings.Contains(msg, constraintName)
}
