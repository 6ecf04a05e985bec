package utils

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

const pgUniqueViolation = "23505"

// IsPGUniqueViolation reports whether err is a PostgreSQL unique constraint
// violation. If constraint is non-empty the violated constraint must match it.
func IsPGUniqueViolation(err error, constraint string) bool {
	var pge *pgconn.PgError
	if !errors.As(err, &pge) || pge.Code != pgUniqueViolation {
		return false
	}
	return constraint == "" || pge.ConstraintName == constraint
}
