// Package repository implements Postgres persistence for workflow
// definitions, executions, the audit log and invoices.
package repository

import (
	stderrors "errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// isUniqueViolation reports whether err is a Postgres unique-constraint
// violation. The schema leans on unique indexes for the one-active-
// execution-per-invoice invariant and audit dedup, so violations here are
// business conflicts, not internal errors.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return stderrors.As(err, &pgErr) && pgErr.Code == "23505"
}
