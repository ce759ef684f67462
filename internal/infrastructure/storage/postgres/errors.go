package postgres

import (
	"errors"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgconn"
)

// SQLSTATE codes the repositories translate into AppErrors.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeCheckViolation      = "23514"

	// codeImmutable is raised by the transaction_log trigger.
	codeImmutable = "SA001"
)

// Builder returns a squirrel builder with PostgreSQL placeholders.
func Builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

func pgCode(err error) (string, string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code, pgErr.ConstraintName, true
	}
	return "", "", false
}

// UniqueViolation reports a unique constraint failure and its constraint name.
func UniqueViolation(err error) (string, bool) {
	code, constraint, ok := pgCode(err)
	return constraint, ok && code == codeUniqueViolation
}

// ForeignKeyViolation reports a foreign key failure.
func ForeignKeyViolation(err error) bool {
	code, _, ok := pgCode(err)
	return ok && code == codeForeignKeyViolation
}

// CheckViolation reports a CHECK constraint failure and its constraint name.
func CheckViolation(err error) (string, bool) {
	code, constraint, ok := pgCode(err)
	return constraint, ok && code == codeCheckViolation
}

// ImmutableViolation reports an attempt to rewrite an append-only row.
func ImmutableViolation(err error) bool {
	code, _, ok := pgCode(err)
	return ok && code == codeImmutable
}
