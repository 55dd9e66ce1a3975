package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/assaytrack/apiserver/internal/apperr"
	"github.com/lib/pq"
)

const pqUniqueViolation = "23505"

// isUniqueViolation reports whether err is a Postgres unique-constraint
// violation.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation
}

// mapNotFound converts sql.ErrNoRows into a typed not-found error for the
// named entity and wraps anything else as an upstream failure.
func mapNotFound(err error, entity string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.NotFound(entity)
	}
	return fmt.Errorf("%s: %v: %w", entity, err, apperr.ErrUpstream)
}

// mapUpstream wraps a raw driver error as an upstream failure.
func mapUpstream(err error, entity string) error {
	return fmt.Errorf("%s: %v: %w", entity, err, apperr.ErrUpstream)
}

// mapWriteErr converts unique violations into conflicts and anything else
// into an upstream failure.
func mapWriteErr(err error, entity, conflictReason string) error {
	if isUniqueViolation(err) {
		return apperr.Conflict(conflictReason)
	}
	return fmt.Errorf("%s: %v: %w", entity, err, apperr.ErrUpstream)
}
