package services

import (
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// Error categories surfaced to callers. Every rejection returned by a service
// unwraps to exactly one of these.
var (
	ErrValidation      = errors.New("validation failed")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
)

// OrderError is a caller-visible rejection carrying a category and a message
// naming the check that failed.
type OrderError struct {
	Kind    error
	Message string
}

func (e *OrderError) Error() string {
	return e.Message
}

func (e *OrderError) Unwrap() error {
	return e.Kind
}

func validationError(msg string) error {
	return &OrderError{Kind: ErrValidation, Message: msg}
}

func unauthenticatedError(msg string) error {
	return &OrderError{Kind: ErrUnauthenticated, Message: msg}
}

func forbiddenError(msg string) error {
	return &OrderError{Kind: ErrForbidden, Message: msg}
}

func notFoundError(msg string) error {
	return &OrderError{Kind: ErrNotFound, Message: msg}
}

func conflictError(msg string) error {
	return &OrderError{Kind: ErrConflict, Message: msg}
}

// isUniqueViolation reports whether err is a duplicate key error from either driver.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}
