package errors

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrInvalid           = errors.New("invalid")
	ErrConflict          = errors.New("conflict")
	ErrTooMany           = errors.New("too many requests")
	ErrInternal          = errors.New("internal")
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	ErrIndexNotReady     = errors.New("vector index not initialized")
)

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}
