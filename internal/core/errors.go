package core

import (
	"errors"
	"fmt"

	"chemcore/pkg/domain"
)

// ErrRejected marks commands dropped by precondition checks. Such commands
// leave state untouched and are never reported to the user.
var ErrRejected = errors.New("command rejected")

// RejectedError explains why a command was dropped.
type RejectedError struct {
	Op     string
	Reason string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("%s rejected: %s", e.Op, e.Reason)
}

// Is reports ErrRejected equivalence.
func (e *RejectedError) Is(target error) bool { return target == ErrRejected }

func reject(op, format string, args ...any) error {
	return &RejectedError{Op: op, Reason: fmt.Sprintf(format, args...)}
}

// IsRejected reports whether err is a silent precondition failure.
func IsRejected(err error) bool { return errors.Is(err, ErrRejected) }

// ErrNotFound is returned when a referenced container is missing outside a command precondition.
type ErrNotFound struct {
	Entity domain.EntityType
	ID     string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// bufferError extracts the reported buffer failure from err, if any.
func bufferError(err error) (*domain.BufferError, bool) {
	var be *domain.BufferError
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}
