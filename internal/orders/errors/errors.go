// Package errors holds the error values returned by the order desk core.
// Callers match them with errors.Is / errors.As; none of them is fatal.
package errors

import (
	"fmt"
)

var (
	ErrNotFound           = fmt.Errorf("not found")
	ErrDuplicate          = fmt.Errorf("duplicate key")
	ErrInvalidInput       = fmt.Errorf("invalid input")
	ErrInvalidTransition  = fmt.Errorf("%w: status transition not allowed", ErrInvalidInput)
	ErrReferenced         = fmt.Errorf("still referenced by service orders")
	ErrInvalidCredentials = fmt.Errorf("invalid username or password")
	ErrStoreContention    = fmt.Errorf("store busy, retry the operation")
	ErrForbidden          = fmt.Errorf("operation not permitted")
	ErrUnauthenticated    = fmt.Errorf("no authenticated actor")
)

// ValidationError reports a blank required field or an illegal value.
type ValidationError struct {
	Field  string
	Reason string
}

func (v *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s %s", ErrInvalidInput, v.Field, v.Reason)
}

func (v *ValidationError) Unwrap() error { return ErrInvalidInput }

// Invalid is shorthand for a *ValidationError.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// ConflictError reports which unique key a create or update would duplicate.
type ConflictError struct {
	Entity string
	Field  string
	Value  string
}

func (c *ConflictError) Error() string {
	return fmt.Sprintf("%s: %s %s %q already exists", ErrDuplicate, c.Entity, c.Field, c.Value)
}

func (c *ConflictError) Unwrap() error { return ErrDuplicate }

// ReferencedError reports a delete blocked by dependent service orders.
type ReferencedError struct {
	Entity string
	ID     int64
	Count  int64
}

func (r *ReferencedError) Error() string {
	return fmt.Sprintf("cannot delete %s %d: %s (%d)", r.Entity, r.ID, ErrReferenced, r.Count)
}

func (r *ReferencedError) Unwrap() error { return ErrReferenced }
