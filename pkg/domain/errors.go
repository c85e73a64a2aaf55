package domain

import (
	"errors"
	"fmt"
)

// Code is a machine readable error classification surfaced to callers.
type Code string

// Error codes returned by engine operations.
const (
	CodeUnauthorized             Code = "unauthorized"
	CodeForbidden                Code = "forbidden"
	CodeNotFound                 Code = "not_found"
	CodeNotLocked                Code = "not_locked"
	CodeLockedByOther            Code = "locked_by_other"
	CodeInventoryConflict        Code = "inventory_conflict"
	CodeGridShrinkBlocked        Code = "grid_shrink_blocked"
	CodeSplitBlocked             Code = "split_blocked"
	CodeNoSplitTarget            Code = "no_split_target"
	CodeSplitTooNarrow           Code = "split_too_narrow"
	CodeUnsupportedRotation      Code = "unsupported_rotation"
	CodeCrossBlueprintNotAllowed Code = "cross_blueprint_not_allowed"
	CodeValidation               Code = "validation_error"
	CodeStorage                  Code = "storage_error"
)

// Sentinels for errors.Is comparisons. Matching is by code only.
var (
	ErrUnauthorized             = &Error{Code: CodeUnauthorized}
	ErrForbidden                = &Error{Code: CodeForbidden}
	ErrNotFound                 = &Error{Code: CodeNotFound}
	ErrNotLocked                = &Error{Code: CodeNotLocked}
	ErrLockedByOther            = &Error{Code: CodeLockedByOther}
	ErrInventoryConflict        = &Error{Code: CodeInventoryConflict}
	ErrGridShrinkBlocked        = &Error{Code: CodeGridShrinkBlocked}
	ErrSplitBlocked             = &Error{Code: CodeSplitBlocked}
	ErrNoSplitTarget            = &Error{Code: CodeNoSplitTarget}
	ErrSplitTooNarrow           = &Error{Code: CodeSplitTooNarrow}
	ErrUnsupportedRotation      = &Error{Code: CodeUnsupportedRotation}
	ErrCrossBlueprintNotAllowed = &Error{Code: CodeCrossBlueprintNotAllowed}
	ErrValidation               = &Error{Code: CodeValidation}
	ErrStorage                  = &Error{Code: CodeStorage}
)

// Error is the structured failure returned by engine operations.
type Error struct {
	Code    Code
	Message string
	Entity  EntityType
	ID      string
	// Retryable is set when re-running the same call is safe.
	Retryable bool
	// Blocking lists the ids that caused an inventory conflict.
	Blocking []string
	Err      error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Code)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap exposes the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Is matches errors by code. Grid-shrink and split conflicts are also
// inventory conflicts.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Code == e.Code {
		return true
	}
	if t.Code == CodeInventoryConflict {
		return e.Code == CodeGridShrinkBlocked || e.Code == CodeSplitBlocked
	}
	return false
}

// CodeOf extracts the code of err, or "" when err is not an *Error.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// NotFound reports a missing (or foreign-organization) entity.
func NotFound(entity EntityType, id string) *Error {
	return &Error{Code: CodeNotFound, Entity: entity, ID: id, Message: fmt.Sprintf("%s %s not found", entity, id)}
}

// Validation reports invalid caller input.
func Validation(format string, args ...any) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

// Errorf builds an error with the given code.
func Errorf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Storage wraps a backend failure. retryable should only be true for
// idempotent operations.
func Storage(err error, retryable bool) *Error {
	return &Error{Code: CodeStorage, Message: "storage operation failed", Retryable: retryable, Err: err}
}
