package inventory

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by stores when no row matches (itemID, groupID).
// A matching id in a different group is also not found.
var ErrNotFound = errors.New("item not found")

// ErrorCode categorizes mutation failures.
type ErrorCode string

const (
	// ErrCodeValidation indicates missing or invalid item fields.
	ErrCodeValidation ErrorCode = "VALIDATION_FAILED"

	// ErrCodeNotFound indicates an update or delete for an id absent from the group.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrCodeStore indicates the durable write (or read) did not confirm.
	ErrCodeStore ErrorCode = "STORE_FAILED"
)

// Error is a structured mutation failure.
//
// None of these ever reach the broadcast path: a failed mutation is only
// visible to its initiator.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Field names the offending item field (validation only).
	Field string

	// ItemID identifies the item involved (not-found only).
	ItemID string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	case e.ItemID != "":
		return fmt.Sprintf("%s: %s (item=%s)", e.Code, e.Message, e.ItemID)
	default:
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewValidationError reports an invalid field.
func NewValidationError(field, message string) *Error {
	return &Error{Code: ErrCodeValidation, Field: field, Message: message}
}

// NewNotFoundError reports an item missing from a group.
func NewNotFoundError(groupID, itemID string) *Error {
	return &Error{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("no item in group %s", groupID),
		ItemID:  itemID,
		Err:     ErrNotFound,
	}
}

// NewStoreError wraps a durable store failure.
func NewStoreError(op string, err error) *Error {
	return &Error{Code: ErrCodeStore, Message: op, Err: err}
}

// CodeOf returns the code of a wrapped *Error, or "" for other errors.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsValidation returns true if err is a validation failure.
func IsValidation(err error) bool {
	return CodeOf(err) == ErrCodeValidation
}

// IsNotFound returns true if err is a not-found failure, including the bare
// ErrNotFound sentinel returned by stores.
func IsNotFound(err error) bool {
	return CodeOf(err) == ErrCodeNotFound || errors.Is(err, ErrNotFound)
}

// IsStoreError returns true if err is a durable store failure.
func IsStoreError(err error) bool {
	return CodeOf(err) == ErrCodeStore
}
