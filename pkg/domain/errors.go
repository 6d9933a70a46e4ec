package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind is the machine-checkable classification reported to API clients.
type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindDuplicate  ErrorKind = "duplicate"
	KindNotFound   ErrorKind = "not_found"
	KindStore      ErrorKind = "store"
	KindInternal   ErrorKind = "internal"
)

// FieldViolation describes one rejected input field.
type FieldViolation struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// ValidationError is returned when input is malformed or out of range.
type ValidationError struct {
	Violations []FieldViolation
}

func (e ValidationError) Error() string {
	if len(e.Violations) == 0 {
		return "invalid input"
	}
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, fmt.Sprintf("%s: %s", v.Field, v.Message))
	}
	return "invalid input: " + strings.Join(parts, "; ")
}

// NewValidationError builds a ValidationError for a single field.
func NewValidationError(field, rule, message string) ValidationError {
	return ValidationError{Violations: []FieldViolation{{Field: field, Rule: rule, Message: message}}}
}

// DuplicateRegistrationError is returned when the natural key is already taken.
type DuplicateRegistrationError struct {
	Key NaturalKey
}

func (e DuplicateRegistrationError) Error() string {
	return fmt.Sprintf("registration for %q (%s %s) already exists", e.Key.Name, e.Key.Class, e.Key.Division)
}

// NotFoundError is returned when an operation targets a nonexistent id.
type NotFoundError struct {
	ID int64
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("registration %d not found", e.ID)
}

// StoreError wraps an underlying persistence failure.
type StoreError struct {
	Op  string
	Err error
}

func (e StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e StoreError) Unwrap() error { return e.Err }

// KindOf classifies err. Unrecognised errors are internal.
func KindOf(err error) ErrorKind {
	var (
		validation ValidationError
		duplicate  DuplicateRegistrationError
		notFound   NotFoundError
		store      StoreError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &validation):
		return KindValidation
	case errors.As(err, &duplicate):
		return KindDuplicate
	case errors.As(err, &notFound):
		return KindNotFound
	case errors.As(err, &store):
		return KindStore
	default:
		return KindInternal
	}
}
