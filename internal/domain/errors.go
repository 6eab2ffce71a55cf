package domain

import (
	"fmt"
	"strings"
)

// ErrNotFound indicates a spreadsheet, worksheet or record was not found.
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrExternalService indicates a failure talking to the store, Sheets or the broker.
type ErrExternalService struct {
	Service string
	Err     error
}

func (e *ErrExternalService) Error() string {
	return fmt.Sprintf("external service error [%s]: %v", e.Service, e.Err)
}

func (e *ErrExternalService) Unwrap() error {
	return e.Err
}

// Suggestion is the retry hint surfaced to the caller.
func (e *ErrExternalService) Suggestion() string {
	if e.Service == "mysql" {
		return "Please check your database connection and try again."
	}
	return "Please try again in a few moments."
}

// ErrCircuitOpen indicates the circuit breaker is open.
type ErrCircuitOpen struct {
	Service string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("circuit breaker open for service: %s", e.Service)
}

// ErrValidation indicates a validation error (bad input).
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error on '%s': %s", e.Field, e.Message)
}

// ErrConfiguration indicates required settings are missing.
type ErrConfiguration struct {
	Missing []string
}

func (e *ErrConfiguration) Error() string {
	return "Missing environment variables: " + strings.Join(e.Missing, ", ")
}

// ErrUnauthorized indicates a missing or expired Google session.
type ErrUnauthorized struct {
	Message string
}

func (e *ErrUnauthorized) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "unauthorized"
}

// ErrForbidden indicates the session has no access to the spreadsheet.
type ErrForbidden struct {
	Action string
}

func (e *ErrForbidden) Error() string {
	return fmt.Sprintf("forbidden: %s", e.Action)
}

// ErrTooLarge indicates the requested range exceeds the sheet grid limits.
type ErrTooLarge struct {
	Range string
}

func (e *ErrTooLarge) Error() string {
	return fmt.Sprintf("requested range exceeds grid limits: %s", e.Range)
}

// ErrDuplicate indicates a unique constraint violation in the store.
type ErrDuplicate struct {
	Key string
}

func (e *ErrDuplicate) Error() string {
	return fmt.Sprintf("Duplicate entry: %s", e.Key)
}

// ErrMissingLeadSource stops a batch when a row's lead source cannot be resolved.
type ErrMissingLeadSource struct {
	Value     string
	Branch    string
	RowIndex  int
	Statement string
}

func (e *ErrMissingLeadSource) Error() string {
	return fmt.Sprintf("hear_us_from value %q not found for branch %s (row %d)", e.Value, e.Branch, e.RowIndex)
}
