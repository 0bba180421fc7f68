package errors

import (
	"errors"
	"fmt"
)

// Domain error types for the payments core
var (
	ErrAccountNotFound        = errors.New("account not found")
	ErrAccountAlreadyExists   = errors.New("account already exists")
	ErrUsernameTaken          = errors.New("username already taken")
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrInvalidAmount          = errors.New("amount must be greater than zero")
	ErrTransactionNotFound    = errors.New("transaction not found")
	ErrRecipientNotFound      = errors.New("recipient not found in registry")
	ErrAlreadyResolved        = errors.New("transaction already resolved")
	ErrVerificationIncomplete = errors.New("recipient fields not verified")
	ErrDuplicateSubmission    = errors.New("duplicate idempotency key")
	ErrInvalidCredentials     = errors.New("invalid username, account number or password")
	ErrTooManyAttempts        = errors.New("too many attempts")
	ErrUnauthorized           = errors.New("unauthorized")
	ErrForbidden              = errors.New("forbidden")
	ErrStoreUnavailable       = errors.New("store unavailable")
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

func NewValidationError(field, message string) error {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// StoreError wraps an infrastructure failure. It matches ErrStoreUnavailable
// under errors.Is so handlers never have to know the cause.
type StoreError struct {
	Operation string
	Cause     error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store error during '%s': %v", e.Operation, e.Cause)
}

func (e *StoreError) Unwrap() error {
	return e.Cause
}

func (e *StoreError) Is(target error) bool {
	return target == ErrStoreUnavailable
}

func NewStoreError(operation string, cause error) error {
	return &StoreError{
		Operation: operation,
		Cause:     cause,
	}
}

// Wrap leaves domain errors untouched and turns everything else into a StoreError.
func Wrap(operation string, err error) error {
	if err == nil || IsDomain(err) {
		return err
	}
	return NewStoreError(operation, err)
}

var domainErrors = []error{
	ErrAccountNotFound,
	ErrAccountAlreadyExists,
	ErrUsernameTaken,
	ErrInsufficientFunds,
	ErrInvalidAmount,
	ErrTransactionNotFound,
	ErrRecipientNotFound,
	ErrAlreadyResolved,
	ErrVerificationIncomplete,
	ErrDuplicateSubmission,
	ErrInvalidCredentials,
	ErrTooManyAttempts,
	ErrUnauthorized,
	ErrForbidden,
	ErrStoreUnavailable,
}

// IsDomain reports whether err is one of the taxonomy errors above.
func IsDomain(err error) bool {
	if IsValidationError(err) {
		return true
	}
	for _, target := range domainErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrAccountNotFound)
}

func IsTransactionNotFound(err error) bool {
	return errors.Is(err, ErrTransactionNotFound)
}

func IsInsufficientFunds(err error) bool {
	return errors.Is(err, ErrInsufficientFunds)
}

func IsAlreadyResolved(err error) bool {
	return errors.Is(err, ErrAlreadyResolved)
}

func IsStoreUnavailable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}

func IsValidationError(err error) bool {
	var validationErr *ValidationError
	return errors.As(err, &validationErr)
}

func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAccountAlreadyExists)
}

// Is and As re-export the standard helpers so callers importing this package
// under the name errors do not need a second import.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

func As(err error, target any) bool {
	return errors.As(err, target)
}
