package application

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Error classes returned by the services. Handlers map them to status codes.
var (
	ErrValidation            = errors.New("validation failed")
	ErrAlreadyExists         = errors.New("email already registered")
	ErrNotFound              = errors.New("user not found")
	ErrInvalidCredentials    = errors.New("invalid email or password")
	ErrUnverifiedAccount     = errors.New("email not verified; check your inbox for the verification link")
	ErrInvalidOrExpiredToken = errors.New("invalid or expired token")
	ErrDelivery              = errors.New("notification could not be delivered")
	ErrInternal              = errors.New("internal error")
)

// ValidationError carries per-field messages keyed by JSON field name.
type ValidationError struct {
	Details map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Details) == 0 {
		return ErrValidation.Error()
	}
	fields := make([]string, 0, len(e.Details))
	for f := range e.Details {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return ErrValidation.Error() + ": " + strings.Join(fields, ", ")
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func invalidField(field, msg string) error {
	return &ValidationError{Details: map[string]string{field: msg}}
}

// DeliveryError reports a notification that failed after state was committed.
type DeliveryError struct {
	Err error
}

func (e *DeliveryError) Error() string { return fmt.Sprintf("%s: %v", ErrDelivery, e.Err) }
func (e *DeliveryError) Unwrap() error { return e.Err }
func (e *DeliveryError) Is(target error) bool {
	return target == ErrDelivery
}

// InternalError wraps an unclassified infrastructure failure. Its text is for logs only.
type InternalError struct {
	Op  string
	Err error
}

func (e *InternalError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *InternalError) Unwrap() error { return e.Err }
func (e *InternalError) Is(target error) bool {
	return target == ErrInternal
}

func internal(op string, err error) error {
	return &InternalError{Op: op, Err: err}
}

// Outcome names the class of err for metrics and logs.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrValidation):
		return "invalid"
	case errors.Is(err, ErrAlreadyExists):
		return "exists"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidCredentials):
		return "bad_credentials"
	case errors.Is(err, ErrUnverifiedAccount):
		return "unverified"
	case errors.Is(err, ErrInvalidOrExpiredToken):
		return "bad_token"
	case errors.Is(err, ErrDelivery):
		return "delivery_failed"
	default:
		return "error"
	}
}
