package ingest

import (
	"errors"
	"fmt"
)

// Validation error codes returned to clients.
const (
	CodeInvalidRequest = "INVALID_REQUEST"
	CodeInvalidEvent   = "INVALID_EVENT"
	CodeInvalidPayload = "INVALID_PAYLOAD"
)

// ValidationError rejects a submission before anything is stored.
type ValidationError struct {
	Field   string
	Message string
	Code    string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

// IsValidationError reports whether err is or wraps a *ValidationError.
func IsValidationError(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}

func invalid(code, field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...), Code: code}
}
