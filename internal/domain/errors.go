package domain

import (
	"errors"
	"fmt"
)

// Store error sentinels. Adapters translate their driver errors into
// these so callers never depend on driver types.
var (
	// ErrInvalidReference means an identifier is malformed and can never
	// match a stored record.
	ErrInvalidReference = errors.New("invalid reference")

	// ErrNotFound means a well-formed reference points at nothing.
	ErrNotFound = errors.New("not found")
)

// ValidationError is a caller mistake detected before any write.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

// Validationf builds a *ValidationError.
func Validationf(format string, args ...any) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// UpstreamError reports a failed completion call: transport failure,
// timeout, or a malformed upstream response. Code carries the provider's
// status so callers can tell user-caused from system-caused failures.
type UpstreamError struct {
	Provider string
	Code     string
	Err      error
}

func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("upstream %s (%s): %v", e.Provider, e.Code, e.Err)
	}
	return fmt.Sprintf("upstream %s (%s)", e.Provider, e.Code)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}
