package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/formsync/internal/fieldpath"
)

// RuntimeError represents an error detected while applying an event.
// The state the event was applied to is unaffected.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Path is the field path involved, if any.
	Path string

	// Details contains additional context.
	Details map[string]string

	err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeInvalidPath indicates a malformed path or a write through a scalar.
	ErrCodeInvalidPath RuntimeErrorCode = "INVALID_PATH"

	// ErrCodeUnknownSection indicates a section ID the rule set does not declare.
	ErrCodeUnknownSection RuntimeErrorCode = "UNKNOWN_SECTION"

	// ErrCodeUnknownTemplate indicates a template ID the rule set does not declare.
	ErrCodeUnknownTemplate RuntimeErrorCode = "UNKNOWN_TEMPLATE"

	// ErrCodePassQuotaExceeded indicates derivation did not settle in time.
	ErrCodePassQuotaExceeded RuntimeErrorCode = "PASS_QUOTA_EXCEEDED"

	// ErrCodeOscillation indicates a target flipped back to a value it held
	// earlier in the same transition.
	ErrCodeOscillation RuntimeErrorCode = "OSCILLATION"

	// ErrCodeUnknownEvent indicates an event type Apply does not handle.
	ErrCodeUnknownEvent RuntimeErrorCode = "UNKNOWN_EVENT"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s (path=%s)", e.Code, e.Message, e.Path)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, so errors.Is(err,
// fieldpath.ErrInvalidPath) holds for INVALID_PATH errors.
func (e *RuntimeError) Unwrap() error {
	return e.err
}

// IsInvalidPath returns true if the error is an invalid path error.
// Uses errors.As to handle wrapped errors.
func IsInvalidPath(err error) bool {
	return hasCode(err, ErrCodeInvalidPath) || errors.Is(err, fieldpath.ErrInvalidPath)
}

// IsQuotaError returns true if the error is a pass quota error.
// Matches both RuntimeError with ErrCodePassQuotaExceeded and PassQuotaError.
func IsQuotaError(err error) bool {
	if hasCode(err, ErrCodePassQuotaExceeded) {
		return true
	}
	var pe *PassQuotaError
	return errors.As(err, &pe)
}

// IsOscillationError returns true if the error is an oscillation error.
func IsOscillationError(err error) bool {
	return hasCode(err, ErrCodeOscillation)
}

// ErrorCode returns the RuntimeErrorCode carried by err, or "".
func ErrorCode(err error) RuntimeErrorCode {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code
	}
	var pe *PassQuotaError
	if errors.As(err, &pe) {
		return ErrCodePassQuotaExceeded
	}
	return ""
}

func hasCode(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	return errors.As(err, &re) && re.Code == code
}

// NewInvalidPathError wraps a path error.
func NewInvalidPathError(path string, err error) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeInvalidPath,
		Message: err.Error(),
		Path:    path,
		err:     err,
	}
}

// NewUnknownSectionError creates a RuntimeError for an undeclared section.
func NewUnknownSectionError(id string) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeUnknownSection,
		Message: fmt.Sprintf("section %q is not declared", id),
		Details: map[string]string{"section": id},
	}
}

// NewUnknownTemplateError creates a RuntimeError for an undeclared template.
func NewUnknownTemplateError(id string, err error) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeUnknownTemplate,
		Message: fmt.Sprintf("template %q is not declared", id),
		Details: map[string]string{"template": id},
		err:     err,
	}
}

// NewOscillationError creates a RuntimeError for a target that flipped back.
func NewOscillationError(path string, passes int) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeOscillation,
		Message: "target returned to an earlier value within one transition",
		Path:    path,
		Details: map[string]string{"passes": fmt.Sprintf("%d", passes)},
	}
}
