package models

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by every engine component. Use errors.Is against the
// sentinels; the typed errors below carry context and unwrap to their cause.
var (
	ErrValidation            = errors.New("validation error")
	ErrReferenceResolution   = errors.New("reference resolution error")
	ErrActionExecution       = errors.New("action execution error")
	ErrSignatureVerification = errors.New("signature verification failed")
	ErrTimeout               = errors.New("timeout")
	ErrCycleLimitExceeded    = errors.New("cycle limit exceeded")
	ErrRunCancelled          = errors.New("run cancelled")
	ErrWorkflowNotFound      = errors.New("workflow not found")
	ErrRunNotFound           = errors.New("run not found")
)

// ValidationError reports a malformed definition, condition or configuration.
type ValidationError struct {
	Path    string
	Message string
	Err     error
}

func NewValidationError(path, format string, args ...any) *ValidationError {
	return &ValidationError{Path: path, Message: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	msg := e.Message
	if e.Path != "" {
		msg = e.Path + ": " + msg
	}

	if e.Err != nil {
		return fmt.Sprintf("validation error: %s: %v", msg, e.Err)
	}

	return "validation error: " + msg
}

func (e *ValidationError) Unwrap() error { return e.Err }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// ReferenceResolutionError reports a $find or $link that did not match exactly one record.
type ReferenceResolutionError struct {
	Model   string
	Filter  map[string]any
	Matches int
}

func (e *ReferenceResolutionError) Error() string {
	return fmt.Sprintf("reference resolution error: %s %v matched %d records, expected exactly 1", e.Model, e.Filter, e.Matches)
}

func (e *ReferenceResolutionError) Is(target error) bool { return target == ErrReferenceResolution }

// ActionExecutionError wraps a handler failure with the action that raised it.
type ActionExecutionError struct {
	ActionID string
	Type     string
	Err      error
}

func (e *ActionExecutionError) Error() string {
	return fmt.Sprintf("action %s (%s) failed: %v", e.ActionID, e.Type, e.Err)
}

func (e *ActionExecutionError) Unwrap() error { return e.Err }

func (e *ActionExecutionError) Is(target error) bool { return target == ErrActionExecution }

// SignatureVerificationError is returned when an inbound event fails authentication.
type SignatureVerificationError struct {
	TenantID string
	Reason   string
}

func (e *SignatureVerificationError) Error() string {
	return fmt.Sprintf("signature verification failed for tenant %s: %s", e.TenantID, e.Reason)
}

func (e *SignatureVerificationError) Is(target error) bool { return target == ErrSignatureVerification }

// TimeoutError is returned when a collaborator call or a run exceeds its budget.
type TimeoutError struct {
	Op     string
	Budget string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s exceeded its budget of %s", e.Op, e.Budget)
}

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// CycleLimitExceededError is returned when a run visits more steps than allowed.
type CycleLimitExceededError struct {
	RunID string
	Limit int
}

func (e *CycleLimitExceededError) Error() string {
	return fmt.Sprintf("run %s exceeded the iteration cap of %d steps", e.RunID, e.Limit)
}

func (e *CycleLimitExceededError) Is(target error) bool { return target == ErrCycleLimitExceeded }

// IsValidationError checks if an error is a validation error.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrValidation)
}
