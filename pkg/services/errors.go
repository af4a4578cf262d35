// Package services provides the service function registry behind the
// ExecuteServiceFunction action.
package services

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownService  = errors.New("unknown service")
	ErrUnknownFunction = errors.New("unknown service function")
	// ErrInvalidArguments is returned when a function rejects its arguments.
	ErrInvalidArguments = errors.New("invalid service arguments")
)

// ServiceError wraps a failed service function call.
type ServiceError struct {
	Service  string
	Function string
	Message  string
	Err      error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s.%s: %s", e.Service, e.Function, e.Message)
	}

	return fmt.Sprintf("%s.%s: %v", e.Service, e.Function, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// IsValidationError reports whether err was caused by the caller's arguments.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidArguments)
}

func invalidArguments(service, function, format string, args ...any) *ServiceError {
	return &ServiceError{
		Service:  service,
		Function: function,
		Message:  fmt.Sprintf(format, args...),
		Err:      ErrInvalidArguments,
	}
}
