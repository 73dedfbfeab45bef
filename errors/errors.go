package errors

import (
	stderrors "errors"
	"fmt"
)

// AppError is the unified error type.
type AppError struct {
	// Code is a machine-readable error code.
	Code ErrorCode `json:"code"`
	// Message is a human-readable error message.
	Message string `json:"message"`
	// Details contains additional context for the error.
	Details map[string]any `json:"details,omitempty"`
	// Cause is the underlying error that caused this error.
	Cause error `json:"-"`
}

// Error returns the string representation of the error.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause of the error.
func (e *AppError) Unwrap() error { return e.Cause }

// WithCause sets the underlying cause of the error and returns the receiver.
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithDetail sets a single detail key-value pair and returns the receiver.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates a new AppError.
func New(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// --- Constructors ---

// Configuration creates an error for invalid configuration.
func Configuration(message string) *AppError {
	return &AppError{Code: ErrCodeConfiguration, Message: message}
}

// Initialization creates an error for a tracker that could not install its
// triggers or procedures. The message tells the caller how to recover.
func Initialization(connection, collector string, cause error) *AppError {
	return &AppError{
		Code: ErrCodeInitialization,
		Message: fmt.Sprintf(
			"Could not install dirty table triggers on connection '%s'. "+
				"Drop the leftover triggers and the table '%s' manually, then run the tests again.",
			connection, collector),
		Details: map[string]any{"connection": connection},
		Cause:   cause,
	}
}

// Tracking creates an error for dirty tables that could not be read after
// the tracker restarted once.
func Tracking(connection string, cause error) *AppError {
	return &AppError{
		Code:    ErrCodeTracking,
		Message: fmt.Sprintf("Could not read the dirty tables of connection '%s', even after restarting the tracker.", connection),
		Details: map[string]any{"connection": connection},
		Cause:   cause,
	}
}

// Query creates an error for a failed statement, naming the connection and
// the database so a missing database is easy to tell apart from other failures.
func Query(connection, database string, cause error) *AppError {
	return &AppError{
		Code:    ErrCodeQuery,
		Message: fmt.Sprintf("Error in the connection '%s'. Is the database '%s' created and accessible?", connection, database),
		Details: map[string]any{"connection": connection, "database": database},
		Cause:   cause,
	}
}

// ConnectionFailed creates an error for a database that could not be reached.
func ConnectionFailed(connection string, cause error) *AppError {
	return &AppError{
		Code:    ErrCodeConnectionFailed,
		Message: fmt.Sprintf("Unable to connect to '%s'. Please verify the database is running.", connection),
		Details: map[string]any{"connection": connection},
		Cause:   cause,
	}
}

// UnknownConnection creates an error for a connection name with no configuration.
func UnknownConnection(name string) *AppError {
	return &AppError{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("The connection '%s' is not configured.", name),
		Details: map[string]any{"connection": name},
	}
}

// --- Inspection ---

// As finds the first *AppError in err's chain.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// Is reports whether any *AppError in err's chain carries code.
func Is(err error, code ErrorCode) bool {
	for err != nil {
		var appErr *AppError
		if !stderrors.As(err, &appErr) {
			return false
		}
		if appErr.Code == code {
			return true
		}
		err = appErr.Cause
	}
	return false
}

// CodeOf returns the code of the outermost *AppError in err's chain, or "".
func CodeOf(err error) ErrorCode {
	if appErr, ok := As(err); ok {
		return appErr.Code
	}
	return ""
}
