package errors

// ErrorCode represents a machine-readable error code.
type ErrorCode string

const (
	// ErrCodeConfiguration indicates invalid configuration, such as an unknown
	// collector mode or an unsupported driver.
	ErrCodeConfiguration ErrorCode = "CONFIGURATION_ERROR"
	// ErrCodeInitialization indicates that triggers or the truncate procedure
	// could not be installed.
	ErrCodeInitialization ErrorCode = "INITIALIZATION_ERROR"
	// ErrCodeTracking indicates that dirty tables could not be read even after
	// restarting the tracker.
	ErrCodeTracking ErrorCode = "TRACKING_ERROR"
	// ErrCodeQuery indicates a failed SQL statement on a connection.
	ErrCodeQuery ErrorCode = "QUERY_ERROR"
	// ErrCodeConnectionFailed indicates the database could not be reached.
	ErrCodeConnectionFailed ErrorCode = "CONNECTION_FAILED"
	// ErrCodeNotFound indicates a named connection is not configured.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
)
