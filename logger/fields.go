package logger

import (
	"time"
)

// Standard field keys used across dirtytables log lines.
const (
	FieldComponent  = "component"
	FieldConnection = "connection"
	FieldDatabase   = "database"
	FieldDriver     = "driver"
	FieldMode       = "mode"
	FieldTable      = "table"
	FieldTables     = "tables"
	FieldTrigger    = "trigger"
	FieldRunID      = "run_id"
	FieldOperation  = "operation"
	FieldAttempt    = "attempt"
	FieldError      = "error"
	FieldDuration   = "duration_ms"
)

// Fields builds a map[string]interface{} from alternating key-value pairs.
//
//	log.Info("restarted", logger.Fields("connection", "test", "mode", "temporary"))
func Fields(kvs ...interface{}) map[string]interface{} {
	m := make(map[string]interface{}, len(kvs)/2)
	for i := 0; i < len(kvs)-1; i += 2 {
		if key, ok := kvs[i].(string); ok {
			m[key] = kvs[i+1]
		}
	}
	return m
}

// ErrorFields creates fields for an operation that failed.
func ErrorFields(op string, err error) map[string]interface{} {
	return map[string]interface{}{
		FieldOperation: op,
		FieldError:     err.Error(),
	}
}

// DurationFields creates fields for a timed operation.
func DurationFields(op string, d time.Duration) map[string]interface{} {
	return map[string]interface{}{
		FieldOperation: op,
		FieldDuration:  d.Milliseconds(),
	}
}
