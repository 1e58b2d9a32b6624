// Package mallard is a client library for driving a DuckDB-backed analytics
// engine: connect a session, ingest tabular data, compose lazy relational
// transformations, materialize results, and fit statistical models.
package mallard

import "fmt"

// ConnectionError indicates a failure establishing or talking to the engine:
// opening the local engine, the agent handshake, or a health check.
type ConnectionError struct {
	Message string
	Err     error
}

func (e *ConnectionError) Error() string { return e.Message }

func (e *ConnectionError) Unwrap() error { return e.Err }

// DataError indicates a failure ingesting, transforming, or materializing
// data. The underlying engine error is preserved via Unwrap.
type DataError struct {
	Message string
	Err     error
}

func (e *DataError) Error() string { return e.Message }

func (e *DataError) Unwrap() error { return e.Err }

// ModelingError indicates a model-fitting failure: a singular design matrix,
// non-convergence, or an invalid formula for the given data.
type ModelingError struct {
	Message string
	Err     error
}

func (e *ModelingError) Error() string { return e.Message }

func (e *ModelingError) Unwrap() error { return e.Err }

// ClosedError indicates an operation on a session (or a handle derived from
// one) after Close.
type ClosedError struct {
	Message string
}

func (e *ClosedError) Error() string { return e.Message }

// ValidationError indicates invalid input to the library itself, before any
// engine call is made.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// ErrConnection creates a ConnectionError wrapping err with a formatted message.
func ErrConnection(err error, format string, args ...interface{}) *ConnectionError {
	return &ConnectionError{Message: fmt.Sprintf(format, args...), Err: err}
}

// ErrData creates a DataError wrapping err with a formatted message.
func ErrData(err error, format string, args ...interface{}) *DataError {
	return &DataError{Message: fmt.Sprintf(format, args...), Err: err}
}

// ErrModeling creates a ModelingError wrapping err with a formatted message.
func ErrModeling(err error, format string, args ...interface{}) *ModelingError {
	return &ModelingError{Message: fmt.Sprintf(format, args...), Err: err}
}

// ErrClosed creates a ClosedError with a formatted message.
func ErrClosed(format string, args ...interface{}) *ClosedError {
	return &ClosedError{Message: fmt.Sprintf(format, args...)}
}

// ErrValidation creates a ValidationError with a formatted message.
func ErrValidation(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}
