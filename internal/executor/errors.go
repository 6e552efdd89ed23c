package executor

import (
	"errors"
	"fmt"
)

// ExecutorError represents an error raised while running a compute strategy.
type ExecutorError struct {
	Code    ErrorCode
	Message string
	TaskID  string
	Cause   error
}

// ErrorCode represents the type of executor error.
type ErrorCode string

const (
	// ErrCodeNotFound indicates the strategy was not registered.
	ErrCodeNotFound ErrorCode = "STRATEGY_NOT_FOUND"
	// ErrCodeExecution indicates the strategy could not complete.
	ErrCodeExecution ErrorCode = "EXECUTION_ERROR"
	// ErrCodeConfig indicates a malformed task configuration or graph.
	ErrCodeConfig ErrorCode = "CONFIG_ERROR"
)

// Error implements the error interface.
func (e *ExecutorError) Error() string {
	prefix := fmt.Sprintf("[%s]", e.Code)
	if e.TaskID != "" {
		prefix = fmt.Sprintf("[%s] task %s:", e.Code, e.TaskID)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s %s: %v", prefix, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s %s", prefix, e.Message)
}

// Unwrap returns the underlying error.
func (e *ExecutorError) Unwrap() error {
	return e.Cause
}

// NewStrategyNotFoundError creates an error for a missing strategy.
func NewStrategyNotFoundError(name string) *ExecutorError {
	return &ExecutorError{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("no compute strategy registered with name: %s", name),
	}
}

// NewExecutionError creates an error for execution failures.
func NewExecutionError(taskID, message string, cause error) *ExecutorError {
	return &ExecutorError{
		Code:    ErrCodeExecution,
		Message: message,
		TaskID:  taskID,
		Cause:   cause,
	}
}

// NewConfigError creates an error for configuration issues.
func NewConfigError(taskID, message string, cause error) *ExecutorError {
	return &ExecutorError{
		Code:    ErrCodeConfig,
		Message: message,
		TaskID:  taskID,
		Cause:   cause,
	}
}

// GetErrorCode returns the code of the first ExecutorError in err's chain.
func GetErrorCode(err error) ErrorCode {
	var execErr *ExecutorError
	if errors.As(err, &execErr) {
		return execErr.Code
	}
	return ""
}

// IsNotFoundError checks if the error is a strategy not found error.
func IsNotFoundError(err error) bool {
	return GetErrorCode(err) == ErrCodeNotFound
}

// IsConfigError checks if the error is a configuration error.
func IsConfigError(err error) bool {
	return GetErrorCode(err) == ErrCodeConfig
}
