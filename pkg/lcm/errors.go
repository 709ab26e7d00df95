package lcm

import (
	"errors"
	"fmt"
)

// Error kinds returned by the graph engine. Every failure aborts the whole
// build; use errors.Is to classify and errors.As with *TaskError to get the
// offending task.
var (
	ErrTaskBaseDeploymentNotAllowed = errors.New("task-based deployment not allowed")
	ErrInvalidData                  = errors.New("invalid data")
	ErrSerializerNotSupported       = errors.New("serializer not supported")
	ErrCycleDetected                = errors.New("cycle detected")
)

// TaskError ties an error kind to the task that caused it
type TaskError struct {
	TaskID string
	Kind   error
	Reason string
}

func (e *TaskError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%v: task %s", e.Kind, e.TaskID)
	}
	return fmt.Sprintf("%v: task %s: %s", e.Kind, e.TaskID, e.Reason)
}

func (e *TaskError) Unwrap() error {
	return e.Kind
}

func taskError(kind error, taskID, format string, args ...interface{}) error {
	return &TaskError{TaskID: taskID, Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// errorKind labels an error for metrics
func errorKind(err error) string {
	switch {
	case errors.Is(err, ErrTaskBaseDeploymentNotAllowed):
		return "task_version"
	case errors.Is(err, ErrInvalidData):
		return "invalid_data"
	case errors.Is(err, ErrSerializerNotSupported):
		return "serializer_not_supported"
	case errors.Is(err, ErrCycleDetected):
		return "cycle"
	}
	return "other"
}
