package task

import (
	"errors"
	"fmt"
	"strings"
)

// TaskError attributes a failure to the leaf task that produced it.
type TaskError struct {
	Task string
	Err  error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("task %s: %v", e.Task, e.Err)
}

func (e *TaskError) Unwrap() error {
	return e.Err
}

// FailedTask returns the name of the innermost failing leaf in err's chain,
// or "" when err did not come from a task.
func FailedTask(err error) string {
	var te *TaskError
	if errors.As(err, &te) {
		return te.Task
	}
	return ""
}

type ValidationError struct {
	Path    string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// ValidationErrors collects every problem found in a workflow definition.
type ValidationErrors struct {
	Errors []ValidationError
}

func (ve *ValidationErrors) Add(path, message string) {
	ve.Errors = append(ve.Errors, ValidationError{Path: path, Message: message})
}

func (ve *ValidationErrors) HasErrors() bool {
	return len(ve.Errors) > 0
}

func (ve *ValidationErrors) Error() string {
	msgs := make([]string, 0, len(ve.Errors))
	for _, e := range ve.Errors {
		msgs = append(msgs, e.Error())
	}
	return "invalid workflow: " + strings.Join(msgs, "; ")
}

func (ve *ValidationErrors) FormatStderr() string {
	var sb strings.Builder
	for _, e := range ve.Errors {
		fmt.Fprintf(&sb, "error: %s: %s\n", e.Path, e.Message)
	}
	return sb.String()
}
