package domain

import (
	"errors"
	"fmt"
)

// ValidationError reports a missing or malformed required input. The board is
// left untouched when it is returned.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NotFoundError reports a task id that is absent where it was expected.
type NotFoundError struct {
	TaskID string
	// Stage is -1 when every stage was searched.
	Stage Stage
}

func (e *NotFoundError) Error() string {
	if e.Stage.Valid() {
		return fmt.Sprintf("task %s not found in stage %q", e.TaskID, e.Stage.Title())
	}
	return fmt.Sprintf("task %s not found", e.TaskID)
}

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsNotFound reports whether err carries a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
