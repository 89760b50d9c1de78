package engine

import "fmt"

// ServiceError is a structured failure carrying a stable code for API and
// CLI callers, plus context for the response envelope.
type ServiceError struct {
	Code    string
	Message string
	Status  int
	Context map[string]any
}

func (e *ServiceError) Error() string {
	return e.Message
}

func invalidInput(code, format string, args ...any) *ServiceError {
	return &ServiceError{Code: code, Message: fmt.Sprintf(format, args...), Status: 422}
}

func conflict(code, format string, args ...any) *ServiceError {
	return &ServiceError{Code: code, Message: fmt.Sprintf(format, args...), Status: 409}
}

// ReviewTaskCreationError signals that a verification stage could not be
// opened for a submission. The enclosing transaction is rolled back, so no
// partial review state survives.
type ReviewTaskCreationError struct {
	SubmissionID string
	Level        int
	Err          error
}

func (e *ReviewTaskCreationError) Error() string {
	return fmt.Sprintf("create level-%d review task for submission %s: %v", e.Level, e.SubmissionID, e.Err)
}

func (e *ReviewTaskCreationError) Unwrap() error {
	return e.Err
}

// MissingAssociationError signals a task whose indicator reference points at
// a record that no longer exists. That is store corruption, not a user
// error, and is surfaced as such instead of a plain not-found.
type MissingAssociationError struct {
	TaskID      string
	IndicatorID string
}

func (e *MissingAssociationError) Error() string {
	return fmt.Sprintf("task %s references missing indicator %s", e.TaskID, e.IndicatorID)
}
