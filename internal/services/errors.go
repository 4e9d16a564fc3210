package services

import (
	"errors"
	"fmt"

	"github.com/ncsedu/grading-service/internal/validator"
)

// Sentinel errors mapped to HTTP status codes by the handler layer.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	ErrProfileNotFound    = errors.New("profile not found")
	ErrProfileExists      = errors.New("profile already exists")
	ErrAdminRoleRejected  = errors.New("admin role cannot be self-assigned")
	ErrCourseNotFound     = errors.New("course not found")
	ErrUnitNotFound       = errors.New("competency unit not found")
	ErrElementNotFound    = errors.New("competency element not found")
	ErrScheduleNotFound   = errors.New("schedule not found")
	ErrScheduleClosed     = errors.New("schedule is not open for submissions")
	ErrEvaluationNotFound = errors.New("evaluation not found")
	ErrEvaluationExists   = errors.New("evaluation already exists for this student and unit")
	ErrSubmissionNotFound = errors.New("submission not found")

	ErrInvalidStatusTransition = errors.New("invalid status transition")
	ErrFileTooLarge            = errors.New("file exceeds the maximum upload size")
	ErrUnsupportedFileType     = errors.New("unsupported file type")
)

// PermissionError carries the denied decision's context for logging. It
// unwraps to ErrForbidden so handlers can map it with errors.Is.
type PermissionError struct {
	UserID   string
	Resource string
	Action   string
	Reason   string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("permission denied: user %s cannot %s %s: %s", e.UserID, e.Action, e.Resource, e.Reason)
}

func (e *PermissionError) Unwrap() error {
	return ErrForbidden
}

func NewPermissionError(userID, resource, action, reason string) *PermissionError {
	return &PermissionError{
		UserID:   userID,
		Resource: resource,
		Action:   action,
		Reason:   reason,
	}
}

// NewValidationError builds a single field error in the validator's format.
func NewValidationError(field, message string, value interface{}) *validator.ValidationError {
	return &validator.ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
		Rule:    "business_logic",
	}
}
