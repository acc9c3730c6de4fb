// Package businessflow contains the core business logic and use cases for campaign workflows
package businessflow

import (
	"errors"
	"fmt"
)

// Business flow error constants
var (
	// Campaign-related errors
	ErrCampaignNotFound         = errors.New("campaign not found")
	ErrCampaignNameRequired     = errors.New("campaign name is required")
	ErrCampaignTemplateRequired = errors.New("campaign template is required")
	ErrCampaignTagRequired      = errors.New("campaign audience tag is required")
	ErrCampaignUUIDRequired     = errors.New("campaign UUID is required")
	ErrScheduleTimeNotPresent   = errors.New("schedule time is not present")
	ErrScheduleTimeInPast       = errors.New("schedule time is in the past")

	// Dispatch-related errors
	ErrEmptyAudience   = errors.New("audience resolved empty")
	ErrAbortNotAllowed = errors.New("campaign is not sending, nothing to abort")

	// Filter errors
	ErrInvalidPage     = errors.New("page must be at least 1")
	ErrInvalidPageSize = errors.New("page size must be between 1 and 100")
)

type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}
