package scheduling

import (
	"fmt"

	"icetime/backend/internal/domain"
)

type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func validationError(msg string) error {
	return &ValidationError{msg: msg}
}

// NewValidationError lets transports report malformed payloads the same way
// the services do.
func NewValidationError(msg string) error {
	return validationError(msg)
}

// ScheduleConflictError reports every slot the candidate overlapped, ordered
// by start time. Occurrence is the 1-based occurrence of a recurring approval
// that failed, or 0.
type ScheduleConflictError struct {
	Conflicts  []domain.ScheduleConflict
	Occurrence int
}

func (e *ScheduleConflictError) Error() string {
	if len(e.Conflicts) == 0 {
		return "schedule conflict"
	}
	return e.Conflicts[0].Description
}

func (e *ScheduleConflictError) First() domain.ScheduleConflict {
	if len(e.Conflicts) == 0 {
		return domain.ScheduleConflict{}
	}
	return e.Conflicts[0]
}

type InvalidSurfaceError struct {
	SurfaceID string
	Reason    string
}

func (e *InvalidSurfaceError) Error() string {
	return fmt.Sprintf("surface %s %s", e.SurfaceID, e.Reason)
}

type InvalidStateError struct {
	msg string
}

func (e *InvalidStateError) Error() string {
	return e.msg
}

func invalidState(format string, args ...any) error {
	return &InvalidStateError{msg: fmt.Sprintf(format, args...)}
}
