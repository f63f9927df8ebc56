package api

import (
	"errors"

	"icetime/backend/internal/service/scheduling"
	"icetime/backend/internal/store"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindInvalidState
	KindInvalidSurface
	KindConflict
	KindIdempotency
	KindNotFound
)

func (k Kind) Code() string {
	switch k {
	case KindValidation:
		return "validation_error"
	case KindInvalidState:
		return "invalid_state"
	case KindInvalidSurface:
		return "invalid_surface"
	case KindConflict:
		return "schedule_conflict"
	case KindIdempotency:
		return "idempotency_conflict"
	case KindNotFound:
		return "not_found"
	}
	return "internal"
}

type Conflict struct {
	ID          string `json:"id"`
	SlotID      string `json:"slot_id"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
}

// ErrorBody is the error half of every response envelope.
type ErrorBody struct {
	Code       string     `json:"code"`
	Message    string     `json:"message"`
	Conflicts  []Conflict `json:"conflicts,omitempty"`
	Occurrence int        `json:"occurrence,omitempty"`
}

// Classify maps a service error onto a transport-neutral kind and the body
// shown to callers. Internal errors never leak their message.
func Classify(err error) (Kind, ErrorBody) {
	var (
		conflictErr *scheduling.ScheduleConflictError
		validErr    *scheduling.ValidationError
		stateErr    *scheduling.InvalidStateError
		surfaceErr  *scheduling.InvalidSurfaceError
	)
	switch {
	case errors.As(err, &conflictErr):
		body := ErrorBody{
			Code:       KindConflict.Code(),
			Message:    conflictErr.Error(),
			Occurrence: conflictErr.Occurrence,
		}
		for _, c := range conflictErr.Conflicts {
			body.Conflicts = append(body.Conflicts, Conflict{
				ID:          c.ID.String(),
				SlotID:      c.SlotID.String(),
				Type:        string(c.Type),
				Description: c.Description,
				Severity:    string(c.Severity),
			})
		}
		return KindConflict, body
	case errors.As(err, &validErr):
		return KindValidation, ErrorBody{Code: KindValidation.Code(), Message: validErr.Error()}
	case errors.As(err, &stateErr):
		return KindInvalidState, ErrorBody{Code: KindInvalidState.Code(), Message: stateErr.Error()}
	case errors.As(err, &surfaceErr):
		return KindInvalidSurface, ErrorBody{Code: KindInvalidSurface.Code(), Message: surfaceErr.Error()}
	case errors.Is(err, store.ErrIdempotencyConflict):
		return KindIdempotency, ErrorBody{
			Code:    KindIdempotency.Code(),
			Message: "This request key was already used for a different slot.",
		}
	case errors.Is(err, store.ErrNotFound):
		return KindNotFound, ErrorBody{Code: KindNotFound.Code(), Message: "not found"}
	}
	return KindInternal, ErrorBody{Code: KindInternal.Code(), Message: "internal error"}
}
