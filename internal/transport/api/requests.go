// Package api holds the wire shapes shared by the HTTP and gRPC transports and
// the conversions between them and the scheduling services.
package api

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"icetime/backend/internal/domain"
	"icetime/backend/internal/service/scheduling"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("date", func(fl validator.FieldLevel) bool {
		_, err := domain.ParseDate(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("clock", func(fl validator.FieldLevel) bool {
		_, err := domain.ParseClockTime(fl.Field().String())
		return err == nil
	})
	return v
}

// Validate checks a request's struct tags and reports the first failing field
// as a validation error.
func Validate(req any) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	if fieldErrs, ok := err.(validator.ValidationErrors); ok && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return scheduling.NewValidationError(fieldMessage(fe))
	}
	return scheduling.NewValidationError(err.Error())
}

func fieldMessage(fe validator.FieldError) string {
	name := fe.Field()
	switch fe.Tag() {
	case "required":
		return name + " is required"
	case "email":
		return name + " must be an email address"
	case "date":
		return name + " must be a date (YYYY-MM-DD)"
	case "clock":
		return name + " must be a time (HH:MM)"
	case "uuid":
		return name + " must be a UUID"
	case "max":
		return fmt.Sprintf("%s must be at most %s", name, fe.Param())
	case "min", "gte", "gt":
		return fmt.Sprintf("%s must be at least %s", name, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", name, fe.Param())
	}
	return name + " is invalid"
}

type ContactBody struct {
	Name  string `json:"name" validate:"max=200"`
	Email string `json:"email" validate:"omitempty,email"`
	Phone string `json:"phone" validate:"max=50"`
}

func (c ContactBody) toDomain() domain.Contact {
	return domain.Contact{Name: c.Name, Email: c.Email, Phone: c.Phone}
}

type CreateSlotRequest struct {
	SurfaceID        string      `json:"surface_id" validate:"required"`
	Date             string      `json:"date" validate:"required,date"`
	StartTime        string      `json:"start_time" validate:"required,clock"`
	EndTime          string      `json:"end_time" validate:"required,clock"`
	Program          string      `json:"program" validate:"required"`
	Title            string      `json:"title" validate:"required,max=200"`
	Description      string      `json:"description" validate:"max=2000"`
	Organizer        ContactBody `json:"organizer"`
	ParticipantCount int         `json:"participant_count" validate:"gte=0"`
	MaxCapacity      *int        `json:"max_capacity" validate:"omitempty,gte=0"`
	Priced           bool        `json:"priced"`
	HourlyRateCents  *int64      `json:"hourly_rate_cents" validate:"omitempty,gte=0"`
	IdempotencyKey   string      `json:"idempotency_key" validate:"max=200"`
}

// Input converts a validated request. idemKey, when set, wins over the body's
// idempotency_key.
func (r CreateSlotRequest) Input(idemKey string) (scheduling.CreateSlotInput, error) {
	if err := Validate(r); err != nil {
		return scheduling.CreateSlotInput{}, err
	}
	program, err := domain.ParseProgramType(r.Program)
	if err != nil {
		return scheduling.CreateSlotInput{}, scheduling.NewValidationError(err.Error())
	}
	date, _ := domain.ParseDate(r.Date)
	start, _ := domain.ParseClockTime(r.StartTime)
	end, _ := domain.ParseClockTime(r.EndTime)
	if strings.TrimSpace(idemKey) == "" {
		idemKey = r.IdempotencyKey
	}
	return scheduling.CreateSlotInput{
		SurfaceID:        r.SurfaceID,
		Date:             date,
		Start:            start,
		End:              end,
		Program:          program,
		Title:            r.Title,
		Description:      r.Description,
		Organizer:        r.Organizer.toDomain(),
		ParticipantCount: r.ParticipantCount,
		MaxCapacity:      r.MaxCapacity,
		Priced:           r.Priced,
		HourlyRateCents:  r.HourlyRateCents,
		IdempotencyKey:   strings.TrimSpace(idemKey),
	}, nil
}

type UpdateSlotRequest struct {
	SurfaceID        *string      `json:"surface_id" validate:"omitempty,min=1"`
	Date             *string      `json:"date" validate:"omitempty,date"`
	StartTime        *string      `json:"start_time" validate:"omitempty,clock"`
	EndTime          *string      `json:"end_time" validate:"omitempty,clock"`
	Program          *string      `json:"program"`
	Title            *string      `json:"title" validate:"omitempty,max=200"`
	Description      *string      `json:"description" validate:"omitempty,max=2000"`
	Organizer        *ContactBody `json:"organizer"`
	ParticipantCount *int         `json:"participant_count" validate:"omitempty,gte=0"`
	MaxCapacity      *int         `json:"max_capacity" validate:"omitempty,gte=0"`
	HourlyRateCents  *int64       `json:"hourly_rate_cents" validate:"omitempty,gte=0"`
}

func (r UpdateSlotRequest) Patch() (scheduling.SlotPatch, error) {
	if err := Validate(r); err != nil {
		return scheduling.SlotPatch{}, err
	}
	p := scheduling.SlotPatch{
		SurfaceID:        r.SurfaceID,
		Title:            r.Title,
		Description:      r.Description,
		ParticipantCount: r.ParticipantCount,
		MaxCapacity:      r.MaxCapacity,
		HourlyRateCents:  r.HourlyRateCents,
	}
	if r.Date != nil {
		d, _ := domain.ParseDate(*r.Date)
		p.Date = &d
	}
	if r.StartTime != nil {
		c, _ := domain.ParseClockTime(*r.StartTime)
		p.Start = &c
	}
	if r.EndTime != nil {
		c, _ := domain.ParseClockTime(*r.EndTime)
		p.End = &c
	}
	if r.Program != nil {
		program, err := domain.ParseProgramType(*r.Program)
		if err != nil {
			return scheduling.SlotPatch{}, scheduling.NewValidationError(err.Error())
		}
		p.Program = &program
	}
	if r.Organizer != nil {
		c := r.Organizer.toDomain()
		p.Organizer = &c
	}
	return p, nil
}

type TransitionRequest struct {
	Status string `json:"status" validate:"required,oneof=scheduled in_progress completed cancelled"`
}

func (r TransitionRequest) Next() (domain.SlotStatus, error) {
	if err := Validate(r); err != nil {
		return "", err
	}
	return domain.SlotStatus(r.Status), nil
}

type PaymentStatusRequest struct {
	PaymentStatus string `json:"payment_status" validate:"required,max=50"`
}

type SurfaceActiveRequest struct {
	Active *bool `json:"active" validate:"required"`
}

type RecurrenceBody struct {
	Frequency string `json:"frequency" validate:"required,oneof=weekly biweekly monthly"`
	Count     int    `json:"count" validate:"required,min=1,max=52"`
}

type BudgetBody struct {
	MinCents int64 `json:"min_cents" validate:"gte=0"`
	MaxCents int64 `json:"max_cents" validate:"gte=0"`
}

type SubmitBookingRequest struct {
	Requester struct {
		Name         string `json:"name" validate:"required,max=200"`
		Email        string `json:"email" validate:"required,email"`
		Phone        string `json:"phone" validate:"max=50"`
		Organization string `json:"organization" validate:"max=200"`
	} `json:"requester"`
	Program          string          `json:"program" validate:"required"`
	PreferredDates   []string        `json:"preferred_dates" validate:"required,min=1,dive,date"`
	PreferredTimes   []string        `json:"preferred_times" validate:"dive,clock"`
	DurationHours    float64         `json:"duration_hours" validate:"gt=0,max=24"`
	ParticipantCount int             `json:"participant_count" validate:"min=1"`
	Recurrence       *RecurrenceBody `json:"recurrence"`
	Budget           *BudgetBody     `json:"budget"`
	SpecialRequests  string          `json:"special_requests" validate:"max=2000"`
}

func (r SubmitBookingRequest) Input() (scheduling.SubmitInput, error) {
	if err := Validate(r); err != nil {
		return scheduling.SubmitInput{}, err
	}
	program, err := domain.ParseProgramType(r.Program)
	if err != nil {
		return scheduling.SubmitInput{}, scheduling.NewValidationError(err.Error())
	}
	in := scheduling.SubmitInput{
		Requester: domain.Requester{
			Name:         r.Requester.Name,
			Email:        r.Requester.Email,
			Phone:        r.Requester.Phone,
			Organization: r.Requester.Organization,
		},
		Program:          program,
		DurationHours:    r.DurationHours,
		ParticipantCount: r.ParticipantCount,
		SpecialRequests:  r.SpecialRequests,
	}
	for _, s := range r.PreferredDates {
		d, _ := domain.ParseDate(s)
		in.PreferredDates = append(in.PreferredDates, d)
	}
	for _, s := range r.PreferredTimes {
		c, _ := domain.ParseClockTime(s)
		in.PreferredTimes = append(in.PreferredTimes, c)
	}
	if r.Recurrence != nil {
		in.Recurrence = &domain.Recurrence{
			Frequency: domain.RecurrenceFrequency(r.Recurrence.Frequency),
			Count:     r.Recurrence.Count,
		}
	}
	if r.Budget != nil {
		in.Budget = &domain.BudgetRange{MinCents: r.Budget.MinCents, MaxCents: r.Budget.MaxCents}
	}
	return in, nil
}

type ApproveBookingRequest struct {
	SurfaceID       string `json:"surface_id" validate:"required"`
	Date            string `json:"date" validate:"required,date"`
	StartTime       string `json:"start_time" validate:"required,clock"`
	EndTime         string `json:"end_time" validate:"required,clock"`
	HourlyRateCents *int64 `json:"hourly_rate_cents" validate:"omitempty,gte=0"`
}

func (r ApproveBookingRequest) Choice() (scheduling.Choice, error) {
	if err := Validate(r); err != nil {
		return scheduling.Choice{}, err
	}
	date, _ := domain.ParseDate(r.Date)
	start, _ := domain.ParseClockTime(r.StartTime)
	end, _ := domain.ParseClockTime(r.EndTime)
	return scheduling.Choice{
		SurfaceID:       r.SurfaceID,
		Date:            date,
		Start:           start,
		End:             end,
		HourlyRateCents: r.HourlyRateCents,
	}, nil
}

type RejectBookingRequest struct {
	Reason string `json:"reason" validate:"max=2000"`
}

// ParseID parses a path or message identifier.
func ParseID(name, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, scheduling.NewValidationError(name + " must be a UUID")
	}
	return id, nil
}

// ParseDay parses a YYYY-MM-DD query value.
func ParseDay(name, raw string) (time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return time.Time{}, scheduling.NewValidationError(name + " is required")
	}
	d, err := domain.ParseDate(raw)
	if err != nil {
		return time.Time{}, scheduling.NewValidationError(name + " must be a date (YYYY-MM-DD)")
	}
	return d, nil
}
