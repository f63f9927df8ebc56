package domain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type SlotStatus string

const (
	SlotScheduled  SlotStatus = "scheduled"
	SlotInProgress SlotStatus = "in_progress"
	SlotCompleted  SlotStatus = "completed"
	SlotCancelled  SlotStatus = "cancelled"
)

func ParseSlotStatus(s string) (SlotStatus, error) {
	st := SlotStatus(strings.ToLower(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("unknown slot status %q", s)
	}
	return st, nil
}

func (s SlotStatus) Valid() bool {
	switch s {
	case SlotScheduled, SlotInProgress, SlotCompleted, SlotCancelled:
		return true
	}
	return false
}

// Occupies reports whether a slot in this status holds the ice and takes part
// in overlap checks.
func (s SlotStatus) Occupies() bool {
	return s == SlotScheduled || s == SlotInProgress
}

func (s SlotStatus) Terminal() bool {
	return s == SlotCompleted || s == SlotCancelled
}

func (s SlotStatus) CanTransitionTo(next SlotStatus) bool {
	switch s {
	case SlotScheduled:
		return next == SlotInProgress || next == SlotCancelled
	case SlotInProgress:
		return next == SlotCompleted || next == SlotCancelled
	}
	return false
}

type Contact struct {
	Name  string `bun:"name"`
	Email string `bun:"email"`
	Phone string `bun:"phone"`
}

// Pricing is stored as a JSON document. PaymentStatus belongs to the payment
// collaborator and is kept verbatim.
type Pricing struct {
	HourlyRateCents int64  `json:"hourly_rate_cents"`
	TotalCostCents  int64  `json:"total_cost_cents"`
	PaymentStatus   string `json:"payment_status,omitempty"`
}

func NewPricing(hourlyRateCents int64, minutes int) *Pricing {
	return &Pricing{
		HourlyRateCents: hourlyRateCents,
		TotalCostCents:  TotalCost(hourlyRateCents, minutes),
	}
}

// TotalCost prorates an hourly rate over minutes, rounding half up to the cent.
func TotalCost(hourlyRateCents int64, minutes int) int64 {
	if hourlyRateCents <= 0 || minutes <= 0 {
		return 0
	}
	return (hourlyRateCents*int64(minutes) + 30) / 60
}

type TimeSlot struct {
	bun.BaseModel `bun:"table:time_slots"`

	ID               uuid.UUID   `bun:"id,pk,type:uuid"`
	SurfaceID        string      `bun:"surface_id,notnull"`
	Date             time.Time   `bun:"slot_date,type:date,notnull"`
	Start            ClockTime   `bun:"start_minute,notnull"`
	End              ClockTime   `bun:"end_minute,notnull"`
	Program          ProgramType `bun:"program,notnull"`
	Title            string      `bun:"title,notnull"`
	Description      string      `bun:"description"`
	Organizer        Contact     `bun:"embed:organizer_"`
	ParticipantCount int         `bun:"participant_count,notnull"`
	MaxCapacity      *int        `bun:"max_capacity"`
	Status           SlotStatus  `bun:"status,notnull"`
	Pricing          *Pricing    `bun:"pricing,type:jsonb"`
	BookingRequestID *uuid.UUID  `bun:"booking_request_id,type:uuid"`
	CreatedAt        time.Time   `bun:"created_at,notnull"`
	UpdatedAt        time.Time   `bun:"updated_at,notnull"`
}

func (t TimeSlot) DurationMinutes() int {
	return int(t.End - t.Start)
}

func (t TimeSlot) Candidate() Candidate {
	return Candidate{
		SurfaceID: t.SurfaceID,
		Date:      t.Date,
		Start:     t.Start,
		End:       t.End,
		ExcludeID: t.ID,
	}
}

// SameBooking reports whether two slots describe the same occupation. Used to
// decide whether a replayed create is a duplicate or a key collision.
func (t TimeSlot) SameBooking(o TimeSlot) bool {
	return t.SurfaceID == o.SurfaceID &&
		SameDate(t.Date, o.Date) &&
		t.Start == o.Start &&
		t.End == o.End &&
		t.Program == o.Program &&
		t.Title == o.Title
}

func (t *TimeSlot) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if t.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			t.ID = id
		}
		if t.CreatedAt.IsZero() {
			t.CreatedAt = now
		}
		if t.UpdatedAt.IsZero() {
			t.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		t.UpdatedAt = now
	}
	return nil
}
