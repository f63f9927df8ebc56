package domain

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type BookingStatus string

const (
	BookingPending  BookingStatus = "pending"
	BookingApproved BookingStatus = "approved"
	BookingRejected BookingStatus = "rejected"
)

func ParseBookingStatus(s string) (BookingStatus, error) {
	st := BookingStatus(strings.ToLower(strings.TrimSpace(s)))
	switch st {
	case BookingPending, BookingApproved, BookingRejected:
		return st, nil
	}
	return "", fmt.Errorf("unknown booking status %q", s)
}

func (s BookingStatus) Terminal() bool {
	return s == BookingApproved || s == BookingRejected
}

type Requester struct {
	Name         string `bun:"name"`
	Email        string `bun:"email"`
	Phone        string `bun:"phone"`
	Organization string `bun:"organization"`
}

type BudgetRange struct {
	MinCents int64 `json:"min_cents"`
	MaxCents int64 `json:"max_cents"`
}

// BookingRequest is a renter's expression of interest. It holds no ice until
// approved.
type BookingRequest struct {
	bun.BaseModel `bun:"table:booking_requests"`

	ID               uuid.UUID     `bun:"id,pk,type:uuid"`
	Requester        Requester     `bun:"embed:requester_"`
	Program          ProgramType   `bun:"program,notnull"`
	PreferredDates   []time.Time   `bun:"preferred_dates,type:jsonb"`
	PreferredTimes   []ClockTime   `bun:"preferred_times,type:jsonb"`
	DurationHours    float64       `bun:"duration_hours,notnull"`
	ParticipantCount int           `bun:"participant_count,notnull"`
	Recurrence       *Recurrence   `bun:"recurrence,type:jsonb"`
	Budget           *BudgetRange  `bun:"budget,type:jsonb"`
	SpecialRequests  string        `bun:"special_requests"`
	Status           BookingStatus `bun:"status,notnull"`
	RejectionReason  string        `bun:"rejection_reason"`
	ApprovedSlotIDs  []uuid.UUID   `bun:"approved_slot_ids,type:jsonb"`
	DateOverride     bool          `bun:"date_override,notnull"`
	SubmittedAt      time.Time     `bun:"submitted_at,notnull"`
	DecidedAt        *time.Time    `bun:"decided_at"`
	UpdatedAt        time.Time     `bun:"updated_at,notnull"`
}

func (r BookingRequest) DurationMinutes() int {
	return int(math.Round(r.DurationHours * 60))
}

// IsCandidate reports whether date and start match the requester's stated
// preferences. An empty preferred-time list accepts any start.
func (r BookingRequest) IsCandidate(date time.Time, start ClockTime) bool {
	dateOK := false
	for _, d := range r.PreferredDates {
		if SameDate(d, date) {
			dateOK = true
			break
		}
	}
	if !dateOK {
		return false
	}
	if len(r.PreferredTimes) == 0 {
		return true
	}
	for _, t := range r.PreferredTimes {
		if t == start {
			return true
		}
	}
	return false
}

func (r *BookingRequest) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if r.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			r.ID = id
		}
		if r.SubmittedAt.IsZero() {
			r.SubmittedAt = now
		}
		if r.UpdatedAt.IsZero() {
			r.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		r.UpdatedAt = now
	}
	return nil
}
