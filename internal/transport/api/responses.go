package api

import (
	"time"

	"icetime/backend/internal/domain"
	"icetime/backend/internal/service/scheduling"
)

type Contact struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

type Pricing struct {
	HourlyRateCents int64  `json:"hourly_rate_cents"`
	TotalCostCents  int64  `json:"total_cost_cents"`
	PaymentStatus   string `json:"payment_status,omitempty"`
}

type Slot struct {
	ID               string    `json:"id"`
	SurfaceID        string    `json:"surface_id"`
	Date             string    `json:"date"`
	StartTime        string    `json:"start_time"`
	EndTime          string    `json:"end_time"`
	Program          string    `json:"program"`
	Title            string    `json:"title"`
	Description      string    `json:"description,omitempty"`
	Organizer        Contact   `json:"organizer"`
	ParticipantCount int       `json:"participant_count"`
	MaxCapacity      *int      `json:"max_capacity,omitempty"`
	Status           string    `json:"status"`
	Pricing          *Pricing  `json:"pricing,omitempty"`
	BookingRequestID string    `json:"booking_request_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func SlotFrom(s domain.TimeSlot) Slot {
	out := Slot{
		ID:               s.ID.String(),
		SurfaceID:        s.SurfaceID,
		Date:             s.Date.Format(domain.DateLayout),
		StartTime:        s.Start.String(),
		EndTime:          s.End.String(),
		Program:          string(s.Program),
		Title:            s.Title,
		Description:      s.Description,
		Organizer:        Contact{Name: s.Organizer.Name, Email: s.Organizer.Email, Phone: s.Organizer.Phone},
		ParticipantCount: s.ParticipantCount,
		MaxCapacity:      s.MaxCapacity,
		Status:           string(s.Status),
		CreatedAt:        s.CreatedAt,
		UpdatedAt:        s.UpdatedAt,
	}
	if s.Pricing != nil {
		out.Pricing = &Pricing{
			HourlyRateCents: s.Pricing.HourlyRateCents,
			TotalCostCents:  s.Pricing.TotalCostCents,
			PaymentStatus:   s.Pricing.PaymentStatus,
		}
	}
	if s.BookingRequestID != nil {
		out.BookingRequestID = s.BookingRequestID.String()
	}
	return out
}

func SlotsFrom(slots []domain.TimeSlot) []Slot {
	out := make([]Slot, 0, len(slots))
	for _, s := range slots {
		out = append(out, SlotFrom(s))
	}
	return out
}

type Surface struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Type             string    `json:"type"`
	Capacity         int       `json:"capacity"`
	SuitablePrograms []string  `json:"suitable_programs"`
	Active           bool      `json:"is_active"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func SurfaceFrom(s domain.RinkSurface) Surface {
	programs := make([]string, 0, len(s.SuitablePrograms))
	for _, p := range s.SuitablePrograms {
		programs = append(programs, string(p))
	}
	return Surface{
		ID:               s.ID,
		Name:             s.Name,
		Type:             string(s.Type),
		Capacity:         s.Capacity,
		SuitablePrograms: programs,
		Active:           s.Active,
		CreatedAt:        s.CreatedAt,
		UpdatedAt:        s.UpdatedAt,
	}
}

func SurfacesFrom(surfaces []domain.RinkSurface) []Surface {
	out := make([]Surface, 0, len(surfaces))
	for _, s := range surfaces {
		out = append(out, SurfaceFrom(s))
	}
	return out
}

type Requester struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	Phone        string `json:"phone,omitempty"`
	Organization string `json:"organization,omitempty"`
}

type Recurrence struct {
	Frequency string `json:"frequency"`
	Count     int    `json:"count"`
}

type Budget struct {
	MinCents int64 `json:"min_cents"`
	MaxCents int64 `json:"max_cents"`
}

type BookingRequest struct {
	ID               string      `json:"id"`
	Requester        Requester   `json:"requester"`
	Program          string      `json:"program"`
	PreferredDates   []string    `json:"preferred_dates"`
	PreferredTimes   []string    `json:"preferred_times"`
	DurationHours    float64     `json:"duration_hours"`
	ParticipantCount int         `json:"participant_count"`
	Recurrence       *Recurrence `json:"recurrence,omitempty"`
	Budget           *Budget     `json:"budget,omitempty"`
	SpecialRequests  string      `json:"special_requests,omitempty"`
	Status           string      `json:"status"`
	RejectionReason  string      `json:"rejection_reason,omitempty"`
	ApprovedSlotIDs  []string    `json:"approved_slot_ids,omitempty"`
	DateOverride     bool        `json:"date_override"`
	SubmittedAt      time.Time   `json:"submitted_at"`
	DecidedAt        *time.Time  `json:"decided_at,omitempty"`
}

func BookingRequestFrom(r domain.BookingRequest) BookingRequest {
	out := BookingRequest{
		ID: r.ID.String(),
		Requester: Requester{
			Name:         r.Requester.Name,
			Email:        r.Requester.Email,
			Phone:        r.Requester.Phone,
			Organization: r.Requester.Organization,
		},
		Program:          string(r.Program),
		PreferredDates:   make([]string, 0, len(r.PreferredDates)),
		PreferredTimes:   make([]string, 0, len(r.PreferredTimes)),
		DurationHours:    r.DurationHours,
		ParticipantCount: r.ParticipantCount,
		SpecialRequests:  r.SpecialRequests,
		Status:           string(r.Status),
		RejectionReason:  r.RejectionReason,
		DateOverride:     r.DateOverride,
		SubmittedAt:      r.SubmittedAt,
		DecidedAt:        r.DecidedAt,
	}
	for _, d := range r.PreferredDates {
		out.PreferredDates = append(out.PreferredDates, d.Format(domain.DateLayout))
	}
	for _, t := range r.PreferredTimes {
		out.PreferredTimes = append(out.PreferredTimes, t.String())
	}
	if r.Recurrence != nil {
		out.Recurrence = &Recurrence{Frequency: string(r.Recurrence.Frequency), Count: r.Recurrence.Count}
	}
	if r.Budget != nil {
		out.Budget = &Budget{MinCents: r.Budget.MinCents, MaxCents: r.Budget.MaxCents}
	}
	for _, id := range r.ApprovedSlotIDs {
		out.ApprovedSlotIDs = append(out.ApprovedSlotIDs, id.String())
	}
	return out
}

func BookingRequestsFrom(reqs []domain.BookingRequest) []BookingRequest {
	out := make([]BookingRequest, 0, len(reqs))
	for _, r := range reqs {
		out = append(out, BookingRequestFrom(r))
	}
	return out
}

type Approval struct {
	Request BookingRequest `json:"request"`
	Slots   []Slot         `json:"slots"`
}

func ApprovalFrom(res scheduling.ApprovalResult) Approval {
	return Approval{Request: BookingRequestFrom(res.Request), Slots: SlotsFrom(res.Slots)}
}

type SurfaceUsage struct {
	SurfaceID          string `json:"surface_id"`
	UtilizationPercent int    `json:"utilization_percent"`
	BookedMinutes      int    `json:"booked_minutes"`
}

type DailyReport struct {
	Date                        string         `json:"date"`
	Surfaces                    []SurfaceUsage `json:"surfaces"`
	AggregateUtilizationPercent int            `json:"aggregate_utilization_percent"`
	RevenueCents                int64          `json:"revenue_cents"`
	SlotCount                   int            `json:"slot_count"`
}

func DailyReportFrom(r scheduling.DailyReport) DailyReport {
	out := DailyReport{
		Date:                        r.Date.Format(domain.DateLayout),
		Surfaces:                    make([]SurfaceUsage, 0, len(r.Surfaces)),
		AggregateUtilizationPercent: r.AggregateUtilizationPercent,
		RevenueCents:                r.RevenueCents,
		SlotCount:                   r.SlotCount,
	}
	for _, s := range r.Surfaces {
		out.Surfaces = append(out.Surfaces, SurfaceUsage(s))
	}
	return out
}

type Utilization struct {
	SurfaceID          string `json:"surface_id,omitempty"`
	Date               string `json:"date"`
	UtilizationPercent int    `json:"utilization_percent"`
}

type Revenue struct {
	Date         string `json:"date"`
	RevenueCents int64  `json:"revenue_cents"`
}
