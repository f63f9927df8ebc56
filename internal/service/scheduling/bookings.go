package scheduling

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"net/mail"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"icetime/backend/internal/domain"
	"icetime/backend/internal/store"
)

const (
	maxSpecialRequestsLength = 2000
	durationToleranceMinutes = 1
)

type bookingStore interface {
	store.SurfaceRepository
	store.BookingRequestRepository
	store.Scheduler
}

// BookingWorkflow moves booking requests from pending to approved or
// rejected. Approval materializes the request's slots through the same
// check-and-insert path as direct slot creation.
type BookingWorkflow struct {
	store bookingStore
	log   *slog.Logger
	now   func() time.Time
}

func NewBookingWorkflow(st bookingStore, log *slog.Logger) *BookingWorkflow {
	if log == nil {
		log = slog.Default()
	}
	return &BookingWorkflow{
		store: st,
		log:   log.With(slog.String("component", "booking_workflow")),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

type SubmitInput struct {
	Requester        domain.Requester
	Program          domain.ProgramType
	PreferredDates   []time.Time
	PreferredTimes   []domain.ClockTime
	DurationHours    float64
	ParticipantCount int
	Recurrence       *domain.Recurrence
	Budget           *domain.BudgetRange
	SpecialRequests  string
}

func (w *BookingWorkflow) Submit(ctx context.Context, in SubmitInput) (_ domain.BookingRequest, err error) {
	ctx, span := tracer.Start(ctx, "BookingWorkflow.Submit")
	defer func() { endSpan(span, err) }()

	req := domain.BookingRequest{
		Requester: domain.Requester{
			Name:         strings.TrimSpace(in.Requester.Name),
			Email:        strings.TrimSpace(in.Requester.Email),
			Phone:        strings.TrimSpace(in.Requester.Phone),
			Organization: strings.TrimSpace(in.Requester.Organization),
		},
		Program:          in.Program,
		DurationHours:    in.DurationHours,
		ParticipantCount: in.ParticipantCount,
		SpecialRequests:  strings.TrimSpace(in.SpecialRequests),
		Status:           domain.BookingPending,
	}

	if req.Requester.Name == "" {
		return domain.BookingRequest{}, validationError("requester name is required")
	}
	if req.Requester.Email == "" {
		return domain.BookingRequest{}, validationError("requester email is required")
	}
	if _, err := mail.ParseAddress(req.Requester.Email); err != nil {
		return domain.BookingRequest{}, validationError("requester email is invalid")
	}
	if !req.Program.Valid() {
		return domain.BookingRequest{}, validationError("unknown program type")
	}
	if math.IsNaN(req.DurationHours) || req.DurationHours <= 0 || req.DurationHours > 24 {
		return domain.BookingRequest{}, validationError("duration_hours must be greater than 0 and at most 24")
	}
	if req.ParticipantCount < 1 {
		return domain.BookingRequest{}, validationError("participant_count must be at least 1")
	}
	if utf8.RuneCountInString(req.SpecialRequests) > maxSpecialRequestsLength {
		return domain.BookingRequest{}, validationError("special_requests too long")
	}

	dates, err := normalizeDates(in.PreferredDates)
	if err != nil {
		return domain.BookingRequest{}, err
	}
	req.PreferredDates = dates

	times, err := normalizeTimes(in.PreferredTimes)
	if err != nil {
		return domain.BookingRequest{}, err
	}
	req.PreferredTimes = times

	if in.Recurrence != nil {
		rec := *in.Recurrence
		if err := rec.Validate(); err != nil {
			return domain.BookingRequest{}, validationError(err.Error())
		}
		req.Recurrence = &rec
	}
	if in.Budget != nil {
		b := *in.Budget
		if b.MinCents < 0 || b.MaxCents < 0 {
			return domain.BookingRequest{}, validationError("budget must not be negative")
		}
		if b.MaxCents < b.MinCents {
			return domain.BookingRequest{}, validationError("budget max must not be below min")
		}
		req.Budget = &b
	}

	created, err := w.store.CreateBookingRequest(ctx, req)
	if err != nil {
		return domain.BookingRequest{}, err
	}
	w.log.InfoContext(ctx, "booking request submitted",
		slog.String("booking_request_id", created.ID.String()),
		slog.String("program", string(created.Program)),
	)
	return created, nil
}

// Choice is the approver's pick of where and when a request runs. A nil
// HourlyRateCents prices the slots at the program's default rate.
type Choice struct {
	SurfaceID       string
	Date            time.Time
	Start           domain.ClockTime
	End             domain.ClockTime
	HourlyRateCents *int64
}

type ApprovalResult struct {
	Request domain.BookingRequest
	Slots   []domain.TimeSlot
}

// Approve creates one slot per occurrence of the request and marks it
// approved. Either every occurrence commits together with the status change
// or nothing does.
func (w *BookingWorkflow) Approve(ctx context.Context, id uuid.UUID, choice Choice) (_ ApprovalResult, err error) {
	ctx, span := tracer.Start(ctx, "BookingWorkflow.Approve")
	defer func() { endSpan(span, err) }()

	if id == uuid.Nil {
		return ApprovalResult{}, validationError("booking_request_id is required")
	}
	choice.SurfaceID = strings.TrimSpace(choice.SurfaceID)
	if choice.SurfaceID == "" {
		return ApprovalResult{}, validationError("surface_id is required")
	}
	if choice.Date.IsZero() {
		return ApprovalResult{}, validationError("date is required")
	}
	choice.Date = domain.DateOf(choice.Date)
	if err := validateInterval(choice.Start, choice.End); err != nil {
		return ApprovalResult{}, err
	}
	if choice.HourlyRateCents != nil && *choice.HourlyRateCents < 0 {
		return ApprovalResult{}, validationError("hourly_rate_cents must not be negative")
	}

	req, err := w.store.GetBookingRequest(ctx, id)
	if err != nil {
		return ApprovalResult{}, err
	}
	if req.Status != domain.BookingPending {
		return ApprovalResult{}, invalidState("booking request is already %s", req.Status)
	}

	chosen := int(choice.End - choice.Start)
	if diff := chosen - req.DurationMinutes(); diff > durationToleranceMinutes || diff < -durationToleranceMinutes {
		return ApprovalResult{}, validationError("chosen interval does not match the requested duration")
	}

	dates, err := domain.OccurrenceDates(choice.Date, req.Recurrence)
	if err != nil {
		return ApprovalResult{}, validationError(err.Error())
	}

	override := !req.IsCandidate(choice.Date, choice.Start)
	if override {
		w.log.WarnContext(ctx, "approver chose a date or time outside the request's preferences",
			slog.String("booking_request_id", id.String()),
			slog.String("date", choice.Date.Format(domain.DateLayout)),
			slog.String("start", choice.Start.String()),
		)
	}

	rate := req.Program.DefaultHourlyRateCents()
	if choice.HourlyRateCents != nil {
		rate = *choice.HourlyRateCents
	}

	keys := make([]string, 0, len(dates)+1)
	keys = append(keys, store.BookingKey(id))
	for _, d := range dates {
		keys = append(keys, store.SlotKey(choice.SurfaceID, d))
	}

	span.SetAttributes(
		attribute.String("booking_request_id", id.String()),
		attribute.Int("occurrences", len(dates)),
	)

	var out ApprovalResult
	err = w.store.InScheduleTransaction(ctx, keys, func(ctx context.Context, tx store.ScheduleTx) error {
		fresh, err := tx.GetBookingRequest(ctx, id)
		if err != nil {
			return err
		}
		if fresh.Status != domain.BookingPending {
			return invalidState("booking request is already %s", fresh.Status)
		}
		if _, err := usableSurface(ctx, tx, choice.SurfaceID, fresh.Program, fresh.ParticipantCount); err != nil {
			return err
		}

		slots := make([]domain.TimeSlot, 0, len(dates))
		for i, d := range dates {
			created, err := commitNewSlot(ctx, tx, slotForRequest(fresh, choice, d, rate))
			if err != nil {
				var conflictErr *ScheduleConflictError
				if errors.As(err, &conflictErr) && len(dates) > 1 {
					conflictErr.Occurrence = i + 1
				}
				return err
			}
			slots = append(slots, created)
		}

		decided := w.now()
		fresh.Status = domain.BookingApproved
		fresh.DateOverride = override
		fresh.DecidedAt = &decided
		fresh.ApprovedSlotIDs = make([]uuid.UUID, 0, len(slots))
		for _, s := range slots {
			fresh.ApprovedSlotIDs = append(fresh.ApprovedSlotIDs, s.ID)
		}

		updated, err := tx.UpdateBookingRequest(ctx, fresh)
		if err != nil {
			return err
		}
		out = ApprovalResult{Request: updated, Slots: slots}
		return nil
	})
	if err != nil {
		var conflictErr *ScheduleConflictError
		if errors.As(err, &conflictErr) {
			w.log.InfoContext(ctx, "booking approval rejected by conflict",
				slog.String("booking_request_id", id.String()),
				slog.Int("occurrence", conflictErr.Occurrence),
			)
		}
		return ApprovalResult{}, err
	}

	w.log.InfoContext(ctx, "booking request approved",
		slog.String("booking_request_id", id.String()),
		slog.String("surface_id", choice.SurfaceID),
		slog.Int("slots", len(out.Slots)),
		slog.Bool("date_override", override),
	)
	return out, nil
}

func slotForRequest(req domain.BookingRequest, choice Choice, date time.Time, rate int64) domain.TimeSlot {
	reqID := req.ID
	slot := domain.TimeSlot{
		SurfaceID:   choice.SurfaceID,
		Date:        date,
		Start:       choice.Start,
		End:         choice.End,
		Program:     req.Program,
		Title:       bookingTitle(req),
		Description: req.SpecialRequests,
		Organizer: domain.Contact{
			Name:  req.Requester.Name,
			Email: req.Requester.Email,
			Phone: req.Requester.Phone,
		},
		ParticipantCount: req.ParticipantCount,
		Status:           domain.SlotScheduled,
		BookingRequestID: &reqID,
	}
	slot.Pricing = domain.NewPricing(rate, slot.DurationMinutes())
	return slot
}

func bookingTitle(req domain.BookingRequest) string {
	who := req.Requester.Organization
	if who == "" {
		who = req.Requester.Name
	}
	return truncateRunes(who+" - "+req.Program.Label(), maxTitleLength)
}

// truncateRunes cuts s to at most n runes without splitting a character.
func truncateRunes(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

func (w *BookingWorkflow) Reject(ctx context.Context, id uuid.UUID, reason string) (_ domain.BookingRequest, err error) {
	ctx, span := tracer.Start(ctx, "BookingWorkflow.Reject")
	defer func() { endSpan(span, err) }()

	if id == uuid.Nil {
		return domain.BookingRequest{}, validationError("booking_request_id is required")
	}
	reason = strings.TrimSpace(reason)
	if utf8.RuneCountInString(reason) > maxSpecialRequestsLength {
		return domain.BookingRequest{}, validationError("reason too long")
	}

	var out domain.BookingRequest
	err = w.store.InScheduleTransaction(ctx, []string{store.BookingKey(id)}, func(ctx context.Context, tx store.ScheduleTx) error {
		req, err := tx.GetBookingRequest(ctx, id)
		if err != nil {
			return err
		}
		if req.Status != domain.BookingPending {
			return invalidState("booking request is already %s", req.Status)
		}
		decided := w.now()
		req.Status = domain.BookingRejected
		req.RejectionReason = reason
		req.DecidedAt = &decided
		updated, err := tx.UpdateBookingRequest(ctx, req)
		if err != nil {
			return err
		}
		out = updated
		return nil
	})
	if err != nil {
		return domain.BookingRequest{}, err
	}
	w.log.InfoContext(ctx, "booking request rejected", slog.String("booking_request_id", id.String()))
	return out, nil
}

func (w *BookingWorkflow) Get(ctx context.Context, id uuid.UUID) (domain.BookingRequest, error) {
	if id == uuid.Nil {
		return domain.BookingRequest{}, validationError("booking_request_id is required")
	}
	return w.store.GetBookingRequest(ctx, id)
}

// List returns requests in submission order. An empty status lists all.
func (w *BookingWorkflow) List(ctx context.Context, status domain.BookingStatus) ([]domain.BookingRequest, error) {
	if status != "" {
		if _, err := domain.ParseBookingStatus(string(status)); err != nil {
			return nil, validationError("unknown booking status")
		}
	}
	return w.store.ListBookingRequests(ctx, status)
}

func normalizeDates(in []time.Time) ([]time.Time, error) {
	if len(in) == 0 {
		return nil, validationError("at least one preferred date is required")
	}
	seen := make(map[time.Time]struct{}, len(in))
	out := make([]time.Time, 0, len(in))
	for _, d := range in {
		if d.IsZero() {
			return nil, validationError("preferred dates must not be empty")
		}
		day := domain.DateOf(d)
		if _, ok := seen[day]; ok {
			continue
		}
		seen[day] = struct{}{}
		out = append(out, day)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}

func normalizeTimes(in []domain.ClockTime) ([]domain.ClockTime, error) {
	seen := make(map[domain.ClockTime]struct{}, len(in))
	out := make([]domain.ClockTime, 0, len(in))
	for _, t := range in {
		if !t.Valid() || t == domain.MinutesPerDay {
			return nil, validationError("preferred times must fall within the day")
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}
