package scheduling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
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
	maxTitleLength       = 200
	maxIdempotencyKeyLen = 256
	maxLockAttempts      = 3
)

var errSlotMoved = errors.New("slot moved before its schedule key was locked")

type slotStore interface {
	store.SurfaceRepository
	store.TimeSlotReader
	store.Scheduler
}

type SlotService struct {
	store slotStore
	log   *slog.Logger
}

func NewSlotService(st slotStore, log *slog.Logger) *SlotService {
	if log == nil {
		log = slog.Default()
	}
	return &SlotService{store: st, log: log.With(slog.String("component", "slot_service"))}
}

type CreateSlotInput struct {
	SurfaceID        string
	Date             time.Time
	Start            domain.ClockTime
	End              domain.ClockTime
	Program          domain.ProgramType
	Title            string
	Description      string
	Organizer        domain.Contact
	ParticipantCount int
	MaxCapacity      *int

	// Priced attaches pricing at the program's default rate unless
	// HourlyRateCents overrides it. A non-nil rate implies Priced.
	Priced          bool
	HourlyRateCents *int64

	IdempotencyKey string
}

func (s *SlotService) Create(ctx context.Context, in CreateSlotInput) (_ domain.TimeSlot, err error) {
	ctx, span := tracer.Start(ctx, "SlotService.Create")
	defer func() { endSpan(span, err) }()

	slot := domain.TimeSlot{
		SurfaceID:        strings.TrimSpace(in.SurfaceID),
		Date:             domain.DateOf(in.Date),
		Start:            in.Start,
		End:              in.End,
		Program:          in.Program,
		Title:            strings.TrimSpace(in.Title),
		Description:      strings.TrimSpace(in.Description),
		Organizer:        trimContact(in.Organizer),
		ParticipantCount: in.ParticipantCount,
		MaxCapacity:      in.MaxCapacity,
		Status:           domain.SlotScheduled,
	}
	if in.Date.IsZero() {
		return domain.TimeSlot{}, validationError("date is required")
	}
	if err := validateSlot(slot); err != nil {
		return domain.TimeSlot{}, err
	}

	if in.Priced || in.HourlyRateCents != nil {
		rate := slot.Program.DefaultHourlyRateCents()
		if in.HourlyRateCents != nil {
			rate = *in.HourlyRateCents
		}
		if rate < 0 {
			return domain.TimeSlot{}, validationError("hourly_rate_cents must not be negative")
		}
		slot.Pricing = domain.NewPricing(rate, slot.DurationMinutes())
	}

	key := strings.TrimSpace(in.IdempotencyKey)
	if key != "" {
		if utf8.RuneCountInString(key) > maxIdempotencyKeyLen {
			return domain.TimeSlot{}, validationError("idempotency_key too long")
		}
		slot.ID = uuid.NewSHA1(uuid.NameSpaceOID, []byte("icetime:create_slot:"+key))
	}

	span.SetAttributes(
		attribute.String("surface_id", slot.SurfaceID),
		attribute.String("date", slot.Date.Format(domain.DateLayout)),
	)

	var out domain.TimeSlot
	err = s.store.InScheduleTransaction(ctx, []string{store.SlotKey(slot.SurfaceID, slot.Date)}, func(ctx context.Context, tx store.ScheduleTx) error {
		if _, err := usableSurface(ctx, tx, slot.SurfaceID, slot.Program, slot.ParticipantCount); err != nil {
			return err
		}
		created, err := commitNewSlot(ctx, tx, slot)
		if err != nil {
			return err
		}
		out = created
		return nil
	})
	if err != nil {
		var conflictErr *ScheduleConflictError
		if errors.As(err, &conflictErr) {
			s.log.InfoContext(ctx, "slot rejected by conflict",
				slog.String("surface_id", slot.SurfaceID),
				slog.String("date", slot.Date.Format(domain.DateLayout)),
				slog.String("start", slot.Start.String()),
				slog.String("end", slot.End.String()),
				slog.Int("conflicts", len(conflictErr.Conflicts)),
			)
		}
		return domain.TimeSlot{}, err
	}
	return out, nil
}

// commitNewSlot is the single check-and-insert path shared by direct creation
// and booking approval. The caller must hold the slot's schedule key.
func commitNewSlot(ctx context.Context, tx store.ScheduleTx, slot domain.TimeSlot) (domain.TimeSlot, error) {
	if slot.ID != uuid.Nil {
		existing, err := tx.GetSlot(ctx, slot.ID)
		switch {
		case err == nil:
			if existing.SameBooking(slot) {
				return existing, nil
			}
			return domain.TimeSlot{}, store.ErrIdempotencyConflict
		case !errors.Is(err, store.ErrNotFound):
			return domain.TimeSlot{}, err
		}
	}

	existing, err := tx.ListSlots(ctx, slot.SurfaceID, slot.Date)
	if err != nil {
		return domain.TimeSlot{}, err
	}
	if conflicts := domain.DetectConflicts(slot.Candidate(), existing); len(conflicts) > 0 {
		return domain.TimeSlot{}, &ScheduleConflictError{Conflicts: conflicts}
	}

	created, err := tx.InsertSlot(ctx, slot)
	if errors.Is(err, store.ErrConflict) {
		return domain.TimeSlot{}, storeConflict(slot)
	}
	return created, err
}

// storeConflict describes an overlap rejected by the store itself, where the
// conflicting slot is not known.
func storeConflict(slot domain.TimeSlot) error {
	return &ScheduleConflictError{Conflicts: []domain.ScheduleConflict{{
		Type:     domain.ConflictOverlap,
		Severity: domain.SeverityHigh,
		Description: fmt.Sprintf("Surface %s is already booked between %s and %s on %s.",
			slot.SurfaceID, slot.Start, slot.End, slot.Date.Format(domain.DateLayout)),
	}}}
}

// SlotPatch holds the fields to change. Nil fields are left alone.
type SlotPatch struct {
	SurfaceID        *string
	Date             *time.Time
	Start            *domain.ClockTime
	End              *domain.ClockTime
	Program          *domain.ProgramType
	Title            *string
	Description      *string
	Organizer        *domain.Contact
	ParticipantCount *int
	MaxCapacity      *int
	HourlyRateCents  *int64
}

func (p SlotPatch) reschedules() bool {
	return p.SurfaceID != nil || p.Date != nil || p.Start != nil || p.End != nil
}

func (p SlotPatch) apply(slot domain.TimeSlot) domain.TimeSlot {
	if p.SurfaceID != nil {
		slot.SurfaceID = strings.TrimSpace(*p.SurfaceID)
	}
	if p.Date != nil {
		slot.Date = domain.DateOf(*p.Date)
	}
	if p.Start != nil {
		slot.Start = *p.Start
	}
	if p.End != nil {
		slot.End = *p.End
	}
	if p.Program != nil {
		slot.Program = *p.Program
	}
	if p.Title != nil {
		slot.Title = strings.TrimSpace(*p.Title)
	}
	if p.Description != nil {
		slot.Description = strings.TrimSpace(*p.Description)
	}
	if p.Organizer != nil {
		slot.Organizer = trimContact(*p.Organizer)
	}
	if p.ParticipantCount != nil {
		slot.ParticipantCount = *p.ParticipantCount
	}
	if p.MaxCapacity != nil {
		c := *p.MaxCapacity
		slot.MaxCapacity = &c
	}
	if slot.Pricing != nil {
		pricing := *slot.Pricing
		slot.Pricing = &pricing
	}
	if p.HourlyRateCents != nil {
		if slot.Pricing == nil {
			slot.Pricing = &domain.Pricing{}
		}
		slot.Pricing.HourlyRateCents = *p.HourlyRateCents
	}
	if slot.Pricing != nil {
		slot.Pricing.TotalCostCents = domain.TotalCost(slot.Pricing.HourlyRateCents, slot.DurationMinutes())
	}
	return slot
}

func (s *SlotService) Update(ctx context.Context, id uuid.UUID, patch SlotPatch) (_ domain.TimeSlot, err error) {
	ctx, span := tracer.Start(ctx, "SlotService.Update")
	defer func() { endSpan(span, err) }()

	if id == uuid.Nil {
		return domain.TimeSlot{}, validationError("slot_id is required")
	}
	if patch.HourlyRateCents != nil && *patch.HourlyRateCents < 0 {
		return domain.TimeSlot{}, validationError("hourly_rate_cents must not be negative")
	}

	newKey := func(current domain.TimeSlot) ([]string, error) {
		next := patch.apply(current)
		return []string{store.SlotKey(next.SurfaceID, next.Date)}, nil
	}

	var out domain.TimeSlot
	err = s.withLockedSlot(ctx, id, newKey, func(ctx context.Context, tx store.ScheduleTx, current domain.TimeSlot) error {
		next := patch.apply(current)
		if err := validateSlot(next); err != nil {
			return err
		}

		moved := patch.reschedules() && (next.SurfaceID != current.SurfaceID ||
			!domain.SameDate(next.Date, current.Date) ||
			next.Start != current.Start ||
			next.End != current.End)
		if moved && current.Status.Terminal() {
			return invalidState("slot is %s and cannot be rescheduled", current.Status)
		}

		if moved || next.Program != current.Program || next.ParticipantCount != current.ParticipantCount {
			if _, err := usableSurface(ctx, tx, next.SurfaceID, next.Program, next.ParticipantCount); err != nil {
				return err
			}
		}

		if moved && next.Status.Occupies() {
			existing, err := tx.ListSlots(ctx, next.SurfaceID, next.Date)
			if err != nil {
				return err
			}
			if conflicts := domain.DetectConflicts(next.Candidate(), existing); len(conflicts) > 0 {
				return &ScheduleConflictError{Conflicts: conflicts}
			}
		}

		updated, err := tx.UpdateSlot(ctx, next)
		if errors.Is(err, store.ErrConflict) {
			return storeConflict(next)
		}
		if err != nil {
			return err
		}
		out = updated
		return nil
	})
	if err != nil {
		return domain.TimeSlot{}, err
	}
	return out, nil
}

func (s *SlotService) Delete(ctx context.Context, id uuid.UUID) (err error) {
	ctx, span := tracer.Start(ctx, "SlotService.Delete")
	defer func() { endSpan(span, err) }()

	if id == uuid.Nil {
		return validationError("slot_id is required")
	}
	return s.withLockedSlot(ctx, id, nil, func(ctx context.Context, tx store.ScheduleTx, current domain.TimeSlot) error {
		if current.Status == domain.SlotInProgress {
			return invalidState("slot is in progress and cannot be deleted; cancel or complete it first")
		}
		return tx.DeleteSlot(ctx, id)
	})
}

func (s *SlotService) TransitionStatus(ctx context.Context, id uuid.UUID, next domain.SlotStatus) (_ domain.TimeSlot, err error) {
	ctx, span := tracer.Start(ctx, "SlotService.TransitionStatus")
	defer func() { endSpan(span, err) }()

	if id == uuid.Nil {
		return domain.TimeSlot{}, validationError("slot_id is required")
	}
	if !next.Valid() {
		return domain.TimeSlot{}, validationError("unknown status")
	}

	var out domain.TimeSlot
	err = s.withLockedSlot(ctx, id, nil, func(ctx context.Context, tx store.ScheduleTx, current domain.TimeSlot) error {
		if !current.Status.CanTransitionTo(next) {
			return invalidState("slot cannot move from %s to %s", current.Status, next)
		}
		current.Status = next
		updated, err := tx.UpdateSlot(ctx, current)
		if err != nil {
			return err
		}
		out = updated
		return nil
	})
	if err != nil {
		return domain.TimeSlot{}, err
	}
	s.log.InfoContext(ctx, "slot status changed",
		slog.String("slot_id", id.String()),
		slog.String("status", string(next)),
	)
	return out, nil
}

// SetPaymentStatus stores status verbatim. The value belongs to the payment
// collaborator and is not interpreted.
func (s *SlotService) SetPaymentStatus(ctx context.Context, id uuid.UUID, status string) (_ domain.TimeSlot, err error) {
	ctx, span := tracer.Start(ctx, "SlotService.SetPaymentStatus")
	defer func() { endSpan(span, err) }()

	if id == uuid.Nil {
		return domain.TimeSlot{}, validationError("slot_id is required")
	}
	if strings.TrimSpace(status) == "" {
		return domain.TimeSlot{}, validationError("payment_status is required")
	}

	var out domain.TimeSlot
	err = s.withLockedSlot(ctx, id, nil, func(ctx context.Context, tx store.ScheduleTx, current domain.TimeSlot) error {
		if current.Pricing == nil {
			current.Pricing = &domain.Pricing{}
		}
		current.Pricing.PaymentStatus = status
		updated, err := tx.UpdateSlot(ctx, current)
		if err != nil {
			return err
		}
		out = updated
		return nil
	})
	if err != nil {
		return domain.TimeSlot{}, err
	}
	return out, nil
}

func (s *SlotService) Get(ctx context.Context, id uuid.UUID) (domain.TimeSlot, error) {
	if id == uuid.Nil {
		return domain.TimeSlot{}, validationError("slot_id is required")
	}
	return s.store.GetSlot(ctx, id)
}

// ListByDate returns the day's slots ordered by start time. An empty
// surfaceID lists every surface.
func (s *SlotService) ListByDate(ctx context.Context, surfaceID string, date time.Time) ([]domain.TimeSlot, error) {
	if date.IsZero() {
		return nil, validationError("date is required")
	}
	slots, err := s.store.ListSlotsByDate(ctx, strings.TrimSpace(surfaceID), domain.DateOf(date))
	if err != nil {
		return nil, err
	}
	sort.SliceStable(slots, func(i, j int) bool {
		a, b := slots[i], slots[j]
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		if a.SurfaceID != b.SurfaceID {
			return a.SurfaceID < b.SurfaceID
		}
		return a.ID.String() < b.ID.String()
	})
	return slots, nil
}

// withLockedSlot runs fn while holding the slot's current schedule key plus
// any keys extra derives from it. The slot is re-read under the lock; if it
// moved in between, the attempt is retried.
func (s *SlotService) withLockedSlot(
	ctx context.Context,
	id uuid.UUID,
	extra func(current domain.TimeSlot) ([]string, error),
	fn func(ctx context.Context, tx store.ScheduleTx, current domain.TimeSlot) error,
) error {
	for attempt := 0; attempt < maxLockAttempts; attempt++ {
		current, err := s.store.GetSlot(ctx, id)
		if err != nil {
			return err
		}
		key := store.SlotKey(current.SurfaceID, current.Date)
		keys := []string{key}
		if extra != nil {
			more, err := extra(current)
			if err != nil {
				return err
			}
			keys = append(keys, more...)
		}

		err = s.store.InScheduleTransaction(ctx, keys, func(ctx context.Context, tx store.ScheduleTx) error {
			fresh, err := tx.GetSlot(ctx, id)
			if err != nil {
				return err
			}
			if store.SlotKey(fresh.SurfaceID, fresh.Date) != key {
				return errSlotMoved
			}
			if extra != nil {
				again, err := extra(fresh)
				if err != nil {
					return err
				}
				if !sameKeys(again, keys[1:]) {
					return errSlotMoved
				}
			}
			return fn(ctx, tx, fresh)
		})
		if errors.Is(err, errSlotMoved) {
			s.log.DebugContext(ctx, "slot moved while locking, retrying",
				slog.String("slot_id", id.String()),
				slog.Int("attempt", attempt+1),
			)
			continue
		}
		return err
	}
	return fmt.Errorf("slot %s: %w", id, errSlotMoved)
}

func sameKeys(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func validateSlot(slot domain.TimeSlot) error {
	if slot.SurfaceID == "" {
		return validationError("surface_id is required")
	}
	if slot.Title == "" {
		return validationError("title is required")
	}
	if utf8.RuneCountInString(slot.Title) > maxTitleLength {
		return validationError("title too long")
	}
	if !slot.Program.Valid() {
		return validationError("unknown program type")
	}
	if err := validateInterval(slot.Start, slot.End); err != nil {
		return err
	}
	if slot.ParticipantCount < 0 {
		return validationError("participant_count must not be negative")
	}
	if slot.MaxCapacity != nil {
		if *slot.MaxCapacity < 1 {
			return validationError("max_capacity must be at least 1")
		}
		if slot.ParticipantCount > *slot.MaxCapacity {
			return validationError("participant_count exceeds max_capacity")
		}
	}
	if slot.Organizer.Email != "" {
		if _, err := mail.ParseAddress(slot.Organizer.Email); err != nil {
			return validationError("organizer email is invalid")
		}
	}
	return nil
}

func validateInterval(start, end domain.ClockTime) error {
	if !start.Valid() || !end.Valid() || start == domain.MinutesPerDay {
		return validationError("start and end must fall within the same day")
	}
	if end <= start {
		return validationError("end must be after start")
	}
	return nil
}

func trimContact(c domain.Contact) domain.Contact {
	return domain.Contact{
		Name:  strings.TrimSpace(c.Name),
		Email: strings.TrimSpace(c.Email),
		Phone: strings.TrimSpace(c.Phone),
	}
}
