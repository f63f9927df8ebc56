package api

import (
	"context"
	"time"

	"github.com/google/uuid"

	"icetime/backend/internal/domain"
	"icetime/backend/internal/service/scheduling"
)

// The interfaces below are the slices of the scheduling services the
// transports call.

type SlotService interface {
	Create(ctx context.Context, in scheduling.CreateSlotInput) (domain.TimeSlot, error)
	Update(ctx context.Context, id uuid.UUID, patch scheduling.SlotPatch) (domain.TimeSlot, error)
	Delete(ctx context.Context, id uuid.UUID) error
	TransitionStatus(ctx context.Context, id uuid.UUID, next domain.SlotStatus) (domain.TimeSlot, error)
	SetPaymentStatus(ctx context.Context, id uuid.UUID, status string) (domain.TimeSlot, error)
	Get(ctx context.Context, id uuid.UUID) (domain.TimeSlot, error)
	ListByDate(ctx context.Context, surfaceID string, date time.Time) ([]domain.TimeSlot, error)
}

type BookingService interface {
	Submit(ctx context.Context, in scheduling.SubmitInput) (domain.BookingRequest, error)
	Approve(ctx context.Context, id uuid.UUID, choice scheduling.Choice) (scheduling.ApprovalResult, error)
	Reject(ctx context.Context, id uuid.UUID, reason string) (domain.BookingRequest, error)
	Get(ctx context.Context, id uuid.UUID) (domain.BookingRequest, error)
	List(ctx context.Context, status domain.BookingStatus) ([]domain.BookingRequest, error)
}

type SurfaceService interface {
	List(ctx context.Context, activeOnly bool) ([]domain.RinkSurface, error)
	Get(ctx context.Context, id string) (domain.RinkSurface, error)
	SetActive(ctx context.Context, id string, active bool) (domain.RinkSurface, error)
}

type MetricsService interface {
	DailyReport(ctx context.Context, date time.Time) (scheduling.DailyReport, error)
	UtilizationRate(ctx context.Context, surfaceID string, date time.Time) (int, error)
	DailyRevenue(ctx context.Context, date time.Time) (int64, error)
}

type Services struct {
	Slots    SlotService
	Bookings BookingService
	Surfaces SurfaceService
	Metrics  MetricsService
}
