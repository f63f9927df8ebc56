package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"icetime/backend/internal/domain"
)

type SurfaceRepository interface {
	ListSurfaces(ctx context.Context, activeOnly bool) ([]domain.RinkSurface, error)
	GetSurface(ctx context.Context, id string) (domain.RinkSurface, error)
	SetSurfaceActive(ctx context.Context, id string, active bool) (domain.RinkSurface, error)
	UpsertSurfaces(ctx context.Context, surfaces []domain.RinkSurface) error
}

// TimeSlotReader serves reads that do not take part in a scheduling decision.
// An empty surfaceID lists every surface.
type TimeSlotReader interface {
	GetSlot(ctx context.Context, id uuid.UUID) (domain.TimeSlot, error)
	ListSlotsByDate(ctx context.Context, surfaceID string, date time.Time) ([]domain.TimeSlot, error)
}

// BookingRequestRepository lists requests in submission order. An empty
// status lists all of them.
type BookingRequestRepository interface {
	CreateBookingRequest(ctx context.Context, req domain.BookingRequest) (domain.BookingRequest, error)
	GetBookingRequest(ctx context.Context, id uuid.UUID) (domain.BookingRequest, error)
	ListBookingRequests(ctx context.Context, status domain.BookingStatus) ([]domain.BookingRequest, error)
}

type Store interface {
	SurfaceRepository
	TimeSlotReader
	BookingRequestRepository
	Scheduler
}
