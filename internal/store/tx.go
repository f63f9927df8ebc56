package store

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"icetime/backend/internal/domain"
)

// Scheduler runs fn with exclusive hold of every key in keys. Two
// transactions sharing a key never interleave, so a conflict check and the
// write that follows it see the same schedule. Keys are acquired in sorted
// order. Writes made through tx are applied only if fn returns nil.
type Scheduler interface {
	InScheduleTransaction(ctx context.Context, keys []string, fn func(ctx context.Context, tx ScheduleTx) error) error
}

// ScheduleTx must only touch the (surface, date) pairs and booking requests
// whose keys were passed to InScheduleTransaction.
type ScheduleTx interface {
	// GetSurface holds the surface against activation changes until the
	// transaction ends.
	GetSurface(ctx context.Context, id string) (domain.RinkSurface, error)

	ListSlots(ctx context.Context, surfaceID string, date time.Time) ([]domain.TimeSlot, error)
	GetSlot(ctx context.Context, id uuid.UUID) (domain.TimeSlot, error)
	InsertSlot(ctx context.Context, slot domain.TimeSlot) (domain.TimeSlot, error)
	UpdateSlot(ctx context.Context, slot domain.TimeSlot) (domain.TimeSlot, error)
	DeleteSlot(ctx context.Context, id uuid.UUID) error

	GetBookingRequest(ctx context.Context, id uuid.UUID) (domain.BookingRequest, error)
	UpdateBookingRequest(ctx context.Context, req domain.BookingRequest) (domain.BookingRequest, error)
}

func SlotKey(surfaceID string, date time.Time) string {
	return "slot:" + surfaceID + ":" + domain.DateOf(date).Format(domain.DateLayout)
}

func BookingKey(id uuid.UUID) string {
	return "booking:" + id.String()
}

// SortedKeys returns keys sorted with duplicates removed.
func SortedKeys(keys []string) []string {
	out := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
