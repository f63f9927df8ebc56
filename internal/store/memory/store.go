// Package memory is a process-local store used when no database is
// configured and by the service tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"icetime/backend/internal/domain"
	"icetime/backend/internal/store"
)

type Store struct {
	mu       sync.RWMutex
	surfaces map[string]domain.RinkSurface
	slots    map[uuid.UUID]domain.TimeSlot
	requests map[uuid.UUID]domain.BookingRequest

	locks *keyLocks
	now   func() time.Time

	// Transactions read-hold a surface while they write slots on it, and
	// activation changes write-hold it.
	surfaceMu    sync.Mutex
	surfaceLocks map[string]*sync.RWMutex
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		surfaces:     make(map[string]domain.RinkSurface),
		slots:        make(map[uuid.UUID]domain.TimeSlot),
		requests:     make(map[uuid.UUID]domain.BookingRequest),
		locks:        newKeyLocks(),
		now:          func() time.Time { return time.Now().UTC() },
		surfaceLocks: make(map[string]*sync.RWMutex),
	}
}

func (s *Store) ListSurfaces(_ context.Context, activeOnly bool) ([]domain.RinkSurface, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.RinkSurface, 0, len(s.surfaces))
	for _, surface := range s.surfaces {
		if activeOnly && !surface.Active {
			continue
		}
		out = append(out, cloneSurface(surface))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) GetSurface(_ context.Context, id string) (domain.RinkSurface, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	surface, ok := s.surfaces[id]
	if !ok {
		return domain.RinkSurface{}, store.ErrNotFound
	}
	return cloneSurface(surface), nil
}

func (s *Store) surfaceLock(id string) *sync.RWMutex {
	s.surfaceMu.Lock()
	defer s.surfaceMu.Unlock()
	l, ok := s.surfaceLocks[id]
	if !ok {
		l = new(sync.RWMutex)
		s.surfaceLocks[id] = l
	}
	return l
}

func (s *Store) SetSurfaceActive(_ context.Context, id string, active bool) (domain.RinkSurface, error) {
	l := s.surfaceLock(id)
	l.Lock()
	defer l.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	surface, ok := s.surfaces[id]
	if !ok {
		return domain.RinkSurface{}, store.ErrNotFound
	}
	surface.Active = active
	surface.UpdatedAt = s.now()
	s.surfaces[id] = surface
	return cloneSurface(surface), nil
}

func (s *Store) UpsertSurfaces(_ context.Context, surfaces []domain.RinkSurface) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for _, surface := range surfaces {
		if existing, ok := s.surfaces[surface.ID]; ok {
			surface.CreatedAt = existing.CreatedAt
		} else if surface.CreatedAt.IsZero() {
			surface.CreatedAt = now
		}
		surface.UpdatedAt = now
		s.surfaces[surface.ID] = cloneSurface(surface)
	}
	return nil
}

func (s *Store) GetSlot(_ context.Context, id uuid.UUID) (domain.TimeSlot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	slot, ok := s.slots[id]
	if !ok {
		return domain.TimeSlot{}, store.ErrNotFound
	}
	return cloneSlot(slot), nil
}

func (s *Store) ListSlotsByDate(_ context.Context, surfaceID string, date time.Time) ([]domain.TimeSlot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.TimeSlot
	for _, slot := range s.slots {
		if surfaceID != "" && slot.SurfaceID != surfaceID {
			continue
		}
		if !domain.SameDate(slot.Date, date) {
			continue
		}
		out = append(out, cloneSlot(slot))
	}
	sortSlots(out)
	return out, nil
}

func (s *Store) CreateBookingRequest(_ context.Context, req domain.BookingRequest) (domain.BookingRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if req.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return domain.BookingRequest{}, err
		}
		req.ID = id
	}
	if _, exists := s.requests[req.ID]; exists {
		return domain.BookingRequest{}, store.ErrIdempotencyConflict
	}
	now := s.now()
	if req.SubmittedAt.IsZero() {
		req.SubmittedAt = now
	}
	req.UpdatedAt = now
	s.requests[req.ID] = cloneRequest(req)
	return cloneRequest(req), nil
}

func (s *Store) GetBookingRequest(_ context.Context, id uuid.UUID) (domain.BookingRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	req, ok := s.requests[id]
	if !ok {
		return domain.BookingRequest{}, store.ErrNotFound
	}
	return cloneRequest(req), nil
}

func (s *Store) ListBookingRequests(_ context.Context, status domain.BookingStatus) ([]domain.BookingRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.BookingRequest
	for _, req := range s.requests {
		if status != "" && req.Status != status {
			continue
		}
		out = append(out, cloneRequest(req))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].SubmittedAt.Before(out[j].SubmittedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func sortSlots(slots []domain.TimeSlot) {
	sort.Slice(slots, func(i, j int) bool {
		a, b := slots[i], slots[j]
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		if a.SurfaceID != b.SurfaceID {
			return a.SurfaceID < b.SurfaceID
		}
		return a.ID.String() < b.ID.String()
	})
}
