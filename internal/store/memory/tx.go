package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"icetime/backend/internal/domain"
	"icetime/backend/internal/store"
)

type transaction struct {
	s    *Store
	held map[string]struct{}
	// surfaces read-held by GetSurface, released when the transaction ends
	surfaces map[string]*sync.RWMutex

	// a nil slot marks a delete
	slots    map[uuid.UUID]*domain.TimeSlot
	requests map[uuid.UUID]domain.BookingRequest
}

func (s *Store) InScheduleTransaction(ctx context.Context, keys []string, fn func(ctx context.Context, tx store.ScheduleTx) error) error {
	keys = store.SortedKeys(keys)
	if err := s.locks.acquire(ctx, keys); err != nil {
		return err
	}
	defer s.locks.release(keys)

	trx := &transaction{
		s:        s,
		held:     make(map[string]struct{}, len(keys)),
		surfaces: make(map[string]*sync.RWMutex),
		slots:    make(map[uuid.UUID]*domain.TimeSlot),
		requests: make(map[uuid.UUID]domain.BookingRequest),
	}
	for _, k := range keys {
		trx.held[k] = struct{}{}
	}
	defer trx.releaseSurfaces()

	if err := fn(ctx, trx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.commit(trx)
	return nil
}

func (s *Store) commit(trx *transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, slot := range trx.slots {
		if slot == nil {
			delete(s.slots, id)
			continue
		}
		s.slots[id] = *slot
	}
	for id, req := range trx.requests {
		s.requests[id] = req
	}
}

func (t *transaction) releaseSurfaces() {
	for _, l := range t.surfaces {
		l.RUnlock()
	}
}

// GetSurface read-holds each surface once. Taking the read lock twice could
// deadlock behind a waiting SetSurfaceActive.
func (t *transaction) GetSurface(ctx context.Context, id string) (domain.RinkSurface, error) {
	if _, ok := t.surfaces[id]; !ok {
		l := t.s.surfaceLock(id)
		l.RLock()
		t.surfaces[id] = l
	}
	return t.s.GetSurface(ctx, id)
}

func (t *transaction) holds(key string) error {
	if _, ok := t.held[key]; !ok {
		return store.ErrKeyNotLocked
	}
	return nil
}

func (t *transaction) lookupSlot(id uuid.UUID) (domain.TimeSlot, bool) {
	if staged, ok := t.slots[id]; ok {
		if staged == nil {
			return domain.TimeSlot{}, false
		}
		return *staged, true
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	slot, ok := t.s.slots[id]
	return slot, ok
}

func (t *transaction) ListSlots(_ context.Context, surfaceID string, date time.Time) ([]domain.TimeSlot, error) {
	if err := t.holds(store.SlotKey(surfaceID, date)); err != nil {
		return nil, err
	}
	return t.slotsOn(surfaceID, date), nil
}

func (t *transaction) slotsOn(surfaceID string, date time.Time) []domain.TimeSlot {
	match := func(slot domain.TimeSlot) bool {
		return slot.SurfaceID == surfaceID && domain.SameDate(slot.Date, date)
	}

	var out []domain.TimeSlot
	t.s.mu.RLock()
	for id, slot := range t.s.slots {
		if _, staged := t.slots[id]; staged {
			continue
		}
		if match(slot) {
			out = append(out, cloneSlot(slot))
		}
	}
	t.s.mu.RUnlock()

	for _, staged := range t.slots {
		if staged != nil && match(*staged) {
			out = append(out, cloneSlot(*staged))
		}
	}
	sortSlots(out)
	return out
}

func (t *transaction) GetSlot(_ context.Context, id uuid.UUID) (domain.TimeSlot, error) {
	slot, ok := t.lookupSlot(id)
	if !ok {
		return domain.TimeSlot{}, store.ErrNotFound
	}
	return cloneSlot(slot), nil
}

// checkOverlap enforces at the storage layer what the database exclusion
// constraint enforces for postgres.
func (t *transaction) checkOverlap(slot domain.TimeSlot) error {
	if !slot.Status.Occupies() {
		return nil
	}
	if len(domain.DetectConflicts(slot.Candidate(), t.slotsOn(slot.SurfaceID, slot.Date))) > 0 {
		return store.ErrConflict
	}
	return nil
}

func (t *transaction) InsertSlot(_ context.Context, slot domain.TimeSlot) (domain.TimeSlot, error) {
	if err := t.holds(store.SlotKey(slot.SurfaceID, slot.Date)); err != nil {
		return domain.TimeSlot{}, err
	}
	if slot.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return domain.TimeSlot{}, err
		}
		slot.ID = id
	}
	if _, exists := t.lookupSlot(slot.ID); exists {
		return domain.TimeSlot{}, store.ErrIdempotencyConflict
	}
	slot.Date = domain.DateOf(slot.Date)
	if err := t.checkOverlap(slot); err != nil {
		return domain.TimeSlot{}, err
	}

	now := t.s.now()
	slot.CreatedAt = now
	slot.UpdatedAt = now
	stored := cloneSlot(slot)
	t.slots[slot.ID] = &stored
	return cloneSlot(slot), nil
}

func (t *transaction) UpdateSlot(_ context.Context, slot domain.TimeSlot) (domain.TimeSlot, error) {
	current, ok := t.lookupSlot(slot.ID)
	if !ok {
		return domain.TimeSlot{}, store.ErrNotFound
	}
	if err := t.holds(store.SlotKey(current.SurfaceID, current.Date)); err != nil {
		return domain.TimeSlot{}, err
	}
	if err := t.holds(store.SlotKey(slot.SurfaceID, slot.Date)); err != nil {
		return domain.TimeSlot{}, err
	}
	slot.Date = domain.DateOf(slot.Date)
	if err := t.checkOverlap(slot); err != nil {
		return domain.TimeSlot{}, err
	}

	slot.CreatedAt = current.CreatedAt
	slot.UpdatedAt = t.s.now()
	stored := cloneSlot(slot)
	t.slots[slot.ID] = &stored
	return cloneSlot(slot), nil
}

func (t *transaction) DeleteSlot(_ context.Context, id uuid.UUID) error {
	current, ok := t.lookupSlot(id)
	if !ok {
		return store.ErrNotFound
	}
	if err := t.holds(store.SlotKey(current.SurfaceID, current.Date)); err != nil {
		return err
	}
	t.slots[id] = nil
	return nil
}

func (t *transaction) GetBookingRequest(_ context.Context, id uuid.UUID) (domain.BookingRequest, error) {
	if staged, ok := t.requests[id]; ok {
		return cloneRequest(staged), nil
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	req, ok := t.s.requests[id]
	if !ok {
		return domain.BookingRequest{}, store.ErrNotFound
	}
	return cloneRequest(req), nil
}

func (t *transaction) UpdateBookingRequest(ctx context.Context, req domain.BookingRequest) (domain.BookingRequest, error) {
	if err := t.holds(store.BookingKey(req.ID)); err != nil {
		return domain.BookingRequest{}, err
	}
	current, err := t.GetBookingRequest(ctx, req.ID)
	if err != nil {
		return domain.BookingRequest{}, err
	}
	req.SubmittedAt = current.SubmittedAt
	req.UpdatedAt = t.s.now()
	t.requests[req.ID] = cloneRequest(req)
	return cloneRequest(req), nil
}
