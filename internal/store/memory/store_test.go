package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"icetime/backend/internal/domain"
	"icetime/backend/internal/store"
)

var day = time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)

func newSlot(surface string, start, end domain.ClockTime) domain.TimeSlot {
	return domain.TimeSlot{
		SurfaceID: surface,
		Date:      day,
		Start:     start,
		End:       end,
		Program:   domain.ProgramPractice,
		Title:     "practice",
		Status:    domain.SlotScheduled,
	}
}

func TestInScheduleTransaction_CommitsOnSuccess(t *testing.T) {
	ctx := context.Background()
	s := New()

	var created domain.TimeSlot
	err := s.InScheduleTransaction(ctx, []string{store.SlotKey("R1", day)}, func(ctx context.Context, tx store.ScheduleTx) error {
		var err error
		created, err = tx.InsertSlot(ctx, newSlot("R1", 360, 450))
		return err
	})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, created.ID)
	assert.False(t, created.CreatedAt.IsZero())

	got, err := s.GetSlot(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ClockTime(360), got.Start)

	slots, err := s.ListSlotsByDate(ctx, "", day)
	require.NoError(t, err)
	assert.Len(t, slots, 1)
}

func TestInScheduleTransaction_DiscardsOnError(t *testing.T) {
	ctx := context.Background()
	s := New()
	boom := errors.New("boom")

	err := s.InScheduleTransaction(ctx, []string{store.SlotKey("R1", day)}, func(ctx context.Context, tx store.ScheduleTx) error {
		if _, err := tx.InsertSlot(ctx, newSlot("R1", 360, 450)); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	slots, err := s.ListSlotsByDate(ctx, "R1", day)
	require.NoError(t, err)
	assert.Empty(t, slots)
}

func TestInScheduleTransaction_RejectsUnlockedKeys(t *testing.T) {
	ctx := context.Background()
	s := New()

	err := s.InScheduleTransaction(ctx, []string{store.SlotKey("R1", day)}, func(ctx context.Context, tx store.ScheduleTx) error {
		_, err := tx.InsertSlot(ctx, newSlot("R2", 360, 450))
		return err
	})
	require.ErrorIs(t, err, store.ErrKeyNotLocked)

	err = s.InScheduleTransaction(ctx, nil, func(ctx context.Context, tx store.ScheduleTx) error {
		_, err := tx.ListSlots(ctx, "R1", day)
		return err
	})
	require.ErrorIs(t, err, store.ErrKeyNotLocked)
}

func TestInsertSlot_RejectsOverlapWithinTransaction(t *testing.T) {
	ctx := context.Background()
	s := New()

	err := s.InScheduleTransaction(ctx, []string{store.SlotKey("R1", day)}, func(ctx context.Context, tx store.ScheduleTx) error {
		if _, err := tx.InsertSlot(ctx, newSlot("R1", 360, 450)); err != nil {
			return err
		}
		if _, err := tx.InsertSlot(ctx, newSlot("R1", 450, 540)); err != nil {
			return err
		}
		_, err := tx.InsertSlot(ctx, newSlot("R1", 420, 480))
		return err
	})
	require.ErrorIs(t, err, store.ErrConflict)

	slots, err := s.ListSlotsByDate(ctx, "R1", day)
	require.NoError(t, err)
	assert.Empty(t, slots)
}

func TestUpdateAndDeleteSlot(t *testing.T) {
	ctx := context.Background()
	s := New()
	key := store.SlotKey("R1", day)

	var slot domain.TimeSlot
	require.NoError(t, s.InScheduleTransaction(ctx, []string{key}, func(ctx context.Context, tx store.ScheduleTx) error {
		var err error
		slot, err = tx.InsertSlot(ctx, newSlot("R1", 360, 450))
		return err
	}))

	require.NoError(t, s.InScheduleTransaction(ctx, []string{key}, func(ctx context.Context, tx store.ScheduleTx) error {
		slot.End = 480
		_, err := tx.UpdateSlot(ctx, slot)
		return err
	}))
	got, err := s.GetSlot(ctx, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ClockTime(480), got.End)

	require.NoError(t, s.InScheduleTransaction(ctx, []string{key}, func(ctx context.Context, tx store.ScheduleTx) error {
		return tx.DeleteSlot(ctx, slot.ID)
	}))
	_, err = s.GetSlot(ctx, slot.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestInScheduleTransaction_SerializesSameKey(t *testing.T) {
	ctx := context.Background()
	s := New()
	key := store.SlotKey("R1", day)

	const workers = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.InScheduleTransaction(ctx, []string{key}, func(ctx context.Context, tx store.ScheduleTx) error {
				existing, err := tx.ListSlots(ctx, "R1", day)
				if err != nil {
					return err
				}
				candidate := newSlot("R1", 600, 660)
				if len(domain.DetectConflicts(candidate.Candidate(), existing)) > 0 {
					return store.ErrConflict
				}
				_, err = tx.InsertSlot(ctx, candidate)
				return err
			})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	slots, err := s.ListSlotsByDate(ctx, "R1", day)
	require.NoError(t, err)
	assert.Len(t, slots, 1)
}

func TestInScheduleTransaction_HonoursContextWhileWaiting(t *testing.T) {
	s := New()
	key := store.SlotKey("R1", day)

	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.InScheduleTransaction(context.Background(), []string{key}, func(ctx context.Context, tx store.ScheduleTx) error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := s.InScheduleTransaction(ctx, []string{key}, func(ctx context.Context, tx store.ScheduleTx) error {
		t.Fatalf("second transaction should not run")
		return nil
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	require.NoError(t, <-done)
}

func TestBookingRequests(t *testing.T) {
	ctx := context.Background()
	s := New()

	first, err := s.CreateBookingRequest(ctx, domain.BookingRequest{Program: domain.ProgramLesson, Status: domain.BookingPending})
	require.NoError(t, err)
	second, err := s.CreateBookingRequest(ctx, domain.BookingRequest{Program: domain.ProgramParty, Status: domain.BookingPending})
	require.NoError(t, err)

	require.NoError(t, s.InScheduleTransaction(ctx, []string{store.BookingKey(second.ID)}, func(ctx context.Context, tx store.ScheduleTx) error {
		req, err := tx.GetBookingRequest(ctx, second.ID)
		if err != nil {
			return err
		}
		req.Status = domain.BookingRejected
		_, err = tx.UpdateBookingRequest(ctx, req)
		return err
	}))

	pending, err := s.ListBookingRequests(ctx, domain.BookingPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, first.ID, pending[0].ID)

	all, err := s.ListBookingRequests(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = s.GetBookingRequest(ctx, uuid.New())
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestSurfaces(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.UpsertSurfaces(ctx, []domain.RinkSurface{
		{ID: "R2", Name: "Rink 2", Type: domain.SurfaceFigureSkating, Capacity: 80, Active: true},
		{ID: "R1", Name: "Rink 1", Type: domain.SurfaceHockey, Capacity: 200, Active: true},
	}))

	_, err := s.SetSurfaceActive(ctx, "R2", false)
	require.NoError(t, err)

	active, err := s.ListSurfaces(ctx, true)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "R1", active[0].ID)

	all, err := s.ListSurfaces(ctx, false)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "R1", all[0].ID)

	_, err = s.SetSurfaceActive(ctx, "R9", true)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestGetSurface_HoldsAgainstDeactivation(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.UpsertSurfaces(ctx, []domain.RinkSurface{{ID: "R1", Type: domain.SurfaceHockey, Active: true}}))

	deactivated := make(chan struct{})
	err := s.InScheduleTransaction(ctx, []string{store.SlotKey("R1", day)}, func(ctx context.Context, tx store.ScheduleTx) error {
		surface, err := tx.GetSurface(ctx, "R1")
		require.NoError(t, err)
		require.True(t, surface.Active)

		// A second read of the same surface must not take the lock again.
		_, err = tx.GetSurface(ctx, "R1")
		require.NoError(t, err)

		go func() {
			_, _ = s.SetSurfaceActive(context.Background(), "R1", false)
			close(deactivated)
		}()
		select {
		case <-deactivated:
			t.Fatalf("surface deactivated while a transaction held it")
		case <-time.After(50 * time.Millisecond):
		}

		_, err = tx.InsertSlot(ctx, newSlot("R1", 360, 450))
		return err
	})
	require.NoError(t, err)

	select {
	case <-deactivated:
	case <-time.After(time.Second):
		t.Fatalf("deactivation still blocked after the transaction ended")
	}
	got, err := s.GetSurface(ctx, "R1")
	require.NoError(t, err)
	assert.False(t, got.Active)
}

func TestGetSurface_ReleasedOnError(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.UpsertSurfaces(ctx, []domain.RinkSurface{{ID: "R1", Type: domain.SurfaceHockey, Active: true}}))

	boom := errors.New("boom")
	err := s.InScheduleTransaction(ctx, nil, func(ctx context.Context, tx store.ScheduleTx) error {
		_, err := tx.GetSurface(ctx, "R1")
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	done := make(chan struct{})
	go func() {
		_, _ = s.SetSurfaceActive(ctx, "R1", false)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("surface still held after a failed transaction")
	}
}
