package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"

	"icetime/backend/internal/domain"
	"icetime/backend/internal/store"
)

const overlapConstraint = "time_slots_no_overlap"

type Repo struct {
	db *bun.DB
}

var _ store.Store = (*Repo)(nil)

func NewRepo(db *bun.DB) *Repo {
	return &Repo{db: db}
}

type scheduleTx struct {
	tx bun.Tx
}

func (r *Repo) ListSurfaces(ctx context.Context, activeOnly bool) ([]domain.RinkSurface, error) {
	var rows []domain.RinkSurface
	q := r.db.NewSelect().Model(&rows)
	if activeOnly {
		q = q.Where("is_active = TRUE")
	}
	if err := q.OrderExpr("id ASC").Scan(ctx); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *Repo) GetSurface(ctx context.Context, id string) (domain.RinkSurface, error) {
	var m domain.RinkSurface
	err := r.db.NewSelect().
		Model(&m).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return domain.RinkSurface{}, translateErr(err)
	}
	return m, nil
}

func (r *Repo) SetSurfaceActive(ctx context.Context, id string, active bool) (domain.RinkSurface, error) {
	res, err := r.db.NewUpdate().
		Model((*domain.RinkSurface)(nil)).
		Set("is_active = ?", active).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return domain.RinkSurface{}, err
	}
	if err := requireAffected(res); err != nil {
		return domain.RinkSurface{}, err
	}
	return r.GetSurface(ctx, id)
}

func (r *Repo) UpsertSurfaces(ctx context.Context, surfaces []domain.RinkSurface) error {
	if len(surfaces) == 0 {
		return nil
	}
	rows := append([]domain.RinkSurface(nil), surfaces...)
	_, err := r.db.NewInsert().
		Model(&rows).
		On("CONFLICT (id) DO UPDATE").
		Set("name = EXCLUDED.name").
		Set("surface_type = EXCLUDED.surface_type").
		Set("capacity = EXCLUDED.capacity").
		Set("suitable_programs = EXCLUDED.suitable_programs").
		Set("is_active = EXCLUDED.is_active").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

func (r *Repo) GetSlot(ctx context.Context, id uuid.UUID) (domain.TimeSlot, error) {
	return getSlot(ctx, r.db, id)
}

func (r *Repo) ListSlotsByDate(ctx context.Context, surfaceID string, date time.Time) ([]domain.TimeSlot, error) {
	return listSlots(ctx, r.db, surfaceID, date)
}

func (r *Repo) CreateBookingRequest(ctx context.Context, req domain.BookingRequest) (domain.BookingRequest, error) {
	if _, err := r.db.NewInsert().Model(&req).Exec(ctx); err != nil {
		return domain.BookingRequest{}, translateErr(err)
	}
	return req, nil
}

func (r *Repo) GetBookingRequest(ctx context.Context, id uuid.UUID) (domain.BookingRequest, error) {
	var m domain.BookingRequest
	err := r.db.NewSelect().
		Model(&m).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return domain.BookingRequest{}, translateErr(err)
	}
	return m, nil
}

func (r *Repo) ListBookingRequests(ctx context.Context, status domain.BookingStatus) ([]domain.BookingRequest, error) {
	var rows []domain.BookingRequest
	q := r.db.NewSelect().Model(&rows)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if err := q.OrderExpr("submitted_at ASC, id ASC").Scan(ctx); err != nil {
		return nil, err
	}
	return rows, nil
}

// InScheduleTransaction takes a transaction-scoped advisory lock per key,
// in sorted order, before running fn.
func (r *Repo) InScheduleTransaction(ctx context.Context, keys []string, fn func(ctx context.Context, tx store.ScheduleTx) error) error {
	keys = store.SortedKeys(keys)
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for _, k := range keys {
			if err := lockKey(ctx, tx, k); err != nil {
				return err
			}
		}
		return fn(ctx, scheduleTx{tx: tx})
	})
}

func lockKey(ctx context.Context, tx bun.Tx, key string) error {
	_, err := tx.NewRaw("SELECT pg_advisory_xact_lock(hashtext(?))", key).Exec(ctx)
	return err
}

func (t scheduleTx) GetSurface(ctx context.Context, id string) (domain.RinkSurface, error) {
	var m domain.RinkSurface
	err := t.tx.NewSelect().
		Model(&m).
		Where("id = ?", id).
		For("SHARE").
		Limit(1).
		Scan(ctx)
	if err != nil {
		return domain.RinkSurface{}, translateErr(err)
	}
	return m, nil
}

func (t scheduleTx) ListSlots(ctx context.Context, surfaceID string, date time.Time) ([]domain.TimeSlot, error) {
	return listSlots(ctx, t.tx, surfaceID, date)
}

func (t scheduleTx) GetSlot(ctx context.Context, id uuid.UUID) (domain.TimeSlot, error) {
	return getSlot(ctx, t.tx, id)
}

func (t scheduleTx) InsertSlot(ctx context.Context, slot domain.TimeSlot) (domain.TimeSlot, error) {
	slot.Date = domain.DateOf(slot.Date)
	if _, err := t.tx.NewInsert().Model(&slot).Exec(ctx); err != nil {
		return domain.TimeSlot{}, translateErr(err)
	}
	return slot, nil
}

func (t scheduleTx) UpdateSlot(ctx context.Context, slot domain.TimeSlot) (domain.TimeSlot, error) {
	slot.Date = domain.DateOf(slot.Date)
	res, err := t.tx.NewUpdate().
		Model(&slot).
		ExcludeColumn("id", "created_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return domain.TimeSlot{}, translateErr(err)
	}
	if err := requireAffected(res); err != nil {
		return domain.TimeSlot{}, err
	}
	return slot, nil
}

func (t scheduleTx) DeleteSlot(ctx context.Context, id uuid.UUID) error {
	res, err := t.tx.NewDelete().
		Model((*domain.TimeSlot)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (t scheduleTx) GetBookingRequest(ctx context.Context, id uuid.UUID) (domain.BookingRequest, error) {
	var m domain.BookingRequest
	err := t.tx.NewSelect().
		Model(&m).
		Where("id = ?", id).
		For("UPDATE").
		Limit(1).
		Scan(ctx)
	if err != nil {
		return domain.BookingRequest{}, translateErr(err)
	}
	return m, nil
}

func (t scheduleTx) UpdateBookingRequest(ctx context.Context, req domain.BookingRequest) (domain.BookingRequest, error) {
	res, err := t.tx.NewUpdate().
		Model(&req).
		ExcludeColumn("id", "submitted_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return domain.BookingRequest{}, translateErr(err)
	}
	if err := requireAffected(res); err != nil {
		return domain.BookingRequest{}, err
	}
	return req, nil
}

func getSlot(ctx context.Context, db bun.IDB, id uuid.UUID) (domain.TimeSlot, error) {
	var m domain.TimeSlot
	err := db.NewSelect().
		Model(&m).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return domain.TimeSlot{}, translateErr(err)
	}
	return m, nil
}

func listSlots(ctx context.Context, db bun.IDB, surfaceID string, date time.Time) ([]domain.TimeSlot, error) {
	var rows []domain.TimeSlot
	q := db.NewSelect().
		Model(&rows).
		Where("slot_date = ?", domain.DateOf(date).Format(domain.DateLayout))
	if surfaceID != "" {
		q = q.Where("surface_id = ?", surfaceID)
	}
	if err := q.OrderExpr("start_minute ASC, surface_id ASC, id ASC").Scan(ctx); err != nil {
		return nil, err
	}
	return rows, nil
}

func requireAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func translateErr(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "23P01" && pgErr.ConstraintName == overlapConstraint:
			return store.ErrConflict
		case pgErr.Code == "23505":
			return store.ErrIdempotencyConflict
		}
	}
	return err
}
