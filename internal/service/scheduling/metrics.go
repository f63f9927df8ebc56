package scheduling

import (
	"context"
	"strings"
	"time"

	"icetime/backend/internal/domain"
	"icetime/backend/internal/store"
)

type metricsStore interface {
	store.SurfaceRepository
	store.TimeSlotReader
}

// Metrics computes utilization and revenue over committed slots.
type Metrics struct {
	store metricsStore
}

func NewMetrics(st metricsStore) *Metrics {
	return &Metrics{store: st}
}

type SurfaceUsage struct {
	SurfaceID          string
	UtilizationPercent int
	BookedMinutes      int
}

type DailyReport struct {
	Date                        time.Time
	Surfaces                    []SurfaceUsage
	AggregateUtilizationPercent int
	RevenueCents                int64
	SlotCount                   int
}

// DailyReport covers every active surface, plus any inactive surface that
// still has slots on date.
func (m *Metrics) DailyReport(ctx context.Context, date time.Time) (_ DailyReport, err error) {
	ctx, span := tracer.Start(ctx, "Metrics.DailyReport")
	defer func() { endSpan(span, err) }()

	if date.IsZero() {
		return DailyReport{}, validationError("date is required")
	}
	date = domain.DateOf(date)

	surfaces, err := m.store.ListSurfaces(ctx, true)
	if err != nil {
		return DailyReport{}, err
	}
	slots, err := m.store.ListSlotsByDate(ctx, "", date)
	if err != nil {
		return DailyReport{}, err
	}

	ids := make([]string, 0, len(surfaces))
	listed := make(map[string]struct{}, len(surfaces))
	for _, s := range surfaces {
		ids = append(ids, s.ID)
		listed[s.ID] = struct{}{}
	}
	for _, s := range slots {
		if _, ok := listed[s.SurfaceID]; !ok {
			ids = append(ids, s.SurfaceID)
			listed[s.SurfaceID] = struct{}{}
		}
	}

	report := DailyReport{
		Date:                        date,
		Surfaces:                    make([]SurfaceUsage, 0, len(ids)),
		AggregateUtilizationPercent: domain.AggregateUtilization(slots, date, len(ids)),
		RevenueCents:                domain.DailyRevenue(slots, date),
		SlotCount:                   len(slots),
	}
	for _, id := range ids {
		report.Surfaces = append(report.Surfaces, SurfaceUsage{
			SurfaceID:          id,
			UtilizationPercent: domain.SurfaceUtilization(slots, id, date),
			BookedMinutes:      domain.BookedMinutes(slots, id, date),
		})
	}
	return report, nil
}

// UtilizationRate is the day's utilization for one surface, or the aggregate
// over active surfaces when surfaceID is empty.
func (m *Metrics) UtilizationRate(ctx context.Context, surfaceID string, date time.Time) (int, error) {
	if date.IsZero() {
		return 0, validationError("date is required")
	}
	date = domain.DateOf(date)
	surfaceID = strings.TrimSpace(surfaceID)

	slots, err := m.store.ListSlotsByDate(ctx, surfaceID, date)
	if err != nil {
		return 0, err
	}
	if surfaceID != "" {
		if _, err := m.store.GetSurface(ctx, surfaceID); err != nil {
			return 0, err
		}
		return domain.SurfaceUtilization(slots, surfaceID, date), nil
	}

	surfaces, err := m.store.ListSurfaces(ctx, true)
	if err != nil {
		return 0, err
	}
	active := make(map[string]struct{}, len(surfaces))
	for _, s := range surfaces {
		active[s.ID] = struct{}{}
	}
	onActive := slots[:0:0]
	for _, s := range slots {
		if _, ok := active[s.SurfaceID]; ok {
			onActive = append(onActive, s)
		}
	}
	return domain.AggregateUtilization(onActive, date, len(surfaces)), nil
}

func (m *Metrics) DailyRevenue(ctx context.Context, date time.Time) (int64, error) {
	if date.IsZero() {
		return 0, validationError("date is required")
	}
	slots, err := m.store.ListSlotsByDate(ctx, "", domain.DateOf(date))
	if err != nil {
		return 0, err
	}
	return domain.DailyRevenue(slots, date), nil
}
