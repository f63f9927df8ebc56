package scheduling

import (
	"context"
	"errors"
	"testing"
	"time"

	"icetime/backend/internal/domain"
	"icetime/backend/internal/store"
)

func seedMetricsDay(t *testing.T, env testEnv) {
	t.Helper()
	ctx := context.Background()

	morning := slotInput("R1", hm(6, 0), hm(9, 0), "Morning practice")
	morning.Priced = true
	mustCreate(t, env, morning)

	lesson := slotInput("R2", hm(10, 0), hm(11, 0), "Private lesson")
	lesson.Program = domain.ProgramLesson
	lesson.Priced = true
	mustCreate(t, env, lesson)

	cancelled := mustCreate(t, env, slotInput("R1", hm(12, 0), hm(13, 0), "Called off"))
	if _, err := env.slots.TransitionStatus(ctx, cancelled.ID, domain.SlotCancelled); err != nil {
		t.Fatalf("TransitionStatus error: %v", err)
	}
}

func TestMetrics_DailyReport(t *testing.T) {
	env := newTestEnv(t)
	seedMetricsDay(t, env)

	report, err := env.metrics.DailyReport(context.Background(), jan15.Add(15*time.Hour))
	if err != nil {
		t.Fatalf("DailyReport error: %v", err)
	}

	if !report.Date.Equal(jan15) {
		t.Fatalf("date = %s, want %s", report.Date, jan15)
	}
	want := []SurfaceUsage{
		{SurfaceID: "R1", UtilizationPercent: 13, BookedMinutes: 180},
		{SurfaceID: "R2", UtilizationPercent: 4, BookedMinutes: 60},
	}
	if len(report.Surfaces) != len(want) {
		t.Fatalf("surfaces = %+v, want %+v", report.Surfaces, want)
	}
	for i := range want {
		if report.Surfaces[i] != want[i] {
			t.Fatalf("surfaces[%d] = %+v, want %+v", i, report.Surfaces[i], want[i])
		}
	}
	if report.AggregateUtilizationPercent != 8 {
		t.Fatalf("aggregate = %d, want 8", report.AggregateUtilizationPercent)
	}
	if report.RevenueCents != 87000 {
		t.Fatalf("revenue = %d, want 87000", report.RevenueCents)
	}
	if report.SlotCount != 3 {
		t.Fatalf("slot count = %d, want 3", report.SlotCount)
	}
}

func TestMetrics_DailyReportKeepsDeactivatedSurfacesWithSlots(t *testing.T) {
	env := newTestEnv(t)
	seedMetricsDay(t, env)
	ctx := context.Background()

	if _, err := NewSurfaceRegistry(env.store).SetActive(ctx, "R2", false); err != nil {
		t.Fatalf("SetActive error: %v", err)
	}

	report, err := env.metrics.DailyReport(ctx, jan15)
	if err != nil {
		t.Fatalf("DailyReport error: %v", err)
	}
	if len(report.Surfaces) != 2 || report.Surfaces[1].SurfaceID != "R2" {
		t.Fatalf("surfaces = %+v, want R1 and R2", report.Surfaces)
	}

	// the deactivated surface drops out of the live aggregate
	rate, err := env.metrics.UtilizationRate(ctx, "", jan15)
	if err != nil {
		t.Fatalf("UtilizationRate error: %v", err)
	}
	if rate != 13 {
		t.Fatalf("aggregate over active surfaces = %d, want 13", rate)
	}
}

func TestMetrics_EmptyDay(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	report, err := env.metrics.DailyReport(ctx, jan15)
	if err != nil {
		t.Fatalf("DailyReport error: %v", err)
	}
	if report.AggregateUtilizationPercent != 0 || report.RevenueCents != 0 || report.SlotCount != 0 {
		t.Fatalf("report = %+v, want zeros", report)
	}
	for _, s := range report.Surfaces {
		if s.UtilizationPercent != 0 {
			t.Fatalf("surface %s = %d%%, want 0", s.SurfaceID, s.UtilizationPercent)
		}
	}

	revenue, err := env.metrics.DailyRevenue(ctx, jan15)
	if err != nil {
		t.Fatalf("DailyRevenue error: %v", err)
	}
	if revenue != 0 {
		t.Fatalf("revenue = %d, want 0", revenue)
	}
}

func TestMetrics_Errors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	var ve *ValidationError
	if _, err := env.metrics.DailyReport(ctx, time.Time{}); !errors.As(err, &ve) {
		t.Fatalf("DailyReport(zero) err = %v, want ValidationError", err)
	}
	if _, err := env.metrics.UtilizationRate(ctx, "R1", time.Time{}); !errors.As(err, &ve) {
		t.Fatalf("UtilizationRate(zero) err = %v, want ValidationError", err)
	}
	if _, err := env.metrics.UtilizationRate(ctx, "R9", jan15); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("UtilizationRate(R9) err = %v, want %v", err, store.ErrNotFound)
	}
}
