package scheduling

import (
	"context"
	"errors"
	"testing"

	"icetime/backend/internal/domain"
	"icetime/backend/internal/store"
	"icetime/backend/internal/store/memory"
)

func TestSurfaceRegistry_SeedValidation(t *testing.T) {
	tests := []struct {
		name     string
		surfaces []domain.RinkSurface
	}{
		{name: "blank id", surfaces: []domain.RinkSurface{{ID: "  ", Type: domain.SurfaceHockey}}},
		{name: "duplicate id", surfaces: []domain.RinkSurface{
			{ID: "R1", Type: domain.SurfaceHockey},
			{ID: " R1", Type: domain.SurfaceHockey},
		}},
		{name: "unknown type", surfaces: []domain.RinkSurface{{ID: "R1", Type: "curling"}}},
		{name: "negative capacity", surfaces: []domain.RinkSurface{{ID: "R1", Type: domain.SurfaceHockey, Capacity: -1}}},
		{name: "unknown program", surfaces: []domain.RinkSurface{{
			ID: "R1", Type: domain.SurfaceHockey, SuitablePrograms: []domain.ProgramType{"broomball"},
		}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := memory.New()
			err := NewSurfaceRegistry(st).Seed(context.Background(), tt.surfaces)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("err = %v, want ValidationError", err)
			}
			listed, _ := st.ListSurfaces(context.Background(), false)
			if len(listed) != 0 {
				t.Fatalf("seeded %d surfaces after a validation error", len(listed))
			}
		})
	}
}

func TestSurfaceRegistry_SeedDefaultsNameAndKeepsCreation(t *testing.T) {
	ctx := context.Background()
	reg := NewSurfaceRegistry(memory.New())

	if err := reg.Seed(ctx, []domain.RinkSurface{{ID: " R1 ", Type: domain.SurfaceHockey, Active: true}}); err != nil {
		t.Fatalf("Seed error: %v", err)
	}
	first, err := reg.Get(ctx, "R1")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if first.Name != "R1" {
		t.Fatalf("name = %q, want R1", first.Name)
	}

	if err := reg.Seed(ctx, []domain.RinkSurface{{ID: "R1", Name: "Main Rink", Type: domain.SurfaceHockey, Active: true}}); err != nil {
		t.Fatalf("reseed error: %v", err)
	}
	second, err := reg.Get(ctx, "R1")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if second.Name != "Main Rink" {
		t.Fatalf("name = %q, want Main Rink", second.Name)
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Fatalf("created_at = %s, want %s", second.CreatedAt, first.CreatedAt)
	}
}

func TestSurfaceRegistry_SetActive(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	reg := NewSurfaceRegistry(env.store)

	got, err := reg.SetActive(ctx, "R1", false)
	if err != nil {
		t.Fatalf("SetActive error: %v", err)
	}
	if got.Active {
		t.Fatalf("active = true, want false")
	}

	active, err := reg.List(ctx, true)
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(active) != 1 || active[0].ID != "R2" {
		t.Fatalf("active = %+v, want only R2", active)
	}

	_, err = env.slots.Create(ctx, slotInput("R1", hm(8, 0), hm(9, 0), "Practice"))
	var surfaceErr *InvalidSurfaceError
	if !errors.As(err, &surfaceErr) || surfaceErr.SurfaceID != "R1" {
		t.Fatalf("Create on inactive surface err = %v, want InvalidSurfaceError", err)
	}

	if _, err := reg.SetActive(ctx, "R9", true); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("SetActive(R9) err = %v, want %v", err, store.ErrNotFound)
	}
	var ve *ValidationError
	if _, err := reg.Get(ctx, " "); !errors.As(err, &ve) {
		t.Fatalf("Get(blank) err = %v, want ValidationError", err)
	}
}
