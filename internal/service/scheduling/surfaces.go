package scheduling

import (
	"context"
	"errors"
	"strings"

	"icetime/backend/internal/domain"
	"icetime/backend/internal/store"
)

type SurfaceRegistry struct {
	repo store.SurfaceRepository
}

func NewSurfaceRegistry(repo store.SurfaceRepository) *SurfaceRegistry {
	return &SurfaceRegistry{repo: repo}
}

func (r *SurfaceRegistry) List(ctx context.Context, activeOnly bool) ([]domain.RinkSurface, error) {
	return r.repo.ListSurfaces(ctx, activeOnly)
}

func (r *SurfaceRegistry) Get(ctx context.Context, id string) (domain.RinkSurface, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.RinkSurface{}, validationError("surface_id is required")
	}
	return r.repo.GetSurface(ctx, id)
}

func (r *SurfaceRegistry) SetActive(ctx context.Context, id string, active bool) (domain.RinkSurface, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.RinkSurface{}, validationError("surface_id is required")
	}
	return r.repo.SetSurfaceActive(ctx, id, active)
}

// Seed registers the facility's surfaces at startup. Existing surfaces keep
// their creation time.
func (r *SurfaceRegistry) Seed(ctx context.Context, surfaces []domain.RinkSurface) error {
	seen := make(map[string]struct{}, len(surfaces))
	for i := range surfaces {
		s := &surfaces[i]
		s.ID = strings.TrimSpace(s.ID)
		s.Name = strings.TrimSpace(s.Name)
		if s.ID == "" {
			return validationError("surface id is required")
		}
		if _, dup := seen[s.ID]; dup {
			return validationError("duplicate surface id " + s.ID)
		}
		seen[s.ID] = struct{}{}
		if s.Name == "" {
			s.Name = s.ID
		}
		if !s.Type.Valid() {
			return validationError("surface " + s.ID + " has unknown type")
		}
		if s.Capacity < 0 {
			return validationError("surface " + s.ID + " has negative capacity")
		}
		for _, p := range s.SuitablePrograms {
			if !p.Valid() {
				return validationError("surface " + s.ID + " lists unknown program " + string(p))
			}
		}
	}
	return r.repo.UpsertSurfaces(ctx, surfaces)
}

type surfaceGetter interface {
	GetSurface(ctx context.Context, id string) (domain.RinkSurface, error)
}

// usableSurface loads a surface that may take a booking for program and
// participants. Slot writes pass their store.ScheduleTx so the surface cannot
// be deactivated before the write commits.
func usableSurface(ctx context.Context, repo surfaceGetter, id string, program domain.ProgramType, participants int) (domain.RinkSurface, error) {
	surface, err := repo.GetSurface(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return domain.RinkSurface{}, &InvalidSurfaceError{SurfaceID: id, Reason: "does not exist"}
	}
	if err != nil {
		return domain.RinkSurface{}, err
	}
	if !surface.Active {
		return domain.RinkSurface{}, &InvalidSurfaceError{SurfaceID: id, Reason: "is inactive"}
	}
	if !surface.Supports(program) {
		return domain.RinkSurface{}, &InvalidSurfaceError{SurfaceID: id, Reason: "does not support program " + string(program)}
	}
	if surface.Capacity > 0 && participants > surface.Capacity {
		return domain.RinkSurface{}, validationError("participant_count exceeds surface capacity")
	}
	return surface, nil
}
