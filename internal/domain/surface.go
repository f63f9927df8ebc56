package domain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
)

type SurfaceType string

const (
	SurfaceHockey        SurfaceType = "hockey"
	SurfaceFigureSkating SurfaceType = "figure_skating"
	SurfaceMultiPurpose  SurfaceType = "multi_purpose"
)

func ParseSurfaceType(s string) (SurfaceType, error) {
	t := SurfaceType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown surface type %q", s)
	}
	return t, nil
}

func (t SurfaceType) Valid() bool {
	switch t {
	case SurfaceHockey, SurfaceFigureSkating, SurfaceMultiPurpose:
		return true
	}
	return false
}

// RinkSurface is a physically distinct bookable ice sheet.
type RinkSurface struct {
	bun.BaseModel `bun:"table:rink_surfaces"`

	ID               string        `bun:"id,pk"`
	Name             string        `bun:"name,notnull"`
	Type             SurfaceType   `bun:"surface_type,notnull"`
	Capacity         int           `bun:"capacity,notnull"`
	SuitablePrograms []ProgramType `bun:"suitable_programs,type:jsonb"`
	Active           bool          `bun:"is_active,notnull"`
	CreatedAt        time.Time     `bun:"created_at,notnull"`
	UpdatedAt        time.Time     `bun:"updated_at,notnull"`
}

// Supports reports whether the surface may host the program. An empty
// suitability list accepts every program.
func (s RinkSurface) Supports(p ProgramType) bool {
	if len(s.SuitablePrograms) == 0 {
		return true
	}
	for _, sp := range s.SuitablePrograms {
		if sp == p {
			return true
		}
	}
	return false
}

func (s *RinkSurface) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if s.CreatedAt.IsZero() {
			s.CreatedAt = now
		}
		if s.UpdatedAt.IsZero() {
			s.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		s.UpdatedAt = now
	}
	return nil
}
