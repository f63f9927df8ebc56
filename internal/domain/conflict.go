package domain

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

type ConflictType string

const ConflictOverlap ConflictType = "overlap"

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// ScheduleConflict describes why a candidate cannot be placed. It is never
// stored.
type ScheduleConflict struct {
	ID          uuid.UUID
	SlotID      uuid.UUID
	Type        ConflictType
	Description string
	Severity    Severity
}

// Candidate is a proposed occupation of a surface. ExcludeID lets an update be
// checked against every slot but itself.
type Candidate struct {
	SurfaceID string
	Date      time.Time
	Start     ClockTime
	End       ClockTime
	ExcludeID uuid.UUID
}

// Overlaps applies the half-open interval test: [s1,e1) and [s2,e2) overlap iff
// s1 < e2 and s2 < e1.
func Overlaps(s1, e1, s2, e2 ClockTime) bool {
	return s1 < e2 && s2 < e1
}

// DetectConflicts returns one conflict per occupying slot on the candidate's
// surface and date whose interval overlaps the candidate, ordered by slot start.
func DetectConflicts(c Candidate, existing []TimeSlot) []ScheduleConflict {
	hits := make([]TimeSlot, 0, 1)
	for _, s := range existing {
		if s.SurfaceID != c.SurfaceID || !SameDate(s.Date, c.Date) {
			continue
		}
		if !s.Status.Occupies() {
			continue
		}
		if c.ExcludeID != uuid.Nil && s.ID == c.ExcludeID {
			continue
		}
		if Overlaps(c.Start, c.End, s.Start, s.End) {
			hits = append(hits, s)
		}
	}
	if len(hits) == 0 {
		return nil
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Start != hits[j].Start {
			return hits[i].Start < hits[j].Start
		}
		return hits[i].ID.String() < hits[j].ID.String()
	})

	out := make([]ScheduleConflict, 0, len(hits))
	for _, s := range hits {
		out = append(out, ScheduleConflict{
			ID:          conflictID(c, s.ID),
			SlotID:      s.ID,
			Type:        ConflictOverlap,
			Description: describeOverlap(s),
			Severity:    SeverityHigh,
		})
	}
	return out
}

func conflictID(c Candidate, slotID uuid.UUID) uuid.UUID {
	name := fmt.Sprintf("icetime:conflict:%s:%s:%d:%d:%s",
		c.SurfaceID, DateOf(c.Date).Format(DateLayout), int(c.Start), int(c.End), slotID)
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name))
}

func describeOverlap(s TimeSlot) string {
	title := s.Title
	if title == "" {
		title = s.Program.Label()
	}
	return fmt.Sprintf("Surface %s is already booked %s-%s on %s for %q.",
		s.SurfaceID, s.Start, s.End, DateOf(s.Date).Format(DateLayout), title)
}
