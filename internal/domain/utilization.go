package domain

import (
	"math"
	"time"
)

// countsTowardUtilization excludes cancelled slots only; completed ice time
// was still used.
func countsTowardUtilization(s SlotStatus) bool {
	return s == SlotScheduled || s == SlotInProgress || s == SlotCompleted
}

func bookedMinutes(slots []TimeSlot, date time.Time, surfaceID string) int {
	total := 0
	for _, s := range slots {
		if surfaceID != "" && s.SurfaceID != surfaceID {
			continue
		}
		if !SameDate(s.Date, date) || !countsTowardUtilization(s.Status) {
			continue
		}
		if d := s.DurationMinutes(); d > 0 {
			total += d
		}
	}
	return total
}

func percentOf(minutes, capacity int) int {
	if capacity <= 0 || minutes <= 0 {
		return 0
	}
	pct := int(math.Round(float64(minutes) / float64(capacity) * 100))
	if pct > 100 {
		return 100
	}
	return pct
}

// BookedMinutes sums the occupied minutes of surfaceID on date.
func BookedMinutes(slots []TimeSlot, surfaceID string, date time.Time) int {
	return bookedMinutes(slots, date, surfaceID)
}

// SurfaceUtilization is the share of the day's 1440 minutes that surfaceID is
// occupied, as a whole percentage in [0, 100].
func SurfaceUtilization(slots []TimeSlot, surfaceID string, date time.Time) int {
	return percentOf(bookedMinutes(slots, date, surfaceID), MinutesPerDay)
}

// AggregateUtilization spreads the day over surfaceCount surfaces. A
// non-positive surfaceCount counts the distinct surfaces present in slots.
func AggregateUtilization(slots []TimeSlot, date time.Time, surfaceCount int) int {
	if surfaceCount <= 0 {
		seen := make(map[string]struct{})
		for _, s := range slots {
			if SameDate(s.Date, date) {
				seen[s.SurfaceID] = struct{}{}
			}
		}
		surfaceCount = len(seen)
	}
	return percentOf(bookedMinutes(slots, date, ""), MinutesPerDay*surfaceCount)
}

// DailyRevenue sums the total cost of every priced slot on date. Slots without
// pricing count as zero.
func DailyRevenue(slots []TimeSlot, date time.Time) int64 {
	var total int64
	for _, s := range slots {
		if s.Pricing == nil || !SameDate(s.Date, date) {
			continue
		}
		total += s.Pricing.TotalCostCents
	}
	return total
}
