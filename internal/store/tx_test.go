package store

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestSlotKey_UsesCalendarDate(t *testing.T) {
	d := time.Date(2025, 1, 15, 23, 10, 0, 0, time.UTC)
	if got := SlotKey("R1", d); got != "slot:R1:2025-01-15" {
		t.Fatalf("SlotKey = %q, want %q", got, "slot:R1:2025-01-15")
	}
}

func TestSortedKeys_DedupesAndSorts(t *testing.T) {
	id := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	got := SortedKeys([]string{"slot:R2:2025-01-15", BookingKey(id), "slot:R1:2025-01-15", "slot:R2:2025-01-15"})
	want := []string{"booking:00000000-0000-0000-0000-000000000001", "slot:R1:2025-01-15", "slot:R2:2025-01-15"}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d (%v)", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("keys[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
