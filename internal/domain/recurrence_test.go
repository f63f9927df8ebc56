package domain

import (
	"testing"
	"time"
)

func TestOccurrenceDates_Validation(t *testing.T) {
	first := time.Date(2025, 1, 14, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		rule    Recurrence
		wantErr string
	}{
		{
			name:    "unsupported frequency",
			rule:    Recurrence{Frequency: "daily", Count: 2},
			wantErr: "unsupported recurrence frequency",
		},
		{
			name:    "zero count",
			rule:    Recurrence{Frequency: RecurrenceWeekly, Count: 0},
			wantErr: "recurrence count must be at least 1",
		},
		{
			name:    "count above limit",
			rule:    Recurrence{Frequency: RecurrenceWeekly, Count: MaxRecurrenceCount + 1},
			wantErr: "recurrence count too large",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := tt.rule
			_, err := OccurrenceDates(first, &rule)
			if err == nil {
				t.Fatalf("expected error")
			}
			if err.Error() != tt.wantErr {
				t.Fatalf("error = %q, want %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestOccurrenceDates_NilRuleYieldsSingleDate(t *testing.T) {
	first := time.Date(2025, 1, 14, 18, 30, 0, 0, time.UTC)

	dates, err := OccurrenceDates(first, nil)
	if err != nil {
		t.Fatalf("OccurrenceDates error: %v", err)
	}
	if len(dates) != 1 {
		t.Fatalf("len(dates) = %d, want 1", len(dates))
	}
	if !dates[0].Equal(time.Date(2025, 1, 14, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("date = %v, want midnight of 2025-01-14", dates[0])
	}
}

func TestOccurrenceDates_Frequencies(t *testing.T) {
	first := time.Date(2025, 1, 14, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		rule Recurrence
		want []string
	}{
		{
			name: "weekly tuesdays",
			rule: Recurrence{Frequency: RecurrenceWeekly, Count: 3},
			want: []string{"2025-01-14", "2025-01-21", "2025-01-28"},
		},
		{
			name: "biweekly",
			rule: Recurrence{Frequency: RecurrenceBiweekly, Count: 3},
			want: []string{"2025-01-14", "2025-01-28", "2025-02-11"},
		},
		{
			name: "monthly",
			rule: Recurrence{Frequency: RecurrenceMonthly, Count: 3},
			want: []string{"2025-01-14", "2025-02-14", "2025-03-14"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := tt.rule
			dates, err := OccurrenceDates(first, &rule)
			if err != nil {
				t.Fatalf("OccurrenceDates error: %v", err)
			}
			if len(dates) != len(tt.want) {
				t.Fatalf("len(dates) = %d, want %d", len(dates), len(tt.want))
			}
			for i, d := range dates {
				if got := d.Format(DateLayout); got != tt.want[i] {
					t.Fatalf("dates[%d] = %s, want %s", i, got, tt.want[i])
				}
			}
		})
	}
}

func TestOccurrenceDates_MonthlyClampsToMonthEnd(t *testing.T) {
	first := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	rule := Recurrence{Frequency: RecurrenceMonthly, Count: 4}

	dates, err := OccurrenceDates(first, &rule)
	if err != nil {
		t.Fatalf("OccurrenceDates error: %v", err)
	}
	want := []string{"2024-01-31", "2024-02-29", "2024-03-31", "2024-04-30"}
	for i, d := range dates {
		if got := d.Format(DateLayout); got != want[i] {
			t.Fatalf("dates[%d] = %s, want %s", i, got, want[i])
		}
	}
}
