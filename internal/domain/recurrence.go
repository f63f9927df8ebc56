package domain

import (
	"errors"
	"time"
)

type RecurrenceFrequency string

const (
	RecurrenceWeekly   RecurrenceFrequency = "weekly"
	RecurrenceBiweekly RecurrenceFrequency = "biweekly"
	RecurrenceMonthly  RecurrenceFrequency = "monthly"
)

const MaxRecurrenceCount = 52

// Recurrence repeats an approved booking Count times in total, the first
// occurrence included.
type Recurrence struct {
	Frequency RecurrenceFrequency `json:"frequency"`
	Count     int                 `json:"count"`
}

func (r Recurrence) Validate() error {
	switch r.Frequency {
	case RecurrenceWeekly, RecurrenceBiweekly, RecurrenceMonthly:
	default:
		return errors.New("unsupported recurrence frequency")
	}
	if r.Count < 1 {
		return errors.New("recurrence count must be at least 1")
	}
	if r.Count > MaxRecurrenceCount {
		return errors.New("recurrence count too large")
	}
	return nil
}

// OccurrenceDates expands first into the dates of every occurrence. A nil rule
// yields first alone. Monthly occurrences keep the day of month and fall back
// to the month's last day when it is shorter.
func OccurrenceDates(first time.Time, rule *Recurrence) ([]time.Time, error) {
	start := DateOf(first)
	if rule == nil {
		return []time.Time{start}, nil
	}
	if err := rule.Validate(); err != nil {
		return nil, err
	}

	out := make([]time.Time, 0, rule.Count)
	for i := 0; i < rule.Count; i++ {
		switch rule.Frequency {
		case RecurrenceWeekly:
			out = append(out, start.AddDate(0, 0, 7*i))
		case RecurrenceBiweekly:
			out = append(out, start.AddDate(0, 0, 14*i))
		case RecurrenceMonthly:
			out = append(out, addMonthsClamped(start, i))
		}
	}
	return out, nil
}

func addMonthsClamped(d time.Time, months int) time.Time {
	y, m, day := d.Date()
	firstOfTarget := time.Date(y, m+time.Month(months), 1, 0, 0, 0, 0, time.UTC)
	last := firstOfTarget.AddDate(0, 1, -1).Day()
	if day > last {
		day = last
	}
	return time.Date(firstOfTarget.Year(), firstOfTarget.Month(), day, 0, 0, 0, 0, time.UTC)
}
