package api

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"

	"icetime/backend/internal/domain"
	"icetime/backend/internal/service/scheduling"
	"icetime/backend/internal/store"
)

func validCreate() CreateSlotRequest {
	return CreateSlotRequest{
		SurfaceID:        "R1",
		Date:             "2025-01-15",
		StartTime:        "06:00",
		EndTime:          "07:30",
		Program:          "practice",
		Title:            "Morning practice",
		ParticipantCount: 20,
	}
}

func TestCreateSlotRequest_Input(t *testing.T) {
	in, err := validCreate().Input("  header-key ")
	if err != nil {
		t.Fatalf("Input error: %v", err)
	}
	if in.Start != domain.NewClockTime(6, 0) || in.End != domain.NewClockTime(7, 30) {
		t.Fatalf("interval = %s-%s, want 06:00-07:30", in.Start, in.End)
	}
	if in.Date.Format(domain.DateLayout) != "2025-01-15" {
		t.Fatalf("date = %s", in.Date)
	}
	if in.Program != domain.ProgramPractice {
		t.Fatalf("program = %s", in.Program)
	}
	if in.IdempotencyKey != "header-key" {
		t.Fatalf("idempotency key = %q, want header-key", in.IdempotencyKey)
	}

	req := validCreate()
	req.IdempotencyKey = "body-key"
	in, err = req.Input("")
	if err != nil {
		t.Fatalf("Input error: %v", err)
	}
	if in.IdempotencyKey != "body-key" {
		t.Fatalf("idempotency key = %q, want body-key", in.IdempotencyKey)
	}
}

func TestCreateSlotRequest_InputRejects(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(r *CreateSlotRequest)
		wantMsg string
	}{
		{name: "missing surface", mutate: func(r *CreateSlotRequest) { r.SurfaceID = "" }, wantMsg: "surface_id is required"},
		{name: "bad date", mutate: func(r *CreateSlotRequest) { r.Date = "15/01/2025" }, wantMsg: "date must be a date (YYYY-MM-DD)"},
		{name: "bad time", mutate: func(r *CreateSlotRequest) { r.StartTime = "6am" }, wantMsg: "start_time must be a time (HH:MM)"},
		{name: "bad email", mutate: func(r *CreateSlotRequest) { r.Organizer.Email = "coach" }, wantMsg: "email must be an email address"},
		{name: "unknown program", mutate: func(r *CreateSlotRequest) { r.Program = "broomball" }, wantMsg: `unknown program type "broomball"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validCreate()
			tt.mutate(&req)
			_, err := req.Input("")
			var ve *scheduling.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("err = %v, want ValidationError", err)
			}
			if err.Error() != tt.wantMsg {
				t.Fatalf("message = %q, want %q", err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestSubmitBookingRequest_Input(t *testing.T) {
	var req SubmitBookingRequest
	req.Requester.Name = "Dana Fox"
	req.Requester.Email = "dana@example.com"
	req.Program = "practice"
	req.PreferredDates = []string{"2025-01-14"}
	req.PreferredTimes = []string{"18:00"}
	req.DurationHours = 1.5
	req.ParticipantCount = 24
	req.Recurrence = &RecurrenceBody{Frequency: "weekly", Count: 3}

	in, err := req.Input()
	if err != nil {
		t.Fatalf("Input error: %v", err)
	}
	if len(in.PreferredDates) != 1 || len(in.PreferredTimes) != 1 {
		t.Fatalf("preferences = %v %v", in.PreferredDates, in.PreferredTimes)
	}
	if in.Recurrence == nil || in.Recurrence.Frequency != domain.RecurrenceWeekly || in.Recurrence.Count != 3 {
		t.Fatalf("recurrence = %+v", in.Recurrence)
	}

	req.Recurrence.Frequency = "daily"
	if _, err := req.Input(); err == nil {
		t.Fatalf("expected error for unsupported frequency")
	}

	req.Recurrence = nil
	req.PreferredDates = nil
	_, err = req.Input()
	if err == nil || err.Error() != "preferred_dates is required" {
		t.Fatalf("err = %v, want preferred_dates is required", err)
	}
}

func TestApproveBookingRequest_Choice(t *testing.T) {
	rate := int64(18000)
	choice, err := ApproveBookingRequest{
		SurfaceID:       "R1",
		Date:            "2025-01-14",
		StartTime:       "18:00",
		EndTime:         "19:30",
		HourlyRateCents: &rate,
	}.Choice()
	if err != nil {
		t.Fatalf("Choice error: %v", err)
	}
	if choice.End-choice.Start != 90 || *choice.HourlyRateCents != 18000 {
		t.Fatalf("choice = %+v", choice)
	}

	if _, err := (ApproveBookingRequest{SurfaceID: "R1"}).Choice(); err == nil {
		t.Fatalf("expected error for missing date")
	}
}

func TestUpdateSlotRequest_Patch(t *testing.T) {
	start := "07:00"
	program := "lesson"
	p, err := UpdateSlotRequest{StartTime: &start, Program: &program}.Patch()
	if err != nil {
		t.Fatalf("Patch error: %v", err)
	}
	if p.Start == nil || *p.Start != domain.NewClockTime(7, 0) {
		t.Fatalf("start = %v", p.Start)
	}
	if p.Program == nil || *p.Program != domain.ProgramLesson {
		t.Fatalf("program = %v", p.Program)
	}
	if p.End != nil || p.Date != nil || p.SurfaceID != nil {
		t.Fatalf("unset fields leaked into patch: %+v", p)
	}

	bad := "25:00"
	if _, err := (UpdateSlotRequest{EndTime: &bad}).Patch(); err == nil {
		t.Fatalf("expected error for out of range time")
	}
}

func TestClassify(t *testing.T) {
	slotID := uuid.MustParse("00000000-0000-0000-0000-0000000000b1")
	conflict := &scheduling.ScheduleConflictError{
		Conflicts: []domain.ScheduleConflict{{
			SlotID:      slotID,
			Type:        domain.ConflictOverlap,
			Description: "Time slot conflicts with slot B",
			Severity:    domain.SeverityHigh,
		}},
		Occurrence: 3,
	}

	tests := []struct {
		name string
		err  error
		want Kind
		code string
	}{
		{name: "conflict", err: fmt.Errorf("approve: %w", conflict), want: KindConflict, code: "schedule_conflict"},
		{name: "validation", err: scheduling.NewValidationError("title is required"), want: KindValidation, code: "validation_error"},
		{name: "surface", err: &scheduling.InvalidSurfaceError{SurfaceID: "R9", Reason: "does not exist"}, want: KindInvalidSurface, code: "invalid_surface"},
		{name: "not found", err: store.ErrNotFound, want: KindNotFound, code: "not_found"},
		{name: "idempotency", err: store.ErrIdempotencyConflict, want: KindIdempotency, code: "idempotency_conflict"},
		{name: "internal", err: errors.New("connection reset"), want: KindInternal, code: "internal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, body := Classify(tt.err)
			if kind != tt.want {
				t.Fatalf("kind = %v, want %v", kind, tt.want)
			}
			if body.Code != tt.code {
				t.Fatalf("code = %q, want %q", body.Code, tt.code)
			}
		})
	}

	_, body := Classify(conflict)
	if body.Message != "Time slot conflicts with slot B" {
		t.Fatalf("message = %q", body.Message)
	}
	if body.Occurrence != 3 || len(body.Conflicts) != 1 || body.Conflicts[0].SlotID != slotID.String() {
		t.Fatalf("body = %+v", body)
	}

	_, body = Classify(errors.New("pq: password authentication failed"))
	if body.Message != "internal error" {
		t.Fatalf("internal message leaked: %q", body.Message)
	}
}
