package grpc

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"icetime/backend/internal/domain"
	"icetime/backend/internal/service/scheduling"
	"icetime/backend/internal/store/memory"
	"icetime/backend/internal/transport/api"
)

func TestIdempotencyKey_ReadsHeadersAndTrims(t *testing.T) {
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("idempotency-key", "  abc  "))
	if got := idempotencyKey(ctx); got != "abc" {
		t.Fatalf("idempotencyKey = %q, want %q", got, "abc")
	}

	ctx = metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-idempotency-key", "xyz"))
	if got := idempotencyKey(ctx); got != "xyz" {
		t.Fatalf("idempotencyKey = %q, want %q", got, "xyz")
	}

	if got := idempotencyKey(context.Background()); got != "" {
		t.Fatalf("idempotencyKey = %q, want empty", got)
	}
}

func newTestServer(t *testing.T) *SchedulingServer {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := memory.New()
	surfaces := scheduling.NewSurfaceRegistry(st)
	err := surfaces.Seed(context.Background(), []domain.RinkSurface{
		{ID: "R1", Name: "Main Rink", Type: domain.SurfaceHockey, Capacity: 200, Active: true},
	})
	if err != nil {
		t.Fatalf("Seed error: %v", err)
	}
	return NewSchedulingServer(api.Services{
		Slots:    scheduling.NewSlotService(st, log),
		Bookings: scheduling.NewBookingWorkflow(st, log),
		Surfaces: surfaces,
		Metrics:  scheduling.NewMetrics(st),
	}, log)
}

func dial(t *testing.T, srv *SchedulingServer) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	s := grpc.NewServer()
	Register(s, srv)
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func call(ctx context.Context, conn *grpc.ClientConn, name string, in map[string]any) (*structpb.Struct, error) {
	req, err := structpb.NewStruct(in)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	err = conn.Invoke(ctx, "/"+ServiceName+"/"+name, req, out)
	return out, err
}

func slotMessage(title, start, end string) map[string]any {
	return map[string]any{
		"surface_id":        "R1",
		"date":              "2025-01-15",
		"start_time":        start,
		"end_time":          end,
		"program":           "practice",
		"title":             title,
		"participant_count": 20,
	}
}

func TestScheduling_CreateAndConflictOverTheWire(t *testing.T) {
	conn := dial(t, newTestServer(t))
	ctx := context.Background()

	a, err := call(ctx, conn, "CreateSlot", slotMessage("A", "06:00", "07:30"))
	if err != nil {
		t.Fatalf("CreateSlot(A) error: %v", err)
	}
	if got := a.Fields["start_time"].GetStringValue(); got != "06:00" {
		t.Fatalf("start_time = %q, want 06:00", got)
	}
	b, err := call(ctx, conn, "CreateSlot", slotMessage("B", "07:30", "09:30"))
	if err != nil {
		t.Fatalf("CreateSlot(B) error: %v", err)
	}

	_, err = call(ctx, conn, "CreateSlot", slotMessage("C", "07:00", "08:00"))
	st := status.Convert(err)
	if st.Code() != codes.FailedPrecondition {
		t.Fatalf("code = %s, want %s", st.Code(), codes.FailedPrecondition)
	}
	details := st.Details()
	if len(details) != 1 {
		t.Fatalf("details = %d, want 1", len(details))
	}
	body, ok := details[0].(*structpb.Struct)
	if !ok {
		t.Fatalf("detail type = %T, want *structpb.Struct", details[0])
	}
	if body.Fields["code"].GetStringValue() != "schedule_conflict" {
		t.Fatalf("detail code = %v", body.Fields["code"])
	}
	found := false
	for _, c := range body.Fields["conflicts"].GetListValue().GetValues() {
		if c.GetStructValue().Fields["slot_id"].GetStringValue() == b.Fields["id"].GetStringValue() {
			found = true
		}
	}
	if !found {
		t.Fatalf("conflicts do not name slot B: %v", body.Fields["conflicts"])
	}

	list, err := call(ctx, conn, "ListSlots", map[string]any{"date": "2025-01-15", "surface_id": "R1"})
	if err != nil {
		t.Fatalf("ListSlots error: %v", err)
	}
	if n := len(list.Fields["items"].GetListValue().GetValues()); n != 2 {
		t.Fatalf("len(items) = %d, want 2", n)
	}
}

func TestScheduling_StatusCodes(t *testing.T) {
	conn := dial(t, newTestServer(t))
	ctx := context.Background()

	tests := []struct {
		name   string
		method string
		in     map[string]any
		want   codes.Code
	}{
		{name: "bad uuid", method: "GetSlot", in: map[string]any{"id": "nope"}, want: codes.InvalidArgument},
		{name: "missing slot", method: "GetSlot", in: map[string]any{"id": "00000000-0000-0000-0000-000000000001"}, want: codes.NotFound},
		{name: "missing date", method: "DailyReport", in: map[string]any{}, want: codes.InvalidArgument},
		{name: "unknown surface", method: "CreateSlot", in: func() map[string]any {
			m := slotMessage("A", "06:00", "07:00")
			m["surface_id"] = "R9"
			return m
		}(), want: codes.InvalidArgument},
		{name: "wrong field type", method: "CreateSlot", in: map[string]any{"participant_count": "many"}, want: codes.InvalidArgument},
		{name: "bad status filter", method: "ListBookingRequests", in: map[string]any{"status": "done"}, want: codes.InvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := call(ctx, conn, tt.method, tt.in)
			if got := status.Code(err); got != tt.want {
				t.Fatalf("code = %s, want %s (err %v)", got, tt.want, err)
			}
		})
	}
}

func TestScheduling_IdempotencyMetadata(t *testing.T) {
	conn := dial(t, newTestServer(t))
	ctx := metadata.AppendToOutgoingContext(context.Background(), "idempotency-key", "k1")

	first, err := call(ctx, conn, "CreateSlot", slotMessage("A", "06:00", "07:00"))
	if err != nil {
		t.Fatalf("CreateSlot error: %v", err)
	}
	second, err := call(ctx, conn, "CreateSlot", slotMessage("A", "06:00", "07:00"))
	if err != nil {
		t.Fatalf("replayed CreateSlot error: %v", err)
	}
	if first.Fields["id"].GetStringValue() != second.Fields["id"].GetStringValue() {
		t.Fatalf("replay returned a different slot")
	}

	_, err = call(ctx, conn, "CreateSlot", slotMessage("B", "09:00", "10:00"))
	if status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("code = %s, want %s", status.Code(err), codes.FailedPrecondition)
	}
}

func TestScheduling_BookingFlow(t *testing.T) {
	conn := dial(t, newTestServer(t))
	ctx := context.Background()

	created, err := call(ctx, conn, "SubmitBookingRequest", map[string]any{
		"requester":         map[string]any{"name": "Dana Fox", "email": "dana@example.com"},
		"program":           "practice",
		"preferred_dates":   []any{"2025-01-14"},
		"duration_hours":    1.5,
		"participant_count": 24,
		"recurrence":        map[string]any{"frequency": "weekly", "count": 3},
	})
	if err != nil {
		t.Fatalf("SubmitBookingRequest error: %v", err)
	}
	id := created.Fields["id"].GetStringValue()

	approved, err := call(ctx, conn, "ApproveBookingRequest", map[string]any{
		"id":         id,
		"surface_id": "R1",
		"date":       "2025-01-14",
		"start_time": "18:00",
		"end_time":   "19:30",
	})
	if err != nil {
		t.Fatalf("ApproveBookingRequest error: %v", err)
	}
	if n := len(approved.Fields["slots"].GetListValue().GetValues()); n != 3 {
		t.Fatalf("len(slots) = %d, want 3", n)
	}

	_, err = call(ctx, conn, "RejectBookingRequest", map[string]any{"id": id})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("code = %s, want %s", status.Code(err), codes.InvalidArgument)
	}

	report, err := call(ctx, conn, "DailyReport", map[string]any{"date": "2025-01-21"})
	if err != nil {
		t.Fatalf("DailyReport error: %v", err)
	}
	if got := report.Fields["slot_count"].GetNumberValue(); got != 1 {
		t.Fatalf("slot_count = %v, want 1", got)
	}
}
