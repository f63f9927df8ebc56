package grpc

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"icetime/backend/internal/domain"
	"icetime/backend/internal/service/scheduling"
	"icetime/backend/internal/transport/api"
)

const ServiceName = "icetime.v1.Scheduling"

// SchedulingServer exchanges google.protobuf.Struct messages shaped like the
// HTTP API's JSON bodies.
type SchedulingServer struct {
	svc api.Services
	log *slog.Logger
}

func NewSchedulingServer(svc api.Services, log *slog.Logger) *SchedulingServer {
	if log == nil {
		log = slog.Default()
	}
	return &SchedulingServer{
		svc: svc,
		log: log.With(slog.String("component", "grpc.scheduling")),
	}
}

// Register attaches the service to s.
func Register(s grpc.ServiceRegistrar, srv *SchedulingServer) {
	s.RegisterService(&serviceDesc, srv)
}

type schedulingHandler interface {
	CreateSlot(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UpdateSlot(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeleteSlot(context.Context, *structpb.Struct) (*structpb.Struct, error)
	TransitionSlot(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SetPaymentStatus(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetSlot(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListSlots(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListSurfaces(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SetSurfaceActive(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SubmitBookingRequest(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ApproveBookingRequest(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RejectBookingRequest(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetBookingRequest(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListBookingRequests(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DailyReport(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(*SchedulingServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func method(name string, m unaryMethod) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			s := srv.(*SchedulingServer)
			if interceptor == nil {
				return m(s, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return m(s, ctx, req.(*structpb.Struct))
			})
		},
	}
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*schedulingHandler)(nil),
	Methods: []grpc.MethodDesc{
		method("CreateSlot", (*SchedulingServer).CreateSlot),
		method("UpdateSlot", (*SchedulingServer).UpdateSlot),
		method("DeleteSlot", (*SchedulingServer).DeleteSlot),
		method("TransitionSlot", (*SchedulingServer).TransitionSlot),
		method("SetPaymentStatus", (*SchedulingServer).SetPaymentStatus),
		method("GetSlot", (*SchedulingServer).GetSlot),
		method("ListSlots", (*SchedulingServer).ListSlots),
		method("ListSurfaces", (*SchedulingServer).ListSurfaces),
		method("SetSurfaceActive", (*SchedulingServer).SetSurfaceActive),
		method("SubmitBookingRequest", (*SchedulingServer).SubmitBookingRequest),
		method("ApproveBookingRequest", (*SchedulingServer).ApproveBookingRequest),
		method("RejectBookingRequest", (*SchedulingServer).RejectBookingRequest),
		method("GetBookingRequest", (*SchedulingServer).GetBookingRequest),
		method("ListBookingRequests", (*SchedulingServer).ListBookingRequests),
		method("DailyReport", (*SchedulingServer).DailyReport),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "icetime/v1/scheduling.proto",
}

type idMessage struct {
	ID string `json:"id"`
}

type updateSlotMessage struct {
	ID string `json:"id"`
	api.UpdateSlotRequest
}

type transitionMessage struct {
	ID string `json:"id"`
	api.TransitionRequest
}

type paymentStatusMessage struct {
	ID string `json:"id"`
	api.PaymentStatusRequest
}

type listSlotsMessage struct {
	Date      string `json:"date"`
	SurfaceID string `json:"surface_id"`
}

type listSurfacesMessage struct {
	ActiveOnly bool `json:"active_only"`
}

type surfaceActiveMessage struct {
	ID string `json:"id"`
	api.SurfaceActiveRequest
}

type approveMessage struct {
	ID string `json:"id"`
	api.ApproveBookingRequest
}

type rejectMessage struct {
	ID string `json:"id"`
	api.RejectBookingRequest
}

type listBookingRequestsMessage struct {
	Status string `json:"status"`
}

type dateMessage struct {
	Date string `json:"date"`
}

func (s *SchedulingServer) CreateSlot(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "CreateSlot"))

	var msg api.CreateSlotRequest
	if err := s.decode(log, req, &msg); err != nil {
		return nil, err
	}
	in, err := msg.Input(idempotencyKey(ctx))
	if err != nil {
		return nil, s.toStatus(log, err)
	}
	slot, err := s.svc.Slots.Create(ctx, in)
	if err != nil {
		return nil, s.toStatus(log, err)
	}
	log.Info("slot created",
		slog.String("slot_id", slot.ID.String()),
		slog.String("surface_id", slot.SurfaceID),
		slog.String("date", slot.Date.Format(domain.DateLayout)),
	)
	return s.encode(log, api.SlotFrom(slot))
}

func (s *SchedulingServer) UpdateSlot(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "UpdateSlot"))

	var msg updateSlotMessage
	if err := s.decode(log, req, &msg); err != nil {
		return nil, err
	}
	id, err := api.ParseID("id", msg.ID)
	if err != nil {
		return nil, s.toStatus(log, err)
	}
	patch, err := msg.Patch()
	if err != nil {
		return nil, s.toStatus(log, err)
	}
	slot, err := s.svc.Slots.Update(ctx, id, patch)
	if err != nil {
		return nil, s.toStatus(log, err)
	}
	return s.encode(log, api.SlotFrom(slot))
}

func (s *SchedulingServer) DeleteSlot(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "DeleteSlot"))

	var msg idMessage
	if err := s.decode(log, req, &msg); err != nil {
		return nil, err
	}
	id, err := api.ParseID("id", msg.ID)
	if err != nil {
		return nil, s.toStatus(log, err)
	}
	if err := s.svc.Slots.Delete(ctx, id); err != nil {
		return nil, s.toStatus(log, err)
	}
	log.Info("slot deleted", slog.String("slot_id", id.String()))
	return &structpb.Struct{}, nil
}

func (s *SchedulingServer) TransitionSlot(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "TransitionSlot"))

	var msg transitionMessage
	if err := s.decode(log, req, &msg); err != nil {
		return nil, err
	}
	id, err := api.ParseID("id", msg.ID)
	if err != nil {
		return nil, s.toStatus(log, err)
	}
	next, err := msg.Next()
	if err != nil {
		return nil, s.toStatus(log, err)
	}
	slot, err := s.svc.Slots.TransitionStatus(ctx, id, next)
	if err != nil {
		return nil, s.toStatus(log, err)
	}
	return s.encode(log, api.SlotFrom(slot))
}

func (s *SchedulingServer) SetPaymentStatus(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "SetPaymentStatus"))

	var msg paymentStatusMessage
	if err := s.decode(log, req, &msg); err != nil {
		return nil, err
	}
	id, err := api.ParseID("id", msg.ID)
	if err != nil {
		return nil, s.toStatus(log, err)
	}
	if err := api.Validate(msg.PaymentStatusRequest); err != nil {
		return nil, s.toStatus(log, err)
	}
	slot, err := s.svc.Slots.SetPaymentStatus(ctx, id, msg.PaymentStatus)
	if err != nil {
		return nil, s.toStatus(log, err)
	}
	return s.encode(log, api.SlotFrom(slot))
}

func (s *SchedulingServer) GetSlot(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "GetSlot"))

	var msg idMessage
	if err := s.decode(log, req, &msg); err != nil {
		return nil, err
	}
	id, err := api.ParseID("id", msg.ID)
	if err != nil {
		return nil, s.toStatus(log, err)
	}
	slot, err := s.svc.Slots.Get(ctx, id)
	if err != nil {
		return nil, s.toStatus(log, err)
	}
	return s.encode(log, api.SlotFrom(slot))
}

func (s *SchedulingServer) ListSlots(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "ListSlots"))

	var msg listSlotsMessage
	if err := s.decode(log, req, &msg); err != nil {
		return nil, err
	}
	date, err := api.ParseDay("date", msg.Date)
	if err != nil {
		return nil, s.toStatus(log, err)
	}
	slots, err := s.svc.Slots.ListByDate(ctx, msg.SurfaceID, date)
	if err != nil {
		return nil, s.toStatus(log, err)
	}
	log.Debug("slots listed", slog.String("date", msg.Date), slog.Int("count", len(slots)))
	return s.encode(log, itemsOf(api.SlotsFrom(slots)))
}

func (s *SchedulingServer) ListSurfaces(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "ListSurfaces"))

	var msg listSurfacesMessage
	if err := s.decode(log, req, &msg); err != nil {
		return nil, err
	}
	surfaces, err := s.svc.Surfaces.List(ctx, msg.ActiveOnly)
	if err != nil {
		return nil, s.toStatus(log, err)
	}
	return s.encode(log, itemsOf(api.SurfacesFrom(surfaces)))
}

func (s *SchedulingServer) SetSurfaceActive(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "SetSurfaceActive"))

	var msg surfaceActiveMessage
	if err := s.decode(log, req, &msg); err != nil {
		return nil, err
	}
	if err := api.Validate(msg.SurfaceActiveRequest); err != nil {
		return nil, s.toStatus(log, err)
	}
	surface, err := s.svc.Surfaces.SetActive(ctx, msg.ID, *msg.Active)
	if err != nil {
		return nil, s.toStatus(log, err)
	}
	log.Info("surface activation changed", slog.String("surface_id", surface.ID), slog.Bool("active", surface.Active))
	return s.encode(log, api.SurfaceFrom(surface))
}

func (s *SchedulingServer) SubmitBookingRequest(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "SubmitBookingRequest"))

	var msg api.SubmitBookingRequest
	if err := s.decode(log, req, &msg); err != nil {
		return nil, err
	}
	in, err := msg.Input()
	if err != nil {
		return nil, s.toStatus(log, err)
	}
	created, err := s.svc.Bookings.Submit(ctx, in)
	if err != nil {
		return nil, s.toStatus(log, err)
	}
	return s.encode(log, api.BookingRequestFrom(created))
}

func (s *SchedulingServer) ApproveBookingRequest(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "ApproveBookingRequest"))

	var msg approveMessage
	if err := s.decode(log, req, &msg); err != nil {
		return nil, err
	}
	id, err := api.ParseID("id", msg.ID)
	if err != nil {
		return nil, s.toStatus(log, err)
	}
	choice, err := msg.Choice()
	if err != nil {
		return nil, s.toStatus(log, err)
	}
	res, err := s.svc.Bookings.Approve(ctx, id, choice)
	if err != nil {
		return nil, s.toStatus(log, err)
	}
	return s.encode(log, api.ApprovalFrom(res))
}

func (s *SchedulingServer) RejectBookingRequest(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "RejectBookingRequest"))

	var msg rejectMessage
	if err := s.decode(log, req, &msg); err != nil {
		return nil, err
	}
	id, err := api.ParseID("id", msg.ID)
	if err != nil {
		return nil, s.toStatus(log, err)
	}
	if err := api.Validate(msg.RejectBookingRequest); err != nil {
		return nil, s.toStatus(log, err)
	}
	rejected, err := s.svc.Bookings.Reject(ctx, id, msg.Reason)
	if err != nil {
		return nil, s.toStatus(log, err)
	}
	return s.encode(log, api.BookingRequestFrom(rejected))
}

func (s *SchedulingServer) GetBookingRequest(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "GetBookingRequest"))

	var msg idMessage
	if err := s.decode(log, req, &msg); err != nil {
		return nil, err
	}
	id, err := api.ParseID("id", msg.ID)
	if err != nil {
		return nil, s.toStatus(log, err)
	}
	found, err := s.svc.Bookings.Get(ctx, id)
	if err != nil {
		return nil, s.toStatus(log, err)
	}
	return s.encode(log, api.BookingRequestFrom(found))
}

func (s *SchedulingServer) ListBookingRequests(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "ListBookingRequests"))

	var msg listBookingRequestsMessage
	if err := s.decode(log, req, &msg); err != nil {
		return nil, err
	}
	var st domain.BookingStatus
	if msg.Status != "" {
		parsed, err := domain.ParseBookingStatus(msg.Status)
		if err != nil {
			return nil, s.toStatus(log, scheduling.NewValidationError(err.Error()))
		}
		st = parsed
	}
	reqs, err := s.svc.Bookings.List(ctx, st)
	if err != nil {
		return nil, s.toStatus(log, err)
	}
	return s.encode(log, itemsOf(api.BookingRequestsFrom(reqs)))
}

func (s *SchedulingServer) DailyReport(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "DailyReport"))

	var msg dateMessage
	if err := s.decode(log, req, &msg); err != nil {
		return nil, err
	}
	date, err := api.ParseDay("date", msg.Date)
	if err != nil {
		return nil, s.toStatus(log, err)
	}
	report, err := s.svc.Metrics.DailyReport(ctx, date)
	if err != nil {
		return nil, s.toStatus(log, err)
	}
	return s.encode(log, api.DailyReportFrom(report))
}

func itemsOf[T any](items []T) map[string]any {
	return map[string]any{"items": items}
}

func (s *SchedulingServer) decode(log *slog.Logger, req *structpb.Struct, dst any) error {
	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return status.Error(codes.InvalidArgument, "request is required")
	}
	b, err := protojson.Marshal(req)
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "unmarshalable_struct"), slog.Any("err", err))
		return status.Error(codes.InvalidArgument, "request is not a valid message")
	}
	if err := json.Unmarshal(b, dst); err != nil {
		log.Warn("invalid request", slog.String("reason", "shape_mismatch"), slog.Any("err", err))
		return status.Error(codes.InvalidArgument, "request fields have the wrong types")
	}
	return nil
}

func (s *SchedulingServer) encode(log *slog.Logger, v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error("response encode failed", slog.Any("err", err))
		return nil, status.Error(codes.Internal, "internal error")
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(b, out); err != nil {
		log.Error("response encode failed", slog.Any("err", err))
		return nil, status.Error(codes.Internal, "internal error")
	}
	return out, nil
}

func codeFor(kind api.Kind) codes.Code {
	switch kind {
	case api.KindValidation, api.KindInvalidState, api.KindInvalidSurface:
		return codes.InvalidArgument
	case api.KindConflict, api.KindIdempotency:
		return codes.FailedPrecondition
	case api.KindNotFound:
		return codes.NotFound
	}
	return codes.Internal
}

// toStatus maps a service error to a gRPC status. The error body travels as
// a Struct detail so callers can read the individual conflicts.
func (s *SchedulingServer) toStatus(log *slog.Logger, err error) error {
	kind, body := api.Classify(err)
	switch kind {
	case api.KindInternal:
		log.Error("request failed", slog.Any("err", err))
	case api.KindConflict, api.KindIdempotency:
		log.Info("request conflict", slog.Any("err", err))
	default:
		log.Warn("invalid request", slog.Any("err", err))
	}

	st := status.New(codeFor(kind), body.Message)
	detail, encErr := s.encode(log, body)
	if encErr != nil {
		return st.Err()
	}
	if withDetail, derr := st.WithDetails(detail); derr == nil {
		st = withDetail
	}
	return st.Err()
}

func idempotencyKey(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get("idempotency-key")
	if len(values) == 0 {
		values = md.Get("x-idempotency-key")
	}
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0])
}
