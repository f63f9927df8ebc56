package rest

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"icetime/backend/internal/domain"
	"icetime/backend/internal/service/scheduling"
	"icetime/backend/internal/transport/api"
)

type envelope struct {
	Data  any            `json:"data,omitempty"`
	Error *api.ErrorBody `json:"error,omitempty"`
}

var internalError = api.ErrorBody{Code: "internal", Message: "internal error"}

func ok(c *gin.Context, status int, data any) {
	c.JSON(status, envelope{Data: data})
}

func statusFor(kind api.Kind) int {
	switch kind {
	case api.KindValidation, api.KindInvalidState, api.KindInvalidSurface:
		return http.StatusBadRequest
	case api.KindConflict, api.KindIdempotency:
		return http.StatusConflict
	case api.KindNotFound:
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(c *gin.Context, op string, err error) {
	kind, body := api.Classify(err)
	status := statusFor(kind)
	attrs := []any{
		slog.String("op", op),
		slog.String("request_id", c.GetString(requestIDKey)),
		slog.Any("err", err),
	}
	switch kind {
	case api.KindInternal:
		s.log.ErrorContext(c.Request.Context(), "request failed", attrs...)
	case api.KindConflict, api.KindIdempotency:
		s.log.InfoContext(c.Request.Context(), "request conflict", attrs...)
	}
	c.AbortWithStatusJSON(status, envelope{Error: &body})
}

func (s *Server) bind(c *gin.Context, op string, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		s.fail(c, op, scheduling.NewValidationError("request body is not valid JSON"))
		return false
	}
	return true
}

func (s *Server) pathID(c *gin.Context, op string) (uuid.UUID, bool) {
	id, err := api.ParseID("id", c.Param("id"))
	if err != nil {
		s.fail(c, op, err)
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) queryDate(c *gin.Context, op string) (time.Time, bool) {
	date, err := api.ParseDay("date", c.Query("date"))
	if err != nil {
		s.fail(c, op, err)
		return time.Time{}, false
	}
	return date, true
}

func (s *Server) listSurfaces(c *gin.Context) {
	activeOnly := false
	if raw := c.Query("active"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			s.fail(c, "list_surfaces", scheduling.NewValidationError("active must be a boolean"))
			return
		}
		activeOnly = v
	}
	surfaces, err := s.svc.Surfaces.List(c.Request.Context(), activeOnly)
	if err != nil {
		s.fail(c, "list_surfaces", err)
		return
	}
	ok(c, http.StatusOK, api.SurfacesFrom(surfaces))
}

func (s *Server) getSurface(c *gin.Context) {
	surface, err := s.svc.Surfaces.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, "get_surface", err)
		return
	}
	ok(c, http.StatusOK, api.SurfaceFrom(surface))
}

func (s *Server) setSurfaceActive(c *gin.Context) {
	var req api.SurfaceActiveRequest
	if !s.bind(c, "set_surface_active", &req) {
		return
	}
	if err := api.Validate(req); err != nil {
		s.fail(c, "set_surface_active", err)
		return
	}
	surface, err := s.svc.Surfaces.SetActive(c.Request.Context(), c.Param("id"), *req.Active)
	if err != nil {
		s.fail(c, "set_surface_active", err)
		return
	}
	s.log.InfoContext(c.Request.Context(), "surface activation changed",
		slog.String("surface_id", surface.ID),
		slog.Bool("active", surface.Active),
	)
	ok(c, http.StatusOK, api.SurfaceFrom(surface))
}

func (s *Server) listSlots(c *gin.Context) {
	date, valid := s.queryDate(c, "list_slots")
	if !valid {
		return
	}
	slots, err := s.svc.Slots.ListByDate(c.Request.Context(), c.Query("surface_id"), date)
	if err != nil {
		s.fail(c, "list_slots", err)
		return
	}
	ok(c, http.StatusOK, api.SlotsFrom(slots))
}

func idempotencyKey(c *gin.Context) string {
	key := c.GetHeader("Idempotency-Key")
	if key == "" {
		key = c.GetHeader("X-Idempotency-Key")
	}
	return strings.TrimSpace(key)
}

func (s *Server) createSlot(c *gin.Context) {
	var req api.CreateSlotRequest
	if !s.bind(c, "create_slot", &req) {
		return
	}
	in, err := req.Input(idempotencyKey(c))
	if err != nil {
		s.fail(c, "create_slot", err)
		return
	}
	slot, err := s.svc.Slots.Create(c.Request.Context(), in)
	if err != nil {
		s.fail(c, "create_slot", err)
		return
	}
	ok(c, http.StatusCreated, api.SlotFrom(slot))
}

func (s *Server) getSlot(c *gin.Context) {
	id, valid := s.pathID(c, "get_slot")
	if !valid {
		return
	}
	slot, err := s.svc.Slots.Get(c.Request.Context(), id)
	if err != nil {
		s.fail(c, "get_slot", err)
		return
	}
	ok(c, http.StatusOK, api.SlotFrom(slot))
}

func (s *Server) updateSlot(c *gin.Context) {
	id, valid := s.pathID(c, "update_slot")
	if !valid {
		return
	}
	var req api.UpdateSlotRequest
	if !s.bind(c, "update_slot", &req) {
		return
	}
	patch, err := req.Patch()
	if err != nil {
		s.fail(c, "update_slot", err)
		return
	}
	slot, err := s.svc.Slots.Update(c.Request.Context(), id, patch)
	if err != nil {
		s.fail(c, "update_slot", err)
		return
	}
	ok(c, http.StatusOK, api.SlotFrom(slot))
}

func (s *Server) deleteSlot(c *gin.Context) {
	id, valid := s.pathID(c, "delete_slot")
	if !valid {
		return
	}
	if err := s.svc.Slots.Delete(c.Request.Context(), id); err != nil {
		s.fail(c, "delete_slot", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) transitionSlot(c *gin.Context) {
	id, valid := s.pathID(c, "transition_slot")
	if !valid {
		return
	}
	var req api.TransitionRequest
	if !s.bind(c, "transition_slot", &req) {
		return
	}
	next, err := req.Next()
	if err != nil {
		s.fail(c, "transition_slot", err)
		return
	}
	slot, err := s.svc.Slots.TransitionStatus(c.Request.Context(), id, next)
	if err != nil {
		s.fail(c, "transition_slot", err)
		return
	}
	ok(c, http.StatusOK, api.SlotFrom(slot))
}

func (s *Server) setPaymentStatus(c *gin.Context) {
	id, valid := s.pathID(c, "set_payment_status")
	if !valid {
		return
	}
	var req api.PaymentStatusRequest
	if !s.bind(c, "set_payment_status", &req) {
		return
	}
	if err := api.Validate(req); err != nil {
		s.fail(c, "set_payment_status", err)
		return
	}
	slot, err := s.svc.Slots.SetPaymentStatus(c.Request.Context(), id, req.PaymentStatus)
	if err != nil {
		s.fail(c, "set_payment_status", err)
		return
	}
	ok(c, http.StatusOK, api.SlotFrom(slot))
}

func (s *Server) listBookingRequests(c *gin.Context) {
	var status domain.BookingStatus
	if raw := c.Query("status"); raw != "" {
		st, err := domain.ParseBookingStatus(raw)
		if err != nil {
			s.fail(c, "list_booking_requests", scheduling.NewValidationError(err.Error()))
			return
		}
		status = st
	}
	reqs, err := s.svc.Bookings.List(c.Request.Context(), status)
	if err != nil {
		s.fail(c, "list_booking_requests", err)
		return
	}
	ok(c, http.StatusOK, api.BookingRequestsFrom(reqs))
}

func (s *Server) submitBookingRequest(c *gin.Context) {
	var req api.SubmitBookingRequest
	if !s.bind(c, "submit_booking_request", &req) {
		return
	}
	in, err := req.Input()
	if err != nil {
		s.fail(c, "submit_booking_request", err)
		return
	}
	created, err := s.svc.Bookings.Submit(c.Request.Context(), in)
	if err != nil {
		s.fail(c, "submit_booking_request", err)
		return
	}
	ok(c, http.StatusCreated, api.BookingRequestFrom(created))
}

func (s *Server) getBookingRequest(c *gin.Context) {
	id, valid := s.pathID(c, "get_booking_request")
	if !valid {
		return
	}
	req, err := s.svc.Bookings.Get(c.Request.Context(), id)
	if err != nil {
		s.fail(c, "get_booking_request", err)
		return
	}
	ok(c, http.StatusOK, api.BookingRequestFrom(req))
}

func (s *Server) approveBookingRequest(c *gin.Context) {
	id, valid := s.pathID(c, "approve_booking_request")
	if !valid {
		return
	}
	var req api.ApproveBookingRequest
	if !s.bind(c, "approve_booking_request", &req) {
		return
	}
	choice, err := req.Choice()
	if err != nil {
		s.fail(c, "approve_booking_request", err)
		return
	}
	res, err := s.svc.Bookings.Approve(c.Request.Context(), id, choice)
	if err != nil {
		s.fail(c, "approve_booking_request", err)
		return
	}
	ok(c, http.StatusOK, api.ApprovalFrom(res))
}

func (s *Server) rejectBookingRequest(c *gin.Context) {
	id, valid := s.pathID(c, "reject_booking_request")
	if !valid {
		return
	}
	var req api.RejectBookingRequest
	if c.Request.ContentLength != 0 && !s.bind(c, "reject_booking_request", &req) {
		return
	}
	if err := api.Validate(req); err != nil {
		s.fail(c, "reject_booking_request", err)
		return
	}
	rejected, err := s.svc.Bookings.Reject(c.Request.Context(), id, req.Reason)
	if err != nil {
		s.fail(c, "reject_booking_request", err)
		return
	}
	ok(c, http.StatusOK, api.BookingRequestFrom(rejected))
}

func (s *Server) dailyReport(c *gin.Context) {
	date, valid := s.queryDate(c, "daily_report")
	if !valid {
		return
	}
	report, err := s.svc.Metrics.DailyReport(c.Request.Context(), date)
	if err != nil {
		s.fail(c, "daily_report", err)
		return
	}
	ok(c, http.StatusOK, api.DailyReportFrom(report))
}

func (s *Server) utilization(c *gin.Context) {
	date, valid := s.queryDate(c, "utilization")
	if !valid {
		return
	}
	surfaceID := c.Query("surface_id")
	pct, err := s.svc.Metrics.UtilizationRate(c.Request.Context(), surfaceID, date)
	if err != nil {
		s.fail(c, "utilization", err)
		return
	}
	ok(c, http.StatusOK, api.Utilization{SurfaceID: surfaceID, Date: date.Format(domain.DateLayout), UtilizationPercent: pct})
}

func (s *Server) revenue(c *gin.Context) {
	date, valid := s.queryDate(c, "revenue")
	if !valid {
		return
	}
	cents, err := s.svc.Metrics.DailyRevenue(c.Request.Context(), date)
	if err != nil {
		s.fail(c, "revenue", err)
		return
	}
	ok(c, http.StatusOK, api.Revenue{Date: date.Format(domain.DateLayout), RevenueCents: cents})
}
