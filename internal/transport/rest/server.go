// Package rest serves the scheduling services as a JSON API for the schedule,
// booking-request and rink-admin screens.
package rest

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"icetime/backend/internal/transport/api"
)

type Options struct {
	AllowedOrigins []string
	RequestTimeout time.Duration
}

type Server struct {
	svc api.Services
	log *slog.Logger
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(svc api.Services, opts Options, log *slog.Logger) *gin.Engine {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{svc: svc, log: log.With(slog.String("component", "http"))}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	corsCfg := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", "X-Request-ID", "Idempotency-Key"},
		ExposeHeaders: []string{"Content-Length", "X-Request-ID"},
		MaxAge:        12 * time.Hour,
	}
	if len(opts.AllowedOrigins) == 0 || (len(opts.AllowedOrigins) == 1 && opts.AllowedOrigins[0] == "*") {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = opts.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	r.Use(requestID())
	r.Use(tracing())
	r.Use(requestLogger(s.log))
	r.Use(recovery(s.log))
	r.Use(requestTimeout(opts.RequestTimeout))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := r.Group("/api/v1")
	{
		surfaces := v1.Group("/surfaces")
		surfaces.GET("", s.listSurfaces)
		surfaces.GET("/:id", s.getSurface)
		surfaces.PUT("/:id/active", s.setSurfaceActive)

		slots := v1.Group("/slots")
		slots.GET("", s.listSlots)
		slots.POST("", s.createSlot)
		slots.GET("/:id", s.getSlot)
		slots.PATCH("/:id", s.updateSlot)
		slots.DELETE("/:id", s.deleteSlot)
		slots.POST("/:id/status", s.transitionSlot)
		slots.PUT("/:id/payment-status", s.setPaymentStatus)

		requests := v1.Group("/booking-requests")
		requests.GET("", s.listBookingRequests)
		requests.POST("", s.submitBookingRequest)
		requests.GET("/:id", s.getBookingRequest)
		requests.POST("/:id/approve", s.approveBookingRequest)
		requests.POST("/:id/reject", s.rejectBookingRequest)

		metrics := v1.Group("/metrics")
		metrics.GET("/daily", s.dailyReport)
		metrics.GET("/utilization", s.utilization)
		metrics.GET("/revenue", s.revenue)
	}

	return r
}
