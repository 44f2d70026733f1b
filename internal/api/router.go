package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type RouterConfig struct {
	Service BookingService
	PgPool  *pgxpool.Pool
	Redis   *redis.Client
	Logger  zerolog.Logger
	Env     string
	Version string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(IdentityMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Booking
	r.Post("/psychologist/save-appointment", saveAppointmentHandler(cfg.Service, cfg.Logger))

	// Appointment lifecycle
	r.Get("/appointments", listAppointmentsHandler(cfg.Service, cfg.Logger))
	r.Get("/appointments/{appointmentID}", getAppointmentHandler(cfg.Service, cfg.Logger))
	r.Patch("/appointments/{appointmentID}/status", updateStatusHandler(cfg.Service, cfg.Logger))

	// Availability
	r.Post("/availability/create", createAvailabilityHandler(cfg.Service, cfg.Logger))
	r.Post("/availability/batch-create", batchCreateAvailabilityHandler(cfg.Service, cfg.Logger))
	r.Get("/psychologist/scheduleList/{doctorID}", listSchedulesHandler(cfg.Service, cfg.Logger))
	r.Get("/psychologist/schedule/{scheduleID}", getScheduleHandler(cfg.Service, cfg.Logger))

	return r
}
