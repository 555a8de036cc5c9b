package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/simplyinspect/permwatch/internal/api/handlers"
	"github.com/simplyinspect/permwatch/internal/api/middleware"
	"github.com/simplyinspect/permwatch/internal/config"
	"github.com/simplyinspect/permwatch/internal/pkg/logger"
	"github.com/simplyinspect/permwatch/internal/pkg/metrics"
)

type Handlers struct {
	Health       *handlers.HealthHandler
	Baseline     *handlers.BaselineHandler
	Change       *handlers.ChangeHandler
	Detection    *handlers.DetectionHandler
	Notification *handlers.NotificationHandler
}

func New(cfg *config.Config, log *logger.Logger, h *Handlers) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(log))
	r.Use(middleware.Recovery(log))
	r.Use(middleware.CORS(cfg.Server.CORSOrigins))
	r.Use(middleware.RateLimit(100, 200)) // 100 req/sec, burst of 200
	r.Use(metrics.Middleware)

	// Health checks and metrics
	r.Get("/health", h.Health.Healthz)
	r.Get("/healthz", h.Health.Healthz)
	r.Get("/readyz", h.Health.Readyz)
	r.Handle("/metrics", metrics.Handler())

	// Baselines
	r.Route("/api/v1/baselines", func(r chi.Router) {
		r.Get("/", h.Baseline.ListBaselines)
		r.Post("/", h.Baseline.CaptureBaseline)
		r.Get("/active", h.Baseline.GetActiveBaseline)
		r.Get("/{id}", h.Baseline.GetBaseline)
		r.Delete("/{id}", h.Baseline.DeleteBaseline)
		r.Post("/{id}/activate", h.Baseline.ActivateBaseline)
		r.Post("/{id}/deactivate", h.Baseline.DeactivateBaseline)
		r.Get("/{id}/statistics", h.Baseline.GetStatistics)
		r.Get("/{id}/compare", h.Detection.Compare)
	})

	// Changes
	r.Route("/api/v1/changes", func(r chi.Router) {
		r.Get("/", h.Change.ListChanges)
		r.Post("/review", h.Change.MarkReviewed)
		r.Get("/{id}", h.Change.GetChange)
	})

	// Detection
	r.Route("/api/v1/detection", func(r chi.Router) {
		r.Post("/run", h.Detection.RunSite)
		r.Post("/run-all", h.Detection.RunAll)
	})

	// Notifications
	r.Route("/api/v1/notifications", func(r chi.Router) {
		r.Get("/recipients", h.Notification.ListRecipients)
		r.Post("/recipients", h.Notification.UpsertRecipient)
		r.Delete("/recipients/{id}", h.Notification.RemoveRecipient)
		r.Get("/messages", h.Notification.ListMessages)
		r.Post("/messages/{id}/cancel", h.Notification.CancelMessage)
		r.Get("/queue", h.Notification.QueueDepth)
		r.Post("/process", h.Notification.ProcessQueue)
	})

	return r
}
