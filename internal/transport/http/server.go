// Package transporthttp exposes the assignment, recording and report
// services over HTTP/JSON.
package transporthttp

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"example.com/abtest/internal/config"
	"example.com/abtest/internal/domain"
	"example.com/abtest/internal/identity"
	"example.com/abtest/internal/metrics"
	"example.com/abtest/internal/recording"
)

type Assigner interface {
	Assign(ctx context.Context, userToken string) (domain.Variant, error)
}

type EventRecorder interface {
	Record(ctx context.Context, in recording.EventInput) (recording.EventResult, error)
}

type EnrollmentRecorder interface {
	Record(ctx context.Context, in recording.EnrollmentInput) (recording.EnrollmentResult, error)
}

type Reporter interface {
	Report(ctx context.Context) (metrics.Report, error)
}

// Store is the read side the handlers need directly.
type Store interface {
	ListEvents(ctx context.Context) ([]domain.Event, error)
	ListEnrollments(ctx context.Context) ([]domain.Enrollment, error)
	Ready(ctx context.Context) error
}

type ServerDeps struct {
	Cfg         config.Config
	Identity    *identity.Resolver
	Assigner    Assigner
	Events      EventRecorder
	Enrollments EnrollmentRecorder
	Reports     Reporter
	Store       Store
	Now         func() time.Time
}

// Router mounts every route at the root and again under /api.
func (d *ServerDeps) Router() http.Handler {
	if d.Now == nil {
		d.Now = func() time.Time { return time.Now().UTC() }
	}
	if d.Identity == nil {
		d.Identity = identity.NewResolver(identity.Options{})
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(recoverMiddleware)
	r.Use(loggingMiddleware)
	r.Use(d.Identity.Middleware)

	reportLimit := RateLimitPerMinute(d.Cfg.RateLimitReportPerMin, d.Now)
	routes := func(r chi.Router) { d.routes(r, reportLimit) }
	routes(r)
	r.Route("/api", routes)
	return r
}

// routes is mounted twice; reportLimit is shared so both prefixes draw from
// one bucket.
func (d *ServerDeps) routes(r chi.Router, reportLimit func(http.Handler) http.Handler) {
	r.Get("/health", d.HandleHealth)
	r.Get("/readyz", d.HandleReadyz)

	r.With(BodyLimit(d.Cfg.MaxBodyBytes)).Post("/variant", d.HandleVariant)

	write := r.With(BodyLimit(d.Cfg.MaxBodyBytes), RequireJSON)
	write.Post("/events", d.HandlePostEvent)
	write.Post("/enrollments", d.HandlePostEnrollment)

	read := r.With(APIKeyAuth(d.Cfg.APIKeys))
	read.Get("/events", d.HandleListEvents)
	read.Get("/enrollments", d.HandleListEnrollments)
	read.With(reportLimit).Get("/report", d.HandleReport)
}
