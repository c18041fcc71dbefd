package app

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dailysend/internal/handler"
	"github.com/dailysend/internal/middleware"
	"github.com/dailysend/internal/web"
)

func (app *App) routes(ctx context.Context) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.SecurityHeaders)

	// Unauthenticated probes
	r.Get("/api/health", handler.Health(app.runs))
	r.Handle("/metrics", promhttp.HandlerFor(app.registry, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		r.Use(middleware.BasicAuth(app.config.AdminPasswordHash))

		// Static files
		r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(web.StaticFS))))

		r.Get("/", handler.Form(web.Templates, app.config.MaxUploadSizeMB))

		runs := handler.NewRunsHandler(ctx, app.logger, app.loop, app.runs, app.config)
		limit := middleware.RateLimit(middleware.PerMinute(app.config.RunRatePerMinute), app.config.RunRatePerMinute)
		r.With(limit).Post("/api/runs", runs.Create)
		r.Get("/api/runs/{id}", runs.Get)
		r.Get("/api/runs/{id}/events", runs.Events)
	})
	return r
}
