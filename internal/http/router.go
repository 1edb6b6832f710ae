// Package httpapi assembles the chi router for the API process.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"videogen-server/internal/http/handlers"
	"videogen-server/internal/middleware"
)

// NewRouter builds the HTTP surface. The rate limiter is constructed here so
// its window state lives with this server instance.
func NewRouter(app *handlers.App) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID, chimw.RealIP, chimw.Recoverer, chimw.Logger)

	limiter := middleware.NewRateLimiter(app.Config.RateLimitPerMin, time.Minute)
	r.Use(limiter.Middleware)

	r.Get("/v1/healthz", app.Health)

	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthJWT(app.Config.JWTSecret))

		r.Route("/v1/videos", func(r chi.Router) {
			r.Post("/", app.VideosGenerate)
			r.Get("/", app.VideosList)
			r.Get("/{job_id}", app.VideoStatus)
			r.Post("/{job_id}/refresh", app.VideoRefresh)
		})

		r.Post("/v1/admin/sweep", app.SweepNow)
	})

	return r
}
