package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"studio/internal/http/handlers"
	"studio/internal/middleware"
)

// Options configures the router beyond the handlers themselves.
type Options struct {
	Logger          zerolog.Logger
	StaticDir       string
	AllowedOrigins  []string
	RateLimitPerMin int
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(opts.Logger),
		middleware.CORS(opts.AllowedOrigins),
	)

	r.Get("/v1/healthz", app.Health)

	r.Route("/v1/jobs", func(r chi.Router) {
		r.With(rateLimit(opts.RateLimitPerMin)).Post("/", app.JobsCreate)
		r.Post("/reconcile", app.JobsReconcile)
		r.Route("/{job_id}", func(r chi.Router) {
			r.Get("/", app.JobGet)
			r.Get("/segments", app.JobSegments)
			r.Get("/bundle", app.JobBundle)
			r.Post("/critic", app.JobCritic)
		})
	})

	if opts.StaticDir != "" {
		r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.Dir(opts.StaticDir))))
	}

	return r
}

func rateLimit(perMinute int) func(http.Handler) http.Handler {
	if perMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return middleware.RateLimit(perMinute, time.Minute)
}
