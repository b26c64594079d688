package server

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/oggyb/muzz-introductions/internal/config"
	"github.com/oggyb/muzz-introductions/internal/handler"
	"github.com/oggyb/muzz-introductions/internal/metrics"
	"github.com/oggyb/muzz-introductions/internal/middleware"
)

// NewRouter mounts the API and /metrics behind the middleware chain:
// recover, access log, metrics, rate limit, then CORS around everything.
func NewRouter(cfg *config.Config, h *handler.Handler, limiter *middleware.RateLimiter, log *slog.Logger) http.Handler {
	r := mux.NewRouter()
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	h.RegisterRoutes(r)

	r.Use(middleware.Recover(log))
	r.Use(middleware.AccessLog(log))
	r.Use(metrics.InstrumentHandler)
	if limiter != nil {
		r.Use(limiter.Handler)
	}

	c := cors.New(cors.Options{
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{middleware.RequestIDHeader},
	})
	return c.Handler(r)
}

// NewHTTPServer binds h to the configured address.
func NewHTTPServer(cfg *config.Config, h http.Handler) *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      h,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}
}
