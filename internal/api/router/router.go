// Package router assembles the chi router for the gateway.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/aegisgraph/aegisgraph/internal/http/handlers"
	httpmiddleware "github.com/aegisgraph/aegisgraph/internal/http/middleware"
	"github.com/aegisgraph/aegisgraph/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger             *logging.Logger
	ChatHandler        *handlers.ChatHandler
	AdminSecurity      *handlers.AdminSecurityHandler
	RateLimiter        *httpmiddleware.RateLimiter
	AdminAuthSecret    string
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
}

// New creates a chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	if cfg.ChatHandler != nil {
		r.Group(func(chat chi.Router) {
			if cfg.RateLimiter != nil {
				chat.Use(httpmiddleware.RateLimit(cfg.RateLimiter))
			}
			chat.Post("/v1/chat", cfg.ChatHandler.Handle)
		})
	}

	if cfg.AdminSecurity != nil {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
			admin.Get("/security-mode", cfg.AdminSecurity.GetMode)
			admin.Post("/security-mode", cfg.AdminSecurity.SetMode)
			admin.Get("/incidents", cfg.AdminSecurity.ListIncidents)
		})
	}

	return r
}
