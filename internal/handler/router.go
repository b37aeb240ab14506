package handler

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/choisimo/proxy-rotator/internal/config"
	"github.com/choisimo/proxy-rotator/internal/domain"
	"github.com/choisimo/proxy-rotator/internal/middleware"
	"github.com/choisimo/proxy-rotator/pkg/logger"
)

// Version is reported by the health endpoints
const Version = "1.0.0"

// NewRouter assembles the HTTP API: health probes, the caller-facing proxy
// endpoints, and the admin surface with optional rate limiting. The
// middleware chain wraps the router itself so CORS preflights and error
// responses pass through it too.
func NewRouter(pool domain.ProxyPool, cfg *config.Config, log *logger.Logger) http.Handler {
	router := mux.NewRouter()

	router.NotFoundHandler = notFoundHandler()
	router.MethodNotAllowedHandler = methodNotAllowedHandler()

	healthHandler := NewHealthHandler(pool, Version)
	router.HandleFunc("/health", healthHandler.HealthHandler).Methods(http.MethodGet)
	router.HandleFunc("/readiness", healthHandler.ReadinessHandler).Methods(http.MethodGet)
	router.HandleFunc("/liveness", healthHandler.LivenessHandler).Methods(http.MethodGet)

	proxyHandler := NewProxyHandler(pool, log)
	proxyRouter := router.PathPrefix("/proxy").Subrouter()
	proxyRouter.HandleFunc("/next", proxyHandler.NextProxyHandler).Methods(http.MethodGet, http.MethodPost)
	proxyRouter.HandleFunc("/record", proxyHandler.RecordResultHandler).Methods(http.MethodPost)
	proxyRouter.HandleFunc("/captcha", proxyHandler.RecordCaptchaHandler).Methods(http.MethodPost)

	adminHandler := NewAdminHandler(pool, log)
	adminRouter := router.PathPrefix("/admin").Subrouter()
	if cfg.RateLimit.Enabled {
		limiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.BurstSize, log.MiddlewareLogger("rate_limit"))
		adminRouter.Use(limiter.Middleware())
	}
	adminRouter.HandleFunc("/proxy-pool", adminHandler.ListProxiesHandler).Methods(http.MethodGet)
	adminRouter.HandleFunc("/proxy-pool", adminHandler.AddProxyHandler).Methods(http.MethodPost)
	adminRouter.HandleFunc("/proxy-pool/{id}", adminHandler.GetProxyHandler).Methods(http.MethodGet)
	adminRouter.HandleFunc("/proxy-pool/{id}", adminHandler.DeleteProxyHandler).Methods(http.MethodDelete)
	adminRouter.HandleFunc("/proxy-pool/{id}", adminHandler.PatchProxyHandler).Methods(http.MethodPatch)
	adminRouter.HandleFunc("/proxy-pool-config", adminHandler.GetConfigHandler).Methods(http.MethodGet)
	adminRouter.HandleFunc("/proxy-pool-config", adminHandler.PatchConfigHandler).Methods(http.MethodPatch)
	adminRouter.HandleFunc("/proxy-rotate-test", adminHandler.RotateTestHandler).Methods(http.MethodPost)
	adminRouter.HandleFunc("/proxy-health-check", adminHandler.TriggerHealthCheckHandler).Methods(http.MethodPost)
	adminRouter.HandleFunc("/proxy-reset-stats", adminHandler.ResetStatsHandler).Methods(http.MethodPost)
	adminRouter.HandleFunc("/proxy-save", adminHandler.SavePoolHandler).Methods(http.MethodPost)
	adminRouter.HandleFunc("/proxy-load", adminHandler.LoadPoolHandler).Methods(http.MethodPost)
	adminRouter.HandleFunc("/proxy-stats", adminHandler.StatsHandler).Methods(http.MethodGet)

	var h http.Handler = router
	h = middleware.SecurityHeadersMiddleware()(h)
	h = middleware.CORSMiddleware()(h)
	h = middleware.LoggingMiddleware(log)(h)
	h = middleware.RecoveryMiddleware(log)(h)
	return h
}

func notFoundHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeErrorMessage(w, http.StatusNotFound, "not found")
	})
}

func methodNotAllowedHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeErrorMessage(w, http.StatusMethodNotAllowed, "method not allowed")
	})
}
