// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging, panic recovery, metrics, CORS,
// security headers, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Separate trust zones: webhook ingestion (per-source secret), operator
//     API (bearer token), admin surface (bearer token + role + origin gate)
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/fluxleads/flux-leads-backend/internal/config"
	"github.com/fluxleads/flux-leads-backend/internal/http/handlers"
	"github.com/fluxleads/flux-leads-backend/internal/http/middleware"
	"github.com/fluxleads/flux-leads-backend/internal/realtime"
	"github.com/fluxleads/flux-leads-backend/internal/services"
)

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), rate limiting, CORS
// and security headers, health and metrics endpoints, and then mounts the
// three route groups: webhook ingestion at the root, the operator API under
// cfg.APIBasePath, and the admin surface under /api/admin.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. Logger: structured access logs
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. CORS and security headers
//  8. Per-group: rate limiting and authentication
func RegisterRoutes(r *gin.Engine, db *gorm.DB, hub *realtime.Hub, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured access logging
	r.Use(middleware.Logger())

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Compress API responses. The SSE stream and the metrics endpoint are
	// excluded: gzip buffers defeat event flushing.
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{
		cfg.APIBasePath + "/stream",
		"/metrics",
	})))

	// 7) CORS posture (safe defaults: allow all if none configured)
	if len(cfg.CORS.AllowedOrigins) == 0 {
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Webhook-Secret"},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Webhook-Secret"},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// Dependency injection: services ← db/hub/config
	resolver := &services.ContactResolver{DB: db}
	deals := &services.DealService{
		DB:                 db,
		DefaultProbability: cfg.Ingest.DefaultProbability,
		DefaultPriority:    cfg.Ingest.DefaultPriority,
	}
	chatRouter := &services.ChatRouter{DB: db}
	msgSvc := &services.MessageService{
		DB:          db,
		Hub:         hub,
		DedupWindow: cfg.Ingest.DedupWindow,
	}
	ingestSvc := services.NewIngestService(db, resolver, deals, chatRouter, msgSvc, cfg.Ingest.SourceCacheTTL)
	dispatchSvc := services.NewDispatchService(db, hub, cfg.Dispatch.Timeout)
	adminSvc := &services.AdminService{DB: db}

	wh := handlers.NewWebhook(ingestSvc)
	ch := handlers.NewChat(dispatchSvc, msgSvc, hub)
	ah := handlers.NewAdmin(adminSvc)

	// Webhook ingestion: secret-per-source auth inside the handler, rate
	// limited per source so one chatty provider cannot starve the rest.
	sourceRL := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyBySourceOrIP())
	r.POST("/webhook-in/:source_id", sourceRL.Handler(), wh.Ingest)

	// Operator API: bearer-token auth, rate limited per user.
	userRL := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())
	api := groupWithPrefix(r, cfg.APIBasePath)
	api.Use(middleware.UserAuth(adminSvc), userRL.Handler())
	{
		api.POST("/chat-out", ch.SendMessage)
		api.GET("/sessions", ch.ListSessions)
		api.GET("/sessions/:id/messages", ch.ListMessages)
		api.POST("/sessions/:id/read", ch.MarkRead)
		api.GET("/stream", ch.Stream)
	}

	// Admin surface: token + admin role + browser-origin allowlist.
	admin := r.Group("/api/admin")
	admin.Use(
		middleware.UserAuth(adminSvc),
		middleware.RequireAdmin(),
		middleware.AdminOriginGate(cfg.CORS.AllowedOrigins),
		userRL.Handler(),
	)
	{
		admin.GET("/users", ah.ListUsers)
		admin.POST("/users", ah.CreateUser)
		admin.PATCH("/users/:id", ah.UpdateUser)
		admin.DELETE("/users/:id", ah.DeleteUser)
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
