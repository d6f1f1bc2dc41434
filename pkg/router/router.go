package router

import (
	"net/http"
	"slices"
	"time"

	catalogapi "llm-arena/backend/catalog/api"
	conversationapi "llm-arena/backend/conversation/api"
	"llm-arena/backend/conversation/ws"
	feedbackapi "llm-arena/backend/feedback/api"
	"llm-arena/backend/pkg/config"
	"llm-arena/backend/pkg/di"
	"llm-arena/backend/pkg/errors"
	"llm-arena/backend/pkg/logger"
	"llm-arena/backend/pkg/middleware"
	ratingapi "llm-arena/backend/rating/api"
	sessionapi "llm-arena/backend/session/api"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// Track server start time for uptime calculations
var startTime = time.Now()

// Router is the main router for the application
type Router struct {
	Engine      *gin.Engine
	Container   *di.Container
	Logger      *logger.Logger
	Config      *config.Config
	RateLimiter *middleware.RateLimiter
}

// New creates a new router with the given container
func New(container *di.Container) *Router {
	cfg := container.Config

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()

	// Logger first so every request, including rejected ones, is recorded
	engine.Use(middleware.RequestIDMiddleware())
	engine.Use(logger.Middleware(container.Logger))
	engine.Use(errors.ErrorHandler())
	engine.Use(errors.RecoveryWithLogger())
	engine.Use(corsMiddleware(cfg.Security.AllowedOrigins))

	opts := middleware.DefaultRateLimiterOptions()
	if cfg.Security.RateLimit > 0 {
		opts.Limit = rate.Limit(cfg.Security.RateLimit)
	}
	if cfg.Security.RateLimitBurst > 0 {
		opts.Burst = cfg.Security.RateLimitBurst
	}
	rateLimiter := middleware.NewRateLimiter(container.Logger, opts)
	engine.Use(rateLimiter.Middleware())

	return &Router{
		Engine:      engine,
		Container:   container,
		Logger:      container.Logger,
		Config:      cfg,
		RateLimiter: rateLimiter,
	}
}

// SetupRoutes registers all application routes
func (r *Router) SetupRoutes() {
	c := r.Container
	jwtAuth := middleware.JWTAuthMiddleware(c.JWTService, r.Logger)

	r.setupHealthRoutes()

	v1 := r.Engine.Group("/api/v1")
	catalogapi.RegisterCatalogRoutes(v1, catalogapi.NewCatalogHandler(c.Catalog), jwtAuth)
	sessionapi.RegisterSessionRoutes(v1, sessionapi.NewSessionHandler(c.Sessions), jwtAuth)
	conversationapi.RegisterConversationRoutes(v1, conversationapi.NewConversationHandler(c.Orchestrator), jwtAuth)
	ratingapi.RegisterRatingRoutes(v1, ratingapi.NewRatingHandler(c.Engine, c.Leaderboard, c.Recomputer), jwtAuth)
	feedbackapi.RegisterFeedbackRoutes(v1, feedbackapi.NewFeedbackHandler(c.Feedback), jwtAuth)

	ws.RegisterWebsocketRoutes(r.Engine, ws.NewHandler(c.Hub, c.Sessions, r.Logger), jwtAuth)
}

// corsMiddleware allows the configured origins ("*" allows any) and the
// headers websocket upgrades and SSE need.
func corsMiddleware(allowed []string) gin.HandlerFunc {
	allowAll := len(allowed) == 0 || slices.Contains(allowed, "*")
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		switch {
		case origin == "" || allowAll:
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		case slices.Contains(allowed, origin):
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Add("Vary", "Origin")
		}

		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept, Accept-Encoding, Authorization, Origin, Upgrade, Connection, Cache-Control, X-Request-ID")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Upgrade, Connection, X-Request-ID")
		c.Writer.Header().Set("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
