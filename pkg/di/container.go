package di

import (
	"context"
	"time"

	catalogrepo "llm-arena/backend/catalog/repository"
	catalogservice "llm-arena/backend/catalog/service"
	convrepo "llm-arena/backend/conversation/repository"
	convservice "llm-arena/backend/conversation/service"
	"llm-arena/backend/conversation/ws"
	feedbackrepo "llm-arena/backend/feedback/repository"
	feedbackservice "llm-arena/backend/feedback/service"
	"llm-arena/backend/pkg/cache"
	"llm-arena/backend/pkg/config"
	"llm-arena/backend/pkg/health"
	"llm-arena/backend/pkg/jwt"
	"llm-arena/backend/pkg/logger"
	"llm-arena/backend/provider"
	ratingrepo "llm-arena/backend/rating/repository"
	ratingservice "llm-arena/backend/rating/service"
	sessionrepo "llm-arena/backend/session/repository"
	sessionservice "llm-arena/backend/session/service"
	sharedredis "llm-arena/backend/shared/redis"

	"gorm.io/gorm"
)

// Container holds all the dependencies for the application
type Container struct {
	DB     *gorm.DB
	Redis  *sharedredis.RedisClient
	Logger *logger.Logger
	Config *config.Config

	JWTService   *jwt.Service
	Catalog      *catalogservice.CatalogService
	Sessions     *sessionservice.Gateway
	Tree         convrepo.TreeStore
	Orchestrator *convservice.Orchestrator
	Hub          *ws.Hub
	Engine       *ratingservice.Engine
	Leaderboard  *ratingservice.Leaderboard
	Recomputer   *ratingservice.Recomputer
	Feedback     *feedbackservice.Service
	Health       *health.Checker
}

// Config holds the configuration for the container
type Config struct {
	App    *config.Config
	Logger *logger.Logger

	// Redis is optional; without it the leaderboard only caches locally and
	// stream events stay on this instance.
	Redis *sharedredis.RedisClient

	// Adapter overrides the provider registry built from App
	Adapter convservice.Adapter
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		App:    config.Get(),
		Logger: logger.GetGlobal(),
	}
}

// New creates a new dependency injection container. A nil db selects the
// in-memory stores.
func New(ctx context.Context, db *gorm.DB, cfg *Config) (*Container, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.App == nil {
		cfg.App = config.Get()
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.GetGlobal()
	}
	app, log := cfg.App, cfg.Logger

	var (
		models      catalogrepo.ModelRepository
		sessions    sessionrepo.SessionRepository
		tree        convrepo.TreeStore
		ratings     ratingrepo.Store
		preferences feedbackrepo.PreferenceRepository
	)
	if db != nil {
		models = catalogrepo.NewGormModelRepository(db)
		sessions = sessionrepo.NewGormSessionRepository(db)
		tree = convrepo.NewGormTreeStore(db)
		ratings = ratingrepo.NewGormStore(db)
		preferences = feedbackrepo.NewGormPreferenceRepository(db)
	} else {
		log.Warn("No database configured, using in-memory stores")
		models = catalogrepo.NewMemoryModelRepository()
		sessions = sessionrepo.NewMemorySessionRepository()
		tree = convrepo.NewMemoryTreeStore()
		ratings = ratingrepo.NewMemoryStore()
		preferences = feedbackrepo.NewMemoryPreferenceRepository()
	}

	catalog := catalogservice.NewCatalogService(models, log, app.Arena.MaxValidationFails)
	gateway := sessionservice.NewGateway(sessions, catalog, log)

	adapter := cfg.Adapter
	if adapter == nil {
		adapter = provider.NewRegistryFromConfig(ctx, app, log)
	}

	hub := ws.NewHub(log)
	var sink convservice.Sink = hub
	if cfg.Redis != nil {
		// The hub is fed back through the redis relay so every instance
		// sees every session.
		sink = convservice.NewRedisSink(cfg.Redis)
	}

	orchestrator := convservice.NewOrchestrator(tree, adapter, gateway, catalog, sink, convservice.Config{
		FlushEveryChunks: app.Arena.FlushEveryChunks,
		FlushInterval:    app.Arena.FlushInterval,
		BranchTimeout:    app.Arena.BranchTimeout,
		EventBuffer:      app.Arena.EventBufferSize,
	}, log)

	engine := ratingservice.NewEngine(ratings, catalog, app.Arena.RatingMaxRetries, log)
	leaderboard := ratingservice.NewLeaderboard(ratings, catalog, cache.NewFromConfig(app.Arena.LeaderboardTTL), cfg.Redis, app.Arena.LeaderboardTTL, log)
	barrier := ratingservice.NewBarrier()
	recomputer := ratingservice.NewRecomputer(ratings, preferences, log).WithBarrier(barrier)

	feedback := feedbackservice.NewService(preferences, gateway, orchestrator, engine, leaderboard, feedbackservice.Config{
		QueueSize:     app.Arena.FeedbackQueueSize,
		Workers:       app.Arena.FeedbackWorkers,
		SweepInterval: time.Minute,
		Gate:          barrier,
	}, log)

	checker := health.NewChecker(log, 30*time.Second)
	if db != nil {
		checker.RegisterDatabaseCheck(func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		})
	}
	if cfg.Redis != nil {
		checker.RegisterRedisCheck(cfg.Redis.Ping)
	}

	return &Container{
		DB:           db,
		Redis:        cfg.Redis,
		Logger:       log,
		Config:       app,
		JWTService:   jwt.NewService(app.JWT.Secret, app.JWT.Expiry),
		Catalog:      catalog,
		Sessions:     gateway,
		Tree:         tree,
		Orchestrator: orchestrator,
		Hub:          hub,
		Engine:       engine,
		Leaderboard:  leaderboard,
		Recomputer:   recomputer,
		Feedback:     feedback,
		Health:       checker,
	}, nil
}

// Start launches the background workers: the event hub, the redis relay
// when configured, the feedback workers and the health checker.
func (c *Container) Start(ctx context.Context) {
	go c.Hub.Run(ctx)
	if c.Redis != nil {
		go func() {
			if err := c.Hub.RelayFromRedis(ctx, c.Redis); err != nil && ctx.Err() == nil {
				c.Logger.LogError(err, "Redis event relay stopped")
			}
		}()
	}
	c.Feedback.Start(ctx)
	c.Health.Start(ctx)
}
