package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	catalogmodels "llm-arena/backend/catalog/models"
	convmodels "llm-arena/backend/conversation/models"
	convrepo "llm-arena/backend/conversation/repository"
	feedbackmodels "llm-arena/backend/feedback/models"
	"llm-arena/backend/pkg/config"
	"llm-arena/backend/pkg/di"
	"llm-arena/backend/pkg/logger"
	"llm-arena/backend/pkg/router"
	"llm-arena/backend/pkg/secrets"
	ratingmodels "llm-arena/backend/rating/models"
	sessionmodels "llm-arena/backend/session/models"
	"llm-arena/backend/shared/observability"
	sharedredis "llm-arena/backend/shared/redis"

	"google.golang.org/grpc"
	"gorm.io/gorm"
)

func main() {
	cfg := config.New()

	logConfig := logger.DefaultConfig()
	logConfig.Level = cfg.Logging.Level
	logConfig.JSON = cfg.Logging.Format != "text"
	log := logger.New(logConfig)
	logger.SetGlobal(log)

	log.Info("Starting application", "version", os.Getenv("APP_VERSION"), "env", cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	setupSecrets(cfg, log)

	shutdownTracing, err := observability.SetupTracing(cfg.Server.ServiceName, nil)
	if err != nil {
		log.LogError(err, "Failed to initialize tracing")
		os.Exit(1)
	}
	shutdownMetrics, err := observability.SetupMetrics(cfg.Server.ServiceName)
	if err != nil {
		log.LogError(err, "Failed to initialize metrics")
		os.Exit(1)
	}

	db, err := config.NewDB()
	if err != nil {
		log.LogError(err, "Failed to initialize database")
		os.Exit(1)
	}
	if err := migrate(db); err != nil {
		log.LogError(err, "Failed to migrate database")
		os.Exit(1)
	}

	var redisClient *sharedredis.RedisClient
	if cfg.Redis.Enabled {
		redisClient = sharedredis.NewRedisClient(sharedredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		if err := redisClient.Ping(pingCtx); err != nil {
			log.Warn("Redis unreachable, continuing with local cache only", "addr", cfg.Redis.Addr, "error", err.Error())
			_ = redisClient.Close()
			redisClient = nil
		}
		cancel()
	}

	container, err := di.New(ctx, db, &di.Config{App: cfg, Logger: log, Redis: redisClient})
	if err != nil {
		log.LogError(err, "Failed to initialize dependency container")
		os.Exit(1)
	}

	if cfg.Catalog.SeedFile != "" {
		if _, err := container.Catalog.SeedFromFile(ctx, cfg.Catalog.SeedFile); err != nil {
			log.LogError(err, "Failed to seed model catalog", "path", cfg.Catalog.SeedFile)
		}
	}

	r := router.New(container)
	if cfg.OpenAPI.Enabled {
		r.AddOpenAPIValidation()
	}
	r.SetupRoutes()

	grpcServer := grpc.NewServer()
	container.Health.RegisterGRPC(grpcServer, cfg.Server.ServiceName)

	container.Start(ctx)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r.Engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	metricsSrv := observability.MetricsServer(":" + cfg.Server.MetricsPort)

	go func() {
		log.Info("Server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.LogError(err, "Server failed to start")
			stop()
		}
	}()
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.LogError(err, "Metrics server failed")
		}
	}()
	go func() {
		lis, err := net.Listen("tcp", ":"+cfg.Server.GRPCPort)
		if err != nil {
			log.LogError(err, "Failed to listen for gRPC", "port", cfg.Server.GRPCPort)
			return
		}
		log.Info("gRPC health server listening", "port", cfg.Server.GRPCPort)
		if err := grpcServer.Serve(lis); err != nil {
			log.LogError(err, "gRPC server stopped")
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.Timeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.LogError(err, "Server forced to shutdown")
	}
	grpcServer.GracefulStop()
	_ = metricsSrv.Shutdown(shutdownCtx)
	r.RateLimiter.Stop()

	// Feedback workers finish the preference in hand before exiting
	container.Feedback.Wait()

	if redisClient != nil {
		_ = redisClient.Close()
	}
	if err := shutdownMetrics(shutdownCtx); err != nil {
		log.LogError(err, "Failed to flush metrics")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.LogError(err, "Failed to flush traces")
	}

	log.Info("Server exited gracefully")
}

func setupSecrets(cfg *config.Config, log *logger.Logger) {
	if !cfg.Vault.Enabled {
		secrets.SetManager(secrets.EnvManager{})
		return
	}
	manager, err := secrets.NewVaultManager(secrets.VaultConfig{
		Address:     cfg.Vault.Address,
		Token:       cfg.Vault.Token,
		Namespace:   cfg.Vault.Namespace,
		SecretsPath: cfg.Vault.SecretsPath,
	}, log)
	if err != nil {
		log.Warn("Vault unavailable, reading secrets from the environment", "error", err.Error())
		secrets.SetManager(secrets.EnvManager{})
		return
	}
	secrets.SetManager(manager)
}

func migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&catalogmodels.Model{},
		&sessionmodels.Session{},
		&convmodels.Message{},
		&convmodels.Relation{},
		&ratingmodels.Record{},
		&feedbackmodels.Preference{},
	)
	if err != nil {
		return err
	}
	return db.Exec(convrepo.StreamingIndexSQL).Error
}
