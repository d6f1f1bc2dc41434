package config

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// MaxLeaderboardStaleness bounds how long a cached leaderboard may be served
const MaxLeaderboardStaleness = 60 * time.Second

// Config holds all application configuration
type Config struct {
	Server struct {
		Port        string
		GRPCPort    string
		MetricsPort string
		Env         string
		Timeout     time.Duration
		ServiceName string
	}

	Database struct {
		Host     string
		Port     string
		User     string
		Password string
		Name     string
		SSLMode  string
		MaxConns int
		Timeout  time.Duration
	}

	Redis struct {
		Addr     string
		Password string
		DB       int
		Enabled  bool
	}

	JWT struct {
		Secret string
		Expiry time.Duration
	}

	Security struct {
		RateLimit      float64
		RateLimitBurst int
		AllowedOrigins []string
	}

	Logging struct {
		Level  string
		Format string
	}

	// Arena tunes the rating engine and the stream orchestrator
	Arena struct {
		RatingMaxRetries   int
		FlushEveryChunks   int
		FlushInterval      time.Duration
		BranchTimeout      time.Duration
		LeaderboardTTL     time.Duration
		FeedbackQueueSize  int
		FeedbackWorkers    int
		MaxValidationFails int
		EventBufferSize    int
	}

	Providers struct {
		OpenAIBaseURL      string
		AnthropicBaseURL   string
		RequestsPerSecond  float64
		Burst              int
		BreakerFailures    uint
		BreakerRetryWindow time.Duration
		DefaultMaxTokens   int
		DefaultTemperature float64
	}

	Vault struct {
		Enabled     bool
		Address     string
		Token       string
		Namespace   string
		SecretsPath string
	}

	Catalog struct {
		SeedFile string
	}

	Cache struct {
		MaxSize     int
		PurgeWindow time.Duration
	}

	OpenAPI struct {
		Enabled bool
	}
}

var (
	instance *Config
	once     sync.Once
)

// New loads configuration from the environment (and .env when present) once
func New() *Config {
	once.Do(func() {
		_ = godotenv.Load()
		instance = Load()
	})
	return instance
}

// Get returns the singleton Config instance
func Get() *Config {
	if instance == nil {
		return New()
	}
	return instance
}

// Load reads a fresh Config from the environment without touching the singleton
func Load() *Config {
	cfg := &Config{}

	cfg.Server.Port = getEnvString("PORT", "8081")
	cfg.Server.GRPCPort = getEnvString("GRPC_PORT", "9094")
	cfg.Server.MetricsPort = getEnvString("METRICS_PORT", "2112")
	cfg.Server.Env = getEnvString("APP_ENV", "development")
	cfg.Server.Timeout = getEnvDuration("SERVER_TIMEOUT", 30*time.Second)
	cfg.Server.ServiceName = getEnvString("SERVICE_NAME", "llm-arena")

	cfg.Database.Host = getEnvString("DB_HOST", "localhost")
	cfg.Database.Port = getEnvString("DB_PORT", "5432")
	cfg.Database.User = getEnvString("DB_USER", "postgres")
	cfg.Database.Password = getEnvString("DB_PASSWORD", "postgres")
	cfg.Database.Name = getEnvString("DB_NAME", "arena")
	cfg.Database.SSLMode = getEnvString("DB_SSL_MODE", "disable")
	cfg.Database.MaxConns = getEnvInt("DB_MAX_CONNS", 20)
	cfg.Database.Timeout = getEnvDuration("DB_TIMEOUT", 5*time.Second)

	cfg.Redis.Addr = getEnvString("REDIS_URL", "localhost:6379")
	cfg.Redis.Password = getEnvString("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)
	cfg.Redis.Enabled = getEnvBool("REDIS_ENABLED", true)

	cfg.JWT.Secret = getEnvString("JWT_SECRET", "default-jwt-secret-do-not-use-in-production")
	cfg.JWT.Expiry = getEnvDuration("JWT_EXPIRY", 24*time.Hour)

	cfg.Security.RateLimit = getEnvFloat("RATE_LIMIT", 5)
	cfg.Security.RateLimitBurst = getEnvInt("RATE_LIMIT_BURST", 10)
	cfg.Security.AllowedOrigins = getEnvStringSlice("ALLOWED_ORIGINS", []string{"*"})

	cfg.Logging.Level = getEnvString("LOG_LEVEL", "info")
	cfg.Logging.Format = getEnvString("LOG_FORMAT", "json")

	cfg.Arena.RatingMaxRetries = getEnvInt("RATING_MAX_RETRIES", 5)
	cfg.Arena.FlushEveryChunks = getEnvInt("STREAM_FLUSH_CHUNKS", 10)
	cfg.Arena.FlushInterval = getEnvDuration("STREAM_FLUSH_INTERVAL", 2*time.Second)
	cfg.Arena.BranchTimeout = getEnvDuration("STREAM_BRANCH_TIMEOUT", 2*time.Minute)
	cfg.Arena.LeaderboardTTL = clampTTL(getEnvDuration("LEADERBOARD_TTL", 30*time.Second))
	cfg.Arena.FeedbackQueueSize = getEnvInt("FEEDBACK_QUEUE_SIZE", 1024)
	cfg.Arena.FeedbackWorkers = getEnvInt("FEEDBACK_WORKERS", 4)
	cfg.Arena.MaxValidationFails = getEnvInt("MODEL_MAX_VALIDATION_FAILURES", 3)
	cfg.Arena.EventBufferSize = getEnvInt("STREAM_EVENT_BUFFER", 64)

	cfg.Providers.OpenAIBaseURL = getEnvString("OPENAI_BASE_URL", "https://api.openai.com/v1")
	cfg.Providers.AnthropicBaseURL = getEnvString("ANTHROPIC_BASE_URL", "https://api.anthropic.com/v1")
	cfg.Providers.RequestsPerSecond = getEnvFloat("PROVIDER_RPS", 10)
	cfg.Providers.Burst = getEnvInt("PROVIDER_BURST", 20)
	cfg.Providers.BreakerFailures = uint(getEnvInt("PROVIDER_BREAKER_FAILURES", 5))
	cfg.Providers.BreakerRetryWindow = getEnvDuration("PROVIDER_BREAKER_RETRY", 30*time.Second)
	cfg.Providers.DefaultMaxTokens = getEnvInt("PROVIDER_MAX_TOKENS", 1024)
	cfg.Providers.DefaultTemperature = getEnvFloat("PROVIDER_TEMPERATURE", 0.7)

	cfg.Vault.Enabled = getEnvBool("VAULT_ENABLED", false)
	cfg.Vault.Address = getEnvString("VAULT_ADDR", "")
	cfg.Vault.Token = getEnvString("VAULT_TOKEN", "")
	cfg.Vault.Namespace = getEnvString("VAULT_NAMESPACE", "")
	cfg.Vault.SecretsPath = getEnvString("VAULT_SECRETS_PATH", "llm-arena")

	cfg.Catalog.SeedFile = getEnvString("CATALOG_SEED_FILE", "")

	cfg.Cache.MaxSize = getEnvInt("CACHE_MAX_SIZE", 1000)
	cfg.Cache.PurgeWindow = getEnvDuration("CACHE_PURGE_WINDOW", time.Minute)

	cfg.OpenAPI.Enabled = getEnvBool("OPENAPI_VALIDATION", true)

	return cfg
}

func clampTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 || ttl > MaxLeaderboardStaleness {
		return MaxLeaderboardStaleness
	}
	return ttl
}

func getEnvString(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return defaultValue
}
