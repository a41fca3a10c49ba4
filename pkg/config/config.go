package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database   DatabaseConfig
	Redis      RedisConfig
	CORS       CORSConfig
	Log        LogConfig
	Reconcile  ReconcileConfig
	Sessions   SessionConfig
	Enrichment EnrichmentConfig
	Exports    ExportConfig
	Migrations MigrationConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// ReconcileConfig tunes the deletion safety guards of the diff engine.
type ReconcileConfig struct {
	CrossCategoryGuard      bool
	SymmetricSizeGuard      bool
	MassDeletionGuard       bool
	MassDeletionMinOriginal int
}

// SessionConfig governs the lifetime of in-memory edit sessions.
type SessionConfig struct {
	TTL           time.Duration
	SweepSchedule string
}

// EnrichmentConfig controls ticket class display caching and background refresh.
type EnrichmentConfig struct {
	CacheEnabled  bool
	CacheTTL      time.Duration
	Workers       int
	QueueSize     int
	WorkerRetries int
}

// ExportConfig configures schedule exports.
type ExportConfig struct {
	Title string
}

// MigrationConfig toggles automatic schema migration at startup.
type MigrationConfig struct {
	AutoRun bool
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("ENABLE_REDIS"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Reconcile = ReconcileConfig{
		CrossCategoryGuard:      v.GetBool("RECONCILE_CROSS_CATEGORY_GUARD"),
		SymmetricSizeGuard:      v.GetBool("RECONCILE_SYMMETRIC_SIZE_GUARD"),
		MassDeletionGuard:       v.GetBool("RECONCILE_MASS_DELETION_GUARD"),
		MassDeletionMinOriginal: v.GetInt("RECONCILE_MASS_DELETION_MIN_ORIGINAL"),
	}

	cfg.Sessions = SessionConfig{
		TTL:           parseDuration(v.GetString("SESSION_TTL"), 2*time.Hour),
		SweepSchedule: v.GetString("SESSION_SWEEP_SCHEDULE"),
	}

	cfg.Enrichment = EnrichmentConfig{
		CacheEnabled:  v.GetBool("ENABLE_ENRICHMENT_CACHE"),
		CacheTTL:      parseDuration(v.GetString("ENRICHMENT_CACHE_TTL"), 15*time.Minute),
		Workers:       v.GetInt("ENRICHMENT_WORKERS"),
		QueueSize:     v.GetInt("ENRICHMENT_QUEUE_SIZE"),
		WorkerRetries: v.GetInt("ENRICHMENT_WORKER_RETRIES"),
	}

	cfg.Exports = ExportConfig{
		Title: v.GetString("EXPORT_TITLE"),
	}

	cfg.Migrations = MigrationConfig{
		AutoRun: v.GetBool("AUTO_MIGRATE"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "driving_school")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("ENABLE_REDIS", true)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("RECONCILE_CROSS_CATEGORY_GUARD", true)
	v.SetDefault("RECONCILE_SYMMETRIC_SIZE_GUARD", true)
	v.SetDefault("RECONCILE_MASS_DELETION_GUARD", true)
	v.SetDefault("RECONCILE_MASS_DELETION_MIN_ORIGINAL", 2)

	v.SetDefault("SESSION_TTL", "2h")
	v.SetDefault("SESSION_SWEEP_SCHEDULE", "@every 5m")

	v.SetDefault("ENABLE_ENRICHMENT_CACHE", true)
	v.SetDefault("ENRICHMENT_CACHE_TTL", "15m")
	v.SetDefault("ENRICHMENT_WORKERS", 2)
	v.SetDefault("ENRICHMENT_QUEUE_SIZE", 64)
	v.SetDefault("ENRICHMENT_WORKER_RETRIES", 3)

	v.SetDefault("EXPORT_TITLE", "Instructor Schedule")
	v.SetDefault("AUTO_MIGRATE", false)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
