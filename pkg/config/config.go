package config

import (
	"errors"
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
	Backend    BackendConfig
	Grades     GradesConfig
	Tuition    TuitionConfig
	Promotions PromotionsConfig
	Exports    ExportsConfig
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

// BackendConfig points at the school management REST backend that owns scores,
// installments and enrollments.
type BackendConfig struct {
	BaseURL string
	Timeout time.Duration
}

// GradesConfig governs gradebook caching.
type GradesConfig struct {
	CacheEnabled bool
	CacheTTL     time.Duration
}

// TuitionConfig carries pricing constants for installment validation.
type TuitionConfig struct {
	MonthlyBaseUnit float64
}

// PromotionsConfig controls recording and forwarding of promotional-period decisions.
type PromotionsConfig struct {
	Enabled            bool
	RedispatchSchedule string
	WorkerConcurrency  int
	WorkerRetries      int
	RetryDelay         time.Duration
	// MaxForwardAttempts stops redispatching a decision after this many failed deliveries.
	MaxForwardAttempts int
	// ForwardLease is how long a queued decision stays out of redispatch. It must outlast
	// the worker's own retries.
	ForwardLease time.Duration
}

// ExportsConfig toggles class sheet exports.
type ExportsConfig struct {
	Enabled bool
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
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
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

	cfg.Backend = BackendConfig{
		BaseURL: strings.TrimRight(v.GetString("BACKEND_BASE_URL"), "/"),
		Timeout: parseDuration(v.GetString("BACKEND_TIMEOUT"), 10*time.Second),
	}

	cfg.Grades = GradesConfig{
		CacheEnabled: v.GetBool("ENABLE_GRADES_CACHE"),
		CacheTTL:     parseDuration(v.GetString("GRADES_CACHE_TTL"), 5*time.Minute),
	}

	monthly := v.GetFloat64("TUITION_MONTHLY_BASE")
	if monthly <= 0 {
		monthly = 90
	}
	cfg.Tuition = TuitionConfig{MonthlyBaseUnit: monthly}

	cfg.Promotions = PromotionsConfig{
		Enabled:            v.GetBool("ENABLE_PROMOTIONS"),
		RedispatchSchedule: v.GetString("PROMOTIONS_REDISPATCH_SCHEDULE"),
		WorkerConcurrency:  v.GetInt("PROMOTIONS_WORKER_CONCURRENCY"),
		WorkerRetries:      v.GetInt("PROMOTIONS_WORKER_RETRIES"),
		RetryDelay:         parseDuration(v.GetString("PROMOTIONS_RETRY_DELAY"), 5*time.Second),
		MaxForwardAttempts: v.GetInt("PROMOTIONS_MAX_FORWARD_ATTEMPTS"),
		ForwardLease:       parseDuration(v.GetString("PROMOTIONS_FORWARD_LEASE"), 5*time.Minute),
	}

	cfg.Exports = ExportsConfig{Enabled: v.GetBool("ENABLE_EXPORTS")}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "campus_ledger")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("BACKEND_BASE_URL", "http://localhost:3000")
	v.SetDefault("BACKEND_TIMEOUT", "10s")

	v.SetDefault("ENABLE_GRADES_CACHE", true)
	v.SetDefault("GRADES_CACHE_TTL", "5m")

	v.SetDefault("TUITION_MONTHLY_BASE", 90)

	v.SetDefault("ENABLE_PROMOTIONS", true)
	v.SetDefault("PROMOTIONS_REDISPATCH_SCHEDULE", "@every 1m")
	v.SetDefault("PROMOTIONS_WORKER_CONCURRENCY", 2)
	v.SetDefault("PROMOTIONS_WORKER_RETRIES", 3)
	v.SetDefault("PROMOTIONS_RETRY_DELAY", "5s")
	v.SetDefault("PROMOTIONS_MAX_FORWARD_ATTEMPTS", 10)
	v.SetDefault("PROMOTIONS_FORWARD_LEASE", "5m")

	v.SetDefault("ENABLE_EXPORTS", true)
}

// isMissingFile reports whether viper failed only because .env is absent.
// SetConfigFile bypasses the search path, so viper surfaces an fs error instead of
// ConfigFileNotFoundError in that case.
func isMissingFile(err error) bool {
	return strings.Contains(err.Error(), "no such file or directory")
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
