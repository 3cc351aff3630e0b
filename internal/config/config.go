package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Realtime     RealtimeConfig
	Tickets      TicketConfig
	Upload       UploadConfig
	Notification NotificationConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	BcryptCost            int
}

// Presence backends.
const (
	PresenceBackendMemory = "memory"
	PresenceBackendRedis  = "redis"
)

// RealtimeConfig controls the websocket listener and room presence.
type RealtimeConfig struct {
	Host               string
	Port               string
	Path               string
	AllowedOrigins     []string
	SendBuffer         int
	PresenceBackend    string
	PresenceTTLSeconds int
	RedisRelay         bool
}

// TicketConfig holds ticket lifecycle policy knobs.
type TicketConfig struct {
	ResolvedRetentionHours int
	DefaultPageSize        int
	StrictTransitions      bool
}

// UploadConfig controls attachment storage.
type UploadConfig struct {
	Dir           string
	PublicBaseURL string
	MaxBytes      int64
}

// NotificationConfig toggles the realtime notification relay.
type NotificationConfig struct {
	Enabled bool
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "helpdesk-service"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			BcryptCost:            getEnvAsInt("AUTH_BCRYPT_COST", 12),
		},
		Realtime: RealtimeConfig{
			Host:               getEnv("REALTIME_HOST", "0.0.0.0"),
			Port:               getEnv("REALTIME_PORT", "8081"),
			Path:               getEnv("REALTIME_PATH", "/socket"),
			AllowedOrigins:     getEnvAsList("REALTIME_ALLOWED_ORIGINS"),
			SendBuffer:         getEnvAsInt("REALTIME_SEND_BUFFER", 64),
			PresenceBackend:    strings.ToLower(getEnv("REALTIME_PRESENCE_BACKEND", PresenceBackendMemory)),
			PresenceTTLSeconds: getEnvAsInt("REALTIME_PRESENCE_TTL_SECONDS", 6*60*60),
			RedisRelay:         getEnvAsBool("REALTIME_REDIS_RELAY", false),
		},
		Tickets: TicketConfig{
			ResolvedRetentionHours: getEnvAsInt("TICKETS_RESOLVED_RETENTION_HOURS", 24),
			DefaultPageSize:        getEnvAsInt("TICKETS_DEFAULT_PAGE_SIZE", 9),
			StrictTransitions:      getEnvAsBool("TICKETS_STRICT_TRANSITIONS", true),
		},
		Upload: UploadConfig{
			Dir:           getEnv("UPLOAD_DIR", "uploads"),
			PublicBaseURL: strings.TrimRight(getEnv("UPLOAD_PUBLIC_BASE_URL", "/uploads"), "/"),
			MaxBytes:      int64(getEnvAsInt("UPLOAD_MAX_BYTES", 10<<20)),
		},
		Notification: NotificationConfig{
			Enabled: getEnvAsBool("NOTIFY_RELAY_ENABLED", true),
		},
	}

	switch cfg.Realtime.PresenceBackend {
	case PresenceBackendMemory, PresenceBackendRedis:
	default:
		return nil, fmt.Errorf("invalid REALTIME_PRESENCE_BACKEND: %q", cfg.Realtime.PresenceBackend)
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// Addr returns the websocket bind address.
func (r RealtimeConfig) Addr() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

// PresenceTTL returns how long an idle room key survives in Redis.
func (r RealtimeConfig) PresenceTTL() time.Duration {
	if r.PresenceTTLSeconds <= 0 {
		return 0
	}
	return time.Duration(r.PresenceTTLSeconds) * time.Second
}

// ResolvedRetention is how long a Resuelto ticket stays open before the sweep closes it.
func (t TicketConfig) ResolvedRetention() time.Duration {
	if t.ResolvedRetentionHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(t.ResolvedRetentionHours) * time.Hour
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsList(key string) []string {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
