package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBPath            string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int
	DBAutoMigrate     bool

	StoreDriver   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	DefaultCurrency string

	RegistrySize int
	RegistryTTL  time.Duration
	// RegistryDegradedRetry is how long a state opened on defaults after a
	// failed load is served before the registry loads the account again.
	RegistryDegradedRetry time.Duration

	RateLimit RateLimitConfig
	Telemetry TelemetryConfig
}

// RateLimitConfig bounds how fast one account may mutate its usage.
type RateLimitConfig struct {
	Enabled       bool
	MutationRate  float64
	MutationBurst int
}

// TelemetryConfig selects how logs, traces and metrics leave the process.
type TelemetryConfig struct {
	LogLevel            string
	LogFormat           string
	LogSampleInitial    int
	LogSampleThereafter int

	OtelEnabled      bool
	OtlpEndpoint     string
	OtlpProtocol     string
	TraceSampleRatio float64
}

const (
	StoreDriverGorm  = "gorm"
	StoreDriverRedis = "redis"
)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:           getenv("APP_SERVICE", "bizdash"),
		AppVersion:        getenv("APP_VERSION", "0.1.0"),
		Environment:       getenv("ENVIRONMENT", "development"),
		HTTPAddr:          getenv("HTTP_ADDR", ":8080"),
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "bizdash"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBPath:            getenv("DATABASE_PATH", "bizdash.db"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 10),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 50),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),
		DBAutoMigrate:     getenvBool("DATABASE_AUTO_MIGRATE", true),
		StoreDriver:       normalizeStoreDriver(getenv("STORE_DRIVER", StoreDriverGorm)),
		RedisAddr:         getenv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:     getenv("REDIS_PASSWORD", ""),
		RedisDB:           getenvInt("REDIS_DB", 0),
		DefaultCurrency:   strings.ToUpper(strings.TrimSpace(getenv("DEFAULT_CURRENCY", "USD"))),
		RegistrySize:      getenvInt("ENTITLEMENT_REGISTRY_SIZE", 10_000),
		RegistryTTL:       getenvDuration("ENTITLEMENT_REGISTRY_TTL", 30*time.Minute),

		RegistryDegradedRetry: getenvDuration("ENTITLEMENT_DEGRADED_RETRY", 5*time.Second),
		RateLimit: RateLimitConfig{
			Enabled:       getenvBool("RATE_LIMIT_ENABLED", false),
			MutationRate:  getenvFloat("RATE_LIMIT_MUTATION_RATE", 5),
			MutationBurst: getenvInt("RATE_LIMIT_MUTATION_BURST", 20),
		},
		Telemetry: loadTelemetry(),
	}
}

func loadTelemetry() TelemetryConfig {
	protocol := getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")
	if traces := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL")); traces != "" {
		protocol = traces
	}

	return TelemetryConfig{
		LogLevel:            strings.ToLower(strings.TrimSpace(getenv("LOG_LEVEL", "info"))),
		LogFormat:           strings.ToLower(strings.TrimSpace(getenv("LOG_FORMAT", "json"))),
		LogSampleInitial:    getenvInt("LOG_SAMPLE_INITIAL", 100),
		LogSampleThereafter: getenvInt("LOG_SAMPLE_THEREAFTER", 100),
		OtelEnabled:         getenvBool("OTEL_ENABLED", false),
		OtlpEndpoint:        strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_ENDPOINT", getenv("OTLP_ENDPOINT", "localhost:4317"))),
		OtlpProtocol:        strings.ToLower(strings.TrimSpace(protocol)),
		TraceSampleRatio:    getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
	}
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

func normalizeStoreDriver(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case StoreDriverRedis:
		return StoreDriverRedis
	default:
		return StoreDriverGorm
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}
