package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// DefaultJWTSecret is the development-only signing key used when JWT_SECRET is unset.
const DefaultJWTSecret = "change-me-in-production-at-least-32-chars"

// Config holds application configuration from environment variables
type Config struct {
	// Application
	AppPort     string
	Environment string

	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	SchemaPath string

	// CORS origins allowed to send credentials; "*" allows any origin without them
	CORSAllowedOrigins []string

	// Auth
	JWTSecret         string
	SessionTTL        time.Duration
	SessionCookieName string
	CookieSecure      bool

	// Client session stores (cart / wishlist)
	StoreBackend    string // memory, sqlite or redis
	StoreSQLitePath string
	StoreIdleTTL    time.Duration
	StoreCookieName string

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	// Kafka
	KafkaBrokers     []string
	KafkaTopicOrders string
	KafkaClientID    string

	// Checkout pricing
	Currency              string
	FreeShippingThreshold decimal.Decimal
	ShippingFee           decimal.Decimal
	TaxRate               decimal.Decimal

	// OpenTelemetry
	OTELExporterOTLPEndpoint  string
	OTELExporterOTLPProtocol  string
	OTELExporterOTLPHeaders   string
	OTELExporterOTLPInsecure  bool
	OTELServiceName           string
	OTELServiceVersion        string
	OTELDeploymentEnvironment string
	OTELResourceAttributes    string
}

// LoadConfig loads configuration from .env file and environment variables with defaults.
// A missing .env file is not an error; the second return value reports any other load failure
// so the caller can log it once a logger exists.
func LoadConfig() (*Config, error) {
	var loadErr error
	if err := godotenv.Load(); err != nil {
		if _, ok := err.(*os.PathError); !ok {
			loadErr = err
		}
	}

	return &Config{
		AppPort:     getEnv("APP_PORT", "8080"),
		Environment: getEnv("APP_ENV", "development"),

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "root"),
		DBPassword: getEnv("DB_PASSWORD", "password"),
		DBName:     getEnv("DB_NAME", "ayurmart"),
		SchemaPath: getEnv("DB_SCHEMA_PATH", "schema.sql"),

		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),

		JWTSecret:         getEnv("JWT_SECRET", DefaultJWTSecret),
		SessionTTL:        getEnvDuration("SESSION_TTL", 7*24*time.Hour),
		SessionCookieName: getEnv("SESSION_COOKIE_NAME", "ayurmart_session"),
		CookieSecure:      getEnvBool("COOKIE_SECURE", false),

		StoreBackend:    strings.ToLower(getEnv("STORE_BACKEND", "sqlite")),
		StoreSQLitePath: getEnv("STORE_SQLITE_PATH", "storefront-state.db"),
		StoreIdleTTL:    getEnvDuration("STORE_IDLE_TTL", 30*time.Minute),
		StoreCookieName: getEnv("STORE_COOKIE_NAME", "ayurmart_sid"),

		RedisHost:     getEnv("REDIS_HOST", ""),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		CacheTTL:      getEnvDuration("CACHE_TTL", 5*time.Minute),

		KafkaBrokers:     getEnvList("KAFKA_BROKERS"),
		KafkaTopicOrders: getEnv("KAFKA_TOPIC_ORDERS", "storefront.orders"),
		KafkaClientID:    getEnv("KAFKA_CLIENT_ID", "ayurmart-storefront"),

		Currency:              getEnv("CURRENCY", "INR"),
		FreeShippingThreshold: getEnvDecimal("FREE_SHIPPING_THRESHOLD", decimal.NewFromInt(499)),
		ShippingFee:           getEnvDecimal("SHIPPING_FEE", decimal.NewFromInt(49)),
		TaxRate:               getEnvDecimal("TAX_RATE", decimal.Zero),

		OTELExporterOTLPEndpoint:  getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
		OTELExporterOTLPProtocol:  getEnv("OTEL_EXPORTER_OTLP_PROTOCOL", "http/protobuf"),
		OTELExporterOTLPHeaders:   getEnv("OTEL_EXPORTER_OTLP_HEADERS", ""),
		OTELExporterOTLPInsecure:  getEnvBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		OTELServiceName:           getEnv("OTEL_SERVICE_NAME", "ayurmart-storefront"),
		OTELServiceVersion:        getEnv("OTEL_SERVICE_VERSION", "1.0.0"),
		OTELDeploymentEnvironment: getEnv("OTEL_DEPLOYMENT_ENVIRONMENT", "development"),
		OTELResourceAttributes:    getEnv("OTEL_RESOURCE_ATTRIBUTES", ""),
	}, loadErr
}

// GetDSN returns the MySQL DSN string
func (c *Config) GetDSN() string {
	return c.DBUser + ":" + c.DBPassword + "@tcp(" + c.DBHost + ":" + c.DBPort + ")/" + c.DBName + "?parseTime=true&charset=utf8mb4"
}

// GetAppPortInt returns the application port as an integer
func (c *Config) GetAppPortInt() int {
	port, err := strconv.Atoi(c.AppPort)
	if err != nil {
		return 8080
	}
	return port
}

// RedisAddr returns host:port, or "" when Redis is not configured.
func (c *Config) RedisAddr() string {
	if c.RedisHost == "" {
		return ""
	}
	return c.RedisHost + ":" + c.RedisPort
}

// IsProduction reports whether the service runs with production defaults.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// UsesDefaultJWTSecret reports whether tokens are signed with the built-in key.
func (c *Config) UsesDefaultJWTSecret() bool {
	return c.JWTSecret == DefaultJWTSecret
}

// Validate rejects settings that are only acceptable outside production.
func (c *Config) Validate() error {
	if !c.IsProduction() {
		return nil
	}
	if c.UsesDefaultJWTSecret() {
		return errors.New("JWT_SECRET must be set in production")
	}
	if len(c.JWTSecret) < 32 {
		return errors.New("JWT_SECRET must be at least 32 characters in production")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if value == "true" || value == "1" || value == "yes" {
			return true
		}
		return false
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return result
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return defaultValue
	}
	return d
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return defaultValue
	}
	return d
}

// getEnvList parses a comma-separated list, dropping empty entries. An unset
// or empty variable yields defaultValues.
func getEnvList(key string, defaultValues ...string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValues
	}
	return out
}
