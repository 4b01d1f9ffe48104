package config

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	AuditDatabase *DatabaseConfig // nil keeps audit logs in Database
	Auth          AuthConfig
	Permissions   PermissionConfig
	Audit         AuditConfig
	RateLimit     RateLimitConfig
	Redis         RedisConfig
	Upstreams     UpstreamConfig
	Observability ObservabilityConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
	TLS             struct {
		Enabled  bool
		CertFile string
		KeyFile  string
	}
}

// DatabaseConfig locates a PostgreSQL database and sizes its pool. A
// non-empty ConnectionString wins over the discrete fields.
type DatabaseConfig struct {
	ConnectionString string
	Host             string
	Port             int
	User             string
	Password         string
	Database         string
	SSLMode          string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
}

// AuthConfig holds bearer token validation settings. Tokens are issued by
// the user service and signed with the shared secret.
type AuthConfig struct {
	JWTSecret    string
	JWTAlgorithm string
	Issuer       string // optional; checked only when set
	CookieName   string
}

// PermissionConfig holds permission cache and session settings
type PermissionConfig struct {
	CacheTTL               time.Duration
	SessionMaxEntries      int
	SessionIdleTTL         time.Duration
	SessionCleanupInterval time.Duration
	InitSchema             bool
}

// AuditConfig sizes the asynchronous audit trail writer
type AuditConfig struct {
	BufferSize    int
	Workers       int
	InsertTimeout time.Duration
}

// RateLimitConfig holds the per client IP request ceiling
type RateLimitConfig struct {
	Enabled  bool
	Requests int
	Window   time.Duration
}

// RedisConfig holds the optional Redis connection used to fan out
// permission invalidations across gateway instances
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

// Enabled reports whether a Redis address is configured
func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

// UpstreamConfig holds the backend microservice base URLs keyed by the
// route segment used under /api/{service}/
type UpstreamConfig struct {
	Services   map[string]string
	PathPrefix string
	Timeout    time.Duration
}

// ObservabilityConfig holds logging configuration
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string // json or console
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			AllowedOrigins:  getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000", "http://localhost:5173"}),
			TLS: struct {
				Enabled  bool
				CertFile string
				KeyFile  string
			}{
				Enabled:  getEnvAsBool("TLS_ENABLED", false),
				CertFile: getEnv("TLS_CERT_FILE", "certs/cert.pem"),
				KeyFile:  getEnv("TLS_KEY_FILE", "certs/key.pem"),
			},
		},
		Database:      loadDatabaseConfig(),
		AuditDatabase: loadAuditDatabaseConfig(),
		Auth: AuthConfig{
			JWTSecret:    getEnv("JWT_SECRET", getEnv("SECRET_KEY", defaultJWTSecret)),
			JWTAlgorithm: getEnv("JWT_ALGORITHM", "HS256"),
			Issuer:       getEnv("JWT_ISSUER", ""),
			CookieName:   getEnv("AUTH_COOKIE_NAME", "auth_token"),
		},
		Permissions: PermissionConfig{
			CacheTTL:               getEnvAsDuration("PERMISSION_CACHE_TTL", 15*time.Minute),
			SessionMaxEntries:      getEnvAsInt("SESSION_MAX_ENTRIES", 10000),
			SessionIdleTTL:         getEnvAsDuration("SESSION_IDLE_TTL", 30*time.Minute),
			SessionCleanupInterval: getEnvAsDuration("SESSION_CLEANUP_INTERVAL", time.Minute),
			InitSchema:             getEnvAsBool("DB_INIT_SCHEMA", false),
		},
		Audit: AuditConfig{
			BufferSize:    getEnvAsInt("AUDIT_BUFFER_SIZE", 10000),
			Workers:       getEnvAsInt("AUDIT_WORKERS", 5),
			InsertTimeout: getEnvAsDuration("AUDIT_INSERT_TIMEOUT", 5*time.Second),
		},
		RateLimit: RateLimitConfig{
			Enabled:  getEnvAsBool("RATE_LIMIT_ENABLED", true),
			Requests: getEnvAsInt("RATE_LIMIT_REQUESTS", 100),
			Window:   getEnvAsDuration("RATE_LIMIT_WINDOW", 15*time.Minute),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Channel:  getEnv("REDIS_INVALIDATION_CHANNEL", "ticket-gateway:permission-invalidations"),
		},
		Upstreams: loadUpstreamConfig(),
		Observability: ObservabilityConfig{
			LogLevel:  getEnv("LOG_LEVEL", "info"),
			LogFormat: getEnv("LOG_FORMAT", "json"),
		},
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	if err := c.Database.validate(); err != nil {
		return err
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT secret is required")
	}
	if c.Auth.JWTAlgorithm != "HS256" && c.Auth.JWTAlgorithm != "HS384" && c.Auth.JWTAlgorithm != "HS512" {
		return fmt.Errorf("unsupported JWT algorithm: %s", c.Auth.JWTAlgorithm)
	}
	if c.IsProduction() && c.Auth.JWTSecret == defaultJWTSecret {
		return fmt.Errorf("JWT_SECRET must be set in production")
	}

	if len(c.Upstreams.Services) == 0 {
		return fmt.Errorf("at least one upstream service must be configured")
	}
	for name, raw := range c.Upstreams.Services {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid URL for upstream %q: %s", name, raw)
		}
	}

	if c.Permissions.CacheTTL <= 0 {
		return fmt.Errorf("permission cache TTL must be positive")
	}
	if c.Permissions.SessionMaxEntries <= 0 {
		return fmt.Errorf("session store size must be positive")
	}
	if c.Audit.Workers <= 0 || c.Audit.BufferSize < 0 {
		return fmt.Errorf("audit workers must be positive and buffer size non-negative")
	}
	if c.RateLimit.Enabled && (c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0) {
		return fmt.Errorf("rate limit requests and window must be positive")
	}

	if c.Observability.LogLevel == "" {
		return fmt.Errorf("LOG_LEVEL must not be empty")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	switch c.Environment {
	case "production", "prod":
		return true
	}
	return false
}

func (c *Config) IsDevelopment() bool {
	switch c.Environment {
	case "development", "dev":
		return true
	}
	return false
}

func (c *DatabaseConfig) validate() error {
	if c.ConnectionString != "" {
		return nil
	}
	switch {
	case c.Host == "":
		return fmt.Errorf("database configuration required: set DATABASE_URL or DB_HOST")
	case c.User == "":
		return fmt.Errorf("database user is required")
	case c.Database == "":
		return fmt.Errorf("database name is required")
	}
	return nil
}

// DSN is the lib/pq connection string
func (c *DatabaseConfig) DSN() string {
	if c.ConnectionString != "" {
		return c.ConnectionString
	}
	parts := []string{
		"host=" + c.Host,
		"port=" + strconv.Itoa(c.Port),
		"user=" + c.User,
		"password=" + c.Password,
		"dbname=" + c.Database,
		"sslmode=" + c.SSLMode,
	}
	return strings.Join(parts, " ")
}

// LogString identifies the database without credentials
func (c *DatabaseConfig) LogString() string {
	host, port, name := c.Host, strconv.Itoa(c.Port), c.Database
	if c.ConnectionString != "" {
		u, err := url.Parse(c.ConnectionString)
		if err != nil {
			return "host=<from DATABASE_URL>"
		}
		host, port, name = u.Hostname(), u.Port(), strings.TrimPrefix(u.Path, "/")
		if port == "" {
			port = "5432"
		}
	}
	return "host=" + host + " port=" + port + " database=" + name
}

// withPool applies the DB_* pool settings shared by every database
func withPool(c DatabaseConfig) DatabaseConfig {
	c.MaxOpenConns = getEnvAsInt("DB_MAX_OPEN_CONNS", 25)
	c.MaxIdleConns = getEnvAsInt("DB_MAX_IDLE_CONNS", 5)
	c.ConnMaxLifetime = getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute)
	return c
}

func loadDatabaseConfig() DatabaseConfig {
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		return withPool(DatabaseConfig{ConnectionString: dsn})
	}
	return withPool(DatabaseConfig{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     getEnvAsInt("DB_PORT", 5432),
		User:     getEnv("DB_USER", "postgres"),
		Password: getEnv("DB_PASSWORD", "postgres"),
		Database: getEnv("DB_NAME", "user_service"),
		SSLMode:  getEnv("DB_SSLMODE", "disable"),
	})
}

// loadAuditDatabaseConfig reads DATABASE_URL_AUDIT; unset means nil
func loadAuditDatabaseConfig() *DatabaseConfig {
	dsn := os.Getenv("DATABASE_URL_AUDIT")
	if dsn == "" {
		return nil
	}
	cfg := withPool(DatabaseConfig{ConnectionString: dsn})
	return &cfg
}

func (c *ServerConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

const defaultJWTSecret = "dev-secret-change-me"

// upstreamDefaults are the development addresses of the backend services
var upstreamDefaults = []struct {
	name   string
	envKey string
	url    string
}{
	{"users", "USER_SERVICE_URL", "http://localhost:8000"},
	{"tickets", "TICKET_SERVICE_URL", "http://localhost:8001"},
	{"files", "FILE_SERVICE_URL", "http://localhost:8002"},
	{"notifications", "NOTIFICATION_SERVICE_URL", "http://localhost:8003"},
	{"reports", "REPORT_SERVICE_URL", "http://localhost:8004"},
	{"analytics", "ANALYTICS_SERVICE_URL", "http://localhost:8005"},
}

// loadUpstreamConfig loads service URLs. Setting a URL variable to "-" disables that route.
func loadUpstreamConfig() UpstreamConfig {
	services := make(map[string]string, len(upstreamDefaults))
	for _, d := range upstreamDefaults {
		if v := getEnv(d.envKey, d.url); v != "-" {
			services[d.name] = strings.TrimRight(v, "/")
		}
	}
	return UpstreamConfig{
		Services:   services,
		PathPrefix: getEnv("UPSTREAM_PATH_PREFIX", "/api/v1"),
		Timeout:    getEnvAsDuration("UPSTREAM_TIMEOUT", 30*time.Second),
	}
}

// getPort reads PORT, then SERVER_PORT, defaulting to 8080
func getPort() int {
	for _, key := range []string{"PORT", "SERVER_PORT"} {
		if p, err := strconv.Atoi(os.Getenv(key)); err == nil {
			return p
		}
	}
	return 8080
}

// getEnvAs parses key with parse, returning defaultValue when the variable
// is unset or malformed
func getEnvAs[T any](key string, defaultValue T, parse func(string) (T, error)) T {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return defaultValue
	}
	v, err := parse(raw)
	if err != nil {
		return defaultValue
	}
	return v
}

func getEnv(key, defaultValue string) string {
	return getEnvAs(key, defaultValue, func(s string) (string, error) { return s, nil })
}

func getEnvAsInt(key string, defaultValue int) int {
	return getEnvAs(key, defaultValue, strconv.Atoi)
}

func getEnvAsBool(key string, defaultValue bool) bool {
	return getEnvAs(key, defaultValue, strconv.ParseBool)
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	return getEnvAs(key, defaultValue, time.ParseDuration)
}

// getEnvAsList splits a comma separated value, dropping blanks
func getEnvAsList(key string, defaultValue []string) []string {
	return getEnvAs(key, defaultValue, func(raw string) ([]string, error) {
		var out []string
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		if len(out) == 0 {
			return nil, fmt.Errorf("%s: no values", key)
		}
		return out, nil
	})
}
