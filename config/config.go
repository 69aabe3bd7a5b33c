package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	AuditDatabase *DatabaseConfig // Optional: separate DB for audit logs. When nil, audit uses main DB.
	Auth          AuthConfig
	Gateway       GatewayConfig
	Settlement    SettlementConfig
	Quota         QuotaConfig
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
}

// DatabaseConfig holds PostgreSQL database configuration.
// When ConnectionString (from DATABASE_URL) is set, it takes precedence over individual fields.
type DatabaseConfig struct {
	ConnectionString string // From DATABASE_URL when set
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

// AuthConfig holds JWT authentication configuration.
// Identity arrives as the token's subject claim; credential verification
// happens in an upstream identity service.
type AuthConfig struct {
	JWTSecret string
	Issuer    string
}

// GatewayConfig holds payment gateway webhook configuration
type GatewayConfig struct {
	// WebhookSecret is the shared secret used to verify the signature
	// header on inbound webhooks.
	WebhookSecret   string
	SignatureHeader string
}

// SettlementConfig holds the fixed rates applied to every settlement
type SettlementConfig struct {
	GatewayFeeRate decimal.Decimal // e.g. 0.02 (2% of gross)
	TaxRate        decimal.Decimal // e.g. 0.18 (18% of the gateway fee)
}

// QuotaRule declares the attempt ceiling for one guarded action
type QuotaRule struct {
	MaxAttempts int
	Window      time.Duration
	// FailClosed rejects attempts when the quota store is unavailable.
	// Default is fail-open: the action proceeds and the error is logged.
	FailClosed bool
}

// QuotaConfig holds per-action quota rules and store behavior
type QuotaConfig struct {
	StoreTimeout time.Duration
	Rules        map[string]QuotaRule
}

// ObservabilityConfig holds logging configuration
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string // json or text
}

// Guarded action names. Handlers and quota rules reference these.
const (
	ActionKYCSubmission   = "kyc_submission"
	ActionProfileUpdate   = "profile_update"
	ActionPasswordChange  = "password_change"
	ActionAccountDeletion = "account_deletion"
	ActionPaymentWebhook  = "payment_webhook"
)

// DefaultQuotaRules returns the built-in per-action quota triples
func DefaultQuotaRules() map[string]QuotaRule {
	return map[string]QuotaRule{
		ActionKYCSubmission:   {MaxAttempts: 5, Window: 24 * time.Hour},
		ActionProfileUpdate:   {MaxAttempts: 10, Window: time.Hour},
		ActionPasswordChange:  {MaxAttempts: 5, Window: 24 * time.Hour},
		ActionAccountDeletion: {MaxAttempts: 3, Window: 24 * time.Hour},
		ActionPaymentWebhook:  {MaxAttempts: 60, Window: time.Minute},
	}
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	// Load .env if it exists (repo root)
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Database:      loadDatabaseConfig(),
		AuditDatabase: loadAuditDatabaseConfig(),
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
			Issuer:    getEnv("JWT_ISSUER", "finvera"),
		},
		Gateway: GatewayConfig{
			WebhookSecret:   getEnv("GATEWAY_WEBHOOK_SECRET", ""),
			SignatureHeader: getEnv("GATEWAY_SIGNATURE_HEADER", "X-Gateway-Signature"),
		},
		Settlement: SettlementConfig{
			GatewayFeeRate: getEnvAsDecimal("SETTLEMENT_GATEWAY_FEE_RATE", "0.02"),
			TaxRate:        getEnvAsDecimal("SETTLEMENT_TAX_RATE", "0.18"),
		},
		Quota: QuotaConfig{
			StoreTimeout: getEnvAsDuration("QUOTA_STORE_TIMEOUT", 2*time.Second),
			Rules:        DefaultQuotaRules(),
		},
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
	// Database validation (DATABASE_URL or DB_* vars)
	if c.Database.ConnectionString == "" && c.Database.Host == "" {
		return fmt.Errorf("database configuration required: set DATABASE_URL or DB_HOST")
	}
	if c.Database.ConnectionString == "" {
		if c.Database.User == "" {
			return fmt.Errorf("database user is required")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
	}

	// Secrets are required in production
	if c.IsProduction() {
		if c.Auth.JWTSecret == "" {
			return fmt.Errorf("JWT secret is required in production")
		}
		if c.Gateway.WebhookSecret == "" {
			return fmt.Errorf("gateway webhook secret is required in production")
		}
	}

	one := decimal.NewFromInt(1)
	if c.Settlement.GatewayFeeRate.IsNegative() || c.Settlement.GatewayFeeRate.GreaterThan(one) {
		return fmt.Errorf("settlement gateway fee rate must be within [0, 1]")
	}
	if c.Settlement.TaxRate.IsNegative() || c.Settlement.TaxRate.GreaterThan(one) {
		return fmt.Errorf("settlement tax rate must be within [0, 1]")
	}

	for action, rule := range c.Quota.Rules {
		if rule.MaxAttempts <= 0 {
			return fmt.Errorf("quota rule for %q: max attempts must be positive", action)
		}
		if rule.Window <= 0 {
			return fmt.Errorf("quota rule for %q: window must be positive", action)
		}
	}

	// Observability validation
	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// DSN returns the PostgreSQL connection string.
// Uses ConnectionString (from DATABASE_URL) when set; otherwise builds from individual fields.
func (c *DatabaseConfig) DSN() string {
	if c.ConnectionString != "" {
		return c.ConnectionString
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// LogString returns a safe string for logging (no password). Parses ConnectionString when set.
func (c *DatabaseConfig) LogString() string {
	if c.ConnectionString != "" {
		u, err := url.Parse(c.ConnectionString)
		if err == nil {
			host := u.Hostname()
			port := u.Port()
			if port == "" {
				port = "5432"
			}
			db := strings.TrimPrefix(u.Path, "/")
			return fmt.Sprintf("host=%s port=%s database=%s", host, port, db)
		}
		return "host=<from DATABASE_URL>"
	}
	return fmt.Sprintf("host=%s port=%d database=%s", c.Host, c.Port, c.Database)
}

// loadDatabaseConfig loads database config from DATABASE_URL or DB_* env vars
func loadDatabaseConfig() DatabaseConfig {
	dbURL := getEnv("DATABASE_URL", "")
	if dbURL != "" {
		return DatabaseConfig{
			ConnectionString: dbURL,
			MaxOpenConns:     getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:     getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime:  getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		}
	}
	return DatabaseConfig{
		Host:            getEnv("DB_HOST", "localhost"),
		Port:            getEnvAsInt("DB_PORT", 5432),
		User:            getEnv("DB_USER", "dev"),
		Password:        getEnv("DB_PASSWORD", "invoicing_password"),
		Database:        getEnv("DB_NAME", "invoicing"),
		SSLMode:         getEnv("DB_SSLMODE", "disable"),
		MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}
}

// loadAuditDatabaseConfig loads audit DB config from DATABASE_URL_AUDIT.
// Returns nil when not set (audit uses main DB).
func loadAuditDatabaseConfig() *DatabaseConfig {
	dbURL := getEnv("DATABASE_URL_AUDIT", "")
	if dbURL == "" {
		return nil
	}
	return &DatabaseConfig{
		ConnectionString: dbURL,
		MaxOpenConns:     getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:     getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime:  getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 8080)
func getPort() int {
	if value := os.Getenv("PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	if value := os.Getenv("SERVER_PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	return 8080
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDecimal parses a rate from the environment as an exact decimal,
// never a binary float.
func getEnvAsDecimal(key, defaultValue string) decimal.Decimal {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}
	value, err := decimal.NewFromString(valueStr)
	if err != nil {
		value, _ = decimal.NewFromString(defaultValue)
	}
	return value
}
