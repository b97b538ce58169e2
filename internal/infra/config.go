package infra

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config holds all application configuration parsed from environment variables.
type Config struct {
	// Database
	DatabaseURL    string `env:"DATABASE_URL"`
	PGHost         string `env:"PGHOST" envDefault:"localhost"`
	PGPort         int    `env:"PGPORT" envDefault:"5432"`
	PGUser         string `env:"PGUSER" envDefault:"dogevents"`
	PGPassword     string `env:"PGPASSWORD" envDefault:"dogevents"`
	PGDatabase     string `env:"PGDATABASE" envDefault:"dogevents"`
	PGPoolMaxConns int32  `env:"PG_POOL_MAX_CONNS" envDefault:"20"`
	PGPoolMinConns int32  `env:"PG_POOL_MIN_CONNS" envDefault:"2"`

	// JWT
	JWTSecret     string `env:"JWT_SECRET" envDefault:"change-me-in-production"`
	JWTUserExpiry string `env:"JWT_USER_EXPIRY" envDefault:"24h"`

	// Server
	APIPort int `env:"API_PORT" envDefault:"3200"`
	// APIHost is the externally visible host used in gateway callback URLs.
	APIHost string `env:"API_HOST" envDefault:"localhost:3200"`
	// FrontendURL is the origin used for gateway redirect URLs.
	FrontendURL string `env:"FRONTEND_URL" envDefault:"http://localhost:3000"`

	// Kafka
	KafkaBrokers    string `env:"KAFKA_BROKERS" envDefault:"localhost:9092"`
	KafkaEnabled    bool   `env:"KAFKA_ENABLED" envDefault:"false"`
	KafkaEmailTopic string `env:"KAFKA_EMAIL_TOPIC" envDefault:"payments.email"`

	// Payment gateway
	PaytrailEndpoint   string `env:"PAYTRAIL_ENDPOINT"`
	PaytrailMerchantID string `env:"PAYTRAIL_MERCHANT_ID"`
	PaytrailSecret     string `env:"PAYTRAIL_SECRET"`

	// CORS
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*"`

	// Dev
	AllowInsecureDefaults bool `env:"ALLOW_INSECURE_DEFAULTS" envDefault:"false"`
}

// LoadConfig parses environment variables into a Config struct.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Validate checks for insecure configuration that must not run in production.
// Set ALLOW_INSECURE_DEFAULTS=true to bypass (local dev only).
func (c *Config) Validate() error {
	if c.AllowInsecureDefaults {
		return nil
	}
	if c.JWTSecret == "change-me-in-production" {
		return fmt.Errorf("JWT_SECRET is set to the insecure default; set a strong secret or set ALLOW_INSECURE_DEFAULTS=true for local dev")
	}
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET is too short (%d chars); minimum 32 characters required", len(c.JWTSecret))
	}
	if c.PaytrailMerchantID == "" || c.PaytrailSecret == "" {
		return fmt.Errorf("PAYTRAIL_MERCHANT_ID and PAYTRAIL_SECRET are required")
	}
	return nil
}

// DSN returns the PostgreSQL connection string, preferring DATABASE_URL if set.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.PGUser, c.PGPassword, c.PGHost, c.PGPort, c.PGDatabase)
}
