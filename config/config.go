// Package config loads application settings from a .env file and environment variables.
// Environment variables always take precedence over .env file values.
package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	// PostgreSQL – either set DatabaseURL directly, or the individual fields.
	DatabaseURL string
	DBUser      string
	DBPass      string
	DBHost      string
	DBPort      string
	DBName      string
	DBSSLMode   string

	// JWT signing secret, required by the API server.
	JWTSecret  string
	AdminUsers []string

	// Server
	Debug      bool
	Port       string
	TLSDomains []string

	// MySQL staging tables written by the scrapers.
	MySQLDSN     string
	StagingBatch int

	// Pipeline
	CycleInterval  time.Duration
	TrackWorkers   int
	OpTimeout      time.Duration
	RetryAttempts  int
	RetryBackoff   time.Duration
	SettleGrace    time.Duration
	SettleInterval time.Duration
	MinContainLen  int
}

// Load reads configuration from a .env file (if present) and then from
// environment variables. Environment variables always win.
func Load() (*Config, error) {
	v := newViper()

	// Defaults
	v.SetDefault("DB_USER", "padraic")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_NAME", "mikebet")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("PORT", ":9000")
	v.SetDefault("TLS_DOMAINS", "")
	v.SetDefault("ADMIN_USERS", "admin")
	v.SetDefault("DEBUG", false)
	v.SetDefault("STAGING_BATCH", 500)
	v.SetDefault("CYCLE_INTERVAL", "5m")
	v.SetDefault("CYCLE_TRACK_WORKERS", 1)
	v.SetDefault("OP_TIMEOUT", "30s")
	v.SetDefault("RETRY_ATTEMPTS", 5)
	v.SetDefault("RETRY_BACKOFF", "100ms")
	v.SetDefault("SETTLE_GRACE_DAYS", 2)
	v.SetDefault("SETTLE_INTERVAL", "1m")
	v.SetDefault("IDENTITY_MIN_CONTAIN_LEN", 5)

	cfg := &Config{
		DatabaseURL:    v.GetString("DATABASE_URL"),
		DBUser:         v.GetString("DB_USER"),
		DBPass:         v.GetString("DB_PASS"),
		DBHost:         v.GetString("DB_HOST"),
		DBPort:         v.GetString("DB_PORT"),
		DBName:         v.GetString("DB_NAME"),
		DBSSLMode:      v.GetString("DB_SSLMODE"),
		JWTSecret:      v.GetString("JWT_SECRET"),
		AdminUsers:     splitTrimmed(v.GetString("ADMIN_USERS")),
		Debug:          v.GetBool("DEBUG"),
		Port:           v.GetString("PORT"),
		TLSDomains:     splitTrimmed(v.GetString("TLS_DOMAINS")),
		MySQLDSN:       v.GetString("MYSQL_DSN"),
		StagingBatch:   v.GetInt("STAGING_BATCH"),
		CycleInterval:  v.GetDuration("CYCLE_INTERVAL"),
		TrackWorkers:   v.GetInt("CYCLE_TRACK_WORKERS"),
		OpTimeout:      v.GetDuration("OP_TIMEOUT"),
		RetryAttempts:  v.GetInt("RETRY_ATTEMPTS"),
		RetryBackoff:   v.GetDuration("RETRY_BACKOFF"),
		SettleGrace:    time.Duration(v.GetInt("SETTLE_GRACE_DAYS")) * 24 * time.Hour,
		SettleInterval: v.GetDuration("SETTLE_INTERVAL"),
		MinContainLen:  v.GetInt("IDENTITY_MIN_CONTAIN_LEN"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// PostgresDSN returns the full PostgreSQL connection string.
// DATABASE_URL takes precedence over individual fields.
func (c *Config) PostgresDSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser,
		c.DBPass,
		c.DBHost,
		c.DBPort,
		c.DBName,
		c.DBSSLMode,
	)
}

// JWTKey returns the JWT signing key as a byte slice.
func (c *Config) JWTKey() []byte {
	return []byte(c.JWTSecret)
}

// IsAdmin reports whether username is listed in ADMIN_USERS.
func (c *Config) IsAdmin(username string) bool {
	username = strings.ToLower(strings.TrimSpace(username))
	for _, admin := range c.AdminUsers {
		if username == strings.ToLower(admin) {
			return true
		}
	}
	return false
}

// RequireJWT fails when no signing secret is configured.
func (c *Config) RequireJWT() error {
	if c.JWTSecret == "" {
		return errors.New("config: JWT_SECRET must be set")
	}
	return nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" && c.DBPass == "" {
		return errors.New("config: DATABASE_URL or DB_PASS must be set")
	}
	if c.TrackWorkers < 1 {
		return fmt.Errorf("config: CYCLE_TRACK_WORKERS must be at least 1, got %d", c.TrackWorkers)
	}
	if c.RetryAttempts < 1 {
		return fmt.Errorf("config: RETRY_ATTEMPTS must be at least 1, got %d", c.RetryAttempts)
	}
	if c.OpTimeout <= 0 || c.CycleInterval <= 0 || c.SettleInterval <= 0 {
		return errors.New("config: OP_TIMEOUT, CYCLE_INTERVAL and SETTLE_INTERVAL must be positive")
	}
	if c.SettleGrace < 0 {
		return errors.New("config: SETTLE_GRACE_DAYS must not be negative")
	}
	return nil
}

func newViper() *viper.Viper {
	// Silently load .env – OK if the file doesn't exist (production uses real env vars).
	if err := godotenv.Load(); err != nil {
		log.Println("config: no .env file found, using environment variables only")
	}

	v := viper.New()
	v.AutomaticEnv()
	return v
}

func splitTrimmed(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
