// Package config resolves server settings from the environment and an
// optional .env file.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"dualauth-server/src/plaid"
	"dualauth-server/src/util"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	Port               string
	DatabaseURL        string
	StoreDriver        string
	JWTSecret          string
	Plaid              plaid.Config
	VerifyWebhooks     bool
	TokenEncryptionKey string
	AllowedOrigins     []string
	DemoMode           bool
	LogLevel           string
	LogFormat          string
	ItemCacheTTL       time.Duration
	SessionCacheTTL    time.Duration
}

// SetDefaults registers every key's default on v and binds it to the
// environment.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("STORE_DRIVER", DriverPostgres)
	v.SetDefault("PLAID_ENV", "sandbox")
	v.SetDefault("PLAID_CLIENT_NAME", "Dual Auth")
	v.SetDefault("PLAID_VERIFY_WEBHOOKS", true)
	v.SetDefault("CORS_ALLOWED_ORIGINS", "http://localhost:3000")
	v.SetDefault("DEMO_MODE", false)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
	v.SetDefault("ITEM_CACHE_TTL", "10m")
	v.SetDefault("SESSION_CACHE_TTL", "10m")

	// Keys without defaults still need binding for Get to see them.
	for _, key := range []string{"DATABASE_URL", "JWT_SECRET", "PLAID_CLIENT_ID", "PLAID_SECRET", "PLAID_WEBHOOK_URL", "TOKEN_ENCRYPTION_KEY"} {
		_ = v.BindEnv(key)
	}
	v.AutomaticEnv()
}

// Load reads .env (if present) into the process environment and resolves
// the configuration through v.
func Load(v *viper.Viper) (Config, error) {
	// Load .env file if present
	_ = godotenv.Load()
	SetDefaults(v)

	cfg := Config{
		Port:        v.GetString("PORT"),
		DatabaseURL: v.GetString("DATABASE_URL"),
		StoreDriver: strings.ToLower(v.GetString("STORE_DRIVER")),
		JWTSecret:   v.GetString("JWT_SECRET"),
		Plaid: plaid.Config{
			ClientID:    v.GetString("PLAID_CLIENT_ID"),
			Secret:      v.GetString("PLAID_SECRET"),
			Environment: v.GetString("PLAID_ENV"),
			WebhookURL:  v.GetString("PLAID_WEBHOOK_URL"),
			ClientName:  v.GetString("PLAID_CLIENT_NAME"),
		},
		VerifyWebhooks:     v.GetBool("PLAID_VERIFY_WEBHOOKS"),
		TokenEncryptionKey: v.GetString("TOKEN_ENCRYPTION_KEY"),
		AllowedOrigins:     splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
		DemoMode:           v.GetBool("DEMO_MODE"),
		LogLevel:           v.GetString("LOG_LEVEL"),
		LogFormat:          v.GetString("LOG_FORMAT"),
		ItemCacheTTL:       v.GetDuration("ITEM_CACHE_TTL"),
		SessionCacheTTL:    v.GetDuration("SESSION_CACHE_TTL"),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	switch c.StoreDriver {
	case DriverPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres store"))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER must be %s or %s, got %q", DriverPostgres, DriverMemory, c.StoreDriver))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if err := c.Plaid.Validate(); err != nil {
		errs = append(errs, err)
	}
	if key, err := hex.DecodeString(c.TokenEncryptionKey); err != nil || len(key) != 32 {
		errs = append(errs, errors.New("TOKEN_ENCRYPTION_KEY must be 64 hex characters"))
	}
	if _, err := util.ParseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.LogFormat))
	}
	if c.ItemCacheTTL <= 0 {
		errs = append(errs, errors.New("ITEM_CACHE_TTL must be a positive duration"))
	}
	if c.SessionCacheTTL <= 0 {
		errs = append(errs, errors.New("SESSION_CACHE_TTL must be a positive duration"))
	}
	return errors.Join(errs...)
}

// DatabaseURL resolves only the connection string, for commands that need
// nothing else.
func DatabaseURL(v *viper.Viper) (string, error) {
	_ = godotenv.Load()
	SetDefaults(v)
	url := v.GetString("DATABASE_URL")
	if url == "" {
		return "", errors.New("DATABASE_URL is required")
	}
	return url, nil
}
