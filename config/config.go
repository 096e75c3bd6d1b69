// Package config loads the keygate service configuration from the
// environment, with an optional .env file for development.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

const (
	BackendBbolt    = "bbolt"
	BackendPostgres = "postgres"
)

type Config struct {
	Env  string
	Port int

	Token   TokenConfig
	Cookie  CookieConfig
	Session SessionConfig
	Redis   RedisConfig
	Log     LogConfig
}

// TokenConfig carries the token protocol secrets and issuance policy.
// Both secrets must be at least 32 bytes of high-entropy material.
type TokenConfig struct {
	MasterSecret    string
	NonceHashSecret string
	HeaderName      string
	RequireSecure   bool
	RequireHeader   bool
	DefaultTTL      time.Duration
}

// CookieConfig controls the flags on every cookie the protocol writes.
type CookieConfig struct {
	Prefix   string
	Path     string
	SameSite string
}

// SessionConfig selects the session backend and the sweep cadence.
type SessionConfig struct {
	Backend       string
	BboltPath     string
	PostgresDSN   string
	SweepInterval time.Duration
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

type LogConfig struct {
	Level  string
	Format string
}

// SameSiteMode maps the configured string onto the net/http constant.
// Unknown values fall back to Lax.
func (c CookieConfig) SameSiteMode() http.SameSite {
	switch strings.ToLower(c.SameSite) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
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
		// A missing .env file is fine; the environment still applies.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")

	cfg.Token = TokenConfig{
		MasterSecret:    v.GetString("KEYGATE_MASTER_SECRET"),
		NonceHashSecret: v.GetString("KEYGATE_NONCE_HASH_SECRET"),
		HeaderName:      v.GetString("KEYGATE_HEADER_NAME"),
		RequireSecure:   v.GetBool("KEYGATE_REQUIRE_SECURE"),
		RequireHeader:   v.GetBool("KEYGATE_REQUIRE_HEADER"),
		DefaultTTL:      parseDuration(v.GetString("KEYGATE_TOKEN_TTL"), 24*time.Hour),
	}

	cfg.Cookie = CookieConfig{
		Prefix:   v.GetString("KEYGATE_COOKIE_PREFIX"),
		Path:     v.GetString("KEYGATE_COOKIE_PATH"),
		SameSite: v.GetString("KEYGATE_COOKIE_SAMESITE"),
	}

	cfg.Session = SessionConfig{
		Backend:       v.GetString("KEYGATE_SESSION_BACKEND"),
		BboltPath:     v.GetString("KEYGATE_BBOLT_PATH"),
		PostgresDSN:   v.GetString("KEYGATE_POSTGRES_DSN"),
		SweepInterval: parseDuration(v.GetString("KEYGATE_SWEEP_INTERVAL"), 15*time.Minute),
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("KEYGATE_REDIS_ENABLED"),
		Addr:     v.GetString("REDIS_ADDR"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if len(c.Token.MasterSecret) < 32 {
		return fmt.Errorf("KEYGATE_MASTER_SECRET must be at least 32 bytes, got %d", len(c.Token.MasterSecret))
	}
	if len(c.Token.NonceHashSecret) < 32 {
		return fmt.Errorf("KEYGATE_NONCE_HASH_SECRET must be at least 32 bytes, got %d", len(c.Token.NonceHashSecret))
	}
	switch c.Session.Backend {
	case BackendBbolt:
		if c.Session.BboltPath == "" {
			return errors.New("KEYGATE_BBOLT_PATH is required for the bbolt backend")
		}
	case BackendPostgres:
		if c.Session.PostgresDSN == "" {
			return errors.New("KEYGATE_POSTGRES_DSN is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown session backend %q", c.Session.Backend)
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return errors.New("REDIS_ADDR is required when Redis is enabled")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)

	v.SetDefault("KEYGATE_MASTER_SECRET", "")
	v.SetDefault("KEYGATE_NONCE_HASH_SECRET", "")
	v.SetDefault("KEYGATE_HEADER_NAME", "X-Keygate-Nonce")
	v.SetDefault("KEYGATE_REQUIRE_SECURE", true)
	v.SetDefault("KEYGATE_REQUIRE_HEADER", false)
	v.SetDefault("KEYGATE_TOKEN_TTL", "24h")

	v.SetDefault("KEYGATE_COOKIE_PREFIX", "kg_")
	v.SetDefault("KEYGATE_COOKIE_PATH", "/")
	v.SetDefault("KEYGATE_COOKIE_SAMESITE", "lax")

	v.SetDefault("KEYGATE_SESSION_BACKEND", BackendBbolt)
	v.SetDefault("KEYGATE_BBOLT_PATH", "./keygate.db")
	v.SetDefault("KEYGATE_POSTGRES_DSN", "")
	v.SetDefault("KEYGATE_SWEEP_INTERVAL", "15m")

	v.SetDefault("KEYGATE_REDIS_ENABLED", false)
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
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
