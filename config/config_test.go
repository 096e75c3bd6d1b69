package config

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func setSecrets(t *testing.T) {
	t.Helper()
	t.Setenv("KEYGATE_MASTER_SECRET", strings.Repeat("m", 32))
	t.Setenv("KEYGATE_NONCE_HASH_SECRET", strings.Repeat("h", 32))
}

func TestLoadDefaults(t *testing.T) {
	setSecrets(t)

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, EnvDevelopment, cfg.Env)
	require.Equal(t, 8080, cfg.Port)
	require.Equal(t, "kg_", cfg.Cookie.Prefix)
	require.Equal(t, "X-Keygate-Nonce", cfg.Token.HeaderName)
	require.True(t, cfg.Token.RequireSecure)
	require.False(t, cfg.Token.RequireHeader)
	require.Equal(t, 24*time.Hour, cfg.Token.DefaultTTL)
	require.Equal(t, BackendBbolt, cfg.Session.Backend)
	require.Equal(t, 15*time.Minute, cfg.Session.SweepInterval)
	require.False(t, cfg.Redis.Enabled)
}

func TestLoadRejectsShortSecrets(t *testing.T) {
	t.Setenv("KEYGATE_MASTER_SECRET", "short")
	t.Setenv("KEYGATE_NONCE_HASH_SECRET", strings.Repeat("h", 32))
	_, err := Load()
	require.Error(t, err)
	require.Contains(t, err.Error(), "KEYGATE_MASTER_SECRET")

	t.Setenv("KEYGATE_MASTER_SECRET", strings.Repeat("m", 32))
	t.Setenv("KEYGATE_NONCE_HASH_SECRET", "short")
	_, err = Load()
	require.Error(t, err)
	require.Contains(t, err.Error(), "KEYGATE_NONCE_HASH_SECRET")
}

func TestLoadBackendValidation(t *testing.T) {
	setSecrets(t)

	t.Setenv("KEYGATE_SESSION_BACKEND", "cassandra")
	_, err := Load()
	require.Error(t, err)

	t.Setenv("KEYGATE_SESSION_BACKEND", BackendPostgres)
	t.Setenv("KEYGATE_POSTGRES_DSN", "")
	_, err = Load()
	require.Error(t, err)

	t.Setenv("KEYGATE_POSTGRES_DSN", "postgres://localhost/keygate")
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, BackendPostgres, cfg.Session.Backend)
}

func TestLoadOverrides(t *testing.T) {
	setSecrets(t)
	t.Setenv("KEYGATE_COOKIE_PREFIX", "sess_")
	t.Setenv("KEYGATE_TOKEN_TTL", "90m")
	t.Setenv("KEYGATE_REQUIRE_HEADER", "true")
	t.Setenv("KEYGATE_SWEEP_INTERVAL", "bogus")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "sess_", cfg.Cookie.Prefix)
	require.Equal(t, 90*time.Minute, cfg.Token.DefaultTTL)
	require.True(t, cfg.Token.RequireHeader)
	require.Equal(t, 15*time.Minute, cfg.Session.SweepInterval, "bad duration falls back to default")
}

func TestSameSiteMode(t *testing.T) {
	for raw, want := range map[string]http.SameSite{
		"lax":    http.SameSiteLaxMode,
		"strict": http.SameSiteStrictMode,
		"none":   http.SameSiteNoneMode,
		"Strict": http.SameSiteStrictMode,
		"":       http.SameSiteLaxMode,
		"bogus":  http.SameSiteLaxMode,
	} {
		got := CookieConfig{SameSite: raw}.SameSiteMode()
		require.Equal(t, want, got, "mode for %q", raw)
	}
}
