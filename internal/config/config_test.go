package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		k, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(k, "MKT_") {
			t.Setenv(k, "")
		}
	}
	// keep a stray .env in the package dir from leaking in
	t.Chdir(t.TempDir())
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 5*time.Minute, cfg.StaleTime)
	require.Equal(t, 10*time.Minute, cfg.CacheTime)
	require.Equal(t, StoreFile, cfg.Store)
	require.Equal(t, 2*time.Second, cfg.BridgeAckTimeout)
	require.Equal(t, 3*time.Second, cfg.SoldRedirectDelay)
	require.Equal(t, 2*time.Second, cfg.InventoryRedirectDelay)
	require.False(t, cfg.InPlaceNavigation)
	require.Empty(t, cfg.AllowedOrigins)
}

func TestLoad_Env(t *testing.T) {
	clearEnv(t)
	t.Setenv("MKT_API_BASE_URL", "https://api.example")
	t.Setenv("MKT_STALE_TIME", "1m")
	t.Setenv("MKT_REQUEST_RPS", "2.5")
	t.Setenv("MKT_ALLOWED_ORIGINS", " https://a.example, ,https://b.example ")
	t.Setenv("MKT_IN_PLACE_NAVIGATION", "true")
	t.Setenv("MKT_CACHE_TIME", "garbage")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "https://api.example", cfg.APIBaseURL)
	require.Equal(t, time.Minute, cfg.StaleTime)
	require.Equal(t, 10*time.Minute, cfg.CacheTime, "unparsable values fall back")
	require.Equal(t, 2.5, cfg.RequestRPS)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	require.True(t, cfg.InPlaceNavigation)
}

func TestLoad_DotEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("MKT_API_BASE_URL=https://from-dotenv.example\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("MKT_API_BASE_URL") })

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "https://from-dotenv.example", cfg.APIBaseURL)
}

func TestValidate(t *testing.T) {
	ok := func() Config {
		return Config{
			APIBaseURL:       "http://x",
			StaleTime:        time.Minute,
			CacheTime:        time.Minute,
			Store:            StoreFile,
			BridgeAckTimeout: time.Second,
		}
	}
	base := ok()
	require.NoError(t, base.Validate())

	cases := map[string]func(*Config){
		"empty url":       func(c *Config) { c.APIBaseURL = " " },
		"zero stale":      func(c *Config) { c.StaleTime = 0 },
		"zero cache":      func(c *Config) { c.CacheTime = 0 },
		"negative rps":    func(c *Config) { c.RequestRPS = -1 },
		"pg without dsn":  func(c *Config) { c.Store = StorePostgres },
		"unknown store":   func(c *Config) { c.Store = "redis" },
		"zero ack":        func(c *Config) { c.BridgeAckTimeout = 0 },
		"negative delays": func(c *Config) { c.SoldRedirectDelay = -time.Second },
	}
	for name, mut := range cases {
		c := ok()
		mut(&c)
		if err := c.Validate(); err == nil {
			t.Fatalf("%s: want error", name)
		}
	}

	c := ok()
	c.Store = StorePostgres
	c.PGDSN = "postgres://x"
	require.NoError(t, c.Validate())
}
