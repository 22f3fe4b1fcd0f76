// Package config loads shell settings from the environment and an optional .env file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Session stores.
const (
	StoreFile     = "file"
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

type Config struct {
	APIBaseURL             string
	StaleTime              time.Duration
	CacheTime              time.Duration
	GCInterval             time.Duration
	RequestRPS             float64
	RequestTimeout         time.Duration
	Store                  string
	StateDir               string
	Passphrase             string
	PGDSN                  string
	PGScope                string
	ParentBridgeURL        string
	ParentOrigin           string
	AllowedOrigins         []string
	BridgeAckTimeout       time.Duration
	InPlaceNavigation      bool
	SoldRedirectDelay      time.Duration
	InventoryRedirectDelay time.Duration
	Debug                  bool
}

// Load reads .env (if present) and the MKT_* variables, then validates.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		APIBaseURL:             getEnv("MKT_API_BASE_URL", "http://localhost:8000"),
		StaleTime:              getDuration("MKT_STALE_TIME", 5*time.Minute),
		CacheTime:              getDuration("MKT_CACHE_TIME", 10*time.Minute),
		GCInterval:             getDuration("MKT_GC_INTERVAL", time.Minute),
		RequestRPS:             getFloat("MKT_REQUEST_RPS", 0),
		RequestTimeout:         getDuration("MKT_REQUEST_TIMEOUT", 30*time.Second),
		Store:                  strings.ToLower(getEnv("MKT_STORE", StoreFile)),
		StateDir:               strings.TrimSpace(os.Getenv("MKT_STATE_DIR")),
		Passphrase:             os.Getenv("MKT_PASSPHRASE"),
		PGDSN:                  strings.TrimSpace(os.Getenv("MKT_PG_DSN")),
		PGScope:                getEnv("MKT_PG_SCOPE", "default"),
		ParentBridgeURL:        strings.TrimSpace(os.Getenv("MKT_PARENT_BRIDGE_URL")),
		ParentOrigin:           getEnv("MKT_PARENT_ORIGIN", "http://localhost"),
		AllowedOrigins:         splitCSV(os.Getenv("MKT_ALLOWED_ORIGINS")),
		BridgeAckTimeout:       getDuration("MKT_BRIDGE_ACK_TIMEOUT", 2*time.Second),
		InPlaceNavigation:      getBool("MKT_IN_PLACE_NAVIGATION", false),
		SoldRedirectDelay:      getDuration("MKT_SOLD_REDIRECT_DELAY", 3*time.Second),
		InventoryRedirectDelay: getDuration("MKT_INVENTORY_REDIRECT_DELAY", 2*time.Second),
		Debug:                  getBool("MKT_DEBUG", false),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.APIBaseURL) == "" {
		return fmt.Errorf("MKT_API_BASE_URL is required")
	}
	if c.StaleTime <= 0 {
		return fmt.Errorf("MKT_STALE_TIME must be positive")
	}
	if c.CacheTime <= 0 {
		return fmt.Errorf("MKT_CACHE_TIME must be positive")
	}
	if c.RequestRPS < 0 {
		return fmt.Errorf("MKT_REQUEST_RPS cannot be negative")
	}
	switch c.Store {
	case StoreFile, StoreMemory:
	case StorePostgres:
		if c.PGDSN == "" {
			return fmt.Errorf("MKT_PG_DSN is required for the postgres store")
		}
	default:
		return fmt.Errorf("MKT_STORE: unknown store %q", c.Store)
	}
	if c.BridgeAckTimeout <= 0 {
		return fmt.Errorf("MKT_BRIDGE_ACK_TIMEOUT must be positive")
	}
	if c.SoldRedirectDelay < 0 || c.InventoryRedirectDelay < 0 {
		return fmt.Errorf("redirect delays cannot be negative")
	}
	return nil
}

func getEnv(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func getFloat(key string, fallback float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return v
}

func getBool(key string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return v
}

func splitCSV(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
