package config

import (
	"os"
	"strings"
)

// Config holds all service configuration.
type Config struct {
	Port string

	// RedisURL backs the transfer store; empty falls back to the in-memory
	// store.
	RedisURL string

	// ViewerOrigin is the sole origin the handoff protocol exchanges
	// messages with.
	ViewerOrigin string

	// DevToolsURL attaches extraction to a running browser over CDP. Empty
	// means a local Chromium is launched on demand instead.
	DevToolsURL string

	// PortalURL is the journal portal page extraction runs against.
	PortalURL string
}

// Load loads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		Port:         getEnv("PORT", "3001"),
		RedisURL:     getEnv("REDIS_URL", ""),
		ViewerOrigin: strings.TrimRight(getEnv("VIEWER_ORIGIN", "https://eir.space"), "/"),
		DevToolsURL:  getEnv("DEVTOOLS_URL", ""),
		PortalURL:    getEnv("PORTAL_URL", ""),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
