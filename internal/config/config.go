// Package config provides application configuration management with support for environment variables, command-line flags, and .env files.
package config

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config holds the application configuration.
type Config struct {
	App       AppConfig
	Logger    LoggerConfig
	Data      DataConfig
	Server    ServerConfig
	Auth      AuthConfig
	Scraper   ScraperConfig
	Readaloud ReadaloudConfig
	Sideload  SideloadConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string
}

// DataConfig holds data storage configuration.
// The base path contains the database, cover images, the search index,
// the readaloud cache, and the sideload inbox.
type DataConfig struct {
	BasePath string
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Name          string
	LocalURL      string        // Optional
	RemoteURL     string        // Optional
	Port          string        // Server port (default: 8080)
	ReadTimeout   time.Duration // HTTP read timeout (default: 15s)
	WriteTimeout  time.Duration // HTTP write timeout (default: 15s)
	IdleTimeout   time.Duration // HTTP idle timeout (default: 60s)
	AdvertiseMDNS bool          // Advertise via mDNS/Zeroconf (default: true)
}

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	// PASETO v4 symmetric key for access tokens (32 bytes)
	AccessTokenKey []byte
	// Session durations
	AccessTokenDuration  time.Duration // e.g., 15m
	RefreshTokenDuration time.Duration // e.g., 720h (30 days)
	// AllowRegistration permits account creation after the first admin (default: true)
	AllowRegistration bool
}

// ScraperConfig holds chapter scraping configuration.
type ScraperConfig struct {
	// UserAgent sent on outbound fetches
	UserAgent string
	// RequestTimeout for a single fetch (default: 30s)
	RequestTimeout time.Duration
	// PerHostRPS limits fetches against a single host (default: 1)
	PerHostRPS float64
	// MaxBodyBytes caps a fetched response body (default: 5 MiB)
	MaxBodyBytes int64
}

// ReadaloudConfig holds TTS vendor proxy configuration.
type ReadaloudConfig struct {
	// Enabled allows disabling readaloud entirely (default: true)
	Enabled bool
	// VendorURL is the base URL of the TTS sidecar (default: http://localhost:5050)
	VendorURL string
	// CachePath is the directory for the job/segment cache (default: {data}/cache/readaloud)
	CachePath string
	// CacheTTL is how long cached jobs and audio live (default: 1h, vendor parity)
	CacheTTL time.Duration
	// PollInterval between job status checks (default: 2s)
	PollInterval time.Duration
}

// SideloadConfig holds sideload inbox configuration.
type SideloadConfig struct {
	// Enabled turns the inbox watcher on (default: true)
	Enabled bool
	// InboxPath is the watched directory (default: {data}/inbox)
	InboxPath string
}

// LoadConfig loads configuration from multiple sources with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. Default values (lowest priority).
func LoadConfig() (*Config, error) {
	// Define command-line flags.
	env := flag.String("env", "", "Environment (development, staging, production)")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	dataPath := flag.String("data-path", "", "Base path for data storage")
	serverName := flag.String("server-name", "", "Name for the server")
	serverLocalURL := flag.String("local-url", "", "Internal server url")
	serverRemoteURL := flag.String("remote-url", "", "Remote server url")

	// Auth flags
	accessTokenDuration := flag.String("access-token-duration", "", "Access token lifetime (e.g., 15m)")
	refreshTokenDuration := flag.String("refresh-token-duration", "", "Refresh token lifetime (e.g., 720h)")
	allowRegistration := flag.String("allow-registration", "", "Allow account creation after setup (default: true)")

	// Server flags
	serverPort := flag.String("port", "", "Server port (default: 8080)")
	readTimeout := flag.String("read-timeout", "", "HTTP read timeout (default: 15s)")
	writeTimeout := flag.String("write-timeout", "", "HTTP write timeout (default: 15s)")
	idleTimeout := flag.String("idle-timeout", "", "HTTP idle timeout (default: 60s)")
	advertiseMDNS := flag.String("advertise-mdns", "", "Advertise via mDNS/Zeroconf (default: true)")

	envFile := flag.String("env-file", ".env", "Path to .env file")

	// Scraper flags
	scraperUserAgent := flag.String("scraper-user-agent", "", "User agent for chapter fetches")
	scraperTimeout := flag.String("scraper-timeout", "", "Timeout for a single fetch (default: 30s)")

	// Readaloud flags
	readaloudEnabled := flag.String("readaloud-enabled", "", "Enable readaloud TTS proxy (default: true)")
	readaloudVendorURL := flag.String("readaloud-vendor-url", "", "Base URL of the TTS sidecar")
	readaloudCachePath := flag.String("readaloud-cache-path", "", "Path for the readaloud cache")

	// Sideload flags
	sideloadEnabled := flag.String("sideload-enabled", "", "Enable the sideload inbox watcher (default: true)")
	sideloadInboxPath := flag.String("sideload-inbox-path", "", "Watched inbox directory")

	// Parse flags but don't exit on error - we want to handle it gracefully.
	flag.Parse()

	// Load .env file if it exists (silently ignore if not found).
	_ = loadEnvFile(*envFile)

	// Build config with proper precedence.
	cfg := &Config{
		App: AppConfig{
			Environment: getConfigValue(*env, "ENV", "development"),
		},
		Logger: LoggerConfig{
			Level: getConfigValue(*logLevel, "LOG_LEVEL", "info"),
		},
		Data: DataConfig{
			BasePath: getConfigValue(*dataPath, "DATA_PATH", ""),
		},

		Server: ServerConfig{
			Name:          getConfigValue(*serverName, "SERVER_NAME", "Folio Server"),
			LocalURL:      getConfigValue(*serverLocalURL, "SERVER_LOCAL_URL", ""),
			RemoteURL:     getConfigValue(*serverRemoteURL, "SERVER_REMOTE_URL", ""),
			Port:          getConfigValue(*serverPort, "SERVER_PORT", "8080"),
			AdvertiseMDNS: getBoolConfigValue(*advertiseMDNS, "ADVERTISE_MDNS", true),
		},

		Auth: AuthConfig{
			AccessTokenKey:    nil, // Will be set by auth.LoadOrGenerateKey in main
			AllowRegistration: getBoolConfigValue(*allowRegistration, "ALLOW_REGISTRATION", true),
		},

		Scraper: ScraperConfig{
			UserAgent:    getConfigValue(*scraperUserAgent, "SCRAPER_USER_AGENT", "folio-server/1.0"),
			PerHostRPS:   getFloatConfigValue("", "SCRAPER_PER_HOST_RPS", 1),
			MaxBodyBytes: int64(getIntConfigValue("", "SCRAPER_MAX_BODY_BYTES", 5<<20)),
		},

		Readaloud: ReadaloudConfig{
			Enabled:   getBoolConfigValue(*readaloudEnabled, "READALOUD_ENABLED", true),
			VendorURL: getConfigValue(*readaloudVendorURL, "READALOUD_VENDOR_URL", "http://localhost:5050"),
			CachePath: getConfigValue(*readaloudCachePath, "READALOUD_CACHE_PATH", ""),
		},

		Sideload: SideloadConfig{
			Enabled:   getBoolConfigValue(*sideloadEnabled, "SIDELOAD_ENABLED", true),
			InboxPath: getConfigValue(*sideloadInboxPath, "SIDELOAD_INBOX_PATH", ""),
		},
	}

	// Parse auth durations.
	accessDurationStr := getConfigValue(*accessTokenDuration, "ACCESS_TOKEN_DURATION", "15m")
	accessDuration, err := time.ParseDuration(accessDurationStr)
	if err != nil {
		return nil, fmt.Errorf("invalid access token duration %q: %w", accessDurationStr, err)
	}
	cfg.Auth.AccessTokenDuration = accessDuration

	refreshDurationStr := getConfigValue(*refreshTokenDuration, "REFRESH_TOKEN_DURATION", "720h")
	refreshDuration, err := time.ParseDuration(refreshDurationStr)
	if err != nil {
		return nil, fmt.Errorf("invalid refresh token duration %q: %w", refreshDurationStr, err)
	}
	cfg.Auth.RefreshTokenDuration = refreshDuration

	// Parse server timeouts.
	readTimeoutStr := getConfigValue(*readTimeout, "SERVER_READ_TIMEOUT", "15s")
	readTimeoutDuration, err := time.ParseDuration(readTimeoutStr)
	if err != nil {
		return nil, fmt.Errorf("invalid read timeout %q: %w", readTimeoutStr, err)
	}
	cfg.Server.ReadTimeout = readTimeoutDuration

	writeTimeoutStr := getConfigValue(*writeTimeout, "SERVER_WRITE_TIMEOUT", "15s")
	writeTimeoutDuration, err := time.ParseDuration(writeTimeoutStr)
	if err != nil {
		return nil, fmt.Errorf("invalid write timeout %q: %w", writeTimeoutStr, err)
	}
	cfg.Server.WriteTimeout = writeTimeoutDuration

	idleTimeoutStr := getConfigValue(*idleTimeout, "SERVER_IDLE_TIMEOUT", "60s")
	idleTimeoutDuration, err := time.ParseDuration(idleTimeoutStr)
	if err != nil {
		return nil, fmt.Errorf("invalid idle timeout %q: %w", idleTimeoutStr, err)
	}
	cfg.Server.IdleTimeout = idleTimeoutDuration

	// Parse scraper timeout.
	scraperTimeoutStr := getConfigValue(*scraperTimeout, "SCRAPER_TIMEOUT", "30s")
	scraperTimeoutDuration, err := time.ParseDuration(scraperTimeoutStr)
	if err != nil {
		return nil, fmt.Errorf("invalid scraper timeout %q: %w", scraperTimeoutStr, err)
	}
	cfg.Scraper.RequestTimeout = scraperTimeoutDuration

	// Parse readaloud durations.
	cacheTTLStr := getConfigValue("", "READALOUD_CACHE_TTL", "1h")
	cacheTTL, err := time.ParseDuration(cacheTTLStr)
	if err != nil {
		return nil, fmt.Errorf("invalid readaloud cache TTL %q: %w", cacheTTLStr, err)
	}
	cfg.Readaloud.CacheTTL = cacheTTL

	pollIntervalStr := getConfigValue("", "READALOUD_POLL_INTERVAL", "2s")
	pollInterval, err := time.ParseDuration(pollIntervalStr)
	if err != nil {
		return nil, fmt.Errorf("invalid readaloud poll interval %q: %w", pollIntervalStr, err)
	}
	cfg.Readaloud.PollInterval = pollInterval

	// Expand and validate the data path.
	if err := cfg.expandDataPath(); err != nil {
		return nil, fmt.Errorf("invalid data path: %w", err)
	}

	// Expand the readaloud cache path (defaults to {data}/cache/readaloud).
	if err := cfg.expandReadaloudCachePath(); err != nil {
		return nil, fmt.Errorf("invalid readaloud cache path: %w", err)
	}

	// Expand the sideload inbox path (defaults to {data}/inbox).
	if err := cfg.expandSideloadInboxPath(); err != nil {
		return nil, fmt.Errorf("invalid sideload inbox path: %w", err)
	}

	// Validate configuration.
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required config values are present and valid.
func (c *Config) Validate() error {
	if c.App.Environment == "" {
		return errors.New("ENV is required")
	}

	validEnvs := map[string]bool{
		"development": true,
		"staging":     true,
		"production":  true,
	}
	if !validEnvs[c.App.Environment] {
		return fmt.Errorf("invalid environment: %s (must be development, staging, or production)", c.App.Environment)
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[strings.ToLower(c.Logger.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	if c.Data.BasePath == "" {
		return errors.New("data base path cannot be empty after expansion")
	}

	if c.Readaloud.Enabled && c.Readaloud.VendorURL == "" {
		return errors.New("readaloud vendor URL is required when readaloud is enabled")
	}

	if c.Scraper.PerHostRPS <= 0 {
		return fmt.Errorf("scraper per-host RPS must be positive, got %v", c.Scraper.PerHostRPS)
	}

	// Auth durations are validated during LoadConfig parsing.
	// Auth key is set by auth.LoadOrGenerateKey in main.

	return nil
}

// expandPath expands ~ and makes the path absolute.
// If path is empty and defaultPath is provided, uses the default.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		return defaultPath, nil
	}

	// Expand tilde.
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	// Make absolute if needed.
	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}

	return filepath.Clean(path), nil
}

// expandDataPath expands ~ and makes the path absolute.
func (c *Config) expandDataPath() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}
	defaultPath := filepath.Join(homeDir, "Folio", "data")

	expanded, err := expandPath(c.Data.BasePath, defaultPath)
	if err != nil {
		return err
	}
	c.Data.BasePath = expanded
	return nil
}

// expandReadaloudCachePath expands ~ and makes the path absolute.
// Defaults to {data}/cache/readaloud if not specified.
func (c *Config) expandReadaloudCachePath() error {
	defaultPath := filepath.Join(c.Data.BasePath, "cache", "readaloud")

	expanded, err := expandPath(c.Readaloud.CachePath, defaultPath)
	if err != nil {
		return err
	}
	c.Readaloud.CachePath = expanded
	return nil
}

// expandSideloadInboxPath expands ~ and makes the path absolute.
// Defaults to {data}/inbox if not specified.
func (c *Config) expandSideloadInboxPath() error {
	defaultPath := filepath.Join(c.Data.BasePath, "inbox")

	expanded, err := expandPath(c.Sideload.InboxPath, defaultPath)
	if err != nil {
		return err
	}
	c.Sideload.InboxPath = expanded
	return nil
}

// getConfigValue returns the first non-empty value from flag, env var, or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	// Priority 1: Command-line flag.
	if flagValue != "" {
		return flagValue
	}

	// Priority 2: Environment variable.
	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}

	// Priority 3: Default value.
	return defaultValue
}

// getBoolConfigValue returns a bool from flag, env var, or default.
// Accepts: "true", "1", "yes" (case-insensitive) as true; anything else is false.
func getBoolConfigValue(flagValue, envKey string, defaultValue bool) bool {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	strValue = strings.ToLower(strValue)
	return strValue == "true" || strValue == "1" || strValue == "yes"
}

// getIntConfigValue returns an int from flag, env var, or default.
func getIntConfigValue(flagValue, envKey string, defaultValue int) int {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	var result int
	if _, err := fmt.Sscanf(strValue, "%d", &result); err != nil {
		return defaultValue
	}
	return result
}

// getFloatConfigValue returns a float64 from flag, env var, or default.
func getFloatConfigValue(flagValue, envKey string, defaultValue float64) float64 {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	var result float64
	if _, err := fmt.Sscanf(strValue, "%g", &result); err != nil {
		return defaultValue
	}
	return result
}

// loadEnvFile loads environment variables from a .env file.
// Format: KEY=value (one per line, # for comments).
func loadEnvFile(path string) error {
	file, err := os.Open(path) //#nosec G304 -- Config file path from user input is expected
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments.
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=value.
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid format at line %d: %s", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Remove quotes if present.
		value = strings.Trim(value, `"'`)

		// Only set if not already set (env vars take precedence over .env file).
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("failed to set env var %s: %w", key, err)
			}
		}
	}

	return scanner.Err()
}
