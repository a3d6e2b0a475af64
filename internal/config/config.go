// Package config loads server configuration from command-line flags, environment variables
// and a .env file.
package config

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config holds the application configuration.
type Config struct {
	App       AppConfig
	Logger    LoggerConfig
	Server    ServerConfig
	Backend   BackendConfig
	Places    PlacesConfig
	Storage   StorageConfig
	Auth      AuthConfig
	Cache     CacheConfig
	Telemetry TelemetryConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         string
	PublicURL    string // Used to build the mobile OAuth redirect when none is configured.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	CORSOrigins  []string
	// Inbound API rate limit per client IP.
	RequestsPerSecond float64
	RequestBurst      int
}

// BackendConfig points at the managed backend (tables, RPC, storage, auth).
type BackendConfig struct {
	URL         string
	AnonKey     string
	PhotoBucket string
	// Outbound limit shared by every session.
	RequestsPerSecond float64
	Timeout           time.Duration
}

// PlacesConfig holds the third-party places provider configuration.
type PlacesConfig struct {
	APIKey        string // Empty disables provider lookups; cached rows are still served.
	BaseURL       string
	CacheLifetime time.Duration
}

// StorageConfig holds on-disk storage locations.
type StorageConfig struct {
	DataPath string
}

// AuthConfig holds session and OAuth configuration.
type AuthConfig struct {
	// SessionKey is the PASETO v4 symmetric key. Loaded or generated in main when empty.
	SessionKey       []byte
	SessionTTL       time.Duration
	InitTimeout      time.Duration
	GoogleClientID   string
	OAuthRedirectURI string
	MobileDeepLink   string
}

// CacheConfig holds query cache tuning.
type CacheConfig struct {
	GCTime     time.Duration
	RetryDelay time.Duration
	// SessionIdleTimeout evicts a session's cache after inactivity.
	SessionIdleTimeout time.Duration
}

// TelemetryConfig holds tracing configuration. Tracing is off without an endpoint.
type TelemetryConfig struct {
	OTLPEndpoint string
	ServiceName  string
}

// durationSetting binds one duration field to its flag, env key and default.
type durationSetting struct {
	target   *time.Duration
	flag     *string
	envKey   string
	fallback string
}

// LoadConfig loads configuration from os.Args with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. Default values (lowest priority).
func LoadConfig() (*Config, error) {
	return Load(os.Args[1:])
}

// Load parses args and resolves the configuration.
func Load(args []string) (*Config, error) {
	fs := flag.NewFlagSet("mymaps", flag.ContinueOnError)

	env := fs.String("env", "", "Environment (development, staging, production)")
	logLevel := fs.String("log-level", "", "Log level (debug, info, warn, error)")
	envFile := fs.String("env-file", ".env", "Path to .env file")

	port := fs.String("port", "", "Server port (default: 8080)")
	publicURL := fs.String("public-url", "", "Public base URL of this server")
	readTimeout := fs.String("read-timeout", "", "HTTP read timeout (default: 15s)")
	writeTimeout := fs.String("write-timeout", "", "HTTP write timeout (default: 0, SSE streams stay open)")
	idleTimeout := fs.String("idle-timeout", "", "HTTP idle timeout (default: 60s)")
	corsOrigins := fs.String("cors-origins", "", "Comma-separated allowed CORS origins")

	backendURL := fs.String("backend-url", "", "Backend base URL")
	anonKey := fs.String("backend-anon-key", "", "Backend anonymous API key")
	backendTimeout := fs.String("backend-timeout", "", "Backend request timeout (default: 10s)")

	placesKey := fs.String("places-api-key", "", "Places provider API key")
	placesBaseURL := fs.String("places-base-url", "", "Places provider base URL")
	placesLifetime := fs.String("places-cache-lifetime", "", "Place details cache lifetime (default: 720h)")

	dataPath := fs.String("data-path", "", "Directory for local databases and keys")

	sessionTTL := fs.String("session-ttl", "", "Session lifetime (default: 720h)")
	authInitTimeout := fs.String("auth-init-timeout", "", "Session resolution timeout (default: 3s)")
	googleClientID := fs.String("google-client-id", "", "Google OAuth client id")
	redirectURI := fs.String("oauth-redirect-uri", "", "OAuth redirect URI for the mobile relay")
	deepLink := fs.String("mobile-deep-link", "", "Mobile app deep link base (e.g. mymaps://)")

	gcTime := fs.String("cache-gc-time", "", "Unused cache entry lifetime (default: 5m)")
	retryDelay := fs.String("cache-retry-delay", "", "Delay before retrying a network failure (default: 1s)")
	sessionIdle := fs.String("session-idle-timeout", "", "Idle time before a session cache is dropped (default: 30m)")

	otlpEndpoint := fs.String("otlp-endpoint", "", "OTLP HTTP endpoint for traces")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	// Load .env file if it exists (silently ignore if not found).
	_ = loadEnvFile(*envFile)

	cfg := &Config{
		App: AppConfig{
			Environment: getConfigValue(*env, "ENV", "development"),
		},
		Logger: LoggerConfig{
			Level: getConfigValue(*logLevel, "LOG_LEVEL", "info"),
		},
		Server: ServerConfig{
			Port:              getConfigValue(*port, "SERVER_PORT", "8080"),
			PublicURL:         getConfigValue(*publicURL, "SERVER_PUBLIC_URL", ""),
			CORSOrigins:       splitList(getConfigValue(*corsOrigins, "CORS_ORIGINS", "*")),
			RequestsPerSecond: getFloatConfigValue("", "API_REQUESTS_PER_SECOND", 20),
			RequestBurst:      getIntConfigValue("", "API_REQUEST_BURST", 40),
		},
		Backend: BackendConfig{
			URL:               strings.TrimRight(getConfigValue(*backendURL, "BACKEND_URL", ""), "/"),
			AnonKey:           getConfigValue(*anonKey, "BACKEND_ANON_KEY", ""),
			PhotoBucket:       getConfigValue("", "BACKEND_PHOTO_BUCKET", "posts"),
			RequestsPerSecond: getFloatConfigValue("", "BACKEND_REQUESTS_PER_SECOND", 50),
		},
		Places: PlacesConfig{
			APIKey:  getConfigValue(*placesKey, "PLACES_API_KEY", ""),
			BaseURL: getConfigValue(*placesBaseURL, "PLACES_BASE_URL", "https://maps.googleapis.com/maps/api/place"),
		},
		Storage: StorageConfig{
			DataPath: getConfigValue(*dataPath, "DATA_PATH", ""),
		},
		Auth: AuthConfig{
			SessionKey:       nil, // Set by auth.LoadOrGenerateKey in main.
			GoogleClientID:   getConfigValue(*googleClientID, "GOOGLE_CLIENT_ID", ""),
			OAuthRedirectURI: getConfigValue(*redirectURI, "OAUTH_REDIRECT_URI", ""),
			MobileDeepLink:   getConfigValue(*deepLink, "MOBILE_DEEP_LINK", "mymaps://"),
		},
		Telemetry: TelemetryConfig{
			OTLPEndpoint: getConfigValue(*otlpEndpoint, "OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			ServiceName:  getConfigValue("", "OTEL_SERVICE_NAME", "mymaps-server"),
		},
	}

	durations := []durationSetting{
		{&cfg.Server.ReadTimeout, readTimeout, "SERVER_READ_TIMEOUT", "15s"},
		{&cfg.Server.WriteTimeout, writeTimeout, "SERVER_WRITE_TIMEOUT", "0s"},
		{&cfg.Server.IdleTimeout, idleTimeout, "SERVER_IDLE_TIMEOUT", "60s"},
		{&cfg.Backend.Timeout, backendTimeout, "BACKEND_TIMEOUT", "10s"},
		{&cfg.Places.CacheLifetime, placesLifetime, "PLACES_CACHE_LIFETIME", "720h"},
		{&cfg.Auth.SessionTTL, sessionTTL, "SESSION_TTL", "720h"},
		{&cfg.Auth.InitTimeout, authInitTimeout, "AUTH_INIT_TIMEOUT", "3s"},
		{&cfg.Cache.GCTime, gcTime, "CACHE_GC_TIME", "5m"},
		{&cfg.Cache.RetryDelay, retryDelay, "CACHE_RETRY_DELAY", "1s"},
		{&cfg.Cache.SessionIdleTimeout, sessionIdle, "SESSION_IDLE_TIMEOUT", "30m"},
	}
	for _, d := range durations {
		raw := getConfigValue(*d.flag, d.envKey, d.fallback)
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", strings.ToLower(d.envKey), raw, err)
		}
		*d.target = parsed
	}

	if err := cfg.expandDataPath(); err != nil {
		return nil, fmt.Errorf("invalid data path: %w", err)
	}

	if cfg.Auth.OAuthRedirectURI == "" && cfg.Server.PublicURL != "" {
		cfg.Auth.OAuthRedirectURI = strings.TrimRight(cfg.Server.PublicURL, "/") + "/auth/mobile-callback"
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required config values are present and valid.
func (c *Config) Validate() error {
	validEnvs := map[string]bool{
		"development": true,
		"staging":     true,
		"production":  true,
	}
	if !validEnvs[c.App.Environment] {
		return fmt.Errorf("invalid environment: %q (must be development, staging, or production)", c.App.Environment)
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

	if c.Backend.URL == "" {
		return errors.New("BACKEND_URL is required")
	}
	if u, err := url.Parse(c.Backend.URL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid backend url: %q", c.Backend.URL)
	}
	if c.Backend.AnonKey == "" {
		return errors.New("BACKEND_ANON_KEY is required")
	}

	if c.Storage.DataPath == "" {
		return errors.New("data path cannot be empty after expansion")
	}

	if c.Auth.InitTimeout <= 0 {
		return errors.New("auth init timeout must be positive")
	}
	if c.Cache.GCTime <= 0 {
		return errors.New("cache gc time must be positive")
	}

	return nil
}

// expandPath expands ~ and makes the path absolute.
// If path is empty, defaultPath is returned unchanged.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		return defaultPath, nil
	}

	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}

	return filepath.Clean(path), nil
}

// expandDataPath defaults the data directory to ~/.mymaps.
func (c *Config) expandDataPath() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	expanded, err := expandPath(c.Storage.DataPath, filepath.Join(homeDir, ".mymaps"))
	if err != nil {
		return err
	}
	c.Storage.DataPath = expanded
	return nil
}

// getConfigValue returns the first non-empty value from flag, env var, or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}
	return defaultValue
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

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// loadEnvFile loads environment variables from a .env file.
// Format: KEY=value (one per line, # for comments). Existing env vars win.
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
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return fmt.Errorf("invalid format at line %d: %s", lineNum, line)
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)

		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("failed to set env var %s: %w", key, err)
			}
		}
	}

	return scanner.Err()
}
