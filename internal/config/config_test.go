package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		App:     AppConfig{Environment: "development"},
		Logger:  LoggerConfig{Level: "info"},
		Backend: BackendConfig{URL: "https://db.example.com", AnonKey: "anon"},
		Storage: StorageConfig{DataPath: "/var/lib/mymaps"},
		Auth:    AuthConfig{InitTimeout: 3 * time.Second},
		Cache:   CacheConfig{GCTime: 5 * time.Minute},
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidate_AllEnvironments(t *testing.T) {
	tests := []struct {
		env   string
		valid bool
	}{
		{"development", true},
		{"staging", true},
		{"production", true},
		{"test", false},
		{"", false},
		{"DEVELOPMENT", false},
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			cfg := validConfig()
			cfg.App.Environment = tt.env

			err := cfg.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestValidate_Backend(t *testing.T) {
	cfg := validConfig()
	cfg.Backend.URL = ""
	assert.ErrorContains(t, cfg.Validate(), "BACKEND_URL")

	cfg = validConfig()
	cfg.Backend.URL = "not a url"
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Backend.AnonKey = ""
	assert.ErrorContains(t, cfg.Validate(), "BACKEND_ANON_KEY")
}

func TestLoad_DefaultsAndFlags(t *testing.T) {
	t.Setenv("BACKEND_URL", "https://db.example.com/")
	t.Setenv("BACKEND_ANON_KEY", "anon")
	dir := t.TempDir()

	cfg, err := Load([]string{
		"-env-file", filepath.Join(dir, "missing.env"),
		"-data-path", dir,
		"-auth-init-timeout", "5s",
		"-public-url", "https://maps.example.com/",
	})
	require.NoError(t, err)

	assert.Equal(t, "https://db.example.com", cfg.Backend.URL)
	assert.Equal(t, "posts", cfg.Backend.PhotoBucket)
	assert.Equal(t, 5*time.Second, cfg.Auth.InitTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Cache.GCTime)
	assert.Equal(t, time.Second, cfg.Cache.RetryDelay)
	assert.Equal(t, 720*time.Hour, cfg.Places.CacheLifetime)
	assert.Equal(t, dir, cfg.Storage.DataPath)
	assert.Equal(t, "https://maps.example.com/auth/mobile-callback", cfg.Auth.OAuthRedirectURI)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
}

func TestLoad_InvalidDuration(t *testing.T) {
	t.Setenv("BACKEND_URL", "https://db.example.com")
	t.Setenv("BACKEND_ANON_KEY", "anon")

	_, err := Load([]string{"-env-file", "", "-cache-gc-time", "soon"})
	assert.ErrorContains(t, err, "cache_gc_time")
}

func TestExpandPath_TildeExpansion(t *testing.T) {
	homeDir, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := expandPath("~/mymaps/data", "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(homeDir, "mymaps", "data"), got)
}

func TestExpandPath_EmptyUsesDefault(t *testing.T) {
	got, err := expandPath("", "/default")
	require.NoError(t, err)
	assert.Equal(t, "/default", got)
}

func TestGetConfigValue_Precedence(t *testing.T) {
	t.Setenv("TEST_CONFIG_KEY", "from-env")

	assert.Equal(t, "from-flag", getConfigValue("from-flag", "TEST_CONFIG_KEY", "default"))
	assert.Equal(t, "from-env", getConfigValue("", "TEST_CONFIG_KEY", "default"))
	assert.Equal(t, "default", getConfigValue("", "TEST_CONFIG_MISSING", "default"))
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, splitList(" https://a.example, ,https://b.example "))
	assert.Nil(t, splitList(""))
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "# comment\n\nMYMAPS_TEST_A=\"quoted\"\n  MYMAPS_TEST_B = spaced  \nMYMAPS_TEST_C=file\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("MYMAPS_TEST_C", "env")
	t.Setenv("MYMAPS_TEST_A", "")
	t.Setenv("MYMAPS_TEST_B", "")

	require.NoError(t, loadEnvFile(path))
	assert.Equal(t, "quoted", os.Getenv("MYMAPS_TEST_A"))
	assert.Equal(t, "spaced", os.Getenv("MYMAPS_TEST_B"))
	assert.Equal(t, "env", os.Getenv("MYMAPS_TEST_C"))
}

func TestLoadEnvFile_InvalidFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("NOT_A_PAIR\n"), 0o600))

	assert.ErrorContains(t, loadEnvFile(path), "line 1")
}

func TestLoadEnvFile_NonExistentFile(t *testing.T) {
	assert.Error(t, loadEnvFile("/nonexistent/.env"))
}
