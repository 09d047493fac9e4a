package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigertag/tigertag-server/internal/errors"
)

func validConfig() *Config {
	return &Config{
		App:    AppConfig{Environment: "development"},
		Logger: LoggerConfig{Level: "info"},
		Store:  StoreConfig{DataPath: "/data", DBPath: "/data/tigertag.db"},
		Pipeline: PipelineConfig{
			ConfidenceThreshold: DefaultConfidenceThreshold,
			Workers:             DefaultWorkers,
			ScanInterval:        time.Hour,
		},
		Server: ServerConfig{Enabled: true, Port: "8080"},
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
		{"DEVELOPMENT", false}, // case sensitive
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

func TestValidate_Pipeline(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"threshold above 100", func(c *Config) { c.Pipeline.ConfidenceThreshold = 101 }, "CONFIDENCE_THRESHOLD"},
		{"negative threshold", func(c *Config) { c.Pipeline.ConfidenceThreshold = -1 }, "CONFIDENCE_THRESHOLD"},
		{"zero workers", func(c *Config) { c.Pipeline.Workers = 0 }, "WORKERS"},
		{"bad log level", func(c *Config) { c.Logger.Level = "verbose" }, "LOG_LEVEL"},
		{"non numeric port", func(c *Config) { c.Server.Port = "http" }, "SERVER_PORT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrValidation))
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestValidate_PluginWithoutName(t *testing.T) {
	cfg := validConfig()
	cfg.Plugins = []PluginConfig{{Kind: KindEngine, ID: "IMAGGA"}}

	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConfiguration))
}

func TestExpandStorePaths(t *testing.T) {
	cfg := validConfig()
	cfg.Store = StoreConfig{DataPath: "/srv/tigertag"}

	require.NoError(t, cfg.expandStorePaths())
	assert.Equal(t, "/srv/tigertag", cfg.Store.DataPath)
	assert.Equal(t, filepath.Join("/srv/tigertag", "tigertag.db"), cfg.Store.DBPath)

	cfg.Store = StoreConfig{DataPath: "/srv/tigertag", DBPath: "/var/lib/catalog.db"}
	require.NoError(t, cfg.expandStorePaths())
	assert.Equal(t, "/var/lib/catalog.db", cfg.Store.DBPath)
}

func TestExpandPath_Tilde(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := expandPath("~/photos", "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "photos"), got)
}

func TestGetConfigValue_Precedence(t *testing.T) {
	t.Setenv("TIGERTAG_TEST_KEY", "from-env")

	assert.Equal(t, "from-flag", getConfigValue("from-flag", "TIGERTAG_TEST_KEY", "default"))
	assert.Equal(t, "from-env", getConfigValue("", "TIGERTAG_TEST_KEY", "default"))
	assert.Equal(t, "default", getConfigValue("", "TIGERTAG_TEST_UNSET", "default"))
}

func TestGetIntConfigValue(t *testing.T) {
	t.Setenv("TIGERTAG_TEST_WORKERS", "4")

	n, err := getIntConfigValue("", "TIGERTAG_TEST_WORKERS", 1)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	t.Setenv("TIGERTAG_TEST_WORKERS", "four")
	_, err = getIntConfigValue("", "TIGERTAG_TEST_WORKERS", 1)
	assert.Error(t, err)
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"http://a", "http://b"}, splitList(" http://a, ,http://b "))
	assert.Nil(t, splitList(""))
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "# comment\n\nTIGERTAG_TEST_A=alpha\nexport TIGERTAG_TEST_B=\"beta\"\nTIGERTAG_TEST_C=from-file\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("TIGERTAG_TEST_C", "from-env")
	// Registered for cleanup; loadEnvFile sets them.
	t.Setenv("TIGERTAG_TEST_A", "")
	os.Unsetenv("TIGERTAG_TEST_A")
	t.Setenv("TIGERTAG_TEST_B", "")
	os.Unsetenv("TIGERTAG_TEST_B")

	require.NoError(t, loadEnvFile(path))

	assert.Equal(t, "alpha", os.Getenv("TIGERTAG_TEST_A"))
	assert.Equal(t, "beta", os.Getenv("TIGERTAG_TEST_B"))
	assert.Equal(t, "from-env", os.Getenv("TIGERTAG_TEST_C"))
}

func TestLoadEnvFile_InvalidLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("NOT_A_PAIR\n"), 0o600))

	assert.Error(t, loadEnvFile(path))
}
