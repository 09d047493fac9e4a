// Package config provides application configuration management with support for environment variables, command-line flags, and .env files.
package config

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/tigertag/tigertag-server/internal/validation"
)

// Config holds the application configuration.
type Config struct {
	App      AppConfig
	Logger   LoggerConfig
	Store    StoreConfig
	Pipeline PipelineConfig
	Server   ServerConfig
	Plugins  []PluginConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string `env:"ENV" validate:"oneof=development staging production"`
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string `env:"LOG_LEVEL" validate:"oneof=debug info warn error DEBUG INFO WARN ERROR"`
}

// StoreConfig holds catalog storage configuration.
type StoreConfig struct {
	DataPath string `env:"DATA_PATH" validate:"required"`
	DBPath   string `env:"DB_PATH" validate:"required"` // Defaults to {DataPath}/tigertag.db
}

// PipelineConfig holds orchestrator configuration.
type PipelineConfig struct {
	ConfidenceThreshold int           `env:"CONFIDENCE_THRESHOLD" validate:"gte=0,lte=100"`
	Workers             int           `env:"WORKERS" validate:"gte=1,lte=64"`
	ScanInterval        time.Duration `env:"SCAN_INTERVAL" validate:"gte=0"` // 0 disables periodic runs
	WatchEnabled        bool          `env:"WATCH_ENABLED"`
	Once                bool          `env:"RUN_ONCE"` // Run one pass and exit
}

// ServerConfig holds admin API configuration.
type ServerConfig struct {
	Enabled      bool          `env:"SERVER_ENABLED"`
	Port         string        `env:"SERVER_PORT" validate:"required,numeric"`
	ReadTimeout  time.Duration `env:"SERVER_READ_TIMEOUT"`
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT"`
	IdleTimeout  time.Duration `env:"SERVER_IDLE_TIMEOUT"`
	CORSOrigins  []string      `env:"SERVER_CORS_ORIGINS"` // Empty disables CORS headers
}

// Defaults.
const (
	DefaultConfidenceThreshold = 30
	DefaultWorkers             = 1
	dbFileName                 = "tigertag.db"
)

// LoadConfig loads configuration from multiple sources with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. Default values (lowest priority).
func LoadConfig() (*Config, error) {
	env := flag.String("env", "", "Environment (development, staging, production)")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	dataPath := flag.String("data-path", "", "Directory holding the catalog database")
	dbPath := flag.String("db-path", "", "Catalog database file (default: {data-path}/tigertag.db)")

	threshold := flag.String("confidence-threshold", "", "Minimum tag confidence to keep (default: 30)")
	workers := flag.String("workers", "", "Resources processed in parallel (default: 1)")
	scanInterval := flag.String("scan-interval", "", "Time between pipeline runs, 0 to disable (default: 1h)")
	watchEnabled := flag.String("watch", "", "Watch directory sources for changes (default: false)")
	once := flag.Bool("once", false, "Run a single pipeline pass and exit")

	serverEnabled := flag.String("server", "", "Serve the admin API (default: true)")
	serverPort := flag.String("port", "", "Admin API port (default: 8080)")

	envFile := flag.String("env-file", ".env", "Path to .env file")

	flag.Parse()

	// Load .env file if it exists (silently ignore if not found).
	_ = loadEnvFile(*envFile)

	onceValue := ""
	if *once {
		onceValue = "true"
	}

	cfg := &Config{
		App: AppConfig{
			Environment: getConfigValue(*env, "ENV", "development"),
		},
		Logger: LoggerConfig{
			Level: getConfigValue(*logLevel, "LOG_LEVEL", "info"),
		},
		Store: StoreConfig{
			DataPath: getConfigValue(*dataPath, "DATA_PATH", ""),
			DBPath:   getConfigValue(*dbPath, "DB_PATH", ""),
		},
		Pipeline: PipelineConfig{
			WatchEnabled: getBoolConfigValue(*watchEnabled, "WATCH_ENABLED", false),
			Once:         getBoolConfigValue(onceValue, "RUN_ONCE", false),
		},
		Server: ServerConfig{
			Enabled:     getBoolConfigValue(*serverEnabled, "SERVER_ENABLED", true),
			Port:        getConfigValue(*serverPort, "SERVER_PORT", "8080"),
			CORSOrigins: splitList(getConfigValue("", "SERVER_CORS_ORIGINS", "")),
		},
		Plugins: ParsePlugins(os.Environ()),
	}

	var err error
	if cfg.Pipeline.ConfidenceThreshold, err = getIntConfigValue(*threshold, "CONFIDENCE_THRESHOLD", DefaultConfidenceThreshold); err != nil {
		return nil, err
	}
	if cfg.Pipeline.Workers, err = getIntConfigValue(*workers, "WORKERS", DefaultWorkers); err != nil {
		return nil, err
	}
	if cfg.Pipeline.ScanInterval, err = getDurationConfigValue(*scanInterval, "SCAN_INTERVAL", time.Hour); err != nil {
		return nil, err
	}
	if cfg.Server.ReadTimeout, err = getDurationConfigValue("", "SERVER_READ_TIMEOUT", 15*time.Second); err != nil {
		return nil, err
	}
	if cfg.Server.WriteTimeout, err = getDurationConfigValue("", "SERVER_WRITE_TIMEOUT", 15*time.Second); err != nil {
		return nil, err
	}
	if cfg.Server.IdleTimeout, err = getDurationConfigValue("", "SERVER_IDLE_TIMEOUT", 60*time.Second); err != nil {
		return nil, err
	}

	if err := cfg.expandStorePaths(); err != nil {
		return nil, fmt.Errorf("invalid data path: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required config values are present and valid.
func (c *Config) Validate() error {
	v := validation.New()
	for _, section := range []any{c.App, c.Logger, c.Store, c.Pipeline, c.Server} {
		if err := v.Validate(section); err != nil {
			return err
		}
	}
	for _, p := range c.Plugins {
		if err := p.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// PluginsOf returns the configured plugins of one kind, in ID order.
func (c *Config) PluginsOf(kind PluginKind) []PluginConfig {
	var out []PluginConfig
	for _, p := range c.Plugins {
		if p.Kind == kind {
			out = append(out, p)
		}
	}
	return out
}

// expandPath expands ~ and makes the path absolute.
// If path is empty and defaultPath is provided, uses the default.
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

// expandStorePaths resolves DataPath (default ~/TigerTag) and derives DBPath
// from it unless DB_PATH was given.
func (c *Config) expandStorePaths() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	c.Store.DataPath, err = expandPath(c.Store.DataPath, filepath.Join(homeDir, "TigerTag"))
	if err != nil {
		return err
	}
	c.Store.DBPath, err = expandPath(c.Store.DBPath, filepath.Join(c.Store.DataPath, dbFileName))
	return err
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

// getBoolConfigValue returns a bool from flag, env var, or default.
// Accepts: "true", "1", "yes" (case-insensitive) as true; anything else is false.
func getBoolConfigValue(flagValue, envKey string, defaultValue bool) bool {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	return parseBool(strValue)
}

// getIntConfigValue returns an int from flag, env var, or default.
func getIntConfigValue(flagValue, envKey string, defaultValue int) (int, error) {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(strValue)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", envKey, strValue, err)
	}
	return n, nil
}

// getDurationConfigValue returns a duration from flag, env var, or default.
func getDurationConfigValue(flagValue, envKey string, defaultValue time.Duration) (time.Duration, error) {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(strValue)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", envKey, strValue, err)
	}
	return d, nil
}

// splitList splits a comma-separated value, dropping empty entries.
func splitList(s string) []string {
	var out []string
	for part := range strings.SplitSeq(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "y", "on", "t":
		return true
	}
	return false
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

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return fmt.Errorf("invalid format at line %d: %s", lineNum, line)
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)

		// Real environment variables take precedence over the file.
		if _, set := os.LookupEnv(key); !set {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("failed to set env var %s: %w", key, err)
			}
		}
	}

	return scanner.Err()
}
