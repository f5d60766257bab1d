package adapter

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Realtime    RealtimeConfig    `mapstructure:"realtime"`
	Collections CollectionsConfig `mapstructure:"collections"`
	UI          UIConfig          `mapstructure:"ui"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// ServerConfig holds backend configuration
type ServerConfig struct {
	URL               string  `mapstructure:"url"`
	WSURL             string  `mapstructure:"ws_url"` // derived from URL when empty
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
}

// RealtimeConfig holds progress channel reconnect policy
type RealtimeConfig struct {
	ReconnectInterval time.Duration `mapstructure:"reconnect_interval"`
	MaxAttempts       int           `mapstructure:"max_attempts"`
}

// CollectionsConfig names the collections with special roles
type CollectionsConfig struct {
	Liked   string `mapstructure:"liked"`
	Ignored string `mapstructure:"ignored"`
	Default string `mapstructure:"default"`
}

// UIConfig holds UI configuration
type UIConfig struct {
	PageSize     int `mapstructure:"page_size"`
	ErrorPreview int `mapstructure:"error_preview"` // errors shown in the progress modal
}

// CacheConfig holds local cache configuration
type CacheConfig struct {
	Dir string `mapstructure:"dir"` // empty keeps the cache in memory
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	File  string `mapstructure:"file"`
	Level string `mapstructure:"level"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			URL:               "http://localhost:8000",
			RequestsPerSecond: 20,
		},
		Realtime: RealtimeConfig{
			ReconnectInterval: 3 * time.Second,
			MaxAttempts:       5,
		},
		Collections: CollectionsConfig{
			Liked:   "Liked Companies List",
			Ignored: "Companies to Ignore List",
			Default: "My List",
		},
		UI: UIConfig{
			PageSize:     25,
			ErrorPreview: 5,
		},
		Cache: CacheConfig{
			Dir: defaultCachePath(),
		},
		Logging: LoggingConfig{
			File:  defaultLogPath(),
			Level: "INFO",
		},
	}
}

// defaultLogPath returns the default log file path for the current OS
func defaultLogPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "rolodex", "rolodex.log")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "rolodex", "rolodex.log")
	}
}

// defaultConfigPath returns the default config directory for the current OS
func defaultConfigPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "rolodex")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "rolodex")
	}
}

// defaultCachePath returns the default cache directory path for the current OS
func defaultCachePath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("LOCALAPPDATA"), "rolodex", "cache")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "rolodex", "cache")
	}
}

// LoadConfig loads configuration from file and environment
func LoadConfig() (*Config, error) {
	return loadConfig(viper.New(), defaultConfigPath(), ".")
}

func loadConfig(v *viper.Viper, paths ...string) (*Config, error) {
	cfg := DefaultConfig()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	// Defaults must be registered for env overrides of nested keys to reach Unmarshal
	setAll(v, cfg)
	v.SetEnvPrefix("ROLODEX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	if cfg.Server.WSURL == "" {
		cfg.Server.WSURL = wsURL(cfg.Server.URL)
	}
	cfg.Logging.File = expandHome(cfg.Logging.File)
	cfg.Cache.Dir = expandHome(cfg.Cache.Dir)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setAll registers every key with snake_case names
func setAll(v *viper.Viper, cfg *Config) {
	v.SetDefault("server.url", cfg.Server.URL)
	v.SetDefault("server.ws_url", cfg.Server.WSURL)
	v.SetDefault("server.requests_per_second", cfg.Server.RequestsPerSecond)

	v.SetDefault("realtime.reconnect_interval", cfg.Realtime.ReconnectInterval)
	v.SetDefault("realtime.max_attempts", cfg.Realtime.MaxAttempts)

	v.SetDefault("collections.liked", cfg.Collections.Liked)
	v.SetDefault("collections.ignored", cfg.Collections.Ignored)
	v.SetDefault("collections.default", cfg.Collections.Default)

	v.SetDefault("ui.page_size", cfg.UI.PageSize)
	v.SetDefault("ui.error_preview", cfg.UI.ErrorPreview)

	v.SetDefault("cache.dir", cfg.Cache.Dir)

	v.SetDefault("logging.file", cfg.Logging.File)
	v.SetDefault("logging.level", cfg.Logging.Level)
}

// Validate rejects settings the engine cannot run with
func (c *Config) Validate() error {
	switch {
	case c.Server.URL == "":
		return errors.New("server.url is required")
	case c.Realtime.ReconnectInterval <= 0:
		return fmt.Errorf("realtime.reconnect_interval must be positive, got %s", c.Realtime.ReconnectInterval)
	case c.Realtime.MaxAttempts <= 0:
		return fmt.Errorf("realtime.max_attempts must be positive, got %d", c.Realtime.MaxAttempts)
	case c.UI.PageSize <= 0:
		return fmt.Errorf("ui.page_size must be positive, got %d", c.UI.PageSize)
	}
	return nil
}

// SaveConfig saves the current configuration to file
func SaveConfig(cfg *Config) error {
	return saveConfig(cfg, defaultConfigPath())
}

func saveConfig(cfg *Config, configPath string) error {
	if err := os.MkdirAll(configPath, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.Set("server.url", cfg.Server.URL)
	v.Set("server.ws_url", cfg.Server.WSURL)
	v.Set("server.requests_per_second", cfg.Server.RequestsPerSecond)
	v.Set("realtime.reconnect_interval", cfg.Realtime.ReconnectInterval.String())
	v.Set("realtime.max_attempts", cfg.Realtime.MaxAttempts)
	v.Set("collections.liked", cfg.Collections.Liked)
	v.Set("collections.ignored", cfg.Collections.Ignored)
	v.Set("collections.default", cfg.Collections.Default)
	v.Set("ui.page_size", cfg.UI.PageSize)
	v.Set("ui.error_preview", cfg.UI.ErrorPreview)
	v.Set("cache.dir", cfg.Cache.Dir)
	v.Set("logging.file", cfg.Logging.File)
	v.Set("logging.level", cfg.Logging.Level)

	configFile := filepath.Join(configPath, "config.yaml")
	if err := v.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// wsURL derives the websocket base from the http base
func wsURL(httpURL string) string {
	switch {
	case strings.HasPrefix(httpURL, "https://"):
		return "wss://" + strings.TrimPrefix(httpURL, "https://")
	case strings.HasPrefix(httpURL, "http://"):
		return "ws://" + strings.TrimPrefix(httpURL, "http://")
	default:
		return httpURL
	}
}

// expandHome resolves a leading ~ against the user's home directory
func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}

// ClearCache removes all cached data
func ClearCache(dir string) error {
	if dir == "" {
		return nil
	}
	if err := os.RemoveAll(dir); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	return nil
}
