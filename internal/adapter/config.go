package adapter

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

const (
	appName   = "rdioexport"
	envPrefix = "RDIOEXPORT"

	defaultAPIURL   = "https://services.rdio.com/api/1/"
	defaultTokenURL = "https://services.rdio.com/oauth2/token"
)

// Config holds all application configuration
type Config struct {
	Rdio    RdioConfig    `mapstructure:"rdio"`
	Sync    SyncConfig    `mapstructure:"sync"`
	Storage StorageConfig `mapstructure:"storage"`
	Export  ExportConfig  `mapstructure:"export"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// RdioConfig holds web service credentials
type RdioConfig struct {
	APIURL       string `mapstructure:"api_url"`
	TokenURL     string `mapstructure:"token_url"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	AccessToken  string `mapstructure:"access_token"` // Used as-is when set, skipping the token exchange
}

// SyncConfig tunes object fetching
type SyncConfig struct {
	Concurrency int `mapstructure:"concurrency"` // Fetch requests in flight
	ChunkSize   int `mapstructure:"chunk_size"`  // Keys per fetch request
	PageSize    int `mapstructure:"page_size"`   // Items per page for listing methods
}

// StorageConfig locates the object database
type StorageConfig struct {
	Path string `mapstructure:"path"` // Empty keeps objects in memory only
}

// ExportConfig holds export file configuration
type ExportConfig struct {
	Dir string `mapstructure:"dir"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	File  string `mapstructure:"file"`
	Level string `mapstructure:"level"`
}

// MetricsConfig holds metrics output configuration
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile"` // node_exporter textfile path; empty disables metrics
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Rdio: RdioConfig{
			APIURL:   defaultAPIURL,
			TokenURL: defaultTokenURL,
		},
		Sync: SyncConfig{
			Concurrency: 4,
			ChunkSize:   50,
			PageSize:    100,
		},
		Storage: StorageConfig{
			Path: filepath.Join(defaultDataPath(), "objects.db"),
		},
		Export: ExportConfig{
			Dir: ".",
		},
		Logging: LoggingConfig{
			File:  filepath.Join(defaultDataPath(), appName+".log"),
			Level: "INFO",
		},
	}
}

// defaultDataPath returns the default data directory for the current OS
func defaultDataPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), appName)
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", appName)
	}
}

// DefaultConfigPath returns the default config directory for the current OS
func DefaultConfigPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), appName)
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", appName)
	}
}

// newViper returns a viper instance with the defaults of cfg registered, so
// every key can be overridden from the environment (RDIOEXPORT_SYNC_CONCURRENCY, ...)
func newViper(cfg *Config) *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setValues(v.SetDefault, cfg)
	return v
}

func setValues(set func(key string, value any), cfg *Config) {
	set("rdio.api_url", cfg.Rdio.APIURL)
	set("rdio.token_url", cfg.Rdio.TokenURL)
	set("rdio.client_id", cfg.Rdio.ClientID)
	set("rdio.client_secret", cfg.Rdio.ClientSecret)
	set("rdio.access_token", cfg.Rdio.AccessToken)

	set("sync.concurrency", cfg.Sync.Concurrency)
	set("sync.chunk_size", cfg.Sync.ChunkSize)
	set("sync.page_size", cfg.Sync.PageSize)

	set("storage.path", cfg.Storage.Path)
	set("export.dir", cfg.Export.Dir)

	set("logging.file", cfg.Logging.File)
	set("logging.level", cfg.Logging.Level)

	set("metrics.textfile", cfg.Metrics.Textfile)
}

// LoadConfig loads configuration from file and environment. An empty path
// searches the default config directory and the working directory, and a
// missing file is not an error; an explicit path must exist.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	v := newViper(cfg)

	if path != "" {
		v.SetConfigFile(ExpandHome(path))
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(DefaultConfigPath())
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	cfg.Storage.Path = ExpandHome(cfg.Storage.Path)
	cfg.Export.Dir = ExpandHome(cfg.Export.Dir)
	cfg.Logging.File = ExpandHome(cfg.Logging.File)
	cfg.Metrics.Textfile = ExpandHome(cfg.Metrics.Textfile)

	return cfg, nil
}

// SaveConfig writes cfg as YAML to path, or to config.yaml in the default
// config directory when path is empty
func SaveConfig(cfg *Config, path string) error {
	if path == "" {
		path = filepath.Join(DefaultConfigPath(), "config.yaml")
	}
	path = ExpandHome(path)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	setValues(v.Set, cfg)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate reports the first invalid setting
func (c *Config) Validate() error {
	if c.Sync.Concurrency < 1 {
		return fmt.Errorf("sync.concurrency must be at least 1, got %d", c.Sync.Concurrency)
	}
	if c.Sync.ChunkSize < 1 {
		return fmt.Errorf("sync.chunk_size must be at least 1, got %d", c.Sync.ChunkSize)
	}
	if c.Sync.PageSize < 1 {
		return fmt.Errorf("sync.page_size must be at least 1, got %d", c.Sync.PageSize)
	}
	for key, raw := range map[string]string{"rdio.api_url": c.Rdio.APIURL, "rdio.token_url": c.Rdio.TokenURL} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%s is not a valid URL: %q", key, raw)
		}
	}
	return nil
}

// IsConfigured returns true if the web service credentials are set
func (c *Config) IsConfigured() bool {
	return c.Rdio.AccessToken != "" || (c.Rdio.ClientID != "" && c.Rdio.ClientSecret != "")
}

// ExpandHome replaces a leading ~ with the user's home directory
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
