package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Import      ImportConfig      `json:"import" mapstructure:"import"`
	MusicBrainz MusicBrainzConfig `json:"musicbrainz" mapstructure:"musicbrainz"`
	CoverArt    CoverArtConfig    `json:"cover_art" mapstructure:"cover_art"`
	Network     NetworkConfig     `json:"network" mapstructure:"network"`
	Store       StoreConfig       `json:"store" mapstructure:"store"`
	Metrics     MetricsConfig     `json:"metrics" mapstructure:"metrics"`
	Logging     LoggingConfig     `json:"logging" mapstructure:"logging"`
}

// ImportConfig contains settings for ripping and encoding a disc
type ImportConfig struct {
	TrackTimeout      int    `json:"track_timeout" mapstructure:"track_timeout"` // seconds
	ProgressInterval  int    `json:"progress_interval" mapstructure:"progress_interval"`
	BlockSize         int    `json:"block_size" mapstructure:"block_size"`
	OpenRetries       int    `json:"open_retries" mapstructure:"open_retries"`
	EmbedCoverArt     bool   `json:"embed_cover_art" mapstructure:"embed_cover_art"`
	SaveCoverArtFile  bool   `json:"save_cover_art_file" mapstructure:"save_cover_art_file"`
	FileExtension     string `json:"file_extension" mapstructure:"file_extension"`
	LockDir           string `json:"lock_dir" mapstructure:"lock_dir"`
	ParanoiaMode      string `json:"paranoia_mode" mapstructure:"paranoia_mode"` // full, disable
	SectorReadRetries int    `json:"sector_read_retries" mapstructure:"sector_read_retries"`
}

// MusicBrainzConfig contains release lookup settings
type MusicBrainzConfig struct {
	Enabled         bool    `json:"enabled" mapstructure:"enabled"`
	BaseURL         string  `json:"base_url" mapstructure:"base_url"`
	UserAgent       string  `json:"user_agent" mapstructure:"user_agent"`
	RequestsPerSec  float64 `json:"requests_per_sec" mapstructure:"requests_per_sec"`
	SearchFallback  bool    `json:"search_fallback" mapstructure:"search_fallback"`
	UseReleaseCache bool    `json:"use_release_cache" mapstructure:"use_release_cache"`
}

// CoverArtConfig contains cover art lookup settings
type CoverArtConfig struct {
	Enabled    bool   `json:"enabled" mapstructure:"enabled"`
	ArchiveURL string `json:"archive_url" mapstructure:"archive_url"`
	AudioDBURL string `json:"audiodb_url" mapstructure:"audiodb_url"`
	MaxSize    int    `json:"max_size" mapstructure:"max_size"` // pixels, 0 keeps the original
	CacheDir   string `json:"cache_dir" mapstructure:"cache_dir"`
}

// NetworkConfig contains network-related settings
type NetworkConfig struct {
	Timeout    int `json:"timeout" mapstructure:"timeout"`
	MaxRetries int `json:"max_retries" mapstructure:"max_retries"`
}

// StoreConfig contains import history settings
type StoreConfig struct {
	Enabled     bool   `json:"enabled" mapstructure:"enabled"`
	Path        string `json:"path" mapstructure:"path"`
	BusyTimeout int    `json:"busy_timeout" mapstructure:"busy_timeout"` // seconds
}

// MetricsConfig contains metrics export settings
type MetricsConfig struct {
	TextfilePath string `json:"textfile_path" mapstructure:"textfile_path"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `json:"level" mapstructure:"level"`
	Format     string `json:"format" mapstructure:"format"`
	Output     string `json:"output" mapstructure:"output"`
	FilePath   string `json:"file_path" mapstructure:"file_path"`
	MaxSizeMB  int    `json:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `json:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `json:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `json:"compress" mapstructure:"compress"`
}

// Load loads configuration from file or creates default
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath == "" {
		configPath = GetConfigPath()
	}

	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			if err := v.WriteConfigAs(configPath); err != nil {
				return nil, fmt.Errorf("failed to write default config: %w", err)
			}
		} else {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	v.SetEnvPrefix("MFUTIL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Default returns the built-in configuration without touching the disk
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	// Defaults are static; decoding them cannot fail.
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Import.TrackTimeout < 1 {
		return fmt.Errorf("track timeout must be at least 1 second")
	}
	if c.Import.ProgressInterval < 1 {
		return fmt.Errorf("progress interval must be at least 1 sector")
	}
	if c.Import.BlockSize < 16 || c.Import.BlockSize > 65535 {
		return fmt.Errorf("block size must be between 16 and 65535 samples")
	}
	if c.Import.OpenRetries < 0 {
		return fmt.Errorf("open retries cannot be negative")
	}
	if c.Import.FileExtension == "" {
		c.Import.FileExtension = "flac"
	}
	validModes := map[string]bool{"full": true, "disable": true}
	if !validModes[c.Import.ParanoiaMode] {
		return fmt.Errorf("invalid paranoia mode: %s (must be full or disable)", c.Import.ParanoiaMode)
	}

	if c.MusicBrainz.Enabled {
		if c.MusicBrainz.BaseURL == "" {
			return fmt.Errorf("musicbrainz base url cannot be empty")
		}
		if c.MusicBrainz.UserAgent == "" {
			return fmt.Errorf("musicbrainz requires a user agent")
		}
		if c.MusicBrainz.RequestsPerSec <= 0 {
			return fmt.Errorf("musicbrainz request rate must be positive")
		}
	}

	if c.CoverArt.MaxSize < 0 || c.CoverArt.MaxSize > 5000 {
		return fmt.Errorf("cover art max size must be between 0 and 5000 pixels")
	}

	if c.Network.Timeout < 1 {
		return fmt.Errorf("network timeout must be at least 1 second")
	}
	if c.Network.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}

	if c.Store.Enabled && c.Store.Path == "" {
		return fmt.Errorf("store path cannot be empty when the store is enabled")
	}
	if c.Store.BusyTimeout < 0 {
		return fmt.Errorf("store busy timeout cannot be negative")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (must be json or console)", c.Logging.Format)
	}

	validOutputs := map[string]bool{"file": true, "stderr": true, "both": true}
	if !validOutputs[c.Logging.Output] {
		return fmt.Errorf("invalid log output: %s (must be file, stderr, or both)", c.Logging.Output)
	}

	if c.Logging.MaxSizeMB < 1 {
		return fmt.Errorf("log max size must be at least 1 MB")
	}
	if c.Logging.MaxBackups < 0 {
		return fmt.Errorf("log max backups cannot be negative")
	}
	if c.Logging.MaxAgeDays < 0 {
		return fmt.Errorf("log max age cannot be negative")
	}

	return nil
}

// Save saves the configuration to file
func (c *Config) Save(path string) error {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")

	v.Set("import", c.Import)
	v.Set("musicbrainz", c.MusicBrainz)
	v.Set("cover_art", c.CoverArt)
	v.Set("network", c.Network)
	v.Set("store", c.Store)
	v.Set("metrics", c.Metrics)
	v.Set("logging", c.Logging)

	return v.WriteConfigAs(path)
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	dataDir := GetDataDir()

	v.SetDefault("import.track_timeout", 300)
	v.SetDefault("import.progress_interval", 100)
	v.SetDefault("import.block_size", 4096)
	v.SetDefault("import.open_retries", 2)
	v.SetDefault("import.embed_cover_art", false)
	v.SetDefault("import.save_cover_art_file", true)
	v.SetDefault("import.file_extension", "flac")
	v.SetDefault("import.lock_dir", filepath.Join(dataDir, "locks"))
	v.SetDefault("import.paranoia_mode", "full")
	v.SetDefault("import.sector_read_retries", 20)

	v.SetDefault("musicbrainz.enabled", true)
	v.SetDefault("musicbrainz.base_url", "https://musicbrainz.org/ws/2")
	v.SetDefault("musicbrainz.user_agent", "mfutil/0.1.1 ( https://github.com/anoraktrend/music-folder-utils )")
	v.SetDefault("musicbrainz.requests_per_sec", 1.0)
	v.SetDefault("musicbrainz.search_fallback", true)
	v.SetDefault("musicbrainz.use_release_cache", true)

	v.SetDefault("cover_art.enabled", true)
	v.SetDefault("cover_art.archive_url", "https://coverartarchive.org")
	v.SetDefault("cover_art.audiodb_url", "https://www.theaudiodb.com/api/v1/json/2")
	v.SetDefault("cover_art.max_size", 0)
	v.SetDefault("cover_art.cache_dir", filepath.Join(dataDir, "cache", "artwork"))

	v.SetDefault("network.timeout", 30)
	v.SetDefault("network.max_retries", 2)

	v.SetDefault("store.enabled", true)
	v.SetDefault("store.path", filepath.Join(dataDir, "data", "history.db"))
	v.SetDefault("store.busy_timeout", 30)

	v.SetDefault("metrics.textfile_path", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "file")
	v.SetDefault("logging.file_path", filepath.Join(dataDir, "logs", "mfutil.log"))
	v.SetDefault("logging.max_size_mb", 20)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age_days", 30)
	v.SetDefault("logging.compress", true)
}

// GetDataDir returns the application data directory
func GetDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "mfutil")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".mfutil"
	}
	return filepath.Join(home, ".local", "share", "mfutil")
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(GetDataDir(), "settings.json")
	}
	return filepath.Join(dir, "mfutil", "settings.json")
}
