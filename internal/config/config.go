package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/astraldesk/skywall/internal/domain"
)

// Config represents the entire application configuration
type Config struct {
	Logging  LoggingConfig  `mapstructure:"logging"`
	Database DatabaseConfig `mapstructure:"database"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	Sync     SyncConfig     `mapstructure:"sync"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Rotation RotationConfig `mapstructure:"rotation"`
	Apply    ApplyConfig    `mapstructure:"apply"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Screens  []ScreenConfig `mapstructure:"screens"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// ArchiveConfig contains remote archive settings
type ArchiveConfig struct {
	BaseURL           string  `mapstructure:"base_url"`
	UserAgent         string  `mapstructure:"user_agent"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	RequestTimeout    string  `mapstructure:"request_timeout"`
}

// SyncConfig contains catalog sync and download settings
type SyncConfig struct {
	Interval        string `mapstructure:"interval"`
	DownloadTimeout string `mapstructure:"download_timeout"`
	MaxRetries      int    `mapstructure:"max_retries"`
	RetryInterval   string `mapstructure:"retry_interval"`
	MaxImageMB      int    `mapstructure:"max_image_mb"`
	PrefetchCount   int    `mapstructure:"prefetch_count"`
}

// CacheConfig contains image cache settings
type CacheConfig struct {
	RootDir         string `mapstructure:"root_dir"`
	MaxSizeMB       int    `mapstructure:"max_size_mb"`
	MinFreeMB       int    `mapstructure:"min_free_mb"`
	JanitorInterval string `mapstructure:"janitor_interval"`
	PartMaxAge      string `mapstructure:"part_max_age"`
}

// RotationConfig contains rotation scheduling settings
type RotationConfig struct {
	TickTimeout string `mapstructure:"tick_timeout"`
}

// ApplyConfig contains the wallpaper apply command. An empty command runs
// the daemon headless: selections are logged but nothing is assigned.
type ApplyConfig struct {
	Command string `mapstructure:"command"`
}

// HTTPConfig contains HTTP server configuration
type HTTPConfig struct {
	BindAddr      string `mapstructure:"bind_addr"`
	AdminUsername string `mapstructure:"admin_username"`
	AdminPassword string `mapstructure:"admin_password"`
	ReadTimeout   string `mapstructure:"read_timeout"`
	WriteTimeout  string `mapstructure:"write_timeout"`
	IdleTimeout   string `mapstructure:"idle_timeout"`
}

// ScreenConfig is one monitor entry in the screens list. Slideshow and
// enabled default to true when omitted.
type ScreenConfig struct {
	ID        string `mapstructure:"id"`
	Name      string `mapstructure:"name"`
	Theme     string `mapstructure:"theme"`
	Delay     string `mapstructure:"delay"`
	Slideshow *bool  `mapstructure:"slideshow"`
	Enabled   *bool  `mapstructure:"enabled"`
	Fit       string `mapstructure:"fit"`
}

// Load loads configuration from the specified file path
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	// Set defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("database.path", "/var/lib/skywall/skywall.db")
	viper.SetDefault("archive.user_agent", "skywall/1.0")
	viper.SetDefault("archive.requests_per_second", 1.0)
	viper.SetDefault("archive.request_timeout", "10s")
	viper.SetDefault("sync.interval", "6h")
	viper.SetDefault("sync.download_timeout", "2m")
	viper.SetDefault("sync.max_retries", 3)
	viper.SetDefault("sync.retry_interval", "500ms")
	viper.SetDefault("sync.max_image_mb", 64)
	viper.SetDefault("sync.prefetch_count", 3)
	viper.SetDefault("cache.root_dir", "/var/lib/skywall/cache")
	viper.SetDefault("cache.max_size_mb", 2048)
	viper.SetDefault("cache.min_free_mb", 0)
	viper.SetDefault("cache.janitor_interval", "30m")
	viper.SetDefault("cache.part_max_age", "1h")
	viper.SetDefault("rotation.tick_timeout", "2m")
	viper.SetDefault("apply.command", "")
	viper.SetDefault("http.bind_addr", "127.0.0.1:8090")
	viper.SetDefault("http.admin_username", "")
	viper.SetDefault("http.admin_password", "")
	viper.SetDefault("http.read_timeout", "30s")
	viper.SetDefault("http.write_timeout", "30s")
	viper.SetDefault("http.idle_timeout", "60s")

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return unmarshal()
}

// Reload re-reads the watched config file. Used by the live-reload path in
// the daemon after viper reports a file change.
func Reload() (*Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to re-read config file: %w", err)
	}
	return unmarshal()
}

func unmarshal() (*Config, error) {
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	// Validate archive config
	if c.Archive.BaseURL == "" {
		return fmt.Errorf("archive.base_url is required")
	}
	if c.Archive.RequestsPerSecond <= 0 {
		return fmt.Errorf("archive.requests_per_second must be positive")
	}

	// Validate database and cache paths
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Cache.RootDir == "" {
		return fmt.Errorf("cache.root_dir is required")
	}
	if c.Cache.MaxSizeMB < 0 {
		return fmt.Errorf("cache.max_size_mb must not be negative")
	}
	if c.Cache.MinFreeMB < 0 {
		return fmt.Errorf("cache.min_free_mb must not be negative")
	}

	// Validate sync settings
	if _, err := time.ParseDuration(c.Sync.Interval); err != nil {
		return fmt.Errorf("invalid sync.interval: %w", err)
	}
	if _, err := time.ParseDuration(c.Sync.DownloadTimeout); err != nil {
		return fmt.Errorf("invalid sync.download_timeout: %w", err)
	}
	if _, err := time.ParseDuration(c.Sync.RetryInterval); err != nil {
		return fmt.Errorf("invalid sync.retry_interval: %w", err)
	}
	if c.Sync.MaxRetries < 0 {
		return fmt.Errorf("sync.max_retries must not be negative")
	}
	if c.Sync.PrefetchCount < 0 {
		return fmt.Errorf("sync.prefetch_count must not be negative")
	}

	// Validate janitor intervals
	if _, err := time.ParseDuration(c.Cache.JanitorInterval); err != nil {
		return fmt.Errorf("invalid cache.janitor_interval: %w", err)
	}
	if _, err := time.ParseDuration(c.Cache.PartMaxAge); err != nil {
		return fmt.Errorf("invalid cache.part_max_age: %w", err)
	}
	if _, err := time.ParseDuration(c.Rotation.TickTimeout); err != nil {
		return fmt.Errorf("invalid rotation.tick_timeout: %w", err)
	}

	// Validate screens
	for i, sc := range c.Screens {
		if _, err := domain.ParseTheme(sc.Theme); err != nil {
			return fmt.Errorf("screens[%d]: %w", i, err)
		}
		if sc.Delay != "" {
			if _, err := time.ParseDuration(sc.Delay); err != nil {
				return fmt.Errorf("screens[%d]: invalid delay: %w", i, err)
			}
		}
	}

	// Validate logging config
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		// Valid levels
	default:
		return fmt.Errorf("invalid logging.level: %s", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "json", "text":
		// Valid formats
	default:
		return fmt.Errorf("invalid logging.format: %s", c.Logging.Format)
	}

	return nil
}

// ScreenConfigs converts the screens section into domain configurations.
// Screens without an explicit id get the positional screen-N identifier, so
// a minimal config can just list themes and delays.
func (c *Config) ScreenConfigs() []domain.ScreenConfig {
	screens := make([]domain.ScreenConfig, 0, len(c.Screens))
	for i, sc := range c.Screens {
		id := sc.ID
		if id == "" {
			id = fmt.Sprintf("screen-%d", i)
		}

		theme, _ := domain.ParseTheme(sc.Theme)

		delay := 30 * time.Minute
		if sc.Delay != "" {
			if d, err := time.ParseDuration(sc.Delay); err == nil {
				delay = d
			}
		}

		fit := domain.FitMode(sc.Fit)
		if sc.Fit == "" {
			fit = domain.FitFill
		}

		screens = append(screens, domain.ScreenConfig{
			ID:        id,
			Name:      sc.Name,
			Theme:     theme,
			Delay:     delay,
			Slideshow: sc.Slideshow == nil || *sc.Slideshow,
			Enabled:   sc.Enabled == nil || *sc.Enabled,
			Fit:       fit,
		})
	}
	return screens
}

// GetInterval returns the sync interval as time.Duration
func (c *SyncConfig) GetInterval() time.Duration {
	d, _ := time.ParseDuration(c.Interval)
	if d == 0 {
		return 6 * time.Hour
	}
	return d
}

// GetDownloadTimeout returns the per-image download budget as time.Duration
func (c *SyncConfig) GetDownloadTimeout() time.Duration {
	d, _ := time.ParseDuration(c.DownloadTimeout)
	if d == 0 {
		return 2 * time.Minute
	}
	return d
}

// GetRetryInterval returns the initial download retry backoff as time.Duration
func (c *SyncConfig) GetRetryInterval() time.Duration {
	d, _ := time.ParseDuration(c.RetryInterval)
	if d == 0 {
		return 500 * time.Millisecond
	}
	return d
}

// MaxImageBytes returns the per-image size limit in bytes, 0 for unlimited
func (c *SyncConfig) MaxImageBytes() int64 {
	if c.MaxImageMB <= 0 {
		return 0
	}
	return int64(c.MaxImageMB) * 1024 * 1024
}

// GetJanitorInterval returns the janitor interval as time.Duration
func (c *CacheConfig) GetJanitorInterval() time.Duration {
	d, _ := time.ParseDuration(c.JanitorInterval)
	if d == 0 {
		return 30 * time.Minute
	}
	return d
}

// GetPartMaxAge returns the stale part file age as time.Duration
func (c *CacheConfig) GetPartMaxAge() time.Duration {
	d, _ := time.ParseDuration(c.PartMaxAge)
	if d == 0 {
		return time.Hour
	}
	return d
}

// MaxSizeBytes returns the cache budget in bytes, 0 for unlimited
func (c *CacheConfig) MaxSizeBytes() int64 {
	if c.MaxSizeMB <= 0 {
		return 0
	}
	return int64(c.MaxSizeMB) * 1024 * 1024
}

// MinFreeBytes returns the required disk headroom in bytes, 0 to disable
func (c *CacheConfig) MinFreeBytes() uint64 {
	if c.MinFreeMB <= 0 {
		return 0
	}
	return uint64(c.MinFreeMB) * 1024 * 1024
}

// GetTickTimeout returns the per-tick budget as time.Duration
func (c *RotationConfig) GetTickTimeout() time.Duration {
	d, _ := time.ParseDuration(c.TickTimeout)
	if d == 0 {
		return 2 * time.Minute
	}
	return d
}

// GetRequestTimeout returns the listing request timeout as time.Duration
func (c *ArchiveConfig) GetRequestTimeout() time.Duration {
	d, _ := time.ParseDuration(c.RequestTimeout)
	if d == 0 {
		return 10 * time.Second
	}
	return d
}

// GetReadTimeout returns the read timeout as time.Duration
func (c *HTTPConfig) GetReadTimeout() time.Duration {
	d, _ := time.ParseDuration(c.ReadTimeout)
	if d == 0 {
		return 30 * time.Second
	}
	return d
}

// GetWriteTimeout returns the write timeout as time.Duration
func (c *HTTPConfig) GetWriteTimeout() time.Duration {
	d, _ := time.ParseDuration(c.WriteTimeout)
	if d == 0 {
		return 30 * time.Second
	}
	return d
}

// GetIdleTimeout returns the idle timeout as time.Duration
func (c *HTTPConfig) GetIdleTimeout() time.Duration {
	d, _ := time.ParseDuration(c.IdleTimeout)
	if d == 0 {
		return 60 * time.Second
	}
	return d
}
