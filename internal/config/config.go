package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. BINGWALL_ARCHIVE_MARKET.
const EnvPrefix = "BINGWALL"

// Default cache and history locations, relative to the user's home directory.
const (
	DefaultCacheDirName = ".bing-background"
	DefaultHistoryName  = ".bing-background.db"
)

type Config struct {
	Archive ArchiveConfig `mapstructure:"archive"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Desktop DesktopConfig `mapstructure:"desktop"`
	History HistoryConfig `mapstructure:"history"`
	Mirror  MirrorConfig  `mapstructure:"mirror"`
}

type ArchiveConfig struct {
	Host      string        `mapstructure:"host"`
	Path      string        `mapstructure:"path"`
	Market    string        `mapstructure:"market"`
	Backlog   int           `mapstructure:"backlog"`
	Timeout   time.Duration `mapstructure:"timeout"`
	UserAgent string        `mapstructure:"user_agent"`
}

type CacheConfig struct {
	Dir string `mapstructure:"dir"`
}

type DesktopConfig struct {
	Command       string `mapstructure:"command"`
	Schema        string `mapstructure:"schema"`
	PictureOption string `mapstructure:"picture_option"`
}

type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type MirrorConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Type      string `mapstructure:"type"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	PublicURL string `mapstructure:"public_url"`
	Prefix    string `mapstructure:"prefix"`
}

// Load reads configuration from defaults, an optional YAML file and the environment.
// An empty configPath searches $XDG_CONFIG_HOME/bingwall, $HOME/.config/bingwall
// and the working directory for config.yaml; a missing file is not an error.
func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve home directory: %w", err)
	}

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "bingwall"))
		}
		v.AddConfigPath(filepath.Join(home, ".config", "bingwall"))
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, home)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Mirror credentials also accept the standard AWS variables.
	for _, binding := range [][]string{
		{"mirror.access_key", EnvPrefix + "_MIRROR_ACCESS_KEY", "AWS_ACCESS_KEY_ID"},
		{"mirror.secret_key", EnvPrefix + "_MIRROR_SECRET_KEY", "AWS_SECRET_ACCESS_KEY"},
		{"mirror.region", EnvPrefix + "_MIRROR_REGION", "AWS_REGION"},
	} {
		if err := v.BindEnv(binding...); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", binding[0], err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Cache.Dir = expandHome(cfg.Cache.Dir, home)
	cfg.History.Path = expandHome(cfg.History.Path, home)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper, home string) {
	v.SetDefault("archive.host", "https://www.bing.com")
	v.SetDefault("archive.path", "/HPImageArchive.aspx")
	v.SetDefault("archive.market", "en-NZ") // en-US, zh-CN, ja-JP, en-AU, en-UK, de-DE, en-CA
	v.SetDefault("archive.backlog", 3)
	v.SetDefault("archive.timeout", time.Duration(0))
	v.SetDefault("archive.user_agent", "bingwall/1.0")
	v.SetDefault("cache.dir", filepath.Join(home, DefaultCacheDirName))
	v.SetDefault("desktop.command", "gsettings")
	v.SetDefault("desktop.schema", "org.mate.background")
	v.SetDefault("desktop.picture_option", "stretched")
	v.SetDefault("history.enabled", true)
	v.SetDefault("history.path", filepath.Join(home, DefaultHistoryName))
	v.SetDefault("mirror.enabled", false)
	v.SetDefault("mirror.type", "")
	v.SetDefault("mirror.endpoint", "")
	v.SetDefault("mirror.use_ssl", true)
	v.SetDefault("mirror.bucket", "")
	v.SetDefault("mirror.public_url", "")
	v.SetDefault("mirror.prefix", "")
}

// Validate checks the values the run cannot do without.
func (c *Config) Validate() error {
	switch {
	case c.Archive.Host == "":
		return errors.New("archive.host must be set")
	case c.Archive.Market == "":
		return errors.New("archive.market must be set")
	case c.Archive.Backlog < 1:
		return fmt.Errorf("archive.backlog must be at least 1, got %d", c.Archive.Backlog)
	case c.Cache.Dir == "":
		return errors.New("cache.dir must be set")
	case c.Desktop.Command == "" || c.Desktop.Schema == "":
		return errors.New("desktop.command and desktop.schema must be set")
	case c.History.Enabled && c.History.Path == "":
		return errors.New("history.path must be set when history is enabled")
	case c.Mirror.Enabled && c.Mirror.Bucket == "":
		return errors.New("mirror.bucket must be set when the mirror is enabled")
	}
	return nil
}

// expandHome resolves a leading "~/" against home.
func expandHome(path, home string) string {
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}
