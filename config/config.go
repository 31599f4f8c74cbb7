package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/ini.v1"

	"pkhunter/models"
)

// DefaultConfigPath is used when no -c flag is given.
const DefaultConfigPath = "./conf/defaults.conf"

type Config struct {
	Default DefaultConfig `mapstructure:"default"`
	Connect ConnectConfig `mapstructure:"connect"`
	Whois   WhoisConfig   `mapstructure:"whois"`
	Cache   CacheConfig   `mapstructure:"cache"`
	MongoDB MongoDBConfig `mapstructure:"mongodb"`
	Log     LogConfig     `mapstructure:"log"`
}

// DefaultConfig holds the three detection patterns.
type DefaultConfig struct {
	TrackingFileRequest string `mapstructure:"tracking_file_request"`
	LegitimateReferer   string `mapstructure:"legitimate_referer"`
	LogPattern          string `mapstructure:"log_pattern"`
}

type ConnectConfig struct {
	HTTPProxy   string        `mapstructure:"http_proxy"`
	Timeout     time.Duration `mapstructure:"timeout"`
	RetryCount  int           `mapstructure:"retry_count"`
	RetryDelay  time.Duration `mapstructure:"retry_delay"`
	FaviconHash bool          `mapstructure:"favicon_hash"`
	UserAgent   string        `mapstructure:"user_agent"`
}

type WhoisConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type CacheConfig struct {
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	TTL           time.Duration `mapstructure:"ttl"`
}

type MongoDBConfig struct {
	URI        string        `mapstructure:"uri"`
	Database   string        `mapstructure:"database"`
	Collection string        `mapstructure:"collection"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("connect.http_proxy", "")
	v.SetDefault("connect.timeout", "5s")
	v.SetDefault("connect.retry_count", 0)
	v.SetDefault("connect.retry_delay", "500ms")
	v.SetDefault("connect.favicon_hash", false)
	v.SetDefault("connect.user_agent", "")

	v.SetDefault("whois.enabled", true)
	v.SetDefault("whois.timeout", "10s")

	v.SetDefault("cache.redis_addr", "")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.ttl", "24h")

	v.SetDefault("mongodb.uri", "")
	v.SetDefault("mongodb.database", "pkhunter")
	v.SetDefault("mongodb.collection", "reports")
	v.SetDefault("mongodb.timeout", "10s")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
}

// LoadConfig reads the configuration file at path. Files with an extension
// viper does not recognise (such as .conf) are parsed as INI.
// Every failure wraps models.ErrConfig.
func LoadConfig(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrConfig, err)
	}

	v := viper.NewWithOptions(viper.IniLoadOptions(ini.LoadOptions{
		// Patterns routinely contain ';' and '#'.
		IgnoreInlineComment:        true,
		AllowPythonMultilineValues: true,
	}))
	setDefaults(v)
	v.SetConfigFile(path)
	if !isSupportedExt(path) {
		v.SetConfigType("ini")
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("%w: failed to read config file: %v", models.ErrConfig, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal config: %v", models.ErrConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the mandatory patterns are present and the numeric
// settings are usable.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Default.TrackingFileRequest) == "" {
		errs = append(errs, errors.New("DEFAULT.tracking_file_request is required"))
	}
	if strings.TrimSpace(c.Default.LegitimateReferer) == "" {
		errs = append(errs, errors.New("DEFAULT.legitimate_referer is required"))
	}
	if strings.TrimSpace(c.Default.LogPattern) == "" {
		errs = append(errs, errors.New("DEFAULT.log_pattern is required"))
	}
	if c.Connect.Timeout <= 0 {
		errs = append(errs, errors.New("CONNECT.timeout must be positive"))
	}
	if c.Connect.RetryCount < 0 {
		errs = append(errs, errors.New("CONNECT.retry_count must not be negative"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %v", models.ErrConfig, errors.Join(errs...))
	}
	return nil
}

func isSupportedExt(path string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if ext == "" {
		return false
	}
	for _, e := range viper.SupportedExts {
		if e == ext {
			return true
		}
	}
	return false
}
