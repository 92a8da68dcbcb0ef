package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	SQLite    SQLiteConfig
	Redis     RedisConfig
	Cache     CacheConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	ReadTimeout    int
	WriteTimeout   int
	BodyLimit      int
	AllowedOrigins []string
	Development    bool
}

type SQLiteConfig struct {
	Path        string
	TablePrefix string
	SiteURL     string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// CacheConfig TTLs are in seconds.
type CacheConfig struct {
	Backend          string
	Prefix           string
	MemorySize       int
	QueryTTL         int
	MetricTTL        int
	TableExistsTTL   int
	FailureThreshold uint32
	OpenTimeoutSec   int
}

func (c CacheConfig) QueryTTLDuration() time.Duration {
	return time.Duration(c.QueryTTL) * time.Second
}

func (c CacheConfig) MetricTTLDuration() time.Duration {
	return time.Duration(c.MetricTTL) * time.Second
}

func (c CacheConfig) TableExistsTTLDuration() time.Duration {
	return time.Duration(c.TableExistsTTL) * time.Second
}

type AuthConfig struct {
	NonceSecret       string
	NonceLifetimeSec  int
	SessionTTLSec     int
	SessionCookie     string
	HookSecret        string
	// BootstrapUser is upserted as an admin at startup when both it and
	// BootstrapPassword are set.
	BootstrapUser     string
	BootstrapPassword string
}

type RateLimitConfig struct {
	Enabled              bool
	MaxRequestsPerMinute int
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

// Flags registers the command line flags understood by Load.
func Flags(fs *pflag.FlagSet) {
	fs.String("config", "", "path to a config file")
	fs.Bool("purge-cache", false, "delete every cached export entry and exit")
	fs.String("cache.backend", "", "cache backend: redis or memory")
	fs.String("logging.level", "", "log level")
}

func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/seo-export")

	v.SetEnvPrefix("SEO_EXPORT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if fs != nil {
		if err := bindChangedFlags(v, fs); err != nil {
			return nil, err
		}
		if path, _ := fs.GetString("config"); path != "" {
			v.SetConfigFile(path)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// bindChangedFlags binds only flags the user set so empty flag defaults do
// not shadow config file and env values.
func bindChangedFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	var bindErr error
	fs.Visit(func(f *pflag.Flag) {
		if f.Name == "config" || f.Name == "purge-cache" {
			return
		}
		if err := v.BindPFlag(f.Name, f); err != nil && bindErr == nil {
			bindErr = fmt.Errorf("failed to bind flag %s: %w", f.Name, err)
		}
	})
	return bindErr
}

func (c *Config) validate() error {
	switch c.Cache.Backend {
	case "redis", "memory":
	default:
		return fmt.Errorf("unsupported cache backend %q", c.Cache.Backend)
	}
	if c.Auth.NonceSecret == "" {
		return fmt.Errorf("auth.nonceSecret must be set")
	}
	if c.Cache.QueryTTL <= 0 || c.Cache.MetricTTL <= 0 || c.Cache.TableExistsTTL <= 0 {
		return fmt.Errorf("cache TTLs must be positive")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 60)
	v.SetDefault("server.bodyLimit", 1048576)
	v.SetDefault("server.allowedOrigins", []string{})
	v.SetDefault("server.development", false)

	v.SetDefault("sqlite.path", "./data/content.db")
	v.SetDefault("sqlite.tablePrefix", "wp_")
	v.SetDefault("sqlite.siteURL", "http://localhost")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.prefix", "pcer_")
	v.SetDefault("cache.memorySize", 10000)
	v.SetDefault("cache.queryTTL", 300)
	v.SetDefault("cache.metricTTL", 1800)
	v.SetDefault("cache.tableExistsTTL", 3600)
	v.SetDefault("cache.failureThreshold", 5)
	v.SetDefault("cache.openTimeoutSec", 30)

	v.SetDefault("auth.nonceSecret", "")
	v.SetDefault("auth.hookSecret", "")
	v.SetDefault("auth.bootstrapUser", "")
	v.SetDefault("auth.bootstrapPassword", "")
	v.SetDefault("auth.nonceLifetimeSec", 86400)
	v.SetDefault("auth.sessionTTLSec", 172800)
	v.SetDefault("auth.sessionCookie", "seo_export_session")

	v.SetDefault("rateLimit.enabled", true)
	v.SetDefault("rateLimit.maxRequestsPerMinute", 30)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.outputPath", "stdout")
}
