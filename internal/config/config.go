package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/nulzo/capability-router/internal/core/domain"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig            `mapstructure:"server"`
	Database  DatabaseConfig          `mapstructure:"database"`
	Redis     RedisConfig             `mapstructure:"redis"`
	RateLimit RateLimitConfig         `mapstructure:"rate_limit"`
	Log       LogConfig               `mapstructure:"log"`
	Tracing   TracingConfig           `mapstructure:"tracing"`
	Routing   RoutingConfig           `mapstructure:"routing"`
	Health    HealthConfig            `mapstructure:"health"`
	Templates TemplatesConfig         `mapstructure:"templates"`
	Security  SecurityConfig          `mapstructure:"security"`
	Providers []domain.ProviderConfig `mapstructure:"providers"`
	Policies  []domain.Policy         `mapstructure:"policies"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Env  string `mapstructure:"env"`
	// APIKeys guard /v1/route. Empty means open.
	APIKeys []string `mapstructure:"api_keys"`
	// AdminKeys guard /v1/admin. Entries starting with "$2" are bcrypt hashes.
	AdminKeys []string `mapstructure:"admin_keys"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Enabled  bool   `mapstructure:"enabled"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

type RoutingConfig struct {
	// MaxRetryCount clamps policy retry_count on save.
	MaxRetryCount int `mapstructure:"max_retry_count"`
	MaxTimeoutMS  int `mapstructure:"max_timeout_ms"`
	// CapabilityDefaults overrides the built-in recommended defaults per capability.
	CapabilityDefaults map[string]CapabilityOverride `mapstructure:"capability_defaults"`
}

// CapabilityOverride replaces individual recommended defaults. Unset fields keep the built-in value.
type CapabilityOverride struct {
	TimeoutMS  int  `mapstructure:"timeout_ms"`
	RetryCount *int `mapstructure:"retry_count"`
}

type HealthConfig struct {
	ProbeTimeout time.Duration `mapstructure:"probe_timeout"`
	// Schedule is a cron expression; empty disables periodic probing.
	Schedule string        `mapstructure:"schedule"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

type TemplatesConfig struct {
	File  string `mapstructure:"file"`
	Watch bool   `mapstructure:"watch"`
}

type SecurityConfig struct {
	CredentialSecret string `mapstructure:"credential_secret"`
}

// DefaultsFor returns the configured defaults for a capability, falling back to the built-in ones.
func (r RoutingConfig) DefaultsFor(c domain.Capability) domain.CapabilityDefaults {
	d := domain.RecommendedDefaults(c)
	if o, ok := r.CapabilityDefaults[string(c)]; ok {
		if o.TimeoutMS > 0 {
			d.TimeoutMS = o.TimeoutMS
		}
		if o.RetryCount != nil && *o.RetryCount >= 0 {
			d.RetryCount = *o.RetryCount
		}
	}
	if r.MaxRetryCount >= 0 && d.RetryCount > r.MaxRetryCount {
		d.RetryCount = r.MaxRetryCount
	}
	return d
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig() (*Config, error) {
	// Load .env file if present
	_ = godotenv.Load()

	v := viper.New()

	if file := os.Getenv("CONFIG_FILE"); file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	// AutomaticEnv does not split list values
	if keys := v.GetString("server.api_keys"); keys != "" && len(cfg.Server.APIKeys) <= 1 {
		cfg.Server.APIKeys = splitList(keys)
	}
	if keys := v.GetString("server.admin_keys"); keys != "" && len(cfg.Server.AdminKeys) <= 1 {
		cfg.Server.AdminKeys = splitList(keys)
	}

	for i, p := range cfg.Providers {
		cfg.Providers[i].Credential = resolveEnv(v, p.Credential)
	}
	cfg.Security.CredentialSecret = resolveEnv(v, cfg.Security.CredentialSecret)

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.env", "development")
	v.SetDefault("database.path", "router.db")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("rate_limit.requests_per_second", 10.0)
	v.SetDefault("rate_limit.burst", 20)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "capability-router")
	v.SetDefault("tracing.sample_ratio", 1.0)
	v.SetDefault("routing.max_retry_count", 2)
	v.SetDefault("routing.max_timeout_ms", 600000)
	v.SetDefault("health.probe_timeout", "10s")
	v.SetDefault("health.schedule", "")
	v.SetDefault("health.cache_ttl", "10m")
	v.SetDefault("templates.watch", false)
}

// resolveEnv expands "ENV:NAME" indirection, checking the process environment before viper.
func resolveEnv(v *viper.Viper, value string) string {
	if !strings.HasPrefix(value, "ENV:") {
		return value
	}
	envVar := strings.TrimPrefix(value, "ENV:")
	if val := os.Getenv(envVar); val != "" {
		return val
	}
	return v.GetString(envVar)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
