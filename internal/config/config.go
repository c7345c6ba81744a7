// Package config loads engine configuration from an optional config file
// and environment variables via viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config stores all configuration for the engine.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Accrual  AccrualConfig
}

// ServerConfig defines the HTTP surface settings.
type ServerConfig struct {
	Port string `mapstructure:"port"`
}

// DatabaseConfig defines the PostgreSQL connection settings. An empty URL
// selects the in-memory store (development only).
type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

// RedisConfig defines the reference-data cache settings. An empty URL
// disables the cache.
type RedisConfig struct {
	URL string        `mapstructure:"url"`
	TTL time.Duration `mapstructure:"ttl"`
}

// AccrualConfig defines the batch processor settings. TickInterval is the
// spacing between interest accruals (one day in production; shorten it to
// exercise the full lifecycle quickly). PollInterval is how often the
// scheduler triggers a drain run.
type AccrualConfig struct {
	TickInterval time.Duration `mapstructure:"tick_interval"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	BatchLimit   int           `mapstructure:"batch_limit"`
}

// Load reads configuration from config.yaml in path (if present) and
// environment variables.
func Load(path string) (Config, error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetDefault("server.port", "8080")
	viper.SetDefault("database.url", "")
	viper.SetDefault("redis.url", "")
	viper.SetDefault("redis.ttl", 30*time.Second)
	viper.SetDefault("accrual.tick_interval", 24*time.Hour)
	viper.SetDefault("accrual.poll_interval", time.Minute)
	viper.SetDefault("accrual.batch_limit", 1000)

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, err
		}
		// No config file: defaults + environment only.
	}

	var cfg Config
	err := viper.Unmarshal(&cfg)
	return cfg, err
}
