package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	API    APIConfig    `mapstructure:"api"`
	Stream StreamConfig `mapstructure:"stream"`
	Cache  CacheConfig  `mapstructure:"cache"`
	Token  TokenConfig  `mapstructure:"token"`
}

type APIConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type StreamConfig struct {
	Endpoint       string        `mapstructure:"endpoint"`
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`
}

type CacheConfig struct {
	AuctionStale       time.Duration `mapstructure:"auction_stale"`
	AuctionListStale   time.Duration `mapstructure:"auction_list_stale"`
	NotificationsStale time.Duration `mapstructure:"notifications_stale"`
	UserStale          time.Duration `mapstructure:"user_stale"`
	PollInterval       time.Duration `mapstructure:"poll_interval"`
	RetryAttempts      int           `mapstructure:"retry_attempts"`
	RetryBaseDelay     time.Duration `mapstructure:"retry_base_delay"`
	RetryMaxDelay      time.Duration `mapstructure:"retry_max_delay"`
}

type TokenConfig struct {
	Path string `mapstructure:"path"`
}

func Load() (*Config, error) {
	// Set default values
	viper.SetDefault("api.base_url", "http://localhost:8080/api")
	viper.SetDefault("api.timeout", 15*time.Second)
	viper.SetDefault("stream.endpoint", "http://localhost:8080/api/notifications/stream")
	viper.SetDefault("stream.reconnect_delay", 5*time.Second)
	viper.SetDefault("cache.auction_stale", 30*time.Second)
	viper.SetDefault("cache.auction_list_stale", time.Minute)
	viper.SetDefault("cache.notifications_stale", 10*time.Minute)
	viper.SetDefault("cache.user_stale", 15*time.Minute)
	viper.SetDefault("cache.poll_interval", 30*time.Second)
	viper.SetDefault("cache.retry_attempts", 3)
	viper.SetDefault("cache.retry_base_delay", 500*time.Millisecond)
	viper.SetDefault("cache.retry_max_delay", 5*time.Second)
	viper.SetDefault("token.path", defaultTokenPath())

	// Configuration file settings
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/auction-client/")

	// Environment variable support
	viper.AutomaticEnv()

	// Environment variable mappings
	viper.BindEnv("api.base_url", "API_BASE_URL")
	viper.BindEnv("api.timeout", "API_TIMEOUT")
	viper.BindEnv("stream.endpoint", "STREAM_ENDPOINT")
	viper.BindEnv("stream.reconnect_delay", "STREAM_RECONNECT_DELAY")
	viper.BindEnv("cache.poll_interval", "CACHE_POLL_INTERVAL")
	viper.BindEnv("cache.retry_attempts", "CACHE_RETRY_ATTEMPTS")
	viper.BindEnv("token.path", "TOKEN_PATH")

	// Read configuration file (optional - will use defaults/env vars if not found)
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		// Config file not found, continue with defaults and environment variables
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func defaultTokenPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".auction-token"
	}
	return filepath.Join(dir, "auction-client", "token")
}

// GetConfigString returns a formatted string representation of the config
func (c *Config) GetConfigString() string {
	return fmt.Sprintf(
		"API: %s, Stream: %s, Poll: %s, Token: %s",
		c.API.BaseURL,
		c.Stream.Endpoint,
		c.Cache.PollInterval,
		c.Token.Path,
	)
}
