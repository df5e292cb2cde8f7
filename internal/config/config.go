package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store        StoreConfig        `yaml:"store" mapstructure:"store"`
	Queue        QueueConfig        `yaml:"queue" mapstructure:"queue"`
	Hunter       HunterConfig       `yaml:"hunter" mapstructure:"hunter"`
	Autodiscover AutodiscoverConfig `yaml:"autodiscover" mapstructure:"autodiscover"`
	Anthropic    AnthropicConfig    `yaml:"anthropic" mapstructure:"anthropic"`
	Discovery    DiscoveryConfig    `yaml:"discovery" mapstructure:"discovery"`
	Scrape       ScrapeConfig       `yaml:"scrape" mapstructure:"scrape"`
	Prompts      PromptsConfig      `yaml:"prompts" mapstructure:"prompts"`
	Server       ServerConfig       `yaml:"server" mapstructure:"server"`
	Log          LogConfig          `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

// QueueConfig configures the job queue broker and per-stage worker pools.
type QueueConfig struct {
	BrokerPath           string `yaml:"broker_path" mapstructure:"broker_path"`
	PollIntervalMillis   int    `yaml:"poll_interval_ms" mapstructure:"poll_interval_ms"`
	DiscoveryConcurrency int    `yaml:"discovery_concurrency" mapstructure:"discovery_concurrency"`
	ScrapeConcurrency    int    `yaml:"scrape_concurrency" mapstructure:"scrape_concurrency"`
	ProfileConcurrency   int    `yaml:"profile_concurrency" mapstructure:"profile_concurrency"`
	PretextConcurrency   int    `yaml:"pretext_concurrency" mapstructure:"pretext_concurrency"`
}

// HunterConfig holds the email-discovery provider settings.
type HunterConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Limit   int    `yaml:"limit" mapstructure:"limit"`
}

// AutodiscoverConfig holds the federation-discovery endpoint settings.
type AutodiscoverConfig struct {
	Endpoint    string `yaml:"endpoint" mapstructure:"endpoint"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// AnthropicConfig holds completion-service settings.
type AnthropicConfig struct {
	Key                string  `yaml:"key" mapstructure:"key"`
	Model              string  `yaml:"model" mapstructure:"model"`
	MaxTokens          int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	ProfileTemperature float64 `yaml:"profile_temperature" mapstructure:"profile_temperature"`
	PretextTemperature float64 `yaml:"pretext_temperature" mapstructure:"pretext_temperature"`
}

// DiscoveryConfig configures DNS record resolution.
type DiscoveryConfig struct {
	TimeoutSecs int `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// ScrapeConfig configures outbound source fetches.
type ScrapeConfig struct {
	TimeoutSecs   int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxBodyBytes  int     `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	UserAgent     string  `yaml:"user_agent" mapstructure:"user_agent"`
	RatePerSecond float64 `yaml:"rate_per_second" mapstructure:"rate_per_second"`
}

// PromptsConfig configures the pretext prompt library.
type PromptsConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// ServerConfig configures the API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("RECON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "db/recon.db")
	v.SetDefault("queue.broker_path", "db/queue.db")
	v.SetDefault("queue.poll_interval_ms", 500)
	v.SetDefault("queue.discovery_concurrency", 1)
	v.SetDefault("queue.scrape_concurrency", 5)
	v.SetDefault("queue.profile_concurrency", 3)
	v.SetDefault("queue.pretext_concurrency", 3)
	v.SetDefault("hunter.base_url", "https://api.hunter.io/v2")
	v.SetDefault("hunter.limit", 20)
	v.SetDefault("autodiscover.endpoint", "https://autodiscover-s.outlook.com/autodiscover/autodiscover.svc")
	v.SetDefault("autodiscover.timeout_secs", 10)
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 4000)
	v.SetDefault("anthropic.profile_temperature", 0.2)
	v.SetDefault("anthropic.pretext_temperature", 0.7)
	v.SetDefault("discovery.timeout_secs", 10)
	v.SetDefault("scrape.timeout_secs", 10)
	v.SetDefault("scrape.max_body_bytes", 10000)
	v.SetDefault("scrape.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36")
	v.SetDefault("scrape.rate_per_second", 5)
	v.SetDefault("prompts.dir", "prompt_library")
	v.SetDefault("server.port", 3000)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
