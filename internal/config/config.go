package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds all configuration for the mdmdedup server and CLI.
type Config struct {
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Database DatabaseConfig `yaml:"database" mapstructure:"database"`
	Redis    RedisConfig    `yaml:"redis" mapstructure:"redis"`
	AI       AIConfig       `yaml:"ai" mapstructure:"ai"`
	Rules    RulesConfig    `yaml:"rules" mapstructure:"rules"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

type ServerConfig struct {
	Port              int      `yaml:"port" mapstructure:"port"`
	Env               string   `yaml:"env" mapstructure:"env"`
	CORSOrigins       []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	RequestsPerMinute int      `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
}

type DatabaseConfig struct {
	URL             string        `yaml:"url" mapstructure:"url"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
	MigrationsDir   string        `yaml:"migrations_dir" mapstructure:"migrations_dir"`
}

type RedisConfig struct {
	URL         string        `yaml:"url" mapstructure:"url"`
	AnalysisTTL time.Duration `yaml:"analysis_ttl" mapstructure:"analysis_ttl"`
}

type AIConfig struct {
	InferenceTimeout    time.Duration    `yaml:"inference_timeout" mapstructure:"inference_timeout"`
	MaxRetries          int              `yaml:"max_retries" mapstructure:"max_retries"`
	HealthCheckInterval time.Duration    `yaml:"health_check_interval" mapstructure:"health_check_interval"`
	MaxTokens           int              `yaml:"max_tokens" mapstructure:"max_tokens"`
	Providers           []ProviderConfig `yaml:"providers" mapstructure:"providers"`
}

// ProviderConfig describes one language-model backend.
type ProviderConfig struct {
	Name              string  `yaml:"name" mapstructure:"name"`
	Type              string  `yaml:"type" mapstructure:"type"`
	Priority          int     `yaml:"priority" mapstructure:"priority"`
	Endpoint          string  `yaml:"endpoint" mapstructure:"endpoint"`
	Model             string  `yaml:"model" mapstructure:"model"`
	APIKey            string  `yaml:"api_key" mapstructure:"api_key"`
	APIVersion        string  `yaml:"api_version" mapstructure:"api_version"`
	Deployment        string  `yaml:"deployment" mapstructure:"deployment"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Enabled           *bool   `yaml:"enabled" mapstructure:"enabled"`
}

// IsEnabled reports whether the provider should be registered. Providers are
// enabled unless explicitly disabled.
func (p ProviderConfig) IsEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

type RulesConfig struct {
	File                string  `yaml:"file" mapstructure:"file"`
	ScoreTolerance      float64 `yaml:"score_tolerance" mapstructure:"score_tolerance"`
	BenchmarkIterations int     `yaml:"benchmark_iterations" mapstructure:"benchmark_iterations"`
	BatchConcurrency    int     `yaml:"batch_concurrency" mapstructure:"batch_concurrency"`
}

type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

var validProviderTypes = map[string]bool{
	"azure":     true,
	"openai":    true,
	"gemini":    true,
	"anthropic": true,
	"vllm":      true,
	"ollama":    true,
	"mock":      true,
}

// Load reads configuration from an optional config file and the environment.
// An explicit path overrides the default search locations.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/mdmdedup")
	}

	v.SetEnvPrefix("DEDUP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("database.url", "DEDUP_DATABASE_URL", "DATABASE_URL")
	_ = v.BindEnv("redis.url", "DEDUP_REDIS_URL", "REDIS_URL")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.env", "development")
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.requests_per_minute", 60)
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.migrations_dir", "migrations")
	v.SetDefault("redis.analysis_ttl", 24*time.Hour)
	v.SetDefault("ai.inference_timeout", 20*time.Second)
	v.SetDefault("ai.max_retries", 2)
	v.SetDefault("ai.health_check_interval", 5*time.Minute)
	v.SetDefault("ai.max_tokens", 1024)
	v.SetDefault("rules.score_tolerance", 0.05)
	v.SetDefault("rules.benchmark_iterations", 100)
	v.SetDefault("rules.batch_concurrency", 4)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	for i := range cfg.AI.Providers {
		cfg.AI.Providers[i].APIKey = os.ExpandEnv(cfg.AI.Providers[i].APIKey)
		cfg.AI.Providers[i].Endpoint = os.ExpandEnv(cfg.AI.Providers[i].Endpoint)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings every command depends on.
func (c *Config) Validate() error {
	if c.AI.InferenceTimeout <= 0 {
		return eris.New("ai.inference_timeout must be positive")
	}
	if c.AI.MaxRetries <= 0 {
		return eris.Errorf("ai.max_retries must be positive, got %d", c.AI.MaxRetries)
	}
	if c.Rules.ScoreTolerance < 0 {
		return eris.Errorf("rules.score_tolerance must not be negative, got %v", c.Rules.ScoreTolerance)
	}

	seen := make(map[string]bool, len(c.AI.Providers))
	for i, p := range c.AI.Providers {
		if p.Name == "" {
			return eris.Errorf("ai.providers[%d].name is required", i)
		}
		if seen[p.Name] {
			return eris.Errorf("ai.providers[%d]: duplicate provider name %q", i, p.Name)
		}
		seen[p.Name] = true

		if !validProviderTypes[p.Type] {
			return eris.Errorf("ai.providers[%d].type must be one of azure, openai, gemini, anthropic, vllm, ollama, mock; got %q", i, p.Type)
		}
		if !p.IsEnabled() {
			continue
		}
		switch p.Type {
		case "azure":
			if p.APIKey == "" || p.Endpoint == "" || p.Deployment == "" {
				return eris.Errorf("provider %q: azure requires api_key, endpoint and deployment", p.Name)
			}
		case "openai", "gemini", "anthropic":
			if p.APIKey == "" {
				return eris.Errorf("provider %q: api_key is required for %s", p.Name, p.Type)
			}
		case "vllm":
			if p.Endpoint == "" || p.Model == "" {
				return eris.Errorf("provider %q: vllm requires endpoint and model", p.Name)
			}
		}
	}
	return nil
}

// ValidateServer checks the additional settings the HTTP server needs.
func (c *Config) ValidateServer() error {
	if c.Database.URL == "" {
		return eris.New("DATABASE_URL is required")
	}
	if c.Redis.URL == "" {
		return eris.New("REDIS_URL is required")
	}
	if len(c.AI.Providers) == 0 {
		return eris.New("at least one ai provider must be configured")
	}
	return nil
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
