// Package config loads and validates advisor configuration.
//
// Precedence, highest first:
//
//  1. ADVISOR_* environment variables (ADVISOR_SERVER_PORT, ADVISOR_PIPELINE_RUN_TIMEOUT, ...)
//  2. advisor.yaml in the working directory
//  3. $XDG_CONFIG_HOME/advisor/advisor.yaml (or ~/.config/advisor)
//  4. Built-in defaults
//
// String values may reference other variables as ${VAR}.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"advisor/pkg/faults"
)

// Config holds all configuration for the advisor service.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Models      ModelsConfig      `mapstructure:"models"`
	Gateway     GatewayConfig     `mapstructure:"gateway"`
	Pipeline    PipelineConfig    `mapstructure:"pipeline"`
	Resilience  ResilienceConfig  `mapstructure:"resilience"`
	Database    DatabaseConfig    `mapstructure:"database"`
	ObjectStore ObjectStoreConfig `mapstructure:"objectstore"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Batch       BatchConfig       `mapstructure:"batch"`
	Log         LogConfig         `mapstructure:"log"`
	Secrets     SecretsConfig     `mapstructure:"secrets"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	// AccessCode gates the API. Empty disables the gate.
	AccessCode string `mapstructure:"access_code"`
}

// ModelsConfig names the two model tiers used by the pipelines.
type ModelsConfig struct {
	Fast   string `mapstructure:"fast"`
	Strong string `mapstructure:"strong"`
}

// GatewayConfig describes the OpenAI-compatible gateway serving vendor/model identifiers.
type GatewayConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	APIKeyEnv string `mapstructure:"api_key_env"`
}

// PipelineConfig controls orchestrator behavior.
type PipelineConfig struct {
	RunTimeout       time.Duration `mapstructure:"run_timeout"`
	MaxRetries       int           `mapstructure:"max_retries"`
	StrictValidation bool          `mapstructure:"strict_validation"`
}

// RetryConfig defines configuration for retry behavior.
type RetryConfig struct {
	InitialDelay  time.Duration `mapstructure:"initial_delay"`
	MaxDelay      time.Duration `mapstructure:"max_delay"`
	BackoffFactor float64       `mapstructure:"backoff_factor"`
	Jitter        bool          `mapstructure:"jitter"`
}

// CircuitBreakerConfig defines configuration for circuit breaker behavior.
type CircuitBreakerConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	FailureThreshold int           `mapstructure:"failure_threshold"`
	SuccessThreshold int           `mapstructure:"success_threshold"`
	Timeout          time.Duration `mapstructure:"timeout"`
}

// ProviderLimits defines rate limiting for one provider.
type ProviderLimits struct {
	TokensPerMinute int `mapstructure:"tokens_per_minute"`
	MaxConcurrency  int `mapstructure:"max_concurrency"`
}

// ResilienceConfig bundles all resilience-related middleware configuration.
type ResilienceConfig struct {
	Retry     RetryConfig               `mapstructure:"retry"`
	Circuit   CircuitBreakerConfig      `mapstructure:"circuit"`
	RateLimit map[string]ProviderLimits `mapstructure:"ratelimit"`
	Timeout   time.Duration             `mapstructure:"timeout"` // Per-request timeout
}

// DatabaseConfig selects the analyses store.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // "sqlite" or "postgres"
	DSN    string `mapstructure:"dsn"`
}

// ObjectStoreConfig describes the optional S3-compatible archive.
type ObjectStoreConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Enabled   bool   `mapstructure:"enabled"`
}

// MetricsConfig defines configuration for metrics collection.
type MetricsConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	PrometheusURL string `mapstructure:"prometheus_url"` // Prometheus server used by the usage query
}

// BatchConfig controls batch analysis fan-out.
type BatchConfig struct {
	Concurrency int `mapstructure:"concurrency"`
}

// LogConfig controls log output.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SecretsConfig locates the encrypted secrets file.
type SecretsConfig struct {
	Dir string `mapstructure:"dir"`
}

// Load loads configuration from the XDG path, the working directory and the environment.
func Load() (*Config, error) {
	v := newViper()

	v.SetConfigName("advisor")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath(getUserConfigDir())

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	return unmarshal(v)
}

// LoadFromPath loads configuration from a specific file.
func LoadFromPath(path string) (*Config, error) {
	v := newViper()

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	return unmarshal(v)
}

// Default returns a Config holding only built-in defaults and environment overrides.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg, err := unmarshal(v)
	if err != nil {
		// Defaults alone always decode.
		panic(err)
	}
	return cfg
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("ADVISOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func unmarshal(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Server.AccessCode = expandEnv(cfg.Server.AccessCode)
	cfg.Database.DSN = expandEnv(cfg.Database.DSN)
	cfg.ObjectStore.AccessKey = expandEnv(cfg.ObjectStore.AccessKey)
	cfg.ObjectStore.SecretKey = expandEnv(cfg.ObjectStore.SecretKey)
	cfg.Gateway.BaseURL = expandEnv(cfg.Gateway.BaseURL)

	return cfg, nil
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.access_code", "")

	v.SetDefault("models.fast", ModelGeminiFlash)
	v.SetDefault("models.strong", ModelGeminiPro)

	v.SetDefault("gateway.base_url", DefaultGatewayBaseURL)
	v.SetDefault("gateway.api_key_env", EnvGatewayAPIKey)

	v.SetDefault("pipeline.run_timeout", "120s")
	v.SetDefault("pipeline.max_retries", 2)
	v.SetDefault("pipeline.strict_validation", true)

	v.SetDefault("resilience.timeout", "90s")
	v.SetDefault("resilience.retry.initial_delay", "500ms")
	v.SetDefault("resilience.retry.max_delay", "10s")
	v.SetDefault("resilience.retry.backoff_factor", 2.0)
	v.SetDefault("resilience.retry.jitter", true)
	v.SetDefault("resilience.circuit.enabled", false)
	v.SetDefault("resilience.circuit.failure_threshold", 5)
	v.SetDefault("resilience.circuit.success_threshold", 2)
	v.SetDefault("resilience.circuit.timeout", "30s")
	for provider, limits := range ProviderDefaults {
		v.SetDefault("resilience.ratelimit."+provider+".tokens_per_minute", limits.TokensPerMinute)
		v.SetDefault("resilience.ratelimit."+provider+".max_concurrency", limits.MaxConcurrency)
	}

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "advisor.db")

	v.SetDefault("objectstore.enabled", false)
	v.SetDefault("objectstore.endpoint", "")
	v.SetDefault("objectstore.access_key", "")
	v.SetDefault("objectstore.secret_key", "")
	v.SetDefault("objectstore.bucket", "advisor")
	v.SetDefault("objectstore.region", "")
	v.SetDefault("objectstore.use_ssl", true)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.prometheus_url", "")

	v.SetDefault("batch.concurrency", 2)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("secrets.dir", ".")
}

// Validate checks the configuration for values the service cannot run with.
func (c *Config) Validate() error {
	var problems []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port %d out of range", c.Server.Port))
	}
	if c.Models.Fast == "" || c.Models.Strong == "" {
		problems = append(problems, "models.fast and models.strong must be set")
	}
	if c.Pipeline.RunTimeout <= 0 {
		problems = append(problems, "pipeline.run_timeout must be positive")
	}
	if c.Pipeline.MaxRetries < 0 {
		problems = append(problems, "pipeline.max_retries cannot be negative")
	}
	if c.Resilience.Retry.BackoffFactor < 1 {
		problems = append(problems, "resilience.retry.backoff_factor must be at least 1")
	}
	switch c.Database.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		problems = append(problems, fmt.Sprintf("database.driver %q must be sqlite or postgres", c.Database.Driver))
	}
	if c.Database.DSN == "" {
		problems = append(problems, "database.dsn must be set")
	}
	if c.ObjectStore.Enabled && (c.ObjectStore.Endpoint == "" || c.ObjectStore.Bucket == "") {
		problems = append(problems, "objectstore.endpoint and objectstore.bucket are required when enabled")
	}
	if c.Batch.Concurrency < 1 {
		problems = append(problems, "batch.concurrency must be at least 1")
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		problems = append(problems, fmt.Sprintf("log.format %q must be console or json", c.Log.Format))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// RequireProviderKeys fails with a MissingConfiguration fault when a configured model has no credentials.
func (c *Config) RequireProviderKeys() error {
	for _, model := range []string{c.Models.Fast, c.Models.Strong} {
		provider, err := GetModelProvider(model)
		if err != nil {
			return faults.InvalidInput("%v", err)
		}
		if _, err := c.APIKey(provider); err != nil {
			return err
		}
	}
	return nil
}

// APIKey resolves the credential for provider, honoring gateway.api_key_env.
func (c *Config) APIKey(provider string) (string, error) {
	if provider == ProviderGateway && c.Gateway.APIKeyEnv != "" {
		key, err := GetSecret(c.Gateway.APIKeyEnv)
		if err != nil || key == "" {
			return "", faults.MissingConfiguration(c.Gateway.APIKeyEnv)
		}
		return key, nil
	}
	return GetAPIKey(provider)
}

// Addr returns host:port for the HTTP listener.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// getUserConfigDir returns the XDG config directory for the advisor.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "advisor")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "advisor")
	}
	return filepath.Join(home, ".config", "advisor")
}

// GetUserConfigPath returns the path of the per-user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "advisor.yaml")
}

// expandEnv expands ${VAR} references in a string.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)
