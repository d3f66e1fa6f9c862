// Package config provides configuration management for the paper enrichment service.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// envPrefix namespaces every environment variable the service reads.
const envPrefix = "ENRICH"

// Config holds all configuration for the paper enrichment service.
type Config struct {
	// Server contains HTTP server settings.
	Server ServerConfig `mapstructure:"server"`
	// Logging contains structured logging settings.
	Logging LoggingConfig `mapstructure:"logging"`
	// Metrics contains Prometheus metrics exposure settings.
	Metrics MetricsConfig `mapstructure:"metrics"`
	// Providers contains external provider API configurations.
	Providers ProvidersConfig `mapstructure:"providers"`
	// Pipeline contains batch orchestration settings.
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	// Extract contains abstract extraction settings.
	Extract ExtractConfig `mapstructure:"extract"`
	// Events contains Kafka event publishing settings.
	Events EventsConfig `mapstructure:"events"`
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	// Host is the address to bind the server to (default: 0.0.0.0).
	Host string `mapstructure:"host"`
	// HTTPPort is the HTTP API server port (default: 8080).
	HTTPPort int `mapstructure:"http_port" validate:"gte=1,lte=65535"`
	// MetricsPort is the metrics server port (default: 9091).
	MetricsPort int `mapstructure:"metrics_port" validate:"gte=1,lte=65535"`
	// ReadTimeout is the maximum duration for reading a request body.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout is the maximum duration for writing a response. Zero
	// leaves it unbounded, which the streaming endpoint requires.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// HTTPAddress returns the host:port string for the HTTP server.
func (s ServerConfig) HTTPAddress() string {
	return fmt.Sprintf("%s:%d", s.Host, s.HTTPPort)
}

// MetricsAddress returns the host:port string for the metrics server.
func (s ServerConfig) MetricsAddress() string {
	return fmt.Sprintf("%s:%d", s.Host, s.MetricsPort)
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level (trace, debug, info, warn, error, fatal, panic).
	Level string `mapstructure:"level" validate:"omitempty,oneof=trace debug info warn warning error fatal panic"`
	// Format is the log output format (json, console, pretty).
	Format string `mapstructure:"format" validate:"omitempty,oneof=json console pretty"`
	// Output is the log destination (stdout, stderr).
	Output string `mapstructure:"output" validate:"omitempty,oneof=stdout stderr"`
	// AddSource includes the caller file:line in log entries.
	AddSource bool `mapstructure:"add_source"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	// Enabled controls whether the metrics server is started (default: true).
	Enabled bool `mapstructure:"enabled"`
	// Path is the HTTP path the metrics handler is mounted on (default: /metrics).
	Path string `mapstructure:"path" validate:"omitempty,startswith=/"`
	// Namespace prefixes every metric family (default: paper_enrichment).
	Namespace string `mapstructure:"namespace"`
}

// ProvidersConfig groups the external provider settings.
type ProvidersConfig struct {
	// Serper contains scholar search API settings.
	Serper SerperConfig `mapstructure:"serper"`
	// Scenario contains image generation API settings.
	Scenario ScenarioConfig `mapstructure:"scenario"`
}

// SerperConfig holds Serper scholar search API configuration.
type SerperConfig struct {
	// APIKey authenticates search requests. Loaded from
	// ENRICH_PROVIDERS_SERPER_API_KEY only, never from config files.
	APIKey string `mapstructure:"-"`
	// BaseURL is the Serper API base URL.
	BaseURL string `mapstructure:"base_url" validate:"omitempty,url"`
	// Timeout is the per-request timeout (default: 30s).
	Timeout time.Duration `mapstructure:"timeout"`
	// RateLimit is the maximum requests per second (default: 10).
	RateLimit float64 `mapstructure:"rate_limit" validate:"omitempty,gt=0"`
	// BurstSize is the maximum burst of requests allowed (default: 10).
	BurstSize int `mapstructure:"burst_size" validate:"omitempty,gte=1"`
	// MaxResults is the result count requested when the caller does not
	// specify one (default: 10).
	MaxResults int `mapstructure:"max_results" validate:"omitempty,gte=1,lte=100"`
}

// Configured reports whether the search provider has a credential.
func (s SerperConfig) Configured() bool {
	return s.APIKey != ""
}

// ScenarioConfig holds Scenario image generation API configuration.
type ScenarioConfig struct {
	// APIKey authenticates image generation requests. Loaded from
	// ENRICH_PROVIDERS_SCENARIO_API_KEY only, never from config files.
	APIKey string `mapstructure:"-"`
	// APISecret is the second half of the Basic credential. Loaded from
	// ENRICH_PROVIDERS_SCENARIO_API_SECRET only.
	APISecret string `mapstructure:"-"`
	// BaseURL is the Scenario API base URL.
	BaseURL string `mapstructure:"base_url" validate:"omitempty,url"`
	// ModelID selects the generation model (default: flux.1-dev).
	ModelID string `mapstructure:"model_id"`
	// Timeout is the per-request timeout (default: 30s).
	Timeout time.Duration `mapstructure:"timeout"`
	// RateLimit is the maximum requests per second (default: 5).
	RateLimit float64 `mapstructure:"rate_limit" validate:"omitempty,gt=0"`
	// BurstSize is the maximum burst of requests allowed (default: 5).
	BurstSize int `mapstructure:"burst_size" validate:"omitempty,gte=1"`
	// Width and Height select the output resolution (default: 1024x1024).
	Width  int `mapstructure:"width" validate:"omitempty,gte=256,lte=2048"`
	Height int `mapstructure:"height" validate:"omitempty,gte=256,lte=2048"`
	// NegativePrompt is sent with every generation request. Optional.
	NegativePrompt string `mapstructure:"negative_prompt"`
}

// Configured reports whether the image provider has a credential. Without
// one the image phase is skipped and batches complete abstract-only.
func (s ScenarioConfig) Configured() bool {
	return s.APIKey != ""
}

// PipelineConfig holds batch orchestration configuration.
type PipelineConfig struct {
	// MaxParallel caps concurrent extraction and image generation work
	// within a single batch (default: 10).
	MaxParallel int `mapstructure:"max_parallel" validate:"gte=1,lte=64"`
	// JobTimeout bounds one image job from submission to terminal status
	// (default: 5m).
	JobTimeout time.Duration `mapstructure:"job_timeout" validate:"omitempty,gte=1s"`
	// PollInitialInterval is the wait after the first image job status poll
	// (default: 2s).
	PollInitialInterval time.Duration `mapstructure:"poll_initial_interval" validate:"omitempty,gte=100ms"`
	// PollGrowthFactor multiplies the poll interval after each attempt
	// (default: 1.5).
	PollGrowthFactor float64 `mapstructure:"poll_growth_factor" validate:"omitempty,gt=1"`
	// PollMaxInterval caps the poll interval growth (default: 10s).
	PollMaxInterval time.Duration `mapstructure:"poll_max_interval" validate:"omitempty,gte=100ms"`
}

// ExtractConfig holds abstract extraction configuration.
type ExtractConfig struct {
	// MinAbstractLength is the usable-text threshold in bytes. Extracted
	// text at or below it degrades to the search snippet (default: 50).
	MinAbstractLength int `mapstructure:"min_abstract_length" validate:"omitempty,gte=1"`
	// FetchTimeout bounds one publisher page download (default: 10s).
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
	// MaxPageSize is the page download cap in bytes (default: 5MB).
	MaxPageSize int64 `mapstructure:"max_page_size" validate:"omitempty,gte=1024"`
	// UserAgent overrides the User-Agent header sent to publisher sites.
	UserAgent string `mapstructure:"user_agent"`
	// DisabledProfiles lists built-in publisher profile names to turn off.
	DisabledProfiles []string `mapstructure:"disabled_profiles"`
	// Profiles are custom publisher profiles appended after the built-ins.
	Profiles []ProfileConfig `mapstructure:"profiles" validate:"dive"`
}

// ProfileConfig describes a custom publisher profile from the config file.
type ProfileConfig struct {
	// Name identifies the profile and makes it addressable by disabled_profiles.
	Name string `mapstructure:"name" validate:"required"`
	// Hosts are hostname substrings the profile applies to.
	Hosts []string `mapstructure:"hosts" validate:"min=1,dive,required"`
	// Selectors are tried in order; the first match wins.
	Selectors []SelectorConfig `mapstructure:"selectors" validate:"min=1,dive"`
	// StripPrefix is a label removed from the front of the extracted text.
	StripPrefix string `mapstructure:"strip_prefix"`
}

// SelectorConfig addresses one place an abstract may live in a page.
type SelectorConfig struct {
	// Query is a CSS selector.
	Query string `mapstructure:"query" validate:"required"`
	// Attr names an attribute to read instead of the element text.
	Attr string `mapstructure:"attr"`
}

// EventsConfig holds Kafka event publishing configuration.
type EventsConfig struct {
	// Enabled controls whether batch lifecycle events are published
	// (default: false).
	Enabled bool `mapstructure:"enabled"`
	// Brokers is the list of Kafka broker addresses.
	Brokers []string `mapstructure:"brokers" validate:"required_if=Enabled true,omitempty,dive,hostname_port"`
	// Topic is the Kafka topic events are written to.
	Topic string `mapstructure:"topic"`
	// WriteTimeout bounds one produce call (default: 10s).
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Load reads configuration from files and environment variables.
// Search order: ./config.yaml, ./config/config.yaml, /etc/paper-enrichment-service/config.yaml.
// Environment variables use the ENRICH_ prefix with underscores,
// e.g. ENRICH_SERVER_HTTP_PORT=8888.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/paper-enrichment-service")

	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; defaults and env vars carry it.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	loadSecrets(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults registers default values for all configuration keys.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.metrics_port", 9091)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 0)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.add_source", false)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.namespace", "paper_enrichment")

	// Serper defaults
	v.SetDefault("providers.serper.base_url", "https://google.serper.dev")
	v.SetDefault("providers.serper.timeout", 30*time.Second)
	v.SetDefault("providers.serper.rate_limit", 10.0)
	v.SetDefault("providers.serper.burst_size", 10)
	v.SetDefault("providers.serper.max_results", 10)

	// Scenario defaults
	v.SetDefault("providers.scenario.base_url", "https://api.cloud.scenario.com/v1")
	v.SetDefault("providers.scenario.model_id", "flux.1-dev")
	v.SetDefault("providers.scenario.timeout", 30*time.Second)
	v.SetDefault("providers.scenario.rate_limit", 5.0)
	v.SetDefault("providers.scenario.burst_size", 5)
	v.SetDefault("providers.scenario.width", 1024)
	v.SetDefault("providers.scenario.height", 1024)
	v.SetDefault("providers.scenario.negative_prompt", "")

	// Pipeline defaults
	v.SetDefault("pipeline.max_parallel", 10)
	v.SetDefault("pipeline.job_timeout", 5*time.Minute)
	v.SetDefault("pipeline.poll_initial_interval", 2*time.Second)
	v.SetDefault("pipeline.poll_growth_factor", 1.5)
	v.SetDefault("pipeline.poll_max_interval", 10*time.Second)

	// Extract defaults
	v.SetDefault("extract.min_abstract_length", 50)
	v.SetDefault("extract.fetch_timeout", 10*time.Second)
	v.SetDefault("extract.max_page_size", 5*1024*1024)
	v.SetDefault("extract.user_agent", "")
	v.SetDefault("extract.disabled_profiles", []string{})

	// Events defaults
	v.SetDefault("events.enabled", false)
	v.SetDefault("events.brokers", []string{"localhost:9092"})
	v.SetDefault("events.topic", "paper-enrichment.batches")
	v.SetDefault("events.write_timeout", 10*time.Second)
}

// loadSecrets reads API keys from environment variables. Keys are excluded
// from viper/mapstructure so they can never land in a config file.
func loadSecrets(cfg *Config) {
	cfg.Providers.Serper.APIKey = os.Getenv("ENRICH_PROVIDERS_SERPER_API_KEY")
	cfg.Providers.Scenario.APIKey = os.Getenv("ENRICH_PROVIDERS_SCENARIO_API_KEY")
	cfg.Providers.Scenario.APISecret = os.Getenv("ENRICH_PROVIDERS_SCENARIO_API_SECRET")
}

// validate checks the struct tags declared on the config types. Field names
// in error messages use the mapstructure key, matching what a user writes in
// config files and environment variables.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("mapstructure"), ",")
		if name == "" || name == "-" {
			return strings.ToLower(field.Name)
		}
		return name
	})
	return v
}

// Validate checks the configuration for invalid or inconsistent values.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var fieldErrors validator.ValidationErrors
		if errors.As(err, &fieldErrors) {
			messages := make([]string, 0, len(fieldErrors))
			for _, fe := range fieldErrors {
				messages = append(messages, describeFieldError(fe))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(messages, "; "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Rules the struct tags cannot express.
	if c.Pipeline.PollMaxInterval != 0 && c.Pipeline.PollInitialInterval != 0 &&
		c.Pipeline.PollMaxInterval < c.Pipeline.PollInitialInterval {
		return fmt.Errorf("pipeline poll_max_interval (%s) must be >= poll_initial_interval (%s)",
			c.Pipeline.PollMaxInterval, c.Pipeline.PollInitialInterval)
	}

	if c.Providers.Scenario.APISecret != "" && c.Providers.Scenario.APIKey == "" {
		return errors.New("scenario API secret is set but ENRICH_PROVIDERS_SCENARIO_API_KEY is missing")
	}

	return nil
}

// describeFieldError renders one validator failure as a human-readable
// message keyed by the config file path of the offending field.
func describeFieldError(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "Config.")
	switch fe.Tag() {
	case "required", "required_if":
		return fmt.Sprintf("%s is required", field)
	case "gt":
		return fmt.Sprintf("%s must be greater than %s (got %v)", field, fe.Param(), fe.Value())
	case "gte", "min":
		return fmt.Sprintf("%s must be at least %s (got %v)", field, fe.Param(), fe.Value())
	case "lte", "max":
		return fmt.Sprintf("%s must be at most %s (got %v)", field, fe.Param(), fe.Value())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s] (got %q)", field, fe.Param(), fe.Value())
	case "url":
		return fmt.Sprintf("%s must be a valid URL (got %q)", field, fe.Value())
	case "startswith":
		return fmt.Sprintf("%s must start with %q", field, fe.Param())
	case "hostname_port":
		return fmt.Sprintf("%s must be a host:port address (got %q)", field, fe.Value())
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}
