// Package config loads SDK configuration from YAML, .env files and
// environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/runanywhere/runanywhere-go/providers"
	"github.com/runanywhere/runanywhere-go/providers/anthropic"
	"github.com/runanywhere/runanywhere-go/providers/openai"
	"github.com/runanywhere/runanywhere-go/routing"
	"github.com/runanywhere/runanywhere-go/telemetry"
)

// Config represents the complete SDK configuration.
type Config struct {
	Routing   RoutingConfig   `yaml:"routing"`
	Providers ProvidersConfig `yaml:"providers"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// RoutingConfig holds the default routing policy and failover tuning.
type RoutingConfig struct {
	Mode                string                `yaml:"mode"`
	ConfidenceThreshold float64               `yaml:"confidence_threshold"`
	MaxLocalLatencyMs   uint                  `yaml:"max_local_latency_ms"`
	CostCapUSD          float64               `yaml:"cost_cap_usd"`
	PreferStreaming     bool                  `yaml:"prefer_streaming"`
	Failover            providers.ChainConfig `yaml:"failover"`
}

// ProvidersConfig holds configuration for all cloud providers.
type ProvidersConfig struct {
	OpenAI    *openai.Config    `yaml:"openai"`
	Anthropic *anthropic.Config `yaml:"anthropic"`
}

// TelemetryConfig holds telemetry sink configuration.
type TelemetryConfig struct {
	Enabled bool `yaml:"enabled"`

	Sink telemetry.Config `yaml:",inline"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "text"
	Output string `yaml:"output"` // "stdout", "stderr", or file path
}

// Load reads configuration from an optional YAML file and environment
// variables. A .env file in the working directory is loaded first when
// present.
func Load(configPath string) (*Config, error) {
	// Best-effort: a missing .env file is fine.
	_ = godotenv.Load()

	config := &Config{}
	config.setDefaults()

	if configPath != "" {
		if err := config.loadFromFile(configPath); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	config.loadFromEnv()

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// Policy converts the routing section into a routing.Policy value.
func (c *Config) Policy() (routing.Policy, error) {
	mode, err := routing.ParseMode(c.Routing.Mode)
	if err != nil {
		return routing.Policy{}, err
	}
	return routing.Policy{
		Mode:                mode,
		ConfidenceThreshold: c.Routing.ConfidenceThreshold,
		MaxLocalLatencyMs:   c.Routing.MaxLocalLatencyMs,
		CostCapUSD:          c.Routing.CostCapUSD,
		PreferStreaming:     c.Routing.PreferStreaming,
	}, nil
}

func (c *Config) setDefaults() {
	defaults := routing.DefaultPolicy()
	c.Routing = RoutingConfig{
		Mode:                defaults.Mode.String(),
		ConfidenceThreshold: defaults.ConfidenceThreshold,
		MaxLocalLatencyMs:   defaults.MaxLocalLatencyMs,
		CostCapUSD:          defaults.CostCapUSD,
		PreferStreaming:     defaults.PreferStreaming,
		Failover: providers.ChainConfig{
			FailureThreshold: providers.DefaultFailureThreshold,
			Cooldown:         providers.DefaultCooldown,
		},
	}

	c.Telemetry = TelemetryConfig{
		Enabled: false,
		Sink: telemetry.Config{
			Timeout:         10 * time.Second,
			EventsPerSecond: 20,
			Burst:           50,
		},
	}

	c.Logging = LoggingConfig{
		Level:  "info",
		Format: "json",
		Output: "stdout",
	}
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) loadFromEnv() {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		if c.Providers.OpenAI == nil {
			c.Providers.OpenAI = &openai.Config{}
		}
		c.Providers.OpenAI.APIKey = key
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		if c.Providers.Anthropic == nil {
			c.Providers.Anthropic = &anthropic.Config{}
		}
		c.Providers.Anthropic.APIKey = key
	}

	if mode := os.Getenv("RUNANYWHERE_ROUTING_MODE"); mode != "" {
		c.Routing.Mode = mode
	}
	if costCap := os.Getenv("RUNANYWHERE_COST_CAP_USD"); costCap != "" {
		if v, err := strconv.ParseFloat(costCap, 64); err == nil {
			c.Routing.CostCapUSD = v
		}
	}
	if threshold := os.Getenv("RUNANYWHERE_CONFIDENCE_THRESHOLD"); threshold != "" {
		if v, err := strconv.ParseFloat(threshold, 64); err == nil {
			c.Routing.ConfidenceThreshold = v
		}
	}

	if endpoint := os.Getenv("RUNANYWHERE_TELEMETRY_ENDPOINT"); endpoint != "" {
		c.Telemetry.Enabled = true
		c.Telemetry.Sink.Endpoint = endpoint
	}
	if key := os.Getenv("RUNANYWHERE_TELEMETRY_API_KEY"); key != "" {
		c.Telemetry.Sink.APIKey = key
	}

	if level := os.Getenv("RUNANYWHERE_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if format := os.Getenv("RUNANYWHERE_LOG_FORMAT"); format != "" {
		c.Logging.Format = format
	}
}

func (c *Config) validate() error {
	policy, err := c.Policy()
	if err != nil {
		return err
	}
	if err := policy.Validate(); err != nil {
		return err
	}

	validLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "warning": true, "error": true, "fatal": true,
	}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	if c.Telemetry.Enabled && c.Telemetry.Sink.Endpoint == "" {
		return fmt.Errorf("telemetry enabled but no endpoint configured")
	}

	if err := validateModels("openai", openaiModels(c)); err != nil {
		return err
	}
	if err := validateModels("anthropic", anthropicModels(c)); err != nil {
		return err
	}

	return nil
}

func openaiModels(c *Config) []modelPricing {
	if c.Providers.OpenAI == nil {
		return nil
	}
	out := make([]modelPricing, 0, len(c.Providers.OpenAI.Models))
	for _, m := range c.Providers.OpenAI.Models {
		out = append(out, modelPricing{m.Name, m.InputCostPer1K, m.OutputCostPer1K})
	}
	return out
}

func anthropicModels(c *Config) []modelPricing {
	if c.Providers.Anthropic == nil {
		return nil
	}
	out := make([]modelPricing, 0, len(c.Providers.Anthropic.Models))
	for _, m := range c.Providers.Anthropic.Models {
		out = append(out, modelPricing{m.Name, m.InputCostPer1K, m.OutputCostPer1K})
	}
	return out
}

type modelPricing struct {
	name       string
	inputCost  float64
	outputCost float64
}

func validateModels(provider string, models []modelPricing) error {
	for _, m := range models {
		if m.name == "" {
			return fmt.Errorf("%s: model with empty name", provider)
		}
		if m.inputCost < 0 || m.outputCost < 0 {
			return fmt.Errorf("%s model %s: negative pricing", provider, m.name)
		}
	}
	return nil
}
