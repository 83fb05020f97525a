// Package runanywhere wires the hybrid inference orchestration core: routing
// between an optional on-device capability and a prioritized chain of cloud
// backends, with cost tracking and dual-destination event routing.
package runanywhere

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/runanywhere/runanywhere-go/config"
	"github.com/runanywhere/runanywhere-go/costs"
	"github.com/runanywhere/runanywhere-go/events"
	"github.com/runanywhere/runanywhere-go/providers"
	"github.com/runanywhere/runanywhere-go/providers/anthropic"
	"github.com/runanywhere/runanywhere-go/providers/openai"
	"github.com/runanywhere/runanywhere-go/routing"
	"github.com/runanywhere/runanywhere-go/telemetry"
	"github.com/runanywhere/runanywhere-go/types"
)

// SDK is the assembled orchestration core. Construct one per process with
// New; all methods are safe for concurrent use.
type SDK struct {
	config *config.Config
	logger *logrus.Logger
	events *events.Router
	costs  *costs.Tracker
	chain  *providers.FailoverChain
	engine *routing.Engine
}

type sdkOptions struct {
	local          providers.LocalProvider
	logger         *logrus.Logger
	sink           events.TelemetrySink
	extraProviders []extraProvider
}

type extraProvider struct {
	provider providers.CloudProvider
	priority int
}

// Option customizes SDK construction.
type Option func(*sdkOptions)

// WithLocalProvider installs the on-device inference capability.
func WithLocalProvider(p providers.LocalProvider) Option {
	return func(o *sdkOptions) { o.local = p }
}

// WithLogger replaces the logger built from the logging configuration.
func WithLogger(logger *logrus.Logger) Option {
	return func(o *sdkOptions) { o.logger = logger }
}

// WithTelemetrySink replaces the HTTP sink built from the telemetry
// configuration.
func WithTelemetrySink(sink events.TelemetrySink) Option {
	return func(o *sdkOptions) { o.sink = sink }
}

// WithCloudProvider registers an additional cloud backend at the given
// priority (higher is tried first).
func WithCloudProvider(p providers.CloudProvider, priority int) Option {
	return func(o *sdkOptions) {
		o.extraProviders = append(o.extraProviders, extraProvider{p, priority})
	}
}

// New assembles the SDK from configuration.
func New(cfg *config.Config, opts ...Option) (*SDK, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil configuration")
	}

	var options sdkOptions
	for _, opt := range opts {
		opt(&options)
	}

	logger := options.logger
	if logger == nil {
		var err error
		logger, err = buildLogger(cfg.Logging)
		if err != nil {
			return nil, fmt.Errorf("failed to setup logger: %w", err)
		}
	}

	sink := options.sink
	if sink == nil && cfg.Telemetry.Enabled {
		sink = telemetry.NewHTTPSink(cfg.Telemetry.Sink, logger)
	}

	router := events.NewRouter(sink, logger)
	tracker := costs.NewTracker(logger)
	chain := providers.NewFailoverChain(cfg.Routing.Failover, router, logger)

	registerCloudProviders(chain, cfg, logger)
	for _, extra := range options.extraProviders {
		chain.AddProvider(extra.provider, extra.priority)
	}

	policy, err := cfg.Policy()
	if err != nil {
		return nil, fmt.Errorf("invalid routing configuration: %w", err)
	}

	engine, err := routing.NewEngine(options.local, chain, tracker, router, policy, logger)
	if err != nil {
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"mode":      policy.Mode.String(),
		"providers": len(chain.HealthStatus()),
		"telemetry": sink != nil,
	}).Info("SDK initialized")

	return &SDK{
		config: cfg,
		logger: logger,
		events: router,
		costs:  tracker,
		chain:  chain,
		engine: engine,
	}, nil
}

// Generate routes a generation request under the default policy.
func (s *SDK) Generate(ctx context.Context, prompt string, opts types.GenerationOptions) (*routing.Result, error) {
	return s.engine.Generate(ctx, prompt, opts)
}

// GenerateWithPolicy routes a generation request under an explicit policy.
func (s *SDK) GenerateWithPolicy(ctx context.Context, prompt string, opts types.GenerationOptions, policy routing.Policy) (*routing.Result, error) {
	return s.engine.GenerateWithPolicy(ctx, prompt, opts, policy)
}

// GenerateStream routes a streaming request under the default policy.
func (s *SDK) GenerateStream(ctx context.Context, prompt string, opts types.GenerationOptions) (<-chan types.StreamChunk, *routing.Decision, error) {
	return s.engine.GenerateStream(ctx, prompt, opts)
}

// Subscribe registers a handler for public SDK events.
func (s *SDK) Subscribe(handler events.Handler) events.SubscriptionID {
	return s.events.Subscribe(handler)
}

// Unsubscribe removes a public event subscription.
func (s *SDK) Unsubscribe(id events.SubscriptionID) {
	s.events.Unsubscribe(id)
}

// CostSummary returns a snapshot of cumulative cloud spend.
func (s *SDK) CostSummary() costs.Summary {
	return s.costs.Summary()
}

// ResetCosts clears the cost tracker.
func (s *SDK) ResetCosts() {
	s.costs.Reset()
}

// ProviderHealth returns the circuit state of every cloud backend.
func (s *SDK) ProviderHealth() []providers.ProviderHealth {
	return s.chain.HealthStatus()
}

// DefaultPolicy returns the engine's current default routing policy.
func (s *SDK) DefaultPolicy() routing.Policy {
	return s.engine.DefaultPolicy()
}

// SetDefaultPolicy swaps the default policy for future requests; in-flight
// requests keep the copy they captured.
func (s *SDK) SetDefaultPolicy(policy routing.Policy) error {
	return s.engine.SetDefaultPolicy(policy)
}

// Close releases background resources (the telemetry worker).
func (s *SDK) Close() {
	s.events.Close()
	s.logger.Info("SDK closed")
}

func registerCloudProviders(chain *providers.FailoverChain, cfg *config.Config, logger *logrus.Logger) {
	// Anthropic outranks OpenAI by default; explicit priorities come through
	// WithCloudProvider.
	if cfg.Providers.Anthropic != nil && cfg.Providers.Anthropic.APIKey != "" {
		chain.AddProvider(anthropic.New(cfg.Providers.Anthropic, logger), 100)
	}
	if cfg.Providers.OpenAI != nil && cfg.Providers.OpenAI.APIKey != "" {
		chain.AddProvider(openai.New(cfg.Providers.OpenAI, logger), 50)
	}
}

func buildLogger(cfg config.LoggingConfig) (*logrus.Logger, error) {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %s: %w", cfg.Level, err)
	}
	logger.SetLevel(level)

	switch cfg.Format {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	case "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339})
	default:
		return nil, fmt.Errorf("invalid log format: %s", cfg.Format)
	}

	switch cfg.Output {
	case "stdout", "":
		logger.SetOutput(os.Stdout)
	case "stderr":
		logger.SetOutput(os.Stderr)
	default:
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %w", cfg.Output, err)
		}
		logger.SetOutput(file)
	}

	return logger, nil
}
