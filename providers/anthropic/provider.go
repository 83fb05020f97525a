// Package anthropic adapts the Anthropic Claude API to the CloudProvider
// contract.
package anthropic

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/sirupsen/logrus"

	"github.com/runanywhere/runanywhere-go/providers"
	"github.com/runanywhere/runanywhere-go/types"
)

const (
	defaultModel     = "claude-3-5-sonnet-20241022"
	defaultMaxTokens = 1024
	probeModel       = "claude-3-haiku-20240307"
)

// Config holds Anthropic-specific configuration.
type Config struct {
	APIKey       string            `yaml:"api_key"`
	BaseURL      string            `yaml:"base_url"`
	DefaultModel string            `yaml:"default_model"`
	Models       []types.ModelInfo `yaml:"models"`
	Timeout      time.Duration     `yaml:"timeout"`
}

// Provider implements the CloudProvider contract for Anthropic Claude.
type Provider struct {
	client *anthropic.Client
	config *Config
	logger *logrus.Logger
}

// New creates an Anthropic provider instance.
func New(config *Config, logger *logrus.Logger) *Provider {
	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
	}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	client := anthropic.NewClient(opts...)

	return &Provider{
		client: &client,
		config: config,
		logger: logger,
	}
}

// ProviderID returns the stable provider id.
func (p *Provider) ProviderID() string {
	return "anthropic"
}

// DisplayName returns the human-readable provider name.
func (p *Provider) DisplayName() string {
	return "Anthropic Claude"
}

// Generate performs a message request.
func (p *Provider) Generate(ctx context.Context, prompt string, opts types.GenerationOptions) (*types.CloudResult, error) {
	params := p.buildParams(prompt, opts)

	start := time.Now()
	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		p.logger.WithError(err).Error("Anthropic API call failed")
		return nil, fmt.Errorf("anthropic api call failed: %w", err)
	}
	latency := time.Since(start)

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	inputTokens := int(resp.Usage.InputTokens)
	outputTokens := int(resp.Usage.OutputTokens)

	return &types.CloudResult{
		Text:             text.String(),
		InputTokens:      inputTokens,
		OutputTokens:     outputTokens,
		LatencyMs:        float64(latency.Microseconds()) / 1000.0,
		ProviderID:       p.ProviderID(),
		Model:            string(resp.Model),
		EstimatedCostUSD: p.costFor(string(params.Model), inputTokens, outputTokens),
	}, nil
}

// GenerateStream performs a streaming message request, pumping text deltas
// into a StreamChunk channel that closes after a final Done chunk.
func (p *Provider) GenerateStream(ctx context.Context, prompt string, opts types.GenerationOptions) (<-chan types.StreamChunk, error) {
	params := p.buildParams(prompt, opts)
	stream := p.client.Messages.NewStreaming(ctx, params)

	chunks := make(chan types.StreamChunk, 100)
	go func() {
		defer close(chunks)
		defer stream.Close()

		for stream.Next() {
			event := stream.Current()
			switch eventVariant := event.AsAny().(type) {
			case anthropic.ContentBlockDeltaEvent:
				switch deltaVariant := eventVariant.Delta.AsAny().(type) {
				case anthropic.TextDelta:
					select {
					case chunks <- types.StreamChunk{Text: deltaVariant.Text}:
					case <-ctx.Done():
						return
					}
				}
			}
		}

		if err := stream.Err(); err != nil {
			p.logger.WithError(err).Error("Anthropic stream failed")
			chunks <- types.StreamChunk{Done: true, Err: err}
			return
		}
		chunks <- types.StreamChunk{Done: true}
	}()

	return chunks, nil
}

// EstimateCost predicts the USD cost of a request from configured model
// pricing and Claude's ~3.5 chars-per-token heuristic.
func (p *Provider) EstimateCost(prompt string, opts types.GenerationOptions) (float64, error) {
	model := p.ResolveModel(opts.Model)
	info := p.modelInfo(model)
	if info == nil {
		return 0, fmt.Errorf("model %s not found in configuration", model)
	}

	inputTokens := estimateTokens(prompt, opts)
	outputTokens := 100
	if opts.MaxTokens > 0 {
		outputTokens = opts.MaxTokens
	}

	inputCost := float64(inputTokens) * info.InputCostPer1K / 1000
	outputCost := float64(outputTokens) * info.OutputCostPer1K / 1000
	return inputCost + outputCost, nil
}

// IsAvailable probes the API with a minimal single-token message.
func (p *Provider) IsAvailable(ctx context.Context) bool {
	probe := anthropic.MessageNewParams{
		Model: anthropic.Model(probeModel),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock("ping")),
		},
		MaxTokens: 1,
	}

	_, err := p.client.Messages.New(ctx, probe)
	if err != nil {
		p.logger.WithError(err).Debug("Anthropic availability probe failed")
		return false
	}
	return true
}

func (p *Provider) buildParams(prompt string, opts types.GenerationOptions) anthropic.MessageNewParams {
	params := anthropic.MessageNewParams{
		Model: anthropic.Model(p.ResolveModel(opts.Model)),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
		MaxTokens: defaultMaxTokens,
	}

	if opts.MaxTokens > 0 {
		params.MaxTokens = int64(opts.MaxTokens)
	}
	if opts.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: opts.SystemPrompt, Type: "text"},
		}
	}
	if opts.Temperature > 0 {
		params.Temperature = anthropic.Float(opts.Temperature)
	}
	if len(opts.StopSequences) > 0 {
		stopSeqs := make([]string, len(opts.StopSequences))
		copy(stopSeqs, opts.StopSequences)
		params.StopSequences = stopSeqs
	}

	return params
}

// ResolveModel returns the model that would serve a request for the given
// model name.
func (p *Provider) ResolveModel(model string) string {
	if model != "" {
		return model
	}
	if p.config.DefaultModel != "" {
		return p.config.DefaultModel
	}
	return defaultModel
}

func (p *Provider) modelInfo(model string) *types.ModelInfo {
	for i := range p.config.Models {
		if p.config.Models[i].Name == model || p.config.Models[i].ProviderModelID == model {
			return &p.config.Models[i]
		}
	}
	return nil
}

func (p *Provider) costFor(model string, inputTokens, outputTokens int) float64 {
	info := p.modelInfo(model)
	if info == nil {
		return 0
	}
	return float64(inputTokens)*info.InputCostPer1K/1000 + float64(outputTokens)*info.OutputCostPer1K/1000
}

// estimateTokens approximates Claude token count at roughly 3.5 characters
// per token.
func estimateTokens(prompt string, opts types.GenerationOptions) int {
	totalChars := len(prompt) + len(opts.SystemPrompt)
	return totalChars * 10 / 35
}

var _ providers.CloudProvider = (*Provider)(nil)
