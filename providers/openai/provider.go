// Package openai adapts the OpenAI API to the CloudProvider contract.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"

	"github.com/runanywhere/runanywhere-go/providers"
	"github.com/runanywhere/runanywhere-go/types"
)

const defaultModel = "gpt-4o-mini"

// Config holds OpenAI-specific configuration.
type Config struct {
	APIKey       string            `yaml:"api_key"`
	BaseURL      string            `yaml:"base_url"`
	OrgID        string            `yaml:"org_id"`
	DefaultModel string            `yaml:"default_model"`
	Models       []types.ModelInfo `yaml:"models"`
	Timeout      time.Duration     `yaml:"timeout"`
}

// Provider implements the CloudProvider contract for OpenAI.
type Provider struct {
	client *openai.Client
	config *Config
	logger *logrus.Logger
}

// New creates an OpenAI provider instance.
func New(config *Config, logger *logrus.Logger) *Provider {
	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	if config.OrgID != "" {
		clientConfig.OrgID = config.OrgID
	}

	return &Provider{
		client: openai.NewClientWithConfig(clientConfig),
		config: config,
		logger: logger,
	}
}

// ProviderID returns the stable provider id.
func (p *Provider) ProviderID() string {
	return "openai"
}

// DisplayName returns the human-readable provider name.
func (p *Provider) DisplayName() string {
	return "OpenAI"
}

// Generate performs a completion request.
func (p *Provider) Generate(ctx context.Context, prompt string, opts types.GenerationOptions) (*types.CloudResult, error) {
	req := p.buildRequest(prompt, opts)

	start := time.Now()
	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		p.logger.WithError(err).Error("OpenAI API call failed")
		return nil, fmt.Errorf("openai api call failed: %w", err)
	}
	latency := time.Since(start)

	text := ""
	if len(resp.Choices) > 0 {
		text = resp.Choices[0].Message.Content
	}

	return &types.CloudResult{
		Text:             text,
		InputTokens:      resp.Usage.PromptTokens,
		OutputTokens:     resp.Usage.CompletionTokens,
		LatencyMs:        float64(latency.Microseconds()) / 1000.0,
		ProviderID:       p.ProviderID(),
		Model:            req.Model,
		EstimatedCostUSD: p.costFor(req.Model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens),
	}, nil
}

// GenerateStream performs a streaming completion request, pumping deltas into
// a StreamChunk channel that closes after a final Done chunk.
func (p *Provider) GenerateStream(ctx context.Context, prompt string, opts types.GenerationOptions) (<-chan types.StreamChunk, error) {
	req := p.buildRequest(prompt, opts)
	req.Stream = true

	stream, err := p.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		p.logger.WithError(err).Error("OpenAI streaming API call failed")
		return nil, fmt.Errorf("openai streaming api call failed: %w", err)
	}

	chunks := make(chan types.StreamChunk, 100)
	go func() {
		defer close(chunks)
		defer stream.Close()

		for {
			response, err := stream.Recv()
			if err != nil {
				if errors.Is(err, io.EOF) {
					chunks <- types.StreamChunk{Done: true}
				} else {
					p.logger.WithError(err).Error("Error receiving stream chunk")
					chunks <- types.StreamChunk{Done: true, Err: err}
				}
				return
			}

			text := ""
			if len(response.Choices) > 0 {
				text = response.Choices[0].Delta.Content
			}
			select {
			case chunks <- types.StreamChunk{Text: text}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return chunks, nil
}

// EstimateCost predicts the USD cost of a request from configured model
// pricing and rough token heuristics.
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

// IsAvailable probes the models endpoint as a cheap health check.
func (p *Provider) IsAvailable(ctx context.Context) bool {
	_, err := p.client.ListModels(ctx)
	if err != nil {
		p.logger.WithError(err).Debug("OpenAI availability probe failed")
		return false
	}
	return true
}

func (p *Provider) buildRequest(prompt string, opts types.GenerationOptions) openai.ChatCompletionRequest {
	var messages []openai.ChatCompletionMessage
	if opts.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: opts.SystemPrompt,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})

	req := openai.ChatCompletionRequest{
		Model:    p.ResolveModel(opts.Model),
		Messages: messages,
		Stop:     opts.StopSequences,
	}
	if opts.MaxTokens > 0 {
		req.MaxTokens = opts.MaxTokens
	}
	if opts.Temperature > 0 {
		req.Temperature = float32(opts.Temperature)
	}
	return req
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

// estimateTokens approximates token count at 4 characters per token.
func estimateTokens(prompt string, opts types.GenerationOptions) int {
	totalChars := len(prompt) + len(opts.SystemPrompt)
	return totalChars / 4
}

var _ providers.CloudProvider = (*Provider)(nil)
