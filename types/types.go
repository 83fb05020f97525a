package types

// GenerationOptions controls a single generation request. The routing engine
// injects ConfidenceThreshold from the active policy before the request
// reaches a provider.
type GenerationOptions struct {
	// Model is the model name the caller wants. Empty means the provider's
	// configured default model.
	Model string `yaml:"model" json:"model"`

	// MaxTokens limits the generated output. 0 means provider default.
	MaxTokens int `yaml:"max_tokens" json:"max_tokens"`

	// Temperature for sampling. 0 means provider default.
	Temperature float64 `yaml:"temperature" json:"temperature"`

	// SystemPrompt is prepended as a system message where supported.
	SystemPrompt string `yaml:"system_prompt" json:"system_prompt"`

	// StopSequences terminate generation when emitted.
	StopSequences []string `yaml:"stop_sequences" json:"stop_sequences"`

	// ConfidenceThreshold below which an on-device backend should request a
	// cloud handoff. Set by the routing engine from the active policy.
	ConfidenceThreshold float64 `yaml:"confidence_threshold" json:"confidence_threshold"`

	// PreferredProvider pins cloud execution to a single provider id instead
	// of the failover chain's priority order.
	PreferredProvider string `yaml:"preferred_provider" json:"preferred_provider"`

	// SessionID groups events from related requests.
	SessionID string `yaml:"session_id" json:"session_id"`
}

// LocalResult is what an on-device backend returns from a generation.
type LocalResult struct {
	Text       string
	TokensUsed int

	// Confidence is the backend's self-reported confidence (0.0-1.0).
	// Nil when the backend does not measure confidence; the routing engine
	// treats that as 1.0.
	Confidence *float64

	// HandoffRequested signals the backend wants execution moved to cloud.
	HandoffRequested bool

	// HandoffReason is a free-form backend explanation for the handoff.
	HandoffReason string
}

// ConfidenceOrDefault returns the measured confidence, or 1.0 when the
// backend did not report one.
func (r *LocalResult) ConfidenceOrDefault() float64 {
	if r.Confidence == nil {
		return 1.0
	}
	return *r.Confidence
}

// CloudResult is what a cloud provider returns from a generation.
type CloudResult struct {
	Text             string
	InputTokens      int
	OutputTokens     int
	LatencyMs        float64
	ProviderID       string
	Model            string
	EstimatedCostUSD float64
}

// StreamChunk is a single unit of a token stream. A chunk with Done set is
// the last one on the channel; Err is non-nil when the stream terminated
// abnormally.
type StreamChunk struct {
	Text string
	Done bool
	Err  error
}

// ModelInfo describes one model a provider serves, including per-1K-token
// pricing used for cost estimation.
type ModelInfo struct {
	Name            string  `yaml:"name"`
	ProviderModelID string  `yaml:"provider_model_id"`
	InputCostPer1K  float64 `yaml:"input_cost_per_1k"`
	OutputCostPer1K float64 `yaml:"output_cost_per_1k"`
	MaxTokens       int     `yaml:"max_tokens"`
}
