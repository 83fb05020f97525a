// Package providers defines the local/cloud backend contracts consumed by the
// routing engine and the prioritized failover chain over cloud backends.
package providers

import (
	"context"

	"github.com/runanywhere/runanywhere-go/types"
)

// LocalProvider is the on-device inference capability. Model loading,
// tokenization and the native backend live behind this contract; the routing
// engine only injects the confidence threshold and reads back the
// confidence/handoff signal.
type LocalProvider interface {
	Generate(ctx context.Context, prompt string, opts types.GenerationOptions) (*types.LocalResult, error)
	GenerateStream(ctx context.Context, prompt string, opts types.GenerationOptions) (<-chan types.StreamChunk, error)
}

// CloudProvider is one remote inference backend.
type CloudProvider interface {
	ProviderID() string
	DisplayName() string
	Generate(ctx context.Context, prompt string, opts types.GenerationOptions) (*types.CloudResult, error)
	GenerateStream(ctx context.Context, prompt string, opts types.GenerationOptions) (<-chan types.StreamChunk, error)

	// EstimateCost predicts the USD cost of a request before it is made,
	// used for budget enforcement.
	EstimateCost(prompt string, opts types.GenerationOptions) (float64, error)

	// ResolveModel returns the model that would serve the request: the
	// requested model when non-empty, otherwise the provider's default.
	ResolveModel(requested string) string

	// IsAvailable is a cheap health probe used for stream provider selection.
	IsAvailable(ctx context.Context) bool
}
