package routing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runanywhere/runanywhere-go/events"
	"github.com/runanywhere/runanywhere-go/types"
)

func collectStream(t *testing.T, stream <-chan types.StreamChunk) string {
	t.Helper()

	var text string
	deadline := time.After(2 * time.Second)
	for {
		select {
		case chunk, ok := <-stream:
			if !ok {
				return text
			}
			require.NoError(t, chunk.Err)
			text += chunk.Text
			if chunk.Done {
				return text
			}
		case <-deadline:
			t.Fatal("timed out draining stream")
		}
	}
}

func TestEngineStream_AlwaysLocal(t *testing.T) {
	local := &mockLocal{text: "local stream"}
	fx := newEngineFixture(t, local, Policy{Mode: ModeAlwaysLocal})

	stream, decision, err := fx.engine.GenerateStream(context.Background(), "hello", types.GenerationOptions{})
	require.NoError(t, err)
	assert.Equal(t, TargetOnDevice, decision.ExecutionTarget)
	assert.Equal(t, "local stream", collectStream(t, stream))
}

func TestEngineStream_AlwaysCloud(t *testing.T) {
	fx := newEngineFixture(t, nil, Policy{Mode: ModeAlwaysCloud})

	stream, decision, err := fx.engine.GenerateStream(context.Background(), "hello", types.GenerationOptions{Model: "test-model"})
	require.NoError(t, err)
	assert.Equal(t, TargetCloud, decision.ExecutionTarget)
	assert.Equal(t, "mock-cloud", decision.CloudProviderID)
	assert.Equal(t, "test-model", decision.CloudModel)
	assert.Equal(t, "cloud chunk", collectStream(t, stream))
}

func TestEngineStream_CloudModelDefaultsWhenUnset(t *testing.T) {
	fx := newEngineFixture(t, nil, Policy{Mode: ModeAlwaysCloud})

	stream, decision, err := fx.engine.GenerateStream(context.Background(), "hello", types.GenerationOptions{})
	require.NoError(t, err)
	assert.Equal(t, "test-model", decision.CloudModel)
	collectStream(t, stream)
}

func TestEngineStream_BudgetExceeded(t *testing.T) {
	fx := newEngineFixture(t, nil, Policy{Mode: ModeAlwaysCloud, CostCapUSD: 0.05})
	fx.tracker.RecordRequest("mock-cloud", 100, 50, 0.05)

	_, _, err := fx.engine.GenerateStream(context.Background(), "hello", types.GenerationOptions{})
	var budgetErr *types.BudgetExceededError
	require.ErrorAs(t, err, &budgetErr)
	assert.Zero(t, fx.cloud.callCount())
}

func TestEngineStream_HybridAutoLocalWins(t *testing.T) {
	local := &mockLocal{text: "local stream", delay: 10 * time.Millisecond}
	fx := newEngineFixture(t, local, Policy{Mode: ModeHybridAuto, MaxLocalLatencyMs: 500})

	stream, decision, err := fx.engine.GenerateStream(context.Background(), "hello", types.GenerationOptions{})
	require.NoError(t, err)
	assert.Equal(t, TargetOnDevice, decision.ExecutionTarget)
	assert.Equal(t, "local stream", collectStream(t, stream))
	assert.Zero(t, fx.cloud.callCount())
}

func TestEngineStream_HybridAutoTimeoutSelectsCloud(t *testing.T) {
	local := &mockLocal{text: "slow", delay: 500 * time.Millisecond}
	fx := newEngineFixture(t, local, Policy{Mode: ModeHybridAuto, MaxLocalLatencyMs: 50})

	stream, decision, err := fx.engine.GenerateStream(context.Background(), "hello", types.GenerationOptions{})
	require.NoError(t, err)
	assert.Equal(t, TargetHybridFallback, decision.ExecutionTarget)
	assert.Equal(t, HandoffFirstTokenLowConfidence, decision.HandoffReason)
	assert.Equal(t, "cloud chunk", collectStream(t, stream))
}

func TestEngineStream_HybridAutoLocalErrorSelectsCloud(t *testing.T) {
	local := &mockLocal{err: errors.New("model not loaded")}
	fx := newEngineFixture(t, local, Policy{Mode: ModeHybridAuto})

	stream, decision, err := fx.engine.GenerateStream(context.Background(), "hello", types.GenerationOptions{})
	require.NoError(t, err)
	assert.Equal(t, TargetHybridFallback, decision.ExecutionTarget)
	assert.Equal(t, HandoffRollingWindowDegradation, decision.HandoffReason)
	assert.Equal(t, "cloud chunk", collectStream(t, stream))
}

func TestEngineStream_RoutingEventCarriesSelection(t *testing.T) {
	fx := newEngineFixture(t, nil, Policy{Mode: ModeAlwaysCloud})

	var targets []string
	fx.router.Subscribe(func(ev events.Event) {
		if ev.EventType() == "routing_decision" {
			targets = append(targets, ev.Properties()["target"])
		}
	})

	_, _, err := fx.engine.GenerateStream(context.Background(), "hello", types.GenerationOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"cloud"}, targets)
}
