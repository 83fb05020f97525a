package routing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/runanywhere/runanywhere-go/events"
	"github.com/runanywhere/runanywhere-go/types"
)

// GenerateStream routes a streaming request under the engine's default
// policy.
func (e *Engine) GenerateStream(ctx context.Context, prompt string, opts types.GenerationOptions) (<-chan types.StreamChunk, *Decision, error) {
	return e.GenerateStreamWithPolicy(ctx, prompt, opts, e.DefaultPolicy())
}

// GenerateStreamWithPolicy routes a streaming request under an explicit
// policy. Routing wraps the selection decision only: once a stream has
// started, execution does not move mid-stream. The RoutingEvent carries the
// selection latency, not the stream duration.
func (e *Engine) GenerateStreamWithPolicy(ctx context.Context, prompt string, opts types.GenerationOptions, policy Policy) (<-chan types.StreamChunk, *Decision, error) {
	if err := policy.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid routing policy: %w", err)
	}

	start := time.Now()
	generationID := uuid.NewString()
	opts.ConfidenceThreshold = policy.ConfidenceThreshold

	var (
		stream   <-chan types.StreamChunk
		decision *Decision
		err      error
	)
	switch policy.Mode {
	case ModeAlwaysLocal, ModeHybridManual:
		stream, decision, err = e.streamLocal(ctx, prompt, opts, policy)
	case ModeAlwaysCloud:
		stream, decision, err = e.streamCloud(ctx, prompt, opts, policy, TargetCloud, HandoffNone)
	case ModeHybridAuto:
		stream, decision, err = e.streamHybridAuto(ctx, prompt, opts, policy)
	default:
		err = fmt.Errorf("unsupported routing mode: %s", policy.Mode)
	}
	if err != nil {
		e.logger.WithError(err).WithField("mode", policy.Mode.String()).Warn("Stream routing failed")
		return nil, nil, err
	}

	latency := time.Since(start)
	e.events.Publish(events.NewRoutingEvent(
		opts.SessionID,
		generationID,
		decision.ExecutionTarget.String(),
		policy.Mode.String(),
		decision.CloudHandoffTriggered,
		decision.HandoffReason.String(),
		decision.OnDeviceConfidence,
		decision.CloudProviderID,
		decision.CloudModel,
		durationMs(latency)))

	e.logger.WithFields(logrus.Fields{
		"mode":         policy.Mode.String(),
		"target":       decision.ExecutionTarget.String(),
		"provider":     decision.CloudProviderID,
		"selection_ms": latency.Milliseconds(),
	}).Info("Stream routed")

	return stream, decision, nil
}

func (e *Engine) streamLocal(ctx context.Context, prompt string, opts types.GenerationOptions, policy Policy) (<-chan types.StreamChunk, *Decision, error) {
	if e.local == nil {
		return nil, nil, fmt.Errorf("no local provider configured for %s mode", policy.Mode)
	}

	stream, err := e.local.GenerateStream(ctx, prompt, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("local stream failed to start: %w", err)
	}

	return stream, &Decision{
		ExecutionTarget:    TargetOnDevice,
		Policy:             policy,
		OnDeviceConfidence: 1.0,
		HandoffReason:      HandoffNone,
	}, nil
}

func (e *Engine) streamCloud(ctx context.Context, prompt string, opts types.GenerationOptions, policy Policy, target ExecutionTarget, reason HandoffReason) (<-chan types.StreamChunk, *Decision, error) {
	estimate, err := e.chain.EstimateCost(prompt, opts)
	if err != nil {
		estimate = 0
	}
	if e.costs.WouldExceedBudget(estimate, policy.CostCapUSD) {
		return nil, nil, &types.BudgetExceededError{
			CurrentUSD: e.costs.TotalCostUSD(),
			CapUSD:     policy.CostCapUSD,
		}
	}

	stream, providerID, model, err := e.chain.GenerateStream(ctx, prompt, opts)
	if err != nil {
		return nil, nil, err
	}

	return stream, &Decision{
		ExecutionTarget:       target,
		Policy:                policy,
		OnDeviceConfidence:    1.0,
		CloudHandoffTriggered: target == TargetHybridFallback,
		HandoffReason:         reason,
		CloudProviderID:       providerID,
		CloudModel:            model,
	}, nil
}

// streamHybridAuto applies the hybrid branch to stream selection: the race,
// when a latency budget is set, is over obtaining the local stream handle.
func (e *Engine) streamHybridAuto(ctx context.Context, prompt string, opts types.GenerationOptions, policy Policy) (<-chan types.StreamChunk, *Decision, error) {
	if e.local == nil {
		e.logger.Debug("No local provider configured, selecting cloud stream")
		return e.streamCloud(ctx, prompt, opts, policy, TargetHybridFallback, HandoffNone)
	}

	if policy.MaxLocalLatencyMs == 0 {
		stream, err := e.local.GenerateStream(ctx, prompt, opts)
		if err != nil {
			e.logger.WithError(err).Warn("On-device stream failed to start, falling back to cloud")
			return e.streamCloud(ctx, prompt, opts, policy, TargetHybridFallback, HandoffRollingWindowDegradation)
		}
		return stream, &Decision{
			ExecutionTarget:    TargetOnDevice,
			Policy:             policy,
			OnDeviceConfidence: 1.0,
			HandoffReason:      HandoffNone,
		}, nil
	}

	start := time.Now()
	localCtx, cancel := context.WithCancel(ctx)

	type streamOutcome struct {
		stream <-chan types.StreamChunk
		err    error
	}
	outcome := make(chan streamOutcome, 1)
	go func() {
		stream, err := e.local.GenerateStream(localCtx, prompt, opts)
		outcome <- streamOutcome{stream, err}
	}()

	timer := time.NewTimer(time.Duration(policy.MaxLocalLatencyMs) * time.Millisecond)
	defer timer.Stop()

	select {
	case out := <-outcome:
		if out.err != nil {
			cancel()
			e.logger.WithError(out.err).Warn("On-device stream failed to start, falling back to cloud")
			return e.streamCloud(ctx, prompt, opts, policy, TargetHybridFallback, HandoffRollingWindowDegradation)
		}
		return e.forwardLocalStream(ctx, cancel, out.stream), &Decision{
			ExecutionTarget:    TargetOnDevice,
			Policy:             policy,
			OnDeviceConfidence: 1.0,
			HandoffReason:      HandoffNone,
		}, nil

	case <-timer.C:
		cancel()
		elapsed := durationMs(time.Since(start))
		e.events.Publish(events.NewLatencyTimeoutEvent(opts.SessionID, policy.MaxLocalLatencyMs, elapsed))
		e.logger.WithFields(logrus.Fields{
			"max_latency_ms":    policy.MaxLocalLatencyMs,
			"actual_latency_ms": elapsed,
		}).Warn("On-device stream start exceeded latency budget, selecting cloud")
		stream, decision, err := e.streamCloud(ctx, prompt, opts, policy, TargetHybridFallback, HandoffFirstTokenLowConfidence)
		if err != nil {
			return nil, nil, &types.LatencyTimeoutError{MaxMs: policy.MaxLocalLatencyMs, ActualMs: elapsed, Cause: err}
		}
		return stream, decision, nil

	case <-ctx.Done():
		cancel()
		return nil, nil, ctx.Err()
	}
}

// forwardLocalStream pipes the local stream through, releasing the race's
// cancel func once the stream drains so the local context does not leak.
func (e *Engine) forwardLocalStream(ctx context.Context, cancel context.CancelFunc, in <-chan types.StreamChunk) <-chan types.StreamChunk {
	out := make(chan types.StreamChunk)
	go func() {
		defer cancel()
		defer close(out)
		for chunk := range in {
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
