package routing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/runanywhere/runanywhere-go/costs"
	"github.com/runanywhere/runanywhere-go/events"
	"github.com/runanywhere/runanywhere-go/providers"
	"github.com/runanywhere/runanywhere-go/types"
)

// Engine is the top-level orchestrator. Given a prompt, options and a policy
// it decides the execution target, invokes the local capability and/or the
// cloud failover chain, enforces the cost cap, and publishes one routing
// event per request.
//
// Concurrent calls are independent: each request captures its own policy
// value, and only the cost tracker and failover chain are shared.
type Engine struct {
	local  providers.LocalProvider
	chain  *providers.FailoverChain
	costs  *costs.Tracker
	events *events.Router
	logger *logrus.Logger

	mu            sync.RWMutex
	defaultPolicy Policy
}

// NewEngine creates a routing engine. local may be nil when no on-device
// capability is installed; hybrid and local modes then route to cloud or
// fail, respectively.
func NewEngine(local providers.LocalProvider, chain *providers.FailoverChain, tracker *costs.Tracker, router *events.Router, defaultPolicy Policy, logger *logrus.Logger) (*Engine, error) {
	if err := defaultPolicy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid default policy: %w", err)
	}
	return &Engine{
		local:         local,
		chain:         chain,
		costs:         tracker,
		events:        router,
		logger:        logger,
		defaultPolicy: defaultPolicy,
	}, nil
}

// DefaultPolicy returns the engine's current default policy.
func (e *Engine) DefaultPolicy() Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.defaultPolicy
}

// SetDefaultPolicy swaps the default policy for future requests. In-flight
// requests keep the copy they captured.
func (e *Engine) SetDefaultPolicy(policy Policy) error {
	if err := policy.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	e.defaultPolicy = policy
	e.mu.Unlock()
	return nil
}

// Generate routes a request under the engine's default policy.
func (e *Engine) Generate(ctx context.Context, prompt string, opts types.GenerationOptions) (*Result, error) {
	return e.GenerateWithPolicy(ctx, prompt, opts, e.DefaultPolicy())
}

// GenerateWithPolicy routes a request under an explicit policy. Exactly one
// RoutingEvent is published per successful request, after the result is
// determined and before it is returned.
func (e *Engine) GenerateWithPolicy(ctx context.Context, prompt string, opts types.GenerationOptions, policy Policy) (*Result, error) {
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid routing policy: %w", err)
	}

	start := time.Now()
	generationID := uuid.NewString()
	opts.ConfidenceThreshold = policy.ConfidenceThreshold

	var (
		result *Result
		err    error
	)
	switch policy.Mode {
	case ModeAlwaysLocal, ModeHybridManual:
		result, err = e.generateLocal(ctx, prompt, opts, policy)
	case ModeAlwaysCloud:
		result, err = e.generateCloud(ctx, prompt, opts, policy, generationID, TargetCloud, HandoffNone)
	case ModeHybridAuto:
		result, err = e.generateHybridAuto(ctx, prompt, opts, policy, generationID)
	default:
		err = fmt.Errorf("unsupported routing mode: %s", policy.Mode)
	}

	latency := time.Since(start)
	if err != nil {
		e.logger.WithError(err).WithFields(logrus.Fields{
			"mode":        policy.Mode.String(),
			"duration_ms": latency.Milliseconds(),
		}).Warn("Generation failed")
		return nil, err
	}

	result.Latency = latency
	e.publishDecision(opts.SessionID, generationID, result)
	e.events.Publish(events.NewGenerationCompletedEvent(
		opts.SessionID, generationID, result.Decision.ExecutionTarget.String(),
		result.InputTokens, result.OutputTokens, durationMs(latency)))

	e.logger.WithFields(logrus.Fields{
		"mode":        policy.Mode.String(),
		"target":      result.Decision.ExecutionTarget.String(),
		"provider":    result.Decision.CloudProviderID,
		"confidence":  result.Decision.OnDeviceConfidence,
		"duration_ms": latency.Milliseconds(),
	}).Info("Request routed")

	return result, nil
}

// generateLocal serves AlwaysLocal and HybridManual: the local result is
// wrapped as-is, with any handoff signal surfaced for the caller to act on.
func (e *Engine) generateLocal(ctx context.Context, prompt string, opts types.GenerationOptions, policy Policy) (*Result, error) {
	if e.local == nil {
		return nil, fmt.Errorf("no local provider configured for %s mode", policy.Mode)
	}

	localResult, err := e.local.Generate(ctx, prompt, opts)
	if err != nil {
		return nil, fmt.Errorf("local generation failed: %w", err)
	}

	return &Result{
		Text:         localResult.Text,
		OutputTokens: localResult.TokensUsed,
		Decision: Decision{
			ExecutionTarget:    TargetOnDevice,
			Policy:             policy,
			OnDeviceConfidence: localResult.ConfidenceOrDefault(),
			HandoffReason:      HandoffNone,
		},
		HandoffRequested: localResult.HandoffRequested,
		HandoffDetail:    localResult.HandoffReason,
	}, nil
}

// generateCloud serves AlwaysCloud and the hybrid fallback path. The cost cap
// is checked against a pre-call estimate before any provider is contacted;
// cost is recorded and a CloudCostEvent published only after a successful
// call.
func (e *Engine) generateCloud(ctx context.Context, prompt string, opts types.GenerationOptions, policy Policy, generationID string, target ExecutionTarget, reason HandoffReason) (*Result, error) {
	estimate, err := e.chain.EstimateCost(prompt, opts)
	if err != nil {
		e.logger.WithError(err).Debug("Cost estimate unavailable, budget check uses zero estimate")
		estimate = 0
	}
	if e.costs.WouldExceedBudget(estimate, policy.CostCapUSD) {
		return nil, &types.BudgetExceededError{
			CurrentUSD: e.costs.TotalCostUSD(),
			CapUSD:     policy.CostCapUSD,
		}
	}

	var cloudResult *types.CloudResult
	if opts.PreferredProvider != "" {
		cloudResult, err = e.chain.GenerateWith(ctx, opts.PreferredProvider, prompt, opts)
	} else {
		cloudResult, err = e.chain.Generate(ctx, prompt, opts)
	}
	if err != nil {
		return nil, err
	}

	e.costs.RecordRequest(cloudResult.ProviderID, cloudResult.InputTokens, cloudResult.OutputTokens, cloudResult.EstimatedCostUSD)
	e.events.Publish(events.NewCloudCostEvent(
		opts.SessionID, generationID, cloudResult.ProviderID, cloudResult.Model,
		cloudResult.InputTokens, cloudResult.OutputTokens,
		cloudResult.EstimatedCostUSD, e.costs.TotalCostUSD()))

	return &Result{
		Text:         cloudResult.Text,
		InputTokens:  cloudResult.InputTokens,
		OutputTokens: cloudResult.OutputTokens,
		Decision: Decision{
			ExecutionTarget:       target,
			Policy:                policy,
			OnDeviceConfidence:    1.0,
			CloudHandoffTriggered: target == TargetHybridFallback,
			HandoffReason:         reason,
			CloudProviderID:       cloudResult.ProviderID,
			CloudModel:            cloudResult.Model,
		},
	}, nil
}

// generateHybridAuto runs on-device first, racing the local call against the
// policy's latency budget when one is set, and falls back to cloud on
// timeout, low confidence, explicit handoff, or local error.
func (e *Engine) generateHybridAuto(ctx context.Context, prompt string, opts types.GenerationOptions, policy Policy, generationID string) (*Result, error) {
	if e.local == nil {
		e.logger.Debug("No local provider configured, routing hybrid request to cloud")
		return e.generateCloud(ctx, prompt, opts, policy, generationID, TargetHybridFallback, HandoffNone)
	}

	if policy.MaxLocalLatencyMs == 0 {
		localResult, err := e.local.Generate(ctx, prompt, opts)
		if err != nil {
			e.logger.WithError(err).Warn("On-device generation failed, falling back to cloud")
			return e.generateCloud(ctx, prompt, opts, policy, generationID, TargetHybridFallback, HandoffRollingWindowDegradation)
		}
		return e.finishHybridLocal(ctx, prompt, opts, policy, generationID, localResult)
	}

	start := time.Now()
	localCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type localOutcome struct {
		result *types.LocalResult
		err    error
	}
	outcome := make(chan localOutcome, 1)
	go func() {
		result, err := e.local.Generate(localCtx, prompt, opts)
		outcome <- localOutcome{result, err}
	}()

	timer := time.NewTimer(time.Duration(policy.MaxLocalLatencyMs) * time.Millisecond)
	defer timer.Stop()

	select {
	case out := <-outcome:
		if out.err != nil {
			e.logger.WithError(out.err).Warn("On-device generation failed, falling back to cloud")
			return e.generateCloud(ctx, prompt, opts, policy, generationID, TargetHybridFallback, HandoffRollingWindowDegradation)
		}
		return e.finishHybridLocal(ctx, prompt, opts, policy, generationID, out.result)

	case <-timer.C:
		cancel()
		elapsed := durationMs(time.Since(start))
		e.events.Publish(events.NewLatencyTimeoutEvent(opts.SessionID, policy.MaxLocalLatencyMs, elapsed))
		e.logger.WithFields(logrus.Fields{
			"max_latency_ms":    policy.MaxLocalLatencyMs,
			"actual_latency_ms": elapsed,
		}).Warn("On-device generation exceeded latency budget, falling back to cloud")
		result, err := e.generateCloud(ctx, prompt, opts, policy, generationID, TargetHybridFallback, HandoffFirstTokenLowConfidence)
		if err != nil {
			return nil, &types.LatencyTimeoutError{MaxMs: policy.MaxLocalLatencyMs, ActualMs: elapsed, Cause: err}
		}
		return result, nil

	case <-ctx.Done():
		cancel()
		return nil, ctx.Err()
	}
}

// finishHybridLocal applies the handoff-or-return branch after a completed
// on-device call in HybridAuto mode.
func (e *Engine) finishHybridLocal(ctx context.Context, prompt string, opts types.GenerationOptions, policy Policy, generationID string, localResult *types.LocalResult) (*Result, error) {
	confidence := localResult.ConfidenceOrDefault()

	if localResult.HandoffRequested || confidence < policy.ConfidenceThreshold {
		e.logger.WithFields(logrus.Fields{
			"confidence":        confidence,
			"threshold":         policy.ConfidenceThreshold,
			"handoff_requested": localResult.HandoffRequested,
		}).Info("On-device result below confidence threshold, handing off to cloud")

		result, err := e.generateCloud(ctx, prompt, opts, policy, generationID, TargetHybridFallback, HandoffRollingWindowDegradation)
		if err != nil {
			return nil, err
		}
		result.Decision.OnDeviceConfidence = confidence
		return result, nil
	}

	return &Result{
		Text:         localResult.Text,
		OutputTokens: localResult.TokensUsed,
		Decision: Decision{
			ExecutionTarget:    TargetOnDevice,
			Policy:             policy,
			OnDeviceConfidence: confidence,
			HandoffReason:      HandoffNone,
		},
	}, nil
}

func (e *Engine) publishDecision(session, generationID string, result *Result) {
	d := result.Decision
	e.events.Publish(events.NewRoutingEvent(
		session,
		generationID,
		d.ExecutionTarget.String(),
		d.Policy.Mode.String(),
		d.CloudHandoffTriggered,
		d.HandoffReason.String(),
		d.OnDeviceConfidence,
		d.CloudProviderID,
		d.CloudModel,
		durationMs(result.Latency)))
}

func durationMs(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000.0
}
