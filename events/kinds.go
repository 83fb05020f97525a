package events

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// RoutingEvent describes the final routing decision for one request.
type RoutingEvent struct {
	ID      string
	Time    time.Time
	Session string

	GenerationID     string
	Target           string
	Mode             string
	HandoffTriggered bool
	HandoffReason    string
	Confidence       float64
	Provider         string
	Model            string
	LatencyMs        float64
}

// NewRoutingEvent builds a RoutingEvent with a fresh id and timestamp.
func NewRoutingEvent(session, generationID, target, mode string, handoffTriggered bool, handoffReason string, confidence float64, provider, model string, latencyMs float64) RoutingEvent {
	return RoutingEvent{
		ID:               uuid.NewString(),
		Time:             time.Now(),
		Session:          session,
		GenerationID:     generationID,
		Target:           target,
		Mode:             mode,
		HandoffTriggered: handoffTriggered,
		HandoffReason:    handoffReason,
		Confidence:       confidence,
		Provider:         provider,
		Model:            model,
		LatencyMs:        latencyMs,
	}
}

func (e RoutingEvent) EventID() string          { return e.ID }
func (e RoutingEvent) EventType() string        { return "routing_decision" }
func (e RoutingEvent) Category() Category       { return CategoryRouting }
func (e RoutingEvent) OccurredAt() time.Time    { return e.Time }
func (e RoutingEvent) SessionID() string        { return e.Session }
func (e RoutingEvent) Destination() Destination { return DestinationAll }

func (e RoutingEvent) Properties() map[string]string {
	return map[string]string{
		"generation_id":     e.GenerationID,
		"target":            e.Target,
		"mode":              e.Mode,
		"handoff_triggered": strconv.FormatBool(e.HandoffTriggered),
		"handoff_reason":    e.HandoffReason,
		"confidence":        formatFloat(e.Confidence),
		"provider":          e.Provider,
		"model":             e.Model,
		"latency_ms":        formatFloat(e.LatencyMs),
	}
}

// CloudCostEvent records the spend of one successful cloud generation. It is
// published only after the cost tracker accepted the record.
type CloudCostEvent struct {
	ID      string
	Time    time.Time
	Session string

	GenerationID string
	Provider     string
	Model        string
	InputTokens  int
	OutputTokens int
	CostUSD      float64
	TotalCostUSD float64
}

// NewCloudCostEvent builds a CloudCostEvent with a fresh id and timestamp.
func NewCloudCostEvent(session, generationID, provider, model string, inputTokens, outputTokens int, costUSD, totalCostUSD float64) CloudCostEvent {
	return CloudCostEvent{
		ID:           uuid.NewString(),
		Time:         time.Now(),
		Session:      session,
		GenerationID: generationID,
		Provider:     provider,
		Model:        model,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		CostUSD:      costUSD,
		TotalCostUSD: totalCostUSD,
	}
}

func (e CloudCostEvent) EventID() string          { return e.ID }
func (e CloudCostEvent) EventType() string        { return "cloud_cost" }
func (e CloudCostEvent) Category() Category       { return CategoryCost }
func (e CloudCostEvent) OccurredAt() time.Time    { return e.Time }
func (e CloudCostEvent) SessionID() string        { return e.Session }
func (e CloudCostEvent) Destination() Destination { return DestinationAll }

func (e CloudCostEvent) Properties() map[string]string {
	return map[string]string{
		"generation_id":  e.GenerationID,
		"provider":       e.Provider,
		"model":          e.Model,
		"input_tokens":   strconv.Itoa(e.InputTokens),
		"output_tokens":  strconv.Itoa(e.OutputTokens),
		"cost_usd":       formatFloat(e.CostUSD),
		"total_cost_usd": formatFloat(e.TotalCostUSD),
	}
}

// ProviderFailoverEvent records that the failover chain moved past a failed
// provider.
type ProviderFailoverEvent struct {
	ID      string
	Time    time.Time
	Session string

	FailedProvider      string
	NextProvider        string
	ConsecutiveFailures int
	CircuitOpened       bool
	Reason              string
}

// NewProviderFailoverEvent builds a ProviderFailoverEvent with a fresh id and
// timestamp.
func NewProviderFailoverEvent(session, failedProvider, nextProvider string, consecutiveFailures int, circuitOpened bool, reason string) ProviderFailoverEvent {
	return ProviderFailoverEvent{
		ID:                  uuid.NewString(),
		Time:                time.Now(),
		Session:             session,
		FailedProvider:      failedProvider,
		NextProvider:        nextProvider,
		ConsecutiveFailures: consecutiveFailures,
		CircuitOpened:       circuitOpened,
		Reason:              reason,
	}
}

func (e ProviderFailoverEvent) EventID() string          { return e.ID }
func (e ProviderFailoverEvent) EventType() string        { return "provider_failover" }
func (e ProviderFailoverEvent) Category() Category       { return CategoryProvider }
func (e ProviderFailoverEvent) OccurredAt() time.Time    { return e.Time }
func (e ProviderFailoverEvent) SessionID() string        { return e.Session }
func (e ProviderFailoverEvent) Destination() Destination { return DestinationAnalyticsOnly }

func (e ProviderFailoverEvent) Properties() map[string]string {
	return map[string]string{
		"failed_provider":      e.FailedProvider,
		"next_provider":        e.NextProvider,
		"consecutive_failures": strconv.Itoa(e.ConsecutiveFailures),
		"circuit_opened":       strconv.FormatBool(e.CircuitOpened),
		"reason":               e.Reason,
	}
}

// LatencyTimeoutEvent records that an on-device call lost the race against
// the policy's latency budget and the request fell back to cloud.
type LatencyTimeoutEvent struct {
	ID      string
	Time    time.Time
	Session string

	MaxMs    uint
	ActualMs float64
}

// NewLatencyTimeoutEvent builds a LatencyTimeoutEvent with a fresh id and
// timestamp.
func NewLatencyTimeoutEvent(session string, maxMs uint, actualMs float64) LatencyTimeoutEvent {
	return LatencyTimeoutEvent{
		ID:       uuid.NewString(),
		Time:     time.Now(),
		Session:  session,
		MaxMs:    maxMs,
		ActualMs: actualMs,
	}
}

func (e LatencyTimeoutEvent) EventID() string          { return e.ID }
func (e LatencyTimeoutEvent) EventType() string        { return "latency_timeout" }
func (e LatencyTimeoutEvent) Category() Category       { return CategoryRouting }
func (e LatencyTimeoutEvent) OccurredAt() time.Time    { return e.Time }
func (e LatencyTimeoutEvent) SessionID() string        { return e.Session }
func (e LatencyTimeoutEvent) Destination() Destination { return DestinationAll }

func (e LatencyTimeoutEvent) Properties() map[string]string {
	return map[string]string{
		"max_latency_ms":    strconv.FormatUint(uint64(e.MaxMs), 10),
		"actual_latency_ms": formatFloat(e.ActualMs),
	}
}

// GenerationCompletedEvent records the lifecycle completion of a generation
// for analytics.
type GenerationCompletedEvent struct {
	ID      string
	Time    time.Time
	Session string

	GenerationID string
	Target       string
	InputTokens  int
	OutputTokens int
	DurationMs   float64
}

// NewGenerationCompletedEvent builds a GenerationCompletedEvent with a fresh
// id and timestamp.
func NewGenerationCompletedEvent(session, generationID, target string, inputTokens, outputTokens int, durationMs float64) GenerationCompletedEvent {
	return GenerationCompletedEvent{
		ID:           uuid.NewString(),
		Time:         time.Now(),
		Session:      session,
		GenerationID: generationID,
		Target:       target,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		DurationMs:   durationMs,
	}
}

func (e GenerationCompletedEvent) EventID() string          { return e.ID }
func (e GenerationCompletedEvent) EventType() string        { return "generation_completed" }
func (e GenerationCompletedEvent) Category() Category       { return CategoryGeneration }
func (e GenerationCompletedEvent) OccurredAt() time.Time    { return e.Time }
func (e GenerationCompletedEvent) SessionID() string        { return e.Session }
func (e GenerationCompletedEvent) Destination() Destination { return DestinationAnalyticsOnly }

func (e GenerationCompletedEvent) Properties() map[string]string {
	return map[string]string{
		"generation_id": e.GenerationID,
		"target":        e.Target,
		"input_tokens":  strconv.Itoa(e.InputTokens),
		"output_tokens": strconv.Itoa(e.OutputTokens),
		"duration_ms":   formatFloat(e.DurationMs),
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
