package routing

import "time"

// Decision describes where one request executed and why. Produced exactly
// once per request and never mutated afterwards.
type Decision struct {
	// ExecutionTarget is where inference actually ran.
	ExecutionTarget ExecutionTarget `json:"execution_target"`

	// Policy is a copy of the policy the request was routed under.
	Policy Policy `json:"policy"`

	// OnDeviceConfidence is the local backend's self-reported confidence,
	// 1.0 when not measured or when execution never touched the device.
	OnDeviceConfidence float64 `json:"on_device_confidence"`

	// CloudHandoffTriggered is true when execution started on-device and
	// moved to cloud.
	CloudHandoffTriggered bool `json:"cloud_handoff_triggered"`

	// HandoffReason explains the handoff; HandoffNone when no handoff
	// happened.
	HandoffReason HandoffReason `json:"handoff_reason"`

	// CloudProviderID and CloudModel are set iff cloud was used.
	CloudProviderID string `json:"cloud_provider_id,omitempty"`
	CloudModel      string `json:"cloud_model,omitempty"`
}

// Result is what the engine returns to the caller: the generated text plus
// the routing decision that produced it.
type Result struct {
	Text         string
	InputTokens  int
	OutputTokens int

	Decision Decision
	Latency  time.Duration

	// HandoffRequested surfaces the local backend's escalation signal in
	// AlwaysLocal/HybridManual modes so the caller can decide.
	HandoffRequested bool
	HandoffDetail    string
}
