// Package routing implements the decision engine that executes generation
// requests on-device, in the cloud, or hybrid with automatic fallback.
package routing

import "fmt"

// Mode selects how requests are routed between on-device and cloud.
type Mode int

const (
	// ModeAlwaysLocal never routes to cloud.
	ModeAlwaysLocal Mode = iota
	// ModeAlwaysCloud skips on-device inference entirely.
	ModeAlwaysCloud
	// ModeHybridAuto runs on-device first and falls back to cloud on low
	// confidence, latency timeout, or local error.
	ModeHybridAuto
	// ModeHybridManual runs on-device and surfaces the handoff signal to the
	// caller instead of auto-retrying to cloud.
	ModeHybridManual
)

func (m Mode) String() string {
	switch m {
	case ModeAlwaysLocal:
		return "always_local"
	case ModeAlwaysCloud:
		return "always_cloud"
	case ModeHybridAuto:
		return "hybrid_auto"
	case ModeHybridManual:
		return "hybrid_manual"
	default:
		return "unknown"
	}
}

// ParseMode converts a mode name back to its Mode value.
func ParseMode(name string) (Mode, error) {
	switch name {
	case "always_local":
		return ModeAlwaysLocal, nil
	case "always_cloud":
		return ModeAlwaysCloud, nil
	case "hybrid_auto":
		return ModeHybridAuto, nil
	case "hybrid_manual":
		return ModeHybridManual, nil
	default:
		return 0, fmt.Errorf("unknown routing mode: %q", name)
	}
}

// ExecutionTarget records where inference actually ran.
type ExecutionTarget int

const (
	TargetOnDevice ExecutionTarget = iota
	TargetCloud
	TargetHybridFallback
)

func (t ExecutionTarget) String() string {
	switch t {
	case TargetOnDevice:
		return "on_device"
	case TargetCloud:
		return "cloud"
	case TargetHybridFallback:
		return "hybrid_fallback"
	default:
		return "unknown"
	}
}

// HandoffReason records why execution moved from on-device to cloud.
type HandoffReason int

const (
	HandoffNone HandoffReason = iota
	HandoffFirstTokenLowConfidence
	HandoffRollingWindowDegradation
)

func (r HandoffReason) String() string {
	switch r {
	case HandoffNone:
		return "none"
	case HandoffFirstTokenLowConfidence:
		return "first_token_low_confidence"
	case HandoffRollingWindowDegradation:
		return "rolling_window_degradation"
	default:
		return "unknown"
	}
}

// Policy controls routing for one request. Policies are immutable values:
// each request captures its own copy, so swapping the engine default between
// requests never affects in-flight ones.
type Policy struct {
	Mode Mode `yaml:"-"`

	// ConfidenceThreshold below which hybrid modes hand off to cloud
	// (0.0 - 1.0). Lower values tolerate more on-device uncertainty.
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`

	// MaxLocalLatencyMs bounds the on-device call in HybridAuto mode.
	// 0 means unbounded.
	MaxLocalLatencyMs uint `yaml:"max_local_latency_ms"`

	// CostCapUSD caps cumulative cloud spend. 0 means unlimited.
	CostCapUSD float64 `yaml:"cost_cap_usd"`

	// PreferStreaming indicates cloud calls should stream when the caller
	// supports it.
	PreferStreaming bool `yaml:"prefer_streaming"`
}

// DefaultPolicy is the safe default: hybrid-manual with a 0.7 confidence
// threshold, so the application decides what to do with a handoff signal.
func DefaultPolicy() Policy {
	return Policy{
		Mode:                ModeHybridManual,
		ConfidenceThreshold: 0.7,
		MaxLocalLatencyMs:   0,
		CostCapUSD:          0,
		PreferStreaming:     true,
	}
}

// Validate checks policy field ranges.
func (p Policy) Validate() error {
	if p.Mode < ModeAlwaysLocal || p.Mode > ModeHybridManual {
		return fmt.Errorf("invalid routing mode: %d", p.Mode)
	}
	if p.ConfidenceThreshold < 0 || p.ConfidenceThreshold > 1 {
		return fmt.Errorf("invalid confidence threshold %.3f: must be 0.0-1.0", p.ConfidenceThreshold)
	}
	if p.CostCapUSD < 0 {
		return fmt.Errorf("invalid cost cap %.4f: must be >= 0", p.CostCapUSD)
	}
	return nil
}
