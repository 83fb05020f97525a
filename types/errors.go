package types

import "fmt"

// BudgetExceededError is returned when a cloud call would push cumulative
// spend past the policy's cost cap. The request fails fast; no provider is
// contacted.
type BudgetExceededError struct {
	CurrentUSD float64
	CapUSD     float64
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("budget exceeded: current spend $%.4f, cost cap $%.4f", e.CurrentUSD, e.CapUSD)
}

// NoProviderAvailableError is returned when every entry in the failover chain
// was exhausted or skipped. LastErr carries the last observed provider error,
// if any.
type NoProviderAvailableError struct {
	LastErr error
}

func (e *NoProviderAvailableError) Error() string {
	if e.LastErr != nil {
		return fmt.Sprintf("no cloud provider available: last error: %v", e.LastErr)
	}
	return "no cloud provider available"
}

func (e *NoProviderAvailableError) Unwrap() error {
	return e.LastErr
}

// LatencyTimeoutError records that an on-device call exceeded the policy's
// latency budget. It drives cloud fallback and is only surfaced to the caller
// when the fallback also fails; Cause then carries the fallback error.
type LatencyTimeoutError struct {
	MaxMs    uint
	ActualMs float64
	Cause    error
}

func (e *LatencyTimeoutError) Error() string {
	msg := fmt.Sprintf("local generation exceeded latency budget: %.0fms elapsed, %dms allowed", e.ActualMs, e.MaxMs)
	if e.Cause != nil {
		msg += fmt.Sprintf("; cloud fallback failed: %v", e.Cause)
	}
	return msg
}

func (e *LatencyTimeoutError) Unwrap() error {
	return e.Cause
}
