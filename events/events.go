package events

import "time"

// Destination controls which sinks receive an event.
type Destination int

const (
	// DestinationAll delivers to public subscribers and the telemetry sink.
	DestinationAll Destination = iota
	// DestinationPublicOnly delivers to public subscribers only.
	DestinationPublicOnly
	// DestinationAnalyticsOnly delivers to the telemetry sink only.
	DestinationAnalyticsOnly
)

func (d Destination) String() string {
	switch d {
	case DestinationAll:
		return "all"
	case DestinationPublicOnly:
		return "public_only"
	case DestinationAnalyticsOnly:
		return "analytics_only"
	default:
		return "unknown"
	}
}

// Category groups event kinds for downstream filtering.
type Category string

const (
	CategoryRouting    Category = "routing"
	CategoryCost       Category = "cost"
	CategoryProvider   Category = "provider"
	CategoryGeneration Category = "generation"
)

// Event is the contract every SDK event kind implements. Events are value
// types: constructed once per occurrence and never mutated afterwards.
type Event interface {
	EventID() string
	EventType() string
	Category() Category
	OccurredAt() time.Time
	SessionID() string
	Destination() Destination

	// Properties returns the event payload flattened to strings for
	// serialization. Sinks that need deterministic output sort the keys.
	Properties() map[string]string
}
