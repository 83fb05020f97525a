package events

import (
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureSink struct {
	mu     sync.Mutex
	events []Event
	ch     chan Event
}

func newCaptureSink() *captureSink {
	return &captureSink{ch: make(chan Event, 16)}
}

func (s *captureSink) Deliver(event Event) error {
	s.mu.Lock()
	s.events = append(s.events, event)
	s.mu.Unlock()
	s.ch <- event
	return nil
}

func (s *captureSink) waitForEvent(t *testing.T) Event {
	t.Helper()
	select {
	case ev := <-s.ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for telemetry delivery")
		return nil
	}
}

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	return logger
}

func TestRouter_PublishToSubscribers(t *testing.T) {
	router := NewRouter(nil, newTestLogger())
	defer router.Close()

	var received []Event
	router.Subscribe(func(ev Event) {
		received = append(received, ev)
	})

	event := NewRoutingEvent("session-1", "gen-1", "on_device", "hybrid_auto", false, "none", 0.9, "", "", 12.5)
	router.Publish(event)

	require.Len(t, received, 1)
	assert.Equal(t, "routing_decision", received[0].EventType())
	assert.Equal(t, "session-1", received[0].SessionID())
}

func TestRouter_DestinationFiltering(t *testing.T) {
	sink := newCaptureSink()
	router := NewRouter(sink, newTestLogger())
	defer router.Close()

	var public []Event
	router.Subscribe(func(ev Event) {
		public = append(public, ev)
	})

	// AnalyticsOnly must skip subscribers but reach the sink.
	router.Publish(NewProviderFailoverEvent("s", "openai", "anthropic", 3, true, "timeout"))
	delivered := sink.waitForEvent(t)
	assert.Equal(t, "provider_failover", delivered.EventType())
	assert.Empty(t, public)

	// DestinationAll reaches both.
	router.Publish(NewCloudCostEvent("s", "gen-1", "openai", "gpt-4o-mini", 100, 50, 0.01, 0.01))
	delivered = sink.waitForEvent(t)
	assert.Equal(t, "cloud_cost", delivered.EventType())
	require.Len(t, public, 1)
	assert.Equal(t, "cloud_cost", public[0].EventType())
}

// stubPublicEvent exercises the PublicOnly destination, which no built-in
// event kind carries.
type stubPublicEvent struct {
	id      string
	session string
}

func (e stubPublicEvent) EventID() string               { return e.id }
func (e stubPublicEvent) EventType() string             { return "public_notice" }
func (e stubPublicEvent) Category() Category            { return CategoryRouting }
func (e stubPublicEvent) OccurredAt() time.Time         { return time.Now() }
func (e stubPublicEvent) SessionID() string             { return e.session }
func (e stubPublicEvent) Destination() Destination      { return DestinationPublicOnly }
func (e stubPublicEvent) Properties() map[string]string { return map[string]string{"kind": "stub"} }

func TestRouter_PublicOnlyNeverReachesSink(t *testing.T) {
	sink := newCaptureSink()
	router := NewRouter(sink, newTestLogger())
	defer router.Close()

	var public []Event
	router.Subscribe(func(ev Event) {
		public = append(public, ev)
	})

	router.Publish(stubPublicEvent{id: "ev-1", session: "s"})
	require.Len(t, public, 1)
	assert.Equal(t, "public_notice", public[0].EventType())

	// Flush the queue behind an event the sink does accept; if the
	// PublicOnly event were enqueued it would arrive first.
	router.Publish(NewLatencyTimeoutEvent("s", 100, 250.0))
	delivered := sink.waitForEvent(t)
	assert.Equal(t, "latency_timeout", delivered.EventType())

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Len(t, sink.events, 1)
	assert.Equal(t, "latency_timeout", sink.events[0].EventType())
}

func TestRouter_SubscriberPanicIsolation(t *testing.T) {
	router := NewRouter(nil, newTestLogger())
	defer router.Close()

	var survived bool
	router.Subscribe(func(Event) { panic("subscriber bug") })
	router.Subscribe(func(Event) { survived = true })

	assert.NotPanics(t, func() {
		router.Publish(NewLatencyTimeoutEvent("s", 100, 250.0))
	})
	assert.True(t, survived, "second subscriber should still run after first panics")
}

func TestRouter_Unsubscribe(t *testing.T) {
	router := NewRouter(nil, newTestLogger())
	defer router.Close()

	var count int
	id := router.Subscribe(func(Event) { count++ })

	router.Publish(NewRoutingEvent("s", "gen-1", "cloud", "always_cloud", false, "none", 1.0, "openai", "gpt-4o-mini", 5))
	router.Unsubscribe(id)
	router.Publish(NewRoutingEvent("s", "gen-1", "cloud", "always_cloud", false, "none", 1.0, "openai", "gpt-4o-mini", 5))

	assert.Equal(t, 1, count)
}

func TestRouter_Reset(t *testing.T) {
	router := NewRouter(nil, newTestLogger())
	defer router.Close()

	var count int
	router.Subscribe(func(Event) { count++ })
	router.Subscribe(func(Event) { count++ })
	router.Reset()

	router.Publish(NewRoutingEvent("s", "gen-1", "on_device", "always_local", false, "none", 1.0, "", "", 5))
	assert.Zero(t, count)
}

func TestRouter_NilSinkDropsAnalytics(t *testing.T) {
	router := NewRouter(nil, newTestLogger())
	defer router.Close()

	assert.NotPanics(t, func() {
		router.Publish(NewGenerationCompletedEvent("s", "gen-1", "cloud", 10, 20, 150.0))
	})
}

func TestRouter_PublishNilEvent(t *testing.T) {
	router := NewRouter(nil, newTestLogger())
	defer router.Close()

	assert.NotPanics(t, func() { router.Publish(nil) })
}

func TestEventKinds_Contract(t *testing.T) {
	tests := []struct {
		name        string
		event       Event
		eventType   string
		category    Category
		destination Destination
	}{
		{"routing", NewRoutingEvent("s", "gen-1", "cloud", "hybrid_auto", true, "rolling_window_degradation", 0.4, "openai", "gpt-4o-mini", 20), "routing_decision", CategoryRouting, DestinationAll},
		{"cost", NewCloudCostEvent("s", "gen-1", "openai", "gpt-4o-mini", 100, 50, 0.01, 0.05), "cloud_cost", CategoryCost, DestinationAll},
		{"failover", NewProviderFailoverEvent("s", "a", "b", 2, false, "server error"), "provider_failover", CategoryProvider, DestinationAnalyticsOnly},
		{"latency", NewLatencyTimeoutEvent("s", 200, 312.4), "latency_timeout", CategoryRouting, DestinationAll},
		{"completed", NewGenerationCompletedEvent("s", "gen", "on_device", 10, 20, 99.5), "generation_completed", CategoryGeneration, DestinationAnalyticsOnly},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotEmpty(t, tt.event.EventID())
			assert.False(t, tt.event.OccurredAt().IsZero())
			assert.Equal(t, "s", tt.event.SessionID())
			assert.Equal(t, tt.eventType, tt.event.EventType())
			assert.Equal(t, tt.category, tt.event.Category())
			assert.Equal(t, tt.destination, tt.event.Destination())
			assert.NotEmpty(t, tt.event.Properties())
		})
	}
}

func TestRoutingEvent_Properties(t *testing.T) {
	event := NewRoutingEvent("s", "gen-7", "hybrid_fallback", "hybrid_auto", true, "first_token_low_confidence", 0.35, "anthropic", "claude-3-5-sonnet-20241022", 742.25)

	props := event.Properties()
	assert.Equal(t, "gen-7", props["generation_id"])
	assert.Equal(t, "hybrid_fallback", props["target"])
	assert.Equal(t, "true", props["handoff_triggered"])
	assert.Equal(t, "first_token_low_confidence", props["handoff_reason"])
	assert.Equal(t, "0.35", props["confidence"])
	assert.Equal(t, "742.25", props["latency_ms"])
}
