// Package telemetry implements the best-effort HTTP sink that ships SDK
// events to a remote collector.
package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/runanywhere/runanywhere-go/events"
)

// Config holds telemetry sink configuration.
type Config struct {
	Endpoint string        `yaml:"endpoint"`
	APIKey   string        `yaml:"api_key"`
	Timeout  time.Duration `yaml:"timeout"`

	// EventsPerSecond throttles deliveries; events over the rate are dropped.
	// 0 means unthrottled.
	EventsPerSecond float64 `yaml:"events_per_second"`
	Burst           int     `yaml:"burst"`
}

// HTTPSink posts serialized events to a collector endpoint. Deliveries are
// best-effort: rate-limited, bounded by a client timeout, and every failure
// is returned to the event router which logs and swallows it.
type HTTPSink struct {
	config  Config
	client  *http.Client
	limiter *rate.Limiter
	logger  *logrus.Logger
}

// NewHTTPSink creates a telemetry sink for the given collector endpoint.
func NewHTTPSink(config Config, logger *logrus.Logger) *HTTPSink {
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}

	var limiter *rate.Limiter
	if config.EventsPerSecond > 0 {
		burst := config.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(config.EventsPerSecond), burst)
	}

	return &HTTPSink{
		config:  config,
		client:  &http.Client{Timeout: config.Timeout},
		limiter: limiter,
		logger:  logger,
	}
}

// envelope is the wire shape of one event. Properties are key-sorted so the
// serialized form is deterministic.
type envelope struct {
	ID          string     `json:"id"`
	Type        string     `json:"type"`
	Category    string     `json:"category"`
	Timestamp   string     `json:"timestamp"`
	SessionID   string     `json:"session_id,omitempty"`
	Destination string     `json:"destination"`
	Properties  []property `json:"properties"`
}

type property struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Deliver serializes the event and posts it to the collector. It implements
// events.TelemetrySink.
func (s *HTTPSink) Deliver(event events.Event) error {
	if s.limiter != nil && !s.limiter.Allow() {
		return fmt.Errorf("telemetry rate limit exceeded, dropping %s", event.EventType())
	}

	body, err := json.Marshal(serialize(event))
	if err != nil {
		return fmt.Errorf("failed to serialize event: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build telemetry request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.config.APIKey != "" {
		req.Header.Set("X-API-Key", s.config.APIKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("telemetry request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telemetry collector returned status %d", resp.StatusCode)
	}

	s.logger.WithFields(logrus.Fields{
		"event_type": event.EventType(),
		"event_id":   event.EventID(),
	}).Debug("Telemetry event delivered")

	return nil
}

func serialize(event events.Event) envelope {
	props := event.Properties()
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	flattened := make([]property, 0, len(keys))
	for _, k := range keys {
		flattened = append(flattened, property{Key: k, Value: props[k]})
	}

	return envelope{
		ID:          event.EventID(),
		Type:        event.EventType(),
		Category:    string(event.Category()),
		Timestamp:   event.OccurredAt().UTC().Format(time.RFC3339Nano),
		SessionID:   event.SessionID(),
		Destination: event.Destination().String(),
		Properties:  flattened,
	}
}

var _ events.TelemetrySink = (*HTTPSink)(nil)
