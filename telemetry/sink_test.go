package telemetry

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runanywhere/runanywhere-go/events"
)

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	return logger
}

func TestHTTPSink_Deliver(t *testing.T) {
	var gotBody []byte
	var gotAPIKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAPIKey = r.Header.Get("X-API-Key")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	sink := NewHTTPSink(Config{
		Endpoint: server.URL,
		APIKey:   "secret",
		Timeout:  5 * time.Second,
	}, newTestLogger())

	event := events.NewCloudCostEvent("session-1", "gen-1", "openai", "gpt-4o-mini", 100, 50, 0.01, 0.05)
	require.NoError(t, sink.Deliver(event))

	assert.Equal(t, "secret", gotAPIKey)

	var env struct {
		ID          string `json:"id"`
		Type        string `json:"type"`
		Category    string `json:"category"`
		Timestamp   string `json:"timestamp"`
		SessionID   string `json:"session_id"`
		Destination string `json:"destination"`
		Properties  []struct {
			Key   string `json:"key"`
			Value string `json:"value"`
		} `json:"properties"`
	}
	require.NoError(t, json.Unmarshal(gotBody, &env))

	assert.Equal(t, event.EventID(), env.ID)
	assert.Equal(t, "cloud_cost", env.Type)
	assert.Equal(t, "cost", env.Category)
	assert.Equal(t, "session-1", env.SessionID)
	assert.Equal(t, "all", env.Destination)

	_, err := time.Parse(time.RFC3339Nano, env.Timestamp)
	assert.NoError(t, err)

	// Properties arrive key-sorted.
	require.NotEmpty(t, env.Properties)
	for i := 1; i < len(env.Properties); i++ {
		assert.Less(t, env.Properties[i-1].Key, env.Properties[i].Key)
	}
}

func TestHTTPSink_CollectorError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	sink := NewHTTPSink(Config{Endpoint: server.URL}, newTestLogger())

	err := sink.Deliver(events.NewLatencyTimeoutEvent("s", 100, 200))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestHTTPSink_UnreachableCollector(t *testing.T) {
	sink := NewHTTPSink(Config{
		Endpoint: "http://127.0.0.1:1",
		Timeout:  500 * time.Millisecond,
	}, newTestLogger())

	err := sink.Deliver(events.NewLatencyTimeoutEvent("s", 100, 200))
	assert.Error(t, err)
}

func TestHTTPSink_RateLimit(t *testing.T) {
	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sink := NewHTTPSink(Config{
		Endpoint:        server.URL,
		EventsPerSecond: 0.001,
		Burst:           1,
	}, newTestLogger())

	require.NoError(t, sink.Deliver(events.NewLatencyTimeoutEvent("s", 100, 200)))

	err := sink.Deliver(events.NewLatencyTimeoutEvent("s", 100, 200))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit")
	assert.Equal(t, 1, requests)
}
