package costs

import (
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func newTestTracker() *Tracker {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel) // Reduce noise during tests
	return NewTracker(logger)
}

func TestTracker_RecordRequest(t *testing.T) {
	tracker := newTestTracker()

	tracker.RecordRequest("openai", 1000, 500, 0.25)
	tracker.RecordRequest("openai", 2000, 1000, 0.50)
	tracker.RecordRequest("anthropic", 500, 250, 0.125)

	summary := tracker.Summary()
	assert.Equal(t, 0.875, summary.TotalCostUSD)
	assert.Equal(t, int64(3500), summary.TotalInputTokens)
	assert.Equal(t, int64(1750), summary.TotalOutputTokens)
	assert.Equal(t, int64(3), summary.TotalRequests)
	assert.Equal(t, int64(2), summary.RequestsByProvider["openai"])
	assert.Equal(t, int64(1), summary.RequestsByProvider["anthropic"])
	assert.Equal(t, 0.75, summary.CostByProvider["openai"])
	assert.Equal(t, 0.125, summary.CostByProvider["anthropic"])
}

func TestTracker_SummaryIsSnapshot(t *testing.T) {
	tracker := newTestTracker()
	tracker.RecordRequest("openai", 100, 50, 0.25)

	summary := tracker.Summary()
	summary.RequestsByProvider["openai"] = 99
	summary.CostByProvider["openai"] = 99.0

	fresh := tracker.Summary()
	assert.Equal(t, int64(1), fresh.RequestsByProvider["openai"])
	assert.Equal(t, 0.25, fresh.CostByProvider["openai"])
}

func TestTracker_WouldExceedBudget(t *testing.T) {
	tracker := newTestTracker()
	tracker.RecordRequest("openai", 1000, 500, 0.75)

	tests := []struct {
		name   string
		cost   float64
		budget float64
		exceed bool
	}{
		{"under budget", 0.125, 1.0, false},
		{"exactly at budget", 0.25, 1.0, false},
		{"over budget", 0.5, 1.0, true},
		{"zero budget means unlimited", 100.0, 0, false},
		{"negative budget means unlimited", 100.0, -1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.exceed, tracker.WouldExceedBudget(tt.cost, tt.budget))
		})
	}
}

func TestTracker_Reset(t *testing.T) {
	tracker := newTestTracker()
	tracker.RecordRequest("openai", 1000, 500, 0.25)
	tracker.Reset()

	summary := tracker.Summary()
	assert.Zero(t, summary.TotalCostUSD)
	assert.Zero(t, summary.TotalRequests)
	assert.Empty(t, summary.RequestsByProvider)
	assert.Empty(t, summary.CostByProvider)
}

func TestTracker_ConcurrentRecording(t *testing.T) {
	tracker := newTestTracker()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				tracker.RecordRequest("openai", 10, 5, 0.25)
			}
		}()
	}
	wg.Wait()

	summary := tracker.Summary()
	assert.Equal(t, int64(1000), summary.TotalRequests)
	assert.Equal(t, 250.0, summary.TotalCostUSD)
	assert.Equal(t, int64(10000), summary.TotalInputTokens)
}
