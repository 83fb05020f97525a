// Package costs tracks cumulative cloud spend for the process lifetime.
package costs

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Summary is an immutable snapshot of accumulated spend. Maps are copies;
// callers can hold and mutate them freely.
type Summary struct {
	TotalCostUSD       float64
	TotalInputTokens   int64
	TotalOutputTokens  int64
	TotalRequests      int64
	RequestsByProvider map[string]int64
	CostByProvider     map[string]float64
}

// Tracker accumulates per-provider spend and token counts. All mutation is
// serialized internally; readers get snapshots and never hold the lock beyond
// the copy. State is process-lifetime only.
type Tracker struct {
	mu sync.Mutex

	totalCostUSD       float64
	totalInputTokens   int64
	totalOutputTokens  int64
	totalRequests      int64
	requestsByProvider map[string]int64
	costByProvider     map[string]float64

	logger *logrus.Logger
}

// NewTracker creates an empty cost tracker.
func NewTracker(logger *logrus.Logger) *Tracker {
	return &Tracker{
		requestsByProvider: make(map[string]int64),
		costByProvider:     make(map[string]float64),
		logger:             logger,
	}
}

// RecordRequest adds one completed cloud request to the running totals.
func (t *Tracker) RecordRequest(providerID string, inputTokens, outputTokens int, costUSD float64) {
	t.mu.Lock()
	t.totalCostUSD += costUSD
	t.totalInputTokens += int64(inputTokens)
	t.totalOutputTokens += int64(outputTokens)
	t.totalRequests++
	t.requestsByProvider[providerID]++
	t.costByProvider[providerID] += costUSD
	total := t.totalCostUSD
	t.mu.Unlock()

	t.logger.WithFields(logrus.Fields{
		"provider":       providerID,
		"input_tokens":   inputTokens,
		"output_tokens":  outputTokens,
		"cost_usd":       costUSD,
		"total_cost_usd": total,
	}).Debug("Cloud request cost recorded")
}

// Summary returns a snapshot of the current totals.
func (t *Tracker) Summary() Summary {
	t.mu.Lock()
	defer t.mu.Unlock()

	requests := make(map[string]int64, len(t.requestsByProvider))
	for k, v := range t.requestsByProvider {
		requests[k] = v
	}
	costs := make(map[string]float64, len(t.costByProvider))
	for k, v := range t.costByProvider {
		costs[k] = v
	}

	return Summary{
		TotalCostUSD:       t.totalCostUSD,
		TotalInputTokens:   t.totalInputTokens,
		TotalOutputTokens:  t.totalOutputTokens,
		TotalRequests:      t.totalRequests,
		RequestsByProvider: requests,
		CostByProvider:     costs,
	}
}

// TotalCostUSD returns the current cumulative spend.
func (t *Tracker) TotalCostUSD() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.totalCostUSD
}

// WouldExceedBudget reports whether adding costUSD to the current total would
// push spend past budgetUSD. A budget of zero or less means unlimited.
func (t *Tracker) WouldExceedBudget(costUSD, budgetUSD float64) bool {
	if budgetUSD <= 0 {
		return false
	}
	return t.TotalCostUSD()+costUSD > budgetUSD
}

// Reset clears all counters to zero.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.totalCostUSD = 0
	t.totalInputTokens = 0
	t.totalOutputTokens = 0
	t.totalRequests = 0
	t.requestsByProvider = make(map[string]int64)
	t.costByProvider = make(map[string]float64)
}
