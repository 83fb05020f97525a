package providers

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/runanywhere/runanywhere-go/events"
	"github.com/runanywhere/runanywhere-go/types"
)

const (
	// DefaultFailureThreshold is the consecutive-failure count that opens a
	// provider's circuit.
	DefaultFailureThreshold = 3

	// DefaultCooldown is how long an open circuit blocks attempts before the
	// entry is re-probed.
	DefaultCooldown = 60 * time.Second
)

// ChainConfig tunes circuit breaking for the failover chain. Zero values fall
// back to the defaults.
type ChainConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	Cooldown         time.Duration `yaml:"circuit_cooldown"`
}

// ProviderHealth is a read-only snapshot of one chain entry's circuit state.
type ProviderHealth struct {
	ProviderID          string
	DisplayName         string
	Priority            int
	ConsecutiveFailures int
	CircuitOpen         bool
	LastFailureTime     time.Time
}

// providerEntry tracks per-backend circuit breaker state. Mutated only under
// the chain mutex.
type providerEntry struct {
	provider            CloudProvider
	priority            int
	consecutiveFailures int
	lastFailureTime     time.Time
	circuitOpen         bool
}

// FailoverChain holds a priority-ordered list of cloud backends with
// independent circuit breakers. Generate tries backends in order, skipping
// open circuits; an open circuit whose cooldown elapsed gets one half-open
// trial and reopens on failure.
type FailoverChain struct {
	mu      sync.Mutex
	entries []*providerEntry

	failureThreshold int
	cooldown         time.Duration

	events *events.Router
	logger *logrus.Logger
}

// NewFailoverChain creates an empty chain. router may be nil; failover events
// are then not published.
func NewFailoverChain(config ChainConfig, router *events.Router, logger *logrus.Logger) *FailoverChain {
	threshold := config.FailureThreshold
	if threshold <= 0 {
		threshold = DefaultFailureThreshold
	}
	cooldown := config.Cooldown
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}

	return &FailoverChain{
		failureThreshold: threshold,
		cooldown:         cooldown,
		events:           router,
		logger:           logger,
	}
}

// AddProvider inserts a backend and re-sorts the chain by descending
// priority. Entries with equal priority keep insertion order.
func (c *FailoverChain) AddProvider(provider CloudProvider, priority int) {
	c.mu.Lock()
	c.entries = append(c.entries, &providerEntry{
		provider: provider,
		priority: priority,
	})
	sort.SliceStable(c.entries, func(i, j int) bool {
		return c.entries[i].priority > c.entries[j].priority
	})
	c.mu.Unlock()

	c.logger.WithFields(logrus.Fields{
		"provider": provider.ProviderID(),
		"priority": priority,
	}).Info("Cloud provider registered")
}

// RemoveProvider removes a backend by id. Returns false when the id is not in
// the chain.
func (c *FailoverChain) RemoveProvider(providerID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, entry := range c.entries {
		if entry.provider.ProviderID() == providerID {
			c.entries = append(c.entries[:i], c.entries[i+1:]...)
			return true
		}
	}
	return false
}

// Generate tries backends in priority order until one succeeds. Failed
// attempts update circuit state and the chain moves on; when every entry is
// exhausted or skipped the caller gets a NoProviderAvailableError carrying
// the last observed error.
func (c *FailoverChain) Generate(ctx context.Context, prompt string, opts types.GenerationOptions) (*types.CloudResult, error) {
	order := c.candidateIDs()
	var lastErr error

	for i, id := range order {
		provider, ok := c.beginAttempt(id)
		if !ok {
			continue
		}

		result, err := provider.Generate(ctx, prompt, opts)
		if err != nil {
			lastErr = err
			failures, opened := c.recordFailure(id)

			c.logger.WithError(err).WithFields(logrus.Fields{
				"provider":             id,
				"consecutive_failures": failures,
				"circuit_open":         opened,
			}).Warn("Cloud provider call failed")

			next := ""
			if i+1 < len(order) {
				next = order[i+1]
			}
			c.publishFailover(opts.SessionID, id, next, failures, opened, err)

			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}

		c.recordSuccess(id)
		return result, nil
	}

	return nil, &types.NoProviderAvailableError{LastErr: lastErr}
}

// GenerateWith routes to a single named backend, applying the same circuit
// bookkeeping as Generate but without trying other entries.
func (c *FailoverChain) GenerateWith(ctx context.Context, providerID, prompt string, opts types.GenerationOptions) (*types.CloudResult, error) {
	provider, ok := c.beginAttempt(providerID)
	if !ok {
		return nil, &types.NoProviderAvailableError{
			LastErr: fmt.Errorf("provider %s is unknown or circuit-open", providerID),
		}
	}

	result, err := provider.Generate(ctx, prompt, opts)
	if err != nil {
		failures, opened := c.recordFailure(providerID)
		c.logger.WithError(err).WithFields(logrus.Fields{
			"provider":             providerID,
			"consecutive_failures": failures,
			"circuit_open":         opened,
		}).Warn("Cloud provider call failed")
		c.publishFailover(opts.SessionID, providerID, "", failures, opened, err)
		return nil, &types.NoProviderAvailableError{LastErr: err}
	}

	c.recordSuccess(providerID)
	return result, nil
}

// GenerateStream selects the first backend that passes the circuit check and
// an IsAvailable probe, then wires its stream through unmodified. A partial
// stream cannot be retried, so there is no mid-stream failover. Returns the
// selected provider id and the model it resolved for the request.
func (c *FailoverChain) GenerateStream(ctx context.Context, prompt string, opts types.GenerationOptions) (<-chan types.StreamChunk, string, string, error) {
	order := c.candidateIDs()
	if opts.PreferredProvider != "" {
		order = []string{opts.PreferredProvider}
	}
	var lastErr error

	for i, id := range order {
		provider, ok := c.beginAttempt(id)
		if !ok {
			continue
		}

		if !provider.IsAvailable(ctx) {
			c.logger.WithField("provider", id).Debug("Skipping unavailable provider for streaming")
			continue
		}

		stream, err := provider.GenerateStream(ctx, prompt, opts)
		if err != nil {
			lastErr = err
			failures, opened := c.recordFailure(id)
			c.logger.WithError(err).WithFields(logrus.Fields{
				"provider":             id,
				"consecutive_failures": failures,
				"circuit_open":         opened,
			}).Warn("Cloud provider stream start failed")

			next := ""
			if i+1 < len(order) {
				next = order[i+1]
			}
			c.publishFailover(opts.SessionID, id, next, failures, opened, err)
			continue
		}

		c.recordSuccess(id)
		return stream, id, provider.ResolveModel(opts.Model), nil
	}

	return nil, "", "", &types.NoProviderAvailableError{LastErr: lastErr}
}

// EstimateCost asks the first currently-attemptable backend for a pre-call
// cost estimate. Honors opts.PreferredProvider.
func (c *FailoverChain) EstimateCost(prompt string, opts types.GenerationOptions) (float64, error) {
	c.mu.Lock()
	var provider CloudProvider
	for _, entry := range c.entries {
		id := entry.provider.ProviderID()
		if opts.PreferredProvider != "" && id != opts.PreferredProvider {
			continue
		}
		if entry.circuitOpen && time.Since(entry.lastFailureTime) < c.cooldown {
			continue
		}
		provider = entry.provider
		break
	}
	c.mu.Unlock()

	if provider == nil {
		return 0, &types.NoProviderAvailableError{}
	}
	return provider.EstimateCost(prompt, opts)
}

// HealthStatus returns a snapshot of every entry's circuit state in priority
// order. It never mutates chain state.
func (c *FailoverChain) HealthStatus() []ProviderHealth {
	c.mu.Lock()
	defer c.mu.Unlock()

	status := make([]ProviderHealth, 0, len(c.entries))
	for _, entry := range c.entries {
		status = append(status, ProviderHealth{
			ProviderID:          entry.provider.ProviderID(),
			DisplayName:         entry.provider.DisplayName(),
			Priority:            entry.priority,
			ConsecutiveFailures: entry.consecutiveFailures,
			CircuitOpen:         entry.circuitOpen,
			LastFailureTime:     entry.lastFailureTime,
		})
	}
	return status
}

// candidateIDs snapshots provider ids in priority order so iteration is safe
// against concurrent AddProvider/RemoveProvider.
func (c *FailoverChain) candidateIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids := make([]string, 0, len(c.entries))
	for _, entry := range c.entries {
		ids = append(ids, entry.provider.ProviderID())
	}
	return ids
}

// beginAttempt decides whether a backend may be tried right now. An open
// circuit past its cooldown is optimistically closed for one half-open trial;
// a failed trial reopens it through recordFailure.
func (c *FailoverChain) beginAttempt(providerID string) (CloudProvider, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := c.findLocked(providerID)
	if entry == nil {
		return nil, false
	}

	if entry.circuitOpen {
		if time.Since(entry.lastFailureTime) < c.cooldown {
			return nil, false
		}
		entry.circuitOpen = false
		c.logger.WithField("provider", providerID).Info("Circuit cooldown elapsed, re-probing provider")
	}

	return entry.provider, true
}

func (c *FailoverChain) recordFailure(providerID string) (failures int, opened bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := c.findLocked(providerID)
	if entry == nil {
		return 0, false
	}

	entry.consecutiveFailures++
	entry.lastFailureTime = time.Now()
	if entry.consecutiveFailures >= c.failureThreshold {
		entry.circuitOpen = true
	}
	return entry.consecutiveFailures, entry.circuitOpen
}

func (c *FailoverChain) recordSuccess(providerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := c.findLocked(providerID)
	if entry == nil {
		return
	}

	entry.consecutiveFailures = 0
	entry.circuitOpen = false
}

func (c *FailoverChain) findLocked(providerID string) *providerEntry {
	for _, entry := range c.entries {
		if entry.provider.ProviderID() == providerID {
			return entry
		}
	}
	return nil
}

func (c *FailoverChain) publishFailover(session, failedID, nextID string, failures int, opened bool, err error) {
	if c.events == nil {
		return
	}
	c.events.Publish(events.NewProviderFailoverEvent(session, failedID, nextID, failures, opened, err.Error()))
}
