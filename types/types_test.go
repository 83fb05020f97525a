package types

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLocalResult_ConfidenceOrDefault(t *testing.T) {
	measured := 0.42
	result := LocalResult{Confidence: &measured}
	assert.Equal(t, 0.42, result.ConfidenceOrDefault())

	// Unmeasured confidence counts as fully confident.
	unmeasured := LocalResult{}
	assert.Equal(t, 1.0, unmeasured.ConfidenceOrDefault())
}

func TestBudgetExceededError(t *testing.T) {
	err := &BudgetExceededError{CurrentUSD: 1.2345, CapUSD: 1.0}
	assert.Contains(t, err.Error(), "$1.2345")
	assert.Contains(t, err.Error(), "$1.0000")
}

func TestNoProviderAvailableError_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := &NoProviderAvailableError{LastErr: cause}

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection refused")

	empty := &NoProviderAvailableError{}
	assert.Equal(t, "no cloud provider available", empty.Error())
}

func TestLatencyTimeoutError(t *testing.T) {
	err := &LatencyTimeoutError{MaxMs: 200, ActualMs: 312.4}
	assert.Contains(t, err.Error(), "312ms")
	assert.Contains(t, err.Error(), "200ms")
}
