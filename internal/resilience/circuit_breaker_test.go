package resilience_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/OldStager01/alarm-evaluator/internal/resilience"
)

var errBackend = errors.New("backend down")

func failN(cb *resilience.CircuitBreaker, n int) {
	for i := 0; i < n; i++ {
		cb.Execute(func() error { return errBackend })
	}
}

func TestCircuitBreaker_StateTransitions(t *testing.T) {
	tests := []struct {
		name          string
		config        resilience.CircuitBreakerConfig
		setup         func(cb *resilience.CircuitBreaker)
		expectedState resilience.State
	}{
		{
			name:          "successful execution stays closed",
			config:        resilience.CircuitBreakerConfig{MaxFailures: 3, Timeout: 5 * time.Second},
			setup:         func(cb *resilience.CircuitBreaker) { cb.Execute(func() error { return nil }) },
			expectedState: resilience.StateClosed,
		},
		{
			name:          "open after max failures",
			config:        resilience.CircuitBreakerConfig{MaxFailures: 3, Timeout: 5 * time.Second},
			setup:         func(cb *resilience.CircuitBreaker) { failN(cb, 3) },
			expectedState: resilience.StateOpen,
		},
		{
			name: "success resets failure count",
			config: resilience.CircuitBreakerConfig{MaxFailures: 3, Timeout: 5 * time.Second},
			setup: func(cb *resilience.CircuitBreaker) {
				failN(cb, 2)
				cb.Execute(func() error { return nil })
				failN(cb, 2)
			},
			expectedState: resilience.StateClosed,
		},
		{
			name: "errors excluded by IsFailure do not open",
			config: resilience.CircuitBreakerConfig{
				MaxFailures: 1,
				Timeout:     5 * time.Second,
				IsFailure:   func(err error) bool { return !errors.Is(err, errBackend) },
			},
			setup:         func(cb *resilience.CircuitBreaker) { failN(cb, 5) },
			expectedState: resilience.StateClosed,
		},
		{
			name: "half-open probe success closes",
			config: resilience.CircuitBreakerConfig{MaxFailures: 2, Timeout: 20 * time.Millisecond},
			setup: func(cb *resilience.CircuitBreaker) {
				failN(cb, 2)
				time.Sleep(40 * time.Millisecond)
				cb.Execute(func() error { return nil })
			},
			expectedState: resilience.StateClosed,
		},
		{
			name: "half-open probe failure reopens",
			config: resilience.CircuitBreakerConfig{MaxFailures: 2, Timeout: 20 * time.Millisecond},
			setup: func(cb *resilience.CircuitBreaker) {
				failN(cb, 2)
				time.Sleep(40 * time.Millisecond)
				failN(cb, 1)
			},
			expectedState: resilience.StateOpen,
		},
		{
			name:   "reset returns to closed",
			config: resilience.CircuitBreakerConfig{MaxFailures: 3, Timeout: time.Hour},
			setup: func(cb *resilience.CircuitBreaker) {
				failN(cb, 3)
				cb.Reset()
			},
			expectedState: resilience.StateClosed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cb := resilience.NewCircuitBreaker(tt.config)

			tt.setup(cb)

			assert.Equal(t, tt.expectedState, cb.State())
		})
	}
}

func TestCircuitBreaker_OpenRejectsWithoutCalling(t *testing.T) {
	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		MaxFailures: 2,
		Timeout:     time.Hour,
	})
	failN(cb, 2)

	called := false
	err := cb.Execute(func() error {
		called = true
		return nil
	})

	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.False(t, called)
}

func TestCircuitBreaker_PassesThroughNonFailureErrors(t *testing.T) {
	errBadRequest := errors.New("bad request")
	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		IsFailure: func(err error) bool { return errors.Is(err, errBackend) },
	})

	err := cb.Execute(func() error { return errBadRequest })

	assert.ErrorIs(t, err, errBadRequest)
	_, failures, _ := cb.Stats()
	assert.Zero(t, failures)
}

func TestCircuitBreaker_OnStateChange(t *testing.T) {
	changes := make(chan resilience.State, 4)
	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:        "statistics",
		MaxFailures: 1,
		Timeout:     time.Hour,
		OnStateChange: func(name string, from, to resilience.State) {
			assert.Equal(t, "statistics", name)
			changes <- to
		},
	})

	failN(cb, 1)

	select {
	case to := <-changes:
		assert.Equal(t, resilience.StateOpen, to)
	case <-time.After(time.Second):
		t.Fatal("state change callback not invoked")
	}
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "closed", resilience.StateClosed.String())
	assert.Equal(t, "open", resilience.StateOpen.String())
	assert.Equal(t, "half-open", resilience.StateHalfOpen.String())
	assert.Equal(t, "unknown", resilience.State(42).String())
}
