package collector_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OldStager01/alarm-evaluator/internal/collector"
	"github.com/OldStager01/alarm-evaluator/internal/resilience"
	"github.com/OldStager01/alarm-evaluator/pkg/models"
)

func TestMockFetcher_ScriptThenDefault(t *testing.T) {
	mock := collector.NewMockFetcher()
	mock.EnqueueValues(models.StatisticAvg, 1, 2).Enqueue(nil, collector.ErrCommunication)
	mock.SetDefault([]models.Sample{models.NewSample(models.StatisticMax, 9)}, nil)

	ctx := context.Background()

	first, err := mock.Fetch(ctx, testQuery())
	require.NoError(t, err)
	assert.Len(t, first, 2)

	_, err = mock.Fetch(ctx, testQuery())
	assert.ErrorIs(t, err, collector.ErrCommunication)

	third, err := mock.Fetch(ctx, testQuery())
	require.NoError(t, err)
	assert.Equal(t, 9.0, third[0].Value)

	assert.Len(t, mock.Queries(), 3)
}

func TestResilientFetcher_OpensOnTransientFailures(t *testing.T) {
	mock := collector.NewMockFetcher()
	mock.SetDefault(nil, collector.ErrCommunication)

	f := collector.NewResilientFetcher(collector.ResilientFetcherConfig{
		Fetcher:     mock,
		MaxFailures: 2,
		Timeout:     time.Hour,
	})

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, err := f.Fetch(ctx, testQuery())
		assert.ErrorIs(t, err, collector.ErrCommunication)
	}

	_, err := f.Fetch(ctx, testQuery())
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.True(t, collector.IsTransient(err))
	assert.Equal(t, resilience.StateOpen, f.CircuitState())
	assert.Len(t, mock.Queries(), 2, "open circuit must not reach the backend")

	f.ResetCircuit()
	assert.Equal(t, resilience.StateClosed, f.CircuitState())
}

func TestResilientFetcher_DoesNotRetry(t *testing.T) {
	mock := collector.NewMockFetcher()
	mock.Enqueue(nil, collector.ErrCommunication)
	mock.EnqueueValues(models.StatisticAvg, 1)

	f := collector.NewResilientFetcher(collector.ResilientFetcherConfig{Fetcher: mock})

	_, err := f.Fetch(context.Background(), testQuery())

	assert.ErrorIs(t, err, collector.ErrCommunication)
	assert.Len(t, mock.Queries(), 1)
}

func TestResilientFetcher_DefectsDoNotOpenCircuit(t *testing.T) {
	mock := collector.NewMockFetcher()
	mock.SetDefault(nil, collector.ErrInvalidResponse)

	f := collector.NewResilientFetcher(collector.ResilientFetcherConfig{
		Fetcher:     mock,
		MaxFailures: 1,
		Timeout:     time.Hour,
	})

	for i := 0; i < 3; i++ {
		_, err := f.Fetch(context.Background(), testQuery())
		assert.ErrorIs(t, err, collector.ErrInvalidResponse)
	}
	assert.Equal(t, resilience.StateClosed, f.CircuitState())
}
