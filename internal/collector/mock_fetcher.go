package collector

import (
	"context"
	"sync"

	"github.com/OldStager01/alarm-evaluator/pkg/models"
)

type mockResponse struct {
	samples []models.Sample
	err     error
}

// MockFetcher replays scripted responses in call order, then falls back to a default.
type MockFetcher struct {
	mu       sync.Mutex
	script   []mockResponse
	fallback mockResponse
	queries  []models.StatisticsQuery
}

func NewMockFetcher() *MockFetcher {
	return &MockFetcher{}
}

// Enqueue scripts the response of the next unscripted call.
func (m *MockFetcher) Enqueue(samples []models.Sample, err error) *MockFetcher {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, mockResponse{samples: samples, err: err})
	return m
}

// EnqueueValues scripts a response built from raw values of the given kind.
func (m *MockFetcher) EnqueueValues(kind models.StatisticKind, values ...float64) *MockFetcher {
	samples := make([]models.Sample, len(values))
	for i, v := range values {
		samples[i] = models.NewSample(kind, v)
	}
	return m.Enqueue(samples, nil)
}

// SetDefault is returned once the script is exhausted.
func (m *MockFetcher) SetDefault(samples []models.Sample, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = mockResponse{samples: samples, err: err}
}

func (m *MockFetcher) Fetch(ctx context.Context, query models.StatisticsQuery) ([]models.Sample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.queries = append(m.queries, query)

	resp := m.fallback
	if len(m.script) > 0 {
		resp = m.script[0]
		m.script = m.script[1:]
	}

	if resp.err != nil {
		return nil, resp.err
	}

	samples := make([]models.Sample, len(resp.samples))
	copy(samples, resp.samples)
	return samples, nil
}

// Queries returns every query received so far.
func (m *MockFetcher) Queries() []models.StatisticsQuery {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.StatisticsQuery, len(m.queries))
	copy(out, m.queries)
	return out
}

func (m *MockFetcher) HealthCheck(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fallback.err
}

func (m *MockFetcher) Close() error {
	return nil
}
