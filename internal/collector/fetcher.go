package collector

import (
	"context"
	"errors"

	"github.com/OldStager01/alarm-evaluator/internal/resilience"
	"github.com/OldStager01/alarm-evaluator/pkg/models"
)

var (
	// ErrCommunication is the transient failure class: the backend could not be reached or answered 5xx.
	ErrCommunication   = errors.New("statistics backend communication failure")
	ErrTimeout         = errors.New("statistics request timeout")
	ErrRequestRejected = errors.New("statistics request rejected")
	ErrInvalidResponse = errors.New("invalid response from statistics backend")
)

// Fetcher returns the aggregate samples for a query, oldest first.
type Fetcher interface {
	Fetch(ctx context.Context, query models.StatisticsQuery) ([]models.Sample, error)

	// HealthCheck verifies the fetcher can reach its backend
	HealthCheck(ctx context.Context) error

	Close() error
}

// IsTransient reports whether err should be treated as an empty result rather than a defect.
func IsTransient(err error) bool {
	return errors.Is(err, ErrCommunication) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, resilience.ErrCircuitOpen) ||
		errors.Is(err, context.DeadlineExceeded)
}
