// Package comparator maps alarm comparison operators to numeric predicates.
package comparator

import (
	"errors"
	"fmt"

	"github.com/OldStager01/alarm-evaluator/pkg/models"
)

var ErrUnknownOperator = errors.New("unknown comparison operator")

// Predicate reports whether value breaches threshold, i.e. the alarm condition holds.
type Predicate func(value, threshold float64) bool

var registry = map[models.ComparisonOperator]Predicate{
	models.OperatorGT: func(v, t float64) bool { return v > t },
	models.OperatorLT: func(v, t float64) bool { return v < t },
	models.OperatorGE: func(v, t float64) bool { return v >= t },
	models.OperatorLE: func(v, t float64) bool { return v <= t },
	models.OperatorEQ: func(v, t float64) bool { return v == t },
	models.OperatorNE: func(v, t float64) bool { return v != t },
}

// Lookup returns the alarm predicate for op. It never falls back to a default.
func Lookup(op models.ComparisonOperator) (Predicate, error) {
	predicate, ok := registry[op]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownOperator, op)
	}
	return predicate, nil
}

// Supported lists the registered operators in a fixed order.
func Supported() []models.ComparisonOperator {
	return []models.ComparisonOperator{
		models.OperatorGT,
		models.OperatorLT,
		models.OperatorGE,
		models.OperatorLE,
		models.OperatorEQ,
		models.OperatorNE,
	}
}

// Inside is the ok condition: the negation of the alarm predicate.
func (p Predicate) Inside(value, threshold float64) bool {
	return !p(value, threshold)
}
