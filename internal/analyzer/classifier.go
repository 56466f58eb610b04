package analyzer

import (
	"errors"
	"fmt"

	"github.com/OldStager01/alarm-evaluator/internal/comparator"
	"github.com/OldStager01/alarm-evaluator/pkg/models"
)

var ErrInvalidEvaluationPeriods = errors.New("evaluation periods must be positive")

type VerdictKind string

const (
	VerdictAlarm        VerdictKind = "alarm"
	VerdictOK           VerdictKind = "ok"
	VerdictEquivocal    VerdictKind = "equivocal"
	VerdictInsufficient VerdictKind = "insufficient"
)

// Verdict is the outcome of classifying one evaluation window. It is never persisted.
type Verdict struct {
	Kind VerdictKind
	// Count is the window size for alarm and ok verdicts.
	Count int
	// MostRecent is the value of the latest sample in the window.
	MostRecent float64
	// Unknown is the number of missing samples for an insufficient verdict.
	Unknown int
}

func Insufficient(unknown int) Verdict {
	return Verdict{Kind: VerdictInsufficient, Unknown: unknown}
}

// Classify inspects the newest required samples (oldest first in samples) against predicate.
func Classify(samples []models.Sample, required int, predicate comparator.Predicate, threshold float64) Verdict {
	if len(samples) < required {
		return Insufficient(required - len(samples))
	}

	window := samples[len(samples)-required:]

	breaching := 0
	for _, s := range window {
		if predicate(s.Value, threshold) {
			breaching++
		}
	}

	mostRecent := window[len(window)-1].Value

	switch breaching {
	case required:
		return Verdict{Kind: VerdictAlarm, Count: required, MostRecent: mostRecent}
	case 0:
		return Verdict{Kind: VerdictOK, Count: required, MostRecent: mostRecent}
	default:
		return Verdict{Kind: VerdictEquivocal}
	}
}

// Analyze classifies samples for alarm, failing on definitions that cannot be evaluated.
func Analyze(alarm *models.Alarm, samples []models.Sample) (Verdict, error) {
	if alarm.EvaluationPeriods <= 0 {
		return Verdict{}, fmt.Errorf("%w: got %d", ErrInvalidEvaluationPeriods, alarm.EvaluationPeriods)
	}

	predicate, err := comparator.Lookup(alarm.ComparisonOperator)
	if err != nil {
		return Verdict{}, err
	}

	return Classify(samples, alarm.EvaluationPeriods, predicate, alarm.Threshold), nil
}
