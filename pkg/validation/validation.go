package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/OldStager01/alarm-evaluator/internal/comparator"
	"github.com/OldStager01/alarm-evaluator/pkg/models"
)

var (
	// ErrInvalidAlarm marks an alarm definition that cannot be evaluated
	ErrInvalidAlarm = errors.New("invalid alarm definition")

	// Metric names are dotted or underscored identifiers, e.g. cpu_util or disk.read.bytes
	metricNameRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_.:-]{0,254}$`)
)

// SanitizeString removes potentially dangerous characters and trims whitespace
func SanitizeString(input string) string {
	input = strings.TrimSpace(input)
	input = strings.ReplaceAll(input, "\x00", "")

	var builder strings.Builder
	for _, r := range input {
		if !unicode.IsControl(r) || r == '\n' || r == '\t' {
			builder.WriteRune(r)
		}
	}

	return builder.String()
}

// ValidateAlarm reports every problem with a definition at once. The returned
// error wraps ErrInvalidAlarm, and comparator.ErrUnknownOperator when the
// operator is not registered.
func ValidateAlarm(alarm *models.Alarm) error {
	if alarm == nil {
		return fmt.Errorf("%w: nil alarm", ErrInvalidAlarm)
	}

	var errs []error

	if alarm.ID == "" {
		errs = append(errs, errors.New("alarm id cannot be empty"))
	}
	if SanitizeString(alarm.Name) == "" {
		errs = append(errs, errors.New("alarm name cannot be empty"))
	}
	if err := ValidateMetricName(alarm.MetricName); err != nil {
		errs = append(errs, err)
	}
	if _, err := comparator.Lookup(alarm.ComparisonOperator); err != nil {
		errs = append(errs, err)
	}
	if alarm.EvaluationPeriods <= 0 {
		errs = append(errs, fmt.Errorf("evaluation periods must be positive, got %d", alarm.EvaluationPeriods))
	}
	if !alarm.Statistic.IsValid() {
		errs = append(errs, fmt.Errorf("unknown statistic %q", alarm.Statistic))
	}
	if alarm.Period <= 0 {
		errs = append(errs, fmt.Errorf("period must be positive, got %s", alarm.Period))
	}
	if !alarm.State.IsValid() {
		errs = append(errs, fmt.Errorf("unknown alarm state %q", alarm.State))
	}

	if len(errs) == 0 {
		return nil
	}

	return fmt.Errorf("%w %s: %w", ErrInvalidAlarm, alarm.ID, errors.Join(errs...))
}

// ValidateMetricName checks if a metric name can be used in a statistics query
func ValidateMetricName(name string) error {
	if name == "" {
		return errors.New("metric name cannot be empty")
	}
	if !metricNameRegex.MatchString(name) {
		return fmt.Errorf("invalid metric name %q", name)
	}
	return nil
}
