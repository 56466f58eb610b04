package decision

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/OldStager01/alarm-evaluator/internal/analyzer"
)

// FormatReason renders the human-readable transition reason for a verdict.
func FormatReason(verdict analyzer.Verdict) string {
	switch verdict.Kind {
	case analyzer.VerdictInsufficient:
		return fmt.Sprintf("%d datapoints are unknown", verdict.Unknown)
	case analyzer.VerdictAlarm:
		return fmt.Sprintf("Transition to alarm due to %d samples outside threshold, most recent: %s",
			verdict.Count, FormatValue(verdict.MostRecent))
	case analyzer.VerdictOK:
		return fmt.Sprintf("Transition to ok due to %d samples inside threshold, most recent: %s",
			verdict.Count, FormatValue(verdict.MostRecent))
	default:
		return ""
	}
}

// FormatValue prints a sample value without truncation, always as a float (85 -> "85.0").
func FormatValue(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if math.IsInf(v, 0) || math.IsNaN(v) || strings.Contains(s, ".") {
		return s
	}
	return s + ".0"
}
