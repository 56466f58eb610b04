package decision

import (
	"github.com/OldStager01/alarm-evaluator/internal/analyzer"
	"github.com/OldStager01/alarm-evaluator/pkg/models"
)

// Decision is the state machine output for one alarm in one cycle.
type Decision struct {
	Previous models.AlarmState
	Next     models.AlarmState
	Verdict  analyzer.Verdict
	Reason   string
}

// Changed reports whether the decision is a transition.
func (d Decision) Changed() bool {
	return d.Next != d.Previous
}

// NextState maps a verdict onto the three-state machine. Equivocal keeps the current state.
func NextState(current models.AlarmState, verdict analyzer.Verdict) models.AlarmState {
	switch verdict.Kind {
	case analyzer.VerdictInsufficient:
		return models.StateInsufficientData
	case analyzer.VerdictAlarm:
		return models.StateAlarm
	case analyzer.VerdictOK:
		return models.StateOK
	default:
		return current
	}
}

// Decide computes the next state and, for transitions only, the reason.
func Decide(current models.AlarmState, verdict analyzer.Verdict) Decision {
	d := Decision{
		Previous: current,
		Next:     NextState(current, verdict),
		Verdict:  verdict,
	}
	if d.Changed() {
		d.Reason = FormatReason(verdict)
	}
	return d
}
