package models

import (
	"fmt"
	"time"
)

// AlarmState is the persisted evaluation state of an alarm.
type AlarmState string

const (
	StateOK               AlarmState = "ok"
	StateAlarm            AlarmState = "alarm"
	StateInsufficientData AlarmState = "insufficient data"
)

// ParseAlarmState rejects anything other than the three known states.
func ParseAlarmState(s string) (AlarmState, error) {
	switch AlarmState(s) {
	case StateOK, StateAlarm, StateInsufficientData:
		return AlarmState(s), nil
	default:
		return "", fmt.Errorf("unknown alarm state %q", s)
	}
}

func (s AlarmState) IsValid() bool {
	_, err := ParseAlarmState(string(s))
	return err == nil
}

func (s AlarmState) String() string {
	return string(s)
}

// ComparisonOperator names the predicate applied between a sample and the threshold.
type ComparisonOperator string

const (
	OperatorGT ComparisonOperator = "gt"
	OperatorLT ComparisonOperator = "lt"
	OperatorGE ComparisonOperator = "ge"
	OperatorLE ComparisonOperator = "le"
	OperatorEQ ComparisonOperator = "eq"
	OperatorNE ComparisonOperator = "ne"
)

// Alarm is a threshold rule bound to a metric query.
type Alarm struct {
	ID                 string             `json:"alarm_id"`
	Name               string             `json:"name"`
	Description        string             `json:"description,omitempty"`
	MetricName         string             `json:"counter_name"`
	ComparisonOperator ComparisonOperator `json:"comparison_operator"`
	Threshold          float64            `json:"threshold"`
	EvaluationPeriods  int                `json:"evaluation_periods"`
	Statistic          StatisticKind      `json:"statistic"`
	Period             time.Duration      `json:"period"`
	UserID             string             `json:"user_id"`
	ProjectID          string             `json:"project_id"`
	MatchingMetadata   map[string]string  `json:"matching_metadata,omitempty"`
	State              AlarmState         `json:"state"`
	Enabled            bool               `json:"enabled"`
	StateTimestamp     *time.Time         `json:"state_timestamp,omitempty"`
	Timestamp          time.Time          `json:"timestamp"`
}

// NewAlarm returns an enabled alarm starting in insufficient data.
func NewAlarm(name, metric string, op ComparisonOperator, threshold float64) *Alarm {
	return &Alarm{
		ID:                 NewUUID(),
		Name:               name,
		MetricName:         metric,
		ComparisonOperator: op,
		Threshold:          threshold,
		EvaluationPeriods:  1,
		Statistic:          StatisticAvg,
		Period:             time.Minute,
		MatchingMetadata:   make(map[string]string),
		State:              StateInsufficientData,
		Enabled:            true,
		Timestamp:          time.Now(),
	}
}

// SetState records a new state and stamps the change time.
func (a *Alarm) SetState(state AlarmState, at time.Time) {
	a.State = state
	a.StateTimestamp = &at
}
