package models

import "time"

// Transition records an alarm moving between two different states.
type Transition struct {
	ID        string     `json:"id"`
	AlarmID   string     `json:"alarm_id"`
	AlarmName string     `json:"alarm_name"`
	Previous  AlarmState `json:"previous_state"`
	Current   AlarmState `json:"state"`
	Reason    string     `json:"reason"`
	Timestamp time.Time  `json:"timestamp"`
}

func NewTransition(alarm *Alarm, previous, current AlarmState, reason string) *Transition {
	return &Transition{
		ID:        NewUUID(),
		AlarmID:   alarm.ID,
		AlarmName: alarm.Name,
		Previous:  previous,
		Current:   current,
		Reason:    reason,
		Timestamp: time.Now(),
	}
}
