// Package notifier delivers alarm transitions to the outside world.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/OldStager01/alarm-evaluator/pkg/models"
)

// Notifier is told about every transition after the new state has been recorded.
type Notifier interface {
	Notify(ctx context.Context, alarm *models.Alarm, previous, state models.AlarmState, reason string) error
}

// Notification is the payload shared by the webhook and Kafka sinks.
type Notification struct {
	NotificationID string            `json:"notification_id"`
	AlarmID        string            `json:"alarm_id"`
	AlarmName      string            `json:"alarm_name"`
	PreviousState  models.AlarmState `json:"previous_state"`
	State          models.AlarmState `json:"state"`
	Reason         string            `json:"reason"`
	UserID         string            `json:"user_id,omitempty"`
	ProjectID      string            `json:"project_id,omitempty"`
	Timestamp      time.Time         `json:"timestamp"`
}

func NewNotification(alarm *models.Alarm, previous, state models.AlarmState, reason string) *Notification {
	return &Notification{
		NotificationID: models.NewUUID(),
		AlarmID:        alarm.ID,
		AlarmName:      alarm.Name,
		PreviousState:  previous,
		State:          state,
		Reason:         reason,
		UserID:         alarm.UserID,
		ProjectID:      alarm.ProjectID,
		Timestamp:      time.Now().UTC(),
	}
}

// Multi fans a notification out to every sink. All sinks are attempted even
// when one fails; the failures are joined.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, alarm *models.Alarm, previous, state models.AlarmState, reason string) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, alarm, previous, state, reason); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type Nop struct{}

func (Nop) Notify(context.Context, *models.Alarm, models.AlarmState, models.AlarmState, string) error {
	return nil
}

// Func adapts a plain function to the Notifier interface.
type Func func(ctx context.Context, alarm *models.Alarm, previous, state models.AlarmState, reason string) error

func (f Func) Notify(ctx context.Context, alarm *models.Alarm, previous, state models.AlarmState, reason string) error {
	return f(ctx, alarm, previous, state, reason)
}

func sinkError(sink string, alarmID string, err error) error {
	return fmt.Errorf("%s notifier: alarm %s: %w", sink, alarmID, err)
}
