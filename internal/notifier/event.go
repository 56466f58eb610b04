package notifier

import (
	"context"

	"github.com/OldStager01/alarm-evaluator/internal/events"
	"github.com/OldStager01/alarm-evaluator/internal/logger"
	"github.com/OldStager01/alarm-evaluator/pkg/models"
)

// EventNotifier turns transitions into bus events, which feed the websocket
// stream and the history logger.
type EventNotifier struct {
	publisher *events.Publisher
}

func NewEventNotifier(publisher *events.Publisher) *EventNotifier {
	return &EventNotifier{publisher: publisher}
}

func (n *EventNotifier) Notify(ctx context.Context, alarm *models.Alarm, previous, state models.AlarmState, reason string) error {
	publisher := n.publisher
	if cycleID := logger.CycleIDFromContext(ctx); cycleID != "" {
		publisher = publisher.WithTraceID(cycleID)
	}
	publisher.Transition(models.NewTransition(alarm, previous, state, reason))
	return nil
}
