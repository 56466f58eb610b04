package notifier

import (
	"context"

	"github.com/OldStager01/alarm-evaluator/internal/logger"
	"github.com/OldStager01/alarm-evaluator/pkg/models"
)

// LogNotifier writes every transition to the structured log.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Notify(ctx context.Context, alarm *models.Alarm, previous, state models.AlarmState, reason string) error {
	logger.AlarmCtx(ctx, alarm.ID).WithFields(map[string]interface{}{
		"alarm_name": alarm.Name,
		"previous":   previous,
		"state":      state,
		"reason":     reason,
	}).Info("Alarm state transition")
	return nil
}
