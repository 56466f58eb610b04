package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/OldStager01/alarm-evaluator/internal/logger"
	"github.com/OldStager01/alarm-evaluator/pkg/models"
)

const (
	drainTimeout   = 10 * time.Second
	persistTimeout = 5 * time.Second
)

// TransitionRecorder persists the alarm history.
type TransitionRecorder interface {
	RecordTransition(ctx context.Context, transition *models.Transition) error
}

// EventLogger drains a subscription, logs every event and persists transitions.
type EventLogger struct {
	recorder  TransitionRecorder
	eventChan <-chan *models.Event
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	startOnce sync.Once
	started   bool
}

// NewEventLogger accepts a nil recorder, in which case events are only logged.
func NewEventLogger(recorder TransitionRecorder, eventChan <-chan *models.Event) *EventLogger {
	ctx, cancel := context.WithCancel(context.Background())
	return &EventLogger{
		recorder:  recorder,
		eventChan: eventChan,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

func (l *EventLogger) Start() {
	l.startOnce.Do(func() {
		l.started = true
		go l.run()
	})
}

// Stop waits for the subscription to be closed and drained, so close the bus
// first. Buffered transitions are persisted before it returns unless the drain
// outlasts drainTimeout. Stop without Start returns immediately.
func (l *EventLogger) Stop() {
	defer l.cancel()
	l.startOnce.Do(func() {})
	if !l.started {
		return
	}

	select {
	case <-l.done:
		return
	case <-time.After(drainTimeout):
		logger.Warn("Event logger drain timed out, abandoning buffered events")
	}
	l.cancel()
	<-l.done
}

func (l *EventLogger) run() {
	defer close(l.done)
	for {
		select {
		case <-l.ctx.Done():
			return
		case event, ok := <-l.eventChan:
			if !ok {
				return
			}
			l.processEvent(event)
		}
	}
}

func (l *EventLogger) processEvent(event *models.Event) {
	entry := logger.WithFields(map[string]interface{}{
		"event_type": event.Type,
		"alarm_id":   event.AlarmID,
		"severity":   event.Severity,
		"trace_id":   event.TraceID,
	})

	switch event.Severity {
	case models.SeverityCritical:
		entry.Error(event.Message)
	case models.SeverityWarning:
		entry.Warn(event.Message)
	default:
		entry.Debug(event.Message)
	}

	if event.Type == models.EventTypeAlarmTransition {
		l.persistTransition(event)
	}
}

func (l *EventLogger) persistTransition(event *models.Event) {
	if l.recorder == nil {
		return
	}

	transition, ok := event.Data.(*models.Transition)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(l.ctx, persistTimeout)
	defer cancel()

	if err := l.recorder.RecordTransition(ctx, transition); err != nil {
		logger.Errorf("Failed to persist transition for alarm %s: %v", transition.AlarmID, err)
	}
}

func (l *EventLogger) LogToJSON(event *models.Event) string {
	data, _ := json.Marshal(event)
	return string(data)
}
