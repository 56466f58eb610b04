package events

import (
	"fmt"
	"time"

	"github.com/OldStager01/alarm-evaluator/pkg/models"
)

// Publisher builds typed events and puts them on the bus.
type Publisher struct {
	bus     *EventBus
	traceID string
}

func NewPublisher(bus *EventBus) *Publisher {
	return &Publisher{bus: bus}
}

// WithTraceID is safe on a nil publisher, which drops every event.
func (p *Publisher) WithTraceID(traceID string) *Publisher {
	if p == nil {
		return nil
	}
	return &Publisher{
		bus:     p.bus,
		traceID: traceID,
	}
}

func (p *Publisher) publish(event *models.Event) {
	if p == nil || p.bus == nil {
		return
	}
	if p.traceID != "" {
		event.TraceID = p.traceID
	}
	p.bus.Publish(event)
}

// EvaluationResult is the data carried by an alarm_evaluated event.
type EvaluationResult struct {
	State   models.AlarmState `json:"state"`
	Verdict string            `json:"verdict"`
	Samples int               `json:"samples"`
}

func (p *Publisher) AlarmEvaluated(alarmID string, result EvaluationResult) {
	event := models.NewEvent(models.EventTypeAlarmEvaluated, alarmID, "Alarm evaluated: "+result.Verdict).
		WithData(result)
	p.publish(event)
}

func (p *Publisher) Transition(transition *models.Transition) {
	msg := fmt.Sprintf("Alarm %s: %s -> %s", transition.AlarmName, transition.Previous, transition.Current)
	event := models.NewEvent(models.EventTypeAlarmTransition, transition.AlarmID, msg).
		WithData(transition)

	if transition.Current == models.StateAlarm {
		event.WithSeverity(models.SeverityWarning)
	}

	p.publish(event)
}

func (p *Publisher) FetchFailed(alarmID string, err error) {
	event := models.NewEvent(models.EventTypeFetchFailed, alarmID, "Statistics fetch failed").
		WithSeverity(models.SeverityWarning).
		WithData(map[string]interface{}{
			"error": err.Error(),
		})
	p.publish(event)
}

func (p *Publisher) UpdateFailed(alarmID string, state models.AlarmState, err error) {
	event := models.NewEvent(models.EventTypeUpdateFailed, alarmID, "Alarm state update failed").
		WithSeverity(models.SeverityCritical).
		WithData(map[string]interface{}{
			"state": state,
			"error": err.Error(),
		})
	p.publish(event)
}

func (p *Publisher) NotifyFailed(alarmID string, state models.AlarmState, err error) {
	event := models.NewEvent(models.EventTypeNotifyFailed, alarmID, "Alarm notification failed").
		WithSeverity(models.SeverityWarning).
		WithData(map[string]interface{}{
			"state": state,
			"error": err.Error(),
		})
	p.publish(event)
}

// CycleSummary is the data carried by a cycle_complete event.
type CycleSummary struct {
	Evaluated   int           `json:"evaluated"`
	Skipped     int           `json:"skipped"`
	Transitions int           `json:"transitions"`
	Failures    int           `json:"failures"`
	Duration    time.Duration `json:"duration"`
}

func (p *Publisher) CycleComplete(summary CycleSummary) {
	msg := fmt.Sprintf("Evaluation cycle complete: %d evaluated, %d transitions, %d failures",
		summary.Evaluated, summary.Transitions, summary.Failures)
	event := models.NewEvent(models.EventTypeCycleComplete, "", msg).
		WithData(summary)

	if summary.Failures > 0 {
		event.WithSeverity(models.SeverityWarning)
	}

	p.publish(event)
}

func (p *Publisher) Error(alarmID string, message string, err error) {
	event := models.NewEvent(models.EventTypeError, alarmID, message).
		WithSeverity(models.SeverityCritical).
		WithData(map[string]interface{}{
			"error": err.Error(),
		})
	p.publish(event)
}
