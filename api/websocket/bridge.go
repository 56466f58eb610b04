package websocket

import (
	"context"
	"encoding/json"
	"time"

	"github.com/OldStager01/alarm-evaluator/internal/logger"
	"github.com/OldStager01/alarm-evaluator/pkg/models"
)

// EventBridge forwards alarm transition events from the bus to WebSocket clients.
type EventBridge struct {
	hub        *Hub
	eventsChan <-chan *models.Event
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
}

func NewEventBridge(hub *Hub, eventsChan <-chan *models.Event) *EventBridge {
	ctx, cancel := context.WithCancel(context.Background())
	return &EventBridge{
		hub:        hub,
		eventsChan: eventsChan,
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

func (b *EventBridge) Start() {
	go b.run()
	logger.Info("WebSocket event bridge started")
}

func (b *EventBridge) Stop() {
	b.cancel()
	<-b.done
	logger.Info("WebSocket event bridge stopped")
}

func (b *EventBridge) run() {
	defer close(b.done)
	for {
		select {
		case <-b.ctx.Done():
			return
		case event, ok := <-b.eventsChan:
			if !ok {
				logger.Info("Event channel closed, stopping bridge")
				return
			}
			b.forwardEvent(event)
		}
	}
}

func (b *EventBridge) forwardEvent(event *models.Event) {
	msg := ToMessage(event)
	if msg == nil {
		return
	}

	data, err := json.Marshal(msg)
	if err != nil {
		logger.Errorf("Failed to marshal WebSocket message: %v", err)
		return
	}

	b.hub.BroadcastTransition(event.AlarmID, data)
}

// Message is the frame sent to WebSocket clients.
type Message struct {
	Type      string             `json:"type"`
	AlarmID   string             `json:"alarm_id"`
	Timestamp time.Time          `json:"timestamp"`
	Severity  string             `json:"severity,omitempty"`
	Message   string             `json:"message,omitempty"`
	Data      *models.Transition `json:"data,omitempty"`
}

// ToMessage returns nil for anything other than a transition event.
func ToMessage(event *models.Event) *Message {
	if event == nil || event.Type != models.EventTypeAlarmTransition {
		return nil
	}

	msg := &Message{
		Type:      "transition",
		AlarmID:   event.AlarmID,
		Timestamp: event.Timestamp,
		Severity:  string(event.Severity),
		Message:   event.Message,
	}
	if t, ok := event.Data.(*models.Transition); ok {
		msg.Data = t
	}
	return msg
}
