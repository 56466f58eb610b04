package events

import (
	"sync"
	"time"

	"github.com/OldStager01/alarm-evaluator/internal/logger"
	"github.com/OldStager01/alarm-evaluator/pkg/models"
)

// durableSendTimeout bounds how long Publish waits on a full durable subscriber.
const durableSendTimeout = 5 * time.Second

type EventBus struct {
	subscribers map[models.EventType][]chan *models.Event
	allChans    []chan *models.Event // Track channels from SubscribeAll
	durable     map[chan *models.Event]map[models.EventType]bool
	mu          sync.RWMutex
	bufferSize  int
	closed      bool
}

func NewEventBus(bufferSize int) *EventBus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &EventBus{
		subscribers: make(map[models.EventType][]chan *models.Event),
		allChans:    make([]chan *models.Event, 0),
		durable:     make(map[chan *models.Event]map[models.EventType]bool),
		bufferSize:  bufferSize,
	}
}

func (b *EventBus) Subscribe(eventType models.EventType) <-chan *models.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan *models.Event, b.bufferSize)
	b.subscribers[eventType] = append(b.subscribers[eventType], ch)
	return ch
}

func (b *EventBus) SubscribeAll() <-chan *models.Event {
	return b.subscribeAll(nil)
}

// SubscribeAllDurable is SubscribeAll, except that events of the durable types
// are not dropped when the buffer is full: Publish waits up to durableSendTimeout
// for room. The alarm history subscribes this way for alarm_transition.
func (b *EventBus) SubscribeAllDurable(durable ...models.EventType) <-chan *models.Event {
	types := make(map[models.EventType]bool, len(durable))
	for _, t := range durable {
		types[t] = true
	}
	return b.subscribeAll(types)
}

func (b *EventBus) subscribeAll(durable map[models.EventType]bool) <-chan *models.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan *models.Event, b.bufferSize)

	for _, eventType := range AllEventTypes() {
		b.subscribers[eventType] = append(b.subscribers[eventType], ch)
	}
	if len(durable) > 0 {
		b.durable[ch] = durable
	}

	b.allChans = append(b.allChans, ch)
	return ch
}

// Publish does not block on ordinary subscribers; a full one misses the event.
func (b *EventBus) Publish(event *models.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for _, ch := range b.subscribers[event.Type] {
		select {
		case ch <- event:
			continue
		default:
		}

		if b.durable[ch][event.Type] {
			timer := time.NewTimer(durableSendTimeout)
			select {
			case ch <- event:
				timer.Stop()
				continue
			case <-timer.C:
			}
		}
		logger.WithAlarm(event.AlarmID).Warnf("Event channel full, dropping event: %s", event.Type)
	}
}

func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	closed := make(map[chan *models.Event]bool)
	for _, ch := range b.allChans {
		close(ch)
		closed[ch] = true
	}

	for _, subscribers := range b.subscribers {
		for _, ch := range subscribers {
			if !closed[ch] {
				close(ch)
				closed[ch] = true
			}
		}
	}

	b.subscribers = make(map[models.EventType][]chan *models.Event)
	b.allChans = nil
	b.durable = make(map[chan *models.Event]map[models.EventType]bool)
}

func AllEventTypes() []models.EventType {
	return []models.EventType{
		models.EventTypeAlarmEvaluated,
		models.EventTypeAlarmTransition,
		models.EventTypeFetchFailed,
		models.EventTypeUpdateFailed,
		models.EventTypeNotifyFailed,
		models.EventTypeCycleComplete,
		models.EventTypeError,
	}
}
