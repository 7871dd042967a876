package ingest

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// EventType enumerates the closed set of lifecycle events.
type EventType string

const (
	EventTaskScheduled   EventType = "TASK_SCHEDULED"
	EventTaskUpdated     EventType = "TASK_UPDATED"
	EventTaskEnabled     EventType = "TASK_ENABLED"
	EventTaskDisabled    EventType = "TASK_DISABLED"
	EventTaskDeleted     EventType = "TASK_DELETED"
	EventTaskTriggered   EventType = "TASK_TRIGGERED"
	EventTaskCompleted   EventType = "TASK_COMPLETED"
	EventTaskFailed      EventType = "TASK_FAILED"
	EventDataFetched     EventType = "DATA_FETCHED"
	EventDataTransformed EventType = "DATA_TRANSFORMED"
	EventDataProcessed   EventType = "DATA_PROCESSED"
)

// Event is one lifecycle observation. TaskID is the correlation key;
// subscribers receive events for all tasks and filter themselves.
type Event struct {
	Type    EventType `json:"type"`
	TaskID  string    `json:"task_id"`
	Payload any       `json:"payload,omitempty"`
	At      time.Time `json:"at"`
}

// EventHandler receives published events.
type EventHandler func(evt Event)

// Bus is the process-wide broadcast channel for lifecycle events.
// Dispatch is synchronous in publish order; a panicking subscriber is
// recovered and logged so it cannot break the pipeline.
type Bus struct {
	mu     sync.RWMutex
	byType map[EventType][]EventHandler
	all    []EventHandler
	logger *zap.SugaredLogger
}

// NewBus creates an event bus.
func NewBus(logger *zap.SugaredLogger) *Bus {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Bus{
		byType: make(map[EventType][]EventHandler),
		logger: logger,
	}
}

// Subscribe registers a handler for one event type.
func (b *Bus) Subscribe(t EventType, h EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.byType[t] = append(b.byType[t], h)
}

// SubscribeAll registers a handler for every event type.
func (b *Bus) SubscribeAll(h EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, h)
}

// Publish dispatches an event to all matching subscribers.
func (b *Bus) Publish(t EventType, taskID string, payload any) {
	evt := Event{Type: t, TaskID: taskID, Payload: payload, At: time.Now()}

	b.mu.RLock()
	handlers := make([]EventHandler, 0, len(b.byType[t])+len(b.all))
	handlers = append(handlers, b.byType[t]...)
	handlers = append(handlers, b.all...)
	b.mu.RUnlock()

	for _, h := range handlers {
		b.dispatch(h, evt)
	}
}

func (b *Bus) dispatch(h EventHandler, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Errorw("Event subscriber panicked",
				"event", evt.Type,
				"task_id", evt.TaskID,
				"panic", r,
			)
		}
	}()
	h(evt)
}
