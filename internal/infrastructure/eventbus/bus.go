package eventbus

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Event is anything that travels over the bus.
type Event interface {
	Type() string
	Timestamp() time.Time
	Payload() any
}

// BaseEvent is the stock Event implementation.
type BaseEvent struct {
	EventType      string
	EventTimestamp time.Time
	EventPayload   any
}

func (e *BaseEvent) Type() string         { return e.EventType }
func (e *BaseEvent) Timestamp() time.Time { return e.EventTimestamp }
func (e *BaseEvent) Payload() any         { return e.EventPayload }

// NewEvent stamps payload with the current time.
func NewEvent(eventType string, payload any) *BaseEvent {
	return &BaseEvent{
		EventType:      eventType,
		EventTimestamp: time.Now(),
		EventPayload:   payload,
	}
}

// Handler consumes one event.
type Handler func(ctx context.Context, event Event)

// Subscription identifies one registered handler and can cancel it.
type Subscription struct {
	bus       *InMemoryBus
	eventType string
	id        int
}

// Cancel removes the handler. Safe to call more than once.
func (s *Subscription) Cancel() {
	if s == nil || s.bus == nil {
		return
	}
	s.bus.remove(s.eventType, s.id)
	s.bus = nil
}

// InMemoryBus is a process-local pub/sub bus. Publishing never blocks:
// events go through a buffered channel and are dropped (with a warning)
// when the buffer is full. Handlers for one event run in parallel and
// are individually recovered.
type InMemoryBus struct {
	mu        sync.RWMutex
	handlers  map[string]map[int]Handler
	nextID    int
	eventChan chan eventWrapper
	closed    bool
	logger    *zap.Logger
	wg        sync.WaitGroup
}

type eventWrapper struct {
	ctx   context.Context
	event Event
}

// NewInMemoryBus creates a bus and starts its dispatch goroutine.
func NewInMemoryBus(logger *zap.Logger, bufferSize int) *InMemoryBus {
	bus := &InMemoryBus{
		handlers:  make(map[string]map[int]Handler),
		eventChan: make(chan eventWrapper, bufferSize),
		logger:    logger,
	}

	bus.wg.Add(1)
	go bus.dispatch()

	return bus
}

// Publish enqueues event for delivery. The read lock is held across the
// send so Close cannot shut the channel mid-publish; the send itself
// never blocks.
func (b *InMemoryBus) Publish(ctx context.Context, event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	select {
	case b.eventChan <- eventWrapper{ctx: ctx, event: event}:
	default:
		b.logger.Warn("Event buffer full, dropping event",
			zap.String("type", event.Type()),
		)
	}
}

// Subscribe registers handler for eventType ("*" matches everything)
// and returns a cancelable subscription.
func (b *InMemoryBus) Subscribe(eventType string, handler Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.handlers[eventType] == nil {
		b.handlers[eventType] = make(map[int]Handler)
	}
	b.nextID++
	id := b.nextID
	b.handlers[eventType][id] = handler

	return &Subscription{bus: b, eventType: eventType, id: id}
}

func (b *InMemoryBus) remove(eventType string, id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if m, ok := b.handlers[eventType]; ok {
		delete(m, id)
		if len(m) == 0 {
			delete(b.handlers, eventType)
		}
	}
}

// Close stops dispatch after draining queued events.
func (b *InMemoryBus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	close(b.eventChan)
	b.mu.Unlock()

	b.wg.Wait()
	b.logger.Info("Event bus closed")
}

func (b *InMemoryBus) dispatch() {
	defer b.wg.Done()

	for wrapper := range b.eventChan {
		b.dispatchEvent(wrapper.ctx, wrapper.event)
	}
}

func (b *InMemoryBus) dispatchEvent(ctx context.Context, event Event) {
	b.mu.RLock()
	handlers := make([]Handler, 0)
	for _, h := range b.handlers[event.Type()] {
		handlers = append(handlers, h)
	}
	for _, h := range b.handlers["*"] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	var wg sync.WaitGroup
	for _, handler := range handlers {
		wg.Add(1)
		go func(h Handler) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					b.logger.Error("Handler panicked",
						zap.String("event_type", event.Type()),
						zap.Any("panic", r),
					)
				}
			}()
			h(ctx, event)
		}(handler)
	}
	wg.Wait()
}

// Event types carried on the bus.
const (
	EventTypeLogEntry = "log_entry"
)
