package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

const (
	EventBookingCreated       = "booking_created"
	EventBookingStatusChanged = "booking_status_changed"
	EventBookingCancelled     = "booking_cancelled"
	EventReturnHome           = "return_home"
	EventRatingSubmitted      = "rating_submitted"
	EventSearchFound          = "search_found"
	EventSearchFailed         = "search_failed"
	EventTimerFinished        = "timer_finished"
	EventDispatchReceived     = "dispatch_received"
)

// BookingEventPayload describes the minimal booking snapshot for event consumers.
type BookingEventPayload struct {
	BookingID  int64  `json:"booking_id"`
	MitraID    int64  `json:"mitra_id,omitempty"`
	FromStatus string `json:"from_status,omitempty"`
	Status     string `json:"status"`
	Progress   string `json:"progress,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// SearchEventPayload describes one finished matching attempt.
type SearchEventPayload struct {
	SessionID  string `json:"session_id"`
	ServiceID  int64  `json:"service_id"`
	Candidates int    `json:"candidates"`
	Cause      string `json:"cause,omitempty"`
}

// Event is one published occurrence with its JSON payload.
type Event struct {
	Type    string
	Payload json.RawMessage
	At      time.Time
}

func (e *Event) Decode(out interface{}) error {
	return json.Unmarshal(e.Payload, out)
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus is the in-process pub/sub between services and the UI layer.
// Handlers run synchronously in subscription order.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
}

func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish runs every handler of the event type, even after one fails, and
// returns their joined errors.
func (b *EventBus) Publish(event *Event) error {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.At.IsZero() {
		event.At = time.Now()
	}

	var errs []error
	for i, handler := range handlers {
		if err := handler(event); err != nil {
			errs = append(errs, fmt.Errorf("%s handler %d: %w", event.Type, i, err))
		}
	}
	return errors.Join(errs...)
}

// PublishJSON serializes the payload and publishes it. A nil bus drops it.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	return b.Publish(&Event{Type: eventType, Payload: raw, At: time.Now()})
}
