// Package registry routes outbox rows to broker topics and decodes their
// typed payloads.
package registry

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/mmararief/dante-propolis/pkg/config"
	"github.com/mmararief/dante-propolis/pkg/db/models"
	"github.com/mmararief/dante-propolis/pkg/enums"
	"github.com/mmararief/dante-propolis/pkg/outbox"
	"github.com/mmararief/dante-propolis/pkg/outbox/payloads"
)

// EventDescriptor links an event type to its aggregate, topic and payload schema.
type EventDescriptor struct {
	EventType      enums.OutboxEventType
	AggregateType  enums.OutboxAggregateType
	Topic          string
	PayloadFactory func() any
}

// ResolvedEvent is the result of decoding an outbox row.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// NonRetryableError marks a row the relay should dead-letter at once.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error {
	return e.Err
}

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func nonRetryable(format string, args ...any) error {
	return NonRetryableError{Err: fmt.Errorf(format, args...)}
}

func payloadOf[T any]() func() any {
	return func() any { return new(T) }
}

// payloadSchemas is the decode target of every event type.
var payloadSchemas = map[enums.OutboxEventType]func() any{
	enums.EventOrderPlaced:              payloadOf[payloads.OrderPlacedEvent](),
	enums.EventOrderAllocationCommitted: payloadOf[payloads.AllocationCommittedEvent](),
	enums.EventOrderReservationExpired:  payloadOf[payloads.ReservationExpiredEvent](),
	enums.EventOrderPaymentProofAdded:   payloadOf[payloads.OrderStatusChangedEvent](),
	enums.EventOrderShipped:             payloadOf[payloads.OrderStatusChangedEvent](),
	enums.EventOrderCompleted:           payloadOf[payloads.OrderStatusChangedEvent](),
	enums.EventBatchRestocked:           payloadOf[payloads.BatchStockChangedEvent](),
	enums.EventBatchAdjusted:            payloadOf[payloads.BatchStockChangedEvent](),
}

// EventRegistry maps each supported event type to its descriptor.
type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NewEventRegistry routes order events to the orders topic and batch events
// to the inventory topic. It fails when an event type has no payload schema.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	topics := map[enums.OutboxAggregateType]string{
		enums.AggregateOrder: cfg.OrdersTopic,
		enums.AggregateBatch: cfg.InventoryTopic,
	}
	if cfg.OrdersTopic == "" {
		return nil, fmt.Errorf("orders topic is required")
	}
	if cfg.InventoryTopic == "" {
		return nil, fmt.Errorf("inventory topic is required")
	}

	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor, len(payloadSchemas))}
	for _, eventType := range enums.OutboxEventTypes() {
		factory, ok := payloadSchemas[eventType]
		if !ok {
			return nil, fmt.Errorf("no payload schema for %s", eventType)
		}
		aggregate := eventType.Aggregate()
		reg.entries[eventType] = EventDescriptor{
			EventType:      eventType,
			AggregateType:  aggregate,
			Topic:          topics[aggregate],
			PayloadFactory: factory,
		}
	}
	return reg, nil
}

// Topics lists every distinct topic the registry routes to, sorted.
func (r *EventRegistry) Topics() []string {
	out := make([]string, 0, 2)
	for _, desc := range r.entries {
		if !slices.Contains(out, desc.Topic) {
			out = append(out, desc.Topic)
		}
	}
	slices.Sort(out)
	return out
}

// Resolve validates the row and decodes its typed payload. Every failure is
// a NonRetryableError: a row that cannot be decoded now never will be.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	switch {
	case !ok:
		return nil, nonRetryable("unsupported event type %s", event.EventType)
	case desc.AggregateType != event.AggregateType:
		return nil, nonRetryable("aggregate mismatch: expected %s got %s", desc.AggregateType, event.AggregateType)
	case event.AggregateID == uuid.Nil:
		return nil, nonRetryable("missing aggregate_id")
	}

	envelope, err := outbox.DecodeEnvelope(event.Payload)
	if err != nil {
		return nil, nonRetryable("%s: %w", event.EventType, err)
	}

	payload := desc.PayloadFactory()
	if err := json.Unmarshal(envelope.Data, payload); err != nil {
		return nil, nonRetryable("decode %s payload: %w", event.EventType, err)
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: payload}, nil
}
