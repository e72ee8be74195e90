package enums

import (
	"fmt"
	"slices"
)

// OutboxAggregateType names the entity an outbox event is keyed by.
type OutboxAggregateType string

const (
	AggregateOrder OutboxAggregateType = "order"
	AggregateBatch OutboxAggregateType = "batch"
)

func (a OutboxAggregateType) IsValid() bool {
	return a == AggregateOrder || a == AggregateBatch
}

func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	if a := OutboxAggregateType(value); a.IsValid() {
		return a, nil
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType is the routing name of a domain event.
type OutboxEventType string

const (
	EventOrderPlaced              OutboxEventType = "order.placed"
	EventOrderAllocationCommitted OutboxEventType = "order.allocation_committed"
	EventOrderReservationExpired  OutboxEventType = "order.reservation_expired"
	EventOrderPaymentProofAdded   OutboxEventType = "order.payment_proof_uploaded"
	EventOrderShipped             OutboxEventType = "order.shipped"
	EventOrderCompleted           OutboxEventType = "order.completed"
	EventBatchRestocked           OutboxEventType = "inventory.batch_restocked"
	EventBatchAdjusted            OutboxEventType = "inventory.batch_adjusted"
)

// eventAggregates fixes the aggregate every event type belongs to.
var eventAggregates = map[OutboxEventType]OutboxAggregateType{
	EventOrderPlaced:              AggregateOrder,
	EventOrderAllocationCommitted: AggregateOrder,
	EventOrderReservationExpired:  AggregateOrder,
	EventOrderPaymentProofAdded:   AggregateOrder,
	EventOrderShipped:             AggregateOrder,
	EventOrderCompleted:           AggregateOrder,
	EventBatchRestocked:           AggregateBatch,
	EventBatchAdjusted:            AggregateBatch,
}

func (e OutboxEventType) IsValid() bool {
	_, ok := eventAggregates[e]
	return ok
}

// Aggregate returns the aggregate type e is emitted for, or "" when e is
// unknown.
func (e OutboxEventType) Aggregate() OutboxAggregateType {
	return eventAggregates[e]
}

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	if e := OutboxEventType(value); e.IsValid() {
		return e, nil
	}
	return "", fmt.Errorf("invalid event type %q", value)
}

// OutboxEventTypes lists every event type in a stable order.
func OutboxEventTypes() []OutboxEventType {
	types := make([]OutboxEventType, 0, len(eventAggregates))
	for e := range eventAggregates {
		types = append(types, e)
	}
	slices.Sort(types)
	return types
}
