package models

// All lists every persisted model, in dependency order, for schema bootstrap.
func All() []any {
	return []any{
		&Product{},
		&PriceTier{},
		&Batch{},
		&StockMovement{},
		&Order{},
		&OrderItem{},
		&OrderItemBatchAllocation{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}
