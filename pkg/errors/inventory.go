package errors

import "fmt"

// StockShortfall is attached to CodeInsufficientStock errors.
type StockShortfall struct {
	ProductID string `json:"product_id"`
	Shortfall int    `json:"shortfall"`
	BatchID   string `json:"batch_id,omitempty"`
}

type OrderStateDetails struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
	Action  string `json:"action"`
}

type ReservationDetails struct {
	BatchID   string `json:"batch_id"`
	Reserved  int    `json:"reserved"`
	Requested int    `json:"requested"`
}

func InsufficientStock(productID string, shortfall int) *Error {
	return New(CodeInsufficientStock, fmt.Sprintf("insufficient stock for product %s: short by %d", productID, shortfall)).
		WithDetails(StockShortfall{ProductID: productID, Shortfall: shortfall})
}

// InsufficientBatchStock is raised by a single-batch reserve; the shortfall is relative to that batch.
func InsufficientBatchStock(productID, batchID string, shortfall int) *Error {
	return New(CodeInsufficientStock, fmt.Sprintf("batch %s cannot cover request: short by %d", batchID, shortfall)).
		WithDetails(StockShortfall{ProductID: productID, BatchID: batchID, Shortfall: shortfall})
}

func InvalidOrderState(orderID, status, action string) *Error {
	return New(CodeInvalidOrderState, fmt.Sprintf("cannot %s order %s in status %s", action, orderID, status)).
		WithDetails(OrderStateDetails{OrderID: orderID, Status: status, Action: action})
}

func InsufficientReservation(batchID string, reserved, requested int) *Error {
	return New(CodeInsufficientReservation, fmt.Sprintf("batch %s holds %d reserved units, %d requested", batchID, reserved, requested)).
		WithDetails(ReservationDetails{BatchID: batchID, Reserved: reserved, Requested: requested})
}

func InvariantViolation(batchID, message string) *Error {
	return New(CodeInvariantViolation, fmt.Sprintf("batch %s: %s", batchID, message)).
		WithDetails(map[string]string{"batch_id": batchID})
}

func InvalidQuantity(qty int) *Error {
	return New(CodeInvalidQuantity, fmt.Sprintf("invalid quantity %d", qty)).
		WithDetails(map[string]int{"qty": qty})
}

func Busy(attempts int, cause error) *Error {
	return Wrap(CodeBusy, cause, fmt.Sprintf("lock contention persisted after %d attempts", attempts)).
		WithDetails(map[string]int{"attempts": attempts})
}
