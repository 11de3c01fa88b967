package orders

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidOrder is returned when a payload is missing required fields.
	ErrInvalidOrder = errors.New("orders: invalid order")

	// ErrStockChanged is returned when a line can no longer be fulfilled at
	// write time.
	ErrStockChanged = errors.New("orders: stock changed")

	// ErrOrderNotFound is returned when an order id does not exist.
	ErrOrderNotFound = errors.New("orders: order not found")

	// ErrSubmissionInFlight is returned when the same idempotency key is
	// already being processed.
	ErrSubmissionInFlight = errors.New("orders: submission already in flight")
)

// SubmissionError reports that the order store was unreachable or rejected
// the write. The caller may retry with the same payload.
type SubmissionError struct {
	Op  string
	Err error
}

func (e *SubmissionError) Error() string {
	if e.Err == nil {
		return "orders: " + e.Op + " failed"
	}
	return fmt.Sprintf("orders: %s: %v", e.Op, e.Err)
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}
