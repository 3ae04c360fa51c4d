package delivery

import (
	"errors"
	"fmt"
	"time"

	"github.com/routewise-ops/routewise/internal/shared"
)

// Status represents the lifecycle of a delivery.
type Status string

const (
	StatusPending   Status = "pending"
	StatusInTransit Status = "in_transit"
	StatusDelivered Status = "delivered"
	StatusCanceled  Status = "canceled"
)

// IsValid checks if the status is valid.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusInTransit, StatusDelivered, StatusCanceled:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transition is legal.
func (s Status) IsTerminal() bool {
	return s == StatusDelivered || s == StatusCanceled
}

// CanTransitionTo reports whether the edge is in the allowed set:
// pending -> in_transit | canceled, in_transit -> delivered | canceled.
func (s Status) CanTransitionTo(target Status) bool {
	switch s {
	case StatusPending:
		return target == StatusInTransit || target == StatusCanceled
	case StatusInTransit:
		return target == StatusDelivered || target == StatusCanceled
	default:
		return false
	}
}

// EventType enumerates delivery event types. Transition events mirror the
// target status; dispatched marks the first driver assignment.
type EventType string

const (
	EventCreated    EventType = "created"
	EventDispatched EventType = "dispatched"
	EventInTransit  EventType = "in_transit"
	EventDelivered  EventType = "delivered"
	EventCanceled   EventType = "canceled"
)

// EventForStatus maps an accepted target status to its event type.
func EventForStatus(s Status) EventType {
	return EventType(s)
}

// Delivery models a supplier-to-store shipment. Totals are derived from the
// item set at creation time and never mutated afterwards; status and driver
// assignment are the only mutable fields.
type Delivery struct {
	ID               int64
	DeliveryNumber   string
	SupplierID       int64
	StoreID          int64
	DriverID         *int64
	Status           Status
	ExpectedDate     time.Time
	ActualDate       *time.Time
	TotalAmountCents int64
	TotalItems       int64
	Priority         int
	Version          int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Item is one delivery line.
type Item struct {
	ID             int64
	DeliveryID     int64
	ProductID      int64
	Quantity       int64
	UnitPriceCents int64
}

// Event is an append-only audit record: one per creation, one per accepted
// transition and one for the first driver assignment.
type Event struct {
	ID         int64
	DeliveryID int64
	Type       EventType
	Note       string
	ActorID    int64
	CreatedAt  time.Time
}

// ItemInput describes one requested delivery line.
type ItemInput struct {
	ProductID      int64
	Quantity       int64
	UnitPriceCents int64
}

// CreateInput describes a requested delivery.
type CreateInput struct {
	DeliveryNumber string
	SupplierID     int64
	StoreID        int64
	ExpectedDate   time.Time
	Priority       int
	Items          []ItemInput
	ActorID        int64
}

// TransitionResult confirms a status change together with the appended event.
type TransitionResult struct {
	Delivery Delivery
	Event    Event
}

// computeTotals derives the immutable totals: amount is the sum of
// quantity times unit price, items is the line count.
func computeTotals(items []ItemInput) (amountCents int64, lineCount int64) {
	for _, item := range items {
		amountCents += item.Quantity * item.UnitPriceCents
	}
	return amountCents, int64(len(items))
}

var (
	// ErrIllegalTransition rejects an edge outside the state machine.
	ErrIllegalTransition = errors.New("delivery: illegal status transition")
	// ErrMissingActualDate rejects delivered transitions without a date.
	ErrMissingActualDate = fmt.Errorf("%w: actual delivery date required", shared.ErrInvalidInput)
	// ErrNoItems rejects deliveries with an empty item set.
	ErrNoItems = fmt.Errorf("%w: at least one item required", shared.ErrInvalidInput)
	// ErrInvalidItem rejects non-positive quantities or negative prices.
	ErrInvalidItem = fmt.Errorf("%w: item quantity must be positive and unit price non-negative", shared.ErrInvalidInput)
	// ErrInvalidPriority rejects priorities outside 1..5.
	ErrInvalidPriority = fmt.Errorf("%w: priority must be between 1 and 5", shared.ErrInvalidInput)
)
