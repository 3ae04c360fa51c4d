package inventory

import (
	"fmt"
	"time"

	"github.com/routewise-ops/routewise/internal/shared"
)

// TransactionKind classifies a stock movement by the sign of its delta.
type TransactionKind string

const (
	// KindInbound marks a positive delta.
	KindInbound TransactionKind = "inbound"
	// KindOutbound marks a negative delta.
	KindOutbound TransactionKind = "outbound"
	// KindAdjustment marks a zero delta (a recount that confirmed the level).
	KindAdjustment TransactionKind = "adjustment"
)

// KindForDelta derives the classification from the signed delta.
func KindForDelta(delta int64) TransactionKind {
	switch {
	case delta > 0:
		return KindInbound
	case delta < 0:
		return KindOutbound
	default:
		return KindAdjustment
	}
}

// Item is a product inventory record. Quantity never goes negative and
// Reserved never exceeds Quantity. Only the Stock Ledger writes these fields.
type Item struct {
	ID           int64
	SKU          string
	Name         string
	Quantity     int64
	Reserved     int64
	ReorderLevel int64
	Active       bool
	Version      int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Available returns the sellable quantity.
func (i Item) Available() int64 {
	return i.Quantity - i.Reserved
}

// Transaction is an append-only record of one accepted stock mutation.
// NewQty = PreviousQty + Delta always holds.
type Transaction struct {
	ID          int64
	ItemID      int64
	Delta       int64
	PreviousQty int64
	NewQty      int64
	Kind        TransactionKind
	ActorID     int64
	Note        string
	CreatedAt   time.Time
}

// Adjustment is the result returned to callers of AdjustStock.
type Adjustment struct {
	ItemID      int64
	Previous    int64
	New         int64
	Delta       int64
	Kind        TransactionKind
	Transaction Transaction
}

var (
	// ErrNegativeQuantity rejects a negative target quantity.
	ErrNegativeQuantity = fmt.Errorf("%w: quantity must not be negative", shared.ErrInvalidInput)
	// ErrBelowReserved rejects a target quantity below the reserved counter.
	ErrBelowReserved = fmt.Errorf("%w: quantity below reserved stock", shared.ErrInvalidInput)
	// ErrInvalidReservation rejects reserve/release amounts that would break
	// 0 <= reserved <= quantity.
	ErrInvalidReservation = fmt.Errorf("%w: reservation out of range", shared.ErrInvalidInput)
)
