package fuelcard

import (
	"errors"
	"fmt"
	"time"

	"github.com/routewise-ops/routewise/internal/shared"
)

// Status represents the lifecycle of a fuel card. Cards are never deleted;
// they end up blocked or expired.
type Status string

const (
	StatusActive  Status = "active"
	StatusBlocked Status = "blocked"
	StatusExpired Status = "expired"
)

// IsValid checks if the status is valid.
func (s Status) IsValid() bool {
	switch s {
	case StatusActive, StatusBlocked, StatusExpired:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether the status change is legal. Expired is
// terminal; active and blocked flip freely and either may expire.
func (s Status) CanTransitionTo(target Status) bool {
	if s == StatusExpired || s == target {
		return false
	}
	return target.IsValid()
}

// TransactionKind enumerates balance-affecting transaction types.
type TransactionKind string

const (
	// KindPurchase debits the card.
	KindPurchase TransactionKind = "purchase"
	// KindCredit tops the card up.
	KindCredit TransactionKind = "credit"
)

// IsValid checks if the kind is known.
func (k TransactionKind) IsValid() bool {
	return k == KindPurchase || k == KindCredit
}

// Card models a fuel card issued to an employee. All amounts are integer
// minor units (cents); balance never goes negative.
type Card struct {
	ID                int64
	CardNumber        string
	EmployeeID        int64
	BalanceCents      int64
	CreditLimitCents  int64
	DailyLimitCents   int64
	MonthlyLimitCents int64
	Status            Status
	LastUsedAt        *time.Time
	LastUsedLocation  *string
	Version           int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Transaction is an append-only record of one accepted balance mutation.
// For a purchase NewBalanceCents = PreviousBalanceCents - AmountCents,
// for a credit NewBalanceCents = PreviousBalanceCents + AmountCents.
type Transaction struct {
	ID                   int64
	CardID               int64
	Kind                 TransactionKind
	AmountCents          int64
	PreviousBalanceCents int64
	NewBalanceCents      int64
	Merchant             string
	Location             string
	Reference            string
	ActorID              int64
	CreatedAt            time.Time
}

// TransactionInput describes a requested card transaction. Reference is an
// optional client-supplied idempotency key; retried requests with the same
// reference are rejected as duplicates.
type TransactionInput struct {
	CardID      int64
	Kind        TransactionKind
	AmountCents int64
	Merchant    string
	Location    string
	Reference   string
	ActorID     int64
}

var (
	// ErrCardInactive rejects purchases and credits on blocked or expired cards.
	ErrCardInactive = errors.New("fuelcard: card is not active")
	// ErrInsufficientBalance rejects purchases exceeding the balance.
	ErrInsufficientBalance = errors.New("fuelcard: insufficient balance")
	// ErrLimitExceeded rejects transactions beyond a configured card limit.
	ErrLimitExceeded = errors.New("fuelcard: card limit exceeded")
	// ErrInvalidAmount rejects non-positive amounts.
	ErrInvalidAmount = fmt.Errorf("%w: amount must be positive", shared.ErrInvalidInput)
	// ErrInvalidKind rejects unknown transaction kinds.
	ErrInvalidKind = fmt.Errorf("%w: unknown transaction kind", shared.ErrInvalidInput)
	// ErrIllegalStatusChange rejects status edges outside the lifecycle.
	ErrIllegalStatusChange = errors.New("fuelcard: illegal status change")
)
