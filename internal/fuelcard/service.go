package fuelcard

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/routewise-ops/routewise/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetCard(ctx context.Context, cardID int64) (Card, error)
	ListTransactions(ctx context.Context, cardID int64, limit int) ([]Transaction, error)
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	GetCardForUpdate(ctx context.Context, cardID int64) (Card, error)
	UpdateCardBalance(ctx context.Context, cardID, balance int64, usedAt *time.Time, usedLocation *string, version int64) error
	UpdateCardStatus(ctx context.Context, cardID int64, status Status, version int64) error
	InsertTransaction(ctx context.Context, tx Transaction) (Transaction, error)
	SumPurchasesSince(ctx context.Context, cardID int64, since time.Time) (int64, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort de-duplicates client references.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Service is the Fuel Card Ledger. It owns balance writes and appends one
// immutable Transaction row per accepted mutation, atomically.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	idempotency IdempotencyPort
	now         func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, idem IdempotencyPort) *Service {
	return &Service{
		repo:        repo,
		audit:       audit,
		idempotency: idem,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// ApplyTransaction applies a purchase or credit to the card. Checks run in
// order: amount, card existence, card status, balance, configured limits.
// A rejected transaction leaves the balance untouched and writes no row.
func (s *Service) ApplyTransaction(ctx context.Context, input TransactionInput) (Transaction, error) {
	if !input.Kind.IsValid() {
		return Transaction{}, ErrInvalidKind
	}
	if input.AmountCents <= 0 {
		return Transaction{}, ErrInvalidAmount
	}

	reference := input.Reference
	insertedKey := false
	if reference == "" {
		reference = uuid.NewString()
	} else if s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, referenceKey(reference), "fuelcard"); err != nil {
			return Transaction{}, err
		}
		insertedKey = true
	}

	var row Transaction
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		card, err := tx.GetCardForUpdate(ctx, input.CardID)
		if err != nil {
			return err
		}
		if card.Status != StatusActive {
			return fmt.Errorf("%w: status %s", ErrCardInactive, card.Status)
		}

		now := s.now()
		var newBalance int64
		switch input.Kind {
		case KindPurchase:
			if input.AmountCents > card.BalanceCents {
				return ErrInsufficientBalance
			}
			if err := s.checkPurchaseLimits(ctx, tx, card, input.AmountCents, now); err != nil {
				return err
			}
			newBalance = card.BalanceCents - input.AmountCents
		case KindCredit:
			newBalance = card.BalanceCents + input.AmountCents
			if card.CreditLimitCents > 0 && newBalance > card.CreditLimitCents {
				return fmt.Errorf("%w: balance would exceed credit limit", ErrLimitExceeded)
			}
		}

		row, err = tx.InsertTransaction(ctx, Transaction{
			CardID:               card.ID,
			Kind:                 input.Kind,
			AmountCents:          input.AmountCents,
			PreviousBalanceCents: card.BalanceCents,
			NewBalanceCents:      newBalance,
			Merchant:             input.Merchant,
			Location:             input.Location,
			Reference:            reference,
			ActorID:              input.ActorID,
		})
		if err != nil {
			return err
		}

		// A purchase also stamps the card's last-used metadata.
		var usedAt *time.Time
		var usedLocation *string
		if input.Kind == KindPurchase {
			usedAt = &now
			if input.Location != "" {
				usedLocation = &input.Location
			}
		}
		return tx.UpdateCardBalance(ctx, card.ID, newBalance, usedAt, usedLocation, card.Version)
	})
	if err != nil {
		if insertedKey {
			_ = s.idempotency.Delete(ctx, referenceKey(reference))
		}
		return Transaction{}, err
	}

	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.ActorID,
			Action:   fmt.Sprintf("fuelcard:%s", input.Kind),
			Entity:   "fuel_card",
			EntityID: fmt.Sprintf("%d", input.CardID),
			Meta: map[string]any{
				"amount_cents": input.AmountCents,
				"previous":     row.PreviousBalanceCents,
				"new":          row.NewBalanceCents,
				"merchant":     input.Merchant,
				"reference":    reference,
			},
		})
	}
	return row, nil
}

// checkPurchaseLimits enforces the optional daily/monthly purchase caps,
// summing accepted purchases inside the same transaction.
func (s *Service) checkPurchaseLimits(ctx context.Context, tx TxRepository, card Card, amount int64, now time.Time) error {
	if card.DailyLimitCents > 0 {
		dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		spent, err := tx.SumPurchasesSince(ctx, card.ID, dayStart)
		if err != nil {
			return err
		}
		if spent+amount > card.DailyLimitCents {
			return fmt.Errorf("%w: daily limit", ErrLimitExceeded)
		}
	}
	if card.MonthlyLimitCents > 0 {
		monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		spent, err := tx.SumPurchasesSince(ctx, card.ID, monthStart)
		if err != nil {
			return err
		}
		if spent+amount > card.MonthlyLimitCents {
			return fmt.Errorf("%w: monthly limit", ErrLimitExceeded)
		}
	}
	return nil
}

// UpdateStatus moves the card through its lifecycle. Expired is terminal.
func (s *Service) UpdateStatus(ctx context.Context, cardID int64, target Status, actorID int64) (Card, error) {
	if !target.IsValid() {
		return Card{}, fmt.Errorf("%w: unknown status %q", shared.ErrInvalidInput, target)
	}
	var updated Card
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		card, err := tx.GetCardForUpdate(ctx, cardID)
		if err != nil {
			return err
		}
		if !card.Status.CanTransitionTo(target) {
			return fmt.Errorf("%w: %s -> %s", ErrIllegalStatusChange, card.Status, target)
		}
		if err := tx.UpdateCardStatus(ctx, cardID, target, card.Version); err != nil {
			return err
		}
		updated = card
		updated.Status = target
		updated.Version++
		return nil
	})
	if err != nil {
		return Card{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   "fuelcard:status",
			Entity:   "fuel_card",
			EntityID: fmt.Sprintf("%d", cardID),
			Meta:     map[string]any{"status": string(target)},
		})
	}
	return updated, nil
}

// GetCard returns the current card state.
func (s *Service) GetCard(ctx context.Context, cardID int64) (Card, error) {
	return s.repo.GetCard(ctx, cardID)
}

// ListTransactions returns the card's history, newest first.
func (s *Service) ListTransactions(ctx context.Context, cardID int64, limit int) ([]Transaction, error) {
	if _, err := s.repo.GetCard(ctx, cardID); err != nil {
		return nil, err
	}
	return s.repo.ListTransactions(ctx, cardID, limit)
}

func referenceKey(reference string) string {
	return fmt.Sprintf("fuelcard:%s", reference)
}
