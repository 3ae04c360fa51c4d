package inventory

import (
	"context"
	"fmt"

	"github.com/routewise-ops/routewise/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetItem(ctx context.Context, itemID int64) (Item, error)
	ListTransactions(ctx context.Context, itemID int64, limit int) ([]Transaction, error)
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	GetItemForUpdate(ctx context.Context, itemID int64) (Item, error)
	UpdateItemQuantity(ctx context.Context, itemID, quantity, version int64) error
	UpdateItemReserved(ctx context.Context, itemID, reserved, version int64) error
	DeactivateItem(ctx context.Context, itemID, version int64) error
	InsertTransaction(ctx context.Context, tx Transaction) (Transaction, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service is the Stock Ledger: the single writer of inventory quantities.
// Every accepted mutation appends exactly one Transaction row in the same
// database transaction as the quantity write.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// AdjustStock sets the item quantity to target and records the movement. The
// returned Adjustment carries the previous quantity, the new quantity and the
// signed delta with its derived classification.
func (s *Service) AdjustStock(ctx context.Context, itemID, target, actorID int64, note string) (Adjustment, error) {
	if target < 0 {
		return Adjustment{}, ErrNegativeQuantity
	}
	var result Adjustment
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		item, err := tx.GetItemForUpdate(ctx, itemID)
		if err != nil {
			return err
		}
		if target < item.Reserved {
			return fmt.Errorf("%w: %d reserved", ErrBelowReserved, item.Reserved)
		}
		delta := target - item.Quantity
		row, err := tx.InsertTransaction(ctx, Transaction{
			ItemID:      itemID,
			Delta:       delta,
			PreviousQty: item.Quantity,
			NewQty:      target,
			Kind:        KindForDelta(delta),
			ActorID:     actorID,
			Note:        note,
		})
		if err != nil {
			return err
		}
		if err := tx.UpdateItemQuantity(ctx, itemID, target, item.Version); err != nil {
			return err
		}
		result = Adjustment{
			ItemID:      itemID,
			Previous:    item.Quantity,
			New:         target,
			Delta:       delta,
			Kind:        row.Kind,
			Transaction: row,
		}
		return nil
	})
	if err != nil {
		return Adjustment{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   fmt.Sprintf("inventory:%s", result.Kind),
			Entity:   "inventory_item",
			EntityID: fmt.Sprintf("%d", itemID),
			Meta: map[string]any{
				"previous": result.Previous,
				"new":      result.New,
				"delta":    result.Delta,
				"note":     note,
			},
		})
	}
	return result, nil
}

// Reserve moves qty units from available into reserved stock. Reservations do
// not change the quantity on hand, so no transaction row is written.
func (s *Service) Reserve(ctx context.Context, itemID, qty, actorID int64) error {
	if qty <= 0 {
		return ErrInvalidReservation
	}
	return s.moveReserved(ctx, itemID, qty, actorID, "inventory:reserve")
}

// Release returns qty reserved units back to available stock.
func (s *Service) Release(ctx context.Context, itemID, qty, actorID int64) error {
	if qty <= 0 {
		return ErrInvalidReservation
	}
	return s.moveReserved(ctx, itemID, -qty, actorID, "inventory:release")
}

func (s *Service) moveReserved(ctx context.Context, itemID, change, actorID int64, action string) error {
	var reserved int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		item, err := tx.GetItemForUpdate(ctx, itemID)
		if err != nil {
			return err
		}
		reserved = item.Reserved + change
		if reserved < 0 || reserved > item.Quantity {
			return ErrInvalidReservation
		}
		return tx.UpdateItemReserved(ctx, itemID, reserved, item.Version)
	})
	if err != nil {
		return err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   action,
			Entity:   "inventory_item",
			EntityID: fmt.Sprintf("%d", itemID),
			Meta:     map[string]any{"change": change, "reserved": reserved},
		})
	}
	return nil
}

// Deactivate soft-deletes the item. History stays; further adjustments are
// rejected as not found.
func (s *Service) Deactivate(ctx context.Context, itemID, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		item, err := tx.GetItemForUpdate(ctx, itemID)
		if err != nil {
			return err
		}
		return tx.DeactivateItem(ctx, itemID, item.Version)
	})
	if err != nil {
		return err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   "inventory:deactivate",
			Entity:   "inventory_item",
			EntityID: fmt.Sprintf("%d", itemID),
		})
	}
	return nil
}

// GetItem returns the current item state.
func (s *Service) GetItem(ctx context.Context, itemID int64) (Item, error) {
	return s.repo.GetItem(ctx, itemID)
}

// ListTransactions returns the item's movement history, newest first.
func (s *Service) ListTransactions(ctx context.Context, itemID int64, limit int) ([]Transaction, error) {
	if _, err := s.repo.GetItem(ctx, itemID); err != nil {
		return nil, err
	}
	return s.repo.ListTransactions(ctx, itemID, limit)
}
