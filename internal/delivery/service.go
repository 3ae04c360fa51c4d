package delivery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/routewise-ops/routewise/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, deliveryID int64) (Delivery, error)
	ListItems(ctx context.Context, deliveryID int64) ([]Item, error)
	ListEvents(ctx context.Context, deliveryID int64) ([]Event, error)
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	InsertDelivery(ctx context.Context, d Delivery) (Delivery, error)
	InsertItems(ctx context.Context, deliveryID int64, items []ItemInput) error
	InsertEvent(ctx context.Context, e Event) (Event, error)
	GetDeliveryForUpdate(ctx context.Context, deliveryID int64) (Delivery, error)
	UpdateStatus(ctx context.Context, deliveryID int64, status Status, actualDate *time.Time, version int64) error
	UpdateDriver(ctx context.Context, deliveryID, driverID, version int64) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service governs delivery status transitions. Role and ownership checks on
// the actor happen upstream; this service only enforces state legality.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// Create persists a new pending delivery with derived totals and appends the
// created event in the same transaction.
func (s *Service) Create(ctx context.Context, input CreateInput) (Delivery, error) {
	if strings.TrimSpace(input.DeliveryNumber) == "" {
		return Delivery{}, fmt.Errorf("%w: delivery number required", shared.ErrInvalidInput)
	}
	if input.SupplierID <= 0 || input.StoreID <= 0 {
		return Delivery{}, fmt.Errorf("%w: supplier and store required", shared.ErrInvalidInput)
	}
	if input.Priority < 1 || input.Priority > 5 {
		return Delivery{}, ErrInvalidPriority
	}
	if len(input.Items) == 0 {
		return Delivery{}, ErrNoItems
	}
	for _, item := range input.Items {
		if item.Quantity <= 0 || item.UnitPriceCents < 0 {
			return Delivery{}, ErrInvalidItem
		}
	}

	amount, lines := computeTotals(input.Items)
	var created Delivery
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		d, err := tx.InsertDelivery(ctx, Delivery{
			DeliveryNumber:   input.DeliveryNumber,
			SupplierID:       input.SupplierID,
			StoreID:          input.StoreID,
			Status:           StatusPending,
			ExpectedDate:     input.ExpectedDate,
			TotalAmountCents: amount,
			TotalItems:       lines,
			Priority:         input.Priority,
		})
		if err != nil {
			return err
		}
		if err := tx.InsertItems(ctx, d.ID, input.Items); err != nil {
			return err
		}
		if _, err := tx.InsertEvent(ctx, Event{
			DeliveryID: d.ID,
			Type:       EventCreated,
			ActorID:    input.ActorID,
		}); err != nil {
			return err
		}
		created = d
		return nil
	})
	if err != nil {
		return Delivery{}, err
	}

	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.ActorID,
			Action:   "delivery:create",
			Entity:   "delivery",
			EntityID: fmt.Sprintf("%d", created.ID),
			Meta: map[string]any{
				"delivery_number":    created.DeliveryNumber,
				"total_amount_cents": created.TotalAmountCents,
				"total_items":        created.TotalItems,
			},
		})
	}
	return created, nil
}

// Transition moves the delivery to target if the edge is legal, writing the
// new status and its event atomically. actualDate is required for delivered
// and ignored for every other target.
func (s *Service) Transition(ctx context.Context, deliveryID int64, target Status, actorID int64, note string, actualDate *time.Time) (TransitionResult, error) {
	if !target.IsValid() {
		return TransitionResult{}, fmt.Errorf("%w: unknown status %q", shared.ErrInvalidInput, target)
	}
	if target == StatusDelivered && actualDate == nil {
		return TransitionResult{}, ErrMissingActualDate
	}
	if target != StatusDelivered {
		actualDate = nil
	}

	var result TransitionResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		d, err := tx.GetDeliveryForUpdate(ctx, deliveryID)
		if err != nil {
			return err
		}
		if !d.Status.CanTransitionTo(target) {
			return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, d.Status, target)
		}
		if err := tx.UpdateStatus(ctx, deliveryID, target, actualDate, d.Version); err != nil {
			return err
		}
		event, err := tx.InsertEvent(ctx, Event{
			DeliveryID: deliveryID,
			Type:       EventForStatus(target),
			Note:       note,
			ActorID:    actorID,
		})
		if err != nil {
			return err
		}
		d.Status = target
		d.ActualDate = actualDate
		d.Version++
		result = TransitionResult{Delivery: d, Event: event}
		return nil
	})
	if err != nil {
		return TransitionResult{}, err
	}

	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   fmt.Sprintf("delivery:%s", target),
			Entity:   "delivery",
			EntityID: fmt.Sprintf("%d", deliveryID),
			Meta:     map[string]any{"note": note},
		})
	}
	return result, nil
}

// AssignDriver sets the delivery's driver. Allowed while pending or in
// transit; the first assignment appends a dispatched event.
func (s *Service) AssignDriver(ctx context.Context, deliveryID, driverID, actorID int64) (Delivery, error) {
	if driverID <= 0 {
		return Delivery{}, fmt.Errorf("%w: driver id required", shared.ErrInvalidInput)
	}
	var updated Delivery
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		d, err := tx.GetDeliveryForUpdate(ctx, deliveryID)
		if err != nil {
			return err
		}
		if d.Status.IsTerminal() {
			return fmt.Errorf("%w: cannot assign driver in status %s", ErrIllegalTransition, d.Status)
		}
		firstAssignment := d.DriverID == nil
		if err := tx.UpdateDriver(ctx, deliveryID, driverID, d.Version); err != nil {
			return err
		}
		if firstAssignment {
			if _, err := tx.InsertEvent(ctx, Event{
				DeliveryID: deliveryID,
				Type:       EventDispatched,
				ActorID:    actorID,
			}); err != nil {
				return err
			}
		}
		d.DriverID = &driverID
		d.Version++
		updated = d
		return nil
	})
	if err != nil {
		return Delivery{}, err
	}

	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   "delivery:assign_driver",
			Entity:   "delivery",
			EntityID: fmt.Sprintf("%d", deliveryID),
			Meta:     map[string]any{"driver_id": driverID},
		})
	}
	return updated, nil
}

// Get returns the current delivery state.
func (s *Service) Get(ctx context.Context, deliveryID int64) (Delivery, error) {
	return s.repo.Get(ctx, deliveryID)
}

// ListItems returns the delivery's lines.
func (s *Service) ListItems(ctx context.Context, deliveryID int64) ([]Item, error) {
	if _, err := s.repo.Get(ctx, deliveryID); err != nil {
		return nil, err
	}
	return s.repo.ListItems(ctx, deliveryID)
}

// ListEvents returns the delivery's audit trail, oldest first.
func (s *Service) ListEvents(ctx context.Context, deliveryID int64) ([]Event, error) {
	if _, err := s.repo.Get(ctx, deliveryID); err != nil {
		return nil, err
	}
	return s.repo.ListEvents(ctx, deliveryID)
}
