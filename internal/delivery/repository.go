package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/routewise-ops/routewise/internal/platform/db"
	"github.com/routewise-ops/routewise/internal/shared"
)

const deliveryColumns = `id, delivery_number, supplier_id, store_id, driver_id, status, expected_date, actual_date, total_amount_cents, total_items, priority, version, created_at, updated_at`

// Repository persists deliveries in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("delivery repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// Get loads the delivery without locking it.
func (r *Repository) Get(ctx context.Context, deliveryID int64) (Delivery, error) {
	return scanDelivery(r.pool.QueryRow(ctx, `SELECT `+deliveryColumns+` FROM deliveries WHERE id=$1`, deliveryID))
}

// ListItems returns the delivery lines in insertion order.
func (r *Repository) ListItems(ctx context.Context, deliveryID int64) ([]Item, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, delivery_id, product_id, quantity, unit_price_cents
FROM delivery_items WHERE delivery_id=$1 ORDER BY id`, deliveryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Item{}
	for rows.Next() {
		var item Item
		if err := rows.Scan(&item.ID, &item.DeliveryID, &item.ProductID, &item.Quantity, &item.UnitPriceCents); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// ListEvents returns the delivery's events, oldest first.
func (r *Repository) ListEvents(ctx context.Context, deliveryID int64) ([]Event, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, delivery_id, event_type, note, actor_id, created_at
FROM delivery_events WHERE delivery_id=$1 ORDER BY id`, deliveryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	events := []Event{}
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.DeliveryID, &e.Type, &e.Note, &e.ActorID, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (r *txRepository) InsertDelivery(ctx context.Context, d Delivery) (Delivery, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO deliveries (delivery_number, supplier_id, store_id, status, expected_date, total_amount_cents, total_items, priority, version, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,1,NOW(),NOW()) RETURNING id, version, created_at, updated_at`,
		d.DeliveryNumber, d.SupplierID, d.StoreID, string(d.Status), d.ExpectedDate, d.TotalAmountCents, d.TotalItems, d.Priority).
		Scan(&d.ID, &d.Version, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return Delivery{}, err
	}
	return d, nil
}

func (r *txRepository) InsertItems(ctx context.Context, deliveryID int64, items []ItemInput) error {
	for _, item := range items {
		if _, err := r.tx.Exec(ctx, `INSERT INTO delivery_items (delivery_id, product_id, quantity, unit_price_cents)
VALUES ($1,$2,$3,$4)`, deliveryID, item.ProductID, item.Quantity, item.UnitPriceCents); err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) InsertEvent(ctx context.Context, e Event) (Event, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO delivery_events (delivery_id, event_type, note, actor_id, created_at)
VALUES ($1,$2,$3,$4,NOW()) RETURNING id, created_at`,
		e.DeliveryID, string(e.Type), e.Note, e.ActorID).Scan(&e.ID, &e.CreatedAt)
	return e, err
}

func (r *txRepository) GetDeliveryForUpdate(ctx context.Context, deliveryID int64) (Delivery, error) {
	return scanDelivery(r.tx.QueryRow(ctx, `SELECT `+deliveryColumns+` FROM deliveries WHERE id=$1 FOR UPDATE`, deliveryID))
}

func (r *txRepository) UpdateStatus(ctx context.Context, deliveryID int64, status Status, actualDate *time.Time, version int64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE deliveries SET status=$2, actual_date=COALESCE($3, actual_date), version=version+1, updated_at=NOW()
WHERE id=$1 AND version=$4`, deliveryID, string(status), actualDate, version)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: delivery %d", shared.ErrConflict, deliveryID)
	}
	return nil
}

func (r *txRepository) UpdateDriver(ctx context.Context, deliveryID, driverID, version int64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE deliveries SET driver_id=$2, version=version+1, updated_at=NOW()
WHERE id=$1 AND version=$3`, deliveryID, driverID, version)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: delivery %d", shared.ErrConflict, deliveryID)
	}
	return nil
}

func scanDelivery(row pgx.Row) (Delivery, error) {
	var d Delivery
	err := row.Scan(&d.ID, &d.DeliveryNumber, &d.SupplierID, &d.StoreID, &d.DriverID, &d.Status,
		&d.ExpectedDate, &d.ActualDate, &d.TotalAmountCents, &d.TotalItems, &d.Priority,
		&d.Version, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Delivery{}, fmt.Errorf("%w: delivery", shared.ErrNotFound)
		}
		return Delivery{}, err
	}
	return d, nil
}
