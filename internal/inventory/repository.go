package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/routewise-ops/routewise/internal/platform/db"
	"github.com/routewise-ops/routewise/internal/shared"
)

// Repository persists inventory data in PostgreSQL.
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
		return errors.New("inventory repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// GetItem loads the item without locking it.
func (r *Repository) GetItem(ctx context.Context, itemID int64) (Item, error) {
	return scanItem(r.pool.QueryRow(ctx, `SELECT id, sku, name, quantity, reserved, reorder_level, active, version, created_at, updated_at
FROM inventory_items WHERE id=$1`, itemID))
}

// ListTransactions returns movement rows for the item, newest first.
func (r *Repository) ListTransactions(ctx context.Context, itemID int64, limit int) ([]Transaction, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `SELECT id, item_id, delta, previous_qty, new_qty, kind, actor_id, note, created_at
FROM inventory_transactions WHERE item_id=$1 ORDER BY id DESC LIMIT $2`, itemID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	txs := []Transaction{}
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(&t.ID, &t.ItemID, &t.Delta, &t.PreviousQty, &t.NewQty, &t.Kind, &t.ActorID, &t.Note, &t.CreatedAt); err != nil {
			return nil, err
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

func (r *txRepository) GetItemForUpdate(ctx context.Context, itemID int64) (Item, error) {
	return scanItem(r.tx.QueryRow(ctx, `SELECT id, sku, name, quantity, reserved, reorder_level, active, version, created_at, updated_at
FROM inventory_items WHERE id=$1 AND active FOR UPDATE`, itemID))
}

func (r *txRepository) UpdateItemQuantity(ctx context.Context, itemID, quantity, version int64) error {
	return r.versionedUpdate(ctx, `UPDATE inventory_items SET quantity=$2, version=version+1, updated_at=NOW() WHERE id=$1 AND version=$3`, itemID, quantity, version)
}

func (r *txRepository) UpdateItemReserved(ctx context.Context, itemID, reserved, version int64) error {
	return r.versionedUpdate(ctx, `UPDATE inventory_items SET reserved=$2, version=version+1, updated_at=NOW() WHERE id=$1 AND version=$3`, itemID, reserved, version)
}

func (r *txRepository) DeactivateItem(ctx context.Context, itemID, version int64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE inventory_items SET active=FALSE, version=version+1, updated_at=NOW() WHERE id=$1 AND version=$2`, itemID, version)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrConflict
	}
	return nil
}

func (r *txRepository) InsertTransaction(ctx context.Context, t Transaction) (Transaction, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO inventory_transactions (item_id, delta, previous_qty, new_qty, kind, actor_id, note, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,NOW()) RETURNING id, created_at`,
		t.ItemID, t.Delta, t.PreviousQty, t.NewQty, string(t.Kind), t.ActorID, t.Note).Scan(&t.ID, &t.CreatedAt)
	return t, err
}

// versionedUpdate guards the read-modify-write cycle: the row is already
// locked FOR UPDATE, the version predicate catches anything that slipped by.
func (r *txRepository) versionedUpdate(ctx context.Context, sql string, itemID int64, value, version int64) error {
	tag, err := r.tx.Exec(ctx, sql, itemID, value, version)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: inventory item %d", shared.ErrConflict, itemID)
	}
	return nil
}

func scanItem(row pgx.Row) (Item, error) {
	var item Item
	err := row.Scan(&item.ID, &item.SKU, &item.Name, &item.Quantity, &item.Reserved, &item.ReorderLevel, &item.Active, &item.Version, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Item{}, fmt.Errorf("%w: inventory item", shared.ErrNotFound)
		}
		return Item{}, err
	}
	return item, nil
}
