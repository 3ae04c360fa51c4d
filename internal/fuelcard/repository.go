package fuelcard

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

// Repository persists fuel card data in PostgreSQL.
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
		return errors.New("fuelcard repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const cardColumns = `id, card_number, employee_id, balance_cents, credit_limit_cents, daily_limit_cents, monthly_limit_cents, status, last_used_at, last_used_location, version, created_at, updated_at`

// GetCard loads the card without locking it.
func (r *Repository) GetCard(ctx context.Context, cardID int64) (Card, error) {
	return scanCard(r.pool.QueryRow(ctx, `SELECT `+cardColumns+` FROM fuel_cards WHERE id=$1`, cardID))
}

// ListTransactions returns transaction rows for the card, newest first.
func (r *Repository) ListTransactions(ctx context.Context, cardID int64, limit int) ([]Transaction, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `SELECT id, card_id, kind, amount_cents, previous_balance_cents, new_balance_cents, merchant, location, reference, actor_id, created_at
FROM fuel_card_transactions WHERE card_id=$1 ORDER BY id DESC LIMIT $2`, cardID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	txs := []Transaction{}
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(&t.ID, &t.CardID, &t.Kind, &t.AmountCents, &t.PreviousBalanceCents, &t.NewBalanceCents, &t.Merchant, &t.Location, &t.Reference, &t.ActorID, &t.CreatedAt); err != nil {
			return nil, err
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

func (r *txRepository) GetCardForUpdate(ctx context.Context, cardID int64) (Card, error) {
	return scanCard(r.tx.QueryRow(ctx, `SELECT `+cardColumns+` FROM fuel_cards WHERE id=$1 FOR UPDATE`, cardID))
}

func (r *txRepository) UpdateCardBalance(ctx context.Context, cardID, balance int64, usedAt *time.Time, usedLocation *string, version int64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE fuel_cards
SET balance_cents=$2,
    last_used_at=COALESCE($3, last_used_at),
    last_used_location=COALESCE($4, last_used_location),
    version=version+1,
    updated_at=NOW()
WHERE id=$1 AND version=$5`, cardID, balance, usedAt, usedLocation, version)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: fuel card %d", shared.ErrConflict, cardID)
	}
	return nil
}

func (r *txRepository) UpdateCardStatus(ctx context.Context, cardID int64, status Status, version int64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE fuel_cards SET status=$2, version=version+1, updated_at=NOW() WHERE id=$1 AND version=$3`, cardID, string(status), version)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: fuel card %d", shared.ErrConflict, cardID)
	}
	return nil
}

func (r *txRepository) InsertTransaction(ctx context.Context, t Transaction) (Transaction, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO fuel_card_transactions (card_id, kind, amount_cents, previous_balance_cents, new_balance_cents, merchant, location, reference, actor_id, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NOW()) RETURNING id, created_at`,
		t.CardID, string(t.Kind), t.AmountCents, t.PreviousBalanceCents, t.NewBalanceCents, t.Merchant, t.Location, t.Reference, t.ActorID).Scan(&t.ID, &t.CreatedAt)
	return t, err
}

func (r *txRepository) SumPurchasesSince(ctx context.Context, cardID int64, since time.Time) (int64, error) {
	var total int64
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(SUM(amount_cents), 0) FROM fuel_card_transactions
WHERE card_id=$1 AND kind='purchase' AND created_at >= $2`, cardID, since).Scan(&total)
	return total, err
}

func scanCard(row pgx.Row) (Card, error) {
	var card Card
	err := row.Scan(&card.ID, &card.CardNumber, &card.EmployeeID, &card.BalanceCents, &card.CreditLimitCents, &card.DailyLimitCents, &card.MonthlyLimitCents, &card.Status, &card.LastUsedAt, &card.LastUsedLocation, &card.Version, &card.CreatedAt, &card.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Card{}, fmt.Errorf("%w: fuel card", shared.ErrNotFound)
		}
		return Card{}, err
	}
	return card, nil
}
