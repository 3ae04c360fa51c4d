package fuelcard

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/routewise-ops/routewise/internal/shared"
)

type memoryRepo struct {
	cards  map[int64]*Card
	txs    []Transaction
	nextID int64
	clock  func() time.Time

	beforeWrite func()
}

func newMemoryRepo(cards ...Card) *memoryRepo {
	repo := &memoryRepo{
		cards: make(map[int64]*Card),
		clock: func() time.Time { return time.Now().UTC() },
	}
	for i := range cards {
		card := cards[i]
		if card.Version == 0 {
			card.Version = 1
		}
		repo.cards[card.ID] = &card
	}
	return repo
}

type memoryTx struct {
	repo *memoryRepo

	// pending buffers appended rows until commit, so a failed callback
	// leaves no trace, matching the real transaction.
	pending []Transaction
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx := &memoryTx{repo: r}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	r.txs = append(r.txs, tx.pending...)
	return nil
}

func (r *memoryRepo) GetCard(ctx context.Context, cardID int64) (Card, error) {
	card, ok := r.cards[cardID]
	if !ok {
		return Card{}, shared.ErrNotFound
	}
	return *card, nil
}

func (r *memoryRepo) ListTransactions(ctx context.Context, cardID int64, limit int) ([]Transaction, error) {
	var out []Transaction
	for i := len(r.txs) - 1; i >= 0; i-- {
		if r.txs[i].CardID == cardID {
			out = append(out, r.txs[i])
		}
	}
	return out, nil
}

func (tx *memoryTx) GetCardForUpdate(ctx context.Context, cardID int64) (Card, error) {
	card, ok := tx.repo.cards[cardID]
	if !ok {
		return Card{}, shared.ErrNotFound
	}
	return *card, nil
}

func (tx *memoryTx) UpdateCardBalance(ctx context.Context, cardID, balance int64, usedAt *time.Time, usedLocation *string, version int64) error {
	if tx.repo.beforeWrite != nil {
		hook := tx.repo.beforeWrite
		tx.repo.beforeWrite = nil
		hook()
	}
	card := tx.repo.cards[cardID]
	if card.Version != version {
		return shared.ErrConflict
	}
	card.BalanceCents = balance
	if usedAt != nil {
		card.LastUsedAt = usedAt
	}
	if usedLocation != nil {
		card.LastUsedLocation = usedLocation
	}
	card.Version++
	return nil
}

func (tx *memoryTx) UpdateCardStatus(ctx context.Context, cardID int64, status Status, version int64) error {
	card := tx.repo.cards[cardID]
	if card.Version != version {
		return shared.ErrConflict
	}
	card.Status = status
	card.Version++
	return nil
}

func (tx *memoryTx) InsertTransaction(ctx context.Context, t Transaction) (Transaction, error) {
	tx.repo.nextID++
	t.ID = tx.repo.nextID
	t.CreatedAt = tx.repo.clock()
	tx.pending = append(tx.pending, t)
	return t, nil
}

func (tx *memoryTx) SumPurchasesSince(ctx context.Context, cardID int64, since time.Time) (int64, error) {
	var total int64
	for _, rows := range [][]Transaction{tx.repo.txs, tx.pending} {
		for _, t := range rows {
			if t.CardID == cardID && t.Kind == KindPurchase && !t.CreatedAt.Before(since) {
				total += t.AmountCents
			}
		}
	}
	return total, nil
}

type memoryIdem struct {
	keys map[string]bool
}

func (m *memoryIdem) CheckAndInsert(ctx context.Context, key, module string) error {
	if m.keys == nil {
		m.keys = make(map[string]bool)
	}
	if m.keys[key] {
		return shared.ErrDuplicateReference
	}
	m.keys[key] = true
	return nil
}

func (m *memoryIdem) Delete(ctx context.Context, key string) error {
	delete(m.keys, key)
	return nil
}

func activeCard(id, balance int64) Card {
	return Card{ID: id, CardNumber: "FC-0001", EmployeeID: 42, BalanceCents: balance, Status: StatusActive}
}

func TestPurchaseInsufficientBalance(t *testing.T) {
	repo := newMemoryRepo(activeCard(1, 10000))
	svc := NewService(repo, nil, nil)

	_, err := svc.ApplyTransaction(context.Background(), TransactionInput{CardID: 1, Kind: KindPurchase, AmountCents: 15000, ActorID: 9})
	require.ErrorIs(t, err, ErrInsufficientBalance)
	require.Equal(t, int64(10000), repo.cards[1].BalanceCents)
	require.Empty(t, repo.txs)
}

func TestPurchaseDebitsBalance(t *testing.T) {
	repo := newMemoryRepo(activeCard(1, 10000))
	svc := NewService(repo, nil, nil)

	row, err := svc.ApplyTransaction(context.Background(), TransactionInput{CardID: 1, Kind: KindPurchase, AmountCents: 4000, Merchant: "Shell", Location: "Depot 3", ActorID: 9})
	require.NoError(t, err)
	require.Equal(t, int64(10000), row.PreviousBalanceCents)
	require.Equal(t, int64(6000), row.NewBalanceCents)
	require.Len(t, repo.txs, 1)

	card := repo.cards[1]
	require.Equal(t, int64(6000), card.BalanceCents)
	require.NotNil(t, card.LastUsedAt)
	require.NotNil(t, card.LastUsedLocation)
	require.Equal(t, "Depot 3", *card.LastUsedLocation)
}

func TestCreditTopsUpWithoutTouchingLastUsed(t *testing.T) {
	repo := newMemoryRepo(activeCard(1, 2500))
	svc := NewService(repo, nil, nil)

	row, err := svc.ApplyTransaction(context.Background(), TransactionInput{CardID: 1, Kind: KindCredit, AmountCents: 1500, ActorID: 9})
	require.NoError(t, err)
	require.Equal(t, int64(4000), row.NewBalanceCents)
	require.Nil(t, repo.cards[1].LastUsedAt)
}

func TestRejectsInvalidInput(t *testing.T) {
	repo := newMemoryRepo(activeCard(1, 1000))
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	_, err := svc.ApplyTransaction(ctx, TransactionInput{CardID: 1, Kind: KindPurchase, AmountCents: 0})
	require.ErrorIs(t, err, shared.ErrInvalidInput)

	_, err = svc.ApplyTransaction(ctx, TransactionInput{CardID: 1, Kind: "refund", AmountCents: 100})
	require.ErrorIs(t, err, ErrInvalidKind)

	_, err = svc.ApplyTransaction(ctx, TransactionInput{CardID: 99, Kind: KindPurchase, AmountCents: 100})
	require.ErrorIs(t, err, shared.ErrNotFound)
	require.Empty(t, repo.txs)
}

func TestInactiveCardRejected(t *testing.T) {
	blocked := activeCard(1, 5000)
	blocked.Status = StatusBlocked
	expired := activeCard(2, 5000)
	expired.Status = StatusExpired
	repo := newMemoryRepo(blocked, expired)
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	for _, id := range []int64{1, 2} {
		_, err := svc.ApplyTransaction(ctx, TransactionInput{CardID: id, Kind: KindCredit, AmountCents: 100, ActorID: 9})
		require.ErrorIs(t, err, ErrCardInactive)
	}
	require.Empty(t, repo.txs)
}

func TestDailyLimit(t *testing.T) {
	card := activeCard(1, 100000)
	card.DailyLimitCents = 5000
	repo := newMemoryRepo(card)
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	_, err := svc.ApplyTransaction(ctx, TransactionInput{CardID: 1, Kind: KindPurchase, AmountCents: 4000, ActorID: 9})
	require.NoError(t, err)

	_, err = svc.ApplyTransaction(ctx, TransactionInput{CardID: 1, Kind: KindPurchase, AmountCents: 2000, ActorID: 9})
	require.ErrorIs(t, err, ErrLimitExceeded)

	_, err = svc.ApplyTransaction(ctx, TransactionInput{CardID: 1, Kind: KindPurchase, AmountCents: 1000, ActorID: 9})
	require.NoError(t, err)
	require.Len(t, repo.txs, 2)
}

func TestCreditLimitCapsBalance(t *testing.T) {
	card := activeCard(1, 9000)
	card.CreditLimitCents = 10000
	repo := newMemoryRepo(card)
	svc := NewService(repo, nil, nil)

	_, err := svc.ApplyTransaction(context.Background(), TransactionInput{CardID: 1, Kind: KindCredit, AmountCents: 2000, ActorID: 9})
	require.ErrorIs(t, err, ErrLimitExceeded)
	require.Equal(t, int64(9000), repo.cards[1].BalanceCents)
}

func TestDuplicateReference(t *testing.T) {
	repo := newMemoryRepo(activeCard(1, 10000))
	idem := &memoryIdem{}
	svc := NewService(repo, nil, idem)
	ctx := context.Background()

	input := TransactionInput{CardID: 1, Kind: KindPurchase, AmountCents: 1000, Reference: "ref-1", ActorID: 9}
	_, err := svc.ApplyTransaction(ctx, input)
	require.NoError(t, err)

	_, err = svc.ApplyTransaction(ctx, input)
	require.ErrorIs(t, err, shared.ErrDuplicateReference)
	require.Len(t, repo.txs, 1)
}

func TestFailedTransactionFreesReference(t *testing.T) {
	repo := newMemoryRepo(activeCard(1, 500))
	idem := &memoryIdem{}
	svc := NewService(repo, nil, idem)
	ctx := context.Background()

	input := TransactionInput{CardID: 1, Kind: KindPurchase, AmountCents: 1000, Reference: "ref-2", ActorID: 9}
	_, err := svc.ApplyTransaction(ctx, input)
	require.ErrorIs(t, err, ErrInsufficientBalance)

	// The reference is reusable after a rejected attempt.
	_, err = svc.ApplyTransaction(ctx, TransactionInput{CardID: 1, Kind: KindCredit, AmountCents: 1000, Reference: "ref-2", ActorID: 9})
	require.NoError(t, err)
}

func TestConcurrentBalanceConflict(t *testing.T) {
	repo := newMemoryRepo(activeCard(1, 10000))
	svc := NewService(repo, nil, nil)

	repo.beforeWrite = func() {
		repo.cards[1].BalanceCents = 9000
		repo.cards[1].Version++
	}

	_, err := svc.ApplyTransaction(context.Background(), TransactionInput{CardID: 1, Kind: KindPurchase, AmountCents: 500, ActorID: 9})
	require.ErrorIs(t, err, shared.ErrConflict)
	require.Equal(t, int64(9000), repo.cards[1].BalanceCents)

	// The rejected purchase rolls back whole: no ledger row survives.
	require.Empty(t, repo.txs)
}

func TestStatusLifecycle(t *testing.T) {
	repo := newMemoryRepo(activeCard(1, 0))
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	card, err := svc.UpdateStatus(ctx, 1, StatusBlocked, 9)
	require.NoError(t, err)
	require.Equal(t, StatusBlocked, card.Status)

	card, err = svc.UpdateStatus(ctx, 1, StatusActive, 9)
	require.NoError(t, err)
	require.Equal(t, StatusActive, card.Status)

	_, err = svc.UpdateStatus(ctx, 1, StatusActive, 9)
	require.ErrorIs(t, err, ErrIllegalStatusChange)

	_, err = svc.UpdateStatus(ctx, 1, StatusExpired, 9)
	require.NoError(t, err)

	for _, target := range []Status{StatusActive, StatusBlocked} {
		_, err = svc.UpdateStatus(ctx, 1, target, 9)
		require.ErrorIs(t, err, ErrIllegalStatusChange)
	}
}
