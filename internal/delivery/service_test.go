package delivery

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/routewise-ops/routewise/internal/shared"
)

type memoryRepo struct {
	deliveries map[int64]*Delivery
	items      map[int64][]Item
	events     []Event
	nextID     int64

	// beforeWrite runs between the locked read and the versioned write,
	// standing in for a concurrent writer.
	beforeWrite func()
}

func newMemoryRepo(deliveries ...Delivery) *memoryRepo {
	repo := &memoryRepo{
		deliveries: make(map[int64]*Delivery),
		items:      make(map[int64][]Item),
	}
	for i := range deliveries {
		d := deliveries[i]
		if d.Version == 0 {
			d.Version = 1
		}
		repo.deliveries[d.ID] = &d
		if d.ID > repo.nextID {
			repo.nextID = d.ID
		}
	}
	return repo
}

type memoryTx struct {
	repo *memoryRepo

	// pending buffers appended events until commit, so a failed callback
	// leaves no trace, matching the real transaction.
	pending []Event
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx := &memoryTx{repo: r}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	r.events = append(r.events, tx.pending...)
	return nil
}

func (r *memoryRepo) Get(ctx context.Context, deliveryID int64) (Delivery, error) {
	d, ok := r.deliveries[deliveryID]
	if !ok {
		return Delivery{}, fmt.Errorf("%w: delivery", shared.ErrNotFound)
	}
	return *d, nil
}

func (r *memoryRepo) ListItems(ctx context.Context, deliveryID int64) ([]Item, error) {
	return r.items[deliveryID], nil
}

func (r *memoryRepo) ListEvents(ctx context.Context, deliveryID int64) ([]Event, error) {
	var out []Event
	for _, e := range r.events {
		if e.DeliveryID == deliveryID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (tx *memoryTx) InsertDelivery(ctx context.Context, d Delivery) (Delivery, error) {
	tx.repo.nextID++
	d.ID = tx.repo.nextID
	d.Version = 1
	d.CreatedAt = time.Now()
	d.UpdatedAt = d.CreatedAt
	tx.repo.deliveries[d.ID] = &d
	return d, nil
}

func (tx *memoryTx) InsertItems(ctx context.Context, deliveryID int64, items []ItemInput) error {
	for _, item := range items {
		tx.repo.items[deliveryID] = append(tx.repo.items[deliveryID], Item{
			DeliveryID:     deliveryID,
			ProductID:      item.ProductID,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
		})
	}
	return nil
}

func (tx *memoryTx) InsertEvent(ctx context.Context, e Event) (Event, error) {
	e.ID = int64(len(tx.repo.events) + len(tx.pending) + 1)
	e.CreatedAt = time.Now()
	tx.pending = append(tx.pending, e)
	return e, nil
}

func (tx *memoryTx) GetDeliveryForUpdate(ctx context.Context, deliveryID int64) (Delivery, error) {
	d, ok := tx.repo.deliveries[deliveryID]
	if !ok {
		return Delivery{}, fmt.Errorf("%w: delivery", shared.ErrNotFound)
	}
	return *d, nil
}

func (tx *memoryTx) UpdateStatus(ctx context.Context, deliveryID int64, status Status, actualDate *time.Time, version int64) error {
	if tx.repo.beforeWrite != nil {
		hook := tx.repo.beforeWrite
		tx.repo.beforeWrite = nil
		hook()
	}
	d := tx.repo.deliveries[deliveryID]
	if d.Version != version {
		return shared.ErrConflict
	}
	d.Status = status
	if actualDate != nil {
		d.ActualDate = actualDate
	}
	d.Version++
	return nil
}

func (tx *memoryTx) UpdateDriver(ctx context.Context, deliveryID, driverID, version int64) error {
	d := tx.repo.deliveries[deliveryID]
	if d.Version != version {
		return shared.ErrConflict
	}
	d.DriverID = &driverID
	d.Version++
	return nil
}

func validCreateInput() CreateInput {
	return CreateInput{
		DeliveryNumber: "DLV-2024-0001",
		SupplierID:     3,
		StoreID:        9,
		ExpectedDate:   time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		Priority:       2,
		Items: []ItemInput{
			{ProductID: 11, Quantity: 2, UnitPriceCents: 10},
			{ProductID: 12, Quantity: 1, UnitPriceCents: 5},
		},
		ActorID: 7,
	}
}

func TestCreateDerivesTotals(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)

	d, err := svc.Create(context.Background(), validCreateInput())
	require.NoError(t, err)
	require.Equal(t, StatusPending, d.Status)
	require.Equal(t, int64(25), d.TotalAmountCents)
	require.Equal(t, int64(2), d.TotalItems)

	events, err := svc.ListEvents(context.Background(), d.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, EventCreated, events[0].Type)
	require.Equal(t, int64(7), events[0].ActorID)
}

func TestCreateRejectsBadInput(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	input := validCreateInput()
	input.Items = nil
	_, err := svc.Create(ctx, input)
	require.ErrorIs(t, err, ErrNoItems)

	input = validCreateInput()
	input.Items[0].Quantity = 0
	_, err = svc.Create(ctx, input)
	require.ErrorIs(t, err, ErrInvalidItem)

	input = validCreateInput()
	input.Items[1].UnitPriceCents = -1
	_, err = svc.Create(ctx, input)
	require.ErrorIs(t, err, ErrInvalidItem)

	input = validCreateInput()
	input.Priority = 6
	_, err = svc.Create(ctx, input)
	require.ErrorIs(t, err, ErrInvalidPriority)

	input = validCreateInput()
	input.DeliveryNumber = "  "
	_, err = svc.Create(ctx, input)
	require.ErrorIs(t, err, shared.ErrInvalidInput)

	require.Empty(t, repo.deliveries)
	require.Empty(t, repo.events)
}

func TestTransitionHappyPath(t *testing.T) {
	repo := newMemoryRepo(Delivery{ID: 1, Status: StatusPending})
	svc := NewService(repo, nil)
	ctx := context.Background()

	result, err := svc.Transition(ctx, 1, StatusInTransit, 7, "left warehouse", nil)
	require.NoError(t, err)
	require.Equal(t, StatusInTransit, result.Delivery.Status)
	require.Equal(t, EventInTransit, result.Event.Type)

	when := time.Date(2024, 6, 2, 14, 0, 0, 0, time.UTC)
	result, err = svc.Transition(ctx, 1, StatusDelivered, 7, "", &when)
	require.NoError(t, err)
	require.Equal(t, StatusDelivered, result.Delivery.Status)
	require.NotNil(t, result.Delivery.ActualDate)
	require.Equal(t, when, *result.Delivery.ActualDate)

	events, err := svc.ListEvents(ctx, 1)
	require.NoError(t, err)
	require.Len(t, events, 2)
}

func TestTransitionRejectsIllegalEdges(t *testing.T) {
	repo := newMemoryRepo(Delivery{ID: 1, Status: StatusDelivered})
	svc := NewService(repo, nil)
	ctx := context.Background()

	// Terminal states accept nothing, including a move back to pending.
	_, err := svc.Transition(ctx, 1, StatusPending, 7, "", nil)
	require.ErrorIs(t, err, ErrIllegalTransition)

	_, err = svc.Transition(ctx, 1, Status("returned"), 7, "", nil)
	require.ErrorIs(t, err, shared.ErrInvalidInput)

	_, err = svc.Transition(ctx, 1, StatusInTransit, 7, "", nil)
	require.ErrorIs(t, err, ErrIllegalTransition)

	repo.deliveries[1].Status = StatusPending
	_, err = svc.Transition(ctx, 1, StatusDelivered, 7, "", nil)
	require.ErrorIs(t, err, ErrMissingActualDate)

	when := time.Now()
	_, err = svc.Transition(ctx, 1, StatusDelivered, 7, "", &when)
	require.ErrorIs(t, err, ErrIllegalTransition)

	require.Empty(t, repo.events)
}

func TestTransitionUnknownDelivery(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)

	_, err := svc.Transition(context.Background(), 99, StatusCanceled, 7, "", nil)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestEventCountMatchesAcceptedTransitions(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	d, err := svc.Create(ctx, validCreateInput())
	require.NoError(t, err)

	attempts := []struct {
		target Status
		date   *time.Time
	}{
		{StatusDelivered, nil},
		{StatusInTransit, nil},
		{StatusInTransit, nil},
		{StatusDelivered, ptrTime(time.Now())},
		{StatusCanceled, nil},
	}
	var accepted int
	for _, a := range attempts {
		if _, err := svc.Transition(ctx, d.ID, a.target, 7, "", a.date); err == nil {
			accepted++
		}
	}
	require.Equal(t, 2, accepted)

	events, err := svc.ListEvents(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, events, 1+accepted)
}

func TestAssignDriver(t *testing.T) {
	repo := newMemoryRepo(Delivery{ID: 1, Status: StatusPending})
	svc := NewService(repo, nil)
	ctx := context.Background()

	d, err := svc.AssignDriver(ctx, 1, 42, 7)
	require.NoError(t, err)
	require.NotNil(t, d.DriverID)
	require.Equal(t, int64(42), *d.DriverID)

	events, err := svc.ListEvents(ctx, 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, EventDispatched, events[0].Type)

	// Reassignment updates the driver without a second dispatched event.
	_, err = svc.AssignDriver(ctx, 1, 43, 7)
	require.NoError(t, err)
	events, err = svc.ListEvents(ctx, 1)
	require.NoError(t, err)
	require.Len(t, events, 1)

	repo.deliveries[1].Status = StatusCanceled
	_, err = svc.AssignDriver(ctx, 1, 44, 7)
	require.ErrorIs(t, err, ErrIllegalTransition)
}

func TestConcurrentTransitionConflicts(t *testing.T) {
	repo := newMemoryRepo(Delivery{ID: 1, Status: StatusPending})
	svc := NewService(repo, nil)
	ctx := context.Background()

	// A second writer cancels the delivery between this caller's read and write.
	repo.beforeWrite = func() {
		repo.deliveries[1].Status = StatusCanceled
		repo.deliveries[1].Version++
	}

	_, err := svc.Transition(ctx, 1, StatusInTransit, 7, "", nil)
	require.ErrorIs(t, err, shared.ErrConflict)
	require.Equal(t, StatusCanceled, repo.deliveries[1].Status)

	// The retry sees the terminal state and is rejected outright.
	_, err = svc.Transition(ctx, 1, StatusInTransit, 7, "", nil)
	require.ErrorIs(t, err, ErrIllegalTransition)
	require.Empty(t, repo.events)
}

func ptrTime(t time.Time) *time.Time { return &t }
