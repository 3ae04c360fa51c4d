package jobs

import (
	"context"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	items []ReorderItem
	err   error
}

func (s *fakeSource) ListBelowReorder(ctx context.Context) ([]ReorderItem, error) {
	return s.items, s.err
}

type fakeEnqueuer struct {
	mu       sync.Mutex
	payloads []NotifyReorderPayload
}

func (e *fakeEnqueuer) EnqueueNotifyReorder(ctx context.Context, payload NotifyReorderPayload) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.payloads = append(e.payloads, payload)
	return nil
}

func newScanJob(t *testing.T, source ItemSource, enqueuer Enqueuer) (*ReorderScanJob, func()) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	job := NewReorderScanJob(source, enqueuer, client, nil)
	job.clock = func() time.Time {
		return time.Date(2024, 6, 1, 6, 0, 0, 0, time.UTC)
	}
	return job, func() {
		_ = client.Close()
		mr.Close()
	}
}

func scanTask(t *testing.T) *asynq.Task {
	t.Helper()
	task, err := NewReorderScanTask(time.Now().UTC())
	require.NoError(t, err)
	return task
}

func TestReorderScanAlertsBelowLevel(t *testing.T) {
	source := &fakeSource{items: []ReorderItem{
		{ID: 1, SKU: "OIL-5W30", Name: "Motor oil 5W30", Available: 3, ReorderLevel: 10},
		{ID: 2, SKU: "FLT-AIR", Name: "Air filter", Available: 0, ReorderLevel: 5},
	}}
	enqueuer := &fakeEnqueuer{}
	job, cleanup := newScanJob(t, source, enqueuer)
	defer cleanup()

	require.NoError(t, job.Handle(context.Background(), scanTask(t)))
	require.Len(t, enqueuer.payloads, 2)
}

func TestReorderScanDeduplicatesPerDay(t *testing.T) {
	source := &fakeSource{items: []ReorderItem{
		{ID: 1, SKU: "OIL-5W30", Name: "Motor oil 5W30", Available: 3, ReorderLevel: 10},
	}}
	enqueuer := &fakeEnqueuer{}
	job, cleanup := newScanJob(t, source, enqueuer)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, job.Handle(ctx, scanTask(t)))
	require.NoError(t, job.Handle(ctx, scanTask(t)))
	require.Len(t, enqueuer.payloads, 1)

	// A new day clears the marker and the item alerts again.
	job.clock = func() time.Time {
		return time.Date(2024, 6, 2, 6, 0, 0, 0, time.UTC)
	}
	require.NoError(t, job.Handle(ctx, scanTask(t)))
	require.Len(t, enqueuer.payloads, 2)
}

func TestReorderScanWithoutRedisAlwaysAlerts(t *testing.T) {
	source := &fakeSource{items: []ReorderItem{
		{ID: 1, SKU: "OIL-5W30", Name: "Motor oil 5W30", Available: 3, ReorderLevel: 10},
	}}
	enqueuer := &fakeEnqueuer{}
	job := NewReorderScanJob(source, enqueuer, nil, nil)
	ctx := context.Background()

	require.NoError(t, job.Handle(ctx, scanTask(t)))
	require.NoError(t, job.Handle(ctx, scanTask(t)))
	require.Len(t, enqueuer.payloads, 2)
}

func TestReorderScanUnconfigured(t *testing.T) {
	var job *ReorderScanJob
	require.Error(t, job.Handle(context.Background(), scanTask(t)))
}
