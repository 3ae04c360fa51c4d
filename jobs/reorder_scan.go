package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

// reorderAlertTTL keeps the per-item de-dup marker alive for one day, so a
// slow-moving item raises at most one alert per calendar date.
const reorderAlertTTL = 26 * time.Hour

// ReorderItem is one item at or below its reorder level.
type ReorderItem struct {
	ID           int64
	SKU          string
	Name         string
	Available    int64
	ReorderLevel int64
}

// ItemSource lists items that need reordering.
type ItemSource interface {
	ListBelowReorder(ctx context.Context) ([]ReorderItem, error)
}

// Enqueuer submits follow-up alert tasks.
type Enqueuer interface {
	EnqueueNotifyReorder(ctx context.Context, payload NotifyReorderPayload) error
}

// ReorderScanJob walks active inventory and raises one alert per item per
// day when available stock sits at or below the reorder level.
type ReorderScanJob struct {
	Source   ItemSource
	Enqueuer Enqueuer
	Redis    redis.UniversalClient
	Logger   *slog.Logger
	clock    func() time.Time
}

// NewReorderScanJob initialises the reorder scan handler.
func NewReorderScanJob(source ItemSource, enqueuer Enqueuer, rdb redis.UniversalClient, logger *slog.Logger) *ReorderScanJob {
	return &ReorderScanJob{
		Source:   source,
		Enqueuer: enqueuer,
		Redis:    rdb,
		Logger:   logger,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the reorder scan.
func (j *ReorderScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Source == nil || j.Enqueuer == nil {
		return errors.New("reorder scan: handler not configured")
	}
	var payload ReorderScanPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}

	start := j.now()
	logger := j.logger()
	logger.Info("starting reorder scan")

	items, err := j.Source.ListBelowReorder(ctx)
	if err != nil {
		logger.Error("reorder scan failed", slog.Any("error", err))
		return err
	}

	var alerted int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	results := make([]bool, len(items))
	for i, item := range items {
		g.Go(func() error {
			fresh, err := j.markAlerted(gctx, item.ID, start)
			if err != nil {
				return err
			}
			if !fresh {
				return nil
			}
			if err := j.Enqueuer.EnqueueNotifyReorder(gctx, NotifyReorderPayload{
				ItemID:       item.ID,
				SKU:          item.SKU,
				Name:         item.Name,
				Available:    item.Available,
				ReorderLevel: item.ReorderLevel,
			}); err != nil {
				return err
			}
			results[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logger.Error("reorder scan failed", slog.Any("error", err))
		return err
	}
	for _, fresh := range results {
		if fresh {
			alerted++
		}
	}

	logger.Info("completed reorder scan",
		slog.Int("below_reorder", len(items)),
		slog.Int64("alerted", alerted),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

// markAlerted claims the per-item per-day marker. Returns false when another
// scan already alerted for this item today. Without Redis every hit alerts.
func (j *ReorderScanJob) markAlerted(ctx context.Context, itemID int64, now time.Time) (bool, error) {
	if j.Redis == nil {
		return true, nil
	}
	key := fmt.Sprintf("reorder:alert:%d:%s", itemID, now.Format("2006-01-02"))
	return j.Redis.SetNX(ctx, key, "1", reorderAlertTTL).Result()
}

func (j *ReorderScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskInventoryReorderScan))
	}
	return slog.Default().With(slog.String("job", TaskInventoryReorderScan))
}

func (j *ReorderScanJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

// PoolItemSource reads reorder candidates straight from PostgreSQL.
type PoolItemSource struct {
	Pool *pgxpool.Pool
}

// ListBelowReorder returns active items whose available stock is at or
// below the reorder level.
func (s *PoolItemSource) ListBelowReorder(ctx context.Context) ([]ReorderItem, error) {
	if s == nil || s.Pool == nil {
		return nil, errors.New("reorder scan: pool not configured")
	}
	rows, err := s.Pool.Query(ctx, `SELECT id, sku, name, quantity - reserved, reorder_level
FROM inventory_items
WHERE active AND reorder_level > 0 AND quantity - reserved <= reorder_level
ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []ReorderItem{}
	for rows.Next() {
		var item ReorderItem
		if err := rows.Scan(&item.ID, &item.SKU, &item.Name, &item.Available, &item.ReorderLevel); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
