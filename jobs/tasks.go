package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskInventoryReorderScan triggers the daily scan for items at or
	// below their reorder level.
	TaskInventoryReorderScan = "inventory:reorder_scan"
	// TaskNotifyReorder delivers a single reorder alert.
	TaskNotifyReorder = "notify:reorder"
	// TaskIdempotencyCleanup prunes expired idempotency keys.
	TaskIdempotencyCleanup = "maintenance:idempotency_cleanup"
)

// ReorderScanPayload carries scheduling metadata.
type ReorderScanPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewReorderScanTask constructs an Asynq task for the reorder scan.
func NewReorderScanTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(ReorderScanPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskInventoryReorderScan, body, asynq.Queue(QueueDefault)), nil
}

// NotifyReorderPayload identifies the item that crossed its reorder level.
type NotifyReorderPayload struct {
	ItemID       int64  `json:"item_id"`
	SKU          string `json:"sku"`
	Name         string `json:"name"`
	Available    int64  `json:"available"`
	ReorderLevel int64  `json:"reorder_level"`
}

// NewNotifyReorderTask constructs an Asynq task for one reorder alert.
func NewNotifyReorderTask(payload NotifyReorderPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskNotifyReorder, body, asynq.Queue(QueueDefault)), nil
}

// HandleNotifyReorderTask processes TaskNotifyReorder tasks. Delivery is a
// structured log line; downstream alerting tails the log stream.
func HandleNotifyReorderTask(ctx context.Context, t *asynq.Task) error {
	var payload NotifyReorderPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	slog.Warn("inventory reorder alert",
		slog.Int64("item_id", payload.ItemID),
		slog.String("sku", payload.SKU),
		slog.String("name", payload.Name),
		slog.Int64("available", payload.Available),
		slog.Int64("reorder_level", payload.ReorderLevel),
	)
	return nil
}

// NewIdempotencyCleanupTask constructs an Asynq task for key pruning.
func NewIdempotencyCleanupTask() (*asynq.Task, error) {
	return asynq.NewTask(TaskIdempotencyCleanup, nil, asynq.Queue(QueueDefault)), nil
}
