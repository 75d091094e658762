// Package jobs contains asynq task definitions and the background worker.
package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/procurio/procurio/internal/procurement"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskReviewNotify announces a newly submitted request to reviewers.
	TaskReviewNotify = "review:notify"
	// TaskDeadlineScan sweeps WAITING requests past their deadline.
	TaskDeadlineScan = "deadline:scan"
	// TaskIdempotencyCleanup prunes expired idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// ReviewNotifyPayload describes a request awaiting review.
type ReviewNotifyPayload struct {
	RequestID     int64  `json:"request_id"`
	RONumber      string `json:"ro_number"`
	CreatorID     int64  `json:"creator_id"`
	AmountWithVAT string `json:"amount_with_vat"`
}

// NewReviewNotifyTask constructs an Asynq task.
func NewReviewNotifyTask(payload ReviewNotifyPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReviewNotify, data), nil
}

// NewDeadlineScanTask constructs the periodic sweep task.
func NewDeadlineScanTask() *asynq.Task {
	return asynq.NewTask(TaskDeadlineScan, nil)
}

// NewIdempotencyCleanupTask constructs the key retention task.
func NewIdempotencyCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskIdempotencyCleanup, nil)
}

// ReviewNotifyHandler returns the handler for TaskReviewNotify tasks.
// Delivery is a structured log line; reviewer inboxes poll the dashboard.
func ReviewNotifyHandler(logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload ReviewNotifyPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		logger.Info("request awaiting review",
			slog.Int64("request_id", payload.RequestID),
			slog.String("ro_number", payload.RONumber),
			slog.Int64("creator_id", payload.CreatorID),
			slog.String("amount_with_vat", payload.AmountWithVAT))
		return nil
	}
}

// Client submits jobs to the queue. It satisfies the procurement notifier
// port, so the service hands workflow events straight to Asynq.
type Client struct {
	client *asynq.Client
}

// NewClient constructs an Asynq client.
func NewClient(redisOpts asynq.RedisClientOpt) *Client {
	return &Client{client: asynq.NewClient(redisOpts)}
}

// RequestSubmitted enqueues a review notification.
func (c *Client) RequestSubmitted(ctx context.Context, evt procurement.RequestSubmittedEvent) error {
	task, err := NewReviewNotifyTask(ReviewNotifyPayload{
		RequestID:     evt.ID,
		RONumber:      evt.RONumber,
		CreatorID:     evt.CreatorID,
		AmountWithVAT: evt.AmountWithVAT,
	})
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault))
	return err
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}
