package shared

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ReviewAction enumerates review history actions.
type ReviewAction string

const (
	// ReviewApprove marks an approve decision.
	ReviewApprove ReviewAction = "APPROVE"
	// ReviewReject marks a reject decision.
	ReviewReject ReviewAction = "REJECT"
	// ReviewPay marks a request settled.
	ReviewPay ReviewAction = "PAY"
	// ReviewCancel marks a cancellation.
	ReviewCancel ReviewAction = "CANCEL"
)

// ReviewLog represents a single review decision on a purchase request.
type ReviewLog struct {
	ID        int64
	RequestID int64
	ActorID   int64
	Action    ReviewAction
	Note      string
	At        time.Time
}

// ReviewRecorder persists review history.
type ReviewRecorder struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewReviewRecorder constructs ReviewRecorder.
func NewReviewRecorder(pool *pgxpool.Pool, logger *slog.Logger) *ReviewRecorder {
	return &ReviewRecorder{pool: pool, logger: logger}
}

// Record writes a review entry to the database.
func (r *ReviewRecorder) Record(ctx context.Context, log ReviewLog) error {
	if r == nil {
		return errors.New("review recorder not initialised")
	}
	if log.RequestID == 0 {
		return errors.New("review request id required")
	}
	if log.ActorID == 0 {
		return errors.New("review actor required")
	}
	if log.Action == "" {
		return errors.New("review action required")
	}
	var at any
	if !log.At.IsZero() {
		at = log.At
	}
	_, err := r.pool.Exec(ctx, `INSERT INTO request_reviews (request_id, actor_id, action, note, at)
VALUES ($1, $2, $3, $4, COALESCE($5, NOW()))`, log.RequestID, log.ActorID, string(log.Action), log.Note, at)
	if err != nil {
		r.logger.Error("record review", slog.Any("error", err))
		return err
	}
	return nil
}

// List returns review history for a request, oldest first.
func (r *ReviewRecorder) List(ctx context.Context, requestID int64) ([]ReviewLog, error) {
	if r == nil {
		return nil, errors.New("review recorder not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT id, request_id, actor_id, action, note, at
FROM request_reviews WHERE request_id=$1 ORDER BY at ASC`, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var logs []ReviewLog
	for rows.Next() {
		var l ReviewLog
		var action string
		if err := rows.Scan(&l.ID, &l.RequestID, &l.ActorID, &action, &l.Note, &l.At); err != nil {
			return nil, err
		}
		l.Action = ReviewAction(action)
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}
