package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DeadlineScanner flags WAITING requests whose deadline has passed so
// reviewers see overdue work without trawling the full queue.
type DeadlineScanner struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewDeadlineScanner constructs the scanner.
func NewDeadlineScanner(pool *pgxpool.Pool, logger *slog.Logger) *DeadlineScanner {
	return &DeadlineScanner{pool: pool, logger: logger}
}

type overdueRequest struct {
	ID       int64
	RONumber string
	Deadline time.Time
}

// Scan lists overdue WAITING requests and logs each one.
func (s *DeadlineScanner) Scan(ctx context.Context) error {
	rows, err := s.pool.Query(ctx, `SELECT id, ro_number, deadline
FROM purchase_requests
WHERE status = 'WAITING' AND deadline IS NOT NULL AND deadline < NOW()
ORDER BY deadline`)
	if err != nil {
		return err
	}
	defer rows.Close()

	var overdue []overdueRequest
	for rows.Next() {
		var r overdueRequest
		if err := rows.Scan(&r.ID, &r.RONumber, &r.Deadline); err != nil {
			return err
		}
		overdue = append(overdue, r)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, r := range overdue {
		s.logger.Warn("request past deadline",
			slog.Int64("request_id", r.ID),
			slog.String("ro_number", r.RONumber),
			slog.Time("deadline", r.Deadline))
	}
	s.logger.Info("deadline scan complete", slog.Int("overdue", len(overdue)))
	return nil
}

// Handler adapts the scanner to an Asynq task handler.
func (s *DeadlineScanner) Handler() asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		return s.Scan(ctx)
	}
}
