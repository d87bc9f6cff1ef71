package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sciffer/timewarden/pkg/database"
)

// Aggregator derives one immutable daily usage record per user and
// calendar day from the monotonic whole-session counter: today's seconds
// are the counter minus everything already recorded on previous days.
type Aggregator struct {
	db     *database.DB
	queue  *database.WriteQueue
	logger *zap.Logger
	now    func() time.Time
}

// NewAggregator creates a daily usage aggregator
func NewAggregator(db *database.DB, queue *database.WriteQueue, logger *zap.Logger) *Aggregator {
	return &Aggregator{
		db:     db,
		queue:  queue,
		logger: logger,
		now:    time.Now,
	}
}

// RecordDaily writes today's usage record for the user unless one already
// exists. A session counter below the recorded sum (counter reset) clamps
// to a zero-second day, never a negative one.
func (a *Aggregator) RecordDaily(ctx context.Context, userID string) error {
	date := a.now().Format("2006-01-02")

	exists, err := a.db.HasDailyUsage(ctx, userID, date)
	if err != nil {
		return fmt.Errorf("daily usage check failed: %w", err)
	}
	if exists {
		a.logger.Debug("daily usage already recorded",
			zap.String("user_id", userID),
			zap.String("date", date),
		)
		return nil
	}

	session, err := a.db.SessionSeconds(ctx, userID)
	if err != nil {
		return fmt.Errorf("session counter read failed: %w", err)
	}
	recorded, err := a.db.DailyUsageSum(ctx, userID)
	if err != nil {
		return fmt.Errorf("daily usage sum failed: %w", err)
	}

	delta := session - recorded
	if delta < 0 {
		delta = 0
	}

	a.queue.Enqueue(database.InsertDailyUsage{
		UserID:  userID,
		Date:    date,
		Seconds: delta,
	})
	return nil
}
