package engine

import (
	"time"

	"go.uber.org/zap"

	"github.com/sciffer/timewarden/pkg/database"
)

// Scheduler evaluates scheduled events and fires the ones that are due.
// Two trigger modes exist: an exact wall-clock minute-of-day match, and a
// relative delay since the event's creation timestamp. The clock match is
// deliberately exact; a tick missed at that minute means the event does
// not fire that day.
type Scheduler struct {
	queue   *database.WriteQueue
	actions Actions
	logger  *zap.Logger
	now     func() time.Time
}

// NewScheduler creates a scheduler dispatching to the given actions
func NewScheduler(queue *database.WriteQueue, actions Actions, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		queue:   queue,
		actions: actions,
		logger:  logger,
		now:     time.Now,
	}
}

// RunEvent fires the event if it is due and returns whether it fired.
// After firing, a non-repeating event is removed; a repeating elapsed-mode
// event has its creation timestamp reset so the delay re-arms from this
// moment; a repeating clock-mode event is left alone, its condition
// becomes true again the next day.
func (s *Scheduler) RunEvent(event *database.ScheduledEvent) bool {
	now := s.now()

	due := false
	switch event.Mode {
	case database.TriggerAtClockTime:
		minuteOfDay := int64(now.Hour()*60 + now.Minute())
		due = minuteOfDay == event.TriggerMinutes
	case database.TriggerAfterElapsed:
		nowMinutes := now.Unix() / 60
		due = nowMinutes-event.CreatedAtMinutes >= event.TriggerMinutes
	default:
		s.logger.Warn("unknown trigger mode",
			zap.String("event_id", event.ID),
			zap.String("mode", string(event.Mode)),
		)
	}
	if !due {
		return false
	}

	s.fire(event)

	if !event.Repeat {
		s.queue.Enqueue(database.RemoveEvent{EventID: event.ID})
		return true
	}
	if event.Mode == database.TriggerAfterElapsed {
		s.queue.Enqueue(database.ResetEventClock{
			EventID:          event.ID,
			CreatedAtMinutes: now.Unix() / 60,
		})
	}
	return true
}

func (s *Scheduler) fire(event *database.ScheduledEvent) {
	s.logger.Info("event triggered",
		zap.String("event_id", event.ID),
		zap.String("kind", string(event.Kind)),
	)

	var err error
	switch event.Kind {
	case database.EventShutdown:
		err = s.actions.Shutdown()
	case database.EventLogout:
		err = s.actions.Logout()
	case database.EventScreenshot:
		_, err = s.actions.Screenshot()
	default:
		s.logger.Warn("unknown event kind", zap.String("kind", string(event.Kind)))
		return
	}
	if err != nil {
		// Not retried: power-state commands are fire-and-forget and a
		// failed capture will be attempted again when the event repeats
		s.logger.Error("event action failed",
			zap.String("kind", string(event.Kind)),
			zap.Error(err),
		)
	}
}
