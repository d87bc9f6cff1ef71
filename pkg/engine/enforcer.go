package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/sciffer/timewarden/pkg/database"
	"github.com/sciffer/timewarden/pkg/probe"
)

// Enforcer applies time limits to a user's watched processes. It keeps no
// state across ticks: a process relaunched while over its limit is simply
// detected running and killed again, and killing an already-dead name is a
// no-op in the probe.
type Enforcer struct {
	db     *database.DB
	queue  *database.WriteQueue
	probe  *probe.Probe
	logger *zap.Logger
	// step is the seconds credited to a running process per tick; a
	// coarse sampling approximation matching the tick's nominal period
	step int64
}

// NewEnforcer creates a time-limit enforcer
func NewEnforcer(db *database.DB, queue *database.WriteQueue, p *probe.Probe, step int64, logger *zap.Logger) *Enforcer {
	return &Enforcer{
		db:     db,
		queue:  queue,
		probe:  p,
		logger: logger,
		step:   step,
	}
}

// Enforce runs one enforcement pass over the user's watched processes:
// credit usage to every running one and terminate those over their limit
func (e *Enforcer) Enforce(ctx context.Context, userID string) error {
	procs, err := e.db.ListProcesses(ctx, userID)
	if err != nil {
		return fmt.Errorf("enforcement listing failed: %w", err)
	}

	for _, proc := range procs {
		running, err := e.probe.IsRunning(proc.Name)
		if err != nil {
			// Transient OS-command failure: log and move on, no retry
			// within this tick
			e.logger.Warn("process check failed",
				zap.String("process", proc.Name),
				zap.Error(err),
			)
			continue
		}
		if !running {
			continue
		}

		e.queue.Enqueue(database.AddProcessTime{ProcessID: proc.ID, Seconds: e.step})

		limit, err := e.db.GetTimeLimit(ctx, proc.ID)
		if err != nil {
			e.logger.Warn("time limit lookup failed",
				zap.String("process", proc.Name),
				zap.Error(err),
			)
			continue
		}

		// The increment above is still queued; count it here so the
		// decision matches what the store will converge to
		total := proc.TotalSeconds + e.step
		if limit > 0 && total > limit {
			e.logger.Info("time limit exceeded",
				zap.String("process", proc.Name),
				zap.Int64("total_seconds", total),
				zap.Int64("limit_seconds", limit),
			)
			if err := e.probe.TerminateAll(proc.Name); err != nil {
				e.logger.Warn("termination failed",
					zap.String("process", proc.Name),
					zap.Error(err),
				)
			}
		}
	}
	return nil
}
