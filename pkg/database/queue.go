package database

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Command is one unit of mutating work for the write queue. Every mutation
// of the store is expressed as a tagged command struct rather than a
// closure, so the worker can dispatch, log and test them explicitly.
type Command interface {
	String() string
}

type queuedCommand struct {
	// id correlates a submission with the worker log line that applied
	// (or dropped) it
	id  string
	cmd Command
}

// WriteQueue is a multi-producer, single-consumer, unbounded FIFO.
// One dedicated worker goroutine applies commands strictly in submission
// order for the lifetime of the process. A failure inside one command is
// logged and the command dropped; the worker keeps going. Reads do not go
// through the queue and are eventually consistent with at most one queue's
// worth of lag.
type WriteQueue struct {
	db     *DB
	logger *zap.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	pending []queuedCommand
	busy    bool
	closed  bool
	stopped bool

	wg sync.WaitGroup
}

// NewWriteQueue creates the queue and starts its worker goroutine
func NewWriteQueue(db *DB, logger *zap.Logger) *WriteQueue {
	q := &WriteQueue{
		db:     db,
		logger: logger,
	}
	q.cond = sync.NewCond(&q.mu)
	q.wg.Add(1)
	go q.run()
	return q
}

// Enqueue appends a command to the queue. It never blocks on the worker.
// Returns false when the queue has been closed and the command dropped.
func (q *WriteQueue) Enqueue(cmd Command) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		q.logger.Warn("write queue closed, dropping command", zap.String("command", cmd.String()))
		return false
	}
	q.pending = append(q.pending, queuedCommand{id: uuid.New().String(), cmd: cmd})
	q.cond.Broadcast()
	return true
}

// Depth returns the number of commands waiting to be applied
func (q *WriteQueue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.pending)
	if q.busy {
		n++
	}
	return n
}

// Healthy reports whether the worker goroutine is still alive. A dead
// worker means no further writes will ever be applied; callers surface
// this as a fatal condition.
func (q *WriteQueue) Healthy() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return !q.stopped
}

// Flush blocks until every command submitted before the call has been
// applied (or dropped). Used by tests and the shutdown path; ordinary
// callers never wait on the queue.
func (q *WriteQueue) Flush() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for (len(q.pending) > 0 || q.busy) && !q.stopped {
		q.cond.Wait()
	}
}

// Stop closes the queue to new commands and waits for the worker to drain
// the backlog, best effort, until ctx expires
func (q *WriteQueue) Stop(ctx context.Context) error {
	q.mu.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("write queue did not drain: %w", ctx.Err())
	}
}

func (q *WriteQueue) run() {
	defer q.wg.Done()
	defer func() {
		q.mu.Lock()
		q.stopped = true
		q.cond.Broadcast()
		q.mu.Unlock()
	}()

	for {
		q.mu.Lock()
		for len(q.pending) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.pending) == 0 {
			q.mu.Unlock()
			return
		}
		next := q.pending[0]
		q.pending = q.pending[1:]
		q.busy = true
		q.mu.Unlock()

		q.apply(next)

		q.mu.Lock()
		q.busy = false
		q.cond.Broadcast()
		q.mu.Unlock()
	}
}

// apply executes one command under the store's coarse lock. Errors and
// panics are logged with the command's correlation ID; the unit is dropped
// and the worker continues with the next one.
func (q *WriteQueue) apply(qc queuedCommand) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("write command panicked",
				zap.String("command", qc.cmd.String()),
				zap.String("command_id", qc.id),
				zap.Any("panic", r),
			)
		}
	}()

	q.db.mu.Lock()
	defer q.db.mu.Unlock()

	var err error
	switch cmd := qc.cmd.(type) {
	case CreateUser:
		err = q.db.applyCreateUser(cmd)
	case DeleteUser:
		err = q.db.applyDeleteUser(cmd)
	case RegisterProcess:
		err = q.db.applyRegisterProcess(cmd)
	case RenameProcess:
		err = q.db.applyRenameProcess(cmd)
	case SetTimeLimit:
		err = q.db.applySetTimeLimit(cmd)
	case AddProcessTime:
		err = q.db.applyAddProcessTime(cmd)
	case RemoveProcess:
		err = q.db.applyRemoveProcess(cmd)
	case EnsureUsageSample:
		err = q.db.applyEnsureUsageSample(cmd)
	case AddUsageTime:
		err = q.db.applyAddUsageTime(cmd)
	case AddEvent:
		err = q.db.applyAddEvent(cmd)
	case UpdateEvent:
		err = q.db.applyUpdateEvent(cmd)
	case RemoveEvent:
		err = q.db.applyRemoveEvent(cmd)
	case ResetEventClock:
		err = q.db.applyResetEventClock(cmd)
	case InsertDailyUsage:
		err = q.db.applyInsertDailyUsage(cmd)
	default:
		err = fmt.Errorf("unknown command type %T", qc.cmd)
	}

	if err != nil {
		q.logger.Error("write command failed",
			zap.String("command", qc.cmd.String()),
			zap.String("command_id", qc.id),
			zap.Error(err),
		)
	}
}
