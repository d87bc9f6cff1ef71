package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sciffer/timewarden/internal/config"
	"github.com/sciffer/timewarden/pkg/database"
	"github.com/sciffer/timewarden/pkg/probe"
	"github.com/sciffer/timewarden/pkg/tracker"
	"github.com/sciffer/timewarden/pkg/webfilter"
)

// Notifier is the UI/session collaborator hook. The engine calls it after
// each tick and after a user switch; no return value is consumed.
type Notifier interface {
	NotifyRefresh()
}

// NopNotifier discards notifications. Use when no UI is attached.
type NopNotifier struct{}

func (NopNotifier) NotifyRefresh() {}

// Engine is the enforcement orchestrator: it performs the once-per-session
// bootstrap, then runs the event scheduler and the time-limit enforcer on
// a fixed tick while a one-shot discovery goroutine populates usage
// samples in the background.
type Engine struct {
	cfg        config.EngineConfig
	db         *database.DB
	queue      *database.WriteQueue
	probe      *probe.Probe
	tracker    *tracker.Tracker
	scheduler  *Scheduler
	enforcer   *Enforcer
	aggregator *Aggregator
	filter     *webfilter.Filter
	notifier   Notifier
	logger     *zap.Logger

	// sessionMu guards the current session user; the tick takes a
	// snapshot per invocation instead of reading a shared field mid-pass
	sessionMu sync.Mutex
	session   *database.User

	// blockedMu guards the domains blocked during bootstrap, to be
	// unblocked in one batch at shutdown
	blockedMu sync.Mutex
	blocked   []string

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// New creates an engine. All collaborators are passed in explicitly; the
// engine holds no ambient global state.
func New(
	cfg config.EngineConfig,
	db *database.DB,
	queue *database.WriteQueue,
	p *probe.Probe,
	tr *tracker.Tracker,
	actions Actions,
	filter *webfilter.Filter,
	notifier Notifier,
	logger *zap.Logger,
) *Engine {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Engine{
		cfg:        cfg,
		db:         db,
		queue:      queue,
		probe:      p,
		tracker:    tr,
		scheduler:  NewScheduler(queue, actions, logger),
		enforcer:   NewEnforcer(db, queue, p, cfg.UsageStep, logger),
		aggregator: NewAggregator(db, queue, logger),
		filter:     filter,
		notifier:   notifier,
		logger:     logger,
		stopChan:   make(chan struct{}),
	}
}

// Start performs the session bootstrap and launches the tick loop.
// Bootstrap: select the session user, record today's daily usage once,
// kick off process discovery, and block every registered URL-like name.
func (e *Engine) Start(ctx context.Context) error {
	user, err := e.selectUser(ctx)
	if err != nil {
		return err
	}

	if user == nil {
		e.logger.Warn("no users in store, enforcement idles until one is created")
	} else {
		e.setSession(user)
		e.logger.Info("session user selected",
			zap.String("user_id", user.ID),
			zap.String("name", user.Name),
		)

		// The session counter must exist before the tick increments it
		e.queue.Enqueue(database.EnsureUsageSample{
			UserID:     user.ID,
			SampleName: database.SessionCounterName,
		})

		if err := e.aggregator.RecordDaily(ctx, user.ID); err != nil {
			e.logger.Error("daily usage bootstrap failed", zap.Error(err))
		}

		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			if err := e.tracker.Discover(ctx, user.ID); err != nil {
				e.logger.Error("process discovery failed", zap.Error(err))
			}
		}()

		e.blockRegisteredDomains(ctx, user.ID)
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.runLoop(ctx)
	}()

	e.logger.Info("enforcement engine started",
		zap.Duration("tick_interval", e.cfg.TickInterval),
		zap.Int64("usage_step", e.cfg.UsageStep),
	)
	return nil
}

// Stop halts the tick loop and batch-unblocks the domains blocked at
// startup, best effort
func (e *Engine) Stop() {
	close(e.stopChan)
	e.wg.Wait()

	e.blockedMu.Lock()
	blocked := e.blocked
	e.blocked = nil
	e.blockedMu.Unlock()

	if len(blocked) > 0 {
		if err := e.filter.UnblockAll(blocked); err != nil {
			e.logger.Error("failed to unblock domains at shutdown", zap.Error(err))
		} else {
			e.logger.Info("domains unblocked at shutdown", zap.Int("count", len(blocked)))
		}
	}

	e.logger.Info("enforcement engine stopped")
}

// Session returns the current session user, nil when none is selected
func (e *Engine) Session() *database.User {
	e.sessionMu.Lock()
	defer e.sessionMu.Unlock()
	return e.session
}

// SwitchUser makes the named user the enforcement target and notifies the
// UI collaborator
func (e *Engine) SwitchUser(ctx context.Context, name string) error {
	user, err := e.db.GetUserByName(ctx, name)
	if err != nil {
		return err
	}
	if user == nil {
		return fmt.Errorf("unknown user %q", name)
	}

	e.setSession(user)
	e.queue.Enqueue(database.EnsureUsageSample{
		UserID:     user.ID,
		SampleName: database.SessionCounterName,
	})
	e.logger.Info("session user switched", zap.String("name", user.Name))
	e.notifier.NotifyRefresh()
	return nil
}

func (e *Engine) setSession(user *database.User) {
	e.sessionMu.Lock()
	e.session = user
	e.sessionMu.Unlock()
}

func (e *Engine) selectUser(ctx context.Context) (*database.User, error) {
	if e.cfg.SessionUser != "" {
		user, err := e.db.GetUserByName(ctx, e.cfg.SessionUser)
		if err != nil {
			return nil, fmt.Errorf("failed to select configured user: %w", err)
		}
		if user != nil {
			return user, nil
		}
		e.logger.Warn("configured session user not found, falling back to first user",
			zap.String("name", e.cfg.SessionUser),
		)
	}
	user, err := e.db.FirstUser(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to select first user: %w", err)
	}
	return user, nil
}

// runLoop drives the fixed-period tick. The ticker body runs on a single
// goroutine, so tick bodies never overlap; a body outrunning the period
// delays the next tick instead of running concurrently with it.
func (e *Engine) runLoop(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.tick(ctx)
		case <-e.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// tick runs one enforcement pass: scheduled events, then time limits, then
// the session counter, then the UI notification. The whole body is fenced
// so a failure degrades this tick instead of killing the timer.
func (e *Engine) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("tick panicked", zap.Any("panic", r))
		}
	}()

	user := e.Session()
	if user == nil {
		return
	}

	events, err := e.db.ListEvents(ctx, user.ID)
	if err != nil {
		e.logger.Error("event listing failed", zap.Error(err))
	} else {
		for _, event := range events {
			e.scheduler.RunEvent(event)
		}
	}

	if err := e.enforcer.Enforce(ctx, user.ID); err != nil {
		e.logger.Error("enforcement pass failed", zap.Error(err))
	}

	e.queue.Enqueue(database.AddUsageTime{
		UserID:     user.ID,
		SampleName: database.SessionCounterName,
		Seconds:    e.cfg.UsageStep,
	})

	e.notifier.NotifyRefresh()
}

// blockRegisteredDomains blocks every URL-like watched name at bootstrap
// and remembers them for the shutdown batch unblock
func (e *Engine) blockRegisteredDomains(ctx context.Context, userID string) {
	urls, err := e.db.ListURLProcesses(ctx, userID)
	if err != nil {
		e.logger.Error("url process listing failed", zap.Error(err))
		return
	}

	var blocked []string
	for _, proc := range urls {
		if err := e.filter.Block(proc.Name); err != nil {
			e.logger.Error("failed to block domain",
				zap.String("domain", proc.Name),
				zap.Error(err),
			)
			continue
		}
		blocked = append(blocked, proc.Name)
	}

	if len(blocked) > 0 {
		e.blockedMu.Lock()
		e.blocked = append(e.blocked, blocked...)
		e.blockedMu.Unlock()
		e.logger.Info("registered domains blocked", zap.Int("count", len(blocked)))
	}
}
