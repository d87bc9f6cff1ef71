package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const watchedProcessColumns = `
	p.id, p.user_id, p.name, p.total_seconds, COALESCE(t.limit_seconds, 0)
	FROM processes p
	LEFT JOIN time_limits t ON t.process_id = p.id`

// ListProcesses returns all watched processes for a user, each joined with
// its time limit (zero when unlimited)
func (db *DB) ListProcesses(ctx context.Context, userID string) ([]*WatchedProcess, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	rows, err := db.QueryContext(ctx,
		"SELECT "+watchedProcessColumns+" WHERE p.user_id = $1 ORDER BY p.created_at", userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list processes: %w", err)
	}
	defer rows.Close()

	return scanProcesses(rows)
}

// ListURLProcesses returns the watched processes whose names look like
// domains. Registered "processes" double as URL strings for web tracking;
// these are the ones the blocklist editor acts on.
func (db *DB) ListURLProcesses(ctx context.Context, userID string) ([]*WatchedProcess, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	rows, err := db.QueryContext(ctx,
		"SELECT "+watchedProcessColumns+` WHERE p.user_id = $1 AND
		(p.name LIKE '%.com%' OR p.name LIKE '%.net%' OR p.name LIKE '%.org%' OR p.name LIKE '%.edu%')`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list url processes: %w", err)
	}
	defer rows.Close()

	return scanProcesses(rows)
}

// GetProcess returns a single watched process by ID, or nil when absent
func (db *DB) GetProcess(ctx context.Context, id string) (*WatchedProcess, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var p WatchedProcess
	err := db.QueryRowContext(ctx,
		"SELECT "+watchedProcessColumns+" WHERE p.id = $1", id,
	).Scan(&p.ID, &p.UserID, &p.Name, &p.TotalSeconds, &p.LimitSeconds)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get process %s: %w", id, err)
	}
	return &p, nil
}

// GetProcessSeconds returns the accumulated seconds for a watched process
func (db *DB) GetProcessSeconds(ctx context.Context, id string) (int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var seconds int64
	err := db.QueryRowContext(ctx,
		"SELECT total_seconds FROM processes WHERE id = $1", id).Scan(&seconds)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get process seconds: %w", err)
	}
	return seconds, nil
}

// GetTimeLimit returns a process's limit in seconds; zero means unlimited
func (db *DB) GetTimeLimit(ctx context.Context, processID string) (int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var limit int64
	err := db.QueryRowContext(ctx,
		"SELECT limit_seconds FROM time_limits WHERE process_id = $1", processID).Scan(&limit)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get time limit: %w", err)
	}
	return limit, nil
}

func scanProcesses(rows *sql.Rows) ([]*WatchedProcess, error) {
	var procs []*WatchedProcess
	for rows.Next() {
		var p WatchedProcess
		if err := rows.Scan(&p.ID, &p.UserID, &p.Name, &p.TotalSeconds, &p.LimitSeconds); err != nil {
			return nil, fmt.Errorf("failed to scan process: %w", err)
		}
		procs = append(procs, &p)
	}
	return procs, rows.Err()
}

// applyRegisterProcess inserts the process, resolves its ID and writes its
// time limit as one queue unit. Later reads of the limit therefore cannot
// observe the process without it.
func (db *DB) applyRegisterProcess(cmd RegisterProcess) error {
	var processID string
	err := db.QueryRow(
		"SELECT id FROM processes WHERE user_id = $1 AND name = $2",
		cmd.UserID, cmd.ProcessName,
	).Scan(&processID)
	switch {
	case err == sql.ErrNoRows:
		processID = uuid.New().String()
		if _, err := db.Exec(
			"INSERT INTO processes (id, user_id, name, total_seconds) VALUES ($1, $2, $3, 0)",
			processID, cmd.UserID, cmd.ProcessName,
		); err != nil {
			return fmt.Errorf("failed to insert process %q: %w", cmd.ProcessName, err)
		}
		db.logger.Info("process registered",
			zap.String("name", cmd.ProcessName),
			zap.String("user_id", cmd.UserID),
		)
	case err != nil:
		return fmt.Errorf("failed to check process %q: %w", cmd.ProcessName, err)
	default:
		db.logger.Info("process already registered", zap.String("name", cmd.ProcessName))
	}

	if cmd.LimitSeconds <= 0 {
		return nil
	}
	return db.upsertTimeLimit(processID, cmd.LimitSeconds)
}

func (db *DB) applyRenameProcess(cmd RenameProcess) error {
	if _, err := db.Exec(
		"UPDATE processes SET name = $1 WHERE id = $2", cmd.NewName, cmd.ProcessID,
	); err != nil {
		return fmt.Errorf("failed to rename process %s: %w", cmd.ProcessID, err)
	}
	return nil
}

func (db *DB) applySetTimeLimit(cmd SetTimeLimit) error {
	return db.upsertTimeLimit(cmd.ProcessID, cmd.LimitSeconds)
}

func (db *DB) applyAddProcessTime(cmd AddProcessTime) error {
	if _, err := db.Exec(
		"UPDATE processes SET total_seconds = total_seconds + $1 WHERE id = $2",
		cmd.Seconds, cmd.ProcessID,
	); err != nil {
		return fmt.Errorf("failed to add process time: %w", err)
	}
	return nil
}

func (db *DB) applyRemoveProcess(cmd RemoveProcess) error {
	if _, err := db.Exec("DELETE FROM time_limits WHERE process_id = $1", cmd.ProcessID); err != nil {
		return fmt.Errorf("failed to remove time limit: %w", err)
	}
	if _, err := db.Exec("DELETE FROM processes WHERE id = $1", cmd.ProcessID); err != nil {
		return fmt.Errorf("failed to remove process: %w", err)
	}
	return nil
}

func (db *DB) upsertTimeLimit(processID string, limitSeconds int64) error {
	var exists int
	err := db.QueryRow("SELECT 1 FROM time_limits WHERE process_id = $1", processID).Scan(&exists)
	switch {
	case err == sql.ErrNoRows:
		if _, err := db.Exec(
			"INSERT INTO time_limits (id, process_id, limit_seconds) VALUES ($1, $2, $3)",
			uuid.New().String(), processID, limitSeconds,
		); err != nil {
			return fmt.Errorf("failed to insert time limit: %w", err)
		}
	case err != nil:
		return fmt.Errorf("failed to check time limit: %w", err)
	default:
		if _, err := db.Exec(
			"UPDATE time_limits SET limit_seconds = $1 WHERE process_id = $2",
			limitSeconds, processID,
		); err != nil {
			return fmt.Errorf("failed to update time limit: %w", err)
		}
	}
	return nil
}
