package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SessionCounterName is the reserved usage-sample name accumulating whole
// session time for a user. The enforcement tick increments it; the daily
// aggregator derives each day's record from it by subtraction.
const SessionCounterName = "session.total"

// ListUsageSamples returns all discovered usage samples for a user
func (db *DB) ListUsageSamples(ctx context.Context, userID string) ([]*UsageSample, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	rows, err := db.QueryContext(ctx,
		"SELECT id, user_id, name, seconds FROM usage_samples WHERE user_id = $1", userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list usage samples: %w", err)
	}
	defer rows.Close()

	var samples []*UsageSample
	for rows.Next() {
		var s UsageSample
		if err := rows.Scan(&s.ID, &s.UserID, &s.Name, &s.Seconds); err != nil {
			return nil, fmt.Errorf("failed to scan usage sample: %w", err)
		}
		samples = append(samples, &s)
	}
	return samples, rows.Err()
}

// IsUsageTracked reports whether a (user, name) sample already exists
func (db *DB) IsUsageTracked(ctx context.Context, userID, name string) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var exists int
	err := db.QueryRowContext(ctx,
		"SELECT 1 FROM usage_samples WHERE user_id = $1 AND name = $2", userID, name).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check usage sample: %w", err)
	}
	return true, nil
}

// SessionSeconds returns the user's whole-session counter, zero when the
// counter has not been created yet
func (db *DB) SessionSeconds(ctx context.Context, userID string) (int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var seconds int64
	err := db.QueryRowContext(ctx,
		"SELECT seconds FROM usage_samples WHERE user_id = $1 AND name = $2",
		userID, SessionCounterName).Scan(&seconds)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get session seconds: %w", err)
	}
	return seconds, nil
}

// DailyUsageSum returns the total seconds across every recorded day for a user
func (db *DB) DailyUsageSum(ctx context.Context, userID string) (int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var sum int64
	err := db.QueryRowContext(ctx,
		"SELECT COALESCE(SUM(seconds), 0) FROM daily_usage WHERE user_id = $1", userID).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("failed to sum daily usage: %w", err)
	}
	return sum, nil
}

// HasDailyUsage reports whether a record exists for (user, date)
func (db *DB) HasDailyUsage(ctx context.Context, userID, date string) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var exists int
	err := db.QueryRowContext(ctx,
		"SELECT 1 FROM daily_usage WHERE user_id = $1 AND date = $2", userID, date).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check daily usage: %w", err)
	}
	return true, nil
}

// ListDailyUsage returns a user's daily records ordered by date
func (db *DB) ListDailyUsage(ctx context.Context, userID string) ([]*DailyUsage, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	rows, err := db.QueryContext(ctx,
		"SELECT id, user_id, date, seconds FROM daily_usage WHERE user_id = $1 ORDER BY date", userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list daily usage: %w", err)
	}
	defer rows.Close()

	var records []*DailyUsage
	for rows.Next() {
		var d DailyUsage
		if err := rows.Scan(&d.ID, &d.UserID, &d.Date, &d.Seconds); err != nil {
			return nil, fmt.Errorf("failed to scan daily usage: %w", err)
		}
		records = append(records, &d)
	}
	return records, rows.Err()
}

func (db *DB) applyEnsureUsageSample(cmd EnsureUsageSample) error {
	var exists int
	err := db.QueryRow(
		"SELECT 1 FROM usage_samples WHERE user_id = $1 AND name = $2",
		cmd.UserID, cmd.SampleName,
	).Scan(&exists)
	if err == nil {
		// Already tracked; insert-if-absent semantics
		return nil
	}
	if err != sql.ErrNoRows {
		return fmt.Errorf("failed to check usage sample %q: %w", cmd.SampleName, err)
	}

	_, err = db.Exec(
		"INSERT INTO usage_samples (id, user_id, name, seconds) VALUES ($1, $2, $3, 0)",
		uuid.New().String(), cmd.UserID, cmd.SampleName,
	)
	if err != nil {
		return fmt.Errorf("failed to insert usage sample %q: %w", cmd.SampleName, err)
	}
	db.logger.Info("tracking new process",
		zap.String("name", cmd.SampleName),
		zap.String("user_id", cmd.UserID),
	)
	return nil
}

func (db *DB) applyAddUsageTime(cmd AddUsageTime) error {
	_, err := db.Exec(
		"UPDATE usage_samples SET seconds = seconds + $1 WHERE user_id = $2 AND name = $3",
		cmd.Seconds, cmd.UserID, cmd.SampleName,
	)
	if err != nil {
		return fmt.Errorf("failed to add usage time for %q: %w", cmd.SampleName, err)
	}
	return nil
}

func (db *DB) applyInsertDailyUsage(cmd InsertDailyUsage) error {
	_, err := db.Exec(
		"INSERT INTO daily_usage (id, user_id, date, seconds) VALUES ($1, $2, $3, $4)",
		uuid.New().String(), cmd.UserID, cmd.Date, cmd.Seconds,
	)
	if err != nil {
		return fmt.Errorf("failed to insert daily usage for %s: %w", cmd.Date, err)
	}
	db.logger.Info("daily usage recorded",
		zap.String("user_id", cmd.UserID),
		zap.String("date", cmd.Date),
		zap.Int64("seconds", cmd.Seconds),
	)
	return nil
}
