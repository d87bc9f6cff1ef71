package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ListEvents returns all scheduled events for a user
func (db *DB) ListEvents(ctx context.Context, userID string) ([]*ScheduledEvent, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	rows, err := db.QueryContext(ctx, `
		SELECT id, user_id, kind, trigger_mode, trigger_minutes, repeat, created_at_minutes
		FROM events WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var events []*ScheduledEvent
	for rows.Next() {
		var e ScheduledEvent
		var repeat int
		if err := rows.Scan(&e.ID, &e.UserID, &e.Kind, &e.Mode, &e.TriggerMinutes, &repeat, &e.CreatedAtMinutes); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.Repeat = repeat != 0
		events = append(events, &e)
	}
	return events, rows.Err()
}

// boolToInt maps repeat flags onto the INTEGER column, identical on both
// drivers
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (db *DB) applyAddEvent(cmd AddEvent) error {
	var exists int
	err := db.QueryRow(
		"SELECT 1 FROM events WHERE user_id = $1 AND kind = $2",
		cmd.UserID, string(cmd.Kind),
	).Scan(&exists)
	if err == nil {
		db.logger.Info("event already exists",
			zap.String("kind", string(cmd.Kind)),
			zap.String("user_id", cmd.UserID),
		)
		return nil
	}
	if err != sql.ErrNoRows {
		return fmt.Errorf("failed to check event: %w", err)
	}

	_, err = db.Exec(`
		INSERT INTO events (id, user_id, kind, trigger_mode, trigger_minutes, repeat, created_at_minutes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uuid.New().String(), cmd.UserID, string(cmd.Kind), string(cmd.Mode),
		cmd.TriggerMinutes, boolToInt(cmd.Repeat), cmd.CreatedAtMinutes,
	)
	if err != nil {
		return fmt.Errorf("failed to add event: %w", err)
	}
	db.logger.Info("event added",
		zap.String("kind", string(cmd.Kind)),
		zap.String("mode", string(cmd.Mode)),
		zap.Int64("trigger_minutes", cmd.TriggerMinutes),
	)
	return nil
}

func (db *DB) applyUpdateEvent(cmd UpdateEvent) error {
	_, err := db.Exec(`
		UPDATE events SET kind = $1, trigger_mode = $2, trigger_minutes = $3, repeat = $4
		WHERE id = $5`,
		string(cmd.Kind), string(cmd.Mode), cmd.TriggerMinutes, boolToInt(cmd.Repeat), cmd.EventID,
	)
	if err != nil {
		return fmt.Errorf("failed to update event %s: %w", cmd.EventID, err)
	}
	return nil
}

func (db *DB) applyRemoveEvent(cmd RemoveEvent) error {
	if _, err := db.Exec("DELETE FROM events WHERE id = $1", cmd.EventID); err != nil {
		return fmt.Errorf("failed to remove event %s: %w", cmd.EventID, err)
	}
	return nil
}

func (db *DB) applyResetEventClock(cmd ResetEventClock) error {
	_, err := db.Exec(
		"UPDATE events SET created_at_minutes = $1 WHERE id = $2",
		cmd.CreatedAtMinutes, cmd.EventID,
	)
	if err != nil {
		return fmt.Errorf("failed to reset event clock %s: %w", cmd.EventID, err)
	}
	return nil
}
