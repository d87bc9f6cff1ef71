package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ListUsers returns all users ordered by creation time
func (db *DB) ListUsers(ctx context.Context) ([]*User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	rows, err := db.QueryContext(ctx, "SELECT id, name, ip, created_at FROM users ORDER BY created_at")
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Name, &u.IP, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, &u)
	}
	return users, rows.Err()
}

// GetUserByName returns the user with the given display name, or nil when
// no such user exists
func (db *DB) GetUserByName(ctx context.Context, name string) (*User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var u User
	err := db.QueryRowContext(ctx,
		"SELECT id, name, ip, created_at FROM users WHERE name = $1", name,
	).Scan(&u.ID, &u.Name, &u.IP, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user %q: %w", name, err)
	}
	return &u, nil
}

// FirstUser returns the earliest-created user, or nil when the store has none
func (db *DB) FirstUser(ctx context.Context) (*User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var u User
	err := db.QueryRowContext(ctx,
		"SELECT id, name, ip, created_at FROM users ORDER BY created_at LIMIT 1",
	).Scan(&u.ID, &u.Name, &u.IP, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get first user: %w", err)
	}
	return &u, nil
}

func (db *DB) applyCreateUser(cmd CreateUser) error {
	var exists int
	err := db.QueryRow("SELECT 1 FROM users WHERE name = $1", cmd.UserName).Scan(&exists)
	if err == nil {
		db.logger.Info("user already exists", zap.String("name", cmd.UserName))
		return nil
	}
	if err != sql.ErrNoRows {
		return fmt.Errorf("failed to check user %q: %w", cmd.UserName, err)
	}

	_, err = db.Exec(
		"INSERT INTO users (id, name, ip) VALUES ($1, $2, $3)",
		uuid.New().String(), cmd.UserName, cmd.IP,
	)
	if err != nil {
		return fmt.Errorf("failed to create user %q: %w", cmd.UserName, err)
	}
	db.logger.Info("user created", zap.String("name", cmd.UserName))
	return nil
}

func (db *DB) applyDeleteUser(cmd DeleteUser) error {
	// Explicit cascade keeps the delete order identical on both drivers
	statements := []string{
		"DELETE FROM time_limits WHERE process_id IN (SELECT id FROM processes WHERE user_id = $1)",
		"DELETE FROM processes WHERE user_id = $1",
		"DELETE FROM events WHERE user_id = $1",
		"DELETE FROM usage_samples WHERE user_id = $1",
		"DELETE FROM daily_usage WHERE user_id = $1",
		"DELETE FROM users WHERE id = $1",
	}
	for _, stmt := range statements {
		if _, err := db.Exec(stmt, cmd.UserID); err != nil {
			return fmt.Errorf("failed to delete user %s: %w", cmd.UserID, err)
		}
	}
	db.logger.Info("user deleted", zap.String("user_id", cmd.UserID))
	return nil
}
