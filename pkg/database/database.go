package database

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO required)
)

// DB wraps a database connection with driver information.
//
// All mutations funnel through the WriteQueue worker; reads execute on the
// calling goroutine. Both sides serialize on mu, so at most one statement
// touches the connection at a time.
type DB struct {
	*sql.DB
	driver string
	logger *zap.Logger

	// mu is the coarse reader/writer lock shared by the queue worker and
	// every synchronous read.
	mu sync.Mutex
}

// NewDB creates a new database connection.
// A non-empty dsn selects PostgreSQL, otherwise the SQLite file at path is used.
func NewDB(dsn, path string, logger *zap.Logger) (*DB, error) {
	var db *sql.DB
	var driver string
	var err error

	if dsn != "" {
		db, err = sql.Open("postgres", dsn)
		driver = "postgres"
		if err != nil {
			return nil, fmt.Errorf("failed to open PostgreSQL database: %w", err)
		}
		logger.Info("connected to PostgreSQL database")
	} else {
		if path == "" {
			path = "./timewarden.db"
		}
		// modernc.org/sqlite uses "sqlite" as driver name and pragma query syntax
		db, err = sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
		driver = "sqlite"
		if err != nil {
			return nil, fmt.Errorf("failed to open SQLite database: %w", err)
		}
		logger.Info("connected to SQLite database", zap.String("path", path))
	}

	// A single writer holds the connection at a time; a pool buys nothing here
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	database := &DB{
		DB:     db,
		driver: driver,
		logger: logger,
	}

	// Run migrations
	if err := database.Migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return database, nil
}

// Driver returns the active driver name ("sqlite" or "postgres")
func (db *DB) Driver() string {
	return db.driver
}

// Healthy reports whether the underlying connection answers a ping
func (db *DB) Healthy(ctx context.Context) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.PingContext(ctx)
}

// Migrate applies any pending schema migrations
func (db *DB) Migrate() error {
	db.logger.Info("running database migrations")

	// Create schema_version table if it doesn't exist
	createVersionTable := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	`
	if _, err := db.Exec(createVersionTable); err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	// Get current version
	var currentVersion int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get current schema version: %w", err)
	}

	db.logger.Info("current schema version", zap.Int("version", currentVersion))

	// Run migrations
	migrations := getMigrations()
	for version, migration := range migrations {
		if version <= currentVersion {
			continue
		}

		db.logger.Info("applying migration", zap.Int("version", version))

		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("failed to apply migration %d: %w", version, err)
		}

		if _, err := db.Exec("INSERT INTO schema_version (version) VALUES ($1)", version); err != nil {
			return fmt.Errorf("failed to record migration version %d: %w", version, err)
		}

		db.logger.Info("migration applied successfully", zap.Int("version", version))
	}

	db.logger.Info("database migrations completed")
	return nil
}

// getMigrations returns a map of version -> SQL migration
func getMigrations() map[int]string {
	return map[int]string{
		1: initialSchema,
	}
}

// initialSchema is the persisted-state layout: users, watched processes and
// their time limits, automatically discovered usage samples, scheduled
// events, and immutable daily usage records.
const initialSchema = `
-- Users table
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    name VARCHAR(255) UNIQUE NOT NULL,
    ip VARCHAR(64) NOT NULL DEFAULT '',
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_users_name ON users(name);

-- Watched processes (user-registered names subject to enforcement)
CREATE TABLE IF NOT EXISTS processes (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    name VARCHAR(255) NOT NULL,
    total_seconds BIGINT NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE,
    UNIQUE(user_id, name)
);

CREATE INDEX IF NOT EXISTS idx_processes_user_id ON processes(user_id);

-- Time limits, one per watched process; absent or zero means unlimited
CREATE TABLE IF NOT EXISTS time_limits (
    id TEXT PRIMARY KEY,
    process_id TEXT UNIQUE NOT NULL,
    limit_seconds BIGINT NOT NULL,
    FOREIGN KEY (process_id) REFERENCES processes(id) ON DELETE CASCADE
);

-- Automatically discovered usage samples, one per (user, name)
CREATE TABLE IF NOT EXISTS usage_samples (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    name VARCHAR(255) NOT NULL,
    seconds BIGINT NOT NULL DEFAULT 0,
    FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE,
    UNIQUE(user_id, name)
);

CREATE INDEX IF NOT EXISTS idx_usage_samples_user_id ON usage_samples(user_id);

-- Scheduled events (shutdown / logout / screenshot)
CREATE TABLE IF NOT EXISTS events (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    kind VARCHAR(50) NOT NULL,
    trigger_mode VARCHAR(20) NOT NULL,
    trigger_minutes BIGINT NOT NULL,
    repeat INTEGER NOT NULL DEFAULT 0,
    created_at_minutes BIGINT NOT NULL,
    FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE,
    UNIQUE(user_id, kind)
);

CREATE INDEX IF NOT EXISTS idx_events_user_id ON events(user_id);

-- Daily usage records, immutable once written for a (user, date) pair
CREATE TABLE IF NOT EXISTS daily_usage (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    date VARCHAR(10) NOT NULL,
    seconds BIGINT NOT NULL,
    FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE,
    UNIQUE(user_id, date)
);

CREATE INDEX IF NOT EXISTS idx_daily_usage_user_id ON daily_usage(user_id);
`
