package database_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sciffer/timewarden/pkg/database"
)

func setupDB(t *testing.T) *database.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")

	db, err := database.NewDB("", path, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func setupQueue(t *testing.T, db *database.DB) *database.WriteQueue {
	t.Helper()
	q := database.NewWriteQueue(db, zap.NewNop())
	t.Cleanup(func() { q.Stop(context.Background()) })
	return q
}

// createUser creates a user through the queue and returns it
func createUser(t *testing.T, db *database.DB, q *database.WriteQueue, name string) *database.User {
	t.Helper()
	require.True(t, q.Enqueue(database.CreateUser{UserName: name}))
	q.Flush()

	user, err := db.GetUserByName(context.Background(), name)
	require.NoError(t, err)
	require.NotNil(t, user)
	return user
}

func TestMigrateCreatesSchema(t *testing.T) {
	db := setupDB(t)

	for _, table := range []string{"users", "processes", "time_limits", "usage_samples", "events", "daily_usage"} {
		var count int
		err := db.QueryRow(
			"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=$1", table,
		).Scan(&count)
		require.NoError(t, err)
		assert.Equal(t, 1, count, "table %s should exist", table)
	}

	assert.Equal(t, "sqlite", db.Driver())
	assert.NoError(t, db.Healthy(context.Background()))
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := setupDB(t)
	require.NoError(t, db.Migrate())
	require.NoError(t, db.Migrate())
}

func TestGetUserByNameAbsent(t *testing.T) {
	db := setupDB(t)

	user, err := db.GetUserByName(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Nil(t, user)

	first, err := db.FirstUser(context.Background())
	require.NoError(t, err)
	assert.Nil(t, first)
}

func TestCreateUserDuplicateIsNoOp(t *testing.T) {
	db := setupDB(t)
	q := setupQueue(t, db)
	ctx := context.Background()

	user := createUser(t, db, q, "alice")

	require.True(t, q.Enqueue(database.CreateUser{UserName: "alice", IP: "10.0.0.2"}))
	q.Flush()

	users, err := db.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, user.ID, users[0].ID)
}

func TestQueueAppliesInSubmissionOrder(t *testing.T) {
	db := setupDB(t)
	q := setupQueue(t, db)
	ctx := context.Background()

	user := createUser(t, db, q, "alice")

	// The sample must exist before the increments land on it; a reorder
	// would lose both increments
	q.Enqueue(database.EnsureUsageSample{UserID: user.ID, SampleName: "firefox"})
	q.Enqueue(database.AddUsageTime{UserID: user.ID, SampleName: "firefox", Seconds: 2})
	q.Enqueue(database.AddUsageTime{UserID: user.ID, SampleName: "firefox", Seconds: 2})
	q.Flush()

	samples, err := db.ListUsageSamples(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, "firefox", samples[0].Name)
	assert.Equal(t, int64(4), samples[0].Seconds)
}

func TestQueueSurvivesFailingCommand(t *testing.T) {
	db := setupDB(t)
	q := setupQueue(t, db)
	ctx := context.Background()

	user := createUser(t, db, q, "alice")

	q.Enqueue(database.InsertDailyUsage{UserID: user.ID, Date: "2026-08-30", Seconds: 100})
	// Duplicate (user, date) violates the unique constraint and is dropped
	q.Enqueue(database.InsertDailyUsage{UserID: user.ID, Date: "2026-08-30", Seconds: 999})
	q.Enqueue(database.InsertDailyUsage{UserID: user.ID, Date: "2026-08-31", Seconds: 200})
	q.Flush()

	assert.True(t, q.Healthy())

	records, err := db.ListDailyUsage(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, int64(100), records[0].Seconds)
	assert.Equal(t, int64(200), records[1].Seconds)
}

func TestQueueStopRejectsNewCommands(t *testing.T) {
	db := setupDB(t)
	q := database.NewWriteQueue(db, zap.NewNop())

	require.True(t, q.Enqueue(database.CreateUser{UserName: "alice"}))
	require.NoError(t, q.Stop(context.Background()))

	assert.False(t, q.Enqueue(database.CreateUser{UserName: "bob"}))
	assert.False(t, q.Healthy())
	assert.Equal(t, 0, q.Depth())

	// The command submitted before Stop was drained
	user, err := db.GetUserByName(context.Background(), "alice")
	require.NoError(t, err)
	assert.NotNil(t, user)
}

func TestRegisterProcessWithLimitIsOneUnit(t *testing.T) {
	db := setupDB(t)
	q := setupQueue(t, db)
	ctx := context.Background()

	user := createUser(t, db, q, "alice")

	q.Enqueue(database.RegisterProcess{UserID: user.ID, ProcessName: "game.exe", LimitSeconds: 3600})
	q.Flush()

	procs, err := db.ListProcesses(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, procs, 1)
	assert.Equal(t, "game.exe", procs[0].Name)
	assert.Equal(t, int64(0), procs[0].TotalSeconds)
	assert.Equal(t, int64(3600), procs[0].LimitSeconds)

	limit, err := db.GetTimeLimit(ctx, procs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3600), limit)
}

func TestRegisterProcessWithoutLimit(t *testing.T) {
	db := setupDB(t)
	q := setupQueue(t, db)
	ctx := context.Background()

	user := createUser(t, db, q, "alice")

	q.Enqueue(database.RegisterProcess{UserID: user.ID, ProcessName: "editor"})
	q.Flush()

	procs, err := db.ListProcesses(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, procs, 1)
	assert.Equal(t, int64(0), procs[0].LimitSeconds)

	limit, err := db.GetTimeLimit(ctx, procs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), limit)
}

func TestSetTimeLimitUpserts(t *testing.T) {
	db := setupDB(t)
	q := setupQueue(t, db)
	ctx := context.Background()

	user := createUser(t, db, q, "alice")

	q.Enqueue(database.RegisterProcess{UserID: user.ID, ProcessName: "game.exe"})
	q.Flush()
	procs, err := db.ListProcesses(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, procs, 1)
	procID := procs[0].ID

	q.Enqueue(database.SetTimeLimit{ProcessID: procID, LimitSeconds: 1800})
	q.Flush()
	limit, err := db.GetTimeLimit(ctx, procID)
	require.NoError(t, err)
	assert.Equal(t, int64(1800), limit)

	q.Enqueue(database.SetTimeLimit{ProcessID: procID, LimitSeconds: 900})
	q.Flush()
	limit, err = db.GetTimeLimit(ctx, procID)
	require.NoError(t, err)
	assert.Equal(t, int64(900), limit)
}

func TestAddProcessTimeAccumulates(t *testing.T) {
	db := setupDB(t)
	q := setupQueue(t, db)
	ctx := context.Background()

	user := createUser(t, db, q, "alice")

	q.Enqueue(database.RegisterProcess{UserID: user.ID, ProcessName: "game.exe"})
	q.Flush()
	procs, err := db.ListProcesses(ctx, user.ID)
	require.NoError(t, err)
	procID := procs[0].ID

	q.Enqueue(database.AddProcessTime{ProcessID: procID, Seconds: 2})
	q.Enqueue(database.AddProcessTime{ProcessID: procID, Seconds: 2})
	q.Flush()

	seconds, err := db.GetProcessSeconds(ctx, procID)
	require.NoError(t, err)
	assert.Equal(t, int64(4), seconds)
}

func TestListURLProcesses(t *testing.T) {
	db := setupDB(t)
	q := setupQueue(t, db)
	ctx := context.Background()

	user := createUser(t, db, q, "alice")

	q.Enqueue(database.RegisterProcess{UserID: user.ID, ProcessName: "game.exe"})
	q.Enqueue(database.RegisterProcess{UserID: user.ID, ProcessName: "example.com"})
	q.Enqueue(database.RegisterProcess{UserID: user.ID, ProcessName: "www.school.edu"})
	q.Flush()

	urls, err := db.ListURLProcesses(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, urls, 2)

	names := []string{urls[0].Name, urls[1].Name}
	assert.Contains(t, names, "example.com")
	assert.Contains(t, names, "www.school.edu")
}

func TestDuplicateEventKindIsNoOp(t *testing.T) {
	db := setupDB(t)
	q := setupQueue(t, db)
	ctx := context.Background()

	user := createUser(t, db, q, "alice")

	q.Enqueue(database.AddEvent{
		UserID: user.ID, Kind: database.EventShutdown,
		Mode: database.TriggerAtClockTime, TriggerMinutes: 1200,
		CreatedAtMinutes: 1000,
	})
	q.Enqueue(database.AddEvent{
		UserID: user.ID, Kind: database.EventShutdown,
		Mode: database.TriggerAfterElapsed, TriggerMinutes: 30,
		CreatedAtMinutes: 2000,
	})
	q.Flush()

	events, err := db.ListEvents(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, database.EventShutdown, events[0].Kind)
	assert.Equal(t, database.TriggerAtClockTime, events[0].Mode)
	assert.Equal(t, int64(1200), events[0].TriggerMinutes)
}

func TestUpdateAndRemoveEvent(t *testing.T) {
	db := setupDB(t)
	q := setupQueue(t, db)
	ctx := context.Background()

	user := createUser(t, db, q, "alice")

	q.Enqueue(database.AddEvent{
		UserID: user.ID, Kind: database.EventScreenshot,
		Mode: database.TriggerAfterElapsed, TriggerMinutes: 10,
		Repeat: true, CreatedAtMinutes: 1000,
	})
	q.Flush()
	events, err := db.ListEvents(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.True(t, events[0].Repeat)

	q.Enqueue(database.UpdateEvent{
		EventID: events[0].ID, Kind: database.EventScreenshot,
		Mode: database.TriggerAfterElapsed, TriggerMinutes: 20,
	})
	q.Flush()
	events, err = db.ListEvents(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, int64(20), events[0].TriggerMinutes)
	assert.False(t, events[0].Repeat)

	q.Enqueue(database.RemoveEvent{EventID: events[0].ID})
	q.Flush()
	events, err = db.ListEvents(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestResetEventClock(t *testing.T) {
	db := setupDB(t)
	q := setupQueue(t, db)
	ctx := context.Background()

	user := createUser(t, db, q, "alice")

	q.Enqueue(database.AddEvent{
		UserID: user.ID, Kind: database.EventLogout,
		Mode: database.TriggerAfterElapsed, TriggerMinutes: 30,
		Repeat: true, CreatedAtMinutes: 1000,
	})
	q.Flush()
	events, err := db.ListEvents(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)

	q.Enqueue(database.ResetEventClock{EventID: events[0].ID, CreatedAtMinutes: 1030})
	q.Flush()
	events, err = db.ListEvents(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, int64(1030), events[0].CreatedAtMinutes)
}

func TestEnsureUsageSampleDuplicateSwallowed(t *testing.T) {
	db := setupDB(t)
	q := setupQueue(t, db)
	ctx := context.Background()

	user := createUser(t, db, q, "alice")

	q.Enqueue(database.EnsureUsageSample{UserID: user.ID, SampleName: "firefox"})
	q.Enqueue(database.AddUsageTime{UserID: user.ID, SampleName: "firefox", Seconds: 10})
	q.Enqueue(database.EnsureUsageSample{UserID: user.ID, SampleName: "firefox"})
	q.Flush()

	samples, err := db.ListUsageSamples(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, samples, 1)
	// The second ensure must not reset the counter
	assert.Equal(t, int64(10), samples[0].Seconds)

	tracked, err := db.IsUsageTracked(ctx, user.ID, "firefox")
	require.NoError(t, err)
	assert.True(t, tracked)
}

func TestSessionSecondsAbsentIsZero(t *testing.T) {
	db := setupDB(t)
	q := setupQueue(t, db)

	user := createUser(t, db, q, "alice")

	seconds, err := db.SessionSeconds(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), seconds)
}

func TestDailyUsageSumAndLookup(t *testing.T) {
	db := setupDB(t)
	q := setupQueue(t, db)
	ctx := context.Background()

	user := createUser(t, db, q, "alice")

	q.Enqueue(database.InsertDailyUsage{UserID: user.ID, Date: "2026-08-29", Seconds: 300})
	q.Enqueue(database.InsertDailyUsage{UserID: user.ID, Date: "2026-08-30", Seconds: 500})
	q.Flush()

	sum, err := db.DailyUsageSum(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(800), sum)

	has, err := db.HasDailyUsage(ctx, user.ID, "2026-08-30")
	require.NoError(t, err)
	assert.True(t, has)

	has, err = db.HasDailyUsage(ctx, user.ID, "2026-08-31")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestDeleteUserCascades(t *testing.T) {
	db := setupDB(t)
	q := setupQueue(t, db)
	ctx := context.Background()

	user := createUser(t, db, q, "alice")
	other := createUser(t, db, q, "bob")

	q.Enqueue(database.RegisterProcess{UserID: user.ID, ProcessName: "game.exe", LimitSeconds: 60})
	q.Enqueue(database.EnsureUsageSample{UserID: user.ID, SampleName: "firefox"})
	q.Enqueue(database.AddEvent{
		UserID: user.ID, Kind: database.EventShutdown,
		Mode: database.TriggerAtClockTime, TriggerMinutes: 1200, CreatedAtMinutes: 0,
	})
	q.Enqueue(database.InsertDailyUsage{UserID: user.ID, Date: "2026-08-31", Seconds: 100})
	q.Enqueue(database.RegisterProcess{UserID: other.ID, ProcessName: "editor"})
	q.Flush()

	q.Enqueue(database.DeleteUser{UserID: user.ID})
	q.Flush()

	gone, err := db.GetUserByName(ctx, "alice")
	require.NoError(t, err)
	assert.Nil(t, gone)

	procs, err := db.ListProcesses(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, procs)
	samples, err := db.ListUsageSamples(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, samples)
	events, err := db.ListEvents(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, events)
	daily, err := db.ListDailyUsage(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, daily)

	// The other user's data is untouched
	otherProcs, err := db.ListProcesses(ctx, other.ID)
	require.NoError(t, err)
	assert.Len(t, otherProcs, 1)
}

func TestRenameAndRemoveProcess(t *testing.T) {
	db := setupDB(t)
	q := setupQueue(t, db)
	ctx := context.Background()

	user := createUser(t, db, q, "alice")

	q.Enqueue(database.RegisterProcess{UserID: user.ID, ProcessName: "game.exe", LimitSeconds: 60})
	q.Flush()
	procs, err := db.ListProcesses(ctx, user.ID)
	require.NoError(t, err)
	procID := procs[0].ID

	q.Enqueue(database.RenameProcess{ProcessID: procID, NewName: "other.exe"})
	q.Flush()
	proc, err := db.GetProcess(ctx, procID)
	require.NoError(t, err)
	require.NotNil(t, proc)
	assert.Equal(t, "other.exe", proc.Name)

	q.Enqueue(database.RemoveProcess{ProcessID: procID})
	q.Flush()
	proc, err = db.GetProcess(ctx, procID)
	require.NoError(t, err)
	assert.Nil(t, proc)
	limit, err := db.GetTimeLimit(ctx, procID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), limit)
}
