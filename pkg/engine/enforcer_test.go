package engine

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sciffer/timewarden/pkg/database"
	"github.com/sciffer/timewarden/pkg/probe"
)

type fakeRunner struct {
	listing  string
	listErr  error
	runCalls [][]string
}

func (f *fakeRunner) Output(name string, args ...string) ([]byte, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return []byte(f.listing), nil
}

func (f *fakeRunner) Run(name string, args ...string) error {
	f.runCalls = append(f.runCalls, append([]string{name}, args...))
	return nil
}

func registerProcess(t *testing.T, db *database.DB, q *database.WriteQueue, userID, name string, limit int64) *database.WatchedProcess {
	t.Helper()
	q.Enqueue(database.RegisterProcess{UserID: userID, ProcessName: name, LimitSeconds: limit})
	q.Flush()
	procs, err := db.ListProcesses(context.Background(), userID)
	require.NoError(t, err)
	for _, p := range procs {
		if p.Name == name {
			return p
		}
	}
	t.Fatalf("process %q not registered", name)
	return nil
}

func TestEnforceCreditsRunningProcess(t *testing.T) {
	db, q := setupStore(t)
	user := storeUser(t, db, q, "alice")
	ctx := context.Background()

	proc := registerProcess(t, db, q, user.ID, "game.exe", 0)

	runner := &fakeRunner{listing: "game.exe    1234 Console\nexplorer.exe 10 Console\n"}
	p := probe.NewWithRunner(runner, "windows", zap.NewNop())
	e := NewEnforcer(db, q, p, 2, zap.NewNop())

	require.NoError(t, e.Enforce(ctx, user.ID))
	q.Flush()

	seconds, err := db.GetProcessSeconds(ctx, proc.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), seconds)
	// No limit configured, nothing killed
	assert.Empty(t, runner.runCalls)
}

func TestEnforceSkipsStoppedProcess(t *testing.T) {
	db, q := setupStore(t)
	user := storeUser(t, db, q, "alice")
	ctx := context.Background()

	proc := registerProcess(t, db, q, user.ID, "game.exe", 10)

	runner := &fakeRunner{listing: "explorer.exe 10 Console\n"}
	p := probe.NewWithRunner(runner, "windows", zap.NewNop())
	e := NewEnforcer(db, q, p, 2, zap.NewNop())

	require.NoError(t, e.Enforce(ctx, user.ID))
	q.Flush()

	seconds, err := db.GetProcessSeconds(ctx, proc.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), seconds)
	assert.Empty(t, runner.runCalls)
}

func TestEnforceTerminatesOverLimit(t *testing.T) {
	db, q := setupStore(t)
	user := storeUser(t, db, q, "alice")
	ctx := context.Background()

	proc := registerProcess(t, db, q, user.ID, "game.exe", 10)
	q.Enqueue(database.AddProcessTime{ProcessID: proc.ID, Seconds: 9})
	q.Flush()

	runner := &fakeRunner{listing: "game.exe    1234 Console\n"}
	p := probe.NewWithRunner(runner, "windows", zap.NewNop())
	e := NewEnforcer(db, q, p, 2, zap.NewNop())

	// 9 accumulated + 2 this tick = 11 > 10
	require.NoError(t, e.Enforce(ctx, user.ID))
	q.Flush()

	require.Len(t, runner.runCalls, 1)
	assert.Equal(t, []string{"taskkill", "/F", "/IM", "game.exe"}, runner.runCalls[0])

	seconds, err := db.GetProcessSeconds(ctx, proc.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(11), seconds)
}

func TestEnforceUnderLimitNotTerminated(t *testing.T) {
	db, q := setupStore(t)
	user := storeUser(t, db, q, "alice")
	ctx := context.Background()

	proc := registerProcess(t, db, q, user.ID, "game.exe", 100)
	q.Enqueue(database.AddProcessTime{ProcessID: proc.ID, Seconds: 50})
	q.Flush()

	runner := &fakeRunner{listing: "game.exe    1234 Console\n"}
	p := probe.NewWithRunner(runner, "windows", zap.NewNop())
	e := NewEnforcer(db, q, p, 2, zap.NewNop())

	require.NoError(t, e.Enforce(ctx, user.ID))
	q.Flush()

	assert.Empty(t, runner.runCalls)
}

func TestEnforceContinuesAfterProbeFailure(t *testing.T) {
	db, q := setupStore(t)
	user := storeUser(t, db, q, "alice")
	ctx := context.Background()

	registerProcess(t, db, q, user.ID, "game.exe", 10)

	runner := &fakeRunner{listErr: fmt.Errorf("tasklist unavailable")}
	p := probe.NewWithRunner(runner, "windows", zap.NewNop())
	e := NewEnforcer(db, q, p, 2, zap.NewNop())

	// Probe failure is logged per process, not returned
	require.NoError(t, e.Enforce(ctx, user.ID))
	assert.Empty(t, runner.runCalls)
}
