package probe_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sciffer/timewarden/pkg/probe"
)

// fakeRunner feeds canned listings and records kill invocations
type fakeRunner struct {
	listing    string
	listErr    error
	runErr     error
	runCalls   [][]string
	listCalled int
}

func (f *fakeRunner) Output(name string, args ...string) ([]byte, error) {
	f.listCalled++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return []byte(f.listing), nil
}

func (f *fakeRunner) Run(name string, args ...string) error {
	f.runCalls = append(f.runCalls, append([]string{name}, args...))
	return f.runErr
}

const windowsListing = `
Image Name                     PID Session Name        Session#    Mem Usage
========================= ======== ================ =========== ============
System Idle Process              0 Services                   0          8 K
chrome.exe                    1234 Console                    1    102,400 K
chrome.exe                    1235 Console                    1     98,304 K
Game.exe                      2000 Console                    1     55,000 K
notepad.exe                   3000 Console                    1      8,192 K
`

func TestIsRunningMatchesPrefix(t *testing.T) {
	f := &fakeRunner{listing: windowsListing}
	p := probe.NewWithRunner(f, "windows", zap.NewNop())

	running, err := p.IsRunning("chrome.exe")
	require.NoError(t, err)
	assert.True(t, running)
}

func TestIsRunningMatchesCaseInsensitive(t *testing.T) {
	f := &fakeRunner{listing: windowsListing}
	p := probe.NewWithRunner(f, "windows", zap.NewNop())

	running, err := p.IsRunning("game.exe")
	require.NoError(t, err)
	assert.True(t, running)
}

func TestIsRunningMatchesSubstring(t *testing.T) {
	f := &fakeRunner{listing: windowsListing}
	p := probe.NewWithRunner(f, "windows", zap.NewNop())

	// A fragment appearing mid-line still matches
	running, err := p.IsRunning("notepad")
	require.NoError(t, err)
	assert.True(t, running)
}

func TestIsRunningAbsent(t *testing.T) {
	f := &fakeRunner{listing: windowsListing}
	p := probe.NewWithRunner(f, "windows", zap.NewNop())

	running, err := p.IsRunning("steam.exe")
	require.NoError(t, err)
	assert.False(t, running)
}

func TestIsRunningPropagatesListError(t *testing.T) {
	f := &fakeRunner{listErr: fmt.Errorf("tasklist not found")}
	p := probe.NewWithRunner(f, "windows", zap.NewNop())

	_, err := p.IsRunning("chrome.exe")
	assert.Error(t, err)
}

func TestListIsFreshPerCall(t *testing.T) {
	f := &fakeRunner{listing: windowsListing}
	p := probe.NewWithRunner(f, "windows", zap.NewNop())

	_, err := p.List()
	require.NoError(t, err)
	_, err = p.List()
	require.NoError(t, err)
	assert.Equal(t, 2, f.listCalled)
}

func TestTerminateAllDeduplicatesNames(t *testing.T) {
	f := &fakeRunner{listing: windowsListing}
	p := probe.NewWithRunner(f, "windows", zap.NewNop())

	// Two chrome.exe instances, one kill command
	require.NoError(t, p.TerminateAll("chrome.exe"))
	require.Len(t, f.runCalls, 1)
	assert.Equal(t, []string{"taskkill", "/F", "/IM", "chrome.exe"}, f.runCalls[0])
}

func TestTerminateAllNoMatchIsNoOp(t *testing.T) {
	f := &fakeRunner{listing: windowsListing}
	p := probe.NewWithRunner(f, "windows", zap.NewNop())

	require.NoError(t, p.TerminateAll("steam.exe"))
	assert.Empty(t, f.runCalls)
}

func TestTerminateAllContinuesAfterKillFailure(t *testing.T) {
	f := &fakeRunner{listing: windowsListing, runErr: fmt.Errorf("access denied")}
	p := probe.NewWithRunner(f, "windows", zap.NewNop())

	// A failed kill is logged, not returned
	require.NoError(t, p.TerminateAll("chrome.exe"))
	assert.Len(t, f.runCalls, 1)
}

func TestUnixListingAndKill(t *testing.T) {
	f := &fakeRunner{listing: "bash\nfirefox\nfirefox\nsshd\n"}
	p := probe.NewWithRunner(f, "linux", zap.NewNop())

	entries, err := p.List()
	require.NoError(t, err)
	require.Len(t, entries, 4)
	assert.Equal(t, "bash", entries[0].Name)

	running, err := p.IsRunning("firefox")
	require.NoError(t, err)
	assert.True(t, running)

	require.NoError(t, p.TerminateAll("firefox"))
	require.Len(t, f.runCalls, 1)
	assert.Equal(t, []string{"pkill", "-9", "-x", "firefox"}, f.runCalls[0])
}
