package probe

import (
	"bufio"
	"bytes"
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"go.uber.org/zap"
)

// Entry is one line of the OS process listing. Name is the first
// whitespace-separated field; Raw keeps the full line for matching.
type Entry struct {
	Name string
	Raw  string
}

// Runner executes OS commands. Injected so tests can feed canned listings
// without spawning processes.
type Runner interface {
	// Output runs a command and returns its stdout
	Output(name string, args ...string) ([]byte, error)
	// Run starts a command and waits for it to finish
	Run(name string, args ...string) error
}

type execRunner struct{}

func (execRunner) Output(name string, args ...string) ([]byte, error) {
	return exec.Command(name, args...).Output()
}

func (execRunner) Run(name string, args ...string) error {
	return exec.Command(name, args...).Run()
}

// Probe lists running OS processes by name and can terminate every process
// matching a name. Registered names are correlated by name, not PID: the
// listing may report several instances of one executable and the probe
// treats them as one logical process.
type Probe struct {
	runner Runner
	logger *zap.Logger
	goos   string
}

// New creates a probe using the real OS process listing
func New(logger *zap.Logger) *Probe {
	return NewWithRunner(execRunner{}, runtime.GOOS, logger)
}

// NewWithRunner creates a probe with an injected command runner and OS name
func NewWithRunner(runner Runner, goos string, logger *zap.Logger) *Probe {
	return &Probe{
		runner: runner,
		logger: logger,
		goos:   goos,
	}
}

// List re-invokes the OS process listing and returns its entries. It is
// not a cached snapshot; every call observes the current process table.
func (p *Probe) List() ([]*Entry, error) {
	var out []byte
	var err error
	if p.goos == "windows" {
		out, err = p.runner.Output("tasklist")
	} else {
		out, err = p.runner.Output("ps", "-e", "-o", "comm=")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list processes: %w", err)
	}

	var entries []*Entry
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		entries = append(entries, &Entry{
			Name: strings.Fields(trimmed)[0],
			Raw:  line,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read process listing: %w", err)
	}
	return entries, nil
}

// IsRunning reports whether any listed entry matches name, comparing
// case-insensitively against either a prefix or a substring of the line
func (p *Probe) IsRunning(name string) (bool, error) {
	entries, err := p.List()
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		if matches(e.Raw, name) {
			return true, nil
		}
	}
	return false, nil
}

// MatchingNames returns the process names of every listed entry matching name
func (p *Probe) MatchingNames(name string) ([]string, error) {
	entries, err := p.List()
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if matches(e.Raw, name) {
			names = append(names, e.Name)
		}
	}
	return names, nil
}

// TerminateAll force-kills every currently listed process matching name,
// waiting for each kill to complete. A name with zero running instances is
// a silent no-op.
func (p *Probe) TerminateAll(name string) error {
	names, err := p.MatchingNames(name)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(names))
	for _, procName := range names {
		if seen[procName] {
			continue
		}
		seen[procName] = true

		var killErr error
		if p.goos == "windows" {
			killErr = p.runner.Run("taskkill", "/F", "/IM", procName)
		} else {
			killErr = p.runner.Run("pkill", "-9", "-x", procName)
		}
		if killErr != nil {
			// The process may have exited between listing and kill
			p.logger.Warn("kill command failed",
				zap.String("process", procName),
				zap.Error(killErr),
			)
			continue
		}
		p.logger.Info("process terminated", zap.String("process", procName))
	}
	return nil
}

func matches(line, name string) bool {
	l := strings.ToLower(line)
	n := strings.ToLower(name)
	return strings.HasPrefix(l, n) || strings.Contains(l, n)
}
