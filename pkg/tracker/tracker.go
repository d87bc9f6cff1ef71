package tracker

import (
	"context"
	"fmt"
	"runtime"
	"strings"

	"go.uber.org/zap"

	"github.com/sciffer/timewarden/pkg/database"
	"github.com/sciffer/timewarden/pkg/probe"
)

// systemProcesses are OS housekeeping names that never count as user
// activity and are excluded from discovery
var systemProcesses = map[string]bool{
	"System Idle Process": true, "System": true, "smss.exe": true,
	"csrss.exe": true, "wininit.exe": true, "services.exe": true,
	"lsass.exe": true, "winlogon.exe": true, "explorer.exe": true,
	"spoolsv.exe": true, "dwm.exe": true, "taskhostw.exe": true,
	"fontdrvhost.exe": true, "registry": true, "conhost.exe": true,
	"rundll32.exe": true, "audiodg.exe": true, "WmiPrvSE.exe": true,
	"SearchIndexer.exe": true, "SearchUI.exe": true, "RuntimeBroker.exe": true,
	"SgrmBroker.exe": true, "StartMenuExperienceHost.exe": true,
	"ShellExperienceHost.exe": true, "SecurityHealthSystray.exe": true,
	"msmpeng.exe": true, "NisSrv.exe": true, "ctfmon.exe": true,
	"sihost.exe": true, "backgroundTaskHost.exe": true,
	"AppVShNotify.exe": true, "AppVClient.exe": true,
	"Image": true, "Secure": true, "Registry": true, "Memory": true,
	// Common Unix housekeeping
	"kthreadd": true, "systemd": true, "init": true, "launchd": true,
}

// Tracker discovers running processes that are not yet being sampled and
// creates or increments their usage counters. This is the only place where
// "any running program" becomes tracked; watched processes are a separate,
// user-curated subset used for limit enforcement.
type Tracker struct {
	probe  *probe.Probe
	db     *database.DB
	queue  *database.WriteQueue
	logger *zap.Logger
	goos   string
	step   int64
}

// New creates a tracker. step is the number of seconds added to a sample
// that is already tracked when discovery sees it again.
func New(p *probe.Probe, db *database.DB, queue *database.WriteQueue, step int64, logger *zap.Logger) *Tracker {
	return &Tracker{
		probe:  p,
		db:     db,
		queue:  queue,
		logger: logger,
		goos:   runtime.GOOS,
		step:   step,
	}
}

// Discover lists all running processes once and, for every non-system name,
// either creates a zero-second usage sample or increments the existing one.
// Runs at startup on its own goroutine, decoupled from the enforcement tick.
func (t *Tracker) Discover(ctx context.Context, userID string) error {
	entries, err := t.probe.List()
	if err != nil {
		return fmt.Errorf("discovery listing failed: %w", err)
	}

	seen := make(map[string]bool)
	discovered := 0
	for _, entry := range entries {
		name := entry.Name
		if seen[name] {
			continue
		}
		seen[name] = true

		if systemProcesses[name] || !t.executableName(name) {
			continue
		}

		tracked, err := t.db.IsUsageTracked(ctx, userID, name)
		if err != nil {
			return fmt.Errorf("discovery lookup failed for %q: %w", name, err)
		}
		if tracked {
			t.queue.Enqueue(database.AddUsageTime{UserID: userID, SampleName: name, Seconds: t.step})
		} else {
			t.queue.Enqueue(database.EnsureUsageSample{UserID: userID, SampleName: name})
			discovered++
		}
	}

	t.logger.Info("process discovery completed",
		zap.Int("listed", len(seen)),
		zap.Int("new", discovered),
		zap.String("user_id", userID),
	)
	return nil
}

// executableName reports whether a listing name looks like a user
// executable. Windows listings carry an .exe suffix; elsewhere the listing
// reports bare command names, so the denylist does the filtering.
func (t *Tracker) executableName(name string) bool {
	if t.goos == "windows" {
		return strings.Contains(name, ".exe")
	}
	return name != "" && !strings.HasPrefix(name, "[")
}
