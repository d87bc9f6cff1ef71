package engine

import (
	"fmt"
	"image/png"
	"os"
	"os/exec"
	"os/user"
	"path/filepath"
	"runtime"
	"time"

	"github.com/kbinani/screenshot"
	"go.uber.org/zap"
)

// Actions are the OS side effects a fired event dispatches to
type Actions interface {
	// Shutdown powers the machine off. Fire-and-forget: the command is
	// started, not waited on.
	Shutdown() error
	// Logout ends the current OS session. Fire-and-forget.
	Logout() error
	// Screenshot captures the primary display to a timestamped image
	// file and returns its path
	Screenshot() (string, error)
}

// OSActions implements Actions against the host OS
type OSActions struct {
	screenshotDir string
	logger        *zap.Logger
	goos          string
}

// NewOSActions creates OS-backed event actions writing screenshots under dir
func NewOSActions(screenshotDir string, logger *zap.Logger) *OSActions {
	return &OSActions{
		screenshotDir: screenshotDir,
		logger:        logger,
		goos:          runtime.GOOS,
	}
}

// Shutdown issues the OS power-off command without waiting for it.
// Retrying a failed shutdown is not meaningful, so failures are only
// returned for logging.
func (a *OSActions) Shutdown() error {
	var cmd *exec.Cmd
	if a.goos == "windows" {
		cmd = exec.Command("shutdown", "/s", "/t", "0")
	} else {
		cmd = exec.Command("shutdown", "-h", "now")
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start shutdown command: %w", err)
	}
	return nil
}

// Logout ends the active user session without waiting for the command
func (a *OSActions) Logout() error {
	var cmd *exec.Cmd
	if a.goos == "windows" {
		cmd = exec.Command("shutdown", "/l")
	} else {
		current, err := user.Current()
		if err != nil {
			return fmt.Errorf("failed to resolve current user: %w", err)
		}
		cmd = exec.Command("loginctl", "terminate-user", current.Username)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start logout command: %w", err)
	}
	return nil
}

// Screenshot captures the full primary display to
// <dir>/<unix-milliseconds>.png, creating the directory on demand
func (a *OSActions) Screenshot() (string, error) {
	if screenshot.NumActiveDisplays() == 0 {
		return "", fmt.Errorf("no active display to capture")
	}

	if err := os.MkdirAll(a.screenshotDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create screenshot directory: %w", err)
	}

	img, err := screenshot.CaptureRect(screenshot.GetDisplayBounds(0))
	if err != nil {
		return "", fmt.Errorf("failed to capture display: %w", err)
	}

	path := filepath.Join(a.screenshotDir, fmt.Sprintf("%d.png", time.Now().UnixMilli()))
	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create screenshot file: %w", err)
	}
	defer file.Close()

	if err := png.Encode(file, img); err != nil {
		return "", fmt.Errorf("failed to encode screenshot: %w", err)
	}

	a.logger.Info("screenshot captured", zap.String("path", path))
	return path, nil
}
