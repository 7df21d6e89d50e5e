package updater

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/go-ps"

	"github.com/oshokin/tandem-updater/internal/logger"
)

// LockFilename marks that an update run is in progress to avoid parallel execution.
const LockFilename = "tandem-updater.lock"

// lockLifetime is the period after which a lock file is considered stale.
// A stale lock is only recovered when no live updater process is found.
const lockLifetime = time.Hour

// updaterProcessName is the executable name looked up during stale-lock recovery.
const updaterProcessName = "tandem-updater"

// ErrAlreadyRunning is returned when another update run holds the lock.
var ErrAlreadyRunning = errors.New("an update run is already in progress")

// lockPath returns the run lock location in the system temp directory.
func lockPath() string {
	return filepath.Join(os.TempDir(), LockFilename)
}

// acquireRunLock takes the single-run lock, recovering stale locks left behind
// by crashed runs. Returns ErrAlreadyRunning when a live run holds it.
func acquireRunLock(ctx context.Context) error {
	path := lockPath()

	fileInfo, err := os.Stat(path)
	if err == nil {
		if time.Since(fileInfo.ModTime()) <= lockLifetime {
			return ErrAlreadyRunning
		}

		logger.Info(ctx, "The run lock is stale, attempting recovery")

		if isUpdaterProcessAlive() {
			return ErrAlreadyRunning
		}

		if err = os.Remove(path); err != nil {
			return fmt.Errorf("remove stale run lock: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat run lock: %w", err)
	}

	lock, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return ErrAlreadyRunning
		}

		return fmt.Errorf("create run lock: %w", err)
	}

	if err = lock.Close(); err != nil {
		return fmt.Errorf("close run lock: %w", err)
	}

	return nil
}

// releaseRunLock removes the single-run lock.
func releaseRunLock(ctx context.Context) {
	if err := os.Remove(lockPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.WarnKV(ctx, "Unable to remove run lock", "error", err)
	}
}

// isUpdaterProcessAlive reports whether another tandem-updater process exists.
func isUpdaterProcessAlive() bool {
	processList, err := ps.Processes()
	if err != nil {
		// Unable to inspect processes; assume the lock holder is alive.
		return true
	}

	thisProcessID := os.Getpid()

	for _, process := range processList {
		if process.Pid() == thisProcessID {
			continue
		}

		name := process.Executable()
		if strings.TrimSuffix(name, ".exe") == updaterProcessName {
			return true
		}
	}

	return false
}
